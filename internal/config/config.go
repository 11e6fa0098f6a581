package config

import (
	"strings"
	"sync"
	"time"

	"github.com/Meeds-io/deeds-dapp-sub003/internal/postgres"
	"github.com/Meeds-io/deeds-dapp-sub003/pkg/logger"
	"github.com/Meeds-io/deeds-dapp-sub003/pkg/logger/slogx"
	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	configOnce sync.Once
	config     = &Config{
		Logger: logger.Config{
			Output: "text",
		},
		Store:             "postgres",
		MetricsListenAddr: ":9090",
		Renting: RentingConfig{
			PollInterval:             time.Minute,
			MinedEventsCheckInterval: 5 * time.Minute,
		},
	}
)

type Config struct {
	Logger   logger.Config   `mapstructure:"logger"`
	Ethereum EthereumConfig  `mapstructure:"ethereum"`
	Postgres postgres.Config `mapstructure:"postgres"`
	Renting  RentingConfig   `mapstructure:"renting"`

	// Store selects the entity store backend, "postgres" (default) or
	// "memory" for local development.
	Store string `mapstructure:"store"`

	// MetricsListenAddr is the listen address of the Prometheus metrics
	// endpoint. Empty disables the endpoint.
	MetricsListenAddr string `mapstructure:"metrics_listen_addr"`
}

type EthereumConfig struct {
	// RPC is the JSON-RPC endpoint of an Ethereum-compatible node.
	RPC string `mapstructure:"rpc"`

	// RentingContract is the address of the Deed renting contract whose
	// events are decoded by the reconciliation poller.
	RentingContract string `mapstructure:"renting_contract"`
}

type RentingConfig struct {
	// PollInterval is the tick for pending transaction sweeps.
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// MinedEventsCheckInterval is the tick for the contract-wide mined
	// events sweep.
	MinedEventsCheckInterval time.Duration `mapstructure:"mined_events_check_interval"`
}

// BindPFlag binds a specific configuration key to a command line flag.
func BindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		logger.Panic("Failed to bind flag to configuration", slogx.String("key", key), slogx.Error(err))
	}
}

// Parse loads the configuration from the given file (or ./config.yaml),
// overridden by environment variables.
func Parse(configFile string) Config {
	configOnce.Do(func() {
		if configFile != "" {
			viper.SetConfigFile(configFile)
		} else {
			viper.AddConfigPath("./")
			viper.SetConfigName("config")
		}

		viper.AutomaticEnv()
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		if err := viper.ReadInConfig(); err != nil {
			var errNotFound viper.ConfigFileNotFoundError
			if errors.As(err, &errNotFound) {
				logger.Warn("Config file not found, using default values", slogx.Error(err))
			} else {
				logger.Panic("Invalid config file", slogx.Error(err))
			}
		}

		if err := viper.Unmarshal(&config); err != nil {
			logger.Panic("Failed to unmarshal config", slogx.Error(err))
		}
	})

	return *config
}

// Load returns the already parsed configuration.
func Load() Config {
	return Parse("")
}
