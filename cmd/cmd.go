package cmd

import (
	"context"
	"log/slog"

	"github.com/Meeds-io/deeds-dapp-sub003/internal/config"
	"github.com/Meeds-io/deeds-dapp-sub003/pkg/logger"
	"github.com/Meeds-io/deeds-dapp-sub003/pkg/logger/slogx"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:  "deeds-dapp",
	Long: `Deed renting reconciliation and reward engine`,
}

func init() {
	var configFile string

	// Add global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file, E.g. `./config.yaml`")
	flags.String("store", "postgres", "entity store backend, `postgres` or `memory`")

	// Bind flags to configuration
	config.BindPFlag("store", flags.Lookup("store"))

	// Initialize configuration and logger on start command
	cobra.OnInitialize(func() {
		conf := config.Parse(configFile)

		if err := logger.Init(conf.Logger); err != nil {
			logger.Panic("Failed to initialize logger", slogx.Error(err), slog.Any("config", conf.Logger))
		}
	})
}

func Execute(ctx context.Context) {
	rootCmd.AddCommand(
		NewVersionCommand(),
		NewRunCommand(),
	)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Panic("Failed to execute root command", slogx.Error(err))
	}
}
