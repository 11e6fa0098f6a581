package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Meeds-io/deeds-dapp-sub003/core/chain"
	"github.com/Meeds-io/deeds-dapp-sub003/core/chain/ethereum"
	"github.com/Meeds-io/deeds-dapp-sub003/internal/config"
	"github.com/Meeds-io/deeds-dapp-sub003/internal/postgres"
	"github.com/Meeds-io/deeds-dapp-sub003/modules/renting"
	rentingdg "github.com/Meeds-io/deeds-dapp-sub003/modules/renting/datagateway"
	rentingmemory "github.com/Meeds-io/deeds-dapp-sub003/modules/renting/repository/memory"
	rentingpg "github.com/Meeds-io/deeds-dapp-sub003/modules/renting/repository/postgres"
	"github.com/Meeds-io/deeds-dapp-sub003/modules/rewards"
	rewardsdg "github.com/Meeds-io/deeds-dapp-sub003/modules/rewards/datagateway"
	rewardsmemory "github.com/Meeds-io/deeds-dapp-sub003/modules/rewards/repository/memory"
	rewardspg "github.com/Meeds-io/deeds-dapp-sub003/modules/rewards/repository/postgres"
	"github.com/Meeds-io/deeds-dapp-sub003/pkg/automaxprocs"
	"github.com/Meeds-io/deeds-dapp-sub003/pkg/event"
	"github.com/Meeds-io/deeds-dapp-sub003/pkg/logger"
	"github.com/Meeds-io/deeds-dapp-sub003/pkg/logger/slogx"
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/do/v2"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 60 * time.Second

// rentingGateways bundles the store implementations the services consume.
type rentingGateways struct {
	Offers   rentingdg.OfferDataGateway
	Leases   rentingdg.LeaseDataGateway
	Settings rentingdg.SettingDataGateway
}

type rewardsGateways struct {
	Reports rewardsdg.ReportDataGateway
	Rewards rewardsdg.RewardDataGateway
}

func NewRunCommand() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start deeds-dapp service",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := automaxprocs.Init(); err != nil {
				logger.Error("Failed to set GOMAXPROCS", slogx.Error(err))
			}
			return runHandler(cmd, args)
		},
	}

	flags := runCmd.Flags()
	flags.Duration("poll-interval", time.Minute, "pending transaction sweep interval")
	flags.String("metrics-listen-addr", ":9090", "prometheus metrics listen address, empty to disable")

	config.BindPFlag("renting.poll_interval", flags.Lookup("poll-interval"))
	config.BindPFlag("metrics_listen_addr", flags.Lookup("metrics-listen-addr"))

	return runCmd
}

func runHandler(cmd *cobra.Command, _ []string) error {
	conf := config.Load()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	injector := do.New()
	do.ProvideValue(injector, conf)

	do.Provide(injector, func(i do.Injector) (*prometheus.Registry, error) {
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		return registry, nil
	})

	do.Provide(injector, func(i do.Injector) (*pgxpool.Pool, error) {
		conf := do.MustInvoke[config.Config](i)

		start := time.Now()
		logger.InfoContext(ctx, "Connecting to Postgres...", slogx.String("host", conf.Postgres.Host))
		pool, err := postgres.NewPool(ctx, conf.Postgres)
		if err != nil {
			return nil, errors.Wrap(err, "can't connect to Postgres")
		}
		logger.InfoContext(ctx, "Connected to Postgres", slogx.Duration("latency", time.Since(start)))
		return pool, nil
	})

	do.Provide(injector, func(i do.Injector) (chain.Reader, error) {
		conf := do.MustInvoke[config.Config](i)

		client, err := ethereum.NewClient(ctx, ethereum.Config{
			RPC:             conf.Ethereum.RPC,
			RentingContract: conf.Ethereum.RentingContract,
		})
		if err != nil {
			return nil, errors.Wrap(err, "invalid ethereum configuration")
		}
		return client, nil
	})

	do.Provide(injector, func(i do.Injector) (*event.Bus, error) {
		return event.NewBus(do.MustInvoke[*prometheus.Registry](i)), nil
	})

	do.Provide(injector, func(i do.Injector) (rentingGateways, error) {
		conf := do.MustInvoke[config.Config](i)
		switch conf.Store {
		case "memory":
			repo := rentingmemory.NewRepository()
			return rentingGateways{Offers: repo, Leases: repo, Settings: repo}, nil
		case "postgres":
			repo := rentingpg.NewRepository(do.MustInvoke[*pgxpool.Pool](i))
			if err := repo.CreateSchema(ctx); err != nil {
				return rentingGateways{}, err
			}
			return rentingGateways{Offers: repo, Leases: repo, Settings: repo}, nil
		default:
			return rentingGateways{}, errors.Errorf("unsupported store backend %q", conf.Store)
		}
	})

	do.Provide(injector, func(i do.Injector) (rewardsGateways, error) {
		conf := do.MustInvoke[config.Config](i)
		switch conf.Store {
		case "memory":
			repo := rewardsmemory.NewRepository()
			return rewardsGateways{Reports: repo, Rewards: repo}, nil
		case "postgres":
			repo := rewardspg.NewRepository(do.MustInvoke[*pgxpool.Pool](i))
			if err := repo.CreateSchema(ctx); err != nil {
				return rewardsGateways{}, err
			}
			return rewardsGateways{Reports: repo, Rewards: repo}, nil
		default:
			return rewardsGateways{}, errors.Errorf("unsupported store backend %q", conf.Store)
		}
	})

	do.Provide(injector, func(i do.Injector) (*renting.OfferService, error) {
		gw := do.MustInvoke[rentingGateways](i)
		return renting.NewOfferService(gw.Offers, do.MustInvoke[*event.Bus](i)), nil
	})

	do.Provide(injector, func(i do.Injector) (*renting.LeaseService, error) {
		gw := do.MustInvoke[rentingGateways](i)
		return renting.NewLeaseService(gw.Leases, do.MustInvoke[*event.Bus](i)), nil
	})

	do.Provide(injector, func(i do.Injector) (*rewards.Engine, error) {
		gw := do.MustInvoke[rewardsGateways](i)
		leases := do.MustInvoke[rentingGateways](i).Leases
		return rewards.NewEngine(gw.Reports, gw.Rewards, leases, do.MustInvoke[*event.Bus](i)), nil
	})

	do.Provide(injector, func(i do.Injector) (*renting.Reconciler, error) {
		conf := do.MustInvoke[config.Config](i)
		gw := do.MustInvoke[rentingGateways](i)
		return renting.NewReconciler(
			do.MustInvoke[*renting.OfferService](i),
			do.MustInvoke[*renting.LeaseService](i),
			gw.Settings,
			do.MustInvoke[chain.Reader](i),
			conf.Renting.PollInterval,
			conf.Renting.MinedEventsCheckInterval,
		), nil
	})

	engine := do.MustInvoke[*rewards.Engine](injector)
	engine.Start()

	// Background task group; the first task failure cancels the rest.
	group, ctxWorker := errgroup.WithContext(ctx)
	ctxWorker = logger.WithContext(ctxWorker, slogx.String("store", conf.Store))

	reconciler := do.MustInvoke[*renting.Reconciler](injector)
	group.Go(func() error {
		logger.InfoContext(ctxWorker, "Starting renting reconciler")
		if err := reconciler.Run(ctxWorker); err != nil && !errors.Is(err, context.Canceled) {
			return errors.Wrap(err, "error during running reconciler")
		}
		return nil
	})

	var metricsServer *http.Server
	if conf.MetricsListenAddr != "" {
		registry := do.MustInvoke[*prometheus.Registry](injector)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		metricsServer = &http.Server{Addr: conf.MetricsListenAddr, Handler: mux}
		group.Go(func() error {
			logger.InfoContext(ctx, "Started metrics server", slogx.String("addr", conf.MetricsListenAddr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "error during running metrics server")
			}
			return nil
		})
	}

	logger.InfoContext(ctxWorker, "Deeds dapp service started")

	// Wait for interrupt signal or a failed background task
	<-ctxWorker.Done()

	// Force shutdown if timeout exceeded or got signal again
	go func() {
		defer os.Exit(1)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		select {
		case <-ctx.Done():
			logger.FatalContext(ctx, "Received exit signal again. Force shutdown...")
		case <-time.After(shutdownTimeout + 15*time.Second):
			logger.FatalContext(ctx, "Shutdown timeout exceeded. Force shutdown...")
		}
	}()

	reconciler.Shutdown()
	engine.Stop()
	do.MustInvoke[*event.Bus](injector).Stop()
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Failed to shut down metrics server", slogx.Error(err))
		}
	}
	if err := group.Wait(); err != nil {
		logger.Error("Background task failed", slogx.Error(err))
	}
	if err := injector.Shutdown(); err != nil {
		logger.Panic("Failed while gracefully shutting down", slogx.Error(err))
	}

	return nil
}
