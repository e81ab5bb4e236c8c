// Package app assembles the ledger service with fx.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/trogers1052/trade-ledger-service/internal/api"
	"github.com/trogers1052/trade-ledger-service/internal/broker"
	"github.com/trogers1052/trade-ledger-service/internal/cache"
	"github.com/trogers1052/trade-ledger-service/internal/config"
	"github.com/trogers1052/trade-ledger-service/internal/database"
	"github.com/trogers1052/trade-ledger-service/internal/kafka"
	"github.com/trogers1052/trade-ledger-service/internal/logging"
	"github.com/trogers1052/trade-ledger-service/internal/reconciler"
	"github.com/trogers1052/trade-ledger-service/internal/risk"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

const serviceName = "trade-ledger"

// Options are process-level switches that do not come from the environment
type Options struct {
	Migrate bool
}

// New builds the long-running service: HTTP API, scheduled reconciler and,
// when Kafka is enabled, the fill consumer.
func New(cfg *config.Config, opts Options) *fx.App {
	return fx.New(
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		serviceOptions(cfg, opts),
	)
}

func serviceOptions(cfg *config.Config, opts Options) fx.Option {
	return fx.Options(
		fx.Supply(cfg, opts),
		Core(),
		fx.Provide(newHandler, newHTTPServer),
		fx.Invoke(runReconciler, runHTTP, runFillConsumer),
	)
}

// Core provides everything a reconciliation pass needs
func Core() fx.Option {
	return fx.Options(
		fx.Provide(
			NewLogger,
			newDatabase,
			newLocker,
			newPublisher,
			newBrokerFactory,
			newReconciler,
		),
	)
}

// NewLogger builds the zap logger from configuration
func NewLogger(lc fx.Lifecycle, cfg *config.Config) (*zap.Logger, error) {
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			_ = log.Sync()
			return nil
		},
	})
	return log, nil
}

func newDatabase(lc fx.Lifecycle, cfg *config.Config, opts Options, log *zap.Logger) (*database.DB, error) {
	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}
	if opts.Migrate {
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, err
		}
		log.Info("database migrations applied")
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return db.Close()
		},
	})
	return db, nil
}

// nil when Redis is disabled; the reconciler then relies on its local lock
func newLocker(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (reconciler.Locker, error) {
	if !cfg.Redis.Enabled {
		log.Info("redis disabled, reconciliation lock is process local")
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := cache.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return cache.NewRedisLocker(client, cfg.Reconciler.LockTTL), nil
}

func newPublisher(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) reconciler.EventPublisher {
	if !cfg.Kafka.Enabled {
		log.Info("kafka disabled, trade events are not published")
		return nil
	}

	producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TradeTopic)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return producer.Close()
		},
	})
	return producer
}

func newBrokerFactory(cfg *config.Config, log *zap.Logger) broker.ClientFactory {
	return broker.NewAlpacaFactory(cfg.Broker.BaseURL, cfg.Broker.HTTPTimeout, log.Named("broker"))
}

func newReconciler(db *database.DB, clients broker.ClientFactory, locker reconciler.Locker,
	publisher reconciler.EventPublisher, cfg *config.Config, log *zap.Logger) *reconciler.Reconciler {
	var opts []reconciler.Option
	if locker != nil {
		opts = append(opts, reconciler.WithLocker(locker))
	}
	if publisher != nil {
		opts = append(opts, reconciler.WithPublisher(publisher))
	}

	return reconciler.New(db, db, clients, reconciler.Config{
		Interval:     cfg.Reconciler.Interval,
		OrderLimit:   cfg.Reconciler.OrderLimit,
		FetchTimeout: cfg.Reconciler.FetchTimeout,
		Workers:      cfg.Reconciler.Workers,
	}, log.Named("reconciler"), opts...)
}

func newHandler(db *database.DB, clients broker.ClientFactory, rec *reconciler.Reconciler,
	cfg *config.Config, log *zap.Logger) *api.Handler {
	limits := risk.Limits{
		MaxPositionSizePercent: cfg.Risk.MaxPositionSizePercent,
		MaxPortfolioHeat:       cfg.Risk.MaxPortfolioHeat,
	}
	return api.NewHandler(db, db, clients, rec, db, limits, cfg.Risk.RiskFreeRate, log.Named("api"))
}

func newHTTPServer(cfg *config.Config, handler *api.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           api.SetupRoutes(handler),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func runReconciler(lc fx.Lifecycle, rec *reconciler.Reconciler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			rec.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return rec.Stop(ctx)
		},
	})
}

func runHTTP(lc fx.Lifecycle, srv *http.Server, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", srv.Addr, err)
			}
			log.Info("http server listening", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func runFillConsumer(lc fx.Lifecycle, cfg *config.Config, rec *reconciler.Reconciler, log *zap.Logger) {
	if !cfg.Kafka.Enabled {
		return
	}

	consumer := kafka.NewFillConsumer(cfg.Kafka.Brokers, cfg.Kafka.FillTopic, cfg.Kafka.GroupID, rec, log.Named("fills"))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				if err := consumer.Start(ctx); err != nil {
					log.Error("fill consumer stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return consumer.Close()
		},
	})
}
