package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mohammadpnp/alumni-import/internal/bootstrap"
	"github.com/mohammadpnp/alumni-import/internal/config"
	domain "github.com/mohammadpnp/alumni-import/internal/domain/alumni"
	"github.com/mohammadpnp/alumni-import/internal/infrastructure/cache"
	"github.com/mohammadpnp/alumni-import/internal/infrastructure/db"
	"github.com/mohammadpnp/alumni-import/internal/infrastructure/logging"
	"github.com/mohammadpnp/alumni-import/internal/infrastructure/notify"
)

type notifierCloser interface {
	domain.Notifier
	io.Closer
}

func newServeCmd(configPath *string) *cobra.Command {
	var migrateFirst bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the import workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			return serve(cmd.Context(), cfg, logger, migrateFirst)
		},
	}

	cmd.Flags().BoolVar(&migrateFirst, "migrate", false, "Apply pending migrations before serving")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger, migrateFirst bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gormDB, err := db.NewGorm(cfg.Database, logger)
	if err != nil {
		return err
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	defer sqlDB.Close()

	if migrateFirst {
		if err := db.RunMigrations(sqlDB, logger); err != nil {
			return err
		}
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	var rdb *goredis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = cache.NewClient(cfg.Redis, logger)
		if err != nil {
			return err
		}
		defer rdb.Close()
	}

	notifier, err := newNotifier(cfg.Kafka, logger)
	if err != nil {
		return err
	}
	defer notifier.Close()

	application, err := bootstrap.NewApplication(bootstrap.Infrastructure{
		Config:   cfg,
		Logger:   logger,
		DB:       gormDB,
		Pool:     pool,
		Redis:    rdb,
		Notifier: notifier,
	})
	if err != nil {
		return err
	}

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	application.Worker.Start(workerCtx)

	serverErr := make(chan error, 1)
	go func() {
		addr := ":" + strconv.Itoa(cfg.Server.Port)
		logger.Info("http server listening", zap.String("addr", addr))
		if err := application.Server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serverErr:
		if err != nil {
			stopWorkers()
			return fmt.Errorf("server failed: %w", err)
		}
	}

	// interrupted jobs stay processing and are resumed once their lease expires
	stopWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := application.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func newNotifier(cfg config.KafkaConfig, logger *zap.Logger) (notifierCloser, error) {
	if len(cfg.Brokers) == 0 {
		logger.Info("no kafka brokers configured; import results are logged only")
		return notify.NewLoggingNotifier(logger), nil
	}
	notifier, err := notify.NewKafkaNotifier(cfg.Brokers, cfg.Topic)
	if err != nil {
		return nil, err
	}
	logger.Info("publishing import results to kafka", zap.Strings("brokers", cfg.Brokers), zap.String("topic", cfg.Topic))
	return notifier, nil
}
