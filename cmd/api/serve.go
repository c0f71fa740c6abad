package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/safar/fishmart/internal/auth"
	"github.com/safar/fishmart/internal/cache"
	"github.com/safar/fishmart/internal/config"
	"github.com/safar/fishmart/internal/database"
	"github.com/safar/fishmart/internal/events"
	"github.com/safar/fishmart/internal/httpapi"
	"github.com/safar/fishmart/internal/logging"
	"github.com/safar/fishmart/internal/metrics"
	"github.com/safar/fishmart/internal/payment"
	"github.com/safar/fishmart/internal/storage"
	"github.com/safar/fishmart/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const eventBuffer = 256

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		log, err := logging.New(cfg.App.Env)
		if err != nil {
			return fmt.Errorf("build logger: %w", err)
		}
		defer log.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return serve(ctx, cfg, log)
	},
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	log.Info("connected to database")

	var productCache cache.ProductCache = cache.Noop{}
	if cfg.Redis.Addr != "" {
		rdb := cache.NewClient(cfg.Redis.Addr)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, product cache disabled", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		} else {
			productCache = cache.NewRedisProductCache(rdb, cfg.Redis.ProductsTTL)
		}
	}

	var publisher events.Publisher = events.Noop{}
	if len(cfg.Kafka.Brokers) > 0 {
		producer := events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, eventBuffer, log)
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := producer.Close(closeCtx); err != nil {
				log.Warn("close event producer", zap.Error(err))
			}
		}()
		publisher = producer
	}

	images, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open image storage: %w", err)
	}

	handler := httpapi.NewRouter(httpapi.Deps{
		Store:          store.New(db, cfg.Database.TxMaxRetries, payment.AlwaysConfirmed{}),
		Tokens:         auth.NewIssuer(cfg.Auth),
		Cache:          productCache,
		Events:         publisher,
		Images:         images,
		Metrics:        metrics.New(),
		Log:            log,
		MaxUploadBytes: cfg.Storage.MaxUploadBytes,
		RequestTimeout: cfg.Server.WriteTimeout,
	})

	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return nil
}
