package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"payboard/internal/application"
	"payboard/internal/config"
	"payboard/internal/infrastructure/logging"
	"payboard/internal/infrastructure/rediscache"
	"payboard/internal/infrastructure/telemetry"
	"payboard/internal/interfaces/web"

	"github.com/segmentio/kafka-go"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	_, logCloser, err := logging.Init(logging.Config{
		Service:    "payboard-refresher",
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})
	if err != nil {
		slog.Error("logger init error", "err", err)
	} else if logCloser != nil {
		defer logCloser.Close()
	}

	if len(cfg.KafkaBrokers) == 0 {
		slog.Error("KAFKA_BROKERS is required for the refresher")
		os.Exit(1)
	}
	if cfg.RedisAddr == "" {
		slog.Error("REDIS_ADDR is required for the refresher")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.InitTracer(ctx, "payboard-refresher", cfg.OtelEndpoint)
	if err != nil {
		slog.Warn("tracing init error", "err", err)
	} else {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(ctx); err != nil {
				slog.Warn("tracing shutdown error", "err", err)
			}
		}()
	}

	redisClient, err := rediscache.NewClient(ctx, cfg.RedisAddr)
	if err != nil {
		slog.Error("redis error", "addr", cfg.RedisAddr, "err", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	invalidator, err := rediscache.NewInvalidator(redisClient)
	if err != nil {
		slog.Error("redis error", "err", err)
		os.Exit(1)
	}

	metrics := web.NewMetrics()
	go serveOps(ctx, cfg.HTTPAddr, metrics)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		GroupID:  cfg.KafkaGroupID,
		Topic:    cfg.KafkaTopic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	slog.Info("refresher started",
		"topic", cfg.KafkaTopic,
		"group", cfg.KafkaGroupID,
		"batch_size", cfg.RefreshBatchSize,
		"flush_interval", cfg.RefreshFlushInterval,
	)
	if err := application.RunRefresher(ctx, reader, invalidator, application.RefreshConfig{
		BatchSize:     cfg.RefreshBatchSize,
		FlushInterval: cfg.RefreshFlushInterval,
		OnMessage:     metrics.ObserveRefreshMessage,
		OnFlush:       metrics.ObserveRefreshFlush,
	}); err != nil {
		slog.Error("refresher error", "err", err)
		os.Exit(1)
	}
	slog.Info("refresher stopped")
}

// serveOps exposes liveness and metrics for the consumer process.
func serveOps(ctx context.Context, addr string, metrics *web.Metrics) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("/metrics", metrics.Handler())

	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("ops server error", "err", err)
	}
}
