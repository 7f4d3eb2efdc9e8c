package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"payboard/internal/application"
	"payboard/internal/config"
	"payboard/internal/infrastructure/indexerapi"
	"payboard/internal/infrastructure/kafka"
	"payboard/internal/infrastructure/logging"
	"payboard/internal/infrastructure/rediscache"
	"payboard/internal/infrastructure/storage"
	"payboard/internal/infrastructure/telemetry"
	"payboard/internal/interfaces/web"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	_, logCloser, err := logging.Init(logging.Config{
		Service:    "payboard-web",
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

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.InitTracer(ctx, "payboard-web", cfg.OtelEndpoint)
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

	metrics := web.NewMetrics()
	checks := map[string]web.ReadinessCheck{}

	indexer, err := indexerapi.NewClient(indexerapi.Config{
		BaseURL:  cfg.IndexerAPIURL,
		Timeout:  cfg.IndexerTimeout,
		Observer: metrics.ObserveIndexer,
	})
	if err != nil {
		slog.Error("indexer client error", "err", err)
		os.Exit(1)
	}

	var source application.PaymentSource = indexer
	redisClient, err := rediscache.NewClient(ctx, cfg.RedisAddr)
	if err != nil {
		slog.Warn("redis cache disabled", "addr", cfg.RedisAddr, "err", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		cached, err := rediscache.NewCachedSource(indexer, redisClient, rediscache.Config{
			TTL:        cfg.CacheTTL,
			ReceiptTTL: cfg.ReceiptCacheTTL,
			Observer:   metrics.ObserveCache,
		})
		if err != nil {
			slog.Error("cache error", "err", err)
			os.Exit(1)
		}
		source = cached
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}

	var archive application.ReceiptArchive
	receipts, err := storage.Open(cfg.ArchiveDriver, cfg.ArchiveDSN)
	if err != nil {
		slog.Error("archive error", "driver", cfg.ArchiveDriver, "err", err)
		os.Exit(1)
	}
	if receipts != nil {
		defer receipts.Close()
		archive = receipts
		checks["archive"] = receipts.Ping
	}

	var notifier application.FinalizeNotifier
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(kafka.ProducerConfig{
			Brokers:   cfg.KafkaBrokers,
			Topic:     cfg.KafkaTopic,
			OnPublish: metrics.ObserveFinalize,
		})
		if err != nil {
			slog.Error("kafka producer error", "err", err)
			os.Exit(1)
		}
		defer producer.Close()
		notifier = producer
	}

	pages, err := application.NewPages(source, archive, notifier, application.PagesConfig{
		PerPage:           cfg.PaymentsPerPage,
		TokenSymbols:      cfg.TokenSymbols,
		LeaderboardSource: cfg.LeaderboardSource,
	})
	if err != nil {
		slog.Error("pages error", "err", err)
		os.Exit(1)
	}

	server, err := web.NewServer(pages, web.Options{
		Site: web.Site{
			PublicBaseURL: cfg.PublicBaseURL,
			PaymentAppURL: cfg.PaymentAppURL,
			AvatarBaseURL: cfg.AvatarBaseURL,
		},
		Metrics: metrics,
		Limiter: web.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.RateLimitTrustProxy),
		Checks:  checks,
		BuildInfo: web.BuildInfo{
			Version:   version,
			Commit:    commit,
			BuildTime: buildTime,
		},
	})
	if err != nil {
		slog.Error("http server error", "err", err)
		os.Exit(1)
	}

	slog.Info("http server listening",
		"addr", cfg.HTTPAddr,
		"indexer", cfg.IndexerAPIURL,
		"leaderboard", cfg.LeaderboardSource,
		"cache", redisClient != nil,
		"archive", cfg.ArchiveDriver,
		"kafka", notifier != nil,
		"version", version,
	)
	if err := server.ListenAndServe(ctx, cfg.HTTPAddr); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("http server error", "err", err)
		os.Exit(1)
	}
	slog.Info("http server stopped")
}
