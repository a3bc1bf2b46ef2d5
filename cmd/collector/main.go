package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docker/go-units"
	"github.com/rs/zerolog"
	"github.com/sir_venger/jsonl_collector/internal/app/collectorhttp"
	"github.com/sir_venger/jsonl_collector/internal/artifact"
	"github.com/sir_venger/jsonl_collector/internal/config"
	"github.com/sir_venger/jsonl_collector/internal/logger"
	"github.com/sir_venger/jsonl_collector/internal/mirror"
	"github.com/sir_venger/jsonl_collector/internal/repo"
	"github.com/sir_venger/jsonl_collector/internal/usecase/reassembler"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

func main() {
	addr := pflag.String("addr", "", "listen address (overrides config)")
	pflag.Parse()

	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("load config")
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}

	log := logger.New(cfg.LogLevel, cfg.LogPretty, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("collector stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	store, err := artifact.New(cfg.ScratchDir, cfg.DataDir)
	if err != nil {
		return err
	}
	store.WithLogger(log)

	deps := reassembler.Deps{
		Sessions:   repo.NewSessionStore(),
		Artifacts:  store,
		Logger:     log,
		SessionTTL: cfg.SessionTTL,
	}
	if cfg.S3.Bucket != "" {
		m, err := mirror.NewS3(ctx, mirror.S3Params{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
		if err != nil {
			return err
		}
		deps.Mirror = m
		log.Info().Str("bucket", cfg.S3.Bucket).Str("prefix", cfg.S3.Prefix).Msg("s3 mirror enabled")
	}
	svc := reassembler.New(deps)

	// Фоновая очистка брошенных загрузок.
	stopReaper := svc.StartReaper(ctx, cfg.ReapInterval)
	defer stopReaper()

	server := &http.Server{
		Addr: cfg.ListenAddr,
		Handler: collectorhttp.New(collectorhttp.Deps{
			Reassembler:  svc,
			Records:      store,
			Logger:       log,
			MaxBodyBytes: cfg.MaxBodyBytes,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().
			Str("addr", cfg.ListenAddr).
			Str("data_dir", cfg.DataDir).
			Str("scratch_dir", cfg.ScratchDir).
			Dur("session_ttl", cfg.SessionTTL).
			Dur("reap_every", cfg.ReapInterval).
			Str("max_body", units.BytesSize(float64(cfg.MaxBodyBytes))).
			Msg("collector listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	// Сценарий graceful shutdown при получении SIGTERM/SIGINT.
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("shutdown")
		}
		return nil
	})

	return g.Wait()
}
