package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"dealroom/internal/config"
	httpinfra "dealroom/internal/infra/http"
	"dealroom/internal/infra/metrics"
	"dealroom/pkg/logger"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "dealroomd: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("dealroomd", pflag.ContinueOnError)
	envFile := flags.String("env-file", ".env", "dotenv file loaded before reading the environment")
	addr := flags.String("addr", "", "listen address, overrides HTTP_ADDR")
	migrate := flags.Bool("migrate", false, "apply the postgres schema before serving")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.HTTPAddr = *addr
	}

	log, err := logger.New(logger.Options{Environment: cfg.DealroomEnv, Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := openStorage(ctx, cfg, log, *migrate)
	if err != nil {
		return err
	}
	defer stores.close()

	evaluator, rulesHash, err := buildEvaluator(ctx, cfg)
	if err != nil {
		return err
	}
	authenticator, err := buildAuthenticator(cfg)
	if err != nil {
		return err
	}
	notifier, err := buildNotifier(cfg, log)
	if err != nil {
		return err
	}
	limiter, closeLimiter, err := buildRateLimiter(cfg)
	if err != nil {
		return err
	}
	defer closeLimiter()

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	deps := buildUsecases(stores, evaluator)
	deps.Notifier = notifier
	deps.Health = stores.health
	deps.Metrics = m
	deps.RulesHash = rulesHash
	deps.Authenticator = authenticator
	deps.RateLimiter = limiter
	deps.Logger = log

	srv, err := httpinfra.NewServer(cfg, deps)
	if err != nil {
		return err
	}
	log.Info("dealroomd starting",
		zap.String("storage", cfg.StorageBackend),
		zap.String("auth_mode", cfg.AuthMode),
		zap.String("evaluator", cfg.DecisionEvaluator),
		zap.String("notify_mode", cfg.NotifyMode))
	return srv.Run(ctx)
}
