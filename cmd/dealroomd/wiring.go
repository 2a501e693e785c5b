package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"dealroom/internal/config"
	"dealroom/internal/domain"
	"dealroom/internal/infra/auth"
	"dealroom/internal/infra/db"
	httpinfra "dealroom/internal/infra/http"
	"dealroom/internal/infra/memstore"
	"dealroom/internal/infra/mongostore"
	"dealroom/internal/infra/notify"
	"dealroom/internal/infra/policyopa"
	"dealroom/internal/infra/ratelimit"
	"dealroom/internal/usecase"
)

type storage struct {
	documents usecase.DocumentRepository
	requests  usecase.AccessRequestStore
	audit     usecase.AuditEventRepository
	health    httpinfra.HealthChecker
	close     func()
}

func openStorage(ctx context.Context, cfg config.Config, log *zap.Logger, migrate bool) (storage, error) {
	switch cfg.StorageBackend {
	case config.StoragePostgres:
		store, err := db.NewStore(cfg, log)
		if err != nil {
			return storage{}, err
		}
		if migrate {
			if err := db.Migrate(ctx, store.DB); err != nil {
				_ = store.Close()
				return storage{}, fmt.Errorf("migrate: %w", err)
			}
			log.Info("postgres schema applied")
		}
		return storage{
			documents: store.Documents(),
			requests:  store.AccessRequests(),
			audit:     store.AuditEvents(),
			health:    store,
			close:     func() { _ = store.Close() },
		}, nil
	case config.StorageMongo:
		store, err := mongostore.Connect(ctx, cfg, log)
		if err != nil {
			return storage{}, err
		}
		return storage{
			documents: store.Documents(),
			requests:  store.AccessRequests(),
			audit:     store.AuditEvents(),
			health:    store,
			close:     func() { _ = store.Close(context.Background()) },
		}, nil
	default:
		log.Warn("using in-memory storage; data is lost on restart")
		return storage{
			documents: memstore.NewDocuments(),
			requests:  memstore.NewRequests(),
			audit:     memstore.NewAuditEvents(),
			close:     func() {},
		}, nil
	}
}

func buildUsecases(stores storage, evaluator usecase.AccessEvaluator) httpinfra.ServerDeps {
	documents := usecase.NewDocumentRegistry(stores.documents, nil)
	trail := usecase.NewAuditTrail(stores.audit, nil)
	return httpinfra.ServerDeps{
		Documents: documents,
		Engine:    usecase.NewAccessDecisionEngine(documents, stores.requests, trail, evaluator),
		Lifecycle: usecase.NewRequestLifecycleManager(documents, stores.requests, trail, nil),
		Audit:     trail,
	}
}

func buildEvaluator(ctx context.Context, cfg config.Config) (usecase.AccessEvaluator, string, error) {
	if cfg.DecisionEvaluator != config.EvaluatorOPA {
		return usecase.NativeEvaluator{}, "", nil
	}
	var (
		engine *policyopa.Engine
		err    error
	)
	if cfg.OPABundlePath != "" {
		engine, err = policyopa.NewEngineFromBundlePath(ctx, cfg.OPABundlePath)
	} else {
		engine, err = policyopa.NewEngine(ctx)
	}
	if err != nil {
		return nil, "", fmt.Errorf("load access rules: %w", err)
	}
	return engine, engine.BundleHash(), nil
}

func buildAuthenticator(cfg config.Config) (auth.Authenticator, error) {
	switch cfg.AuthMode {
	case config.AuthModeJWT:
		return auth.NewJWTAuthenticator(cfg.JWTSecret, cfg.JWTIssuer, cfg.AdminRole)
	default:
		return auth.NewHeaderAuthenticator(cfg.AdminRole), nil
	}
}

func buildNotifier(cfg config.Config, log *zap.Logger) (usecase.Notifier, error) {
	switch cfg.NotifyMode {
	case config.NotifySMTP:
		return notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	case config.NotifyLog:
		return notify.NewLogNotifier(log), nil
	default:
		return notify.Noop{}, nil
	}
}

// buildRateLimiter prefers redis so limits hold across replicas.
func buildRateLimiter(cfg config.Config) (domain.RateLimiter, func(), error) {
	if cfg.RateLimitRequests <= 0 {
		return nil, func() {}, nil
	}
	if cfg.RedisAddr != "" {
		limiter, client, err := ratelimit.NewRedisLimiter(ratelimit.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, nil, err
		}
		return limiter, func() { _ = client.Close() }, nil
	}
	return ratelimit.NewMemoryLimiter(ratelimit.MemoryConfig{MaxKeys: cfg.RateLimitMaxKeys}), func() {}, nil
}
