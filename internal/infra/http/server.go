package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dealroom/internal/config"
	"dealroom/internal/domain"
	"dealroom/internal/infra/auth"
	"dealroom/internal/infra/metrics"
	"dealroom/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

// HealthChecker is implemented by storage backends that hold a connection.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Server struct {
	cfg config.Config
	r   *gin.Engine
	log *zap.Logger

	documents *usecase.DocumentRegistry
	engine    *usecase.AccessDecisionEngine
	lifecycle *usecase.RequestLifecycleManager
	audit     *usecase.AuditTrail
	notifier  usecase.Notifier
	notifyTTL time.Duration
	health    HealthChecker
	metrics   *metrics.Metrics
	rulesHash string

	authenticator auth.Authenticator

	rateLimiter         domain.RateLimiter
	rateLimitRequests   int
	rateLimitWindow     time.Duration
	rateLimitFailClosed bool
}

type ServerDeps struct {
	Documents     *usecase.DocumentRegistry
	Engine        *usecase.AccessDecisionEngine
	Lifecycle     *usecase.RequestLifecycleManager
	Audit         *usecase.AuditTrail
	Notifier      usecase.Notifier
	Health        HealthChecker
	Metrics       *metrics.Metrics
	RulesHash     string
	Authenticator auth.Authenticator
	RateLimiter   domain.RateLimiter
	Logger        *zap.Logger
}

func NewServer(cfg config.Config, deps ServerDeps) (*Server, error) {
	if deps.Documents == nil || deps.Engine == nil || deps.Lifecycle == nil || deps.Audit == nil {
		return nil, errors.New("documents, engine, lifecycle and audit are required")
	}
	if deps.Authenticator == nil {
		return nil, errors.New("authenticator is required")
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:                 cfg,
		r:                   gin.New(),
		log:                 log,
		documents:           deps.Documents,
		engine:              deps.Engine,
		lifecycle:           deps.Lifecycle,
		audit:               deps.Audit,
		notifier:            deps.Notifier,
		notifyTTL:           cfg.NotifyTimeout(),
		health:              deps.Health,
		metrics:             deps.Metrics,
		rulesHash:           deps.RulesHash,
		authenticator:       deps.Authenticator,
		rateLimiter:         deps.RateLimiter,
		rateLimitRequests:   cfg.RateLimitRequests,
		rateLimitWindow:     cfg.RateLimitWindow(),
		rateLimitFailClosed: cfg.RateLimitFailClosed,
	}
	s.r.Use(s.requestContext(), s.recoverPanic(), s.accessLog())
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.r.GET("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	v1 := s.r.Group("/v1", s.authenticate())
	{
		v1.POST("/documents", s.limit(routeDocumentsWrite), s.handleRegisterDocument)
		v1.GET("/documents", s.limit(routeDocumentsRead), s.handleListDocuments)
		v1.GET("/documents/:id", s.limit(routeDocumentsRead), s.handleGetDocument)
		v1.PUT("/documents/:id/policy", s.limit(routeDocumentsWrite), s.handleSetPolicy)

		v1.POST("/documents/:id/access", s.limit(routeAccess), s.handleAccess)
		v1.GET("/documents/:id/eligibility", s.limit(routeAccess), s.handleEligibility)
		v1.GET("/documents/:id/download", s.limit(routeAccess), s.handleDownload)

		v1.POST("/documents/:id/requests", s.limit(routeRequestsWrite), s.handleCreateRequest)
		v1.GET("/documents/:id/requests", s.limit(routeRequestsRead), s.handleListPending)
		v1.POST("/documents/:id/approvals", s.limit(routeRequestsWrite), s.handleApprove)
		v1.POST("/requests/:request_id/accept", s.limit(routeRequestsWrite), s.handleAccept)
		v1.POST("/requests/:request_id/reject", s.limit(routeRequestsWrite), s.handleReject)

		v1.GET("/documents/:id/audit", s.limit(routeAuditRead), s.handleListAudit)
		v1.GET("/documents/:id/audit/verify", s.limit(routeAuditRead), s.handleVerifyAudit)
		v1.GET("/documents/:id/audit/export", s.limit(routeAuditRead), s.handleExportAudit)
	}

	s.r.NoRoute(func(c *gin.Context) {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	mode := s.cfg.StorageBackend
	if mode == "" {
		mode = config.StorageMemory
	}
	if s.health != nil {
		if err := s.health.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "storage": mode})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "storage": mode})
}

func (s *Server) Handler() http.Handler {
	return s.r
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", s.cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.log.Info("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}
