package db

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"dealroom/internal/config"
)

type Store struct {
	DB      *gorm.DB
	Timeout time.Duration
}

func NewStore(cfg config.Config, log *zap.Logger) (*Store, error) {
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("connect postgres: %w", errDBUnavailable)
	}
	gdb, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{
		Logger: newGormLogger(log),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if log != nil {
		log.Info("postgres store ready", zap.Duration("timeout", cfg.StoreTimeout()))
	}
	return &Store{DB: gdb, Timeout: cfg.StoreTimeout()}, nil
}

func (s *Store) Documents() *DocumentRepository {
	return &DocumentRepository{db: s.DB, timeout: s.Timeout}
}

func (s *Store) AccessRequests() *AccessRequestRepository {
	return &AccessRequestRepository{db: s.DB, timeout: s.Timeout}
}

func (s *Store) AuditEvents() *AuditEventRepository {
	return &AuditEventRepository{db: s.DB, timeout: s.Timeout}
}

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errDBUnavailable
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return wrapErr(err)
	}
	return wrapErr(sqlDB.PingContext(ctx))
}

func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
