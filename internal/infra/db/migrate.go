package db

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Migrate creates or upgrades the schema. Constraints gorm tags cannot
// express are applied as raw statements afterwards.
func Migrate(ctx context.Context, gdb *gorm.DB) error {
	if gdb == nil {
		return errDBUnavailable
	}
	tx := gdb.WithContext(ctx)
	if err := tx.AutoMigrate(
		&DocumentModel{},
		&AllowListEntryModel{},
		&AccessRequestModel{},
		&AuditEventModel{},
		&DocumentAuditSeqModel{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	for _, stmt := range constraintStatements {
		if err := tx.Exec(stmt).Error; err != nil {
			return fmt.Errorf("apply constraint: %w", err)
		}
	}
	return nil
}

var constraintStatements = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_access_requests_single_pending
		ON access_requests (document_id, requester_id) WHERE status = 'pending'`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_audit_events_idempotency
		ON audit_events (document_id, idempotency_key) WHERE idempotency_key IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_access_requests_document_created
		ON access_requests (document_id, created_at DESC)`,
	`DO $$ BEGIN
		ALTER TABLE access_requests ADD CONSTRAINT access_requests_status_check
			CHECK (status IN ('pending', 'accepted', 'rejected'));
	EXCEPTION WHEN duplicate_object THEN NULL;
	END $$`,
	`DO $$ BEGIN
		ALTER TABLE document_allow_list ADD CONSTRAINT document_allow_list_document_fk
			FOREIGN KEY (document_id) REFERENCES documents (id) ON DELETE CASCADE;
	EXCEPTION WHEN duplicate_object THEN NULL;
	END $$`,
}
