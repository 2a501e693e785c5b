package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"dealroom/internal/domain"
	"dealroom/internal/usecase"
)

type AuditEventRepository struct {
	db      *gorm.DB
	timeout time.Duration
}

func NewAuditEventRepository(db *gorm.DB) *AuditEventRepository {
	return &AuditEventRepository{db: db}
}

// Append allocates the next per-document sequence under a row lock on the
// counter so concurrent appends serialise per document. The idempotency key
// is checked under the same lock.
func (r *AuditEventRepository) Append(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	if r.db == nil {
		return domain.AuditEvent{}, errDBUnavailable
	}
	if !validID(event.DocumentID) {
		return domain.AuditEvent{}, domain.ErrNotFound
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	event.CreatedAt = event.CreatedAt.UTC().Truncate(time.Microsecond)
	if event.Metadata == nil {
		event.Metadata = map[string]string{}
	}
	metadataJSON, err := json.Marshal(event.Metadata)
	if err != nil {
		return domain.AuditEvent{}, err
	}
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var out domain.AuditEvent
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq, prevHash, err := nextAuditSeq(ctx, tx, event.DocumentID)
		if err != nil {
			return err
		}
		if event.IdempotencyKey != "" {
			var existing []AuditEventModel
			if err := tx.WithContext(ctx).
				Where("document_id = ? AND idempotency_key = ?", event.DocumentID, event.IdempotencyKey).
				Limit(1).Find(&existing).Error; err != nil {
				return err
			}
			if len(existing) > 0 {
				recorded, err := auditEventFromModel(existing[0])
				if err != nil {
					return err
				}
				out = recorded
				return domain.ErrAlreadyRecorded
			}
		}
		event.Seq = seq
		event.PrevHash = prevHash

		hash, err := domain.ComputeAuditHash(event)
		if err != nil {
			return err
		}
		event.Hash = hash

		model := auditEventModelFromDomain(event, metadataJSON)
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		out = event
		return nil
	})
	if errors.Is(err, domain.ErrAlreadyRecorded) {
		return out, err
	}
	if err != nil {
		return domain.AuditEvent{}, wrapErr(err)
	}
	return out, nil
}

func (r *AuditEventRepository) ListByDocument(ctx context.Context, documentID string, filter domain.AuditFilter) ([]domain.AuditEvent, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	if !validID(documentID) {
		return []domain.AuditEvent{}, nil
	}
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := r.db.WithContext(ctx).Where("document_id = ?", documentID)
	if len(filter.Actions) > 0 {
		actions := make([]string, 0, len(filter.Actions))
		for _, action := range filter.Actions {
			actions = append(actions, string(action))
		}
		query = query.Where("action IN ?", actions)
	}
	if filter.ActorID != "" {
		query = query.Where("actor_id = ?", filter.ActorID)
	}
	if filter.Since != nil {
		query = query.Where("created_at >= ?", filter.Since.UTC())
	}
	if filter.Until != nil {
		query = query.Where("created_at <= ?", filter.Until.UTC())
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var models []AuditEventModel
	if err := query.Order("seq ASC").Find(&models).Error; err != nil {
		return nil, wrapErr(err)
	}
	out := make([]domain.AuditEvent, 0, len(models))
	for _, model := range models {
		event, err := auditEventFromModel(model)
		if err != nil {
			return nil, err
		}
		out = append(out, event)
	}
	return out, nil
}

func nextAuditSeq(ctx context.Context, tx *gorm.DB, documentID string) (int64, string, error) {
	if err := tx.WithContext(ctx).Exec(
		"INSERT INTO document_audit_seq (document_id, seq) VALUES (?, 0) ON CONFLICT (document_id) DO NOTHING",
		documentID,
	).Error; err != nil {
		return 0, "", err
	}

	var currentSeq int64
	if err := tx.WithContext(ctx).Raw(
		"SELECT seq FROM document_audit_seq WHERE document_id = ? FOR UPDATE",
		documentID,
	).Scan(&currentSeq).Error; err != nil {
		return 0, "", err
	}
	nextSeq := currentSeq + 1
	if err := tx.WithContext(ctx).Exec(
		"UPDATE document_audit_seq SET seq = ? WHERE document_id = ?",
		nextSeq,
		documentID,
	).Error; err != nil {
		return 0, "", err
	}

	prevHash := domain.ZeroAuditHash()
	if currentSeq > 0 {
		var prev AuditEventModel
		if err := tx.WithContext(ctx).
			Where("document_id = ? AND seq = ?", documentID, currentSeq).
			Take(&prev).Error; err != nil {
			return 0, "", err
		}
		prevHash = prev.Hash
	}
	if prevHash == "" {
		return 0, "", fmt.Errorf("missing previous event hash for document %s", documentID)
	}
	return nextSeq, prevHash, nil
}

func auditEventModelFromDomain(event domain.AuditEvent, metadataJSON []byte) AuditEventModel {
	return AuditEventModel{
		ID:             event.ID,
		DocumentID:     event.DocumentID,
		Seq:            event.Seq,
		ActorID:        stringPtrIfNotEmpty(event.ActorID),
		Action:         string(event.Action),
		Origin:         event.Origin,
		Agent:          event.Agent,
		MetadataJSON:   metadataJSON,
		PrevHash:       event.PrevHash,
		Hash:           event.Hash,
		CreatedAt:      event.CreatedAt.UTC(),
		IdempotencyKey: stringPtrIfNotEmpty(event.IdempotencyKey),
	}
}

func auditEventFromModel(model AuditEventModel) (domain.AuditEvent, error) {
	metadata := map[string]string{}
	if len(model.MetadataJSON) > 0 {
		if err := json.Unmarshal(model.MetadataJSON, &metadata); err != nil {
			return domain.AuditEvent{}, fmt.Errorf("decode audit metadata at seq %d: %w", model.Seq, err)
		}
	}
	return domain.AuditEvent{
		ID:             model.ID,
		DocumentID:     model.DocumentID,
		Seq:            model.Seq,
		ActorID:        stringValue(model.ActorID),
		Action:         domain.AuditAction(model.Action),
		Origin:         model.Origin,
		Agent:          model.Agent,
		Metadata:       metadata,
		PrevHash:       model.PrevHash,
		Hash:           model.Hash,
		CreatedAt:      model.CreatedAt.UTC(),
		IdempotencyKey: stringValue(model.IdempotencyKey),
	}, nil
}

var _ usecase.AuditEventRepository = (*AuditEventRepository)(nil)
