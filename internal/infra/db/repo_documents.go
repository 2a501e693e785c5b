package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"dealroom/internal/domain"
	"dealroom/internal/usecase"
)

type DocumentRepository struct {
	db      *gorm.DB
	timeout time.Duration
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc domain.Document) (domain.Document, error) {
	if r.db == nil {
		return domain.Document{}, errDBUnavailable
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	model := documentModelFromDomain(doc)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		for _, subject := range doc.AllowList {
			if err := insertAllowListEntry(tx, doc.ID, subject, doc.CreatedAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Document{}, wrapErr(err)
	}
	return r.Get(ctx, doc.ID)
}

func (r *DocumentRepository) Get(ctx context.Context, id string) (domain.Document, error) {
	if r.db == nil {
		return domain.Document{}, errDBUnavailable
	}
	if !validID(id) {
		return domain.Document{}, domain.ErrNotFound
	}
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var model DocumentModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&model).Error; err != nil {
		return domain.Document{}, wrapErr(err)
	}
	members, err := r.allowList(ctx, []string{id})
	if err != nil {
		return domain.Document{}, err
	}
	return documentFromModel(model, members[id]), nil
}

func (r *DocumentRepository) ListByOwner(ctx context.Context, ownerOrgID string) ([]domain.Document, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var models []DocumentModel
	if err := r.db.WithContext(ctx).
		Where("owner_org_id = ?", ownerOrgID).
		Order("created_at DESC, id ASC").
		Find(&models).Error; err != nil {
		return nil, wrapErr(err)
	}
	ids := make([]string, 0, len(models))
	for _, model := range models {
		ids = append(ids, model.ID)
	}
	members, err := r.allowList(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Document, 0, len(models))
	for _, model := range models {
		out = append(out, documentFromModel(model, members[model.ID]))
	}
	return out, nil
}

func (r *DocumentRepository) UpdatePolicy(ctx context.Context, id string, policy domain.Policy, at time.Time) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if !validID(id) {
		return domain.ErrNotFound
	}
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	res := r.db.WithContext(ctx).Model(&DocumentModel{}).
		Where("id = ?", id).
		Updates(map[string]any{"policy": string(policy), "updated_at": at.UTC()})
	if res.Error != nil {
		return wrapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AddToAllowList inserts the pair only while the document exists and ignores
// a pair that is already present.
func (r *DocumentRepository) AddToAllowList(ctx context.Context, id, subject string) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if !validID(id) {
		return domain.ErrNotFound
	}
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	res := r.db.WithContext(ctx).Exec(
		`INSERT INTO document_allow_list (document_id, subject, created_at)
		SELECT ?, ?, ? WHERE EXISTS (SELECT 1 FROM documents WHERE id = ?)
		ON CONFLICT (document_id, subject) DO NOTHING`,
		id, subject, time.Now().UTC(), id,
	)
	if res.Error != nil {
		return wrapErr(res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var count int64
	if err := r.db.WithContext(ctx).Model(&DocumentModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return wrapErr(err)
	}
	if count == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *DocumentRepository) IsAllowed(ctx context.Context, id, subject string) (bool, error) {
	if r.db == nil {
		return false, errDBUnavailable
	}
	if !validID(id) {
		return false, nil
	}
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var count int64
	if err := r.db.WithContext(ctx).Model(&AllowListEntryModel{}).
		Where("document_id = ? AND subject = ?", id, subject).
		Count(&count).Error; err != nil {
		return false, wrapErr(err)
	}
	return count > 0, nil
}

func (r *DocumentRepository) allowList(ctx context.Context, ids []string) (map[string][]string, error) {
	out := make(map[string][]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var entries []AllowListEntryModel
	if err := r.db.WithContext(ctx).
		Where("document_id IN ?", ids).
		Order("subject ASC").
		Find(&entries).Error; err != nil {
		return nil, wrapErr(err)
	}
	for _, entry := range entries {
		out[entry.DocumentID] = append(out[entry.DocumentID], entry.Subject)
	}
	return out, nil
}

func insertAllowListEntry(tx *gorm.DB, documentID, subject string, at time.Time) error {
	return tx.Exec(
		"INSERT INTO document_allow_list (document_id, subject, created_at) VALUES (?, ?, ?) ON CONFLICT (document_id, subject) DO NOTHING",
		documentID, subject, at.UTC(),
	).Error
}

func documentModelFromDomain(doc domain.Document) DocumentModel {
	return DocumentModel{
		ID:           doc.ID,
		OwnerOrgID:   doc.OwnerOrgID,
		OwnerKind:    string(doc.OwnerKind.OrDefault()),
		UploaderID:   doc.UploaderID,
		Policy:       string(doc.Policy.Normalize()),
		Title:        doc.Title,
		Description:  doc.Description,
		OriginalName: doc.OriginalName,
		MimeType:     doc.MimeType,
		SizeBytes:    doc.SizeBytes,
		CreatedAt:    doc.CreatedAt.UTC(),
		UpdatedAt:    doc.UpdatedAt.UTC(),
	}
}

func documentFromModel(model DocumentModel, allowList []string) domain.Document {
	if allowList == nil {
		allowList = []string{}
	}
	return domain.Document{
		ID:           model.ID,
		OwnerOrgID:   model.OwnerOrgID,
		OwnerKind:    domain.OwnerKind(model.OwnerKind).OrDefault(),
		UploaderID:   model.UploaderID,
		Policy:       domain.Policy(model.Policy),
		AllowList:    allowList,
		Title:        model.Title,
		Description:  model.Description,
		OriginalName: model.OriginalName,
		MimeType:     model.MimeType,
		SizeBytes:    model.SizeBytes,
		CreatedAt:    model.CreatedAt.UTC(),
		UpdatedAt:    model.UpdatedAt.UTC(),
	}
}

var _ usecase.DocumentRepository = (*DocumentRepository)(nil)
