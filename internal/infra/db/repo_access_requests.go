package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"dealroom/internal/domain"
	"dealroom/internal/usecase"
)

type AccessRequestRepository struct {
	db      *gorm.DB
	timeout time.Duration
}

func NewAccessRequestRepository(db *gorm.DB) *AccessRequestRepository {
	return &AccessRequestRepository{db: db}
}

func (r *AccessRequestRepository) Get(ctx context.Context, id string) (domain.AccessRequest, error) {
	if r.db == nil {
		return domain.AccessRequest{}, errDBUnavailable
	}
	if !validID(id) {
		return domain.AccessRequest{}, domain.ErrNotFound
	}
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var model AccessRequestModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&model).Error; err != nil {
		return domain.AccessRequest{}, wrapErr(err)
	}
	return accessRequestFromModel(model), nil
}

func (r *AccessRequestRepository) FindPending(ctx context.Context, documentID, requesterID string) (*domain.AccessRequest, error) {
	return r.findLatest(ctx, documentID, requesterID, domain.RequestPending)
}

func (r *AccessRequestRepository) FindAccepted(ctx context.Context, documentID, requesterID string) (*domain.AccessRequest, error) {
	return r.findLatest(ctx, documentID, requesterID, domain.RequestAccepted)
}

func (r *AccessRequestRepository) findLatest(ctx context.Context, documentID, requesterID string, status domain.RequestStatus) (*domain.AccessRequest, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	if !validID(documentID) {
		return nil, nil
	}
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var model AccessRequestModel
	err := r.db.WithContext(ctx).
		Where("document_id = ? AND requester_id = ? AND status = ?", documentID, requesterID, string(status)).
		Order("created_at DESC").
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	req := accessRequestFromModel(model)
	return &req, nil
}

// Create relies on the partial unique index over pending pairs. When the
// insert is skipped the pending row that won is returned instead.
func (r *AccessRequestRepository) Create(ctx context.Context, req domain.AccessRequest) (domain.AccessRequest, bool, error) {
	if r.db == nil {
		return domain.AccessRequest{}, false, errDBUnavailable
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	req.Status = domain.RequestPending
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	model := accessRequestModelFromDomain(req)
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:     []clause.Column{{Name: "document_id"}, {Name: "requester_id"}},
		TargetWhere: clause.Where{Exprs: []clause.Expression{clause.Eq{Column: clause.Column{Name: "status"}, Value: string(domain.RequestPending)}}},
		DoNothing:   true,
	}).Create(&model)
	if res.Error != nil {
		return domain.AccessRequest{}, false, wrapErr(res.Error)
	}
	if res.RowsAffected == 1 {
		return accessRequestFromModel(model), true, nil
	}

	existing, err := r.findLatest(ctx, req.DocumentID, req.RequesterID, domain.RequestPending)
	if err != nil {
		return domain.AccessRequest{}, false, err
	}
	if existing == nil {
		// The conflicting row resolved between the insert and the read.
		return domain.AccessRequest{}, false, domain.ErrInvalidState
	}
	return *existing, false, nil
}

func (r *AccessRequestRepository) Save(ctx context.Context, req domain.AccessRequest, expected domain.RequestStatus) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if !validID(req.ID) {
		return domain.ErrNotFound
	}
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	res := r.db.WithContext(ctx).Model(&AccessRequestModel{}).
		Where("id = ? AND status = ?", req.ID, string(expected)).
		Updates(map[string]any{
			"status":        string(req.Status),
			"accepted_at":   timePtrUTC(req.AcceptedAt),
			"accepted_from": stringPtrIfNotEmpty(req.AcceptedFrom),
			"rejected_by":   stringPtrIfNotEmpty(req.RejectedBy),
			"resolved_at":   timePtrUTC(req.ResolvedAt),
			"updated_at":    req.UpdatedAt.UTC(),
		})
	if res.Error != nil {
		return wrapErr(res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	if _, err := r.Get(ctx, req.ID); err != nil {
		return err
	}
	return domain.ErrInvalidState
}

func (r *AccessRequestRepository) ListByDocument(ctx context.Context, documentID string, status domain.RequestStatus) ([]domain.AccessRequest, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	if !validID(documentID) {
		return []domain.AccessRequest{}, nil
	}
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	query := r.db.WithContext(ctx).Where("document_id = ?", documentID)
	if status != "" {
		query = query.Where("status = ?", string(status))
	}
	var models []AccessRequestModel
	if err := query.Order("created_at DESC, id DESC").Find(&models).Error; err != nil {
		return nil, wrapErr(err)
	}
	out := make([]domain.AccessRequest, 0, len(models))
	for _, model := range models {
		out = append(out, accessRequestFromModel(model))
	}
	return out, nil
}

func accessRequestModelFromDomain(req domain.AccessRequest) AccessRequestModel {
	return AccessRequestModel{
		ID:           req.ID,
		DocumentID:   req.DocumentID,
		RequesterID:  req.RequesterID,
		OwnerOrgID:   req.OwnerOrgID,
		Status:       string(req.Status),
		Note:         req.Note,
		AcceptedAt:   timePtrUTC(req.AcceptedAt),
		AcceptedFrom: stringPtrIfNotEmpty(req.AcceptedFrom),
		RejectedBy:   stringPtrIfNotEmpty(req.RejectedBy),
		ResolvedAt:   timePtrUTC(req.ResolvedAt),
		CreatedAt:    req.CreatedAt.UTC(),
		UpdatedAt:    req.UpdatedAt.UTC(),
	}
}

func accessRequestFromModel(model AccessRequestModel) domain.AccessRequest {
	return domain.AccessRequest{
		ID:           model.ID,
		DocumentID:   model.DocumentID,
		RequesterID:  model.RequesterID,
		OwnerOrgID:   model.OwnerOrgID,
		Status:       domain.RequestStatus(model.Status),
		Note:         model.Note,
		AcceptedAt:   timePtrUTC(model.AcceptedAt),
		AcceptedFrom: stringValue(model.AcceptedFrom),
		RejectedBy:   stringValue(model.RejectedBy),
		ResolvedAt:   timePtrUTC(model.ResolvedAt),
		CreatedAt:    model.CreatedAt.UTC(),
		UpdatedAt:    model.UpdatedAt.UTC(),
	}
}

var _ usecase.AccessRequestStore = (*AccessRequestRepository)(nil)
