package usecase

import (
	"context"
	"time"

	"dealroom/internal/domain"
)

type Clock func() time.Time

type DocumentRepository interface {
	Create(ctx context.Context, doc domain.Document) (domain.Document, error)
	Get(ctx context.Context, id string) (domain.Document, error)
	ListByOwner(ctx context.Context, ownerOrgID string) ([]domain.Document, error)
	UpdatePolicy(ctx context.Context, id string, policy domain.Policy, at time.Time) error
	AddToAllowList(ctx context.Context, id, subject string) error
	IsAllowed(ctx context.Context, id, subject string) (bool, error)
}

// AccessRequestStore persists access requests. Implementations enforce at
// most one pending request per (document, requester) pair in storage.
type AccessRequestStore interface {
	Get(ctx context.Context, id string) (domain.AccessRequest, error)
	FindPending(ctx context.Context, documentID, requesterID string) (*domain.AccessRequest, error)
	FindAccepted(ctx context.Context, documentID, requesterID string) (*domain.AccessRequest, error)
	// Create stores req as pending. When a pending request already exists for
	// the pair it returns that record and created=false.
	Create(ctx context.Context, req domain.AccessRequest) (stored domain.AccessRequest, created bool, err error)
	// Save writes req only if the stored status still equals expected, and
	// returns domain.ErrInvalidState otherwise.
	Save(ctx context.Context, req domain.AccessRequest, expected domain.RequestStatus) error
	// ListByDocument returns requests newest first. An empty status matches all.
	ListByDocument(ctx context.Context, documentID string, status domain.RequestStatus) ([]domain.AccessRequest, error)
}

// AuditEventRepository assigns ID, Seq, PrevHash and Hash on Append. When
// the event carries an IdempotencyKey already used on the document's chain,
// Append stores nothing and returns the existing event with
// domain.ErrAlreadyRecorded.
type AuditEventRepository interface {
	Append(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error)
	ListByDocument(ctx context.Context, documentID string, filter domain.AuditFilter) ([]domain.AuditEvent, error)
}

type AccessEvaluator interface {
	Evaluate(ctx context.Context, facts domain.AccessFacts) (domain.Decision, error)
}

type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}
