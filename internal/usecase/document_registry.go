package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dealroom/internal/domain"
)

// DocumentRegistry owns document metadata, policy and allow-list. It does not
// write audit events; callers that change access state do that themselves.
type DocumentRegistry struct {
	Repo  DocumentRepository
	Clock Clock
}

func NewDocumentRegistry(repo DocumentRepository, clock Clock) *DocumentRegistry {
	return &DocumentRegistry{
		Repo:  repo,
		Clock: clock,
	}
}

type RegisterDocumentInput struct {
	Title        string
	Description  string
	OriginalName string
	MimeType     string
	SizeBytes    int64
	Policy       string
}

// Register records a new document owned by the acting identity's
// organization. A founder without an organization owns it personally.
func (r *DocumentRegistry) Register(ctx context.Context, acting domain.Identity, input RegisterDocumentInput) (domain.Document, error) {
	if err := r.ready(); err != nil {
		return domain.Document{}, err
	}
	if acting.Anonymous() {
		return domain.Document{}, domain.ErrForbidden
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return domain.Document{}, fmt.Errorf("title required: %w", domain.ErrInvalidArgument)
	}
	if input.SizeBytes < 0 {
		return domain.Document{}, fmt.Errorf("size must not be negative: %w", domain.ErrInvalidArgument)
	}
	policy, ok := domain.ParsePolicy(input.Policy)
	if !ok {
		return domain.Document{}, fmt.Errorf("unknown policy %q: %w", input.Policy, domain.ErrInvalidArgument)
	}
	owner, kind := acting.OwnerKey()
	now := r.now().UTC()
	return r.Repo.Create(ctx, domain.Document{
		OwnerOrgID:   owner,
		OwnerKind:    kind,
		UploaderID:   acting.Subject,
		Policy:       policy,
		Title:        title,
		Description:  strings.TrimSpace(input.Description),
		OriginalName: input.OriginalName,
		MimeType:     input.MimeType,
		SizeBytes:    input.SizeBytes,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

func (r *DocumentRegistry) Get(ctx context.Context, id string) (domain.Document, error) {
	if err := r.ready(); err != nil {
		return domain.Document{}, err
	}
	if id == "" {
		return domain.Document{}, domain.ErrNotFound
	}
	doc, err := r.Repo.Get(ctx, id)
	if err != nil {
		return domain.Document{}, err
	}
	doc.Policy = doc.Policy.Normalize()
	return doc, nil
}

// ListByOwner returns the documents owned by the acting identity's
// organization, newest first.
func (r *DocumentRegistry) ListByOwner(ctx context.Context, acting domain.Identity) ([]domain.Document, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	if acting.Anonymous() {
		return nil, domain.ErrForbidden
	}
	owner, _ := acting.OwnerKey()
	docs, err := r.Repo.ListByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	// The owner key space is shared by organizations and personal owners, so
	// rows are kept only when the caller actually owns them.
	owned := docs[:0]
	for _, doc := range docs {
		if !doc.OwnedBy(acting) {
			continue
		}
		doc.Policy = doc.Policy.Normalize()
		owned = append(owned, doc)
	}
	return owned, nil
}

// GetPolicy never returns an unknown value: missing and unrecognised
// policies read as private.
func (r *DocumentRegistry) GetPolicy(ctx context.Context, id string) (domain.Policy, error) {
	doc, err := r.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return doc.Policy, nil
}

func (r *DocumentRegistry) SetPolicy(ctx context.Context, id string, raw string, acting domain.Identity) (domain.Document, error) {
	doc, err := r.Get(ctx, id)
	if err != nil {
		return domain.Document{}, err
	}
	if !doc.OwnedBy(acting) {
		return domain.Document{}, domain.ErrForbidden
	}
	policy, ok := domain.ParsePolicy(raw)
	if !ok || strings.TrimSpace(raw) == "" {
		return domain.Document{}, fmt.Errorf("unknown policy %q: %w", raw, domain.ErrInvalidArgument)
	}
	now := r.now().UTC()
	if err := r.Repo.UpdatePolicy(ctx, id, policy, now); err != nil {
		return domain.Document{}, err
	}
	doc.Policy = policy
	doc.UpdatedAt = now
	return doc, nil
}

func (r *DocumentRegistry) AddToAllowList(ctx context.Context, id, subject string) error {
	if err := r.ready(); err != nil {
		return err
	}
	if strings.TrimSpace(subject) == "" {
		return fmt.Errorf("allow-list subject required: %w", domain.ErrInvalidArgument)
	}
	return r.Repo.AddToAllowList(ctx, id, subject)
}

func (r *DocumentRegistry) IsAllowed(ctx context.Context, id, subject string) (bool, error) {
	if err := r.ready(); err != nil {
		return false, err
	}
	if subject == "" {
		return false, nil
	}
	return r.Repo.IsAllowed(ctx, id, subject)
}

func (r *DocumentRegistry) ready() error {
	if r == nil || r.Repo == nil {
		return errors.New("document repository required")
	}
	return nil
}

func (r *DocumentRegistry) now() time.Time {
	if r != nil && r.Clock != nil {
		return r.Clock()
	}
	return time.Now().UTC()
}
