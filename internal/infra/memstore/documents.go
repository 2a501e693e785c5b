package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"dealroom/internal/domain"
	"dealroom/internal/usecase"
)

type Documents struct {
	mu    sync.RWMutex
	docs  map[string]domain.Document
	allow map[string]map[string]struct{}
}

func NewDocuments() *Documents {
	return &Documents{
		docs:  make(map[string]domain.Document),
		allow: make(map[string]map[string]struct{}),
	}
}

func (d *Documents) Create(ctx context.Context, doc domain.Document) (domain.Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if _, exists := d.docs[doc.ID]; exists {
		return domain.Document{}, domain.ErrInvalidState
	}
	members := make(map[string]struct{}, len(doc.AllowList))
	for _, subject := range doc.AllowList {
		members[subject] = struct{}{}
	}
	doc.AllowList = nil
	d.docs[doc.ID] = doc
	d.allow[doc.ID] = members
	return d.withAllowList(doc), nil
}

func (d *Documents) Get(ctx context.Context, id string) (domain.Document, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	doc, ok := d.docs[id]
	if !ok {
		return domain.Document{}, domain.ErrNotFound
	}
	return d.withAllowList(doc), nil
}

func (d *Documents) ListByOwner(ctx context.Context, ownerOrgID string) ([]domain.Document, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]domain.Document, 0)
	for _, doc := range d.docs {
		if doc.OwnerOrgID == ownerOrgID {
			out = append(out, d.withAllowList(doc))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (d *Documents) UpdatePolicy(ctx context.Context, id string, policy domain.Policy, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc, ok := d.docs[id]
	if !ok {
		return domain.ErrNotFound
	}
	doc.Policy = policy
	doc.UpdatedAt = at
	d.docs[id] = doc
	return nil
}

func (d *Documents) AddToAllowList(ctx context.Context, id, subject string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	members, ok := d.allow[id]
	if !ok {
		return domain.ErrNotFound
	}
	members[subject] = struct{}{}
	return nil
}

func (d *Documents) IsAllowed(ctx context.Context, id, subject string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	members, ok := d.allow[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	_, allowed := members[subject]
	return allowed, nil
}

func (d *Documents) withAllowList(doc domain.Document) domain.Document {
	members := d.allow[doc.ID]
	doc.AllowList = make([]string, 0, len(members))
	for subject := range members {
		doc.AllowList = append(doc.AllowList, subject)
	}
	sort.Strings(doc.AllowList)
	return doc
}

var _ usecase.DocumentRepository = (*Documents)(nil)
