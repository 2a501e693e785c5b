package memstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"dealroom/internal/domain"
	"dealroom/internal/usecase"
)

// Requests keeps an index of pending requests by pair so the single-pending
// check and the insert happen under one lock.
type Requests struct {
	mu       sync.RWMutex
	requests map[string]domain.AccessRequest
	order    []string
	pending  map[pairKey]string
}

type pairKey struct {
	documentID  string
	requesterID string
}

func NewRequests() *Requests {
	return &Requests{
		requests: make(map[string]domain.AccessRequest),
		pending:  make(map[pairKey]string),
	}
}

func (r *Requests) Get(ctx context.Context, id string) (domain.AccessRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.requests[id]
	if !ok {
		return domain.AccessRequest{}, domain.ErrNotFound
	}
	return req, nil
}

func (r *Requests) FindPending(ctx context.Context, documentID, requesterID string) (*domain.AccessRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.pending[pairKey{documentID, requesterID}]
	if !ok {
		return nil, nil
	}
	req := r.requests[id]
	return &req, nil
}

// FindAccepted returns the most recently created accepted request for the pair.
func (r *Requests) FindAccepted(ctx context.Context, documentID, requesterID string) (*domain.AccessRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.order) - 1; i >= 0; i-- {
		req := r.requests[r.order[i]]
		if req.DocumentID == documentID && req.RequesterID == requesterID && req.Status == domain.RequestAccepted {
			return &req, nil
		}
	}
	return nil, nil
}

func (r *Requests) Create(ctx context.Context, req domain.AccessRequest) (domain.AccessRequest, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := pairKey{req.DocumentID, req.RequesterID}
	if id, ok := r.pending[key]; ok {
		return r.requests[id], false, nil
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	req.Status = domain.RequestPending
	r.requests[req.ID] = req
	r.order = append(r.order, req.ID)
	r.pending[key] = req.ID
	return req, true, nil
}

func (r *Requests) Save(ctx context.Context, req domain.AccessRequest, expected domain.RequestStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.requests[req.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if current.Status != expected {
		return domain.ErrInvalidState
	}
	key := pairKey{current.DocumentID, current.RequesterID}
	if req.Status == domain.RequestPending {
		if id, taken := r.pending[key]; taken && id != req.ID {
			return domain.ErrInvalidState
		}
		r.pending[key] = req.ID
	} else if r.pending[key] == req.ID {
		delete(r.pending, key)
	}
	// Identity fields and note are immutable after creation.
	req.DocumentID = current.DocumentID
	req.RequesterID = current.RequesterID
	req.OwnerOrgID = current.OwnerOrgID
	req.Note = current.Note
	req.CreatedAt = current.CreatedAt
	r.requests[req.ID] = req
	return nil
}

func (r *Requests) ListByDocument(ctx context.Context, documentID string, status domain.RequestStatus) ([]domain.AccessRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.AccessRequest, 0)
	for i := len(r.order) - 1; i >= 0; i-- {
		req := r.requests[r.order[i]]
		if req.DocumentID != documentID {
			continue
		}
		if status != "" && req.Status != status {
			continue
		}
		out = append(out, req)
	}
	return out, nil
}

var _ usecase.AccessRequestStore = (*Requests)(nil)
