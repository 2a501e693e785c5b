package memstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"dealroom/internal/domain"
	"dealroom/internal/usecase"
)

type AuditEvents struct {
	mu     sync.RWMutex
	events map[string][]domain.AuditEvent
}

func NewAuditEvents() *AuditEvents {
	return &AuditEvents{events: make(map[string][]domain.AuditEvent)}
}

func (a *AuditEvents) Append(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	chain := a.events[event.DocumentID]
	if event.IdempotencyKey != "" {
		for _, existing := range chain {
			if existing.IdempotencyKey == event.IdempotencyKey {
				existing.Metadata = copyMetadata(existing.Metadata)
				return existing, domain.ErrAlreadyRecorded
			}
		}
	}
	event.Seq = int64(len(chain)) + 1
	event.PrevHash = domain.ZeroAuditHash()
	if len(chain) > 0 {
		event.PrevHash = chain[len(chain)-1].Hash
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	event.Metadata = copyMetadata(event.Metadata)
	hash, err := domain.ComputeAuditHash(event)
	if err != nil {
		return domain.AuditEvent{}, err
	}
	event.Hash = hash
	a.events[event.DocumentID] = append(chain, event)
	return event, nil
}

func (a *AuditEvents) ListByDocument(ctx context.Context, documentID string, filter domain.AuditFilter) ([]domain.AuditEvent, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]domain.AuditEvent, 0)
	for _, event := range a.events[documentID] {
		if !filter.Matches(event) {
			continue
		}
		event.Metadata = copyMetadata(event.Metadata)
		out = append(out, event)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func copyMetadata(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

var _ usecase.AuditEventRepository = (*AuditEvents)(nil)
