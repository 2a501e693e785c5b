package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"dealroom/internal/domain"
)

type AuditTrail struct {
	Repo  AuditEventRepository
	Clock Clock
}

func NewAuditTrail(repo AuditEventRepository, clock Clock) *AuditTrail {
	return &AuditTrail{
		Repo:  repo,
		Clock: clock,
	}
}

// Append records event. CreatedAt is stamped by the trail and truncated to
// milliseconds so every backend stores and hashes the same instant.
func (t *AuditTrail) Append(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	if t == nil || t.Repo == nil {
		return domain.AuditEvent{}, errors.New("audit repository required")
	}
	if event.DocumentID == "" || !event.Action.Valid() {
		return domain.AuditEvent{}, fmt.Errorf("audit event missing document or action: %w", domain.ErrInvalidArgument)
	}
	if event.Metadata == nil {
		event.Metadata = map[string]string{}
	}
	event.CreatedAt = t.now().UTC().Truncate(time.Millisecond)
	return t.Repo.Append(ctx, event)
}

// ListForDocument re-reads storage on every call and returns events oldest
// first, ties broken by sequence.
func (t *AuditTrail) ListForDocument(ctx context.Context, documentID string, filter domain.AuditFilter) ([]domain.AuditEvent, error) {
	if t == nil || t.Repo == nil {
		return nil, errors.New("audit repository required")
	}
	if filter.Limit < 0 {
		return nil, fmt.Errorf("negative limit: %w", domain.ErrInvalidArgument)
	}
	events, err := t.Repo.ListByDocument(ctx, documentID, filter)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].CreatedAt.Before(events[j].CreatedAt)
		}
		return events[i].Seq < events[j].Seq
	})
	return events, nil
}

type AuditVerification struct {
	DocumentID string `json:"document_id"`
	Events     int    `json:"events"`
	Valid      bool   `json:"valid"`
	FailedSeq  int64  `json:"failed_seq,omitempty"`
	Problem    string `json:"problem,omitempty"`
}

// Verify walks the document's chain from the first event and reports the
// first sequence whose linkage or hash does not hold.
func (t *AuditTrail) Verify(ctx context.Context, documentID string) (AuditVerification, error) {
	events, err := t.ListForDocument(ctx, documentID, domain.AuditFilter{})
	if err != nil {
		return AuditVerification{}, err
	}
	return VerifyAuditChain(documentID, events)
}

// VerifyAuditChain checks a complete chain read from anywhere, including an
// exported bundle. Events may arrive in any order.
func VerifyAuditChain(documentID string, events []domain.AuditEvent) (AuditVerification, error) {
	ordered := append([]domain.AuditEvent(nil), events...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })

	result := AuditVerification{DocumentID: documentID, Events: len(ordered), Valid: true}
	expectedSeq := int64(1)
	prevHash := domain.ZeroAuditHash()
	for _, event := range ordered {
		problem := ""
		switch {
		case event.DocumentID != documentID:
			problem = "document mismatch"
		case event.Seq != expectedSeq:
			problem = fmt.Sprintf("seq mismatch: expected %d", expectedSeq)
		case event.PrevHash != prevHash:
			problem = "prev hash mismatch"
		default:
			expected, err := domain.ComputeAuditHash(event)
			if err != nil {
				return AuditVerification{}, fmt.Errorf("audit hash compute failed at seq %d: %w", event.Seq, err)
			}
			if expected != event.Hash {
				problem = "hash mismatch"
			}
		}
		if problem != "" {
			result.Valid = false
			result.FailedSeq = event.Seq
			result.Problem = problem
			return result, nil
		}
		prevHash = event.Hash
		expectedSeq++
	}
	return result, nil
}

type AuditContext struct {
	ActorID string
	Origin  string
	Agent   string
}

// EmitRequested, EmitNDASigned and EmitRejected key their event on the
// request, so each transition is recorded once. A repeat returns
// domain.ErrAlreadyRecorded.
func (t *AuditTrail) EmitRequested(ctx context.Context, ac AuditContext, req domain.AccessRequest) error {
	_, err := t.Append(ctx, domain.AuditEvent{
		DocumentID:     req.DocumentID,
		ActorID:        ac.ActorID,
		Action:         domain.AuditRequested,
		Origin:         ac.Origin,
		Agent:          ac.Agent,
		IdempotencyKey: domain.RequestEventKey(domain.AuditRequested, req.ID),
		Metadata:       map[string]string{"request_id": req.ID},
	})
	return err
}

func (t *AuditTrail) EmitApproved(ctx context.Context, ac AuditContext, documentID, investorID string) error {
	_, err := t.Append(ctx, domain.AuditEvent{
		DocumentID: documentID,
		ActorID:    ac.ActorID,
		Action:     domain.AuditApproved,
		Origin:     ac.Origin,
		Agent:      ac.Agent,
		Metadata:   map[string]string{"investor_id": investorID},
	})
	return err
}

func (t *AuditTrail) EmitNDASigned(ctx context.Context, ac AuditContext, req domain.AccessRequest) error {
	_, err := t.Append(ctx, domain.AuditEvent{
		DocumentID:     req.DocumentID,
		ActorID:        ac.ActorID,
		Action:         domain.AuditNDASigned,
		Origin:         ac.Origin,
		Agent:          ac.Agent,
		IdempotencyKey: domain.RequestEventKey(domain.AuditNDASigned, req.ID),
		Metadata:       map[string]string{"request_id": req.ID},
	})
	return err
}

func (t *AuditTrail) EmitRejected(ctx context.Context, ac AuditContext, req domain.AccessRequest) error {
	_, err := t.Append(ctx, domain.AuditEvent{
		DocumentID:     req.DocumentID,
		ActorID:        ac.ActorID,
		Action:         domain.AuditRejected,
		Origin:         ac.Origin,
		Agent:          ac.Agent,
		IdempotencyKey: domain.RequestEventKey(domain.AuditRejected, req.ID),
		Metadata: map[string]string{
			"request_id": req.ID,
			"by":         ac.ActorID,
		},
	})
	return err
}

func (t *AuditTrail) EmitDecision(ctx context.Context, ac AuditContext, action domain.AuditAction, documentID string, decision domain.Decision) error {
	_, err := t.Append(ctx, domain.AuditEvent{
		DocumentID: documentID,
		ActorID:    ac.ActorID,
		Action:     action,
		Origin:     ac.Origin,
		Agent:      ac.Agent,
		Metadata: map[string]string{
			"verdict": string(decision.Verdict),
			"reason":  decision.Reason,
		},
	})
	return err
}

func (t *AuditTrail) now() time.Time {
	if t != nil && t.Clock != nil {
		return t.Clock()
	}
	return time.Now().UTC()
}
