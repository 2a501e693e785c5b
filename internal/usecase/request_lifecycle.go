package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dealroom/internal/domain"
)

const maxNoteLength = 2000

// RequestLifecycleManager drives access requests through
// pending -> accepted | rejected and applies the allow-list and audit side
// effects of each transition.
type RequestLifecycleManager struct {
	Documents *DocumentRegistry
	Requests  AccessRequestStore
	Audit     *AuditTrail
	Clock     Clock
}

func NewRequestLifecycleManager(documents *DocumentRegistry, requests AccessRequestStore, audit *AuditTrail, clock Clock) *RequestLifecycleManager {
	return &RequestLifecycleManager{
		Documents: documents,
		Requests:  requests,
		Audit:     audit,
		Clock:     clock,
	}
}

type CreateRequestInput struct {
	DocumentID string
	Requester  domain.Identity
	Note       string
	Origin     string
	Agent      string
}

type CreateRequestResult struct {
	Request        *domain.AccessRequest
	Created        bool
	AlreadyAllowed bool
	Document       domain.Document
}

type ApproveInput struct {
	DocumentID string
	InvestorID string
	Acting     domain.Identity
	Origin     string
	Agent      string
}

type TransitionInput struct {
	RequestID string
	Acting    domain.Identity
	Origin    string
	Agent     string
}

type TransitionResult struct {
	Request  domain.AccessRequest
	Document domain.Document
}

// Create opens a pending request, or returns the one already pending for the
// pair. Public documents and callers who manage the document short-circuit
// with AlreadyAllowed and nothing is stored. Created is reported by whichever
// call records the request's `requested` event, so a retry after a failed
// audit append completes the creation.
func (m *RequestLifecycleManager) Create(ctx context.Context, input CreateRequestInput) (CreateRequestResult, error) {
	if err := m.ready(); err != nil {
		return CreateRequestResult{}, err
	}
	doc, err := m.Documents.Get(ctx, input.DocumentID)
	if err != nil {
		return CreateRequestResult{}, err
	}
	if input.Requester.Anonymous() {
		return CreateRequestResult{}, domain.ErrForbidden
	}
	if doc.Policy == domain.PolicyPublic || input.Requester.CanManage(doc) {
		return CreateRequestResult{AlreadyAllowed: true, Document: doc}, nil
	}
	if doc.Policy == domain.PolicyPrivate {
		return CreateRequestResult{}, domain.ErrPolicyMismatch
	}

	note := strings.TrimSpace(input.Note)
	if len(note) > maxNoteLength {
		return CreateRequestResult{}, fmt.Errorf("note longer than %d bytes: %w", maxNoteLength, domain.ErrInvalidArgument)
	}

	existing, err := m.Requests.FindPending(ctx, doc.ID, input.Requester.Subject)
	if err != nil {
		return CreateRequestResult{}, err
	}
	var stored domain.AccessRequest
	if existing != nil {
		stored = *existing
	} else {
		now := m.now().UTC()
		stored, _, err = m.Requests.Create(ctx, domain.AccessRequest{
			DocumentID:  doc.ID,
			RequesterID: input.Requester.Subject,
			OwnerOrgID:  doc.OwnerOrgID,
			Status:      domain.RequestPending,
			Note:        note,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil {
			return CreateRequestResult{}, err
		}
	}

	ac := AuditContext{ActorID: input.Requester.Subject, Origin: input.Origin, Agent: input.Agent}
	created := true
	if err := m.Audit.EmitRequested(ctx, ac, stored); err != nil {
		if !errors.Is(err, domain.ErrAlreadyRecorded) {
			return CreateRequestResult{}, err
		}
		created = false
	}
	return CreateRequestResult{Request: &stored, Created: created, Document: doc}, nil
}

// Approve puts an investor on the allow-list without needing a request.
// Every call is audited even when membership does not change.
func (m *RequestLifecycleManager) Approve(ctx context.Context, input ApproveInput) (domain.Document, error) {
	if err := m.ready(); err != nil {
		return domain.Document{}, err
	}
	doc, err := m.Documents.Get(ctx, input.DocumentID)
	if err != nil {
		return domain.Document{}, err
	}
	if !input.Acting.CanManage(doc) {
		return domain.Document{}, domain.ErrForbidden
	}
	investor := strings.TrimSpace(input.InvestorID)
	if investor == "" {
		return domain.Document{}, fmt.Errorf("investor id required: %w", domain.ErrInvalidArgument)
	}
	if err := m.Documents.AddToAllowList(ctx, doc.ID, investor); err != nil {
		return domain.Document{}, err
	}
	ac := AuditContext{ActorID: input.Acting.Subject, Origin: input.Origin, Agent: input.Agent}
	if err := m.Audit.EmitApproved(ctx, ac, doc.ID, investor); err != nil {
		return domain.Document{}, err
	}
	if !doc.Allows(investor) {
		doc.AllowList = append(doc.AllowList, investor)
	}
	return doc, nil
}

// Accept records the requester's signature on an NDA request. The status
// change commits first; the allow-list add and the `nda_signed` event follow.
// If either of those fails, repeating the call finishes them. Accepting a
// request whose event is already recorded is ErrInvalidState.
func (m *RequestLifecycleManager) Accept(ctx context.Context, input TransitionInput) (TransitionResult, error) {
	if err := m.ready(); err != nil {
		return TransitionResult{}, err
	}
	req, err := m.Requests.Get(ctx, input.RequestID)
	if err != nil {
		return TransitionResult{}, err
	}
	if input.Acting.Anonymous() || input.Acting.Subject != req.RequesterID {
		return TransitionResult{}, domain.ErrForbidden
	}
	resuming := req.Status == domain.RequestAccepted
	if req.Status != domain.RequestPending && !resuming {
		return TransitionResult{}, domain.ErrInvalidState
	}
	doc, err := m.Documents.Get(ctx, req.DocumentID)
	if err != nil {
		return TransitionResult{}, err
	}

	if !resuming {
		if doc.Policy != domain.PolicyNDARequired {
			return TransitionResult{}, domain.ErrPolicyMismatch
		}
		if err := req.Accept(m.now(), input.Origin); err != nil {
			return TransitionResult{}, err
		}
		if err := m.Requests.Save(ctx, req, domain.RequestPending); err != nil {
			return TransitionResult{}, err
		}
	}
	if err := m.Documents.AddToAllowList(ctx, doc.ID, req.RequesterID); err != nil {
		return TransitionResult{}, err
	}
	ac := AuditContext{ActorID: input.Acting.Subject, Origin: input.Origin, Agent: input.Agent}
	if err := m.Audit.EmitNDASigned(ctx, ac, req); err != nil {
		if errors.Is(err, domain.ErrAlreadyRecorded) {
			return TransitionResult{}, domain.ErrInvalidState
		}
		return TransitionResult{}, err
	}
	return TransitionResult{Request: req, Document: doc}, nil
}

// Reject closes a pending request. The requester may withdraw; the owning
// organization or an admin may decline. Allow-list membership is untouched.
// The same actor repeating a reject whose `rejected` event was not recorded
// completes it.
func (m *RequestLifecycleManager) Reject(ctx context.Context, input TransitionInput) (TransitionResult, error) {
	if err := m.ready(); err != nil {
		return TransitionResult{}, err
	}
	req, err := m.Requests.Get(ctx, input.RequestID)
	if err != nil {
		return TransitionResult{}, err
	}
	doc, err := m.Documents.Get(ctx, req.DocumentID)
	if err != nil {
		return TransitionResult{}, err
	}
	if !canReject(input.Acting, req, doc) {
		return TransitionResult{}, domain.ErrForbidden
	}
	resuming := req.Status == domain.RequestRejected && req.RejectedBy == input.Acting.Subject
	if !resuming {
		if err := req.Reject(m.now(), input.Acting.Subject); err != nil {
			return TransitionResult{}, err
		}
		if err := m.Requests.Save(ctx, req, domain.RequestPending); err != nil {
			return TransitionResult{}, err
		}
	}
	ac := AuditContext{ActorID: input.Acting.Subject, Origin: input.Origin, Agent: input.Agent}
	if err := m.Audit.EmitRejected(ctx, ac, req); err != nil {
		if errors.Is(err, domain.ErrAlreadyRecorded) {
			return TransitionResult{}, domain.ErrInvalidState
		}
		return TransitionResult{}, err
	}
	return TransitionResult{Request: req, Document: doc}, nil
}

// ListPending returns the document's pending requests, newest first.
func (m *RequestLifecycleManager) ListPending(ctx context.Context, documentID string, acting domain.Identity) ([]domain.AccessRequest, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	doc, err := m.Documents.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !acting.CanManage(doc) {
		return nil, domain.ErrForbidden
	}
	return m.Requests.ListByDocument(ctx, doc.ID, domain.RequestPending)
}

func canReject(acting domain.Identity, req domain.AccessRequest, doc domain.Document) bool {
	if acting.Anonymous() {
		return false
	}
	return acting.Subject == req.RequesterID || acting.CanManage(doc)
}

func (m *RequestLifecycleManager) ready() error {
	if m == nil || m.Documents == nil || m.Requests == nil || m.Audit == nil {
		return errors.New("request lifecycle manager is not configured")
	}
	return nil
}

func (m *RequestLifecycleManager) now() time.Time {
	if m != nil && m.Clock != nil {
		return m.Clock()
	}
	return time.Now().UTC()
}
