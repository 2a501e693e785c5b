package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"dealroom/internal/domain"
)

type fakeDocuments struct {
	mu    sync.Mutex
	docs  map[string]domain.Document
	allow map[string]map[string]struct{}
	err   error

	failAllowListAdds int
}

func newFakeDocuments() *fakeDocuments {
	return &fakeDocuments{
		docs:  map[string]domain.Document{},
		allow: map[string]map[string]struct{}{},
	}
}

func (f *fakeDocuments) Create(ctx context.Context, doc domain.Document) (domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.Document{}, f.err
	}
	if doc.ID == "" {
		doc.ID = fmt.Sprintf("doc-%d", len(f.docs)+1)
	}
	f.docs[doc.ID] = doc
	f.allow[doc.ID] = map[string]struct{}{}
	for _, subject := range doc.AllowList {
		f.allow[doc.ID][subject] = struct{}{}
	}
	return f.withAllowList(doc), nil
}

func (f *fakeDocuments) Get(ctx context.Context, id string) (domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.Document{}, f.err
	}
	doc, ok := f.docs[id]
	if !ok {
		return domain.Document{}, domain.ErrNotFound
	}
	return f.withAllowList(doc), nil
}

func (f *fakeDocuments) ListByOwner(ctx context.Context, ownerOrgID string) ([]domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Document
	for _, doc := range f.docs {
		if doc.OwnerOrgID == ownerOrgID {
			out = append(out, f.withAllowList(doc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeDocuments) UpdatePolicy(ctx context.Context, id string, policy domain.Policy, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return domain.ErrNotFound
	}
	doc.Policy = policy
	doc.UpdatedAt = at
	f.docs[id] = doc
	return nil
}

func (f *fakeDocuments) AddToAllowList(ctx context.Context, id, subject string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.failAllowListAdds > 0 {
		f.failAllowListAdds--
		return domain.ErrUnavailable
	}
	if _, ok := f.docs[id]; !ok {
		return domain.ErrNotFound
	}
	f.allow[id][subject] = struct{}{}
	return nil
}

func (f *fakeDocuments) IsAllowed(ctx context.Context, id, subject string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	_, ok := f.allow[id][subject]
	return ok, nil
}

func (f *fakeDocuments) withAllowList(doc domain.Document) domain.Document {
	doc.AllowList = nil
	for subject := range f.allow[doc.ID] {
		doc.AllowList = append(doc.AllowList, subject)
	}
	sort.Strings(doc.AllowList)
	return doc
}

type fakeRequests struct {
	mu       sync.Mutex
	requests map[string]domain.AccessRequest
	order    []string
	creates  int
}

func newFakeRequests() *fakeRequests {
	return &fakeRequests{requests: map[string]domain.AccessRequest{}}
}

func (f *fakeRequests) Get(ctx context.Context, id string) (domain.AccessRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok {
		return domain.AccessRequest{}, domain.ErrNotFound
	}
	return req, nil
}

func (f *fakeRequests) FindPending(ctx context.Context, documentID, requesterID string) (*domain.AccessRequest, error) {
	return f.find(documentID, requesterID, domain.RequestPending), nil
}

func (f *fakeRequests) FindAccepted(ctx context.Context, documentID, requesterID string) (*domain.AccessRequest, error) {
	return f.find(documentID, requesterID, domain.RequestAccepted), nil
}

func (f *fakeRequests) find(documentID, requesterID string, status domain.RequestStatus) *domain.AccessRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.order {
		req := f.requests[id]
		if req.DocumentID == documentID && req.RequesterID == requesterID && req.Status == status {
			return &req
		}
	}
	return nil
}

func (f *fakeRequests) Create(ctx context.Context, req domain.AccessRequest) (domain.AccessRequest, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.order {
		existing := f.requests[id]
		if existing.DocumentID == req.DocumentID && existing.RequesterID == req.RequesterID && existing.Status == domain.RequestPending {
			return existing, false, nil
		}
	}
	f.creates++
	req.ID = fmt.Sprintf("req-%d", f.creates)
	f.requests[req.ID] = req
	f.order = append(f.order, req.ID)
	return req, true, nil
}

func (f *fakeRequests) Save(ctx context.Context, req domain.AccessRequest, expected domain.RequestStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.requests[req.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if current.Status != expected {
		return domain.ErrInvalidState
	}
	f.requests[req.ID] = req
	return nil
}

func (f *fakeRequests) ListByDocument(ctx context.Context, documentID string, status domain.RequestStatus) ([]domain.AccessRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.AccessRequest
	for i := len(f.order) - 1; i >= 0; i-- {
		req := f.requests[f.order[i]]
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

func (f *fakeRequests) count(documentID, requesterID string, status domain.RequestStatus) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, req := range f.requests {
		if req.DocumentID == documentID && req.RequesterID == requesterID && req.Status == status {
			n++
		}
	}
	return n
}

type fakeAuditRepo struct {
	mu     sync.Mutex
	events []domain.AuditEvent
	err    error
	// failAppends makes the next n appends fail with ErrUnavailable.
	failAppends int
}

func (f *fakeAuditRepo) Append(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.AuditEvent{}, f.err
	}
	if f.failAppends > 0 {
		f.failAppends--
		return domain.AuditEvent{}, domain.ErrUnavailable
	}
	if event.IdempotencyKey != "" {
		for _, existing := range f.events {
			if existing.DocumentID == event.DocumentID && existing.IdempotencyKey == event.IdempotencyKey {
				return existing, domain.ErrAlreadyRecorded
			}
		}
	}
	seq := int64(0)
	prev := domain.ZeroAuditHash()
	for _, existing := range f.events {
		if existing.DocumentID == event.DocumentID {
			seq = existing.Seq
			prev = existing.Hash
		}
	}
	event.ID = fmt.Sprintf("evt-%d", len(f.events)+1)
	event.Seq = seq + 1
	event.PrevHash = prev
	hash, err := domain.ComputeAuditHash(event)
	if err != nil {
		return domain.AuditEvent{}, err
	}
	event.Hash = hash
	f.events = append(f.events, event)
	return event, nil
}

func (f *fakeAuditRepo) ListByDocument(ctx context.Context, documentID string, filter domain.AuditFilter) ([]domain.AuditEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.AuditEvent
	for _, event := range f.events {
		if event.DocumentID != documentID || !filter.Matches(event) {
			continue
		}
		out = append(out, event)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (f *fakeAuditRepo) actions(documentID string) []domain.AuditAction {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.AuditAction
	for _, event := range f.events {
		if event.DocumentID == documentID {
			out = append(out, event.Action)
		}
	}
	return out
}

func (f *fakeAuditRepo) countAction(documentID string, action domain.AuditAction) int {
	n := 0
	for _, a := range f.actions(documentID) {
		if a == action {
			n++
		}
	}
	return n
}

type harness struct {
	docs      *fakeDocuments
	requests  *fakeRequests
	auditRepo *fakeAuditRepo
	registry  *DocumentRegistry
	audit     *AuditTrail
	engine    *AccessDecisionEngine
	lifecycle *RequestLifecycleManager
}

func fixedClock() time.Time {
	return time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
}

func newHarness() *harness {
	docs := newFakeDocuments()
	requests := newFakeRequests()
	auditRepo := &fakeAuditRepo{}
	registry := NewDocumentRegistry(docs, fixedClock)
	audit := NewAuditTrail(auditRepo, fixedClock)
	return &harness{
		docs:      docs,
		requests:  requests,
		auditRepo: auditRepo,
		registry:  registry,
		audit:     audit,
		engine:    NewAccessDecisionEngine(registry, requests, audit, nil),
		lifecycle: NewRequestLifecycleManager(registry, requests, audit, fixedClock),
	}
}

var (
	founder  = domain.Identity{Subject: "founder-1", OrganizationID: "org-acme"}
	investor = domain.Identity{Subject: "investor-1", OrganizationID: "org-fund"}
	stranger = domain.Identity{Subject: "stranger-1", OrganizationID: "org-other"}
	admin    = domain.Identity{Subject: "admin-1", Admin: true}
)

func (h *harness) seed(policy domain.Policy, allow ...string) domain.Document {
	doc, err := h.docs.Create(context.Background(), domain.Document{
		OwnerOrgID: founder.OrganizationID,
		UploaderID: founder.Subject,
		Policy:     policy,
		AllowList:  allow,
		Title:      "Series A deck",
	})
	if err != nil {
		panic(err)
	}
	return doc
}
