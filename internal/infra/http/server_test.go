package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"dealroom/internal/config"
	"dealroom/internal/domain"
	"dealroom/internal/infra/auth"
	"dealroom/internal/infra/bundles"
	"dealroom/internal/infra/memstore"
	"dealroom/internal/infra/metrics"
	"dealroom/internal/infra/ratelimit"
	"dealroom/internal/usecase"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type caller struct {
	subject string
	org     string
	roles   string
}

var (
	founder  = caller{subject: "founder@acme.test", org: "acme"}
	cofound  = caller{subject: "cto@acme.test", org: "acme"}
	investor = caller{subject: "investor@fund.test", org: "fund"}
	stranger = caller{subject: "stranger@else.test", org: "else"}
	operator = caller{subject: "ops@dealroom.test", org: "dealroom", roles: auth.DefaultAdminRole}
	nobody   = caller{}
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, msg domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.err
}

func (n *recordingNotifier) kinds() []domain.NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domain.NotificationKind, 0, len(n.sent))
	for _, msg := range n.sent {
		out = append(out, msg.Kind)
	}
	return out
}

type testServer struct {
	server   *Server
	notifier *recordingNotifier
	audit    *memstore.AuditEvents
}

type serverOption func(*config.Config, *ServerDeps)

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()
	clock := func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	docs := usecase.NewDocumentRegistry(memstore.NewDocuments(), clock)
	requests := memstore.NewRequests()
	auditEvents := memstore.NewAuditEvents()
	trail := usecase.NewAuditTrail(auditEvents, clock)
	notifier := &recordingNotifier{}

	cfg := config.Config{HTTPAddr: ":0", StorageBackend: config.StorageMemory}
	deps := ServerDeps{
		Documents:     docs,
		Engine:        usecase.NewAccessDecisionEngine(docs, requests, trail, nil),
		Lifecycle:     usecase.NewRequestLifecycleManager(docs, requests, trail, clock),
		Audit:         trail,
		Notifier:      notifier,
		Metrics:       metrics.New(),
		Authenticator: auth.NewHeaderAuthenticator(""),
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}
	server, err := NewServer(cfg, deps)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return &testServer{server: server, notifier: notifier, audit: auditEvents}
}

func (ts *testServer) do(t *testing.T, who caller, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "dealroom-test")
	if who.subject != "" {
		req.Header.Set(auth.HeaderSubject, who.subject)
		req.Header.Set(auth.HeaderOrg, who.org)
		req.Header.Set(auth.HeaderRoles, who.roles)
	}
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
}

func (ts *testServer) register(t *testing.T, policy domain.Policy) documentResponse {
	t.Helper()
	rec := ts.do(t, founder, http.MethodPost, "/v1/documents", registerDocumentRequest{
		Title:        "Series A deck",
		OriginalName: "deck.pdf",
		MimeType:     "application/pdf",
		SizeBytes:    2048,
		Policy:       string(policy),
	})
	expectStatus(t, rec, http.StatusCreated)
	return decode[documentResponse](t, rec)
}

func (ts *testServer) access(t *testing.T, who caller, docID string) decisionResponse {
	t.Helper()
	rec := ts.do(t, who, http.MethodPost, "/v1/documents/"+docID+"/access", nil)
	expectStatus(t, rec, http.StatusOK)
	return decode[decisionResponse](t, rec)
}

func (ts *testServer) auditActions(t *testing.T, docID string) []string {
	t.Helper()
	rec := ts.do(t, founder, http.MethodGet, "/v1/documents/"+docID+"/audit", nil)
	expectStatus(t, rec, http.StatusOK)
	events := decode[[]auditEventResponse](t, rec)
	out := make([]string, 0, len(events))
	for _, event := range events {
		out = append(out, event.Action)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestPrivateDocumentDeniesStranger(t *testing.T) {
	ts := newTestServer(t)
	doc := ts.register(t, domain.PolicyPrivate)

	decision := ts.access(t, stranger, doc.ID)
	if decision.Allowed || decision.Reason != domain.ReasonAccessDenied || decision.Message != "access denied" {
		t.Fatalf("unexpected decision %+v", decision)
	}
	expectStatus(t, ts.do(t, stranger, http.MethodGet, "/v1/documents/"+doc.ID, nil), http.StatusNotFound)
	expectStatus(t, ts.do(t, stranger, http.MethodPost, "/v1/documents/"+doc.ID+"/requests", createRequestRequest{}), http.StatusUnprocessableEntity)

	owner := ts.access(t, cofound, doc.ID)
	if !owner.Allowed || owner.Reason != domain.ReasonOwner {
		t.Fatalf("expected same-org member to be allowed, got %+v", owner)
	}
}

func TestPublicDocumentAllowsAnonymousAndLogsView(t *testing.T) {
	ts := newTestServer(t)
	doc := ts.register(t, domain.PolicyPublic)

	decision := ts.access(t, nobody, doc.ID)
	if !decision.Allowed || decision.Reason != domain.ReasonPublic {
		t.Fatalf("unexpected decision %+v", decision)
	}
	if got := ts.auditActions(t, doc.ID); !equalStrings(got, []string{"viewed"}) {
		t.Fatalf("expected one viewed event, got %v", got)
	}
}

func TestNDAFlow(t *testing.T) {
	ts := newTestServer(t)
	doc := ts.register(t, domain.PolicyNDARequired)

	rec := ts.do(t, investor, http.MethodPost, "/v1/documents/"+doc.ID+"/requests", createRequestRequest{Note: "keen to review"})
	expectStatus(t, rec, http.StatusCreated)
	created := decode[createRequestResponse](t, rec)
	if !created.Created || created.Request == nil || created.Request.Status != "pending" {
		t.Fatalf("unexpected create response %+v", created)
	}

	denied := ts.access(t, investor, doc.ID)
	if denied.Allowed || denied.Message != "NDA required" {
		t.Fatalf("expected NDA required, got %+v", denied)
	}
	rec = ts.do(t, investor, http.MethodGet, "/v1/documents/"+doc.ID+"/download", nil)
	expectStatus(t, rec, http.StatusForbidden)
	if body := decode[errorResponse](t, rec); body.Code != "NDA_REQUIRED" {
		t.Fatalf("expected NDA_REQUIRED, got %+v", body)
	}

	expectStatus(t, ts.do(t, stranger, http.MethodPost, "/v1/requests/"+created.Request.ID+"/accept", nil), http.StatusForbidden)

	rec = ts.do(t, investor, http.MethodPost, "/v1/requests/"+created.Request.ID+"/accept", nil)
	expectStatus(t, rec, http.StatusOK)
	accepted := decode[accessRequestResponse](t, rec)
	if accepted.Status != "accepted" || accepted.AcceptedAt == "" || accepted.AcceptedFrom == "" {
		t.Fatalf("unexpected accepted request %+v", accepted)
	}

	allowed := ts.access(t, investor, doc.ID)
	if !allowed.Allowed {
		t.Fatalf("expected allow after accept, got %+v", allowed)
	}
	rec = ts.do(t, investor, http.MethodGet, "/v1/documents/"+doc.ID+"/download", nil)
	expectStatus(t, rec, http.StatusOK)
	if body := decode[downloadResponse](t, rec); body.OriginalName != "deck.pdf" {
		t.Fatalf("unexpected download body %+v", body)
	}

	want := []string{"requested", "viewed", "viewed", "nda_signed", "viewed", "viewed", "downloaded"}
	if got := ts.auditActions(t, doc.ID); !equalStrings(got, want) {
		t.Fatalf("expected audit %v, got %v", want, got)
	}

	rec = ts.do(t, founder, http.MethodGet, "/v1/documents/"+doc.ID+"/audit/verify", nil)
	expectStatus(t, rec, http.StatusOK)
	if verification := decode[usecase.AuditVerification](t, rec); !verification.Valid || verification.Events != len(want) {
		t.Fatalf("unexpected verification %+v", verification)
	}

	wantKinds := []domain.NotificationKind{domain.NotifyRequestCreated, domain.NotifyRequestAccepted}
	gotKinds := ts.notifier.kinds()
	if len(gotKinds) != len(wantKinds) || gotKinds[0] != wantKinds[0] || gotKinds[1] != wantKinds[1] {
		t.Fatalf("expected notifications %v, got %v", wantKinds, gotKinds)
	}
	if ts.notifier.sent[0].RecipientID != founder.subject {
		t.Fatalf("expected uploader to be notified, got %q", ts.notifier.sent[0].RecipientID)
	}
}

func TestRejectAfterAcceptConflicts(t *testing.T) {
	ts := newTestServer(t)
	doc := ts.register(t, domain.PolicyNDARequired)
	created := decode[createRequestResponse](t, ts.do(t, investor, http.MethodPost, "/v1/documents/"+doc.ID+"/requests", nil))
	expectStatus(t, ts.do(t, investor, http.MethodPost, "/v1/requests/"+created.Request.ID+"/accept", nil), http.StatusOK)

	rec := ts.do(t, founder, http.MethodPost, "/v1/requests/"+created.Request.ID+"/reject", nil)
	expectStatus(t, rec, http.StatusConflict)
	if body := decode[errorResponse](t, rec); body.Code != "INVALID_STATE" {
		t.Fatalf("expected INVALID_STATE, got %+v", body)
	}
}

func TestDuplicateCreateReturnsSameRequest(t *testing.T) {
	ts := newTestServer(t)
	doc := ts.register(t, domain.PolicyInvite)

	first := ts.do(t, investor, http.MethodPost, "/v1/documents/"+doc.ID+"/requests", nil)
	expectStatus(t, first, http.StatusCreated)
	second := ts.do(t, investor, http.MethodPost, "/v1/documents/"+doc.ID+"/requests", nil)
	expectStatus(t, second, http.StatusOK)

	a := decode[createRequestResponse](t, first)
	b := decode[createRequestResponse](t, second)
	if b.Created || a.Request.ID != b.Request.ID {
		t.Fatalf("expected same pending request, got %q and %q", a.Request.ID, b.Request.ID)
	}

	rec := ts.do(t, founder, http.MethodGet, "/v1/documents/"+doc.ID+"/requests", nil)
	expectStatus(t, rec, http.StatusOK)
	if pending := decode[[]accessRequestResponse](t, rec); len(pending) != 1 {
		t.Fatalf("expected one pending request, got %d", len(pending))
	}
	if got := ts.auditActions(t, doc.ID); !equalStrings(got, []string{"requested"}) {
		t.Fatalf("expected a single requested event, got %v", got)
	}
}

func TestInviteApproval(t *testing.T) {
	ts := newTestServer(t)
	doc := ts.register(t, domain.PolicyInvite)
	expectStatus(t, ts.do(t, investor, http.MethodPost, "/v1/documents/"+doc.ID+"/requests", nil), http.StatusCreated)

	rec := ts.do(t, investor, http.MethodGet, "/v1/documents/"+doc.ID+"/eligibility", nil)
	expectStatus(t, rec, http.StatusOK)
	if pending := decode[decisionResponse](t, rec); pending.Verdict != string(domain.VerdictPending) {
		t.Fatalf("expected pending verdict, got %+v", pending)
	}

	expectStatus(t, ts.do(t, investor, http.MethodPost, "/v1/documents/"+doc.ID+"/approvals", approveRequest{InvestorID: investor.subject}), http.StatusForbidden)
	rec = ts.do(t, founder, http.MethodPost, "/v1/documents/"+doc.ID+"/approvals", approveRequest{InvestorID: investor.subject})
	expectStatus(t, rec, http.StatusOK)
	if updated := decode[documentResponse](t, rec); !equalStrings(updated.AllowList, []string{investor.subject}) {
		t.Fatalf("expected investor on allow list, got %v", updated.AllowList)
	}

	if decision := ts.access(t, investor, doc.ID); !decision.Allowed || decision.Reason != domain.ReasonAllowList {
		t.Fatalf("expected allow-list access, got %+v", decision)
	}
	// eligibility checks are not audited
	if got := ts.auditActions(t, doc.ID); !equalStrings(got, []string{"requested", "approved", "viewed"}) {
		t.Fatalf("unexpected audit %v", got)
	}
}

func TestAuditRequiresManager(t *testing.T) {
	ts := newTestServer(t)
	doc := ts.register(t, domain.PolicyPublic)

	expectStatus(t, ts.do(t, nobody, http.MethodGet, "/v1/documents/"+doc.ID+"/audit", nil), http.StatusUnauthorized)
	expectStatus(t, ts.do(t, investor, http.MethodGet, "/v1/documents/"+doc.ID+"/audit", nil), http.StatusForbidden)
	expectStatus(t, ts.do(t, operator, http.MethodGet, "/v1/documents/"+doc.ID+"/audit", nil), http.StatusOK)
	expectStatus(t, ts.do(t, founder, http.MethodGet, "/v1/documents/"+doc.ID+"/audit?action=bogus", nil), http.StatusBadRequest)
	expectStatus(t, ts.do(t, founder, http.MethodGet, "/v1/documents/"+doc.ID+"/audit?since=yesterday", nil), http.StatusBadRequest)
}

func TestAuditFilterQuery(t *testing.T) {
	ts := newTestServer(t)
	doc := ts.register(t, domain.PolicyPublic)
	ts.access(t, investor, doc.ID)
	ts.access(t, stranger, doc.ID)
	expectStatus(t, ts.do(t, investor, http.MethodGet, "/v1/documents/"+doc.ID+"/download", nil), http.StatusOK)

	rec := ts.do(t, founder, http.MethodGet, "/v1/documents/"+doc.ID+"/audit?action=downloaded", nil)
	expectStatus(t, rec, http.StatusOK)
	if events := decode[[]auditEventResponse](t, rec); len(events) != 1 || events[0].ActorID != investor.subject {
		t.Fatalf("unexpected filtered events %+v", events)
	}

	rec = ts.do(t, founder, http.MethodGet, "/v1/documents/"+doc.ID+"/audit?actor="+stranger.subject, nil)
	expectStatus(t, rec, http.StatusOK)
	if events := decode[[]auditEventResponse](t, rec); len(events) != 1 || events[0].Action != "viewed" {
		t.Fatalf("unexpected actor events %+v", events)
	}
}

func TestSetPolicyOwnerOnly(t *testing.T) {
	ts := newTestServer(t)
	doc := ts.register(t, domain.PolicyPrivate)

	expectStatus(t, ts.do(t, operator, http.MethodPut, "/v1/documents/"+doc.ID+"/policy", setPolicyRequest{Policy: "public"}), http.StatusForbidden)
	expectStatus(t, ts.do(t, founder, http.MethodPut, "/v1/documents/"+doc.ID+"/policy", setPolicyRequest{Policy: "sometimes"}), http.StatusBadRequest)

	rec := ts.do(t, founder, http.MethodPut, "/v1/documents/"+doc.ID+"/policy", setPolicyRequest{Policy: "public"})
	expectStatus(t, rec, http.StatusOK)
	if updated := decode[documentResponse](t, rec); updated.Policy != "public" {
		t.Fatalf("expected public policy, got %q", updated.Policy)
	}
	if decision := ts.access(t, stranger, doc.ID); !decision.Allowed {
		t.Fatalf("expected public access after policy change, got %+v", decision)
	}
}

func TestListDocuments(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, domain.PolicyPrivate)
	ts.register(t, domain.PolicyPublic)

	rec := ts.do(t, cofound, http.MethodGet, "/v1/documents", nil)
	expectStatus(t, rec, http.StatusOK)
	if docs := decode[[]documentResponse](t, rec); len(docs) != 2 {
		t.Fatalf("expected two org documents, got %d", len(docs))
	}
	rec = ts.do(t, investor, http.MethodGet, "/v1/documents", nil)
	expectStatus(t, rec, http.StatusOK)
	if docs := decode[[]documentResponse](t, rec); len(docs) != 0 {
		t.Fatalf("expected no documents for another org, got %d", len(docs))
	}
}

func TestRequestValidation(t *testing.T) {
	ts := newTestServer(t)

	expectStatus(t, ts.do(t, nobody, http.MethodPost, "/v1/documents", registerDocumentRequest{Title: "x"}), http.StatusUnauthorized)
	expectStatus(t, ts.do(t, founder, http.MethodPost, "/v1/documents", registerDocumentRequest{Policy: "public"}), http.StatusBadRequest)
	expectStatus(t, ts.do(t, founder, http.MethodPost, "/v1/documents", registerDocumentRequest{Title: "x", Policy: "secret"}), http.StatusBadRequest)
	expectStatus(t, ts.do(t, investor, http.MethodPost, "/v1/documents/missing/access", nil), http.StatusNotFound)
	expectStatus(t, ts.do(t, investor, http.MethodPost, "/v1/requests/missing/accept", nil), http.StatusNotFound)
	expectStatus(t, ts.do(t, investor, http.MethodGet, "/v1/nowhere", nil), http.StatusNotFound)

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", bytes.NewBufferString("{"))
	req.Header.Set(auth.HeaderSubject, founder.subject)
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestNotificationFailureDoesNotFailRequest(t *testing.T) {
	ts := newTestServer(t)
	ts.notifier.err = errors.New("smtp down")
	doc := ts.register(t, domain.PolicyInvite)

	expectStatus(t, ts.do(t, investor, http.MethodPost, "/v1/documents/"+doc.ID+"/requests", nil), http.StatusCreated)
	if len(ts.notifier.kinds()) != 1 {
		t.Fatalf("expected a delivery attempt")
	}
}

func TestRejectNotifiesOtherParty(t *testing.T) {
	ts := newTestServer(t)
	doc := ts.register(t, domain.PolicyInvite)
	created := decode[createRequestResponse](t, ts.do(t, investor, http.MethodPost, "/v1/documents/"+doc.ID+"/requests", nil))

	expectStatus(t, ts.do(t, cofound, http.MethodPost, "/v1/requests/"+created.Request.ID+"/reject", nil), http.StatusOK)
	last := ts.notifier.sent[len(ts.notifier.sent)-1]
	if last.Kind != domain.NotifyRequestRejected || last.RecipientID != investor.subject {
		t.Fatalf("expected requester to hear about rejection, got %+v", last)
	}
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config, deps *ServerDeps) {
		cfg.RateLimitRequests = 1
		cfg.RateLimitWindowSeconds = 60
		deps.RateLimiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryConfig{})
	})
	doc := ts.register(t, domain.PolicyPublic)

	expectStatus(t, ts.do(t, investor, http.MethodGet, "/v1/documents/"+doc.ID+"/eligibility", nil), http.StatusOK)
	rec := ts.do(t, investor, http.MethodGet, "/v1/documents/"+doc.ID+"/eligibility", nil)
	expectStatus(t, rec, http.StatusTooManyRequests)
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
	// other callers have their own window
	expectStatus(t, ts.do(t, stranger, http.MethodGet, "/v1/documents/"+doc.ID+"/eligibility", nil), http.StatusOK)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, int, time.Duration) (domain.RateLimitDecision, error) {
	return domain.RateLimitDecision{}, errors.New("redis down")
}

func TestRateLimitFailClosed(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config, deps *ServerDeps) {
		cfg.RateLimitRequests = 5
		cfg.RateLimitWindowSeconds = 60
		cfg.RateLimitFailClosed = true
		deps.RateLimiter = failingLimiter{}
	})
	expectStatus(t, ts.do(t, founder, http.MethodGet, "/v1/documents", nil), http.StatusTooManyRequests)
}

type unavailableAudit struct{}

func (unavailableAudit) Append(context.Context, domain.AuditEvent) (domain.AuditEvent, error) {
	return domain.AuditEvent{}, domain.ErrUnavailable
}

func (unavailableAudit) ListByDocument(context.Context, string, domain.AuditFilter) ([]domain.AuditEvent, error) {
	return nil, domain.ErrUnavailable
}

func TestAuditOutageWithholdsDecision(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config, deps *ServerDeps) {
		trail := usecase.NewAuditTrail(unavailableAudit{}, nil)
		deps.Audit = trail
		deps.Engine = usecase.NewAccessDecisionEngine(deps.Documents, deps.Engine.Requests, trail, nil)
	})
	doc := ts.register(t, domain.PolicyPublic)

	rec := ts.do(t, investor, http.MethodPost, "/v1/documents/"+doc.ID+"/access", nil)
	expectStatus(t, rec, http.StatusServiceUnavailable)
	if body := decode[errorResponse](t, rec); body.Code != "UNAVAILABLE" {
		t.Fatalf("expected UNAVAILABLE, got %+v", body)
	}
	expectStatus(t, ts.do(t, investor, http.MethodGet, "/v1/documents/"+doc.ID+"/eligibility", nil), http.StatusOK)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, nobody, http.MethodGet, "/healthz", nil)
	expectStatus(t, rec, http.StatusOK)
	if body := decode[map[string]string](t, rec); body["storage"] != config.StorageMemory {
		t.Fatalf("unexpected health body %v", body)
	}

	doc := ts.register(t, domain.PolicyPublic)
	ts.access(t, investor, doc.ID)
	rec = ts.do(t, nobody, http.MethodGet, "/metrics", nil)
	expectStatus(t, rec, http.StatusOK)
	if !bytes.Contains(rec.Body.Bytes(), []byte(`dealroom_access_decisions_total{intent="view",reason="public",verdict="allow"} 1`)) {
		t.Fatalf("expected decision counter in metrics output")
	}
}

func TestJWTAuthenticationRejectsBadToken(t *testing.T) {
	jwtAuth, err := auth.NewJWTAuthenticator("secret", "", "")
	if err != nil {
		t.Fatalf("new jwt authenticator: %v", err)
	}
	ts := newTestServer(t, func(cfg *config.Config, deps *ServerDeps) {
		deps.Authenticator = jwtAuth
	})
	req := httptest.NewRequest(http.MethodGet, "/v1/documents", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusUnauthorized)

	token, err := jwtAuth.Sign(domain.Identity{Subject: founder.subject, OrganizationID: founder.org}, nil, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/v1/documents", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusOK)
}

func TestAuditExportVerifies(t *testing.T) {
	ts := newTestServer(t)
	doc := ts.register(t, domain.PolicyInvite)
	expectStatus(t, ts.do(t, investor, http.MethodPost, "/v1/documents/"+doc.ID+"/requests", nil), http.StatusCreated)
	expectStatus(t, ts.do(t, founder, http.MethodPost, "/v1/documents/"+doc.ID+"/approvals", approveRequest{InvestorID: investor.subject}), http.StatusOK)
	ts.access(t, investor, doc.ID)

	expectStatus(t, ts.do(t, investor, http.MethodGet, "/v1/documents/"+doc.ID+"/audit/export", nil), http.StatusForbidden)
	rec := ts.do(t, founder, http.MethodGet, "/v1/documents/"+doc.ID+"/audit/export", nil)
	expectStatus(t, rec, http.StatusOK)

	bundle, err := bundles.ParseJSON(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("parse bundle: %v", err)
	}
	result, err := bundles.Verify(bundle)
	if err != nil {
		t.Fatalf("verify bundle: %v", err)
	}
	if !result.Passed || len(bundle.Events) != 3 || bundle.ExportedBy != founder.subject {
		t.Fatalf("unexpected export: passed=%v failures=%v events=%d", result.Passed, result.Failures, len(bundle.Events))
	}
}

type deadlineNotifier struct {
	mu        sync.Mutex
	deadlines []time.Duration
}

func (n *deadlineNotifier) Notify(ctx context.Context, _ domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	deadline, ok := ctx.Deadline()
	if !ok {
		n.deadlines = append(n.deadlines, 0)
		return nil
	}
	n.deadlines = append(n.deadlines, time.Until(deadline))
	return nil
}

func TestNotificationDeliveryIsBounded(t *testing.T) {
	notifier := &deadlineNotifier{}
	ts := newTestServer(t, func(cfg *config.Config, deps *ServerDeps) {
		cfg.NotifyTimeoutSeconds = 3
		deps.Notifier = notifier
	})
	doc := ts.register(t, domain.PolicyInvite)

	expectStatus(t, ts.do(t, investor, http.MethodPost, "/v1/documents/"+doc.ID+"/requests", nil), http.StatusCreated)
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.deadlines) != 1 {
		t.Fatalf("expected one delivery, got %d", len(notifier.deadlines))
	}
	if left := notifier.deadlines[0]; left <= 0 || left > 3*time.Second {
		t.Fatalf("expected delivery deadline within 3s, got %v", left)
	}
}
