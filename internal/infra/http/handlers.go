package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"dealroom/internal/domain"
	"dealroom/internal/infra/bundles"
	"dealroom/internal/usecase"
)

const maxListLimit = 1000

func auditContextFrom(c *gin.Context) (string, string) {
	return c.ClientIP(), c.Request.UserAgent()
}

func (s *Server) handleRegisterDocument(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	var req registerDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	doc, err := s.documents.Register(c.Request.Context(), identity, usecase.RegisterDocumentInput{
		Title:        req.Title,
		Description:  req.Description,
		OriginalName: req.OriginalName,
		MimeType:     req.MimeType,
		SizeBytes:    req.SizeBytes,
		Policy:       req.Policy,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, buildDocumentResponse(doc, true))
}

func (s *Server) handleListDocuments(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	docs, err := s.documents.ListByOwner(c.Request.Context(), identity)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]documentResponse, 0, len(docs))
	for _, doc := range docs {
		out = append(out, buildDocumentResponse(doc, true))
	}
	c.JSON(http.StatusOK, out)
}

// handleGetDocument answers 404 to callers the rules deny outright, so a
// private document's existence is not revealed.
func (s *Server) handleGetDocument(c *gin.Context) {
	identity := getIdentity(c)
	result, err := s.engine.Decide(c.Request.Context(), usecase.DecisionInput{
		DocumentID: c.Param("id"),
		Requester:  identity,
		Intent:     usecase.IntentCheck,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	manages := identity.CanManage(result.Document)
	if !manages && result.Decision.Reason == domain.ReasonAccessDenied {
		writeError(c, domain.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, buildDocumentResponse(result.Document, manages))
}

func (s *Server) handleSetPolicy(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	var req setPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	doc, err := s.documents.SetPolicy(c.Request.Context(), c.Param("id"), req.Policy, identity)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildDocumentResponse(doc, true))
}

func (s *Server) decide(c *gin.Context, intent usecase.Intent) (usecase.DecisionResult, bool) {
	origin, agent := auditContextFrom(c)
	result, err := s.engine.Decide(c.Request.Context(), usecase.DecisionInput{
		DocumentID: c.Param("id"),
		Requester:  getIdentity(c),
		Origin:     origin,
		Agent:      agent,
		Intent:     intent,
	})
	if err != nil {
		writeError(c, err)
		return usecase.DecisionResult{}, false
	}
	s.metrics.ObserveDecision(string(intent), result.Decision)
	return result, true
}

func (s *Server) handleAccess(c *gin.Context) {
	result, ok := s.decide(c, usecase.IntentView)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, buildDecisionResponse(result))
}

func (s *Server) handleEligibility(c *gin.Context) {
	result, ok := s.decide(c, usecase.IntentCheck)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, buildDecisionResponse(result))
}

func (s *Server) handleDownload(c *gin.Context) {
	result, ok := s.decide(c, usecase.IntentDownload)
	if !ok {
		return
	}
	if !result.Decision.Allowed() {
		writeDecisionDenied(c, result.Document.ID, result.Decision)
		return
	}
	c.JSON(http.StatusOK, downloadResponse{
		decisionResponse: buildDecisionResponse(result),
		Title:            result.Document.Title,
		OriginalName:     result.Document.OriginalName,
		MimeType:         result.Document.MimeType,
		SizeBytes:        result.Document.SizeBytes,
	})
}

func (s *Server) handleCreateRequest(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	var req createRequestRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
			return
		}
	}
	origin, agent := auditContextFrom(c)
	result, err := s.lifecycle.Create(c.Request.Context(), usecase.CreateRequestInput{
		DocumentID: c.Param("id"),
		Requester:  identity,
		Note:       req.Note,
		Origin:     origin,
		Agent:      agent,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	out := createRequestResponse{Created: result.Created, AlreadyAllowed: result.AlreadyAllowed}
	if result.Request != nil {
		built := buildAccessRequestResponse(*result.Request)
		out.Request = &built
	}
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
		s.metrics.ObserveTransition("created")
		s.dispatch(c, domain.Notification{
			Kind:          domain.NotifyRequestCreated,
			DocumentID:    result.Document.ID,
			DocumentTitle: result.Document.Title,
			RequestID:     result.Request.ID,
			RecipientID:   result.Document.UploaderID,
			ActorID:       identity.Subject,
		})
	}
	c.JSON(status, out)
}

func (s *Server) handleListPending(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	pending, err := s.lifecycle.ListPending(c.Request.Context(), c.Param("id"), identity)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]accessRequestResponse, 0, len(pending))
	for _, req := range pending {
		out = append(out, buildAccessRequestResponse(req))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleApprove(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	origin, agent := auditContextFrom(c)
	doc, err := s.lifecycle.Approve(c.Request.Context(), usecase.ApproveInput{
		DocumentID: c.Param("id"),
		InvestorID: req.InvestorID,
		Acting:     identity,
		Origin:     origin,
		Agent:      agent,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	s.metrics.ObserveTransition("approved")
	s.dispatch(c, domain.Notification{
		Kind:          domain.NotifyInvestorApproved,
		DocumentID:    doc.ID,
		DocumentTitle: doc.Title,
		RecipientID:   strings.TrimSpace(req.InvestorID),
		ActorID:       identity.Subject,
	})
	c.JSON(http.StatusOK, buildDocumentResponse(doc, true))
}

func (s *Server) transitionInput(c *gin.Context) (usecase.TransitionInput, bool) {
	identity, ok := requireIdentity(c)
	if !ok {
		return usecase.TransitionInput{}, false
	}
	origin, agent := auditContextFrom(c)
	return usecase.TransitionInput{
		RequestID: c.Param("request_id"),
		Acting:    identity,
		Origin:    origin,
		Agent:     agent,
	}, true
}

func (s *Server) handleAccept(c *gin.Context) {
	input, ok := s.transitionInput(c)
	if !ok {
		return
	}
	result, err := s.lifecycle.Accept(c.Request.Context(), input)
	if err != nil {
		writeError(c, err)
		return
	}
	s.metrics.ObserveTransition("accepted")
	s.dispatch(c, domain.Notification{
		Kind:          domain.NotifyRequestAccepted,
		DocumentID:    result.Document.ID,
		DocumentTitle: result.Document.Title,
		RequestID:     result.Request.ID,
		RecipientID:   result.Document.UploaderID,
		ActorID:       input.Acting.Subject,
	})
	c.JSON(http.StatusOK, buildAccessRequestResponse(result.Request))
}

func (s *Server) handleReject(c *gin.Context) {
	input, ok := s.transitionInput(c)
	if !ok {
		return
	}
	result, err := s.lifecycle.Reject(c.Request.Context(), input)
	if err != nil {
		writeError(c, err)
		return
	}
	s.metrics.ObserveTransition("rejected")
	recipient := result.Request.RequesterID
	if input.Acting.Subject == result.Request.RequesterID {
		recipient = result.Document.UploaderID
	}
	s.dispatch(c, domain.Notification{
		Kind:          domain.NotifyRequestRejected,
		DocumentID:    result.Document.ID,
		DocumentTitle: result.Document.Title,
		RequestID:     result.Request.ID,
		RecipientID:   recipient,
		ActorID:       input.Acting.Subject,
	})
	c.JSON(http.StatusOK, buildAccessRequestResponse(result.Request))
}

// requireManager loads the document and checks the caller may manage it.
func (s *Server) requireManager(c *gin.Context) (domain.Document, bool) {
	identity, ok := requireIdentity(c)
	if !ok {
		return domain.Document{}, false
	}
	doc, err := s.documents.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return domain.Document{}, false
	}
	if !identity.CanManage(doc) {
		writeError(c, domain.ErrForbidden)
		return domain.Document{}, false
	}
	return doc, true
}

func (s *Server) handleListAudit(c *gin.Context) {
	doc, ok := s.requireManager(c)
	if !ok {
		return
	}
	filter, err := parseAuditFilter(c)
	if err != nil {
		writeError(c, err)
		return
	}
	events, err := s.audit.ListForDocument(c.Request.Context(), doc.ID, filter)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]auditEventResponse, 0, len(events))
	for _, event := range events {
		out = append(out, buildAuditEventResponse(event))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleVerifyAudit(c *gin.Context) {
	doc, ok := s.requireManager(c)
	if !ok {
		return
	}
	result, err := s.audit.Verify(c.Request.Context(), doc.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleExportAudit(c *gin.Context) {
	doc, ok := s.requireManager(c)
	if !ok {
		return
	}
	events, err := s.audit.ListForDocument(c.Request.Context(), doc.ID, domain.AuditFilter{})
	if err != nil {
		writeError(c, err)
		return
	}
	evaluator := s.cfg.DecisionEvaluator
	if evaluator == "" {
		evaluator = "native"
	}
	bundle, err := bundles.BuildAuditBundle(bundles.BundleInput{
		Document:   doc,
		Events:     events,
		ExportedAt: time.Now().UTC(),
		ExportedBy: getIdentity(c).Subject,
		Evaluator:  evaluator,
		RulesHash:  s.rulesHash,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "audit-"+doc.ID+".json"))
	c.JSON(http.StatusOK, bundle)
}

func parseAuditFilter(c *gin.Context) (domain.AuditFilter, error) {
	var filter domain.AuditFilter
	for _, raw := range c.QueryArray("action") {
		for _, part := range strings.Split(raw, ",") {
			action := domain.AuditAction(strings.TrimSpace(part))
			if action == "" {
				continue
			}
			if !action.Valid() {
				return domain.AuditFilter{}, fmt.Errorf("unknown action %q: %w", action, domain.ErrInvalidArgument)
			}
			filter.Actions = append(filter.Actions, action)
		}
	}
	filter.ActorID = strings.TrimSpace(c.Query("actor"))
	var err error
	if filter.Since, err = parseTimeQuery(c, "since"); err != nil {
		return domain.AuditFilter{}, err
	}
	if filter.Until, err = parseTimeQuery(c, "until"); err != nil {
		return domain.AuditFilter{}, err
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 || limit > maxListLimit {
			return domain.AuditFilter{}, fmt.Errorf("limit must be between 0 and %d: %w", maxListLimit, domain.ErrInvalidArgument)
		}
		filter.Limit = limit
	}
	return filter, nil
}

func parseTimeQuery(c *gin.Context, key string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be RFC3339: %w", key, domain.ErrInvalidArgument)
	}
	parsed = parsed.UTC()
	return &parsed, nil
}
