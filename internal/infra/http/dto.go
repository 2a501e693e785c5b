package http

import (
	"time"

	"dealroom/internal/domain"
	"dealroom/internal/usecase"
)

type registerDocumentRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	OriginalName string `json:"original_name"`
	MimeType     string `json:"mime_type"`
	SizeBytes    int64  `json:"size_bytes"`
	Policy       string `json:"policy"`
}

type setPolicyRequest struct {
	Policy string `json:"policy"`
}

type createRequestRequest struct {
	Note string `json:"note"`
}

type approveRequest struct {
	InvestorID string `json:"investor_id"`
}

type documentResponse struct {
	ID           string   `json:"id"`
	OwnerOrgID   string   `json:"owner_org_id"`
	UploaderID   string   `json:"uploader_id"`
	Policy       string   `json:"policy"`
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	OriginalName string   `json:"original_name,omitempty"`
	MimeType     string   `json:"mime_type,omitempty"`
	SizeBytes    int64    `json:"size_bytes,omitempty"`
	AllowList    []string `json:"allow_list,omitempty"`
	CreatedAt    string   `json:"created_at"`
	UpdatedAt    string   `json:"updated_at"`
}

type decisionResponse struct {
	DocumentID string `json:"document_id"`
	Allowed    bool   `json:"allowed"`
	Verdict    string `json:"verdict"`
	Reason     string `json:"reason"`
	Message    string `json:"message,omitempty"`
}

type downloadResponse struct {
	decisionResponse
	Title        string `json:"title"`
	OriginalName string `json:"original_name,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`
	SizeBytes    int64  `json:"size_bytes,omitempty"`
}

type accessRequestResponse struct {
	ID           string `json:"id"`
	DocumentID   string `json:"document_id"`
	RequesterID  string `json:"requester_id"`
	OwnerOrgID   string `json:"owner_org_id"`
	Status       string `json:"status"`
	Note         string `json:"note,omitempty"`
	AcceptedAt   string `json:"accepted_at,omitempty"`
	AcceptedFrom string `json:"accepted_from,omitempty"`
	RejectedBy   string `json:"rejected_by,omitempty"`
	ResolvedAt   string `json:"resolved_at,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

type createRequestResponse struct {
	Request        *accessRequestResponse `json:"request,omitempty"`
	Created        bool                   `json:"created"`
	AlreadyAllowed bool                   `json:"already_allowed"`
}

type auditEventResponse struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"document_id"`
	Seq        int64             `json:"seq"`
	ActorID    string            `json:"actor_id,omitempty"`
	Action     string            `json:"action"`
	Origin     string            `json:"origin,omitempty"`
	Agent      string            `json:"agent,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	PrevHash   string            `json:"prev_hash"`
	Hash       string            `json:"hash"`
	CreatedAt  string            `json:"created_at"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// buildDocumentResponse shows the allow list only to callers who manage the
// document.
func buildDocumentResponse(doc domain.Document, showAllowList bool) documentResponse {
	out := documentResponse{
		ID:           doc.ID,
		OwnerOrgID:   doc.OwnerOrgID,
		UploaderID:   doc.UploaderID,
		Policy:       string(doc.Policy.Normalize()),
		Title:        doc.Title,
		Description:  doc.Description,
		OriginalName: doc.OriginalName,
		MimeType:     doc.MimeType,
		SizeBytes:    doc.SizeBytes,
		CreatedAt:    formatTime(doc.CreatedAt),
		UpdatedAt:    formatTime(doc.UpdatedAt),
	}
	if showAllowList {
		out.AllowList = append([]string(nil), doc.AllowList...)
	}
	return out
}

func buildDecisionResponse(result usecase.DecisionResult) decisionResponse {
	return decisionResponse{
		DocumentID: result.Document.ID,
		Allowed:    result.Decision.Allowed(),
		Verdict:    string(result.Decision.Verdict),
		Reason:     result.Decision.Reason,
		Message:    result.Decision.Message(),
	}
}

func buildAccessRequestResponse(req domain.AccessRequest) accessRequestResponse {
	return accessRequestResponse{
		ID:           req.ID,
		DocumentID:   req.DocumentID,
		RequesterID:  req.RequesterID,
		OwnerOrgID:   req.OwnerOrgID,
		Status:       string(req.Status),
		Note:         req.Note,
		AcceptedAt:   formatTimePtr(req.AcceptedAt),
		AcceptedFrom: req.AcceptedFrom,
		RejectedBy:   req.RejectedBy,
		ResolvedAt:   formatTimePtr(req.ResolvedAt),
		CreatedAt:    formatTime(req.CreatedAt),
		UpdatedAt:    formatTime(req.UpdatedAt),
	}
}

func buildAuditEventResponse(event domain.AuditEvent) auditEventResponse {
	return auditEventResponse{
		ID:         event.ID,
		DocumentID: event.DocumentID,
		Seq:        event.Seq,
		ActorID:    event.ActorID,
		Action:     string(event.Action),
		Origin:     event.Origin,
		Agent:      event.Agent,
		Metadata:   event.Metadata,
		PrevHash:   event.PrevHash,
		Hash:       event.Hash,
		CreatedAt:  formatTime(event.CreatedAt),
	}
}
