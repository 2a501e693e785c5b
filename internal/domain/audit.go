package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

const AuditChainVersion = "access_audit_v1"

type AuditAction string

const (
	AuditRequested  AuditAction = "requested"
	AuditNDASigned  AuditAction = "nda_signed"
	AuditApproved   AuditAction = "approved"
	AuditIssuedLink AuditAction = "issued_link"
	AuditDownloaded AuditAction = "downloaded"
	AuditViewed     AuditAction = "viewed"
	AuditRejected   AuditAction = "rejected"
)

func (a AuditAction) Valid() bool {
	switch a {
	case AuditRequested, AuditNDASigned, AuditApproved, AuditIssuedLink, AuditDownloaded, AuditViewed, AuditRejected:
		return true
	}
	return false
}

type AuditEvent struct {
	ID         string
	DocumentID string
	Seq        int64
	ActorID    string
	Action     AuditAction
	Origin     string
	Agent      string
	Metadata   map[string]string
	PrevHash   string
	Hash       string
	CreatedAt  time.Time
	// IdempotencyKey, when set, is unique per document. It is an index
	// column only and is not covered by the chain hash.
	IdempotencyKey string
}

// RequestEventKey is the idempotency key of the single event a request
// transition writes.
func RequestEventKey(action AuditAction, requestID string) string {
	return string(action) + ":" + requestID
}

type AuditFilter struct {
	Actions []AuditAction
	ActorID string
	Since   *time.Time
	Until   *time.Time
	Limit   int
}

// Matches applies the filter to a single event. Adapters that cannot push a
// filter down to storage use it after reading.
func (f AuditFilter) Matches(event AuditEvent) bool {
	if len(f.Actions) > 0 {
		found := false
		for _, action := range f.Actions {
			if action == event.Action {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.ActorID != "" && f.ActorID != event.ActorID {
		return false
	}
	if f.Since != nil && event.CreatedAt.Before(*f.Since) {
		return false
	}
	if f.Until != nil && event.CreatedAt.After(*f.Until) {
		return false
	}
	return true
}

func ZeroAuditHash() string {
	return "0000000000000000000000000000000000000000000000000000000000000000"
}

// ComputeAuditHash links event to its predecessor in the document's chain.
// Seq, PrevHash and CreatedAt must already be assigned.
func ComputeAuditHash(event AuditEvent) (string, error) {
	metadata := event.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	payload := map[string]any{
		"v":           AuditChainVersion,
		"document_id": event.DocumentID,
		"seq":         event.Seq,
		"action":      string(event.Action),
		"actor_id":    event.ActorID,
		"origin":      event.Origin,
		"agent":       event.Agent,
		"metadata":    metadata,
		"prev_hash":   event.PrevHash,
		"created_at":  event.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	canonical, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
