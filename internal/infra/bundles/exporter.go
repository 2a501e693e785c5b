// Package bundles exports a document's audit chain as a self-contained
// evidence bundle that can be verified without access to the service.
package bundles

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"dealroom/internal/domain"
	"dealroom/internal/usecase"
)

const AuditBundleVersion = "audit_bundle_v1"

type BundleInput struct {
	Document   domain.Document
	Events     []domain.AuditEvent
	ExportedAt time.Time
	ExportedBy string
	Evaluator  string
	RulesHash  string
}

type AuditBundle struct {
	Version     string       `json:"version"`
	ChainFormat string       `json:"chain_format"`
	Document    DocumentInfo `json:"document"`
	Events      []EventEntry `json:"events"`
	HeadSeq     int64        `json:"head_seq"`
	HeadHash    string       `json:"head_hash"`
	ExportedAt  string       `json:"exported_at"`
	ExportedBy  string       `json:"exported_by,omitempty"`
	Evaluator   string       `json:"evaluator,omitempty"`
	RulesHash   string       `json:"rules_hash,omitempty"`
	Digest      string       `json:"digest"`
}

type DocumentInfo struct {
	ID         string `json:"id"`
	OwnerOrgID string `json:"owner_org_id"`
	Policy     string `json:"policy"`
	Title      string `json:"title"`
}

type EventEntry struct {
	ID        string            `json:"id"`
	Seq       int64             `json:"seq"`
	ActorID   string            `json:"actor_id"`
	Action    string            `json:"action"`
	Origin    string            `json:"origin"`
	Agent     string            `json:"agent"`
	Metadata  map[string]string `json:"metadata"`
	PrevHash  string            `json:"prev_hash"`
	Hash      string            `json:"hash"`
	CreatedAt string            `json:"created_at"`
}

func BuildAuditBundle(input BundleInput) (AuditBundle, error) {
	if input.Document.ID == "" {
		return AuditBundle{}, errors.New("document id is required")
	}
	events := append([]domain.AuditEvent(nil), input.Events...)
	sort.SliceStable(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })

	entries := make([]EventEntry, 0, len(events))
	for _, event := range events {
		if event.DocumentID != input.Document.ID {
			return AuditBundle{}, fmt.Errorf("event %d belongs to document %q", event.Seq, event.DocumentID)
		}
		entries = append(entries, eventEntryFromDomain(event))
	}

	bundle := AuditBundle{
		Version:     AuditBundleVersion,
		ChainFormat: domain.AuditChainVersion,
		Document: DocumentInfo{
			ID:         input.Document.ID,
			OwnerOrgID: input.Document.OwnerOrgID,
			Policy:     string(input.Document.Policy.Normalize()),
			Title:      input.Document.Title,
		},
		Events:     entries,
		HeadHash:   domain.ZeroAuditHash(),
		ExportedAt: input.ExportedAt.UTC().Format(time.RFC3339),
		ExportedBy: input.ExportedBy,
		Evaluator:  input.Evaluator,
		RulesHash:  input.RulesHash,
	}
	if len(entries) > 0 {
		last := entries[len(entries)-1]
		bundle.HeadSeq = last.Seq
		bundle.HeadHash = last.Hash
	}
	digest, err := computeDigest(bundle)
	if err != nil {
		return AuditBundle{}, err
	}
	bundle.Digest = digest
	return bundle, nil
}

func ExportJSON(input BundleInput) ([]byte, error) {
	bundle, err := BuildAuditBundle(input)
	if err != nil {
		return nil, err
	}
	return json.Marshal(bundle)
}

func ParseJSON(payload []byte) (AuditBundle, error) {
	var bundle AuditBundle
	if err := json.Unmarshal(payload, &bundle); err != nil {
		return AuditBundle{}, err
	}
	if bundle.Version != AuditBundleVersion {
		return AuditBundle{}, fmt.Errorf("unsupported bundle version %q", bundle.Version)
	}
	return bundle, nil
}

type VerifyResult struct {
	Passed   bool
	Failures []string
	Chain    usecase.AuditVerification
}

// Verify checks the bundle digest, the head pointer and every link in the
// chain. It reports all failures rather than stopping at the first.
func Verify(bundle AuditBundle) (VerifyResult, error) {
	var result VerifyResult
	digest, err := computeDigest(bundle)
	if err != nil {
		return VerifyResult{}, err
	}
	if digest != bundle.Digest {
		result.Failures = append(result.Failures, "digest_mismatch")
	}
	if bundle.ChainFormat != domain.AuditChainVersion {
		result.Failures = append(result.Failures, "chain_format_unsupported")
	}

	events, err := bundle.DomainEvents()
	if err != nil {
		return VerifyResult{}, err
	}
	chain, err := usecase.VerifyAuditChain(bundle.Document.ID, events)
	if err != nil {
		return VerifyResult{}, err
	}
	result.Chain = chain
	if !chain.Valid {
		result.Failures = append(result.Failures, "chain_invalid")
	}

	headSeq, headHash := int64(0), domain.ZeroAuditHash()
	if n := len(bundle.Events); n > 0 {
		headSeq, headHash = bundle.Events[n-1].Seq, bundle.Events[n-1].Hash
	}
	if bundle.HeadSeq != headSeq || bundle.HeadHash != headHash {
		result.Failures = append(result.Failures, "head_mismatch")
	}
	result.Passed = len(result.Failures) == 0
	return result, nil
}

func (b AuditBundle) DomainEvents() ([]domain.AuditEvent, error) {
	out := make([]domain.AuditEvent, 0, len(b.Events))
	for _, entry := range b.Events {
		createdAt, err := time.Parse(time.RFC3339Nano, entry.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("event %d created_at: %w", entry.Seq, err)
		}
		out = append(out, domain.AuditEvent{
			ID:         entry.ID,
			DocumentID: b.Document.ID,
			Seq:        entry.Seq,
			ActorID:    entry.ActorID,
			Action:     domain.AuditAction(entry.Action),
			Origin:     entry.Origin,
			Agent:      entry.Agent,
			Metadata:   entry.Metadata,
			PrevHash:   entry.PrevHash,
			Hash:       entry.Hash,
			CreatedAt:  createdAt.UTC(),
		})
	}
	return out, nil
}

func eventEntryFromDomain(event domain.AuditEvent) EventEntry {
	metadata := event.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	return EventEntry{
		ID:        event.ID,
		Seq:       event.Seq,
		ActorID:   event.ActorID,
		Action:    string(event.Action),
		Origin:    event.Origin,
		Agent:     event.Agent,
		Metadata:  metadata,
		PrevHash:  event.PrevHash,
		Hash:      event.Hash,
		CreatedAt: event.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// computeDigest hashes the bundle with its digest field cleared.
func computeDigest(bundle AuditBundle) (string, error) {
	bundle.Digest = ""
	canonical, err := json.Marshal(bundle)
	if err != nil {
		return "", err
	}
	return sha256Hex(canonical), nil
}

func sha256Hex(input []byte) string {
	sum := sha256.Sum256(input)
	return hex.EncodeToString(sum[:])
}
