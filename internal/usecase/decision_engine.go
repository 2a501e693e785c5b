package usecase

import (
	"context"
	"errors"
	"fmt"

	"dealroom/internal/domain"
)

// Intent tells the engine whether a decision is a real look at the document.
// Only view and download decisions are written to the audit trail.
type Intent string

const (
	IntentView     Intent = "view"
	IntentDownload Intent = "download"
	IntentCheck    Intent = "check"
)

type DecisionInput struct {
	DocumentID string
	Requester  domain.Identity
	Origin     string
	Agent      string
	Intent     Intent
}

type DecisionResult struct {
	Decision domain.Decision
	Document domain.Document
	Facts    domain.AccessFacts
}

// NativeEvaluator applies domain.EvaluateAccess in process.
type NativeEvaluator struct{}

func (NativeEvaluator) Evaluate(ctx context.Context, facts domain.AccessFacts) (domain.Decision, error) {
	return domain.EvaluateAccess(facts), nil
}

type AccessDecisionEngine struct {
	Documents *DocumentRegistry
	Requests  AccessRequestStore
	Audit     *AuditTrail
	Evaluator AccessEvaluator
}

func NewAccessDecisionEngine(documents *DocumentRegistry, requests AccessRequestStore, audit *AuditTrail, evaluator AccessEvaluator) *AccessDecisionEngine {
	if evaluator == nil {
		evaluator = NativeEvaluator{}
	}
	return &AccessDecisionEngine{
		Documents: documents,
		Requests:  requests,
		Audit:     audit,
		Evaluator: evaluator,
	}
}

// Decide answers whether input.Requester may see the document now. When the
// audit append for a logged intent fails the decision is not returned.
func (e *AccessDecisionEngine) Decide(ctx context.Context, input DecisionInput) (DecisionResult, error) {
	if e == nil || e.Documents == nil || e.Requests == nil {
		return DecisionResult{}, errors.New("decision engine is not configured")
	}
	intent := input.Intent
	if intent == "" {
		intent = IntentView
	}
	if intent != IntentView && intent != IntentDownload && intent != IntentCheck {
		return DecisionResult{}, fmt.Errorf("unknown intent %q: %w", intent, domain.ErrInvalidArgument)
	}

	doc, err := e.Documents.Get(ctx, input.DocumentID)
	if err != nil {
		return DecisionResult{}, err
	}
	facts, err := e.gatherFacts(ctx, doc, input.Requester)
	if err != nil {
		return DecisionResult{}, err
	}
	evaluator := e.Evaluator
	if evaluator == nil {
		evaluator = NativeEvaluator{}
	}
	decision, err := evaluator.Evaluate(ctx, facts)
	if err != nil {
		return DecisionResult{}, fmt.Errorf("evaluate access: %w", err)
	}

	if intent != IntentCheck {
		if e.Audit == nil {
			return DecisionResult{}, errors.New("audit trail required for logged decisions")
		}
		ac := AuditContext{ActorID: input.Requester.Subject, Origin: input.Origin, Agent: input.Agent}
		if err := e.Audit.EmitDecision(ctx, ac, domain.AuditViewed, doc.ID, decision); err != nil {
			return DecisionResult{}, err
		}
		if intent == IntentDownload && decision.Allowed() {
			if err := e.Audit.EmitDecision(ctx, ac, domain.AuditDownloaded, doc.ID, decision); err != nil {
				return DecisionResult{}, err
			}
		}
	}

	return DecisionResult{Decision: decision, Document: doc, Facts: facts}, nil
}

// gatherFacts reads only what the rule table can still use for this caller.
func (e *AccessDecisionEngine) gatherFacts(ctx context.Context, doc domain.Document, requester domain.Identity) (domain.AccessFacts, error) {
	facts := domain.AccessFacts{
		Policy:    doc.Policy.Normalize(),
		Anonymous: requester.Anonymous(),
		Owner:     doc.OwnedBy(requester),
		Admin:     requester.Admin && !requester.Anonymous(),
	}
	if facts.Anonymous || facts.Owner || facts.Admin || facts.Policy == domain.PolicyPublic {
		return facts, nil
	}

	allowed, err := e.Documents.IsAllowed(ctx, doc.ID, requester.Subject)
	if err != nil {
		return domain.AccessFacts{}, err
	}
	facts.OnAllowList = allowed
	if allowed {
		return facts, nil
	}

	switch facts.Policy {
	case domain.PolicyNDARequired:
		accepted, err := e.Requests.FindAccepted(ctx, doc.ID, requester.Subject)
		if err != nil {
			return domain.AccessFacts{}, err
		}
		facts.HasAcceptedRequest = accepted != nil
	case domain.PolicyInvite:
		pending, err := e.Requests.FindPending(ctx, doc.ID, requester.Subject)
		if err != nil {
			return domain.AccessFacts{}, err
		}
		facts.HasPendingRequest = pending != nil
	}
	return facts, nil
}
