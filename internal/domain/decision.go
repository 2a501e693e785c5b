package domain

type Verdict string

const (
	VerdictAllow   Verdict = "allow"
	VerdictDeny    Verdict = "deny"
	VerdictPending Verdict = "pending"
)

const (
	ReasonOwner          = "owner"
	ReasonPublic         = "public"
	ReasonAllowList      = "allow_list"
	ReasonNDAAccepted    = "nda_accepted"
	ReasonNDARequired    = "nda_required"
	ReasonRequestPending = "request_pending"
	ReasonAccessDenied   = "access_denied"
)

type Decision struct {
	Verdict Verdict `json:"verdict"`
	Reason  string  `json:"reason"`
}

func (d Decision) Allowed() bool {
	return d.Verdict == VerdictAllow
}

// Message is the human-readable reason shown to a denied caller.
func (d Decision) Message() string {
	switch d.Reason {
	case ReasonNDARequired:
		return "NDA required"
	case ReasonRequestPending:
		return "access request pending"
	case ReasonAccessDenied:
		return "access denied"
	}
	return ""
}

// AccessFacts is everything the rule table needs about one (document,
// requester) pair. Gathering them is the caller's job.
type AccessFacts struct {
	Policy             Policy `json:"policy"`
	Anonymous          bool   `json:"anonymous"`
	Owner              bool   `json:"owner"`
	Admin              bool   `json:"admin"`
	OnAllowList        bool   `json:"on_allow_list"`
	HasAcceptedRequest bool   `json:"has_accepted_request"`
	HasPendingRequest  bool   `json:"has_pending_request"`
}

// EvaluateAccess is the access rule table. Rules are tried in order and the
// first match wins.
func EvaluateAccess(f AccessFacts) Decision {
	policy := f.Policy.Normalize()
	switch {
	case !f.Anonymous && (f.Owner || f.Admin):
		return Decision{Verdict: VerdictAllow, Reason: ReasonOwner}
	case policy == PolicyPublic:
		return Decision{Verdict: VerdictAllow, Reason: ReasonPublic}
	case f.Anonymous:
		return Decision{Verdict: VerdictDeny, Reason: ReasonAccessDenied}
	case f.OnAllowList:
		return Decision{Verdict: VerdictAllow, Reason: ReasonAllowList}
	case policy == PolicyNDARequired && f.HasAcceptedRequest:
		return Decision{Verdict: VerdictAllow, Reason: ReasonNDAAccepted}
	case policy == PolicyNDARequired:
		return Decision{Verdict: VerdictDeny, Reason: ReasonNDARequired}
	case policy == PolicyInvite && f.HasPendingRequest:
		return Decision{Verdict: VerdictPending, Reason: ReasonRequestPending}
	default:
		return Decision{Verdict: VerdictDeny, Reason: ReasonAccessDenied}
	}
}
