package domain

import (
	"strings"
	"time"
)

type Policy string

const (
	PolicyPrivate     Policy = "private"
	PolicyPublic      Policy = "public"
	PolicyInvite      Policy = "invite"
	PolicyNDARequired Policy = "nda_required"
)

// ParsePolicy maps a stored or submitted policy value onto the closed set.
// Empty and unrecognised values resolve to private; ok is false for values
// that were not recognised so writers can reject them.
func ParsePolicy(raw string) (Policy, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(PolicyPrivate):
		return PolicyPrivate, true
	case string(PolicyPublic):
		return PolicyPublic, true
	case string(PolicyInvite):
		return PolicyInvite, true
	case string(PolicyNDARequired), "nda":
		return PolicyNDARequired, true
	default:
		return PolicyPrivate, false
	}
}

// Normalize returns p if it is one of the known policies and private otherwise.
func (p Policy) Normalize() Policy {
	policy, _ := ParsePolicy(string(p))
	return policy
}

func (p Policy) Valid() bool {
	switch p {
	case PolicyPrivate, PolicyPublic, PolicyInvite, PolicyNDARequired:
		return true
	}
	return false
}

// OwnerKind records whether OwnerOrgID names an organization or, for a
// founder registered without one, the founder's own subject.
type OwnerKind string

const (
	OwnerOrganization OwnerKind = "organization"
	OwnerPersonal     OwnerKind = "personal"
)

// OrDefault maps records written before owner kinds existed onto
// organization ownership.
func (k OwnerKind) OrDefault() OwnerKind {
	if k == OwnerPersonal {
		return OwnerPersonal
	}
	return OwnerOrganization
}

type Document struct {
	ID           string
	OwnerOrgID   string
	OwnerKind    OwnerKind
	UploaderID   string
	Policy       Policy
	AllowList    []string
	Title        string
	Description  string
	OriginalName string
	MimeType     string
	SizeBytes    int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// OwnedBy reports whether id acts for the document's owner. Organization
// documents match on organization id only; personal documents match the
// uploading subject only. A subject is never compared with an organization id.
func (d Document) OwnedBy(id Identity) bool {
	if d.OwnerOrgID == "" || id.Anonymous() {
		return false
	}
	if d.OwnerKind.OrDefault() == OwnerPersonal {
		return d.UploaderID != "" && id.Subject == d.UploaderID
	}
	return id.OrganizationID != "" && id.OrganizationID == d.OwnerOrgID
}

func (d Document) Allows(subject string) bool {
	if subject == "" {
		return false
	}
	for _, member := range d.AllowList {
		if member == subject {
			return true
		}
	}
	return false
}
