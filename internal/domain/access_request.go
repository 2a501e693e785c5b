package domain

import "time"

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestRejected RequestStatus = "rejected"
)

// Terminal reports whether no further transition is allowed. Unknown
// statuses are treated as terminal.
func (s RequestStatus) Terminal() bool {
	return s != RequestPending
}

type AccessRequest struct {
	ID           string
	DocumentID   string
	RequesterID  string
	OwnerOrgID   string
	Status       RequestStatus
	Note         string
	AcceptedAt   *time.Time
	AcceptedFrom string
	RejectedBy   string
	ResolvedAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Accept moves a pending request to accepted. It does not persist anything.
func (r *AccessRequest) Accept(at time.Time, origin string) error {
	if r.Status.Terminal() {
		return ErrInvalidState
	}
	at = at.UTC()
	r.Status = RequestAccepted
	r.AcceptedAt = &at
	r.AcceptedFrom = origin
	r.ResolvedAt = &at
	r.UpdatedAt = at
	return nil
}

// Reject moves a pending request to rejected. It does not persist anything.
func (r *AccessRequest) Reject(at time.Time, by string) error {
	if r.Status.Terminal() {
		return ErrInvalidState
	}
	at = at.UTC()
	r.Status = RequestRejected
	r.RejectedBy = by
	r.ResolvedAt = &at
	r.UpdatedAt = at
	return nil
}
