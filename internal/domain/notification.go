package domain

type NotificationKind string

const (
	NotifyRequestCreated   NotificationKind = "request_created"
	NotifyInvestorApproved NotificationKind = "investor_approved"
	NotifyRequestAccepted  NotificationKind = "request_accepted"
	NotifyRequestRejected  NotificationKind = "request_rejected"
)

// Notification is a human-facing message attached to a lifecycle transition.
// RecipientID is an identity subject; delivery decides how to reach it.
type Notification struct {
	Kind          NotificationKind
	DocumentID    string
	DocumentTitle string
	RequestID     string
	RecipientID   string
	ActorID       string
}
