package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"dealroom/internal/domain"
	"dealroom/internal/usecase"
)

type Noop struct{}

func (Noop) Notify(context.Context, domain.Notification) error { return nil }

// LogNotifier records notifications in the service log instead of delivering
// them.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, msg domain.Notification) error {
	n.log.Info("notification",
		zap.String("kind", string(msg.Kind)),
		zap.String("document_id", msg.DocumentID),
		zap.String("request_id", msg.RequestID),
		zap.String("recipient", msg.RecipientID),
		zap.String("actor", msg.ActorID),
	)
	return nil
}

func subject(msg domain.Notification) string {
	title := msg.DocumentTitle
	if title == "" {
		title = msg.DocumentID
	}
	switch msg.Kind {
	case domain.NotifyRequestCreated:
		return fmt.Sprintf("Access requested for %q", title)
	case domain.NotifyInvestorApproved:
		return fmt.Sprintf("You have been invited to review %q", title)
	case domain.NotifyRequestAccepted:
		return fmt.Sprintf("Access request accepted for %q", title)
	case domain.NotifyRequestRejected:
		return fmt.Sprintf("Access request rejected for %q", title)
	default:
		return fmt.Sprintf("Update on %q", title)
	}
}

func body(msg domain.Notification) string {
	switch msg.Kind {
	case domain.NotifyRequestCreated:
		return fmt.Sprintf("%s asked to view %s (request %s).", msg.ActorID, msg.DocumentID, msg.RequestID)
	case domain.NotifyInvestorApproved:
		return fmt.Sprintf("%s granted you access to document %s.", msg.ActorID, msg.DocumentID)
	case domain.NotifyRequestAccepted:
		return fmt.Sprintf("%s accepted request %s for document %s.", msg.ActorID, msg.RequestID, msg.DocumentID)
	case domain.NotifyRequestRejected:
		return fmt.Sprintf("%s rejected request %s for document %s.", msg.ActorID, msg.RequestID, msg.DocumentID)
	default:
		return fmt.Sprintf("Document %s changed.", msg.DocumentID)
	}
}

var (
	_ usecase.Notifier = Noop{}
	_ usecase.Notifier = (*LogNotifier)(nil)
)
