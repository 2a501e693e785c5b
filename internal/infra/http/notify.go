package http

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"dealroom/internal/domain"
)

// dispatch sends a notification after the transition it describes has
// committed. Delivery is bounded by the configured notify timeout; failures
// are logged and never change the response.
func (s *Server) dispatch(c *gin.Context, msg domain.Notification) {
	if s.notifier == nil || msg.RecipientID == "" {
		return
	}
	ctx := c.Request.Context()
	if s.notifyTTL > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.notifyTTL)
		defer cancel()
	}
	if err := s.notifier.Notify(ctx, msg); err != nil {
		s.log.Warn("notification failed",
			zap.String("request_id", c.GetString(requestIDContextKey)),
			zap.String("kind", string(msg.Kind)),
			zap.String("document_id", msg.DocumentID),
			zap.Error(err))
	}
}
