package http

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"dealroom/internal/domain"
)

const (
	routeDocumentsRead  = "documents:read"
	routeDocumentsWrite = "documents:write"
	routeAccess         = "access"
	routeRequestsRead   = "requests:read"
	routeRequestsWrite  = "requests:write"
	routeAuditRead      = "audit:read"
)

// limit keys the window on route and caller. Anonymous callers share a
// window per client address.
func (s *Server) limit(routeID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.enforceRateLimit(c, routeID, getIdentity(c)) {
			c.Next()
			return
		}
		c.Abort()
	}
}

func (s *Server) enforceRateLimit(c *gin.Context, routeID string, identity domain.Identity) bool {
	if s.rateLimiter == nil || s.rateLimitRequests <= 0 {
		return true
	}
	key := fmt.Sprintf("route:%s:ip:%s", routeID, c.ClientIP())
	if !identity.Anonymous() {
		sum := sha256.Sum256([]byte(identity.Subject))
		key = fmt.Sprintf("route:%s:subject_hash:%s", routeID, hex.EncodeToString(sum[:]))
	}

	decision, err := s.rateLimiter.Allow(c.Request.Context(), key, s.rateLimitRequests, s.rateLimitWindow)
	if err != nil {
		if s.rateLimitFailClosed {
			writeErrorCode(c, http.StatusTooManyRequests, "RATE_LIMIT_UNAVAILABLE", "rate limiter unavailable")
			return false
		}
		return true
	}
	writeRateLimitHeaders(c, decision)
	if !decision.Allowed {
		s.metrics.ObserveRateLimited(routeID)
		writeErrorCode(c, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
		return false
	}
	return true
}

func writeRateLimitHeaders(c *gin.Context, decision domain.RateLimitDecision) {
	if decision.Limit > 0 {
		c.Header("RateLimit-Limit", strconv.Itoa(decision.Limit))
	}
	if decision.Remaining >= 0 {
		c.Header("RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	}
	if !decision.ResetAt.IsZero() {
		c.Header("RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
		if !decision.Allowed {
			retryAfter := int64(decision.RetryAfter(time.Now()).Seconds())
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
		}
	}
}
