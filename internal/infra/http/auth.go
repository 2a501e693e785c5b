package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dealroom/internal/domain"
)

const identityContextKey = "identity"

// authenticate resolves the caller once per request. Missing credentials give
// the anonymous identity; bad credentials stop the request.
func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := s.authenticator.Authenticate(c.Request)
		if err != nil {
			writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid credentials")
			c.Abort()
			return
		}
		c.Set(identityContextKey, identity)
		c.Next()
	}
}

func getIdentity(c *gin.Context) domain.Identity {
	raw, ok := c.Get(identityContextKey)
	if !ok {
		return domain.Identity{}
	}
	identity, _ := raw.(domain.Identity)
	return identity
}

// requireIdentity writes 401 for anonymous callers on routes that need one.
func requireIdentity(c *gin.Context) (domain.Identity, bool) {
	identity := getIdentity(c)
	if identity.Anonymous() {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
		return domain.Identity{}, false
	}
	return identity, true
}
