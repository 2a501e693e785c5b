// Package auth resolves the verified caller identity at the HTTP boundary.
// Callers without credentials resolve to the anonymous identity; callers with
// bad credentials are rejected.
package auth

import (
	"net/http"
	"strings"

	"dealroom/internal/domain"
)

const DefaultAdminRole = "dealroom_admin"

type Authenticator interface {
	Authenticate(r *http.Request) (domain.Identity, error)
}

func identityFrom(subject, org string, roles []string, adminRole string) domain.Identity {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return domain.Identity{}
	}
	return domain.Identity{
		Subject:        subject,
		OrganizationID: strings.TrimSpace(org),
		Admin:          hasRole(roles, adminRole),
	}
}

func hasRole(roles []string, role string) bool {
	if role == "" {
		role = DefaultAdminRole
	}
	for _, r := range roles {
		if strings.TrimSpace(r) == role {
			return true
		}
	}
	return false
}

func splitRoles(value string) []string {
	var roles []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			roles = append(roles, part)
		}
	}
	return roles
}

func extractBearerToken(value string) string {
	value = strings.TrimSpace(value)
	if len(value) < len("bearer ") || !strings.EqualFold(value[:len("bearer ")], "bearer ") {
		return ""
	}
	return strings.TrimSpace(value[len("bearer "):])
}
