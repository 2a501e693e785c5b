package auth

import (
	"net/http"

	"dealroom/internal/domain"
)

const (
	HeaderSubject = "X-Principal-Subject"
	HeaderOrg     = "X-Principal-Org"
	HeaderRoles   = "X-Principal-Roles"
)

// HeaderAuthenticator trusts identity headers set by a fronting gateway.
// Only for deployments where the gateway strips client-supplied copies.
type HeaderAuthenticator struct {
	AdminRole string
}

func NewHeaderAuthenticator(adminRole string) *HeaderAuthenticator {
	return &HeaderAuthenticator{AdminRole: adminRole}
}

func (a *HeaderAuthenticator) Authenticate(r *http.Request) (domain.Identity, error) {
	return identityFrom(
		r.Header.Get(HeaderSubject),
		r.Header.Get(HeaderOrg),
		splitRoles(r.Header.Get(HeaderRoles)),
		a.AdminRole,
	), nil
}

var _ Authenticator = (*HeaderAuthenticator)(nil)
