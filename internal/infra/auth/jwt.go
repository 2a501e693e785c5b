package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"dealroom/internal/domain"
)

const defaultClockSkew = 30 * time.Second

// Claims carried by dealroom bearer tokens. Roles may arrive as a list or as a
// single "role" string.
type Claims struct {
	Org   string   `json:"org,omitempty"`
	Roles []string `json:"roles,omitempty"`
	Role  string   `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type JWTAuthenticator struct {
	secret    []byte
	issuer    string
	adminRole string
	clockSkew time.Duration
	now       func() time.Time
}

type JWTOption func(*JWTAuthenticator)

func WithClock(now func() time.Time) JWTOption {
	return func(a *JWTAuthenticator) {
		if now != nil {
			a.now = now
		}
	}
}

func NewJWTAuthenticator(secret, issuer, adminRole string, opts ...JWTOption) (*JWTAuthenticator, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	a := &JWTAuthenticator{
		secret:    []byte(secret),
		issuer:    strings.TrimSpace(issuer),
		adminRole: adminRole,
		clockSkew: defaultClockSkew,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *JWTAuthenticator) Authenticate(r *http.Request) (domain.Identity, error) {
	header := r.Header.Get("Authorization")
	if strings.TrimSpace(header) == "" {
		return domain.Identity{}, nil
	}
	token := extractBearerToken(header)
	if token == "" {
		return domain.Identity{}, domain.ErrUnauthorized
	}
	claims, err := a.parse(token)
	if err != nil {
		return domain.Identity{}, domain.ErrUnauthorized
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return domain.Identity{}, domain.ErrUnauthorized
	}
	roles := claims.Roles
	if claims.Role != "" {
		roles = append(roles, claims.Role)
	}
	return identityFrom(claims.Subject, claims.Org, roles, a.adminRole), nil
}

func (a *JWTAuthenticator) parse(token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(a.clockSkew),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// Sign issues an HS256 token for the given identity. Used by operator tooling
// and tests.
func (a *JWTAuthenticator) Sign(identity domain.Identity, roles []string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{
		Org:   identity.OrganizationID,
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.Subject,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

var _ Authenticator = (*JWTAuthenticator)(nil)
