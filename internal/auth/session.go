package auth

import (
	"fmt"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"

	"github.com/metrics-cz/connect-auth/internal/config"
)

// SessionClaims is the dashboard identity provider's JWT payload. The
// company list bounds which tenants the session may act on.
type SessionClaims struct {
	Email      string  `json:"email"`
	Role       string  `json:"role"`
	CompanyIDs []int64 `json:"company_ids"`
}

// HasCompany reports whether the session may act on the given company.
func (c *SessionClaims) HasCompany(companyID int64) bool {
	for _, id := range c.CompanyIDs {
		if id == companyID {
			return true
		}
	}
	return false
}

// SessionVerifier validates dashboard session JWTs.
type SessionVerifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewSessionVerifier constructs a verifier from process configuration.
func NewSessionVerifier(cfg config.Config) *SessionVerifier {
	return &SessionVerifier{
		secret: []byte(cfg.SessionJWTSecret),
		issuer: cfg.SessionIssuer,
		now:    time.Now,
	}
}

// Verify parses and validates the token, returning standard and custom
// claims.
func (v *SessionVerifier) Verify(token string) (*gojwt.Claims, *SessionClaims, error) {
	parsed, err := gojwt.ParseSigned(token, []gojose.SignatureAlgorithm{gojose.HS256})
	if err != nil {
		return nil, nil, fmt.Errorf("parse token: %w", err)
	}

	var std gojwt.Claims
	var custom SessionClaims
	if err := parsed.Claims(v.secret, &std, &custom); err != nil {
		return nil, nil, fmt.Errorf("verify token: %w", err)
	}

	if err := std.Validate(gojwt.Expected{Issuer: v.issuer, Time: v.now()}); err != nil {
		return nil, nil, fmt.Errorf("validate claims: %w", err)
	}

	return &std, &custom, nil
}
