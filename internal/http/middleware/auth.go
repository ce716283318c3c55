package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	gojwt "github.com/go-jose/go-jose/v4/jwt"

	"github.com/metrics-cz/connect-auth/internal/auth"
)

const (
	sessionClaimsKey = "sessionClaims"
	stdClaimsKey     = "stdClaims"
)

// Session validates the dashboard bearer token and checks that the session
// may act on the resolved company.
type Session struct {
	Verifier *auth.SessionVerifier
}

// ValidateSession ensures the request carries a valid session JWT scoped to
// the request's company.
func (m *Session) ValidateSession(c *gin.Context) {
	companyCtx, ok := GetCompanyContext(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_company", "error_description": "Company missing."})
		return
	}
	header := c.GetHeader("Authorization")
	if header == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Authorization header required."})
		return
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Bearer token required."})
		return
	}

	std, claims, err := m.Verifier.Verify(parts[1])
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Invalid session token."})
		return
	}
	if !claims.HasCompany(companyCtx.Company.ID) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "error_description": "Session has no access to this company."})
		return
	}

	c.Set(stdClaimsKey, std)
	c.Set(sessionClaimsKey, claims)
	c.Next()
}

// GetSessionClaims exposes the custom session claims to handlers.
func GetSessionClaims(c *gin.Context) (*auth.SessionClaims, bool) {
	value, ok := c.Get(sessionClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*auth.SessionClaims)
	return claims, ok
}

// GetStdClaims returns the standard JWT claims set.
func GetStdClaims(c *gin.Context) (*gojwt.Claims, bool) {
	value, ok := c.Get(stdClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*gojwt.Claims)
	return claims, ok
}
