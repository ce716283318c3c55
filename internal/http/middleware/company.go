package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/metrics-cz/connect-auth/internal/company"
)

const ginCompanyContextKey = "companyContext"

type companyContextKey struct{}

// Company resolves the tenant from the X-Company-ID header or the Host
// header and stores it in Gin and request contexts.
func Company(resolver *company.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		ref := strings.TrimSpace(c.Request.Header.Get("X-Company-ID"))

		var (
			companyCtx *company.Context
			err        error
		)
		if ref != "" {
			companyCtx, err = resolver.ResolveByRef(c.Request.Context(), ref)
		} else {
			companyCtx, err = resolver.Resolve(c.Request.Context(), stripPort(c.Request.Host))
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "invalid_company", "error_description": "Unknown company."})
			return
		}

		ctx := context.WithValue(c.Request.Context(), companyContextKey{}, companyCtx)
		c.Request = c.Request.WithContext(ctx)
		c.Set(ginCompanyContextKey, companyCtx)

		c.Next()
	}
}

// GetCompanyContext exposes the resolved company to handlers.
func GetCompanyContext(c *gin.Context) (*company.Context, bool) {
	value, ok := c.Get(ginCompanyContextKey)
	if !ok {
		return nil, false
	}
	companyCtx, ok := value.(*company.Context)
	return companyCtx, ok
}

// CompanyContextFromContext extracts the company context from a standard
// context.
func CompanyContextFromContext(ctx context.Context) (*company.Context, bool) {
	value := ctx.Value(companyContextKey{})
	if value == nil {
		return nil, false
	}
	companyCtx, ok := value.(*company.Context)
	return companyCtx, ok
}

func stripPort(host string) string {
	if strings.Contains(host, ":") {
		if h, _, err := net.SplitHostPort(host); err == nil {
			return h
		}
	}
	return host
}
