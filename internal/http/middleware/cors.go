package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/metrics-cz/connect-auth/internal/config"
)

// CompanyCORS applies CORS headers per company with global fallbacks. The
// iframe bridge relies on the company's dashboard domain being allowed.
func CompanyCORS(cfg config.Config) gin.HandlerFunc {
	joinedMethods := strings.Join(cfg.CORSAllowedMethods, ", ")
	joinedHeaders := strings.Join(cfg.CORSAllowedHeaders, ", ")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}

		allowedOrigins := buildAllowedOrigins(cfg.CORSAllowedOrigins, companyOrigins(c))
		if !originAllowed(origin, allowedOrigins) {
			if c.Request.Method == http.MethodOptions {
				c.AbortWithStatus(http.StatusNoContent)
				return
			}
			c.Next()
			return
		}

		header := c.Writer.Header()
		header.Set("Vary", "Origin")
		header.Set("Access-Control-Allow-Methods", joinedMethods)
		header.Set("Access-Control-Allow-Headers", joinedHeaders)
		if cfg.CORSAllowCredentials {
			header.Set("Access-Control-Allow-Credentials", "true")
		}

		if containsWildcard(allowedOrigins) && !cfg.CORSAllowCredentials {
			header.Set("Access-Control-Allow-Origin", "*")
		} else {
			header.Set("Access-Control-Allow-Origin", origin)
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func companyOrigins(c *gin.Context) []string {
	cc, ok := GetCompanyContext(c)
	if !ok || cc == nil {
		return nil
	}

	var origins []string
	if host := cc.Domain.Host; host != "" {
		origins = append(origins, "https://"+host, "http://"+host)
	}
	return origins
}

func buildAllowedOrigins(global []string, companySpecific []string) []string {
	if len(companySpecific) == 0 {
		return global
	}

	seen := make(map[string]struct{}, len(global)+len(companySpecific))
	var result []string
	for _, item := range append(global, companySpecific...) {
		if item == "" {
			continue
		}
		if _, exists := seen[item]; exists {
			continue
		}
		seen[item] = struct{}{}
		result = append(result, item)
	}
	return result
}

func originAllowed(origin string, allowed []string) bool {
	for _, candidate := range allowed {
		if candidate == "*" || strings.EqualFold(candidate, origin) {
			return true
		}
	}
	return false
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
