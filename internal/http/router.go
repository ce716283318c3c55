package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/metrics-cz/connect-auth/internal/company"
	"github.com/metrics-cz/connect-auth/internal/config"
	"github.com/metrics-cz/connect-auth/internal/http/handler"
	"github.com/metrics-cz/connect-auth/internal/http/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, connectionHandler *handler.ConnectionHandler, sessionMiddleware *middleware.Session, resolver *company.Resolver, rateLimiter *middleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(nil))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	google := r.Group("/connections/google")
	google.Use(middleware.Company(resolver))
	if rateLimiter != nil {
		google.Use(rateLimiter.Handler())
	}
	google.Use(middleware.CompanyCORS(cfg))
	{
		// Callback comes back from Google with no session attached; the
		// signed state ties it to the company instead.
		google.GET("/callback", connectionHandler.Callback)

		google.GET("/status", sessionMiddleware.ValidateSession, connectionHandler.Status)
		google.GET("/start", sessionMiddleware.ValidateSession, connectionHandler.Start)
		google.GET("/token", sessionMiddleware.ValidateSession, connectionHandler.Token)
		google.DELETE("", sessionMiddleware.ValidateSession, connectionHandler.Disconnect)
		google.GET("/bridge", sessionMiddleware.ValidateSession, connectionHandler.BridgeStream)
	}

	return r
}
