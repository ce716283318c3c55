package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/metrics-cz/connect-auth/internal/company"
	"github.com/metrics-cz/connect-auth/internal/domain"
	"github.com/metrics-cz/connect-auth/internal/http/middleware"
	"github.com/metrics-cz/connect-auth/internal/service"
)

// ConnectionHandler exposes the Google connection lifecycle over HTTP.
type ConnectionHandler struct {
	Tokens  *service.TokenService
	Connect *service.ConnectService
	Bridge  *service.Bridge
}

// NewConnectionHandler creates the handler set.
func NewConnectionHandler(tokens *service.TokenService, connect *service.ConnectService, bridge *service.Bridge) *ConnectionHandler {
	return &ConnectionHandler{Tokens: tokens, Connect: connect, Bridge: bridge}
}

// Status reports the company's connection state for the dashboard.
func (h *ConnectionHandler) Status(c *gin.Context) {
	companyCtx, ok := requireCompany(c)
	if !ok {
		return
	}

	status, err := h.Tokens.Status(c.Request.Context(), companyCtx.Company.ID)
	if err != nil {
		h.respondConnectionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"state":      status.State,
		"scope":      status.Scope,
		"expires_at": status.ExpiresAt,
	})
}

// Start builds the Google consent URL for the company.
func (h *ConnectionHandler) Start(c *gin.Context) {
	companyCtx, ok := requireCompany(c)
	if !ok {
		return
	}

	redirectURI := strings.TrimSpace(c.Query("redirect_uri"))
	if redirectURI == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "redirect_uri is required."})
		return
	}
	var scopes []string
	if scopeParam := strings.TrimSpace(c.Query("scope")); scopeParam != "" {
		scopes = strings.Fields(scopeParam)
	}

	output, err := h.Connect.Start(c.Request.Context(), companyCtx.Company.ID, service.StartConnectionInput{
		RedirectURI: redirectURI,
		Scopes:      scopes,
	})
	if err != nil {
		h.respondConnectionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"authorization_url": output.AuthorizationURL,
		"state":             output.State,
	})
}

// Callback completes the consent flow and stores the encrypted bundle.
func (h *ConnectionHandler) Callback(c *gin.Context) {
	companyCtx, ok := requireCompany(c)
	if !ok {
		return
	}

	if provErr := strings.TrimSpace(c.Query("error")); provErr != "" {
		zap.L().Warn("consent denied by provider",
			zap.Int64("company_id", companyCtx.Company.ID),
			zap.String("provider_error", provErr))
		c.JSON(http.StatusBadRequest, gin.H{"error": "consent_denied", "error_description": "Google consent was not granted."})
		return
	}

	input := service.CallbackInput{
		Code:        c.Query("code"),
		State:       c.Query("state"),
		RedirectURI: c.Query("redirect_uri"),
	}
	if strings.TrimSpace(input.Code) == "" || strings.TrimSpace(input.State) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "code and state are required."})
		return
	}

	status, err := h.Connect.Callback(c.Request.Context(), companyCtx.Company.ID, input)
	if err != nil {
		h.respondConnectionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"state":      status.State,
		"scope":      status.Scope,
		"expires_at": status.ExpiresAt,
	})
}

// Token hands out a restricted access grant for API proxy calls. The
// refresh token never crosses this boundary.
func (h *ConnectionHandler) Token(c *gin.Context) {
	companyCtx, ok := requireCompany(c)
	if !ok {
		return
	}

	grant, err := h.Tokens.Grant(c.Request.Context(), companyCtx.Company.ID)
	if err != nil {
		h.respondConnectionError(c, err)
		return
	}
	c.JSON(http.StatusOK, grant)
}

// Disconnect revokes and removes the company's stored connection.
func (h *ConnectionHandler) Disconnect(c *gin.Context) {
	companyCtx, ok := requireCompany(c)
	if !ok {
		return
	}

	if err := h.Tokens.Disconnect(c.Request.Context(), companyCtx.Company.ID); err != nil {
		h.respondConnectionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": domain.ConnectionNotConnected})
}

// BridgeStream feeds access grants to the embedded dashboard over SSE.
// The stream ends when the connection becomes unrecoverable or the client
// goes away.
func (h *ConnectionHandler) BridgeStream(c *gin.Context) {
	companyCtx, ok := requireCompany(c)
	if !ok {
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	grants := h.Bridge.Subscribe(c.Request.Context(), companyCtx.Company.ID)
	c.Stream(func(w io.Writer) bool {
		grant, open := <-grants
		if !open {
			c.SSEvent("disconnected", gin.H{"state": domain.ConnectionNotConnected})
			return false
		}
		c.SSEvent("grant", grant)
		return true
	})
}

func requireCompany(c *gin.Context) (*company.Context, bool) {
	companyCtx, ok := middleware.GetCompanyContext(c)
	if !ok || companyCtx == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "invalid_company", "error_description": "Company could not be resolved."})
		return nil, false
	}
	return companyCtx, true
}

func (h *ConnectionHandler) respondConnectionError(c *gin.Context, err error) {
	logger := zap.L()
	switch {
	case errors.Is(err, domain.ErrNotConnected):
		c.JSON(http.StatusOK, gin.H{"state": domain.ConnectionNotConnected})
	case errors.Is(err, domain.ErrDecryptionFailure), errors.Is(err, domain.ErrRefreshFailure):
		logger.Warn("connection unusable", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"state": domain.ConnectionNotConnected})
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrInvalidRequest):
		logger.Warn("connection invalid request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": err.Error()})
	case errors.Is(err, domain.ErrStorageFailure):
		logger.Error("connection storage failure", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Internal server error."})
	default:
		logger.Error("connection service failure", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Internal server error."})
	}
}
