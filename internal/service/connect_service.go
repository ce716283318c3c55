package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	oauthadapter "github.com/metrics-cz/connect-auth/internal/adapter/oauth"
	"github.com/metrics-cz/connect-auth/internal/config"
	"github.com/metrics-cz/connect-auth/internal/domain"
	"github.com/metrics-cz/connect-auth/internal/repository"
)

const statePrefix = "connect:state:"

var defaultScopes = []string{
	"https://www.googleapis.com/auth/analytics.readonly",
	"https://www.googleapis.com/auth/adwords",
	"https://www.googleapis.com/auth/webmasters.readonly",
}

// StartConnectionInput contains parameters for constructing consent URLs.
type StartConnectionInput struct {
	RedirectURI string
	Scopes      []string
}

// StartConnectionOutput returns the prepared consent URL and state.
type StartConnectionOutput struct {
	AuthorizationURL string
	State            string
}

// CallbackInput captures consent callback query parameters.
type CallbackInput struct {
	Code        string
	State       string
	RedirectURI string
}

// ConnectService walks a company through the Google consent flow and stores
// the resulting encrypted token bundle.
type ConnectService struct {
	stateStore repository.ConsentStateStore
	provider   oauthadapter.ProviderClient
	tokens     *TokenService
	endpoint   oauthadapter.Endpoint
	stateTTL   time.Duration
	timeout    time.Duration
	logger     *zap.Logger

	now func() time.Time
}

// NewConnectService wires the consent flow.
func NewConnectService(
	stateStore repository.ConsentStateStore,
	provider oauthadapter.ProviderClient,
	tokens *TokenService,
	cfg config.Config,
	logger *zap.Logger,
) *ConnectService {
	return &ConnectService{
		stateStore: stateStore,
		provider:   provider,
		tokens:     tokens,
		endpoint: oauthadapter.Endpoint{
			AuthURL:      cfg.GoogleAuthURL,
			TokenURL:     cfg.GoogleTokenURL,
			RevokeURL:    cfg.GoogleRevokeURL,
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
		},
		stateTTL: cfg.ConsentStateTTL,
		timeout:  cfg.ProviderTimeout,
		logger:   logger,
		now:      time.Now,
	}
}

// Start builds the provider consent URL and persists the state/PKCE tuple.
func (s *ConnectService) Start(ctx context.Context, companyID int64, in StartConnectionInput) (*StartConnectionOutput, error) {
	redirect := strings.TrimSpace(in.RedirectURI)
	if redirect == "" {
		return nil, domain.ErrInvalidRequest
	}

	state, err := secureRandomString(32)
	if err != nil {
		return nil, fmt.Errorf("generate state: %w", err)
	}
	codeVerifier, err := secureRandomString(64)
	if err != nil {
		return nil, fmt.Errorf("generate pkce verifier: %w", err)
	}

	authURL, err := url.Parse(s.endpoint.AuthURL)
	if err != nil {
		return nil, fmt.Errorf("parse auth url: %w", err)
	}

	scopes := in.Scopes
	if len(scopes) == 0 {
		scopes = defaultScopes
	}

	params := authURL.Query()
	params.Set("client_id", s.endpoint.ClientID)
	params.Set("response_type", "code")
	params.Set("redirect_uri", redirect)
	params.Set("scope", strings.Join(scopes, " "))
	params.Set("state", state)
	params.Set("code_challenge", pkceChallenge(codeVerifier))
	params.Set("code_challenge_method", "S256")
	// Offline access is what yields a refresh token; without the consent
	// prompt Google omits it on repeat grants.
	params.Set("access_type", "offline")
	params.Set("prompt", "consent")
	authURL.RawQuery = params.Encode()

	payload := domain.ConsentState{
		State:        state,
		CodeVerifier: codeVerifier,
		RedirectURI:  redirect,
		CompanyID:    companyID,
		Scopes:       scopes,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.stateStore.SaveState(ctx, buildStateKey(state), payload, s.stateTTL); err != nil {
		return nil, fmt.Errorf("persist state: %w", err)
	}

	return &StartConnectionOutput{AuthorizationURL: authURL.String(), State: state}, nil
}

// Callback validates state, exchanges the code and persists the encrypted
// bundle as the company's connection secret.
func (s *ConnectService) Callback(ctx context.Context, companyID int64, in CallbackInput) (domain.ConnectionStatus, error) {
	if strings.TrimSpace(in.State) == "" || strings.TrimSpace(in.Code) == "" {
		return domain.ConnectionStatus{}, domain.ErrInvalidRequest
	}

	stateKey := buildStateKey(in.State)
	state, err := s.stateStore.GetState(ctx, stateKey)
	if err != nil {
		return domain.ConnectionStatus{}, fmt.Errorf("load state: %w", err)
	}
	if state == nil {
		return domain.ConnectionStatus{}, domain.ErrInvalidState
	}
	defer func() {
		if err := s.stateStore.DeleteState(ctx, stateKey); err != nil {
			s.log().Warn("failed to delete consent state", zap.Error(err))
		}
	}()

	if state.CompanyID != companyID {
		return domain.ConnectionStatus{}, domain.ErrInvalidState
	}
	expectedRedirect := strings.TrimSpace(state.RedirectURI)
	actualRedirect := strings.TrimSpace(in.RedirectURI)
	if expectedRedirect != "" && actualRedirect != "" && expectedRedirect != actualRedirect {
		return domain.ConnectionStatus{}, domain.ErrInvalidState
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	resp, err := s.provider.ExchangeCode(callCtx, s.endpoint, in.Code, state.CodeVerifier, expectedRedirect)
	if err != nil {
		return domain.ConnectionStatus{}, fmt.Errorf("exchange code: %w", err)
	}

	bundle := domain.TokenBundle{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		Scope:        resp.Scope,
	}
	if bundle.Scope == "" {
		bundle.Scope = strings.Join(state.Scopes, " ")
	}
	if resp.ExpiresIn > 0 {
		bundle.ExpiresAt = s.now().Add(time.Duration(resp.ExpiresIn) * time.Second).UnixMilli()
	}

	if err := s.tokens.Store(ctx, companyID, bundle); err != nil {
		return domain.ConnectionStatus{}, fmt.Errorf("persist connection: %w", err)
	}

	s.log().Info("company connected",
		zap.Int64("company_id", companyID),
		zap.String("scope", bundle.Scope),
		zap.Bool("has_refresh_token", bundle.RefreshToken != ""),
	)

	return domain.ConnectionStatus{
		State:     domain.ConnectionConnected,
		Scope:     bundle.Scope,
		ExpiresAt: bundle.ExpiresAt,
	}, nil
}

func (s *ConnectService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}

func buildStateKey(state string) string {
	return statePrefix + strings.TrimSpace(state)
}

func secureRandomString(size int) (string, error) {
	if size <= 0 {
		size = 32
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func pkceChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
