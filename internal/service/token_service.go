package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	oauthadapter "github.com/metrics-cz/connect-auth/internal/adapter/oauth"
	"github.com/metrics-cz/connect-auth/internal/config"
	"github.com/metrics-cz/connect-auth/internal/crypto"
	"github.com/metrics-cz/connect-auth/internal/domain"
	"github.com/metrics-cz/connect-auth/internal/repository"
)

// TokenService returns currently-valid token bundles for companies,
// transparently refreshing expired ones. Every unrecoverable state is
// normalized to a nil bundle plus a sentinel error kind; callers never see
// raw provider or storage errors.
type TokenService struct {
	secrets  repository.SecretRepository
	vault    *crypto.Vault
	provider oauthadapter.ProviderClient
	endpoint oauthadapter.Endpoint
	timeout  time.Duration
	logger   *zap.Logger

	// refreshes de-duplicates concurrent refresh attempts per company so a
	// burst of proxy calls triggers a single provider exchange.
	refreshes singleflight.Group

	now func() time.Time
}

// NewTokenService wires the token accessor/refresher.
func NewTokenService(
	secrets repository.SecretRepository,
	vault *crypto.Vault,
	provider oauthadapter.ProviderClient,
	cfg config.Config,
	logger *zap.Logger,
) *TokenService {
	return &TokenService{
		secrets:  secrets,
		vault:    vault,
		provider: provider,
		endpoint: oauthadapter.Endpoint{
			AuthURL:      cfg.GoogleAuthURL,
			TokenURL:     cfg.GoogleTokenURL,
			RevokeURL:    cfg.GoogleRevokeURL,
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
		},
		timeout: cfg.ProviderTimeout,
		logger:  logger,
		now:     time.Now,
	}
}

// GetTokens returns a valid bundle for the company. A nil bundle means the
// caller must route the user toward re-authentication; the error kind tells
// tests and logs apart (absent vs corrupt vs refresh-failed) while every
// consumer treats them uniformly.
func (s *TokenService) GetTokens(ctx context.Context, companyID int64) (*domain.TokenBundle, error) {
	secret, err := s.secrets.Get(ctx, companyID, domain.GoogleTokensKey(companyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotConnected
		}
		s.log().Error("secret store read failed", zap.Int64("company_id", companyID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageFailure, err)
	}

	bundle, err := s.vault.DecryptTokens(secret.Value)
	if err != nil {
		// Corruption or a key rotation mismatch. Operational concern, but
		// the user just sees "not connected".
		s.log().Error("stored tokens unreadable", zap.Int64("company_id", companyID), zap.Error(err))
		return nil, domain.ErrDecryptionFailure
	}

	if !bundle.Expired(s.now()) {
		return &bundle, nil
	}

	if !bundle.Renewable() {
		s.log().Info("access token expired with no refresh token", zap.Int64("company_id", companyID))
		return nil, fmt.Errorf("%w: no refresh token", domain.ErrRefreshFailure)
	}

	refreshed, err := s.refreshShared(ctx, companyID, bundle)
	if err != nil {
		return nil, err
	}
	return refreshed, nil
}

// Grant returns the restricted token shape exposed to API proxy routes and
// the iframe bridge. The refresh token never leaves this service.
func (s *TokenService) Grant(ctx context.Context, companyID int64) (*domain.AccessGrant, error) {
	bundle, err := s.GetTokens(ctx, companyID)
	if err != nil || bundle == nil {
		return nil, err
	}
	grant := bundle.Grant()
	return &grant, nil
}

// Status reports the connection state for the dashboard without triggering
// a refresh.
func (s *TokenService) Status(ctx context.Context, companyID int64) (domain.ConnectionStatus, error) {
	secret, err := s.secrets.Get(ctx, companyID, domain.GoogleTokensKey(companyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ConnectionStatus{State: domain.ConnectionNotConnected}, nil
		}
		return domain.ConnectionStatus{}, fmt.Errorf("load connection: %w", err)
	}

	bundle, err := s.vault.DecryptTokens(secret.Value)
	if err != nil {
		s.log().Error("stored tokens unreadable", zap.Int64("company_id", companyID), zap.Error(err))
		return domain.ConnectionStatus{State: domain.ConnectionNotConnected}, nil
	}

	state := domain.ConnectionConnected
	if bundle.Expired(s.now()) && !bundle.Renewable() {
		state = domain.ConnectionExpired
	}
	return domain.ConnectionStatus{
		State:     state,
		Scope:     bundle.Scope,
		ExpiresAt: bundle.ExpiresAt,
	}, nil
}

// Store encrypts and persists a bundle as the company's connection secret.
// Used by the consent callback and by refresh.
func (s *TokenService) Store(ctx context.Context, companyID int64, bundle domain.TokenBundle) error {
	envelope, err := s.vault.EncryptTokens(bundle)
	if err != nil {
		return fmt.Errorf("encrypt tokens: %w", err)
	}
	if err := s.secrets.Upsert(ctx, companyID, domain.GoogleTokensKey(companyID), envelope); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorageFailure, err)
	}
	return nil
}

// Disconnect drops the stored secret after a best-effort provider revoke.
func (s *TokenService) Disconnect(ctx context.Context, companyID int64) error {
	secret, err := s.secrets.Get(ctx, companyID, domain.GoogleTokensKey(companyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("load connection: %w", err)
	}

	if bundle, err := s.vault.DecryptTokens(secret.Value); err == nil {
		token := bundle.RefreshToken
		if token == "" {
			token = bundle.AccessToken
		}
		revokeCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		if err := s.provider.RevokeToken(revokeCtx, s.endpoint, token); err != nil {
			s.log().Warn("provider revoke failed", zap.Int64("company_id", companyID), zap.Error(err))
		}
	}

	if err := s.secrets.Delete(ctx, companyID, domain.GoogleTokensKey(companyID)); err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	return nil
}

func (s *TokenService) refreshShared(ctx context.Context, companyID int64, stale domain.TokenBundle) (*domain.TokenBundle, error) {
	result, err, _ := s.refreshes.Do(strconv.FormatInt(companyID, 10), func() (any, error) {
		return s.refresh(ctx, companyID, stale)
	})
	if err != nil {
		return nil, err
	}
	return result.(*domain.TokenBundle), nil
}

// refresh exchanges the refresh token at the provider and persists the new
// bundle. A persistence failure after a successful exchange is logged loudly
// but the in-memory bundle is still returned; the next call simply refreshes
// again.
func (s *TokenService) refresh(ctx context.Context, companyID int64, stale domain.TokenBundle) (*domain.TokenBundle, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.provider.RefreshToken(callCtx, s.endpoint, stale.RefreshToken)
	if err != nil {
		var providerErr *oauthadapter.ProviderError
		if errors.As(err, &providerErr) {
			s.log().Warn("provider rejected refresh",
				zap.Int64("company_id", companyID),
				zap.Int("status", providerErr.Status),
				zap.String("provider_error", providerErr.Code),
				zap.String("body", providerErr.Body),
			)
		} else {
			s.log().Warn("token refresh failed", zap.Int64("company_id", companyID), zap.Error(err))
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrRefreshFailure, err)
	}

	received := s.now()
	result := domain.RefreshResult{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		Scope:        resp.Scope,
	}
	if resp.ExpiresIn > 0 {
		// Expiry is anchored to the wall clock at response time.
		result.ExpiresAt = received.Add(time.Duration(resp.ExpiresIn) * time.Second).UnixMilli()
	}
	// Rotation-less refresh keeps the old refresh token; dropping it would
	// permanently strand the connection.
	if result.RefreshToken == "" {
		result.RefreshToken = stale.RefreshToken
	}
	if result.Scope == "" {
		result.Scope = stale.Scope
	}

	bundle := result.Bundle()
	if err := s.Store(ctx, companyID, bundle); err != nil {
		s.log().Error("refreshed tokens not persisted; next call will refresh again",
			zap.Int64("company_id", companyID),
			zap.Error(err),
		)
	}
	return &bundle, nil
}

func (s *TokenService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
