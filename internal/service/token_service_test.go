package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	oauthadapter "github.com/metrics-cz/connect-auth/internal/adapter/oauth"
	"github.com/metrics-cz/connect-auth/internal/config"
	"github.com/metrics-cz/connect-auth/internal/crypto"
	"github.com/metrics-cz/connect-auth/internal/domain"
)

func TestTokenService_NotConnected(t *testing.T) {
	h := newTokenTestHarness(t)

	bundle, err := h.service.GetTokens(context.Background(), 2)
	require.Nil(t, bundle)
	require.ErrorIs(t, err, domain.ErrNotConnected)
	require.Zero(t, h.provider.refreshCalls.Load())
}

func TestTokenService_FreshBundleReturnedVerbatim(t *testing.T) {
	h := newTokenTestHarness(t)
	stored := domain.TokenBundle{
		AccessToken:  "A1",
		RefreshToken: "R1",
		ExpiresAt:    h.now.Add(time.Hour).UnixMilli(),
		Scope:        "email",
	}
	h.store(t, 3, stored)

	bundle, err := h.service.GetTokens(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, &stored, bundle)
	require.Zero(t, h.provider.refreshCalls.Load())
	require.Zero(t, h.secrets.upserts.Load())
}

func TestTokenService_ExpiryBoundary(t *testing.T) {
	h := newTokenTestHarness(t)
	h.provider.refreshResp = &domain.TokenResponse{AccessToken: "A2", ExpiresIn: 3600}

	h.store(t, 1, domain.TokenBundle{
		AccessToken:  "A1",
		RefreshToken: "R1",
		ExpiresAt:    h.now.Add(-time.Millisecond).UnixMilli(),
	})
	_, err := h.service.GetTokens(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), h.provider.refreshCalls.Load())

	h.store(t, 1, domain.TokenBundle{
		AccessToken:  "A1",
		RefreshToken: "R1",
		ExpiresAt:    h.now.Add(time.Millisecond).UnixMilli(),
	})
	_, err = h.service.GetTokens(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), h.provider.refreshCalls.Load())
}

func TestTokenService_NoExpiryNeverRefreshes(t *testing.T) {
	h := newTokenTestHarness(t)
	h.store(t, 1, domain.TokenBundle{AccessToken: "A1"})

	bundle, err := h.service.GetTokens(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "A1", bundle.AccessToken)
	require.Zero(t, h.provider.refreshCalls.Load())
}

func TestTokenService_RefreshCarriesTokenForward(t *testing.T) {
	h := newTokenTestHarness(t)
	h.provider.refreshResp = &domain.TokenResponse{AccessToken: "A2", ExpiresIn: 3600}
	h.store(t, 1, domain.TokenBundle{
		AccessToken:  "A1",
		RefreshToken: "R1",
		ExpiresAt:    h.now.Add(-time.Minute).UnixMilli(),
		Scope:        "email",
	})

	bundle, err := h.service.GetTokens(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "A2", bundle.AccessToken)
	require.Equal(t, "R1", bundle.RefreshToken)
	require.Equal(t, "email", bundle.Scope)
	require.Equal(t, h.now.Add(time.Hour).UnixMilli(), bundle.ExpiresAt)

	// The store holds the re-encrypted form of the refreshed bundle.
	persisted := h.load(t, 1)
	require.Equal(t, *bundle, persisted)
}

func TestTokenService_RefreshRotatesTokenWhenProviderReturnsOne(t *testing.T) {
	h := newTokenTestHarness(t)
	h.provider.refreshResp = &domain.TokenResponse{AccessToken: "A2", RefreshToken: "R2", ExpiresIn: 60}
	h.store(t, 1, domain.TokenBundle{
		AccessToken:  "A1",
		RefreshToken: "R1",
		ExpiresAt:    h.now.Add(-time.Minute).UnixMilli(),
	})

	bundle, err := h.service.GetTokens(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "R2", bundle.RefreshToken)
	require.Equal(t, "R2", h.load(t, 1).RefreshToken)
}

func TestTokenService_ExpiredWithoutRefreshToken(t *testing.T) {
	h := newTokenTestHarness(t)
	h.store(t, 1, domain.TokenBundle{
		AccessToken: "A1",
		ExpiresAt:   h.now.Add(-time.Minute).UnixMilli(),
	})

	bundle, err := h.service.GetTokens(context.Background(), 1)
	require.Nil(t, bundle)
	require.ErrorIs(t, err, domain.ErrRefreshFailure)
	require.Zero(t, h.provider.refreshCalls.Load())
}

func TestTokenService_RefreshFailure(t *testing.T) {
	h := newTokenTestHarness(t)
	h.provider.refreshErr = &oauthadapter.ProviderError{Status: 400, Code: "invalid_grant"}
	h.store(t, 1, domain.TokenBundle{
		AccessToken:  "A1",
		RefreshToken: "R1",
		ExpiresAt:    h.now.Add(-time.Minute).UnixMilli(),
	})

	bundle, err := h.service.GetTokens(context.Background(), 1)
	require.Nil(t, bundle)
	require.ErrorIs(t, err, domain.ErrRefreshFailure)
}

func TestTokenService_DecryptionFailure(t *testing.T) {
	h := newTokenTestHarness(t)
	require.NoError(t, h.secrets.Upsert(context.Background(), 1, domain.GoogleTokensKey(1), "aa:bb:cc:dd"))

	bundle, err := h.service.GetTokens(context.Background(), 1)
	require.Nil(t, bundle)
	require.ErrorIs(t, err, domain.ErrDecryptionFailure)
	require.Zero(t, h.provider.refreshCalls.Load())
}

func TestTokenService_StorageFailureAfterRefreshStillReturnsBundle(t *testing.T) {
	h := newTokenTestHarness(t)
	h.provider.refreshResp = &domain.TokenResponse{AccessToken: "A2", ExpiresIn: 3600}
	h.store(t, 1, domain.TokenBundle{
		AccessToken:  "A1",
		RefreshToken: "R1",
		ExpiresAt:    h.now.Add(-time.Minute).UnixMilli(),
	})
	h.secrets.failUpserts = true

	bundle, err := h.service.GetTokens(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "A2", bundle.AccessToken)
}

func TestTokenService_ConcurrentRefreshDeduplicated(t *testing.T) {
	h := newTokenTestHarness(t)
	h.provider.refreshResp = &domain.TokenResponse{AccessToken: "A2", ExpiresIn: 3600}
	h.provider.delay = 20 * time.Millisecond
	h.store(t, 1, domain.TokenBundle{
		AccessToken:  "A1",
		RefreshToken: "R1",
		ExpiresAt:    h.now.Add(-time.Minute).UnixMilli(),
	})

	const callers = 8
	results := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bundle, err := h.service.GetTokens(context.Background(), 1)
			if err == nil && bundle.AccessToken != "A2" {
				err = fmt.Errorf("unexpected access token %q", bundle.AccessToken)
			}
			results <- err
		}()
	}
	wg.Wait()
	close(results)
	for err := range results {
		require.NoError(t, err)
	}
	require.Equal(t, int64(1), h.provider.refreshCalls.Load())
}

func TestTokenService_GrantOmitsRefreshToken(t *testing.T) {
	h := newTokenTestHarness(t)
	h.store(t, 1, domain.TokenBundle{
		AccessToken:  "A1",
		RefreshToken: "R1",
		ExpiresAt:    h.now.Add(time.Hour).UnixMilli(),
		Scope:        "email",
	})

	grant, err := h.service.Grant(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, &domain.AccessGrant{
		AccessToken: "A1",
		ExpiresAt:   h.now.Add(time.Hour).UnixMilli(),
		Scope:       "email",
	}, grant)
}

func TestTokenService_Status(t *testing.T) {
	h := newTokenTestHarness(t)
	ctx := context.Background()

	status, err := h.service.Status(ctx, 9)
	require.NoError(t, err)
	require.Equal(t, domain.ConnectionNotConnected, status.State)

	h.store(t, 9, domain.TokenBundle{AccessToken: "A1", RefreshToken: "R1", ExpiresAt: h.now.Add(time.Hour).UnixMilli()})
	status, err = h.service.Status(ctx, 9)
	require.NoError(t, err)
	require.Equal(t, domain.ConnectionConnected, status.State)

	h.store(t, 9, domain.TokenBundle{AccessToken: "A1", ExpiresAt: h.now.Add(-time.Hour).UnixMilli()})
	status, err = h.service.Status(ctx, 9)
	require.NoError(t, err)
	require.Equal(t, domain.ConnectionExpired, status.State)
}

func TestTokenService_Disconnect(t *testing.T) {
	h := newTokenTestHarness(t)
	ctx := context.Background()
	h.store(t, 1, domain.TokenBundle{AccessToken: "A1", RefreshToken: "R1"})

	require.NoError(t, h.service.Disconnect(ctx, 1))
	require.Equal(t, int64(1), h.provider.revokeCalls.Load())
	_, err := h.secrets.Get(ctx, 1, domain.GoogleTokensKey(1))
	require.ErrorIs(t, err, pgx.ErrNoRows)

	// Disconnecting an unconnected company is a no-op.
	require.NoError(t, h.service.Disconnect(ctx, 1))
}

// ---- Test harness and fakes ----

type tokenTestHarness struct {
	service  *TokenService
	secrets  *memorySecretRepo
	provider *fakeProviderClient
	vault    *crypto.Vault
	now      time.Time
}

func newTokenTestHarness(t *testing.T) *tokenTestHarness {
	t.Helper()
	vault, err := crypto.NewVault("harness-secret")
	require.NoError(t, err)

	secrets := newMemorySecretRepo()
	provider := &fakeProviderClient{}
	cfg := config.Config{
		GoogleTokenURL:     "https://example.com/token",
		GoogleRevokeURL:    "https://example.com/revoke",
		GoogleClientID:     "client",
		GoogleClientSecret: "secret",
		ProviderTimeout:    time.Second,
	}
	svc := NewTokenService(secrets, vault, provider, cfg, zap.NewNop())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	return &tokenTestHarness{service: svc, secrets: secrets, provider: provider, vault: vault, now: now}
}

func (h *tokenTestHarness) store(t *testing.T, companyID int64, bundle domain.TokenBundle) {
	t.Helper()
	envelope, err := h.vault.EncryptTokens(bundle)
	require.NoError(t, err)
	require.NoError(t, h.secrets.Upsert(context.Background(), companyID, domain.GoogleTokensKey(companyID), envelope))
	h.secrets.upserts.Store(0)
}

func (h *tokenTestHarness) load(t *testing.T, companyID int64) domain.TokenBundle {
	t.Helper()
	secret, err := h.secrets.Get(context.Background(), companyID, domain.GoogleTokensKey(companyID))
	require.NoError(t, err)
	bundle, err := h.vault.DecryptTokens(secret.Value)
	require.NoError(t, err)
	return bundle
}

type memorySecretRepo struct {
	mu          sync.Mutex
	data        map[string]domain.EncryptedSecret
	failUpserts bool
	upserts     atomic.Int64
}

func newMemorySecretRepo() *memorySecretRepo {
	return &memorySecretRepo{data: map[string]domain.EncryptedSecret{}}
}

func secretMapKey(companyID int64, key string) string {
	return fmt.Sprintf("%d/%s", companyID, key)
}

func (m *memorySecretRepo) Get(_ context.Context, companyID int64, key string) (domain.EncryptedSecret, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if secret, ok := m.data[secretMapKey(companyID, key)]; ok {
		return secret, nil
	}
	return domain.EncryptedSecret{}, fmt.Errorf("get secret: %w", pgx.ErrNoRows)
}

func (m *memorySecretRepo) Upsert(_ context.Context, companyID int64, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpserts {
		return fmt.Errorf("upsert secret: connection reset")
	}
	m.upserts.Add(1)
	m.data[secretMapKey(companyID, key)] = domain.EncryptedSecret{
		CompanyID: companyID,
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}
	return nil
}

func (m *memorySecretRepo) Delete(_ context.Context, companyID int64, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, secretMapKey(companyID, key))
	return nil
}

type fakeProviderClient struct {
	refreshResp  *domain.TokenResponse
	refreshErr   error
	delay        time.Duration
	refreshCalls atomic.Int64
	revokeCalls  atomic.Int64
}

func (f *fakeProviderClient) ExchangeCode(context.Context, oauthadapter.Endpoint, string, string, string) (*domain.TokenResponse, error) {
	return nil, fmt.Errorf("exchange not configured")
}

func (f *fakeProviderClient) RefreshToken(context.Context, oauthadapter.Endpoint, string) (*domain.TokenResponse, error) {
	f.refreshCalls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	if f.refreshResp == nil {
		return nil, fmt.Errorf("refresh not configured")
	}
	resp := *f.refreshResp
	return &resp, nil
}

func (f *fakeProviderClient) RevokeToken(context.Context, oauthadapter.Endpoint, string) error {
	f.revokeCalls.Add(1)
	return nil
}
