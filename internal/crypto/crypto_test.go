package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/metrics-cz/connect-auth/internal/domain"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	vault, err := NewVault("test-encryption-secret")
	require.NoError(t, err)
	return vault
}

func TestNewVault_EmptySecret(t *testing.T) {
	_, err := NewVault("  ")
	require.Error(t, err)
}

func TestVault_RoundTrip(t *testing.T) {
	vault := newTestVault(t)

	envelope, err := vault.Encrypt("hello metrics hub")
	require.NoError(t, err)
	require.Len(t, strings.Split(envelope, ":"), 4)

	plaintext, err := vault.Decrypt(envelope)
	require.NoError(t, err)
	require.Equal(t, "hello metrics hub", plaintext)
}

func TestVault_NonDeterministic(t *testing.T) {
	vault := newTestVault(t)

	first, err := vault.Encrypt("same input")
	require.NoError(t, err)
	second, err := vault.Encrypt("same input")
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	for _, envelope := range []string{first, second} {
		plaintext, err := vault.Decrypt(envelope)
		require.NoError(t, err)
		require.Equal(t, "same input", plaintext)
	}
}

func TestVault_TamperDetection(t *testing.T) {
	vault := newTestVault(t)

	envelope, err := vault.Encrypt("sensitive payload")
	require.NoError(t, err)

	// Flip one hex digit of the ciphertext section so the envelope still
	// parses but the tag no longer verifies.
	idx := strings.LastIndex(envelope, ":") + 1
	flipped := byte('0')
	if envelope[idx] == '0' {
		flipped = '1'
	}
	tampered := envelope[:idx] + string(flipped) + envelope[idx+1:]
	require.NotEqual(t, envelope, tampered)

	_, err = vault.Decrypt(tampered)
	require.ErrorIs(t, err, ErrAuthenticationFailure)
}

func TestVault_WrongSecret(t *testing.T) {
	vault := newTestVault(t)
	other, err := NewVault("rotated-secret")
	require.NoError(t, err)

	envelope, err := vault.Encrypt("payload")
	require.NoError(t, err)

	_, err = other.Decrypt(envelope)
	require.ErrorIs(t, err, ErrAuthenticationFailure)
}

func TestVault_MalformedEnvelope(t *testing.T) {
	vault := newTestVault(t)

	for _, envelope := range []string{
		"",
		"abc",
		"aa:bb:cc",
		"aa:bb:cc:dd:ee",
		"zz:bb:cc:dd",
	} {
		_, err := vault.Decrypt(envelope)
		require.ErrorIs(t, err, ErrMalformedEnvelope, "envelope %q", envelope)
	}
}

func TestVault_TokenBundleRoundTrip(t *testing.T) {
	vault := newTestVault(t)
	bundle := domain.TokenBundle{
		AccessToken:  "ya29.access",
		RefreshToken: "1//refresh",
		ExpiresAt:    1700000000000,
		Scope:        "https://www.googleapis.com/auth/analytics.readonly",
	}

	envelope, err := vault.EncryptTokens(bundle)
	require.NoError(t, err)

	decrypted, err := vault.DecryptTokens(envelope)
	require.NoError(t, err)
	require.Equal(t, bundle, decrypted)
}
