package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/metrics-cz/connect-auth/internal/domain"
)

const (
	kdfTime    uint32 = 1
	kdfMemory  uint32 = 64 * 1024
	kdfThreads uint8  = 4
	kdfKeyLen  uint32 = 32

	ivLen   = 16
	saltLen = 16
	tagLen  = 16

	envelopeParts = 4
	separator     = ":"
)

var (
	// ErrMalformedEnvelope indicates the envelope does not split into the
	// expected iv:tag:salt:ciphertext parts.
	ErrMalformedEnvelope = errors.New("crypto: malformed envelope")
	// ErrAuthenticationFailure indicates the GCM tag did not verify, so the
	// ciphertext was tampered with or encrypted under a different secret.
	ErrAuthenticationFailure = errors.New("crypto: authentication failure")
)

// Vault performs authenticated encryption of token payloads with a per-call
// key derived from the process-wide secret and a fresh random salt.
type Vault struct {
	secret []byte
}

// NewVault constructs a Vault. The secret is required; config validates this
// at startup so an empty value here is a programming error.
func NewVault(secret string) (*Vault, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("crypto: empty encryption secret")
	}
	return &Vault{secret: []byte(secret)}, nil
}

// Encrypt seals plaintext into an iv:tag:salt:ciphertext hex envelope. Every
// call draws a fresh IV and salt, so identical inputs produce distinct
// envelopes.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, ivLen)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	aead, err := v.aead(salt)
	if err != nil {
		return "", err
	}

	sealed := aead.Seal(nil, iv, []byte(plaintext), nil)
	if len(sealed) < tagLen {
		return "", fmt.Errorf("sealed payload too short")
	}
	ciphertext := sealed[:len(sealed)-tagLen]
	tag := sealed[len(sealed)-tagLen:]

	return strings.Join([]string{
		hex.EncodeToString(iv),
		hex.EncodeToString(tag),
		hex.EncodeToString(salt),
		hex.EncodeToString(ciphertext),
	}, separator), nil
}

// Decrypt reverses Encrypt. It fails with ErrMalformedEnvelope when the
// envelope cannot be parsed and ErrAuthenticationFailure when the tag does
// not verify. Plaintext and key material are never logged here or upstream.
func (v *Vault) Decrypt(envelope string) (string, error) {
	parts := strings.Split(envelope, separator)
	if len(parts) != envelopeParts {
		return "", ErrMalformedEnvelope
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != ivLen {
		return "", ErrMalformedEnvelope
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagLen {
		return "", ErrMalformedEnvelope
	}
	salt, err := hex.DecodeString(parts[2])
	if err != nil || len(salt) != saltLen {
		return "", ErrMalformedEnvelope
	}
	ciphertext, err := hex.DecodeString(parts[3])
	if err != nil {
		return "", ErrMalformedEnvelope
	}

	aead, err := v.aead(salt)
	if err != nil {
		return "", err
	}

	plaintext, err := aead.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return "", ErrAuthenticationFailure
	}
	return string(plaintext), nil
}

// EncryptTokens serializes and seals a token bundle.
func (v *Vault) EncryptTokens(bundle domain.TokenBundle) (string, error) {
	payload, err := json.Marshal(bundle)
	if err != nil {
		return "", fmt.Errorf("marshal tokens: %w", err)
	}
	return v.Encrypt(string(payload))
}

// DecryptTokens opens an envelope and deserializes the token bundle.
func (v *Vault) DecryptTokens(envelope string) (domain.TokenBundle, error) {
	plaintext, err := v.Decrypt(envelope)
	if err != nil {
		return domain.TokenBundle{}, err
	}
	var bundle domain.TokenBundle
	if err := json.Unmarshal([]byte(plaintext), &bundle); err != nil {
		return domain.TokenBundle{}, fmt.Errorf("unmarshal tokens: %w", err)
	}
	return bundle, nil
}

func (v *Vault) aead(salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey(v.secret, salt, kdfTime, kdfMemory, kdfThreads, kdfKeyLen)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, ivLen)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return aead, nil
}
