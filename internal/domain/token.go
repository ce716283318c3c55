package domain

import "time"

// TokenBundle is the decrypted OAuth credential set for a company. It only
// ever lives in memory; persistence goes through the crypto envelope.
type TokenBundle struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	// ExpiresAt is epoch milliseconds. Zero means the token never expires
	// as far as we know; provider-side revocation can still invalidate it.
	ExpiresAt int64  `json:"expires_at,omitempty"`
	Scope     string `json:"scope,omitempty"`
}

// Expired reports whether the bundle's access token is past its expiry at
// the given instant. A bundle without an expiry never reports expired.
func (b TokenBundle) Expired(now time.Time) bool {
	if b.ExpiresAt == 0 {
		return false
	}
	return now.UnixMilli() >= b.ExpiresAt
}

// Renewable reports whether the bundle can be silently refreshed.
func (b TokenBundle) Renewable() bool {
	return b.RefreshToken != ""
}

// AccessGrant is the restricted token shape handed to API proxy routes and
// the iframe bridge. It deliberately omits the refresh token.
type AccessGrant struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at,omitempty"`
	Scope       string `json:"scope,omitempty"`
}

// Grant derives the restricted shape from a bundle.
func (b TokenBundle) Grant() AccessGrant {
	return AccessGrant{
		AccessToken: b.AccessToken,
		ExpiresAt:   b.ExpiresAt,
		Scope:       b.Scope,
	}
}

// RefreshResult models a successful provider token-endpoint exchange.
// ExpiresAt is computed from the wall clock at response time, never copied
// from the stale bundle.
type RefreshResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    int64
	Scope        string
}

// Bundle converts the refresh result into a persistable token bundle.
func (r RefreshResult) Bundle() TokenBundle {
	return TokenBundle{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    r.ExpiresAt,
		Scope:        r.Scope,
	}
}
