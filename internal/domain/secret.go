package domain

import (
	"fmt"
	"time"
)

// GoogleTokensKeyPrefix is the secret-store discriminator for Google OAuth
// token bundles. The full key is scoped per company.
const GoogleTokensKeyPrefix = "google_oauth_tokens_"

// GoogleTokensKey builds the deterministic secret-store key for a company.
func GoogleTokensKey(companyID int64) string {
	return fmt.Sprintf("%s%d", GoogleTokensKeyPrefix, companyID)
}

// EncryptedSecret is one opaque encrypted credential blob owned by a company.
// The value is always a crypto envelope produced by internal/crypto; nothing
// else writes it and only the token service reads it back.
type EncryptedSecret struct {
	ID        int64
	CompanyID int64
	Key       string
	Value     string
	UpdatedAt time.Time
}
