package repository

import (
	"context"
	"time"

	"github.com/metrics-cz/connect-auth/internal/domain"
)

// SecretRepository is the secret store consumed by the token service. Get
// reports absence with pgx.ErrNoRows; Upsert replaces the whole encrypted
// blob in a single statement.
type SecretRepository interface {
	Get(ctx context.Context, companyID int64, key string) (domain.EncryptedSecret, error)
	Upsert(ctx context.Context, companyID int64, key, value string) error
	Delete(ctx context.Context, companyID int64, key string) error
}

// CompanyRepository exposes tenant lookups.
type CompanyRepository interface {
	GetCompany(ctx context.Context, companyID int64) (domain.Company, error)
	GetCompanyBySlug(ctx context.Context, slug string) (domain.Company, error)
	GetDomainByHost(ctx context.Context, host string) (domain.CompanyDomain, error)
}

// ConsentStateStore persists short-lived OAuth consent state.
type ConsentStateStore interface {
	SaveState(ctx context.Context, key string, data domain.ConsentState, ttl time.Duration) error
	GetState(ctx context.Context, key string) (*domain.ConsentState, error)
	DeleteState(ctx context.Context, key string) error
}
