package repository

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/metrics-cz/connect-auth/internal/domain"
)

// Compile-time interface assertions.
var (
	_ SecretRepository  = (*PostgresSecretRepo)(nil)
	_ CompanyRepository = (*PostgresCompanyRepo)(nil)
)

// PostgresSecretRepo implements SecretRepository on pgx.
type PostgresSecretRepo struct {
	db   *pgxpool.Pool
	node *snowflake.Node
}

func NewPostgresSecretRepo(pool *pgxpool.Pool, node *snowflake.Node) *PostgresSecretRepo {
	return &PostgresSecretRepo{db: pool, node: node}
}

const getSecretSQL = `SELECT id, company_id, key, value, updated_at
FROM company_secrets
WHERE company_id = $1 AND key = $2
LIMIT 1`

func (r *PostgresSecretRepo) Get(ctx context.Context, companyID int64, key string) (domain.EncryptedSecret, error) {
	var secret domain.EncryptedSecret
	if err := r.db.QueryRow(ctx, getSecretSQL, companyID, key).Scan(
		&secret.ID,
		&secret.CompanyID,
		&secret.Key,
		&secret.Value,
		&secret.UpdatedAt,
	); err != nil {
		return domain.EncryptedSecret{}, fmt.Errorf("get secret: %w", err)
	}
	return secret, nil
}

const upsertSecretSQL = `INSERT INTO company_secrets (id, company_id, key, value, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (company_id, key)
DO UPDATE SET value = EXCLUDED.value, updated_at = now()`

// Upsert replaces the encrypted blob atomically. The whole value is always
// overwritten; there is no partial update path.
func (r *PostgresSecretRepo) Upsert(ctx context.Context, companyID int64, key, value string) error {
	if _, err := r.db.Exec(ctx, upsertSecretSQL, r.node.Generate().Int64(), companyID, key, value); err != nil {
		return fmt.Errorf("upsert secret: %w", err)
	}
	return nil
}

const deleteSecretSQL = `DELETE FROM company_secrets WHERE company_id = $1 AND key = $2`

func (r *PostgresSecretRepo) Delete(ctx context.Context, companyID int64, key string) error {
	if _, err := r.db.Exec(ctx, deleteSecretSQL, companyID, key); err != nil {
		return fmt.Errorf("delete secret: %w", err)
	}
	return nil
}

// PostgresCompanyRepo implements CompanyRepository on pgx.
type PostgresCompanyRepo struct {
	db *pgxpool.Pool
}

func NewPostgresCompanyRepo(pool *pgxpool.Pool) *PostgresCompanyRepo {
	return &PostgresCompanyRepo{db: pool}
}

const getCompanySQL = `SELECT id, name, slug, status, created_at, updated_at
FROM companies
WHERE id = $1
LIMIT 1`

func (r *PostgresCompanyRepo) GetCompany(ctx context.Context, companyID int64) (domain.Company, error) {
	var company domain.Company
	if err := r.db.QueryRow(ctx, getCompanySQL, companyID).Scan(
		&company.ID,
		&company.Name,
		&company.Slug,
		&company.Status,
		&company.CreatedAt,
		&company.UpdatedAt,
	); err != nil {
		return domain.Company{}, fmt.Errorf("get company: %w", err)
	}
	return company, nil
}

const getCompanyBySlugSQL = `SELECT id, name, slug, status, created_at, updated_at
FROM companies
WHERE slug = $1
LIMIT 1`

func (r *PostgresCompanyRepo) GetCompanyBySlug(ctx context.Context, slug string) (domain.Company, error) {
	var company domain.Company
	if err := r.db.QueryRow(ctx, getCompanyBySlugSQL, slug).Scan(
		&company.ID,
		&company.Name,
		&company.Slug,
		&company.Status,
		&company.CreatedAt,
		&company.UpdatedAt,
	); err != nil {
		return domain.Company{}, fmt.Errorf("get company by slug: %w", err)
	}
	return company, nil
}

const getDomainByHostSQL = `SELECT id, host, company_id
FROM company_domains
WHERE host = $1
LIMIT 1`

func (r *PostgresCompanyRepo) GetDomainByHost(ctx context.Context, host string) (domain.CompanyDomain, error) {
	var row domain.CompanyDomain
	if err := r.db.QueryRow(ctx, getDomainByHostSQL, host).Scan(&row.ID, &row.Host, &row.CompanyID); err != nil {
		return domain.CompanyDomain{}, fmt.Errorf("get domain: %w", err)
	}
	return row, nil
}
