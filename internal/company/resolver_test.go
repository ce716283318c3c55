package company

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/metrics-cz/connect-auth/internal/domain"
)

type fakeCompanyRepo struct {
	companies map[int64]domain.Company
	domains   map[string]domain.CompanyDomain
}

func newFakeCompanyRepo() *fakeCompanyRepo {
	return &fakeCompanyRepo{
		companies: map[int64]domain.Company{
			1: {ID: 1, Name: "Acme", Slug: "acme", Status: "ACTIVE"},
		},
		domains: map[string]domain.CompanyDomain{
			"acme.metricshub.dev": {ID: 10, Host: "acme.metricshub.dev", CompanyID: 1},
		},
	}
}

func (f *fakeCompanyRepo) GetCompany(_ context.Context, companyID int64) (domain.Company, error) {
	if company, ok := f.companies[companyID]; ok {
		return company, nil
	}
	return domain.Company{}, fmt.Errorf("get company: %w", pgx.ErrNoRows)
}

func (f *fakeCompanyRepo) GetCompanyBySlug(_ context.Context, slug string) (domain.Company, error) {
	for _, company := range f.companies {
		if company.Slug == slug {
			return company, nil
		}
	}
	return domain.Company{}, fmt.Errorf("get company by slug: %w", pgx.ErrNoRows)
}

func (f *fakeCompanyRepo) GetDomainByHost(_ context.Context, host string) (domain.CompanyDomain, error) {
	if row, ok := f.domains[host]; ok {
		return row, nil
	}
	return domain.CompanyDomain{}, fmt.Errorf("get domain: %w", pgx.ErrNoRows)
}

func TestResolver_ResolveByHost(t *testing.T) {
	r := NewResolver(newFakeCompanyRepo())

	resolved, err := r.Resolve(context.Background(), "Acme.MetricsHub.dev ")
	require.NoError(t, err)
	require.Equal(t, int64(1), resolved.Company.ID)
	require.Equal(t, "acme.metricshub.dev", resolved.Domain.Host)

	_, err = r.Resolve(context.Background(), "unknown.example.com")
	require.Error(t, err)

	_, err = r.Resolve(context.Background(), "")
	require.Error(t, err)
}

func TestResolver_ResolveByRef(t *testing.T) {
	r := NewResolver(newFakeCompanyRepo())

	byID, err := r.ResolveByRef(context.Background(), "1")
	require.NoError(t, err)
	require.Equal(t, "acme", byID.Company.Slug)

	bySlug, err := r.ResolveByRef(context.Background(), "ACME")
	require.NoError(t, err)
	require.Equal(t, int64(1), bySlug.Company.ID)

	_, err = r.ResolveByRef(context.Background(), "999")
	require.Error(t, err)
}
