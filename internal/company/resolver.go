package company

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/metrics-cz/connect-auth/internal/domain"
	"github.com/metrics-cz/connect-auth/internal/repository"
)

// Context stores resolved company metadata used throughout the request
// lifecycle.
type Context struct {
	Company domain.Company
	Domain  domain.CompanyDomain
}

// Resolver loads company metadata from the repository.
type Resolver struct {
	repo repository.CompanyRepository
}

// NewResolver creates a company resolver.
func NewResolver(repo repository.CompanyRepository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve loads company information from a host header.
func (r *Resolver) Resolve(ctx context.Context, host string) (*Context, error) {
	cleaned := strings.ToLower(strings.TrimSpace(host))
	if cleaned == "" {
		return nil, fmt.Errorf("resolve company: empty host")
	}

	domainRow, err := r.repo.GetDomainByHost(ctx, cleaned)
	if err != nil {
		zap.L().Error("failed to resolve domain", zap.String("host", cleaned), zap.Error(err))
		return nil, fmt.Errorf("resolve domain: %w", err)
	}

	companyRow, err := r.repo.GetCompany(ctx, domainRow.CompanyID)
	if err != nil {
		zap.L().Error("failed to resolve company", zap.String("host", cleaned), zap.Int64("company_id", domainRow.CompanyID), zap.Error(err))
		return nil, fmt.Errorf("resolve company: %w", err)
	}

	return &Context{Company: companyRow, Domain: domainRow}, nil
}

// ResolveByRef loads company information from a header value that is either
// a numeric company id or a slug.
func (r *Resolver) ResolveByRef(ctx context.Context, ref string) (*Context, error) {
	cleaned := strings.ToLower(strings.TrimSpace(ref))
	if cleaned == "" {
		return nil, fmt.Errorf("resolve company: empty reference")
	}

	var (
		companyRow domain.Company
		err        error
	)
	if id, parseErr := strconv.ParseInt(cleaned, 10, 64); parseErr == nil {
		companyRow, err = r.repo.GetCompany(ctx, id)
	} else {
		companyRow, err = r.repo.GetCompanyBySlug(ctx, cleaned)
	}
	if err != nil {
		zap.L().Error("failed to resolve company by reference", zap.String("ref", cleaned), zap.Error(err))
		return nil, fmt.Errorf("resolve company: %w", err)
	}

	return &Context{Company: companyRow}, nil
}
