package site

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/smallbiznis/badgr-bridge/internal/domain"
	"github.com/smallbiznis/badgr-bridge/internal/repository"
)

// Context carries the resolved site and, when one exists, its integration.
// It is passed explicitly into every store and client operation instead of
// living in ambient process state.
type Context struct {
	Site        domain.Site
	Integration *domain.Integration
}

// Resolver loads site metadata from repositories.
type Resolver struct {
	sites        repository.SiteRepository
	integrations repository.IntegrationRepository
}

// NewResolver creates a site resolver.
func NewResolver(sites repository.SiteRepository, integrations repository.IntegrationRepository) *Resolver {
	return &Resolver{sites: sites, integrations: integrations}
}

// Resolve loads site information from the host header.
func (r *Resolver) Resolve(ctx context.Context, host string) (*Context, error) {
	cleaned := strings.ToLower(strings.TrimSpace(host))
	if cleaned == "" {
		zap.L().Warn("site resolver received empty host")
		return nil, fmt.Errorf("resolve site: empty host")
	}

	siteRow, err := r.sites.GetByHost(ctx, cleaned)
	if err != nil {
		zap.L().Error("failed to resolve site", zap.String("host", cleaned), zap.Error(err))
		return nil, fmt.Errorf("resolve site: %w", err)
	}

	return r.buildContext(ctx, siteRow)
}

// ResolveByName loads site information using the site-name header.
func (r *Resolver) ResolveByName(ctx context.Context, name string) (*Context, error) {
	cleaned := strings.ToLower(strings.TrimSpace(name))
	if cleaned == "" {
		zap.L().Warn("site resolver received empty name")
		return nil, fmt.Errorf("resolve site: empty name")
	}

	siteRow, err := r.sites.GetByName(ctx, cleaned)
	if err != nil {
		zap.L().Error("failed to resolve site by name", zap.String("name", cleaned), zap.Error(err))
		return nil, fmt.Errorf("resolve site by name: %w", err)
	}

	return r.buildContext(ctx, siteRow)
}

func (r *Resolver) buildContext(ctx context.Context, siteRow domain.Site) (*Context, error) {
	siteCtx := &Context{Site: siteRow}

	integ, err := r.integrations.GetBySite(ctx, siteRow.ID)
	switch {
	case err == nil:
		siteCtx.Integration = &integ
	case isNotFound(err):
		// No integration yet; the enable flow creates one.
	default:
		zap.L().Error("failed to load integration", zap.Int64("site_id", siteRow.ID), zap.Error(err))
		return nil, fmt.Errorf("resolve integration: %w", err)
	}

	zap.L().Debug("site context resolved",
		zap.String("host", siteRow.Host),
		zap.Int64("site_id", siteRow.ID),
		zap.Bool("integrated", siteCtx.Integration != nil))
	return siteCtx, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
