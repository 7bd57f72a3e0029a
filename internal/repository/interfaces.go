package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/badgr-bridge/internal/domain"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("repository: not found")

// SiteRepository exposes deployment-site queries.
type SiteRepository interface {
	GetByHost(ctx context.Context, host string) (domain.Site, error)
	GetByName(ctx context.Context, name string) (domain.Site, error)
}

// IntegrationRepository persists the per-site integration registration.
type IntegrationRepository interface {
	GetBySite(ctx context.Context, siteID int64) (domain.Integration, error)
	Create(ctx context.Context, integ domain.Integration) (domain.Integration, error)
	Update(ctx context.Context, integ domain.Integration) error
	Delete(ctx context.Context, id int64) error
}

// UserRepository exposes the read-only platform user lookup.
type UserRepository interface {
	GetByID(ctx context.Context, siteID, userID int64) (domain.User, error)
	GetByEmail(ctx context.Context, siteID int64, email string) (domain.User, error)
}
