package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smallbiznis/badgr-bridge/internal/domain"
)

// Compile-time interface assertions.
var (
	_ SiteRepository        = (*PostgresSiteRepo)(nil)
	_ IntegrationRepository = (*PostgresIntegrationRepo)(nil)
	_ UserRepository        = (*PostgresUserRepo)(nil)
)

// PostgresSiteRepo implements SiteRepository.
type PostgresSiteRepo struct {
	db *pgxpool.Pool
}

func NewPostgresSiteRepo(pool *pgxpool.Pool) *PostgresSiteRepo {
	return &PostgresSiteRepo{db: pool}
}

const siteByHostSQL = `SELECT id, host, name, created_at, updated_at
FROM sites WHERE host = $1`

func (r *PostgresSiteRepo) GetByHost(ctx context.Context, host string) (domain.Site, error) {
	var site domain.Site
	err := r.db.QueryRow(ctx, siteByHostSQL, host).Scan(
		&site.ID, &site.Host, &site.Name, &site.CreatedAt, &site.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Site{}, fmt.Errorf("get site by host: %w", ErrNotFound)
		}
		return domain.Site{}, fmt.Errorf("get site by host: %w", err)
	}
	return site, nil
}

const siteByNameSQL = `SELECT id, host, name, created_at, updated_at
FROM sites WHERE name = $1`

func (r *PostgresSiteRepo) GetByName(ctx context.Context, name string) (domain.Site, error) {
	var site domain.Site
	err := r.db.QueryRow(ctx, siteByNameSQL, name).Scan(
		&site.ID, &site.Host, &site.Name, &site.CreatedAt, &site.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Site{}, fmt.Errorf("get site by name: %w", ErrNotFound)
		}
		return domain.Site{}, fmt.Errorf("get site by name: %w", err)
	}
	return site, nil
}

// PostgresIntegrationRepo implements IntegrationRepository.
type PostgresIntegrationRepo struct {
	db   *pgxpool.Pool
	node *snowflake.Node
}

func NewPostgresIntegrationRepo(pool *pgxpool.Pool, node *snowflake.Node) *PostgresIntegrationRepo {
	return &PostgresIntegrationRepo{db: pool, node: node}
}

const integrationBySiteSQL = `SELECT i.id, i.site_id, s.name, i.organization_id, i.organization_name,
	i.auth_scheme, i.authorization_token, i.base_url, i.created_by, i.created_at, i.updated_at
FROM badgr_integrations i
JOIN sites s ON s.id = i.site_id
WHERE i.site_id = $1`

func (r *PostgresIntegrationRepo) GetBySite(ctx context.Context, siteID int64) (domain.Integration, error) {
	var integ domain.Integration
	err := r.db.QueryRow(ctx, integrationBySiteSQL, siteID).Scan(
		&integ.ID, &integ.SiteID, &integ.SiteName, &integ.OrganizationID, &integ.OrganizationName,
		&integ.AuthScheme, &integ.AuthorizationToken, &integ.BaseURL, &integ.CreatedBy,
		&integ.CreatedAt, &integ.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Integration{}, fmt.Errorf("get integration: %w", ErrNotFound)
		}
		return domain.Integration{}, fmt.Errorf("get integration: %w", err)
	}
	return integ, nil
}

const insertIntegrationSQL = `INSERT INTO badgr_integrations
	(id, site_id, organization_id, organization_name, auth_scheme, authorization_token, base_url, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`

func (r *PostgresIntegrationRepo) Create(ctx context.Context, integ domain.Integration) (domain.Integration, error) {
	if integ.ID == 0 {
		integ.ID = r.node.Generate().Int64()
	}
	now := time.Now().UTC()
	integ.CreatedAt = now
	integ.UpdatedAt = now

	_, err := r.db.Exec(ctx, insertIntegrationSQL,
		integ.ID, integ.SiteID, integ.OrganizationID, integ.OrganizationName,
		integ.AuthScheme, integ.AuthorizationToken, integ.BaseURL, integ.CreatedBy, now,
	)
	if err != nil {
		return domain.Integration{}, fmt.Errorf("create integration: %w", err)
	}
	return integ, nil
}

const updateIntegrationSQL = `UPDATE badgr_integrations
SET organization_id = $2, organization_name = $3, authorization_token = $4, base_url = $5, updated_at = $6
WHERE id = $1`

func (r *PostgresIntegrationRepo) Update(ctx context.Context, integ domain.Integration) error {
	tag, err := r.db.Exec(ctx, updateIntegrationSQL,
		integ.ID, integ.OrganizationID, integ.OrganizationName,
		integ.AuthorizationToken, integ.BaseURL, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update integration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update integration: %w", ErrNotFound)
	}
	return nil
}

func (r *PostgresIntegrationRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM badgr_integrations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete integration: %w", err)
	}
	return nil
}

// PostgresUserRepo implements UserRepository against the platform's user
// mirror.
type PostgresUserRepo struct {
	db *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{db: pool}
}

const userByIDSQL = `SELECT id, site_id, email, display_name
FROM users WHERE site_id = $1 AND id = $2`

func (r *PostgresUserRepo) GetByID(ctx context.Context, siteID, userID int64) (domain.User, error) {
	var user domain.User
	err := r.db.QueryRow(ctx, userByIDSQL, siteID, userID).Scan(
		&user.ID, &user.SiteID, &user.Email, &user.DisplayName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, fmt.Errorf("get user: %w", ErrNotFound)
		}
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

const userByEmailSQL = `SELECT id, site_id, email, display_name
FROM users WHERE site_id = $1 AND email = $2`

func (r *PostgresUserRepo) GetByEmail(ctx context.Context, siteID int64, email string) (domain.User, error) {
	var user domain.User
	err := r.db.QueryRow(ctx, userByEmailSQL, siteID, email).Scan(
		&user.ID, &user.SiteID, &user.Email, &user.DisplayName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, fmt.Errorf("get user by email: %w", ErrNotFound)
		}
		return domain.User{}, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}
