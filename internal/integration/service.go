package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/smallbiznis/badgr-bridge/internal/domain"
	domainbadgr "github.com/smallbiznis/badgr-bridge/internal/domain/badgr"
	"github.com/smallbiznis/badgr-bridge/internal/repository"
	"github.com/smallbiznis/badgr-bridge/internal/token"
)

// ErrAlreadyEnabled indicates the site already has an active integration.
var ErrAlreadyEnabled = errors.New("integration: already enabled for site")

// HandshakeState captures the OAuth handshake parameters persisted between
// the authorize redirect and the provider callback.
type HandshakeState struct {
	State       string    `json:"state"`
	SiteID      int64     `json:"site_id"`
	RedirectURI string    `json:"redirect_uri"`
	SuccessURI  string    `json:"success_uri,omitempty"`
	FailureURI  string    `json:"failure_uri,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// StateStore persists handshake state across processes with a TTL.
type StateStore interface {
	SaveState(ctx context.Context, key string, data HandshakeState, ttl time.Duration) error
	GetState(ctx context.Context, key string) (*HandshakeState, error)
	DeleteState(ctx context.Context, key string) error
}

// OrganizationLister is the slice of the badge client that initialization
// needs.
type OrganizationLister interface {
	GetOrganizations(ctx context.Context) (domainbadgr.OrganizationCollection, error)
}

// TokenVault is the slice of the token store the lifecycle needs.
type TokenVault interface {
	Store(ctx context.Context, integ domain.Integration, access, refresh string) error
	Clear(ctx context.Context, integ domain.Integration) error
}

// Service owns the integration lifecycle: enable, initialization
// (organization binding), token updates, and disconnect.
type Service struct {
	repo      repository.IntegrationRepository
	tokens    TokenVault
	newClient func(integ domain.Integration, baseURL string) OrganizationLister
	baseURLs  []string
	node      *snowflake.Node
	logger    *zap.Logger
}

// NewService wires the integration service. newClient builds a probe client
// for an integration against an explicit base URL.
func NewService(
	repo repository.IntegrationRepository,
	tokens TokenVault,
	newClient func(integ domain.Integration, baseURL string) OrganizationLister,
	baseURLs []string,
	node *snowflake.Node,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.L()
	}
	return &Service{
		repo:      repo,
		tokens:    tokens,
		newClient: newClient,
		baseURLs:  baseURLs,
		node:      node,
		logger:    logger,
	}
}

// Initialize resolves the organization binding by probing the configured
// base URLs in order. The first candidate that yields exactly one
// organization wins. Zero or multiple organizations leave the integration
// unbound without error; if every candidate fails authorization, the last
// authorization error propagates.
func (s *Service) Initialize(ctx context.Context, integ domain.Integration) (domain.Integration, bool, error) {
	var lastAuthErr error
	sawResponse := false

	for _, base := range s.baseURLs {
		client := s.newClient(integ, base)
		orgs, err := client.GetOrganizations(ctx)
		if err != nil {
			if errors.Is(err, domainbadgr.ErrInvalidAuthorization) {
				lastAuthErr = err
				continue
			}
			return integ, false, fmt.Errorf("list organizations: %w", err)
		}
		sawResponse = true
		if len(orgs.Items) == 1 {
			integ.OrganizationID = orgs.Items[0].OrganizationID
			integ.OrganizationName = orgs.Items[0].Name
			integ.BaseURL = base
			return integ, true, nil
		}
		s.logger.Warn("organization binding unresolved",
			zap.Int64("site_id", integ.SiteID),
			zap.String("base_url", base),
			zap.Int("organizations", len(orgs.Items)))
	}

	if !sawResponse && lastAuthErr != nil {
		return integ, false, lastAuthErr
	}
	return integ, false, nil
}

// EnableBasic enables the integration with a static authorization token
// (the earlier API generation). The integration is persisted only when
// initialization bound exactly one organization.
func (s *Service) EnableBasic(ctx context.Context, siteCtx SiteRef, authToken, createdBy string) (domain.Integration, bool, error) {
	if err := s.ensureAbsent(ctx, siteCtx.ID); err != nil {
		return domain.Integration{}, false, err
	}

	integ := domain.Integration{
		ID:                 s.node.Generate().Int64(),
		SiteID:             siteCtx.ID,
		SiteName:           siteCtx.Name,
		AuthScheme:         domain.AuthSchemeBasic,
		AuthorizationToken: authToken,
		CreatedBy:          createdBy,
	}

	integ, bound, err := s.Initialize(ctx, integ)
	if err != nil || !bound {
		return integ, bound, err
	}

	created, err := s.repo.Create(ctx, integ)
	if err != nil {
		return integ, true, err
	}
	created.SiteName = integ.SiteName
	s.logger.Info("badgr integration enabled",
		zap.Int64("site_id", created.SiteID),
		zap.String("organization_id", created.OrganizationID))
	return created, true, nil
}

// CompleteHandshake finishes the OAuth authorization-code flow: the token
// pair is stored, the organization resolved, and the integration persisted
// on a successful bind. On an unresolved binding the cached pair is dropped
// so a later enable starts clean.
func (s *Service) CompleteHandshake(ctx context.Context, siteCtx SiteRef, createdBy string, pair token.Pair) (domain.Integration, bool, error) {
	if err := s.ensureAbsent(ctx, siteCtx.ID); err != nil {
		return domain.Integration{}, false, err
	}

	integ := domain.Integration{
		ID:         s.node.Generate().Int64(),
		SiteID:     siteCtx.ID,
		SiteName:   siteCtx.Name,
		AuthScheme: domain.AuthSchemeBearer,
		CreatedBy:  createdBy,
	}

	if err := s.tokens.Store(ctx, integ, pair.AccessToken, pair.RefreshToken); err != nil {
		return integ, false, fmt.Errorf("store token pair: %w", err)
	}

	integ, bound, err := s.Initialize(ctx, integ)
	if err != nil || !bound {
		if clearErr := s.tokens.Clear(ctx, integ); clearErr != nil {
			s.logger.Warn("failed to clear token pair", zap.Error(clearErr))
		}
		return integ, bound, err
	}

	created, err := s.repo.Create(ctx, integ)
	if err != nil {
		return integ, true, err
	}
	created.SiteName = integ.SiteName
	s.logger.Info("badgr integration authorized",
		zap.Int64("site_id", created.SiteID),
		zap.String("organization_id", created.OrganizationID))
	return created, true, nil
}

// UpdateAuthorization replaces a basic integration's static token and
// re-resolves the organization, mirroring what a token change means
// remotely.
func (s *Service) UpdateAuthorization(ctx context.Context, integ domain.Integration, authToken string) (domain.Integration, bool, error) {
	integ.AuthorizationToken = authToken

	integ, bound, err := s.Initialize(ctx, integ)
	if err != nil {
		return integ, false, err
	}
	if err := s.repo.Update(ctx, integ); err != nil {
		return integ, bound, err
	}
	return integ, bound, nil
}

// Disconnect destroys the integration: row deleted, cached token pair
// dropped. No tombstone is kept; a fresh enable starts over.
func (s *Service) Disconnect(ctx context.Context, integ domain.Integration) error {
	if err := s.tokens.Clear(ctx, integ); err != nil {
		s.logger.Warn("failed to clear token pair", zap.Error(err))
	}
	if err := s.repo.Delete(ctx, integ.ID); err != nil {
		return err
	}
	s.logger.Info("badgr integration disconnected",
		zap.Int64("site_id", integ.SiteID),
		zap.Int64("integration_id", integ.ID))
	return nil
}

func (s *Service) ensureAbsent(ctx context.Context, siteID int64) error {
	_, err := s.repo.GetBySite(ctx, siteID)
	if err == nil {
		return ErrAlreadyEnabled
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	return err
}

// SiteRef identifies the site an operation targets.
type SiteRef struct {
	ID   int64
	Name string
}
