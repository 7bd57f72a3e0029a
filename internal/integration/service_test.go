package integration

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/badgr-bridge/internal/domain"
	domainbadgr "github.com/smallbiznis/badgr-bridge/internal/domain/badgr"
	"github.com/smallbiznis/badgr-bridge/internal/repository"
	"github.com/smallbiznis/badgr-bridge/internal/token"
)

type fakeIntegrationRepo struct {
	existing *domain.Integration
	created  []domain.Integration
	updated  []domain.Integration
	deleted  []int64
}

func (f *fakeIntegrationRepo) GetBySite(_ context.Context, siteID int64) (domain.Integration, error) {
	if f.existing != nil && f.existing.SiteID == siteID {
		return *f.existing, nil
	}
	return domain.Integration{}, repository.ErrNotFound
}

func (f *fakeIntegrationRepo) Create(_ context.Context, integ domain.Integration) (domain.Integration, error) {
	f.created = append(f.created, integ)
	return integ, nil
}

func (f *fakeIntegrationRepo) Update(_ context.Context, integ domain.Integration) error {
	f.updated = append(f.updated, integ)
	return nil
}

func (f *fakeIntegrationRepo) Delete(_ context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeVault struct {
	stored  []token.Pair
	cleared int
}

func (f *fakeVault) Store(_ context.Context, _ domain.Integration, access, refresh string) error {
	f.stored = append(f.stored, token.Pair{AccessToken: access, RefreshToken: refresh})
	return nil
}

func (f *fakeVault) Clear(context.Context, domain.Integration) error {
	f.cleared++
	return nil
}

type fakeLister struct {
	orgs []domainbadgr.Organization
	err  error
}

func (f fakeLister) GetOrganizations(context.Context) (domainbadgr.OrganizationCollection, error) {
	if f.err != nil {
		return domainbadgr.OrganizationCollection{}, f.err
	}
	return domainbadgr.OrganizationCollection{Items: f.orgs}, nil
}

func probeFor(byBase map[string]fakeLister) func(domain.Integration, string) OrganizationLister {
	return func(_ domain.Integration, baseURL string) OrganizationLister {
		return byBase[baseURL]
	}
}

func newTestService(t *testing.T, repo *fakeIntegrationRepo, vault *fakeVault, byBase map[string]fakeLister, baseURLs []string) *Service {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return NewService(repo, vault, probeFor(byBase), baseURLs, node, zap.NewNop())
}

func siteRef() SiteRef {
	return SiteRef{ID: 7, Name: "alpha"}
}

func oneOrg() []domainbadgr.Organization {
	return []domainbadgr.Organization{{OrganizationID: "org-1", Name: "Org One"}}
}

func TestEnableBasicBindsSingleOrganization(t *testing.T) {
	repo := &fakeIntegrationRepo{}
	vault := &fakeVault{}
	svc := newTestService(t, repo, vault, map[string]fakeLister{
		"https://api.example/v2": {orgs: oneOrg()},
	}, []string{"https://api.example/v2"})

	integ, bound, err := svc.EnableBasic(context.Background(), siteRef(), "static-token", "admin")
	require.NoError(t, err)
	require.True(t, bound)
	require.Equal(t, "org-1", integ.OrganizationID)
	require.Equal(t, "Org One", integ.OrganizationName)
	require.Equal(t, "https://api.example/v2", integ.BaseURL)
	require.Equal(t, domain.AuthSchemeBasic, integ.AuthScheme)
	require.Len(t, repo.created, 1)
}

func TestEnableBasicZeroOrganizationsStaysUnbound(t *testing.T) {
	repo := &fakeIntegrationRepo{}
	svc := newTestService(t, repo, &fakeVault{}, map[string]fakeLister{
		"https://api.example/v2": {orgs: nil},
	}, []string{"https://api.example/v2"})

	_, bound, err := svc.EnableBasic(context.Background(), siteRef(), "static-token", "admin")
	require.NoError(t, err)
	require.False(t, bound)
	require.Empty(t, repo.created)
}

func TestEnableBasicMultipleOrganizationsStaysUnbound(t *testing.T) {
	repo := &fakeIntegrationRepo{}
	svc := newTestService(t, repo, &fakeVault{}, map[string]fakeLister{
		"https://api.example/v2": {orgs: []domainbadgr.Organization{
			{OrganizationID: "org-1", Name: "Org One"},
			{OrganizationID: "org-2", Name: "Org Two"},
		}},
	}, []string{"https://api.example/v2"})

	_, bound, err := svc.EnableBasic(context.Background(), siteRef(), "static-token", "admin")
	require.NoError(t, err)
	require.False(t, bound)
	require.Empty(t, repo.created)
}

func TestEnableBasicAlreadyEnabled(t *testing.T) {
	repo := &fakeIntegrationRepo{existing: &domain.Integration{ID: 1, SiteID: 7}}
	svc := newTestService(t, repo, &fakeVault{}, nil, nil)

	_, _, err := svc.EnableBasic(context.Background(), siteRef(), "static-token", "admin")
	require.ErrorIs(t, err, ErrAlreadyEnabled)
}

func TestInitializeFallsThroughBaseURLs(t *testing.T) {
	repo := &fakeIntegrationRepo{}
	svc := newTestService(t, repo, &fakeVault{}, map[string]fakeLister{
		"https://old.example/v2": {err: domainbadgr.ErrInvalidAuthorization},
		"https://new.example/v2": {orgs: oneOrg()},
	}, []string{"https://old.example/v2", "https://new.example/v2"})

	integ, bound, err := svc.Initialize(context.Background(), domain.Integration{SiteID: 7})
	require.NoError(t, err)
	require.True(t, bound)
	require.Equal(t, "https://new.example/v2", integ.BaseURL)
}

func TestInitializePropagatesAuthErrorWhenNoCandidateResponds(t *testing.T) {
	svc := newTestService(t, &fakeIntegrationRepo{}, &fakeVault{}, map[string]fakeLister{
		"https://a.example/v2": {err: domainbadgr.ErrInvalidAuthorization},
		"https://b.example/v2": {err: domainbadgr.ErrInvalidAuthorization},
	}, []string{"https://a.example/v2", "https://b.example/v2"})

	_, bound, err := svc.Initialize(context.Background(), domain.Integration{SiteID: 7})
	require.False(t, bound)
	require.ErrorIs(t, err, domainbadgr.ErrInvalidAuthorization)
}

func TestCompleteHandshakeStoresPairAndPersists(t *testing.T) {
	repo := &fakeIntegrationRepo{}
	vault := &fakeVault{}
	svc := newTestService(t, repo, vault, map[string]fakeLister{
		"https://api.example/v2": {orgs: oneOrg()},
	}, []string{"https://api.example/v2"})

	integ, bound, err := svc.CompleteHandshake(context.Background(), siteRef(), "admin", token.Pair{AccessToken: "acc", RefreshToken: "ref"})
	require.NoError(t, err)
	require.True(t, bound)
	require.Equal(t, domain.AuthSchemeBearer, integ.AuthScheme)
	require.Len(t, vault.stored, 1)
	require.Equal(t, "acc", vault.stored[0].AccessToken)
	require.Len(t, repo.created, 1)
	require.Zero(t, vault.cleared)
}

func TestCompleteHandshakeUnboundClearsPair(t *testing.T) {
	repo := &fakeIntegrationRepo{}
	vault := &fakeVault{}
	svc := newTestService(t, repo, vault, map[string]fakeLister{
		"https://api.example/v2": {orgs: nil},
	}, []string{"https://api.example/v2"})

	_, bound, err := svc.CompleteHandshake(context.Background(), siteRef(), "admin", token.Pair{AccessToken: "acc", RefreshToken: "ref"})
	require.NoError(t, err)
	require.False(t, bound)
	require.Empty(t, repo.created)
	require.Equal(t, 1, vault.cleared)
}

func TestUpdateAuthorizationReResolvesOrganization(t *testing.T) {
	repo := &fakeIntegrationRepo{}
	svc := newTestService(t, repo, &fakeVault{}, map[string]fakeLister{
		"https://api.example/v2": {orgs: oneOrg()},
	}, []string{"https://api.example/v2"})

	existing := domain.Integration{ID: 11, SiteID: 7, AuthScheme: domain.AuthSchemeBasic, AuthorizationToken: "old"}
	integ, bound, err := svc.UpdateAuthorization(context.Background(), existing, "new-token")
	require.NoError(t, err)
	require.True(t, bound)
	require.Equal(t, "new-token", integ.AuthorizationToken)
	require.Equal(t, "org-1", integ.OrganizationID)
	require.Len(t, repo.updated, 1)
}

func TestDisconnectClearsTokensAndDeletesRow(t *testing.T) {
	repo := &fakeIntegrationRepo{}
	vault := &fakeVault{}
	svc := newTestService(t, repo, vault, nil, nil)

	err := svc.Disconnect(context.Background(), domain.Integration{ID: 11, SiteID: 7})
	require.NoError(t, err)
	require.Equal(t, 1, vault.cleared)
	require.Equal(t, []int64{11}, repo.deleted)
}
