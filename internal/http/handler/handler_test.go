package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/badgr-bridge/internal/badgr"
	"github.com/smallbiznis/badgr-bridge/internal/config"
	"github.com/smallbiznis/badgr-bridge/internal/domain"
	httphandler "github.com/smallbiznis/badgr-bridge/internal/http/handler"
	"github.com/smallbiznis/badgr-bridge/internal/integration"
	"github.com/smallbiznis/badgr-bridge/internal/repository"
	"github.com/smallbiznis/badgr-bridge/internal/site"
)

type fakeStateStore struct {
	saved map[string]integration.HandshakeState
}

func newFakeStateStore() *fakeStateStore {
	return &fakeStateStore{saved: make(map[string]integration.HandshakeState)}
}

func (f *fakeStateStore) SaveState(_ context.Context, key string, data integration.HandshakeState, _ time.Duration) error {
	f.saved[key] = data
	return nil
}

func (f *fakeStateStore) GetState(_ context.Context, key string) (*integration.HandshakeState, error) {
	if hs, ok := f.saved[key]; ok {
		return &hs, nil
	}
	return nil, nil
}

func (f *fakeStateStore) DeleteState(_ context.Context, key string) error {
	delete(f.saved, key)
	return nil
}

type fakeUserRepo struct {
	users map[int64]domain.User
}

func (f *fakeUserRepo) GetByID(_ context.Context, _ int64, userID int64) (domain.User, error) {
	if u, ok := f.users[userID]; ok {
		return u, nil
	}
	return domain.User{}, repository.ErrNotFound
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, _ int64, email string) (domain.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return domain.User{}, repository.ErrNotFound
}

func testSiteCtx(integ *domain.Integration) *site.Context {
	return &site.Context{
		Site:        domain.Site{ID: 7, Host: "alpha.example", Name: "alpha"},
		Integration: integ,
	}
}

func testContext(t *testing.T, method, target string, siteCtx *site.Context) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, target, nil)
	if siteCtx != nil {
		c.Set("siteContext", siteCtx)
	}
	return c, w
}

func TestAuthorizeStartRedirectsToProvider(t *testing.T) {
	states := newFakeStateStore()
	cfg := config.Config{
		BadgrAuthorizeURL: "https://badges.example/auth/oauth2/authorize",
		BadgrClientID:     "client-id",
		BadgrScope:        "rw:issuer r:backpack",
		HandshakeStateTTL: 10 * time.Minute,
	}
	h := httphandler.NewAuthorizeHandler(states, nil, nil, cfg, zap.NewNop())

	c, w := testContext(t, http.MethodGet, "http://alpha.example/integration/authorize?success=https://alpha.example/done", testSiteCtx(nil))
	h.Start(c)

	require.Equal(t, http.StatusFound, w.Code)

	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "badges.example", location.Host)
	require.Equal(t, "client-id", location.Query().Get("client_id"))
	require.Equal(t, "code", location.Query().Get("response_type"))
	require.Equal(t, "rw:issuer r:backpack", location.Query().Get("scope"))
	require.Equal(t, "http://alpha.example/integration/callback", location.Query().Get("redirect_uri"))

	state := location.Query().Get("state")
	require.NotEmpty(t, state)
	saved, ok := states.saved[state]
	require.True(t, ok)
	require.Equal(t, int64(7), saved.SiteID)
	require.Equal(t, "https://alpha.example/done", saved.SuccessURI)
}

func TestAuthorizeStartConflictsWhenEnabled(t *testing.T) {
	h := httphandler.NewAuthorizeHandler(newFakeStateStore(), nil, nil, config.Config{}, zap.NewNop())

	c, w := testContext(t, http.MethodGet, "http://alpha.example/integration/authorize", testSiteCtx(&domain.Integration{ID: 1}))
	h.Start(c)

	require.Equal(t, http.StatusConflict, w.Code)
	require.Contains(t, w.Body.String(), "already_enabled")
}

func TestListBadgesDefaultsToNameSort(t *testing.T) {
	var gotQuery url.Values
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(`{"data":[{"id":"tpl-1","name":"Gold"}],"metadata":{"count":1,"total_count":5,"current_page":2,"total_pages":3}}`))
	}))
	defer remote.Close()

	integ := &domain.Integration{
		ID:                 1,
		SiteID:             7,
		SiteName:           "alpha",
		OrganizationID:     "org-1",
		AuthScheme:         domain.AuthSchemeBasic,
		AuthorizationToken: "static",
		BaseURL:            remote.URL,
	}
	factory := badgr.NewFactory(remote.Client(), nil, zap.NewNop())
	h := httphandler.NewBadgeHandler(factory, &fakeUserRepo{}, zap.NewNop())

	c, w := testContext(t, http.MethodGet, "http://alpha.example/badges?page=2", testSiteCtx(integ))
	h.ListBadges(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "name", gotQuery.Get("sort"))

	var resp struct {
		Items []json.RawMessage `json:"items"`
		Links map[string]string `json:"links"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	require.Contains(t, resp.Links["batch-prev"], "page=1")
	require.Contains(t, resp.Links["batch-next"], "page=3")
}

func TestListAwardedBadgesForcesPublicAcceptedForOtherViewers(t *testing.T) {
	var gotQuery url.Values
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(`{"data":[],"metadata":{}}`))
	}))
	defer remote.Close()

	integ := &domain.Integration{
		ID:                 1,
		SiteID:             7,
		SiteName:           "alpha",
		OrganizationID:     "org-1",
		AuthScheme:         domain.AuthSchemeBasic,
		AuthorizationToken: "static",
		BaseURL:            remote.URL,
	}
	factory := badgr.NewFactory(remote.Client(), nil, zap.NewNop())
	users := &fakeUserRepo{users: map[int64]domain.User{99: {ID: 99, SiteID: 7, Email: "jane@site.example"}}}
	h := httphandler.NewBadgeHandler(factory, users, zap.NewNop())

	c, w := testContext(t, http.MethodGet, "http://alpha.example/users/99/badges", testSiteCtx(integ))
	c.Params = gin.Params{{Key: "user_id", Value: "99"}}
	h.ListAwardedBadges(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "-issued_at", gotQuery.Get("sort"))
	filters := strings.Split(gotQuery.Get("filter"), "|")
	require.Contains(t, filters, "public::true")
	require.Contains(t, filters, "state::accepted")
	require.Contains(t, filters, "recipient_email_all::jane@site.example")
}

func TestGetIntegrationNotEnabled(t *testing.T) {
	h := httphandler.NewIntegrationHandler(nil, nil, zap.NewNop())

	c, w := testContext(t, http.MethodGet, "http://alpha.example/integration", testSiteCtx(nil))
	h.Get(c)

	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "not_enabled")
}

func TestListAwardedBadgesUnknownUser(t *testing.T) {
	integ := &domain.Integration{ID: 1, SiteID: 7, OrganizationID: "org-1", AuthScheme: domain.AuthSchemeBasic, BaseURL: "http://unused.invalid"}
	factory := badgr.NewFactory(nil, nil, zap.NewNop())
	h := httphandler.NewBadgeHandler(factory, &fakeUserRepo{}, zap.NewNop())

	c, w := testContext(t, http.MethodGet, "http://alpha.example/users/12/badges", testSiteCtx(integ))
	c.Params = gin.Params{{Key: "user_id", Value: "12"}}
	h.ListAwardedBadges(c)

	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "unknown_user")
}
