package badgr

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/badgr-bridge/internal/domain"
	domainbadgr "github.com/smallbiznis/badgr-bridge/internal/domain/badgr"
)

type fakeAuth struct {
	mu            sync.Mutex
	header        string
	refreshed     string
	invalidations int
}

func (a *fakeAuth) Header(context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.header, nil
}

func (a *fakeAuth) Invalidate(context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.invalidations++
	a.header = a.refreshed
	return a.header, nil
}

func (a *fakeAuth) invalidationCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.invalidations
}

func boundIntegration() domain.Integration {
	return domain.Integration{
		ID:               1,
		SiteID:           7,
		SiteName:         "alpha",
		OrganizationID:   "org-1",
		OrganizationName: "Org One",
		AuthScheme:       domain.AuthSchemeBearer,
	}
}

func testUser() domain.User {
	return domain.User{ID: 99, SiteID: 7, Email: "jane@site.example", DisplayName: "Jane Q Doe"}
}

func TestCallRetriesOnceAfterUnauthorized(t *testing.T) {
	var headers []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = append(headers, r.Header.Get("Authorization"))
		if len(headers) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"id":"org-1","name":"Org One"}]}`))
	}))
	defer srv.Close()

	auth := &fakeAuth{header: "Bearer stale", refreshed: "Bearer fresh"}
	client := NewClient(srv.Client(), srv.URL, auth, boundIntegration(), zap.NewNop())

	orgs, err := client.GetOrganizations(context.Background())
	require.NoError(t, err)
	require.Len(t, orgs.Items, 1)
	require.Equal(t, []string{"Bearer stale", "Bearer fresh"}, headers)
	require.Equal(t, 1, auth.invalidationCount())
}

func TestCallGivesUpAfterSecondUnauthorized(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	auth := &fakeAuth{header: "Bearer stale", refreshed: "Bearer still-bad"}
	client := NewClient(srv.Client(), srv.URL, auth, boundIntegration(), zap.NewNop())

	_, err := client.GetOrganizations(context.Background())
	require.ErrorIs(t, err, domainbadgr.ErrInvalidAuthorization)
	require.Equal(t, 2, requests)
	require.Equal(t, 1, auth.invalidationCount())
}

func TestOperationsRequireOrganization(t *testing.T) {
	integ := boundIntegration()
	integ.OrganizationID = ""
	client := NewClient(nil, "http://unused.invalid", &fakeAuth{}, integ, zap.NewNop())
	ctx := context.Background()

	_, err := client.GetBadges(ctx, ListOptions{})
	require.ErrorIs(t, err, domainbadgr.ErrMissingOrganization)

	_, err = client.GetBadge(ctx, "tpl-1")
	require.ErrorIs(t, err, domainbadgr.ErrMissingOrganization)

	_, err = client.GetAwardedBadges(ctx, testUser(), ListOptions{}, false, false)
	require.ErrorIs(t, err, domainbadgr.ErrMissingOrganization)

	_, err = client.AwardBadge(ctx, testUser(), "tpl-1", AwardOptions{})
	require.ErrorIs(t, err, domainbadgr.ErrMissingOrganization)
}

func TestGetBadgesForcesActiveState(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/organizations/org-1/badge_templates", r.URL.Path)
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"data":[],"metadata":{"count":0,"total_count":0,"current_page":1,"total_pages":1}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.Client(), srv.URL, &fakeAuth{header: "Bearer ok"}, boundIntegration(), zap.NewNop())
	_, err := client.GetBadges(context.Background(), ListOptions{
		Sort:    []string{"name", "-created_at"},
		Filters: map[string]string{"name": "gold"},
		Page:    "3",
	})
	require.NoError(t, err)

	query, err := url.ParseQuery(gotQuery)
	require.NoError(t, err)
	require.Equal(t, "name|-created_at", query.Get("sort"))
	require.Equal(t, "3", query.Get("page"))
	require.ElementsMatch(t, []string{"state::active", "name::gold"}, strings.Split(query.Get("filter"), "|"))
}

func TestGetAwardedBadgesFiltersAndStampsUser(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/organizations/org-1/badges", r.URL.Path)
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"data":[{"id":"award-1","state":"accepted","badge_template":{"id":"tpl-1","name":"Gold"}}],"metadata":{"count":1,"total_count":1,"current_page":1,"total_pages":1}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.Client(), srv.URL, &fakeAuth{header: "Bearer ok"}, boundIntegration(), zap.NewNop())
	user := testUser()

	awards, err := client.GetAwardedBadges(context.Background(), user, ListOptions{Sort: []string{"-issued_at"}}, true, false)
	require.NoError(t, err)

	query, err := url.ParseQuery(gotQuery)
	require.NoError(t, err)
	require.ElementsMatch(t,
		[]string{"recipient_email_all::jane@site.example", "public::true", "state::pending,accepted"},
		strings.Split(query.Get("filter"), "|"))
	require.Equal(t, "-issued_at", query.Get("sort"))

	require.Len(t, awards.Items, 1)
	require.NotNil(t, awards.Items[0].User)
	require.Equal(t, user.ID, awards.Items[0].User.ID)
}

func TestGetAwardedBadgesAcceptedOnly(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"data":[],"metadata":{}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.Client(), srv.URL, &fakeAuth{header: "Bearer ok"}, boundIntegration(), zap.NewNop())
	_, err := client.GetAwardedBadges(context.Background(), testUser(), ListOptions{}, false, true)
	require.NoError(t, err)

	query, err := url.ParseQuery(gotQuery)
	require.NoError(t, err)
	require.Contains(t, strings.Split(query.Get("filter"), "|"), "state::accepted")
}

func TestAwardBadgeBody(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"award-1","state":"pending","badge_template":{"id":"tpl-1"}}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.Client(), srv.URL, &fakeAuth{header: "Bearer ok"}, boundIntegration(), zap.NewNop())
	award, err := client.AwardBadge(context.Background(), testUser(), "tpl-1", AwardOptions{
		SuppressNotification: true,
		Locale:               "en",
		EvidenceRef:          "tag:platform.example,2015:Course_ABC",
		EvidenceTitle:        "Course completion",
		EvidenceDescription:  "Completed the course",
	})
	require.NoError(t, err)
	require.Equal(t, "award-1", award.AwardID)

	require.Equal(t, "jane@site.example", body["recipient_email"])
	require.Equal(t, "tpl-1", body["badge_template_id"])
	require.Equal(t, float64(99), body["issuer_earner_id"])
	require.Equal(t, true, body["suppress_badge_notification_email"])
	require.Equal(t, "Jane", body["issued_to_first_name"])
	require.Equal(t, "Doe", body["issued_to_last_name"])
	require.Equal(t, "en", body["locale"])
	require.NotEmpty(t, body["issued_at"])

	evidence, ok := body["evidence"].([]any)
	require.True(t, ok)
	require.Len(t, evidence, 1)
	entry := evidence[0].(map[string]any)
	require.Equal(t, "IdEvidence", entry["type"])
	require.Equal(t, domainbadgr.EvidenceMarker, entry["name"])
	require.Equal(t, "tag:platform.example,2015:Course_ABC", entry["id"])
}

func TestAwardBadgeSkipsNameSplitForEmailDisplayName(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"award-1"}}`))
	}))
	defer srv.Close()

	user := testUser()
	user.DisplayName = "jane@site.example"

	client := NewClient(srv.Client(), srv.URL, &fakeAuth{header: "Bearer ok"}, boundIntegration(), zap.NewNop())
	_, err := client.AwardBadge(context.Background(), user, "tpl-1", AwardOptions{})
	require.NoError(t, err)

	require.NotContains(t, body, "issued_to_first_name")
	require.NotContains(t, body, "issued_to_last_name")
}

func TestAwardBadgeRejectsInvalidEvidenceRef(t *testing.T) {
	client := NewClient(nil, "http://unused.invalid", &fakeAuth{}, boundIntegration(), zap.NewNop())

	_, err := client.AwardBadge(context.Background(), testUser(), "tpl-1", AwardOptions{
		EvidenceRef: "https://not-a-tag-uri.example/thing",
	})
	require.ErrorIs(t, err, domainbadgr.ErrInvalidEvidenceRef)
}

func TestAwardBadgeDuplicate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"data":{"message":"User jane@site.example already has this badge"}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.Client(), srv.URL, &fakeAuth{header: "Bearer ok"}, boundIntegration(), zap.NewNop())
	_, err := client.AwardBadge(context.Background(), testUser(), "tpl-1", AwardOptions{})
	require.ErrorIs(t, err, domainbadgr.ErrDuplicateAward)
}

func TestAwardBadgeOtherUnprocessableIsClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"data":{"message":"badge template is archived"}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.Client(), srv.URL, &fakeAuth{header: "Bearer ok"}, boundIntegration(), zap.NewNop())
	_, err := client.AwardBadge(context.Background(), testUser(), "tpl-1", AwardOptions{})

	var clientErr *domainbadgr.ClientError
	require.ErrorAs(t, err, &clientErr)
	require.Equal(t, http.StatusUnprocessableEntity, clientErr.StatusCode)
}

func TestEncodeFilters(t *testing.T) {
	require.Equal(t, "", EncodeFilters(nil))
	require.Equal(t, "state::active", EncodeFilters(map[string]string{"state": "active"}))

	encoded := EncodeFilters(map[string]string{"state": "active", "name": "gold"})
	require.ElementsMatch(t, []string{"state::active", "name::gold"}, strings.Split(encoded, "|"))
}

func TestEncodeSort(t *testing.T) {
	require.Equal(t, "name|-created_at", EncodeSort([]string{"name", "-created_at"}))
}

func TestSplitRealName(t *testing.T) {
	first, last, ok := splitRealName("Jane Q Doe")
	require.True(t, ok)
	require.Equal(t, "Jane", first)
	require.Equal(t, "Doe", last)

	first, last, ok = splitRealName("Prince")
	require.True(t, ok)
	require.Equal(t, "Prince", first)
	require.Equal(t, "", last)

	_, _, ok = splitRealName("jane@site.example")
	require.False(t, ok)

	_, _, ok = splitRealName("   ")
	require.False(t, ok)
}
