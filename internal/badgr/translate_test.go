package badgr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domainbadgr "github.com/smallbiznis/badgr-bridge/internal/domain/badgr"
)

func TestDecodeBadgeRenamesWireFields(t *testing.T) {
	body := []byte(`{
		"data": {
			"id": "tpl-1",
			"name": "Gold Star",
			"description": "Shiny",
			"state": "active",
			"public": true,
			"allow_duplicate_badges": false,
			"badges_count": 12,
			"image_url": "https://cdn.example/gold.png",
			"url": "https://badges.example/tpl-1",
			"owner": {"id": "org-1", "name": "Org One"},
			"created_at": "2024-03-01T09:30:00Z"
		}
	}`)

	badge, err := DecodeBadge(body)
	require.NoError(t, err)
	require.Equal(t, "tpl-1", badge.TemplateID)
	require.Equal(t, "org-1", badge.OrganizationID)
	require.Equal(t, "Org One", badge.OrganizationName)
	require.Equal(t, "https://badges.example/tpl-1", badge.BadgeURL)
	require.Equal(t, 12, badge.BadgesCount)
	require.Equal(t, time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC), badge.CreatedAt)
}

func TestDecodeBadgeWithoutEnvelope(t *testing.T) {
	body := []byte(`{"id": "tpl-2", "name": "Bare"}`)

	badge, err := DecodeBadge(body)
	require.NoError(t, err)
	require.Equal(t, "tpl-2", badge.TemplateID)
	require.Equal(t, "Bare", badge.Name)
}

func TestDecodeBadgeIsIdempotent(t *testing.T) {
	body := []byte(`{"data":{"id":"tpl-1","name":"Gold","created_at":"2024-03-01 09:30:00 +0000"}}`)

	first, err := DecodeBadge(body)
	require.NoError(t, err)
	second, err := DecodeBadge(body)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestDecodeAwardedBadgeFiltersForeignEvidence(t *testing.T) {
	body := []byte(`{
		"data": {
			"id": "award-1",
			"state": "accepted",
			"recipient_email": "jane@site.example",
			"badge_template": {"id": "tpl-1", "name": "Gold"},
			"evidence": [
				{"type": "IdEvidence", "name": "` + domainbadgr.EvidenceMarker + `", "id": "tag:platform.example,2015:Course_ABC", "title": "Course"},
				{"type": "IdEvidence", "name": "SomeOtherTool", "id": "tag:platform.example,2015:Course_DEF"},
				{"type": "IdEvidence", "name": "` + domainbadgr.EvidenceMarker + `", "id": "https://not-a-tag.example/x"}
			]
		}
	}`)

	award, err := DecodeAwardedBadge(body)
	require.NoError(t, err)
	require.Equal(t, "award-1", award.AwardID)
	require.Len(t, award.Evidence, 1)
	require.Equal(t, "tag:platform.example,2015:Course_ABC", award.Evidence[0].Ref)
	require.Equal(t, "Course", award.Evidence[0].Title)
}

func TestDecodeAwardedBadgeCollectionMetadata(t *testing.T) {
	body := []byte(`{
		"data": [
			{"id": "award-1", "state": "accepted", "badge_template": {"id": "tpl-1"}},
			{"id": "award-2", "state": "pending", "badge_template": {"id": "tpl-2"}}
		],
		"metadata": {"count": 2, "total_count": 41, "current_page": 3, "total_pages": 21}
	}`)

	collection, err := DecodeAwardedBadgeCollection(body)
	require.NoError(t, err)
	require.Len(t, collection.Items, 2)
	require.Equal(t, domainbadgr.PageMetadata{Count: 2, TotalCount: 41, CurrentPage: 3, TotalPages: 21}, collection.Page)
}

func TestDecodeOrganizationCollection(t *testing.T) {
	body := []byte(`{"data":[{"id":"org-1","name":"Org One","contact_email":"admin@org.example"}]}`)

	orgs, err := DecodeOrganizationCollection(body)
	require.NoError(t, err)
	require.Len(t, orgs.Items, 1)
	require.Equal(t, "org-1", orgs.Items[0].OrganizationID)
	require.Equal(t, "admin@org.example", orgs.Items[0].ContactEmail)
}

func TestParseTimeAcceptsKnownLayouts(t *testing.T) {
	inputs := []string{
		"2024-03-01T09:30:00.123456789Z",
		"2024-03-01T09:30:00Z",
		"2024-03-01 09:30:00 +0000",
		"2024-03-01T09:30:00.000+00:00",
	}
	for _, input := range inputs {
		got := parseTime(input)
		require.False(t, got.IsZero(), "layout not recognized: %s", input)
	}

	require.True(t, parseTime("").IsZero())
	require.True(t, parseTime("not a time").IsZero())
}

func TestIsPlatformRef(t *testing.T) {
	require.True(t, domainbadgr.IsPlatformRef("tag:platform.example,2015:Course_ABC"))
	require.False(t, domainbadgr.IsPlatformRef("https://site.example/course"))
	require.False(t, domainbadgr.IsPlatformRef("tag:platform.example:Course_ABC"))
	require.False(t, domainbadgr.IsPlatformRef("tag:platform.example,2015:"))
	require.False(t, domainbadgr.IsPlatformRef(""))
}
