package badgr

import (
	"encoding/json"
	"fmt"
	"time"

	domainbadgr "github.com/smallbiznis/badgr-bridge/internal/domain/badgr"
)

// Translators turn raw remote JSON into domain objects. They are pure
// functions: translating the same payload twice yields identical results.
// Single-entity endpoints may wrap the entity in a top-level "data" key;
// list endpoints always do, alongside a "metadata" pagination envelope.

type wireOwner struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type wireOrganization struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	PhotoURL     string `json:"photo_url"`
	WebsiteURL   string `json:"website_url"`
	ContactEmail string `json:"contact_email"`
}

type wireBadge struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	Description          string     `json:"description"`
	State                string     `json:"state"`
	Visibility           string     `json:"visibility"`
	Public               bool       `json:"public"`
	AllowDuplicateBadges bool       `json:"allow_duplicate_badges"`
	BadgesCount          int        `json:"badges_count"`
	ImageURL             string     `json:"image_url"`
	URL                  string     `json:"url"`
	Owner                *wireOwner `json:"owner"`
	CreatedAt            string     `json:"created_at"`
	UpdatedAt            string     `json:"updated_at"`
}

type wireEvidence struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ID          string `json:"id"`
}

type wireAwardedBadge struct {
	ID             string         `json:"id"`
	Template       wireBadge      `json:"badge_template"`
	RecipientEmail string         `json:"recipient_email"`
	State          string         `json:"state"`
	Locale         string         `json:"locale"`
	Public         bool           `json:"public"`
	ImageURL       string         `json:"image_url"`
	BadgeURL       string         `json:"badge_url"`
	AcceptBadgeURL string         `json:"accept_badge_url"`
	Evidence       []wireEvidence `json:"evidence"`
	CreatedAt      string         `json:"created_at"`
	UpdatedAt      string         `json:"updated_at"`
}

type wireMetadata struct {
	Count       int `json:"count"`
	TotalCount  int `json:"total_count"`
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`
}

// DecodeOrganization translates a single-organization payload.
func DecodeOrganization(body []byte) (domainbadgr.Organization, error) {
	var wire wireOrganization
	if err := json.Unmarshal(unwrapData(body), &wire); err != nil {
		return domainbadgr.Organization{}, fmt.Errorf("decode organization: %w", err)
	}
	return organizationFromWire(wire), nil
}

// DecodeOrganizationCollection translates the organization listing.
func DecodeOrganizationCollection(body []byte) (domainbadgr.OrganizationCollection, error) {
	var envelope struct {
		Data []wireOrganization `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return domainbadgr.OrganizationCollection{}, fmt.Errorf("decode organizations: %w", err)
	}
	items := make([]domainbadgr.Organization, 0, len(envelope.Data))
	for _, wire := range envelope.Data {
		items = append(items, organizationFromWire(wire))
	}
	return domainbadgr.OrganizationCollection{Items: items}, nil
}

// DecodeBadge translates a single badge template payload.
func DecodeBadge(body []byte) (domainbadgr.BadgeTemplate, error) {
	var wire wireBadge
	if err := json.Unmarshal(unwrapData(body), &wire); err != nil {
		return domainbadgr.BadgeTemplate{}, fmt.Errorf("decode badge: %w", err)
	}
	return badgeFromWire(wire), nil
}

// DecodeBadgeCollection translates one page of badge templates.
func DecodeBadgeCollection(body []byte) (domainbadgr.BadgeCollection, error) {
	var envelope struct {
		Data     []wireBadge  `json:"data"`
		Metadata wireMetadata `json:"metadata"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return domainbadgr.BadgeCollection{}, fmt.Errorf("decode badges: %w", err)
	}
	items := make([]domainbadgr.BadgeTemplate, 0, len(envelope.Data))
	for _, wire := range envelope.Data {
		items = append(items, badgeFromWire(wire))
	}
	return domainbadgr.BadgeCollection{Items: items, Page: pageFromWire(envelope.Metadata)}, nil
}

// DecodeAwardedBadge translates a single awarded badge payload.
func DecodeAwardedBadge(body []byte) (domainbadgr.AwardedBadge, error) {
	var wire wireAwardedBadge
	if err := json.Unmarshal(unwrapData(body), &wire); err != nil {
		return domainbadgr.AwardedBadge{}, fmt.Errorf("decode awarded badge: %w", err)
	}
	return awardedBadgeFromWire(wire), nil
}

// DecodeAwardedBadgeCollection translates one page of awarded badges.
func DecodeAwardedBadgeCollection(body []byte) (domainbadgr.AwardedBadgeCollection, error) {
	var envelope struct {
		Data     []wireAwardedBadge `json:"data"`
		Metadata wireMetadata       `json:"metadata"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return domainbadgr.AwardedBadgeCollection{}, fmt.Errorf("decode awarded badges: %w", err)
	}
	items := make([]domainbadgr.AwardedBadge, 0, len(envelope.Data))
	for _, wire := range envelope.Data {
		items = append(items, awardedBadgeFromWire(wire))
	}
	return domainbadgr.AwardedBadgeCollection{Items: items, Page: pageFromWire(envelope.Metadata)}, nil
}

func organizationFromWire(wire wireOrganization) domainbadgr.Organization {
	return domainbadgr.Organization{
		OrganizationID: wire.ID,
		Name:           wire.Name,
		PhotoURL:       wire.PhotoURL,
		WebsiteURL:     wire.WebsiteURL,
		ContactEmail:   wire.ContactEmail,
	}
}

func badgeFromWire(wire wireBadge) domainbadgr.BadgeTemplate {
	badge := domainbadgr.BadgeTemplate{
		TemplateID:           wire.ID,
		Name:                 wire.Name,
		Description:          wire.Description,
		State:                wire.State,
		Visibility:           wire.Visibility,
		Public:               wire.Public,
		AllowDuplicateBadges: wire.AllowDuplicateBadges,
		BadgesCount:          wire.BadgesCount,
		ImageURL:             wire.ImageURL,
		BadgeURL:             wire.URL,
		CreatedAt:            parseTime(wire.CreatedAt),
		UpdatedAt:            parseTime(wire.UpdatedAt),
	}
	if wire.Owner != nil {
		badge.OrganizationID = wire.Owner.ID
		badge.OrganizationName = wire.Owner.Name
	}
	return badge
}

func awardedBadgeFromWire(wire wireAwardedBadge) domainbadgr.AwardedBadge {
	// Only evidence this system created survives ingestion: the name must be
	// exactly our marker and the id must be a valid platform reference.
	evidence := make([]domainbadgr.Evidence, 0, len(wire.Evidence))
	for _, evi := range wire.Evidence {
		if evi.Name != domainbadgr.EvidenceMarker || !domainbadgr.IsPlatformRef(evi.ID) {
			continue
		}
		evidence = append(evidence, domainbadgr.Evidence{
			Name:        evi.Name,
			Ref:         evi.ID,
			Title:       evi.Title,
			Description: evi.Description,
		})
	}
	return domainbadgr.AwardedBadge{
		AwardID:        wire.ID,
		Template:       badgeFromWire(wire.Template),
		RecipientEmail: wire.RecipientEmail,
		State:          wire.State,
		Locale:         wire.Locale,
		Public:         wire.Public,
		ImageURL:       wire.ImageURL,
		BadgeURL:       wire.BadgeURL,
		AcceptBadgeURL: wire.AcceptBadgeURL,
		Evidence:       evidence,
		CreatedAt:      parseTime(wire.CreatedAt),
		UpdatedAt:      parseTime(wire.UpdatedAt),
	}
}

func pageFromWire(wire wireMetadata) domainbadgr.PageMetadata {
	return domainbadgr.PageMetadata{
		Count:       wire.Count,
		TotalCount:  wire.TotalCount,
		CurrentPage: wire.CurrentPage,
		TotalPages:  wire.TotalPages,
	}
}

// unwrapData returns the inner object when the payload wraps a single
// entity in a top-level "data" key, and the payload itself otherwise.
func unwrapData(body []byte) []byte {
	var probe struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &probe); err == nil && len(probe.Data) > 0 && probe.Data[0] == '{' {
		return probe.Data
	}
	return body
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05 -0700",
	"2006-01-02T15:04:05.000-07:00",
}

func parseTime(value string) time.Time {
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts
		}
	}
	return time.Time{}
}
