package badgr

import (
	"strings"
	"time"

	"github.com/smallbiznis/badgr-bridge/internal/domain"
)

// EvidenceMarker is the fixed name stamped on evidence records this system
// creates. Ingestion drops any evidence entry whose name is not exactly this
// string, so foreign evidence never reaches the domain model.
const EvidenceMarker = "BadgrBridgeEvidenceRef"

// Awarded badge states reported by the remote API.
const (
	StatePending  = "pending"
	StateAccepted = "accepted"
	StateRevoked  = "revoked"
	StateRejected = "rejected"
)

// Organization is the remote account entity that owns badge templates.
type Organization struct {
	OrganizationID string `json:"organization_id"`
	Name           string `json:"name"`
	PhotoURL       string `json:"photo_url,omitempty"`
	WebsiteURL     string `json:"website_url,omitempty"`
	ContactEmail   string `json:"contact_email,omitempty"`
}

// BadgeTemplate is an immutable snapshot of a remote badge definition.
type BadgeTemplate struct {
	TemplateID           string    `json:"template_id"`
	OrganizationID       string    `json:"organization_id,omitempty"`
	OrganizationName     string    `json:"organization_name,omitempty"`
	Name                 string    `json:"name"`
	Description          string    `json:"description,omitempty"`
	State                string    `json:"state,omitempty"`
	Visibility           string    `json:"visibility,omitempty"`
	Public               bool      `json:"public"`
	AllowDuplicateBadges bool      `json:"allow_duplicate_badges"`
	BadgesCount          int       `json:"badges_count"`
	ImageURL             string    `json:"image_url,omitempty"`
	BadgeURL             string    `json:"badge_url,omitempty"`
	CreatedAt            time.Time `json:"created_at,omitempty"`
	UpdatedAt            time.Time `json:"updated_at,omitempty"`
}

// Evidence is a reference from an awarded badge back to platform content.
type Evidence struct {
	Name        string `json:"name"`
	Ref         string `json:"ref"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// AwardedBadge is a badge template instance issued to a specific user.
// User is stamped locally after translation and never sent to the remote
// side.
type AwardedBadge struct {
	AwardID        string        `json:"award_id"`
	Template       BadgeTemplate `json:"badge_template"`
	RecipientEmail string        `json:"recipient_email"`
	State          string        `json:"state"`
	Locale         string        `json:"locale,omitempty"`
	Public         bool          `json:"public"`
	ImageURL       string        `json:"image_url,omitempty"`
	BadgeURL       string        `json:"badge_url,omitempty"`
	AcceptBadgeURL string        `json:"accept_badge_url,omitempty"`
	Evidence       []Evidence    `json:"evidence"`
	CreatedAt      time.Time     `json:"created_at,omitempty"`
	UpdatedAt      time.Time     `json:"updated_at,omitempty"`

	User *domain.User `json:"-"`
}

// PageMetadata is the pagination envelope attached to every list result.
type PageMetadata struct {
	Count       int `json:"count"`
	TotalCount  int `json:"total_count"`
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`
}

// BadgeCollection is one page of badge templates.
type BadgeCollection struct {
	Items []BadgeTemplate `json:"Items"`
	Page  PageMetadata    `json:"metadata"`
}

// AwardedBadgeCollection is one page of awarded badges.
type AwardedBadgeCollection struct {
	Items []AwardedBadge `json:"Items"`
	Page  PageMetadata   `json:"metadata"`
}

// OrganizationCollection is the unpaginated organization listing.
type OrganizationCollection struct {
	Items []Organization `json:"organizations"`
}

// IsPlatformRef reports whether ref is a syntactically valid platform
// content identifier (a tag URI: "tag:<authority>,<date>:<specific>").
func IsPlatformRef(ref string) bool {
	rest, ok := strings.CutPrefix(ref, "tag:")
	if !ok {
		return false
	}
	authority, specific, ok := strings.Cut(rest, ":")
	if !ok || specific == "" {
		return false
	}
	name, date, ok := strings.Cut(authority, ",")
	return ok && name != "" && date != ""
}
