package domain

import "time"

// Auth schemes supported by the remote badge API. Bearer is the OAuth2
// generation with refreshable access tokens; Basic is the earlier generation
// with a static authorization token.
const (
	AuthSchemeBearer = "bearer"
	AuthSchemeBasic  = "basic"
)

// Integration binds one site to one remote badge-issuer account. At most one
// row exists per site; disconnecting deletes it, a fresh enable starts over.
type Integration struct {
	ID                 int64
	SiteID             int64
	SiteName           string
	OrganizationID     string
	OrganizationName   string
	AuthScheme         string
	AuthorizationToken string
	BaseURL            string
	CreatedBy          string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// HasOrganization reports whether initialization resolved an organization.
// Badge operations require this binding.
func (i Integration) HasOrganization() bool {
	return i.OrganizationID != ""
}
