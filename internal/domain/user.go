package domain

// User is a read-only view of a platform user: the email address badges are
// awarded to and the numeric identifier reported as the issuer earner id.
type User struct {
	ID          int64
	SiteID      int64
	Email       string
	DisplayName string
}
