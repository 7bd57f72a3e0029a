package domain

import "time"

// Site represents one deployment site of the learning platform. Every
// integration, token pair, and lock is scoped to a site.
type Site struct {
	ID        int64
	Host      string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
