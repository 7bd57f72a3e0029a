package badgr

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingOrganization indicates a badge operation on an integration
	// with no resolved organization. Local precondition, never retried.
	ErrMissingOrganization = errors.New("badgr: integration has no organization")
	// ErrInvalidAuthorization indicates the remote authorization has lapsed:
	// a 401/403 that survived the refresh-and-retry, or an invalid_grant
	// response from the token endpoint. The integration needs to be
	// re-authorized by an admin.
	ErrInvalidAuthorization = errors.New("badgr: authorization invalid, integration needs re-authorization")
	// ErrDuplicateAward indicates the recipient already holds this
	// non-repeatable badge.
	ErrDuplicateAward = errors.New("badgr: recipient already holds this badge")
	// ErrProtocolViolation indicates the token endpoint omitted a required
	// credential or returned an empty refresh token. Fatal, never retried.
	ErrProtocolViolation = errors.New("badgr: token endpoint returned incomplete credentials")
	// ErrMissingRefreshToken indicates no refresh token is cached for the
	// integration. The integration was never authorized or its cache entry
	// lapsed.
	ErrMissingRefreshToken = errors.New("badgr: no refresh token stored")
	// ErrLockTimeout indicates the refresh lock could not be acquired within
	// its bounded wait. Transient; callers may retry at their own layer.
	ErrLockTimeout = errors.New("badgr: token refresh lock timed out")
	// ErrInvalidEvidenceRef indicates an award request carried a
	// syntactically invalid platform content reference.
	ErrInvalidEvidenceRef = errors.New("badgr: invalid evidence reference")
)

// ClientError carries a non-2xx remote response for diagnostics.
type ClientError struct {
	StatusCode int
	Body       string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("badgr: api call failed: status=%d body=%s", e.StatusCode, e.Body)
}
