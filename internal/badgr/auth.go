package badgr

import (
	"context"
	"encoding/base64"

	"github.com/smallbiznis/badgr-bridge/internal/domain"
	domainbadgr "github.com/smallbiznis/badgr-bridge/internal/domain/badgr"
	"github.com/smallbiznis/badgr-bridge/internal/token"
)

// AuthScheme supplies the Authorization header for remote calls and
// replaces it after an authorization failure. The two implementations cover
// the two generations of the remote API.
type AuthScheme interface {
	Header(ctx context.Context) (string, error)
	Invalidate(ctx context.Context) (string, error)
}

// BearerAuth authorizes with OAuth2 bearer tokens from the token store. The
// access token is read through once per client instance and replaced in
// place on refresh.
type BearerAuth struct {
	store  *token.Store
	integ  domain.Integration
	access string
}

// NewBearerAuth constructs the bearer scheme for one integration.
func NewBearerAuth(store *token.Store, integ domain.Integration) *BearerAuth {
	return &BearerAuth{store: store, integ: integ}
}

func (a *BearerAuth) Header(ctx context.Context) (string, error) {
	if a.access == "" {
		tok, err := a.store.AccessToken(ctx, a.integ)
		if err != nil {
			return "", err
		}
		a.access = tok
	}
	return "Bearer " + a.access, nil
}

func (a *BearerAuth) Invalidate(ctx context.Context) (string, error) {
	tok, err := a.store.Refresh(ctx, a.integ, a.access)
	if err != nil {
		return "", err
	}
	a.access = tok
	return "Bearer " + a.access, nil
}

// BasicAuth authorizes with the static token of the earlier API generation.
type BasicAuth struct {
	authToken string
}

// NewBasicAuth constructs the static basic scheme.
func NewBasicAuth(authToken string) *BasicAuth {
	return &BasicAuth{authToken: authToken}
}

func (a *BasicAuth) Header(context.Context) (string, error) {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(a.authToken+":")), nil
}

// Invalidate cannot mint a replacement for a static token; an authorization
// failure means the token itself is no longer valid.
func (a *BasicAuth) Invalidate(context.Context) (string, error) {
	return "", domainbadgr.ErrInvalidAuthorization
}
