package badgr

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/smallbiznis/badgr-bridge/internal/domain"
	"github.com/smallbiznis/badgr-bridge/internal/token"
)

// Factory builds clients for integrations, selecting the auth scheme from
// the integration's API generation.
type Factory struct {
	httpClient *http.Client
	tokens     *token.Store
	logger     *zap.Logger
}

// NewFactory wires the client factory.
func NewFactory(httpClient *http.Client, tokens *token.Store, logger *zap.Logger) *Factory {
	return &Factory{httpClient: httpClient, tokens: tokens, logger: logger}
}

// ForIntegration builds a client bound to the integration's own base URL.
func (f *Factory) ForIntegration(integ domain.Integration) *Client {
	return f.WithBaseURL(integ, integ.BaseURL)
}

// WithBaseURL builds a client against an explicit base URL, used while
// initialization probes the configured candidates.
func (f *Factory) WithBaseURL(integ domain.Integration, baseURL string) *Client {
	var auth AuthScheme
	if integ.AuthScheme == domain.AuthSchemeBasic {
		auth = NewBasicAuth(integ.AuthorizationToken)
	} else {
		auth = NewBearerAuth(f.tokens, integ)
	}
	return NewClient(f.httpClient, baseURL, auth, integ, f.logger)
}
