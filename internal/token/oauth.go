package token

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	domainbadgr "github.com/smallbiznis/badgr-bridge/internal/domain/badgr"
)

// Pair is one access/refresh token pair as minted by the token endpoint.
type Pair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
	Scope        string
}

// Endpoint talks to the remote OAuth token endpoint with client credentials
// over HTTP Basic auth.
type Endpoint struct {
	httpClient   *http.Client
	tokenURL     string
	clientID     string
	clientSecret string
	logger       *zap.Logger
}

// NewEndpoint constructs the token endpoint client.
func NewEndpoint(client *http.Client, tokenURL, clientID, clientSecret string, logger *zap.Logger) *Endpoint {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.L()
	}
	return &Endpoint{
		httpClient:   client,
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		logger:       logger,
	}
}

// Refresh mints a new token pair from a refresh token.
func (e *Endpoint) Refresh(ctx context.Context, refreshToken string) (Pair, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)
	return e.fetch(ctx, data)
}

// Exchange trades an authorization code for the initial token pair.
func (e *Endpoint) Exchange(ctx context.Context, code, redirectURI string) (Pair, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", redirectURI)
	return e.fetch(ctx, data)
}

func (e *Endpoint) fetch(ctx context.Context, data url.Values) (Pair, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return Pair{}, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Basic "+basicCredentials(e.clientID, e.clientSecret))

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return Pair{}, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Pair{}, fmt.Errorf("read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errBody struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(body, &errBody); err == nil && errBody.Error == "invalid_grant" {
			// The remote authorization has lapsed; an admin has to run the
			// handshake again.
			e.logger.Warn("invalid grant from token endpoint",
				zap.String("grant_type", data.Get("grant_type")))
			return Pair{}, domainbadgr.ErrInvalidAuthorization
		}
		e.logger.Warn("token endpoint error",
			zap.Int("status", resp.StatusCode),
			zap.String("grant_type", data.Get("grant_type")))
		return Pair{}, &domainbadgr.ClientError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var raw struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
		Scope        string `json:"scope"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return Pair{}, fmt.Errorf("decode token response: %w", err)
	}
	if raw.AccessToken == "" {
		return Pair{}, fmt.Errorf("%w: no access_token", domainbadgr.ErrProtocolViolation)
	}
	if raw.RefreshToken == "" {
		return Pair{}, fmt.Errorf("%w: no refresh_token", domainbadgr.ErrProtocolViolation)
	}

	return Pair{
		AccessToken:  raw.AccessToken,
		RefreshToken: raw.RefreshToken,
		ExpiresIn:    raw.ExpiresIn,
		Scope:        raw.Scope,
	}, nil
}

func basicCredentials(id, secret string) string {
	return base64.StdEncoding.EncodeToString([]byte(id + ":" + secret))
}
