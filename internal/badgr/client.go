package badgr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/smallbiznis/badgr-bridge/internal/domain"
	domainbadgr "github.com/smallbiznis/badgr-bridge/internal/domain/badgr"
)

const (
	organizationsPath      = "/organizations"
	organizationPath       = "/organizations/%s"
	organizationBadgesPath = "/organizations/%s/badge_templates"
	organizationBadgePath  = "/organizations/%s/badge_templates/%s"
	issuedBadgesPath       = "/organizations/%s/badges"

	// Phrase the remote API embeds in 422 payloads when the recipient
	// already holds a non-repeatable badge.
	duplicateAwardMarker = "already has this badge"

	issuedAtLayout = "2006-01-02 15:04:05 -0700"
)

var defaultAcceptedCodes = []int{http.StatusOK, http.StatusCreated}

// ListOptions carries the caller-controlled query parameters of list calls.
type ListOptions struct {
	Sort    []string
	Filters map[string]string
	Page    string
}

// AwardOptions carries the optional parameters of an award call.
type AwardOptions struct {
	SuppressNotification bool
	Locale               string
	EvidenceRef          string
	EvidenceTitle        string
	EvidenceDescription  string
}

// Client performs authenticated operations against the remote badge API for
// one integration. It is stateless across calls apart from the auth
// scheme's read-through access token.
type Client struct {
	httpClient *http.Client
	baseURL    string
	auth       AuthScheme
	integ      domain.Integration
	logger     *zap.Logger
}

// NewClient constructs a client bound to one integration.
func NewClient(httpClient *http.Client, baseURL string, auth AuthScheme, integ domain.Integration, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.L()
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		auth:       auth,
		integ:      integ,
		logger:     logger,
	}
}

// GetOrganizations lists every organization reachable with the current
// credentials. Used during initialization, so it has no organization
// precondition.
func (c *Client) GetOrganizations(ctx context.Context) (domainbadgr.OrganizationCollection, error) {
	body, err := c.call(ctx, http.MethodGet, organizationsPath, nil, nil, nil)
	if err != nil {
		return domainbadgr.OrganizationCollection{}, err
	}
	return DecodeOrganizationCollection(body)
}

// GetOrganization fetches one organization by id.
func (c *Client) GetOrganization(ctx context.Context, organizationID string) (domainbadgr.Organization, error) {
	path := fmt.Sprintf(organizationPath, url.PathEscape(organizationID))
	body, err := c.call(ctx, http.MethodGet, path, nil, nil, nil)
	if err != nil {
		return domainbadgr.Organization{}, err
	}
	return DecodeOrganization(body)
}

// GetBadge fetches one badge template by id.
func (c *Client) GetBadge(ctx context.Context, templateID string) (domainbadgr.BadgeTemplate, error) {
	if !c.integ.HasOrganization() {
		return domainbadgr.BadgeTemplate{}, domainbadgr.ErrMissingOrganization
	}
	path := fmt.Sprintf(organizationBadgePath, url.PathEscape(c.integ.OrganizationID), url.PathEscape(templateID))
	body, err := c.call(ctx, http.MethodGet, path, nil, nil, nil)
	if err != nil {
		return domainbadgr.BadgeTemplate{}, err
	}
	return DecodeBadge(body)
}

// GetBadges lists the organization's badge templates. The state filter is
// forced to active: archived templates are not reachable through this path.
func (c *Client) GetBadges(ctx context.Context, opts ListOptions) (domainbadgr.BadgeCollection, error) {
	if !c.integ.HasOrganization() {
		return domainbadgr.BadgeCollection{}, domainbadgr.ErrMissingOrganization
	}
	filters := copyFilters(opts.Filters)
	filters["state"] = "active"

	path := fmt.Sprintf(organizationBadgesPath, url.PathEscape(c.integ.OrganizationID))
	body, err := c.call(ctx, http.MethodGet, path, listParams(opts.Sort, filters, opts.Page), nil, nil)
	if err != nil {
		return domainbadgr.BadgeCollection{}, err
	}
	return DecodeBadgeCollection(body)
}

// GetAwardedBadges lists badges awarded to the given user, filtered
// server-side by every email on the user's remote account. Only pending and
// accepted awards are reachable; acceptedOnly narrows to accepted
// exclusively and publicOnly restricts to public awards. Every result is
// stamped with the local user it was fetched for.
func (c *Client) GetAwardedBadges(ctx context.Context, user domain.User, opts ListOptions, publicOnly, acceptedOnly bool) (domainbadgr.AwardedBadgeCollection, error) {
	if !c.integ.HasOrganization() {
		return domainbadgr.AwardedBadgeCollection{}, domainbadgr.ErrMissingOrganization
	}
	filters := copyFilters(opts.Filters)
	filters["recipient_email_all"] = user.Email
	if publicOnly {
		filters["public"] = "true"
	}
	if acceptedOnly {
		filters["state"] = domainbadgr.StateAccepted
	} else {
		filters["state"] = domainbadgr.StatePending + "," + domainbadgr.StateAccepted
	}

	path := fmt.Sprintf(issuedBadgesPath, url.PathEscape(c.integ.OrganizationID))
	body, err := c.call(ctx, http.MethodGet, path, listParams(opts.Sort, filters, opts.Page), nil, nil)
	if err != nil {
		return domainbadgr.AwardedBadgeCollection{}, err
	}
	collection, err := DecodeAwardedBadgeCollection(body)
	if err != nil {
		return domainbadgr.AwardedBadgeCollection{}, err
	}
	for i := range collection.Items {
		localUser := user
		collection.Items[i].User = &localUser
	}
	return collection, nil
}

// AwardBadge issues the badge template to the user. The recipient identity
// is always the user's email, valid or not, and the user's numeric id is
// reported as the issuer earner id.
func (c *Client) AwardBadge(ctx context.Context, user domain.User, templateID string, opts AwardOptions) (domainbadgr.AwardedBadge, error) {
	if !c.integ.HasOrganization() {
		return domainbadgr.AwardedBadge{}, domainbadgr.ErrMissingOrganization
	}

	data := map[string]any{
		"recipient_email":                   user.Email,
		"badge_template_id":                 templateID,
		"issuer_earner_id":                  user.ID,
		"issued_at":                         time.Now().UTC().Format(issuedAtLayout),
		"suppress_badge_notification_email": opts.SuppressNotification,
	}
	// A display name containing "@" is almost certainly an email address
	// standing in for a real name; skip the split in that case.
	if first, last, ok := splitRealName(user.DisplayName); ok {
		data["issued_to_first_name"] = first
		data["issued_to_last_name"] = last
	}
	if opts.Locale != "" {
		data["locale"] = opts.Locale
	}
	if opts.EvidenceRef != "" {
		if !domainbadgr.IsPlatformRef(opts.EvidenceRef) {
			return domainbadgr.AwardedBadge{}, fmt.Errorf("%w: %s", domainbadgr.ErrInvalidEvidenceRef, opts.EvidenceRef)
		}
		data["evidence"] = []map[string]any{{
			"type":        "IdEvidence",
			"name":        domainbadgr.EvidenceMarker,
			"title":       opts.EvidenceTitle,
			"description": opts.EvidenceDescription,
			"id":          opts.EvidenceRef,
		}}
	}

	path := fmt.Sprintf(issuedBadgesPath, url.PathEscape(c.integ.OrganizationID))
	body, err := c.call(ctx, http.MethodPost, path, nil, data, nil)
	if err != nil {
		return domainbadgr.AwardedBadge{}, err
	}
	return DecodeAwardedBadge(body)
}

// call runs one remote operation under the standard protocol: attach the
// Authorization header, issue the request, and on a 401/403 refresh the
// credentials and retry exactly once. A second authorization failure is
// surfaced as ErrInvalidAuthorization, never retried again.
func (c *Client) call(ctx context.Context, method, path string, query url.Values, payload any, accepted []int) ([]byte, error) {
	if len(accepted) == 0 {
		accepted = defaultAcceptedCodes
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	c.logger.Debug("badgr api call",
		zap.String("method", method),
		zap.String("url", target))

	var encoded []byte
	if payload != nil {
		var err error
		encoded, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
	}

	header, err := c.auth.Header(ctx)
	if err != nil {
		return nil, err
	}

	status, body, err := c.do(ctx, method, target, header, encoded)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		header, err = c.auth.Invalidate(ctx)
		if err != nil {
			return nil, err
		}
		status, body, err = c.do(ctx, method, target, header, encoded)
		if err != nil {
			return nil, err
		}
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			c.logger.Warn("badgr authorization failed after refresh",
				zap.String("url", target),
				zap.Int("status", status))
			return nil, fmt.Errorf("%w: %s", domainbadgr.ErrInvalidAuthorization, string(body))
		}
	}

	for _, code := range accepted {
		if status == code {
			return body, nil
		}
	}

	if status == http.StatusUnprocessableEntity && isDuplicateAward(body) {
		return nil, domainbadgr.ErrDuplicateAward
	}
	c.logger.Warn("badgr api error",
		zap.String("url", target),
		zap.Int("status", status),
		zap.ByteString("body", body))
	return nil, &domainbadgr.ClientError{StatusCode: status, Body: string(body)}
}

func (c *Client) do(ctx context.Context, method, target, authHeader string, payload []byte) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", authHeader)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("badgr request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func isDuplicateAward(body []byte) bool {
	var probe struct {
		Data struct {
			Message string `json:"message"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return false
	}
	return strings.Contains(probe.Data.Message, duplicateAwardMarker)
}

// EncodeFilters renders filters as the pipe-delimited key::value sequence
// the remote API expects.
func EncodeFilters(filters map[string]string) string {
	pairs := make([]string, 0, len(filters))
	for key, value := range filters {
		pairs = append(pairs, key+"::"+value)
	}
	return strings.Join(pairs, "|")
}

// EncodeSort renders sort keys as a pipe-delimited sequence.
func EncodeSort(sort []string) string {
	return strings.Join(sort, "|")
}

func listParams(sort []string, filters map[string]string, page string) url.Values {
	params := url.Values{}
	if len(sort) > 0 {
		params.Set("sort", EncodeSort(sort))
	}
	if len(filters) > 0 {
		params.Set("filter", EncodeFilters(filters))
	}
	if page != "" {
		params.Set("page", page)
	}
	return params
}

func copyFilters(filters map[string]string) map[string]string {
	copied := make(map[string]string, len(filters)+2)
	for key, value := range filters {
		copied[key] = value
	}
	return copied
}

func splitRealName(name string) (first, last string, ok bool) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || strings.Contains(trimmed, "@") {
		return "", "", false
	}
	parts := strings.Fields(trimmed)
	if len(parts) == 1 {
		return parts[0], "", true
	}
	return parts[0], parts[len(parts)-1], true
}
