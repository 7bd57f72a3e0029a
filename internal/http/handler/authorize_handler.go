package handler

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smallbiznis/badgr-bridge/internal/config"
	"github.com/smallbiznis/badgr-bridge/internal/http/middleware"
	"github.com/smallbiznis/badgr-bridge/internal/integration"
	"github.com/smallbiznis/badgr-bridge/internal/token"
)

const callbackPath = "/integration/callback"

// AuthorizeHandler drives the OAuth authorization-code handshake with the
// badge service.
type AuthorizeHandler struct {
	States   integration.StateStore
	Endpoint *token.Endpoint
	Service  *integration.Service
	Config   config.Config
	Logger   *zap.Logger
}

// NewAuthorizeHandler creates the handler set.
func NewAuthorizeHandler(states integration.StateStore, endpoint *token.Endpoint, service *integration.Service, cfg config.Config, logger *zap.Logger) *AuthorizeHandler {
	if logger == nil {
		logger = zap.L()
	}
	return &AuthorizeHandler{States: states, Endpoint: endpoint, Service: service, Config: cfg, Logger: logger}
}

// Start redirects the administrator to the badge service's authorization
// page, remembering where to land afterwards.
func (h *AuthorizeHandler) Start(c *gin.Context) {
	siteCtx, ok := middleware.GetSiteContext(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "invalid_site", "error_description": "Site not resolved."})
		return
	}
	if siteCtx.Integration != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "already_enabled", "error_description": "The site already has an active integration."})
		return
	}

	state := uuid.NewString()
	redirectURI := fmt.Sprintf("%s://%s%s", schemeOnly(c.Request), hostOnly(c.Request), callbackPath)

	hs := integration.HandshakeState{
		State:       state,
		SiteID:      siteCtx.Site.ID,
		RedirectURI: redirectURI,
		SuccessURI:  c.Query("success"),
		FailureURI:  c.Query("failure"),
		CreatedBy:   adminSubject(c),
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.States.SaveState(c.Request.Context(), state, hs, h.Config.HandshakeStateTTL); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": err.Error()})
		return
	}

	query := url.Values{}
	query.Set("client_id", h.Config.BadgrClientID)
	query.Set("redirect_uri", redirectURI)
	query.Set("response_type", "code")
	query.Set("scope", h.Config.BadgrScope)
	query.Set("state", state)

	c.Redirect(http.StatusFound, h.Config.BadgrAuthorizeURL+"?"+query.Encode())
}

// Callback completes the handshake: the authorization code is exchanged for
// a token pair, the organization resolved, and the integration persisted.
func (h *AuthorizeHandler) Callback(c *gin.Context) {
	siteCtx, ok := middleware.GetSiteContext(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "invalid_site", "error_description": "Site not resolved."})
		return
	}

	state := c.Query("state")
	hs, err := h.States.GetState(c.Request.Context(), state)
	if err != nil || hs == nil || hs.SiteID != siteCtx.Site.ID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_state", "error_description": "Unknown or expired handshake state."})
		return
	}
	if err := h.States.DeleteState(c.Request.Context(), state); err != nil {
		h.Logger.Warn("failed to delete handshake state", zap.Error(err))
	}

	provErr := c.Query("error")
	if provErr == "" {
		provErr = c.Query("errorCode")
	}
	if provErr != "" {
		h.Logger.Warn("authorization denied by provider",
			zap.Int64("site_id", hs.SiteID),
			zap.String("error", provErr))
		h.finish(c, hs.FailureURI, http.StatusUnauthorized, gin.H{"error": provErr, "error_description": c.Query("error_description")})
		return
	}

	pair, err := h.Endpoint.Exchange(c.Request.Context(), c.Query("code"), hs.RedirectURI)
	if err != nil {
		h.Logger.Warn("code exchange failed", zap.Int64("site_id", hs.SiteID), zap.Error(err))
		h.finish(c, hs.FailureURI, http.StatusUnauthorized, gin.H{"error": "invalid_authorization", "error_description": "The authorization code could not be exchanged."})
		return
	}

	ref := integration.SiteRef{ID: siteCtx.Site.ID, Name: siteCtx.Site.Name}
	integ, bound, err := h.Service.CompleteHandshake(c.Request.Context(), ref, hs.CreatedBy, pair)
	if err != nil {
		if errors.Is(err, integration.ErrAlreadyEnabled) {
			h.finish(c, hs.FailureURI, http.StatusConflict, gin.H{"error": "already_enabled", "error_description": "The site already has an active integration."})
			return
		}
		h.finish(c, hs.FailureURI, http.StatusBadGateway, gin.H{"error": "server_error", "error_description": err.Error()})
		return
	}
	if !bound {
		h.finish(c, hs.FailureURI, http.StatusUnprocessableEntity, gin.H{"error": "organization_unresolved", "error_description": "The credentials did not resolve to exactly one organization."})
		return
	}

	if hs.SuccessURI != "" {
		c.Redirect(http.StatusFound, hs.SuccessURI)
		return
	}
	c.JSON(http.StatusCreated, toIntegrationResponse(integ))
}

// finish redirects the browser when a landing URI was captured at the start
// of the handshake, otherwise answers with a JSON body.
func (h *AuthorizeHandler) finish(c *gin.Context, uri string, status int, body gin.H) {
	if uri == "" {
		c.JSON(status, body)
		return
	}

	target, err := url.Parse(uri)
	if err != nil {
		c.JSON(status, body)
		return
	}
	q := target.Query()
	if v, ok := body["error"].(string); ok && v != "" {
		q.Set("error", v)
	}
	target.RawQuery = q.Encode()
	c.Redirect(http.StatusFound, target.String())
}

func hostOnly(r *http.Request) string {
	host := r.Host
	if strings.Contains(host, ":") {
		if h, _, err := net.SplitHostPort(host); err == nil {
			return h
		}
	}
	return host
}

func schemeOnly(r *http.Request) string {
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		if r.TLS != nil {
			scheme = "https"
		} else {
			scheme = "http"
		}
	}
	return scheme
}
