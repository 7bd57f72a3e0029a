package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/badgr-bridge/internal/badgr"
	"github.com/smallbiznis/badgr-bridge/internal/domain"
	"github.com/smallbiznis/badgr-bridge/internal/http/middleware"
	"github.com/smallbiznis/badgr-bridge/internal/integration"
)

// IntegrationHandler exposes the integration lifecycle endpoints.
type IntegrationHandler struct {
	Service *integration.Service
	Factory *badgr.Factory
	Logger  *zap.Logger
}

// NewIntegrationHandler creates the handler set.
func NewIntegrationHandler(service *integration.Service, factory *badgr.Factory, logger *zap.Logger) *IntegrationHandler {
	if logger == nil {
		logger = zap.L()
	}
	return &IntegrationHandler{Service: service, Factory: factory, Logger: logger}
}

type integrationResponse struct {
	ID               int64     `json:"id,string"`
	SiteID           int64     `json:"site_id,string"`
	OrganizationID   string    `json:"organization_id,omitempty"`
	OrganizationName string    `json:"organization_name,omitempty"`
	AuthScheme       string    `json:"auth_scheme"`
	BaseURL          string    `json:"base_url,omitempty"`
	CreatedBy        string    `json:"created_by,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toIntegrationResponse(integ domain.Integration) integrationResponse {
	return integrationResponse{
		ID:               integ.ID,
		SiteID:           integ.SiteID,
		OrganizationID:   integ.OrganizationID,
		OrganizationName: integ.OrganizationName,
		AuthScheme:       integ.AuthScheme,
		BaseURL:          integ.BaseURL,
		CreatedBy:        integ.CreatedBy,
		CreatedAt:        integ.CreatedAt,
		UpdatedAt:        integ.UpdatedAt,
	}
}

// Enable activates the integration for the current site with a static
// authorization token.
func (h *IntegrationHandler) Enable(c *gin.Context) {
	siteCtx, ok := middleware.GetSiteContext(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "invalid_site", "error_description": "Site not resolved."})
		return
	}

	var req struct {
		AuthorizationToken string `json:"authorization_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "authorization_token is required."})
		return
	}

	createdBy := adminSubject(c)
	ref := integration.SiteRef{ID: siteCtx.Site.ID, Name: siteCtx.Site.Name}
	integ, bound, err := h.Service.EnableBasic(c.Request.Context(), ref, req.AuthorizationToken, createdBy)
	if err != nil {
		if errors.Is(err, integration.ErrAlreadyEnabled) {
			c.JSON(http.StatusConflict, gin.H{"error": "already_enabled", "error_description": "The site already has an active integration."})
			return
		}
		respondBadgrError(c, err)
		return
	}
	if !bound {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "organization_unresolved", "error_description": "The credentials did not resolve to exactly one organization."})
		return
	}

	c.JSON(http.StatusCreated, toIntegrationResponse(integ))
}

// Get returns the current site's integration.
func (h *IntegrationHandler) Get(c *gin.Context) {
	siteCtx, ok := middleware.GetSiteContext(c)
	if !ok || siteCtx.Integration == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_enabled", "error_description": "No integration is enabled for this site."})
		return
	}
	c.JSON(http.StatusOK, toIntegrationResponse(*siteCtx.Integration))
}

// UpdateAuthorization replaces the static token of a basic integration and
// re-resolves the organization binding.
func (h *IntegrationHandler) UpdateAuthorization(c *gin.Context) {
	siteCtx, ok := middleware.GetSiteContext(c)
	if !ok || siteCtx.Integration == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_enabled", "error_description": "No integration is enabled for this site."})
		return
	}
	if siteCtx.Integration.AuthScheme != domain.AuthSchemeBasic {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Only token-based integrations accept authorization updates."})
		return
	}

	var req struct {
		AuthorizationToken string `json:"authorization_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "authorization_token is required."})
		return
	}

	integ, bound, err := h.Service.UpdateAuthorization(c.Request.Context(), *siteCtx.Integration, req.AuthorizationToken)
	if err != nil {
		respondBadgrError(c, err)
		return
	}
	if !bound {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "organization_unresolved", "error_description": "The credentials did not resolve to exactly one organization."})
		return
	}

	c.JSON(http.StatusOK, toIntegrationResponse(integ))
}

// Disconnect removes the integration and its cached credentials.
func (h *IntegrationHandler) Disconnect(c *gin.Context) {
	siteCtx, ok := middleware.GetSiteContext(c)
	if !ok || siteCtx.Integration == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_enabled", "error_description": "No integration is enabled for this site."})
		return
	}

	if err := h.Service.Disconnect(c.Request.Context(), *siteCtx.Integration); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// Organizations lists the organizations visible to the stored credentials.
func (h *IntegrationHandler) Organizations(c *gin.Context) {
	siteCtx, ok := middleware.GetSiteContext(c)
	if !ok || siteCtx.Integration == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_enabled", "error_description": "No integration is enabled for this site."})
		return
	}

	client := h.Factory.ForIntegration(*siteCtx.Integration)
	orgs, err := client.GetOrganizations(c.Request.Context())
	if err != nil {
		respondBadgrError(c, err)
		return
	}
	c.JSON(http.StatusOK, orgs)
}

func adminSubject(c *gin.Context) string {
	if claims, ok := middleware.GetAdminClaims(c); ok && claims != nil {
		return claims.Subject
	}
	return ""
}
