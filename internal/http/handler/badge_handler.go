package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/badgr-bridge/internal/badgr"
	"github.com/smallbiznis/badgr-bridge/internal/domain"
	domainbadgr "github.com/smallbiznis/badgr-bridge/internal/domain/badgr"
	"github.com/smallbiznis/badgr-bridge/internal/http/middleware"
	"github.com/smallbiznis/badgr-bridge/internal/repository"
)

// BadgeHandler exposes the badge catalog and award endpoints for a site.
type BadgeHandler struct {
	Factory *badgr.Factory
	Users   repository.UserRepository
	Logger  *zap.Logger
}

// NewBadgeHandler creates the handler set.
func NewBadgeHandler(factory *badgr.Factory, users repository.UserRepository, logger *zap.Logger) *BadgeHandler {
	if logger == nil {
		logger = zap.L()
	}
	return &BadgeHandler{Factory: factory, Users: users, Logger: logger}
}

// ListBadges returns the site's badge templates, sorted by name unless the
// caller asks otherwise.
func (h *BadgeHandler) ListBadges(c *gin.Context) {
	client, ok := h.siteClient(c)
	if !ok {
		return
	}

	opts := listOptionsFromQuery(c, []string{"name"})
	badges, err := client.GetBadges(c.Request.Context(), opts)
	if err != nil {
		respondBadgrError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":    badges.Items,
		"metadata": badges.Page,
		"links":    pageLinks(c, badges.Page),
	})
}

// GetBadge returns a single badge template.
func (h *BadgeHandler) GetBadge(c *gin.Context) {
	client, ok := h.siteClient(c)
	if !ok {
		return
	}

	badge, err := client.GetBadge(c.Request.Context(), c.Param("badge_id"))
	if err != nil {
		respondBadgrError(c, err)
		return
	}
	c.JSON(http.StatusOK, badge)
}

// ListAwardedBadges returns the badges awarded to a user, newest first. A
// viewer other than the user only sees public, accepted awards.
func (h *BadgeHandler) ListAwardedBadges(c *gin.Context) {
	client, ok := h.siteClient(c)
	if !ok {
		return
	}
	user, ok := h.lookupUser(c)
	if !ok {
		return
	}

	publicOnly := c.Query("public_only") == "true"
	acceptedOnly := c.Query("accepted_only") == "true"
	if adminSubject(c) != user.Email {
		publicOnly = true
		acceptedOnly = true
	}

	opts := listOptionsFromQuery(c, []string{"-issued_at"})
	awards, err := client.GetAwardedBadges(c.Request.Context(), user, opts, publicOnly, acceptedOnly)
	if err != nil {
		respondBadgrError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":    awards.Items,
		"metadata": awards.Page,
		"links":    pageLinks(c, awards.Page),
	})
}

// AwardBadge awards a badge template to a user.
func (h *BadgeHandler) AwardBadge(c *gin.Context) {
	client, ok := h.siteClient(c)
	if !ok {
		return
	}
	user, ok := h.lookupUser(c)
	if !ok {
		return
	}

	var req struct {
		BadgeTemplateID      string `json:"badge_template_id" binding:"required"`
		SuppressNotification bool   `json:"suppress_notification"`
		Locale               string `json:"locale"`
		EvidenceRef          string `json:"evidence_ref"`
		EvidenceTitle        string `json:"evidence_title"`
		EvidenceDescription  string `json:"evidence_description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "badge_template_id is required."})
		return
	}

	award, err := client.AwardBadge(c.Request.Context(), user, req.BadgeTemplateID, badgr.AwardOptions{
		SuppressNotification: req.SuppressNotification,
		Locale:               req.Locale,
		EvidenceRef:          req.EvidenceRef,
		EvidenceTitle:        req.EvidenceTitle,
		EvidenceDescription:  req.EvidenceDescription,
	})
	if err != nil {
		respondBadgrError(c, err)
		return
	}

	c.JSON(http.StatusCreated, award)
}

func (h *BadgeHandler) siteClient(c *gin.Context) (*badgr.Client, bool) {
	siteCtx, ok := middleware.GetSiteContext(c)
	if !ok || siteCtx.Integration == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_enabled", "error_description": "No integration is enabled for this site."})
		return nil, false
	}
	return h.Factory.ForIntegration(*siteCtx.Integration), true
}

func (h *BadgeHandler) lookupUser(c *gin.Context) (domain.User, bool) {
	siteCtx, ok := middleware.GetSiteContext(c)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "invalid_site", "error_description": "Site not resolved."})
		return domain.User{}, false
	}
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "user_id must be numeric."})
		return domain.User{}, false
	}

	user, err := h.Users.GetByID(c.Request.Context(), siteCtx.Site.ID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown_user", "error_description": "User not found."})
			return domain.User{}, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": err.Error()})
		return domain.User{}, false
	}
	return user, true
}

// listOptionsFromQuery builds list options from sort, filter, and page query
// parameters. filter values use the key::value form.
func listOptionsFromQuery(c *gin.Context, defaultSort []string) badgr.ListOptions {
	opts := badgr.ListOptions{Sort: defaultSort, Page: c.Query("page")}

	if raw := strings.TrimSpace(c.Query("sort")); raw != "" {
		var sort []string
		for _, field := range strings.Split(raw, ",") {
			if field = strings.TrimSpace(field); field != "" {
				sort = append(sort, field)
			}
		}
		if len(sort) > 0 {
			opts.Sort = sort
		}
	}

	for _, raw := range c.QueryArray("filter") {
		key, value, found := strings.Cut(raw, "::")
		if !found || key == "" {
			continue
		}
		if opts.Filters == nil {
			opts.Filters = make(map[string]string)
		}
		opts.Filters[key] = value
	}

	return opts
}

// pageLinks renders batch navigation links for a collection page.
func pageLinks(c *gin.Context, meta domainbadgr.PageMetadata) gin.H {
	links := gin.H{}
	if meta.CurrentPage > 1 {
		links["batch-prev"] = pageURL(c, meta.CurrentPage-1)
	}
	if meta.TotalPages > meta.CurrentPage {
		links["batch-next"] = pageURL(c, meta.CurrentPage+1)
	}
	return links
}

func pageURL(c *gin.Context, page int) string {
	u := *c.Request.URL
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}
