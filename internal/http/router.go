package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/smallbiznis/badgr-bridge/internal/config"
	"github.com/smallbiznis/badgr-bridge/internal/http/handler"
	httpmiddleware "github.com/smallbiznis/badgr-bridge/internal/http/middleware"
	"github.com/smallbiznis/badgr-bridge/internal/middleware"
	"github.com/smallbiznis/badgr-bridge/internal/site"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(
	cfg config.Config,
	integrationHandler *handler.IntegrationHandler,
	badgeHandler *handler.BadgeHandler,
	authorizeHandler *handler.AuthorizeHandler,
	adminAuth *httpmiddleware.Admin,
	resolver *site.Resolver,
	rateLimiter *middleware.RateLimiter,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	sited := r.Group("/", httpmiddleware.Site(resolver), middleware.SiteCORS(cfg))

	integrationGroup := sited.Group("/integration")
	{
		integrationGroup.GET("/callback", authorizeHandler.Callback)

		admin := integrationGroup.Group("", adminAuth.ValidateJWT)
		{
			admin.POST("", integrationHandler.Enable)
			admin.GET("", integrationHandler.Get)
			admin.PUT("/authorization", integrationHandler.UpdateAuthorization)
			admin.DELETE("", integrationHandler.Disconnect)
			admin.GET("/organizations", integrationHandler.Organizations)
			admin.GET("/authorize", authorizeHandler.Start)
		}
	}

	badges := sited.Group("/badges", adminAuth.ValidateJWT)
	{
		badges.GET("", badgeHandler.ListBadges)
		badges.GET("/:badge_id", badgeHandler.GetBadge)
	}

	users := sited.Group("/users", adminAuth.ValidateJWT)
	{
		users.GET("/:user_id/badges", badgeHandler.ListAwardedBadges)
		users.POST("/:user_id/badges", badgeHandler.AwardBadge)
	}

	return r
}
