package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/badgr-bridge/internal/site"
)

const siteContextKey = "siteContext"

// Site attaches site metadata to the gin context. The site is resolved
// from the X-Site-ID header when present, otherwise from the request host.
func Site(resolver *site.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		siteName := strings.TrimSpace(c.Request.Header.Get("X-Site-ID"))

		var (
			siteCtx *site.Context
			err     error
		)

		if siteName != "" {
			siteCtx, err = resolver.ResolveByName(c.Request.Context(), siteName)
		} else {
			host := stripPort(c.Request.Host)
			siteCtx, err = resolver.Resolve(c.Request.Context(), host)
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "invalid_site", "error_description": "Unknown site."})
			return
		}
		c.Set(siteContextKey, siteCtx)
		c.Next()
	}
}

// GetSiteContext extracts the site context from gin.
func GetSiteContext(c *gin.Context) (*site.Context, bool) {
	value, ok := c.Get(siteContextKey)
	if !ok {
		return nil, false
	}
	siteCtx, ok := value.(*site.Context)
	return siteCtx, ok
}

func stripPort(host string) string {
	if strings.Contains(host, ":") {
		h, _, err := net.SplitHostPort(host)
		if err == nil {
			return h
		}
	}
	return host
}
