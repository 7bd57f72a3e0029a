package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	jose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
)

const adminClaimsKey = "adminClaims"

// Admin validates platform-issued bearer tokens on administrative routes.
type Admin struct {
	Secret []byte
	Issuer string
}

// ValidateJWT ensures the request carries a valid admin bearer token.
func (m *Admin) ValidateJWT(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Authorization header required."})
		return
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Bearer token required."})
		return
	}

	parsed, err := gojwt.ParseSigned(parts[1], []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Invalid access token."})
		return
	}
	var claims gojwt.Claims
	if err := parsed.Claims(m.Secret, &claims); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Invalid access token."})
		return
	}
	if err := claims.Validate(gojwt.Expected{Issuer: m.Issuer, Time: time.Now()}); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Invalid access token."})
		return
	}

	c.Set(adminClaimsKey, &claims)
	c.Next()
}

// GetAdminClaims returns the validated admin claims set.
func GetAdminClaims(c *gin.Context) (*gojwt.Claims, bool) {
	value, ok := c.Get(adminClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := value.(*gojwt.Claims)
	return claims, ok
}
