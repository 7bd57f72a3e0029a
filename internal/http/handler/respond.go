package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	domainbadgr "github.com/smallbiznis/badgr-bridge/internal/domain/badgr"
	"github.com/smallbiznis/badgr-bridge/internal/token"
)

// respondBadgrError maps client and token errors onto the wire taxonomy.
func respondBadgrError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domainbadgr.ErrInvalidAuthorization):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_authorization", "error_description": "The badge service rejected the stored credentials."})
	case errors.Is(err, domainbadgr.ErrMissingOrganization):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "organization_unresolved", "error_description": "The integration is not bound to an organization."})
	case errors.Is(err, domainbadgr.ErrDuplicateAward):
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate_award", "error_description": "The user already has this badge."})
	case errors.Is(err, domainbadgr.ErrInvalidEvidenceRef):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_evidence", "error_description": "The evidence reference is not a valid platform reference."})
	case errors.Is(err, domainbadgr.ErrMissingRefreshToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_authorization", "error_description": "No refresh token is available for this integration."})
	case errors.Is(err, domainbadgr.ErrProtocolViolation):
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream_protocol_error", "error_description": "The badge service returned a malformed response."})
	case errors.Is(err, domainbadgr.ErrLockTimeout):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily_unavailable", "error_description": "Token refresh is in progress. Retry shortly."})
	case errors.Is(err, token.ErrLockWaitExpired):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily_unavailable", "error_description": "Token refresh is in progress. Retry shortly."})
	default:
		var clientErr *domainbadgr.ClientError
		if errors.As(err, &clientErr) {
			c.JSON(http.StatusBadGateway, gin.H{"error": "upstream_error", "error_description": clientErr.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": err.Error()})
	}
}
