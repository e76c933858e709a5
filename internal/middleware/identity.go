package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// CtxUserIDKey is the gin context key carrying the caller's user id.
const CtxUserIDKey = "userID"

// UserIDHeader names the header the upstream gateway sets after
// authenticating the caller. This service trusts it as-is.
const UserIDHeader = "X-User-ID"

// Identity copies the gateway-asserted user id into the request context.
// Routes that require a user reject requests where the header is absent.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID := strings.TrimSpace(c.GetHeader(UserIDHeader)); userID != "" {
			c.Set(CtxUserIDKey, userID)
		}
		c.Next()
	}
}
