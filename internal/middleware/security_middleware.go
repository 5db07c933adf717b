package middleware

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"go-pos-sync/internal/auth"

	"github.com/gin-gonic/gin"
)

// Context keys set for the handlers.
const (
	KeyUserID = "userID"
	KeyRole   = "role"
	KeyPeer   = "peer"
)

// RolePeer marks requests authenticated with the shared sync key.
const RolePeer = "peer"

// AccessKey guards the /api group. Terminals send the shared key as
// "Authorization: Bearer <key>" or "x-api-key"; the dashboard may send a
// JWT instead. In permissive mode every request passes.
func AccessKey(keys *auth.KeyVerifier, tokens *auth.Issuer, permissive bool) gin.HandlerFunc {
	if permissive {
		slog.Warn("sync API running in permissive mode, access keys are not checked")
	}
	return func(c *gin.Context) {
		// 1. Collect the credential from either header
		credential := c.GetHeader("x-api-key")
		if credential == "" {
			authHeader := c.GetHeader("Authorization")
			credential = strings.TrimPrefix(authHeader, "Bearer ")
			if credential == authHeader {
				credential = ""
			}
		}
		c.Set(KeyPeer, c.GetHeader("x-peer-id"))

		// 2. Shared sync key
		if credential != "" && keys.Verify(credential) == nil {
			c.Set(KeyRole, RolePeer)
			c.Next()
			return
		}

		// 3. Dashboard token
		if credential != "" && tokens != nil {
			if claims, err := tokens.ValidateToken(credential); err == nil {
				c.Set(KeyUserID, claims.UserID)
				c.Set(KeyRole, claims.Role)
				c.Next()
				return
			}
		}

		if permissive {
			c.Set(KeyRole, RolePeer)
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or missing access key"})
	}
}

// RequireRole is a secondary guard that checks for specific permissions
func RequireRole(allowed ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(KeyRole)
		if !slices.Contains(allowed, role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "You do not have permission to access this resource"})
			return
		}
		c.Next()
	}
}
