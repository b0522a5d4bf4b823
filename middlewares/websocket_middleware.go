package middlewares

import (
	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/neighborhood-grub/utils"
)

// WebSocketAuthMiddleware reads the token from the query string, since
// browsers cannot set headers on a websocket handshake.
func WebSocketAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.AbortWithStatus(401)
			return
		}

		claims, err := utils.ParseToken(token)
		if err != nil || claims.AccountID == 0 {
			c.AbortWithStatus(401)
			return
		}

		c.Set(ContextAccountID, claims.AccountID)
		c.Set(ContextRoles, claims.Roles)
		c.Next()
	}
}
