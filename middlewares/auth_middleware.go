package middlewares

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/neighborhood-grub/models"
	"github.com/yeremiapane/neighborhood-grub/utils"
)

// Context keys set by the auth middlewares.
const (
	ContextAccountID = "account_id"
	ContextRoles     = "roles"
)

func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.RespondError(c, http.StatusUnauthorized, errors.New("Authorization header missing"))
			c.Abort()
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			utils.RespondError(c, http.StatusUnauthorized, errors.New("format token tidak valid"))
			c.Abort()
			return
		}

		claims, err := utils.ParseToken(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil || claims == nil {
			utils.RespondError(c, http.StatusUnauthorized, errors.New("Invalid or expired token"))
			c.Abort()
			return
		}
		if claims.AccountID == 0 {
			utils.RespondError(c, http.StatusUnauthorized, errors.New("Invalid account ID in token"))
			c.Abort()
			return
		}

		c.Set(ContextAccountID, claims.AccountID)
		c.Set(ContextRoles, claims.Roles)
		c.Next()
	}
}

// ActorFrom returns the caller identity placed in the context by the auth middlewares.
func ActorFrom(c *gin.Context) (models.Actor, bool) {
	id, ok := c.Get(ContextAccountID)
	if !ok {
		return models.Actor{}, false
	}
	accountID, ok := id.(uint)
	if !ok {
		return models.Actor{}, false
	}
	roles, _ := c.Get(ContextRoles)
	set, _ := roles.(models.RoleSet)
	return models.Actor{AccountID: accountID, Roles: set}, true
}
