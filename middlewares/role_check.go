package middlewares

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/neighborhood-grub/models"
	"github.com/yeremiapane/neighborhood-grub/utils"
)

// RequireRole lets the request through when the caller holds every role in r.
func RequireRole(r models.RoleSet) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			utils.RespondError(c, http.StatusUnauthorized, fmt.Errorf("unauthorized"))
			c.Abort()
			return
		}
		if !actor.Can(r) {
			utils.RespondError(c, http.StatusForbidden, fmt.Errorf("%s access required", strings.Join(r.Names(), "+")))
			c.Abort()
			return
		}
		c.Next()
	}
}
