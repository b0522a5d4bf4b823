package middlewares

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/neighborhood-grub/utils"
)

// StandingChecker reports whether an account is active and whether it is suspended.
type StandingChecker interface {
	Standing(ctx context.Context, accountID uint) (active, suspended bool, err error)
}

// SuspensionGate blocks deactivated and suspended accounts. Mount it after
// AuthMiddleware on every route except the suspension appeal.
func SuspensionGate(checker StandingChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			utils.RespondError(c, http.StatusUnauthorized, errors.New("unauthorized"))
			c.Abort()
			return
		}

		active, suspended, err := checker.Standing(c.Request.Context(), actor.AccountID)
		if err != nil {
			utils.RespondError(c, http.StatusUnauthorized, errors.New("account not found"))
			c.Abort()
			return
		}
		if !active {
			utils.RespondError(c, http.StatusForbidden, errors.New("account has been deactivated"))
			c.Abort()
			return
		}
		if suspended {
			utils.RespondError(c, http.StatusForbidden, errors.New("account is suspended, file an appeal"))
			c.Abort()
			return
		}
		c.Next()
	}
}
