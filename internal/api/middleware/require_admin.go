package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/launchkit/internal/utils"
)

type AdminChecker interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// RequireAdmin lets through callers whose token carries the admin app role
// or whose profile has is_admin. It must run after JWTAuth.
func RequireAdmin(profiles AdminChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(CtxUserID)
		if userID == "" {
			abort(c, http.StatusUnauthorized, utils.CodeUnauthorized, "unauthorized")
			return
		}
		if c.GetString(CtxRole) == "admin" {
			c.Next()
			return
		}

		ok, err := profiles.IsAdmin(c.Request.Context(), userID)
		if err != nil {
			_ = c.Error(err)
			abort(c, utils.HTTPStatus(err), utils.CodeInternal, "failed to verify admin status")
			return
		}
		if !ok {
			abort(c, http.StatusForbidden, utils.CodeForbidden, "Admin access required")
			return
		}
		c.Next()
	}
}
