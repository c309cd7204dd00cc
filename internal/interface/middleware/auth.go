package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/account-lifecycle/pkg/helpers"
	"github.com/oksasatya/account-lifecycle/pkg/response"
)

// RequireRole validates the bearer token and requires the given role claim.
// It sets subject and role in the Gin context on success.
func RequireRole(jwt *helpers.JWTManager, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			response.Abort(c, http.StatusUnauthorized, "missing bearer token", nil)
			return
		}
		claims, err := jwt.ParseToken(token)
		if err != nil {
			response.Abort(c, http.StatusUnauthorized, "invalid bearer token", err)
			return
		}
		if claims.Role != role {
			response.Abort(c, http.StatusForbidden, "insufficient role", nil)
			return
		}
		c.Set(CtxSubjectKey, claims.Subject)
		c.Set(CtxRoleKey, claims.Role)
		c.Next()
	}
}
