package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	CtxSubjectKey = "subject"
	CtxRoleKey    = "role"
)

// bearerToken reads the token from "Authorization: Bearer <token>".
func bearerToken(c *gin.Context) string {
	h := strings.TrimSpace(c.GetHeader("Authorization"))
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
