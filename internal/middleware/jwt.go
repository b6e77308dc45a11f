package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/edulist/backend/internal/auth"
	"github.com/edulist/backend/pkg/response"
)

const (
	// ContextUserID holds the caller's uuid.UUID.
	ContextUserID = "user_id"
	// ContextUserRole holds the caller's models.Role.
	ContextUserRole = "user_role"
	// ContextUserEmail holds the caller's email.
	ContextUserEmail = "user_email"
)

// JWT validates the bearer token and stores the caller in the gin context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		scheme, token, ok := strings.Cut(c.GetHeader("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			response.Unauthorized(c, "missing or malformed authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(strings.TrimSpace(token))
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserRole, claims.Role)
		c.Set(ContextUserEmail, claims.Email)
		c.Next()
	}
}
