package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/token"
)

// RequireRole rejects requests whose claims carry a different role.
// It must run after AuthMiddleware.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := Claims(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "missing claims"})
			return
		}
		if claims.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role, " + role + " required"})
			return
		}
		c.Next()
	}
}

// AdminAuthMiddleware restricts a route group to admin tokens.
func AdminAuthMiddleware() gin.HandlerFunc {
	return RequireRole(token.RoleAdmin)
}
