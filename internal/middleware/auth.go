// Package middleware holds the gin middleware of the HTTP API.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/log"
	"github.com/noelpapali/Conversational-AI-Chatbot/pkg/token"
)

// ClaimsKey is the gin context key holding the verified *token.CustomClaims.
const ClaimsKey = "claims"

// AuthMiddleware verifies the bearer token of the request and stores its
// claims under ClaimsKey.
func AuthMiddleware(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		claims, err := jwtManager.VerifyToken(strings.TrimPrefix(authHeader, bearerPrefix))
		if err != nil {
			log.Warnf("[Auth] rejected token for %s: %v", c.Request.URL.Path, err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// Claims returns the claims stored by AuthMiddleware.
func Claims(c *gin.Context) (*token.CustomClaims, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*token.CustomClaims)
	return claims, ok
}
