package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lorekeep/lorekeep/internal/sessions"
	"github.com/lorekeep/lorekeep/internal/tokens"
)

// Context keys set by the auth middlewares.
const (
	CtxClaims      = "claims"
	CtxAccessToken = "access_token"
)

// ParseFunc validates a raw access token and returns its claims.
type ParseFunc func(raw string) (*tokens.Claims, error)

// AuthMiddleware returns a Gin middleware that verifies Bearer access tokens
// and rejects blacklisted ones. Claims and the raw token are stored on the
// request context for handlers.
func AuthMiddleware(parse ParseFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Missing authorization header"})
			return
		}
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Invalid authorization header"})
			return
		}
		authorize(c, parse, token)
	}
}

// AuthQueryToken verifies the access token from the ?token= query parameter.
// Stream consumers cannot set request headers, so the SSE endpoint uses this
// instead of AuthMiddleware.
func AuthQueryToken(parse ParseFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Missing authorization token"})
			return
		}
		authorize(c, parse, token)
	}
}

func authorize(c *gin.Context, parse ParseFunc, token string) {
	blacklisted, err := sessions.IsAccessTokenBlacklisted(c.Request.Context(), token)
	if err == nil && blacklisted {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Token has been revoked"})
		return
	}

	claims, err := parse(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Invalid or expired token"})
		return
	}

	c.Set(CtxClaims, claims)
	c.Set(CtxAccessToken, token)
	c.Next()
}

// ClaimsFrom returns the verified claims stored by the auth middlewares.
func ClaimsFrom(c *gin.Context) *tokens.Claims {
	v, ok := c.Get(CtxClaims)
	if !ok {
		return nil
	}
	claims, _ := v.(*tokens.Claims)
	return claims
}
