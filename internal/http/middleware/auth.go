package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"prep-service/internal/auth"
	"prep-service/internal/model"
)

const (
	claimsContextKey    = "tokenClaims"
	principalContextKey = "principal"
	tokenContextKey     = "accessToken"
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer"
)

func Auth(parser *auth.Parser) gin.HandlerFunc {
	return func(c *gin.Context) {
		rawHeader := c.GetHeader(authorizationHeader)
		if rawHeader == "" {
			abort(c, http.StatusUnauthorized, "authorization header missing")
			return
		}

		parts := strings.SplitN(rawHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], bearerPrefix) || strings.TrimSpace(parts[1]) == "" {
			abort(c, http.StatusUnauthorized, "invalid authorization header")
			return
		}
		token := strings.TrimSpace(parts[1])

		claims, err := parser.Parse(token)
		if err != nil {
			abort(c, http.StatusUnauthorized, "invalid token")
			return
		}

		principal := model.Principal{
			UserID:    claims.UserID,
			Email:     claims.Email,
			Role:      model.Role(claims.Role),
			AgencyIDs: claims.Agencies,
		}

		c.Set(claimsContextKey, claims)
		c.Set(principalContextKey, principal)
		c.Set(tokenContextKey, token)
		c.Next()
	}
}

// RequireRole lets through principals holding one of roles.
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := MustPrincipal(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "missing principal")
			return
		}
		for _, role := range roles {
			if principal.Role == role {
				c.Next()
				return
			}
		}
		abort(c, http.StatusForbidden, "permission denied")
	}
}

func MustPrincipal(c *gin.Context) (model.Principal, bool) {
	value, exists := c.Get(principalContextKey)
	if !exists {
		return model.Principal{}, false
	}

	principal, ok := value.(model.Principal)
	if !ok {
		return model.Principal{}, false
	}

	return principal, true
}

// MustSession assembles the caller's session: principal, forwarded token and selected agency.
func MustSession(c *gin.Context) (model.Session, bool) {
	principal, ok := MustPrincipal(c)
	if !ok {
		return model.Session{}, false
	}
	token := c.GetString(tokenContextKey)
	if token == "" {
		return model.Session{}, false
	}
	return model.Session{
		Principal: principal,
		Token:     token,
		AgencyID:  c.GetString(agencyContextKey),
	}, true
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"message": message,
	})
}
