package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const userKey = "auth.user"

// RequireAdmin rejects requests without a valid bearer token (401) or whose
// user is not an admin (403).
func RequireAdmin(verifier TokenVerifier, admins AdminDirectory) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearer(c.GetHeader("Authorization"))
		if err == nil {
			var user string
			user, err = verifier.Verify(token)
			if err == nil {
				if !admins.IsAdmin(user) {
					c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "message": ErrForbidden.Error()})
					return
				}
				c.Set(userKey, user)
				c.Next()
				return
			}
		}
		c.Header("WWW-Authenticate", `Bearer realm="walldrop"`)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": err.Error()})
	}
}

// User returns the authenticated user id set by RequireAdmin.
func User(c *gin.Context) string {
	return c.GetString(userKey)
}

func bearer(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(token), nil
}

// IsAuthError reports whether err came from token checks.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrMissingToken) || errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrExpiredToken)
}
