package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ammar0101/campus-security-system/internal/domain/entity"
	"github.com/ammar0101/campus-security-system/internal/service"
	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// abort écrit l'enveloppe d'erreur commune à toute l'API.
func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   gin.H{"code": code, "message": message},
	})
}

func extractToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	// les navigateurs ne peuvent pas poser d'en-tête sur un upgrade websocket
	return c.Query("token")
}

// AuthMiddleware authentifie la requête et place l'identité dans le contexte.
func AuthMiddleware(authService service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authorization bearer token required")
			return
		}

		identity, err := authService.Authenticate(c.Request.Context(), token)
		switch {
		case errors.Is(err, service.ErrInactiveAccount):
			abort(c, http.StatusForbidden, "ACCOUNT_INACTIVE", "Account is not active")
			return
		case errors.Is(err, service.ErrInvalidToken):
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or expired token")
			return
		case err != nil:
			abort(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Authentication failed")
			return
		}

		c.Set(identityKey, identity)
		c.Set("userID", identity.UserID)
		c.Set("role", string(identity.Role))
		c.Next()
	}
}

// IdentityFrom retourne l'identité posée par AuthMiddleware.
func IdentityFrom(c *gin.Context) (entity.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return entity.Identity{}, false
	}
	identity, ok := v.(entity.Identity)
	return identity, ok
}
