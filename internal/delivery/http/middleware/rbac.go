package middleware

import (
	"net/http"

	"github.com/ammar0101/campus-security-system/internal/domain/entity"
	"github.com/gin-gonic/gin"
)

// RoleMiddleware vérifie que l'utilisateur a l'un des rôles autorisés.
// L'Admin a accès à tout.
func RoleMiddleware(allowedRoles ...entity.UserRole) gin.HandlerFunc {
	roleSet := make(map[entity.UserRole]bool)
	for _, r := range allowedRoles {
		roleSet[r] = true
	}

	return func(c *gin.Context) {
		identity, ok := IdentityFrom(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "identity not found in context")
			return
		}

		if identity.Role == entity.RoleAdmin || roleSet[identity.Role] {
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "insufficient permissions",
				"details": gin.H{"required_roles": allowedRoles, "current_role": identity.Role},
			},
		})
	}
}

// AdminOnly autorise uniquement les administrateurs
func AdminOnly() gin.HandlerFunc {
	return RoleMiddleware(entity.RoleAdmin)
}

// StaffOnly autorise les agents de sécurité et les administrateurs
func StaffOnly() gin.HandlerFunc {
	return RoleMiddleware(entity.RoleSecurityStaff)
}
