package middleware

import (
	"errors"
	"net/http"
	"strings"

	"marketplace/config"
	"marketplace/internal/auth"
	"marketplace/internal/domain"

	"github.com/gin-gonic/gin"
)

// AuthRequired validates the bearer JWT and sets user_id and role in context.
func AuthRequired(cfg *config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		claims, err := auth.ParseAccessToken(cfg, parts[1])
		if errors.Is(err, auth.ErrExpiredToken) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token expired", "code": "TOKEN_EXPIRED"})
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("user_id", claims.UserID)
		c.Set("role", claims.Role)
		c.Set("claims", claims)
		c.Next()
	}
}

// RequireRole checks that the authenticated user has one of the allowed roles.
func RequireRole(allowed ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		r := GetRole(c)
		if r == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		for _, a := range allowed {
			if r == a {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	}
}

// StaffOnly allows ADMIN and FINANCE.
func StaffOnly() gin.HandlerFunc {
	return RequireRole(domain.RoleAdmin, domain.RoleFinance)
}

// GetUserID returns the authenticated user ID from context (must be used after AuthRequired).
func GetUserID(c *gin.Context) string {
	return c.GetString("user_id")
}

func GetRole(c *gin.Context) string {
	return c.GetString("role")
}

// GetActor formats the caller for audit trails, e.g. "FINANCE:fin-7".
func GetActor(c *gin.Context) string {
	id := GetUserID(c)
	if id == "" {
		return domain.ActorSystem
	}
	return GetRole(c) + ":" + id
}

// CanAccessSeller reports whether the caller may read data belonging to sellerID.
func CanAccessSeller(c *gin.Context, sellerID string) bool {
	switch GetRole(c) {
	case domain.RoleAdmin, domain.RoleFinance:
		return true
	case domain.RoleSeller:
		return GetUserID(c) == sellerID
	}
	return false
}
