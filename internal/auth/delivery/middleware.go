package delivery

import (
	"net/http"
	"strings"

	authdomain "crmboard/internal/auth/domain"
	"crmboard/internal/auth/usecase"

	"github.com/gin-gonic/gin"
)

// Context keys set by AuthMiddleware
const (
	ContextUser     = "user"
	ContextUserID   = "userID"
	ContextTenantID = "tenantID"
	ContextRole     = "role"
)

// AuthMiddleware validates the bearer token. Websocket clients that cannot
// set headers may pass the token as the access_token query parameter.
func AuthMiddleware(authUsecase usecase.AuthUsecase) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("access_token")
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
				c.Abort()
				return
			}
			token = parts[1]
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			c.Abort()
			return
		}

		user, err := authUsecase.ValidateToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(ContextUser, user)
		c.Set(ContextUserID, user.ID)
		c.Set(ContextTenantID, user.TenantID)
		c.Set(ContextRole, string(user.Role))
		c.Next()
	}
}

// TenantMiddleware rejects requests whose :tenant_id differs from the session tenant
func TenantMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Param("tenant_id") != c.GetString(ContextTenantID) {
			c.JSON(http.StatusForbidden, gin.H{"error": "tenant mismatch"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireAdmin lets only tenant administrators through
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ContextRole) != string(authdomain.RoleAdmin) {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentUser returns the user stored by AuthMiddleware
func CurrentUser(c *gin.Context) (*authdomain.User, bool) {
	v, ok := c.Get(ContextUser)
	if !ok {
		return nil, false
	}
	user, ok := v.(*authdomain.User)
	return user, ok
}
