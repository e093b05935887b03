package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-erp-api/internal/models"
	appErrors "github.com/noah-isme/sma-erp-api/pkg/errors"
	"github.com/noah-isme/sma-erp-api/pkg/response"
)

// RequireRoles only lets sessions of the listed roles through. It must run after JWT.
func RequireRoles(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		session := CurrentSession(c)
		if session == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[session.Role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireRolesOrSelf also admits a Student whose linked student id equals the :param path
// segment.
func RequireRolesOrSelf(param string, roles ...models.Role) gin.HandlerFunc {
	check := RequireRoles(roles...)
	return func(c *gin.Context) {
		session := CurrentSession(c)
		if session != nil && session.Role == models.RoleStudent && session.OwnsStudent(c.Param(param)) {
			c.Next()
			return
		}
		check(c)
	}
}
