package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-erp-api/internal/models"
	appErrors "github.com/noah-isme/sma-erp-api/pkg/errors"
	"github.com/noah-isme/sma-erp-api/pkg/logger"
	"github.com/noah-isme/sma-erp-api/pkg/response"
)

// ContextSessionKey is the gin context key storing the resolved session.
const ContextSessionKey = "currentSession"

// TokenValidator resolves a bearer token into a live session.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*models.Session, error)
}

// JWT protects routes by requiring a valid access token bound to an open session. Browsers
// cannot set headers on WebSocket upgrades, so the token may also arrive as ?token=.
func JWT(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		session, err := validator.ValidateToken(c.Request.Context(), token)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextSessionKey, session)
		c.Set(logger.ActorKey, session.UserID)
		c.Next()
	}
}

// CurrentSession returns the session attached by JWT, or nil.
func CurrentSession(c *gin.Context) *models.Session {
	value, exists := c.Get(ContextSessionKey)
	if !exists {
		return nil
	}
	session, _ := value.(*models.Session)
	return session
}

// BearerToken extracts the raw token of the current request.
func BearerToken(c *gin.Context) string {
	token, _ := bearerToken(c)
	return token
}

func bearerToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if token := c.Query("token"); token != "" {
			return token, nil
		}
		return "", appErrors.ErrUnauthorized
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}
