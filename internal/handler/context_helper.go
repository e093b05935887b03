package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-erp-api/internal/middleware"
	"github.com/noah-isme/sma-erp-api/internal/models"
	appErrors "github.com/noah-isme/sma-erp-api/pkg/errors"
)

func sessionFromContext(c *gin.Context) *models.Session {
	return middleware.CurrentSession(c)
}

func invalidPayload(err error) *appErrors.Error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload")
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
