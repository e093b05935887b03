package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-erp-api/internal/dto"
	"github.com/noah-isme/sma-erp-api/internal/models"
	"github.com/noah-isme/sma-erp-api/internal/service"
	appErrors "github.com/noah-isme/sma-erp-api/pkg/errors"
	"github.com/noah-isme/sma-erp-api/pkg/response"
)

type receiptService interface {
	GetStatus(ctx context.Context, session *models.Session, id string) (*dto.ReceiptJobResponse, error)
	ResolveDownload(ctx context.Context, token string) (*service.ReceiptDownload, error)
}

// ReceiptHandler reports receipt jobs and serves the rendered files.
type ReceiptHandler struct {
	receipts receiptService
}

// NewReceiptHandler constructs ReceiptHandler.
func NewReceiptHandler(receipts receiptService) *ReceiptHandler {
	return &ReceiptHandler{receipts: receipts}
}

// Status godoc
// @Summary Receipt job status
// @Tags Receipts
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /receipts/{id} [get]
func (h *ReceiptHandler) Status(c *gin.Context) {
	job, err := h.receipts.GetStatus(c.Request.Context(), sessionFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// Download godoc
// @Summary Download receipt
// @Description Signed, expiring link returned by the receipt job
// @Tags Receipts
// @Produce application/pdf
// @Param token path string true "Download token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /receipts/download/{token} [get]
func (h *ReceiptHandler) Download(c *gin.Context) {
	download, err := h.receipts.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close()

	info, err := download.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read receipt"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", download.Filename))
	c.Header("Content-Length", strconv.FormatInt(info.Size(), 10))
	c.Header("Cache-Control", "private, max-age=0")
	c.Header("Expires", download.ExpiresAt.UTC().Format(time.RFC1123))
	c.Header("Content-Type", "application/pdf")
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, download.File)
}
