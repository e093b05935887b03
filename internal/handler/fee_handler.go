package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-erp-api/internal/dto"
	"github.com/noah-isme/sma-erp-api/internal/models"
	"github.com/noah-isme/sma-erp-api/internal/service"
	"github.com/noah-isme/sma-erp-api/pkg/response"
)

type feeService interface {
	List(ctx context.Context, session *models.Session, kind models.FeeKind, filter models.FeeFilter) ([]dto.FeeView, error)
	Get(ctx context.Context, session *models.Session, kind models.FeeKind, id string) (*dto.FeeView, error)
	UpdateAmount(ctx context.Context, actor *models.Session, kind models.FeeKind, id string, req dto.FeeAmountRequest) (*dto.FeeView, error)
	UpdateStatus(ctx context.Context, actor *models.Session, kind models.FeeKind, id string, req dto.FeeStatusRequest) (*dto.FeeView, error)
	Pay(ctx context.Context, session *models.Session, kind models.FeeKind, id string, req dto.PaymentRequest) (*dto.FeeView, error)
}

type ledgerService interface {
	Summary(ctx context.Context, kind models.FeeKind) (*dto.LedgerSummary, error)
}

type ledgerExporter interface {
	Ledger(ctx context.Context, kind models.FeeKind, format models.ExportFormat) (*service.LedgerFile, error)
}

type receiptRequester interface {
	RequestReceipt(ctx context.Context, session *models.Session, kind models.FeeKind, feeID string) (*dto.ReceiptJobResponse, error)
}

// FeeHandler serves the tuition and hostel fee ledgers.
type FeeHandler struct {
	fees     feeService
	ledger   ledgerService
	exports  ledgerExporter
	receipts receiptRequester
}

// NewFeeHandler constructs FeeHandler.
func NewFeeHandler(fees feeService, ledger ledgerService, exports ledgerExporter, receipts receiptRequester) *FeeHandler {
	return &FeeHandler{fees: fees, ledger: ledger, exports: exports, receipts: receipts}
}

func feeKind(c *gin.Context) (models.FeeKind, bool) {
	kind, err := service.ParseFeeKind(c.Param("kind"))
	if err != nil {
		response.Error(c, err)
		return "", false
	}
	return kind, true
}

// List godoc
// @Summary List fees
// @Description Students only receive their own fees. The status filter matches the effective status.
// @Tags Fees
// @Produce json
// @Param kind path string true "tuition or hostel"
// @Param status query string false "Paid, Due or Overdue"
// @Param studentId query string false "Student ID"
// @Success 200 {object} response.Envelope
// @Router /fees/{kind} [get]
func (h *FeeHandler) List(c *gin.Context) {
	kind, ok := feeKind(c)
	if !ok {
		return
	}
	filter := models.FeeFilter{
		Status:    models.FeeStatus(strings.TrimSpace(c.Query("status"))),
		StudentID: strings.TrimSpace(c.Query("studentId")),
	}
	fees, err := h.fees.List(c.Request.Context(), sessionFromContext(c), kind, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fees, nil)
}

// Get godoc
// @Summary Get fee
// @Tags Fees
// @Produce json
// @Param kind path string true "tuition or hostel"
// @Param id path string true "Fee ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /fees/{kind}/{id} [get]
func (h *FeeHandler) Get(c *gin.Context) {
	kind, ok := feeKind(c)
	if !ok {
		return
	}
	fee, err := h.fees.Get(c.Request.Context(), sessionFromContext(c), kind, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fee, nil)
}

// UpdateAmount godoc
// @Summary Change fee amount
// @Tags Fees
// @Accept json
// @Produce json
// @Param kind path string true "tuition or hostel"
// @Param id path string true "Fee ID"
// @Param payload body dto.FeeAmountRequest true "Amount"
// @Success 200 {object} response.Envelope
// @Router /fees/{kind}/{id}/amount [patch]
func (h *FeeHandler) UpdateAmount(c *gin.Context) {
	kind, ok := feeKind(c)
	if !ok {
		return
	}
	var req dto.FeeAmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	fee, err := h.fees.UpdateAmount(c.Request.Context(), sessionFromContext(c), kind, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fee, nil)
}

// UpdateStatus godoc
// @Summary Set fee status
// @Tags Fees
// @Accept json
// @Produce json
// @Param kind path string true "tuition or hostel"
// @Param id path string true "Fee ID"
// @Param payload body dto.FeeStatusRequest true "Status"
// @Success 200 {object} response.Envelope
// @Router /fees/{kind}/{id}/status [patch]
func (h *FeeHandler) UpdateStatus(c *gin.Context) {
	kind, ok := feeKind(c)
	if !ok {
		return
	}
	var req dto.FeeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	fee, err := h.fees.UpdateStatus(c.Request.Context(), sessionFromContext(c), kind, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fee, nil)
}

// Pay godoc
// @Summary Pay a fee
// @Description Simulated card payment. Paying an already paid fee is a conflict.
// @Tags Fees
// @Accept json
// @Produce json
// @Param kind path string true "tuition or hostel"
// @Param id path string true "Fee ID"
// @Param payload body dto.PaymentRequest true "Card details"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /fees/{kind}/{id}/pay [post]
func (h *FeeHandler) Pay(c *gin.Context) {
	kind, ok := feeKind(c)
	if !ok {
		return
	}
	var req dto.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, invalidPayload(err))
		return
	}
	fee, err := h.fees.Pay(c.Request.Context(), sessionFromContext(c), kind, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fee, nil)
}

// Summary godoc
// @Summary Ledger summary
// @Description Totals, collection rate and overdue count. Computed on every request.
// @Tags Fees
// @Produce json
// @Param kind path string true "tuition or hostel"
// @Success 200 {object} response.Envelope
// @Router /fees/{kind}/summary [get]
func (h *FeeHandler) Summary(c *gin.Context) {
	kind, ok := feeKind(c)
	if !ok {
		return
	}
	summary, err := h.ledger.Summary(c.Request.Context(), kind)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Export godoc
// @Summary Export ledger
// @Tags Fees
// @Produce text/csv
// @Produce application/pdf
// @Param kind path string true "tuition or hostel"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /fees/{kind}/export [get]
func (h *FeeHandler) Export(c *gin.Context) {
	kind, ok := feeKind(c)
	if !ok {
		return
	}
	format := models.ExportFormat(strings.ToLower(strings.TrimSpace(c.DefaultQuery("format", "csv"))))
	file, err := h.exports.Ledger(c.Request.Context(), kind, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

// RequestReceipt godoc
// @Summary Queue a receipt
// @Description Renders the receipt of a paid fee in the background
// @Tags Fees
// @Produce json
// @Param kind path string true "tuition or hostel"
// @Param id path string true "Fee ID"
// @Success 202 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /fees/{kind}/{id}/receipt [post]
func (h *FeeHandler) RequestReceipt(c *gin.Context) {
	kind, ok := feeKind(c)
	if !ok {
		return
	}
	job, err := h.receipts.RequestReceipt(c.Request.Context(), sessionFromContext(c), kind, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, job)
}
