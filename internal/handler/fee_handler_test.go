package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-erp-api/internal/dto"
	"github.com/noah-isme/sma-erp-api/internal/models"
	"github.com/noah-isme/sma-erp-api/internal/service"
	appErrors "github.com/noah-isme/sma-erp-api/pkg/errors"
)

type fakeFeeService struct {
	lastKind    models.FeeKind
	lastFilter  models.FeeFilter
	lastSession *models.Session
	lastPayment dto.PaymentRequest
	payErr      error
}

func (f *fakeFeeService) List(_ context.Context, session *models.Session, kind models.FeeKind, filter models.FeeFilter) ([]dto.FeeView, error) {
	f.lastSession, f.lastKind, f.lastFilter = session, kind, filter
	return []dto.FeeView{{Fee: models.Fee{ID: "fee-1", Kind: kind, Amount: decimal.NewFromInt(5000)}, EffectiveStatus: models.FeeStatusDue}}, nil
}

func (f *fakeFeeService) Get(_ context.Context, session *models.Session, kind models.FeeKind, id string) (*dto.FeeView, error) {
	f.lastSession, f.lastKind = session, kind
	return &dto.FeeView{Fee: models.Fee{ID: id, Kind: kind}}, nil
}

func (f *fakeFeeService) UpdateAmount(_ context.Context, _ *models.Session, kind models.FeeKind, id string, req dto.FeeAmountRequest) (*dto.FeeView, error) {
	return &dto.FeeView{Fee: models.Fee{ID: id, Kind: kind, Amount: req.Amount}}, nil
}

func (f *fakeFeeService) UpdateStatus(_ context.Context, _ *models.Session, kind models.FeeKind, id string, req dto.FeeStatusRequest) (*dto.FeeView, error) {
	return &dto.FeeView{Fee: models.Fee{ID: id, Kind: kind, Status: req.Status}}, nil
}

func (f *fakeFeeService) Pay(_ context.Context, session *models.Session, kind models.FeeKind, id string, req dto.PaymentRequest) (*dto.FeeView, error) {
	f.lastSession, f.lastKind, f.lastPayment = session, kind, req
	if f.payErr != nil {
		return nil, f.payErr
	}
	return &dto.FeeView{Fee: models.Fee{ID: id, Kind: kind, Status: models.FeeStatusPaid}, EffectiveStatus: models.FeeStatusPaid}, nil
}

type fakeLedgerExporter struct{ lastFormat models.ExportFormat }

func (f *fakeLedgerExporter) Ledger(_ context.Context, kind models.FeeKind, format models.ExportFormat) (*service.LedgerFile, error) {
	f.lastFormat = format
	if format != models.ExportFormatCSV {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
	return &service.LedgerFile{Filename: string(kind) + "_ledger_20240615.csv", ContentType: "text/csv", Data: []byte("Student,Amount\nTOTAL,0.00\n")}, nil
}

type fakeReceiptRequester struct{ lastFeeID string }

func (f *fakeReceiptRequester) RequestReceipt(_ context.Context, _ *models.Session, _ models.FeeKind, feeID string) (*dto.ReceiptJobResponse, error) {
	f.lastFeeID = feeID
	return &dto.ReceiptJobResponse{ID: "job-1", Status: models.ExportStatusQueued}, nil
}

func withParams(c *gin.Context, kv ...string) {
	for i := 0; i+1 < len(kv); i += 2 {
		c.Params = append(c.Params, gin.Param{Key: kv[i], Value: kv[i+1]})
	}
}

func TestFeeHandlerListPassesFilterAndSession(t *testing.T) {
	fees := &fakeFeeService{}
	handler := NewFeeHandler(fees, nil, nil, nil)
	session := studentSession("stu-1")
	c, rec := newTestContext(http.MethodGet, "/fees/hostel?status=Overdue&studentId=stu-9", session)
	withParams(c, "kind", "Hostel")

	handler.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.FeeKindHostel, fees.lastKind)
	assert.Equal(t, models.FeeStatusOverdue, fees.lastFilter.Status)
	assert.Equal(t, "stu-9", fees.lastFilter.StudentID)
	assert.Same(t, session, fees.lastSession)
}

func TestFeeHandlerRejectsUnknownKind(t *testing.T) {
	handler := NewFeeHandler(&fakeFeeService{}, nil, nil, nil)
	c, rec := newTestContext(http.MethodGet, "/fees/library", adminSession())
	withParams(c, "kind", "library")

	handler.List(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, appErrors.ErrValidation.Code, envelope.Error.Code)
	assert.Contains(t, envelope.Error.Fields, "kind")
}

func TestFeeHandlerPay(t *testing.T) {
	fees := &fakeFeeService{}
	handler := NewFeeHandler(fees, nil, nil, nil)
	c, rec := newTestContext(http.MethodPost, "/fees/tuition/fee-1/pay", studentSession("stu-1"))
	c.Request = jsonRequest(http.MethodPost, "/fees/tuition/fee-1/pay", `{"cardNumber":"4111 1111 1111 1111","cardHolder":"Aarav","expiryDate":"12/30","cvv":"123"}`)
	withParams(c, "kind", "tuition", "id", "fee-1")

	handler.Pay(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Aarav", fees.lastPayment.CardHolder)
	var view dto.FeeView
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &view))
	assert.Equal(t, models.FeeStatusPaid, view.EffectiveStatus)
}

func TestFeeHandlerPayConflict(t *testing.T) {
	handler := NewFeeHandler(&fakeFeeService{payErr: appErrors.Clone(appErrors.ErrConflict, "fee already paid")}, nil, nil, nil)
	c, rec := newTestContext(http.MethodPost, "/fees/tuition/fee-1/pay", adminSession())
	c.Request = jsonRequest(http.MethodPost, "/fees/tuition/fee-1/pay", `{"cardNumber":"4111111111111111","cardHolder":"Aarav","expiryDate":"12/30","cvv":"123"}`)
	withParams(c, "kind", "tuition", "id", "fee-1")

	handler.Pay(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestFeeHandlerExport(t *testing.T) {
	exporter := &fakeLedgerExporter{}
	handler := NewFeeHandler(&fakeFeeService{}, nil, exporter, nil)

	c, rec := newTestContext(http.MethodGet, "/fees/tuition/export", adminSession())
	withParams(c, "kind", "tuition")
	handler.Export(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.ExportFormatCSV, exporter.lastFormat)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "tuition_ledger_20240615.csv")
	assert.Contains(t, rec.Body.String(), "TOTAL")

	c, rec = newTestContext(http.MethodGet, "/fees/tuition/export?format=XLSX", adminSession())
	withParams(c, "kind", "tuition")
	handler.Export(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, models.ExportFormat("xlsx"), exporter.lastFormat)
}

func TestFeeHandlerRequestReceiptIsAccepted(t *testing.T) {
	receipts := &fakeReceiptRequester{}
	handler := NewFeeHandler(&fakeFeeService{}, nil, nil, receipts)
	c, rec := newTestContext(http.MethodPost, "/fees/hostel/hf-1/receipt", adminSession())
	withParams(c, "kind", "hostel", "id", "hf-1")

	handler.RequestReceipt(c)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "hf-1", receipts.lastFeeID)
	var job dto.ReceiptJobResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &job))
	assert.Equal(t, models.ExportStatusQueued, job.Status)
}
