package service

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-erp-api/internal/models"
	appErrors "github.com/noah-isme/sma-erp-api/pkg/errors"
	"github.com/noah-isme/sma-erp-api/pkg/export"
	"github.com/noah-isme/sma-erp-api/pkg/storage"
)

func paidFee() models.Fee {
	paidAt := feeTestNow.Add(-time.Hour)
	room := "101"
	return models.Fee{
		ID: "hf-1", Kind: models.FeeKindHostel, StudentID: "stu-1", StudentName: "Aarav Sharma", Class: "Grade 5",
		RoomNumber: &room, Amount: decimal.NewFromInt(2500),
		Status: models.FeeStatusPaid, DueDate: feeTestNow.AddDate(0, 0, 20), PaidAt: &paidAt,
	}
}

func newExportServiceForTest(t *testing.T, fees ...models.Fee) *ExportService {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	svc := NewExportService(newFakeFeeRepo(fees...), store, signer, ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}, zap.NewNop(), export.NewCSVExporter(), export.NewPDFExporter("Test School"))
	svc.now = func() time.Time { return feeTestNow }
	return svc
}

func TestExportServiceGenerateReceipt(t *testing.T) {
	svc := newExportServiceForTest(t, paidFee())
	job := &models.ExportJob{
		ID:     "job-12345678-abcd",
		Type:   models.ExportTypeReceipt,
		Params: models.ExportJobParams{Format: models.ExportFormatPDF, FeeKind: models.FeeKindHostel, FeeID: "hf-1", StudentID: "stu-1"},
	}

	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.URL, "/api/v1/receipts/download/"))
	assert.Contains(t, result.RelativePath, "receipt_hostel_Aarav_Sharma_job-1234")

	owner, relPath, _, err := svc.ParseToken(result.Token, false)
	require.NoError(t, err)
	assert.Equal(t, job.ID, owner)
	assert.Equal(t, result.RelativePath, relPath)

	file, err := svc.Open(relPath)
	require.NoError(t, err)
	defer file.Close()
	data, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
}

func TestExportServiceGenerateRequiresPaidFee(t *testing.T) {
	due := paidFee()
	due.Status = models.FeeStatusDue
	due.PaidAt = nil
	svc := newExportServiceForTest(t, due)

	_, err := svc.Generate(context.Background(), &models.ExportJob{
		ID:     "job-1",
		Type:   models.ExportTypeReceipt,
		Params: models.ExportJobParams{FeeKind: models.FeeKindHostel, FeeID: "hf-1"},
	})
	require.Error(t, err)

	_, err = svc.Generate(context.Background(), &models.ExportJob{ID: "job-2", Type: models.ExportTypeLedger})
	require.Error(t, err)
}

func TestExportServiceLedgerCSV(t *testing.T) {
	due := paidFee()
	due.ID = "hf-2"
	due.StudentID = "stu-2"
	due.StudentName = "Meera Iyer"
	due.Status = models.FeeStatusDue
	due.PaidAt = nil
	svc := newExportServiceForTest(t, paidFee(), due)

	file, err := svc.Ledger(context.Background(), models.FeeKindHostel, "")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", file.ContentType)
	assert.Equal(t, "hostel_ledger_20240615.csv", file.Filename)

	body := string(file.Data)
	assert.Contains(t, body, "Student,Class,Room,Amount,Status,Due Date,Paid At")
	assert.Contains(t, body, "Aarav Sharma")
	assert.Contains(t, body, "Meera Iyer")
	assert.Contains(t, body, "TOTAL")
	assert.Contains(t, body, "5000.00")
	assert.Contains(t, body, "50.0%")
}

func TestExportServiceLedgerPDF(t *testing.T) {
	svc := newExportServiceForTest(t, paidFee())

	file, err := svc.Ledger(context.Background(), models.FeeKindHostel, models.ExportFormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, bytes.HasPrefix(file.Data, []byte("%PDF")))

	_, err = svc.Ledger(context.Background(), models.FeeKindHostel, "xlsx")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "na", sanitizeFilename(""))
	assert.Equal(t, "Aarav_Sharma", sanitizeFilename("Aarav Sharma"))
	assert.Equal(t, "a-b-c", sanitizeFilename("a/b\\c"))
	assert.Len(t, sanitizeFilename(strings.Repeat("x", 100)), 60)
}
