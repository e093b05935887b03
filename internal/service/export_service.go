package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-erp-api/internal/dto"
	"github.com/noah-isme/sma-erp-api/internal/models"
	"github.com/noah-isme/sma-erp-api/pkg/export"
	"github.com/noah-isme/sma-erp-api/pkg/storage"
)

type exportFeeReader interface {
	List(ctx context.Context, kind models.FeeKind, filter models.FeeFilter) ([]models.Fee, error)
	FindByID(ctx context.Context, kind models.FeeKind, id string) (*models.Fee, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
	RenderReceipt(r export.Receipt) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	ExpiresAt    time.Time
}

// LedgerFile is a rendered ledger export.
type LedgerFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

var ledgerHeaders = []string{"Student", "Class", "Room", "Amount", "Status", "Due Date", "Paid At"}

// ExportService renders receipts and ledgers and keeps receipt files in local storage behind
// signed download tokens.
type ExportService struct {
	fees    exportFeeReader
	storage fileStorage
	csv     csvRenderer
	pdf     pdfRenderer
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     ExportConfig
	now     func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(fees exportFeeReader, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter("")
	}
	return &ExportService{fees: fees, storage: store, csv: csv, pdf: pdf, signer: signer, logger: logger, cfg: cfg, now: time.Now}
}

// Generate renders the receipt of a paid fee and stores it behind a signed URL.
func (s *ExportService) Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	if job.Type != models.ExportTypeReceipt {
		return nil, fmt.Errorf("unsupported export type %s", job.Type)
	}
	fee, err := s.fees.FindByID(ctx, job.Params.FeeKind, job.Params.FeeID)
	if err != nil {
		return nil, fmt.Errorf("load fee %s: %w", job.Params.FeeID, err)
	}
	if fee.Status != models.FeeStatusPaid || fee.PaidAt == nil {
		return nil, fmt.Errorf("fee %s is not paid", fee.ID)
	}

	payload, err := s.pdf.RenderReceipt(receiptFor(job, fee))
	if err != nil {
		return nil, err
	}
	relPath, err := s.storage.Save(s.receiptFilename(job, fee), payload)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/receipts/download/%s", prefix, token),
		ExpiresAt:    expiresAt,
	}, nil
}

// Ledger renders every fee of a kind with a totals footer.
func (s *ExportService) Ledger(ctx context.Context, kind models.FeeKind, format models.ExportFormat) (*LedgerFile, error) {
	if !kind.Valid() {
		return nil, fieldError("invalid fee kind", "kind", "kind must be tuition or hostel")
	}
	fees, err := s.fees.List(ctx, kind, models.FeeFilter{})
	if err != nil {
		return nil, translateErr(err, "", "failed to load fees")
	}
	now := s.now()
	dataset := ledgerDataset(fees, ComputeLedger(kind, fees, now), now)
	stamp := now.UTC().Format("20060102")
	title := fmt.Sprintf("%s Ledger", kind.Label())

	switch format {
	case models.ExportFormatCSV, "":
		data, err := s.csv.Render(dataset)
		if err != nil {
			return nil, translateErr(err, "", "failed to render ledger")
		}
		return &LedgerFile{Filename: fmt.Sprintf("%s_ledger_%s.csv", kind, stamp), ContentType: "text/csv", Data: data}, nil
	case models.ExportFormatPDF:
		data, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, translateErr(err, "", "failed to render ledger")
		}
		return &LedgerFile{Filename: fmt.Sprintf("%s_ledger_%s.pdf", kind, stamp), ContentType: "application/pdf", Data: data}, nil
	default:
		return nil, fieldError("unsupported export format", "format", "format must be csv or pdf")
	}
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl, or older than the configured result TTL when ttl <= 0.
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) receiptFilename(job *models.ExportJob, fee *models.Fee) string {
	return fmt.Sprintf("receipt_%s_%s_%s.pdf", fee.Kind, sanitizeFilename(fee.StudentName), shortID(job.ID))
}

func receiptFor(job *models.ExportJob, fee *models.Fee) export.Receipt {
	r := export.Receipt{
		Number:      "RCPT-" + strings.ToUpper(shortID(job.ID)),
		StudentName: fee.StudentName,
		Class:       fee.Class,
		FeeKind:     fee.Kind.Label(),
		Amount:      fee.Amount.StringFixed(2),
		DueDate:     fee.DueDate,
		PaidAt:      *fee.PaidAt,
	}
	if fee.RoomNumber != nil {
		r.RoomNumber = *fee.RoomNumber
	}
	return r
}

func ledgerDataset(fees []models.Fee, summary dto.LedgerSummary, now time.Time) export.Dataset {
	rows := make([]map[string]string, 0, len(fees))
	for _, fee := range fees {
		row := map[string]string{
			"Student":  fee.StudentName,
			"Class":    fee.Class,
			"Amount":   fee.Amount.StringFixed(2),
			"Status":   string(fee.EffectiveStatus(now)),
			"Due Date": fee.DueDate.Format("2006-01-02"),
		}
		if fee.RoomNumber != nil {
			row["Room"] = *fee.RoomNumber
		}
		if fee.PaidAt != nil {
			row["Paid At"] = fee.PaidAt.UTC().Format("2006-01-02")
		}
		rows = append(rows, row)
	}
	return export.Dataset{
		Headers: ledgerHeaders,
		Rows:    rows,
		Footer: map[string]string{
			"Student": "TOTAL",
			"Amount":  summary.Total.StringFixed(2),
			"Status":  fmt.Sprintf("paid %s / due %s (%.1f%%)", summary.Paid.StringFixed(2), summary.Due.StringFixed(2), summary.CollectionRatePercent),
		},
	}
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 60 {
		return result[:60]
	}
	return result
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
