package service

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-erp-api/internal/dto"
	"github.com/noah-isme/sma-erp-api/internal/models"
	"github.com/noah-isme/sma-erp-api/internal/repository"
	appErrors "github.com/noah-isme/sma-erp-api/pkg/errors"
	"github.com/noah-isme/sma-erp-api/pkg/jobs"
)

type exportJobStore interface {
	Create(ctx context.Context, job *models.ExportJob) error
	GetByID(ctx context.Context, id string) (*models.ExportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error
	ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error)
}

type receiptFeeReader interface {
	FindByID(ctx context.Context, kind models.FeeKind, id string) (*models.Fee, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type exportGenerator interface {
	Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error)
}

// ReceiptServiceConfig governs queue recovery and cleanup.
type ReceiptServiceConfig struct {
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// ReceiptDownload aggregates resolved download data.
type ReceiptDownload struct {
	File      *os.File
	Filename  string
	ExpiresAt time.Time
}

// ReceiptService queues receipt rendering for paid fees and resolves signed downloads.
type ReceiptService struct {
	repo     exportJobStore
	fees     receiptFeeReader
	queue    jobDispatcher
	exporter *ExportService
	logger   *zap.Logger
	cfg      ReceiptServiceConfig
}

// NewReceiptService constructs the receipt service.
func NewReceiptService(repo exportJobStore, fees receiptFeeReader, queue jobDispatcher, exporter *ExportService, logger *zap.Logger, cfg ReceiptServiceConfig) *ReceiptService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ReceiptService{repo: repo, fees: fees, queue: queue, exporter: exporter, logger: logger, cfg: cfg}
}

// RequestReceipt queues a receipt for a paid fee. Students may only request their own.
func (s *ReceiptService) RequestReceipt(ctx context.Context, session *models.Session, kind models.FeeKind, feeID string) (*dto.ReceiptJobResponse, error) {
	if session == nil {
		return nil, appErrors.ErrUnauthorized
	}
	fee, err := s.fees.FindByID(ctx, kind, feeID)
	if err != nil {
		return nil, translateErr(err, "fee not found", "failed to load fee")
	}
	if err := ensureFeeOwner(session, fee); err != nil {
		return nil, err
	}
	if fee.Status != models.FeeStatusPaid {
		return nil, appErrors.Clone(appErrors.ErrConflict, "receipts are only available for paid fees")
	}

	job := &models.ExportJob{
		Type:      models.ExportTypeReceipt,
		Params:    models.ExportJobParams{Format: models.ExportFormatPDF, FeeKind: kind, FeeID: fee.ID, StudentID: fee.StudentID},
		Status:    models.ExportStatusQueued,
		CreatedBy: session.AccountID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create receipt job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)}); err != nil {
		status := models.ExportStatusFailed
		msg := "failed to enqueue job"
		now := time.Now().UTC()
		_ = s.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
			Status:       &status,
			ErrorMessage: &msg,
			FinishedAt:   &now,
		})
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue receipt job")
	}
	return &dto.ReceiptJobResponse{ID: job.ID, Status: job.Status}, nil
}

// GetStatus exposes job state; Students only see their own jobs.
func (s *ReceiptService) GetStatus(ctx context.Context, session *models.Session, id string) (*dto.ReceiptJobResponse, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, translateErr(err, "receipt job not found", "failed to load receipt job")
	}
	if session != nil && session.Role == models.RoleStudent && job.CreatedBy != session.AccountID {
		return nil, appErrors.ErrForbidden
	}
	resp := &dto.ReceiptJobResponse{ID: job.ID, Status: job.Status, DownloadURL: job.ResultURL}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.Error = job.ErrorMessage
	}
	return resp, nil
}

// ResolveDownload validates the token and opens the stored receipt.
func (s *ReceiptService) ResolveDownload(ctx context.Context, token string) (*ReceiptDownload, error) {
	jobID, relPath, expiresAt, err := s.exporter.ParseToken(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load receipt job")
	}
	if job.ResultURL == nil || !strings.HasSuffix(*job.ResultURL, token) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	if job.Status != models.ExportStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "receipt not ready")
	}
	file, err := s.exporter.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open receipt file")
	}
	return &ReceiptDownload{File: file, Filename: filepath.Base(relPath), ExpiresAt: expiresAt}, nil
}

// RecoverPendingJobs replays queued jobs after a restart.
func (s *ReceiptService) RecoverPendingJobs(ctx context.Context) {
	pending, err := s.repo.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Sugar().Warnw("failed to recover queued receipt jobs", "error", err)
		return
	}
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)}); err != nil {
			s.logger.Sugar().Warnw("failed to requeue pending job", "job_id", job.ID, "error", err)
		}
	}
}

// StartCleanup purges expired receipt files periodically until ctx ends.
func (s *ReceiptService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanupExpired(ctx)
			}
		}
	}()
}

func (s *ReceiptService) cleanupExpired(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.ResultTTL)
	expired, err := s.repo.ListFinishedBefore(ctx, cutoff, 100)
	if err != nil {
		s.logger.Sugar().Warnw("cleanup list failed", "error", err)
		return
	}
	for _, job := range expired {
		if job.ResultURL == nil {
			continue
		}
		token := extractToken(*job.ResultURL)
		if token == "" {
			continue
		}
		_, relPath, _, err := s.exporter.ParseToken(token, true)
		if err != nil {
			continue
		}
		if err := s.exporter.Delete(relPath); err != nil {
			s.logger.Sugar().Warnw("cleanup delete failed", "job_id", job.ID, "error", err)
		}
	}
	if _, err := s.exporter.Cleanup(s.cfg.ResultTTL); err != nil {
		s.logger.Sugar().Warnw("filesystem cleanup failed", "error", err)
	}
}

func extractToken(url string) string {
	if url == "" {
		return ""
	}
	parts := strings.Split(url, "/")
	return parts[len(parts)-1]
}

// ReceiptWorker bridges queue jobs to the ExportService.
type ReceiptWorker struct {
	repo       exportJobStore
	exporter   exportGenerator
	logger     *zap.Logger
	maxRetries int
}

// NewReceiptWorker constructs a worker.
func NewReceiptWorker(repo exportJobStore, exporter exportGenerator, maxRetries int, logger *zap.Logger) *ReceiptWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &ReceiptWorker{repo: repo, exporter: exporter, logger: logger, maxRetries: maxRetries}
}

// Handle renders one queued receipt. A failure before the last attempt puts the job back
// to QUEUED so the queue retry picks it up.
func (w *ReceiptWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	processing := models.ExportStatusProcessing
	if err := w.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{Status: &processing}); err != nil {
		return err
	}

	result, err := w.exporter.Generate(ctx, record)
	if err != nil {
		msg := err.Error()
		status := models.ExportStatusQueued
		params := repository.UpdateExportJobParams{Status: &status, ErrorMessage: &msg}
		if job.Attempt >= w.maxRetries {
			status = models.ExportStatusFailed
			now := time.Now().UTC()
			params.FinishedAt = &now
		}
		if updateErr := w.repo.Update(ctx, job.ID, params); updateErr != nil {
			w.logger.Sugar().Warnw("failed to record receipt failure", "job_id", job.ID, "error", updateErr)
		}
		return err
	}

	finished := models.ExportStatusFinished
	now := time.Now().UTC()
	url := result.URL
	noError := ""
	if err := w.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
		Status:       &finished,
		ResultURL:    &url,
		ErrorMessage: &noError,
		FinishedAt:   &now,
	}); err != nil {
		w.logger.Sugar().Warnw("failed to mark job finished", "job_id", job.ID, "error", err)
		return err
	}
	w.logger.Info("receipt rendered", zap.String("job_id", job.ID))
	return nil
}
