package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-erp-api/internal/dto"
	"github.com/noah-isme/sma-erp-api/internal/models"
)

var hundred = decimal.NewFromInt(100)

// ComputeLedger reduces fees of one kind into the finance summary. The collection rate is 0
// when nothing was billed.
func ComputeLedger(kind models.FeeKind, fees []models.Fee, now time.Time) dto.LedgerSummary {
	summary := dto.LedgerSummary{
		Kind:     kind,
		Total:    decimal.Zero,
		Paid:     decimal.Zero,
		FeeCount: len(fees),
	}
	for _, fee := range fees {
		summary.Total = summary.Total.Add(fee.Amount)
		switch fee.EffectiveStatus(now) {
		case models.FeeStatusPaid:
			summary.Paid = summary.Paid.Add(fee.Amount)
			summary.PaidCount++
		case models.FeeStatusOverdue:
			summary.OverdueCount++
		}
	}
	summary.Due = summary.Total.Sub(summary.Paid)
	if summary.Total.IsPositive() {
		rate := summary.Paid.Div(summary.Total)
		summary.CollectionRate, _ = rate.Round(4).Float64()
		summary.CollectionRatePercent, _ = rate.Mul(hundred).Round(1).Float64()
	}
	return summary
}

type ledgerFeeReader interface {
	List(ctx context.Context, kind models.FeeKind, filter models.FeeFilter) ([]models.Fee, error)
}

// LedgerService computes fee summaries on every request. Summaries are never cached.
type LedgerService struct {
	fees ledgerFeeReader
	now  func() time.Time
}

// NewLedgerService constructs a LedgerService.
func NewLedgerService(fees ledgerFeeReader) *LedgerService {
	return &LedgerService{fees: fees, now: time.Now}
}

// Summary returns the ledger of one fee kind.
func (s *LedgerService) Summary(ctx context.Context, kind models.FeeKind) (*dto.LedgerSummary, error) {
	if !kind.Valid() {
		return nil, fieldError("invalid fee kind", "kind", "kind must be tuition or hostel")
	}
	fees, err := s.fees.List(ctx, kind, models.FeeFilter{})
	if err != nil {
		return nil, translateErr(err, "", "failed to load fees")
	}
	summary := ComputeLedger(kind, fees, s.now())
	return &summary, nil
}
