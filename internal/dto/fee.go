package dto

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-erp-api/internal/models"
)

// FeeView is a fee together with the status derived for today.
type FeeView struct {
	models.Fee
	EffectiveStatus models.FeeStatus `json:"effective_status"`
}

// FeeAmountRequest edits the amount of a fee; the status is left untouched.
type FeeAmountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// FeeStatusRequest sets the status manually.
type FeeStatusRequest struct {
	Status models.FeeStatus `json:"status" validate:"required,oneof=Paid Due Overdue"`
}

// PaymentRequest is the simulated card payment form. Card data is validated and discarded.
type PaymentRequest struct {
	CardNumber string `json:"cardNumber" validate:"required,len=16,digits"`
	CardHolder string `json:"cardHolder" validate:"required,min=2"`
	ExpiryDate string `json:"expiryDate" validate:"required,card_expiry"`
	CVV        string `json:"cvv" validate:"required,min=3,max=4,digits"`
}

// LedgerSummary is the finance overview of one fee kind.
type LedgerSummary struct {
	Kind                  models.FeeKind  `json:"kind"`
	Total                 decimal.Decimal `json:"total"`
	Paid                  decimal.Decimal `json:"paid"`
	Due                   decimal.Decimal `json:"due"`
	CollectionRate        float64         `json:"collectionRate"`
	CollectionRatePercent float64         `json:"collectionRatePercent"`
	FeeCount              int             `json:"feeCount"`
	PaidCount             int             `json:"paidCount"`
	OverdueCount          int             `json:"overdueCount"`
}

// ReceiptJobResponse is returned after a receipt was queued or when polling it.
type ReceiptJobResponse struct {
	ID          string              `json:"id"`
	Status      models.ExportStatus `json:"status"`
	DownloadURL *string             `json:"downloadUrl,omitempty"`
	Error       *string             `json:"error,omitempty"`
}
