// Package domain holds the append-only ledger of clinic subscription payments.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPaid     Status = "paid"
	StatusFailed   Status = "failed"
	StatusRefunded Status = "refunded"
)

const MethodCard = "card"

// Payment records one settled charge. Rows are never updated.
type Payment struct {
	ID                     string          `gorm:"primaryKey"`
	ClinicID               string          `gorm:"type:text;not null;index"`
	BillingPaymentIntentID string          `gorm:"type:text;not null;uniqueIndex"`
	Amount                 decimal.Decimal `gorm:"type:numeric(14,3);not null"`
	Currency               string          `gorm:"type:text;not null"`
	Status                 Status          `gorm:"type:text;not null"`
	PaymentMethod          *string         `gorm:"type:text"`
	Description            *string         `gorm:"type:text"`
	CreatedAt              time.Time       `gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }
