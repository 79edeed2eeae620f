package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id string) (*Clinic, error)
	UpdateBilling(ctx context.Context, db *gorm.DB, id string, update BillingUpdate) (int64, error)
	SetStatusByBillingSubscriptionID(ctx context.Context, db *gorm.DB, billingSubscriptionID string, status Status, at time.Time) (int64, error)
	SetStatusByBillingCustomerID(ctx context.Context, db *gorm.DB, billingCustomerID string, status Status, at time.Time) (int64, error)
}
