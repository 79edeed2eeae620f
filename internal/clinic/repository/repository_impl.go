package repository

import (
	"context"
	"time"

	clinicdomain "github.com/smallbiznis/dentaldesk/internal/clinic/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() clinicdomain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id string) (*clinicdomain.Clinic, error) {
	var item clinicdomain.Clinic
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, subscription_status, subscription_plan, subscription_expires_at,
			billing_customer_id, billing_subscription_id, created_at, updated_at
		 FROM clinics
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == "" {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) UpdateBilling(ctx context.Context, db *gorm.DB, id string, update clinicdomain.BillingUpdate) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE clinics
		 SET subscription_status = ?, subscription_plan = ?, subscription_expires_at = ?,
			billing_customer_id = ?, billing_subscription_id = ?, updated_at = ?
		 WHERE id = ?`,
		update.Status,
		update.Plan,
		update.ExpiresAt,
		nullable(update.BillingCustomerID),
		nullable(update.BillingSubscriptionID),
		update.UpdatedAt,
		id,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) SetStatusByBillingSubscriptionID(ctx context.Context, db *gorm.DB, billingSubscriptionID string, status clinicdomain.Status, at time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE clinics
		 SET subscription_status = ?, updated_at = ?
		 WHERE billing_subscription_id = ?`,
		status,
		at,
		billingSubscriptionID,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) SetStatusByBillingCustomerID(ctx context.Context, db *gorm.DB, billingCustomerID string, status clinicdomain.Status, at time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE clinics
		 SET subscription_status = ?, updated_at = ?
		 WHERE billing_customer_id = ?`,
		status,
		at,
		billingCustomerID,
	)
	return res.RowsAffected, res.Error
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
