package repository

import (
	"context"
	"time"

	subscriptiondomain "github.com/smallbiznis/dentaldesk/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (
			id, clinic_id, billing_subscription_id, billing_customer_id, plan, status,
			current_period_start, current_period_end, cancel_at_period_end, last_event_at,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (billing_subscription_id) DO NOTHING`,
		subscription.ID,
		subscription.ClinicID,
		subscription.BillingSubscriptionID,
		subscription.BillingCustomerID,
		subscription.Plan,
		subscription.Status,
		subscription.CurrentPeriodStart,
		subscription.CurrentPeriodEnd,
		subscription.CancelAtPeriodEnd,
		subscription.LastEventAt,
		subscription.CreatedAt,
		subscription.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByBillingID(ctx context.Context, db *gorm.DB, billingSubscriptionID string) (*subscriptiondomain.Subscription, error) {
	var item subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT id, clinic_id, billing_subscription_id, billing_customer_id, plan, status,
			current_period_start, current_period_end, cancel_at_period_end, last_event_at,
			created_at, updated_at
		 FROM subscriptions
		 WHERE billing_subscription_id = ?
		 LIMIT 1`,
		billingSubscriptionID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == "" {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ApplyUpdate(ctx context.Context, db *gorm.DB, billingSubscriptionID string, update subscriptiondomain.Update) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, current_period_start = ?, current_period_end = ?,
			cancel_at_period_end = ?, last_event_at = ?, updated_at = ?
		 WHERE billing_subscription_id = ?
			AND status <> ?
			AND (last_event_at IS NULL OR last_event_at <= ?)`,
		update.Status,
		update.CurrentPeriodStart,
		update.CurrentPeriodEnd,
		update.CancelAtPeriodEnd,
		update.EventAt,
		update.EventAt,
		billingSubscriptionID,
		subscriptiondomain.StatusCancelled,
		update.EventAt,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) MarkCancelled(ctx context.Context, db *gorm.DB, billingSubscriptionID string, at time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, last_event_at = ?, updated_at = ?
		 WHERE billing_subscription_id = ?
			AND (last_event_at IS NULL OR last_event_at <= ?)`,
		subscriptiondomain.StatusCancelled,
		at,
		at,
		billingSubscriptionID,
		at,
	)
	return res.RowsAffected, res.Error
}
