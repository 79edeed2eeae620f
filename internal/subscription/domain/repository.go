package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Repository persists subscriptions. ApplyUpdate and MarkCancelled only touch
// rows whose last applied event is not newer than the incoming one, and
// ApplyUpdate also leaves terminal rows alone. A zero row count means the
// event was stale or unknown. MarkCancelled matches a row an earlier update
// already cancelled so the deletion still lands.
type Repository interface {
	InsertIfAbsent(ctx context.Context, db *gorm.DB, subscription *Subscription) (bool, error)
	FindByBillingID(ctx context.Context, db *gorm.DB, billingSubscriptionID string) (*Subscription, error)
	ApplyUpdate(ctx context.Context, db *gorm.DB, billingSubscriptionID string, update Update) (int64, error)
	MarkCancelled(ctx context.Context, db *gorm.DB, billingSubscriptionID string, at time.Time) (int64, error)
}
