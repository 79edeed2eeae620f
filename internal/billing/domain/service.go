package domain

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Adapter authenticates and decodes provider deliveries.
type Adapter interface {
	Verify(payload []byte, headers http.Header) error
	Parse(payload []byte) (Event, error)
}

// Reconciler applies a verified event to the store.
type Reconciler interface {
	Apply(ctx context.Context, event Event) (Outcome, error)
}

// WebhookService handles one raw provider delivery end to end.
type WebhookService interface {
	Ingest(ctx context.Context, payload []byte, headers http.Header) (Outcome, error)
}

// CheckoutService starts subscription checkouts.
type CheckoutService interface {
	CreateSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
}

type Repository interface {
	FindEvent(ctx context.Context, db *gorm.DB, provider string, providerEventID string) (*EventRecord, error)
	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) (bool, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, processedAt time.Time) error
}
