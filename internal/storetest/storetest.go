// Package storetest opens throwaway sqlite stores with the billing schema.
package storetest

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var seq atomic.Int64

var schema = []string{
	`CREATE TABLE clinics (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		subscription_status TEXT NOT NULL DEFAULT 'pending',
		subscription_plan TEXT,
		subscription_expires_at DATETIME,
		billing_customer_id TEXT,
		billing_subscription_id TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE subscriptions (
		id TEXT PRIMARY KEY,
		clinic_id TEXT NOT NULL,
		billing_subscription_id TEXT NOT NULL,
		billing_customer_id TEXT,
		plan TEXT,
		status TEXT NOT NULL,
		current_period_start DATETIME,
		current_period_end DATETIME,
		cancel_at_period_end BOOLEAN NOT NULL DEFAULT FALSE,
		last_event_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_subscriptions_billing_subscription_id ON subscriptions(billing_subscription_id)`,
	`CREATE TABLE payments (
		id TEXT PRIMARY KEY,
		clinic_id TEXT NOT NULL,
		billing_payment_intent_id TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		payment_method TEXT,
		description TEXT,
		created_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_payments_billing_payment_intent_id ON payments(billing_payment_intent_id)`,
	`CREATE TABLE webhook_events (
		id BIGINT PRIMARY KEY,
		provider TEXT NOT NULL,
		provider_event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload TEXT NOT NULL,
		received_at DATETIME NOT NULL,
		processed_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_webhook_events_provider_event_id ON webhook_events(provider, provider_event_id)`,
}

// Open returns an in-memory database private to the test.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:storetest_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

// Clinic describes a seeded clinic row.
type Clinic struct {
	ID                    string
	Name                  string
	Status                string
	BillingCustomerID     string
	BillingSubscriptionID string
}

// SeedClinic inserts a clinic row.
func SeedClinic(t testing.TB, db *gorm.DB, c Clinic) {
	t.Helper()

	if c.Name == "" {
		c.Name = "Clinic " + c.ID
	}
	if c.Status == "" {
		c.Status = "pending"
	}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := db.Exec(
		`INSERT INTO clinics (id, name, subscription_status, billing_customer_id, billing_subscription_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Status, nullable(c.BillingCustomerID), nullable(c.BillingSubscriptionID), now, now,
	).Error; err != nil {
		t.Fatalf("seed clinic: %v", err)
	}
}

// Count returns the number of rows in table.
func Count(t testing.TB, db *gorm.DB, table string) int64 {
	t.Helper()

	var count int64
	if err := db.Raw(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return count
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
