// Package domain contains the persisted mirror of provider subscriptions.
package domain

import (
	"strings"
	"time"
)

// Status is the subscription lifecycle status. Provider statuses outside the
// named constants are stored verbatim.
type Status string

const (
	StatusActive    Status = "active"
	StatusPastDue   Status = "past_due"
	StatusUnpaid    Status = "unpaid"
	StatusCancelled Status = "cancelled"
)

// NormalizeStatus converts a provider status into the stored spelling.
func NormalizeStatus(providerStatus string) Status {
	s := strings.ToLower(strings.TrimSpace(providerStatus))
	if s == "canceled" {
		return StatusCancelled
	}
	return Status(s)
}

// Terminal reports whether no further lifecycle event may change the row.
func (s Status) Terminal() bool {
	return s == StatusCancelled
}

// Subscription mirrors one provider subscription for a clinic.
type Subscription struct {
	ID                    string     `gorm:"primaryKey"`
	ClinicID              string     `gorm:"type:text;not null;index"`
	BillingSubscriptionID string     `gorm:"type:text;not null;uniqueIndex"`
	BillingCustomerID     *string    `gorm:"type:text"`
	Plan                  *string    `gorm:"type:text"`
	Status                Status     `gorm:"type:text;not null"`
	CurrentPeriodStart    *time.Time `gorm:""`
	CurrentPeriodEnd      *time.Time `gorm:""`
	CancelAtPeriodEnd     bool       `gorm:"not null;default:false"`
	LastEventAt           *time.Time `gorm:""`
	CreatedAt             time.Time  `gorm:"not null"`
	UpdatedAt             time.Time  `gorm:"not null"`
}

func (Subscription) TableName() string { return "subscriptions" }

// Update is the lifecycle change carried by a provider event.
type Update struct {
	Status             Status
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  bool
	EventAt            time.Time
}
