// Package domain contains the clinic tenant model and its billing state.
package domain

import (
	"errors"
	"time"
)

// Status is the clinic-facing subscription status shown to staff.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusPastDue   Status = "past_due"
	StatusInactive  Status = "inactive"
	StatusCancelled Status = "cancelled"
)

// Plan is the billing plan a clinic subscribed to.
type Plan string

const (
	PlanMonthly Plan = "monthly"
	PlanYearly  Plan = "yearly"
)

var ErrNotFound = errors.New("clinic_not_found")

// ParsePlan returns the plan for code, or false for anything the clinic
// table does not accept.
func ParsePlan(code string) (Plan, bool) {
	switch Plan(code) {
	case PlanMonthly, PlanYearly:
		return Plan(code), true
	default:
		return "", false
	}
}

// Clinic is a tenant of the booking system.
type Clinic struct {
	ID                    string     `gorm:"primaryKey"`
	Name                  string     `gorm:"type:text;not null"`
	SubscriptionStatus    Status     `gorm:"type:text;not null"`
	SubscriptionPlan      *Plan      `gorm:"type:text"`
	SubscriptionExpiresAt *time.Time `gorm:""`
	BillingCustomerID     *string    `gorm:"type:text"`
	BillingSubscriptionID *string    `gorm:"type:text"`
	CreatedAt             time.Time  `gorm:"not null"`
	UpdatedAt             time.Time  `gorm:"not null"`
}

func (Clinic) TableName() string { return "clinics" }

// BillingUpdate carries the fields written when a checkout completes.
type BillingUpdate struct {
	Status                Status
	Plan                  *Plan
	ExpiresAt             *time.Time
	BillingCustomerID     string
	BillingSubscriptionID string
	UpdatedAt             time.Time
}
