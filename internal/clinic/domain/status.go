package domain

import "strings"

// DeriveStatus maps a provider subscription status to the clinic status. The
// second result is false for statuses that must leave the clinic untouched.
func DeriveStatus(subscriptionStatus string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(subscriptionStatus)) {
	case "active", "trialing":
		return StatusActive, true
	case "past_due", "unpaid":
		return StatusPastDue, true
	case "canceled", "cancelled":
		return StatusCancelled, true
	case "incomplete":
		return StatusPending, true
	default:
		return "", false
	}
}
