package domain

import "errors"

var (
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrInvalidEvent     = errors.New("invalid_event")
	ErrMissingClinicID  = errors.New("missing_clinic_id")
	ErrClinicNotFound   = errors.New("clinic_not_found")

	ErrInvalidPlan         = errors.New("invalid_plan")
	ErrRateLimited         = errors.New("rate_limited")
	ErrProviderUnavailable = errors.New("provider_unavailable")
)

// IsValidation reports whether err rejects the event itself rather than a
// transient failure while applying it.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidEvent) ||
		errors.Is(err, ErrMissingClinicID) ||
		errors.Is(err, ErrClinicNotFound)
}
