package rls

import (
	"gorm.io/gorm"
)

const serviceRoleClaims = `{"role":"service_role"}`

// AsServiceRole marks the current transaction as running under the service
// role so row-level security policies on clinic data admit the reconciler.
// The setting is transaction-local. Non-postgres stores have no policies.
func AsServiceRole(tx *gorm.DB) error {
	if tx == nil || tx.Dialector == nil || tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec(
		"SELECT set_config('request.jwt.claims', ?, true), set_config('request.jwt.claim.role', 'service_role', true)",
		serviceRoleClaims,
	).Error
}
