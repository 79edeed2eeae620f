package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	InsertIfAbsent(ctx context.Context, db *gorm.DB, payment *Payment) (bool, error)
	ListByClinic(ctx context.Context, db *gorm.DB, clinicID string) ([]Payment, error)
}
