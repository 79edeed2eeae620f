package repository

import (
	"context"

	paymentdomain "github.com/smallbiznis/dentaldesk/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() paymentdomain.Repository {
	return &repo{}
}

func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, payment *paymentdomain.Payment) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payments (
			id, clinic_id, billing_payment_intent_id, amount, currency, status,
			payment_method, description, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (billing_payment_intent_id) DO NOTHING`,
		payment.ID,
		payment.ClinicID,
		payment.BillingPaymentIntentID,
		payment.Amount,
		payment.Currency,
		payment.Status,
		payment.PaymentMethod,
		payment.Description,
		payment.CreatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListByClinic(ctx context.Context, db *gorm.DB, clinicID string) ([]paymentdomain.Payment, error) {
	var items []paymentdomain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT id, clinic_id, billing_payment_intent_id, amount, currency, status,
			payment_method, description, created_at
		 FROM payments
		 WHERE clinic_id = ?
		 ORDER BY created_at DESC, id DESC`,
		clinicID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
