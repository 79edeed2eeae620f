package repository_test

import (
	"context"
	"testing"
	"time"

	paymentdomain "github.com/smallbiznis/dentaldesk/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/dentaldesk/internal/payment/repository"
	"github.com/smallbiznis/dentaldesk/internal/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertIfAbsentKeysOnPaymentIntent(t *testing.T) {
	ctx := context.Background()
	db := storetest.Open(t)
	repo := paymentrepo.Provide()
	method := paymentdomain.MethodCard
	created := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	payment := &paymentdomain.Payment{
		ID:                     "p-1",
		ClinicID:               "clinic-1",
		BillingPaymentIntentID: "pi_1",
		Amount:                 paymentdomain.FromMinorUnits(7500, "usd"),
		Currency:               "USD",
		Status:                 paymentdomain.StatusPaid,
		PaymentMethod:          &method,
		CreatedAt:              created,
	}
	inserted, err := repo.InsertIfAbsent(ctx, db, payment)
	require.NoError(t, err)
	assert.True(t, inserted)

	dup := *payment
	dup.ID = "p-2"
	inserted, err = repo.InsertIfAbsent(ctx, db, &dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	items, err := repo.ListByClinic(ctx, db, "clinic-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "75.00", items[0].Amount.StringFixed(2))
	assert.Equal(t, "USD", items[0].Currency)
	assert.Equal(t, paymentdomain.StatusPaid, items[0].Status)
}
