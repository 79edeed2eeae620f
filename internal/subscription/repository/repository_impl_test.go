package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/dentaldesk/internal/storetest"
	subscriptiondomain "github.com/smallbiznis/dentaldesk/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/dentaldesk/internal/subscription/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSubscription(t *testing.T, at time.Time) (subscriptiondomain.Repository, *subscriptiondomain.Subscription) {
	t.Helper()
	return subscriptionrepo.Provide(), &subscriptiondomain.Subscription{
		ID:                    "s-1",
		ClinicID:              "clinic-1",
		BillingSubscriptionID: "sub_1",
		Status:                subscriptiondomain.StatusActive,
		LastEventAt:           &at,
		CreatedAt:             at,
		UpdatedAt:             at,
	}
}

func TestInsertIfAbsentIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := storetest.Open(t)
	at := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	repo, sub := seedSubscription(t, at)

	inserted, err := repo.InsertIfAbsent(ctx, db, sub)
	require.NoError(t, err)
	assert.True(t, inserted)

	dup := *sub
	dup.ID = "s-2"
	inserted, err = repo.InsertIfAbsent(ctx, db, &dup)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, int64(1), storetest.Count(t, db, "subscriptions"))

	found, err := repo.FindByBillingID(ctx, db, "sub_1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "s-1", found.ID)

	missing, err := repo.FindByBillingID(ctx, db, "sub_missing")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestApplyUpdateIgnoresStaleEvents(t *testing.T) {
	ctx := context.Background()
	db := storetest.Open(t)
	at := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	repo, sub := seedSubscription(t, at)
	_, err := repo.InsertIfAbsent(ctx, db, sub)
	require.NoError(t, err)

	newer := at.Add(time.Hour)
	affected, err := repo.ApplyUpdate(ctx, db, "sub_1", subscriptiondomain.Update{
		Status:            subscriptiondomain.StatusPastDue,
		CancelAtPeriodEnd: true,
		EventAt:           newer,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	affected, err = repo.ApplyUpdate(ctx, db, "sub_1", subscriptiondomain.Update{
		Status:  subscriptiondomain.StatusActive,
		EventAt: at.Add(30 * time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), affected)

	found, err := repo.FindByBillingID(ctx, db, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StatusPastDue, found.Status)
	assert.True(t, found.CancelAtPeriodEnd)
}

func TestCancelledIsTerminal(t *testing.T) {
	ctx := context.Background()
	db := storetest.Open(t)
	at := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	repo, sub := seedSubscription(t, at)
	_, err := repo.InsertIfAbsent(ctx, db, sub)
	require.NoError(t, err)

	affected, err := repo.MarkCancelled(ctx, db, "sub_1", at.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	affected, err = repo.ApplyUpdate(ctx, db, "sub_1", subscriptiondomain.Update{
		Status:  subscriptiondomain.StatusActive,
		EventAt: at.Add(2 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), affected)

	affected, err = repo.MarkCancelled(ctx, db, "sub_1", at.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(0), affected)
}

func TestMarkCancelledMatchesAlreadyCancelledRow(t *testing.T) {
	ctx := context.Background()
	db := storetest.Open(t)
	at := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	repo, sub := seedSubscription(t, at)
	_, err := repo.InsertIfAbsent(ctx, db, sub)
	require.NoError(t, err)

	affected, err := repo.ApplyUpdate(ctx, db, "sub_1", subscriptiondomain.Update{
		Status:  subscriptiondomain.StatusCancelled,
		EventAt: at.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	affected, err = repo.MarkCancelled(ctx, db, "sub_1", at.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	found, err := repo.FindByBillingID(ctx, db, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StatusCancelled, found.Status)
	require.NotNil(t, found.LastEventAt)
	assert.True(t, found.LastEventAt.Equal(at.Add(2*time.Hour)))
}

func TestNormalizeStatus(t *testing.T) {
	assert.Equal(t, subscriptiondomain.StatusCancelled, subscriptiondomain.NormalizeStatus("canceled"))
	assert.Equal(t, subscriptiondomain.StatusPastDue, subscriptiondomain.NormalizeStatus("PAST_DUE"))
	assert.Equal(t, subscriptiondomain.Status("trialing"), subscriptiondomain.NormalizeStatus("trialing"))
	assert.True(t, subscriptiondomain.StatusCancelled.Terminal())
	assert.False(t, subscriptiondomain.StatusUnpaid.Terminal())
}
