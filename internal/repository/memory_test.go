package repository

import (
	"context"
	"testing"

	"github.com/alimikegami/point-of-sales/checkout-service/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestMemoryPaymentRepository(t *testing.T) {
	ctx := context.Background()
	repo := CreateMemoryPaymentRepository()

	empty, err := repo.GetLatestAttemptByOrderID(ctx, 1)
	require.NoError(t, err)
	require.Zero(t, empty.ID)

	id1, err := repo.AddAttempt(ctx, domain.PaymentSession{MerchantTxID: "a", OrderID: 1, State: domain.PaymentRequested})
	require.NoError(t, err)
	id2, err := repo.AddAttempt(ctx, domain.PaymentSession{MerchantTxID: "b", OrderID: 1, State: domain.PaymentRequested})
	require.NoError(t, err)
	require.Greater(t, id2, id1)

	latest, err := repo.GetLatestAttemptByOrderID(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "b", latest.MerchantTxID)

	reason := "superseded"
	require.NoError(t, repo.UpdateAttempt(ctx, domain.PaymentSession{MerchantTxID: "a", State: domain.PaymentGatewayFailed, FailureReason: &reason}))

	a, err := repo.GetAttemptByMerchantTxID(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, domain.PaymentGatewayFailed, a.State)
	require.Equal(t, int64(1), a.OrderID)

	all, err := repo.GetAttemptsByOrderID(ctx, 1)
	require.NoError(t, err)
	require.Len(t, all, 2)

	missing, err := repo.GetAttemptByMerchantTxID(ctx, "zzz")
	require.NoError(t, err)
	require.Zero(t, missing.ID)
}
