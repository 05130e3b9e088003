package orders

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

func minimalOrder(number, txID string) *models.Order {
	return &models.Order{
		OrderNumber:        number,
		TransactionID:      txID,
		Currency:           "USD",
		SubtotalCents:      1000,
		TotalCents:         1000,
		AmountChargedCents: 1000,
		Status:             enums.OrderStatusPending,
		PaymentStatus:      enums.PaymentStatusPaid,
		AddressSource:      "placeholder",
		Items: []models.OrderItem{{
			Description: "order (itemization unavailable)", Quantity: 1,
			UnitPriceCents: 1000, LineTotalCents: 1000, Synthetic: true,
		}},
		Payments: []models.Payment{{
			TransactionID: txID, AmountCents: 1000, Currency: "USD",
			Status: enums.PaymentStatusPaid, Method: enums.PaymentMethodCard,
		}},
		StatusHistory: []models.OrderStatusEvent{{Status: enums.OrderStatusPending, Actor: ReconcilerActor}},
	}
}

func TestRepository_CreateAggregateDetectsDuplicates(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.Open(t)
	repo := NewRepository(conn)

	require.NoError(t, repo.CreateAggregate(ctx, minimalOrder("SO-1", "tx_dup")))

	err := repo.CreateAggregate(ctx, minimalOrder("SO-2", "tx_dup"))
	assert.ErrorIs(t, err, ErrDuplicateTransaction)

	err = repo.CreateAggregate(ctx, minimalOrder("SO-1", "tx_other"))
	assert.ErrorIs(t, err, ErrDuplicateOrderNumber)

	var orders, payments, items int64
	require.NoError(t, conn.Model(&models.Order{}).Count(&orders).Error)
	require.NoError(t, conn.Model(&models.Payment{}).Count(&payments).Error)
	require.NoError(t, conn.Model(&models.OrderItem{}).Count(&items).Error)
	assert.EqualValues(t, 1, orders)
	assert.EqualValues(t, 1, payments)
	assert.EqualValues(t, 1, items)
}

func TestRepository_ClaimStockAdjustmentOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.Open(t))
	order := minimalOrder("SO-3", "tx_claim")
	require.NoError(t, repo.CreateAggregate(ctx, order))

	claimed, err := repo.ClaimStockAdjustment(ctx, order.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = repo.ClaimStockAdjustment(ctx, order.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, claimed)

	stored, err := repo.FindByTransactionID(ctx, "tx_claim")
	require.NoError(t, err)
	assert.NotNil(t, stored.StockAdjustedAt)
}

func TestRepository_ConditionalStatusUpdates(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.Open(t))
	order := minimalOrder("SO-4", "tx_status")
	require.NoError(t, repo.CreateAggregate(ctx, order))

	ok, err := repo.UpdateStatus(ctx, order.ID, enums.OrderStatusApproved, enums.OrderStatusShipped)
	require.NoError(t, err)
	assert.False(t, ok, "stale from-status must not match")

	ok, err = repo.UpdateStatus(ctx, order.ID, enums.OrderStatusPending, enums.OrderStatusApproved)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.UpdatePaymentStatus(ctx, order.ID, enums.PaymentStatusPaid, enums.PaymentStatusRefunded)
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err := repo.FindByNumber(ctx, "SO-4")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusApproved, stored.Status)
	assert.Equal(t, enums.PaymentStatusRefunded, stored.PaymentStatus)
	assert.Equal(t, enums.PaymentStatusRefunded, stored.Payments[0].Status)
	assert.Len(t, stored.StatusHistory, 1)
}

func TestRepository_ListPendingStockAdjustment(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(dbtest.Open(t))

	pending := minimalOrder("SO-5", "tx_pending")
	done := minimalOrder("SO-6", "tx_done")
	require.NoError(t, repo.CreateAggregate(ctx, pending))
	require.NoError(t, repo.CreateAggregate(ctx, done))
	_, err := repo.ClaimStockAdjustment(ctx, done.ID, time.Now())
	require.NoError(t, err)

	listed, err := repo.ListPendingStockAdjustment(ctx, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "tx_pending", listed[0].TransactionID)

	listed, err = repo.ListPendingStockAdjustment(ctx, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, listed)
}
