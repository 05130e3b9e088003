package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

func TestNotificationArchiveJob_ArchivesOnlyOldHandledRows(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.Open(t)
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	old := now.AddDate(0, 0, -45)

	dbtest.MustCreate(t, conn,
		&models.Notification{TargetType: enums.NotificationTargetOrder, TargetID: "a", Type: enums.NotificationTypeOrderPlaced,
			Priority: enums.NotificationPriorityNormal, Status: enums.NotificationStatusRead, Title: "a", Message: "a", CreatedAt: old},
		&models.Notification{TargetType: enums.NotificationTargetOrder, TargetID: "b", Type: enums.NotificationTypeOrderPlaced,
			Priority: enums.NotificationPriorityNormal, Status: enums.NotificationStatusUnread, Title: "b", Message: "b", CreatedAt: old},
		&models.Notification{TargetType: enums.NotificationTargetOrder, TargetID: "c", Type: enums.NotificationTypeOrderPlaced,
			Priority: enums.NotificationPriorityNormal, Status: enums.NotificationStatusRead, Title: "c", Message: "c", CreatedAt: now.AddDate(0, 0, -1)},
	)

	job, err := NewNotificationArchiveJob(NotificationArchiveJobParams{
		Logger:     logger.Nop(),
		Repository: notifications.NewRepository(conn),
	})
	require.NoError(t, err)
	job.(*notificationArchiveJob).now = func() time.Time { return now }

	rows, err := job.Run(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rows)

	var archived models.Notification
	require.NoError(t, conn.Where("target_id = ?", "a").First(&archived).Error)
	assert.Equal(t, enums.NotificationStatusArchived, archived.Status)
	assert.NotNil(t, archived.ArchivedAt)
}

type stubPending struct {
	orders []models.Order
	err    error
	before time.Time
}

func (s *stubPending) ListPendingStockAdjustment(ctx context.Context, createdBefore time.Time, limit int) ([]models.Order, error) {
	s.before = createdBefore
	return s.orders, s.err
}

type stubReconciler struct {
	seen []string
	fail map[string]bool
}

func (s *stubReconciler) Reconcile(ctx context.Context, ev orders.PaymentEvent) (*orders.Outcome, error) {
	s.seen = append(s.seen, ev.TransactionID)
	if s.fail[ev.TransactionID] {
		return nil, errors.New("db down")
	}
	return &orders.Outcome{Status: orders.StatusDuplicate, StockAdjusted: true}, nil
}

func TestStockRecoveryJob_ReplaysPendingOrders(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	pending := &stubPending{orders: []models.Order{
		{ID: uuid.New(), OrderNumber: "SO-1", TransactionID: "pi_1", AmountChargedCents: 100},
		{ID: uuid.New(), OrderNumber: "SO-2", TransactionID: "pi_2", AmountChargedCents: 200},
	}}
	rec := &stubReconciler{fail: map[string]bool{"pi_2": true}}

	job, err := NewStockRecoveryJob(StockRecoveryJobParams{Logger: logger.Nop(), Orders: pending, Reconciler: rec, Grace: 5 * time.Minute})
	require.NoError(t, err)
	job.(*stockRecoveryJob).now = func() time.Time { return now }

	rows, err := job.Run(context.Background())
	assert.EqualValues(t, 1, rows)
	assert.ErrorContains(t, err, "SO-2")
	assert.Equal(t, []string{"pi_1", "pi_2"}, rec.seen)
	assert.Equal(t, now.Add(-5*time.Minute), pending.before)
}

func TestStockRecoveryJob_ListFailure(t *testing.T) {
	job, err := NewStockRecoveryJob(StockRecoveryJobParams{Logger: logger.Nop(), Orders: &stubPending{err: errors.New("boom")}, Reconciler: &stubReconciler{}})
	require.NoError(t, err)
	_, err = job.Run(context.Background())
	assert.ErrorContains(t, err, "boom")
}
