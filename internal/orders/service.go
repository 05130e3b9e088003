package orders

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

var orderTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:   {enums.OrderStatusApproved, enums.OrderStatusCancelled, enums.OrderStatusRefunded},
	enums.OrderStatusApproved:  {enums.OrderStatusShipped, enums.OrderStatusCancelled, enums.OrderStatusRefunded},
	enums.OrderStatusShipped:   {enums.OrderStatusDelivered, enums.OrderStatusRefunded},
	enums.OrderStatusDelivered: {enums.OrderStatusRefunded},
}

var paymentTransitions = map[enums.PaymentStatus][]enums.PaymentStatus{
	enums.PaymentStatusPending: {enums.PaymentStatusPaid, enums.PaymentStatusFailed},
	enums.PaymentStatusFailed:  {enums.PaymentStatusPaid},
	enums.PaymentStatusPaid:    {enums.PaymentStatusRefunded},
}

// Service defines operator actions on orders.
type Service interface {
	Get(ctx context.Context, ref string) (*models.Order, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error)
	UpdatePaymentStatus(ctx context.Context, input UpdatePaymentStatusInput) (*models.Order, error)
}

// UpdateStatusInput moves an order to a new fulfillment status.
type UpdateStatusInput struct {
	OrderID uuid.UUID
	Status  enums.OrderStatus
	Note    *string
	Actor   string
}

// UpdatePaymentStatusInput moves an order's payment to a new status.
type UpdatePaymentStatusInput struct {
	OrderID uuid.UUID
	Status  enums.PaymentStatus
	Note    *string
	Actor   string
}

type service struct {
	repo Repository
	tx   txRunner
}

// NewService builds the operator order service.
func NewService(repo Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "orders repository required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	return &service{repo: repo, tx: tx}, nil
}

// Get looks an order up by id or by order number.
func (s *service) Get(ctx context.Context, ref string) (*models.Order, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order reference required")
	}

	var (
		order *models.Order
		err   error
	)
	if id, parseErr := uuid.Parse(ref); parseErr == nil {
		order, err = s.repo.FindByID(ctx, id)
	} else {
		order, err = s.repo.FindByNumber(ctx, ref)
	}
	if err != nil {
		return nil, mapFindError(err)
	}
	return order, nil
}

// UpdateStatus applies an allowed transition and appends the matching history
// row in the same transaction.
func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid order status %q", input.Status)
	}
	if strings.TrimSpace(input.Actor) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor required")
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, input.OrderID)
		if err != nil {
			return mapFindError(err)
		}
		if !allowed(orderTransitions, order.Status, input.Status) {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "cannot move order from %s to %s", order.Status, input.Status).
				WithDetails(map[string]any{"from": order.Status, "to": input.Status})
		}

		ok, err := repo.UpdateStatus(ctx, order.ID, order.Status, input.Status)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "order changed concurrently")
		}
		if err := repo.AppendHistory(ctx, &models.OrderStatusEvent{
			OrderID: order.ID,
			Status:  input.Status,
			Note:    input.Note,
			Actor:   input.Actor,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order history")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.reload(ctx, input.OrderID)
}

// UpdatePaymentStatus applies an allowed payment transition to the order and
// its payments. The history row keeps the current order status so the latest
// entry always matches it.
func (s *service) UpdatePaymentStatus(ctx context.Context, input UpdatePaymentStatusInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid payment status %q", input.Status)
	}
	if strings.TrimSpace(input.Actor) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor required")
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, input.OrderID)
		if err != nil {
			return mapFindError(err)
		}
		if !allowed(paymentTransitions, order.PaymentStatus, input.Status) {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "cannot move payment from %s to %s", order.PaymentStatus, input.Status).
				WithDetails(map[string]any{"from": order.PaymentStatus, "to": input.Status})
		}

		ok, err := repo.UpdatePaymentStatus(ctx, order.ID, order.PaymentStatus, input.Status)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "order changed concurrently")
		}

		note := "payment " + string(input.Status)
		if input.Note != nil && strings.TrimSpace(*input.Note) != "" {
			note += ": " + strings.TrimSpace(*input.Note)
		}
		if err := repo.AppendHistory(ctx, &models.OrderStatusEvent{
			OrderID: order.ID,
			Status:  order.Status,
			Note:    &note,
			Actor:   input.Actor,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order history")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.reload(ctx, input.OrderID)
}

func (s *service) reload(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapFindError(err)
	}
	return order, nil
}

func allowed[T comparable](table map[T][]T, from, to T) bool {
	for _, candidate := range table[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

func mapFindError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}
