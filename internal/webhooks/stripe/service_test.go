package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/internal/ordermeta"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type recordingReconciler struct {
	events []orders.PaymentEvent
	err    error
}

func (r *recordingReconciler) Reconcile(ctx context.Context, ev orders.PaymentEvent) (*orders.Outcome, error) {
	r.events = append(r.events, ev)
	if r.err != nil {
		return nil, r.err
	}
	return &orders.Outcome{Status: orders.StatusCreated}, nil
}

func intentEvent(t *testing.T, eventType stripe.EventType, intent *stripe.PaymentIntent) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(intent)
	require.NoError(t, err)
	return &stripe.Event{ID: "evt_1", Type: eventType, Data: &stripe.EventData{Raw: raw}}
}

func TestService_PaymentIntentSucceededReconciles(t *testing.T) {
	rec := &recordingReconciler{}
	svc, err := NewService(ServiceParams{Reconciler: rec})
	require.NoError(t, err)

	intent := &stripe.PaymentIntent{
		ID:                 "pi_123",
		Amount:             5000,
		AmountReceived:     5000,
		Currency:           stripe.CurrencyUSD,
		PaymentMethodTypes: []string{"card"},
		ReceiptEmail:       "buyer@example.com",
		Metadata:           map[string]string{ordermeta.KeyItems: "7:2:1500:3:M:Red", ordermeta.KeySubtotal: "3000"},
		Shipping: &stripe.ShippingDetails{
			Name:    "Ada Lovelace",
			Address: &stripe.Address{Line1: "12 St James's Square", City: "London", PostalCode: "SW1Y 4JH", Country: "GB"},
		},
	}
	require.NoError(t, svc.HandleEvent(context.Background(), intentEvent(t, stripe.EventTypePaymentIntentSucceeded, intent)))

	require.Len(t, rec.events, 1)
	ev := rec.events[0]
	assert.Equal(t, "pi_123", ev.TransactionID)
	assert.Equal(t, "evt_1", ev.EventID)
	assert.EqualValues(t, 5000, ev.AmountCents)
	assert.Equal(t, "USD", ev.Currency)
	assert.Equal(t, enums.PaymentMethodCard, ev.Method)
	assert.True(t, ev.Verified)
	assert.Equal(t, "3000", ev.Metadata[ordermeta.KeySubtotal])
	require.NotNil(t, ev.Shipping)
	assert.Equal(t, "London", ev.Shipping.City)
	assert.Equal(t, "GB", ev.Shipping.Country)
}

func TestService_ReconcileErrorPropagates(t *testing.T) {
	rec := &recordingReconciler{err: pkgerrors.New(pkgerrors.CodeDependency, "database down")}
	svc, err := NewService(ServiceParams{Reconciler: rec})
	require.NoError(t, err)

	err = svc.HandleEvent(context.Background(), intentEvent(t, stripe.EventTypePaymentIntentSucceeded, &stripe.PaymentIntent{ID: "pi_1", Amount: 10}))
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.CodeOf(err))
}

func TestService_IgnoresOtherEvents(t *testing.T) {
	rec := &recordingReconciler{}
	svc, err := NewService(ServiceParams{Reconciler: rec})
	require.NoError(t, err)

	require.NoError(t, svc.HandleEvent(context.Background(), intentEvent(t, stripe.EventTypePaymentIntentPaymentFailed, &stripe.PaymentIntent{ID: "pi_2"})))
	require.NoError(t, svc.HandleEvent(context.Background(), intentEvent(t, stripe.EventTypeCustomerCreated, &stripe.PaymentIntent{ID: "pi_3"})))
	assert.Empty(t, rec.events)
}

func TestService_RejectsMalformedEvent(t *testing.T) {
	svc, err := NewService(ServiceParams{Reconciler: &recordingReconciler{}})
	require.NoError(t, err)

	err = svc.HandleEvent(context.Background(), &stripe.Event{Type: stripe.EventTypePaymentIntentSucceeded})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	err = svc.HandleEvent(context.Background(), &stripe.Event{Type: stripe.EventTypePaymentIntentSucceeded, Data: &stripe.EventData{Raw: []byte("{not json")}})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestPaymentEventFromIntent_Defaults(t *testing.T) {
	ev := PaymentEventFromIntent("evt_9", &stripe.PaymentIntent{ID: "pi_9", Amount: 1200, PaymentMethodTypes: []string{"us_bank_account"}})
	assert.EqualValues(t, 1200, ev.AmountCents)
	assert.Equal(t, enums.PaymentMethodBank, ev.Method)
	assert.Nil(t, ev.Shipping)
	assert.Empty(t, ev.Metadata)
}

type memoryIdempotencyStore struct {
	mu   sync.Mutex
	data map[string]string
	err  error
}

func (s *memoryIdempotencyStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *memoryIdempotencyStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	if s.data == nil {
		s.data = map[string]string{}
	}
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = fmt.Sprint(value)
	return true, nil
}

func (s *memoryIdempotencyStore) IdempotencyKey(scope, id string) string {
	return "sf:idempotency:" + scope + ":" + id
}

func (s *memoryIdempotencyStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

func TestIdempotencyGuard_ClaimLifecycle(t *testing.T) {
	ctx := context.Background()
	store := &memoryIdempotencyStore{}
	guard, err := NewIdempotencyGuard(store, time.Hour, time.Minute, "")
	require.NoError(t, err)

	state, err := guard.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, ClaimAcquired, state)
	assert.Contains(t, store.data, "sf:idempotency:stripe-webhook:inflight:evt_1")

	state, err = guard.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, ClaimInFlight, state)

	require.NoError(t, guard.Release(ctx, "evt_1"))
	state, err = guard.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, ClaimAcquired, state)

	require.NoError(t, guard.Complete(ctx, "evt_1"))
	assert.NotContains(t, store.data, "sf:idempotency:stripe-webhook:inflight:evt_1")
	assert.Contains(t, store.data, "sf:idempotency:stripe-webhook:evt_1")

	state, err = guard.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.Equal(t, ClaimDone, state)
}

func TestIdempotencyGuard_Errors(t *testing.T) {
	_, err := NewIdempotencyGuard(nil, time.Hour, time.Minute, "")
	assert.Error(t, err)

	guard, err := NewIdempotencyGuard(&memoryIdempotencyStore{err: errors.New("redis down")}, time.Hour, time.Minute, "")
	require.NoError(t, err)
	_, err = guard.Claim(context.Background(), "evt_1")
	assert.ErrorContains(t, err, "redis down")

	_, err = guard.Claim(context.Background(), "")
	assert.Error(t, err)
	assert.Error(t, guard.Release(context.Background(), ""))
	assert.Error(t, guard.Complete(context.Background(), ""))
}
