package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type fakeSession struct {
	mu      sync.Mutex
	sendErr error
	events  []Event
	closed  []string
}

func (s *fakeSession) Send(ctx context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.events = append(s.events, event)
	return nil
}

func (s *fakeSession) Close(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = append(s.closed, reason)
	return nil
}

func (s *fakeSession) received() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.closed) > 0
}

func TestHub_BroadcastReachesEverySession(t *testing.T) {
	hub := NewHub(HubParams{})
	a, b := &fakeSession{}, &fakeSession{}
	require.NoError(t, hub.Register("admin-a", a))
	require.NoError(t, hub.Register("admin-b", b))

	delivered := hub.Broadcast(context.Background(), "notification.created", map[string]string{"id": "n1"})
	assert.Equal(t, 2, delivered)
	require.Len(t, a.received(), 1)
	assert.Equal(t, "notification.created", a.received()[0].Type)
	require.Len(t, b.received(), 1)
}

func TestHub_NewerSessionReplacesOlder(t *testing.T) {
	hub := NewHub(HubParams{})
	old, fresh := &fakeSession{}, &fakeSession{}
	require.NoError(t, hub.Register("admin", old))
	require.NoError(t, hub.Register("admin", fresh))

	assert.True(t, old.isClosed())
	assert.False(t, fresh.isClosed())
	assert.Equal(t, 1, hub.Len())

	// The replaced session disconnecting must not evict its successor.
	hub.Unregister("admin", old)
	assert.Equal(t, 1, hub.Len())

	hub.Broadcast(context.Background(), "ping", nil)
	assert.Empty(t, old.received())
	assert.Len(t, fresh.received(), 1)
}

func TestHub_FailingSessionIsDropped(t *testing.T) {
	hub := NewHub(HubParams{})
	healthy := &fakeSession{}
	broken := &fakeSession{sendErr: errors.New("broken pipe")}
	require.NoError(t, hub.Register("healthy", healthy))
	require.NoError(t, hub.Register("broken", broken))

	delivered := hub.Broadcast(context.Background(), "notification.created", nil)
	assert.Equal(t, 1, delivered)
	assert.True(t, broken.isClosed())
	assert.Equal(t, 1, hub.Len())

	delivered = hub.Broadcast(context.Background(), "notification.unread_count", nil)
	assert.Equal(t, 1, delivered)
	assert.Len(t, healthy.received(), 2)
}

func TestHub_CloseRejectsRegistration(t *testing.T) {
	hub := NewHub(HubParams{})
	s := &fakeSession{}
	require.NoError(t, hub.Register("admin", s))

	require.NoError(t, hub.Close())
	assert.True(t, s.isClosed())
	assert.Zero(t, hub.Len())
	assert.Zero(t, hub.Broadcast(context.Background(), "x", nil))

	err := hub.Register("admin", &fakeSession{})
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.CodeOf(err))
	require.NoError(t, hub.Close())
}

func TestHub_RegisterValidates(t *testing.T) {
	hub := NewHub(HubParams{})
	assert.Error(t, hub.Register("", &fakeSession{}))
	assert.Error(t, hub.Register("admin", nil))
}
