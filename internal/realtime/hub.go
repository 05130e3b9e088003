// Package realtime keeps the registry of connected operator sessions and
// pushes events to them.
package realtime

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

// Event is the envelope written to every session.
type Event struct {
	Type   string    `json:"type"`
	Data   any       `json:"data"`
	SentAt time.Time `json:"sent_at"`
}

// Session is one live operator connection.
type Session interface {
	Send(ctx context.Context, event Event) error
	Close(reason string) error
}

// Hub is the lifecycle-scoped registry of operator sessions keyed by user id.
// It is created at startup and closed at shutdown.
type Hub struct {
	mu           sync.RWMutex
	sessions     map[string]Session
	closed       bool
	logg         *logger.Logger
	metrics      *metrics.PipelineMetrics
	writeTimeout time.Duration
	now          func() time.Time
}

// HubParams configures a Hub. Logger and Metrics are optional.
type HubParams struct {
	Logger       *logger.Logger
	Metrics      *metrics.PipelineMetrics
	WriteTimeout time.Duration
}

// NewHub returns an empty, open hub.
func NewHub(params HubParams) *Hub {
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	timeout := params.WriteTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Hub{
		sessions:     map[string]Session{},
		logg:         logg,
		metrics:      params.Metrics,
		writeTimeout: timeout,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Register binds session to userID. An existing session for the same user is
// replaced and closed.
func (h *Hub) Register(userID string, session Session) error {
	if userID == "" || session == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id and session required")
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return pkgerrors.New(pkgerrors.CodeStateConflict, "realtime hub closed")
	}
	previous := h.sessions[userID]
	h.sessions[userID] = session
	count := len(h.sessions)
	h.mu.Unlock()

	h.metrics.SetSessions(count)
	if previous != nil && previous != session {
		_ = previous.Close("replaced by a newer connection")
	}
	return nil
}

// Unregister removes session if it is still the one bound to userID.
func (h *Hub) Unregister(userID string, session Session) {
	h.mu.Lock()
	current, ok := h.sessions[userID]
	if ok && current == session {
		delete(h.sessions, userID)
	}
	count := len(h.sessions)
	h.mu.Unlock()
	h.metrics.SetSessions(count)
}

// Len returns the number of registered sessions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Broadcast sends the event to every registered session and returns how many
// accepted it. Sessions that fail to accept within the write timeout are
// dropped and closed.
func (h *Hub) Broadcast(ctx context.Context, eventType string, payload any) int {
	type target struct {
		userID  string
		session Session
	}

	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return 0
	}
	targets := make([]target, 0, len(h.sessions))
	for userID, session := range h.sessions {
		targets = append(targets, target{userID: userID, session: session})
	}
	h.mu.RUnlock()

	event := Event{Type: eventType, Data: payload, SentAt: h.now()}
	var (
		g         errgroup.Group
		mu        sync.Mutex
		delivered int
	)
	for _, t := range targets {
		t := t
		g.Go(func() error {
			sendCtx, cancel := context.WithTimeout(ctx, h.writeTimeout)
			defer cancel()
			if err := t.session.Send(sendCtx, event); err != nil {
				h.metrics.IncPushFailure()
				h.logg.Warn(h.logg.WithFields(ctx, map[string]any{
					"user_id": t.userID,
					"event":   eventType,
					"error":   err.Error(),
				}), "realtime send failed, dropping session")
				h.Unregister(t.userID, t.session)
				_ = t.session.Close("send failed")
				return nil
			}
			mu.Lock()
			delivered++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return delivered
}

// Close closes every session and rejects further registrations.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	sessions := h.sessions
	h.sessions = map[string]Session{}
	h.mu.Unlock()

	h.metrics.SetSessions(0)
	for _, session := range sessions {
		_ = session.Close("server shutting down")
	}
	return nil
}
