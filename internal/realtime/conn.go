package realtime

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// ServeOptions tunes a websocket session.
type ServeOptions struct {
	OriginPatterns []string
	PingInterval   time.Duration
}

type connSession struct {
	conn      *websocket.Conn
	done      chan struct{}
	closeOnce sync.Once
}

func newConnSession(conn *websocket.Conn) *connSession {
	return &connSession{conn: conn, done: make(chan struct{})}
}

func (s *connSession) Send(ctx context.Context, event Event) error {
	return wsjson.Write(ctx, s.conn, event)
}

func (s *connSession) Close(reason string) error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close(websocket.StatusGoingAway, reason)
	})
	return err
}

// Serve upgrades the request, registers the connection for userID and blocks
// until the client disconnects, the session is replaced, or the hub closes.
// Inbound messages are ignored.
func Serve(w http.ResponseWriter, r *http.Request, hub *Hub, userID string, opts ServeOptions) error {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: opts.OriginPatterns})
	if err != nil {
		return err
	}

	session := newConnSession(conn)
	if err := hub.Register(userID, session); err != nil {
		_ = conn.Close(websocket.StatusTryAgainLater, "realtime unavailable")
		return err
	}
	defer hub.Unregister(userID, session)

	ctx := conn.CloseRead(r.Context())

	interval := opts.PingInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = session.Close("client gone")
			return nil
		case <-session.done:
			return nil
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, interval)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				_ = session.Close("ping failed")
				return nil
			}
		}
	}
}
