package realtime

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// BusChannel names the pub/sub channel carrying operator events.
const BusChannel = "operator-events"

// PubSub is the cross-process transport behind a Bus.
type PubSub interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string, handle func(payload []byte)) error
	ChannelKey(name string) string
}

// busMessage is the wire form of a relayed event.
type busMessage struct {
	Origin string          `json:"origin"`
	Type   string          `json:"type"`
	Data   json.RawMessage `json:"data"`
}

// Bus broadcasts events to the local hub, when the process has one, and
// publishes them so every other process relays them to its own sessions.
type Bus struct {
	pubsub  PubSub
	local   *Hub
	channel string
	origin  string
	logg    *logger.Logger
}

// BusParams configures a Bus. Local is nil in processes that serve no
// operator sessions.
type BusParams struct {
	PubSub PubSub
	Local  *Hub
	Logger *logger.Logger
}

func NewBus(params BusParams) (*Bus, error) {
	if params.PubSub == nil {
		return nil, errors.New("pubsub is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Bus{
		pubsub:  params.PubSub,
		local:   params.Local,
		channel: params.PubSub.ChannelKey(BusChannel),
		origin:  uuid.NewString(),
		logg:    logg,
	}, nil
}

// Broadcast delivers to local sessions first and returns how many accepted
// the event. Publish failures are logged; other processes miss the event.
func (b *Bus) Broadcast(ctx context.Context, eventType string, payload any) int {
	delivered := 0
	if b.local != nil {
		delivered = b.local.Broadcast(ctx, eventType, payload)
	}

	data, err := json.Marshal(payload)
	if err == nil {
		data, err = json.Marshal(busMessage{Origin: b.origin, Type: eventType, Data: data})
	}
	if err == nil {
		err = b.pubsub.Publish(ctx, b.channel, data)
	}
	if err != nil {
		b.logg.Warn(b.logg.WithFields(ctx, map[string]any{
			"event": eventType,
			"error": err.Error(),
		}), "realtime publish failed")
	}
	return delivered
}

// Run relays events published by other processes to the local hub until ctx
// is done.
func (b *Bus) Run(ctx context.Context) error {
	return b.pubsub.Subscribe(ctx, b.channel, func(payload []byte) {
		b.relay(ctx, payload)
	})
}

func (b *Bus) relay(ctx context.Context, payload []byte) {
	var msg busMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		b.logg.Warn(b.logg.WithField(ctx, "error", err.Error()), "realtime relay dropped malformed message")
		return
	}
	if msg.Origin == b.origin || b.local == nil {
		return
	}
	b.local.Broadcast(ctx, msg.Type, msg.Data)
}
