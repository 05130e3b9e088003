package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

const (
	orderNumberPrefix = "SO"
	orderNumberScope  = "orders"
	sequenceTTL       = 48 * time.Hour
)

// NumberGenerator hands out human-readable order numbers from a daily redis
// sequence, e.g. SO-20261019-000042.
type NumberGenerator struct {
	seq  redis.SequenceStore
	logg *logger.Logger
	now  func() time.Time
}

// NewNumberGenerator returns a generator. A nil store always uses the
// uuid-derived fallback.
func NewNumberGenerator(seq redis.SequenceStore, logg *logger.Logger) *NumberGenerator {
	if logg == nil {
		logg = logger.Nop()
	}
	return &NumberGenerator{seq: seq, logg: logg, now: func() time.Time { return time.Now().UTC() }}
}

// Next returns the next order number. Redis failures fall back to a number
// derived from a fresh uuid, so Next never fails.
func (g *NumberGenerator) Next(ctx context.Context) string {
	now := g.now()
	day := now.Format("20060102")
	if g.seq != nil {
		n, err := g.seq.IncrWithTTL(ctx, g.seq.SequenceKey(orderNumberScope, day), sequenceTTL)
		if err == nil && n > 0 {
			return fmt.Sprintf("%s-%s-%06d", orderNumberPrefix, day, n)
		}
		if err != nil {
			g.logg.Warn(g.logg.WithField(ctx, "error", err.Error()), "order sequence unavailable, using fallback number")
		}
	}
	return FallbackNumber(now, uuid.New())
}

// FallbackNumber derives an order number from id. Its suffix is hex so it
// cannot collide with sequence numbers.
func FallbackNumber(now time.Time, id uuid.UUID) string {
	hex := strings.ReplaceAll(id.String(), "-", "")
	return fmt.Sprintf("%s-%s-X%s", orderNumberPrefix, now.UTC().Format("20060102"), strings.ToUpper(hex[:10]))
}
