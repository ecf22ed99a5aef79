package infra

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// NewRedis creates and validates a go-redis client connection.
func NewRedis(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opts)

	// Validate connectivity at startup
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}

	return rdb, nil
}

// ── Notifications ─────────────────────────────────────────────────────────────

// ChannelPrefix namespaces every pub/sub channel used by the POS.
const ChannelPrefix = "scrappos:"

// Notifier publishes fire-and-forget events on Redis pub/sub. Subscribers
// (the cashier UI bridge) are never awaited.
type Notifier struct {
	rdb *redis.Client
}

func NewNotifier(rdb *redis.Client) *Notifier { return &Notifier{rdb: rdb} }

// Publish marshals payload as JSON and publishes it. Failures are logged and
// swallowed.
func (n *Notifier) Publish(ctx context.Context, channel string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("notifier: marshal payload")
		return
	}
	// Detached from the request: a cancelled caller must not drop the event.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := n.rdb.Publish(pubCtx, ChannelPrefix+channel, data).Err(); err != nil {
		log.Warn().Err(err).Str("channel", channel).Msg("notifier: publish failed")
	}
}
