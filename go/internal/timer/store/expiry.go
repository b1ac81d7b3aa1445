package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ExpiryHandler is called once per timer record that Redis evicted by TTL.
type ExpiryHandler func(ctx context.Context, timerID uuid.UUID)

// ExpiryWatcher turns Redis keyspace expiry notifications into an explicit event path,
// so an abandoned timer is distinguishable from one a user cancelled. The record is
// already gone when the event arrives: no log entry is written and no completion fires.
type ExpiryWatcher struct {
	client  *redis.Client
	db      int
	handler ExpiryHandler
}

// NewExpiryWatcher creates a watcher for the given Redis logical database.
func NewExpiryWatcher(client *redis.Client, db int, handler ExpiryHandler) *ExpiryWatcher {
	return &ExpiryWatcher{client: client, db: db, handler: handler}
}

// Channel returns the keyevent channel carrying expired key names.
func (w *ExpiryWatcher) Channel() string {
	return fmt.Sprintf("__keyevent@%d__:expired", w.db)
}

// Start enables expired-key notifications and blocks until ctx is cancelled.
func (w *ExpiryWatcher) Start(ctx context.Context) error {
	// Managed Redis deployments may forbid CONFIG; notifications then have to be
	// enabled server side.
	if err := w.client.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err(); err != nil {
		log.Warn().Err(err).Msg("could not enable keyspace notifications, expiry events may not arrive")
	}

	pubsub := w.client.Subscribe(ctx, w.Channel())
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return errors.Wrap(err, "failed to subscribe to expiry notifications")
	}

	log.Info().Str("channel", w.Channel()).Msg("timer expiry watcher started")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("timer expiry watcher shutting down")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			id, ok := ParseExpiredKey(msg.Payload)
			if !ok {
				continue
			}
			log.Info().
				Str("timer_id", id.String()).
				Str("reason", "ttl_expired").
				Msg("timer abandoned and expired")
			if w.handler != nil {
				w.handler(ctx, id)
			}
		}
	}
}

// ParseExpiredKey extracts the timer id from an expired primary key. Index keys and
// unrelated keys are rejected.
func ParseExpiredKey(key string) (uuid.UUID, bool) {
	if !strings.HasPrefix(key, timerKeyPrefix) || strings.HasPrefix(key, timerUserKeyPrefix) {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(strings.TrimPrefix(key, timerKeyPrefix))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
