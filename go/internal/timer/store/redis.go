package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/chronicle/go/internal/models"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	timerKeyPrefix     = "timer:"
	timerUserKeyPrefix = "timer:user:"

	// DefaultTTL bounds how long an abandoned timer survives without a write.
	DefaultTTL = 24 * time.Hour
)

// ErrNotFound is returned when no live record exists for a timer id.
var ErrNotFound = errors.New("timer not found in store")

// Config holds Redis connection settings.
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
	TTL      time.Duration
}

// Addr returns host:port.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NewClient opens a Redis client and verifies connectivity.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "failed to ping redis at %s", cfg.Addr())
	}
	return client, nil
}

// RedisStore keeps one JSON record per active timer plus a per-user index set.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a store. A non-positive ttl falls back to DefaultTTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

// TimerKey returns the primary key for a timer id.
func TimerKey(id uuid.UUID) string {
	return timerKeyPrefix + id.String()
}

func userKey(userID string) string {
	return timerUserKeyPrefix + userID
}

// Put upserts the record, refreshes its TTL and adds the id to the owner's index.
func (s *RedisStore) Put(ctx context.Context, timer *models.TimerSession) error {
	data, err := json.Marshal(timer)
	if err != nil {
		return errors.Wrap(err, "failed to marshal timer")
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, TimerKey(timer.ID), data, s.ttl)
	pipe.SAdd(ctx, userKey(timer.UserID), timer.ID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "failed to save timer")
	}
	return nil
}

// Get returns the stored timer or ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, id uuid.UUID) (*models.TimerSession, error) {
	data, err := s.client.Get(ctx, TimerKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get timer")
	}

	var timer models.TimerSession
	if err := json.Unmarshal(data, &timer); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal timer")
	}
	return &timer, nil
}

// ListActive returns the user's RUNNING and PAUSED timers. The index may hold ids whose
// record already expired; those are skipped and pruned from the index.
func (s *RedisStore) ListActive(ctx context.Context, userID string) ([]*models.TimerSession, error) {
	ids, err := s.client.SMembers(ctx, userKey(userID)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list timer index")
	}
	if len(ids) == 0 {
		return []*models.TimerSession{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = timerKeyPrefix + id
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get timers")
	}

	timers := make([]*models.TimerSession, 0, len(values))
	var stale []interface{}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var timer models.TimerSession
		if err := json.Unmarshal([]byte(raw), &timer); err != nil {
			log.Warn().Err(err).Str("timer_id", ids[i]).Msg("skipping unreadable timer record")
			continue
		}
		if !timer.IsActive() {
			continue
		}
		timers = append(timers, &timer)
	}

	if len(stale) > 0 {
		if err := s.client.SRem(ctx, userKey(userID), stale...).Err(); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("failed to prune stale timer index entries")
		}
	}

	return timers, nil
}

// Delete removes the record and its index entry.
func (s *RedisStore) Delete(ctx context.Context, id uuid.UUID, userID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, TimerKey(id))
	pipe.SRem(ctx, userKey(userID), id.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "failed to delete timer")
	}
	return nil
}

// UpdateRemaining rewrites the remaining seconds of a stored timer if it still exists,
// clamped to [0, Duration].
func (s *RedisStore) UpdateRemaining(ctx context.Context, id uuid.UUID, remaining int) error {
	timer, err := s.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	timer.Remaining = max(0, min(remaining, timer.Duration))
	return s.Put(ctx, timer)
}
