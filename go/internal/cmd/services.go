package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/chronicle/go/internal/entries"
	"github.com/mcdev12/chronicle/go/internal/timer"
	"github.com/mcdev12/chronicle/go/internal/timer/broadcast"
	"github.com/mcdev12/chronicle/go/internal/timer/gateway"
	"github.com/mcdev12/chronicle/go/internal/timer/store"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Timers  *timer.Service
	Gateway *gateway.Service
	Expiry  *store.ExpiryWatcher

	redis *redis.Client
	nc    *nats.Conn
	relay *broadcast.Relay
}

func setupServices(ctx context.Context, cfg *Config, database *sql.DB) (*Services, error) {
	// Wire up dependency injection chain
	// Store / Repository layer → App layer → Service layer

	storeCfg := cfg.StoreConfig()
	redisClient, err := store.NewClient(ctx, storeCfg)
	if err != nil {
		return nil, err
	}
	timerStore := store.NewRedisStore(redisClient, storeCfg.TTL)

	entryRepo := entries.NewRepository(database)

	gatewayCfg := gateway.DefaultConfig()
	origins := cfg.AllowedOrigins()
	gatewayCfg.ConnectionConfig.CheckOrigin = originChecker(origins)
	timerGateway := gateway.NewService(gatewayCfg, timerStore)

	services := &Services{
		Gateway: timerGateway,
		redis:   redisClient,
	}

	var broadcaster timer.Broadcaster = timerGateway
	if cfg.Broadcast.Mode == BroadcastModeNATS {
		natsCfg := broadcast.DefaultConfig()
		natsCfg.URL = cfg.Broadcast.NATSURL
		natsCfg.SubjectPrefix = cfg.Broadcast.SubjectPrefix

		nc, err := broadcast.Connect(natsCfg)
		if err != nil {
			services.Close()
			return nil, err
		}
		services.nc = nc

		relay := broadcast.NewRelay(nc, natsCfg.SubjectPrefix, timerGateway)
		if err := relay.Start(); err != nil {
			services.Close()
			return nil, fmt.Errorf("failed to start event relay: %w", err)
		}
		services.relay = relay

		broadcaster = broadcast.NewPublisher(nc, natsCfg.SubjectPrefix)
	}

	timerApp := timer.NewApp(timerStore, entryRepo, broadcaster)
	services.Timers = timer.NewService(timerApp)

	services.Expiry = store.NewExpiryWatcher(redisClient, storeCfg.DB, func(_ context.Context, timerID uuid.UUID) {
		timerGateway.ReleaseTimer(timerID)
	})

	log.Info().
		Str("broadcast_mode", cfg.Broadcast.Mode).
		Str("redis", storeCfg.Addr()).
		Dur("timer_ttl", storeCfg.TTL).
		Msg("services initialized")

	return services, nil
}

// Close releases the connections owned by the services
func (s *Services) Close() {
	if s.relay != nil {
		if err := s.relay.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop event relay")
		}
	}
	if s.nc != nil {
		s.nc.Close()
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close redis client")
		}
	}
}
