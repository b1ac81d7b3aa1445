package broadcast

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mcdev12/chronicle/go/internal/models"
	"github.com/mcdev12/chronicle/go/internal/timer/gateway"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Config holds configuration for the NATS event bus
type Config struct {
	URL           string
	SubjectPrefix string // e.g., "timer.events"
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConfig returns default NATS configuration
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SubjectPrefix: "timer.events",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// Connect opens a NATS connection that logs its lifecycle
func Connect(config Config) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("chronicle-timer-events"),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// Subject returns the subject a timer's events are published on
func Subject(prefix, timerID string) string {
	return prefix + "." + timerID
}

// Publisher sends timer events to NATS so every gateway instance can deliver them
type Publisher struct {
	nc     *nats.Conn
	prefix string
}

// NewPublisher creates a publisher on an open connection
func NewPublisher(nc *nats.Conn, prefix string) *Publisher {
	return &Publisher{nc: nc, prefix: strings.TrimSuffix(prefix, ".")}
}

// BroadcastUpdate implements timer.Broadcaster
func (p *Publisher) BroadcastUpdate(timer *models.TimerSession) {
	p.publish(gateway.NewTimerEvent(gateway.EventTypeTimerState, timer))
}

// BroadcastComplete implements timer.Broadcaster
func (p *Publisher) BroadcastComplete(timer *models.TimerSession) {
	p.publish(gateway.NewTimerEvent(gateway.EventTypeTimerComplete, timer))
}

// publish is fire and forget. Core NATS buffers while reconnecting.
func (p *Publisher) publish(event *gateway.TimerEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("timer_id", event.TimerID).Msg("failed to marshal timer event")
		return
	}

	subject := Subject(p.prefix, event.TimerID)
	if err := p.nc.Publish(subject, data); err != nil {
		log.Error().
			Err(err).
			Str("subject", subject).
			Str("event_type", string(event.Type)).
			Msg("failed to publish timer event")
		return
	}

	log.Debug().
		Str("subject", subject).
		Str("event_type", string(event.Type)).
		Msg("published timer event")
}

// Dispatcher delivers events to locally connected clients
type Dispatcher interface {
	Dispatch(event *gateway.TimerEvent)
}

// Relay subscribes to every timer subject and hands events to the local gateway
type Relay struct {
	nc         *nats.Conn
	prefix     string
	dispatcher Dispatcher
	sub        *nats.Subscription
}

// NewRelay creates a relay on an open connection
func NewRelay(nc *nats.Conn, prefix string, dispatcher Dispatcher) *Relay {
	return &Relay{
		nc:         nc,
		prefix:     strings.TrimSuffix(prefix, "."),
		dispatcher: dispatcher,
	}
}

// Start subscribes to prefix.>
func (r *Relay) Start() error {
	subject := r.prefix + ".>"
	sub, err := r.nc.Subscribe(subject, r.handleMessage)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", subject, err)
	}
	r.sub = sub

	log.Info().Str("subject", subject).Msg("timer event relay started")
	return nil
}

// Stop drains the subscription
func (r *Relay) Stop() error {
	if r.sub == nil {
		return nil
	}
	if err := r.sub.Drain(); err != nil {
		return fmt.Errorf("drain subscription: %w", err)
	}
	log.Info().Msg("timer event relay stopped")
	return nil
}

func (r *Relay) handleMessage(msg *nats.Msg) {
	var event gateway.TimerEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		log.Error().Err(err).Str("subject", msg.Subject).Msg("failed to unmarshal timer event")
		return
	}
	if event.Timer == nil || event.TimerID == "" {
		log.Warn().Str("subject", msg.Subject).Msg("dropping timer event without timer")
		return
	}

	r.dispatcher.Dispatch(&event)
}
