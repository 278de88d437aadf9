// Package events carries ward domain events (admissions, complications, stock
// alerts) to whoever listens: the log, a Redis stream, the metrics collector.
// Publishing is best-effort; a failed publish never rolls back a mutation.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// Event is a single domain event.
type Event struct {
	Type    string                 `json:"type"`
	Subject string                 `json:"subject"`
	At      time.Time              `json:"at"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// New builds an event stamped with the current UTC time.
func New(eventType, subject string, data map[string]interface{}) Event {
	return Event{Type: eventType, Subject: subject, At: time.Now().UTC(), Data: data}
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, evt Event) error

func (f PublisherFunc) Publish(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}

// Nop discards every event.
var Nop Publisher = PublisherFunc(func(context.Context, Event) error { return nil })

// LogPublisher writes events as structured log lines.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, evt Event) error {
	p.logger.Info().
		Str("event", evt.Type).
		Str("subject", evt.Subject).
		Time("at", evt.At).
		Fields(evt.Data).
		Msg("ward event")
	return nil
}

// RedisStreamPublisher appends events to a Redis stream with XADD.
type RedisStreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisStreamPublisher returns a publisher writing to stream. maxLen caps
// the stream length approximately; zero leaves it unbounded.
func NewRedisStreamPublisher(client *redis.Client, stream string, maxLen int64) *RedisStreamPublisher {
	return &RedisStreamPublisher{client: client, stream: stream, maxLen: maxLen}
}

func (p *RedisStreamPublisher) Publish(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"type":    evt.Type,
			"subject": evt.Subject,
			"at":      evt.At.Format(time.RFC3339Nano),
			"data":    string(payload),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}

// Multi fans an event out to every publisher. All publishers are tried; the
// first error is returned.
func Multi(pubs ...Publisher) Publisher {
	return PublisherFunc(func(ctx context.Context, evt Event) error {
		var first error
		for _, p := range pubs {
			if err := p.Publish(ctx, evt); err != nil && first == nil {
				first = err
			}
		}
		return first
	})
}

// BestEffort wraps a publisher so that failures are logged and swallowed.
func BestEffort(pub Publisher, logger zerolog.Logger) Publisher {
	return PublisherFunc(func(ctx context.Context, evt Event) error {
		if err := pub.Publish(ctx, evt); err != nil {
			logger.Warn().Err(err).Str("event", evt.Type).Msg("event publish failed")
		}
		return nil
	})
}
