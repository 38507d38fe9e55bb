// Package notify publishes side-effect events (registration created,
// cancelled, certificate issued, ...) for downstream consumers such as an
// email sender. Delivery to people is not this service's job.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/program-registrations/internal/config"
)

// Event types.
const (
	RegistrationCreated           = "registration.created"
	RegistrationConfirmed         = "registration.confirmed"
	RegistrationCancelled         = "registration.cancelled"
	RegistrationAttendanceMarked  = "registration.attendance_marked"
	RegistrationFeedbackSubmitted = "registration.feedback_submitted"
	CertificateIssued             = "certificate.issued"
	ResourceTransitioned          = "resource.transitioned"
)

// Event is one side-effect message.
type Event struct {
	Type           string    `json:"type"`
	ResourceID     string    `json:"resource_id"`
	RegistrationID string    `json:"registration_id,omitempty"`
	Identity       string    `json:"email,omitempty"`
	Status         string    `json:"status"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Publisher is the abstraction over different backends.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Sink accepts events without blocking the caller. *Dispatcher and
// *InMemory implement it.
type Sink interface {
	Enqueue(ev Event)
}

// Discard is a Sink that drops everything.
var Discard Sink = discard{}

type discard struct{}

func (discard) Enqueue(Event) {}

// RedisPublisher pushes JSON events onto a Redis list; consumers BRPOP.
type RedisPublisher struct {
	client *redis.Client
	key    string
}

// NewRedisPublisher builds a list-backed publisher.
func NewRedisPublisher(client *redis.Client, key string) *RedisPublisher {
	if key == "" {
		key = "registrations:events"
	}
	return &RedisPublisher{client: client, key: key}
}

// Publish enqueues ev.
func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return p.client.LPush(ctx, p.key, b).Err()
}

// NewRedisClient connects to redis with short timeouts.
func NewRedisClient(cfg config.Redis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
}

// LogPublisher writes events to the log. Used when Redis is not configured.
type LogPublisher struct {
	log *zap.Logger
}

// NewLogPublisher returns a publisher that logs each event at info level.
func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

// Publish logs ev. It never fails.
func (p *LogPublisher) Publish(_ context.Context, ev Event) error {
	p.log.Info("event",
		zap.String("type", ev.Type),
		zap.String("resource_id", ev.ResourceID),
		zap.String("registration_id", ev.RegistrationID),
		zap.String("status", ev.Status),
	)
	return nil
}

// InMemory records published events. For dev and tests.
type InMemory struct {
	mu     sync.Mutex
	events []Event
}

// NewInMemory returns an empty recorder.
func NewInMemory() *InMemory { return &InMemory{} }

// Publish appends ev to the recorded events.
func (m *InMemory) Publish(_ context.Context, ev Event) error {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	return nil
}

// Enqueue records ev synchronously.
func (m *InMemory) Enqueue(ev Event) { _ = m.Publish(context.Background(), ev) }

// Events returns a copy of everything published so far.
func (m *InMemory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Types returns the published event types in order.
func (m *InMemory) Types() []string {
	evs := m.Events()
	out := make([]string, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}
