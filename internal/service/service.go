// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the repository layer.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/program-registrations/internal/model"
	"github.com/Shivanand-hulikatti/program-registrations/internal/notify"
	"github.com/Shivanand-hulikatti/program-registrations/internal/repository"
	"github.com/Shivanand-hulikatti/program-registrations/internal/stats"
	"github.com/Shivanand-hulikatti/program-registrations/internal/tracing"
)

// Input limits.
const (
	MaxCapacity     = 100_000
	maxTitleLength  = 200
	maxNameLength   = 200
	maxPhoneLength  = 40
	maxNotesLength  = 2000
	maxEmailLength  = 254
	defaultStatsTTL = 5 * time.Second
)

// Options carries the optional collaborators of RegistrationService. Zero
// values fall back to no-op implementations and the wall clock.
type Options struct {
	Now    func() time.Time
	Logger *zap.Logger
	Tracer trace.Tracer
	Events notify.Sink
	Stats  *stats.Projector
}

// RegistrationService orchestrates resource and registration operations.
type RegistrationService struct {
	store  repository.Store
	now    func() time.Time
	log    *zap.Logger
	tracer trace.Tracer
	events notify.Sink
	stats  *stats.Projector
}

// NewRegistrationService constructs a RegistrationService with its dependencies.
func NewRegistrationService(store repository.Store, opts Options) *RegistrationService {
	s := &RegistrationService{
		store:  store,
		now:    opts.Now,
		log:    opts.Logger,
		tracer: opts.Tracer,
		events: opts.Events,
		stats:  opts.Stats,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.tracer == nil {
		s.tracer = tracing.Noop()
	}
	if s.events == nil {
		s.events = notify.Discard
	}
	if s.stats == nil {
		s.stats = stats.NewProjector(store, defaultStatsTTL, s.now)
	}
	return s
}

// Ping reports whether the backing store is reachable.
func (s *RegistrationService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *RegistrationService) clock() time.Time {
	return s.now().UTC()
}

// fail logs err and returns it. Domain rejections pass through unchanged so
// handlers can map them; anything else is wrapped with op.
func (s *RegistrationService) fail(op string, err error, fields ...zap.Field) error {
	if model.IsDomain(err) {
		s.log.Info(op+" rejected", append(fields, zap.String("code", model.Code(err)), zap.Error(err))...)
		return err
	}
	s.log.Error(op+" failed", append(fields, zap.Error(err))...)
	return fmt.Errorf("%s: %w", op, err)
}

func (s *RegistrationService) publish(typ string, resourceID, registrationID, identity, status string) {
	s.events.Enqueue(notify.Event{
		Type:           typ,
		ResourceID:     resourceID,
		RegistrationID: registrationID,
		Identity:       identity,
		Status:         status,
		OccurredAt:     s.clock(),
	})
}

// ─── Validation helpers ──────────────────────────────────────────────────────

// checkID rejects ids that cannot exist. Every id is a UUID, so anything
// else is reported as not found rather than reaching the database.
func checkID(entity, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return &model.NotFoundError{Entity: entity, ID: id}
	}
	return nil
}

// NormalizeEmail lower-cases and trims an email; the result is the identity
// used for uniqueness.
func NormalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func validateEmail(email string) error {
	if email == "" {
		return model.Invalid("email", "is required")
	}
	if len(email) > maxEmailLength || !isValidEmail(email) {
		return model.Invalid("email", "is not a valid email address")
	}
	return nil
}

// isValidEmail does a basic structural check.
func isValidEmail(email string) bool {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	if strings.ContainsAny(email, " \t\r\n") {
		return false
	}
	domain := parts[1]
	return len(parts[0]) > 0 && strings.Contains(domain, ".") &&
		!strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}

func checkLength(field, value string, limit int) error {
	if utf8.RuneCountInString(value) > limit {
		return model.Invalid(field, fmt.Sprintf("must be at most %d characters", limit))
	}
	return nil
}

// authorize rejects registrants acting on someone else's registration.
func authorize(actor model.Actor, reg model.Registration) error {
	if actor.Role == model.RoleAdmin {
		return nil
	}
	if actor.Identity == "" || actor.Identity != reg.Identity {
		return model.ErrForbidden
	}
	return nil
}
