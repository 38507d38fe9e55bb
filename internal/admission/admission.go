// Package admission decides whether a new registration may be accepted for
// a resource. The checks read a Ledger that the caller must hold
// exclusively for the resource until the registration is written; run
// outside such a unit they are only advisory.
package admission

import (
	"context"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/program-registrations/internal/model"
)

// Ledger is the per-resource view of registrations seen from inside an
// admission unit.
type Ledger interface {
	// ActiveRegistration returns the pending or confirmed registration held by
	// identity, or nil when there is none.
	ActiveRegistration(ctx context.Context, identity string) (*model.Registration, error)
	// CountActive returns the number of pending and confirmed registrations.
	CountActive(ctx context.Context) (int, error)
}

// CheckWindow verifies the resource is open for registrations at now.
func CheckWindow(res *model.Resource, now time.Time) error {
	if res.Status != model.ResourcePublished || res.HasStarted(now) {
		return model.ErrNotAcceptingRegistrations
	}
	if res.RegistrationDeadline != nil && !now.Before(*res.RegistrationDeadline) {
		return model.ErrPastDeadline
	}
	return nil
}

// CheckUnique rejects identity if it already holds an active registration.
// Cancelled registrations never block.
func CheckUnique(ctx context.Context, l Ledger, resourceID, identity string) error {
	existing, err := l.ActiveRegistration(ctx, identity)
	if err != nil {
		return fmt.Errorf("lookup active registration: %w", err)
	}
	if existing != nil {
		return &model.DuplicateRegistrationError{ResourceID: resourceID, ExistingID: existing.ID}
	}
	return nil
}

// TryAdmit checks that one more active registration fits. Unlimited
// resources always admit.
func TryAdmit(ctx context.Context, l Ledger, res *model.Resource) error {
	if res.Capacity == nil {
		return nil
	}
	n, err := l.CountActive(ctx)
	if err != nil {
		return fmt.Errorf("count active registrations: %w", err)
	}
	if res.IsFull(n) {
		return model.ErrCapacityExceeded
	}
	return nil
}

// Admit runs the window, uniqueness and capacity checks in that order and
// returns the first rejection.
func Admit(ctx context.Context, l Ledger, res *model.Resource, identity string, now time.Time) error {
	if err := CheckWindow(res, now); err != nil {
		return err
	}
	if err := CheckUnique(ctx, l, res.ID, identity); err != nil {
		return err
	}
	return TryAdmit(ctx, l, res)
}
