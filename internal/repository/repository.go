// Package repository persists resources and registrations. Two Store
// implementations exist: PostgresStore (pgx, no ORM) for production and
// MemoryStore for tests and single-node demos. Both serialise admissions per
// resource so that the checks in package admission see a stable ledger.
package repository

import (
	"context"

	"github.com/Shivanand-hulikatti/program-registrations/internal/admission"
	"github.com/Shivanand-hulikatti/program-registrations/internal/model"
)

// AdmissionTx is the exclusive view of one resource handed to an Admit
// callback. Nothing written through it is visible to other callers until
// the callback returns nil and the unit commits.
type AdmissionTx interface {
	admission.Ledger
	// Resource returns the locked resource.
	Resource() model.Resource
	// Insert stages a registration for commit.
	Insert(ctx context.Context, reg model.Registration) error
}

// ResourceMutator computes the next version of a locked resource. admitted
// is the number of pending and confirmed registrations.
type ResourceMutator func(res model.Resource, admitted int) (model.Resource, error)

// RegistrationMutator computes the next version of a locked registration.
type RegistrationMutator func(reg model.Registration, res model.Resource) (model.Registration, error)

// RegistrationCounts aggregates a resource's registrations.
type RegistrationCounts struct {
	ByStatus     map[model.RegistrationStatus]int
	Certificates int
}

// ResourceCount is one row of the program-wide overview.
type ResourceCount struct {
	Kind   model.ResourceKind
	Status model.ResourceStatus
	Count  int
}

// Store is the persistence contract used by the service layer. Not-found
// conditions are reported as model.ErrNotFound; errors returned by
// callbacks are passed through unchanged and abort the unit.
type Store interface {
	CreateResource(ctx context.Context, res model.Resource) error
	GetResource(ctx context.Context, id string) (*model.Resource, error)
	ListResources(ctx context.Context, filter model.ResourceFilter) ([]model.Resource, error)
	// UpdateResource runs fn with the resource held exclusively, the same
	// way Admit does, and stores the result.
	UpdateResource(ctx context.Context, id string, fn ResourceMutator) (*model.Resource, error)
	// DeleteResource removes the resource and all of its registrations.
	DeleteResource(ctx context.Context, id string) error

	// Admit opens an admission unit on resourceID and runs fn inside it.
	Admit(ctx context.Context, resourceID string, fn func(ctx context.Context, tx AdmissionTx) error) error
	GetRegistration(ctx context.Context, id string) (*model.Registration, error)
	ListRegistrations(ctx context.Context, resourceID string, filter model.RegistrationFilter) ([]model.Registration, error)
	// UpdateRegistration runs fn with the registration and its resource
	// locked and stores the result.
	UpdateRegistration(ctx context.Context, id string, fn RegistrationMutator) (*model.Registration, error)
	DeleteRegistration(ctx context.Context, id string) error

	CountRegistrations(ctx context.Context, resourceID string) (RegistrationCounts, error)
	CountResources(ctx context.Context) ([]ResourceCount, error)

	Ping(ctx context.Context) error
}
