// Package model defines the core domain types for the program registration system.
package model

import "time"

// ResourceKind selects which program a resource belongs to and therefore
// which Policy governs its registrations.
type ResourceKind string

const (
	KindEvent      ResourceKind = "event"
	KindWorkshop   ResourceKind = "workshop"
	KindConference ResourceKind = "conference"
	KindTraining   ResourceKind = "training"
)

// Valid reports whether k is a known kind.
func (k ResourceKind) Valid() bool {
	switch k {
	case KindEvent, KindWorkshop, KindConference, KindTraining:
		return true
	}
	return false
}

// ResourceStatus is the administrator-driven lifecycle of a resource.
type ResourceStatus string

const (
	ResourceDraft     ResourceStatus = "draft"
	ResourcePublished ResourceStatus = "published"
	ResourceOngoing   ResourceStatus = "ongoing"
	ResourceCompleted ResourceStatus = "completed"
	ResourceCancelled ResourceStatus = "cancelled"
)

// Terminal reports whether no further status change is permitted.
func (s ResourceStatus) Terminal() bool {
	return s == ResourceCompleted || s == ResourceCancelled
}

// Editable reports whether the resource details may still be changed.
func (s ResourceStatus) Editable() bool {
	return s == ResourceDraft || s == ResourcePublished
}

// ResourceEvent is an administrative action on a resource.
type ResourceEvent string

const (
	EventPublish  ResourceEvent = "publish"
	EventStart    ResourceEvent = "start"
	EventComplete ResourceEvent = "complete"
	EventCancel   ResourceEvent = "cancel"
)

// RegistrationStatus is the lifecycle state of a single registration.
type RegistrationStatus string

const (
	StatusPending   RegistrationStatus = "pending"
	StatusConfirmed RegistrationStatus = "confirmed"
	StatusCancelled RegistrationStatus = "cancelled"
	StatusAttended  RegistrationStatus = "attended"
	StatusNoShow    RegistrationStatus = "no_show"
)

// Active reports whether the registration occupies a slot and takes part in
// the per-identity uniqueness rule.
func (s RegistrationStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Terminal reports whether the status has no outgoing transitions.
func (s RegistrationStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusAttended || s == StatusNoShow
}

// Valid reports whether s is a known status.
func (s RegistrationStatus) Valid() bool {
	return s.Active() || s.Terminal()
}

// PaymentStatus is recorded only; no payment is processed.
type PaymentStatus string

const (
	PaymentNotRequired PaymentStatus = "not_required"
	PaymentPending     PaymentStatus = "pending"
	PaymentPaid        PaymentStatus = "paid"
	PaymentWaived      PaymentStatus = "waived"
)

// Valid reports whether p is a known payment status.
func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentNotRequired, PaymentPending, PaymentPaid, PaymentWaived:
		return true
	}
	return false
}

// Policy holds the per-kind rules that differ between programs.
type Policy struct {
	// TracksAttendance is true when the program records an attendance
	// percentage and gates certificates on it.
	TracksAttendance bool
	// CertificateThreshold is the minimum attendance percentage required for
	// a certificate when TracksAttendance is set.
	CertificateThreshold int
}

// DefaultCertificateThreshold is the attendance percentage workshops and
// training cohorts require before a certificate may be issued.
const DefaultCertificateThreshold = 75

// PolicyFor returns the policy for a resource kind.
func PolicyFor(kind ResourceKind) Policy {
	switch kind {
	case KindWorkshop, KindTraining:
		return Policy{TracksAttendance: true, CertificateThreshold: DefaultCertificateThreshold}
	default:
		return Policy{}
	}
}

// Resource is a finite-capacity program (event, workshop, conference or
// training cohort) that registrations are admitted against.
type Resource struct {
	ID                   string         `json:"id"`
	Kind                 ResourceKind   `json:"kind"`
	Title                string         `json:"title"`
	Description          string         `json:"description"`
	Capacity             *int           `json:"capacity"`
	RegistrationDeadline *time.Time     `json:"registration_deadline,omitempty"`
	StartsAt             time.Time      `json:"starts_at"`
	EndsAt               *time.Time     `json:"ends_at,omitempty"`
	RequiresApproval     bool           `json:"requires_approval"`
	Status               ResourceStatus `json:"status"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// Policy returns the rules for this resource's kind.
func (r *Resource) Policy() Policy {
	return PolicyFor(r.Kind)
}

// Remaining returns the number of free slots given the admitted count.
// ok is false when the resource has unlimited capacity.
func (r *Resource) Remaining(admitted int) (remaining int, ok bool) {
	if r.Capacity == nil {
		return 0, false
	}
	remaining = *r.Capacity - admitted
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// IsFull returns true when no slots remain.
func (r *Resource) IsFull(admitted int) bool {
	return r.Capacity != nil && admitted >= *r.Capacity
}

// HasStarted reports whether the resource's start time has been reached.
func (r *Resource) HasStarted(now time.Time) bool {
	return !now.Before(r.StartsAt)
}

// Registration is one identity's claim on a resource.
type Registration struct {
	ID                   string             `json:"id"`
	ResourceID           string             `json:"resource_id"`
	Identity             string             `json:"email"`
	FullName             string             `json:"full_name"`
	Phone                string             `json:"phone,omitempty"`
	Organization         string             `json:"organization,omitempty"`
	Notes                string             `json:"notes,omitempty"`
	PaymentStatus        PaymentStatus      `json:"payment_status"`
	Status               RegistrationStatus `json:"status"`
	Attended             bool               `json:"attended"`
	AttendancePercentage *int               `json:"attendance_percentage,omitempty"`
	Rating               *int               `json:"rating,omitempty"`
	Feedback             *string            `json:"feedback,omitempty"`
	CertificateIssued    bool               `json:"certificate_issued"`
	CertificateIssuedAt  *time.Time         `json:"certificate_issued_at,omitempty"`
	CancelledAt          *time.Time         `json:"cancelled_at,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// ActorRole distinguishes administrators from registrants acting on their
// own registration.
type ActorRole string

const (
	RoleAdmin      ActorRole = "admin"
	RoleRegistrant ActorRole = "registrant"
)

// Actor is whoever triggers a registration transition.
type Actor struct {
	Role ActorRole
	// Identity is the normalized email of a registrant. Empty for admins.
	Identity string
}

// Admin is the actor used for administrative actions.
func Admin() Actor { return Actor{Role: RoleAdmin} }

// Registrant builds a self-service actor for the given email.
func Registrant(identity string) Actor { return Actor{Role: RoleRegistrant, Identity: identity} }

// ResourceFilter narrows resource listings. Zero values match everything.
type ResourceFilter struct {
	Kind   ResourceKind
	Status ResourceStatus
}

// RegistrationFilter narrows registration listings.
type RegistrationFilter struct {
	Status RegistrationStatus
}

// CreateResourceRequest is the payload for creating a new resource.
type CreateResourceRequest struct {
	Kind                 ResourceKind `json:"kind"`
	Title                string       `json:"title"`
	Description          string       `json:"description"`
	Capacity             *int         `json:"capacity"`
	RegistrationDeadline *time.Time   `json:"registration_deadline"`
	StartsAt             time.Time    `json:"starts_at"`
	EndsAt               *time.Time   `json:"ends_at"`
	RequiresApproval     bool         `json:"requires_approval"`
}

// UpdateResourceRequest edits resource details. Nil fields are left as-is;
// the Clear* flags unset optional fields.
type UpdateResourceRequest struct {
	Title                *string    `json:"title"`
	Description          *string    `json:"description"`
	Capacity             *int       `json:"capacity"`
	ClearCapacity        bool       `json:"clear_capacity"`
	RegistrationDeadline *time.Time `json:"registration_deadline"`
	ClearDeadline        bool       `json:"clear_deadline"`
	StartsAt             *time.Time `json:"starts_at"`
	EndsAt               *time.Time `json:"ends_at"`
	RequiresApproval     *bool      `json:"requires_approval"`
}

// TransitionRequest is the payload for a resource lifecycle action.
type TransitionRequest struct {
	Event ResourceEvent `json:"event"`
}

// SubmitRequest is the public registration payload.
type SubmitRequest struct {
	Email         string        `json:"email"`
	FullName      string        `json:"full_name"`
	Phone         string        `json:"phone"`
	Organization  string        `json:"organization"`
	Notes         string        `json:"notes"`
	PaymentStatus PaymentStatus `json:"payment_status"`
}

// CancelRequest identifies the registrant for a self-service cancel.
type CancelRequest struct {
	Email string `json:"email"`
}

// AttendanceRequest is the payload for marking attendance.
type AttendanceRequest struct {
	Attended             bool `json:"attended"`
	AttendancePercentage *int `json:"attendance_percentage"`
}

// FeedbackRequest is the post-attendance feedback payload.
type FeedbackRequest struct {
	Email    string  `json:"email"`
	Rating   int     `json:"rating"`
	Feedback *string `json:"feedback"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error                  string `json:"error"`
	Code                   string `json:"code"`
	ExistingRegistrationID string `json:"existing_registration_id,omitempty"`
}

// AttemptResult summarises the outcome of a single registration attempt.
// Used by the concurrent test harness.
type AttemptResult struct {
	Email        string
	Registration *Registration
	Error        error
}
