package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/program-registrations/internal/admission"
	"github.com/Shivanand-hulikatti/program-registrations/internal/completion"
	"github.com/Shivanand-hulikatti/program-registrations/internal/lifecycle"
	"github.com/Shivanand-hulikatti/program-registrations/internal/metrics"
	"github.com/Shivanand-hulikatti/program-registrations/internal/model"
	"github.com/Shivanand-hulikatti/program-registrations/internal/notify"
	"github.com/Shivanand-hulikatti/program-registrations/internal/repository"
	"github.com/Shivanand-hulikatti/program-registrations/internal/tracing"
)

func normalizeSubmit(req *model.SubmitRequest) error {
	req.Email = NormalizeEmail(req.Email)
	req.FullName = strings.TrimSpace(req.FullName)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Organization = strings.TrimSpace(req.Organization)
	req.Notes = strings.TrimSpace(req.Notes)

	if err := validateEmail(req.Email); err != nil {
		return err
	}
	if req.FullName == "" {
		return model.Invalid("full_name", "is required")
	}
	if err := checkLength("full_name", req.FullName, maxNameLength); err != nil {
		return err
	}
	if err := checkLength("phone", req.Phone, maxPhoneLength); err != nil {
		return err
	}
	if err := checkLength("organization", req.Organization, maxNameLength); err != nil {
		return err
	}
	if err := checkLength("notes", req.Notes, maxNotesLength); err != nil {
		return err
	}
	if req.PaymentStatus == "" {
		req.PaymentStatus = model.PaymentNotRequired
	}
	if !req.PaymentStatus.Valid() {
		return model.Invalid("payment_status", "must be one of not_required, pending, paid, waived")
	}
	return nil
}

// SubmitRegistration admits a new registration for resourceID. The window
// check, the uniqueness guard, the capacity check and the insert all happen
// inside one admission unit, so concurrent submissions can neither overfill
// the resource nor give one identity two active registrations.
func (s *RegistrationService) SubmitRegistration(ctx context.Context, resourceID string, req model.SubmitRequest) (*model.Registration, error) {
	ctx, span := s.tracer.Start(ctx, "registration.submit")
	span.SetAttributes(attribute.String("resource.id", resourceID))
	kind := "unknown"
	var err error
	defer func() {
		metrics.Admissions.WithLabelValues(kind, model.Code(err)).Inc()
		tracing.End(span, err)
	}()

	if err = normalizeSubmit(&req); err != nil {
		return nil, err
	}
	if err = checkID("resource", resourceID); err != nil {
		return nil, err
	}

	var reg model.Registration
	err = s.store.Admit(ctx, resourceID, func(ctx context.Context, tx repository.AdmissionTx) error {
		res := tx.Resource()
		kind = string(res.Kind)
		now := s.clock()
		if err := admission.Admit(ctx, tx, &res, req.Email, now); err != nil {
			return err
		}
		reg = model.Registration{
			ID:            uuid.New().String(),
			ResourceID:    res.ID,
			Identity:      req.Email,
			FullName:      req.FullName,
			Phone:         req.Phone,
			Organization:  req.Organization,
			Notes:         req.Notes,
			PaymentStatus: req.PaymentStatus,
			Status:        lifecycle.InitialStatus(&res),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		return tx.Insert(ctx, reg)
	})
	if err != nil {
		err = s.fail("submit registration", err,
			zap.String("resource_id", resourceID),
			zap.String("identity", req.Email),
		)
		return nil, err
	}

	span.SetAttributes(attribute.String("registration.id", reg.ID))
	s.stats.Invalidate(resourceID)
	s.publish(notify.RegistrationCreated, reg.ResourceID, reg.ID, reg.Identity, string(reg.Status))
	s.log.Info("registration admitted",
		zap.String("resource_id", resourceID),
		zap.String("registration_id", reg.ID),
		zap.String("identity", reg.Identity),
		zap.String("status", string(reg.Status)),
	)
	return &reg, nil
}

// transitionFunc computes the next registration state at now.
type transitionFunc func(reg model.Registration, res model.Resource, now time.Time) (model.Registration, error)

// transition runs fn on a locked registration and records the outcome.
// before is the state fn saw; it is only meaningful when err is nil.
func (s *RegistrationService) transition(ctx context.Context, action, id string, actor model.Actor, fn transitionFunc) (before, after *model.Registration, err error) {
	ctx, span := s.tracer.Start(ctx, "registration."+action)
	span.SetAttributes(attribute.String("registration.id", id), attribute.String("actor.role", string(actor.Role)))
	defer func() {
		metrics.RegistrationTransitions.WithLabelValues(action, model.Code(err)).Inc()
		tracing.End(span, err)
	}()

	if err = checkID("registration", id); err != nil {
		return nil, nil, err
	}
	now := s.clock()
	var prev model.Registration
	after, err = s.store.UpdateRegistration(ctx, id, func(reg model.Registration, res model.Resource) (model.Registration, error) {
		if err := authorize(actor, reg); err != nil {
			return reg, err
		}
		prev = reg
		return fn(reg, res, now)
	})
	if err != nil {
		err = s.fail(action, err, zap.String("registration_id", id))
		return nil, nil, err
	}

	s.stats.Invalidate(after.ResourceID)
	s.log.Info("registration "+action,
		zap.String("resource_id", after.ResourceID),
		zap.String("registration_id", id),
		zap.String("from", string(prev.Status)),
		zap.String("to", string(after.Status)),
	)
	return &prev, after, nil
}

// CancelRegistration cancels a pending or confirmed registration, freeing
// its slot. Registrants may only cancel their own registration.
func (s *RegistrationService) CancelRegistration(ctx context.Context, id string, actor model.Actor) (*model.Registration, error) {
	actor.Identity = NormalizeEmail(actor.Identity)
	_, reg, err := s.transition(ctx, lifecycle.ActionCancel, id, actor,
		func(reg model.Registration, _ model.Resource, now time.Time) (model.Registration, error) {
			return lifecycle.Cancel(reg, now)
		})
	if err != nil {
		return nil, err
	}
	s.publish(notify.RegistrationCancelled, reg.ResourceID, reg.ID, reg.Identity, string(reg.Status))
	return reg, nil
}

// ConfirmRegistration approves a pending registration.
func (s *RegistrationService) ConfirmRegistration(ctx context.Context, id string) (*model.Registration, error) {
	_, reg, err := s.transition(ctx, lifecycle.ActionConfirm, id, model.Admin(),
		func(reg model.Registration, res model.Resource, now time.Time) (model.Registration, error) {
			return lifecycle.Confirm(reg, &res, now)
		})
	if err != nil {
		return nil, err
	}
	s.publish(notify.RegistrationConfirmed, reg.ResourceID, reg.ID, reg.Identity, string(reg.Status))
	return reg, nil
}

// MarkAttendance records attendance (or a no-show) for a confirmed
// registration once the resource has started.
func (s *RegistrationService) MarkAttendance(ctx context.Context, id string, req model.AttendanceRequest) (*model.Registration, error) {
	action := lifecycle.ActionNoShow
	if req.Attended {
		action = lifecycle.ActionAttend
	}
	_, reg, err := s.transition(ctx, action, id, model.Admin(),
		func(reg model.Registration, res model.Resource, now time.Time) (model.Registration, error) {
			return lifecycle.MarkAttendance(reg, &res, req.Attended, req.AttendancePercentage, now)
		})
	if err != nil {
		return nil, err
	}
	s.publish(notify.RegistrationAttendanceMarked, reg.ResourceID, reg.ID, reg.Identity, string(reg.Status))
	return reg, nil
}

// SubmitFeedback stores a rating for an attended registration. A later
// submission replaces the earlier one.
func (s *RegistrationService) SubmitFeedback(ctx context.Context, id string, actor model.Actor, req model.FeedbackRequest) (*model.Registration, error) {
	actor.Identity = NormalizeEmail(actor.Identity)
	_, reg, err := s.transition(ctx, lifecycle.ActionFeedback, id, actor,
		func(reg model.Registration, _ model.Resource, now time.Time) (model.Registration, error) {
			return completion.RecordFeedback(reg, req.Rating, req.Feedback, now)
		})
	if err != nil {
		return nil, err
	}
	s.publish(notify.RegistrationFeedbackSubmitted, reg.ResourceID, reg.ID, reg.Identity, string(reg.Status))
	return reg, nil
}

// IssueCertificate issues a certificate when the registration passes the
// completion gate for its resource's policy. Repeated calls succeed without
// issuing again.
func (s *RegistrationService) IssueCertificate(ctx context.Context, id string) (*model.Registration, error) {
	before, reg, err := s.transition(ctx, lifecycle.ActionCertificate, id, model.Admin(),
		func(reg model.Registration, res model.Resource, now time.Time) (model.Registration, error) {
			return completion.IssueCertificate(reg, res.Policy(), now)
		})
	if err != nil {
		return nil, err
	}
	if !before.CertificateIssued && reg.CertificateIssued {
		metrics.CertificatesIssued.Inc()
		s.publish(notify.CertificateIssued, reg.ResourceID, reg.ID, reg.Identity, string(reg.Status))
	}
	return reg, nil
}

// GetRegistration returns a single registration by ID.
func (s *RegistrationService) GetRegistration(ctx context.Context, id string) (*model.Registration, error) {
	if err := checkID("registration", id); err != nil {
		return nil, err
	}
	reg, err := s.store.GetRegistration(ctx, id)
	if err != nil {
		return nil, s.fail("get registration", err, zap.String("registration_id", id))
	}
	return reg, nil
}

// ListRegistrations returns the registrations of a resource.
func (s *RegistrationService) ListRegistrations(ctx context.Context, resourceID string, f model.RegistrationFilter) ([]model.Registration, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, model.Invalid("status", "is not a known registration status")
	}
	if _, err := s.GetResource(ctx, resourceID); err != nil {
		return nil, err
	}
	regs, err := s.store.ListRegistrations(ctx, resourceID, f)
	if err != nil {
		return nil, s.fail("list registrations", err, zap.String("resource_id", resourceID))
	}
	return regs, nil
}

// DeleteRegistration hard-deletes a registration. Unlike cancellation this
// leaves no record behind.
func (s *RegistrationService) DeleteRegistration(ctx context.Context, id string) error {
	reg, err := s.GetRegistration(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteRegistration(ctx, id); err != nil {
		return s.fail("delete registration", err, zap.String("registration_id", id))
	}
	s.stats.Invalidate(reg.ResourceID)
	s.log.Info("registration deleted", zap.String("registration_id", id), zap.String("resource_id", reg.ResourceID))
	return nil
}
