package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/program-registrations/internal/lifecycle"
	"github.com/Shivanand-hulikatti/program-registrations/internal/metrics"
	"github.com/Shivanand-hulikatti/program-registrations/internal/model"
	"github.com/Shivanand-hulikatti/program-registrations/internal/notify"
	"github.com/Shivanand-hulikatti/program-registrations/internal/stats"
	"github.com/Shivanand-hulikatti/program-registrations/internal/tracing"
)

// validateSchedule checks the fields shared by create and edit.
func validateSchedule(r *model.Resource) error {
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)
	if r.Title == "" {
		return model.Invalid("title", "is required")
	}
	if err := checkLength("title", r.Title, maxTitleLength); err != nil {
		return err
	}
	if r.Capacity != nil && (*r.Capacity <= 0 || *r.Capacity > MaxCapacity) {
		return model.Invalid("capacity", fmt.Sprintf("must be between 1 and %d, or omitted for unlimited", MaxCapacity))
	}
	if r.StartsAt.IsZero() {
		return model.Invalid("starts_at", "is required")
	}
	if r.RegistrationDeadline != nil && r.RegistrationDeadline.After(r.StartsAt) {
		return model.Invalid("registration_deadline", "must not be after starts_at")
	}
	if r.EndsAt != nil && !r.EndsAt.After(r.StartsAt) {
		return model.Invalid("ends_at", "must be after starts_at")
	}
	return nil
}

// CreateResource validates the request and stores a new resource in draft.
func (s *RegistrationService) CreateResource(ctx context.Context, req model.CreateResourceRequest) (*model.Resource, error) {
	ctx, span := s.tracer.Start(ctx, "resource.create")
	var err error
	defer func() { tracing.End(span, err) }()

	if !req.Kind.Valid() {
		err = model.Invalid("kind", "must be one of event, workshop, conference, training")
		return nil, err
	}
	now := s.clock()
	res := model.Resource{
		ID:                   uuid.New().String(),
		Kind:                 req.Kind,
		Title:                req.Title,
		Description:          req.Description,
		Capacity:             req.Capacity,
		RegistrationDeadline: req.RegistrationDeadline,
		StartsAt:             req.StartsAt,
		EndsAt:               req.EndsAt,
		RequiresApproval:     req.RequiresApproval,
		Status:               model.ResourceDraft,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err = validateSchedule(&res); err != nil {
		return nil, err
	}
	if err = s.store.CreateResource(ctx, res); err != nil {
		err = s.fail("create resource", err)
		return nil, err
	}

	s.stats.Invalidate(res.ID)
	s.log.Info("resource created", zap.String("resource_id", res.ID), zap.String("kind", string(res.Kind)))
	return &res, nil
}

// UpdateResource edits a draft or published resource. Capacity cannot drop
// below the number of registrations already holding a slot.
func (s *RegistrationService) UpdateResource(ctx context.Context, id string, req model.UpdateResourceRequest) (*model.Resource, error) {
	ctx, span := s.tracer.Start(ctx, "resource.update")
	span.SetAttributes(attribute.String("resource.id", id))
	var err error
	defer func() { tracing.End(span, err) }()

	if err = checkID("resource", id); err != nil {
		return nil, err
	}
	now := s.clock()
	res, err := s.store.UpdateResource(ctx, id, func(r model.Resource, admitted int) (model.Resource, error) {
		if !r.Status.Editable() {
			return r, &model.TransitionError{From: string(r.Status), Event: "edit"}
		}
		applyUpdate(&r, req)
		if err := validateSchedule(&r); err != nil {
			return r, err
		}
		if r.Capacity != nil && *r.Capacity < admitted {
			return r, model.Invalid("capacity", fmt.Sprintf("cannot be lower than the %d registrations already admitted", admitted))
		}
		r.UpdatedAt = now
		return r, nil
	})
	if err != nil {
		err = s.fail("update resource", err, zap.String("resource_id", id))
		return nil, err
	}

	s.stats.Invalidate(id)
	return res, nil
}

func applyUpdate(r *model.Resource, req model.UpdateResourceRequest) {
	if req.Title != nil {
		r.Title = *req.Title
	}
	if req.Description != nil {
		r.Description = *req.Description
	}
	switch {
	case req.ClearCapacity:
		r.Capacity = nil
	case req.Capacity != nil:
		c := *req.Capacity
		r.Capacity = &c
	}
	switch {
	case req.ClearDeadline:
		r.RegistrationDeadline = nil
	case req.RegistrationDeadline != nil:
		d := *req.RegistrationDeadline
		r.RegistrationDeadline = &d
	}
	if req.StartsAt != nil {
		r.StartsAt = *req.StartsAt
	}
	if req.EndsAt != nil {
		e := *req.EndsAt
		r.EndsAt = &e
	}
	if req.RequiresApproval != nil {
		r.RequiresApproval = *req.RequiresApproval
	}
}

// TransitionResource applies an administrative lifecycle event. Existing
// registrations keep their statuses.
func (s *RegistrationService) TransitionResource(ctx context.Context, id string, event model.ResourceEvent) (*model.Resource, error) {
	ctx, span := s.tracer.Start(ctx, "resource.transition")
	span.SetAttributes(attribute.String("resource.id", id), attribute.String("resource.event", string(event)))
	var err error
	defer func() {
		metrics.ResourceTransitions.WithLabelValues(string(event), model.Code(err)).Inc()
		tracing.End(span, err)
	}()

	switch event {
	case model.EventPublish, model.EventStart, model.EventComplete, model.EventCancel:
	default:
		err = model.Invalid("event", "must be one of publish, start, complete, cancel")
		return nil, err
	}
	if err = checkID("resource", id); err != nil {
		return nil, err
	}

	now := s.clock()
	var from model.ResourceStatus
	res, err := s.store.UpdateResource(ctx, id, func(r model.Resource, _ int) (model.Resource, error) {
		from = r.Status
		return lifecycle.TransitionResource(r, event, now)
	})
	if err != nil {
		err = s.fail("transition resource", err, zap.String("resource_id", id), zap.String("event", string(event)))
		return nil, err
	}

	s.stats.Invalidate(id)
	s.publish(notify.ResourceTransitioned, id, "", "", string(res.Status))
	s.log.Info("resource transitioned",
		zap.String("resource_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(res.Status)),
	)
	return res, nil
}

// GetResource returns a single resource by ID.
func (s *RegistrationService) GetResource(ctx context.Context, id string) (*model.Resource, error) {
	if err := checkID("resource", id); err != nil {
		return nil, err
	}
	res, err := s.store.GetResource(ctx, id)
	if err != nil {
		return nil, s.fail("get resource", err, zap.String("resource_id", id))
	}
	return res, nil
}

// ListResources returns resources matching the filter.
func (s *RegistrationService) ListResources(ctx context.Context, f model.ResourceFilter) ([]model.Resource, error) {
	if f.Kind != "" && !f.Kind.Valid() {
		return nil, model.Invalid("kind", "is not a known resource kind")
	}
	switch f.Status {
	case "", model.ResourceDraft, model.ResourcePublished, model.ResourceOngoing, model.ResourceCompleted, model.ResourceCancelled:
	default:
		return nil, model.Invalid("status", "is not a known resource status")
	}
	out, err := s.store.ListResources(ctx, f)
	if err != nil {
		return nil, s.fail("list resources", err)
	}
	return out, nil
}

// GetPublicResource is GetResource for unauthenticated callers: drafts
// are reported as not found.
func (s *RegistrationService) GetPublicResource(ctx context.Context, id string) (*model.Resource, error) {
	res, err := s.GetResource(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.Status == model.ResourceDraft {
		return nil, model.ResourceNotFound(id)
	}
	return res, nil
}

// ListPublicResources is ListResources without drafts.
func (s *RegistrationService) ListPublicResources(ctx context.Context, f model.ResourceFilter) ([]model.Resource, error) {
	all, err := s.ListResources(ctx, f)
	if err != nil || f.Status == model.ResourceDraft {
		return nil, err
	}
	out := all[:0]
	for _, res := range all {
		if res.Status != model.ResourceDraft {
			out = append(out, res)
		}
	}
	return out, nil
}

// DeleteResource hard-deletes a resource and its registrations.
func (s *RegistrationService) DeleteResource(ctx context.Context, id string) error {
	if err := checkID("resource", id); err != nil {
		return err
	}
	if err := s.store.DeleteResource(ctx, id); err != nil {
		return s.fail("delete resource", err, zap.String("resource_id", id))
	}
	s.stats.Invalidate(id)
	s.log.Info("resource deleted", zap.String("resource_id", id))
	return nil
}

// ResourceSummary returns the statistics projection for one resource.
func (s *RegistrationService) ResourceSummary(ctx context.Context, id string) (*stats.Summary, error) {
	if err := checkID("resource", id); err != nil {
		return nil, err
	}
	sum, err := s.stats.Summary(ctx, id)
	if err != nil {
		return nil, s.fail("resource summary", err, zap.String("resource_id", id))
	}
	return sum, nil
}

// Overview returns program-wide resource counts.
func (s *RegistrationService) Overview(ctx context.Context) (*stats.Overview, error) {
	o, err := s.stats.Overview(ctx)
	if err != nil {
		return nil, s.fail("overview", err)
	}
	return o, nil
}
