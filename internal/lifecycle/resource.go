// Package lifecycle holds the status state machines for resources and
// registrations. Every transition is a pure function that either returns the
// next value or a *model.TransitionError and leaves its input untouched.
package lifecycle

import (
	"time"

	"github.com/Shivanand-hulikatti/program-registrations/internal/model"
)

var resourceEdges = map[model.ResourceStatus]map[model.ResourceEvent]model.ResourceStatus{
	model.ResourceDraft: {
		model.EventPublish: model.ResourcePublished,
		model.EventCancel:  model.ResourceCancelled,
	},
	model.ResourcePublished: {
		model.EventStart:  model.ResourceOngoing,
		model.EventCancel: model.ResourceCancelled,
	},
	model.ResourceOngoing: {
		model.EventComplete: model.ResourceCompleted,
		model.EventCancel:   model.ResourceCancelled,
	},
}

// NextResourceStatus returns the status reached by applying event to from.
func NextResourceStatus(from model.ResourceStatus, event model.ResourceEvent) (model.ResourceStatus, bool) {
	to, ok := resourceEdges[from][event]
	return to, ok
}

// TransitionResource applies an administrative event to a resource.
// Existing registrations are not touched.
func TransitionResource(r model.Resource, event model.ResourceEvent, now time.Time) (model.Resource, error) {
	to, ok := NextResourceStatus(r.Status, event)
	if !ok {
		return r, &model.TransitionError{From: string(r.Status), Event: string(event)}
	}
	r.Status = to
	r.UpdatedAt = now
	return r, nil
}
