package lifecycle

import (
	"time"

	"github.com/Shivanand-hulikatti/program-registrations/internal/model"
)

// Registration event names, used in errors and metrics.
const (
	ActionConfirm     = "confirm"
	ActionCancel      = "cancel"
	ActionAttend      = "mark_attended"
	ActionNoShow      = "mark_no_show"
	ActionFeedback    = "submit_feedback"
	ActionCertificate = "issue_certificate"
)

// InitialStatus is the status a freshly admitted registration starts in.
func InitialStatus(r *model.Resource) model.RegistrationStatus {
	if r.RequiresApproval {
		return model.StatusPending
	}
	return model.StatusConfirmed
}

// Confirm approves a pending registration.
func Confirm(reg model.Registration, res *model.Resource, now time.Time) (model.Registration, error) {
	if reg.Status != model.StatusPending || res.Status == model.ResourceCancelled {
		return reg, &model.TransitionError{From: string(reg.Status), Event: ActionConfirm}
	}
	reg.Status = model.StatusConfirmed
	reg.UpdatedAt = now
	return reg, nil
}

// Cancel releases an active registration. The slot is freed as soon as the
// result is persisted.
func Cancel(reg model.Registration, now time.Time) (model.Registration, error) {
	if !reg.Status.Active() {
		return reg, &model.TransitionError{From: string(reg.Status), Event: ActionCancel}
	}
	reg.Status = model.StatusCancelled
	reg.CancelledAt = &now
	reg.UpdatedAt = now
	return reg, nil
}

// MarkAttendance records whether a confirmed registrant showed up. It is
// only allowed once the resource has started. percentage is kept only when
// the resource's policy tracks attendance.
func MarkAttendance(reg model.Registration, res *model.Resource, attended bool, percentage *int, now time.Time) (model.Registration, error) {
	action := ActionNoShow
	if attended {
		action = ActionAttend
	}
	if reg.Status != model.StatusConfirmed || !attendanceOpen(res, now) {
		return reg, &model.TransitionError{From: string(reg.Status), Event: action}
	}
	if percentage != nil && (*percentage < 0 || *percentage > 100) {
		return reg, model.Invalid("attendance_percentage", "must be between 0 and 100")
	}

	reg.Attended = attended
	if attended {
		reg.Status = model.StatusAttended
	} else {
		reg.Status = model.StatusNoShow
	}
	if res.Policy().TracksAttendance && percentage != nil {
		p := *percentage
		reg.AttendancePercentage = &p
	}
	reg.UpdatedAt = now
	return reg, nil
}

func attendanceOpen(res *model.Resource, now time.Time) bool {
	switch res.Status {
	case model.ResourceOngoing, model.ResourceCompleted:
		return true
	case model.ResourceCancelled:
		return false
	}
	return res.HasStarted(now)
}
