// Package completion gates the post-attendance actions: certificates and
// feedback.
package completion

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Shivanand-hulikatti/program-registrations/internal/model"
)

// MaxFeedbackLength bounds the free-text feedback a registrant may leave.
const MaxFeedbackLength = 2000

// IssueCertificate marks a certificate as issued for an attended
// registration. Issuing twice is not an error; the second call returns reg
// unchanged.
func IssueCertificate(reg model.Registration, policy model.Policy, now time.Time) (model.Registration, error) {
	if reg.CertificateIssued {
		return reg, nil
	}
	if reg.Status != model.StatusAttended {
		return reg, &model.EligibilityError{Reason: fmt.Sprintf("registration is %s, not attended", reg.Status)}
	}
	if policy.TracksAttendance {
		if reg.AttendancePercentage == nil {
			return reg, &model.EligibilityError{Reason: "attendance percentage not recorded"}
		}
		if *reg.AttendancePercentage < policy.CertificateThreshold {
			return reg, &model.EligibilityError{
				Reason: fmt.Sprintf("attendance %d%% is below the %d%% threshold", *reg.AttendancePercentage, policy.CertificateThreshold),
			}
		}
	}
	reg.CertificateIssued = true
	reg.CertificateIssuedAt = &now
	reg.UpdatedAt = now
	return reg, nil
}

// CanSubmitFeedback reports whether the registrant may rate the resource.
func CanSubmitFeedback(reg model.Registration) error {
	if reg.Status != model.StatusAttended {
		return &model.EligibilityError{Reason: "feedback is only accepted after attending"}
	}
	return nil
}

// RecordFeedback stores a rating and optional comment. Earlier feedback is
// overwritten.
func RecordFeedback(reg model.Registration, rating int, feedback *string, now time.Time) (model.Registration, error) {
	if err := CanSubmitFeedback(reg); err != nil {
		return reg, err
	}
	if rating < 1 || rating > 5 {
		return reg, model.Invalid("rating", "must be between 1 and 5")
	}
	var text string
	if feedback != nil {
		text = strings.TrimSpace(*feedback)
		if utf8.RuneCountInString(text) > MaxFeedbackLength {
			return reg, model.Invalid("feedback", fmt.Sprintf("must be at most %d characters", MaxFeedbackLength))
		}
	}
	reg.Rating = &rating
	reg.Feedback = nil
	if text != "" {
		reg.Feedback = &text
	}
	reg.UpdatedAt = now
	return reg, nil
}
