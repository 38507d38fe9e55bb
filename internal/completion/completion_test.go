package completion

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/program-registrations/internal/model"
)

var now = time.Date(2026, 6, 1, 17, 0, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

func attended(pct *int) model.Registration {
	return model.Registration{ID: "reg-1", Status: model.StatusAttended, Attended: true, AttendancePercentage: pct}
}

func TestIssueCertificate_UntrackedPolicy(t *testing.T) {
	got, err := IssueCertificate(attended(nil), model.PolicyFor(model.KindEvent), now)
	require.NoError(t, err)
	require.True(t, got.CertificateIssued)
	require.Equal(t, now, *got.CertificateIssuedAt)
}

func TestIssueCertificate_Threshold(t *testing.T) {
	policy := model.PolicyFor(model.KindWorkshop)

	tests := []struct {
		name string
		pct  *int
		ok   bool
	}{
		{"missing percentage", nil, false},
		{"below threshold", intPtr(74), false},
		{"at threshold", intPtr(75), true},
		{"full attendance", intPtr(100), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := attended(tt.pct)
			got, err := IssueCertificate(reg, policy, now)
			if tt.ok {
				require.NoError(t, err)
				require.True(t, got.CertificateIssued)
				return
			}
			require.ErrorIs(t, err, model.ErrNotEligible)
			require.Equal(t, reg, got)
		})
	}
}

func TestIssueCertificate_RequiresAttended(t *testing.T) {
	for _, s := range []model.RegistrationStatus{model.StatusPending, model.StatusConfirmed, model.StatusCancelled, model.StatusNoShow} {
		_, err := IssueCertificate(model.Registration{Status: s}, model.PolicyFor(model.KindConference), now)
		require.ErrorIs(t, err, model.ErrNotEligible, "status %s", s)
	}
}

func TestIssueCertificate_Idempotent(t *testing.T) {
	policy := model.PolicyFor(model.KindTraining)
	first, err := IssueCertificate(attended(intPtr(90)), policy, now)
	require.NoError(t, err)

	second, err := IssueCertificate(first, policy, now.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, now, *second.CertificateIssuedAt)
}

func TestRecordFeedback(t *testing.T) {
	note := "  great session  "
	got, err := RecordFeedback(attended(nil), 5, &note, now)
	require.NoError(t, err)
	require.Equal(t, 5, *got.Rating)
	require.Equal(t, "great session", *got.Feedback)

	// Overwrite keeps only the latest rating.
	got, err = RecordFeedback(got, 3, nil, now)
	require.NoError(t, err)
	require.Equal(t, 3, *got.Rating)
	require.Nil(t, got.Feedback)
}

func TestRecordFeedback_Rejections(t *testing.T) {
	_, err := RecordFeedback(model.Registration{Status: model.StatusConfirmed}, 4, nil, now)
	require.ErrorIs(t, err, model.ErrNotEligible)

	for _, rating := range []int{0, 6, -1} {
		_, err := RecordFeedback(attended(nil), rating, nil, now)
		require.ErrorIs(t, err, model.ErrInvalidInput)
	}

	long := strings.Repeat("x", MaxFeedbackLength+1)
	reg := attended(nil)
	got, err := RecordFeedback(reg, 4, &long, now)
	require.ErrorIs(t, err, model.ErrInvalidInput)
	require.Equal(t, reg, got)
}

func TestRecordFeedback_CountsCharacters(t *testing.T) {
	text := strings.Repeat("é", MaxFeedbackLength)
	got, err := RecordFeedback(attended(nil), 5, &text, now)
	require.NoError(t, err)
	require.Equal(t, text, *got.Feedback)

	over := text + "ü"
	_, err = RecordFeedback(attended(nil), 5, &over, now)
	require.ErrorIs(t, err, model.ErrInvalidInput)
}
