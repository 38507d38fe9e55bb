// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Shivanand-hulikatti/program-registrations/internal/model"
	"github.com/Shivanand-hulikatti/program-registrations/internal/service"
)

// RegistrationHandler holds all HTTP handlers for the registration API.
type RegistrationHandler struct {
	svc *service.RegistrationService
}

// NewRegistrationHandler constructs a RegistrationHandler.
func NewRegistrationHandler(svc *service.RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{svc: svc}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg, Code: code})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeBadBody(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, "invalid_input", "invalid request body: "+err.Error())
}

// statusFor maps an error code to its HTTP status.
var statusFor = map[string]int{
	"not_found":                   http.StatusNotFound,
	"invalid_input":               http.StatusBadRequest,
	"forbidden":                   http.StatusForbidden,
	"duplicate_registration":      http.StatusConflict,
	"capacity_exceeded":           http.StatusConflict,
	"invalid_transition":          http.StatusConflict,
	"not_accepting_registrations": http.StatusUnprocessableEntity,
	"past_deadline":               http.StatusUnprocessableEntity,
	"not_eligible":                http.StatusUnprocessableEntity,
}

// writeServiceError translates a service error into the JSON error envelope.
// Infrastructure failures never leak their message.
func writeServiceError(w http.ResponseWriter, err error) {
	code := model.Code(err)
	status, ok := statusFor[code]
	if !ok {
		if errors.Is(err, context.DeadlineExceeded) {
			writeError(w, http.StatusServiceUnavailable, "timeout", "request timed out")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}

	resp := model.ErrorResponse{Error: err.Error(), Code: code}
	var dup *model.DuplicateRegistrationError
	if errors.As(err, &dup) {
		resp.ExistingRegistrationID = dup.ExistingID
	}
	writeJSON(w, status, resp)
}

// ─── Public handlers ──────────────────────────────────────────────────────────

// ListResources handles GET /resources?kind=&status=
// Drafts are omitted.
func (h *RegistrationHandler) ListResources(w http.ResponseWriter, r *http.Request) {
	h.listResources(w, r, h.svc.ListPublicResources)
}

// AdminListResources handles GET /admin/resources, drafts included.
func (h *RegistrationHandler) AdminListResources(w http.ResponseWriter, r *http.Request) {
	h.listResources(w, r, h.svc.ListResources)
}

func (h *RegistrationHandler) listResources(w http.ResponseWriter, r *http.Request,
	list func(context.Context, model.ResourceFilter) ([]model.Resource, error)) {
	q := r.URL.Query()
	f := model.ResourceFilter{
		Kind:   model.ResourceKind(q.Get("kind")),
		Status: model.ResourceStatus(q.Get("status")),
	}
	out, err := list(r.Context(), f)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if out == nil {
		out = []model.Resource{}
	}
	writeJSON(w, http.StatusOK, out)
}

// GetResource handles GET /resources/{id}
// Drafts are not visible here.
func (h *RegistrationHandler) GetResource(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.GetPublicResource(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// AdminGetResource handles GET /admin/resources/{id}
func (h *RegistrationHandler) AdminGetResource(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.GetResource(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Submit handles POST /resources/{id}/registrations
// Admits a registration under the resource's capacity and uniqueness rules.
func (h *RegistrationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req model.SubmitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadBody(w, err)
		return
	}

	reg, err := h.svc.SubmitRegistration(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reg)
}

// SelfCancel handles POST /registrations/{id}/cancel
// The email in the body must match the registration.
func (h *RegistrationHandler) SelfCancel(w http.ResponseWriter, r *http.Request) {
	var req model.CancelRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadBody(w, err)
		return
	}

	reg, err := h.svc.CancelRegistration(r.Context(), chi.URLParam(r, "id"), model.Registrant(req.Email))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

// Feedback handles POST /registrations/{id}/feedback
func (h *RegistrationHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	var req model.FeedbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadBody(w, err)
		return
	}

	reg, err := h.svc.SubmitFeedback(r.Context(), chi.URLParam(r, "id"), model.Registrant(req.Email), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

// ─── Admin handlers ───────────────────────────────────────────────────────────

// CreateResource handles POST /admin/resources
func (h *RegistrationHandler) CreateResource(w http.ResponseWriter, r *http.Request) {
	var req model.CreateResourceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadBody(w, err)
		return
	}

	res, err := h.svc.CreateResource(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// UpdateResource handles PATCH /admin/resources/{id}
func (h *RegistrationHandler) UpdateResource(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateResourceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadBody(w, err)
		return
	}

	res, err := h.svc.UpdateResource(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// DeleteResource handles DELETE /admin/resources/{id}
func (h *RegistrationHandler) DeleteResource(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteResource(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TransitionResource handles POST /admin/resources/{id}/transitions
func (h *RegistrationHandler) TransitionResource(w http.ResponseWriter, r *http.Request) {
	var req model.TransitionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadBody(w, err)
		return
	}

	res, err := h.svc.TransitionResource(r.Context(), chi.URLParam(r, "id"), req.Event)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListRegistrations handles GET /admin/resources/{id}/registrations?status=
func (h *RegistrationHandler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	f := model.RegistrationFilter{Status: model.RegistrationStatus(r.URL.Query().Get("status"))}
	regs, err := h.svc.ListRegistrations(r.Context(), chi.URLParam(r, "id"), f)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if regs == nil {
		regs = []model.Registration{}
	}
	writeJSON(w, http.StatusOK, regs)
}

// Summary handles GET /admin/resources/{id}/summary
func (h *RegistrationHandler) Summary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.ResourceSummary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// Overview handles GET /admin/overview
func (h *RegistrationHandler) Overview(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.Overview(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// GetRegistration handles GET /admin/registrations/{id}
func (h *RegistrationHandler) GetRegistration(w http.ResponseWriter, r *http.Request) {
	reg, err := h.svc.GetRegistration(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

// Confirm handles POST /admin/registrations/{id}/confirm
func (h *RegistrationHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	reg, err := h.svc.ConfirmRegistration(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

// AdminCancel handles POST /admin/registrations/{id}/cancel
func (h *RegistrationHandler) AdminCancel(w http.ResponseWriter, r *http.Request) {
	reg, err := h.svc.CancelRegistration(r.Context(), chi.URLParam(r, "id"), model.Admin())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

// Attendance handles POST /admin/registrations/{id}/attendance
func (h *RegistrationHandler) Attendance(w http.ResponseWriter, r *http.Request) {
	var req model.AttendanceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadBody(w, err)
		return
	}

	reg, err := h.svc.MarkAttendance(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

// Certificate handles POST /admin/registrations/{id}/certificate
func (h *RegistrationHandler) Certificate(w http.ResponseWriter, r *http.Request) {
	reg, err := h.svc.IssueCertificate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

// DeleteRegistration handles DELETE /admin/registrations/{id}
func (h *RegistrationHandler) DeleteRegistration(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteRegistration(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// PingFunc checks one dependency.
type PingFunc func(ctx context.Context) error

// HealthCheck handles GET /health. Every check must pass for a 200.
func HealthCheck(checks map[string]PingFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		status := http.StatusOK
		out := make(map[string]string, len(checks))
		for name, ping := range checks {
			if err := ping(ctx); err != nil {
				out[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			out[name] = "ok"
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		writeJSON(w, status, map[string]any{"status": overall, "checks": out})
	}
}
