package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/program-registrations/internal/auth"
	"github.com/Shivanand-hulikatti/program-registrations/internal/config"
	"github.com/Shivanand-hulikatti/program-registrations/internal/model"
	"github.com/Shivanand-hulikatti/program-registrations/internal/repository"
	"github.com/Shivanand-hulikatti/program-registrations/internal/service"
)

type testServer struct {
	t     *testing.T
	srv   *httptest.Server
	jwt   *auth.JWTer
	token string
	// header is added to every request.
	header http.Header
}

func newTestServer(t *testing.T, limits config.Limits, health map[string]PingFunc) *testServer {
	t.Helper()
	return serveDeps(t, Deps{Limits: limits, Health: health})
}

// serveDeps fills in the service and JWT and serves the router.
func serveDeps(t *testing.T, d Deps) *testServer {
	t.Helper()
	d.Service = service.NewRegistrationService(repository.NewMemoryStore(), service.Options{})
	d.JWT = &auth.JWTer{Secret: []byte("handler-test"), Issuer: "programs", TTL: time.Hour}
	d.RequestTimeout = 5 * time.Second
	tok, err := d.JWT.Issue("ops@example.org", auth.RoleAdmin)
	require.NoError(t, err)

	srv := httptest.NewServer(NewRouter(d))
	t.Cleanup(srv.Close)
	return &testServer{t: t, srv: srv, jwt: d.JWT, token: tok, header: http.Header{}}
}

func (s *testServer) do(method, path, token string, body any) (*http.Response, []byte) {
	s.t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(s.t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.srv.URL+path, rdr)
	require.NoError(s.t, err)
	for k, v := range s.header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.srv.Client().Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(s.t, err)
	return resp, buf.Bytes()
}

func (s *testServer) admin(method, path string, body any) (*http.Response, []byte) {
	return s.do(method, path, s.token, body)
}

func decode[T any](t *testing.T, b []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(b, &v), string(b))
	return v
}

// openResource creates and publishes a resource with the given capacity.
func (s *testServer) openResource(kind string, capacity *int) model.Resource {
	s.t.Helper()
	body := map[string]any{
		"kind":      kind,
		"title":     "Community " + kind,
		"starts_at": time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339),
	}
	if capacity != nil {
		body["capacity"] = *capacity
	}
	resp, b := s.admin(http.MethodPost, "/admin/resources", body)
	require.Equal(s.t, http.StatusCreated, resp.StatusCode, string(b))
	res := decode[model.Resource](s.t, b)
	require.Equal(s.t, model.ResourceDraft, res.Status)

	resp, b = s.admin(http.MethodPost, "/admin/resources/"+res.ID+"/transitions", map[string]string{"event": "publish"})
	require.Equal(s.t, http.StatusOK, resp.StatusCode, string(b))
	return decode[model.Resource](s.t, b)
}

func (s *testServer) submit(resourceID, email string) (*http.Response, []byte) {
	return s.do(http.MethodPost, "/resources/"+resourceID+"/registrations", "", map[string]string{
		"email":     email,
		"full_name": "Someone",
	})
}

func TestRouter_RegistrationFlow(t *testing.T) {
	s := newTestServer(t, config.Limits{}, nil)
	capacity := 1
	res := s.openResource("event", &capacity)

	resp, b := s.submit(res.ID, "alice@example.org")
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(b))
	alice := decode[model.Registration](t, b)
	require.Equal(t, model.StatusConfirmed, alice.Status)

	resp, b = s.submit(res.ID, "ALICE@example.org")
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	e := decode[model.ErrorResponse](t, b)
	require.Equal(t, "duplicate_registration", e.Code)
	require.Equal(t, alice.ID, e.ExistingRegistrationID)

	resp, b = s.submit(res.ID, "bob@example.org")
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "capacity_exceeded", decode[model.ErrorResponse](t, b).Code)

	// Someone else cannot cancel alice's registration.
	resp, _ = s.do(http.MethodPost, "/registrations/"+alice.ID+"/cancel", "", map[string]string{"email": "bob@example.org"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, b = s.do(http.MethodPost, "/registrations/"+alice.ID+"/cancel", "", map[string]string{"email": "alice@example.org"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(b))
	require.Equal(t, model.StatusCancelled, decode[model.Registration](t, b).Status)

	resp, b = s.do(http.MethodPost, "/registrations/"+alice.ID+"/cancel", "", map[string]string{"email": "alice@example.org"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "invalid_transition", decode[model.ErrorResponse](t, b).Code)

	resp, _ = s.submit(res.ID, "bob@example.org")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, b = s.admin(http.MethodGet, "/admin/resources/"+res.ID+"/registrations?status=cancelled", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, decode[[]model.Registration](t, b), 1)

	resp, b = s.admin(http.MethodGet, "/admin/resources/"+res.ID+"/summary", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sum struct {
		Admitted  int  `json:"admitted"`
		Remaining *int `json:"remaining"`
	}
	require.NoError(t, json.Unmarshal(b, &sum))
	require.Equal(t, 1, sum.Admitted)
	require.Equal(t, 0, *sum.Remaining)
}

func TestRouter_AdminLifecycle(t *testing.T) {
	s := newTestServer(t, config.Limits{}, nil)
	res := s.openResource("workshop", nil)

	resp, b := s.submit(res.ID, "carol@example.org")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	reg := decode[model.Registration](t, b)

	resp, b = s.admin(http.MethodPost, "/admin/registrations/"+reg.ID+"/attendance", map[string]any{"attended": true, "attendance_percentage": 80})
	require.Equal(t, http.StatusConflict, resp.StatusCode, string(b))

	resp, _ = s.admin(http.MethodPost, "/admin/resources/"+res.ID+"/transitions", map[string]string{"event": "start"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, b = s.admin(http.MethodPost, "/admin/registrations/"+reg.ID+"/attendance", map[string]any{"attended": true, "attendance_percentage": 80})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(b))

	for i := 0; i < 2; i++ {
		resp, b = s.admin(http.MethodPost, "/admin/registrations/"+reg.ID+"/certificate", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, string(b))
		require.True(t, decode[model.Registration](t, b).CertificateIssued)
	}

	resp, b = s.do(http.MethodPost, "/registrations/"+reg.ID+"/feedback", "", map[string]any{"email": "carol@example.org", "rating": 5})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(b))
	require.Equal(t, 5, *decode[model.Registration](t, b).Rating)

	resp, b = s.admin(http.MethodGet, "/admin/overview", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(b), `"workshop":{"ongoing":1}`)

	resp, _ = s.admin(http.MethodDelete, "/admin/registrations/"+reg.ID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = s.admin(http.MethodGet, "/admin/registrations/"+reg.ID, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = s.admin(http.MethodDelete, "/admin/resources/"+res.ID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = s.do(http.MethodGet, "/resources/"+res.ID, "", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRouter_ApprovalAndEdit(t *testing.T) {
	s := newTestServer(t, config.Limits{}, nil)
	resp, b := s.admin(http.MethodPost, "/admin/resources", map[string]any{
		"kind":              "conference",
		"title":             "Summit",
		"capacity":          2,
		"requires_approval": true,
		"starts_at":         time.Now().Add(72 * time.Hour).UTC().Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(b))
	res := decode[model.Resource](t, b)

	resp, b = s.admin(http.MethodPatch, "/admin/resources/"+res.ID, map[string]any{"title": "Summit 2026", "capacity": 3})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(b))
	res = decode[model.Resource](t, b)
	require.Equal(t, "Summit 2026", res.Title)
	require.Equal(t, 3, *res.Capacity)

	resp, _ = s.admin(http.MethodPost, "/admin/resources/"+res.ID+"/transitions", map[string]string{"event": "publish"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, b = s.submit(res.ID, "dee@example.org")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	reg := decode[model.Registration](t, b)
	require.Equal(t, model.StatusPending, reg.Status)

	resp, b = s.admin(http.MethodPost, "/admin/registrations/"+reg.ID+"/confirm", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(b))
	require.Equal(t, model.StatusConfirmed, decode[model.Registration](t, b).Status)

	resp, b = s.admin(http.MethodPost, "/admin/registrations/"+reg.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(b))
	require.Equal(t, model.StatusCancelled, decode[model.Registration](t, b).Status)
}

func TestRouter_DraftsHiddenFromPublic(t *testing.T) {
	s := newTestServer(t, config.Limits{}, nil)
	open := s.openResource("event", nil)
	resp, b := s.admin(http.MethodPost, "/admin/resources", map[string]any{
		"kind": "event", "title": "Unannounced", "starts_at": time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(b))
	draft := decode[model.Resource](t, b)

	resp, b = s.do(http.MethodGet, "/resources", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	public := decode[[]model.Resource](t, b)
	require.Len(t, public, 1)
	require.Equal(t, open.ID, public[0].ID)

	resp, b = s.do(http.MethodGet, "/resources?status=draft", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `[]`, string(b))

	resp, b = s.do(http.MethodGet, "/resources/"+draft.ID, "", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "not_found", decode[model.ErrorResponse](t, b).Code)

	resp, b = s.admin(http.MethodGet, "/admin/resources", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, decode[[]model.Resource](t, b), 2)

	resp, b = s.admin(http.MethodGet, "/admin/resources/"+draft.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, model.ResourceDraft, decode[model.Resource](t, b).Status)

	resp, _ = s.do(http.MethodGet, "/admin/resources", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRouter_Errors(t *testing.T) {
	s := newTestServer(t, config.Limits{}, nil)

	t.Run("admin requires token", func(t *testing.T) {
		resp, _ := s.do(http.MethodGet, "/admin/overview", "", nil)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		resp, _ = s.do(http.MethodGet, "/admin/overview", "garbage", nil)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		tok, err := s.jwt.Issue("someone@example.org", "viewer")
		require.NoError(t, err)
		resp, _ = s.do(http.MethodGet, "/admin/overview", tok, nil)
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("unknown resource", func(t *testing.T) {
		resp, b := s.do(http.MethodGet, "/resources/nope", "", nil)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
		require.Equal(t, "not_found", decode[model.ErrorResponse](t, b).Code)
	})

	t.Run("bad body", func(t *testing.T) {
		res := s.openResource("event", nil)
		resp, b := s.do(http.MethodPost, "/resources/"+res.ID+"/registrations", "", map[string]string{"email": "a@example.org", "surprise": "x"})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, "invalid_input", decode[model.ErrorResponse](t, b).Code)

		resp, _ = s.submit(res.ID, "not-an-email")
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("not accepting", func(t *testing.T) {
		resp, b := s.admin(http.MethodPost, "/admin/resources", map[string]any{
			"kind": "training", "title": "Cohort", "starts_at": time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		res := decode[model.Resource](t, b)
		resp, b = s.submit(res.ID, "a@example.org")
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		require.Equal(t, "not_accepting_registrations", decode[model.ErrorResponse](t, b).Code)
	})

	t.Run("empty list is an array", func(t *testing.T) {
		resp, b := s.do(http.MethodGet, "/resources?kind=conference", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.JSONEq(t, `[]`, string(b))

		resp, _ = s.do(http.MethodGet, "/resources?kind=meetup", "", nil)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestRouter_RateLimit(t *testing.T) {
	s := newTestServer(t, config.Limits{SubmitRPS: 0.001, SubmitBurst: 2}, nil)
	res := s.openResource("event", nil)

	for i := 0; i < 2; i++ {
		resp, b := s.submit(res.ID, fmt.Sprintf("u%d@example.org", i))
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(b))
	}
	resp, b := s.submit(res.ID, "u9@example.org")
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "rate_limited", decode[model.ErrorResponse](t, b).Code)

	// Reads are not limited.
	resp, _ = s.do(http.MethodGet, "/resources/"+res.ID, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_RateLimitIgnoresForwardedHeaders(t *testing.T) {
	s := newTestServer(t, config.Limits{SubmitRPS: 0.001, SubmitBurst: 1}, nil)
	res := s.openResource("event", nil)

	admitted := 0
	for i := 0; i < 10; i++ {
		s.header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i+1))
		s.header.Set("X-Real-IP", fmt.Sprintf("198.51.100.%d", i+1))
		resp, b := s.submit(res.ID, fmt.Sprintf("r%d@example.org", i))
		switch resp.StatusCode {
		case http.StatusCreated:
			admitted++
		case http.StatusTooManyRequests:
			require.Equal(t, "rate_limited", decode[model.ErrorResponse](t, b).Code)
		default:
			t.Fatalf("unexpected status %d: %s", resp.StatusCode, b)
		}
	}
	require.Equal(t, 1, admitted)
}

func TestRouter_RateLimitTrustedProxy(t *testing.T) {
	s := serveDeps(t, Deps{
		Limits:     config.Limits{SubmitRPS: 0.001, SubmitBurst: 1},
		TrustProxy: true,
	})
	res := s.openResource("event", nil)

	s.header.Set("X-Forwarded-For", "203.0.113.7")
	resp, b := s.submit(res.ID, "a@example.org")
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(b))
	resp, _ = s.submit(res.ID, "b@example.org")
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// Behind a trusted proxy each forwarded client has its own bucket.
	s.header.Set("X-Forwarded-For", "203.0.113.8")
	resp, b = s.submit(res.ID, "c@example.org")
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(b))
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	healthy := newTestServer(t, config.Limits{}, map[string]PingFunc{
		"redis": func(context.Context) error { return nil },
	})
	resp, b := healthy.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"status":"ok","checks":{"store":"ok","redis":"ok"}}`, string(b))

	resp, b = healthy.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(b), "http_requests_total")

	sick := newTestServer(t, config.Limits{}, map[string]PingFunc{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})
	resp, b = sick.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.Contains(t, string(b), "connection refused")
}

func TestWriteServiceError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{model.ErrCapacityExceeded, http.StatusConflict, "capacity_exceeded"},
		{model.ErrPastDeadline, http.StatusUnprocessableEntity, "past_deadline"},
		{&model.EligibilityError{Reason: "x"}, http.StatusUnprocessableEntity, "not_eligible"},
		{model.ErrForbidden, http.StatusForbidden, "forbidden"},
		{fmt.Errorf("submit: %w", context.DeadlineExceeded), http.StatusServiceUnavailable, "timeout"},
		{errors.New("pool exhausted"), http.StatusInternalServerError, "internal"},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		writeServiceError(rec, c.err)
		require.Equal(t, c.status, rec.Code, c.err.Error())
		e := decode[model.ErrorResponse](t, rec.Body.Bytes())
		require.Equal(t, c.code, e.Code)
		require.NotContains(t, e.Error, "pool exhausted")
	}
}
