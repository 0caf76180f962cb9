package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/foxzi/castmail/internal/web/castmail"
)

func TestObserveBackend(t *testing.T) {
	m := New()

	m.ObserveBackend("list_contacts", 20*time.Millisecond, nil)
	m.ObserveBackend("send_mailing", time.Second, &castmail.APIError{StatusCode: 403})
	m.ObserveBackend("send_mailing", time.Second, errors.New("dial tcp: refused"))

	if got := testutil.ToFloat64(m.BackendRequestsTotal.WithLabelValues("list_contacts", "ok")); got != 1 {
		t.Errorf("ok counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.BackendRequestsTotal.WithLabelValues("send_mailing", "403")); got != 1 {
		t.Errorf("403 counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.BackendRequestsTotal.WithLabelValues("send_mailing", "error")); got != 1 {
		t.Errorf("error counter = %v, want 1", got)
	}
}

func TestObserveSend(t *testing.T) {
	m := New()

	m.ObserveSend(3, 1)
	m.ObserveSend(2, 0)
	m.ObserveSendFailure("attach")
	m.ObserveValidationReject("extension")
	m.ObserveUpload(2, 1)

	if got := testutil.ToFloat64(m.MailingsSentTotal); got != 2 {
		t.Errorf("mailings = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.RecipientsTotal.WithLabelValues("sent")); got != 5 {
		t.Errorf("sent = %v, want 5", got)
	}
	if got := testutil.ToFloat64(m.RecipientsTotal.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SendFailuresTotal.WithLabelValues("attach")); got != 1 {
		t.Errorf("attach failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ValidationRejectsTotal.WithLabelValues("extension")); got != 1 {
		t.Errorf("rejects = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ContactUploadsTotal.WithLabelValues("created")); got != 2 {
		t.Errorf("created = %v, want 2", got)
	}
}

func TestResponseWriter(t *testing.T) {
	rw := wrapResponseWriter(httptest.NewRecorder())

	if rw.status != http.StatusOK {
		t.Errorf("Expected initial status %d, got %d", http.StatusOK, rw.status)
	}

	rw.WriteHeader(http.StatusNotFound)
	rw.WriteHeader(http.StatusInternalServerError)
	if rw.status != http.StatusNotFound {
		t.Errorf("Expected status to remain %d, got %d", http.StatusNotFound, rw.status)
	}
}

func TestHTTPMiddlewareUsesRoutePattern(t *testing.T) {
	m := New()

	r := chi.NewRouter()
	r.Use(m.HTTPMiddleware)
	r.Get("/contacts", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Get("/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	for _, path := range []string{"/contacts", "/contacts", "/broken"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", path, nil))
	}

	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/contacts", "200")); got != 2 {
		t.Errorf("contacts requests = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.HTTPErrorsTotal.WithLabelValues("server_error")); got != 1 {
		t.Errorf("server errors = %v, want 1", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.RegisterSessions(func() int { return 4 })
	m.ObserveSend(1, 0)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		"castmail_web_mailings_sent_total 1",
		"castmail_web_sessions_active 4",
		"castmail_web_uptime_seconds",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestCategorizeStatus(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{500, "server_error"},
		{502, "server_error"},
		{401, "auth_error"},
		{403, "auth_error"},
		{404, "not_found"},
		{400, "bad_request"},
		{413, "too_large"},
		{422, "client_error"},
		{200, "unknown"},
	}

	for _, tt := range tests {
		if got := categorizeStatus(tt.status); got != tt.want {
			t.Errorf("categorizeStatus(%d) = %s, want %s", tt.status, got, tt.want)
		}
	}
}
