package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/foxzi/castmail/internal/web/castmail"
	"github.com/foxzi/castmail/internal/web/compose"
	"github.com/foxzi/castmail/internal/web/session"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRegistry(t *testing.T) *session.Registry {
	t.Helper()
	reg, err := session.NewRegistry(session.Config{
		Secret:  "0123456789abcdef0123456789abcdef",
		Compose: compose.DefaultOptions(),
	}, func() (session.Gateway, error) {
		return castmail.NewClient("http://backend.invalid/api")
	}, discardLogger())
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return reg
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("created"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/contacts", nil))

	out := buf.String()
	for _, want := range []string{`"msg":"http request"`, `"status":201`, `"path":"/contacts"`, `"bytes":7`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %s missing %s", out, want)
		}
	}
}

func TestRecovery(t *testing.T) {
	handler := Recovery(discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestSessionMiddleware(t *testing.T) {
	reg := newRegistry(t)

	var got *session.Session
	handler := Session(reg, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if got == nil {
		t.Fatal("session missing from context")
	}
	if len(rec.Result().Cookies()) != 1 {
		t.Errorf("expected session cookie to be set")
	}
}

func TestFromContextEmpty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if FromContext(req.Context()) != nil {
		t.Error("expected nil session")
	}
}

func TestRequireLogin(t *testing.T) {
	reg := newRegistry(t)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name     string
		enabled  bool
		authed   bool
		wantCode int
	}{
		{"disabled", false, false, http.StatusOK},
		{"anonymous", true, false, http.StatusSeeOther},
		{"logged in", true, true, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, err := reg.Ensure(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
			if err != nil {
				t.Fatal(err)
			}
			sess.SetAuthenticated(tt.authed)

			req := httptest.NewRequest(http.MethodGet, "/compose", nil)
			req = req.WithContext(WithSession(req.Context(), sess))
			rec := httptest.NewRecorder()
			RequireLogin(tt.enabled)(ok).ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantCode == http.StatusSeeOther && rec.Header().Get("Location") != "/auth/login" {
				t.Errorf("Location = %q", rec.Header().Get("Location"))
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !rl.Allow("10.0.0.1", 3, 10) {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
	}
	if rl.Allow("10.0.0.1", 3, 10) {
		t.Error("4th attempt within a minute should be rejected")
	}
	if !rl.Allow("10.0.0.2", 3, 10) {
		t.Error("other keys are independent")
	}

	now = now.Add(61 * time.Second)
	if !rl.Allow("10.0.0.1", 3, 10) {
		t.Error("minute window should reset")
	}

	now = now.Add(2 * time.Hour)
	rl.cleanup()
	if len(rl.counters) != 0 {
		t.Errorf("expected expired counters removed, got %d", len(rl.counters))
	}
}

func TestThrottle(t *testing.T) {
	rl := NewRateLimiter()
	handler := Throttle(rl, 1, 0, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = "192.0.2.1:5555"
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 429]", codes)
	}
}
