// Package session keeps per-browser workflow state in memory: the recipient
// selection, the editable contact rows and the compose state. Nothing here is
// persisted; a restart or TTL expiry starts a fresh session.
package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/foxzi/castmail/internal/web/compose"
	"github.com/foxzi/castmail/internal/web/contacts"
	"github.com/foxzi/castmail/internal/web/selection"
)

const DefaultCookieName = "castmail_session"

// Gateway is the backend API as seen by one session
type Gateway interface {
	contacts.Gateway
	compose.Gateway
}

// GatewayFactory builds a backend client for a new session
type GatewayFactory func() (Gateway, error)

// Flash is a one-shot notification shown on the next rendered page
type Flash struct {
	Kind    string
	Message string
}

// Session is the state of one browser session
type Session struct {
	ID        string
	CreatedAt time.Time
	Gateway   Gateway
	Selection *selection.Store
	Contacts  *contacts.Workflow
	Compose   *compose.Workflow

	mu            sync.Mutex
	authenticated bool
	flashes       []Flash
}

func newSession(id string, gw Gateway, opts compose.Options, logger *slog.Logger) *Session {
	store := selection.NewStore()
	return &Session{
		ID:        id,
		CreatedAt: time.Now(),
		Gateway:   gw,
		Selection: store,
		Contacts:  contacts.New(gw, store),
		Compose:   compose.New(gw, store, opts, logger.With("session", id)),
	}
}

// AddFlash queues a notification
func (s *Session) AddFlash(kind, message string) {
	s.mu.Lock()
	s.flashes = append(s.flashes, Flash{Kind: kind, Message: message})
	s.mu.Unlock()
}

// Flashes returns and clears queued notifications
func (s *Session) Flashes() []Flash {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.flashes
	s.flashes = nil
	return out
}

// SetAuthenticated marks the session as logged in
func (s *Session) SetAuthenticated(v bool) {
	s.mu.Lock()
	s.authenticated = v
	s.mu.Unlock()
}

// Authenticated reports whether the session passed the panel login
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// Config configures the session registry
type Config struct {
	Secret      string
	TTL         time.Duration
	MaxSessions int
	CookieName  string
	Secure      bool
	Compose     compose.Options
}

// Registry maps signed session cookies to sessions
type Registry struct {
	cfg        Config
	secret     []byte
	sessions   *expirable.LRU[string, *Session]
	newGateway GatewayFactory
	logger     *slog.Logger
}

// NewRegistry creates a session registry. Sessions idle past the TTL or
// beyond MaxSessions are evicted; every request through Ensure restarts the
// idle clock and re-issues the cookie.
func NewRegistry(cfg Config, newGateway GatewayFactory, logger *slog.Logger) (*Registry, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("session secret must be at least 32 characters")
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 1000
	}

	r := &Registry{
		cfg:        cfg,
		secret:     []byte(cfg.Secret),
		newGateway: newGateway,
		logger:     logger,
	}
	r.sessions = expirable.NewLRU[string, *Session](cfg.MaxSessions, func(id string, _ *Session) {
		r.logger.Debug("session evicted", "session", id)
	}, cfg.TTL)
	return r, nil
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	return r.sessions.Len()
}

// Lookup returns the session referenced by the request cookie
func (r *Registry) Lookup(req *http.Request) (*Session, bool) {
	cookie, err := req.Cookie(r.cfg.CookieName)
	if err != nil {
		return nil, false
	}
	id, ok := r.verify(cookie.Value)
	if !ok {
		return nil, false
	}
	return r.sessions.Get(id)
}

// Ensure returns the request's session, creating one when there is none.
// The session's expiry and cookie are refreshed either way.
func (r *Registry) Ensure(w http.ResponseWriter, req *http.Request) (*Session, error) {
	if s, ok := r.Lookup(req); ok {
		r.sessions.Add(s.ID, s)
		r.setCookie(w, s.ID)
		return s, nil
	}

	gw, err := r.newGateway()
	if err != nil {
		return nil, fmt.Errorf("create gateway: %w", err)
	}

	id := uuid.New().String()
	s := newSession(id, gw, r.cfg.Compose, r.logger)
	r.sessions.Add(id, s)
	r.setCookie(w, id)

	r.logger.Debug("session created", "session", id)
	return s, nil
}

func (r *Registry) setCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     r.cfg.CookieName,
		Value:    r.sign(id),
		Path:     "/",
		MaxAge:   int(r.cfg.TTL.Seconds()),
		HttpOnly: true,
		Secure:   r.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Destroy drops the request's session and expires the cookie
func (r *Registry) Destroy(w http.ResponseWriter, req *http.Request) {
	if cookie, err := req.Cookie(r.cfg.CookieName); err == nil {
		if id, ok := r.verify(cookie.Value); ok {
			r.sessions.Remove(id)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     r.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (r *Registry) sign(id string) string {
	mac := hmac.New(sha256.New, r.secret)
	mac.Write([]byte(id))
	return id + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (r *Registry) verify(value string) (string, bool) {
	id, _, found := strings.Cut(value, ".")
	if !found || id == "" {
		return "", false
	}
	expected := r.sign(id)
	if !hmac.Equal([]byte(expected), []byte(value)) {
		return "", false
	}
	return id, true
}
