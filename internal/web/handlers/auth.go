package handlers

import (
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

type loginPage struct {
	Error string
}

// LoginPage renders the login page
func (h *Handlers) LoginPage(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.Auth.Enabled() || h.session(r).Authenticated() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.render(w, http.StatusOK, "login", loginPage{})
}

// Login checks the panel password
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.Auth.Enabled() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	if err := r.ParseForm(); err != nil {
		h.render(w, http.StatusBadRequest, "login", loginPage{Error: "Invalid form data"})
		return
	}

	sess := h.session(r)
	password := r.PostForm.Get("password")
	if err := bcrypt.CompareHashAndPassword([]byte(h.cfg.Auth.PasswordHash), []byte(password)); err != nil {
		h.logger.Warn("failed login", "session", sess.ID, "ip", r.RemoteAddr)
		h.render(w, http.StatusUnauthorized, "login", loginPage{Error: "Invalid password"})
		return
	}

	sess.SetAuthenticated(true)
	h.logger.Info("login", "session", sess.ID, "ip", r.RemoteAddr)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Logout drops the session with all its workflow state
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	h.registry.Destroy(w, r)
	if h.cfg.Auth.Enabled() {
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
