package handlers

import (
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/foxzi/castmail/internal/web/castmail"
	"github.com/foxzi/castmail/internal/web/contacts"
	"github.com/foxzi/castmail/internal/web/history"
)

type dashboardPage struct {
	layout
	Summary       contacts.Summary
	ContactsError string
	TotalSends    int
	Recent        []*history.Entry
	HistoryError  string
	SelectedCount int
}

// Dashboard shows contact recency totals and recent sends. Contacts and
// history load concurrently; a failure in one leaves the other visible.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	sess := h.session(r)
	sess.Contacts.Reset()
	ctx := r.Context()
	data := dashboardPage{
		layout:        h.layout(sess, "Dashboard", "dashboard"),
		SelectedCount: sess.Selection.Len(),
	}

	// Loaders record failures on the page and never cancel each other.
	var g errgroup.Group

	g.Go(func() error {
		list, err := sess.Gateway.ListContacts(ctx)
		if err != nil {
			data.ContactsError = castmail.UserMessage(err, "backend unavailable")
			return fmt.Errorf("list contacts: %w", err)
		}
		data.Summary = contacts.Summarize(list, h.now())
		return nil
	})

	if h.history != nil {
		g.Go(func() error {
			recent, err := h.history.List(ctx, h.cfg.History.Limit)
			if err != nil {
				data.HistoryError = "history unavailable"
				return fmt.Errorf("list history: %w", err)
			}
			data.Recent = recent
			total, err := h.history.Count(ctx)
			if err != nil {
				return fmt.Errorf("count history: %w", err)
			}
			data.TotalSends = total
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		h.logger.Warn("dashboard partially loaded", "session", sess.ID, "error", err)
	}

	h.render(w, http.StatusOK, "dashboard", data)
}
