package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/foxzi/castmail/internal/web/castmail"
	"github.com/foxzi/castmail/internal/web/contacts"
	"github.com/foxzi/castmail/internal/web/session"
)

// maxSheetBytes bounds a contact sheet upload
const maxSheetBytes = 10 << 20

type contactRow struct {
	castmail.Contact
	Checked      bool
	RecencyColor string
	LastSent     string
}

type contactsPage struct {
	layout
	Rows          []contactRow
	Error         string
	CheckedCount  int
	SelectedCount int
	Accept        string
}

// ContactsPage renders the editable contacts table
func (h *Handlers) ContactsPage(w http.ResponseWriter, r *http.Request) {
	sess := h.session(r)
	data := contactsPage{
		layout:        h.layout(sess, "Contacts", "contacts"),
		SelectedCount: sess.Selection.Len(),
		Accept:        strings.Join(contacts.SheetExtensions, ","),
	}

	list, err := sess.Contacts.Load(r.Context())
	if err != nil {
		h.logger.Warn("failed to load contacts", "session", sess.ID, "error", err)
		data.Error = castmail.UserMessage(err, "backend unavailable")
		h.render(w, http.StatusBadGateway, "contacts", data)
		return
	}

	now := h.now()
	for _, c := range list {
		row := contactRow{
			Contact:      c,
			Checked:      sess.Contacts.Checked(c.ID),
			RecencyColor: contacts.Classify(c.LastSentAt, now).Color(),
			LastSent:     lastSentLabel(c, now),
		}
		if row.Checked {
			data.CheckedCount++
		}
		data.Rows = append(data.Rows, row)
	}

	h.render(w, http.StatusOK, "contacts", data)
}

// ContactsSubmit applies the posted table and then runs the chosen action:
// apply, save or load_selection
func (h *Handlers) ContactsSubmit(w http.ResponseWriter, r *http.Request) {
	sess := h.session(r)
	ctx := r.Context()

	if err := r.ParseForm(); err != nil {
		sess.AddFlash("error", "Invalid form data")
		http.Redirect(w, r, "/contacts", http.StatusSeeOther)
		return
	}

	if !sess.Contacts.Hydrated() {
		if _, err := sess.Contacts.Load(ctx); err != nil {
			sess.AddFlash("error", castmail.UserMessage(err, "Failed to load contacts"))
			http.Redirect(w, r, "/contacts", http.StatusSeeOther)
			return
		}
	}

	if err := sess.Contacts.ApplyForm(r.PostForm); err != nil {
		sess.AddFlash("error", err.Error())
		http.Redirect(w, r, "/contacts", http.StatusSeeOther)
		return
	}

	switch r.PostForm.Get("action") {
	case "save":
		h.saveContacts(sess, r)
	case "load_selection":
		emails, err := sess.Contacts.LoadSelection()
		if errors.Is(err, contacts.ErrNothingSelected) {
			sess.AddFlash("info", "Check at least one contact with an email first.")
			break
		}
		sess.AddFlash("success", fmt.Sprintf("%d recipients loaded.", len(emails)))
		http.Redirect(w, r, "/compose", http.StatusSeeOther)
		return
	default:
		sess.AddFlash("info", "Changes applied. Save to keep them.")
	}

	http.Redirect(w, r, "/contacts", http.StatusSeeOther)
}

func (h *Handlers) saveContacts(sess *session.Session, r *http.Request) {
	err := sess.Contacts.Save(r.Context())
	switch {
	case err == nil:
		sess.AddFlash("success", "Contacts saved.")
	case errors.Is(err, contacts.ErrNothingToSave):
		sess.AddFlash("info", "Nothing to save.")
	default:
		h.logger.Warn("failed to save contacts", "session", sess.ID, "error", err)
		sess.AddFlash("error", castmail.UserMessage(err, "Failed to save contacts."))
	}
}

// ContactsUpload forwards a contact sheet to the backend for merging
func (h *Handlers) ContactsUpload(w http.ResponseWriter, r *http.Request) {
	sess := h.session(r)

	r.Body = http.MaxBytesReader(w, r.Body, maxSheetBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			sess.AddFlash("error", "The sheet is too large.")
		} else {
			sess.AddFlash("error", "Choose a file to upload.")
		}
		http.Redirect(w, r, "/contacts", http.StatusSeeOther)
		return
	}
	defer file.Close()

	res, err := sess.Contacts.Upload(r.Context(), header.Filename, file)
	switch {
	case errors.Is(err, contacts.ErrUnsupportedSheet):
		sess.AddFlash("error", "Upload an Excel (.xlsx, .xls) or CSV file.")
	case err != nil:
		h.logger.Warn("contact upload failed", "session", sess.ID, "file", header.Filename, "error", err)
		sess.AddFlash("error", castmail.UserMessage(err, "Upload failed."))
	default:
		h.metrics.ObserveUpload(res.Created, res.Updated)
		h.logger.Info("contacts uploaded",
			"session", sess.ID,
			"file", header.Filename,
			"created", res.Created,
			"updated", res.Updated,
		)
		sess.AddFlash("success", fmt.Sprintf("Created: %d, Updated: %d", res.Created, res.Updated))
	}

	http.Redirect(w, r, "/contacts", http.StatusSeeOther)
}

func lastSentLabel(c castmail.Contact, now time.Time) string {
	days, ok := contacts.DaysSince(c.LastSentAt, now)
	if !ok {
		return "never"
	}
	switch days {
	case 0:
		return "today"
	case 1:
		return "1 day ago"
	default:
		return fmt.Sprintf("%d days ago", days)
	}
}
