// Package contacts implements the contacts page workflow: one-time hydration
// of editable rows, inline edits, bulk save, spreadsheet upload and handing
// the checked rows to the compose page.
package contacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/foxzi/castmail/internal/web/castmail"
	"github.com/foxzi/castmail/internal/web/selection"
)

var (
	ErrNothingToSave    = errors.New("no contacts to save")
	ErrNothingSelected  = errors.New("no contacts checked")
	ErrUnsupportedSheet = errors.New("upload an Excel (.xlsx, .xls) or CSV file")
	ErrUnknownContact   = errors.New("contact not found")
	ErrUnknownField     = errors.New("field is not editable")
)

// SheetExtensions are the spreadsheet extensions accepted for upload
var SheetExtensions = []string{".xlsx", ".xls", ".csv"}

// Editable contact fields as they appear in form input names
const (
	FieldName          = "name"
	FieldCompany       = "company"
	FieldRole          = "role"
	FieldEmail         = "email"
	FieldNotes         = "notes"
	FieldActiveProject = "is_active_project"
)

var textFields = []string{FieldName, FieldCompany, FieldRole, FieldEmail, FieldNotes}

// Gateway is the part of the backend API the contacts page uses
type Gateway interface {
	ListContacts(ctx context.Context) ([]castmail.Contact, error)
	UploadContactSheet(ctx context.Context, filename string, r io.Reader) (*castmail.UploadResult, error)
	SaveContacts(ctx context.Context, contacts []castmail.Contact) error
}

// Workflow holds the editable contact rows of one session
type Workflow struct {
	gateway Gateway
	store   *selection.Store

	mu       sync.Mutex
	rows     []castmail.Contact
	checked  map[int64]bool
	hydrated bool
}

// New creates a contacts workflow writing selections into store
func New(gateway Gateway, store *selection.Store) *Workflow {
	return &Workflow{
		gateway: gateway,
		store:   store,
		checked: make(map[int64]bool),
	}
}

// Load fetches the contact collection. The first successful fetch after
// creation, Reset or an upload becomes the local rows; later snapshots are
// ignored so in-progress edits are never overwritten.
func (w *Workflow) Load(ctx context.Context) ([]castmail.Contact, error) {
	fetched, err := w.gateway.ListContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.hydrated {
		w.rows = cloneContacts(fetched)
		w.hydrated = true
	}
	return cloneContacts(w.rows), nil
}

// Reset drops the local rows and checks so the next Load fetches a fresh
// snapshot. Unsaved edits are lost; the selection store is left alone.
func (w *Workflow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rows = nil
	w.checked = make(map[int64]bool)
	w.hydrated = false
}

// Hydrated reports whether local rows have been initialized
func (w *Workflow) Hydrated() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.hydrated
}

// Rows returns a copy of the local rows
func (w *Workflow) Rows() []castmail.Contact {
	w.mu.Lock()
	defer w.mu.Unlock()
	return cloneContacts(w.rows)
}

// Edit changes one field of one row locally
func (w *Workflow) Edit(id int64, field, value string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	idx := w.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("%w: %d", ErrUnknownContact, id)
	}
	return setField(&w.rows[idx], field, value)
}

// ApplyForm applies a submitted contacts table. Every row rendered in the form
// carries a "row-<id>" marker; checkboxes are absent from the form when
// unchecked, so they are only interpreted for marked rows.
func (w *Workflow) ApplyForm(values url.Values) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i := range w.rows {
		row := &w.rows[i]
		suffix := "-" + strconv.FormatInt(row.ID, 10)
		if !values.Has("row" + suffix) {
			continue
		}

		for _, field := range textFields {
			if values.Has(field + suffix) {
				if err := setField(row, field, values.Get(field+suffix)); err != nil {
					return err
				}
			}
		}
		row.IsActiveProject = values.Has(FieldActiveProject + suffix)
		w.checked[row.ID] = values.Has("checked" + suffix)
	}
	return nil
}

// SetChecked marks a row for sending
func (w *Workflow) SetChecked(id int64, checked bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.indexOf(id) < 0 {
		return fmt.Errorf("%w: %d", ErrUnknownContact, id)
	}
	w.checked[id] = checked
	return nil
}

// Checked reports whether a row is marked for sending
func (w *Workflow) Checked(id int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.checked[id]
}

// SelectedEmails returns emails of checked rows in row order
func (w *Workflow) SelectedEmails() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.selectedEmails()
}

func (w *Workflow) selectedEmails() []string {
	var emails []string
	for _, row := range w.rows {
		if w.checked[row.ID] && row.Sendable() {
			emails = append(emails, row.Email)
		}
	}
	return emails
}

// Save sends the entire local row collection to the backend
func (w *Workflow) Save(ctx context.Context) error {
	rows := w.Rows()
	if len(rows) == 0 {
		return ErrNothingToSave
	}
	if err := w.gateway.SaveContacts(ctx, rows); err != nil {
		return fmt.Errorf("save contacts: %w", err)
	}
	return nil
}

// Upload submits a contact spreadsheet for merging. Only .xlsx, .xls and
// .csv files are sent. After a successful merge the next Load re-hydrates.
func (w *Workflow) Upload(ctx context.Context, filename string, r io.Reader) (*castmail.UploadResult, error) {
	if !IsSheet(filename) {
		return nil, ErrUnsupportedSheet
	}

	res, err := w.gateway.UploadContactSheet(ctx, filename, r)
	if err != nil {
		return nil, fmt.Errorf("upload contacts: %w", err)
	}

	w.mu.Lock()
	w.hydrated = false
	w.mu.Unlock()

	return res, nil
}

// LoadSelection writes the checked emails into the selection store.
// Nothing happens when no row is checked.
func (w *Workflow) LoadSelection() ([]string, error) {
	w.mu.Lock()
	emails := w.selectedEmails()
	w.mu.Unlock()

	if len(emails) == 0 {
		return nil, ErrNothingSelected
	}
	w.store.SetSelected(emails)
	return emails, nil
}

// IsSheet reports whether filename has an accepted spreadsheet extension
func IsSheet(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range SheetExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func (w *Workflow) indexOf(id int64) int {
	for i := range w.rows {
		if w.rows[i].ID == id {
			return i
		}
	}
	return -1
}

func setField(c *castmail.Contact, field, value string) error {
	switch field {
	case FieldName:
		c.Name = value
	case FieldCompany:
		c.Company = value
	case FieldRole:
		c.Role = value
	case FieldEmail:
		c.Email = strings.TrimSpace(value)
	case FieldNotes:
		c.Notes = value
	case FieldActiveProject:
		b, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		c.IsActiveProject = b
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return nil
}

func parseBool(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "on", "true", "1", "yes":
		return true, nil
	case "", "off", "false", "0", "no":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", value)
}

func cloneContacts(in []castmail.Contact) []castmail.Contact {
	if in == nil {
		return nil
	}
	out := make([]castmail.Contact, len(in))
	copy(out, in)
	return out
}
