package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/foxzi/castmail/internal/web/castmail"
	"github.com/foxzi/castmail/internal/web/compose"
	"github.com/foxzi/castmail/internal/web/history"
	"github.com/foxzi/castmail/internal/web/session"
)

// multipart overhead allowed on top of the attachment limits
const composeFormSlack = 1 << 20

type composeForm struct {
	Subject     string
	BodyHTML    string
	ExtraEmails string
}

type composePage struct {
	layout
	Form       composeForm
	Selected   []string
	Error      string
	ErrorField string
	Sending    bool
	MaxSize    int64
	MaxFiles   int
	Extensions string
	Accept     string
}

func (h *Handlers) composePage(sess *session.Session, form composeForm) composePage {
	opts := sess.Compose.Options()
	return composePage{
		layout:     h.layout(sess, "Compose", "compose"),
		Form:       form,
		Selected:   sess.Compose.Selected(),
		Sending:    sess.Compose.Sending(),
		MaxSize:    opts.MaxAttachmentBytes,
		MaxFiles:   opts.MaxAttachments,
		Extensions: strings.ToUpper(strings.ReplaceAll(strings.Join(opts.AllowedExtensions, "/"), ".", "")),
		Accept:     strings.Join(opts.AllowedExtensions, ","),
	}
}

func (h *Handlers) defaultForm() composeForm {
	return composeForm{
		Subject:  h.cfg.Compose.DefaultSubject,
		BodyHTML: h.cfg.Compose.DefaultBody,
	}
}

// ComposePage renders the compose form prefilled with the configured defaults.
// Leaving the contacts page discards its unsaved rows.
func (h *Handlers) ComposePage(w http.ResponseWriter, r *http.Request) {
	sess := h.session(r)
	sess.Contacts.Reset()
	h.render(w, http.StatusOK, "compose", h.composePage(sess, h.defaultForm()))
}

// ComposeSubmit validates and sends a mailing. On success the dashboard shows
// the backend's counts; on failure the form comes back with the input intact.
func (h *Handlers) ComposeSubmit(w http.ResponseWriter, r *http.Request) {
	sess := h.session(r)
	opts := sess.Compose.Options()

	if opts.MaxAttachments > 0 && opts.MaxAttachmentBytes > 0 {
		limit := int64(opts.MaxAttachments)*opts.MaxAttachmentBytes + composeFormSlack
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			// the body was cut off, so the typed fields are gone
			data := h.composePage(sess, h.defaultForm())
			data.Error = "The attachments are too large."
			data.ErrorField = "attachments"
			h.render(w, http.StatusRequestEntityTooLarge, "compose", data)
			return
		}
		data := h.composePage(sess, h.defaultForm())
		data.Error = "Invalid form data"
		h.render(w, http.StatusBadRequest, "compose", data)
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	form := composeForm{
		Subject:     r.FormValue("subject"),
		BodyHTML:    r.FormValue("body_html"),
		ExtraEmails: r.FormValue("extra_emails"),
	}

	var files []*multipart.FileHeader
	if r.MultipartForm != nil {
		files = r.MultipartForm.File["attachments"]
	}
	attachments, err := readAttachments(files, opts.MaxAttachmentBytes)
	if err != nil {
		h.logger.Error("failed to read attachments", "session", sess.ID, "error", err)
		data := h.composePage(sess, form)
		data.Error = "Failed to read the attachments."
		data.ErrorField = "attachments"
		h.render(w, http.StatusBadRequest, "compose", data)
		return
	}

	res, err := sess.Compose.Send(r.Context(), compose.Request{
		Subject:     form.Subject,
		BodyHTML:    form.BodyHTML,
		ExtraEmails: form.ExtraEmails,
		Attachments: attachments,
	})
	if err != nil {
		h.composeFailed(w, sess, form, err)
		return
	}

	h.metrics.ObserveSend(res.Sent, res.Failed)
	h.recordHistory(r, form.Subject, res)
	sess.Contacts.Reset()

	sess.AddFlash("success", fmt.Sprintf("Sent: %d / Failed: %d", res.Sent, res.Failed))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handlers) composeFailed(w http.ResponseWriter, sess *session.Session, form composeForm, err error) {
	data := h.composePage(sess, form)

	var vErr *compose.ValidationError
	var stepErr *compose.StepError
	status := http.StatusBadGateway

	switch {
	case errors.As(err, &vErr):
		h.metrics.ObserveValidationReject(vErr.Reason)
		data.Error = vErr.Message
		data.ErrorField = vErr.Field
		status = http.StatusUnprocessableEntity
	case errors.Is(err, compose.ErrSendInProgress):
		data.Error = "A send is already in progress."
		status = http.StatusConflict
	case errors.As(err, &stepErr):
		h.metrics.ObserveSendFailure(string(stepErr.Step))
		h.logger.Warn("send failed", "session", sess.ID, "step", stepErr.Step, "error", err)
		data.Error = castmail.UserMessage(err, stepFallback(stepErr))
	default:
		h.logger.Error("send failed", "session", sess.ID, "error", err)
		data.Error = castmail.UserMessage(err, "Failed to send the mailing.")
	}

	h.render(w, status, "compose", data)
}

func stepFallback(e *compose.StepError) string {
	switch e.Step {
	case compose.StepCreate:
		return "Failed to create the mailing."
	case compose.StepAttach:
		return fmt.Sprintf("Failed to upload %s. Nothing was sent.", e.File)
	default:
		return "Failed to send the mailing."
	}
}

func (h *Handlers) recordHistory(r *http.Request, subject string, res *compose.Result) {
	if h.history == nil {
		return
	}
	err := h.history.Save(r.Context(), &history.Entry{
		MailingID:   res.MailingID,
		Subject:     subject,
		Recipients:  res.Recipients,
		Attachments: res.Attachments,
		Sent:        res.Sent,
		Failed:      res.Failed,
	})
	if err != nil {
		h.logger.Error("failed to record history", "mailing_id", res.MailingID, "error", err)
	}
}

// readAttachments loads the chosen files. Files over limit are not read;
// their declared size is enough for validation to reject them.
func readAttachments(files []*multipart.FileHeader, limit int64) ([]compose.Attachment, error) {
	var out []compose.Attachment
	for _, fh := range files {
		if fh.Filename == "" {
			continue
		}
		a := compose.Attachment{Name: fh.Filename, Size: fh.Size}
		if limit <= 0 || fh.Size <= limit {
			data, err := readFile(fh)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
			}
			a.Data = data
		}
		out = append(out, a)
	}
	return out, nil
}

func readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
