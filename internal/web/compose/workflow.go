// Package compose validates a mailing and drives the create, attach, send
// sequence against the backend.
package compose

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/foxzi/castmail/internal/web/castmail"
	"github.com/foxzi/castmail/internal/web/selection"
)

// ErrSendInProgress is returned when a send is submitted while another one
// from the same session is still running
var ErrSendInProgress = errors.New("a send is already in progress")

// Step names a stage of the send sequence
type Step string

const (
	StepCreate Step = "create"
	StepAttach Step = "attach"
	StepSend   Step = "send"
)

// StepError reports which stage of the send sequence failed. Stages after
// the failed one were not attempted.
type StepError struct {
	Step      Step
	MailingID int64
	File      string
	Err       error
}

func (e *StepError) Error() string {
	switch e.Step {
	case StepCreate:
		return fmt.Sprintf("create mailing: %v", e.Err)
	case StepAttach:
		return fmt.Sprintf("upload attachment %q to mailing %d: %v", e.File, e.MailingID, e.Err)
	default:
		return fmt.Sprintf("send mailing %d: %v", e.MailingID, e.Err)
	}
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Gateway is the part of the backend API the compose page uses
type Gateway interface {
	CreateMailing(ctx context.Context, draft castmail.MailingDraft) (*castmail.Mailing, error)
	UploadAttachment(ctx context.Context, mailingID int64, filename string, r io.Reader) (*castmail.AttachmentAck, error)
	SendMailing(ctx context.Context, mailingID int64, recipients []string) (*castmail.SendResult, error)
}

// Options holds compose limits
type Options struct {
	MaxAttachmentBytes int64
	MaxAttachments     int
	AllowedExtensions  []string
	MinTextLength      int
}

// DefaultOptions returns the stricter limits: PDF/PPTX up to 20 MiB,
// subject and body of at least 2 characters
func DefaultOptions() Options {
	return Options{
		MaxAttachmentBytes: 20 << 20,
		MaxAttachments:     10,
		AllowedExtensions:  []string{".pdf", ".pptx"},
		MinTextLength:      2,
	}
}

// Request is one submitted compose form
type Request struct {
	Subject     string
	BodyHTML    string
	ExtraEmails string
	Attachments []Attachment
}

// Result summarizes a completed send
type Result struct {
	MailingID   int64
	Recipients  int
	Attachments int
	Sent        int
	Failed      int
}

// Workflow drives sends for one session
type Workflow struct {
	gateway Gateway
	store   *selection.Store
	opts    Options
	logger  *slog.Logger

	mu      sync.Mutex
	sending bool
}

// New creates a compose workflow reading recipients from store
func New(gateway Gateway, store *selection.Store, opts Options, logger *slog.Logger) *Workflow {
	if len(opts.AllowedExtensions) == 0 {
		opts.AllowedExtensions = DefaultOptions().AllowedExtensions
	}
	if opts.MinTextLength <= 0 {
		opts.MinTextLength = 1
	}
	return &Workflow{
		gateway: gateway,
		store:   store,
		opts:    opts,
		logger:  logger,
	}
}

// Options returns the limits in effect
func (w *Workflow) Options() Options {
	return w.opts
}

// Selected returns the recipients currently loaded from the contacts page
func (w *Workflow) Selected() []string {
	return w.store.Selected()
}

// Sending reports whether a send is running
func (w *Workflow) Sending() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sending
}

// Validate checks a request and returns the final recipient list.
// It never touches the network.
func (w *Workflow) Validate(req Request) ([]string, error) {
	if err := ValidateText(req.Subject, req.BodyHTML, w.opts.MinTextLength); err != nil {
		return nil, err
	}
	if err := ValidateAttachments(req.Attachments, w.opts); err != nil {
		return nil, err
	}

	recipients := MergeRecipients(w.store.Selected(), req.ExtraEmails)
	if len(recipients) == 0 {
		return nil, &ValidationError{
			Field:   "extra_emails",
			Reason:  ReasonNoRecipients,
			Message: "The recipient list is empty.",
		}
	}
	return recipients, nil
}

// Send validates the request and runs create, attach, send in that order.
// The first failing stage aborts the rest; the selection is cleared only
// after the backend accepted the send.
func (w *Workflow) Send(ctx context.Context, req Request) (*Result, error) {
	if !w.begin() {
		return nil, ErrSendInProgress
	}
	defer w.end()

	recipients, err := w.Validate(req)
	if err != nil {
		return nil, err
	}

	mailing, err := w.gateway.CreateMailing(ctx, castmail.MailingDraft{
		Subject:  req.Subject,
		BodyHTML: req.BodyHTML,
	})
	if err != nil {
		return nil, &StepError{Step: StepCreate, Err: err}
	}

	for _, a := range req.Attachments {
		if _, err := w.gateway.UploadAttachment(ctx, mailing.ID, a.Name, bytes.NewReader(a.Data)); err != nil {
			w.logger.Warn("attachment upload failed, send aborted",
				"mailing_id", mailing.ID,
				"file", a.Name,
				"error", err,
			)
			return nil, &StepError{Step: StepAttach, MailingID: mailing.ID, File: a.Name, Err: err}
		}
	}

	sent, err := w.gateway.SendMailing(ctx, mailing.ID, recipients)
	if err != nil {
		return nil, &StepError{Step: StepSend, MailingID: mailing.ID, Err: err}
	}

	w.store.Clear()

	w.logger.Info("mailing sent",
		"mailing_id", mailing.ID,
		"recipients", len(recipients),
		"attachments", len(req.Attachments),
		"sent", sent.Sent,
		"failed", sent.Failed,
	)

	return &Result{
		MailingID:   mailing.ID,
		Recipients:  len(recipients),
		Attachments: len(req.Attachments),
		Sent:        sent.Sent,
		Failed:      sent.Failed,
	}, nil
}

func (w *Workflow) begin() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sending {
		return false
	}
	w.sending = true
	return true
}

func (w *Workflow) end() {
	w.mu.Lock()
	w.sending = false
	w.mu.Unlock()
}
