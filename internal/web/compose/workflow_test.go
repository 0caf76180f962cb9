package compose

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/foxzi/castmail/internal/web/castmail"
	"github.com/foxzi/castmail/internal/web/selection"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeGateway struct {
	calls      []string
	uploaded   []string
	recipients []string

	createErr error
	uploadErr map[string]error
	sendErr   error
	result    castmail.SendResult

	createStarted chan struct{}
	createRelease chan struct{}
}

func (f *fakeGateway) CreateMailing(ctx context.Context, draft castmail.MailingDraft) (*castmail.Mailing, error) {
	f.calls = append(f.calls, "create")
	if f.createStarted != nil {
		close(f.createStarted)
		<-f.createRelease
	}
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &castmail.Mailing{ID: 42}, nil
}

func (f *fakeGateway) UploadAttachment(ctx context.Context, mailingID int64, filename string, r io.Reader) (*castmail.AttachmentAck, error) {
	f.calls = append(f.calls, "attach:"+filename)
	if err := f.uploadErr[filename]; err != nil {
		return nil, err
	}
	if _, err := io.ReadAll(r); err != nil {
		return nil, err
	}
	f.uploaded = append(f.uploaded, filename)
	return &castmail.AttachmentAck{Filename: filename}, nil
}

func (f *fakeGateway) SendMailing(ctx context.Context, mailingID int64, recipients []string) (*castmail.SendResult, error) {
	f.calls = append(f.calls, "send")
	f.recipients = recipients
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	res := f.result
	return &res, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newWorkflow(gw *fakeGateway, selected ...string) (*Workflow, *selection.Store) {
	store := selection.NewStore()
	store.SetSelected(selected)
	return New(gw, store, DefaultOptions(), discardLogger()), store
}

func validRequest() Request {
	return Request{
		Subject:  "Profile",
		BodyHTML: "<p>Hello</p>",
	}
}

func TestMergeRecipientsDedup(t *testing.T) {
	got := MergeRecipients([]string{"a@x.com", "b@y.com"}, "b@y.com, c@z.com")
	assert.Equal(t, []string{"a@x.com", "b@y.com", "c@z.com"}, got)
}

func TestParseExtraEmails(t *testing.T) {
	assert.Nil(t, ParseExtraEmails(""))
	assert.Nil(t, ParseExtraEmails(" , ,"))
	assert.Equal(t, []string{"a@x.com", "b@y.com"}, ParseExtraEmails(" a@x.com ,,b@y.com , "))
}

func TestValidateAttachment(t *testing.T) {
	opts := DefaultOptions()

	err := ValidateAttachment(Attachment{Name: "resume.docx", Size: 1024}, opts)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, ReasonExtension, vErr.Reason)

	err = ValidateAttachment(Attachment{Name: "deck.pdf", Size: 21 << 20}, opts)
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, ReasonSize, vErr.Reason)
	assert.Contains(t, vErr.Message, "21 MiB")

	assert.NoError(t, ValidateAttachment(Attachment{Name: "deck.pptx", Size: 5 << 20}, opts))
	assert.NoError(t, ValidateAttachment(Attachment{Name: "DECK.PDF", Size: 20 << 20}, opts))
}

func TestValidateAttachmentsCount(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxAttachments = 1

	err := ValidateAttachments([]Attachment{{Name: "a.pdf"}, {Name: "b.pdf"}}, opts)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, ReasonCount, vErr.Reason)
}

func TestValidateText(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		body    string
		reason  string
	}{
		{"empty subject", "", "<p>hi</p>", ReasonSubject},
		{"one char subject", " a ", "<p>hi</p>", ReasonSubject},
		{"empty body", "Hi", "   ", ReasonBody},
		{"valid", "Hi", "ok", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateText(tt.subject, tt.body, 2)
			if tt.reason == "" {
				assert.NoError(t, err)
				return
			}
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.reason, vErr.Reason)
		})
	}
}

func TestSendEmptyRecipientsIssuesNoCall(t *testing.T) {
	gw := &fakeGateway{}
	wf, _ := newWorkflow(gw)

	req := validRequest()
	req.ExtraEmails = " , "
	_, err := wf.Send(context.Background(), req)

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, ReasonNoRecipients, vErr.Reason)
	assert.Empty(t, gw.calls)
}

func TestSendInvalidAttachmentIssuesNoCall(t *testing.T) {
	gw := &fakeGateway{}
	wf, store := newWorkflow(gw, "a@x.com")

	req := validRequest()
	req.Attachments = []Attachment{
		{Name: "deck.pdf", Data: []byte("%PDF")},
		{Name: "resume.docx", Data: []byte("doc")},
	}
	_, err := wf.Send(context.Background(), req)

	require.Error(t, err)
	assert.Empty(t, gw.calls)
	assert.Equal(t, 1, store.Len(), "selection kept for a retry")
}

func TestSendSequence(t *testing.T) {
	gw := &fakeGateway{result: castmail.SendResult{Sent: 2, Failed: 1}}
	wf, store := newWorkflow(gw, "a@x.com", "b@y.com")

	req := validRequest()
	req.ExtraEmails = "b@y.com, c@z.com"
	req.Attachments = []Attachment{
		{Name: "profile.pdf", Data: []byte("%PDF-1.4")},
		{Name: "reel.pptx", Data: []byte("PK")},
	}

	res, err := wf.Send(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []string{"create", "attach:profile.pdf", "attach:reel.pptx", "send"}, gw.calls)
	assert.Equal(t, []string{"a@x.com", "b@y.com", "c@z.com"}, gw.recipients)
	assert.Equal(t, &Result{MailingID: 42, Recipients: 3, Attachments: 2, Sent: 2, Failed: 1}, res)
	assert.Equal(t, 0, store.Len(), "selection cleared after a successful send")
	assert.False(t, wf.Sending())
}

func TestSendCreateFailure(t *testing.T) {
	gw := &fakeGateway{createErr: &castmail.APIError{StatusCode: 403, Detail: "CSRF Failed"}}
	wf, store := newWorkflow(gw, "a@x.com")

	_, err := wf.Send(context.Background(), validRequest())

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepCreate, stepErr.Step)
	assert.Equal(t, "CSRF Failed", castmail.UserMessage(err, "send failed"))
	assert.Equal(t, []string{"create"}, gw.calls)
	assert.Equal(t, 1, store.Len())
}

func TestSendAttachmentFailureAborts(t *testing.T) {
	gw := &fakeGateway{uploadErr: map[string]error{"b.pdf": errors.New("connection reset")}}
	wf, store := newWorkflow(gw, "a@x.com")

	req := validRequest()
	req.Attachments = []Attachment{
		{Name: "a.pdf", Data: []byte("1")},
		{Name: "b.pdf", Data: []byte("2")},
		{Name: "c.pdf", Data: []byte("3")},
	}
	_, err := wf.Send(context.Background(), req)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepAttach, stepErr.Step)
	assert.Equal(t, "b.pdf", stepErr.File)
	assert.Equal(t, int64(42), stepErr.MailingID)
	assert.Equal(t, []string{"create", "attach:a.pdf", "attach:b.pdf"}, gw.calls)
	assert.Equal(t, 1, store.Len())
}

func TestSendFailure(t *testing.T) {
	gw := &fakeGateway{sendErr: errors.New("timeout")}
	wf, store := newWorkflow(gw, "a@x.com")

	_, err := wf.Send(context.Background(), validRequest())

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, StepSend, stepErr.Step)
	assert.True(t, strings.HasPrefix(err.Error(), "send mailing 42"))
	assert.Equal(t, 1, store.Len())
}

func TestSendRejectsConcurrentSubmit(t *testing.T) {
	gw := &fakeGateway{
		createStarted: make(chan struct{}),
		createRelease: make(chan struct{}),
	}
	wf, _ := newWorkflow(gw, "a@x.com")

	done := make(chan error, 1)
	go func() {
		_, err := wf.Send(context.Background(), validRequest())
		done <- err
	}()

	<-gw.createStarted
	assert.True(t, wf.Sending())

	_, err := wf.Send(context.Background(), validRequest())
	assert.ErrorIs(t, err, ErrSendInProgress)

	close(gw.createRelease)
	require.NoError(t, <-done)
	assert.False(t, wf.Sending())
}
