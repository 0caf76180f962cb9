package castmail

import "time"

// Contact represents one addressable person in the mailing list
type Contact struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	Company         string     `json:"company"`
	Role            string     `json:"role"`
	Email           string     `json:"email"`
	IsActiveProject bool       `json:"is_active_project"`
	Notes           string     `json:"notes"`
	LastSentAt      *time.Time `json:"last_sent_at"`
}

// Sendable reports whether the contact can receive a mailing
func (c Contact) Sendable() bool {
	return c.Email != ""
}

// UploadResult represents the outcome of a contact sheet merge
type UploadResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// SaveContactsRequest represents bulk contact save request
type SaveContactsRequest struct {
	Contacts []Contact `json:"contacts"`
}

// MailingDraft represents the subject and body of a mailing
type MailingDraft struct {
	Subject  string `json:"subject"`
	BodyHTML string `json:"body_html"`
}

// Mailing represents a created mailing record
type Mailing struct {
	ID int64 `json:"id"`
}

// AttachmentAck represents the backend acknowledgement of an attachment upload.
// The backend decides what it returns; every field is optional.
type AttachmentAck struct {
	ID       int64  `json:"id,omitempty"`
	Filename string `json:"filename,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// SendMailingRequest represents mailing send request
type SendMailingRequest struct {
	Recipients []string `json:"recipients"`
}

// SendResult represents per-recipient delivery counts
type SendResult struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}
