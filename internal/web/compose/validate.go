package compose

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
)

// ValidationError is a client-side rejection; no request has been issued
type ValidationError struct {
	Field   string
	Reason  string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Validation reasons, used as metric labels
const (
	ReasonSubject      = "subject"
	ReasonBody         = "body"
	ReasonExtension    = "extension"
	ReasonSize         = "size"
	ReasonCount        = "count"
	ReasonNoRecipients = "no_recipients"
)

// Attachment is a locally chosen file waiting to be uploaded
type Attachment struct {
	Name string
	Size int64
	Data []byte
}

func (a Attachment) size() int64 {
	if a.Size > 0 {
		return a.Size
	}
	return int64(len(a.Data))
}

// ValidateText checks the subject and body lengths
func ValidateText(subject, body string, minLen int) error {
	if len([]rune(strings.TrimSpace(subject))) < minLen {
		return &ValidationError{
			Field:   "subject",
			Reason:  ReasonSubject,
			Message: fmt.Sprintf("Subject must be at least %d characters.", minLen),
		}
	}
	if len([]rune(strings.TrimSpace(body))) < minLen {
		return &ValidationError{
			Field:   "body_html",
			Reason:  ReasonBody,
			Message: fmt.Sprintf("Body must be at least %d characters.", minLen),
		}
	}
	return nil
}

// ValidateAttachment checks a file's extension and size
func ValidateAttachment(a Attachment, opts Options) error {
	if !hasExtension(a.Name, opts.AllowedExtensions) {
		return &ValidationError{
			Field:   "attachments",
			Reason:  ReasonExtension,
			Message: fmt.Sprintf("%s: only %s files are allowed.", a.Name, extensionList(opts.AllowedExtensions)),
		}
	}
	if opts.MaxAttachmentBytes > 0 && a.size() > opts.MaxAttachmentBytes {
		return &ValidationError{
			Field:   "attachments",
			Reason:  ReasonSize,
			Message: tooLarge(a.Name, a.size(), opts.MaxAttachmentBytes),
		}
	}
	return nil
}

// ValidateAttachments checks the count and every file; the first failure aborts
func ValidateAttachments(files []Attachment, opts Options) error {
	if opts.MaxAttachments > 0 && len(files) > opts.MaxAttachments {
		return &ValidationError{
			Field:   "attachments",
			Reason:  ReasonCount,
			Message: fmt.Sprintf("At most %d attachments are allowed.", opts.MaxAttachments),
		}
	}
	for _, f := range files {
		if err := ValidateAttachment(f, opts); err != nil {
			return err
		}
	}
	return nil
}

func tooLarge(name string, size, limit int64) string {
	return fmt.Sprintf("%s is too large (%s, max %s).", name,
		humanize.IBytes(uint64(size)), humanize.IBytes(uint64(limit)))
}

func hasExtension(name string, allowed []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, a := range allowed {
		if ext == strings.ToLower(a) {
			return true
		}
	}
	return false
}

func extensionList(exts []string) string {
	names := make([]string, len(exts))
	for i, e := range exts {
		names[i] = strings.ToUpper(strings.TrimPrefix(e, "."))
	}
	return strings.Join(names, "/")
}
