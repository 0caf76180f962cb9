package castmail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

const (
	// CSRFCookieName is the backend cookie carrying the anti-forgery token
	CSRFCookieName = "csrftoken"
	// CSRFHeader is the request header the token is echoed in
	CSRFHeader = "X-CSRFToken"

	maxErrorBody = 64 << 10
)

// Observer is notified after every backend call
type Observer func(op string, duration time.Duration, err error)

// Client is a castMail backend API client
type Client struct {
	baseURL    string
	base       *url.URL
	httpClient *http.Client
	userAgent  string
	observer   Observer
}

// Option configures a Client
type Option func(*Client)

// WithTimeout sets the HTTP client timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithJar sets the cookie jar holding the backend session and CSRF cookies
func WithJar(jar http.CookieJar) Option {
	return func(c *Client) {
		c.httpClient.Jar = jar
	}
}

// WithTransport replaces the HTTP transport
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.httpClient.Transport = rt
	}
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithObserver registers a callback for call metrics
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// NewClient creates a new castMail API client
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base URL must be http or https, got %q", baseURL)
	}

	c := &Client{
		baseURL: baseURL,
		base:    base,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		userAgent: "castmail-web",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the backend base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// csrfToken reads the anti-forgery token from the cookie jar.
// An empty string means the cookie is absent and no header is sent.
func (c *Client) csrfToken() string {
	if c.httpClient.Jar == nil {
		return ""
	}
	for _, cookie := range c.httpClient.Jar.Cookies(c.base) {
		if cookie.Name != CSRFCookieName {
			continue
		}
		if v, err := url.PathUnescape(cookie.Value); err == nil {
			return v
		}
		return cookie.Value
	}
	return ""
}

func isMutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

// request performs a JSON request to the backend API
func (c *Client) request(ctx context.Context, op, method, path string, body any, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(op, req, result)
}

// upload performs a multipart request with a single "file" field
func (c *Client) upload(ctx context.Context, op, path, filename string, r io.Reader, result any) error {
	body, contentType, err := multipartFile("file", filename, r)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	return c.do(op, req, result)
}

func (c *Client) do(op string, req *http.Request, result any) (err error) {
	start := time.Now()
	if c.observer != nil {
		defer func() { c.observer(op, time.Since(start), err) }()
	}

	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if isMutating(req.Method) {
		if token := c.csrfToken(); token != "" {
			req.Header.Set(CSRFHeader, token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{StatusCode: resp.StatusCode, Detail: parseErrorDetail(data)}
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// multipartFile builds a multipart body with one file part whose content
// type is sniffed from the data.
func multipartFile(field, filename string, r io.Reader) (*bytes.Buffer, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", fmt.Errorf("read file: %w", err)
	}

	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(field), quoteEscaper.Replace(filename)))
	h.Set("Content-Type", mimetype.Detect(data).String())

	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("write part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}

	return buf, mw.FormDataContentType(), nil
}

// Ping checks that the backend answers
func (c *Client) Ping(ctx context.Context) error {
	return c.request(ctx, "ping", http.MethodGet, "/contacts/", nil, nil)
}

// ListContacts returns the full contact collection
func (c *Client) ListContacts(ctx context.Context) ([]Contact, error) {
	var contacts []Contact
	if err := c.request(ctx, "list_contacts", http.MethodGet, "/contacts/", nil, &contacts); err != nil {
		return nil, err
	}
	return contacts, nil
}

// UploadContactSheet submits a spreadsheet for server-side parsing and merge
func (c *Client) UploadContactSheet(ctx context.Context, filename string, r io.Reader) (*UploadResult, error) {
	var resp UploadResult
	if err := c.upload(ctx, "upload_contacts", "/contacts/upload/", filename, r, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SaveContacts replaces the edited contact set in one request
func (c *Client) SaveContacts(ctx context.Context, contacts []Contact) error {
	req := SaveContactsRequest{Contacts: contacts}
	return c.request(ctx, "save_contacts", http.MethodPut, "/contacts/save/", req, nil)
}

// CreateMailing creates a mailing record and returns its identifier
func (c *Client) CreateMailing(ctx context.Context, draft MailingDraft) (*Mailing, error) {
	var resp Mailing
	if err := c.request(ctx, "create_mailing", http.MethodPost, "/mailings/", draft, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UploadAttachment attaches one file to a previously created mailing
func (c *Client) UploadAttachment(ctx context.Context, mailingID int64, filename string, r io.Reader) (*AttachmentAck, error) {
	var resp AttachmentAck
	path := "/mailings/" + strconv.FormatInt(mailingID, 10) + "/upload/"
	if err := c.upload(ctx, "upload_attachment", path, filename, r, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendMailing triggers delivery of a mailing to the given recipients
func (c *Client) SendMailing(ctx context.Context, mailingID int64, recipients []string) (*SendResult, error) {
	var resp SendResult
	path := "/mailings/" + strconv.FormatInt(mailingID, 10) + "/send/"
	req := SendMailingRequest{Recipients: recipients}
	if err := c.request(ctx, "send_mailing", http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
