// Package backend is the HTTP client for the answering service.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/neilberkman/studychat/internal/core/logging"
)

const (
	// DefaultBaseURL is where the answering service listens by default
	DefaultBaseURL = "http://localhost:8000"
	// DefaultTimeout bounds one chat request
	DefaultTimeout = 60 * time.Second

	maxResponseBytes = 4 << 20
)

var (
	// ErrUnexpectedStatus wraps every non-2xx reply
	ErrUnexpectedStatus = errors.New("unexpected status from backend")
	// ErrMalformedResponse is returned when a reply is not the expected JSON
	ErrMalformedResponse = errors.New("malformed backend response")
)

// StatusError carries the status code and a short body excerpt
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%v: %d", ErrUnexpectedStatus, e.Code)
	}
	return fmt.Sprintf("%v: %d: %s", ErrUnexpectedStatus, e.Code, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrUnexpectedStatus }

// File is an attachment sent with a question
type File struct {
	Name string
	Data []byte
}

// Request is one /chat submission
type Request struct {
	Question string
	History  string
	UseRAG   bool
	File     *File
}

// Response is the decoded /chat reply. Mode is "rag", "general" or
// "error"; the service reports model failures with mode "error" and a
// 200 status.
type Response struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
	Mode    string   `json:"mode"`
}

// Client talks to one answering service
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New creates a client for baseURL. An empty baseURL uses DefaultBaseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		log:        logging.Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the service root without a trailing slash
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ask submits a question and decodes the answer
func (c *Client) Ask(ctx context.Context, req Request) (*Response, error) {
	body, contentType, err := encodeForm(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.log.Debug("chat response",
		"status", resp.StatusCode,
		"use_rag", req.UseRAG,
		"has_file", req.File != nil,
		"duration", time.Since(start),
	)

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var wire wireResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if wire.Answer == nil && wire.Mode != "error" {
		return nil, fmt.Errorf("%w: missing answer", ErrMalformedResponse)
	}

	out := Response{Sources: wire.Sources, Mode: wire.Mode}
	if wire.Answer != nil {
		out.Answer = *wire.Answer
	}
	return &out, nil
}

// wireResponse tells a missing answer apart from an empty one
type wireResponse struct {
	Answer  *string  `json:"answer"`
	Sources []string `json:"sources"`
	Mode    string   `json:"mode"`
}

func encodeForm(req Request) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := []struct{ name, value string }{
		{"question", req.Question},
		{"history", req.History},
		{"use_rag", strconv.FormatBool(req.UseRAG)},
	}
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", err
		}
	}

	if req.File != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, req.File.Name))
		h.Set("Content-Type", mimetype.Detect(req.File.Data).String())
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(req.File.Data); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(excerpt))}
}

// DownloadURL builds the link for a cited source. The whole identifier is
// escaped as one path segment, slashes included.
func (c *Client) DownloadURL(sourceID string) string {
	return c.baseURL + "/download/" + url.PathEscape(sourceID)
}
