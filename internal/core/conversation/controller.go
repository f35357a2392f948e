// Package conversation turns user input into backend requests and
// reconciles the replies into the session store.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/neilberkman/studychat/internal/core/backend"
	"github.com/neilberkman/studychat/internal/core/logging"
	"github.com/neilberkman/studychat/internal/core/models"
)

const (
	// ImageOnlyQuestion is sent when an image is attached with no text
	ImageOnlyQuestion = "Analyze this image"
	// ErrorText replaces the answer when a request fails
	ErrorText = "Sorry, I couldn't reach the study assistant. Please check the backend is running and try again."
	// HistoryWindow is how many earlier messages are sent as context
	HistoryWindow = 6

	backendErrorMode = "error"
)

// ErrRejected is returned by Begin when there is nothing to send or a
// request is already outstanding.
var ErrRejected = errors.New("send rejected")

// Asker is the answering service
type Asker interface {
	Ask(ctx context.Context, req backend.Request) (*backend.Response, error)
}

// SessionStore is the part of the session store the controller drives
type SessionStore interface {
	Active() models.Session
	Get(id string) (models.Session, bool)
	CreateSession(ctx context.Context) (models.Session, error)
	UpdateMessages(ctx context.Context, id string, msgs []models.Message) error
}

// Pending is an accepted send awaiting its reply
type Pending struct {
	SessionID string
	Request   backend.Request
}

// Controller holds the pending input and the single in-flight request
type Controller struct {
	mu         sync.Mutex
	store      SessionStore
	asker      Asker
	log        *slog.Logger
	input      string
	attachment *Attachment
	busy       bool
	mode       models.Mode
}

// Option configures a Controller
type Option func(*Controller)

// WithLogger sets the logger used for send and reply events
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// New creates a controller in RAG mode
func New(store SessionStore, asker Asker, opts ...Option) *Controller {
	c := &Controller{
		store: store,
		asker: asker,
		log:   logging.Logger(),
		mode:  models.ModeRAG,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// logger tags the controller's logger with the request id carried by ctx
func (c *Controller) logger(ctx context.Context) *slog.Logger {
	return logging.WithContext(ctx, c.log)
}

func (c *Controller) SetInput(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.input = text
}

func (c *Controller) Input() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

// Attach sets the image for the next send, replacing any previous one
func (c *Controller) Attach(a *Attachment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attachment = a
}

func (c *Controller) ClearAttachment() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attachment = nil
}

func (c *Controller) Attachment() *Attachment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attachment
}

// SetMode selects the answer mode for the next send. It never affects a
// request already in flight.
func (c *Controller) SetMode(m models.Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = m
}

// ToggleMode flips between RAG and general and returns the new mode
func (c *Controller) ToggleMode() models.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == models.ModeRAG {
		c.mode = models.ModeGeneral
	} else {
		c.mode = models.ModeRAG
	}
	return c.mode
}

func (c *Controller) Mode() models.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Placeholder is the input hint for the current mode
func (c *Controller) Placeholder() string {
	if c.Mode() == models.ModeGeneral {
		return "Ask anything (general knowledge)..."
	}
	return "Ask about your syllabus, notes or papers..."
}

func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// NewChat creates and activates a fresh session and drops pending input
func (c *Controller) NewChat(ctx context.Context) (models.Session, error) {
	sess, err := c.store.CreateSession(ctx)

	c.mu.Lock()
	c.input = ""
	c.attachment = nil
	c.mu.Unlock()

	return sess, err
}

// Begin accepts the pending input: it appends the user message to the
// active session, clears the input and marks the controller busy. It
// returns ErrRejected when there is nothing to send or a request is
// already outstanding.
func (c *Controller) Begin(ctx context.Context) (*Pending, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	text := strings.TrimSpace(c.input)
	if c.busy || (text == "" && c.attachment == nil) {
		return nil, ErrRejected
	}

	sess := c.store.Active()
	if sess.ID == "" {
		return nil, fmt.Errorf("%w: no active session", ErrRejected)
	}

	req := backend.Request{
		Question: text,
		History:  History(sess.Messages, HistoryWindow),
		UseRAG:   c.mode == models.ModeRAG,
	}
	image := ""
	if c.attachment != nil {
		req.File = &backend.File{Name: c.attachment.Name, Data: c.attachment.Data}
		image = c.attachment.URI
		if text == "" {
			req.Question = ImageOnlyQuestion
		}
	}

	msgs := append(sess.Messages, models.NewUserMessage(text, image))
	if err := c.store.UpdateMessages(ctx, sess.ID, msgs); err != nil {
		// The message is in memory; only the durable write failed.
		c.logger(ctx).Warn("failed to persist user message", "session_id", sess.ID, "error", err)
	}

	c.input = ""
	c.busy = true

	c.logger(ctx).Info("question sent",
		"session_id", sess.ID,
		"use_rag", req.UseRAG,
		"has_image", req.File != nil,
	)
	return &Pending{SessionID: sess.ID, Request: req}, nil
}

// Finish reconciles the outcome of a pending request. Exactly one
// assistant message is appended to the originating session, if it still
// exists. The controller is idle and the attachment cleared afterwards.
func (c *Controller) Finish(ctx context.Context, p *Pending, resp *backend.Response, askErr error) (models.Message, error) {
	defer func() {
		c.mu.Lock()
		c.busy = false
		c.attachment = nil
		c.mu.Unlock()
	}()

	reply := replyFor(resp, askErr)
	if askErr != nil {
		c.logger(ctx).Error("question failed", "session_id", p.SessionID, "error", askErr)
	}

	sess, ok := c.store.Get(p.SessionID)
	if !ok {
		c.logger(ctx).Warn("session deleted before reply arrived", "session_id", p.SessionID)
		return reply, nil
	}

	msgs := append(sess.Messages, reply)
	if err := c.store.UpdateMessages(ctx, sess.ID, msgs); err != nil {
		return reply, err
	}
	return reply, nil
}

func replyFor(resp *backend.Response, err error) models.Message {
	if err != nil || resp == nil {
		return models.NewErrorMessage(ErrorText)
	}

	switch resp.Mode {
	case backendErrorMode:
		text := resp.Answer
		if text == "" {
			text = ErrorText
		}
		return models.NewErrorMessage(text)
	case string(models.ModeRAG):
		return models.NewAnswer(resp.Answer, resp.Sources, models.ModeRAG)
	default:
		return models.NewAnswer(resp.Answer, resp.Sources, models.ModeGeneral)
	}
}

// Send runs one full exchange synchronously
func (c *Controller) Send(ctx context.Context) (models.Message, error) {
	p, err := c.Begin(ctx)
	if err != nil {
		return models.Message{}, err
	}
	resp, askErr := c.asker.Ask(ctx, p.Request)
	return c.Finish(ctx, p, resp, askErr)
}

// Ask issues the request for a pending send
func (c *Controller) Ask(ctx context.Context, p *Pending) (*backend.Response, error) {
	return c.asker.Ask(ctx, p.Request)
}

// History renders the last n messages as "Student: ..." and
// "Assistant: ..." lines in chronological order.
func History(msgs []models.Message, n int) string {
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	lines := make([]string, len(msgs))
	for i, m := range msgs {
		lines[i] = m.Role() + ": " + m.Text
	}
	return strings.Join(lines, "\n")
}
