package models

import (
	"errors"
	"path"
	"strings"
	"time"
)

// DefaultTitle is the title of a session that has no user message yet
const DefaultTitle = "New Chat"

// maxTitleLen bounds titles derived from the first user message
const maxTitleLen = 30

const ellipsis = "..."

// Session is one persisted conversation thread
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
	Messages  []Message `json:"messages"`
}

// NewSession creates a session holding only the greeting.
func NewSession(now time.Time) Session {
	return Session{
		ID:        newID(),
		Title:     DefaultTitle,
		Timestamp: now,
		Messages:  []Message{NewGreeting()},
	}
}

// Validate checks if the session has required fields
func (s *Session) Validate() error {
	if s.ID == "" {
		return errors.New("id is required")
	}
	if len(s.Messages) == 0 {
		return errors.New("session has no messages")
	}
	for _, m := range s.Messages {
		if m.Sender != SenderUser && m.Sender != SenderAI {
			return errors.New("message " + m.ID + ": unknown sender " + string(m.Sender))
		}
		if m.Sender == SenderUser && (len(m.Sources) > 0 || m.Mode != "") {
			return errors.New("message " + m.ID + ": user messages carry no sources or mode")
		}
	}
	return nil
}

// HasDefaultTitle reports whether the title has not been derived yet
func (s Session) HasDefaultTitle() bool {
	return s.Title == DefaultTitle
}

// FirstUserMessage returns the earliest user turn, if any
func (s Session) FirstUserMessage() (Message, bool) {
	return firstUser(s.Messages)
}

func firstUser(msgs []Message) (Message, bool) {
	for _, m := range msgs {
		if m.Sender == SenderUser {
			return m, true
		}
	}
	return Message{}, false
}

// LastAnswer returns the most recent non-error assistant message
func (s Session) LastAnswer() (Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		m := s.Messages[i]
		if m.Sender == SenderAI && !m.IsError {
			return m, true
		}
	}
	return Message{}, false
}

// ApplyMessages replaces the message list. While the title is still the
// default it is derived once from the first user message; after that it
// never changes.
func (s *Session) ApplyMessages(msgs []Message) {
	s.Messages = msgs
	if !s.HasDefaultTitle() {
		return
	}
	if first, ok := firstUser(msgs); ok {
		s.Title = titleFor(first)
	}
}

func titleFor(m Message) string {
	if strings.TrimSpace(m.Text) == "" && m.Image != "" {
		return DeriveTitle("Image: " + path.Base(m.Image))
	}
	return DeriveTitle(m.Text)
}

// DeriveTitle turns the first user message into a session title. Runs of
// whitespace become one space; text longer than 30 characters keeps exactly
// its first 29 and gets an ellipsis.
func DeriveTitle(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= maxTitleLen {
		return text
	}
	return string(runes[:maxTitleLen-1]) + ellipsis
}

// Clone returns a copy whose message slice can be modified independently
func (s Session) Clone() Session {
	c := s
	c.Messages = append([]Message(nil), s.Messages...)
	return c
}
