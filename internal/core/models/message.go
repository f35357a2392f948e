package models

import (
	"github.com/google/uuid"
)

// Sender identifies who authored a message
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// Mode is the answer mode the backend used for a reply
type Mode string

const (
	ModeRAG     Mode = "rag"
	ModeGeneral Mode = "general"
)

// ParseMode maps a wire/config value to a Mode.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeRAG:
		return ModeRAG, true
	case ModeGeneral:
		return ModeGeneral, true
	}
	return "", false
}

// Label is the short human name shown next to answers
func (m Mode) Label() string {
	switch m {
	case ModeRAG:
		return "RAG"
	case ModeGeneral:
		return "General"
	}
	return ""
}

// GreetingText is the first message of every new session.
const GreetingText = "Hello! I'm your study assistant. Ask me anything about your syllabus, notes or previous year papers, or attach an image of a problem you're stuck on."

// DisclaimerText marks general-knowledge answers that cite no files.
const DisclaimerText = "Generated using General Knowledge (no files used)"

// Message is one turn in a conversation. Messages are never modified once
// they are appended to a session.
type Message struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Sender  Sender   `json:"sender"`
	Image   string   `json:"image,omitempty"`
	Sources []string `json:"sources,omitempty"`
	Mode    Mode     `json:"mode,omitempty"`
	IsError bool     `json:"isError,omitempty"`
}

func newID() string {
	return uuid.NewString()
}

// NewGreeting builds the assistant greeting placed in every new session
func NewGreeting() Message {
	return Message{
		ID:     newID(),
		Text:   GreetingText,
		Sender: SenderAI,
		Mode:   ModeGeneral,
	}
}

// NewUserMessage builds a user turn. image is the displayable URI of an
// attachment, or empty.
func NewUserMessage(text, image string) Message {
	return Message{
		ID:     newID(),
		Text:   text,
		Sender: SenderUser,
		Image:  image,
	}
}

// NewAnswer builds an assistant reply
func NewAnswer(text string, sources []string, mode Mode) Message {
	m := Message{
		ID:     newID(),
		Text:   text,
		Sender: SenderAI,
		Mode:   mode,
	}
	if len(sources) > 0 {
		m.Sources = append([]string(nil), sources...)
	}
	return m
}

// NewErrorMessage builds the synthesized assistant message shown when a
// request fails.
func NewErrorMessage(text string) Message {
	return Message{
		ID:      newID(),
		Text:    text,
		Sender:  SenderAI,
		IsError: true,
	}
}

// Role is the speaker label used in the conversation history sent upstream
func (m Message) Role() string {
	if m.Sender == SenderUser {
		return "Student"
	}
	return "Assistant"
}

// HasSources reports whether the answer cites any documents
func (m Message) HasSources() bool {
	return len(m.Sources) > 0
}

// ShowsGeneralDisclaimer reports whether the "Generated using General
// Knowledge" note belongs under this message: a general-mode answer with no
// citations. Any citation suppresses it regardless of mode.
func (m Message) ShowsGeneralDisclaimer() bool {
	return m.Sender == SenderAI && !m.IsError && m.Mode == ModeGeneral && !m.HasSources()
}
