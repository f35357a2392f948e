// Package chatsessions reads session collections exported from the
// browser chat client's local storage.
package chatsessions

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrNoSessions is returned when the input holds no session array
var ErrNoSessions = errors.New("no session array found")

// ParsedSession is one session as the browser stored it
type ParsedSession struct {
	ID        string
	Title     string
	Timestamp time.Time
	Messages  []ParsedMessage
}

// ParsedMessage is one stored message
type ParsedMessage struct {
	ID      string
	Text    string
	Sender  string
	Image   string
	Sources []string
	Mode    string
	IsError bool
}

type rawSession struct {
	ID        flexString      `json:"id"`
	Title     string          `json:"title"`
	Timestamp json.RawMessage `json:"timestamp"`
	Messages  []rawMessage    `json:"messages"`
}

type rawMessage struct {
	ID      flexString `json:"id"`
	Text    string     `json:"text"`
	Sender  string     `json:"sender"`
	Image   string     `json:"image,omitempty"`
	Sources []string   `json:"sources,omitempty"`
	Mode    string     `json:"mode,omitempty"`
	IsError bool       `json:"isError,omitempty"`
}

// flexString accepts JSON strings and numbers; the browser client used
// Date.now() values as ids.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = flexString(n.String())
	return nil
}

// ParseFile parses an exported session file
func ParseFile(path string) (sessions []ParsedSession, err error) {
	file, ferr := os.Open(path)
	if ferr != nil {
		return nil, fmt.Errorf("failed to open file: %w", ferr)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close file: %w", cerr)
		}
	}()

	return Parse(file)
}

// Parse accepts three shapes: a bare session array, an object mapping a
// storage key to the array, or an object mapping a storage key to the
// array serialized as a string (how local storage holds it).
func Parse(r io.Reader) ([]ParsedSession, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	raw, err := findSessionArray(bytes.TrimSpace(data))
	if err != nil {
		return nil, err
	}

	out := make([]ParsedSession, 0, len(raw))
	for i, rs := range raw {
		ts, err := parseTimestamp(rs.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("session %d (%s): %w", i, rs.ID, err)
		}
		ps := ParsedSession{
			ID:        string(rs.ID),
			Title:     rs.Title,
			Timestamp: ts,
		}
		for _, rm := range rs.Messages {
			ps.Messages = append(ps.Messages, ParsedMessage{
				ID:      string(rm.ID),
				Text:    rm.Text,
				Sender:  strings.ToLower(strings.TrimSpace(rm.Sender)),
				Image:   rm.Image,
				Sources: rm.Sources,
				Mode:    strings.ToLower(strings.TrimSpace(rm.Mode)),
				IsError: rm.IsError,
			})
		}
		out = append(out, ps)
	}
	return out, nil
}

func findSessionArray(data []byte) ([]rawSession, error) {
	if len(data) == 0 {
		return nil, ErrNoSessions
	}

	switch data[0] {
	case '[':
		var sessions []rawSession
		if err := json.Unmarshal(data, &sessions); err != nil {
			return nil, fmt.Errorf("failed to parse sessions: %w", err)
		}
		return sessions, nil

	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, fmt.Errorf("failed to parse storage dump: %w", err)
		}
		// Deterministic order when several keys could match
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			v := bytes.TrimSpace(obj[k])
			if len(v) > 0 && v[0] == '"' {
				var inner string
				if err := json.Unmarshal(v, &inner); err != nil {
					continue
				}
				v = bytes.TrimSpace([]byte(inner))
			}
			if len(v) == 0 || v[0] != '[' {
				continue
			}
			var sessions []rawSession
			if err := json.Unmarshal(v, &sessions); err == nil && looksLikeSessions(sessions) {
				return sessions, nil
			}
		}
	}

	return nil, ErrNoSessions
}

func looksLikeSessions(s []rawSession) bool {
	for _, rs := range s {
		if rs.ID != "" || len(rs.Messages) > 0 {
			return true
		}
	}
	return false
}

// Layouts produced by JavaScript's Date string conversions
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"Mon Jan 02 2006 15:04:05 GMT-0700",
	"1/2/2006, 3:04:05 PM",
	"2/1/2006, 15:04:05",
	"2006-01-02 15:04:05",
}

func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, nil
	}

	if raw[0] != '"' {
		ms, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("bad timestamp %s", raw)
		}
		return time.UnixMilli(ms).UTC(), nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	// Date.toString() appends a zone name in parentheses
	if i := strings.Index(s, " ("); i > 0 {
		s = s[:i]
	}
	// Some locales use a narrow no-break space before AM/PM
	s = strings.ReplaceAll(s, "\u202f", " ")

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
