// Package export renders sessions to markdown through a mustache template.
package export

import (
	"fmt"
	"strings"

	"github.com/cbroglie/mustache"
	"github.com/neilberkman/studychat/internal/core/models"
)

// Linker turns a source id into a download URL
type Linker func(sourceID string) string

// Markdown renders sess with tmpl
func Markdown(sess models.Session, tmpl string, link Linker) (string, error) {
	out, err := mustache.Render(tmpl, templateData(sess, link))
	if err != nil {
		return "", fmt.Errorf("render export template: %w", err)
	}
	return strings.TrimRight(out, "\n") + "\n", nil
}

// Filename is the default export file name for a session
func Filename(sess models.Session) string {
	shortID := sess.ID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}
	return fmt.Sprintf("session-%s.md", shortID)
}

func templateData(sess models.Session, link Linker) map[string]interface{} {
	messages := make([]map[string]interface{}, 0, len(sess.Messages))
	for _, m := range sess.Messages {
		sources := make([]map[string]string, 0, len(m.Sources))
		for _, src := range m.Sources {
			sources = append(sources, map[string]string{
				"name": src,
				"url":  link(src),
			})
		}

		disclaimer := ""
		if m.ShowsGeneralDisclaimer() {
			disclaimer = models.DisclaimerText
		}

		text := m.Text
		if m.Sender == models.SenderUser && strings.TrimSpace(text) == "" && m.Image != "" {
			text = "_(image only)_"
		}

		messages = append(messages, map[string]interface{}{
			"id":          m.ID,
			"role":        m.Role(),
			"text":        text,
			"image":       m.Image,
			"is_error":    m.IsError,
			"mode_label":  m.Mode.Label(),
			"has_sources": len(sources) > 0,
			"sources":     sources,
			"disclaimer":  disclaimer,
		})
	}

	return map[string]interface{}{
		"id":            sess.ID,
		"title":         sess.Title,
		"created":       sess.Timestamp.Format("2006-01-02 15:04"),
		"message_count": len(sess.Messages),
		"messages":      messages,
	}
}
