package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"github.com/neilberkman/studychat/internal/core/backend"
	"github.com/neilberkman/studychat/internal/core/models"
	"golang.org/x/term"
)

func isStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func isStderrTTY() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// renderMarkdown renders answers for the terminal. Piped output and
// renderer failures fall back to the raw text.
func renderMarkdown(content string) string {
	if !isStdoutTTY() {
		return content
	}
	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 20 && w < width {
		width = w
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}
	rendered, err := r.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// truncate shortens single-line text to a display width
func truncate(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	return runewidth.Truncate(s, width, "...")
}

// formatTimestamp formats a timestamp in a human-friendly way
func formatTimestamp(t time.Time) string {
	if time.Since(t) < 30*24*time.Hour {
		return humanize.Time(t)
	}
	if t.Year() == time.Now().Year() {
		return t.Format("Jan 2")
	}
	return t.Format("Jan 2, 2006")
}

// printMessage writes one transcript entry
func printMessage(m models.Message, client *backend.Client) {
	label := m.Role()
	if m.Sender == models.SenderAI && !m.IsError && m.Mode != "" {
		label += " [" + m.Mode.Label() + "]"
	}
	if m.IsError {
		label += " [error]"
	}
	fmt.Printf("%s:\n", label)

	switch {
	case m.Sender == models.SenderUser:
		if m.Text != "" {
			fmt.Println(m.Text)
		}
		if m.Image != "" {
			fmt.Printf("(image: %s)\n", m.Image)
		}
	case m.IsError:
		fmt.Println(m.Text)
	default:
		fmt.Print(strings.TrimRight(renderMarkdown(m.Text), "\n") + "\n")
	}

	printSources(m, client)
	fmt.Println()
}

func printSources(m models.Message, client *backend.Client) {
	if m.HasSources() {
		fmt.Println("Sources:")
		for _, src := range m.Sources {
			fmt.Printf("  - %s\n    %s\n", src, client.DownloadURL(src))
		}
	}
	if m.ShowsGeneralDisclaimer() {
		fmt.Println(models.DisclaimerText)
	}
}
