package importer

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/neilberkman/studychat/internal/core/models"
)

// ProgressCallback defines the interface for progress reporting
type ProgressCallback interface {
	Update(sessionTitle string, firstMsg string)
	Finish()
}

// ProgressReporter handles progress feedback during import
type ProgressReporter struct {
	writer    io.Writer
	total     int
	current   int
	startTime time.Time
}

// NewProgressReporter creates a new progress reporter
func NewProgressReporter(w io.Writer, total int) *ProgressReporter {
	return &ProgressReporter{
		writer:    w,
		total:     total,
		startTime: time.Now(),
	}
}

// Update advances the bar by one session
func (p *ProgressReporter) Update(sessionTitle string, firstMsg string) {
	p.current++
	if p.total <= 0 {
		return
	}

	pct := float64(p.current) / float64(p.total) * 100

	// Draw progress bar (40 chars wide)
	barWidth := 40
	filled := barWidth * p.current / p.total
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	displayText := sessionTitle
	if displayText == models.DefaultTitle && firstMsg != "" {
		displayText = firstMsg
	}
	displayText = runewidth.Truncate(strings.Join(strings.Fields(displayText), " "), 50, "...")

	_, _ = fmt.Fprintf(p.writer, "\r[%s] %3.0f%% (%d/%d) | %s\033[K",
		bar, pct, p.current, p.total, displayText)
}

// Finish completes the progress display
func (p *ProgressReporter) Finish() {
	elapsed := time.Since(p.startTime)
	_, _ = fmt.Fprintf(p.writer, "\nRead %d sessions in %s\n", p.current, elapsed.Round(time.Millisecond))
}
