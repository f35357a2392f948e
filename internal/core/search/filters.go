package search

import (
	"strings"
	"time"

	"github.com/neilberkman/studychat/internal/core/models"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// Filters represents parsed filters from a search query
type Filters struct {
	Query     string      // The actual search text
	Mode      models.Mode // Only answers in this mode
	After     time.Time   // Only sessions started after this date
	Before    time.Time   // Only sessions started before this date
	HasAfter  bool
	HasBefore bool
	Limit     int
}

// ParseQuery extracts filters from a search query string
// Supports:
//   - mode:rag, mode:general - filter answers by mode
//   - date:yesterday, date:last-week, date:2024-11-01 - sessions since a date
//   - after:yesterday, before:2024-11-01 - explicit date ranges
func ParseQuery(query string, now time.Time) Filters {
	filters := Filters{}
	w := NewDateParser()

	var queryParts []string
	for _, token := range strings.Fields(query) {
		switch {
		case strings.HasPrefix(token, "mode:"):
			if m, ok := models.ParseMode(strings.TrimPrefix(token, "mode:")); ok {
				filters.Mode = m
			}
			continue

		case strings.HasPrefix(token, "date:"), strings.HasPrefix(token, "after:"):
			dateStr := token[strings.Index(token, ":")+1:]
			if parsed := ParseDate(w, dateStr, now); parsed != nil {
				filters.After = *parsed
				filters.HasAfter = true
			}
			continue

		case strings.HasPrefix(token, "before:"):
			if parsed := ParseDate(w, strings.TrimPrefix(token, "before:"), now); parsed != nil {
				filters.Before = *parsed
				filters.HasBefore = true
			}
			continue
		}

		// Not a filter, add to query
		queryParts = append(queryParts, token)
	}

	filters.Query = strings.Join(queryParts, " ")
	return filters
}

// NewDateParser returns a natural-language date parser with English rules
func NewDateParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// ParseDate attempts to parse a date string using natural language parsing.
// Dashes stand in for spaces so "last-week" works inside a single token.
func ParseDate(w *when.Parser, dateStr string, now time.Time) *time.Time {
	// Try standard formats first; the natural-language rules would read
	// 2024-11-01 as a bare time
	formats := []string{
		"2006-01-02",
		"2006-01-02T15:04:05",
		time.RFC3339,
		"2006/01/02",
		"01/02/2006",
	}
	for _, format := range formats {
		if t, err := time.ParseInLocation(format, dateStr, now.Location()); err == nil {
			return &t
		}
	}

	natural := strings.ReplaceAll(dateStr, "-", " ")
	result, err := w.Parse(natural, now)
	if err == nil && result != nil {
		return &result.Time
	}

	return nil
}
