package search

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/neilberkman/studychat/internal/core/db"
	"github.com/neilberkman/studychat/internal/core/models"
)

func setupDB(t *testing.T) *db.DB {
	t.Helper()
	tmpfile, err := os.CreateTemp("", "test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Remove(tmpfile.Name()) })
	_ = tmpfile.Close()

	database, err := db.New(tmpfile.Name())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	march := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	june := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	sessions := []models.Session{
		{
			ID: "sess-os", Title: "Deadlocks", Timestamp: june,
			Messages: []models.Message{
				{ID: "m1", Sender: models.SenderUser, Text: "Explain deadlock prevention"},
				{ID: "m2", Sender: models.SenderAI, Mode: models.ModeRAG, Text: "Deadlock prevention removes one of the Coffman conditions", Sources: []string{"os/unit3.pdf"}},
				{ID: "m3", Sender: models.SenderUser, Text: "what about getUserById_v2?"},
				{ID: "m4", Sender: models.SenderAI, IsError: true, Text: "deadlock service unavailable"},
			},
		},
		{
			ID: "sess-dbms", Title: "Normalization", Timestamp: march,
			Messages: []models.Message{
				{ID: "m5", Sender: models.SenderUser, Text: "What is normalization?"},
				{ID: "m6", Sender: models.SenderAI, Mode: models.ModeGeneral, Text: "Normalization organizes tables to reduce redundancy, unlike a deadlock"},
			},
		},
	}
	if err := database.ReindexSessions(context.Background(), sessions); err != nil {
		t.Fatalf("ReindexSessions() error = %v", err)
	}
	return database
}

func ids(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.MessageID
	}
	return out
}

func TestSearch(t *testing.T) {
	database := setupDB(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		filters Filters
		want    []string
	}{
		{"stemmed match", Filters{Query: "deadlocks"}, []string{"m1", "m2", "m6"}},
		{"multiple words", Filters{Query: "deadlock prevention"}, []string{"m1", "m2"}},
		{"mode filter", Filters{Query: "deadlock", Mode: models.ModeRAG}, []string{"m2"}},
		{"general mode", Filters{Query: "deadlock", Mode: models.ModeGeneral}, []string{"m6"}},
		{"after filter", Filters{Query: "deadlock", After: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), HasAfter: true}, []string{"m1", "m2"}},
		{"before filter", Filters{Query: "deadlock", Before: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), HasBefore: true}, []string{"m6"}},
		{"special characters use LIKE", Filters{Query: "getUserById_v2"}, []string{"m3"}},
		{"fts operators are literal", Filters{Query: "normalization OR"}, nil},
		{"limit", Filters{Query: "deadlock", Limit: 1}, []string{"m1"}},
		{"no match", Filters{Query: "paging"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := Search(ctx, database, tt.filters)
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			got := ids(results)
			if len(got) != len(tt.want) {
				t.Fatalf("Search() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Search()[%d] = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestSearch_ResultFields(t *testing.T) {
	database := setupDB(t)

	results, err := Search(context.Background(), database, Filters{Query: "Coffman"})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	r := results[0]
	if r.SessionID != "sess-os" || r.SessionTitle != "Deadlocks" {
		t.Errorf("session = %s %q", r.SessionID, r.SessionTitle)
	}
	if r.Sender != models.SenderAI || r.Mode != models.ModeRAG {
		t.Errorf("sender/mode = %s/%s", r.Sender, r.Mode)
	}
	if r.Snippet == "" {
		t.Error("expected a snippet")
	}
	if !r.CreatedAt.Equal(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("CreatedAt = %v", r.CreatedAt)
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	database := setupDB(t)
	if _, err := Search(context.Background(), database, Filters{Query: "   "}); err == nil {
		t.Error("expected error for empty query")
	}
}

func TestParseQuery(t *testing.T) {
	now := time.Date(2024, 11, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		query     string
		wantQuery string
		wantMode  models.Mode
		wantAfter string
		wantBefore string
	}{
		{"plain", "deadlock prevention", "deadlock prevention", "", "", ""},
		{"mode", "mode:rag paging", "paging", models.ModeRAG, "", ""},
		{"unknown mode dropped", "mode:hybrid paging", "paging", "", "", ""},
		{"absolute after", "after:2024-11-01 paging", "paging", "", "2024-11-01", ""},
		{"date alias", "date:2024-10-01 paging", "paging", "", "2024-10-01", ""},
		{"before", "paging before:2024-09-30", "paging", "", "", "2024-09-30"},
		{"relative", "after:yesterday", "", "", "2024-11-14", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := ParseQuery(tt.query, now)
			if f.Query != tt.wantQuery {
				t.Errorf("Query = %q, want %q", f.Query, tt.wantQuery)
			}
			if f.Mode != tt.wantMode {
				t.Errorf("Mode = %q, want %q", f.Mode, tt.wantMode)
			}
			if tt.wantAfter == "" && f.HasAfter {
				t.Errorf("unexpected after %v", f.After)
			}
			if tt.wantAfter != "" && (!f.HasAfter || f.After.Format("2006-01-02") != tt.wantAfter) {
				t.Errorf("After = %v (%v), want %s", f.After, f.HasAfter, tt.wantAfter)
			}
			if tt.wantBefore != "" && (!f.HasBefore || f.Before.Format("2006-01-02") != tt.wantBefore) {
				t.Errorf("Before = %v (%v), want %s", f.Before, f.HasBefore, tt.wantBefore)
			}
		})
	}
}
