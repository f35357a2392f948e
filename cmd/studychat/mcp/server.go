package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/neilberkman/studychat/internal/core/db"
	"github.com/neilberkman/studychat/internal/core/models"
	"github.com/neilberkman/studychat/internal/core/search"
)

const timeLayout = "2006-01-02 15:04:05"

// Loader returns the current session collection, newest first. It is
// called on every tool invocation so answers reflect writes made by a
// running chat client.
type Loader func(ctx context.Context) ([]models.Session, error)

// Linker turns a cited source id into its download URL
type Linker func(sourceID string) string

// SearchMessagesArgs defines arguments for the search_messages tool
type SearchMessagesArgs struct {
	Query      string `json:"query"`
	Limit      int    `json:"limit,omitempty"`
	Mode       string `json:"mode,omitempty"`
	AfterDate  string `json:"after_date,omitempty"`
	BeforeDate string `json:"before_date,omitempty"`
}

// GetSessionArgs defines arguments for the get_session tool
type GetSessionArgs struct {
	SessionID   string `json:"session_id"`
	SearchQuery string `json:"search_query,omitempty"`
}

// ListSessionsArgs defines arguments for the list_sessions tool
type ListSessionsArgs struct {
	Limit int    `json:"limit,omitempty"`
	Mode  string `json:"mode,omitempty"`
}

// SessionSummary represents a session in the list view
type SessionSummary struct {
	SessionID    string `json:"session_id"`
	Title        string `json:"title"`
	CreatedAt    string `json:"created_at"`
	MessageCount int    `json:"message_count"`
}

// SessionDetail is a full transcript
type SessionDetail struct {
	SessionID        string          `json:"session_id"`
	Title            string          `json:"title"`
	CreatedAt        string          `json:"created_at"`
	MessageCount     int             `json:"message_count"`
	Messages         []MessageDetail `json:"messages"`
	MatchingMessages []MessageDetail `json:"matching_messages,omitempty"`
}

// MessageDetail represents a single message in a session
type MessageDetail struct {
	Role     string   `json:"role"`
	Text     string   `json:"text"`
	Mode     string   `json:"mode,omitempty"`
	Sources  []string `json:"sources,omitempty"`
	Image    string   `json:"image,omitempty"`
	IsError  bool     `json:"is_error,omitempty"`
	Sequence int      `json:"sequence"`
}

// MessageMatch is one search hit
type MessageMatch struct {
	SessionID    string `json:"session_id"`
	SessionTitle string `json:"session_title"`
	Role         string `json:"role"`
	Mode         string `json:"mode,omitempty"`
	Snippet      string `json:"snippet"`
	CreatedAt    string `json:"created_at"`
}

// NewServer builds the MCP server. database may be nil, in which case
// search_messages is not offered.
func NewServer(load Loader, database *db.DB, link Linker, version string) *server.MCPServer {
	s := server.NewMCPServer("studychat", version)

	listTool := mcp.NewTool("list_sessions",
		mcp.WithDescription("List study chat sessions, newest first"),
		mcp.WithNumber("limit",
			mcp.Description("Max sessions to return (default: 20)")),
		mcp.WithString("mode",
			mcp.Description("Only sessions with at least one answer in this mode: 'rag' or 'general'")),
	)
	s.AddTool(listTool, makeListSessionsHandler(load))

	detailTool := mcp.NewTool("get_session",
		mcp.WithDescription("Retrieve the full transcript of a study chat session, with source download links"),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session id (a unique prefix is accepted)")),
		mcp.WithString("search_query",
			mcp.Description("Optional case-insensitive term; matching messages are listed separately")),
	)
	s.AddTool(detailTool, makeGetSessionHandler(load, link))

	if database != nil {
		searchTool := mcp.NewTool("search_messages",
			mcp.WithDescription("Full-text search across all study chat messages. Supports mode and date filtering."),
			mcp.WithString("query",
				mcp.Required(),
				mcp.Description("Search terms")),
			mcp.WithNumber("limit",
				mcp.Description("Max matches to return (default: 20)")),
			mcp.WithString("mode",
				mcp.Description("Only answers in this mode: 'rag' or 'general'")),
			mcp.WithString("after_date",
				mcp.Description("Only sessions started after this date (e.g. '2025-01-01' or 'last week')")),
			mcp.WithString("before_date",
				mcp.Description("Only sessions started before this date")),
		)
		s.AddTool(searchTool, makeSearchMessagesHandler(database))
	}

	return s
}

// StartServer serves over stdio until the client disconnects
func StartServer(load Loader, database *db.DB, link Linker, version string) error {
	return server.ServeStdio(NewServer(load, database, link, version))
}

func decodeArgs(request mcp.CallToolRequest, dst interface{}) error {
	argsBytes, err := json.Marshal(request.Params.Arguments)
	if err != nil {
		return err
	}
	return json.Unmarshal(argsBytes, dst)
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	resultJSON, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(resultJSON)), nil
}

func makeListSessionsHandler(load Loader) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args ListSessionsArgs
		if err := decodeArgs(request, &args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		limit := args.Limit
		if limit <= 0 {
			limit = 20
		}
		var mode models.Mode
		if args.Mode != "" {
			m, ok := models.ParseMode(args.Mode)
			if !ok {
				return mcp.NewToolResultError(fmt.Sprintf("unknown mode %q", args.Mode)), nil
			}
			mode = m
		}

		all, err := load(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to load sessions: %v", err)), nil
		}

		sessions := []SessionSummary{}
		for _, sess := range all {
			if mode != "" && !hasAnswerInMode(sess, mode) {
				continue
			}
			sessions = append(sessions, SessionSummary{
				SessionID:    sess.ID,
				Title:        sess.Title,
				CreatedAt:    sess.Timestamp.Format(timeLayout),
				MessageCount: len(sess.Messages),
			})
			if len(sessions) >= limit {
				break
			}
		}

		return jsonResult(map[string]interface{}{"sessions": sessions})
	}
}

func hasAnswerInMode(sess models.Session, mode models.Mode) bool {
	for _, m := range sess.Messages {
		// The greeting is not an answer
		if m.Sender == models.SenderAI && !m.IsError && m.Mode == mode && m.Text != models.GreetingText {
			return true
		}
	}
	return false
}

func makeGetSessionHandler(load Loader, link Linker) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args GetSessionArgs
		if err := decodeArgs(request, &args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		if args.SessionID == "" {
			return mcp.NewToolResultError("session_id is required"), nil
		}

		all, err := load(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to load sessions: %v", err)), nil
		}

		sess, ok := findSession(all, args.SessionID)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("session not found: %s", args.SessionID)), nil
		}

		detail := SessionDetail{
			SessionID:    sess.ID,
			Title:        sess.Title,
			CreatedAt:    sess.Timestamp.Format(timeLayout),
			MessageCount: len(sess.Messages),
			Messages:     make([]MessageDetail, 0, len(sess.Messages)),
		}
		queryLower := strings.ToLower(strings.TrimSpace(args.SearchQuery))
		for i, m := range sess.Messages {
			md := MessageDetail{
				Role:     m.Role(),
				Text:     m.Text,
				Mode:     string(m.Mode),
				Image:    m.Image,
				IsError:  m.IsError,
				Sequence: i,
			}
			for _, src := range m.Sources {
				md.Sources = append(md.Sources, link(src))
			}
			detail.Messages = append(detail.Messages, md)

			if queryLower != "" && strings.Contains(strings.ToLower(m.Text), queryLower) {
				detail.MatchingMessages = append(detail.MatchingMessages, md)
			}
		}

		return jsonResult(detail)
	}
}

// findSession matches a full id first, then a unique prefix
func findSession(all []models.Session, ref string) (models.Session, bool) {
	var match *models.Session
	for i := range all {
		if all[i].ID == ref {
			return all[i], true
		}
		if strings.HasPrefix(all[i].ID, ref) {
			if match != nil {
				return models.Session{}, false
			}
			match = &all[i]
		}
	}
	if match == nil {
		return models.Session{}, false
	}
	return *match, true
}

func makeSearchMessagesHandler(database *db.DB) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args SearchMessagesArgs
		if err := decodeArgs(request, &args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		filters := search.Filters{Query: args.Query, Limit: args.Limit}
		if filters.Limit <= 0 {
			filters.Limit = 20
		}
		if args.Mode != "" {
			m, ok := models.ParseMode(args.Mode)
			if !ok {
				return mcp.NewToolResultError(fmt.Sprintf("unknown mode %q", args.Mode)), nil
			}
			filters.Mode = m
		}

		now := time.Now()
		w := search.NewDateParser()
		if args.AfterDate != "" {
			t := search.ParseDate(w, args.AfterDate, now)
			if t == nil {
				return mcp.NewToolResultError(fmt.Sprintf("unrecognized after_date %q", args.AfterDate)), nil
			}
			filters.After, filters.HasAfter = *t, true
		}
		if args.BeforeDate != "" {
			t := search.ParseDate(w, args.BeforeDate, now)
			if t == nil {
				return mcp.NewToolResultError(fmt.Sprintf("unrecognized before_date %q", args.BeforeDate)), nil
			}
			filters.Before, filters.HasBefore = *t, true
		}

		results, err := search.Search(ctx, database, filters)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
		}

		matches := []MessageMatch{}
		for _, r := range results {
			role := "Assistant"
			if r.Sender == models.SenderUser {
				role = "Student"
			}
			matches = append(matches, MessageMatch{
				SessionID:    r.SessionID,
				SessionTitle: r.SessionTitle,
				Role:         role,
				Mode:         string(r.Mode),
				Snippet:      r.Snippet,
				CreatedAt:    r.CreatedAt.Format(timeLayout),
			})
		}

		return jsonResult(map[string]interface{}{"matches": matches})
	}
}
