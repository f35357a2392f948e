package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/neilberkman/studychat/internal/core/backend"
	"github.com/neilberkman/studychat/internal/core/kv"
	"github.com/neilberkman/studychat/internal/core/logging"
	"github.com/neilberkman/studychat/internal/core/models"
	"github.com/neilberkman/studychat/internal/core/sessions"
	"github.com/stretchr/testify/require"
)

type fakeAsker struct {
	mu    sync.Mutex
	calls []backend.Request
	resp  *backend.Response
	err   error
}

func (f *fakeAsker) Ask(_ context.Context, req backend.Request) (*backend.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	return f.resp, f.err
}

func (f *fakeAsker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func setup(t *testing.T, asker Asker) (*Controller, *sessions.Store) {
	t.Helper()
	store := sessions.New(kv.NewMemory())
	require.NoError(t, store.Initialize(context.Background()))
	return New(store, asker), store
}

func TestSend_Success(t *testing.T) {
	asker := &fakeAsker{resp: &backend.Response{
		Answer:  "A deadlock is...",
		Sources: []string{"os/unit3.pdf"},
		Mode:    "rag",
	}}
	c, store := setup(t, asker)
	c.SetInput("  Explain deadlock  ")

	reply, err := c.Send(context.Background())
	require.NoError(t, err)
	require.Equal(t, "A deadlock is...", reply.Text)

	msgs := store.Active().Messages
	require.Len(t, msgs, 3)
	require.Equal(t, models.SenderUser, msgs[1].Sender)
	require.Equal(t, "Explain deadlock", msgs[1].Text)
	require.Equal(t, models.SenderAI, msgs[2].Sender)
	require.Equal(t, models.ModeRAG, msgs[2].Mode)
	require.Equal(t, []string{"os/unit3.pdf"}, msgs[2].Sources)
	require.False(t, msgs[2].ShowsGeneralDisclaimer())

	require.Equal(t, "Explain deadlock", store.Active().Title)
	require.Empty(t, c.Input())
	require.False(t, c.Busy())
	require.Equal(t, 1, asker.callCount())
	require.True(t, asker.calls[0].UseRAG)
}

func TestSend_ErrorPath(t *testing.T) {
	asker := &fakeAsker{err: errors.New("connection refused")}
	c, store := setup(t, asker)
	before := len(store.Active().Messages)
	c.SetInput("Explain deadlock")

	reply, err := c.Send(context.Background())
	require.NoError(t, err)
	require.True(t, reply.IsError)

	msgs := store.Active().Messages
	require.Len(t, msgs, before+2)
	require.Equal(t, models.SenderUser, msgs[before].Sender)
	require.Equal(t, "Explain deadlock", msgs[before].Text)
	require.Equal(t, models.SenderAI, msgs[before+1].Sender)
	require.True(t, msgs[before+1].IsError)
	require.Equal(t, ErrorText, msgs[before+1].Text)
	require.Empty(t, msgs[before+1].Mode)
	require.False(t, c.Busy())
	require.Equal(t, 1, asker.callCount())
}

func TestSend_FailureLoggedThroughInjectedLogger(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	store := sessions.New(kv.NewMemory())
	require.NoError(t, store.Initialize(context.Background()))
	c := New(store, &fakeAsker{err: errors.New("connection refused")}, WithLogger(log))
	c.SetInput("Explain deadlock")

	ctx := logging.WithRequestID(context.Background(), "req-42")
	reply, err := c.Send(ctx)
	require.NoError(t, err)
	require.True(t, reply.IsError)

	var failed map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(line, &entry))
		require.Equal(t, "req-42", entry["request_id"], "every controller log line carries the request id")
		if entry["msg"] == "question failed" {
			failed = entry
		}
	}
	require.NotNil(t, failed, "failure must be logged through the injected logger")
	require.Equal(t, "ERROR", failed["level"])
	require.Equal(t, store.Active().ID, failed["session_id"])
	require.Equal(t, "connection refused", failed["error"])
}

func TestSend_BackendReportedError(t *testing.T) {
	asker := &fakeAsker{resp: &backend.Response{Answer: "Error: quota exceeded", Mode: "error"}}
	c, _ := setup(t, asker)
	c.SetInput("hi")

	reply, err := c.Send(context.Background())
	require.NoError(t, err)
	require.True(t, reply.IsError)
	require.Equal(t, "Error: quota exceeded", reply.Text)
}

func TestSend_RejectedWhenEmpty(t *testing.T) {
	asker := &fakeAsker{}
	c, store := setup(t, asker)
	c.SetInput("   \n ")

	_, err := c.Send(context.Background())
	require.ErrorIs(t, err, ErrRejected)
	require.Len(t, store.Active().Messages, 1)
	require.Zero(t, asker.callCount())
}

func TestBegin_RejectedWhileBusy(t *testing.T) {
	asker := &fakeAsker{resp: &backend.Response{Answer: "ok", Mode: "general"}}
	c, store := setup(t, asker)
	ctx := context.Background()

	c.SetInput("first")
	p, err := c.Begin(ctx)
	require.NoError(t, err)
	require.True(t, c.Busy())

	c.SetInput("second")
	_, err = c.Begin(ctx)
	require.ErrorIs(t, err, ErrRejected)
	_, err = c.Send(ctx)
	require.ErrorIs(t, err, ErrRejected)
	require.Zero(t, asker.callCount())
	require.Len(t, store.Active().Messages, 2)

	resp, askErr := c.Ask(ctx, p)
	_, err = c.Finish(ctx, p, resp, askErr)
	require.NoError(t, err)
	require.False(t, c.Busy())
	require.Len(t, store.Active().Messages, 3)
	require.Equal(t, 1, asker.callCount())

	// Input typed while busy survives and can be sent next
	require.Equal(t, "second", c.Input())
}

func TestSend_ImageOnly(t *testing.T) {
	asker := &fakeAsker{resp: &backend.Response{Answer: "It is a circuit.", Mode: "general"}}
	c, store := setup(t, asker)
	c.Attach(&Attachment{Name: "circuit.png", Data: []byte("png"), URI: "file:///tmp/circuit.png"})

	_, err := c.Send(context.Background())
	require.NoError(t, err)

	req := asker.calls[0]
	require.Equal(t, ImageOnlyQuestion, req.Question)
	require.NotNil(t, req.File)
	require.Equal(t, "circuit.png", req.File.Name)

	msgs := store.Active().Messages
	require.Equal(t, "", msgs[1].Text)
	require.Equal(t, "file:///tmp/circuit.png", msgs[1].Image)
	require.Nil(t, c.Attachment())
	require.Equal(t, "Image: circuit.png", store.Active().Title)
}

func TestSend_AttachmentClearedOnFailure(t *testing.T) {
	c, _ := setup(t, &fakeAsker{err: errors.New("timeout")})
	c.SetInput("what is this")
	c.Attach(&Attachment{Name: "a.png", Data: []byte("x"), URI: "file:///a.png"})

	_, err := c.Send(context.Background())
	require.NoError(t, err)
	require.Nil(t, c.Attachment())
}

func TestSend_HistoryWindow(t *testing.T) {
	asker := &fakeAsker{resp: &backend.Response{Answer: "ok", Mode: "general"}}
	c, store := setup(t, asker)
	ctx := context.Background()

	sess := store.Active()
	prior := []models.Message{}
	for i := 0; i < 10; i++ {
		if i%2 == 0 {
			prior = append(prior, models.NewUserMessage(fmt.Sprintf("q%d", i), ""))
		} else {
			prior = append(prior, models.NewAnswer(fmt.Sprintf("a%d", i), nil, models.ModeGeneral))
		}
	}
	require.NoError(t, store.UpdateMessages(ctx, sess.ID, prior))

	c.SetInput("next")
	_, err := c.Send(ctx)
	require.NoError(t, err)

	want := strings.Join([]string{
		"Student: q4",
		"Assistant: a5",
		"Student: q6",
		"Assistant: a7",
		"Student: q8",
		"Assistant: a9",
	}, "\n")
	require.Equal(t, want, asker.calls[0].History)
}

func TestHistory_ShortConversation(t *testing.T) {
	msgs := []models.Message{
		models.NewGreeting(),
		models.NewUserMessage("hi", ""),
	}
	require.Equal(t, "Assistant: "+models.GreetingText+"\nStudent: hi", History(msgs, HistoryWindow))
	require.Equal(t, "", History(nil, HistoryWindow))
}

func TestModeTagging(t *testing.T) {
	tests := []struct {
		name           string
		resp           backend.Response
		wantMode       models.Mode
		wantDisclaimer bool
	}{
		{"general without sources", backend.Response{Answer: "x", Mode: "general"}, models.ModeGeneral, true},
		{"general with sources", backend.Response{Answer: "x", Mode: "general", Sources: []string{"a.pdf"}}, models.ModeGeneral, false},
		{"rag with sources", backend.Response{Answer: "x", Mode: "rag", Sources: []string{"a.pdf"}}, models.ModeRAG, false},
		{"rag without sources", backend.Response{Answer: "x", Mode: "rag"}, models.ModeRAG, false},
		{"unknown mode", backend.Response{Answer: "x", Mode: "hybrid"}, models.ModeGeneral, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := tt.resp
			c, _ := setup(t, &fakeAsker{resp: &resp})
			c.SetInput("q")

			reply, err := c.Send(context.Background())
			require.NoError(t, err)
			require.Equal(t, tt.wantMode, reply.Mode)
			require.Equal(t, tt.wantDisclaimer, reply.ShowsGeneralDisclaimer())
		})
	}
}

func TestSetMode_OnlyAffectsNextSend(t *testing.T) {
	asker := &fakeAsker{resp: &backend.Response{Answer: "ok", Mode: "rag"}}
	c, _ := setup(t, asker)
	ctx := context.Background()

	require.Equal(t, models.ModeRAG, c.Mode())
	ragHint := c.Placeholder()

	c.SetInput("one")
	p, err := c.Begin(ctx)
	require.NoError(t, err)

	require.Equal(t, models.ModeGeneral, c.ToggleMode())
	require.NotEqual(t, ragHint, c.Placeholder())
	require.True(t, p.Request.UseRAG)

	_, err = c.Finish(ctx, p, &backend.Response{Answer: "ok", Mode: "rag"}, nil)
	require.NoError(t, err)

	c.SetInput("two")
	_, err = c.Send(ctx)
	require.NoError(t, err)
	require.False(t, asker.calls[0].UseRAG)
}

func TestFinish_ReplyGoesToOriginatingSession(t *testing.T) {
	c, store := setup(t, &fakeAsker{})
	ctx := context.Background()
	origin := store.ActiveID()

	c.SetInput("question")
	p, err := c.Begin(ctx)
	require.NoError(t, err)

	other, err := c.NewChat(ctx)
	require.NoError(t, err)

	_, err = c.Finish(ctx, p, &backend.Response{Answer: "answer", Mode: "general"}, nil)
	require.NoError(t, err)

	got, ok := store.Get(origin)
	require.True(t, ok)
	require.Len(t, got.Messages, 3)

	fresh, _ := store.Get(other.ID)
	require.Len(t, fresh.Messages, 1)
}

func TestFinish_SessionDeletedWhileInFlight(t *testing.T) {
	c, store := setup(t, &fakeAsker{})
	ctx := context.Background()

	c.SetInput("question")
	p, err := c.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, store.DeleteSession(ctx, p.SessionID))

	_, err = c.Finish(ctx, p, &backend.Response{Answer: "late", Mode: "general"}, nil)
	require.NoError(t, err)
	require.False(t, c.Busy())
	require.Len(t, store.Active().Messages, 1)
}

func TestNewChat_ClearsPending(t *testing.T) {
	c, store := setup(t, &fakeAsker{})
	c.SetInput("draft")
	c.Attach(&Attachment{Name: "a.png"})
	before := store.ActiveID()

	sess, err := c.NewChat(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, before, sess.ID)
	require.Equal(t, sess.ID, store.ActiveID())
	require.Empty(t, c.Input())
	require.Nil(t, c.Attachment())
}

func TestLoadAttachment(t *testing.T) {
	dir := t.TempDir()

	png := filepath.Join(dir, "board.png")
	require.NoError(t, os.WriteFile(png, []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x0dIHDR"), 0644))
	a, err := LoadAttachment(png)
	require.NoError(t, err)
	require.Equal(t, "board.png", a.Name)
	require.True(t, strings.HasPrefix(a.URI, "file:///"))
	require.True(t, strings.HasSuffix(a.URI, "/board.png"))

	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("plain text"), 0644))
	_, err = LoadAttachment(txt)
	require.ErrorContains(t, err, "not an image")

	_, err = LoadAttachment(filepath.Join(dir, "missing.png"))
	require.Error(t, err)

	_, err = LoadAttachment(dir)
	require.ErrorContains(t, err, "directory")
}
