package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/neilberkman/studychat/internal/core/kv"
	"github.com/neilberkman/studychat/internal/core/models"
	"github.com/stretchr/testify/require"
)

type failingKV struct {
	kv.Store
	setErr error
}

func (f *failingKV) Set(ctx context.Context, key string, value []byte) error {
	if f.setErr != nil {
		return f.setErr
	}
	return f.Store.Set(ctx, key, value)
}

type recordingIndexer struct {
	calls int
	last  []models.Session
}

func (r *recordingIndexer) ReindexSessions(_ context.Context, s []models.Session) error {
	r.calls++
	r.last = s
	return nil
}

func fixedClock() func() time.Time {
	t := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Minute)
		return t
	}
}

func newStore(t *testing.T, store kv.Store, opts ...Option) *Store {
	t.Helper()
	s := New(store, append([]Option{WithClock(fixedClock())}, opts...)...)
	require.NoError(t, s.Initialize(context.Background()))
	return s
}

func TestInitialize_NoPersistedData(t *testing.T) {
	mem := kv.NewMemory()
	s := newStore(t, mem)

	all := s.Sessions()
	require.Len(t, all, 1)
	require.Equal(t, all[0].ID, s.ActiveID())
	require.Equal(t, models.DefaultTitle, all[0].Title)
	require.Len(t, all[0].Messages, 1)
	require.Equal(t, models.SenderAI, all[0].Messages[0].Sender)
	require.Equal(t, models.ModeGeneral, all[0].Messages[0].Mode)
	require.Empty(t, all[0].Messages[0].Sources)

	// The synthesized session is persisted
	_, err := mem.Get(context.Background(), DefaultKey)
	require.NoError(t, err)
}

func TestInitialize_CorruptDataTreatedAsAbsent(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "{{{"},
		{"empty array", "[]"},
		{"wrong shape", `{"id":"x"}`},
		{"invalid session", `[{"id":"","title":"t","messages":[]}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := kv.NewMemory()
			require.NoError(t, mem.Set(context.Background(), DefaultKey, []byte(tt.data)))

			s := newStore(t, mem)
			all := s.Sessions()
			require.Len(t, all, 1)
			require.Len(t, all[0].Messages, 1)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	s := newStore(t, mem)

	first := s.Active()
	require.NoError(t, s.UpdateMessages(ctx, first.ID, append(first.Messages,
		models.NewUserMessage("Explain paging", ""),
		models.NewAnswer("Paging splits memory...", []string{"os/notes.pdf"}, models.ModeRAG),
	)))
	second, err := s.CreateSession(ctx)
	require.NoError(t, err)

	reloaded := newStore(t, mem)
	require.Equal(t, second.ID, reloaded.ActiveID())

	want := s.Sessions()
	got := reloaded.Sessions()
	require.Len(t, got, len(want))
	for i := range want {
		require.Equal(t, want[i].ID, got[i].ID)
		require.Equal(t, want[i].Title, got[i].Title)
		require.True(t, want[i].Timestamp.Equal(got[i].Timestamp))
		require.Equal(t, want[i].Messages, got[i].Messages)
	}
}

func TestCreateSession_PrependsAndActivates(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, kv.NewMemory())
	original := s.ActiveID()

	created, err := s.CreateSession(ctx)
	require.NoError(t, err)

	all := s.Sessions()
	require.Len(t, all, 2)
	require.Equal(t, created.ID, all[0].ID)
	require.Equal(t, original, all[1].ID)
	require.Equal(t, created.ID, s.ActiveID())
	require.True(t, all[0].Timestamp.After(all[1].Timestamp))
}

func TestLoadSession(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, kv.NewMemory())
	older := s.ActiveID()
	newer, err := s.CreateSession(ctx)
	require.NoError(t, err)

	require.True(t, s.LoadSession(older))
	require.Equal(t, older, s.ActiveID())

	require.False(t, s.LoadSession("nope"))
	require.Equal(t, older, s.ActiveID())

	require.True(t, s.LoadSession(newer.ID))
	require.Equal(t, newer.ID, s.ActiveID())
}

func TestUpdateMessages_TitleDerivedOnce(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, kv.NewMemory())
	sess := s.Active()

	msgs := append(sess.Messages, models.NewUserMessage("What is the syllabus for Operating Systems this semester?", ""))
	require.NoError(t, s.UpdateMessages(ctx, sess.ID, msgs))

	got, ok := s.Get(sess.ID)
	require.True(t, ok)
	require.Equal(t, "What is the syllabus for Oper...", got.Title)

	msgs = append(got.Messages,
		models.NewAnswer("It covers...", nil, models.ModeGeneral),
		models.NewUserMessage("And the exam pattern?", ""),
	)
	require.NoError(t, s.UpdateMessages(ctx, sess.ID, msgs))

	got, _ = s.Get(sess.ID)
	require.Equal(t, "What is the syllabus for Oper...", got.Title)
	require.Len(t, got.Messages, 4)
}

func TestUpdateMessages_UnknownSession(t *testing.T) {
	s := newStore(t, kv.NewMemory())
	err := s.UpdateMessages(context.Background(), "missing", nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateMessages_RejectsInvalidList(t *testing.T) {
	badUser := models.NewUserMessage("hi", "")
	badUser.Mode = models.ModeRAG

	tests := []struct {
		name string
		msgs []models.Message
	}{
		{"empty", []models.Message{}},
		{"nil", nil},
		{"user message with mode", []models.Message{models.NewGreeting(), badUser}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			mem := kv.NewMemory()
			s := newStore(t, mem)
			before := s.Active()
			stored, err := mem.Get(ctx, DefaultKey)
			require.NoError(t, err)

			err = s.UpdateMessages(ctx, before.ID, tt.msgs)
			require.ErrorIs(t, err, ErrInvalidMessages)

			after, ok := s.Get(before.ID)
			require.True(t, ok)
			require.Equal(t, before.Messages, after.Messages)
			require.Equal(t, before.Title, after.Title)

			unchanged, err := mem.Get(ctx, DefaultKey)
			require.NoError(t, err)
			require.Equal(t, stored, unchanged)
		})
	}
}

func TestInitialize_SkipsInvalidSessions(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	s := newStore(t, mem)

	keep := s.Active()
	require.NoError(t, s.UpdateMessages(ctx, keep.ID, append(keep.Messages,
		models.NewUserMessage("Explain deadlock", ""),
	)))
	broken, err := s.CreateSession(ctx)
	require.NoError(t, err)

	// Write a collection where one session lost its messages
	all := s.Sessions()
	for i := range all {
		if all[i].ID == broken.ID {
			all[i].Messages = nil
		}
	}
	data, err := json.Marshal(all)
	require.NoError(t, err)
	require.NoError(t, mem.Set(ctx, DefaultKey, data))

	reloaded := newStore(t, mem)
	got := reloaded.Sessions()
	require.Len(t, got, 1)
	require.Equal(t, keep.ID, got[0].ID)
	require.Equal(t, "Explain deadlock", got[0].Title)
	require.Equal(t, keep.ID, reloaded.ActiveID())

	loaded, err := Load(ctx, mem, DefaultKey)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
}

func TestUpdateMessages_PersistFailureKeepsMemoryState(t *testing.T) {
	ctx := context.Background()
	store := &failingKV{Store: kv.NewMemory()}
	s := newStore(t, store)
	sess := s.Active()

	boom := errors.New("disk full")
	store.setErr = boom

	msgs := append(sess.Messages, models.NewUserMessage("hi", ""))
	err := s.UpdateMessages(ctx, sess.ID, msgs)
	require.ErrorIs(t, err, boom)

	got, _ := s.Get(sess.ID)
	require.Len(t, got.Messages, 2)
}

func TestDeleteSession(t *testing.T) {
	ctx := context.Background()

	t.Run("only session", func(t *testing.T) {
		s := newStore(t, kv.NewMemory())
		only := s.ActiveID()

		require.NoError(t, s.DeleteSession(ctx, only))

		all := s.Sessions()
		require.Len(t, all, 1)
		require.NotEqual(t, only, all[0].ID)
		require.Equal(t, all[0].ID, s.ActiveID())
		require.Len(t, all[0].Messages, 1)
	})

	t.Run("non-active session", func(t *testing.T) {
		s := newStore(t, kv.NewMemory())
		older := s.ActiveID()
		active, err := s.CreateSession(ctx)
		require.NoError(t, err)
		msgs := append(active.Messages, models.NewUserMessage("keep me", ""))
		require.NoError(t, s.UpdateMessages(ctx, active.ID, msgs))
		before := s.Active()

		require.NoError(t, s.DeleteSession(ctx, older))

		require.Equal(t, active.ID, s.ActiveID())
		require.Equal(t, before.Messages, s.Active().Messages)
		require.Len(t, s.Sessions(), 1)
	})

	t.Run("active session promotes most recent", func(t *testing.T) {
		s := newStore(t, kv.NewMemory())
		oldest := s.ActiveID()
		middle, err := s.CreateSession(ctx)
		require.NoError(t, err)
		newest, err := s.CreateSession(ctx)
		require.NoError(t, err)
		require.True(t, s.LoadSession(middle.ID))

		require.NoError(t, s.DeleteSession(ctx, middle.ID))

		require.Equal(t, newest.ID, s.ActiveID())
		ids := []string{}
		for _, sess := range s.Sessions() {
			ids = append(ids, sess.ID)
		}
		require.Equal(t, []string{newest.ID, oldest}, ids)
	})

	t.Run("unknown id", func(t *testing.T) {
		s := newStore(t, kv.NewMemory())
		before := s.Sessions()
		require.ErrorIs(t, s.DeleteSession(ctx, "missing"), ErrNotFound)
		require.Equal(t, before, s.Sessions())
	})

	t.Run("persisted immediately", func(t *testing.T) {
		mem := kv.NewMemory()
		s := newStore(t, mem)
		older := s.ActiveID()
		_, err := s.CreateSession(ctx)
		require.NoError(t, err)

		require.NoError(t, s.DeleteSession(ctx, older))

		data, err := mem.Get(ctx, DefaultKey)
		require.NoError(t, err)
		var persisted []models.Session
		require.NoError(t, json.Unmarshal(data, &persisted))
		require.Len(t, persisted, 1)
		require.NotEqual(t, older, persisted[0].ID)
	})
}

func TestIndexerReceivesEveryWrite(t *testing.T) {
	ctx := context.Background()
	ix := &recordingIndexer{}
	s := newStore(t, kv.NewMemory(), WithIndexer(ix))
	require.Equal(t, 1, ix.calls)

	_, err := s.CreateSession(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, ix.calls)
	require.Len(t, ix.last, 2)
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, kv.NewMemory())
	existing := s.Active()

	incoming := []models.Session{
		existing,
		models.NewSession(time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)),
	}
	added, err := s.Import(ctx, incoming)
	require.NoError(t, err)
	require.Equal(t, 1, added)
	require.Len(t, s.Sessions(), 2)
	require.Equal(t, existing.ID, s.ActiveID())

	added, err = s.Import(ctx, incoming)
	require.NoError(t, err)
	require.Zero(t, added)
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, kv.NewMemory())
	_, err := s.CreateSession(ctx)
	require.NoError(t, err)
	all := s.Sessions()

	id, err := s.Resolve(all[1].ID)
	require.NoError(t, err)
	require.Equal(t, all[1].ID, id)

	id, err = s.Resolve("2")
	require.NoError(t, err)
	require.Equal(t, all[1].ID, id)

	id, err = s.Resolve(all[0].ID[:8])
	require.NoError(t, err)
	require.Equal(t, all[0].ID, id)

	_, err = s.Resolve("zzzz-not-an-id")
	require.ErrorIs(t, err, ErrNotFound)
}
