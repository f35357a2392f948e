// Package sessions owns the chat session collection and mirrors it to a
// durable key-value store after every mutation.
package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/neilberkman/studychat/internal/core/kv"
	"github.com/neilberkman/studychat/internal/core/logging"
	"github.com/neilberkman/studychat/internal/core/models"
)

// DefaultKey is the namespace key the collection is stored under
const DefaultKey = "studychat_sessions"

// ErrNotFound is returned when an operation names an unknown session
var ErrNotFound = errors.New("session not found")

// ErrInvalidMessages is returned when a message list would leave a session
// unloadable, for example an empty list
var ErrInvalidMessages = errors.New("invalid message list")

// Indexer receives the full collection after each successful write.
// The sqlite database implements it to keep its search mirror current.
type Indexer interface {
	ReindexSessions(ctx context.Context, sessions []models.Session) error
}

// Store is the authoritative session collection. Index 0 is the most
// recently created session.
type Store struct {
	mu       sync.Mutex
	kv       kv.Store
	key      string
	indexer  Indexer
	log      *slog.Logger
	now      func() time.Time
	sessions []models.Session
	activeID string
}

// Option configures a Store
type Option func(*Store)

// WithKey overrides the storage key
func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// WithIndexer registers a search mirror
func WithIndexer(ix Indexer) Option {
	return func(s *Store) { s.indexer = ix }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a store over the given durable backend. Call Initialize
// before use.
func New(store kv.Store, opts ...Option) *Store {
	s := &Store{
		kv:  store,
		key: DefaultKey,
		log: logging.Logger(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize reads the persisted collection once. A missing, empty or
// unreadable entry yields a single fresh session, which is persisted.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	loaded, err := s.read(ctx)
	if err != nil {
		s.log.Warn("discarding persisted sessions", "key", s.key, "error", err)
	}

	if len(loaded) > 0 {
		s.sessions = loaded
		s.activeID = loaded[0].ID
		s.log.Debug("sessions loaded", "count", len(loaded))
		return nil
	}

	fresh := models.NewSession(s.now())
	s.sessions = []models.Session{fresh}
	s.activeID = fresh.ID
	return s.persist(ctx)
}

func (s *Store) read(ctx context.Context) ([]models.Session, error) {
	return load(ctx, s.kv, s.key, s.log)
}

// Load reads a persisted collection without synthesizing anything. A
// missing key yields an empty collection. Sessions that fail validation
// are skipped; only an unparsable entry is an error.
func Load(ctx context.Context, store kv.Store, key string) ([]models.Session, error) {
	return load(ctx, store, key, logging.Logger())
}

func load(ctx context.Context, store kv.Store, key string, log *slog.Logger) ([]models.Session, error) {
	data, err := store.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sessions: %w", err)
	}

	var loaded []models.Session
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("parse sessions: %w", err)
	}
	valid := loaded[:0]
	for i := range loaded {
		if err := loaded[i].Validate(); err != nil {
			log.Warn("skipping invalid session", "index", i, "session_id", loaded[i].ID, "error", err)
			continue
		}
		valid = append(valid, loaded[i])
	}
	return valid, nil
}

// persist writes the whole collection. Callers hold mu.
func (s *Store) persist(ctx context.Context) error {
	data, err := json.Marshal(s.sessions)
	if err != nil {
		return fmt.Errorf("encode sessions: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, data); err != nil {
		s.log.Error("failed to persist sessions", "key", s.key, "error", err)
		return fmt.Errorf("persist sessions: %w", err)
	}

	if s.indexer != nil {
		if err := s.indexer.ReindexSessions(ctx, s.sessions); err != nil {
			// The search mirror is derived data; the write itself succeeded.
			s.log.Warn("failed to reindex sessions", "error", err)
		}
	}
	return nil
}

// CreateSession prepends a new session holding only the greeting and
// makes it active.
func (s *Store) CreateSession(ctx context.Context) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := models.NewSession(s.now())
	s.sessions = append([]models.Session{fresh}, s.sessions...)
	s.activeID = fresh.ID
	s.log.Info("session created", "session_id", fresh.ID)

	return fresh.Clone(), s.persist(ctx)
}

// LoadSession activates the session with the given id. Unknown ids leave
// the selection unchanged and report false.
func (s *Store) LoadSession(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(id) < 0 {
		return false
	}
	s.activeID = id
	return true
}

// DeleteSession removes a session and persists the result. Removing the
// last session synthesizes a fresh one; removing the active session
// activates the most recent remaining one.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	s.sessions = append(s.sessions[:i:i], s.sessions[i+1:]...)
	switch {
	case len(s.sessions) == 0:
		fresh := models.NewSession(s.now())
		s.sessions = []models.Session{fresh}
		s.activeID = fresh.ID
	case s.activeID == id:
		s.activeID = s.sessions[0].ID
	}
	s.log.Info("session deleted", "session_id", id)

	return s.persist(ctx)
}

// UpdateMessages replaces the message list of a session, deriving its
// title on the first user message. The in-memory change is kept even when
// the durable write fails. A list the session could not be stored with is
// refused with ErrInvalidMessages and nothing changes.
func (s *Store) UpdateMessages(ctx context.Context, id string, msgs []models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	next := s.sessions[i].Clone()
	next.ApplyMessages(append([]models.Message(nil), msgs...))
	if err := next.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidMessages, id, err)
	}

	s.sessions[i] = next
	return s.persist(ctx)
}

// Import appends sessions whose ids are not already present and persists
// once. It returns how many were added.
func (s *Store) Import(ctx context.Context, incoming []models.Session) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range incoming {
		if err := sess.Validate(); err != nil {
			return 0, fmt.Errorf("import %s: %w", sess.ID, err)
		}
	}

	added := 0
	for _, sess := range incoming {
		if s.indexOf(sess.ID) >= 0 {
			continue
		}
		s.sessions = append(s.sessions, sess.Clone())
		added++
	}
	if added == 0 {
		return 0, nil
	}
	return added, s.persist(ctx)
}

// Sessions returns a snapshot of the collection, newest first
func (s *Store) Sessions() []models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Session, len(s.sessions))
	for i, sess := range s.sessions {
		out[i] = sess.Clone()
	}
	return out
}

// Get returns a copy of one session
func (s *Store) Get(id string) (models.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return models.Session{}, false
	}
	return s.sessions[i].Clone(), true
}

// Active returns a copy of the active session
func (s *Store) Active() models.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(s.activeID)
	if i < 0 {
		return models.Session{}
	}
	return s.sessions[i].Clone()
}

// ActiveID returns the id of the active session
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Resolve maps a user-supplied reference to a session id. It accepts a
// full id, a unique id prefix, or a 1-based position in the list.
func (s *Store) Resolve(ref string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(ref) >= 0 {
		return ref, nil
	}

	if pos, err := strconv.Atoi(ref); err == nil && pos >= 1 && pos <= len(s.sessions) {
		return s.sessions[pos-1].ID, nil
	}

	match := ""
	for _, sess := range s.sessions {
		if ref != "" && strings.HasPrefix(sess.ID, ref) {
			if match != "" {
				return "", fmt.Errorf("ambiguous session reference %q", ref)
			}
			match = sess.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return match, nil
}

func (s *Store) indexOf(id string) int {
	for i := range s.sessions {
		if s.sessions[i].ID == id {
			return i
		}
	}
	return -1
}
