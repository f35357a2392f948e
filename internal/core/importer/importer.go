package importer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neilberkman/studychat/internal/core/logging"
	"github.com/neilberkman/studychat/internal/core/models"
	"github.com/neilberkman/studychat/pkg/chatsessions"
)

// Target receives converted sessions. The session store implements it.
type Target interface {
	Import(ctx context.Context, sessions []models.Session) (int, error)
}

// Result summarizes one import
type Result struct {
	Parsed   int
	Added    int
	Skipped  int
	Messages int
}

// Importer handles importing browser exports into the session store
type Importer struct {
	target Target
	now    func() time.Time
}

// New creates a new importer
func New(target Target) *Importer {
	return &Importer{target: target, now: time.Now}
}

// ImportFile parses an export and merges it into the store. Sessions
// whose id already exists are skipped.
func (i *Importer) ImportFile(ctx context.Context, path string, progress ProgressCallback) (*Result, error) {
	parsed, err := chatsessions.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return i.Import(ctx, parsed, progress)
}

// Import converts parsed sessions and merges them into the store
func (i *Importer) Import(ctx context.Context, parsed []chatsessions.ParsedSession, progress ProgressCallback) (*Result, error) {
	log := logging.FromContext(ctx)
	res := &Result{Parsed: len(parsed)}

	converted := make([]models.Session, 0, len(parsed))
	for _, ps := range parsed {
		sess, dropped := i.Convert(ps)
		if dropped > 0 {
			log.Warn("dropped unreadable messages", "session_id", sess.ID, "count", dropped)
		}
		converted = append(converted, sess)
		res.Messages += len(sess.Messages)

		if progress != nil {
			first := ""
			if m, ok := sess.FirstUserMessage(); ok {
				first = m.Text
			}
			progress.Update(sess.Title, first)
		}
	}
	if progress != nil {
		progress.Finish()
	}

	added, err := i.target.Import(ctx, converted)
	if err != nil {
		return nil, fmt.Errorf("failed to store sessions: %w", err)
	}
	res.Added = added
	res.Skipped = len(converted) - added

	log.Info("import finished", "parsed", res.Parsed, "added", res.Added, "skipped", res.Skipped)
	return res, nil
}

// Convert maps a stored browser session onto the model. Messages with an
// unknown sender are dropped and counted.
func (i *Importer) Convert(ps chatsessions.ParsedSession) (models.Session, int) {
	sess := models.Session{
		ID:        ps.ID,
		Title:     ps.Title,
		Timestamp: ps.Timestamp,
	}
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.Timestamp.IsZero() {
		sess.Timestamp = i.now()
	}
	if sess.Title == "" {
		sess.Title = models.DefaultTitle
	}

	dropped := 0
	seen := make(map[string]bool)
	var msgs []models.Message
	for _, pm := range ps.Messages {
		m, ok := convertMessage(pm)
		if !ok {
			dropped++
			continue
		}
		if m.ID == "" || seen[m.ID] {
			m.ID = uuid.NewString()
		}
		seen[m.ID] = true
		msgs = append(msgs, m)
	}
	if len(msgs) == 0 {
		msgs = []models.Message{models.NewGreeting()}
	}

	sess.ApplyMessages(msgs)
	return sess, dropped
}

func convertMessage(pm chatsessions.ParsedMessage) (models.Message, bool) {
	m := models.Message{
		ID:   pm.ID,
		Text: pm.Text,
	}

	switch pm.Sender {
	case "user", "student":
		m.Sender = models.SenderUser
		m.Image = pm.Image
		return m, true
	case "ai", "bot", "assistant":
		m.Sender = models.SenderAI
	default:
		return models.Message{}, false
	}

	if pm.IsError {
		m.IsError = true
		return m, true
	}
	if len(pm.Sources) > 0 {
		m.Sources = append([]string(nil), pm.Sources...)
	}
	if mode, ok := models.ParseMode(pm.Mode); ok {
		m.Mode = mode
	} else {
		m.Mode = models.ModeGeneral
	}
	return m, true
}
