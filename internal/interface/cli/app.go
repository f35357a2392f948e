package cli

import (
	"context"
	"fmt"

	"github.com/neilberkman/studychat/internal/core/backend"
	"github.com/neilberkman/studychat/internal/core/conversation"
	"github.com/neilberkman/studychat/internal/core/logging"
	"github.com/neilberkman/studychat/internal/core/sessions"
	"github.com/neilberkman/studychat/internal/core/storage"
)

// app bundles what every chat command needs
type app struct {
	storage    *storage.Storage
	store      *sessions.Store
	client     *backend.Client
	controller *conversation.Controller
}

func openApp(ctx context.Context) (*app, error) {
	st, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := st.SessionStore(ctx, cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	client := backend.New(cfg.BackendURL,
		backend.WithTimeout(cfg.Timeout),
		backend.WithLogger(logging.Logger()),
	)
	controller := conversation.New(store, client, conversation.WithLogger(logging.Logger()))
	controller.SetMode(cfg.DefaultMode)

	return &app{
		storage:    st,
		store:      store,
		client:     client,
		controller: controller,
	}, nil
}

func (a *app) Close() error {
	return a.storage.Close()
}

// resolveSession maps a user reference (id, prefix or list position) to
// a session id
func (a *app) resolveSession(ref string) (string, error) {
	id, err := a.store.Resolve(ref)
	if err != nil {
		return "", fmt.Errorf("%w (see 'studychat list')", err)
	}
	return id, nil
}
