package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/neilberkman/studychat/internal/core/config"
	"github.com/stretchr/testify/require"
)

func TestOpen_SQLite(t *testing.T) {
	ctx := context.Background()
	cfg := config.Defaults()
	cfg.DBPath = filepath.Join(t.TempDir(), "nested", "studychat.db")

	st, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer func() { require.NoError(t, st.Close()) }()

	database, err := st.RequireDB()
	require.NoError(t, err)

	store, err := st.SessionStore(ctx, cfg)
	require.NoError(t, err)
	require.Len(t, store.Sessions(), 1)

	// The mirror was indexed by Initialize
	list, err := database.ListSessions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, store.ActiveID(), list[0].SessionID)
}

func TestOpen_Memory(t *testing.T) {
	cfg := config.Defaults()
	cfg.StorageBackend = config.StorageMemory

	st, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	_, err = st.RequireDB()
	require.ErrorIs(t, err, ErrNoDatabase)
	require.NoError(t, st.Close())
}

func TestOpen_Unknown(t *testing.T) {
	cfg := config.Defaults()
	cfg.StorageBackend = "s3"
	_, err := Open(context.Background(), cfg)
	require.Error(t, err)
}
