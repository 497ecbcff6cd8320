package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, RunMigrations(db))
	return db
}

func TestOpenAppliesSchema(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	var count int
	require.NoError(t, db.QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('sessions', 'messages')`).Scan(&count))
	require.Equal(t, 2, count)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openTestDB(t)

	boom := errors.New("boom")
	err := WithTx(db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO sessions (id, started_at, provider, model) VALUES ('s1', CURRENT_TIMESTAMP, 'ollama', 'llama3.2')`)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&count))
	require.Zero(t, count, "failed transaction leaves nothing behind")
}

func TestWithTxCommits(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openTestDB(t)

	require.NoError(t, WithTx(db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO sessions (id, started_at, provider, model) VALUES ('s1', CURRENT_TIMESTAMP, 'ollama', 'llama3.2')`)
		return err
	}))

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&count))
	require.Equal(t, 1, count)
}
