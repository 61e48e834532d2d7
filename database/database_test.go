package database

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestNew_AppliesEmbeddedMigrationsOnce(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	path := filepath.Join(t.TempDir(), "nested", "parley.db")

	// Given a fresh database
	db, err := New(ctx, path, Migrations(), log)
	req.NoError(err)

	var tables int
	req.NoError(db.Conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('conversations','conversation_participants','messages','message_reads')",
	).Scan(&tables))
	req.Equal(4, tables)
	req.NoError(db.Close())

	// When it is reopened
	db, err = New(ctx, path, Migrations(), log)
	req.NoError(err)
	defer db.Close()

	// Then the migration is not recorded twice
	var applied int
	req.NoError(db.Conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&applied))
	req.Equal(1, applied)
}

func TestMigrate_SkipsRecoverableErrors(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	db, err := New(ctx, filepath.Join(t.TempDir(), "p.db"), fstest.MapFS{
		"001_a.sql": {Data: []byte("CREATE TABLE t (a TEXT); ALTER TABLE t ADD COLUMN b TEXT;")},
	}, log)
	req.NoError(err)
	defer db.Close()

	// A half-applied second migration re-adds an existing column
	err = db.Migrate(ctx, fstest.MapFS{
		"002_b.sql": {Data: []byte("ALTER TABLE t ADD COLUMN b TEXT; INSERT INTO t (a, b) VALUES ('x;y', 'it''s');")},
	})
	req.NoError(err)

	var b string
	req.NoError(db.Conn.QueryRowContext(ctx, "SELECT b FROM t WHERE a = 'x;y'").Scan(&b))
	req.Equal("it's", b)
}

func TestSplitStatements(t *testing.T) {
	got := splitStatements(`
		-- header; with semicolon
		CREATE TABLE a (x TEXT); -- trailing
		INSERT INTO a VALUES ('a;b');
		INSERT INTO a VALUES ('it''s')`)

	require.Equal(t, []string{
		"CREATE TABLE a (x TEXT)",
		"INSERT INTO a VALUES ('a;b')",
		"INSERT INTO a VALUES ('it''s')",
	}, got)
}

func TestWithTx(t *testing.T) {
	t.Run("commits on success", func(t *testing.T) {
		req := require.New(t)
		db, mock, err := sqlmock.New()
		req.NoError(err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO messages").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		err = WithTx(context.Background(), db, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(context.Background(), "INSERT INTO messages (id) VALUES (?)", "m1")
			return err
		})

		req.NoError(err)
		req.NoError(mock.ExpectationsWereMet())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		req := require.New(t)
		db, mock, err := sqlmock.New()
		req.NoError(err)
		defer db.Close()

		boom := errors.New("disk I/O error")
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO messages").WillReturnError(boom)
		mock.ExpectRollback()

		err = WithTx(context.Background(), db, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(context.Background(), "INSERT INTO messages (id) VALUES (?)", "m1")
			return err
		})

		req.ErrorIs(err, boom)
		req.NoError(mock.ExpectationsWereMet())
	})

	t.Run("rolls back and repanics", func(t *testing.T) {
		req := require.New(t)
		db, mock, err := sqlmock.New()
		req.NoError(err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		req.PanicsWithValue("kaboom", func() {
			_ = WithTx(context.Background(), db, func(tx *sql.Tx) error { panic("kaboom") })
		})
		req.NoError(mock.ExpectationsWereMet())
	})
}
