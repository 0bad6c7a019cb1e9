package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

var (
	ErrGameNotFound = errors.New("game not found")
	ErrGameExists   = errors.New("game already exists")
	ErrCorruptLog   = errors.New("corrupt game log")

	// ErrSchemaTooNew means the database was written by a newer build.
	// Opening it could silently drop history columns this build ignores.
	ErrSchemaTooNew = errors.New("database schema is newer than this build")
)

// migration upgrades a database from version-1 to version. schema.sql
// always creates the latest tables, so a migration only has to patch
// databases created before it.
type migration struct {
	version int
	name    string
	stmt    string
}

// migrations are applied in order; the last version is the schema version.
var migrations = []migration{
	{
		version: 1,
		name:    "per-player event index for rollback lookups",
		stmt:    `CREATE INDEX IF NOT EXISTS idx_history_events_player ON history_events(game_id, player, seq)`,
	},
}

func schemaVersion() int {
	return migrations[len(migrations)-1].version
}

// Store keeps game setups and their history nodes and events.
type Store struct {
	db *sql.DB
}

// Open opens or creates the history database at path and brings its schema
// up to date. ":memory:" gives a private in-memory database, which only
// works because the pool holds a single connection.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// one writer; a history commit must never see SQLITE_BUSY from itself
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.init(context.Background(), path == ":memory:"); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return s, nil
}

func (s *Store) init(ctx context.Context, inMemory bool) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	// WAL lets `replay` and `list` read while a game commits. An in-memory
	// database has no journal file and reports "memory".
	wantJournal := "wal"
	if inMemory {
		wantJournal = "memory"
	}
	settings := []struct{ name, value, want string }{
		{"journal_mode", "WAL", wantJournal},
		{"synchronous", "NORMAL", "1"},
		{"busy_timeout", "5000", "5000"},
		{"foreign_keys", "ON", "1"},
	}
	for _, p := range settings {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)); err != nil {
			return fmt.Errorf("pragma %s: %w", p.name, err)
		}
		if err := s.verifyPragma(p.name, p.want); err != nil {
			return err
		}
	}

	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create history tables: %w", err)
	}
	return s.migrate(ctx)
}

// migrate runs every migration above the stored user_version, each in its
// own transaction together with the version bump.
func (s *Store) migrate(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version > schemaVersion() {
		return fmt.Errorf("%w: database at v%d, build knows v%d", ErrSchemaTooNew, version, schemaVersion())
	}

	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("migrate to v%d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, m.stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrate to v%d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrate to v%d: bump version: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migrate to v%d: %w", m.version, err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("read pragma %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("pragma %s = %q, want %q", name, value, expected)
	}
	return nil
}
