package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/jamesainslie/filmaudit/pkg/filmaudit/types"
)

// migrations are applied in order and recorded in schema_migrations.
var migrations = []struct {
	version string
	sql     string
}{
	{
		version: "001_file_inventory",
		sql: `
CREATE TABLE file_inventory (
    position       INTEGER NOT NULL,
    identity       TEXT PRIMARY KEY,
    expected_type  TEXT NOT NULL,
    found          INTEGER NOT NULL DEFAULT 0,
    type_confirmed INTEGER NOT NULL DEFAULT 0,
    location       TEXT,
    aggregate_size INTEGER NOT NULL DEFAULT 0,
    file_count     INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE processed_files (
    path TEXT PRIMARY KEY
);
CREATE TABLE ledger_meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);`,
	},
}

// SQLiteStore persists the ledger in a SQLite database with one row per record.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the database at path and applies migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &SQLiteStore{db: db, path: path}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) applyMigrations(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)"); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	for _, m := range migrations {
		var count int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM schema_migrations WHERE version = ?", m.version).Scan(&count); err != nil {
			return fmt.Errorf("scan migration version: %w", err)
		}
		if count > 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
			return fmt.Errorf("record migration %s: %w", m.version, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	return nil
}

// Load reads all records and processed paths.
func (s *SQLiteStore) Load(ctx context.Context) (*Ledger, error) {
	doc := Document{SchemaVersion: SchemaVersion}

	var version int
	err := s.db.QueryRowContext(ctx, "SELECT CAST(value AS INTEGER) FROM ledger_meta WHERE key = 'schema_version'").Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("read schema version: %w", err)
	default:
		doc.SchemaVersion = version
	}

	rows, err := s.db.QueryContext(ctx, `SELECT identity, expected_type, found, type_confirmed,
        COALESCE(location, ''), aggregate_size, file_count
        FROM file_inventory ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r         Record
			kind      string
			size      int64
			count     int64
			found     bool
			confirmed bool
		)
		if err := rows.Scan(&r.Identity, &kind, &found, &confirmed, &r.Location, &size, &count); err != nil {
			return nil, fmt.Errorf("scan inventory row: %w", err)
		}
		if r.ExpectedKind, err = types.ParseKind(kind); err != nil {
			return nil, fmt.Errorf("record %s: %w", r.Identity, err)
		}
		r.Found = found
		r.TypeConfirmed = confirmed
		r.AggregateSize = uint64(size)
		r.FileCount = uint32(count)
		doc.Inventory = append(doc.Inventory, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inventory: %w", err)
	}

	paths, err := s.db.QueryContext(ctx, "SELECT path FROM processed_files ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("query processed files: %w", err)
	}
	defer paths.Close()
	for paths.Next() {
		var p string
		if err := paths.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan processed file: %w", err)
		}
		doc.Processed = append(doc.Processed, p)
	}
	if err := paths.Err(); err != nil {
		return nil, fmt.Errorf("iterate processed files: %w", err)
	}

	return FromDocument(doc)
}

// Save replaces every row in a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, l *Ledger) error {
	doc := l.Document()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, stmt := range []string{"DELETE FROM file_inventory", "DELETE FROM processed_files"} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clear ledger: %w", err)
		}
	}

	insertRecord, err := tx.PrepareContext(ctx, `INSERT INTO file_inventory (
            position, identity, expected_type, found, type_confirmed,
            location, aggregate_size, file_count
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer insertRecord.Close()

	for i, r := range doc.Inventory {
		if _, err := insertRecord.ExecContext(ctx,
			i,
			r.Identity,
			r.ExpectedKind.String(),
			r.Found,
			r.TypeConfirmed,
			nullableString(r.Location),
			int64(r.AggregateSize),
			int64(r.FileCount),
		); err != nil {
			return fmt.Errorf("insert record %s: %w", r.Identity, err)
		}
	}

	insertPath, err := tx.PrepareContext(ctx, "INSERT INTO processed_files (path) VALUES (?)")
	if err != nil {
		return fmt.Errorf("prepare processed insert: %w", err)
	}
	defer insertPath.Close()

	for _, p := range doc.Processed {
		if _, err := insertPath.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("insert processed file: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO ledger_meta (key, value) VALUES ('schema_version', ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		fmt.Sprint(doc.SchemaVersion),
	); err != nil {
		return fmt.Errorf("write schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
