package registry

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Dialect selects placeholder style and migration dialect.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

func (d Dialect) gooseDialect() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "sqlite3"
}

// goose keeps its base FS and dialect in package globals.
var migrateMu sync.Mutex

// gooseUp is a seam for testing migrations without a live database.
var gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
	return goose.UpContext(ctx, db, dir)
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect(dialect.gooseDialect()); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := gooseUp(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("goose up failed: %w", err)
	}
	return nil
}

// OpenSQLite opens (or creates) a SQLite database at path and migrates it. ":memory:"
// gives a private in-process database.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// One writer at a time; a single connection also keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if err := Migrate(ctx, db, DialectSQLite); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// OpenPostgres connects through the pgx stdlib driver and migrates the schema.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := Migrate(ctx, db, DialectPostgres); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// SQLRegistry persists entries in the refresh_tokens table. Timestamps are unix
// milliseconds so both dialects compare them the same way.
type SQLRegistry struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// NewSQL wraps an already migrated database.
func NewSQL(db *sql.DB, dialect Dialect, now func() time.Time) *SQLRegistry {
	if now == nil {
		now = time.Now
	}
	return &SQLRegistry{db: db, dialect: dialect, now: now}
}

// Ping checks the database connection and reports its latency.
func (r *SQLRegistry) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := r.db.PingContext(ctx); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return time.Since(start), nil
}

// rebind turns ? placeholders into $n for PostgreSQL.
func (r *SQLRegistry) rebind(query string) string {
	if r.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (r *SQLRegistry) Register(ctx context.Context, jti, userID string, expiresAt time.Time) error {
	if err := validateEntry(jti, userID, expiresAt); err != nil {
		return err
	}
	now := r.now().UnixMilli()
	query := r.rebind(`
		INSERT INTO refresh_tokens (jti, user_id, created_at, last_used_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	if _, err := r.db.ExecContext(ctx, query, jti, userID, now, now, expiresAt.UnixMilli()); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *SQLRegistry) TouchIfLive(ctx context.Context, jti string) (bool, error) {
	now := r.now().UnixMilli()
	query := r.rebind(`
		UPDATE refresh_tokens
		SET last_used_at = ?
		WHERE jti = ? AND expires_at > ?
	`)
	res, err := r.db.ExecContext(ctx, query, now, jti, now)
	if err != nil {
		return false, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable(err)
	}
	return n == 1, nil
}

// Rotate deletes the old row with RETURNING and inserts the replacement in one
// transaction. A concurrent rotation of the same jti finds no row to delete.
func (r *SQLRegistry) Rotate(ctx context.Context, oldJTI, userID string, next Entry) (Entry, error) {
	if err := validateEntry(next.JTI, next.UserID, next.ExpiresAt); err != nil {
		return Entry{}, err
	}
	now := r.now()
	nowMS := now.UnixMilli()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, unavailable(err)
	}
	defer tx.Rollback() //nolint:errcheck

	var expiresMS int64
	del := r.rebind(`
		DELETE FROM refresh_tokens
		WHERE jti = ? AND user_id = ?
		RETURNING expires_at
	`)
	if err := tx.QueryRowContext(ctx, del, oldJTI, userID).Scan(&expiresMS); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, ErrNotLive
		}
		return Entry{}, unavailable(err)
	}
	if expiresMS <= nowMS {
		// Keep the delete: an expired row is garbage either way.
		if err := tx.Commit(); err != nil {
			return Entry{}, unavailable(err)
		}
		return Entry{}, fmt.Errorf("%w: expired", ErrNotLive)
	}

	ins := r.rebind(`
		INSERT INTO refresh_tokens (jti, user_id, created_at, last_used_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	if _, err := tx.ExecContext(ctx, ins, next.JTI, userID, nowMS, nowMS, next.ExpiresAt.UnixMilli()); err != nil {
		return Entry{}, unavailable(err)
	}
	if err := tx.Commit(); err != nil {
		return Entry{}, unavailable(err)
	}

	next.UserID = userID
	next.CreatedAt = time.UnixMilli(nowMS)
	next.LastUsedAt = next.CreatedAt
	return next, nil
}

func (r *SQLRegistry) Revoke(ctx context.Context, jti string) error {
	if _, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM refresh_tokens WHERE jti = ?`), jti); err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *SQLRegistry) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	now := r.now().UnixMilli()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, unavailable(err)
	}
	defer tx.Rollback() //nolint:errcheck

	var live int
	count := r.rebind(`SELECT COUNT(*) FROM refresh_tokens WHERE user_id = ? AND expires_at > ?`)
	if err := tx.QueryRowContext(ctx, count, userID, now).Scan(&live); err != nil {
		return 0, unavailable(err)
	}
	if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM refresh_tokens WHERE user_id = ?`), userID); err != nil {
		return 0, unavailable(err)
	}
	if err := tx.Commit(); err != nil {
		return 0, unavailable(err)
	}
	return live, nil
}

func (r *SQLRegistry) ListForUser(ctx context.Context, userID string) ([]Entry, error) {
	query := r.rebind(`
		SELECT jti, user_id, created_at, last_used_at, expires_at
		FROM refresh_tokens
		WHERE user_id = ? AND expires_at > ?
		ORDER BY created_at, jti
	`)
	rows, err := r.db.QueryContext(ctx, query, userID, r.now().UnixMilli())
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	out := make([]Entry, 0)
	for rows.Next() {
		var (
			e                          Entry
			created, lastUsed, expires int64
		)
		if err := rows.Scan(&e.JTI, &e.UserID, &created, &lastUsed, &expires); err != nil {
			return nil, unavailable(err)
		}
		e.CreatedAt = time.UnixMilli(created)
		e.LastUsedAt = time.UnixMilli(lastUsed)
		e.ExpiresAt = time.UnixMilli(expires)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

func (r *SQLRegistry) Prune(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM refresh_tokens WHERE expires_at <= ?`), r.now().UnixMilli())
	if err != nil {
		return 0, unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable(err)
	}
	return int(n), nil
}
