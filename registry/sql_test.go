package registry

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteRegistry(t *testing.T, clock *fakeClock) *SQLRegistry {
	t.Helper()
	db, err := OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQL(db, DialectSQLite, clock.Now)
}

func TestSQLiteRegistryContract(t *testing.T) {
	runContract(t, func(t *testing.T, clock *fakeClock) Registry {
		return newSQLiteRegistry(t, clock)
	})
}

func TestSQLitePrune(t *testing.T) {
	clock := newFakeClock()
	reg := newSQLiteRegistry(t, clock)
	ctx := context.Background()

	require.NoError(t, reg.Register(ctx, "short", "u1", clock.Now().Add(time.Second)))
	require.NoError(t, reg.Register(ctx, "long", "u1", clock.Now().Add(time.Hour)))
	clock.Advance(time.Minute)

	n, err := reg.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var remaining int
	require.NoError(t, reg.db.QueryRow(`SELECT COUNT(*) FROM refresh_tokens`).Scan(&remaining))
	assert.Equal(t, 1, remaining)
}

func TestSQLiteMigrateIsIdempotent(t *testing.T) {
	db, err := OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	defer db.Close()

	assert.NoError(t, Migrate(context.Background(), db, DialectSQLite))
}

func TestSQLitePing(t *testing.T) {
	db, err := OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	reg := NewSQL(db, DialectSQLite, nil)

	_, err = reg.Ping(context.Background())
	require.NoError(t, err)

	require.NoError(t, db.Close())
	_, err = reg.Ping(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRebind(t *testing.T) {
	pg := NewSQL(nil, DialectPostgres, nil)
	lite := NewSQL(nil, DialectSQLite, nil)

	q := `SELECT * FROM t WHERE a = ? AND b = ?`
	assert.Equal(t, `SELECT * FROM t WHERE a = $1 AND b = $2`, pg.rebind(q))
	assert.Equal(t, q, lite.rebind(q))
}

func newPostgresMock(t *testing.T, clock *fakeClock) (*SQLRegistry, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQL(db, DialectPostgres, clock.Now), mock
}

func TestPostgresRegister(t *testing.T) {
	clock := newFakeClock()
	reg, mock := newPostgresMock(t, clock)
	now := clock.Now().UnixMilli()
	exp := clock.Now().Add(time.Hour)

	mock.ExpectExec(`(?s)^\s*INSERT\s+INTO\s+refresh_tokens\b.*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5\)\s*$`).
		WithArgs("j1", "u1", now, now, exp.UnixMilli()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, reg.Register(context.Background(), "j1", "u1", exp))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRotateSuccess(t *testing.T) {
	clock := newFakeClock()
	reg, mock := newPostgresMock(t, clock)
	now := clock.Now().UnixMilli()
	next := Entry{JTI: "j2", UserID: "u1", ExpiresAt: clock.Now().Add(time.Hour)}

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)DELETE\s+FROM\s+refresh_tokens\s+WHERE\s+jti\s*=\s*\$1\s+AND\s+user_id\s*=\s*\$2\s+RETURNING\s+expires_at`).
		WithArgs("j1", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"expires_at"}).AddRow(now + 60_000))
	mock.ExpectExec(`(?s)INSERT\s+INTO\s+refresh_tokens\b`).
		WithArgs("j2", "u1", now, now, next.ExpiresAt.UnixMilli()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := reg.Rotate(context.Background(), "j1", "u1", next)
	require.NoError(t, err)
	assert.Equal(t, "j2", got.JTI)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRotateMissingRow(t *testing.T) {
	clock := newFakeClock()
	reg, mock := newPostgresMock(t, clock)

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)DELETE\s+FROM\s+refresh_tokens`).
		WithArgs("j1", "u1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := reg.Rotate(context.Background(), "j1", "u1", Entry{JTI: "j2", UserID: "u1", ExpiresAt: clock.Now().Add(time.Hour)})
	assert.ErrorIs(t, err, ErrNotLive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRotateDBError(t *testing.T) {
	clock := newFakeClock()
	reg, mock := newPostgresMock(t, clock)

	mock.ExpectBegin().WillReturnError(errors.New("db down"))

	_, err := reg.Rotate(context.Background(), "j1", "u1", Entry{JTI: "j2", UserID: "u1", ExpiresAt: clock.Now().Add(time.Hour)})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "db down")
}

func TestPostgresRevokeAll(t *testing.T) {
	clock := newFakeClock()
	reg, mock := newPostgresMock(t, clock)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT\s+COUNT\(\*\)\s+FROM\s+refresh_tokens\s+WHERE\s+user_id\s*=\s*\$1\s+AND\s+expires_at\s*>\s*\$2`).
		WithArgs("u1", clock.Now().UnixMilli()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectExec(`DELETE\s+FROM\s+refresh_tokens\s+WHERE\s+user_id\s*=\s*\$1`).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectCommit()

	n, err := reg.RevokeAllForUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTouchIfLive(t *testing.T) {
	clock := newFakeClock()
	reg, mock := newPostgresMock(t, clock)
	now := clock.Now().UnixMilli()

	mock.ExpectExec(`(?s)UPDATE\s+refresh_tokens\s+SET\s+last_used_at\s*=\s*\$1\s+WHERE\s+jti\s*=\s*\$2\s+AND\s+expires_at\s*>\s*\$3`).
		WithArgs(now, "j1", now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	live, err := reg.TouchIfLive(context.Background(), "j1")
	require.NoError(t, err)
	assert.False(t, live)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateUsesEmbeddedDir(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orig := gooseUp
	defer func() { gooseUp = orig }()

	var gotDir string
	gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
		gotDir = dir
		return nil
	}
	require.NoError(t, Migrate(context.Background(), db, DialectPostgres))
	assert.Equal(t, "migrations", gotDir)

	gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
		return errors.New("boom")
	}
	err = Migrate(context.Background(), db, DialectPostgres)
	assert.ErrorContains(t, err, "boom")
}
