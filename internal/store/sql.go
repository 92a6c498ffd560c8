package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"timeclock/internal/attendance"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

var schemas = map[string]string{
	DialectPostgres: `
	CREATE TABLE IF NOT EXISTS users (
		id        TEXT PRIMARY KEY,
		name      TEXT NOT NULL,
		password  TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS time_records (
		seq          BIGSERIAL PRIMARY KEY,
		id           TEXT UNIQUE NOT NULL,
		user_id      TEXT NOT NULL REFERENCES users(id),
		user_name    TEXT NOT NULL,
		type         TEXT NOT NULL CHECK (type IN ('in', 'out')),
		occurred_at  TIMESTAMPTZ NOT NULL,
		ip_address   TEXT NOT NULL DEFAULT '',
		latitude     DOUBLE PRECISION,
		longitude    DOUBLE PRECISION
	);

	CREATE INDEX IF NOT EXISTS idx_time_records_user ON time_records(user_id, occurred_at);
	`,
	DialectSQLite: `
	CREATE TABLE IF NOT EXISTS users (
		id        TEXT PRIMARY KEY,
		name      TEXT NOT NULL,
		password  TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS time_records (
		seq          INTEGER PRIMARY KEY AUTOINCREMENT,
		id           TEXT UNIQUE NOT NULL,
		user_id      TEXT NOT NULL REFERENCES users(id),
		user_name    TEXT NOT NULL,
		type         TEXT NOT NULL CHECK (type IN ('in', 'out')),
		occurred_at  DATETIME NOT NULL,
		ip_address   TEXT NOT NULL DEFAULT '',
		latitude     REAL,
		longitude    REAL
	);

	CREATE INDEX IF NOT EXISTS idx_time_records_user ON time_records(user_id, occurred_at);
	`,
}

// SQLStore persists the ledger in Postgres or SQLite. Records are only
// ever inserted.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

// OpenPostgres connects through the pgx stdlib driver and migrates the schema.
func OpenPostgres(ctx context.Context, connString string) (*SQLStore, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return newSQLStore(ctx, db, DialectPostgres)
}

// OpenSQLite opens (and creates) a SQLite database file.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	return newSQLStore(ctx, db, DialectSQLite)
}

func newSQLStore(ctx context.Context, db *sql.DB, dialect string) (*SQLStore, error) {
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemas[dialect]); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLStore{db: db, dialect: dialect}, nil
}

var placeholder = regexp.MustCompile(`\$\d+`)

// rebind rewrites $n placeholders for drivers that only accept ?.
func rebind(dialect, query string) string {
	if dialect != DialectSQLite {
		return query
	}
	return placeholder.ReplaceAllString(query, "?")
}

func (s *SQLStore) q(query string) string { return rebind(s.dialect, query) }

func (s *SQLStore) Users(ctx context.Context) ([]attendance.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, password FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []attendance.User
	for rows.Next() {
		var u attendance.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Password); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *SQLStore) UserByID(ctx context.Context, id string) (*attendance.User, error) {
	var u attendance.User
	err := s.db.QueryRowContext(ctx, s.q(`SELECT id, name, password FROM users WHERE id = $1`), id).
		Scan(&u.ID, &u.Name, &u.Password)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *SQLStore) PutUser(ctx context.Context, u attendance.User) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO users (id, name, password)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			password = EXCLUDED.password
	`), u.ID, u.Name, u.Password)
	return err
}

// Records returns the log in append order.
func (s *SQLStore) Records(ctx context.Context) ([]attendance.TimeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, user_name, type, occurred_at, ip_address, latitude, longitude
		FROM time_records
		ORDER BY seq
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []attendance.TimeRecord
	for rows.Next() {
		var (
			rec      attendance.TimeRecord
			typ      string
			lat, lng sql.NullFloat64
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.UserName, &typ, &rec.Timestamp, &rec.IPAddress, &lat, &lng); err != nil {
			return nil, err
		}
		rec.Type = attendance.EventType(typ)
		rec.Timestamp = rec.Timestamp.UTC()
		if lat.Valid {
			rec.Latitude = &lat.Float64
		}
		if lng.Valid {
			rec.Longitude = &lng.Float64
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

func (s *SQLStore) AppendRecord(ctx context.Context, rec attendance.TimeRecord) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO time_records (id, user_id, user_name, type, occurred_at, ip_address, latitude, longitude)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`), rec.ID, rec.UserID, rec.UserName, string(rec.Type), rec.Timestamp.UTC(), rec.IPAddress, nullFloat(rec.Latitude), nullFloat(rec.Longitude))
	return err
}

// Ping verifies database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close closes the underlying connection.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
