package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/SergeiKhy/link-registry/internal/config"
	"github.com/SergeiKhy/link-registry/internal/models"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Время хранится в UTC наносекундах, чтобы сортировка не зависела от формата строк
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS links (
    code         TEXT    PRIMARY KEY,
    target_url   TEXT    NOT NULL,
    clicks       INTEGER NOT NULL DEFAULT 0 CHECK (clicks >= 0),
    created_at   INTEGER NOT NULL,
    last_clicked INTEGER
);

CREATE INDEX IF NOT EXISTS idx_links_created_at ON links (created_at DESC, code DESC);
`

// SQLiteDB встраиваемое хранилище для одноузловых инсталляций и тестов
type SQLiteDB struct {
	DB           *sql.DB
	QueryTimeout time.Duration
}

func NewSQLiteDB(cfg config.DBConfig) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", p, err)
		}
	}

	// SQLite допускает одного писателя
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate sqlite: %w", err)
	}

	return &SQLiteDB{DB: db, QueryTimeout: queryTimeout(cfg.QueryTimeout)}, nil
}

func (db *SQLiteDB) Close() error {
	return db.DB.Close()
}

func (db *SQLiteDB) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, db.QueryTimeout)
}

type sqliteLinkRepository struct {
	db *SQLiteDB
}

func NewSQLiteLinkRepository(db *SQLiteDB) LinkRepository {
	return &sqliteLinkRepository{db: db}
}

func (r *sqliteLinkRepository) Create(ctx context.Context, link *models.Link) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	_, err := r.db.DB.ExecContext(ctx,
		`INSERT INTO links (code, target_url, clicks, created_at) VALUES (?, ?, 0, ?)`,
		link.Code,
		link.TargetURL,
		link.CreatedAt.UnixNano(),
	)
	if err != nil {
		if isSQLiteConstraint(err) {
			return ErrCodeExists
		}
		return wrapSQLiteError("create link", err)
	}

	link.Clicks = 0
	link.CreatedAt = time.Unix(0, link.CreatedAt.UnixNano()).UTC()
	link.LastClicked = nil
	return nil
}

func (r *sqliteLinkRepository) GetByCode(ctx context.Context, code string) (*models.Link, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	row := r.db.DB.QueryRowContext(ctx, `SELECT `+linkColumns+` FROM links WHERE code = ?`, code)
	link, err := scanSQLiteLink(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, wrapSQLiteError("get link", err)
	}

	return link, nil
}

func (r *sqliteLinkRepository) Exists(ctx context.Context, code string) (bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var exists bool
	err := r.db.DB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM links WHERE code = ?)`, code).Scan(&exists)
	if err != nil {
		return false, wrapSQLiteError("check code", err)
	}

	return exists, nil
}

func (r *sqliteLinkRepository) List(ctx context.Context) ([]models.Link, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.DB.QueryContext(ctx, `SELECT `+linkColumns+` FROM links ORDER BY created_at DESC, code DESC`)
	if err != nil {
		return nil, wrapSQLiteError("list links", err)
	}
	defer rows.Close()

	links := []models.Link{}
	for rows.Next() {
		link, err := scanSQLiteLink(rows)
		if err != nil {
			return nil, wrapSQLiteError("scan link", err)
		}
		links = append(links, *link)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapSQLiteError("iterate links", err)
	}

	return links, nil
}

func (r *sqliteLinkRepository) Delete(ctx context.Context, code string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	result, err := r.db.DB.ExecContext(ctx, `DELETE FROM links WHERE code = ?`, code)
	if err != nil {
		return wrapSQLiteError("delete link", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return wrapSQLiteError("delete link", err)
	}
	if affected == 0 {
		return ErrLinkNotFound
	}

	return nil
}

func (r *sqliteLinkRepository) RecordClick(ctx context.Context, code string) (*models.Link, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	row := r.db.DB.QueryRowContext(ctx,
		`UPDATE links SET clicks = clicks + 1, last_clicked = ? WHERE code = ? RETURNING `+linkColumns,
		time.Now().UnixNano(),
		code,
	)
	link, err := scanSQLiteLink(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, wrapSQLiteError("record click", err)
	}

	return link, nil
}

func (r *sqliteLinkRepository) Ping(ctx context.Context) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if err := r.db.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping sqlite: %w: %w", ErrStorageUnavailable, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteLink(row rowScanner) (*models.Link, error) {
	link := &models.Link{}
	var createdAt int64
	var lastClicked sql.NullInt64
	if err := row.Scan(
		&link.Code,
		&link.TargetURL,
		&link.Clicks,
		&createdAt,
		&lastClicked,
	); err != nil {
		return nil, err
	}

	link.CreatedAt = time.Unix(0, createdAt).UTC()
	if lastClicked.Valid {
		t := time.Unix(0, lastClicked.Int64).UTC()
		link.LastClicked = &t
	}
	return link, nil
}

func isSQLiteConstraint(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

func wrapSQLiteError(op string, err error) error {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_IOERR, sqlite3.SQLITE_CANTOPEN:
			return fmt.Errorf("failed to %s: %w: %w", op, ErrStorageUnavailable, err)
		}
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	if isTransient(err) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("failed to %s: %w: %w", op, ErrStorageUnavailable, err)
	}

	return fmt.Errorf("failed to %s: %w", op, err)
}
