package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SergeiKhy/link-registry/internal/models"
	"github.com/jackc/pgx/v5"
)

// LinkRepository долговременное хранилище code -> link.
// Каждая операция атомарна относительно записи, которую затрагивает.
type LinkRepository interface {
	Create(ctx context.Context, link *models.Link) error
	GetByCode(ctx context.Context, code string) (*models.Link, error)
	Exists(ctx context.Context, code string) (bool, error)
	List(ctx context.Context) ([]models.Link, error)
	Delete(ctx context.Context, code string) error
	RecordClick(ctx context.Context, code string) (*models.Link, error)
	Ping(ctx context.Context) error
}

type linkRepository struct {
	db *PostgresDB
}

func NewLinkRepository(db *PostgresDB) LinkRepository {
	return &linkRepository{db: db}
}

const linkColumns = `code, target_url, clicks, created_at, last_clicked`

func (r *linkRepository) Create(ctx context.Context, link *models.Link) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO links (code, target_url, clicks, created_at)
		VALUES ($1, $2, 0, $3)
		RETURNING clicks, created_at
	`

	err := r.db.Pool.QueryRow(
		ctx,
		query,
		link.Code,
		link.TargetURL,
		link.CreatedAt,
	).Scan(&link.Clicks, &link.CreatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrCodeExists
		}
		return wrapPgError("create link", err)
	}

	link.CreatedAt = link.CreatedAt.UTC()
	link.LastClicked = nil
	return nil
}

func (r *linkRepository) GetByCode(ctx context.Context, code string) (*models.Link, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + linkColumns + ` FROM links WHERE code = $1`

	link, err := scanLink(r.db.Pool.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, wrapPgError("get link", err)
	}

	return link, nil
}

func (r *linkRepository) Exists(ctx context.Context, code string) (bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var exists bool
	err := r.db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM links WHERE code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, wrapPgError("check code", err)
	}

	return exists, nil
}

func (r *linkRepository) List(ctx context.Context) ([]models.Link, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + linkColumns + ` FROM links ORDER BY created_at DESC, code DESC`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, wrapPgError("list links", err)
	}
	defer rows.Close()

	links := []models.Link{}
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, wrapPgError("scan link", err)
		}
		links = append(links, *link)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapPgError("iterate links", err)
	}

	return links, nil
}

func (r *linkRepository) Delete(ctx context.Context, code string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	result, err := r.db.Pool.Exec(ctx, `DELETE FROM links WHERE code = $1`, code)
	if err != nil {
		return wrapPgError("delete link", err)
	}

	if result.RowsAffected() == 0 {
		return ErrLinkNotFound
	}

	return nil
}

// RecordClick атомарно увеличивает счётчик на стороне БД, без read-modify-write
func (r *linkRepository) RecordClick(ctx context.Context, code string) (*models.Link, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	query := `
		UPDATE links
		SET clicks = clicks + 1, last_clicked = NOW()
		WHERE code = $1
		RETURNING ` + linkColumns

	link, err := scanLink(r.db.Pool.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, wrapPgError("record click", err)
	}

	return link, nil
}

func (r *linkRepository) Ping(ctx context.Context) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if err := r.db.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w: %w", ErrStorageUnavailable, err)
	}
	return nil
}

func scanLink(row pgx.Row) (*models.Link, error) {
	link := &models.Link{}
	var lastClicked *time.Time
	if err := row.Scan(
		&link.Code,
		&link.TargetURL,
		&link.Clicks,
		&link.CreatedAt,
		&lastClicked,
	); err != nil {
		return nil, err
	}

	link.CreatedAt = link.CreatedAt.UTC()
	if lastClicked != nil {
		t := lastClicked.UTC()
		link.LastClicked = &t
	}
	return link, nil
}
