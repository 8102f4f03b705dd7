package repository

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/SergeiKhy/link-registry/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS links (
    code         VARCHAR(12) PRIMARY KEY,
    target_url   TEXT        NOT NULL,
    clicks       BIGINT      NOT NULL DEFAULT 0 CHECK (clicks >= 0),
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_clicked TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_links_created_at ON links (created_at DESC, code DESC);
`

type PostgresDB struct {
	Pool         *pgxpool.Pool
	QueryTimeout time.Duration
}

func NewPostgresDB(cfg config.DBConfig) (*PostgresDB, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		url.QueryEscape(cfg.User),
		url.QueryEscape(cfg.Password),
		cfg.Host,
		cfg.Port,
		cfg.Name,
		sslMode(cfg.SSLMode),
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DB config: %w", err)
	}

	// Настройка пула соединений
	poolConfig.MaxConns = 25
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	poolConfig.MinConns = min(5, poolConfig.MaxConns)
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.ConnConfig.ConnectTimeout = 5 * time.Second

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	db := &PostgresDB{Pool: pool, QueryTimeout: queryTimeout(cfg.QueryTimeout)}

	// Проверка подключения
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Схема создаётся при старте; первичный ключ по code обеспечивает уникальность
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

func (db *PostgresDB) Close() {
	db.Pool.Close()
}

// withTimeout ограничивает каждый запрос к БД по времени
func (db *PostgresDB) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, db.QueryTimeout)
}

func sslMode(mode string) string {
	if mode == "" {
		return "disable"
	}
	return mode
}

func queryTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 3 * time.Second
	}
	return d
}
