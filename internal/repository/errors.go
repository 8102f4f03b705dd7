package repository

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrLinkNotFound = errors.New("link not found")
	ErrCodeExists   = errors.New("short code already exists")
	// ErrStorageUnavailable транспортная ошибка или таймаут хранилища; вызывающий может повторить с backoff
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// SQLSTATE нарушения уникальности в PostgreSQL
const pgUniqueViolation = "23505"

// wrapPgError оборачивает ошибку pgx, отделяя недоступность хранилища от прочих ошибок
func wrapPgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if isPgUnavailable(pgErr.Code) {
			return fmt.Errorf("failed to %s: %w: %w", op, ErrStorageUnavailable, err)
		}
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) || isTransient(err) {
		return fmt.Errorf("failed to %s: %w: %w", op, ErrStorageUnavailable, err)
	}

	return fmt.Errorf("failed to %s: %w", op, err)
}

// isPgUnavailable SQLSTATE, которыми сервер сообщает о временной недоступности:
// класс 08 (соединение), 53 (нехватка ресурсов, в т.ч. too_many_connections)
// и 57P01-57P03 (остановка или перезапуск сервера)
func isPgUnavailable(code string) bool {
	switch {
	case strings.HasPrefix(code, "08"), strings.HasPrefix(code, "53"):
		return true
	case code == "57P01", code == "57P02", code == "57P03":
		return true
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// isTransient общие признаки недоступности для обоих драйверов
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
