package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound возвращается, когда запрошенная запись отсутствует
var ErrNotFound = errors.New("запись не найдена")

// Код PostgreSQL для нарушения уникального ограничения
const uniqueViolationCode = "23505"

// IsUniqueViolation проверяет, является ли ошибка нарушением
// уникального ограничения
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// IsUniqueViolationOn проверяет нарушение конкретного уникального ограничения
func IsUniqueViolationOn(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == uniqueViolationCode &&
		pgErr.ConstraintName == constraint
}
