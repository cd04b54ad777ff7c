// Пакет repository — слой доступа к данным PostgreSQL.
// Все запросы — чистый SQL через pgx, без ORM.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — версия цепочки уже занята параллельной вставкой.
	ErrConflict = errors.New("конфликт — версия уже существует")
	// ErrDuplicateRoot — у владельца уже есть корневой документ с таким отпечатком.
	ErrDuplicateRoot = errors.New("дубликат — документ уже зарегистрирован")
)

// Ограничение уникальности корневых отпечатков (см. миграции) и код unique_violation.
const (
	constraintOwnerRootPrint   = "documents_owner_root_fingerprint_key"
	pgUniqueViolationErrorCode = "23505"
)

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// uniqueViolation сообщает, является ли ошибка нарушением уникальности
// PostgreSQL, и возвращает имя нарушенного ограничения.
func uniqueViolation(err error) (constraint string, ok bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolationErrorCode {
		return pgErr.ConstraintName, true
	}
	return "", false
}
