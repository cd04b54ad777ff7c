package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/docukeeper/internal/domain/model"
)

// UserRepository — справочник пользователей (id → email).
type UserRepository interface {
	// Upsert создаёт или обновляет пользователя, отмечая время последнего визита.
	Upsert(ctx context.Context, u *model.User) error
	// EmailsByIDs возвращает email для набора идентификаторов одним запросом.
	// Неизвестные идентификаторы в результат не попадают.
	EmailsByIDs(ctx context.Context, ids []string) (map[string]string, error)
}

// userRepo — реализация UserRepository.
type userRepo struct {
	db DBTX
}

// NewUserRepository создаёт репозиторий пользователей.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) Upsert(ctx context.Context, u *model.User) error {
	query := `
		INSERT INTO users (id, email, is_admin, last_seen_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE
		SET email = EXCLUDED.email, is_admin = EXCLUDED.is_admin, last_seen_at = now()
		RETURNING last_seen_at`

	if err := r.db.QueryRow(ctx, query, u.ID, u.Email, u.IsAdmin).Scan(&u.LastSeenAt); err != nil {
		return fmt.Errorf("ошибка сохранения пользователя: %w", err)
	}
	return nil
}

func (r *userRepo) EmailsByIDs(ctx context.Context, ids []string) (map[string]string, error) {
	result := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := r.db.Query(ctx, `SELECT id, email FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения email пользователей: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, email string
		if err := rows.Scan(&id, &email); err != nil {
			return nil, fmt.Errorf("ошибка сканирования пользователя: %w", err)
		}
		result[id] = email
	}
	return result, rows.Err()
}
