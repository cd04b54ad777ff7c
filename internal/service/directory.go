// directory.go — справочник email пользователей с LRU-кэшем.
// Обёртка над hashicorp/golang-lru/v2/expirable и UserRepository.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/bigkaa/docukeeper/internal/domain/model"
	"github.com/bigkaa/docukeeper/internal/repository"
)

// DirectoryService — разрешение id пользователя в email.
// Кэш — per-instance, записи живут ttl после добавления.
type DirectoryService struct {
	users  repository.UserRepository
	cache  *expirable.LRU[string, string]
	logger *slog.Logger
}

// NewDirectoryService создаёт справочник с кэшем на maxSize записей.
func NewDirectoryService(users repository.UserRepository, maxSize int, ttl time.Duration, logger *slog.Logger) *DirectoryService {
	return &DirectoryService{
		users:  users,
		cache:  expirable.NewLRU[string, string](maxSize, nil, ttl),
		logger: logger.With(slog.String("component", "directory")),
	}
}

// Remember сохраняет пользователя из токена в справочник.
// Если кэш уже содержит тот же email, запрос к базе не выполняется.
func (d *DirectoryService) Remember(ctx context.Context, caller model.Caller) error {
	if caller.ID == "" {
		return nil
	}
	if email, ok := d.cache.Get(caller.ID); ok && email == caller.Email {
		return nil
	}

	u := &model.User{ID: caller.ID, Email: caller.Email, IsAdmin: caller.IsAdmin}
	if err := d.users.Upsert(ctx, u); err != nil {
		return fmt.Errorf("ошибка сохранения пользователя %s: %w", caller.ID, err)
	}
	d.cache.Add(caller.ID, caller.Email)
	return nil
}

// Emails возвращает email для набора id. Промахи кэша разрешаются
// одним пакетным запросом. Неизвестные id в результат не попадают.
func (d *DirectoryService) Emails(ctx context.Context, ids []string) (map[string]string, error) {
	result := make(map[string]string, len(ids))

	var misses []string
	for _, id := range ids {
		if _, seen := result[id]; seen || slices.Contains(misses, id) {
			continue
		}
		if email, ok := d.cache.Get(id); ok {
			directoryCacheHitsTotal.Inc()
			result[id] = email
			continue
		}
		directoryCacheMissesTotal.Inc()
		misses = append(misses, id)
	}

	if len(misses) == 0 {
		return result, nil
	}

	found, err := d.users.EmailsByIDs(ctx, misses)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения email пользователей: %w", err)
	}
	for id, email := range found {
		d.cache.Add(id, email)
		result[id] = email
	}

	d.logger.Debug("Email пользователей загружены из базы",
		slog.Int("requested", len(misses)),
		slog.Int("found", len(found)),
	)
	return result, nil
}
