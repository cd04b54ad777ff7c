// history.go — группировка версий по цепочкам, сортировка и выдача истории.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/bigkaa/docukeeper/internal/domain/model"
	"github.com/bigkaa/docukeeper/internal/repository"
)

// ListParams — параметры списка документов.
type ListParams struct {
	// Sort — latest (по умолчанию) или oldest
	Sort string
	// Query — подстрока имени файла (и email загрузившего для администратора)
	Query string
	// From, To — границы created_at включительно
	From *time.Time
	To   *time.Time
}

// HistoryService — чтение истории документов.
type HistoryService struct {
	docs      repository.DocumentRepository
	directory *DirectoryService
	logger    *slog.Logger
}

// NewHistoryService создаёт HistoryService.
func NewHistoryService(docs repository.DocumentRepository, directory *DirectoryService, logger *slog.Logger) *HistoryService {
	return &HistoryService{
		docs:      docs,
		directory: directory,
		logger:    logger.With(slog.String("component", "history")),
	}
}

// Group группирует записи. Для администратора email загрузивших
// разрешаются одним пакетным запросом по всем владельцам.
func (s *HistoryService) Group(ctx context.Context, records []*model.DocumentRecord, sortOrder string, isAdmin bool) ([]model.DocumentGroup, error) {
	var emails map[string]string
	if isAdmin {
		var err error
		emails, err = s.directory.Emails(ctx, distinctOwners(records))
		if err != nil {
			return nil, err
		}
	}
	return GroupHistory(records, sortOrder, emails), nil
}

// ListDocuments возвращает историю документов, видимых вызывающему:
// свои — для пользователя, все — для администратора.
func (s *HistoryService) ListDocuments(ctx context.Context, caller model.Caller, params ListParams) ([]model.DocumentGroup, error) {
	filters := repository.DocumentListFilters{From: params.From, To: params.To}
	if !caller.IsAdmin {
		filters.OwnerID = &caller.ID
	}

	records, err := s.docs.List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка документов: %w", err)
	}

	var emails map[string]string
	if caller.IsAdmin {
		emails, err = s.directory.Emails(ctx, distinctOwners(records))
		if err != nil {
			return nil, err
		}
	}

	if q := strings.ToLower(strings.TrimSpace(params.Query)); q != "" {
		records = slices.DeleteFunc(records, func(r *model.DocumentRecord) bool {
			if strings.Contains(strings.ToLower(r.DisplayName), q) {
				return false
			}
			return !(caller.IsAdmin && strings.Contains(strings.ToLower(emails[r.OwnerID]), q))
		})
	}

	return GroupHistory(records, params.Sort, emails), nil
}

// ListChainHeads возвращает последнюю версию каждой видимой цепочки,
// упорядоченные по created_at согласно sortOrder.
func (s *HistoryService) ListChainHeads(ctx context.Context, caller model.Caller, sortOrder string) ([]model.ChainHead, error) {
	var owner *string
	if !caller.IsAdmin {
		owner = &caller.ID
	}

	records, err := s.docs.ListChainHeads(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения последних версий: %w", err)
	}

	desc := sortOrder != model.SortOldest
	slices.SortStableFunc(records, func(a, b *model.DocumentRecord) int {
		return compareTime(a.CreatedAt, b.CreatedAt, desc)
	})

	heads := make([]model.ChainHead, 0, len(records))
	for _, r := range records {
		heads = append(heads, model.ChainHead{
			DocumentID:  r.DocumentID,
			DisplayName: r.DisplayName,
			Version:     r.Version,
			OwnerID:     r.OwnerID,
			CreatedAt:   r.CreatedAt,
		})
	}
	return heads, nil
}

// GroupHistory разбивает записи на цепочки по document_id (в порядке первого
// появления), упорядочивает историю каждой цепочки и сами цепочки по created_at:
// по убыванию, если sortOrder не "oldest". Сортировки стабильные.
// emails != nil — каждая версия получает email загрузившего (пустой, если неизвестен).
func GroupHistory(records []*model.DocumentRecord, sortOrder string, emails map[string]string) []model.DocumentGroup {
	desc := sortOrder != model.SortOldest

	var order []string
	chains := make(map[string][]*model.DocumentRecord)
	for _, r := range records {
		if _, ok := chains[r.DocumentID]; !ok {
			order = append(order, r.DocumentID)
		}
		chains[r.DocumentID] = append(chains[r.DocumentID], r)
	}

	type keyedGroup struct {
		group model.DocumentGroup
		key   time.Time
	}
	keyed := make([]keyedGroup, 0, len(order))

	for _, docID := range order {
		versions := slices.Clone(chains[docID])
		slices.SortStableFunc(versions, func(a, b *model.DocumentRecord) int {
			return compareTime(a.CreatedAt, b.CreatedAt, desc)
		})

		entries := make([]model.HistoryEntry, 0, len(versions))
		for _, r := range versions {
			entries = append(entries, historyEntry(r, emails))
		}

		keyed = append(keyed, keyedGroup{
			group: model.DocumentGroup{
				DocumentID:  docID,
				DisplayName: canonicalName(chains[docID]),
				Versions:    entries,
			},
			// Первая запись после сортировки — max (desc) или min (asc)
			key: versions[0].CreatedAt,
		})
	}

	slices.SortStableFunc(keyed, func(a, b keyedGroup) int {
		return compareTime(a.key, b.key, desc)
	})

	groups := make([]model.DocumentGroup, 0, len(keyed))
	for _, k := range keyed {
		groups = append(groups, k.group)
	}
	return groups
}

// canonicalName — имя корневой версии, иначе версии с наименьшим номером.
func canonicalName(versions []*model.DocumentRecord) string {
	lowest := versions[0]
	for _, r := range versions {
		if r.IsRoot() {
			return r.DisplayName
		}
		if r.Version < lowest.Version {
			lowest = r
		}
	}
	return lowest.DisplayName
}

// historyEntry — публичное представление версии. Хэш пароля,
// путь в хранилище и превью не копируются.
func historyEntry(r *model.DocumentRecord, emails map[string]string) model.HistoryEntry {
	e := model.HistoryEntry{
		DisplayName: r.DisplayName,
		Fingerprint: r.Fingerprint,
		Version:     r.Version,
		CreatedAt:   r.CreatedAt,
		PublicRef:   r.PublicRef,
		Signature:   r.Signature,
		OwnerID:     r.OwnerID,
	}
	if emails != nil {
		email := emails[r.OwnerID]
		e.OwnerEmail = &email
	}
	return e
}

// compareTime сравнивает моменты времени в заданном направлении.
func compareTime(a, b time.Time, desc bool) int {
	if desc {
		return b.Compare(a)
	}
	return a.Compare(b)
}

// distinctOwners возвращает уникальные owner_id в порядке появления.
func distinctOwners(records []*model.DocumentRecord) []string {
	seen := make(map[string]struct{}, len(records))
	var owners []string
	for _, r := range records {
		if _, ok := seen[r.OwnerID]; ok {
			continue
		}
		seen[r.OwnerID] = struct{}{}
		owners = append(owners, r.OwnerID)
	}
	return owners
}
