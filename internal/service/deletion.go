// deletion.go — удаление версий и цепочек вместе с объектами хранилища.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bigkaa/docukeeper/internal/domain/model"
	"github.com/bigkaa/docukeeper/internal/fingerprint"
	"github.com/bigkaa/docukeeper/internal/repository"
	"github.com/bigkaa/docukeeper/internal/storage"
)

// blobRemoveTimeout — лимит на удаление объектов после удаления записей.
const blobRemoveTimeout = 30 * time.Second

// DeletionService — удаление документов.
type DeletionService struct {
	docs   repository.DocumentRepository
	store  storage.ObjectStore
	logger *slog.Logger
}

// NewDeletionService создаёт DeletionService.
func NewDeletionService(docs repository.DocumentRepository, store storage.ObjectStore, logger *slog.Logger) *DeletionService {
	return &DeletionService{
		docs:   docs,
		store:  store,
		logger: logger.With(slog.String("component", "deletion")),
	}
}

// Delete удаляет версию с отпечатком. Удаление корневой версии удаляет всю цепочку.
// Удалять может владелец или администратор. Сначала удаляются записи, затем
// объекты; ошибки удаления объектов возвращаются как предупреждения.
func (s *DeletionService) Delete(ctx context.Context, caller model.Caller, fingerprintHex string) (*model.DeleteResult, error) {
	fp, err := fingerprint.Parse(fingerprintHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	records, err := s.docs.FindByFingerprint(ctx, fp.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска документа: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: отпечаток %s", ErrNotFound, fp)
	}

	target := ownedFirst(records, caller.ID)
	if target.OwnerID != caller.ID && !caller.IsAdmin {
		return nil, fmt.Errorf("%w: удалять может только владелец или администратор", ErrForbidden)
	}

	var refs []string
	if target.IsRoot() {
		refs, err = s.docs.DeleteChain(ctx, target.DocumentID)
	} else {
		var ref string
		ref, err = s.docs.DeleteByID(ctx, target.ID)
		refs = []string{ref}
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: документ уже удалён", ErrNotFound)
		}
		return nil, fmt.Errorf("ошибка удаления документа: %w", err)
	}

	result := &model.DeleteResult{DeletedRecords: len(refs)}
	result.Warnings = s.removeBlobs(ctx, refs)

	s.logger.Info("Документ удалён",
		slog.String("caller_id", caller.ID),
		slog.String("document_id", target.DocumentID),
		slog.Int("version", target.Version),
		slog.Bool("chain", target.IsRoot()),
		slog.Int("deleted_records", result.DeletedRecords),
		slog.Int("warnings", len(result.Warnings)),
	)
	return result, nil
}

// removeBlobs удаляет объекты и возвращает описания неудач.
// Записи к этому моменту уже удалены, поэтому отмена запроса не прерывает удаление.
func (s *DeletionService) removeBlobs(ctx context.Context, refs []string) []string {
	var paths []string
	for _, r := range refs {
		if r != "" {
			paths = append(paths, r)
		}
	}
	if len(paths) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), blobRemoveTimeout)
	defer cancel()

	err := s.store.Remove(ctx, paths)
	if err == nil {
		return nil
	}

	failures := []error{err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		failures = joined.Unwrap()
	}

	warnings := make([]string, 0, len(failures))
	for _, f := range failures {
		blobDeleteFailuresTotal.Inc()
		s.logger.Warn("Не удалось удалить объект хранилища", slog.String("error", f.Error()))
		warnings = append(warnings, f.Error())
	}
	return warnings
}
