// detail.go — карточка документа: по паролю для владельца, без пароля для администратора.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/bigkaa/docukeeper/internal/domain/model"
	"github.com/bigkaa/docukeeper/internal/fingerprint"
	"github.com/bigkaa/docukeeper/internal/repository"
)

// DetailService — выдача карточки документа.
type DetailService struct {
	docs      repository.DocumentRepository
	directory *DirectoryService
	logger    *slog.Logger
}

// NewDetailService создаёт DetailService.
func NewDetailService(docs repository.DocumentRepository, directory *DirectoryService, logger *slog.Logger) *DetailService {
	return &DetailService{
		docs:      docs,
		directory: directory,
		logger:    logger.With(slog.String("component", "detail")),
	}
}

// Detail открывает карточку владельцу после проверки пароля документа.
func (s *DetailService) Detail(ctx context.Context, caller model.Caller, fingerprintHex, secret string) (*model.DocumentDetail, error) {
	records, err := s.lookup(ctx, fingerprintHex)
	if err != nil {
		return nil, err
	}

	rec := ownedFirst(records, caller.ID)
	if rec.OwnerID != caller.ID {
		return nil, fmt.Errorf("%w: документ принадлежит другому пользователю", ErrForbidden)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(rec.AccessSecretHash), []byte(secret)); err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			s.logger.Warn("Некорректный хэш пароля документа",
				slog.Int64("id", rec.ID),
				slog.String("error", err.Error()),
			)
		}
		return nil, ErrInvalidSecret
	}

	return toDetail(rec), nil
}

// AdminDetail открывает карточку без пароля и добавляет email загрузившего.
// Доступ ограничивается на уровне маршрутизации (только администраторы).
func (s *DetailService) AdminDetail(ctx context.Context, fingerprintHex string) (*model.DocumentDetail, error) {
	records, err := s.lookup(ctx, fingerprintHex)
	if err != nil {
		return nil, err
	}
	rec := records[0]

	emails, err := s.directory.Emails(ctx, []string{rec.OwnerID})
	if err != nil {
		return nil, err
	}

	detail := toDetail(rec)
	email := emails[rec.OwnerID]
	detail.OwnerEmail = &email
	return detail, nil
}

// lookup находит все версии с отпечатком (от старых к новым).
func (s *DetailService) lookup(ctx context.Context, fingerprintHex string) ([]*model.DocumentRecord, error) {
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
	return records, nil
}

// ownedFirst выбирает самую раннюю запись владельца, иначе самую раннюю вообще.
func ownedFirst(records []*model.DocumentRecord, ownerID string) *model.DocumentRecord {
	for _, r := range records {
		if r.OwnerID == ownerID {
			return r
		}
	}
	return records[0]
}

func toDetail(r *model.DocumentRecord) *model.DocumentDetail {
	return &model.DocumentDetail{
		DisplayName:    r.DisplayName,
		Fingerprint:    r.Fingerprint,
		DocumentID:     r.DocumentID,
		Version:        r.Version,
		ContentType:    r.ContentType,
		Size:           r.Size,
		Signature:      r.Signature,
		CreatedAt:      r.CreatedAt,
		ContentPreview: r.ContentPreview,
		PublicRef:      r.PublicRef,
	}
}
