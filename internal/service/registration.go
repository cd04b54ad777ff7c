// registration.go — регистрация документов: проверка дубликатов,
// назначение версии, подпись, запись в хранилище и в базу.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/bigkaa/docukeeper/internal/domain/model"
	"github.com/bigkaa/docukeeper/internal/fingerprint"
	"github.com/bigkaa/docukeeper/internal/repository"
	"github.com/bigkaa/docukeeper/internal/signing"
	"github.com/bigkaa/docukeeper/internal/storage"
)

// RegisterParams — входные данные регистрации.
type RegisterParams struct {
	Caller model.Caller
	// Filename — имя файла, как его передал клиент
	Filename string
	Data     []byte
	// AccessSecret — пароль для просмотра деталей документа
	AccessSecret string
	// Mode — new или update
	Mode string
	// TargetDocumentID — цепочка для режима update
	TargetDocumentID string
}

// RegistrationService — регистрация новых документов и версий.
type RegistrationService struct {
	docs            repository.DocumentRepository
	store           storage.ObjectStore
	authority       *signing.Authority
	previewMaxChars int
	logger          *slog.Logger
}

// NewRegistrationService создаёт RegistrationService.
// previewMaxChars — максимальная длина текстового превью (0 — без превью).
func NewRegistrationService(
	docs repository.DocumentRepository,
	store storage.ObjectStore,
	authority *signing.Authority,
	previewMaxChars int,
	logger *slog.Logger,
) *RegistrationService {
	return &RegistrationService{
		docs:            docs,
		store:           store,
		authority:       authority,
		previewMaxChars: previewMaxChars,
		logger:          logger.With(slog.String("component", "registration")),
	}
}

// Register регистрирует документ или его новую версию.
//
// Объект пишется в хранилище до вставки записи: прерванная загрузка оставляет
// в худшем случае объект без записи. Если вставка не удалась, только что
// записанный объект удаляется.
func (s *RegistrationService) Register(ctx context.Context, p RegisterParams) (*model.DocumentRecord, error) {
	switch p.Mode {
	case model.ModeNew, model.ModeUpdate:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, p.Mode)
	}
	if p.Mode == model.ModeUpdate && strings.TrimSpace(p.TargetDocumentID) == "" {
		return nil, ErrMissingTarget
	}
	if strings.TrimSpace(p.Filename) == "" {
		return nil, fmt.Errorf("%w: не передано имя файла", ErrValidation)
	}
	if p.AccessSecret == "" {
		return nil, fmt.Errorf("%w: пароль документа не может быть пустым", ErrValidation)
	}

	owner := p.Caller.ID
	digest := fingerprint.Sum(p.Data)
	fp := digest.String()

	rec := &model.DocumentRecord{
		OwnerID:     owner,
		DisplayName: displayName(p.Filename),
		Fingerprint: fp,
		Size:        int64(len(p.Data)),
	}

	switch p.Mode {
	case model.ModeNew:
		_, err := s.docs.FindRoot(ctx, owner, fp)
		switch {
		case err == nil:
			return nil, fmt.Errorf("%w: отпечаток %s", ErrDuplicate, fp)
		case !errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("ошибка проверки дубликата: %w", err)
		}
		rec.DocumentID = uuid.NewString()
		rec.Version = 1

	case model.ModeUpdate:
		target, err := uuid.Parse(strings.TrimSpace(p.TargetDocumentID))
		if err != nil {
			return nil, fmt.Errorf("%w: цепочка %q", ErrNotFound, p.TargetDocumentID)
		}
		latest, err := s.docs.LatestVersion(ctx, target.String(), owner)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("%w: цепочка %s", ErrNotFound, target)
			}
			return nil, fmt.Errorf("ошибка получения последней версии: %w", err)
		}
		rec.DocumentID = target.String()
		rec.Version = latest + 1
	}

	rec.Signature = s.sign(digest)

	hash, err := bcrypt.GenerateFromPassword([]byte(p.AccessSecret), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	rec.AccessSecretHash = string(hash)

	rec.ContentType = detectContentType(rec.DisplayName, p.Data)
	if strings.HasPrefix(rec.ContentType, "text/") {
		rec.ContentPreview = textPreview(p.Data, s.previewMaxChars)
	}

	rec.StorageRef = storage.ObjectPath(owner, rec.DisplayName)
	if err := s.store.Put(ctx, rec.StorageRef, p.Data, rec.ContentType); err != nil {
		s.logger.Error("Ошибка записи объекта в хранилище",
			slog.String("storage_ref", rec.StorageRef),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	rec.PublicRef = s.store.PublicRef(rec.StorageRef)

	if err := s.docs.Insert(ctx, rec); err != nil {
		s.discardBlob(ctx, rec.StorageRef)
		switch {
		case errors.Is(err, repository.ErrDuplicateRoot):
			return nil, fmt.Errorf("%w: отпечаток %s", ErrDuplicate, fp)
		case errors.Is(err, repository.ErrConflict):
			return nil, fmt.Errorf("%w: цепочка %s, версия %d", ErrConflict, rec.DocumentID, rec.Version)
		default:
			return nil, fmt.Errorf("ошибка сохранения документа: %w", err)
		}
	}

	documentsRegisteredTotal.WithLabelValues(p.Mode).Inc()
	s.logger.Info("Документ зарегистрирован",
		slog.String("owner_id", owner),
		slog.String("document_id", rec.DocumentID),
		slog.Int("version", rec.Version),
		slog.String("fingerprint", fp),
		slog.Bool("signed", rec.Signature != ""),
	)
	return rec, nil
}

// sign подписывает отпечаток и учитывает исход в метриках.
func (s *RegistrationService) sign(d fingerprint.Digest) string {
	if !s.authority.CanSign() {
		signaturesTotal.WithLabelValues(signOutcomeUnsigned).Inc()
		return ""
	}
	sig := s.authority.Sign(d)
	if sig == "" {
		signaturesTotal.WithLabelValues(signOutcomeFailed).Inc()
		return ""
	}
	signaturesTotal.WithLabelValues(signOutcomeSigned).Inc()
	return sig
}

// discardBlob удаляет объект, для которого не удалось сохранить запись.
// Контекст запроса может быть уже отменён, поэтому он отвязывается.
func (s *RegistrationService) discardBlob(ctx context.Context, ref string) {
	if err := s.store.Remove(context.WithoutCancel(ctx), []string{ref}); err != nil {
		blobDeleteFailuresTotal.Inc()
		s.logger.Warn("Не удалось удалить объект после неудачной регистрации",
			slog.String("storage_ref", ref),
			slog.String("error", err.Error()),
		)
	}
}

// displayName отбрасывает клиентский путь, оставляя имя файла.
func displayName(filename string) string {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), `\`, "/"))
	if name == "." || name == "/" {
		return "file"
	}
	return name
}

// detectContentType определяет MIME-тип по расширению,
// при неизвестном расширении — по содержимому.
func detectContentType(filename string, data []byte) string {
	if ct := mime.TypeByExtension(strings.ToLower(path.Ext(filename))); ct != "" {
		if mediaType, _, err := mime.ParseMediaType(ct); err == nil {
			return mediaType
		}
	}
	if len(data) == 0 {
		return "application/octet-stream"
	}
	mediaType, _, err := mime.ParseMediaType(http.DetectContentType(data))
	if err != nil {
		return "application/octet-stream"
	}
	return mediaType
}

// textPreview декодирует UTF-8 с заменой некорректных байтов и
// обрезает до maxChars символов. NUL-байты удаляются (PostgreSQL text их не принимает).
func textPreview(data []byte, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}
	text := strings.ToValidUTF8(string(data), string(utf8.RuneError))
	text = strings.ReplaceAll(text, "\x00", "")

	if utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	n := 0
	for i := range text {
		if n == maxChars {
			return text[:i]
		}
		n++
	}
	return text
}
