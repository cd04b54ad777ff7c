// verification.go — сверка предъявленного файла с зарегистрированным оригиналом.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bigkaa/docukeeper/internal/domain/model"
	"github.com/bigkaa/docukeeper/internal/fingerprint"
	"github.com/bigkaa/docukeeper/internal/repository"
	"github.com/bigkaa/docukeeper/internal/signing"
)

// Сообщения результата сверки.
const (
	msgFingerprintsMatch    = "Документ подлинный: отпечатки совпадают"
	msgFingerprintsMismatch = "Документ изменён: отпечатки не совпадают"
	msgSignatureValid       = " (подпись действительна)"
	msgSignatureInvalid     = " (подпись недействительна)"
)

// VerificationService — сверка документов. Только чтение.
type VerificationService struct {
	docs      repository.DocumentRepository
	authority *signing.Authority
	logger    *slog.Logger
}

// NewVerificationService создаёт VerificationService.
func NewVerificationService(docs repository.DocumentRepository, authority *signing.Authority, logger *slog.Logger) *VerificationService {
	return &VerificationService{
		docs:      docs,
		authority: authority,
		logger:    logger.With(slog.String("component", "verification")),
	}
}

// Verify сравнивает отпечаток предъявленного содержимого с оригиналом вызывающего.
// Подлинность определяется только равенством отпечатков; проверка подписи
// лишь дополняет сообщение и SignatureStatus.
func (s *VerificationService) Verify(ctx context.Context, caller model.Caller, originalFingerprint string, presented []byte) (*model.VerificationResult, error) {
	original, err := fingerprint.Parse(originalFingerprint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	records, err := s.docs.FindByFingerprint(ctx, original.String(), &caller.ID)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска оригинала: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: отпечаток %s", ErrNotFound, original)
	}
	rec := records[0]

	uploaded := fingerprint.Sum(presented)
	result := &model.VerificationResult{
		IsValid:              original.Equal(uploaded),
		OriginalFingerprint:  original.String(),
		PresentedFingerprint: uploaded.String(),
		SignatureStatus:      model.SignatureAbsent,
	}

	if result.IsValid {
		result.Message = msgFingerprintsMatch
		if rec.Signature != "" && s.authority.CanVerify() {
			if s.authority.Verify(original, rec.Signature) {
				result.SignatureStatus = model.SignatureValid
				result.Message += msgSignatureValid
			} else {
				result.SignatureStatus = model.SignatureInvalid
				result.Message += msgSignatureInvalid
			}
		}
		verificationsTotal.WithLabelValues("valid").Inc()
	} else {
		result.Message = msgFingerprintsMismatch
		verificationsTotal.WithLabelValues("invalid").Inc()
	}

	s.logger.Info("Сверка документа",
		slog.String("owner_id", caller.ID),
		slog.String("document_id", rec.DocumentID),
		slog.Bool("is_valid", result.IsValid),
		slog.String("signature_status", result.SignatureStatus),
	)
	return result, nil
}
