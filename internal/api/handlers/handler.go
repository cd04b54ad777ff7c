// handler.go — основной обработчик API DocuKeeper.
// Разбирает HTTP-запросы, вызывает сервисный слой и сопоставляет
// ошибки сервисов с HTTP-статусами.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/docukeeper/internal/api/errors"
	"github.com/bigkaa/docukeeper/internal/domain/model"
	"github.com/bigkaa/docukeeper/internal/service"
)

// Registrar — регистрация документов.
type Registrar interface {
	Register(ctx context.Context, p service.RegisterParams) (*model.DocumentRecord, error)
}

// Verifier — сверка документов.
type Verifier interface {
	Verify(ctx context.Context, caller model.Caller, originalFingerprint string, presented []byte) (*model.VerificationResult, error)
}

// HistoryReader — список документов и последних версий.
type HistoryReader interface {
	ListDocuments(ctx context.Context, caller model.Caller, params service.ListParams) ([]model.DocumentGroup, error)
	ListChainHeads(ctx context.Context, caller model.Caller, sortOrder string) ([]model.ChainHead, error)
}

// DetailReader — карточка документа.
type DetailReader interface {
	Detail(ctx context.Context, caller model.Caller, fingerprintHex, secret string) (*model.DocumentDetail, error)
	AdminDetail(ctx context.Context, fingerprintHex string) (*model.DocumentDetail, error)
}

// Deleter — удаление документов.
type Deleter interface {
	Delete(ctx context.Context, caller model.Caller, fingerprintHex string) (*model.DeleteResult, error)
}

// Services — зависимости APIHandler.
type Services struct {
	Registration Registrar
	Verification Verifier
	History      HistoryReader
	Detail       DetailReader
	Deletion     Deleter
}

// APIHandler — обработчик API документов.
type APIHandler struct {
	health        *HealthHandler
	registration  Registrar
	verification  Verifier
	history       HistoryReader
	detail        DetailReader
	deletion      Deleter
	maxUploadSize int64
	logger        *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
// maxUploadSize — максимальный размер загружаемого файла в байтах.
func NewAPIHandler(health *HealthHandler, svc Services, maxUploadSize int64, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		health:        health,
		registration:  svc.Registration,
		verification:  svc.Verification,
		history:       svc.History,
		detail:        svc.Detail,
		deletion:      svc.Deletion,
		maxUploadSize: maxUploadSize,
		logger:        logger.With(slog.String("component", "api_handler")),
	}
}

// --- Health endpoints (делегируются в HealthHandler) ---

// HealthLive — liveness probe.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeServiceError сопоставляет ошибку сервиса с HTTP-ответом.
// Неизвестные ошибки логируются и возвращаются как 500 без деталей.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, err error, op string) {
	var maxBytesErr *http.MaxBytesError

	switch {
	case errors.As(err, &maxBytesErr):
		apierrors.PayloadTooLarge(w, "Размер загрузки превышает допустимый")
	case errors.Is(err, service.ErrDuplicate):
		apierrors.WriteError(w, http.StatusConflict, apierrors.CodeDuplicate, err.Error())
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrMissingTarget):
		apierrors.WriteError(w, http.StatusBadRequest, apierrors.CodeMissingTarget, err.Error())
	case errors.Is(err, service.ErrInvalidMode):
		apierrors.WriteError(w, http.StatusBadRequest, apierrors.CodeInvalidMode, err.Error())
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrForbidden):
		apierrors.Forbidden(w, err.Error())
	case errors.Is(err, service.ErrInvalidSecret):
		apierrors.WriteError(w, http.StatusForbidden, apierrors.CodeInvalidSecret, service.ErrInvalidSecret.Error())
	case errors.Is(err, service.ErrUnauthenticated):
		apierrors.Unauthorized(w, err.Error())
	case errors.Is(err, service.ErrStorage):
		h.logger.Error("Ошибка объектного хранилища",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
		apierrors.StorageUnavailable(w, service.ErrStorage.Error())
	default:
		h.logger.Error("Внутренняя ошибка",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}
