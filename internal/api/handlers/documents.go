// documents.go — обработчики /api/v1/documents: регистрация, сверка,
// история, последние версии, карточка и удаление.
package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	apierrors "github.com/bigkaa/docukeeper/internal/api/errors"
	"github.com/bigkaa/docukeeper/internal/api/middleware"
	"github.com/bigkaa/docukeeper/internal/domain/model"
	"github.com/bigkaa/docukeeper/internal/service"
)

// Поля multipart-форм.
const (
	fieldDocumentFile     = "document_file"
	fieldPassword         = "password"
	fieldUploadType       = "upload_type"
	fieldTargetDocumentID = "target_document_id"
	fieldOriginalFileHash = "original_file_hash"
	fieldFileHash         = "file_hash"
)

const (
	// multipartOverhead — запас на заголовки и текстовые поля формы
	multipartOverhead = 1 << 20
	// multipartMemory — часть формы, хранимая в памяти (остальное во временных файлах)
	multipartMemory = 32 << 20
	// dateOnlyLen — длина значения вида 2006-01-02
	dateOnlyLen = len(time.DateOnly)
)

// registerResponse — ответ на регистрацию документа.
type registerResponse struct {
	DocumentID  string    `json:"document_id"`
	Version     int       `json:"version"`
	FileName    string    `json:"file_name"`
	FileHash    string    `json:"file_hash"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Signature   string    `json:"signature,omitempty"`
	PublicURL   string    `json:"public_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// meResponse — ответ GET /api/v1/auth/me.
type meResponse struct {
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"is_admin"`
}

// RegisterDocument — POST /api/v1/documents.
// multipart: document_file, password, upload_type (new|update), target_document_id.
func (h *APIHandler) RegisterDocument(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	filename, data, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	mode := strings.TrimSpace(r.FormValue(fieldUploadType))
	if mode == "" {
		mode = model.ModeNew
	}

	rec, err := h.registration.Register(r.Context(), service.RegisterParams{
		Caller:           caller,
		Filename:         filename,
		Data:             data,
		AccessSecret:     r.FormValue(fieldPassword),
		Mode:             mode,
		TargetDocumentID: strings.TrimSpace(r.FormValue(fieldTargetDocumentID)),
	})
	if err != nil {
		h.writeServiceError(w, err, "register")
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{
		DocumentID:  rec.DocumentID,
		Version:     rec.Version,
		FileName:    rec.DisplayName,
		FileHash:    rec.Fingerprint,
		ContentType: rec.ContentType,
		Size:        rec.Size,
		Signature:   rec.Signature,
		PublicURL:   rec.PublicRef,
		CreatedAt:   rec.CreatedAt,
	})
}

// VerifyDocument — POST /api/v1/documents/verify.
// multipart: original_file_hash, document_file.
func (h *APIHandler) VerifyDocument(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	_, data, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	original := strings.TrimSpace(r.FormValue(fieldOriginalFileHash))
	if original == "" {
		apierrors.ValidationError(w, "Не передан original_file_hash")
		return
	}

	result, err := h.verification.Verify(r.Context(), caller, original, data)
	if err != nil {
		h.writeServiceError(w, err, "verify")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListDocuments — GET /api/v1/documents?sort=&q=&from=&to=.
func (h *APIHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	var (
		sortOrder *string
		query     *string
		from      *string
		to        *string
	)
	for _, p := range []struct {
		name string
		dest **string
	}{
		{"sort", &sortOrder},
		{"q", &query},
		{"from", &from},
		{"to", &to},
	} {
		if err := runtime.BindQueryParameter("form", true, false, p.name, r.URL.Query(), p.dest); err != nil {
			apierrors.ValidationError(w, fmt.Sprintf("Некорректный параметр %s: %s", p.name, err))
			return
		}
	}

	sortValue, err := parseSort(sortOrder)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	params := service.ListParams{Sort: sortValue}
	if query != nil {
		params.Query = *query
	}
	if params.From, err = parseBound(from, false); err != nil {
		apierrors.ValidationError(w, "Некорректный параметр from: "+err.Error())
		return
	}
	if params.To, err = parseBound(to, true); err != nil {
		apierrors.ValidationError(w, "Некорректный параметр to: "+err.Error())
		return
	}
	if params.From != nil && params.To != nil && params.From.After(*params.To) {
		apierrors.ValidationError(w, "Параметр from позже to")
		return
	}

	groups, err := h.history.ListDocuments(r.Context(), caller, params)
	if err != nil {
		h.writeServiceError(w, err, "list_documents")
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

// ListChainHeads — GET /api/v1/documents/heads?sort=.
func (h *APIHandler) ListChainHeads(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	var sortOrder *string
	if err := runtime.BindQueryParameter("form", true, false, "sort", r.URL.Query(), &sortOrder); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный параметр sort: %s", err))
		return
	}
	sortValue, err := parseSort(sortOrder)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	heads, err := h.history.ListChainHeads(r.Context(), caller, sortValue)
	if err != nil {
		h.writeServiceError(w, err, "list_chain_heads")
		return
	}
	writeJSON(w, http.StatusOK, heads)
}

// DocumentDetail — POST /api/v1/documents/detail.
// Форма: file_hash, password.
func (h *APIHandler) DocumentDetail(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, multipartOverhead)
	fileHash := strings.TrimSpace(r.FormValue(fieldFileHash))
	if fileHash == "" {
		apierrors.ValidationError(w, "Не передан file_hash")
		return
	}

	detail, err := h.detail.Detail(r.Context(), caller, fileHash, r.FormValue(fieldPassword))
	if err != nil {
		h.writeServiceError(w, err, "detail")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// DeleteDocument — DELETE /api/v1/documents/{fileHash}.
func (h *APIHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}

	fileHash, ok := fileHashParam(w, r)
	if !ok {
		return
	}

	result, err := h.deletion.Delete(r.Context(), caller, fileHash)
	if err != nil {
		h.writeServiceError(w, err, "delete")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// AdminDocumentDetail — GET /api/v1/admin/documents/{fileHash}.
// Авторизация: RequireAdmin — на уровне middleware.
func (h *APIHandler) AdminDocumentDetail(w http.ResponseWriter, r *http.Request) {
	fileHash, ok := fileHashParam(w, r)
	if !ok {
		return
	}

	detail, err := h.detail.AdminDetail(r.Context(), fileHash)
	if err != nil {
		h.writeServiceError(w, err, "admin_detail")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// Me — GET /api/v1/auth/me. Проверка токена и текущий пользователь.
func (h *APIHandler) Me(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		apierrors.Unauthorized(w, "Требуется аутентификация")
		return
	}
	writeJSON(w, http.StatusOK, meResponse{UserID: caller.ID, Email: caller.Email, IsAdmin: caller.IsAdmin})
}

// --- Разбор запросов ---

// readUpload разбирает multipart-форму и читает document_file.
// При ошибке ответ уже записан и возвращается ok == false.
func (h *APIHandler) readUpload(w http.ResponseWriter, r *http.Request) (filename string, data []byte, ok bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if isTooLarge(err) {
			apierrors.PayloadTooLarge(w, fmt.Sprintf("Размер загрузки превышает %d байт", h.maxUploadSize))
			return "", nil, false
		}
		apierrors.ValidationError(w, fmt.Sprintf("Ошибка разбора multipart: %s", err))
		return "", nil, false
	}

	file, header, err := r.FormFile(fieldDocumentFile)
	if err != nil {
		apierrors.ValidationError(w, "Не передан document_file")
		return "", nil, false
	}
	defer file.Close()

	data, err = readLimited(file, h.maxUploadSize)
	if err != nil {
		if isTooLarge(err) {
			apierrors.PayloadTooLarge(w, fmt.Sprintf("Размер файла превышает %d байт", h.maxUploadSize))
			return "", nil, false
		}
		h.writeServiceError(w, err, "read_upload")
		return "", nil, false
	}
	return header.Filename, data, true
}

// readLimited читает файл целиком, но не больше limit байт.
func readLimited(f multipart.File, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, &http.MaxBytesError{Limit: limit}
	}
	return data, nil
}

// isTooLarge — превышен лимит MaxBytesReader или размера файла.
// multipart не всегда сохраняет цепочку ошибок, поэтому проверяется и текст.
func isTooLarge(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return errors.As(err, &maxBytesErr) || strings.Contains(err.Error(), "request body too large")
}

// fileHashParam извлекает {fileHash} из пути.
func fileHashParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	var fileHash string
	err := runtime.BindStyledParameterWithOptions("simple", "fileHash", chi.URLParam(r, "fileHash"), &fileHash,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный параметр fileHash: %s", err))
		return "", false
	}
	return fileHash, true
}

// parseSort проверяет порядок сортировки. Пустой — latest.
func parseSort(v *string) (string, error) {
	if v == nil || *v == "" {
		return model.SortLatest, nil
	}
	switch *v {
	case model.SortLatest, model.SortOldest:
		return *v, nil
	default:
		return "", fmt.Errorf("недопустимое значение sort %q: допустимые latest, oldest", *v)
	}
}

// parseBound разбирает границу периода: RFC 3339 или дата 2006-01-02.
// Дата в верхней границе включает весь день.
func parseBound(v *string, upper bool) (*time.Time, error) {
	if v == nil || *v == "" {
		return nil, nil
	}
	if len(*v) == dateOnlyLen {
		t, err := time.Parse(time.DateOnly, *v)
		if err != nil {
			return nil, err
		}
		if upper {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, *v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
