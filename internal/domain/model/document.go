// Пакет model — доменные модели DocuKeeper.
package model

import "time"

// Режимы регистрации документа.
const (
	// ModeNew — новый документ (версия 1, новая цепочка)
	ModeNew = "new"
	// ModeUpdate — новая версия существующей цепочки
	ModeUpdate = "update"
)

// Порядок сортировки истории.
const (
	// SortLatest — сначала новые (значение по умолчанию)
	SortLatest = "latest"
	// SortOldest — сначала старые
	SortOldest = "oldest"
)

// Статус подписи при сверке.
const (
	SignatureValid   = "valid"
	SignatureInvalid = "invalid"
	SignatureAbsent  = "absent"
)

// DocumentRecord — одна версия документа.
// Хранится в таблице documents, после вставки не изменяется.
type DocumentRecord struct {
	// ID — суррогатный первичный ключ
	ID int64
	// OwnerID — идентификатор загрузившего (sub из JWT)
	OwnerID string
	// DocumentID — UUID цепочки версий, общий для всех версий
	DocumentID string
	// Version — номер версии, начиная с 1, без пропусков
	Version int
	// DisplayName — имя файла, переданное при загрузке этой версии
	DisplayName string
	// Fingerprint — SHA-256 содержимого в hex
	Fingerprint string
	// ContentType — MIME-тип, определённый по расширению
	ContentType string
	// Size — размер содержимого в байтах
	Size int64
	// ContentPreview — текстовое превью для text/*, иначе пусто
	ContentPreview string
	// AccessSecretHash — bcrypt-хэш пароля доступа к деталям
	AccessSecretHash string
	// Signature — RSA-PSS подпись отпечатка в hex, пусто если не подписан
	Signature string
	// StorageRef — путь объекта в хранилище
	StorageRef string
	// PublicRef — публичная ссылка на объект
	PublicRef string
	// CreatedAt — время сохранения записи
	CreatedAt time.Time
}

// IsRoot — корневая ли это версия цепочки.
func (r *DocumentRecord) IsRoot() bool {
	return r.Version == 1
}

// HistoryEntry — версия документа в выдаче истории.
// Не содержит хэша пароля, пути в хранилище и превью.
type HistoryEntry struct {
	DisplayName string    `json:"file_name"`
	Fingerprint string    `json:"file_hash"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	PublicRef   string    `json:"public_url,omitempty"`
	Signature   string    `json:"signature,omitempty"`
	OwnerID     string    `json:"user_id"`
	// OwnerEmail заполняется только для администраторов
	OwnerEmail *string `json:"user_email,omitempty"`
}

// DocumentGroup — история одной цепочки версий.
type DocumentGroup struct {
	DocumentID string `json:"document_id"`
	// DisplayName — имя корневой версии (или самой ранней из доступных)
	DisplayName string         `json:"latest_file_name"`
	Versions    []HistoryEntry `json:"version_history"`
}

// ChainHead — последняя версия цепочки (для выбора цели обновления).
type ChainHead struct {
	DocumentID  string    `json:"document_id"`
	DisplayName string    `json:"file_name"`
	Version     int       `json:"version"`
	OwnerID     string    `json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// VerificationResult — результат сверки предъявленного файла с оригиналом.
type VerificationResult struct {
	IsValid              bool   `json:"is_valid"`
	Message              string `json:"message"`
	OriginalFingerprint  string `json:"original_hash"`
	PresentedFingerprint string `json:"uploaded_hash"`
	// SignatureStatus — valid, invalid или absent
	SignatureStatus string `json:"signature_status"`
}

// DeleteResult — итог удаления.
type DeleteResult struct {
	DeletedRecords int      `json:"deleted_records"`
	Warnings       []string `json:"warnings,omitempty"`
}

// DocumentDetail — карточка документа, открываемая по паролю
// (или администратором без пароля).
type DocumentDetail struct {
	DisplayName    string    `json:"file_name"`
	Fingerprint    string    `json:"file_hash"`
	DocumentID     string    `json:"document_id"`
	Version        int       `json:"version"`
	ContentType    string    `json:"content_type"`
	Size           int64     `json:"size"`
	Signature      string    `json:"signature,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	ContentPreview string    `json:"file_content,omitempty"`
	PublicRef      string    `json:"public_url,omitempty"`
	// OwnerEmail — только в административной карточке
	OwnerEmail *string `json:"user_email,omitempty"`
}
