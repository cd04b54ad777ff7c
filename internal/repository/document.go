package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/docukeeper/internal/domain/model"
)

// DocumentRepository — доступ к таблице documents (версии документов).
type DocumentRepository interface {
	// Insert сохраняет новую версию, заполняет ID и CreatedAt.
	// ErrDuplicateRoot — корень с таким отпечатком у владельца уже есть,
	// ErrConflict — пара (document_id, version) уже занята.
	Insert(ctx context.Context, rec *model.DocumentRecord) error
	// FindRoot ищет корневую версию владельца по отпечатку.
	FindRoot(ctx context.Context, ownerID, fingerprint string) (*model.DocumentRecord, error)
	// LatestVersion возвращает максимальную версию цепочки, принадлежащей владельцу.
	LatestVersion(ctx context.Context, documentID, ownerID string) (int, error)
	// FindByFingerprint возвращает все версии с отпечатком (от старых к новым).
	// ownerID != nil ограничивает выборку владельцем.
	FindByFingerprint(ctx context.Context, fingerprint string, ownerID *string) ([]*model.DocumentRecord, error)
	// ListByDocument возвращает все версии цепочки по возрастанию номера.
	ListByDocument(ctx context.Context, documentID string) ([]*model.DocumentRecord, error)
	// List возвращает версии с фильтрацией, от новых к старым.
	List(ctx context.Context, filters DocumentListFilters) ([]*model.DocumentRecord, error)
	// ListChainHeads возвращает последнюю версию каждой цепочки.
	ListChainHeads(ctx context.Context, ownerID *string) ([]*model.DocumentRecord, error)
	// DeleteByID удаляет одну версию и возвращает её путь в хранилище.
	DeleteByID(ctx context.Context, id int64) (string, error)
	// DeleteChain удаляет все версии цепочки и возвращает их пути в хранилище.
	DeleteChain(ctx context.Context, documentID string) ([]string, error)
}

// DocumentListFilters — фильтры списка версий.
type DocumentListFilters struct {
	// OwnerID — только версии владельца (nil — все, для администратора)
	OwnerID *string
	// From — created_at >= From
	From *time.Time
	// To — created_at <= To
	To *time.Time
}

const documentColumns = `id, owner_id, document_id, version, display_name, fingerprint,
	content_type, size, content_preview, access_secret_hash, signature,
	storage_ref, public_ref, created_at`

// documentRepo — реализация DocumentRepository.
type documentRepo struct {
	db DBTX
}

// NewDocumentRepository создаёт репозиторий версий документов.
func NewDocumentRepository(db DBTX) DocumentRepository {
	return &documentRepo{db: db}
}

// scanDocument читает одну строку documentColumns.
func scanDocument(row pgx.Row) (*model.DocumentRecord, error) {
	d := &model.DocumentRecord{}
	err := row.Scan(
		&d.ID, &d.OwnerID, &d.DocumentID, &d.Version, &d.DisplayName, &d.Fingerprint,
		&d.ContentType, &d.Size, &d.ContentPreview, &d.AccessSecretHash, &d.Signature,
		&d.StorageRef, &d.PublicRef, &d.CreatedAt,
	)
	return d, err
}

// collectDocuments читает все строки выборки.
func collectDocuments(rows pgx.Rows) ([]*model.DocumentRecord, error) {
	defer rows.Close()

	var result []*model.DocumentRecord
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования документа: %w", err)
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func (r *documentRepo) Insert(ctx context.Context, rec *model.DocumentRecord) error {
	query := `
		INSERT INTO documents (owner_id, document_id, version, display_name, fingerprint,
			content_type, size, content_preview, access_secret_hash, signature,
			storage_ref, public_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query,
		rec.OwnerID, rec.DocumentID, rec.Version, rec.DisplayName, rec.Fingerprint,
		rec.ContentType, rec.Size, rec.ContentPreview, rec.AccessSecretHash, rec.Signature,
		rec.StorageRef, rec.PublicRef,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			if constraint == constraintOwnerRootPrint {
				return fmt.Errorf("%w: отпечаток %s", ErrDuplicateRoot, rec.Fingerprint)
			}
			return fmt.Errorf("%w: цепочка %s, версия %d (%s)", ErrConflict, rec.DocumentID, rec.Version, constraint)
		}
		return fmt.Errorf("ошибка сохранения документа: %w", err)
	}
	return nil
}

func (r *documentRepo) FindRoot(ctx context.Context, ownerID, fingerprint string) (*model.DocumentRecord, error) {
	query := `SELECT ` + documentColumns + `
		FROM documents
		WHERE owner_id = $1 AND fingerprint = $2 AND version = 1`

	d, err := scanDocument(r.db.QueryRow(ctx, query, ownerID, fingerprint))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка поиска корневого документа: %w", err)
	}
	return d, nil
}

func (r *documentRepo) LatestVersion(ctx context.Context, documentID, ownerID string) (int, error) {
	query := `
		SELECT max(version)
		FROM documents
		WHERE document_id = $1 AND owner_id = $2`

	var latest *int
	if err := r.db.QueryRow(ctx, query, documentID, ownerID).Scan(&latest); err != nil {
		return 0, fmt.Errorf("ошибка получения последней версии: %w", err)
	}
	if latest == nil {
		return 0, ErrNotFound
	}
	return *latest, nil
}

func (r *documentRepo) FindByFingerprint(ctx context.Context, fingerprint string, ownerID *string) ([]*model.DocumentRecord, error) {
	query := `SELECT ` + documentColumns + `
		FROM documents
		WHERE fingerprint = $1 AND ($2::text IS NULL OR owner_id = $2)
		ORDER BY created_at ASC, id ASC`

	rows, err := r.db.Query(ctx, query, fingerprint, ownerID)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска по отпечатку: %w", err)
	}
	return collectDocuments(rows)
}

func (r *documentRepo) ListByDocument(ctx context.Context, documentID string) ([]*model.DocumentRecord, error) {
	query := `SELECT ` + documentColumns + `
		FROM documents
		WHERE document_id = $1
		ORDER BY version ASC`

	rows, err := r.db.Query(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения версий цепочки: %w", err)
	}
	return collectDocuments(rows)
}

// buildDocumentWhere строит WHERE-условие и аргументы для фильтрации версий.
func buildDocumentWhere(filters DocumentListFilters, startArg int) (string, []any) {
	var conditions []string
	var args []any
	argNum := startArg

	if filters.OwnerID != nil {
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", argNum))
		args = append(args, *filters.OwnerID)
		argNum++
	}
	if filters.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argNum))
		args = append(args, *filters.From)
		argNum++
	}
	if filters.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argNum))
		args = append(args, *filters.To)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	return where, args
}

func (r *documentRepo) List(ctx context.Context, filters DocumentListFilters) ([]*model.DocumentRecord, error) {
	where, args := buildDocumentWhere(filters, 1)

	query := fmt.Sprintf(`SELECT %s
		FROM documents
		%s
		ORDER BY created_at DESC, id DESC`, documentColumns, where)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка документов: %w", err)
	}
	return collectDocuments(rows)
}

func (r *documentRepo) ListChainHeads(ctx context.Context, ownerID *string) ([]*model.DocumentRecord, error) {
	query := `SELECT DISTINCT ON (document_id) ` + documentColumns + `
		FROM documents
		WHERE ($1::text IS NULL OR owner_id = $1)
		ORDER BY document_id, version DESC`

	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения последних версий: %w", err)
	}
	return collectDocuments(rows)
}

func (r *documentRepo) DeleteByID(ctx context.Context, id int64) (string, error) {
	query := `DELETE FROM documents WHERE id = $1 RETURNING storage_ref`

	var ref string
	if err := r.db.QueryRow(ctx, query, id).Scan(&ref); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("ошибка удаления версии: %w", err)
	}
	return ref, nil
}

func (r *documentRepo) DeleteChain(ctx context.Context, documentID string) ([]string, error) {
	query := `DELETE FROM documents WHERE document_id = $1 RETURNING storage_ref`

	rows, err := r.db.Query(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("ошибка удаления цепочки: %w", err)
	}
	refs, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("ошибка удаления цепочки: %w", err)
	}
	if len(refs) == 0 {
		return nil, ErrNotFound
	}
	return refs, nil
}
