package repository

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/docukeeper/internal/config"
	"github.com/bigkaa/docukeeper/internal/database"
	"github.com/bigkaa/docukeeper/internal/domain/model"
	"github.com/bigkaa/docukeeper/internal/fingerprint"
)

// setupTestDB запускает PostgreSQL контейнер и применяет миграции.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("docukeeper_test"),
		postgres.WithUsername("docukeeper"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	t.Setenv("DK_DB_HOST", host)
	t.Setenv("DK_DB_PORT", port.Port())
	t.Setenv("DK_DB_NAME", "docukeeper_test")
	t.Setenv("DK_DB_USER", "docukeeper")
	t.Setenv("DK_DB_PASSWORD", "test-password")
	t.Setenv("DK_DB_SSL_MODE", "disable")
	t.Setenv("DK_JWT_SECRET", "test")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

// newRecord собирает версию документа для вставки.
func newRecord(owner, documentID string, version int, content string) *model.DocumentRecord {
	fp := fingerprint.Sum([]byte(content)).String()
	return &model.DocumentRecord{
		OwnerID:          owner,
		DocumentID:       documentID,
		Version:          version,
		DisplayName:      content + ".txt",
		Fingerprint:      fp,
		ContentType:      "text/plain",
		Size:             int64(len(content)),
		ContentPreview:   content,
		AccessSecretHash: "$2a$10$hash",
		StorageRef:       owner + "/" + uuid.NewString() + ".txt",
		PublicRef:        "http://localhost/blobs/" + fp,
	}
}

func TestBuildDocumentWhere(t *testing.T) {
	owner := "user-1"
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	tests := []struct {
		name     string
		filters  DocumentListFilters
		wantSQL  string
		wantArgs int
	}{
		{"без фильтров", DocumentListFilters{}, "", 0},
		{"только владелец", DocumentListFilters{OwnerID: &owner}, "WHERE owner_id = $1", 1},
		{
			"все фильтры",
			DocumentListFilters{OwnerID: &owner, From: &from, To: &to},
			"WHERE owner_id = $1 AND created_at >= $2 AND created_at <= $3",
			3,
		},
		{"только период", DocumentListFilters{From: &from, To: &to}, "WHERE created_at >= $1 AND created_at <= $2", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args := buildDocumentWhere(tt.filters, 1)
			if where != tt.wantSQL {
				t.Errorf("where = %q, ожидалось %q", where, tt.wantSQL)
			}
			if len(args) != tt.wantArgs {
				t.Errorf("len(args) = %d, ожидалось %d", len(args), tt.wantArgs)
			}
		})
	}
}

func TestDocumentRepository_InsertAndFind(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewDocumentRepository(pool)

	docID := uuid.NewString()
	root := newRecord("alice", docID, 1, "contract v1")
	if err := repo.Insert(ctx, root); err != nil {
		t.Fatalf("Insert() ошибка: %v", err)
	}
	if root.ID == 0 || root.CreatedAt.IsZero() {
		t.Errorf("ID/CreatedAt не заполнены: %d %v", root.ID, root.CreatedAt)
	}

	got, err := repo.FindRoot(ctx, "alice", root.Fingerprint)
	if err != nil {
		t.Fatalf("FindRoot() ошибка: %v", err)
	}
	if got.DocumentID != docID {
		t.Errorf("DocumentID = %q, ожидался %q", got.DocumentID, docID)
	}

	if _, err := repo.FindRoot(ctx, "bob", root.Fingerprint); !errors.Is(err, ErrNotFound) {
		t.Errorf("FindRoot() для чужого владельца: ожидалась ErrNotFound, получено %v", err)
	}

	latest, err := repo.LatestVersion(ctx, docID, "alice")
	if err != nil {
		t.Fatalf("LatestVersion() ошибка: %v", err)
	}
	if latest != 1 {
		t.Errorf("LatestVersion = %d, ожидалась 1", latest)
	}
	if _, err := repo.LatestVersion(ctx, docID, "bob"); !errors.Is(err, ErrNotFound) {
		t.Errorf("LatestVersion() для чужой цепочки: ожидалась ErrNotFound, получено %v", err)
	}
}

func TestDocumentRepository_UniqueConstraints(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewDocumentRepository(pool)

	docID := uuid.NewString()
	if err := repo.Insert(ctx, newRecord("alice", docID, 1, "same")); err != nil {
		t.Fatalf("Insert() ошибка: %v", err)
	}

	// Второй корень с тем же содержимым у того же владельца
	err := repo.Insert(ctx, newRecord("alice", uuid.NewString(), 1, "same"))
	if !errors.Is(err, ErrDuplicateRoot) {
		t.Errorf("ожидалась ErrDuplicateRoot, получено %v", err)
	}

	// Другой владелец может зарегистрировать то же содержимое
	if err := repo.Insert(ctx, newRecord("bob", uuid.NewString(), 1, "same")); err != nil {
		t.Errorf("Insert() для другого владельца: %v", err)
	}

	// Обновление может повторить содержимое
	if err := repo.Insert(ctx, newRecord("alice", docID, 2, "same")); err != nil {
		t.Errorf("Insert() версии 2 с тем же содержимым: %v", err)
	}

	// Гонка обновлений: версия 2 уже занята
	err = repo.Insert(ctx, newRecord("alice", docID, 2, "other"))
	if !errors.Is(err, ErrConflict) {
		t.Errorf("ожидалась ErrConflict, получено %v", err)
	}
}

func TestDocumentRepository_ListAndHeads(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewDocumentRepository(pool)

	docA := uuid.NewString()
	docB := uuid.NewString()
	for _, rec := range []*model.DocumentRecord{
		newRecord("alice", docA, 1, "a1"),
		newRecord("alice", docA, 2, "a2"),
		newRecord("bob", docB, 1, "b1"),
	} {
		if err := repo.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert() ошибка: %v", err)
		}
	}

	alice := "alice"
	own, err := repo.List(ctx, DocumentListFilters{OwnerID: &alice})
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if len(own) != 2 {
		t.Fatalf("List(alice) вернул %d записей, ожидалось 2", len(own))
	}
	if own[0].Version != 2 {
		t.Errorf("первая запись версии %d, ожидалась 2 (новые первыми)", own[0].Version)
	}

	future := time.Now().Add(time.Hour)
	none, err := repo.List(ctx, DocumentListFilters{From: &future})
	if err != nil {
		t.Fatalf("List(from) ошибка: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("List(from=будущее) вернул %d записей", len(none))
	}

	heads, err := repo.ListChainHeads(ctx, nil)
	if err != nil {
		t.Fatalf("ListChainHeads() ошибка: %v", err)
	}
	if len(heads) != 2 {
		t.Fatalf("ListChainHeads() вернул %d записей, ожидалось 2", len(heads))
	}
	for _, h := range heads {
		if h.DocumentID == docA && h.Version != 2 {
			t.Errorf("голова цепочки A версии %d, ожидалась 2", h.Version)
		}
	}

	ownHeads, err := repo.ListChainHeads(ctx, &alice)
	if err != nil {
		t.Fatalf("ListChainHeads(alice) ошибка: %v", err)
	}
	if len(ownHeads) != 1 {
		t.Errorf("ListChainHeads(alice) вернул %d записей, ожидалась 1", len(ownHeads))
	}

	chain, err := repo.ListByDocument(ctx, docA)
	if err != nil {
		t.Fatalf("ListByDocument() ошибка: %v", err)
	}
	if len(chain) != 2 || chain[0].Version != 1 {
		t.Errorf("ListByDocument() = %d записей, первая версия %d", len(chain), chain[0].Version)
	}
}

func TestDocumentRepository_FindByFingerprint(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewDocumentRepository(pool)

	first := newRecord("alice", uuid.NewString(), 1, "shared")
	second := newRecord("bob", uuid.NewString(), 1, "shared")
	for _, rec := range []*model.DocumentRecord{first, second} {
		if err := repo.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert() ошибка: %v", err)
		}
	}

	all, err := repo.FindByFingerprint(ctx, first.Fingerprint, nil)
	if err != nil {
		t.Fatalf("FindByFingerprint() ошибка: %v", err)
	}
	if len(all) != 2 || all[0].OwnerID != "alice" {
		t.Errorf("FindByFingerprint() = %d записей, ожидалось 2 (alice первой)", len(all))
	}

	bob := "bob"
	own, err := repo.FindByFingerprint(ctx, first.Fingerprint, &bob)
	if err != nil {
		t.Fatalf("FindByFingerprint(bob) ошибка: %v", err)
	}
	if len(own) != 1 || own[0].OwnerID != "bob" {
		t.Errorf("FindByFingerprint(bob) вернул %d записей", len(own))
	}
}

func TestDocumentRepository_Delete(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewDocumentRepository(pool)

	docID := uuid.NewString()
	v1 := newRecord("alice", docID, 1, "d1")
	v2 := newRecord("alice", docID, 2, "d2")
	v3 := newRecord("alice", docID, 3, "d3")
	for _, rec := range []*model.DocumentRecord{v1, v2, v3} {
		if err := repo.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert() ошибка: %v", err)
		}
	}

	ref, err := repo.DeleteByID(ctx, v2.ID)
	if err != nil {
		t.Fatalf("DeleteByID() ошибка: %v", err)
	}
	if ref != v2.StorageRef {
		t.Errorf("DeleteByID() вернул %q, ожидался %q", ref, v2.StorageRef)
	}
	if _, err := repo.DeleteByID(ctx, v2.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("повторный DeleteByID(): ожидалась ErrNotFound, получено %v", err)
	}

	refs, err := repo.DeleteChain(ctx, docID)
	if err != nil {
		t.Fatalf("DeleteChain() ошибка: %v", err)
	}
	if len(refs) != 2 {
		t.Errorf("DeleteChain() вернул %d путей, ожидалось 2", len(refs))
	}
	if _, err := repo.DeleteChain(ctx, docID); !errors.Is(err, ErrNotFound) {
		t.Errorf("повторный DeleteChain(): ожидалась ErrNotFound, получено %v", err)
	}
}

func TestUserRepository(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewUserRepository(pool)

	u := &model.User{ID: "alice", Email: "alice@example.com"}
	if err := repo.Upsert(ctx, u); err != nil {
		t.Fatalf("Upsert() ошибка: %v", err)
	}
	if u.LastSeenAt.IsZero() {
		t.Error("LastSeenAt не заполнен")
	}

	// Смена email обновляет запись
	u.Email = "alice@new.example.com"
	if err := repo.Upsert(ctx, u); err != nil {
		t.Fatalf("повторный Upsert() ошибка: %v", err)
	}

	emails, err := repo.EmailsByIDs(ctx, []string{"alice", "ghost"})
	if err != nil {
		t.Fatalf("EmailsByIDs() ошибка: %v", err)
	}
	if emails["alice"] != "alice@new.example.com" {
		t.Errorf("email = %q, ожидался обновлённый", emails["alice"])
	}
	if _, ok := emails["ghost"]; ok {
		t.Error("неизвестный пользователь не должен попадать в результат")
	}

	empty, err := repo.EmailsByIDs(ctx, nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("EmailsByIDs(nil) = %v, %v", empty, err)
	}
}
