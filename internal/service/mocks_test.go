package service

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/bigkaa/docukeeper/internal/domain/model"
	"github.com/bigkaa/docukeeper/internal/repository"
	"github.com/bigkaa/docukeeper/internal/signing"
)

// --- Mock DocumentRepository ---

// mockDocumentRepo — мок DocumentRepository для unit-тестов.
type mockDocumentRepo struct {
	insertFn            func(ctx context.Context, rec *model.DocumentRecord) error
	findRootFn          func(ctx context.Context, ownerID, fingerprint string) (*model.DocumentRecord, error)
	latestVersionFn     func(ctx context.Context, documentID, ownerID string) (int, error)
	findByFingerprintFn func(ctx context.Context, fingerprint string, ownerID *string) ([]*model.DocumentRecord, error)
	listByDocumentFn    func(ctx context.Context, documentID string) ([]*model.DocumentRecord, error)
	listFn              func(ctx context.Context, filters repository.DocumentListFilters) ([]*model.DocumentRecord, error)
	listChainHeadsFn    func(ctx context.Context, ownerID *string) ([]*model.DocumentRecord, error)
	deleteByIDFn        func(ctx context.Context, id int64) (string, error)
	deleteChainFn       func(ctx context.Context, documentID string) ([]string, error)
}

func (m *mockDocumentRepo) Insert(ctx context.Context, rec *model.DocumentRecord) error {
	if m.insertFn != nil {
		return m.insertFn(ctx, rec)
	}
	return nil
}

func (m *mockDocumentRepo) FindRoot(ctx context.Context, ownerID, fingerprint string) (*model.DocumentRecord, error) {
	if m.findRootFn != nil {
		return m.findRootFn(ctx, ownerID, fingerprint)
	}
	return nil, repository.ErrNotFound
}

func (m *mockDocumentRepo) LatestVersion(ctx context.Context, documentID, ownerID string) (int, error) {
	if m.latestVersionFn != nil {
		return m.latestVersionFn(ctx, documentID, ownerID)
	}
	return 0, repository.ErrNotFound
}

func (m *mockDocumentRepo) FindByFingerprint(ctx context.Context, fingerprint string, ownerID *string) ([]*model.DocumentRecord, error) {
	if m.findByFingerprintFn != nil {
		return m.findByFingerprintFn(ctx, fingerprint, ownerID)
	}
	return nil, nil
}

func (m *mockDocumentRepo) ListByDocument(ctx context.Context, documentID string) ([]*model.DocumentRecord, error) {
	if m.listByDocumentFn != nil {
		return m.listByDocumentFn(ctx, documentID)
	}
	return nil, nil
}

func (m *mockDocumentRepo) List(ctx context.Context, filters repository.DocumentListFilters) ([]*model.DocumentRecord, error) {
	if m.listFn != nil {
		return m.listFn(ctx, filters)
	}
	return nil, nil
}

func (m *mockDocumentRepo) ListChainHeads(ctx context.Context, ownerID *string) ([]*model.DocumentRecord, error) {
	if m.listChainHeadsFn != nil {
		return m.listChainHeadsFn(ctx, ownerID)
	}
	return nil, nil
}

func (m *mockDocumentRepo) DeleteByID(ctx context.Context, id int64) (string, error) {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return "", repository.ErrNotFound
}

func (m *mockDocumentRepo) DeleteChain(ctx context.Context, documentID string) ([]string, error) {
	if m.deleteChainFn != nil {
		return m.deleteChainFn(ctx, documentID)
	}
	return nil, repository.ErrNotFound
}

// --- Mock UserRepository ---

// mockUserRepo — мок UserRepository.
type mockUserRepo struct {
	upsertFn      func(ctx context.Context, u *model.User) error
	emailsByIDsFn func(ctx context.Context, ids []string) (map[string]string, error)
}

func (m *mockUserRepo) Upsert(ctx context.Context, u *model.User) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, u)
	}
	return nil
}

func (m *mockUserRepo) EmailsByIDs(ctx context.Context, ids []string) (map[string]string, error) {
	if m.emailsByIDsFn != nil {
		return m.emailsByIDsFn(ctx, ids)
	}
	return map[string]string{}, nil
}

// --- Mock ObjectStore ---

// mockObjectStore — мок storage.ObjectStore, запоминает записанные и удалённые пути.
type mockObjectStore struct {
	mu       sync.Mutex
	putFn    func(ctx context.Context, path string, data []byte, contentType string) error
	removeFn func(ctx context.Context, paths []string) error
	put      []string
	removed  []string
}

func (m *mockObjectStore) Put(ctx context.Context, path string, data []byte, contentType string) error {
	if m.putFn != nil {
		if err := m.putFn(ctx, path, data, contentType); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.put = append(m.put, path)
	m.mu.Unlock()
	return nil
}

func (m *mockObjectStore) PublicRef(path string) string {
	return "https://blobs.test/" + path
}

func (m *mockObjectStore) Remove(ctx context.Context, paths []string) error {
	m.mu.Lock()
	m.removed = append(m.removed, paths...)
	m.mu.Unlock()
	if m.removeFn != nil {
		return m.removeFn(ctx, paths)
	}
	return nil
}

// --- Общие помощники ---

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
	testKeyErr  error
)

// signingAuthority возвращает Authority с ключом, общим для всех тестов пакета.
func signingAuthority(t *testing.T) *signing.Authority {
	t.Helper()
	testKeyOnce.Do(func() {
		testKey, testKeyErr = rsa.GenerateKey(rand.Reader, signing.MinKeyBits)
	})
	if testKeyErr != nil {
		t.Fatalf("генерация ключа: %v", testKeyErr)
	}
	return signing.NewAuthority(testKey, nil, slog.Default())
}

var errBoom = errors.New("boom")

func caller(id string) model.Caller {
	return model.Caller{ID: id, Email: id + "@example.com"}
}

func admin(id string) model.Caller {
	return model.Caller{ID: id, Email: id + "@example.com", IsAdmin: true}
}
