// Пакет filestore — объектное хранилище на локальном диске.
// Запись атомарная: temp файл → fsync → rename.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/bigkaa/docukeeper/internal/storage"
)

// FileStore — объекты документов в директории dataDir.
type FileStore struct {
	// dataDir — корневая директория хранения (DK_STORAGE_DATA_DIR)
	dataDir string
	// publicBaseURL — префикс публичных ссылок (обслуживается /blobs/)
	publicBaseURL string
}

// New создаёт FileStore и директорию данных, если её нет.
func New(dataDir, publicBaseURL string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", dataDir, err)
	}
	return &FileStore{
		dataDir:       dataDir,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}, nil
}

// Put записывает объект атомарно. При ошибке temp файл удаляется.
func (fs *FileStore) Put(ctx context.Context, path string, data []byte, _ string) error {
	if err := storage.ValidatePath(path); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	fullPath := fs.FullPath(path)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return fmt.Errorf("ошибка создания директории объекта: %w", err)
	}

	tmpPath := fullPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи данных: %w", err)
	}

	// fsync для гарантии записи на диск
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}
	return nil
}

// PublicRef возвращает ссылку вида {publicBaseURL}/{path} с экранированием сегментов.
func (fs *FileStore) PublicRef(path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return fs.publicBaseURL + "/" + strings.Join(segments, "/")
}

// Remove удаляет объекты. Уже отсутствующие файлы пропускаются.
func (fs *FileStore) Remove(ctx context.Context, paths []string) error {
	var errs []error
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := storage.ValidatePath(p); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := os.Remove(fs.FullPath(p)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("ошибка удаления файла %s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

// Open открывает объект для чтения. Вызывающий код обязан закрыть файл.
func (fs *FileStore) Open(path string) (*os.File, error) {
	if err := storage.ValidatePath(path); err != nil {
		return nil, err
	}
	f, err := os.Open(fs.FullPath(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, path)
		}
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", path, err)
	}
	return f, nil
}

// FullPath возвращает путь к объекту на диске.
func (fs *FileStore) FullPath(path string) string {
	return filepath.Join(fs.dataDir, filepath.FromSlash(path))
}

// DataDir возвращает путь к директории данных.
func (fs *FileStore) DataDir() string {
	return fs.dataDir
}
