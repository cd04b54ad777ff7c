// Пакет gcsstore — объектное хранилище в Google Cloud Storage
// (или в эмуляторе fake-gcs-server для локальной разработки).
package gcsstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	dkstorage "github.com/bigkaa/docukeeper/internal/storage"
)

// Config — параметры подключения к bucket.
type Config struct {
	// Bucket — имя bucket (DK_GCS_BUCKET)
	Bucket string
	// EmulatorHost — адрес эмулятора; пусто — настоящий GCS
	EmulatorHost string
	// PublicBaseURL — префикс публичных ссылок (CDN или прокси)
	PublicBaseURL string
}

// Store — реализация storage.ObjectStore поверх GCS.
type Store struct {
	client        *storage.Client
	bucket        string
	emulatorHost  string
	publicBaseURL string
	logger        *slog.Logger
}

// New создаёт клиент GCS. В режиме эмулятора аутентификация отключается.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("не задано имя bucket")
	}

	emulatorHost := strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/")

	var opts []option.ClientOption
	if emulatorHost != "" {
		_ = os.Setenv("STORAGE_EMULATOR_HOST", emulatorHost)
		opts = append(opts, option.WithoutAuthentication())
	} else {
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания клиента GCS: %w", err)
	}

	s := newStore(client, cfg, logger)
	s.logger.Info("Объектное хранилище GCS инициализировано",
		slog.String("bucket", s.bucket),
		slog.String("emulator_host", s.emulatorHost),
		slog.String("public_base_url", s.publicBaseURL),
	)
	return s, nil
}

func newStore(client *storage.Client, cfg Config, logger *slog.Logger) *Store {
	return &Store{
		client:        client,
		bucket:        cfg.Bucket,
		emulatorHost:  strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/"),
		publicBaseURL: strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/"),
		logger:        logger.With(slog.String("component", "gcsstore")),
	}
}

// Put загружает объект в bucket.
func (s *Store) Put(ctx context.Context, path string, data []byte, contentType string) error {
	if err := dkstorage.ValidatePath(path); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(path).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("ошибка записи объекта в GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("ошибка завершения записи в GCS: %w", err)
	}
	return nil
}

// PublicRef возвращает публичную ссылку на объект.
// Порядок: PublicBaseURL, media-URL эмулятора, storage.googleapis.com.
func (s *Store) PublicRef(path string) string {
	key := strings.TrimLeft(strings.TrimSpace(path), "/")
	switch {
	case s.publicBaseURL != "":
		return fmt.Sprintf("%s/%s/%s", s.publicBaseURL, s.bucket, key)
	case s.emulatorHost != "":
		return fmt.Sprintf("%s/storage/v1/b/%s/o/%s?alt=media",
			s.emulatorHost, url.PathEscape(s.bucket), url.PathEscape(key))
	default:
		return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, key)
	}
}

// Remove удаляет объекты. storage.ErrObjectNotExist ошибкой не считается.
func (s *Store) Remove(ctx context.Context, paths []string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var errs []error
	for _, p := range paths {
		err := s.client.Bucket(s.bucket).Object(p).Delete(ctx)
		if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			errs = append(errs, fmt.Errorf("ошибка удаления объекта %q из bucket %q: %w", p, s.bucket, err))
		}
	}
	return errors.Join(errs...)
}

// Close закрывает клиент GCS.
func (s *Store) Close() error {
	return s.client.Close()
}
