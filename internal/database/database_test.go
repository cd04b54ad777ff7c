package database

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/docukeeper/internal/config"
)

// fakePinger — заглушка пула для проверки готовности.
type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(_ context.Context) error { return f.err }

func TestReadinessChecker_Unit(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus string
	}{
		{"ping успешен", nil, "ok"},
		{"ping с ошибкой", errors.New("connection refused"), "fail"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := NewReadinessChecker(&fakePinger{err: tt.err}).CheckReady()
			if status != tt.wantStatus {
				t.Errorf("status = %q, ожидался %q (message %q)", status, tt.wantStatus, msg)
			}
			if tt.err != nil && !strings.Contains(msg, "connection refused") {
				t.Errorf("message = %q, ожидалась причина ошибки", msg)
			}
		})
	}
}

func TestMigrateURL_EscapesCredentials(t *testing.T) {
	cfg := &config.Config{
		DBHost: "db", DBPort: 5432, DBName: "docukeeper",
		DBUser: "dk", DBPassword: "p@ss/word", DBSSLMode: "disable",
	}
	got := migrateURL(cfg)
	want := "pgx5://dk:p%40ss%2Fword@db:5432/docukeeper?sslmode=disable"
	if got != want {
		t.Errorf("migrateURL = %q, ожидался %q", got, want)
	}
}

// setupTestDB запускает PostgreSQL в Docker-контейнере через testcontainers.
func setupTestDB(t *testing.T) *config.Config {
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
	return cfg
}

func TestMigrate(t *testing.T) {
	cfg := setupTestDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if err := Migrate(cfg, logger); err != nil {
		t.Fatalf("Migrate() вернул ошибку: %v", err)
	}
	// Повторное применение — без ошибки (ErrNoChange)
	if err := Migrate(cfg, logger); err != nil {
		t.Fatalf("Повторный Migrate() вернул ошибку: %v", err)
	}

	ctx := context.Background()
	pool, err := Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Connect() вернул ошибку: %v", err)
	}
	defer pool.Close()

	for _, table := range []string{"documents", "users"} {
		var exists bool
		err := pool.QueryRow(ctx,
			`SELECT EXISTS (
				SELECT FROM information_schema.tables
				WHERE table_schema = 'public' AND table_name = $1
			)`, table).Scan(&exists)
		if err != nil {
			t.Fatalf("Ошибка проверки таблицы %s: %v", table, err)
		}
		if !exists {
			t.Errorf("Таблица %s не создана", table)
		}
	}

	status, msg := NewReadinessChecker(pool).CheckReady()
	if status != "ok" {
		t.Errorf("CheckReady() status = %q, message = %q", status, msg)
	}
}
