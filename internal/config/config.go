// Пакет config — загрузка и валидация конфигурации DocuKeeper
// из переменных окружения (с опциональным .env файлом).
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Бэкенды объектного хранилища.
const (
	StorageBackendLocal = "local"
	StorageBackendGCS   = "gcs"
)

// Config содержит все параметры конфигурации DocuKeeper.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Максимальный размер загружаемого файла в байтах
	MaxUploadSize int64
	// Таймауты HTTP-сервера
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- JWT ---

	// Общий секрет HS256 (если задан — JWKS не используется)
	JWTSecret string
	// URL JWKS endpoint для RS256
	JWTJWKSURL string
	// Ожидаемый issuer (опционально)
	JWTIssuer string
	// Допустимое отклонение времени при проверке exp/nbf
	JWTLeeway time.Duration
	// Интервал обновления JWKS-ключей
	JWKSRefreshInterval time.Duration
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Путь к CA-сертификату для JWKS (опционально)
	JWKSCACertPath string
	// Группы IdP, дающие роль администратора
	RoleAdminGroups []string

	// --- Подпись ---

	// PEM закрытого ключа (литеральные \n допускаются)
	SigningPrivateKey string
	// Путь к PEM закрытого ключа
	SigningPrivateKeyFile string
	// Путь к PEM открытого ключа (узлы только с проверкой)
	SigningPublicKeyFile string

	// --- Объектное хранилище ---

	// Бэкенд: local или gcs
	StorageBackend string
	// Корневая директория для local
	StorageDataDir string
	// Базовый URL публичных ссылок для local
	StoragePublicBaseURL string
	// Имя GCS bucket
	GCSBucket string
	// Адрес эмулятора GCS (fake-gcs-server)
	GCSEmulatorHost string
	// Базовый URL публичных ссылок GCS
	GCSPublicBaseURL string

	// --- Документы ---

	// Максимальная длина текстового превью (в символах)
	PreviewMaxChars int
	// Размер кэша email пользователей
	DirectoryCacheSize int
	// TTL записей кэша email
	DirectoryCacheTTL time.Duration

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
// Перед чтением переменных подгружается .env (DK_ENV_FILE или ./.env, если есть);
// уже заданные переменные окружения не перезаписываются.
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	var err error

	// --- Сервер ---

	cfg.Port, err = getEnvInt("DK_PORT", 8000)
	if err != nil {
		return nil, fmt.Errorf("DK_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("DK_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("DK_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("DK_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("DK_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("DK_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// DK_MAX_UPLOAD_SIZE — по умолчанию 50 MiB
	cfg.MaxUploadSize, err = getEnvInt64("DK_MAX_UPLOAD_SIZE", 50<<20)
	if err != nil {
		return nil, fmt.Errorf("DK_MAX_UPLOAD_SIZE: %w", err)
	}
	if cfg.MaxUploadSize <= 0 {
		return nil, fmt.Errorf("DK_MAX_UPLOAD_SIZE: значение должно быть положительным")
	}

	cfg.HTTPReadTimeout, err = getEnvDuration("DK_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DK_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvDuration("DK_HTTP_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DK_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("DK_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DK_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// --- PostgreSQL ---

	if cfg.DBHost, err = getEnvRequired("DK_DB_HOST"); err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("DK_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("DK_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("DK_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("DK_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("DK_DB_PASSWORD"); err != nil {
		return nil, err
	}
	cfg.DBSSLMode = getEnvDefault("DK_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("DK_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- JWT ---

	cfg.JWTSecret = os.Getenv("DK_JWT_SECRET")
	cfg.JWTJWKSURL = strings.TrimSpace(os.Getenv("DK_JWT_JWKS_URL"))
	cfg.JWTIssuer = os.Getenv("DK_JWT_ISSUER")
	if cfg.JWTSecret == "" && cfg.JWTJWKSURL == "" {
		return nil, errors.New("DK_JWT_SECRET или DK_JWT_JWKS_URL: должна быть задана хотя бы одна переменная")
	}

	cfg.JWTLeeway, err = getEnvDuration("DK_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DK_JWT_LEEWAY: %w", err)
	}
	cfg.JWKSRefreshInterval, err = getEnvDuration("DK_JWKS_REFRESH_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("DK_JWKS_REFRESH_INTERVAL: %w", err)
	}
	cfg.JWKSClientTimeout, err = getEnvDuration("DK_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DK_JWKS_CLIENT_TIMEOUT: %w", err)
	}
	cfg.JWKSCACertPath = os.Getenv("DK_JWKS_CA_CERT")

	cfg.RoleAdminGroups = parseCSV(getEnvDefault("DK_ROLE_ADMIN_GROUPS", "docukeeper-admins"))

	// --- Подпись ---

	cfg.SigningPrivateKey = os.Getenv("DK_SIGNING_PRIVATE_KEY")
	cfg.SigningPrivateKeyFile = os.Getenv("DK_SIGNING_PRIVATE_KEY_FILE")
	cfg.SigningPublicKeyFile = os.Getenv("DK_SIGNING_PUBLIC_KEY_FILE")

	// --- Объектное хранилище ---

	cfg.StorageBackend = getEnvDefault("DK_STORAGE_BACKEND", StorageBackendLocal)
	switch cfg.StorageBackend {
	case StorageBackendLocal:
		cfg.StorageDataDir = getEnvDefault("DK_STORAGE_DATA_DIR", "./data")
		cfg.StoragePublicBaseURL = strings.TrimRight(
			getEnvDefault("DK_STORAGE_PUBLIC_BASE_URL", fmt.Sprintf("http://localhost:%d/blobs", cfg.Port)), "/")
	case StorageBackendGCS:
		if cfg.GCSBucket, err = getEnvRequired("DK_GCS_BUCKET"); err != nil {
			return nil, err
		}
		cfg.GCSEmulatorHost = strings.TrimRight(os.Getenv("DK_GCS_EMULATOR_HOST"), "/")
		cfg.GCSPublicBaseURL = strings.TrimRight(os.Getenv("DK_GCS_PUBLIC_BASE_URL"), "/")
	default:
		return nil, fmt.Errorf("DK_STORAGE_BACKEND: недопустимое значение %q, допустимые: local, gcs", cfg.StorageBackend)
	}

	// --- Документы ---

	cfg.PreviewMaxChars, err = getEnvInt("DK_PREVIEW_MAX_CHARS", 8000)
	if err != nil {
		return nil, fmt.Errorf("DK_PREVIEW_MAX_CHARS: %w", err)
	}
	if cfg.PreviewMaxChars < 0 {
		return nil, fmt.Errorf("DK_PREVIEW_MAX_CHARS: значение не может быть отрицательным")
	}

	cfg.DirectoryCacheSize, err = getEnvInt("DK_DIRECTORY_CACHE_SIZE", 10000)
	if err != nil {
		return nil, fmt.Errorf("DK_DIRECTORY_CACHE_SIZE: %w", err)
	}
	if cfg.DirectoryCacheSize < 1 {
		return nil, fmt.Errorf("DK_DIRECTORY_CACHE_SIZE: значение должно быть положительным")
	}
	cfg.DirectoryCacheTTL, err = getEnvDuration("DK_DIRECTORY_CACHE_TTL", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("DK_DIRECTORY_CACHE_TTL: %w", err)
	}

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("DK_DEPHEALTH_GROUP", "docukeeper")
	cfg.DephealthCheckInterval, err = getEnvDuration("DK_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DK_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("DK_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DK_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для лейблов метрик).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// loadEnvFile подгружает переменные из .env.
// Явно указанный DK_ENV_FILE обязан существовать, ./.env — нет.
func loadEnvFile() error {
	if path := os.Getenv("DK_ENV_FILE"); path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("DK_ENV_FILE: не удалось загрузить %s: %w", path, err)
		}
		return nil
	}
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return fmt.Errorf("ошибка загрузки .env: %w", err)
		}
	}
	return nil
}

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 — как getEnvInt, но для размеров в байтах.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
