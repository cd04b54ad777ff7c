// Точка входа DocuKeeper — сервиса целостности документов и цепочек версий.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// загружает ключи подписи, создаёт объектное хранилище, сервисный слой
// и API handlers, запускает topologymetrics и HTTP-сервер с JWT middleware.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/docukeeper/internal/api/handlers"
	"github.com/bigkaa/docukeeper/internal/api/middleware"
	"github.com/bigkaa/docukeeper/internal/config"
	"github.com/bigkaa/docukeeper/internal/database"
	"github.com/bigkaa/docukeeper/internal/repository"
	"github.com/bigkaa/docukeeper/internal/server"
	"github.com/bigkaa/docukeeper/internal/service"
	"github.com/bigkaa/docukeeper/internal/signing"
	"github.com/bigkaa/docukeeper/internal/storage"
	"github.com/bigkaa/docukeeper/internal/storage/filestore"
	"github.com/bigkaa/docukeeper/internal/storage/gcsstore"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения (.env опционально)
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("DocuKeeper запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("storage_backend", cfg.StorageBackend),
	)

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics.
	// Проверка здоровья идёт через тот же пул соединений.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Ключи подписи. Ошибки ключей не фатальны: режим без подписи.
	authority := signing.LoadAuthority(signing.KeySource{
		PrivateKeyPEM:  cfg.SigningPrivateKey,
		PrivateKeyFile: cfg.SigningPrivateKeyFile,
		PublicKeyFile:  cfg.SigningPublicKeyFile,
	}, logger)
	logger.Info("Подпись документов",
		slog.Bool("can_sign", authority.CanSign()),
		slog.Bool("can_verify", authority.CanVerify()),
	)

	// 6. Объектное хранилище
	var (
		store       storage.ObjectStore
		blobHandler *handlers.BlobHandler
	)
	switch cfg.StorageBackend {
	case config.StorageBackendGCS:
		gcs, gcsErr := gcsstore.New(ctx, gcsstore.Config{
			Bucket:        cfg.GCSBucket,
			EmulatorHost:  cfg.GCSEmulatorHost,
			PublicBaseURL: cfg.GCSPublicBaseURL,
		}, logger)
		if gcsErr != nil {
			logger.Error("Ошибка инициализации GCS", slog.String("error", gcsErr.Error()))
			os.Exit(1)
		}
		defer gcs.Close()
		store = gcs
	default:
		fs, fsErr := filestore.New(cfg.StorageDataDir, cfg.StoragePublicBaseURL)
		if fsErr != nil {
			logger.Error("Ошибка инициализации локального хранилища", slog.String("error", fsErr.Error()))
			os.Exit(1)
		}
		store = fs
		blobHandler = handlers.NewBlobHandler(fs, logger)
		logger.Info("Локальное хранилище инициализировано",
			slog.String("data_dir", fs.DataDir()),
			slog.String("public_base_url", cfg.StoragePublicBaseURL),
		)
	}

	// 7. Repositories
	docRepo := repository.NewDocumentRepository(pool)
	userRepo := repository.NewUserRepository(pool)

	// 8. Services
	directorySvc := service.NewDirectoryService(userRepo, cfg.DirectoryCacheSize, cfg.DirectoryCacheTTL, logger)
	registrationSvc := service.NewRegistrationService(docRepo, store, authority, cfg.PreviewMaxChars, logger)
	verificationSvc := service.NewVerificationService(docRepo, authority, logger)
	historySvc := service.NewHistoryService(docRepo, directorySvc, logger)
	detailSvc := service.NewDetailService(docRepo, directorySvc, logger)
	deletionSvc := service.NewDeletionService(docRepo, store, logger)

	// 9. Readiness checkers (PostgreSQL + JWKS, если используется)
	pgChecker := database.NewReadinessChecker(pool)
	var jwksChecker handlers.ReadinessChecker
	if cfg.JWTSecret == "" {
		checker, checkerErr := middleware.NewJWKSReadinessChecker(cfg.JWTJWKSURL, cfg.JWKSCACertPath, cfg.JWKSClientTimeout)
		if checkerErr != nil {
			logger.Error("Ошибка создания JWKS readiness checker", slog.String("error", checkerErr.Error()))
			os.Exit(1)
		}
		jwksChecker = checker
	}
	healthHandler := handlers.NewHealthHandler(pgChecker, jwksChecker)

	// 10. API handler
	apiHandler := handlers.NewAPIHandler(healthHandler, handlers.Services{
		Registration: registrationSvc,
		Verification: verificationSvc,
		History:      historySvc,
		Detail:       detailSvc,
		Deletion:     deletionSvc,
	}, cfg.MaxUploadSize, logger)

	// 11. JWT middleware (вызывающие сохраняются в справочник пользователей)
	jwtAuth, err := middleware.NewJWTAuth(middleware.AuthConfig{
		Secret:              cfg.JWTSecret,
		JWKSURL:             cfg.JWTJWKSURL,
		CACertPath:          cfg.JWKSCACertPath,
		Issuer:              cfg.JWTIssuer,
		Leeway:              cfg.JWTLeeway,
		JWKSClientTimeout:   cfg.JWKSClientTimeout,
		JWKSRefreshInterval: cfg.JWKSRefreshInterval,
		AdminGroups:         cfg.RoleAdminGroups,
	}, directorySvc, logger)
	if err != nil {
		logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("JWT middleware инициализирован",
		slog.Bool("hs256", cfg.JWTSecret != ""),
		slog.String("jwks_url", cfg.JWTJWKSURL),
		slog.String("issuer", cfg.JWTIssuer),
	)

	// 12. topologymetrics — мониторинг зависимостей (PostgreSQL + JWKS)
	jwksURL := cfg.JWTJWKSURL
	if cfg.JWTSecret != "" {
		jwksURL = ""
	}
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthParams{
		ServiceID:     "docukeeper",
		Group:         cfg.DephealthGroup,
		DB:            pgDB,
		PGConnURL:     cfg.DatabaseURL(),
		JWKSURL:       jwksURL,
		CheckInterval: cfg.DephealthCheckInterval,
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
		dephealthSvc = nil
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 13. HTTP-сервер: метрики → логирование → JWT (кроме публичных путей)
	srv := server.New(cfg, logger, apiHandler, blobHandler,
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
		server.JWTAuthWithExclusions(jwtAuth.Middleware(), server.PublicPrefixes...),
	)

	// 14. Запуск (блокирующий вызов с graceful shutdown)
	runErr := srv.Run()

	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	if runErr != nil {
		logger.Error("Сервер завершился с ошибкой", slog.String("error", runErr.Error()))
		os.Exit(1)
	}
	logger.Info("DocuKeeper остановлен")
}
