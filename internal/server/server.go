// Пакет server — HTTP-сервер DocuKeeper с graceful shutdown.
// Без TLS — TLS termination на ingress / API Gateway.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/docukeeper/internal/api/handlers"
	"github.com/bigkaa/docukeeper/internal/api/middleware"
	"github.com/bigkaa/docukeeper/internal/config"
)

// Публичные префиксы, не требующие JWT.
var PublicPrefixes = []string{"/health/", "/metrics", "/blobs/"}

// Server — HTTP-сервер DocuKeeper.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с маршрутами и middleware.
// blobs — nil, если объекты отдаёт внешнее хранилище (GCS).
// middlewares добавляются в порядке переданного среза.
func New(cfg *config.Config, logger *slog.Logger, api *handlers.APIHandler, blobs *handlers.BlobHandler, middlewares ...func(http.Handler) http.Handler) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(api, blobs, middlewares...),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter регистрирует маршруты API.
// /api/v1/admin/* дополнительно закрыты RequireAdmin.
func NewRouter(api *handlers.APIHandler, blobs *handlers.BlobHandler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	router := chi.NewRouter()

	for _, mw := range middlewares {
		router.Use(mw)
	}

	router.Get("/health/live", api.HealthLive)
	router.Get("/health/ready", api.HealthReady)
	router.Get("/metrics", api.GetMetrics)

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/auth/me", api.Me)

		r.Route("/documents", func(r chi.Router) {
			r.Post("/", api.RegisterDocument)
			r.Get("/", api.ListDocuments)
			r.Post("/verify", api.VerifyDocument)
			r.Get("/heads", api.ListChainHeads)
			r.Post("/detail", api.DocumentDetail)
			r.Delete("/{fileHash}", api.DeleteDocument)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin())
			r.Get("/documents/{fileHash}", api.AdminDocumentDetail)
		})
	})

	if blobs != nil {
		router.Get("/blobs/*", blobs.ServeBlob)
	}

	return router
}

// JWTAuthWithExclusions оборачивает middleware, пропуская указанные пути.
// Запросы к путям, начинающимся с любого из excludePrefixes, проходят без middleware.
func JWTAuthWithExclusions(mw func(http.Handler) http.Handler, excludePrefixes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		wrapped := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range excludePrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}
			wrapped.ServeHTTP(w, r)
		})
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
