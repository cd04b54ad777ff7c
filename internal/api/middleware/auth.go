// auth.go — JWT middleware аутентификации DocuKeeper.
// Проверяет Bearer token (HS256 с общим секретом или RS256 через JWKS),
// извлекает вызывающего (sub, email, признак администратора) и кладёт его в контекст.
package middleware

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/bigkaa/docukeeper/internal/api/errors"
	"github.com/bigkaa/docukeeper/internal/domain/model"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeyCaller — вызывающий в контексте запроса.
	ContextKeyCaller contextKey = "caller"

	contextKeyCallerHolder contextKey = "caller_holder"
)

// RoleAdmin — роль администратора в realm_access.roles.
const RoleAdmin = "admin"

// CallerRecorder сохраняет вызывающего в справочник пользователей.
type CallerRecorder interface {
	Remember(ctx context.Context, caller model.Caller) error
}

// AuthConfig — параметры проверки токенов.
type AuthConfig struct {
	// Secret — общий секрет HS256; если задан, JWKS не используется
	Secret string
	// JWKSURL — URL JWKS endpoint для RS256
	JWKSURL string
	// CACertPath — опциональный CA-сертификат для JWKS
	CACertPath string
	// Issuer — ожидаемый issuer (пустой — не проверяется)
	Issuer string
	// Leeway — допустимое отклонение времени
	Leeway time.Duration
	// JWKSClientTimeout — таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// JWKSRefreshInterval — интервал обновления ключей
	JWKSRefreshInterval time.Duration
	// AdminGroups — группы IdP, дающие права администратора
	AdminGroups []string
}

// tokenClaims — raw claims токена.
type tokenClaims struct {
	jwt.RegisteredClaims
	Email             string       `json:"email"`
	PreferredUsername string       `json:"preferred_username"`
	IsAdmin           bool         `json:"is_admin"`
	Groups            []string     `json:"groups,omitempty"`
	RealmAccess       *realmAccess `json:"realm_access,omitempty"`
}

// realmAccess — вложенная структура realm_access в Keycloak JWT.
type realmAccess struct {
	Roles []string `json:"roles"`
}

// JWTAuth — middleware JWT-аутентификации.
type JWTAuth struct {
	keyFn       func(ctx context.Context) jwt.Keyfunc
	methods     []string
	issuer      string
	leeway      time.Duration
	adminGroups []string
	recorder    CallerRecorder
	logger      *slog.Logger
}

// NewJWTAuth создаёт middleware по конфигурации: HS256, если задан секрет,
// иначе RS256 с ключами из JWKS (фоновое обновление через jwkset).
// recorder может быть nil.
func NewJWTAuth(cfg AuthConfig, recorder CallerRecorder, logger *slog.Logger) (*JWTAuth, error) {
	if cfg.Secret != "" {
		secret := []byte(cfg.Secret)
		hmacKey := func(*jwt.Token) (any, error) { return secret, nil }
		return newJWTAuth(
			func(context.Context) jwt.Keyfunc { return hmacKey },
			[]string{jwt.SigningMethodHS256.Alg()},
			cfg, recorder, logger,
		), nil
	}

	if cfg.JWKSURL == "" {
		return nil, fmt.Errorf("не задан ни секрет, ни JWKS URL")
	}

	httpClient := &http.Client{Timeout: cfg.JWKSClientTimeout}
	if cfg.CACertPath != "" {
		var err error
		httpClient, err = httpClientWithCA(cfg.CACertPath, cfg.JWKSClientTimeout)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата %s: %w", cfg.CACertPath, err)
		}
	}

	// NoErrorReturnFirstHTTPReq — стартуем, даже если IdP ещё недоступен
	storage, err := jwkset.NewStorageFromHTTP(cfg.JWKSURL, jwkset.HTTPClientStorageOptions{
		Client:                    httpClient,
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           cfg.JWKSRefreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", cfg.JWKSURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}
	return NewJWTAuthWithKeyfunc(k, cfg, recorder, logger), nil
}

// NewJWTAuthWithKeyfunc создаёт RS256 middleware с готовой keyfunc.
// Используется в тестах со статическим JWKS.
func NewJWTAuthWithKeyfunc(k keyfunc.Keyfunc, cfg AuthConfig, recorder CallerRecorder, logger *slog.Logger) *JWTAuth {
	return newJWTAuth(k.KeyfuncCtx, []string{jwt.SigningMethodRS256.Alg()}, cfg, recorder, logger)
}

func newJWTAuth(keyFn func(context.Context) jwt.Keyfunc, methods []string, cfg AuthConfig, recorder CallerRecorder, logger *slog.Logger) *JWTAuth {
	groups := make([]string, 0, len(cfg.AdminGroups))
	for _, g := range cfg.AdminGroups {
		groups = append(groups, normalizeGroup(g))
	}
	return &JWTAuth{
		keyFn:       keyFn,
		methods:     methods,
		issuer:      cfg.Issuer,
		leeway:      cfg.Leeway,
		adminGroups: groups,
		recorder:    recorder,
		logger:      logger.With(slog.String("component", "jwt_auth")),
	}
}

// httpClientWithCA создаёт HTTP-клиент с кастомным CA-сертификатом.
func httpClientWithCA(caCertPath string, timeout time.Duration) (*http.Client, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, err
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs:    caCertPool,
				MinVersion: tls.VersionTLS12,
			},
		},
	}, nil
}

// Middleware возвращает HTTP middleware: извлекает Bearer token, проверяет
// подпись и срок действия, помещает model.Caller в контекст.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "Отсутствует заголовок Authorization")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				apierrors.Unauthorized(w, "Неверный формат Authorization: ожидается Bearer <token>")
				return
			}

			tokenString := strings.TrimSpace(parts[1])
			if tokenString == "" {
				apierrors.Unauthorized(w, "Пустой Bearer token")
				return
			}

			raw := &tokenClaims{}
			parserOpts := []jwt.ParserOption{
				jwt.WithValidMethods(j.methods),
				jwt.WithExpirationRequired(),
				jwt.WithLeeway(j.leeway),
			}
			if j.issuer != "" {
				parserOpts = append(parserOpts, jwt.WithIssuer(j.issuer))
			}

			token, err := jwt.ParseWithClaims(tokenString, raw, j.keyFn(r.Context()), parserOpts...)
			if err != nil || !token.Valid {
				reason := "invalid"
				if err != nil {
					reason = err.Error()
				}
				j.logger.Debug("JWT валидация не пройдена",
					slog.String("error", reason),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}

			if raw.Subject == "" {
				apierrors.Unauthorized(w, "Отсутствует sub в токене")
				return
			}

			caller := j.buildCaller(raw)
			if j.recorder != nil {
				if err := j.recorder.Remember(r.Context(), caller); err != nil {
					j.logger.Warn("Не удалось сохранить пользователя в справочник",
						slog.String("user_id", caller.ID),
						slog.String("error", err.Error()),
					)
				}
			}

			if h, ok := r.Context().Value(contextKeyCallerHolder).(*callerHolder); ok {
				h.id = caller.ID
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

// buildCaller формирует model.Caller из claims.
// Администратор — is_admin, группа из adminGroups или роль admin в realm_access.
func (j *JWTAuth) buildCaller(raw *tokenClaims) model.Caller {
	email := raw.Email
	if email == "" {
		email = raw.PreferredUsername
	}

	isAdmin := raw.IsAdmin
	if !isAdmin {
		for _, g := range raw.Groups {
			if slices.Contains(j.adminGroups, normalizeGroup(g)) {
				isAdmin = true
				break
			}
		}
	}
	if !isAdmin && raw.RealmAccess != nil {
		isAdmin = slices.Contains(raw.RealmAccess.Roles, RoleAdmin)
	}

	return model.Caller{ID: raw.Subject, Email: email, IsAdmin: isAdmin}
}

// normalizeGroup убирает ведущий "/" (Keycloak отдаёт полный путь группы).
func normalizeGroup(g string) string {
	return strings.TrimPrefix(strings.TrimSpace(g), "/")
}

// --- RBAC middleware ---

// RequireAdmin пропускает только администраторов.
// Должен использоваться ПОСЛЕ JWTAuth.Middleware().
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := CallerFromContext(r.Context())
			if !ok {
				apierrors.Unauthorized(w, "Отсутствует вызывающий в контексте")
				return
			}
			if !caller.IsAdmin {
				apierrors.Forbidden(w, "Недостаточно прав: требуется роль администратора")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// --- Context helpers ---

// WithCaller возвращает контекст с вызывающим.
func WithCaller(ctx context.Context, caller model.Caller) context.Context {
	return context.WithValue(ctx, ContextKeyCaller, caller)
}

// callerHolder — id вызывающего для RequestLogger, стоящего выше JWTAuth.
type callerHolder struct {
	id string
}

func withCallerHolder(ctx context.Context, h *callerHolder) context.Context {
	return context.WithValue(ctx, contextKeyCallerHolder, h)
}

// CallerFromContext извлекает вызывающего из контекста запроса.
func CallerFromContext(ctx context.Context) (model.Caller, bool) {
	caller, ok := ctx.Value(ContextKeyCaller).(model.Caller)
	return caller, ok && caller.ID != ""
}

// --- ReadinessChecker для JWKS ---

// JWKSReadinessChecker — проверка доступности JWKS endpoint провайдера.
type JWKSReadinessChecker struct {
	jwksURL string
	client  *http.Client
}

// NewJWKSReadinessChecker создаёт checker доступности JWKS.
func NewJWKSReadinessChecker(jwksURL, caCertPath string, timeout time.Duration) (*JWKSReadinessChecker, error) {
	client := &http.Client{Timeout: timeout}
	if caCertPath != "" {
		var err error
		client, err = httpClientWithCA(caCertPath, timeout)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA для readiness checker: %w", err)
		}
	}
	return &JWKSReadinessChecker{jwksURL: jwksURL, client: client}, nil
}

const statusFail = "fail"

// CheckReady проверяет доступность JWKS endpoint.
func (k *JWKSReadinessChecker) CheckReady() (status, message string) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, k.jwksURL, http.NoBody)
	if err != nil {
		return statusFail, "ошибка создания запроса: " + err.Error()
	}
	resp, err := k.client.Do(req)
	if err != nil {
		return statusFail, fmt.Sprintf("JWKS недоступен: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusFail, fmt.Sprintf("JWKS вернул статус %d", resp.StatusCode)
	}

	var jwksResp struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwksResp); err != nil {
		return "degraded", fmt.Sprintf("JWKS: невалидный JSON: %v", err)
	}
	if len(jwksResp.Keys) == 0 {
		return "degraded", "JWKS: нет ключей"
	}

	return "ok", fmt.Sprintf("JWKS доступен, ключей: %d", len(jwksResp.Keys))
}
