// Пакет signing — удостоверяющая подпись отпечатков документов (RSA-PSS).
//
// Authority создаётся один раз при старте и может находиться в одном из трёх
// состояний: подпись (закрытый + открытый ключ), только проверка (открытый ключ),
// без подписи (ключей нет). Все три состояния допустимы: отсутствие ключа
// не ломает регистрацию, документы просто остаются неподписанными.
package signing

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/bigkaa/docukeeper/internal/fingerprint"
)

// MinKeyBits — минимальный размер генерируемого ключа.
const MinKeyBits = 2048

// ErrInvalidKey — ключевой материал не удалось разобрать.
var ErrInvalidKey = errors.New("некорректный ключ")

// KeySource — откуда загружать ключи.
type KeySource struct {
	// PEM закрытого ключа; литеральные "\n" заменяются переводом строки
	PrivateKeyPEM string
	// Путь к PEM закрытого ключа (используется, если PrivateKeyPEM пуст)
	PrivateKeyFile string
	// Путь к PEM открытого ключа (для узлов без закрытого ключа)
	PublicKeyFile string
}

// Authority подписывает и проверяет отпечатки. Неизменяема после создания.
type Authority struct {
	priv   *rsa.PrivateKey
	pub    *rsa.PublicKey
	logger *slog.Logger
}

// NewAuthority создаёт Authority из готовых ключей.
// priv может быть nil (только проверка), оба nil — режим без подписи.
// Если pub не задан, используется открытая часть priv.
func NewAuthority(priv *rsa.PrivateKey, pub *rsa.PublicKey, logger *slog.Logger) *Authority {
	if pub == nil && priv != nil {
		pub = &priv.PublicKey
	}
	return &Authority{
		priv:   priv,
		pub:    pub,
		logger: logger.With(slog.String("component", "signing")),
	}
}

// LoadAuthority загружает ключи из src. Ошибки ключевого материала
// логируются на уровне WARN, Authority деградирует до состояния без подписи
// (или только проверки, если открытый ключ загрузился).
func LoadAuthority(src KeySource, logger *slog.Logger) *Authority {
	log := logger.With(slog.String("component", "signing"))

	var priv *rsa.PrivateKey
	var pub *rsa.PublicKey

	privPEM := strings.ReplaceAll(src.PrivateKeyPEM, `\n`, "\n")
	if privPEM == "" && src.PrivateKeyFile != "" {
		data, err := os.ReadFile(src.PrivateKeyFile)
		if err != nil {
			log.Warn("Не удалось прочитать файл закрытого ключа",
				slog.String("path", src.PrivateKeyFile),
				slog.String("error", err.Error()),
			)
		} else {
			privPEM = string(data)
		}
	}
	if privPEM != "" {
		key, err := ParsePrivateKey([]byte(privPEM))
		if err != nil {
			log.Warn("Закрытый ключ отклонён, документы не будут подписываться",
				slog.String("error", err.Error()),
			)
		} else {
			priv = key
		}
	}

	if src.PublicKeyFile != "" {
		data, err := os.ReadFile(src.PublicKeyFile)
		if err != nil {
			log.Warn("Не удалось прочитать файл открытого ключа",
				slog.String("path", src.PublicKeyFile),
				slog.String("error", err.Error()),
			)
		} else if key, err := ParsePublicKey(data); err != nil {
			log.Warn("Открытый ключ отклонён", slog.String("error", err.Error()))
		} else {
			pub = key
		}
	}

	a := NewAuthority(priv, pub, logger)
	log.Info("Удостоверяющий ключ загружен",
		slog.Bool("can_sign", a.CanSign()),
		slog.Bool("can_verify", a.CanVerify()),
	)
	return a
}

// CanSign — есть ли закрытый ключ.
func (a *Authority) CanSign() bool {
	return a != nil && a.priv != nil
}

// CanVerify — есть ли открытый ключ.
func (a *Authority) CanVerify() bool {
	return a != nil && a.pub != nil
}

// Sign подписывает отпечаток и возвращает подпись в hex.
// Пустая строка — ключа нет или подпись не удалась (ошибка логируется).
func (a *Authority) Sign(d fingerprint.Digest) string {
	if !a.CanSign() {
		return ""
	}
	hashed := sha256.Sum256(d[:])
	sig, err := rsa.SignPSS(rand.Reader, a.priv, crypto.SHA256, hashed[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
	})
	if err != nil {
		a.logger.Warn("Ошибка подписи отпечатка",
			slog.String("fingerprint", d.String()),
			slog.String("error", err.Error()),
		)
		return ""
	}
	return hex.EncodeToString(sig)
}

// Verify проверяет hex-подпись отпечатка. false, если открытого ключа нет,
// подпись пуста, не декодируется или не сходится.
func (a *Authority) Verify(d fingerprint.Digest, signatureHex string) bool {
	if !a.CanVerify() || signatureHex == "" {
		return false
	}
	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}
	hashed := sha256.Sum256(d[:])
	err = rsa.VerifyPSS(a.pub, crypto.SHA256, hashed[:], sig, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
	})
	return err == nil
}

// ParsePrivateKey разбирает PEM закрытого ключа RSA (PKCS#8 или PKCS#1).
func ParsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: PEM-блок не найден", ErrInvalidKey)
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: ожидается RSA, получен %T", ErrInvalidKey, parsed)
	}
	return key, nil
}

// ParsePublicKey разбирает PEM открытого ключа RSA (PKIX или PKCS#1).
func ParsePublicKey(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: PEM-блок не найден", ErrInvalidKey)
	}

	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: ожидается RSA, получен %T", ErrInvalidKey, parsed)
	}
	return key, nil
}

// GenerateKeyPair создаёт пару RSA-ключей и возвращает их в PEM:
// закрытый — PKCS#8, открытый — PKIX.
func GenerateKeyPair(bits int) (privPEM, pubPEM []byte, err error) {
	if bits < MinKeyBits {
		return nil, nil, fmt.Errorf("размер ключа %d меньше минимального %d", bits, MinKeyBits)
	}

	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, nil, fmt.Errorf("ошибка генерации ключа: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, nil, fmt.Errorf("ошибка кодирования закрытого ключа: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("ошибка кодирования открытого ключа: %w", err)
	}

	privPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	pubPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return privPEM, pubPEM, nil
}
