// Пакет storage — объектное хранилище содержимого документов.
// Бэкенды: filestore (локальный диск) и gcsstore (Google Cloud Storage).
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound — объект отсутствует в хранилище.
var ErrNotFound = errors.New("объект не найден")

// ErrInvalidPath — путь объекта небезопасен (абсолютный, с "..", пустой).
var ErrInvalidPath = errors.New("недопустимый путь объекта")

// ObjectStore — хранилище содержимого документов.
type ObjectStore interface {
	// Put записывает объект по пути path.
	Put(ctx context.Context, path string, data []byte, contentType string) error
	// PublicRef возвращает публичную ссылку на объект.
	PublicRef(path string) string
	// Remove удаляет объекты. Отсутствующие объекты ошибкой не считаются;
	// ошибки по отдельным путям объединяются через errors.Join.
	Remove(ctx context.Context, paths []string) error
}

var safeExt = regexp.MustCompile(`^\.[A-Za-z0-9]{1,16}$`)

// maxOwnerLen — ограничение длины префикса владельца в пути.
const maxOwnerLen = 64

// ObjectPath строит путь нового объекта: {владелец}/{uuid-hex}{расширение}.
// Расширение сохраняется, только если оно безопасно.
func ObjectPath(ownerID, filename string) string {
	owner := sanitize(ownerID)
	if len(owner) > maxOwnerLen {
		owner = owner[:maxOwnerLen]
	}

	ext := path.Ext(strings.ReplaceAll(filename, `\`, "/"))
	if !safeExt.MatchString(ext) {
		ext = ""
	}

	id := uuid.New()
	return fmt.Sprintf("%s/%x%s", owner, id[:], strings.ToLower(ext))
}

// ValidatePath проверяет, что путь относительный и не выходит за корень.
func ValidatePath(p string) error {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, `\`) {
		return fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidPath, p)
		}
	}
	return nil
}

// sanitize оставляет только буквы ASCII, цифры, дефис и подчёркивание.
func sanitize(s string) string {
	var result strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' {
			result.WriteRune(r)
		}
	}
	if result.Len() == 0 {
		return "owner"
	}
	return result.String()
}
