// Пакет fingerprint — детерминированный отпечаток содержимого документа (SHA-256).
package fingerprint

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Size — длина отпечатка в байтах.
const Size = sha256.Size

// ErrInvalid — строка не является корректным hex-отпечатком.
var ErrInvalid = errors.New("некорректный отпечаток")

// Digest — SHA-256 отпечаток содержимого.
type Digest [Size]byte

// Sum вычисляет отпечаток данных. Пустой ввод даёт отпечаток нулевой длины.
func Sum(data []byte) Digest {
	return Digest(sha256.Sum256(data))
}

// String возвращает отпечаток в нижнем регистре hex (64 символа).
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Bytes возвращает копию байтов отпечатка.
func (d Digest) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, d[:])
	return b
}

// Equal сравнивает отпечатки за постоянное время.
func (d Digest) Equal(other Digest) bool {
	return subtle.ConstantTimeCompare(d[:], other[:]) == 1
}

// IsZero — true для нулевого значения Digest.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Parse разбирает hex-строку отпечатка. Регистр не важен, пробелы по краям отбрасываются.
func Parse(s string) (Digest, error) {
	var d Digest
	s = strings.TrimSpace(s)
	if len(s) != Size*2 {
		return d, fmt.Errorf("%w: ожидается %d hex-символа, получено %d", ErrInvalid, Size*2, len(s))
	}
	if _, err := hex.Decode(d[:], []byte(s)); err != nil {
		return Digest{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return d, nil
}
