package signing

import (
	"crypto/x509"
	"encoding/pem"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/bigkaa/docukeeper/internal/fingerprint"
)

var (
	testKeyOnce sync.Once
	testPrivPEM []byte
	testPubPEM  []byte
)

// testKeys генерирует пару ключей один раз на пакет.
func testKeys(t *testing.T) ([]byte, []byte) {
	t.Helper()
	testKeyOnce.Do(func() {
		var err error
		testPrivPEM, testPubPEM, err = GenerateKeyPair(MinKeyBits)
		if err != nil {
			panic(err)
		}
	})
	return testPrivPEM, testPubPEM
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func signingAuthority(t *testing.T) *Authority {
	t.Helper()
	privPEM, _ := testKeys(t)
	return LoadAuthority(KeySource{PrivateKeyPEM: string(privPEM)}, testLogger())
}

func TestSignVerify_RoundTrip(t *testing.T) {
	a := signingAuthority(t)
	if !a.CanSign() || !a.CanVerify() {
		t.Fatalf("CanSign=%v CanVerify=%v, ожидались оба true", a.CanSign(), a.CanVerify())
	}

	d := fingerprint.Sum([]byte("contract.pdf contents"))
	sig := a.Sign(d)
	if sig == "" {
		t.Fatal("Sign вернул пустую подпись при наличии ключа")
	}
	if !a.Verify(d, sig) {
		t.Error("Verify отклонил собственную подпись")
	}
}

func TestVerify_OtherDigestRejected(t *testing.T) {
	a := signingAuthority(t)

	sig := a.Sign(fingerprint.Sum([]byte("v1")))
	if a.Verify(fingerprint.Sum([]byte("v2")), sig) {
		t.Error("подпись одного отпечатка принята для другого")
	}
}

func TestVerify_BadSignatures(t *testing.T) {
	a := signingAuthority(t)
	d := fingerprint.Sum([]byte("x"))
	sig := a.Sign(d)

	// Портим последний байт подписи
	last := sig[len(sig)-2:]
	flipped := "00"
	if last == "00" {
		flipped = "01"
	}

	tests := []struct {
		name string
		sig  string
	}{
		{"пустая", ""},
		{"не hex", "zzzz"},
		{"обрезанная", sig[:len(sig)/2]},
		{"изменённая", sig[:len(sig)-2] + flipped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if a.Verify(d, tt.sig) {
				t.Errorf("Verify принял подпись %q", tt.name)
			}
		})
	}
}

func TestUnsignedAuthority(t *testing.T) {
	a := LoadAuthority(KeySource{}, testLogger())
	if a.CanSign() || a.CanVerify() {
		t.Fatal("Authority без ключей не должен подписывать или проверять")
	}

	d := fingerprint.Sum([]byte("x"))
	if sig := a.Sign(d); sig != "" {
		t.Errorf("Sign = %q, ожидалась пустая строка", sig)
	}
	if a.Verify(d, "abcd") {
		t.Error("Verify без открытого ключа должен возвращать false")
	}
}

func TestVerifyOnlyAuthority(t *testing.T) {
	signer := signingAuthority(t)
	_, pubPEM := testKeys(t)

	path := filepath.Join(t.TempDir(), "public.pem")
	if err := os.WriteFile(path, pubPEM, 0o600); err != nil {
		t.Fatal(err)
	}

	verifier := LoadAuthority(KeySource{PublicKeyFile: path}, testLogger())
	if verifier.CanSign() {
		t.Error("узел только с открытым ключом не должен подписывать")
	}
	if !verifier.CanVerify() {
		t.Fatal("узел с открытым ключом должен проверять")
	}

	d := fingerprint.Sum([]byte("payload"))
	if !verifier.Verify(d, signer.Sign(d)) {
		t.Error("verify-only узел отклонил корректную подпись")
	}
	if sig := verifier.Sign(d); sig != "" {
		t.Errorf("verify-only Sign = %q, ожидалась пустая строка", sig)
	}
}

func TestLoadAuthority_EscapedNewlines(t *testing.T) {
	privPEM, _ := testKeys(t)
	escaped := strings.ReplaceAll(string(privPEM), "\n", `\n`)

	a := LoadAuthority(KeySource{PrivateKeyPEM: escaped}, testLogger())
	if !a.CanSign() {
		t.Error("ключ с литеральными \\n не загрузился")
	}
}

func TestLoadAuthority_PrivateKeyFile(t *testing.T) {
	privPEM, _ := testKeys(t)
	path := filepath.Join(t.TempDir(), "private.pem")
	if err := os.WriteFile(path, privPEM, 0o600); err != nil {
		t.Fatal(err)
	}

	a := LoadAuthority(KeySource{PrivateKeyFile: path}, testLogger())
	if !a.CanSign() {
		t.Error("ключ из файла не загрузился")
	}
}

func TestLoadAuthority_InvalidKeyDegrades(t *testing.T) {
	tests := []struct {
		name string
		src  KeySource
	}{
		{"мусор вместо PEM", KeySource{PrivateKeyPEM: "not a key"}},
		{"несуществующий файл", KeySource{PrivateKeyFile: filepath.Join(t.TempDir(), "absent.pem")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := LoadAuthority(tt.src, testLogger())
			if a.CanSign() {
				t.Error("некорректный ключ должен переводить Authority в режим без подписи")
			}
			if sig := a.Sign(fingerprint.Sum(nil)); sig != "" {
				t.Errorf("Sign = %q, ожидалась пустая строка", sig)
			}
		})
	}
}

func TestParsePrivateKey_PKCS1(t *testing.T) {
	privPEM, _ := testKeys(t)
	key, err := ParsePrivateKey(privPEM)
	if err != nil {
		t.Fatalf("ParsePrivateKey(PKCS#8) вернул ошибку: %v", err)
	}

	pkcs1 := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	again, err := ParsePrivateKey(pkcs1)
	if err != nil {
		t.Fatalf("ParsePrivateKey(PKCS#1) вернул ошибку: %v", err)
	}
	if !again.Equal(key) {
		t.Error("ключи PKCS#1 и PKCS#8 различаются")
	}
}

func TestParsePublicKey(t *testing.T) {
	_, pubPEM := testKeys(t)
	key, err := ParsePublicKey(pubPEM)
	if err != nil {
		t.Fatalf("ParsePublicKey вернул ошибку: %v", err)
	}
	if key.N.BitLen() != MinKeyBits {
		t.Errorf("BitLen = %d, ожидался %d", key.N.BitLen(), MinKeyBits)
	}

	if _, err := ParsePublicKey([]byte("garbage")); err == nil {
		t.Error("ожидалась ошибка для мусора")
	}
}

func TestNewAuthority_DerivesPublicKey(t *testing.T) {
	privPEM, _ := testKeys(t)
	key, err := ParsePrivateKey(privPEM)
	if err != nil {
		t.Fatal(err)
	}

	a := NewAuthority(key, nil, testLogger())
	if !a.CanVerify() {
		t.Fatal("открытый ключ должен выводиться из закрытого")
	}
	if !a.pub.Equal(&key.PublicKey) {
		t.Error("открытый ключ не совпадает с открытой частью закрытого")
	}
}

func TestGenerateKeyPair_TooSmall(t *testing.T) {
	if _, _, err := GenerateKeyPair(1024); err == nil {
		t.Error("ожидалась ошибка для ключа меньше минимального размера")
	}
}
