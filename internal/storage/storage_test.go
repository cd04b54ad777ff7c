package storage

import (
	"errors"
	"regexp"
	"strings"
	"testing"
)

var objectPathRe = regexp.MustCompile(`^[A-Za-z0-9_-]+/[0-9a-f]{32}(\.[a-z0-9]{1,16})?$`)

func TestObjectPath(t *testing.T) {
	tests := []struct {
		name       string
		owner      string
		filename   string
		wantPrefix string
		wantSuffix string
	}{
		{"обычный файл", "user-1", "contract.pdf", "user-1/", ".pdf"},
		{"расширение в верхнем регистре", "user-1", "scan.PNG", "user-1/", ".png"},
		{"без расширения", "user-1", "README", "user-1/", ""},
		{"опасное расширение", "user-1", "x.p/d", "user-1/", ""},
		{"длинное расширение", "user-1", "a.abcdefghijklmnopq", "user-1/", ""},
		{"символы в владельце", "../evil user", "a.txt", "eviluser/", ".txt"},
		{"пустой владелец", "", "a.txt", "owner/", ".txt"},
		{"windows-путь", "u", `C:\docs\report.docx`, "u/", ".docx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ObjectPath(tt.owner, tt.filename)
			if !strings.HasPrefix(got, tt.wantPrefix) {
				t.Errorf("ObjectPath = %q, ожидался префикс %q", got, tt.wantPrefix)
			}
			if tt.wantSuffix != "" && !strings.HasSuffix(got, tt.wantSuffix) {
				t.Errorf("ObjectPath = %q, ожидался суффикс %q", got, tt.wantSuffix)
			}
			if !objectPathRe.MatchString(got) {
				t.Errorf("ObjectPath = %q не соответствует формату", got)
			}
			if err := ValidatePath(got); err != nil {
				t.Errorf("ValidatePath(%q) = %v", got, err)
			}
		})
	}
}

func TestObjectPath_Unique(t *testing.T) {
	a := ObjectPath("u", "a.txt")
	b := ObjectPath("u", "a.txt")
	if a == b {
		t.Errorf("два вызова вернули одинаковый путь %q", a)
	}
}

func TestValidatePath(t *testing.T) {
	valid := []string{"u/abc.txt", "a/b/c"}
	invalid := []string{"", "/abs", "u/../x", "./x", "u//x", `u\x`, "u/."}

	for _, p := range valid {
		if err := ValidatePath(p); err != nil {
			t.Errorf("ValidatePath(%q) = %v, ожидался nil", p, err)
		}
	}
	for _, p := range invalid {
		if err := ValidatePath(p); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("ValidatePath(%q) = %v, ожидалась ErrInvalidPath", p, err)
		}
	}
}
