package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/docukeeper/internal/storage/filestore"
)

func TestServeBlob(t *testing.T) {
	fs, err := filestore.New(t.TempDir(), "http://localhost/blobs")
	if err != nil {
		t.Fatalf("filestore.New: %v", err)
	}
	if err := fs.Put(context.Background(), "u1/abc.txt", []byte("hello"), "text/plain"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	r := chi.NewRouter()
	r.Get("/blobs/*", NewBlobHandler(fs, testLogger()).ServeBlob)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"существующий объект", "/blobs/u1/abc.txt", http.StatusOK, "hello"},
		{"нет объекта", "/blobs/u1/missing.txt", http.StatusNotFound, ""},
		{"директория", "/blobs/u1", http.StatusNotFound, ""},
		{"пустой путь", "/blobs/", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, ожидался %d", rec.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Errorf("тело = %q, ожидалось %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestServeBlob_Range(t *testing.T) {
	fs, err := filestore.New(t.TempDir(), "http://localhost/blobs")
	if err != nil {
		t.Fatal(err)
	}
	if err := fs.Put(context.Background(), "u1/abc.txt", []byte("hello world"), "text/plain"); err != nil {
		t.Fatal(err)
	}

	r := chi.NewRouter()
	r.Get("/blobs/*", NewBlobHandler(fs, testLogger()).ServeBlob)

	req := httptest.NewRequest(http.MethodGet, "/blobs/u1/abc.txt", nil)
	req.Header.Set("Range", "bytes=0-4")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusPartialContent || rec.Body.String() != "hello" {
		t.Errorf("ответ = %d %q, ожидался 206 \"hello\"", rec.Code, rec.Body.String())
	}
}
