package panel

import (
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandlerServesRoot(t *testing.T) {
	w := get(t, Handler(""), "/")

	if w.Code != http.StatusOK {
		t.Errorf("GET /: got status %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "<!DOCTYPE html>") {
		t.Error("GET /: response doesn't contain HTML doctype")
	}
	if got := w.Header().Get("Cache-Control"); got != "no-cache, must-revalidate" {
		t.Errorf("Cache-Control = %q, want no-cache, must-revalidate", got)
	}
}

func TestHandlerServesStaticAssets(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/app.js", "new WebSocket"},
		{"/style.css", "border-collapse"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := get(t, Handler(""), tt.path)
			if w.Code != http.StatusOK {
				t.Fatalf("GET %s: got status %d, want 200", tt.path, w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.want) {
				t.Errorf("GET %s: body missing %q", tt.path, tt.want)
			}
		})
	}
}

func TestHandlerFallback(t *testing.T) {
	w := get(t, Handler(""), "/sessions/abc")

	if w.Code != http.StatusOK {
		t.Errorf("GET /sessions/abc: got status %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "<!DOCTYPE html>") {
		t.Error("fallback did not serve index.html")
	}
}

func TestHandlerServesDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<!DOCTYPE html><p>local</p>"), 0o600); err != nil {
		t.Fatal(err)
	}

	w := get(t, Handler(dir), "/")
	if !strings.Contains(w.Body.String(), "local") {
		t.Errorf("GET / from dir: body = %q, want the local index", w.Body.String())
	}
}

func TestHandlerMissingDirectoryUsesEmbedded(t *testing.T) {
	w := get(t, Handler(filepath.Join(t.TempDir(), "missing")), "/app.js")
	if w.Code != http.StatusOK {
		t.Errorf("GET /app.js: got status %d, want 200", w.Code)
	}
}

func TestAssetsPrefersDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "extra.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := fs.Stat(Assets(dir), "extra.txt"); err != nil {
		t.Errorf("Assets(dir) missing extra.txt: %v", err)
	}
	if _, err := fs.Stat(Assets(""), "app.js"); err != nil {
		t.Errorf("embedded assets missing app.js: %v", err)
	}
}
