package panel

import (
	"embed"
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
)

//go:embed web
var embedded embed.FS

const indexPage = "index.html"

// Assets returns the page assets: dir when it is an existing directory,
// otherwise the copy built into the binary.
func Assets(dir string) fs.FS {
	if dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return os.DirFS(dir)
		}
	}
	web, err := fs.Sub(embedded, "web")
	if err != nil {
		// fs.Sub only fails on an invalid path.
		panic("panel: embedded assets: " + err.Error())
	}
	return web
}

// Handler serves the control page from Assets(dir).
//
// Files are revalidated on every load so an edited page in dir shows up
// without a restart. Paths that name no file, and directories, get
// index.html; the page routes on the client.
func Handler(dir string) http.Handler {
	assets := Assets(dir)
	files := http.FileServerFS(assets)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, must-revalidate")

		name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
		if isFile(assets, name) {
			files.ServeHTTP(w, r)
			return
		}
		http.ServeFileFS(w, r, assets, indexPage)
	})
}

func isFile(fsys fs.FS, name string) bool {
	if name == "" {
		return false
	}
	info, err := fs.Stat(fsys, name)
	return err == nil && !info.IsDir()
}
