package httpserver

import (
	"fmt"
	"html"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"notiontools/dashboard-gateway/internal/guard"
)

// pageTitles lists the pages rendered without a frontend build.
var pageTitles = map[string]string{
	"/":                 "Home",
	guard.LoginPath:     "Sign in",
	guard.RegisterPath:  "Create account",
	guard.DashboardPath: "Dashboard",
	"/notion":           "Notion",
	"/weread":           "WeRead",
}

// registerFrontendRoutes mounts the page catch-all behind the session guard.
// With a dist directory containing index.html it serves the SPA with an
// index fallback, otherwise a minimal placeholder for the known pages.
func registerFrontendRoutes(r chi.Router, g *guard.Guard, distDir string) {
	var pages http.Handler = http.HandlerFunc(servePlaceholder)
	if dist := strings.TrimSpace(distDir); dist != "" {
		indexPath := filepath.Join(dist, "index.html")
		if _, err := os.Stat(indexPath); err == nil {
			pages = spaHandler(dist, indexPath)
		}
	}

	catchAll := g.Middleware(pages)
	r.Handle("/*", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/v1/") || strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
			return
		}
		catchAll.ServeHTTP(w, r)
	}))
}

func spaHandler(distDir, indexPath string) http.Handler {
	fileServer := http.FileServer(http.Dir(distDir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cleanPath := path.Clean(r.URL.Path)
		if cleanPath == "." || cleanPath == "/" {
			http.ServeFile(w, r, indexPath)
			return
		}

		fullPath := filepath.Join(distDir, strings.TrimPrefix(cleanPath, "/"))
		info, err := os.Stat(fullPath)
		if err == nil && !info.IsDir() {
			fileServer.ServeHTTP(w, r)
			return
		}

		// SPA fallback.
		http.ServeFile(w, r, indexPath)
	})
}

func servePlaceholder(w http.ResponseWriter, r *http.Request) {
	p := guard.CleanPath(r.URL.Path)
	title, ok := pageTitles[p]
	if !ok && strings.HasPrefix(p, guard.DashboardPath+"/") {
		title, ok = pageTitles[guard.DashboardPath], true
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "<!doctype html><html><head><title>%s</title></head><body><h1>%s</h1></body></html>\n",
		html.EscapeString(title), html.EscapeString(title))
}
