package api

import (
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"house-prices/internal/db"
)

// NewRouter creates and configures the Chi router. runner may be nil, in
// which case scrape triggers are rejected.
func NewRouter(database *db.DB, staticDir string, runner Runner, loc *time.Location) http.Handler {
	return newRouter(NewHandlers(database, runner, loc), staticDir)
}

func newRouter(h *Handlers, staticDir string) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(CORS)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/houses", h.ListHouses)
		r.Get("/houses/{id}", h.GetHouse)
		r.Get("/filters/options", h.GetFilterOptions)
		r.Get("/averages", h.GetAverages)
		r.Post("/scrape/trigger", h.TriggerScrape)
		r.Get("/scrape/status", h.ScrapeStatus)
	})

	// Serve the dashboard
	if staticDir != "" {
		fileServer := http.FileServer(http.Dir(staticDir))
		r.Handle("/static/*", http.StripPrefix("/static/", fileServer))
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, filepath.Join(staticDir, "index.html"))
		})
	}

	return r
}

// CORS allows the dashboard to be served from another origin
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
