package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kozaktomas/face-finder/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/images", s.faces.ListImages)
		r.Get("/similar", s.faces.Similar)
		r.Get("/compare", s.faces.Compare)
		r.Post("/reload", s.faces.Reload)
	})

	// Browser pages
	s.router.Get("/", s.index)
	s.router.Get("/similar", s.faces.SimilarPage)
	s.router.Get("/image", s.faces.Image)

	s.router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
}

// index serves a minimal query form
func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>Face Finder</title>
    <style>
        body { font-family: system-ui, sans-serif; display: flex; justify-content: center; align-items: center; height: 100vh; margin: 0; background: #1a1a2e; color: #eee; }
        .container { text-align: center; }
        h1 { color: #00d9ff; }
        a { color: #00d9ff; }
        input { padding: 4px 8px; min-width: 320px; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Face Finder</h1>
        <form action="/similar" method="get">
            <input name="query" placeholder="path of the query image">
            <input name="top_k" type="number" min="0" placeholder="top k">
            <button type="submit">Find</button>
        </form>
        <p>Stored images: <a href="/api/v1/images">/api/v1/images</a></p>
    </div>
</body>
</html>`))
}
