package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"gwi.com/legal-rag/internal/metrics"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling
	r.Use(metrics.Middleware)
	r.Use(cors)

	r.Get("/", apiHandler.RootHandler)
	r.Get("/health", apiHandler.HealthHandler)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Post("/upload_pdf", apiHandler.UploadPDFHandler)
	r.Post("/summarize", apiHandler.SummarizeHandler)
	r.Post("/risks", apiHandler.RisksHandler)
	r.Post("/chat", apiHandler.ChatHandler)

	r.Route("/documents/{docID}", func(r chi.Router) {
		r.Get("/", apiHandler.GetDocumentHandler)
		r.Get("/content", apiHandler.GetDocumentContentHandler)
		r.Get("/sessions/{sessionID}", apiHandler.GetSessionHandler)
	})

	return r
}

// cors allows any origin; the service carries no credentials of its own.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-Id")
		h.Set("Access-Control-Expose-Headers", "Retry-After, X-Request-Id")
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
