package api

import (
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig holds settings for the API router.
type RouterConfig struct {
	// CorsAllowedOrigins is a comma-separated list of allowed origins.
	// If empty, defaults to "*" (development mode).
	CorsAllowedOrigins string
}

func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg.CorsAllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)

	r.Route("/v1", func(r chi.Router) {
		// Jobs
		r.Post("/jobs", h.SubmitJob)
		r.Get("/jobs", h.ListJobs)
		r.Get("/jobs/history", h.ListHistory)
		r.Get("/jobs/{id}", h.GetJob)
		r.Get("/jobs/{id}/download", h.DownloadArtifact)
		r.Get("/jobs/{id}/preview", h.DownloadPreview)

		// Voices
		r.Get("/voices", h.ListVoices)
	})

	// Unversioned routes kept for clients of the first release
	r.Post("/generate_movie", h.SubmitJob)
	r.Get("/status/{id}", h.GetJob)
	r.Get("/download/{id}", h.DownloadArtifact)
	r.Get("/preview/{id}", h.DownloadPreview)

	return r
}

// allowedOrigins restricts origins when configured, otherwise allows all.
func allowedOrigins(list string) []string {
	origins := []string{"*"}
	if list == "" {
		return origins
	}

	trimmed := make([]string, 0)
	for _, o := range strings.Split(list, ",") {
		if s := strings.TrimSpace(o); s != "" {
			trimmed = append(trimmed, s)
		}
	}
	if len(trimmed) > 0 {
		origins = trimmed
	}
	return origins
}
