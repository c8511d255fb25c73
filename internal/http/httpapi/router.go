package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"genrelay/internal/http/handlers"
	"genrelay/internal/middleware"
)

// NewRouter mounts every exposed operation under /v1.
func NewRouter(app *handlers.App, logger zerolog.Logger, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(logger),
		middleware.CORS(allowedOrigins),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/models", app.ModelsList)

	r.Route("/v1/images", func(r chi.Router) {
		r.Post("/generations", app.ImagesGenerate)
		r.Post("/transforms", app.ImagesTransform)
		r.Post("/edits", app.ImagesEdit)
		r.Post("/upscale", app.ImagesUpscale)
	})

	r.Route("/v1/prompt", func(r chi.Router) {
		r.Post("/optimize", app.PromptOptimize)
		r.Post("/adapt", app.PromptAdapt)
	})

	r.Post("/v1/chat", app.Chat)
	r.Route("/v1/conversations", func(r chi.Router) {
		r.Post("/activate", app.ConversationActivate)
		r.Post("/deactivate", app.ConversationDeactivate)
	})

	r.Post("/v1/moderations", app.Moderate)

	return r
}
