package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"server/internal/http/handlers"
	"server/internal/middleware"
)

func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
		middleware.CORS(app.Config.CORSAllowOrigins),
		middleware.RateLimit(app.Config.RateLimitPerMin, time.Minute),
	)

	r.Get("/", app.Root)
	r.Get("/health", app.Health)

	r.Route("/api/image", func(r chi.Router) {
		r.Post("/generate", app.ImagesGenerate)
		r.Get("/status/{job_id}", app.ImageStatus)
		r.Post("/edit", app.ImagesEdit)
		r.Post("/enhance-prompt", app.PromptEnhance)
		r.Get("/library", app.ImageLibraryView)
		r.Delete("/session/{session_id}", app.CloseSession)
		r.Get("/{filename}", app.ImageFile)
	})

	r.Route("/api/video", func(r chi.Router) {
		r.Post("/generate", app.VideosGenerate)
		r.Post("/extend", app.VideosExtend)
		r.Get("/status/{job_id}", app.VideoStatus)
		r.Get("/library", app.VideoLibraryView)
		r.Get("/{filename}", app.VideoFile)
	})

	r.Route("/api/history", func(r chi.Router) {
		r.Get("/", app.HistoryList)
		r.Delete("/{record_id}", app.HistoryDelete)
		r.Delete("/", app.HistoryClear)
	})

	return r
}
