package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"boothvideo/internal/http/handlers"
	"boothvideo/internal/infra"
	"boothvideo/internal/middleware"
)

const tickPath = "/api/video/tick"

func NewRouter(app *handlers.App, cfg *infra.Config, logger infra.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID(logger),
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(logger, tickPath, "/v1/healthz"),
		middleware.CORS(cfg.CORSOrigins),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)

	r.Route("/api/video", func(r chi.Router) {
		r.With(middleware.RateLimit(cfg.RateLimitPerMin, time.Minute)).Post("/start", app.VideoStart)
		r.Get("/tick", app.VideoTick)
		r.Post("/tick", app.VideoTick)
		r.Get("/status", app.VideoStatus)
		r.Get("/proxy", app.VideoProxy)
		r.Head("/proxy", app.VideoProxy)
	})

	r.Get("/api/debug/provider", app.DebugProvider)

	return r
}
