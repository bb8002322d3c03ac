package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/leavend/genstudio/internal/http/handlers"
	"github.com/leavend/genstudio/internal/middleware"
)

// Options configures the API router.
type Options struct {
	JWTSecret     string
	CORSOrigins   []string
	DefaultLocale string
	CountryLookup middleware.CountryLookup
	// StreamRateLimit caps streaming batches per caller per minute.
	StreamRateLimit int
	// Static serves stored artifacts under /static when set.
	Static http.Handler
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	if opts.DefaultLocale == "" {
		opts.DefaultLocale = "en"
	}
	if opts.StreamRateLimit <= 0 {
		opts.StreamRateLimit = 30
	}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
		middleware.CORS(opts.CORSOrigins),
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
	)

	// Health
	r.Get("/v1/healthz", app.Health)

	if opts.Static != nil {
		r.Handle("/static/*", http.StripPrefix("/static/", opts.Static))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(opts.JWTSecret))

		r.Post("/v1/generations/{kind}", app.CreateGeneration)
		r.Get("/v1/generations/{id}", app.GetGeneration)
		r.Get("/v1/jobs/{id}", app.JobStatus)

		r.With(middleware.RateLimit(opts.StreamRateLimit, time.Minute)).Post("/v1/logos/stream", app.LogoStream)

		r.Route("/v1/notifications", func(r chi.Router) {
			r.Get("/", app.ListNotifications)
			r.Post("/read-all", app.MarkAllNotificationsRead)
			r.Post("/{id}/read", app.MarkNotificationRead)
		})
		r.Get("/v1/ws", app.Live)

		r.With(middleware.RequireRole(middleware.RoleOperator)).Post("/v1/broadcasts", app.Broadcast)
	})

	return r
}
