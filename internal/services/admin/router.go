package admin

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/NordCoder/Flatwatch/internal/obs"
)

// NewRouter mounts the admin API. With a nil auth every route is open.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.accessLog)

	if h.auth != nil {
		r.Post("/v1/auth/token", h.IssueToken)
	}

	r.Group(func(r chi.Router) {
		if h.auth != nil {
			r.Use(h.auth.Middleware)
		}

		r.Route("/v1/users/{id}", func(r chi.Router) {
			r.Put("/", h.PutUser)
			r.Get("/", h.GetUser)
			r.Delete("/", h.DeleteUser)
			r.Post("/trial", h.StartTrial)
			r.Post("/subscription", h.ExtendSubscription)

			r.Route("/filter", func(r chi.Router) {
				r.Put("/", h.PutFilter)
				r.Get("/", h.GetFilter)
				r.Delete("/", h.DeleteFilter)
				r.Post("/pause", h.setPaused(true))
				r.Post("/resume", h.setPaused(false))
			})

			r.Get("/favorites", h.ListFavorites)
			r.Put("/favorites/{listingID}", h.favorite(true))
			r.Delete("/favorites/{listingID}", h.favorite(false))
		})

		r.Get("/v1/listings/{externalID}", h.GetListing)
		r.Get("/v1/jobs/failed", h.FailedJobs)
	})

	return obs.HTTPHandler(r, "admin-api")
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		obs.WithTrace(r.Context(), h.log).Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
