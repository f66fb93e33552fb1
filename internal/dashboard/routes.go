package dashboard

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/neotracker/neotracker/internal/platform/httpx"
)

// MountRoutes registers the catalog API onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(6, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests), "refresh rate limit exceeded")
		}),
	)

	r.Get("/data", h.handleData)
	r.Get("/view", h.handleView)
	r.Get("/view.csv", h.handleCSV)
	r.Get("/charts", h.handleCharts)
	r.Get("/refresh", h.handleRefreshStatus)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Post("/refresh", h.handleRefresh)
	})
}
