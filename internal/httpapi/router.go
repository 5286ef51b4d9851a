package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/safar/go-sql-marketplace/internal/metrics"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func NewRouter(h *Handler, m *metrics.Metrics, logger *logrus.Logger, requestTimeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(instrument(m))
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/health", h.Health)
	r.Method(http.MethodGet, "/metrics", m.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(identify)

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.PlaceOrder)
			r.Get("/", h.ListBuyerOrders)
			r.Get("/{order_id}", h.GetOrder)
			r.Post("/{order_id}/cancel", h.CancelOrder)
		})

		r.Route("/seller/orders", func(r chi.Router) {
			r.Get("/", h.ListSellerOrders)
			r.Get("/stats", h.SellerOrderStats)
			r.Patch("/{order_id}/status", h.TransitionOrderStatus)
		})
	})

	return otelhttp.NewHandler(r, "marketplace-api")
}
