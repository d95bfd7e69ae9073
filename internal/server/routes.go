package server

import (
	"compress/gzip"
	"net/http"

	"github.com/VladKvetkin/ofinta/internal/entities"
	"github.com/VladKvetkin/ofinta/internal/handler"
	"github.com/VladKvetkin/ofinta/internal/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

func (s *Server) setupRoutes(handler *handler.Handler) {
	s.setupMiddleware()

	auth := middleware.Auth(s.config.JWTSecret)

	s.mux.Route("/", func(r chi.Router) {
		r.Get("/healthz", http.HandlerFunc(handler.Healthz))

		r.Post("/mpesa-result/", http.HandlerFunc(handler.MpesaResult))
		r.Post("/mpesa-timeout/", http.HandlerFunc(handler.MpesaTimeout))

		r.Route("/pl/{linkID}", func(r chi.Router) {
			r.Get("/", http.HandlerFunc(handler.GetPaymentLink))
			r.Post("/", http.HandlerFunc(handler.CheckoutPaymentLink))
		})

		r.Route("/api", func(r chi.Router) {
			r.Post("/user/login", http.HandlerFunc(handler.Login))

			r.Group(func(r chi.Router) {
				r.Use(auth, middleware.RequireRole(entities.RoleOwner, entities.RoleManager))

				r.Route("/orders", func(r chi.Router) {
					r.Post("/", http.HandlerFunc(handler.CreateOrder))
					r.Get("/", http.HandlerFunc(handler.GetOrders))

					r.Route("/{id}", func(r chi.Router) {
						r.Get("/", http.HandlerFunc(handler.GetOrder))
						r.Post("/assign", http.HandlerFunc(handler.AssignDriver))
						r.Post("/cancel", http.HandlerFunc(handler.CancelOrder))
						r.Post("/pay", http.HandlerFunc(handler.PayOrder))
						r.Get("/transaction", http.HandlerFunc(handler.GetTransaction))
					})
				})

				r.Route("/payment-links", func(r chi.Router) {
					r.Post("/", http.HandlerFunc(handler.CreatePaymentLink))
					r.Post("/{linkID}/cancel", http.HandlerFunc(handler.CancelPaymentLink))
				})
			})

			r.Group(func(r chi.Router) {
				r.Use(auth, middleware.RequireRole(entities.RoleDriver))

				r.Route("/driver", func(r chi.Router) {
					r.Route("/order/{id}", func(r chi.Router) {
						r.Post("/accept", http.HandlerFunc(handler.AcceptOrder))
						r.Post("/skip", http.HandlerFunc(handler.SkipOrder))
						r.Patch("/confirm", http.HandlerFunc(handler.ConfirmOrder))
						r.Post("/pay", http.HandlerFunc(handler.PayOrder))
					})

					r.Get("/orders", http.HandlerFunc(handler.GetDriverOrders))
					r.Get("/orders/history", http.HandlerFunc(handler.GetDriverHistory))
					r.Patch("/orders/{id}", http.HandlerFunc(handler.UpdateOrderStatus))
				})

				r.Post("/device/gcm", http.HandlerFunc(handler.SaveDevice))
			})
		})
	})
}

func (s *Server) setupMiddleware() {
	s.mux.Use(
		chiMiddleware.RequestID,
		chiMiddleware.Recoverer,
		middleware.Logger,
		chiMiddleware.Compress(gzip.BestCompression, "application/json", "text/html", "text/plain"),
	)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}
