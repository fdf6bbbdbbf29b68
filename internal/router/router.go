// Package router assembles the per-service chi routers. Every service shares
// the same middleware spine; only the mounted routes differ.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"banking-settlement/internal/handler"
	"banking-settlement/pkg/notifier/ws"
	"banking-settlement/pkg/response"
)

func base() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func Transaction(h *handler.TransactionHandler) *chi.Mux {
	r := base()
	r.Route("/transactions", func(r chi.Router) {
		r.Post("/", h.Initiate)
		r.Get("/pending", h.Pending)
		r.Get("/history/{account}", h.History)
		r.Get("/{id}", h.GetByID)
		r.Put("/{id}/status", h.UpdateStatus)
	})
	return r
}

func Wallet(h *handler.WalletHandler) *chi.Mux {
	r := base()
	r.Route("/wallets", func(r chi.Router) {
		r.Post("/create", h.Create)
		r.Get("/", h.List)
		r.Get("/{account}", h.Get)
		r.Get("/{account}/balance", h.Balance)
	})
	return r
}

func Fraud(h *handler.FraudHandler) *chi.Mux {
	r := base()
	r.Route("/fraud", func(r chi.Router) {
		r.Get("/flagged", h.Flagged)
		r.Get("/account/{account}", h.ByAccount)
		r.Get("/all", h.All)
	})
	return r
}

func Notification(h *handler.NotificationHandler, hub *ws.Hub) *chi.Mux {
	r := base()
	r.Route("/notifications", func(r chi.Router) {
		r.Get("/recipient/{recipient}", h.ByRecipient)
		r.Get("/transaction/{id}", h.ByTransaction)
		r.Get("/all", h.All)
	})
	r.Get("/ws/notifications", hub.Handle)
	return r
}
