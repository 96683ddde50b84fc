package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/satspin/satspin/internal/ratelimit"
)

// NewRouter registers all API endpoints. The websocket endpoint sits
// behind the same auth middleware as the REST surface; spin and
// deposit creation additionally pass the rate limiter.
func NewRouter(authSvc AuthService, ledgerSvc LedgerService, depositSvc DepositService, history SpinHistory, hub *Hub, limiter ratelimit.Limiter) http.Handler {
	h := NewHandler(authSvc, ledgerSvc, depositSvc, history)
	ws := NewWSHandler(hub, ledgerSvc, depositSvc)

	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Post("/auth/login", h.LoginHandler)

	r.Route("/api", func(r chi.Router) {
		r.Use(AuthMiddleware(authSvc))

		r.Get("/me", h.MeHandler)
		r.Get("/balance", h.GetBalanceHandler)
		r.Get("/deposits/{paymentHash}", h.DepositStatusHandler)
		r.Get("/spins", h.ListSpinsHandler)
		r.Get("/ws", ws.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(RateLimitMiddleware(limiter))

			r.Post("/deposits", h.CreateDepositHandler)
			r.Post("/spin", h.SpinHandler)
		})
	})

	return r
}
