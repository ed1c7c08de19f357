package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Services bundles the application services the router serves.
type Services struct {
	Reservations interface {
		RequestSubmitter
		OfferMaker
		OfferResponder
		ReservationCanceller
		RequestCounter
	}
	Capacity CapacityReader
	Issuer   CertificateIssuer
	Evidence EvidenceVerifier
	Webhooks WebhookIngester
}

// NewRouter wires all routes and middleware.
func NewRouter(svcs Services, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if len(corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   corsOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-User-ID"},
			AllowCredentials: true,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/requests", func(r chi.Router) {
			r.Post("/", HandleSubmitRequest(svcs.Reservations))
			r.Get("/", HandleListRequests(svcs.Reservations))
			r.Post("/{id}/offer", HandleMakeOffer(svcs.Reservations))
			r.Post("/{id}/respond", HandleRespond(svcs.Reservations))
		})

		r.Post("/reservations/{id}/cancel", HandleCancelReservation(svcs.Reservations))

		r.Route("/admin", func(r chi.Router) {
			r.Get("/capacity/status", HandleCapacityStatus(svcs.Capacity, svcs.Reservations))
			r.Post("/capacity/recompute", HandleRecompute(svcs.Capacity))
			r.Post("/capacity/stop-sale", HandleStopSale(svcs.Capacity))
			r.Post("/certificates", HandleIssueCertificate(svcs.Issuer))
			r.Delete("/certificates/{id}", HandleRevokeCertificate(svcs.Issuer))
			r.Post("/payment-plans", HandleRegisterPaymentPlan(svcs.Webhooks))
			r.Get("/evidence/{type}/{id}/verify", HandleVerifyEvidence(svcs.Evidence))
		})

		r.Post("/webhooks/{source}", HandleWebhook(svcs.Webhooks))
	})

	return r
}
