package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tiketla/settlement/internal/earnings"
	"github.com/tiketla/settlement/internal/lifecycle"
	"github.com/tiketla/settlement/internal/policy"
	"github.com/tiketla/settlement/internal/repository"
	"github.com/tiketla/settlement/internal/tracker"
)

// NewRouter creates the Chi router with all API routes mounted.
func NewRouter(
	earningsSvc *earnings.Service,
	lifecycleSvc *lifecycle.Service,
	trackerSvc *tracker.Service,
	policySvc *policy.Service,
	payoutRepo *repository.PayoutRepo,
	settingsRepo *repository.SettingsRepo,
) http.Handler {
	h := &Handlers{
		earningsSvc:  earningsSvc,
		lifecycleSvc: lifecycleSvc,
		trackerSvc:   trackerSvc,
		policySvc:    policySvc,
		payoutRepo:   payoutRepo,
		settingsRepo: settingsRepo,
	}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Route("/api/v1", func(r chi.Router) {
		// Earnings.
		r.Get("/earnings/events/{eventID}", h.GetEventEarnings)
		r.Get("/earnings/organizers/{organizerID}", h.GetOrganizerEarnings)

		// Payout lifecycle.
		r.Post("/payouts", h.CreatePayout)
		r.Get("/payouts", h.ListPayouts)
		r.Get("/payouts/{id}", h.GetPayout)
		r.Post("/payouts/{id}/approve", h.ApprovePayout)
		r.Post("/payouts/{id}/execute", h.ExecutePayout)
		r.Post("/payouts/{id}/retry", h.RetryPayout)
		r.Post("/payouts/{id}/cancel", h.CancelPayout)
		r.Post("/payouts/{id}/resolve", h.ResolvePayout)

		// Disbursement triage.
		r.Get("/disbursements/pending", h.GetPendingDisbursements)
		r.Get("/disbursements/stats", h.GetDisbursementStats)

		// Platform settings (admin).
		r.Get("/settings", h.GetSettings)
		r.Put("/settings", h.UpdateSettings)
		r.Get("/settings/history", h.GetSettingsHistory)
	})

	return r
}
