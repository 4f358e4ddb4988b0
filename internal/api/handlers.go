package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tiketla/settlement/internal/domain"
	"github.com/tiketla/settlement/internal/earnings"
	"github.com/tiketla/settlement/internal/lifecycle"
	"github.com/tiketla/settlement/internal/money"
	"github.com/tiketla/settlement/internal/policy"
	"github.com/tiketla/settlement/internal/repository"
	"github.com/tiketla/settlement/internal/tracker"
)

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	earningsSvc  *earnings.Service
	lifecycleSvc *lifecycle.Service
	trackerSvc   *tracker.Service
	policySvc    *policy.Service
	payoutRepo   *repository.PayoutRepo
	settingsRepo *repository.SettingsRepo
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeEngineError maps the engine's error taxonomy onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrIdempotencyViolation):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrDestinationInvalid):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, money.ErrCurrencyMismatch),
		errors.Is(err, domain.ErrBelowMinimumPayout),
		errors.Is(err, domain.ErrSettlementNotReady):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrProviderUnavailable),
		errors.Is(err, domain.ErrTimeout):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

// --- Earnings ---

func (h *Handlers) GetEventEarnings(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	if eventID == "" {
		writeError(w, http.StatusBadRequest, "eventID is required")
		return
	}

	e, err := h.earningsSvc.EventEarnings(r.Context(), eventID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handlers) GetOrganizerEarnings(w http.ResponseWriter, r *http.Request) {
	organizerID := chi.URLParam(r, "organizerID")
	if organizerID == "" {
		writeError(w, http.StatusBadRequest, "organizerID is required")
		return
	}
	preferred := money.Currency(r.URL.Query().Get("preferred_currency"))

	e, err := h.earningsSvc.OrganizerEarnings(r.Context(), organizerID, preferred)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// --- Payout lifecycle ---

func (h *Handlers) CreatePayout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EventID string `json:"event_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.EventID == "" {
		writeError(w, http.StatusBadRequest, "event_id is required")
		return
	}

	payout, err := h.earningsSvc.RequestPayout(r.Context(), req.EventID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, payout)
}

func (h *Handlers) ListPayouts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	organizerID := q.Get("organizer_id")
	if organizerID == "" {
		writeError(w, http.StatusBadRequest, "organizer_id is required")
		return
	}

	payouts, err := h.payoutRepo.ListByOrganizer(organizerID, domain.PayoutStatus(q.Get("status")))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"payouts": payouts,
		"total":   len(payouts),
	})
}

func (h *Handlers) GetPayout(w http.ResponseWriter, r *http.Request) {
	payout, err := h.payoutRepo.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payout)
}

func (h *Handlers) ApprovePayout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AdminID string `json:"admin_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.AdminID == "" {
		writeError(w, http.StatusBadRequest, "admin_id is required")
		return
	}

	payout, err := h.lifecycleSvc.Approve(r.Context(), chi.URLParam(r, "id"), req.AdminID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payout)
}

func (h *Handlers) ExecutePayout(w http.ResponseWriter, r *http.Request) {
	payout, err := h.lifecycleSvc.Execute(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		// A failed payout is still useful to the caller alongside the error.
		if payout != nil {
			writeJSON(w, statusForExecuteError(err), map[string]any{
				"payout": payout,
				"error":  err.Error(),
			})
			return
		}
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payout)
}

func statusForExecuteError(err error) int {
	switch {
	case errors.Is(err, domain.ErrTimeout), errors.Is(err, domain.ErrProviderUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusUnprocessableEntity
	}
}

func (h *Handlers) RetryPayout(w http.ResponseWriter, r *http.Request) {
	payout, err := h.lifecycleSvc.Retry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payout)
}

func (h *Handlers) CancelPayout(w http.ResponseWriter, r *http.Request) {
	payout, err := h.lifecycleSvc.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payout)
}

func (h *Handlers) ResolvePayout(w http.ResponseWriter, r *http.Request) {
	payout, err := h.lifecycleSvc.ResolveTransfer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if payout != nil {
			writeJSON(w, statusForExecuteError(err), map[string]any{
				"payout": payout,
				"error":  err.Error(),
			})
			return
		}
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payout)
}

// --- Disbursement triage ---

func (h *Handlers) GetPendingDisbursements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	windowDays := parseIntDefault(q.Get("window_days"), 365)
	limit := parseIntDefault(q.Get("limit"), 50)

	pending, err := h.trackerSvc.EndedEventsForDisbursement(r.Context(), windowDays, limit)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pending":     pending,
		"total":       len(pending),
		"window_days": windowDays,
		"limit":       limit,
	})
}

func (h *Handlers) GetDisbursementStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.trackerSvc.DisbursementStats(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// --- Platform settings ---

func (h *Handlers) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.policySvc.Settings()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

type updateSettingsRequest struct {
	AdminID             string                                           `json:"admin_id"`
	Fees                map[domain.Jurisdiction]domain.LocationFeeConfig `json:"fees"`
	MinimumPayoutAmount money.Money                                      `json:"minimum_payout_amount"`
}

func (h *Handlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req updateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.AdminID == "" {
		writeError(w, http.StatusBadRequest, "admin_id is required")
		return
	}
	if len(req.Fees) == 0 {
		writeError(w, http.StatusBadRequest, "fees are required")
		return
	}
	for j, cfg := range req.Fees {
		if j != domain.JurisdictionHaiti && j != domain.JurisdictionUSCanada {
			writeError(w, http.StatusBadRequest, "unknown jurisdiction: "+string(j))
			return
		}
		if cfg.PlatformFeeBasisPoints < 0 || cfg.PlatformFeeBasisPoints > 10000 {
			writeError(w, http.StatusBadRequest, "platform fee must be between 0 and 10000 basis points")
			return
		}
		if cfg.SettlementHoldDays < 0 {
			writeError(w, http.StatusBadRequest, "settlement hold days must not be negative")
			return
		}
	}
	if !money.Valid(req.MinimumPayoutAmount.Currency) || req.MinimumPayoutAmount.Amount < 0 {
		writeError(w, http.StatusBadRequest, "minimum payout amount is invalid")
		return
	}

	settings := &domain.PlatformSettings{
		Fees:                req.Fees,
		MinimumPayoutAmount: req.MinimumPayoutAmount,
		UpdatedAt:           time.Now().UTC(),
		UpdatedBy:           req.AdminID,
	}
	if err := h.settingsRepo.Update(settings); err != nil {
		writeEngineError(w, err)
		return
	}

	// The write path invalidates synchronously so the next read refreshes.
	h.policySvc.Invalidate()

	writeJSON(w, http.StatusOK, settings)
}

func (h *Handlers) GetSettingsHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), 20)
	history, err := h.settingsRepo.History(limit)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"history": history,
		"total":   len(history),
	})
}
