// Package lifecycle owns every payout state transition. Transitions are
// single-writer per payout id: the current status is checked inside the
// same atomic update that writes the new one, so two concurrent approvals
// (or retries) resolve to exactly one winner.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/tiketla/settlement/internal/disbursement"
	"github.com/tiketla/settlement/internal/domain"
	"github.com/tiketla/settlement/internal/earnings"
	"github.com/tiketla/settlement/internal/ledger"
	"github.com/tiketla/settlement/internal/notify"
	"github.com/tiketla/settlement/internal/policy"
	"github.com/tiketla/settlement/internal/repository"
)

// Service drives payouts through pending -> approved -> paid, with failed
// recoverable via retry and cancellation allowed from any non-terminal
// state except paid.
type Service struct {
	payoutRepo      *repository.PayoutRepo
	earningsSvc     *earnings.Service
	salesLedger     ledger.SalesLedger
	router          *disbursement.Router
	policySvc       *policy.Service
	notifier        notify.Notifier
	providerTimeout time.Duration
	now             func() time.Time
}

func NewService(
	payoutRepo *repository.PayoutRepo,
	earningsSvc *earnings.Service,
	salesLedger ledger.SalesLedger,
	router *disbursement.Router,
	policySvc *policy.Service,
	notifier notify.Notifier,
	providerTimeout time.Duration,
) *Service {
	if providerTimeout <= 0 {
		providerTimeout = 30 * time.Second
	}
	return &Service{
		payoutRepo:      payoutRepo,
		earningsSvc:     earningsSvc,
		salesLedger:     salesLedger,
		router:          router,
		policySvc:       policySvc,
		notifier:        notifier,
		providerTimeout: providerTimeout,
		now:             time.Now,
	}
}

// WithClock overrides the clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Approve moves a pending payout to approved, stamping the admin who
// approved it. Concurrent approvals of the same payout yield exactly one
// success; the rest get ErrIdempotencyViolation.
func (s *Service) Approve(ctx context.Context, payoutID, adminID string) (*domain.Payout, error) {
	if err := s.payoutRepo.MarkApproved(payoutID, adminID, s.now().UTC()); err != nil {
		return nil, err
	}

	payout, err := s.payoutRepo.GetByID(payoutID)
	if err != nil {
		return nil, err
	}

	log.Printf("[lifecycle] Payout %s approved by %s", payoutID, adminID)
	s.notifier.PayoutApproved(ctx, payout)
	return payout, nil
}

// Execute disburses an approved payout through the routed provider. On
// success the payout is paid and the event's withdrawn balance updated. A
// destination problem fails the payout with a reason the organizer can act
// on. Timeouts and provider outages leave the payout approved: the outcome
// is unknown or retryable, and must never be guessed.
func (s *Service) Execute(ctx context.Context, payoutID string) (*domain.Payout, error) {
	payout, err := s.payoutRepo.GetByID(payoutID)
	if err != nil {
		return nil, err
	}
	if payout.Status != domain.PayoutApproved {
		return nil, fmt.Errorf("payout %s is %s, not approved: %w",
			payoutID, payout.Status, domain.ErrInvalidTransition)
	}

	event, err := s.salesLedger.GetEvent(ctx, payout.EventID)
	if err != nil {
		return nil, err
	}
	jurisdiction := policy.ResolveJurisdiction(event.CountryCode)

	route, err := s.router.RouteFor(payout.OrganizerID, jurisdiction)
	if err != nil {
		if errors.Is(err, domain.ErrDestinationInvalid) {
			return s.failPayout(ctx, payout, err.Error(), domain.ErrDestinationInvalid)
		}
		return nil, err
	}

	result, err := s.transferWithFallback(ctx, route, payout)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domain.ErrTimeout):
			// Outcome unknown. Leave approved; ResolveTransfer polls later.
			log.Printf("[lifecycle] WARNING: transfer for payout %s timed out, leaving approved", payoutID)
			return payout, fmt.Errorf("transfer %s: %w", payout.Reference, domain.ErrTimeout)
		case errors.Is(err, domain.ErrProviderUnavailable):
			log.Printf("[lifecycle] WARNING: provider unavailable for payout %s, leaving approved", payoutID)
			return payout, err
		case errors.Is(err, domain.ErrDestinationInvalid):
			return s.failPayout(ctx, payout, err.Error(), domain.ErrDestinationInvalid)
		default:
			// Provider-reported failure: the transfer was rejected.
			return s.failPayout(ctx, payout, err.Error(), err)
		}
	}

	if err := s.payoutRepo.MarkPaid(payoutID, result.TransactionID, s.now().UTC()); err != nil {
		return nil, err
	}
	if err := s.earningsSvc.MarkWithdrawn(ctx, payout.EventID, payout.Amount); err != nil {
		// The payout is paid; the projection catches up on next recompute.
		log.Printf("[lifecycle] WARNING: mark withdrawn for event %s: %v", payout.EventID, err)
	}

	paid, err := s.payoutRepo.GetByID(payoutID)
	if err != nil {
		return nil, err
	}

	log.Printf("[lifecycle] Payout %s paid via %s (txn %s)", payoutID, route.Provider.Name(), result.TransactionID)
	s.notifier.PayoutPaid(ctx, paid)
	return paid, nil
}

// transferWithFallback issues the transfer on the routed provider, dropping
// from the prefunded fast path to the standard rail when liquidity cannot
// cover the amount. The same reference is reused on the fallback: it is the
// idempotency key for this logical transfer, not per-attempt.
func (s *Service) transferWithFallback(ctx context.Context, route *disbursement.Route, payout *domain.Payout) (*disbursement.TransferResult, error) {
	tctx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	result, err := route.Provider.Transfer(tctx, payout.Amount, route.Profile.Destination, payout.Reference)
	if err != nil && errors.Is(err, domain.ErrInsufficientPrefundedBalance) && route.Fallback != nil {
		log.Printf("[lifecycle] Prefunded balance short for payout %s, falling back to %s",
			payout.ID, route.Fallback.Provider.Name())
		fctx, fcancel := context.WithTimeout(ctx, s.providerTimeout)
		defer fcancel()
		return route.Fallback.Provider.Transfer(fctx, payout.Amount, route.Fallback.Profile.Destination, payout.Reference)
	}
	return result, err
}

// Retry returns a failed payout to pending with the next weekly payout
// window, clearing the failure reason. Only valid from failed.
func (s *Service) Retry(ctx context.Context, payoutID string) (*domain.Payout, error) {
	window := s.policySvc.NextPayoutWindow(s.now().UTC())
	if err := s.payoutRepo.MarkRetried(payoutID, window); err != nil {
		return nil, err
	}

	payout, err := s.payoutRepo.GetByID(payoutID)
	if err != nil {
		return nil, err
	}
	log.Printf("[lifecycle] Payout %s back to pending, rescheduled for %s",
		payoutID, window.Format("2006-01-02"))
	return payout, nil
}

// Cancel voids a pending or approved payout. Paid payouts cannot be
// cancelled.
func (s *Service) Cancel(ctx context.Context, payoutID string) (*domain.Payout, error) {
	if err := s.payoutRepo.MarkCancelled(payoutID); err != nil {
		return nil, err
	}
	payout, err := s.payoutRepo.GetByID(payoutID)
	if err != nil {
		return nil, err
	}
	log.Printf("[lifecycle] Payout %s cancelled", payoutID)
	return payout, nil
}

// ResolveTransfer polls the provider for a transfer whose outcome is
// unknown (timed-out Execute) and settles the payout accordingly. A still
// processing transfer leaves the payout approved.
func (s *Service) ResolveTransfer(ctx context.Context, payoutID string) (*domain.Payout, error) {
	payout, err := s.payoutRepo.GetByID(payoutID)
	if err != nil {
		return nil, err
	}
	if payout.Status != domain.PayoutApproved {
		return nil, fmt.Errorf("payout %s is %s, nothing to resolve: %w",
			payoutID, payout.Status, domain.ErrInvalidTransition)
	}

	event, err := s.salesLedger.GetEvent(ctx, payout.EventID)
	if err != nil {
		return nil, err
	}
	route, err := s.router.RouteFor(payout.OrganizerID, policy.ResolveJurisdiction(event.CountryCode))
	if err != nil {
		return nil, err
	}

	sctx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()
	status, err := route.Provider.Status(sctx, payout.Reference)
	if err != nil {
		return nil, fmt.Errorf("status poll %s: %w", payout.Reference, domain.ErrProviderUnavailable)
	}

	switch status {
	case disbursement.StatusCompleted:
		if err := s.payoutRepo.MarkPaid(payoutID, payout.Reference, s.now().UTC()); err != nil {
			return nil, err
		}
		if err := s.earningsSvc.MarkWithdrawn(ctx, payout.EventID, payout.Amount); err != nil {
			log.Printf("[lifecycle] WARNING: mark withdrawn for event %s: %v", payout.EventID, err)
		}
		paid, err := s.payoutRepo.GetByID(payoutID)
		if err != nil {
			return nil, err
		}
		s.notifier.PayoutPaid(ctx, paid)
		return paid, nil
	case disbursement.StatusFailed:
		return s.failPayout(ctx, payout, "provider reported transfer failed", domain.ErrProviderUnavailable)
	default:
		log.Printf("[lifecycle] Payout %s transfer still %s, leaving approved", payoutID, status)
		return payout, nil
	}
}

func (s *Service) failPayout(ctx context.Context, payout *domain.Payout, reason string, cause error) (*domain.Payout, error) {
	if err := s.payoutRepo.MarkFailed(payout.ID, reason); err != nil {
		return nil, err
	}
	failed, err := s.payoutRepo.GetByID(payout.ID)
	if err != nil {
		return nil, err
	}
	log.Printf("[lifecycle] Payout %s failed: %s", payout.ID, reason)
	s.notifier.PayoutFailed(ctx, failed, reason)
	return failed, fmt.Errorf("payout %s failed: %w", payout.ID, cause)
}
