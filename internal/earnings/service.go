// Package earnings computes per-event and per-organizer earnings from the
// sales ledger and fee policy. The stored projection is a cache: it can be
// recomputed from the ledger at any time and the fresh recompute always
// wins for reconciliation purposes.
package earnings

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/tiketla/settlement/internal/domain"
	"github.com/tiketla/settlement/internal/ledger"
	"github.com/tiketla/settlement/internal/money"
	"github.com/tiketla/settlement/internal/policy"
	"github.com/tiketla/settlement/internal/repository"
)

// Recompute derives an event's earnings projection from a slice of the
// sales ledger. Pure function: same inputs, same output. withdrawn is
// carried over from the previous projection because the ledger does not
// know about payouts.
func Recompute(
	event *domain.Event,
	sales []domain.Sale,
	cfg domain.LocationFeeConfig,
	processingFee policy.ProcessingFeeFunc,
	withdrawn money.Money,
	now time.Time,
) (*domain.EventEarnings, error) {
	gross := money.Zero(event.Currency)
	for _, sale := range sales {
		sum, err := gross.Add(sale.Amount)
		if err != nil {
			return nil, fmt.Errorf("sale %s: %w", sale.ID, err)
		}
		gross = sum
	}

	platformFee := gross.MulRatio(cfg.PlatformFeeBasisPoints, 10000)
	procFee := processingFee(gross, len(sales))

	net, err := gross.Subtract(platformFee)
	if err != nil {
		return nil, err
	}
	net, err = net.Subtract(procFee)
	if err != nil {
		return nil, err
	}

	if withdrawn.Currency == "" {
		withdrawn = money.Zero(event.Currency)
	}
	available, err := net.Subtract(withdrawn)
	if err != nil {
		return nil, err
	}
	if available.Amount < 0 {
		available = money.Zero(event.Currency)
	}

	readyAt := event.EndDateTime.AddDate(0, 0, cfg.SettlementHoldDays)
	status := domain.SettlementPending
	switch {
	case available.IsZero() && !withdrawn.IsZero():
		status = domain.SettlementWithdrawn
	case !now.Before(readyAt):
		status = domain.SettlementReady
	}

	return &domain.EventEarnings{
		EventID:             event.ID,
		OrganizerID:         event.OrganizerID,
		Currency:            event.Currency,
		GrossSales:          gross,
		PlatformFee:         platformFee,
		ProcessingFee:       procFee,
		NetAmount:           net,
		WithdrawnAmount:     withdrawn,
		AvailableToWithdraw: available,
		SettlementStatus:    status,
		SettlementReadyAt:   readyAt,
		ComputedAt:          now,
	}, nil
}

// Service is the earnings aggregator.
type Service struct {
	salesLedger  ledger.SalesLedger
	policySvc    *policy.Service
	earningsRepo *repository.EarningsRepo
	payoutRepo   *repository.PayoutRepo
	now          func() time.Time
}

func NewService(
	salesLedger ledger.SalesLedger,
	policySvc *policy.Service,
	earningsRepo *repository.EarningsRepo,
	payoutRepo *repository.PayoutRepo,
) *Service {
	return &Service{
		salesLedger:  salesLedger,
		policySvc:    policySvc,
		earningsRepo: earningsRepo,
		payoutRepo:   payoutRepo,
		now:          time.Now,
	}
}

// WithClock overrides the clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RefreshEvent recomputes an event's earnings from the ledger and stores
// the projection. Safe to run concurrently with payout execution: the
// withdrawn amount is re-read and a payout's amount is fixed at creation.
func (s *Service) RefreshEvent(ctx context.Context, eventID string) (*domain.EventEarnings, error) {
	event, err := s.salesLedger.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	sales, err := s.salesLedger.ListConfirmedSales(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}

	jurisdiction := policy.ResolveJurisdiction(event.CountryCode)
	cfg, err := s.policySvc.FeeConfig(jurisdiction)
	if err != nil {
		return nil, err
	}

	withdrawn := money.Zero(event.Currency)
	if prev, err := s.earningsRepo.GetByEventID(eventID); err == nil {
		withdrawn = prev.WithdrawnAmount
	}

	computed, err := Recompute(event, sales, cfg, s.policySvc.ProcessingFee, withdrawn, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("recompute event %s: %w", eventID, err)
	}

	if err := s.earningsRepo.Upsert(computed); err != nil {
		return nil, err
	}
	return computed, nil
}

// EventEarnings returns the stored projection, refreshing it first so the
// caller always sees figures derived from the current ledger.
func (s *Service) EventEarnings(ctx context.Context, eventID string) (*domain.EventEarnings, error) {
	return s.RefreshEvent(ctx, eventID)
}

// OrganizerEarnings aggregates all of an organizer's stored event
// projections into per-currency buckets plus a preferred-currency display
// figure.
func (s *Service) OrganizerEarnings(ctx context.Context, organizerID string, preferred money.Currency) (*domain.OrganizerEarnings, error) {
	all, err := s.earningsRepo.ListByOrganizer(organizerID)
	if err != nil {
		return nil, err
	}

	if !money.Valid(preferred) {
		preferred = money.USD
	}

	gross := make(map[money.Currency]money.Money)
	available := make(map[money.Currency]money.Money)
	for _, e := range all {
		g := gross[e.Currency]
		if g.Currency == "" {
			g = money.Zero(e.Currency)
		}
		g, _ = g.Add(e.GrossSales)
		gross[e.Currency] = g

		a := available[e.Currency]
		if a.Currency == "" {
			a = money.Zero(e.Currency)
		}
		a, _ = a.Add(e.AvailableToWithdraw)
		available[e.Currency] = a
	}

	display, has := money.ProjectPreferred(available, preferred)
	return &domain.OrganizerEarnings{
		OrganizerID:         organizerID,
		EventCount:          len(all),
		GrossByCurrency:     gross,
		AvailableByCurrency: available,
		Display:             display,
		HasEarnings:         has,
	}, nil
}

// RequestPayout creates a pending payout for an event's available balance.
// The amount is captured now and never re-derived: a later recompute must
// not move the target of an in-flight payout. One open payout per event.
func (s *Service) RequestPayout(ctx context.Context, eventID string) (*domain.Payout, error) {
	e, err := s.RefreshEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if e.SettlementStatus == domain.SettlementPending {
		return nil, fmt.Errorf("event %s settles at %s: %w",
			eventID, e.SettlementReadyAt.Format(time.RFC3339), domain.ErrSettlementNotReady)
	}

	minimum, err := s.policySvc.MinimumPayout()
	if err != nil {
		return nil, err
	}
	// The minimum is a one-currency baseline; compare only within its
	// currency and let other currencies through on any positive balance.
	if e.AvailableToWithdraw.Currency == minimum.Currency {
		if cmp, _ := e.AvailableToWithdraw.Compare(minimum); cmp < 0 {
			return nil, fmt.Errorf("available %d below minimum %d: %w",
				e.AvailableToWithdraw.Amount, minimum.Amount, domain.ErrBelowMinimumPayout)
		}
	} else if e.AvailableToWithdraw.Amount <= 0 {
		return nil, fmt.Errorf("no available balance for event %s: %w", eventID, domain.ErrBelowMinimumPayout)
	}

	// Advisory read for a clear error; the open-payout unique index is
	// what serializes racing requests, via the Insert below.
	open, err := s.payoutRepo.HasOpenPayoutForEvent(eventID)
	if err != nil {
		return nil, err
	}
	if open {
		return nil, fmt.Errorf("event %s already has an open payout: %w", eventID, domain.ErrIdempotencyViolation)
	}

	event, err := s.salesLedger.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	method := domain.MethodConnectedAccount
	if policy.ResolveJurisdiction(event.CountryCode) == domain.JurisdictionHaiti {
		method = domain.MethodMobileMoney
	}

	id := uuid.NewString()
	payout := &domain.Payout{
		ID:          id,
		EventID:     eventID,
		OrganizerID: e.OrganizerID,
		Amount:      e.AvailableToWithdraw,
		Method:      method,
		Status:      domain.PayoutPending,
		// The reference doubles as the provider idempotency key for every
		// transfer attempt of this payout, so a retried call cannot
		// double-move funds.
		Reference:     fmt.Sprintf("po-%s-%s", eventID, id),
		ScheduledDate: s.policySvc.NextPayoutWindow(now),
		CreatedAt:     now,
	}

	if err := s.payoutRepo.Insert(payout); err != nil {
		return nil, err
	}

	log.Printf("[earnings] Created payout %s for event %s: %s scheduled %s",
		payout.ID, eventID, payout.Amount.FormatForDisplay("en-US"),
		payout.ScheduledDate.Format("2006-01-02"))
	return payout, nil
}

// MarkWithdrawn settles a paid payout against the event projection.
func (s *Service) MarkWithdrawn(ctx context.Context, eventID string, amount money.Money) error {
	return s.earningsRepo.AddWithdrawn(eventID, amount.Amount)
}
