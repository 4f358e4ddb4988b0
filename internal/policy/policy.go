// Package policy resolves platform-fee percentages, settlement holds and
// payout scheduling from the admin-mutated platform settings.
package policy

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/tiketla/settlement/internal/domain"
	"github.com/tiketla/settlement/internal/money"
)

// ResolveJurisdiction maps a country code to its fee/routing bucket. Haiti
// is its own bucket; everything else settles on the US/Canada rails.
func ResolveJurisdiction(countryCode string) domain.Jurisdiction {
	switch strings.ToUpper(strings.TrimSpace(countryCode)) {
	case "HT", "HTI", "HAITI":
		return domain.JurisdictionHaiti
	default:
		return domain.JurisdictionUSCanada
	}
}

// SettingsSource loads the current platform settings. Satisfied by
// repository.SettingsRepo.
type SettingsSource interface {
	Get() (*domain.PlatformSettings, error)
}

// ProcessingFeeFunc computes the external processor's fee on an event's
// gross sales. The processor charges per confirmed sale, so the sale count
// is part of the input. The real rate depends on the acquiring processor;
// it is pluggable so deployments can match their contract.
type ProcessingFeeFunc func(gross money.Money, saleCount int) money.Money

// DefaultProcessingFee is the sampled card-processor formula: 2.9% of
// gross plus a 30 minor-unit fixed component per sale, rounded half-up
// once.
func DefaultProcessingFee(gross money.Money, saleCount int) money.Money {
	if saleCount == 0 {
		return money.Zero(gross.Currency)
	}
	pct := money.RoundHalfUpRatio(gross.Amount*29, 1000)
	return money.New(pct+30*int64(saleCount), gross.Currency)
}

// Service answers fee-policy questions from a process-wide settings cache.
// Reads never block on storage once warm; admin writes call Invalidate so
// the next read refreshes. If a refresh fails the last-known-good config is
// served and a degraded-mode warning is logged — fee computation must never
// silently fall back to zero.
type Service struct {
	source        SettingsSource
	processingFee ProcessingFeeFunc
	payoutWeekday time.Weekday

	mu       sync.RWMutex
	cached   *domain.PlatformSettings
	stale    bool
	loadedAt time.Time
}

func NewService(source SettingsSource) *Service {
	return &Service{
		source:        source,
		processingFee: DefaultProcessingFee,
		payoutWeekday: time.Friday,
	}
}

// WithProcessingFee overrides the processing-fee formula.
func (s *Service) WithProcessingFee(fn ProcessingFeeFunc) *Service {
	s.processingFee = fn
	return s
}

// WithPayoutWeekday overrides the weekly payout window day.
func (s *Service) WithPayoutWeekday(d time.Weekday) *Service {
	s.payoutWeekday = d
	return s
}

// Settings returns the current platform settings, loading them on first
// use or after an Invalidate.
func (s *Service) Settings() (*domain.PlatformSettings, error) {
	s.mu.RLock()
	if s.cached != nil && !s.stale {
		cached := s.cached
		s.mu.RUnlock()
		return cached, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != nil && !s.stale {
		return s.cached, nil
	}

	fresh, err := s.source.Get()
	if err != nil {
		if s.cached != nil {
			log.Printf("[policy] WARNING: settings refresh failed, serving last-known-good v%d (loaded %s ago): %v",
				s.cached.Version, time.Since(s.loadedAt).Round(time.Second), err)
			return s.cached, nil
		}
		return nil, fmt.Errorf("load settings: %w (%v)", domain.ErrSettingsUnavailable, err)
	}

	s.cached = fresh
	s.stale = false
	s.loadedAt = time.Now()
	return fresh, nil
}

// Invalidate marks the cache stale. The settings write path calls this
// synchronously after a successful update.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.stale = true
	s.mu.Unlock()
}

// FeeConfig returns the jurisdiction's fee slice.
func (s *Service) FeeConfig(j domain.Jurisdiction) (domain.LocationFeeConfig, error) {
	settings, err := s.Settings()
	if err != nil {
		return domain.LocationFeeConfig{}, err
	}
	cfg, ok := settings.Fees[j]
	if !ok {
		return domain.LocationFeeConfig{}, fmt.Errorf("no fee config for jurisdiction %q: %w",
			j, domain.ErrSettingsUnavailable)
	}
	return cfg, nil
}

// PlatformFee computes the marketplace's cut of a gross amount, rounded
// half-up once.
func (s *Service) PlatformFee(gross money.Money, j domain.Jurisdiction) (money.Money, error) {
	cfg, err := s.FeeConfig(j)
	if err != nil {
		return money.Money{}, err
	}
	return gross.MulRatio(cfg.PlatformFeeBasisPoints, 10000), nil
}

// ProcessingFee computes the external processor's fee on an event's gross
// sales.
func (s *Service) ProcessingFee(gross money.Money, saleCount int) money.Money {
	return s.processingFee(gross, saleCount)
}

// SettlementReadyDate returns when an event's earnings leave the
// settlement hold: event end plus the jurisdiction's hold days.
func (s *Service) SettlementReadyDate(eventEnd time.Time, j domain.Jurisdiction) (time.Time, error) {
	cfg, err := s.FeeConfig(j)
	if err != nil {
		return time.Time{}, err
	}
	return eventEnd.AddDate(0, 0, cfg.SettlementHoldDays), nil
}

// MinimumPayout returns the configured payout floor.
func (s *Service) MinimumPayout() (money.Money, error) {
	settings, err := s.Settings()
	if err != nil {
		return money.Money{}, err
	}
	return settings.MinimumPayoutAmount, nil
}

// NextPayoutWindow returns the next weekly payout run strictly after now.
func (s *Service) NextPayoutWindow(now time.Time) time.Time {
	day := now.UTC().Truncate(24 * time.Hour)
	days := int(s.payoutWeekday-day.Weekday()+7) % 7
	if days == 0 {
		days = 7
	}
	return day.AddDate(0, 0, days)
}
