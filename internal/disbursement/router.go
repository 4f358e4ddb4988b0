package disbursement

import (
	"context"
	"fmt"
	"log"

	"github.com/tiketla/settlement/internal/domain"
	"github.com/tiketla/settlement/internal/money"
	"github.com/tiketla/settlement/internal/repository"
)

// Route is a resolved provider plus the organizer's destination on it.
type Route struct {
	Provider Provider
	Profile  *domain.PayoutProfile
	Method   domain.PayoutMethod
	// Fallback is the standard rail to use when a prefunded transfer is
	// refused for lack of liquidity; nil when Provider already is the
	// standard rail.
	Fallback *Route
}

// Router picks exactly one provider per organizer and jurisdiction:
// mobile-money for Haiti (with the prefunded fast path when enabled and
// the organizer is cleared for instant transfers), connected-account
// payout rails for US/Canada.
type Router struct {
	profiles    *repository.ProfileRepo
	mobileMoney Provider
	connected   Provider
	prefunded   BalanceProvider // nil when platform liquidity is disabled
}

func NewRouter(profiles *repository.ProfileRepo, mobileMoney, connected Provider, prefunded BalanceProvider) *Router {
	return &Router{
		profiles:    profiles,
		mobileMoney: mobileMoney,
		connected:   connected,
		prefunded:   prefunded,
	}
}

// RouteFor resolves the provider and destination for an organizer. The
// payout profile must be verified; anything else is a destination problem
// the organizer has to fix, not a retryable transfer error.
func (r *Router) RouteFor(organizerID string, jurisdiction domain.Jurisdiction) (*Route, error) {
	switch jurisdiction {
	case domain.JurisdictionHaiti:
		profile, err := r.verifiedProfile(organizerID, r.mobileMoney.Name())
		if err != nil {
			return nil, err
		}
		standard := &Route{Provider: r.mobileMoney, Profile: profile, Method: domain.MethodMobileMoney}
		if r.prefunded != nil && profile.InstantAllowed {
			return &Route{
				Provider: r.prefunded,
				Profile:  profile,
				Method:   domain.MethodPrefunded,
				Fallback: standard,
			}, nil
		}
		return standard, nil

	case domain.JurisdictionUSCanada:
		profile, err := r.verifiedProfile(organizerID, r.connected.Name())
		if err != nil {
			return nil, err
		}
		return &Route{Provider: r.connected, Profile: profile, Method: domain.MethodConnectedAccount}, nil

	default:
		return nil, fmt.Errorf("unknown jurisdiction %q: %w", jurisdiction, domain.ErrDestinationInvalid)
	}
}

func (r *Router) verifiedProfile(organizerID, provider string) (*domain.PayoutProfile, error) {
	profile, err := r.profiles.Get(organizerID, provider)
	if err != nil {
		return nil, fmt.Errorf("organizer %s has no %s profile: %w",
			organizerID, provider, domain.ErrDestinationInvalid)
	}
	if profile.Status != domain.ProfileVerified {
		return nil, fmt.Errorf("organizer %s profile is %s: %w",
			organizerID, profile.Status, domain.ErrDestinationInvalid)
	}
	return profile, nil
}

// Balance reads the prefunded rail's liquidity for admin dashboards.
func (r *Router) Balance(ctx context.Context) (money.Money, error) {
	if r.prefunded == nil {
		return money.Money{}, fmt.Errorf("prefunded rail disabled: %w", domain.ErrProviderUnavailable)
	}
	return r.prefunded.Balance(ctx)
}

// LogRoutes prints the configured rails at startup.
func (r *Router) LogRoutes() {
	prefunded := "disabled"
	if r.prefunded != nil {
		prefunded = r.prefunded.Name()
	}
	log.Printf("[disbursement] rails: haiti=%s (prefunded=%s), us-canada=%s",
		r.mobileMoney.Name(), prefunded, r.connected.Name())
}
