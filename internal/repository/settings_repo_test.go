package repository

import (
	"testing"

	"github.com/tiketla/settlement/internal/domain"
	"github.com/tiketla/settlement/internal/money"
)

func TestSettingsGetSeedsDefaults(t *testing.T) {
	repo := NewSettingsRepo(newTestDB(t))

	s, err := repo.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s.Version != 1 {
		t.Errorf("version = %d, want seeded 1", s.Version)
	}
	if cfg := s.Fees[domain.JurisdictionHaiti]; cfg.PlatformFeeBasisPoints != 700 || cfg.SettlementHoldDays != 0 {
		t.Errorf("haiti config = %+v, want 700bp / 0 hold days", cfg)
	}
	if cfg := s.Fees[domain.JurisdictionUSCanada]; cfg.PlatformFeeBasisPoints != 1000 || cfg.SettlementHoldDays != 3 {
		t.Errorf("us-canada config = %+v, want 1000bp / 3 hold days", cfg)
	}
	if s.MinimumPayoutAmount != money.New(2000, money.USD) {
		t.Errorf("minimum = %+v, want 2000 USD", s.MinimumPayoutAmount)
	}

	// Second read serves the seeded row, not a reseed.
	again, err := repo.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if again.Version != 1 {
		t.Errorf("version = %d on second read, want 1", again.Version)
	}
}

func TestSettingsUpdateBumpsVersionAndHistory(t *testing.T) {
	repo := NewSettingsRepo(newTestDB(t))
	if _, err := repo.Get(); err != nil {
		t.Fatalf("seed: %v", err)
	}

	updated := &domain.PlatformSettings{
		Fees: map[domain.Jurisdiction]domain.LocationFeeConfig{
			domain.JurisdictionHaiti:    {PlatformFeeBasisPoints: 800, SettlementHoldDays: 1},
			domain.JurisdictionUSCanada: {PlatformFeeBasisPoints: 1200, SettlementHoldDays: 5},
		},
		MinimumPayoutAmount: money.New(5000, money.USD),
		UpdatedBy:           "admin-1",
	}
	if err := repo.Update(updated); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Version != 2 {
		t.Errorf("version = %d after update, want 2", updated.Version)
	}

	current, err := repo.Get()
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if current.Version != 2 || current.UpdatedBy != "admin-1" {
		t.Errorf("current = v%d by %s, want v2 by admin-1", current.Version, current.UpdatedBy)
	}
	if cfg := current.Fees[domain.JurisdictionUSCanada]; cfg.PlatformFeeBasisPoints != 1200 {
		t.Errorf("us-canada fee = %d bp, want 1200", cfg.PlatformFeeBasisPoints)
	}

	history, err := repo.History(10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("%d history rows, want 2", len(history))
	}
	if history[0].Version != 2 || history[1].Version != 1 {
		t.Errorf("history versions = [%d %d], want newest first [2 1]", history[0].Version, history[1].Version)
	}
	if cfg := history[1].Fees[domain.JurisdictionHaiti]; cfg.PlatformFeeBasisPoints != 700 {
		t.Errorf("v1 haiti fee = %d bp, want original 700", cfg.PlatformFeeBasisPoints)
	}
}
