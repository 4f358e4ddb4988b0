package domain

import (
	"time"

	"github.com/tiketla/settlement/internal/money"
)

// LocationFeeConfig is the per-jurisdiction slice of platform settings.
// The fee percentage is kept as a rational (basis points) so fee math stays
// integer-only.
type LocationFeeConfig struct {
	PlatformFeeBasisPoints int64 `json:"platform_fee_basis_points"` // 1000 = 10%
	SettlementHoldDays     int   `json:"settlement_hold_days"`
}

// PlatformSettings is the versioned admin-mutated singleton. Reads go
// through a process-wide cache invalidated on write.
type PlatformSettings struct {
	Version             int64                              `json:"version"`
	Fees                map[Jurisdiction]LocationFeeConfig `json:"fees"`
	MinimumPayoutAmount money.Money                        `json:"minimum_payout_amount"`
	UpdatedAt           time.Time                          `json:"updated_at"`
	UpdatedBy           string                             `json:"updated_by"`
}

// DefaultSettings returns the bootstrap configuration used when the
// settings table is empty: Haiti pays a lower fee with no hold, US/Canada
// the standard fee with a 3-day hold.
func DefaultSettings() PlatformSettings {
	return PlatformSettings{
		Version: 1,
		Fees: map[Jurisdiction]LocationFeeConfig{
			JurisdictionHaiti:    {PlatformFeeBasisPoints: 700, SettlementHoldDays: 0},
			JurisdictionUSCanada: {PlatformFeeBasisPoints: 1000, SettlementHoldDays: 3},
		},
		MinimumPayoutAmount: money.New(2000, money.USD),
		UpdatedAt:           time.Now().UTC(),
		UpdatedBy:           "system",
	}
}
