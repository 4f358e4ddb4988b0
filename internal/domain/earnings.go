package domain

import (
	"time"

	"github.com/tiketla/settlement/internal/money"
)

// Jurisdiction is the coarse bucket that drives fee percentage, settlement
// hold days and provider routing.
type Jurisdiction string

const (
	JurisdictionHaiti    Jurisdiction = "haiti"
	JurisdictionUSCanada Jurisdiction = "us-canada"
)

type SettlementStatus string

const (
	SettlementPending   SettlementStatus = "pending"
	SettlementReady     SettlementStatus = "ready"
	SettlementWithdrawn SettlementStatus = "withdrawn"
)

// Event is the sales-ledger metadata for a single event. The catalog and
// checkout flow own it; the engine only reads it.
type Event struct {
	ID          string         `json:"id"`
	OrganizerID string         `json:"organizer_id"`
	Name        string         `json:"name"`
	CountryCode string         `json:"country_code"`
	Currency    money.Currency `json:"currency"`
	EndDateTime time.Time      `json:"end_date_time"`
}

// Sale is one confirmed ticket sale from the upstream ledger.
type Sale struct {
	ID      string      `json:"id"`
	EventID string      `json:"event_id"`
	Amount  money.Money `json:"amount"`
	SoldAt  time.Time   `json:"sold_at"`
}

// EventEarnings is the recomputable per-event earnings projection. It is
// derived from the sales ledger and the fee policy; the stored copy is a
// cache, never more authoritative than a fresh recompute.
type EventEarnings struct {
	EventID             string           `json:"event_id"`
	OrganizerID         string           `json:"organizer_id"`
	Currency            money.Currency   `json:"currency"`
	GrossSales          money.Money      `json:"gross_sales"`
	PlatformFee         money.Money      `json:"platform_fee"`
	ProcessingFee       money.Money      `json:"processing_fee"`
	NetAmount           money.Money      `json:"net_amount"`
	WithdrawnAmount     money.Money      `json:"withdrawn_amount"`
	AvailableToWithdraw money.Money      `json:"available_to_withdraw"`
	SettlementStatus    SettlementStatus `json:"settlement_status"`
	SettlementReadyAt   time.Time        `json:"settlement_ready_at"`
	ComputedAt          time.Time        `json:"computed_at"`
}

// OrganizerEarnings is the per-organizer dashboard summary: totals kept in
// separate per-currency buckets, with an explicit preferred-currency
// projection for the single headline figure.
type OrganizerEarnings struct {
	OrganizerID         string                         `json:"organizer_id"`
	EventCount          int                            `json:"event_count"`
	GrossByCurrency     map[money.Currency]money.Money `json:"gross_by_currency"`
	AvailableByCurrency map[money.Currency]money.Money `json:"available_by_currency"`
	Display             money.Money                    `json:"display"`
	HasEarnings         bool                           `json:"has_earnings"`
}
