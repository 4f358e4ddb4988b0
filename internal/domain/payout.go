package domain

import (
	"time"

	"github.com/tiketla/settlement/internal/money"
)

type PayoutStatus string

const (
	PayoutPending   PayoutStatus = "pending"
	PayoutApproved  PayoutStatus = "approved"
	PayoutPaid      PayoutStatus = "paid"
	PayoutFailed    PayoutStatus = "failed"
	PayoutCancelled PayoutStatus = "cancelled"
)

// Terminal reports whether no further transitions are legal from s.
func (s PayoutStatus) Terminal() bool {
	return s == PayoutPaid || s == PayoutCancelled
}

// PayoutMethod names the money-movement rail a payout travels on.
type PayoutMethod string

const (
	MethodMobileMoney      PayoutMethod = "mobile_money"
	MethodConnectedAccount PayoutMethod = "connected_account"
	MethodPrefunded        PayoutMethod = "prefunded"
)

// Payout is a single payout attempt. The amount is fixed at creation time
// and never altered by a later earnings recompute. All status transitions
// go through the lifecycle service's guarded updates.
type Payout struct {
	ID            string       `json:"id"`
	EventID       string       `json:"event_id"`
	OrganizerID   string       `json:"organizer_id"`
	Amount        money.Money  `json:"amount"`
	Method        PayoutMethod `json:"method"`
	Status        PayoutStatus `json:"status"`
	Reference     string       `json:"reference"`
	ScheduledDate time.Time    `json:"scheduled_date"`
	ApprovedBy    string       `json:"approved_by,omitempty"`
	ApprovedAt    *time.Time   `json:"approved_at,omitempty"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
	FailureReason string       `json:"failure_reason,omitempty"`
	ProviderTxnID string       `json:"provider_txn_id,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

type ProfileStatus string

const (
	ProfileNotStarted       ProfileStatus = "not_started"
	ProfilePending          ProfileStatus = "pending"
	ProfileVerified         ProfileStatus = "verified"
	ProfileRejected         ProfileStatus = "rejected"
	ProfileRequiresMoreInfo ProfileStatus = "requires_more_info"
)

// PayoutProfile holds an organizer's destination details for one provider.
// The verification workflow writes it; the disbursement router reads it.
type PayoutProfile struct {
	OrganizerID    string        `json:"organizer_id"`
	Provider       string        `json:"provider"`
	Destination    string        `json:"destination"`
	Status         ProfileStatus `json:"status"`
	InstantAllowed bool          `json:"instant_allowed"`
	UpdatedAt      time.Time     `json:"updated_at"`
}
