// Package disbursement selects and drives money-movement providers. The
// providers' wire protocols are out of scope: each rail is an injected
// transport function, and the engine only relies on the uniform
// transfer/status/balance contract plus provider-side deduplication on the
// caller-supplied reference.
package disbursement

import (
	"context"

	"github.com/tiketla/settlement/internal/money"
)

// ProviderStatus is the provider-reported state of a transfer.
type ProviderStatus string

const (
	StatusCompleted  ProviderStatus = "completed"
	StatusProcessing ProviderStatus = "processing"
	StatusFailed     ProviderStatus = "failed"
	StatusUnknown    ProviderStatus = "unknown"
)

// TransferResult is returned from a successful transfer call.
type TransferResult struct {
	TransactionID string
	Status        ProviderStatus
}

// TransferFunc moves funds on the underlying rail. reference is the
// idempotency key: the provider dedupes on it, so retrying the same logical
// transfer with the same reference never double-moves funds.
type TransferFunc func(ctx context.Context, amount money.Money, destination, reference string) (string, error)

// StatusFunc polls the provider for a transfer's state by reference.
type StatusFunc func(ctx context.Context, reference string) (ProviderStatus, error)

// BalanceFunc reads platform-side liquidity on a prefunded rail.
type BalanceFunc func(ctx context.Context) (money.Money, error)

// Provider is the uniform contract exposed regardless of rail.
type Provider interface {
	Name() string
	Transfer(ctx context.Context, amount money.Money, destination, reference string) (*TransferResult, error)
	Status(ctx context.Context, reference string) (ProviderStatus, error)
}

// BalanceProvider is implemented only by the prefunded fast path.
type BalanceProvider interface {
	Provider
	Balance(ctx context.Context) (money.Money, error)
}

// railProvider wraps injected transport functions into a Provider.
type railProvider struct {
	name     string
	transfer TransferFunc
	status   StatusFunc
}

// NewRailProvider builds a provider over an opaque transfer rail (card
// network payouts, mobile-money transfer).
func NewRailProvider(name string, transfer TransferFunc, status StatusFunc) Provider {
	return &railProvider{name: name, transfer: transfer, status: status}
}

func (p *railProvider) Name() string { return p.name }

func (p *railProvider) Transfer(ctx context.Context, amount money.Money, destination, reference string) (*TransferResult, error) {
	txnID, err := p.transfer(ctx, amount, destination, reference)
	if err != nil {
		return nil, err
	}
	return &TransferResult{TransactionID: txnID, Status: StatusCompleted}, nil
}

func (p *railProvider) Status(ctx context.Context, reference string) (ProviderStatus, error) {
	if p.status == nil {
		return StatusUnknown, nil
	}
	return p.status(ctx, reference)
}
