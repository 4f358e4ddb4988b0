package disbursement

import (
	"context"
	"fmt"

	"github.com/tiketla/settlement/internal/domain"
	"github.com/tiketla/settlement/internal/money"
)

// prefundedProvider is the platform-liquidity fast path: instant transfer
// from a prefunded balance instead of waiting on the underlying rail. A
// transfer is refused up front when the balance cannot cover it, so the
// router can fall back to the standard rail.
type prefundedProvider struct {
	name     string
	transfer TransferFunc
	status   StatusFunc
	balance  BalanceFunc
}

// NewPrefundedProvider builds the prefunded fast path over injected
// transport functions.
func NewPrefundedProvider(name string, transfer TransferFunc, status StatusFunc, balance BalanceFunc) BalanceProvider {
	return &prefundedProvider{name: name, transfer: transfer, status: status, balance: balance}
}

func (p *prefundedProvider) Name() string { return p.name }

func (p *prefundedProvider) Balance(ctx context.Context) (money.Money, error) {
	return p.balance(ctx)
}

func (p *prefundedProvider) Transfer(ctx context.Context, amount money.Money, destination, reference string) (*TransferResult, error) {
	bal, err := p.balance(ctx)
	if err != nil {
		return nil, fmt.Errorf("read prefunded balance: %w", domain.ErrProviderUnavailable)
	}
	if bal.Currency != amount.Currency {
		return nil, fmt.Errorf("prefunded balance in %s, transfer in %s: %w",
			bal.Currency, amount.Currency, domain.ErrInsufficientPrefundedBalance)
	}
	if cmp, _ := bal.Compare(amount); cmp < 0 {
		return nil, fmt.Errorf("balance %d below transfer %d: %w",
			bal.Amount, amount.Amount, domain.ErrInsufficientPrefundedBalance)
	}

	txnID, err := p.transfer(ctx, amount, destination, reference)
	if err != nil {
		return nil, err
	}
	return &TransferResult{TransactionID: txnID, Status: StatusCompleted}, nil
}

func (p *prefundedProvider) Status(ctx context.Context, reference string) (ProviderStatus, error) {
	if p.status == nil {
		return StatusUnknown, nil
	}
	return p.status(ctx, reference)
}
