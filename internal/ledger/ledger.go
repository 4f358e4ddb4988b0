// Package ledger exposes the upstream sales ledger to the settlement
// engine. The catalog and checkout flow own this data; the engine treats it
// as a read-only collaborator and only needs confirmed sales plus event
// metadata.
package ledger

import (
	"context"
	"time"

	"github.com/tiketla/settlement/internal/domain"
)

// SalesLedger is the read contract the earnings aggregator and the
// disbursement tracker consume.
type SalesLedger interface {
	GetEvent(ctx context.Context, eventID string) (*domain.Event, error)
	ListConfirmedSales(ctx context.Context, eventID string) ([]domain.Sale, error)
	// ListEndedEvents returns events whose end date falls in [since, until),
	// newest-ended first.
	ListEndedEvents(ctx context.Context, since, until time.Time, limit int) ([]domain.Event, error)
}
