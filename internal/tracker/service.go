// Package tracker is the reporting view over ended events that still owe
// money to organizers. Its only write is materializing missing earnings
// projections so events nobody has viewed still show up.
package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/tiketla/settlement/internal/domain"
	"github.com/tiketla/settlement/internal/ledger"
	"github.com/tiketla/settlement/internal/money"
)

// PendingDisbursement is one ended event awaiting (full) payout.
type PendingDisbursement struct {
	EventID          string                  `json:"event_id"`
	EventName        string                  `json:"event_name"`
	OrganizerID      string                  `json:"organizer_id"`
	EndDateTime      time.Time               `json:"end_date_time"`
	Available        money.Money             `json:"available"`
	Withdrawn        money.Money             `json:"withdrawn"`
	SettlementStatus domain.SettlementStatus `json:"settlement_status"`
}

// Stats aggregates the pending set for dashboard summaries.
type Stats struct {
	PendingEvents  int                            `json:"pending_events"`
	ReadyEvents    int                            `json:"ready_events"`
	OwedByCurrency map[money.Currency]money.Money `json:"owed_by_currency"`
	OldestEndedAt  *time.Time                     `json:"oldest_ended_at,omitempty"`
}

// EarningsRefresher recomputes and stores an event's earnings projection.
// Satisfied by earnings.Service.
type EarningsRefresher interface {
	RefreshEvent(ctx context.Context, eventID string) (*domain.EventEarnings, error)
}

// Service answers operational triage queries from the events and earnings
// tables.
type Service struct {
	db       *sql.DB
	ledger   ledger.SalesLedger
	earnings EarningsRefresher
	now      func() time.Time
}

func NewService(db *sql.DB, salesLedger ledger.SalesLedger, earnings EarningsRefresher) *Service {
	return &Service{db: db, ledger: salesLedger, earnings: earnings, now: time.Now}
}

// WithClock overrides the clock, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// materializeCap bounds how many ended events one triage read will project.
const materializeCap = 1000

// materializeWindow projects earnings for ended events that have never been
// viewed. Projections are created on demand by the earnings reads, so an
// event nobody opened has no row and would otherwise vanish from triage.
func (s *Service) materializeWindow(ctx context.Context, since, until time.Time) error {
	events, err := s.ledger.ListEndedEvents(ctx, since, until, materializeCap)
	if err != nil {
		return fmt.Errorf("list ended events: %w", err)
	}
	for _, e := range events {
		var n int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM event_earnings WHERE event_id = ?`, e.ID).Scan(&n)
		if err != nil {
			return fmt.Errorf("check projection %s: %w", e.ID, err)
		}
		if n > 0 {
			continue
		}
		// One bad event must not blank the whole triage view.
		if _, err := s.earnings.RefreshEvent(ctx, e.ID); err != nil {
			log.Printf("[tracker] WARNING: cannot project event %s, skipping: %v", e.ID, err)
		}
	}
	return nil
}

// EndedEventsForDisbursement lists events that ended within windowDays and
// are not yet fully withdrawn, newest-ended first. The default window is
// deliberately wide (365 days) so stale unpaid events stay visible.
func (s *Service) EndedEventsForDisbursement(ctx context.Context, windowDays, limit int) ([]PendingDisbursement, error) {
	if windowDays <= 0 {
		windowDays = 365
	}
	if limit <= 0 {
		limit = 50
	}
	now := s.now().UTC()
	since := now.AddDate(0, 0, -windowDays)

	if err := s.materializeWindow(ctx, since, now); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.name, e.organizer_id, e.end_date_time,
		       ee.available_to_withdraw, ee.withdrawn_amount, ee.currency,
		       ee.settlement_status
		FROM events e
		JOIN event_earnings ee ON ee.event_id = e.id
		WHERE e.end_date_time >= ? AND e.end_date_time < ?
		  AND ee.settlement_status != 'withdrawn'
		  AND ee.available_to_withdraw > 0
		ORDER BY e.end_date_time DESC
		LIMIT ?`,
		since.Format(time.RFC3339), now.Format(time.RFC3339), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending disbursements: %w", err)
	}
	defer rows.Close()

	var pending []PendingDisbursement
	for rows.Next() {
		var p PendingDisbursement
		var endAt, currency, status string
		var available, withdrawn int64
		if err := rows.Scan(&p.EventID, &p.EventName, &p.OrganizerID, &endAt,
			&available, &withdrawn, &currency, &status); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		cur := money.Currency(currency)
		p.EndDateTime, _ = time.Parse(time.RFC3339, endAt)
		p.Available = money.New(available, cur)
		p.Withdrawn = money.New(withdrawn, cur)
		p.SettlementStatus = domain.SettlementStatus(status)
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// DisbursementStats summarises the pending set across the full window.
func (s *Service) DisbursementStats(ctx context.Context) (*Stats, error) {
	now := s.now().UTC()
	since := now.AddDate(0, 0, -365)

	if err := s.materializeWindow(ctx, since, now); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT ee.currency,
		       COUNT(*),
		       COALESCE(SUM(CASE WHEN ee.settlement_status = 'ready' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(ee.available_to_withdraw), 0),
		       MIN(e.end_date_time)
		FROM events e
		JOIN event_earnings ee ON ee.event_id = e.id
		WHERE e.end_date_time >= ? AND e.end_date_time < ?
		  AND ee.settlement_status != 'withdrawn'
		  AND ee.available_to_withdraw > 0
		GROUP BY ee.currency`,
		since.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	stats := &Stats{OwedByCurrency: make(map[money.Currency]money.Money)}
	for rows.Next() {
		var currency, oldest string
		var count, ready int
		var owed int64
		if err := rows.Scan(&currency, &count, &ready, &owed, &oldest); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		cur := money.Currency(currency)
		stats.PendingEvents += count
		stats.ReadyEvents += ready
		stats.OwedByCurrency[cur] = money.New(owed, cur)
		if t, err := time.Parse(time.RFC3339, oldest); err == nil {
			if stats.OldestEndedAt == nil || t.Before(*stats.OldestEndedAt) {
				stats.OldestEndedAt = &t
			}
		}
	}
	return stats, rows.Err()
}
