package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/tiketla/settlement/internal/domain"
	"github.com/tiketla/settlement/internal/money"
)

type EarningsRepo struct {
	db *sql.DB
}

func NewEarningsRepo(db *sql.DB) *EarningsRepo {
	return &EarningsRepo{db: db}
}

// Upsert stores the latest recompute of an event's earnings projection.
func (r *EarningsRepo) Upsert(e *domain.EventEarnings) error {
	_, err := r.db.Exec(
		`INSERT INTO event_earnings
		(event_id, organizer_id, currency, gross_sales, platform_fee,
		 processing_fee, net_amount, withdrawn_amount, available_to_withdraw,
		 settlement_status, settlement_ready_at, computed_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(event_id) DO UPDATE SET
			organizer_id = excluded.organizer_id,
			currency = excluded.currency,
			gross_sales = excluded.gross_sales,
			platform_fee = excluded.platform_fee,
			processing_fee = excluded.processing_fee,
			net_amount = excluded.net_amount,
			withdrawn_amount = excluded.withdrawn_amount,
			available_to_withdraw = excluded.available_to_withdraw,
			settlement_status = excluded.settlement_status,
			settlement_ready_at = excluded.settlement_ready_at,
			computed_at = excluded.computed_at`,
		e.EventID, e.OrganizerID, string(e.Currency), e.GrossSales.Amount,
		e.PlatformFee.Amount, e.ProcessingFee.Amount, e.NetAmount.Amount,
		e.WithdrawnAmount.Amount, e.AvailableToWithdraw.Amount,
		string(e.SettlementStatus), e.SettlementReadyAt.Format(time.RFC3339),
		e.ComputedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upsert earnings: %w", err)
	}
	return nil
}

func (r *EarningsRepo) GetByEventID(eventID string) (*domain.EventEarnings, error) {
	row := r.db.QueryRow(
		`SELECT event_id, organizer_id, currency, gross_sales, platform_fee,
		 processing_fee, net_amount, withdrawn_amount, available_to_withdraw,
		 settlement_status, settlement_ready_at, computed_at
		 FROM event_earnings WHERE event_id = ?`, eventID,
	)
	e, err := scanEarnings(row.Scan)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	return e, err
}

func (r *EarningsRepo) ListByOrganizer(organizerID string) ([]domain.EventEarnings, error) {
	rows, err := r.db.Query(
		`SELECT event_id, organizer_id, currency, gross_sales, platform_fee,
		 processing_fee, net_amount, withdrawn_amount, available_to_withdraw,
		 settlement_status, settlement_ready_at, computed_at
		 FROM event_earnings WHERE organizer_id = ? ORDER BY settlement_ready_at DESC`,
		organizerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var all []domain.EventEarnings
	for rows.Next() {
		e, err := scanEarnings(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		all = append(all, *e)
	}
	return all, rows.Err()
}

// AddWithdrawn moves amount from available to withdrawn for an event. The
// guard in the WHERE clause refuses to overdraw: available must still cover
// the amount at write time.
func (r *EarningsRepo) AddWithdrawn(eventID string, amount int64) error {
	res, err := r.db.Exec(
		`UPDATE event_earnings SET
			withdrawn_amount = withdrawn_amount + ?,
			available_to_withdraw = available_to_withdraw - ?,
			settlement_status = CASE
				WHEN available_to_withdraw - ? <= 0 THEN 'withdrawn'
				ELSE settlement_status
			END
		 WHERE event_id = ? AND available_to_withdraw >= ?`,
		amount, amount, amount, eventID, amount,
	)
	if err != nil {
		return fmt.Errorf("add withdrawn: %w", err)
	}
	ra, _ := res.RowsAffected()
	if ra == 0 {
		return fmt.Errorf("event %s: available balance below %d: %w",
			eventID, amount, domain.ErrInvalidTransition)
	}
	return nil
}

func scanEarnings(scan func(...any) error) (*domain.EventEarnings, error) {
	var e domain.EventEarnings
	var currency, status, readyAt, computedAt string
	var gross, platformFee, processingFee, net, withdrawn, available int64

	err := scan(
		&e.EventID, &e.OrganizerID, &currency, &gross, &platformFee,
		&processingFee, &net, &withdrawn, &available, &status, &readyAt,
		&computedAt,
	)
	if err != nil {
		return nil, err
	}

	cur := money.Currency(currency)
	e.Currency = cur
	e.GrossSales = money.New(gross, cur)
	e.PlatformFee = money.New(platformFee, cur)
	e.ProcessingFee = money.New(processingFee, cur)
	e.NetAmount = money.New(net, cur)
	e.WithdrawnAmount = money.New(withdrawn, cur)
	e.AvailableToWithdraw = money.New(available, cur)
	e.SettlementStatus = domain.SettlementStatus(status)
	e.SettlementReadyAt, _ = time.Parse(time.RFC3339, readyAt)
	e.ComputedAt, _ = time.Parse(time.RFC3339, computedAt)

	return &e, nil
}
