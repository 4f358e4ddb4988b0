package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tiketla/settlement/internal/domain"
	"github.com/tiketla/settlement/internal/money"
)

// SQLiteLedger reads the replicated sales tables. In production these are
// synced from the marketplace's primary store; locally they are seeded from
// testdata.
type SQLiteLedger struct {
	db *sql.DB
}

func NewSQLiteLedger(db *sql.DB) *SQLiteLedger {
	return &SQLiteLedger{db: db}
}

func (l *SQLiteLedger) GetEvent(ctx context.Context, eventID string) (*domain.Event, error) {
	var e domain.Event
	var currency, endAt string

	err := l.db.QueryRowContext(ctx,
		`SELECT id, organizer_id, name, country_code, currency, end_date_time
		 FROM events WHERE id = ?`, eventID,
	).Scan(&e.ID, &e.OrganizerID, &e.Name, &e.CountryCode, &currency, &endAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("event %s: %w", eventID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}

	e.Currency = money.Currency(currency)
	e.EndDateTime, _ = time.Parse(time.RFC3339, endAt)
	return &e, nil
}

func (l *SQLiteLedger) ListConfirmedSales(ctx context.Context, eventID string) ([]domain.Sale, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, event_id, amount, currency, sold_at
		 FROM confirmed_sales WHERE event_id = ? ORDER BY sold_at`, eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("query sales: %w", err)
	}
	defer rows.Close()

	var sales []domain.Sale
	for rows.Next() {
		var s domain.Sale
		var amount int64
		var currency, soldAt string
		if err := rows.Scan(&s.ID, &s.EventID, &amount, &currency, &soldAt); err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		s.Amount = money.New(amount, money.Currency(currency))
		s.SoldAt, _ = time.Parse(time.RFC3339, soldAt)
		sales = append(sales, s)
	}
	return sales, rows.Err()
}

func (l *SQLiteLedger) ListEndedEvents(ctx context.Context, since, until time.Time, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, organizer_id, name, country_code, currency, end_date_time
		 FROM events
		 WHERE end_date_time >= ? AND end_date_time < ?
		 ORDER BY end_date_time DESC LIMIT ?`,
		since.Format(time.RFC3339), until.Format(time.RFC3339), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query ended events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		var currency, endAt string
		if err := rows.Scan(&e.ID, &e.OrganizerID, &e.Name, &e.CountryCode, &currency, &endAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Currency = money.Currency(currency)
		e.EndDateTime, _ = time.Parse(time.RFC3339, endAt)
		events = append(events, e)
	}
	return events, rows.Err()
}

// SeedCount returns the number of events present, used by main to decide
// whether to seed from testdata.
func (l *SQLiteLedger) SeedCount() (int, error) {
	var count int
	err := l.db.QueryRow("SELECT COUNT(*) FROM events").Scan(&count)
	return count, err
}

// BulkInsert loads events and their sales, skipping rows that already
// exist. Used for local seeding and test fixtures.
func (l *SQLiteLedger) BulkInsert(events []domain.Event, sales []domain.Sale) (int, error) {
	tx, err := l.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	for i := range events {
		e := &events[i]
		res, err := tx.Exec(
			`INSERT OR IGNORE INTO events
			(id, organizer_id, name, country_code, currency, end_date_time)
			VALUES (?,?,?,?,?,?)`,
			e.ID, e.OrganizerID, e.Name, e.CountryCode, string(e.Currency),
			e.EndDateTime.Format(time.RFC3339),
		)
		if err != nil {
			return inserted, fmt.Errorf("insert event %d: %w", i, err)
		}
		ra, _ := res.RowsAffected()
		inserted += int(ra)
	}

	for i := range sales {
		s := &sales[i]
		_, err := tx.Exec(
			`INSERT OR IGNORE INTO confirmed_sales
			(id, event_id, amount, currency, sold_at)
			VALUES (?,?,?,?,?)`,
			s.ID, s.EventID, s.Amount.Amount, string(s.Amount.Currency),
			s.SoldAt.Format(time.RFC3339),
		)
		if err != nil {
			return inserted, fmt.Errorf("insert sale %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}
