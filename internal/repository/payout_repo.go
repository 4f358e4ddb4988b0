package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tiketla/settlement/internal/domain"
	"github.com/tiketla/settlement/internal/money"
)

type PayoutRepo struct {
	db *sql.DB
}

func NewPayoutRepo(db *sql.DB) *PayoutRepo {
	return &PayoutRepo{db: db}
}

func (r *PayoutRepo) Insert(p *domain.Payout) error {
	_, err := r.db.Exec(
		`INSERT INTO payouts
		(id, event_id, organizer_id, amount, currency, method, status,
		 reference, scheduled_date, approved_by, approved_at, completed_at,
		 failure_reason, provider_txn_id, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.EventID, p.OrganizerID, p.Amount.Amount, string(p.Amount.Currency),
		string(p.Method), string(p.Status), p.Reference,
		p.ScheduledDate.Format(time.RFC3339), nullableString(p.ApprovedBy),
		formatNullableTime(p.ApprovedAt), formatNullableTime(p.CompletedAt),
		nullableString(p.FailureReason), nullableString(p.ProviderTxnID),
		p.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("event %s already has an open payout: %w",
				p.EventID, domain.ErrIdempotencyViolation)
		}
		return fmt.Errorf("insert payout: %w", err)
	}
	return nil
}

func (r *PayoutRepo) GetByID(id string) (*domain.Payout, error) {
	row := r.db.QueryRow(
		`SELECT id, event_id, organizer_id, amount, currency, method, status,
		 reference, scheduled_date, approved_by, approved_at, completed_at,
		 failure_reason, provider_txn_id, created_at
		 FROM payouts WHERE id = ?`, id,
	)
	p, err := scanPayout(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("payout %s: %w", id, domain.ErrNotFound)
	}
	return p, err
}

func (r *PayoutRepo) ListByOrganizer(organizerID string, status domain.PayoutStatus) ([]domain.Payout, error) {
	query := `SELECT id, event_id, organizer_id, amount, currency, method, status,
		 reference, scheduled_date, approved_by, approved_at, completed_at,
		 failure_reason, provider_txn_id, created_at
		 FROM payouts WHERE organizer_id = ?`
	args := []any{organizerID}
	if status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var payouts []domain.Payout
	for rows.Next() {
		p, err := scanPayout(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		payouts = append(payouts, *p)
	}
	return payouts, rows.Err()
}

// HasOpenPayoutForEvent reports whether the event already has a payout in a
// non-terminal state. Advisory read only: the idx_payouts_open_event unique
// index is what actually prevents double-booking the same balance.
func (r *PayoutRepo) HasOpenPayoutForEvent(eventID string) (bool, error) {
	var count int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM payouts
		 WHERE event_id = ? AND status IN ('pending','approved')`, eventID,
	).Scan(&count)
	return count > 0, err
}

// guardedTransition performs the single-writer compare-and-swap: the UPDATE
// only matches when the payout is still in one of the expected states, so
// reading the old status and writing the new one is a single atomic
// statement. Zero rows affected means another writer got there first (or
// the id is unknown); the current row is re-read to classify the failure.
func (r *PayoutRepo) guardedTransition(id string, set string, setArgs []any, conflict error, from ...domain.PayoutStatus) error {
	query := "UPDATE payouts SET " + set + " WHERE id = ? AND status IN ("
	args := append(setArgs, id)
	for i, s := range from {
		if i > 0 {
			query += ","
		}
		query += "?"
		args = append(args, string(s))
	}
	query += ")"

	res, err := r.db.Exec(query, args...)
	if err != nil {
		// A retry can reopen a payout for an event that grew a newer open
		// one in the meantime; the open-payout index refuses that.
		if isUniqueViolation(err) {
			return fmt.Errorf("payout %s: event already has an open payout: %w",
				id, domain.ErrIdempotencyViolation)
		}
		return fmt.Errorf("guarded update: %w", err)
	}
	ra, _ := res.RowsAffected()
	if ra == 1 {
		return nil
	}

	current, err := r.GetByID(id)
	if err != nil {
		return err
	}
	return fmt.Errorf("payout %s already %s: %w", id, current.Status, conflict)
}

// MarkApproved transitions pending -> approved, stamping the approver. At
// most one concurrent approval can succeed; the rest observe
// ErrIdempotencyViolation.
func (r *PayoutRepo) MarkApproved(id, approvedBy string, approvedAt time.Time) error {
	return r.guardedTransition(id,
		"status = ?, approved_by = ?, approved_at = ?",
		[]any{string(domain.PayoutApproved), approvedBy, approvedAt.Format(time.RFC3339)},
		domain.ErrIdempotencyViolation,
		domain.PayoutPending,
	)
}

// MarkPaid transitions approved -> paid with the provider transaction id.
func (r *PayoutRepo) MarkPaid(id, providerTxnID string, completedAt time.Time) error {
	return r.guardedTransition(id,
		"status = ?, provider_txn_id = ?, completed_at = ?",
		[]any{string(domain.PayoutPaid), providerTxnID, completedAt.Format(time.RFC3339)},
		domain.ErrIdempotencyViolation,
		domain.PayoutApproved,
	)
}

// MarkFailed transitions approved -> failed with a human-readable reason.
func (r *PayoutRepo) MarkFailed(id, reason string) error {
	return r.guardedTransition(id,
		"status = ?, failure_reason = ?",
		[]any{string(domain.PayoutFailed), reason},
		domain.ErrIdempotencyViolation,
		domain.PayoutApproved,
	)
}

// MarkRetried transitions failed -> pending with a fresh scheduled window,
// clearing the failure reason and any approval stamps.
func (r *PayoutRepo) MarkRetried(id string, scheduledDate time.Time) error {
	return r.guardedTransition(id,
		"status = ?, scheduled_date = ?, failure_reason = NULL, approved_by = NULL, approved_at = NULL",
		[]any{string(domain.PayoutPending), scheduledDate.Format(time.RFC3339)},
		domain.ErrInvalidTransition,
		domain.PayoutFailed,
	)
}

// MarkCancelled transitions pending/approved -> cancelled.
func (r *PayoutRepo) MarkCancelled(id string) error {
	return r.guardedTransition(id,
		"status = ?",
		[]any{string(domain.PayoutCancelled)},
		domain.ErrInvalidTransition,
		domain.PayoutPending, domain.PayoutApproved,
	)
}

// --- helpers ---

// isUniqueViolation matches the driver's constraint error text; modernc
// does not export a typed error for SQLITE_CONSTRAINT_UNIQUE.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func scanPayout(scan func(...any) error) (*domain.Payout, error) {
	var p domain.Payout
	var amount int64
	var currency, method, status, scheduled, createdAt string
	var approvedBy, approvedAt, completedAt, failureReason, providerTxn sql.NullString

	err := scan(
		&p.ID, &p.EventID, &p.OrganizerID, &amount, &currency, &method,
		&status, &p.Reference, &scheduled, &approvedBy, &approvedAt,
		&completedAt, &failureReason, &providerTxn, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	p.Amount = money.New(amount, money.Currency(currency))
	p.Method = domain.PayoutMethod(method)
	p.Status = domain.PayoutStatus(status)
	p.ScheduledDate, _ = time.Parse(time.RFC3339, scheduled)
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	if approvedBy.Valid {
		p.ApprovedBy = approvedBy.String
	}
	if approvedAt.Valid {
		t, _ := time.Parse(time.RFC3339, approvedAt.String)
		p.ApprovedAt = &t
	}
	if completedAt.Valid {
		t, _ := time.Parse(time.RFC3339, completedAt.String)
		p.CompletedAt = &t
	}
	if failureReason.Valid {
		p.FailureReason = failureReason.String
	}
	if providerTxn.Valid {
		p.ProviderTxnID = providerTxn.String
	}

	return &p, nil
}
