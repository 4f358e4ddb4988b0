package repository

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// InitDB opens (or creates) a SQLite database at the given path and ensures
// all required tables exist. Pass ":memory:" for an in-memory database.
func InitDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			organizer_id TEXT NOT NULL,
			name TEXT NOT NULL,
			country_code TEXT NOT NULL,
			currency TEXT NOT NULL,
			end_date_time DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_organizer ON events(organizer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_end ON events(end_date_time)`,

		`CREATE TABLE IF NOT EXISTS confirmed_sales (
			id TEXT PRIMARY KEY,
			event_id TEXT NOT NULL,
			amount INTEGER NOT NULL,
			currency TEXT NOT NULL,
			sold_at DATETIME NOT NULL,
			FOREIGN KEY (event_id) REFERENCES events(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sales_event ON confirmed_sales(event_id)`,

		`CREATE TABLE IF NOT EXISTS event_earnings (
			event_id TEXT PRIMARY KEY,
			organizer_id TEXT NOT NULL,
			currency TEXT NOT NULL,
			gross_sales INTEGER NOT NULL,
			platform_fee INTEGER NOT NULL,
			processing_fee INTEGER NOT NULL,
			net_amount INTEGER NOT NULL,
			withdrawn_amount INTEGER NOT NULL DEFAULT 0,
			available_to_withdraw INTEGER NOT NULL,
			settlement_status TEXT NOT NULL,
			settlement_ready_at DATETIME NOT NULL,
			computed_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_earnings_organizer ON event_earnings(organizer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_earnings_status ON event_earnings(settlement_status)`,

		`CREATE TABLE IF NOT EXISTS payouts (
			id TEXT PRIMARY KEY,
			event_id TEXT NOT NULL,
			organizer_id TEXT NOT NULL,
			amount INTEGER NOT NULL,
			currency TEXT NOT NULL,
			method TEXT NOT NULL,
			status TEXT NOT NULL,
			reference TEXT NOT NULL,
			scheduled_date DATETIME NOT NULL,
			approved_by TEXT,
			approved_at DATETIME,
			completed_at DATETIME,
			failure_reason TEXT,
			provider_txn_id TEXT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payouts_organizer_status ON payouts(organizer_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_payouts_event ON payouts(event_id)`,
		// At most one open payout per event; racing creates hit this, not
		// the advisory pre-check.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_payouts_open_event
			ON payouts(event_id) WHERE status IN ('pending','approved')`,

		`CREATE TABLE IF NOT EXISTS payout_profiles (
			organizer_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			destination TEXT NOT NULL,
			status TEXT NOT NULL,
			instant_allowed INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (organizer_id, provider)
		)`,

		`CREATE TABLE IF NOT EXISTS platform_settings (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			version INTEGER NOT NULL,
			fees_json TEXT NOT NULL,
			minimum_payout_amount INTEGER NOT NULL,
			minimum_payout_currency TEXT NOT NULL,
			updated_at DATETIME NOT NULL,
			updated_by TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS platform_settings_history (
			version INTEGER PRIMARY KEY,
			fees_json TEXT NOT NULL,
			minimum_payout_amount INTEGER NOT NULL,
			minimum_payout_currency TEXT NOT NULL,
			updated_at DATETIME NOT NULL,
			updated_by TEXT NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:60], err)
		}
	}

	return nil
}
