package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tiketla/settlement/internal/domain"
	"github.com/tiketla/settlement/internal/money"
)

type SettingsRepo struct {
	db *sql.DB
}

func NewSettingsRepo(db *sql.DB) *SettingsRepo {
	return &SettingsRepo{db: db}
}

// Get loads the settings singleton. When the table is empty the defaults
// are written first so the engine always starts with a usable config.
func (r *SettingsRepo) Get() (*domain.PlatformSettings, error) {
	s, err := r.load()
	if err == sql.ErrNoRows {
		defaults := domain.DefaultSettings()
		if err := r.write(&defaults); err != nil {
			return nil, fmt.Errorf("seed default settings: %w", err)
		}
		return &defaults, nil
	}
	return s, err
}

// Update bumps the version, replaces the singleton row and appends to the
// history table in one transaction. Callers must invalidate the settings
// cache afterwards.
func (r *SettingsRepo) Update(s *domain.PlatformSettings) error {
	current, err := r.Get()
	if err != nil {
		return fmt.Errorf("read current: %w", err)
	}
	s.Version = current.Version + 1
	s.UpdatedAt = time.Now().UTC()
	return r.write(s)
}

// History returns prior settings versions, newest first.
func (r *SettingsRepo) History(limit int) ([]domain.PlatformSettings, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(
		`SELECT version, fees_json, minimum_payout_amount, minimum_payout_currency,
		 updated_at, updated_by
		 FROM platform_settings_history ORDER BY version DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var history []domain.PlatformSettings
	for rows.Next() {
		var s domain.PlatformSettings
		var feesJSON, currency, updatedAt string
		var minAmount int64
		if err := rows.Scan(&s.Version, &feesJSON, &minAmount, &currency, &updatedAt, &s.UpdatedBy); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if err := json.Unmarshal([]byte(feesJSON), &s.Fees); err != nil {
			return nil, fmt.Errorf("unmarshal fees: %w", err)
		}
		s.MinimumPayoutAmount = money.New(minAmount, money.Currency(currency))
		s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		history = append(history, s)
	}
	return history, rows.Err()
}

func (r *SettingsRepo) load() (*domain.PlatformSettings, error) {
	var s domain.PlatformSettings
	var feesJSON, currency, updatedAt string
	var minAmount int64

	err := r.db.QueryRow(
		`SELECT version, fees_json, minimum_payout_amount, minimum_payout_currency,
		 updated_at, updated_by
		 FROM platform_settings WHERE id = 1`,
	).Scan(&s.Version, &feesJSON, &minAmount, &currency, &updatedAt, &s.UpdatedBy)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(feesJSON), &s.Fees); err != nil {
		return nil, fmt.Errorf("unmarshal fees: %w", err)
	}
	s.MinimumPayoutAmount = money.New(minAmount, money.Currency(currency))
	s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &s, nil
}

func (r *SettingsRepo) write(s *domain.PlatformSettings) error {
	feesJSON, err := json.Marshal(s.Fees)
	if err != nil {
		return fmt.Errorf("marshal fees: %w", err)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO platform_settings
		(id, version, fees_json, minimum_payout_amount, minimum_payout_currency, updated_at, updated_by)
		VALUES (1,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			version = excluded.version,
			fees_json = excluded.fees_json,
			minimum_payout_amount = excluded.minimum_payout_amount,
			minimum_payout_currency = excluded.minimum_payout_currency,
			updated_at = excluded.updated_at,
			updated_by = excluded.updated_by`,
		s.Version, string(feesJSON), s.MinimumPayoutAmount.Amount,
		string(s.MinimumPayoutAmount.Currency), s.UpdatedAt.Format(time.RFC3339), s.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	_, err = tx.Exec(
		`INSERT OR IGNORE INTO platform_settings_history
		(version, fees_json, minimum_payout_amount, minimum_payout_currency, updated_at, updated_by)
		VALUES (?,?,?,?,?,?)`,
		s.Version, string(feesJSON), s.MinimumPayoutAmount.Amount,
		string(s.MinimumPayoutAmount.Currency), s.UpdatedAt.Format(time.RFC3339), s.UpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}

	return tx.Commit()
}
