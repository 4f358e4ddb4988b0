package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/tiketla/settlement/internal/domain"
)

type ProfileRepo struct {
	db *sql.DB
}

func NewProfileRepo(db *sql.DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

func (r *ProfileRepo) Get(organizerID, provider string) (*domain.PayoutProfile, error) {
	var p domain.PayoutProfile
	var status, updatedAt string
	var instant int

	err := r.db.QueryRow(
		`SELECT organizer_id, provider, destination, status, instant_allowed, updated_at
		 FROM payout_profiles WHERE organizer_id = ? AND provider = ?`,
		organizerID, provider,
	).Scan(&p.OrganizerID, &p.Provider, &p.Destination, &status, &instant, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("profile %s/%s: %w", organizerID, provider, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}

	p.Status = domain.ProfileStatus(status)
	p.InstantAllowed = instant == 1
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &p, nil
}

// Upsert is called by the verification workflow when an organizer's
// destination details or verification status change.
func (r *ProfileRepo) Upsert(p *domain.PayoutProfile) error {
	instant := 0
	if p.InstantAllowed {
		instant = 1
	}
	_, err := r.db.Exec(
		`INSERT INTO payout_profiles
		(organizer_id, provider, destination, status, instant_allowed, updated_at)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(organizer_id, provider) DO UPDATE SET
			destination = excluded.destination,
			status = excluded.status,
			instant_allowed = excluded.instant_allowed,
			updated_at = excluded.updated_at`,
		p.OrganizerID, p.Provider, p.Destination, string(p.Status), instant,
		p.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}
