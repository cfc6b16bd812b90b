package advisory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals the requested party or advisor does not exist.
	ErrNotFound = errors.New("advisory: not found")
)

// Lookup answers advisor-assignment queries for investors and startups.
type Lookup interface {
	AdvisorFor(ctx context.Context, partyID string) (Assignment, error)
}

// Repository provides advisor assignment lookups and profile reads.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// AdvisorFor resolves the advisor assignment for a party. A party with no
// advisor row yields Assignment{HasAdvisor: false}.
func (r *Repository) AdvisorFor(ctx context.Context, partyID string) (Assignment, error) {
	const query = `SELECT advisor_id::text FROM users WHERE id = $1`

	var advisorID *string
	if err := r.pool.QueryRow(ctx, query, partyID).Scan(&advisorID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Assignment{}, ErrNotFound
		}
		return Assignment{}, fmt.Errorf("advisory: lookup advisor: %w", err)
	}

	if advisorID == nil || *advisorID == "" {
		return Assignment{}, nil
	}
	return Assignment{HasAdvisor: true, AdvisorID: *advisorID}, nil
}

// GetByID fetches an advisor profile by its primary key.
func (r *Repository) GetByID(ctx context.Context, id string) (Profile, error) {
	const query = `
		SELECT id, full_name, email, created_at
		FROM users
		WHERE id = $1 AND role = 'advisor'
	`

	var profile Profile
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&profile.ID,
		&profile.FullName,
		&profile.Email,
		&profile.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("advisory: query by id: %w", err)
	}

	return profile, nil
}

// List fetches up to limit advisor profiles ordered by name.
func (r *Repository) List(ctx context.Context, limit int) ([]Profile, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	const query = `
		SELECT id, full_name, email, created_at
		FROM users
		WHERE role = 'advisor'
		ORDER BY full_name ASC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("advisory: list: %w", err)
	}
	defer rows.Close()

	profiles := make([]Profile, 0, limit)
	for rows.Next() {
		var profile Profile
		if err := rows.Scan(&profile.ID, &profile.FullName, &profile.Email, &profile.CreatedAt); err != nil {
			return nil, fmt.Errorf("advisory: scan profile: %w", err)
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("advisory: iterate profiles: %w", err)
	}

	return profiles, nil
}
