package review

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound  = errors.New("review: not found")
	ErrForbidden = errors.New("review: forbidden")
)

// Repository reads and clears the manual-review queue. The queue is scoped to
// a lead investor: only flags on offers against their own listings are
// visible to them.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns the lead investor's flagged offers, newest first. The
// requested equity is recovered from the acceptance timeline event; when the
// event is missing the granted figure is reported for both.
func (r *Repository) List(ctx context.Context, leadInvestorID string) ([]Item, error) {
	const query = `
		SELECT o.id, o.opportunity_id, o.investor_id, o.amount,
		       COALESCE((e.payload->>'requested_equity')::numeric, o.equity_pct),
		       o.equity_pct, o.updated_at
		FROM co_investment_offers o
		JOIN co_investment_opportunities opp ON opp.id = o.opportunity_id
		LEFT JOIN LATERAL (
			SELECT payload FROM timeline_events
			WHERE subject_id = o.id AND payload ? 'requested_equity'
			ORDER BY id DESC LIMIT 1
		) e ON true
		WHERE opp.lead_investor_id = $1 AND o.flagged_for_review
		ORDER BY o.updated_at DESC
	`

	rows, err := r.pool.Query(ctx, query, leadInvestorID)
	if err != nil {
		return nil, fmt.Errorf("review: list: %w", err)
	}
	defer rows.Close()

	out := make([]Item, 0, 8)
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.OpportunityID, &item.InvestorID, &item.Amount,
			&item.RequestedEquity, &item.GrantedEquity, &item.FlaggedAt); err != nil {
			return nil, fmt.Errorf("review: scan: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("review: iterate: %w", err)
	}
	return out, nil
}

// Resolve clears the review flag once a human has confirmed the capped terms.
func (r *Repository) Resolve(ctx context.Context, leadInvestorID, offerID string) (Item, error) {
	const query = `
		UPDATE co_investment_offers o
		SET flagged_for_review = false,
		    updated_at = get_tx_timestamp()
		FROM co_investment_opportunities opp
		WHERE o.id = $1
		  AND opp.id = o.opportunity_id
		  AND opp.lead_investor_id = $2
		  AND o.flagged_for_review
		RETURNING o.id, o.opportunity_id, o.investor_id, o.amount, o.equity_pct, o.equity_pct, o.updated_at
	`

	var item Item
	err := r.pool.QueryRow(ctx, query, offerID, leadInvestorID).
		Scan(&item.ID, &item.OpportunityID, &item.InvestorID, &item.Amount,
			&item.RequestedEquity, &item.GrantedEquity, &item.FlaggedAt)
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Item{}, fmt.Errorf("review: resolve: %w", err)
	}

	const check = `
		SELECT EXISTS (
			SELECT 1 FROM co_investment_offers o
			JOIN co_investment_opportunities opp ON opp.id = o.opportunity_id
			WHERE o.id = $1 AND opp.lead_investor_id = $2
		)
	`
	var owned bool
	if err := r.pool.QueryRow(ctx, check, offerID, leadInvestorID).Scan(&owned); err != nil {
		return Item{}, fmt.Errorf("review: resolve fetch: %w", err)
	}
	if !owned {
		return Item{}, ErrForbidden
	}
	return Item{}, ErrNotFound
}
