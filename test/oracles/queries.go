package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

// All returns the SQL invariants checked against a live database while actors
// run. Each query must return zero rows; any row is a violation.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_unique_live_offer_per_pair",
			SQL: `SELECT investor_id, startup_id, COUNT(*) FROM offers
                  WHERE status NOT IN ('rejected','investor_advisor_rejected','startup_advisor_rejected')
                  GROUP BY investor_id, startup_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_reserved_within_cap",
			SQL: `SELECT p.id, SUM(o.amount) AS reserved, p.max_co_investment
                  FROM co_investment_opportunities p
                  JOIN co_investment_offers o ON o.opportunity_id = p.id
                  WHERE o.status IN ('accepted','pending_lead_investor_approval','pending_startup_approval')
                  GROUP BY p.id, p.max_co_investment
                  HAVING SUM(o.amount) > p.max_co_investment`,
		},
		{
			Name: "O3_equity_within_total",
			SQL: `SELECT p.id
                  FROM co_investment_opportunities p
                  JOIN co_investment_offers o ON o.opportunity_id = p.id AND o.status = 'accepted'
                  GROUP BY p.id, p.total_equity_pct, p.total_amount, p.max_co_investment
                  HAVING SUM(o.equity_pct)
                       + p.total_equity_pct * (p.total_amount - p.max_co_investment) / p.total_amount
                       > p.total_equity_pct`,
		},
		{
			Name: "O4_bid_respects_minimum",
			SQL: `SELECT o.id FROM co_investment_offers o
                  JOIN co_investment_opportunities p ON p.id = o.opportunity_id
                  WHERE o.amount < p.min_co_investment`,
		},
		{
			Name: "O5_no_self_offer",
			SQL: `SELECT o.id FROM co_investment_offers o
                  JOIN co_investment_opportunities p ON p.id = o.opportunity_id
                  WHERE o.investor_id = p.lead_investor_id`,
		},
		{
			Name: "O6_active_implies_startup_approved",
			SQL: `SELECT id FROM co_investment_opportunities
                  WHERE status IN ('active','completed') AND startup_approval <> 'approved'`,
		},
		{
			Name: "O7_contact_reveal_matches_acceptance",
			SQL:  `SELECT id FROM offers WHERE (status = 'accepted') <> contact_details_revealed`,
		},
		{
			Name: "O8_accepted_snapshots_present",
			SQL: `SELECT id FROM co_investment_offers
                  WHERE status = 'accepted' AND (lead_invested IS NULL OR remaining_capacity IS NULL)`,
		},
		{
			Name: "O9_outbox_not_stuck",
			SQL: `SELECT id FROM outbox
                  WHERE status = 'pending' AND now() - created_at > interval '5 minutes'`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
