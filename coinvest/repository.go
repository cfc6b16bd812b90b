package coinvest

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrOpportunityNotFound signals the listing does not exist.
	ErrOpportunityNotFound = errors.New("coinvest: opportunity not found")
	// ErrOfferNotFound signals the co-investment offer does not exist.
	ErrOfferNotFound = errors.New("coinvest: offer not found")
)

// OpportunityRepository defines listing data access required by the service.
type OpportunityRepository interface {
	Create(ctx context.Context, tx pgx.Tx, o Opportunity) (Opportunity, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Opportunity, error)
	Update(ctx context.Context, tx pgx.Tx, o Opportunity) (Opportunity, error)
	ListActive(ctx context.Context) ([]Opportunity, error)
	ListForLead(ctx context.Context, leadInvestorID string) ([]Opportunity, error)
}

// OfferRepository defines co-investment offer data access required by the service.
type OfferRepository interface {
	Create(ctx context.Context, tx pgx.Tx, o Offer) (Offer, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Offer, error)
	Update(ctx context.Context, tx pgx.Tx, o Offer) (Offer, error)
	ListForOpportunity(ctx context.Context, tx pgx.Tx, opportunityID string) ([]Offer, error)
	ListPendingLeadApprovals(ctx context.Context, leadInvestorID string) ([]Offer, error)
}

const opportunityColumns = `id, lead_investor_id, startup_id, total_amount, total_equity_pct,
min_co_investment, max_co_investment, currency, lead_advisor_approval::text,
startup_advisor_approval::text, startup_approval::text, status::text, created_at, updated_at`

// PGOpportunityRepository implements OpportunityRepository backed by PostgreSQL.
type PGOpportunityRepository struct {
	pool *pgxpool.Pool
}

func NewOpportunityRepository(pool *pgxpool.Pool) *PGOpportunityRepository {
	return &PGOpportunityRepository{pool: pool}
}

func (r *PGOpportunityRepository) Create(ctx context.Context, tx pgx.Tx, o Opportunity) (Opportunity, error) {
	const query = `
        INSERT INTO co_investment_opportunities (id, lead_investor_id, startup_id, total_amount,
            total_equity_pct, min_co_investment, max_co_investment, currency,
            lead_advisor_approval, startup_advisor_approval, startup_approval, status)
        VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8,
            $9::approval_state, $10::approval_state, $11::approval_state, $12::opportunity_status)
        RETURNING ` + opportunityColumns

	row := tx.QueryRow(ctx, query,
		o.ID,
		o.LeadInvestorID,
		o.StartupID,
		o.TotalAmount,
		o.TotalEquityPct,
		o.MinCoInvestment,
		o.MaxCoInvestment,
		o.Currency,
		o.LeadAdvisorApproval,
		o.StartupAdvisorApproval,
		o.StartupApproval,
		o.Status,
	)

	created, err := scanOpportunity(row)
	if err != nil {
		return Opportunity{}, fmt.Errorf("coinvest: insert opportunity: %w", err)
	}
	return created, nil
}

func (r *PGOpportunityRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Opportunity, error) {
	const query = `SELECT ` + opportunityColumns + ` FROM co_investment_opportunities WHERE id = $1 FOR UPDATE`

	o, err := scanOpportunity(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Opportunity{}, ErrOpportunityNotFound
		}
		return Opportunity{}, fmt.Errorf("coinvest: get opportunity for update: %w", err)
	}
	return o, nil
}

func (r *PGOpportunityRepository) Update(ctx context.Context, tx pgx.Tx, o Opportunity) (Opportunity, error) {
	const query = `
        UPDATE co_investment_opportunities
        SET lead_advisor_approval = $2::approval_state,
            startup_advisor_approval = $3::approval_state,
            startup_approval = $4::approval_state,
            status = $5::opportunity_status,
            updated_at = get_tx_timestamp()
        WHERE id = $1
        RETURNING ` + opportunityColumns

	row := tx.QueryRow(ctx, query,
		o.ID,
		o.LeadAdvisorApproval,
		o.StartupAdvisorApproval,
		o.StartupApproval,
		o.Status,
	)

	updated, err := scanOpportunity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Opportunity{}, ErrOpportunityNotFound
		}
		return Opportunity{}, fmt.Errorf("coinvest: update opportunity: %w", err)
	}
	return updated, nil
}

// ListActive returns listings visible to co-investors, newest first.
func (r *PGOpportunityRepository) ListActive(ctx context.Context) ([]Opportunity, error) {
	const query = `
        SELECT ` + opportunityColumns + `
        FROM co_investment_opportunities
        WHERE status = 'active' AND startup_approval = 'approved'
        ORDER BY created_at DESC
    `
	return r.list(ctx, query)
}

// ListForLead returns the lead investor's own listings, newest first.
func (r *PGOpportunityRepository) ListForLead(ctx context.Context, leadInvestorID string) ([]Opportunity, error) {
	const query = `
        SELECT ` + opportunityColumns + `
        FROM co_investment_opportunities
        WHERE lead_investor_id = $1
        ORDER BY created_at DESC
    `
	return r.list(ctx, query, leadInvestorID)
}

func (r *PGOpportunityRepository) list(ctx context.Context, query string, args ...any) ([]Opportunity, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("coinvest: list opportunities: %w", err)
	}
	defer rows.Close()

	out := make([]Opportunity, 0, 8)
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, fmt.Errorf("coinvest: scan opportunity: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("coinvest: iterate opportunities: %w", err)
	}
	return out, nil
}

func scanOpportunity(row pgx.Row) (Opportunity, error) {
	var o Opportunity
	return o, row.Scan(
		&o.ID,
		&o.LeadInvestorID,
		&o.StartupID,
		&o.TotalAmount,
		&o.TotalEquityPct,
		&o.MinCoInvestment,
		&o.MaxCoInvestment,
		&o.Currency,
		&o.LeadAdvisorApproval,
		&o.StartupAdvisorApproval,
		&o.StartupApproval,
		&o.Status,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
}

const offerColumns = `id, opportunity_id, investor_id, amount, equity_pct, currency,
investor_advisor_approval::text, status::text, flagged_for_review, lead_invested,
remaining_capacity, created_at, updated_at`

// PGOfferRepository implements OfferRepository backed by PostgreSQL.
type PGOfferRepository struct {
	pool *pgxpool.Pool
}

func NewOfferRepository(pool *pgxpool.Pool) *PGOfferRepository {
	return &PGOfferRepository{pool: pool}
}

func (r *PGOfferRepository) Create(ctx context.Context, tx pgx.Tx, o Offer) (Offer, error) {
	const query = `
        INSERT INTO co_investment_offers (id, opportunity_id, investor_id, amount, equity_pct,
            currency, investor_advisor_approval, status)
        VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6,
            $7::approval_state, $8::co_offer_status)
        RETURNING ` + offerColumns

	row := tx.QueryRow(ctx, query,
		o.ID,
		o.OpportunityID,
		o.InvestorID,
		o.Amount,
		o.EquityPct,
		o.Currency,
		o.InvestorAdvisorApproval,
		o.Status,
	)

	created, err := scanOffer(row)
	if err != nil {
		return Offer{}, fmt.Errorf("coinvest: insert offer: %w", err)
	}
	return created, nil
}

func (r *PGOfferRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Offer, error) {
	const query = `SELECT ` + offerColumns + ` FROM co_investment_offers WHERE id = $1 FOR UPDATE`

	o, err := scanOffer(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Offer{}, ErrOfferNotFound
		}
		return Offer{}, fmt.Errorf("coinvest: get offer for update: %w", err)
	}
	return o, nil
}

func (r *PGOfferRepository) Update(ctx context.Context, tx pgx.Tx, o Offer) (Offer, error) {
	const query = `
        UPDATE co_investment_offers
        SET equity_pct = $2,
            investor_advisor_approval = $3::approval_state,
            status = $4::co_offer_status,
            flagged_for_review = $5,
            lead_invested = $6,
            remaining_capacity = $7,
            updated_at = get_tx_timestamp()
        WHERE id = $1
        RETURNING ` + offerColumns

	row := tx.QueryRow(ctx, query,
		o.ID,
		o.EquityPct,
		o.InvestorAdvisorApproval,
		o.Status,
		o.FlaggedForReview,
		o.LeadInvested,
		o.RemainingCapacity,
	)

	updated, err := scanOffer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Offer{}, ErrOfferNotFound
		}
		return Offer{}, fmt.Errorf("coinvest: update offer: %w", err)
	}
	return updated, nil
}

// ListForOpportunity reads the sibling offers of a listing inside the
// caller's transaction, for reservation arithmetic over a consistent snapshot.
func (r *PGOfferRepository) ListForOpportunity(ctx context.Context, tx pgx.Tx, opportunityID string) ([]Offer, error) {
	const query = `SELECT ` + offerColumns + ` FROM co_investment_offers WHERE opportunity_id = $1 ORDER BY created_at ASC`

	rows, err := tx.Query(ctx, query, opportunityID)
	if err != nil {
		return nil, fmt.Errorf("coinvest: list offers for opportunity: %w", err)
	}
	defer rows.Close()

	return collectOffers(rows)
}

// ListPendingLeadApprovals returns offers awaiting the given lead investor's
// decision across all of their listings, newest first.
func (r *PGOfferRepository) ListPendingLeadApprovals(ctx context.Context, leadInvestorID string) ([]Offer, error) {
	const query = `
        SELECT o.id, o.opportunity_id, o.investor_id, o.amount, o.equity_pct, o.currency,
               o.investor_advisor_approval::text, o.status::text, o.flagged_for_review,
               o.lead_invested, o.remaining_capacity, o.created_at, o.updated_at
        FROM co_investment_offers o
        JOIN co_investment_opportunities opp ON opp.id = o.opportunity_id
        WHERE opp.lead_investor_id = $1 AND o.status = 'pending_lead_investor_approval'
        ORDER BY o.created_at DESC
    `

	rows, err := r.pool.Query(ctx, query, leadInvestorID)
	if err != nil {
		return nil, fmt.Errorf("coinvest: list pending lead approvals: %w", err)
	}
	defer rows.Close()

	return collectOffers(rows)
}

func collectOffers(rows pgx.Rows) ([]Offer, error) {
	out := make([]Offer, 0, 8)
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("coinvest: scan offer: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("coinvest: iterate offers: %w", err)
	}
	return out, nil
}

func scanOffer(row pgx.Row) (Offer, error) {
	var o Offer
	return o, row.Scan(
		&o.ID,
		&o.OpportunityID,
		&o.InvestorID,
		&o.Amount,
		&o.EquityPct,
		&o.Currency,
		&o.InvestorAdvisorApproval,
		&o.Status,
		&o.FlaggedForReview,
		&o.LeadInvested,
		&o.RemainingCapacity,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
}
