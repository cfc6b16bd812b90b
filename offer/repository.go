package offer

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals the offer does not exist.
	ErrNotFound = errors.New("offer: not found")
	// ErrDuplicateActiveOffer signals a live offer already exists for the
	// (investor, startup) pair.
	ErrDuplicateActiveOffer = errors.New("offer: duplicate active offer for pair")
)

// Repository defines the data access required by the service.
type Repository interface {
	Create(ctx context.Context, tx pgx.Tx, o Offer) (Offer, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Offer, error)
	Update(ctx context.Context, tx pgx.Tx, o Offer) (Offer, error)
	Delete(ctx context.Context, tx pgx.Tx, id string) error
	LiveExistsForPair(ctx context.Context, tx pgx.Tx, investorID, startupID string) (bool, error)
	PurgeRejectedForPair(ctx context.Context, tx pgx.Tx, investorID, startupID string) error
	ListForInvestor(ctx context.Context, investorID string) ([]Offer, error)
	ListForStartup(ctx context.Context, startupID string) ([]Offer, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed offer repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const offerColumns = `id, investor_id, startup_id, amount, equity_pct, currency, status::text,
investor_advisor_approval::text, startup_advisor_approval::text, contact_details_revealed, created_at, updated_at`

func (r *PGRepository) Create(ctx context.Context, tx pgx.Tx, o Offer) (Offer, error) {
	const query = `
        INSERT INTO offers (id, investor_id, startup_id, amount, equity_pct, currency, status,
            investor_advisor_approval, startup_advisor_approval)
        VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6,
            $7::offer_status, $8::approval_state, $9::approval_state)
        RETURNING ` + offerColumns

	row := tx.QueryRow(ctx, query,
		o.ID,
		o.InvestorID,
		o.StartupID,
		o.Amount,
		o.EquityPct,
		o.Currency,
		o.Status,
		o.InvestorAdvisorApproval,
		o.StartupAdvisorApproval,
	)

	created, err := scanOffer(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Offer{}, ErrDuplicateActiveOffer
		}
		return Offer{}, fmt.Errorf("offer: insert: %w", err)
	}
	return created, nil
}

func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Offer, error) {
	const query = `SELECT ` + offerColumns + ` FROM offers WHERE id = $1 FOR UPDATE`

	o, err := scanOffer(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Offer{}, ErrNotFound
		}
		return Offer{}, fmt.Errorf("offer: get for update: %w", err)
	}
	return o, nil
}

func (r *PGRepository) Update(ctx context.Context, tx pgx.Tx, o Offer) (Offer, error) {
	const query = `
        UPDATE offers
        SET amount = $2,
            equity_pct = $3,
            status = $4::offer_status,
            investor_advisor_approval = $5::approval_state,
            startup_advisor_approval = $6::approval_state,
            contact_details_revealed = $7,
            updated_at = get_tx_timestamp()
        WHERE id = $1
        RETURNING ` + offerColumns

	row := tx.QueryRow(ctx, query,
		o.ID,
		o.Amount,
		o.EquityPct,
		o.Status,
		o.InvestorAdvisorApproval,
		o.StartupAdvisorApproval,
		o.ContactDetailsRevealed,
	)

	updated, err := scanOffer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Offer{}, ErrNotFound
		}
		return Offer{}, fmt.Errorf("offer: update: %w", err)
	}
	return updated, nil
}

func (r *PGRepository) Delete(ctx context.Context, tx pgx.Tx, id string) error {
	tag, err := tx.Exec(ctx, `DELETE FROM offers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("offer: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// LiveExistsForPair reports whether a non-terminal offer exists for the pair.
func (r *PGRepository) LiveExistsForPair(ctx context.Context, tx pgx.Tx, investorID, startupID string) (bool, error) {
	const query = `
        SELECT EXISTS (
            SELECT 1 FROM offers
            WHERE investor_id = $1 AND startup_id = $2
              AND status NOT IN ('rejected', 'investor_advisor_rejected', 'startup_advisor_rejected')
        )
    `

	var exists bool
	if err := tx.QueryRow(ctx, query, investorID, startupID).Scan(&exists); err != nil {
		return false, fmt.Errorf("offer: check live pair: %w", err)
	}
	return exists, nil
}

// PurgeRejectedForPair removes terminal-rejected offers for the pair, freeing
// it for a fresh submission. Running it when none exist is a no-op.
func (r *PGRepository) PurgeRejectedForPair(ctx context.Context, tx pgx.Tx, investorID, startupID string) error {
	const query = `
        DELETE FROM offers
        WHERE investor_id = $1 AND startup_id = $2
          AND status IN ('rejected', 'investor_advisor_rejected', 'startup_advisor_rejected')
    `

	if _, err := tx.Exec(ctx, query, investorID, startupID); err != nil {
		return fmt.Errorf("offer: purge rejected pair: %w", err)
	}
	return nil
}

func (r *PGRepository) ListForInvestor(ctx context.Context, investorID string) ([]Offer, error) {
	const query = `SELECT ` + offerColumns + ` FROM offers WHERE investor_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, investorID)
}

func (r *PGRepository) ListForStartup(ctx context.Context, startupID string) ([]Offer, error) {
	const query = `SELECT ` + offerColumns + ` FROM offers WHERE startup_id = $1 ORDER BY created_at DESC`
	return r.list(ctx, query, startupID)
}

func (r *PGRepository) list(ctx context.Context, query string, arg any) ([]Offer, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("offer: list: %w", err)
	}
	defer rows.Close()

	out := make([]Offer, 0, 8)
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("offer: scan list: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("offer: iterate list: %w", err)
	}
	return out, nil
}

func scanOffer(row pgx.Row) (Offer, error) {
	var o Offer
	return o, row.Scan(
		&o.ID,
		&o.InvestorID,
		&o.StartupID,
		&o.Amount,
		&o.EquityPct,
		&o.Currency,
		&o.Status,
		&o.InvestorAdvisorApproval,
		&o.StartupAdvisorApproval,
		&o.ContactDetailsRevealed,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
}
