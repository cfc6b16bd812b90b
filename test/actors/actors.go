package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"dealflow/coinvest"
	"dealflow/offer"
)

func tolerable(err error) bool {
	return errors.Is(err, coinvest.ErrAllocationExceeded) ||
		errors.Is(err, coinvest.ErrBelowMinimum) ||
		errors.Is(err, coinvest.ErrOpportunityNotActive) ||
		errors.Is(err, coinvest.ErrSelfOfferForbidden) ||
		errors.Is(err, coinvest.ErrInvalidTransition) ||
		errors.Is(err, coinvest.ErrOfferNotFound)
}

// CoBidder hammers one opportunity with bids of random size. Under contention
// most attempts bounce off the allocation guard; that is the point.
func CoBidder(ctx context.Context, svc *coinvest.OfferService, opportunityID, investorID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		amount := decimal.NewFromInt(int64(5000 + rand.Intn(40)*1000))
		_, err := svc.Create(ctx, coinvest.CreateOfferParams{
			InvestorID:    investorID,
			OpportunityID: opportunityID,
			Amount:        amount,
			EquityPct:     decimal.NewFromInt(int64(1 + rand.Intn(5))),
		})
		if err != nil && !tolerable(err) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("co-bidder create: %w", err)
		}
		time.Sleep(time.Duration(10+rand.Intn(30)) * time.Millisecond)
	}
}

// AdvisorApprover resolves co-offers waiting on this advisor's verdict.
func AdvisorApprover(ctx context.Context, pool *pgxpool.Pool, svc *coinvest.OfferService, advisorID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		var offerID string
		err := pool.QueryRow(ctx, `
            SELECT o.id::text FROM co_investment_offers o
            JOIN users u ON u.id = o.investor_id
            WHERE o.status = 'pending_investor_advisor_approval' AND u.advisor_id = $1
            LIMIT 1`, advisorID).Scan(&offerID)
		if err == nil {
			decision := coinvest.DecisionApprove
			if rand.Intn(10) == 0 {
				decision = coinvest.DecisionReject
			}
			if _, err := svc.ResolveInvestorAdvisor(ctx, offerID, advisorID, decision); err != nil && !tolerable(err) {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("advisor resolve: %w", err)
			}
		}
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// LeadApprover works the lead investor's pending queue.
func LeadApprover(ctx context.Context, svc *coinvest.OfferService, leadInvestorID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		pending, err := svc.ListPendingLeadApprovals(ctx, leadInvestorID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("lead list: %w", err)
		}
		for _, o := range pending {
			decision := coinvest.DecisionApprove
			if rand.Intn(10) == 0 {
				decision = coinvest.DecisionReject
			}
			if _, err := svc.ResolveLeadInvestor(ctx, o.ID, leadInvestorID, decision); err != nil && !tolerable(err) {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("lead resolve: %w", err)
			}
		}
		time.Sleep(time.Duration(30+rand.Intn(50)) * time.Millisecond)
	}
}

// StartupApprover accepts or rejects co-offers that reached the final gate.
func StartupApprover(ctx context.Context, pool *pgxpool.Pool, svc *coinvest.OfferService, startupID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		var offerID string
		err := pool.QueryRow(ctx, `
            SELECT o.id::text FROM co_investment_offers o
            JOIN co_investment_opportunities p ON p.id = o.opportunity_id
            WHERE o.status = 'pending_startup_approval' AND p.startup_id = $1
            LIMIT 1`, startupID).Scan(&offerID)
		if err == nil {
			decision := coinvest.DecisionApprove
			if rand.Intn(8) == 0 {
				decision = coinvest.DecisionReject
			}
			if _, err := svc.ResolveStartup(ctx, offerID, startupID, decision); err != nil && !tolerable(err) {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("startup resolve: %w", err)
			}
		}
		time.Sleep(time.Duration(25+rand.Intn(50)) * time.Millisecond)
	}
}

// DirectOfferer cycles one (investor, startup) pair through the direct-offer
// flow: submit, sometimes reject so the purge path runs, sometimes accept.
// Duplicate submissions are expected to bounce.
func DirectOfferer(ctx context.Context, svc *offer.Service, investorID, startupID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		created, err := svc.Create(ctx, offer.CreateParams{
			InvestorID: investorID,
			StartupID:  startupID,
			Amount:     decimal.NewFromInt(int64(10000 + rand.Intn(90)*1000)),
			EquityPct:  decimal.NewFromInt(int64(1 + rand.Intn(10))),
		})
		switch {
		case errors.Is(err, offer.ErrDuplicateActiveOffer):
			// fall through to resolving whatever is live
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("direct create: %w", err)
		default:
			decision := offer.DecisionApprove
			if rand.Intn(3) == 0 {
				decision = offer.DecisionReject
			}
			if _, err := svc.ResolveStartup(ctx, created.ID, startupID, decision); err != nil &&
				!errors.Is(err, offer.ErrInvalidTransition) && !errors.Is(err, offer.ErrNotFound) {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("direct resolve: %w", err)
			}
		}
		time.Sleep(time.Duration(30+rand.Intn(60)) * time.Millisecond)
	}
}

// OutboxWorker consumes pending outbox messages with SKIP LOCKED and marks
// them processed, occasionally simulating a delivery failure.
func OutboxWorker(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		rows, err := tx.Query(ctx, `SELECT id FROM outbox WHERE status='pending' ORDER BY created_at FOR UPDATE SKIP LOCKED LIMIT 10`)
		if err != nil {
			_ = tx.Rollback(ctx)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		ids := make([]string, 0, 10)
		for rows.Next() {
			var id string
			_ = rows.Scan(&id)
			ids = append(ids, id)
		}
		rows.Close()
		for _, id := range ids {
			if rand.Intn(10) == 0 {
				_, _ = tx.Exec(ctx, `UPDATE outbox SET attempts=attempts+1 WHERE id=$1`, id)
				continue
			}
			_, _ = tx.Exec(ctx, `UPDATE outbox SET status='processed', attempts=attempts+1 WHERE id=$1`, id)
		}
		_ = tx.Commit(ctx)
		time.Sleep(100 * time.Millisecond)
	}
}
