package coinvest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dealflow/advisory"
	"dealflow/event"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

var (
	// ErrOpportunityNotActive signals a bid against a listing that is not
	// open to co-investors.
	ErrOpportunityNotActive = errors.New("coinvest: opportunity not active")
	// ErrAllocationExceeded signals the bid would push reserved capacity
	// past the opportunity's co-investment cap.
	ErrAllocationExceeded = errors.New("coinvest: allocation exceeded")
	// ErrSelfOfferForbidden signals the lead investor bidding on their own listing.
	ErrSelfOfferForbidden = errors.New("coinvest: self offer forbidden")
	// ErrBelowMinimum signals a bid under the opportunity's minimum ticket.
	ErrBelowMinimum = errors.New("coinvest: amount below minimum co-investment")
)

// OfferService drives a co-investor's bid through its approval chain:
// investor advisor, lead investor, then the startup. Capacity is reserved
// optimistically: pending bids past the advisor gate count against the cap,
// recomputed from a fresh snapshot on every transition instead of holding
// the opportunity locked across human approvals.
type OfferService struct {
	pool          TxBeginner
	offers        OfferRepository
	opportunities OpportunityRepository
	advisors      advisory.Lookup
	timeline      TimelineWriter
	outbox        OutboxWriter
	idGenerator   func() string
	now           func() time.Time
}

func NewOfferService(pool TxBeginner, offers OfferRepository, opportunities OpportunityRepository, advisors advisory.Lookup, timeline TimelineWriter, outbox OutboxWriter) *OfferService {
	return &OfferService{
		pool:          pool,
		offers:        offers,
		opportunities: opportunities,
		advisors:      advisors,
		timeline:      timeline,
		outbox:        outbox,
		idGenerator:   func() string { return uuid.NewString() },
		now:           time.Now,
	}
}

func (s *OfferService) WithIDGenerator(gen func() string) *OfferService {
	s.idGenerator = gen
	return s
}

func (s *OfferService) WithClock(now func() time.Time) *OfferService {
	s.now = now
	return s
}

// CreateOfferParams enumerates the fields supplied by a co-investor.
type CreateOfferParams struct {
	InvestorID    string
	OpportunityID string
	Amount        decimal.Decimal
	EquityPct     decimal.Decimal
}

// Create submits a bid against an active listing. The opportunity row is
// locked for the duration of the insert so competing bids serialize through
// the reservation arithmetic.
func (s *OfferService) Create(ctx context.Context, params CreateOfferParams) (Offer, error) {
	if params.InvestorID == "" || params.OpportunityID == "" {
		return Offer{}, fmt.Errorf("coinvest: investor and opportunity ids required")
	}
	if !params.Amount.IsPositive() {
		return Offer{}, fmt.Errorf("%w: amount must be positive", ErrInvalidTerms)
	}
	if !params.EquityPct.IsPositive() || params.EquityPct.GreaterThan(decimal.NewFromInt(100)) {
		return Offer{}, fmt.Errorf("%w: equity must be in (0, 100]", ErrInvalidTerms)
	}

	gate, err := s.advisors.AdvisorFor(ctx, params.InvestorID)
	if err != nil {
		return Offer{}, fmt.Errorf("coinvest: resolve investor advisor: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Offer{}, fmt.Errorf("coinvest: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	opp, err := s.opportunities.GetForUpdate(ctx, tx, params.OpportunityID)
	if err != nil {
		return Offer{}, err
	}
	if !opp.Visible() {
		return Offer{}, ErrOpportunityNotActive
	}
	if opp.LeadInvestorID == params.InvestorID {
		return Offer{}, ErrSelfOfferForbidden
	}
	if params.Amount.LessThan(opp.MinCoInvestment) {
		return Offer{}, ErrBelowMinimum
	}

	siblings, err := s.offers.ListForOpportunity(ctx, tx, opp.ID)
	if err != nil {
		return Offer{}, err
	}
	if params.Amount.GreaterThan(RemainingCapacity(opp.MaxCoInvestment, siblings)) {
		return Offer{}, ErrAllocationExceeded
	}

	o := Offer{
		ID:            s.idGenerator(),
		OpportunityID: opp.ID,
		InvestorID:    params.InvestorID,
		Amount:        params.Amount,
		EquityPct:     params.EquityPct,
		Currency:      opp.Currency,
	}
	if gate.HasAdvisor {
		o.InvestorAdvisorApproval = ApprovalPending
		o.Status = OfferPendingInvestorAdvisor
	} else {
		o.InvestorAdvisorApproval = ApprovalNotRequired
		o.Status = OfferPendingLeadInvestor
	}

	created, err := s.offers.Create(ctx, tx, o)
	if err != nil {
		return Offer{}, err
	}

	if s.timeline != nil {
		payload := map[string]any{
			"opportunity_id": created.OpportunityID,
			"amount":         created.Amount.String(),
			"equity_pct":     created.EquityPct.String(),
			"status":         created.Status,
		}
		if err := s.timeline.Append(ctx, tx, created.ID, "CO_OFFER_CREATED", created.InvestorID, payload); err != nil {
			return Offer{}, err
		}
	}
	if s.outbox != nil {
		payload := map[string]any{
			"co_offer_id":    created.ID,
			"opportunity_id": created.OpportunityID,
			"investor_id":    created.InvestorID,
		}
		if err := s.outbox.Enqueue(ctx, tx, event.TopicCoOfferCreated, payload); err != nil {
			return Offer{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Offer{}, fmt.Errorf("coinvest: commit create: %w", err)
	}
	return created, nil
}

// ResolveInvestorAdvisor records the co-investor's advisor verdict. Approval
// moves the bid into the reserving set, so capacity is re-checked against a
// fresh snapshot before the bid starts counting toward the cap.
func (s *OfferService) ResolveInvestorAdvisor(ctx context.Context, offerID, actorID string, decision Decision) (Offer, error) {
	return s.transition(ctx, offerID, actorID, decision, func(ctx context.Context, tx pgx.Tx, o *Offer) (string, error) {
		if o.Status != OfferPendingInvestorAdvisor || o.InvestorAdvisorApproval != ApprovalPending {
			return "", ErrInvalidTransition
		}
		if decision == DecisionReject {
			o.InvestorAdvisorApproval = ApprovalRejected
			o.Status = OfferInvestorAdvisorReject
			return event.TopicCoOfferRejected, nil
		}

		opp, err := s.opportunities.GetForUpdate(ctx, tx, o.OpportunityID)
		if err != nil {
			return "", err
		}
		siblings, err := s.offers.ListForOpportunity(ctx, tx, opp.ID)
		if err != nil {
			return "", err
		}
		// The bid itself is still outside the reserving set here.
		if o.Amount.GreaterThan(RemainingCapacity(opp.MaxCoInvestment, siblings)) {
			return "", ErrAllocationExceeded
		}

		o.InvestorAdvisorApproval = ApprovalApproved
		o.Status = OfferPendingLeadInvestor
		return "", nil
	})
}

// ResolveLeadInvestor records the lead investor's verdict. Only the identity
// that created the parent opportunity may call it.
func (s *OfferService) ResolveLeadInvestor(ctx context.Context, offerID, actorID string, decision Decision) (Offer, error) {
	return s.transition(ctx, offerID, actorID, decision, func(ctx context.Context, tx pgx.Tx, o *Offer) (string, error) {
		if o.Status != OfferPendingLeadInvestor {
			return "", ErrInvalidTransition
		}
		opp, err := s.opportunities.GetForUpdate(ctx, tx, o.OpportunityID)
		if err != nil {
			return "", err
		}
		if opp.LeadInvestorID != actorID {
			return "", ErrForbidden
		}
		if decision == DecisionReject {
			o.Status = OfferLeadInvestorRejected
			return event.TopicCoOfferRejected, nil
		}
		o.Status = OfferPendingStartup
		return "", nil
	})
}

// ResolveStartup records the startup's final verdict. Acceptance snapshots
// the lead's committed amount and the remaining co-investable capacity, caps
// the granted equity against the opportunity total, and completes the
// listing once capacity is drained.
func (s *OfferService) ResolveStartup(ctx context.Context, offerID, actorID string, decision Decision) (Offer, error) {
	return s.transition(ctx, offerID, actorID, decision, func(ctx context.Context, tx pgx.Tx, o *Offer) (string, error) {
		if o.Status != OfferPendingStartup {
			return "", ErrInvalidTransition
		}
		if decision == DecisionReject {
			o.Status = OfferRejected
			return event.TopicCoOfferRejected, nil
		}

		opp, err := s.opportunities.GetForUpdate(ctx, tx, o.OpportunityID)
		if err != nil {
			return "", err
		}
		siblings, err := s.offers.ListForOpportunity(ctx, tx, opp.ID)
		if err != nil {
			return "", err
		}

		// The bid already reserves capacity while pending, so the snapshot
		// figures do not shift on acceptance.
		lead := LeadInvested(opp.TotalAmount, opp.MaxCoInvestment)
		remaining := RemainingCapacity(opp.MaxCoInvestment, siblings)
		leadEquity := LeadEquity(opp.TotalAmount, opp.TotalEquityPct, opp.MaxCoInvestment)

		accepted := decimal.Zero
		for _, sib := range siblings {
			if sib.ID != o.ID && sib.Status == OfferAccepted {
				accepted = accepted.Add(sib.EquityPct)
			}
		}
		granted, flagged := CapEquity(opp.TotalEquityPct, leadEquity, accepted, o.EquityPct)
		if flagged && s.timeline != nil {
			payload := map[string]any{
				"requested_equity": o.EquityPct.String(),
				"granted_equity":   granted.String(),
			}
			if err := s.timeline.Append(ctx, tx, o.ID, "CO_OFFER_EQUITY_CAPPED", actorID, payload); err != nil {
				return "", err
			}
		}

		o.Status = OfferAccepted
		o.EquityPct = granted
		o.FlaggedForReview = flagged
		o.LeadInvested = &lead
		o.RemainingCapacity = &remaining

		if remaining.IsZero() {
			opp.Status = OpportunityCompleted
			if _, err := s.opportunities.Update(ctx, tx, opp); err != nil {
				return "", err
			}
			if s.outbox != nil {
				payload := map[string]any{
					"opportunity_id": opp.ID,
					"status":         opp.Status,
				}
				if err := s.outbox.Enqueue(ctx, tx, event.TopicOpportunityClosed, payload); err != nil {
					return "", err
				}
			}
		}

		if flagged {
			return event.TopicCoOfferNeedsReview, nil
		}
		return event.TopicCoOfferAccepted, nil
	})
}

type applyOfferFunc func(ctx context.Context, tx pgx.Tx, o *Offer) (outboxTopic string, err error)

func (s *OfferService) transition(ctx context.Context, offerID, actorID string, decision Decision, apply applyOfferFunc) (Offer, error) {
	if offerID == "" {
		return Offer{}, fmt.Errorf("coinvest: missing offer id")
	}
	if decision != DecisionApprove && decision != DecisionReject {
		return Offer{}, fmt.Errorf("coinvest: invalid decision %q", decision)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Offer{}, fmt.Errorf("coinvest: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	o, err := s.offers.GetForUpdate(ctx, tx, offerID)
	if err != nil {
		return Offer{}, err
	}
	previous := o.Status

	topic, err := apply(ctx, tx, &o)
	if err != nil {
		return Offer{}, err
	}

	updated, err := s.offers.Update(ctx, tx, o)
	if err != nil {
		return Offer{}, err
	}

	if s.timeline != nil {
		payload := map[string]any{
			"previous_status": previous,
			"next_status":     updated.Status,
			"decision":        decision,
		}
		if updated.FlaggedForReview {
			payload["flagged_for_review"] = true
		}
		if err := s.timeline.Append(ctx, tx, updated.ID, "CO_OFFER_STATUS_CHANGED", actorID, payload); err != nil {
			return Offer{}, err
		}
	}
	if topic != "" && s.outbox != nil {
		payload := map[string]any{
			"co_offer_id":    updated.ID,
			"opportunity_id": updated.OpportunityID,
			"investor_id":    updated.InvestorID,
			"status":         updated.Status,
		}
		if err := s.outbox.Enqueue(ctx, tx, topic, payload); err != nil {
			return Offer{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Offer{}, fmt.Errorf("coinvest: commit transition: %w", err)
	}
	return updated, nil
}

// ListPendingLeadApprovals returns the bids awaiting the lead investor's
// decision across their listings, newest first.
func (s *OfferService) ListPendingLeadApprovals(ctx context.Context, leadInvestorID string) ([]Offer, error) {
	return s.offers.ListPendingLeadApprovals(ctx, leadInvestorID)
}
