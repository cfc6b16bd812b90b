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
	// ErrInvalidTransition signals a resolve call outside its status
	// precondition. The record is left unchanged.
	ErrInvalidTransition = errors.New("coinvest: invalid transition")
	// ErrForbidden signals the actor may not perform the operation.
	ErrForbidden = errors.New("coinvest: forbidden")
	// ErrInvalidTerms signals monetary or equity fields outside their ranges.
	ErrInvalidTerms = errors.New("coinvest: invalid terms")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TimelineWriter appends business events inside the caller's transaction.
type TimelineWriter interface {
	Append(ctx context.Context, tx pgx.Tx, subjectID, eventType, actorID string, payload map[string]any) error
}

// OutboxWriter enqueues notification messages inside the caller's transaction.
type OutboxWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

// OpportunityService drives a lead investor's listing through its approval
// chain: lead advisor, startup advisor, then the startup itself. Only a fully
// approved listing becomes visible to co-investors.
type OpportunityService struct {
	pool        TxBeginner
	repo        OpportunityRepository
	advisors    advisory.Lookup
	timeline    TimelineWriter
	outbox      OutboxWriter
	idGenerator func() string
	now         func() time.Time
}

func NewOpportunityService(pool TxBeginner, repo OpportunityRepository, advisors advisory.Lookup, timeline TimelineWriter, outbox OutboxWriter) *OpportunityService {
	return &OpportunityService{
		pool:        pool,
		repo:        repo,
		advisors:    advisors,
		timeline:    timeline,
		outbox:      outbox,
		idGenerator: func() string { return uuid.NewString() },
		now:         time.Now,
	}
}

func (s *OpportunityService) WithIDGenerator(gen func() string) *OpportunityService {
	s.idGenerator = gen
	return s
}

func (s *OpportunityService) WithClock(now func() time.Time) *OpportunityService {
	s.now = now
	return s
}

// CreateOpportunityParams enumerates the fields supplied by the lead investor.
type CreateOpportunityParams struct {
	LeadInvestorID  string
	StartupID       string
	TotalAmount     decimal.Decimal
	TotalEquityPct  decimal.Decimal
	MinCoInvestment decimal.Decimal
	MaxCoInvestment decimal.Decimal
	Currency        string
}

// Create opens a draft listing. The lead-advisor gate seeds from the advisor
// lookup; a lead with no advisor skips straight to the startup side.
func (s *OpportunityService) Create(ctx context.Context, params CreateOpportunityParams) (Opportunity, error) {
	if params.LeadInvestorID == "" || params.StartupID == "" {
		return Opportunity{}, fmt.Errorf("coinvest: lead investor and startup ids required")
	}
	if !params.TotalAmount.IsPositive() {
		return Opportunity{}, fmt.Errorf("%w: total amount must be positive", ErrInvalidTerms)
	}
	if !params.TotalEquityPct.IsPositive() || params.TotalEquityPct.GreaterThan(decimal.NewFromInt(100)) {
		return Opportunity{}, fmt.Errorf("%w: total equity must be in (0, 100]", ErrInvalidTerms)
	}
	if params.MinCoInvestment.IsNegative() ||
		params.MinCoInvestment.GreaterThan(params.MaxCoInvestment) ||
		params.MaxCoInvestment.GreaterThan(params.TotalAmount) {
		return Opportunity{}, fmt.Errorf("%w: require 0 <= min <= max <= total", ErrInvalidTerms)
	}
	currency := params.Currency
	if currency == "" {
		currency = "USD"
	}
	if len(currency) != 3 {
		return Opportunity{}, fmt.Errorf("coinvest: invalid currency code %q", currency)
	}

	leadGate, err := s.advisors.AdvisorFor(ctx, params.LeadInvestorID)
	if err != nil {
		return Opportunity{}, fmt.Errorf("coinvest: resolve lead advisor: %w", err)
	}

	o := Opportunity{
		ID:              s.idGenerator(),
		LeadInvestorID:  params.LeadInvestorID,
		StartupID:       params.StartupID,
		TotalAmount:     params.TotalAmount,
		TotalEquityPct:  params.TotalEquityPct,
		MinCoInvestment: params.MinCoInvestment,
		MaxCoInvestment: params.MaxCoInvestment,
		Currency:        currency,
		StartupApproval: ApprovalPending,
		Status:          OpportunityDraft,
	}

	if leadGate.HasAdvisor {
		o.LeadAdvisorApproval = ApprovalPending
		// Startup gate is seeded once the lead side resolves.
		o.StartupAdvisorApproval = ApprovalPending
	} else {
		o.LeadAdvisorApproval = ApprovalNotRequired
		gate, err := s.startupGate(ctx, params.StartupID)
		if err != nil {
			return Opportunity{}, err
		}
		o.StartupAdvisorApproval = gate
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Opportunity{}, fmt.Errorf("coinvest: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	created, err := s.repo.Create(ctx, tx, o)
	if err != nil {
		return Opportunity{}, err
	}

	if s.timeline != nil {
		payload := map[string]any{
			"startup_id":        created.StartupID,
			"total_amount":      created.TotalAmount.String(),
			"max_co_investment": created.MaxCoInvestment.String(),
			"stage":             created.Stage(),
		}
		if err := s.timeline.Append(ctx, tx, created.ID, "OPPORTUNITY_CREATED", created.LeadInvestorID, payload); err != nil {
			return Opportunity{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Opportunity{}, fmt.Errorf("coinvest: commit create: %w", err)
	}
	return created, nil
}

// ResolveLeadAdvisor records the lead advisor's verdict. Approval seeds the
// startup-advisor gate; rejection is terminal.
func (s *OpportunityService) ResolveLeadAdvisor(ctx context.Context, opportunityID, actorID string, decision Decision) (Opportunity, error) {
	return s.transition(ctx, opportunityID, actorID, decision, func(ctx context.Context, o *Opportunity, decision Decision) (string, error) {
		if o.LeadAdvisorApproval != ApprovalPending || o.Status != OpportunityDraft {
			return "", ErrInvalidTransition
		}
		if decision == DecisionReject {
			o.LeadAdvisorApproval = ApprovalRejected
			o.Status = OpportunityRejected
			return event.TopicOpportunityClosed, nil
		}
		o.LeadAdvisorApproval = ApprovalApproved
		gate, err := s.startupGate(ctx, o.StartupID)
		if err != nil {
			return "", err
		}
		o.StartupAdvisorApproval = gate
		return "", nil
	})
}

// ResolveStartupAdvisor records the startup advisor's verdict.
func (s *OpportunityService) ResolveStartupAdvisor(ctx context.Context, opportunityID, actorID string, decision Decision) (Opportunity, error) {
	return s.transition(ctx, opportunityID, actorID, decision, func(ctx context.Context, o *Opportunity, decision Decision) (string, error) {
		if o.StartupAdvisorApproval != ApprovalPending || !o.LeadAdvisorApproval.Resolved() || o.Status != OpportunityDraft {
			return "", ErrInvalidTransition
		}
		if decision == DecisionReject {
			o.StartupAdvisorApproval = ApprovalRejected
			o.Status = OpportunityRejected
			return event.TopicOpportunityClosed, nil
		}
		o.StartupAdvisorApproval = ApprovalApproved
		return "", nil
	})
}

// ResolveStartup records the startup's verdict on the listing itself.
// Approval activates the listing for co-investors.
func (s *OpportunityService) ResolveStartup(ctx context.Context, opportunityID, actorID string, decision Decision) (Opportunity, error) {
	return s.transition(ctx, opportunityID, actorID, decision, func(ctx context.Context, o *Opportunity, decision Decision) (string, error) {
		if o.StartupApproval != ApprovalPending || o.Status != OpportunityDraft ||
			!o.LeadAdvisorApproval.Resolved() || !o.StartupAdvisorApproval.Resolved() {
			return "", ErrInvalidTransition
		}
		if decision == DecisionReject {
			o.StartupApproval = ApprovalRejected
			o.Status = OpportunityRejected
			return event.TopicOpportunityClosed, nil
		}
		o.StartupApproval = ApprovalApproved
		o.Status = OpportunityActive
		return event.TopicOpportunityActive, nil
	})
}

type applyOpportunityFunc func(ctx context.Context, o *Opportunity, decision Decision) (outboxTopic string, err error)

func (s *OpportunityService) transition(ctx context.Context, opportunityID, actorID string, decision Decision, apply applyOpportunityFunc) (Opportunity, error) {
	if opportunityID == "" {
		return Opportunity{}, fmt.Errorf("coinvest: missing opportunity id")
	}
	if decision != DecisionApprove && decision != DecisionReject {
		return Opportunity{}, fmt.Errorf("coinvest: invalid decision %q", decision)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Opportunity{}, fmt.Errorf("coinvest: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	o, err := s.repo.GetForUpdate(ctx, tx, opportunityID)
	if err != nil {
		return Opportunity{}, err
	}
	previous := o.Status

	topic, err := apply(ctx, &o, decision)
	if err != nil {
		return Opportunity{}, err
	}

	updated, err := s.repo.Update(ctx, tx, o)
	if err != nil {
		return Opportunity{}, err
	}

	if s.timeline != nil {
		payload := map[string]any{
			"previous_status": previous,
			"next_status":     updated.Status,
			"decision":        decision,
			"stage":           updated.Stage(),
		}
		if err := s.timeline.Append(ctx, tx, updated.ID, "OPPORTUNITY_STATUS_CHANGED", actorID, payload); err != nil {
			return Opportunity{}, err
		}
	}
	if topic != "" && s.outbox != nil {
		payload := map[string]any{
			"opportunity_id":   updated.ID,
			"lead_investor_id": updated.LeadInvestorID,
			"startup_id":       updated.StartupID,
			"status":           updated.Status,
		}
		if err := s.outbox.Enqueue(ctx, tx, topic, payload); err != nil {
			return Opportunity{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Opportunity{}, fmt.Errorf("coinvest: commit transition: %w", err)
	}
	return updated, nil
}

// ListActive returns listings open to co-investors, newest first.
func (s *OpportunityService) ListActive(ctx context.Context) ([]Opportunity, error) {
	return s.repo.ListActive(ctx)
}

// ListForLead returns the lead investor's own listings, newest first.
func (s *OpportunityService) ListForLead(ctx context.Context, leadInvestorID string) ([]Opportunity, error) {
	return s.repo.ListForLead(ctx, leadInvestorID)
}

func (s *OpportunityService) startupGate(ctx context.Context, startupID string) (Approval, error) {
	gate, err := s.advisors.AdvisorFor(ctx, startupID)
	if err != nil {
		return "", fmt.Errorf("coinvest: resolve startup advisor: %w", err)
	}
	if gate.HasAdvisor {
		return ApprovalPending, nil
	}
	return ApprovalNotRequired, nil
}
