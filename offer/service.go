package offer

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
	// precondition. The record is left unchanged; callers recover by
	// re-reading current state.
	ErrInvalidTransition = errors.New("offer: invalid transition")
	// ErrForbidden signals the actor may not perform the operation.
	ErrForbidden = errors.New("offer: forbidden")
	// ErrInvalidTerms signals amount or equity outside their valid ranges.
	ErrInvalidTerms = errors.New("offer: invalid terms")
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

// Service drives a direct offer through its advisor/startup approval chain.
// Every operation re-validates preconditions from persisted state under a
// row lock; caller-supplied state is never trusted.
type Service struct {
	pool        TxBeginner
	repo        Repository
	advisors    advisory.Lookup
	timeline    TimelineWriter
	outbox      OutboxWriter
	idGenerator func() string
	now         func() time.Time
}

func NewService(pool TxBeginner, repo Repository, advisors advisory.Lookup, timeline TimelineWriter, outbox OutboxWriter) *Service {
	return &Service{
		pool:        pool,
		repo:        repo,
		advisors:    advisors,
		timeline:    timeline,
		outbox:      outbox,
		idGenerator: func() string { return uuid.NewString() },
		now:         time.Now,
	}
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CreateParams enumerates the fields supplied by an investor submitting an offer.
type CreateParams struct {
	InvestorID string
	StartupID  string
	Amount     decimal.Decimal
	EquityPct  decimal.Decimal
	Currency   string
}

// Create submits a new offer. Terminal-rejected history for the pair is
// purged first; a live offer for the pair fails with ErrDuplicateActiveOffer.
// The investor-advisor gate seeds from the advisor lookup: no advisor means
// the offer skips straight to the startup side of the chain.
func (s *Service) Create(ctx context.Context, params CreateParams) (Offer, error) {
	if params.InvestorID == "" || params.StartupID == "" {
		return Offer{}, fmt.Errorf("offer: investor and startup ids required")
	}
	if err := validateTerms(params.Amount, params.EquityPct); err != nil {
		return Offer{}, err
	}
	currency := params.Currency
	if currency == "" {
		currency = "USD"
	}
	if len(currency) != 3 {
		return Offer{}, fmt.Errorf("offer: invalid currency code %q", currency)
	}

	investorGate, err := s.advisors.AdvisorFor(ctx, params.InvestorID)
	if err != nil {
		return Offer{}, fmt.Errorf("offer: resolve investor advisor: %w", err)
	}

	o := Offer{
		ID:         s.idGenerator(),
		InvestorID: params.InvestorID,
		StartupID:  params.StartupID,
		Amount:     params.Amount,
		EquityPct:  params.EquityPct,
		Currency:   currency,
		Status:     StatusPending,
	}

	if investorGate.HasAdvisor {
		o.InvestorAdvisorApproval = ApprovalPending
		// Startup gate is seeded once the investor side resolves.
		o.StartupAdvisorApproval = ApprovalPending
	} else {
		o.InvestorAdvisorApproval = ApprovalNotRequired
		gate, err := s.startupGate(ctx, params.StartupID)
		if err != nil {
			return Offer{}, err
		}
		o.StartupAdvisorApproval = gate
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Offer{}, fmt.Errorf("offer: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.repo.PurgeRejectedForPair(ctx, tx, params.InvestorID, params.StartupID); err != nil {
		return Offer{}, err
	}

	live, err := s.repo.LiveExistsForPair(ctx, tx, params.InvestorID, params.StartupID)
	if err != nil {
		return Offer{}, err
	}
	if live {
		return Offer{}, ErrDuplicateActiveOffer
	}

	created, err := s.repo.Create(ctx, tx, o)
	if err != nil {
		return Offer{}, err
	}

	if s.timeline != nil {
		payload := map[string]any{
			"startup_id": created.StartupID,
			"amount":     created.Amount.String(),
			"equity_pct": created.EquityPct.String(),
			"stage":      created.Stage(),
		}
		if err := s.timeline.Append(ctx, tx, created.ID, "OFFER_CREATED", created.InvestorID, payload); err != nil {
			return Offer{}, err
		}
	}
	if s.outbox != nil {
		payload := map[string]any{
			"offer_id":    created.ID,
			"investor_id": created.InvestorID,
			"startup_id":  created.StartupID,
		}
		if err := s.outbox.Enqueue(ctx, tx, event.TopicOfferCreated, payload); err != nil {
			return Offer{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Offer{}, fmt.Errorf("offer: commit create: %w", err)
	}
	return created, nil
}

// ResolveInvestorAdvisor records the investor advisor's verdict. Approval
// seeds the startup-advisor gate; rejection is terminal.
func (s *Service) ResolveInvestorAdvisor(ctx context.Context, offerID, actorID string, decision Decision) (Offer, error) {
	return s.transition(ctx, offerID, actorID, decision, func(ctx context.Context, o *Offer, decision Decision) (string, error) {
		if o.InvestorAdvisorApproval != ApprovalPending || o.Status.Terminal() {
			return "", ErrInvalidTransition
		}
		if decision == DecisionReject {
			o.InvestorAdvisorApproval = ApprovalRejected
			o.Status = StatusInvestorAdvisorRejected
			return event.TopicOfferRejected, nil
		}
		o.InvestorAdvisorApproval = ApprovalApproved
		o.Status = StatusInvestorAdvisorApproved
		gate, err := s.startupGate(ctx, o.StartupID)
		if err != nil {
			return "", err
		}
		o.StartupAdvisorApproval = gate
		return "", nil
	})
}

// ResolveStartupAdvisor records the startup advisor's verdict.
func (s *Service) ResolveStartupAdvisor(ctx context.Context, offerID, actorID string, decision Decision) (Offer, error) {
	return s.transition(ctx, offerID, actorID, decision, func(ctx context.Context, o *Offer, decision Decision) (string, error) {
		if o.StartupAdvisorApproval != ApprovalPending || !o.InvestorAdvisorApproval.Resolved() || o.Status.Terminal() {
			return "", ErrInvalidTransition
		}
		if decision == DecisionReject {
			o.StartupAdvisorApproval = ApprovalRejected
			o.Status = StatusStartupAdvisorRejected
			return event.TopicOfferRejected, nil
		}
		o.StartupAdvisorApproval = ApprovalApproved
		o.Status = StatusStartupAdvisorApproved
		return "", nil
	})
}

// ResolveStartup records the startup's final verdict. Acceptance reveals
// contact details; both outcomes are terminal.
func (s *Service) ResolveStartup(ctx context.Context, offerID, actorID string, decision Decision) (Offer, error) {
	return s.transition(ctx, offerID, actorID, decision, func(ctx context.Context, o *Offer, decision Decision) (string, error) {
		if o.Status.Terminal() || !o.InvestorAdvisorApproval.Resolved() || !o.StartupAdvisorApproval.Resolved() {
			return "", ErrInvalidTransition
		}
		if decision == DecisionReject {
			o.Status = StatusRejected
			return event.TopicOfferRejected, nil
		}
		o.Status = StatusAccepted
		o.ContactDetailsRevealed = true
		return event.TopicOfferAccepted, nil
	})
}

type applyFunc func(ctx context.Context, o *Offer, decision Decision) (outboxTopic string, err error)

func (s *Service) transition(ctx context.Context, offerID, actorID string, decision Decision, apply applyFunc) (Offer, error) {
	if offerID == "" {
		return Offer{}, fmt.Errorf("offer: missing offer id")
	}
	if decision != DecisionApprove && decision != DecisionReject {
		return Offer{}, fmt.Errorf("offer: invalid decision %q", decision)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Offer{}, fmt.Errorf("offer: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	o, err := s.repo.GetForUpdate(ctx, tx, offerID)
	if err != nil {
		return Offer{}, err
	}
	previous := o.Status

	topic, err := apply(ctx, &o, decision)
	if err != nil {
		return Offer{}, err
	}

	updated, err := s.repo.Update(ctx, tx, o)
	if err != nil {
		return Offer{}, err
	}

	if s.timeline != nil {
		payload := map[string]any{
			"previous_status": previous,
			"next_status":     updated.Status,
			"decision":        decision,
			"stage":           updated.Stage(),
		}
		if err := s.timeline.Append(ctx, tx, updated.ID, "OFFER_STATUS_CHANGED", actorID, payload); err != nil {
			return Offer{}, err
		}
	}
	if topic != "" && s.outbox != nil {
		payload := map[string]any{
			"offer_id":    updated.ID,
			"investor_id": updated.InvestorID,
			"startup_id":  updated.StartupID,
			"status":      updated.Status,
		}
		if err := s.outbox.Enqueue(ctx, tx, topic, payload); err != nil {
			return Offer{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Offer{}, fmt.Errorf("offer: commit transition: %w", err)
	}
	return updated, nil
}

// EditParams carries replacement terms for a stage-1 offer.
type EditParams struct {
	OfferID   string
	ActorID   string
	Amount    decimal.Decimal
	EquityPct decimal.Decimal
}

// Edit replaces the offer terms. Permitted only while the offer still sits in
// the investor advisor's queue, before any approval has occurred.
func (s *Service) Edit(ctx context.Context, params EditParams) (Offer, error) {
	if err := validateTerms(params.Amount, params.EquityPct); err != nil {
		return Offer{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Offer{}, fmt.Errorf("offer: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	o, err := s.repo.GetForUpdate(ctx, tx, params.OfferID)
	if err != nil {
		return Offer{}, err
	}
	if o.InvestorID != params.ActorID {
		return Offer{}, ErrForbidden
	}
	if o.Stage() != 1 || o.Status != StatusPending {
		return Offer{}, ErrInvalidTransition
	}

	o.Amount = params.Amount
	o.EquityPct = params.EquityPct

	updated, err := s.repo.Update(ctx, tx, o)
	if err != nil {
		return Offer{}, err
	}

	if s.timeline != nil {
		payload := map[string]any{
			"amount":     updated.Amount.String(),
			"equity_pct": updated.EquityPct.String(),
		}
		if err := s.timeline.Append(ctx, tx, updated.ID, "OFFER_TERMS_EDITED", params.ActorID, payload); err != nil {
			return Offer{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Offer{}, fmt.Errorf("offer: commit edit: %w", err)
	}
	return updated, nil
}

// Cancel withdraws a stage-1 offer and removes its record.
func (s *Service) Cancel(ctx context.Context, offerID, actorID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("offer: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	o, err := s.repo.GetForUpdate(ctx, tx, offerID)
	if err != nil {
		return err
	}
	if o.InvestorID != actorID {
		return ErrForbidden
	}
	if o.Stage() != 1 || o.Status != StatusPending {
		return ErrInvalidTransition
	}

	if err := s.repo.Delete(ctx, tx, offerID); err != nil {
		return err
	}

	if s.timeline != nil {
		if err := s.timeline.Append(ctx, tx, offerID, "OFFER_CANCELLED", actorID, map[string]any{}); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("offer: commit cancel: %w", err)
	}
	return nil
}

// ListForInvestor returns the investor's offers, newest first.
func (s *Service) ListForInvestor(ctx context.Context, investorID string) ([]Offer, error) {
	return s.repo.ListForInvestor(ctx, investorID)
}

// ListForStartup returns the startup's incoming offers, newest first.
func (s *Service) ListForStartup(ctx context.Context, startupID string) ([]Offer, error) {
	return s.repo.ListForStartup(ctx, startupID)
}

func (s *Service) startupGate(ctx context.Context, startupID string) (Approval, error) {
	gate, err := s.advisors.AdvisorFor(ctx, startupID)
	if err != nil {
		return "", fmt.Errorf("offer: resolve startup advisor: %w", err)
	}
	if gate.HasAdvisor {
		return ApprovalPending, nil
	}
	return ApprovalNotRequired, nil
}

func validateTerms(amount, equityPct decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidTerms)
	}
	if !equityPct.IsPositive() || equityPct.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%w: equity must be in (0, 100]", ErrInvalidTerms)
	}
	return nil
}
