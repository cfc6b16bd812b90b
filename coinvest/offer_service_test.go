package coinvest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"dealflow/advisory"
)

func newTestOfferService(offers *fakeOfferRepo, opportunities *fakeOpportunityRepo, advisors *fakeLookup) *OfferService {
	seq := 0
	svc := NewOfferService(&fakePool{}, offers, opportunities, advisors, nil, nil)
	return svc.WithIDGenerator(func() string {
		seq++
		return fmt.Sprintf("co-offer-%d", seq)
	})
}

// activeOpportunity creates and activates a 200000/20% listing with an
// 80000 co-investment cap led by lead-1.
func activeOpportunity(t *testing.T, opportunities *fakeOpportunityRepo, advisors *fakeLookup) Opportunity {
	t.Helper()

	svc := newTestOpportunityService(opportunities, advisors)
	ctx := context.Background()

	o, err := svc.Create(ctx, standardOpportunityParams())
	if err != nil {
		t.Fatalf("create opportunity: %v", err)
	}
	o, err = svc.ResolveStartup(ctx, o.ID, "startup-1", DecisionApprove)
	if err != nil {
		t.Fatalf("activate opportunity: %v", err)
	}
	return o
}

func TestCreateOfferRequiresActiveOpportunity(t *testing.T) {
	opportunities := newFakeOpportunityRepo()
	advisors := &fakeLookup{}
	offers := newFakeOfferRepo(opportunities)

	oppSvc := newTestOpportunityService(opportunities, advisors)
	draft, err := oppSvc.Create(context.Background(), standardOpportunityParams())
	if err != nil {
		t.Fatalf("create opportunity: %v", err)
	}

	svc := newTestOfferService(offers, opportunities, advisors)
	_, err = svc.Create(context.Background(), CreateOfferParams{
		InvestorID:    "investor-b",
		OpportunityID: draft.ID,
		Amount:        d("10000"),
		EquityPct:     d("1"),
	})
	if !errors.Is(err, ErrOpportunityNotActive) {
		t.Fatalf("err = %v, want ErrOpportunityNotActive", err)
	}
}

func TestCreateOfferForbidsSelfOffer(t *testing.T) {
	opportunities := newFakeOpportunityRepo()
	advisors := &fakeLookup{}
	offers := newFakeOfferRepo(opportunities)
	opp := activeOpportunity(t, opportunities, advisors)

	svc := newTestOfferService(offers, opportunities, advisors)
	_, err := svc.Create(context.Background(), CreateOfferParams{
		InvestorID:    "lead-1",
		OpportunityID: opp.ID,
		Amount:        d("10000"),
		EquityPct:     d("1"),
	})
	if !errors.Is(err, ErrSelfOfferForbidden) {
		t.Fatalf("err = %v, want ErrSelfOfferForbidden", err)
	}
}

func TestCreateOfferEnforcesMinimumTicket(t *testing.T) {
	opportunities := newFakeOpportunityRepo()
	advisors := &fakeLookup{}
	offers := newFakeOfferRepo(opportunities)
	opp := activeOpportunity(t, opportunities, advisors)

	svc := newTestOfferService(offers, opportunities, advisors)
	_, err := svc.Create(context.Background(), CreateOfferParams{
		InvestorID:    "investor-b",
		OpportunityID: opp.ID,
		Amount:        d("1000"), // below the 5000 minimum
		EquityPct:     d("1"),
	})
	if !errors.Is(err, ErrBelowMinimum) {
		t.Fatalf("err = %v, want ErrBelowMinimum", err)
	}
}

func TestAllocationScenario(t *testing.T) {
	opportunities := newFakeOpportunityRepo()
	advisors := &fakeLookup{}
	offers := newFakeOfferRepo(opportunities)
	opp := activeOpportunity(t, opportunities, advisors)

	svc := newTestOfferService(offers, opportunities, advisors)
	ctx := context.Background()

	// Investor B (no advisor) offers 30000 and is approved all the way.
	b, err := svc.Create(ctx, CreateOfferParams{
		InvestorID:    "investor-b",
		OpportunityID: opp.ID,
		Amount:        d("30000"),
		EquityPct:     d("3"),
	})
	if err != nil {
		t.Fatalf("create B: %v", err)
	}
	if b.Status != OfferPendingLeadInvestor {
		t.Fatalf("B status = %s, want pending_lead_investor_approval", b.Status)
	}

	if _, err := svc.ResolveLeadInvestor(ctx, b.ID, "lead-1", DecisionApprove); err != nil {
		t.Fatalf("lead approve B: %v", err)
	}
	b, err = svc.ResolveStartup(ctx, b.ID, "startup-1", DecisionApprove)
	if err != nil {
		t.Fatalf("startup approve B: %v", err)
	}
	if b.Status != OfferAccepted {
		t.Fatalf("B status = %s, want accepted", b.Status)
	}

	// Investor C's 60000 would push the 80000 cap to 90000.
	_, err = svc.Create(ctx, CreateOfferParams{
		InvestorID:    "investor-c",
		OpportunityID: opp.ID,
		Amount:        d("60000"),
		EquityPct:     d("6"),
	})
	if !errors.Is(err, ErrAllocationExceeded) {
		t.Fatalf("C err = %v, want ErrAllocationExceeded", err)
	}

	// A bid inside the remaining 50000 still fits.
	if _, err := svc.Create(ctx, CreateOfferParams{
		InvestorID:    "investor-c",
		OpportunityID: opp.ID,
		Amount:        d("50000"),
		EquityPct:     d("5"),
	}); err != nil {
		t.Fatalf("C retry err = %v, want nil", err)
	}
}

func TestPendingOffersReserveCapacity(t *testing.T) {
	opportunities := newFakeOpportunityRepo()
	advisors := &fakeLookup{}
	offers := newFakeOfferRepo(opportunities)
	opp := activeOpportunity(t, opportunities, advisors)

	svc := newTestOfferService(offers, opportunities, advisors)
	ctx := context.Background()

	// A pending-lead-approval bid reserves even before acceptance.
	if _, err := svc.Create(ctx, CreateOfferParams{
		InvestorID:    "investor-b",
		OpportunityID: opp.ID,
		Amount:        d("70000"),
		EquityPct:     d("7"),
	}); err != nil {
		t.Fatalf("create B: %v", err)
	}

	_, err := svc.Create(ctx, CreateOfferParams{
		InvestorID:    "investor-c",
		OpportunityID: opp.ID,
		Amount:        d("20000"),
		EquityPct:     d("2"),
	})
	if !errors.Is(err, ErrAllocationExceeded) {
		t.Fatalf("err = %v, want ErrAllocationExceeded while B pending", err)
	}
}

func TestAdvisorApprovalRechecksCapacity(t *testing.T) {
	opportunities := newFakeOpportunityRepo()
	advisors := &fakeLookup{assignments: map[string]advisory.Assignment{
		"investor-b": {HasAdvisor: true, AdvisorID: "advisor-b"},
	}}
	offers := newFakeOfferRepo(opportunities)
	opp := activeOpportunity(t, opportunities, advisors)

	svc := newTestOfferService(offers, opportunities, advisors)
	ctx := context.Background()

	// B's bid sits at the advisor gate and does not reserve yet.
	b, err := svc.Create(ctx, CreateOfferParams{
		InvestorID:    "investor-b",
		OpportunityID: opp.ID,
		Amount:        d("70000"),
		EquityPct:     d("7"),
	})
	if err != nil {
		t.Fatalf("create B: %v", err)
	}
	if b.Status != OfferPendingInvestorAdvisor {
		t.Fatalf("B status = %s, want pending_investor_advisor_approval", b.Status)
	}

	// C fills most of the cap while B waits on their advisor.
	if _, err := svc.Create(ctx, CreateOfferParams{
		InvestorID:    "investor-c",
		OpportunityID: opp.ID,
		Amount:        d("50000"),
		EquityPct:     d("5"),
	}); err != nil {
		t.Fatalf("create C: %v", err)
	}

	_, err = svc.ResolveInvestorAdvisor(ctx, b.ID, "advisor-b", DecisionApprove)
	if !errors.Is(err, ErrAllocationExceeded) {
		t.Fatalf("advisor approve err = %v, want ErrAllocationExceeded", err)
	}
}

func TestResolveLeadInvestorRequiresLeadIdentity(t *testing.T) {
	opportunities := newFakeOpportunityRepo()
	advisors := &fakeLookup{}
	offers := newFakeOfferRepo(opportunities)
	opp := activeOpportunity(t, opportunities, advisors)

	svc := newTestOfferService(offers, opportunities, advisors)
	ctx := context.Background()

	b, err := svc.Create(ctx, CreateOfferParams{
		InvestorID:    "investor-b",
		OpportunityID: opp.ID,
		Amount:        d("30000"),
		EquityPct:     d("3"),
	})
	if err != nil {
		t.Fatalf("create B: %v", err)
	}

	if _, err := svc.ResolveLeadInvestor(ctx, b.ID, "investor-c", DecisionApprove); !errors.Is(err, ErrForbidden) {
		t.Fatalf("stranger resolve err = %v, want ErrForbidden", err)
	}
	if _, err := svc.ResolveLeadInvestor(ctx, b.ID, "lead-1", DecisionApprove); err != nil {
		t.Fatalf("lead resolve err = %v", err)
	}
}

func TestAcceptanceSnapshotsAllocation(t *testing.T) {
	opportunities := newFakeOpportunityRepo()
	advisors := &fakeLookup{}
	offers := newFakeOfferRepo(opportunities)
	opp := activeOpportunity(t, opportunities, advisors)

	svc := newTestOfferService(offers, opportunities, advisors)
	ctx := context.Background()

	b, err := svc.Create(ctx, CreateOfferParams{
		InvestorID:    "investor-b",
		OpportunityID: opp.ID,
		Amount:        d("30000"),
		EquityPct:     d("3"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.ResolveLeadInvestor(ctx, b.ID, "lead-1", DecisionApprove); err != nil {
		t.Fatalf("lead approve: %v", err)
	}
	b, err = svc.ResolveStartup(ctx, b.ID, "startup-1", DecisionApprove)
	if err != nil {
		t.Fatalf("startup approve: %v", err)
	}

	if b.LeadInvested == nil || !b.LeadInvested.Equal(d("120000")) {
		t.Errorf("lead invested snapshot = %v, want 120000", b.LeadInvested)
	}
	if b.RemainingCapacity == nil || !b.RemainingCapacity.Equal(d("50000")) {
		t.Errorf("remaining capacity snapshot = %v, want 50000", b.RemainingCapacity)
	}
	if b.FlaggedForReview {
		t.Errorf("unexpected review flag")
	}
	if !b.EquityPct.Equal(d("3")) {
		t.Errorf("granted equity = %s, want 3", b.EquityPct)
	}
}

func TestAcceptanceCapsEquityAndFlags(t *testing.T) {
	opportunities := newFakeOpportunityRepo()
	advisors := &fakeLookup{}
	offers := newFakeOfferRepo(opportunities)
	opp := activeOpportunity(t, opportunities, advisors)

	svc := newTestOfferService(offers, opportunities, advisors)
	ctx := context.Background()

	// Lead equity is 20 * 120000/200000 = 12, leaving 8 points of headroom.
	b, err := svc.Create(ctx, CreateOfferParams{
		InvestorID:    "investor-b",
		OpportunityID: opp.ID,
		Amount:        d("30000"),
		EquityPct:     d("10"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.ResolveLeadInvestor(ctx, b.ID, "lead-1", DecisionApprove); err != nil {
		t.Fatalf("lead approve: %v", err)
	}
	b, err = svc.ResolveStartup(ctx, b.ID, "startup-1", DecisionApprove)
	if err != nil {
		t.Fatalf("startup approve: %v", err)
	}

	if !b.FlaggedForReview {
		t.Fatalf("expected review flag after equity cap")
	}
	if !b.EquityPct.Equal(d("8")) {
		t.Fatalf("granted equity = %s, want capped to 8", b.EquityPct)
	}
}

func TestAcceptanceWithExhaustedHeadroomGrantsZeroEquity(t *testing.T) {
	opportunities := newFakeOpportunityRepo()
	advisors := &fakeLookup{}
	offers := newFakeOfferRepo(opportunities)
	opp := activeOpportunity(t, opportunities, advisors)

	svc := newTestOfferService(offers, opportunities, advisors)
	ctx := context.Background()

	acceptBid := func(investorID string, amount, equity string) Offer {
		t.Helper()
		o, err := svc.Create(ctx, CreateOfferParams{
			InvestorID:    investorID,
			OpportunityID: opp.ID,
			Amount:        d(amount),
			EquityPct:     d(equity),
		})
		if err != nil {
			t.Fatalf("create %s: %v", investorID, err)
		}
		if _, err := svc.ResolveLeadInvestor(ctx, o.ID, "lead-1", DecisionApprove); err != nil {
			t.Fatalf("lead approve %s: %v", investorID, err)
		}
		o, err = svc.ResolveStartup(ctx, o.ID, "startup-1", DecisionApprove)
		if err != nil {
			t.Fatalf("startup approve %s: %v", investorID, err)
		}
		return o
	}

	// B takes the entire 8 points of headroom (20 total minus 12 lead).
	b := acceptBid("investor-b", "30000", "8")
	if b.FlaggedForReview || !b.EquityPct.Equal(d("8")) {
		t.Fatalf("B granted=%s flagged=%v, want 8/false", b.EquityPct, b.FlaggedForReview)
	}

	// C is accepted into zero headroom: granted nothing, flagged, still accepted.
	c := acceptBid("investor-c", "20000", "4")
	if c.Status != OfferAccepted {
		t.Fatalf("C status = %s, want accepted", c.Status)
	}
	if !c.EquityPct.IsZero() {
		t.Fatalf("C granted equity = %s, want 0", c.EquityPct)
	}
	if !c.FlaggedForReview {
		t.Fatalf("expected C flagged for review")
	}
}

func TestAdvisorApprovalSucceedsAfterCapacityFreed(t *testing.T) {
	opportunities := newFakeOpportunityRepo()
	advisors := &fakeLookup{assignments: map[string]advisory.Assignment{
		"investor-b": {HasAdvisor: true, AdvisorID: "advisor-b"},
	}}
	offers := newFakeOfferRepo(opportunities)
	opp := activeOpportunity(t, opportunities, advisors)

	svc := newTestOfferService(offers, opportunities, advisors)
	ctx := context.Background()

	b, err := svc.Create(ctx, CreateOfferParams{
		InvestorID:    "investor-b",
		OpportunityID: opp.ID,
		Amount:        d("70000"),
		EquityPct:     d("7"),
	})
	if err != nil {
		t.Fatalf("create B: %v", err)
	}

	// C reserves most of the cap while B waits on their advisor.
	c, err := svc.Create(ctx, CreateOfferParams{
		InvestorID:    "investor-c",
		OpportunityID: opp.ID,
		Amount:        d("50000"),
		EquityPct:     d("5"),
	})
	if err != nil {
		t.Fatalf("create C: %v", err)
	}

	if _, err := svc.ResolveInvestorAdvisor(ctx, b.ID, "advisor-b", DecisionApprove); !errors.Is(err, ErrAllocationExceeded) {
		t.Fatalf("approve err = %v, want ErrAllocationExceeded", err)
	}

	// The refusal leaves the verdict pending, not discarded.
	got, err := offers.GetForUpdate(ctx, nil, b.ID)
	if err != nil {
		t.Fatalf("reload B: %v", err)
	}
	if got.Status != OfferPendingInvestorAdvisor || got.InvestorAdvisorApproval != ApprovalPending {
		t.Fatalf("B after refusal = %s/%s, want pending gate intact", got.Status, got.InvestorAdvisorApproval)
	}

	// C's rejection releases its reservation; the same approval now lands.
	if _, err := svc.ResolveLeadInvestor(ctx, c.ID, "lead-1", DecisionReject); err != nil {
		t.Fatalf("lead reject C: %v", err)
	}
	b, err = svc.ResolveInvestorAdvisor(ctx, b.ID, "advisor-b", DecisionApprove)
	if err != nil {
		t.Fatalf("retry approve: %v", err)
	}
	if b.Status != OfferPendingLeadInvestor || b.InvestorAdvisorApproval != ApprovalApproved {
		t.Fatalf("B after retry = %s/%s, want pending_lead_investor_approval/approved", b.Status, b.InvestorAdvisorApproval)
	}
}

func TestOpportunityCompletesWhenCapacityDrained(t *testing.T) {
	opportunities := newFakeOpportunityRepo()
	advisors := &fakeLookup{}
	offers := newFakeOfferRepo(opportunities)
	opp := activeOpportunity(t, opportunities, advisors)

	svc := newTestOfferService(offers, opportunities, advisors)
	ctx := context.Background()

	b, err := svc.Create(ctx, CreateOfferParams{
		InvestorID:    "investor-b",
		OpportunityID: opp.ID,
		Amount:        d("80000"),
		EquityPct:     d("8"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.ResolveLeadInvestor(ctx, b.ID, "lead-1", DecisionApprove); err != nil {
		t.Fatalf("lead approve: %v", err)
	}
	b, err = svc.ResolveStartup(ctx, b.ID, "startup-1", DecisionApprove)
	if err != nil {
		t.Fatalf("startup approve: %v", err)
	}

	if b.RemainingCapacity == nil || !b.RemainingCapacity.IsZero() {
		t.Fatalf("remaining = %v, want 0", b.RemainingCapacity)
	}
	got, err := opportunities.GetForUpdate(ctx, nil, opp.ID)
	if err != nil {
		t.Fatalf("reload opportunity: %v", err)
	}
	if got.Status != OpportunityCompleted {
		t.Fatalf("opportunity status = %s, want completed", got.Status)
	}
}

func TestTerminalCoOfferRejectsFurtherResolves(t *testing.T) {
	opportunities := newFakeOpportunityRepo()
	advisors := &fakeLookup{}
	offers := newFakeOfferRepo(opportunities)
	opp := activeOpportunity(t, opportunities, advisors)

	svc := newTestOfferService(offers, opportunities, advisors)
	ctx := context.Background()

	b, err := svc.Create(ctx, CreateOfferParams{
		InvestorID:    "investor-b",
		OpportunityID: opp.ID,
		Amount:        d("30000"),
		EquityPct:     d("3"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.ResolveLeadInvestor(ctx, b.ID, "lead-1", DecisionReject); err != nil {
		t.Fatalf("lead reject: %v", err)
	}

	if _, err := svc.ResolveLeadInvestor(ctx, b.ID, "lead-1", DecisionApprove); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("lead re-resolve err = %v, want ErrInvalidTransition", err)
	}
	if _, err := svc.ResolveStartup(ctx, b.ID, "startup-1", DecisionApprove); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("startup resolve err = %v, want ErrInvalidTransition", err)
	}
	if _, err := svc.ResolveInvestorAdvisor(ctx, b.ID, "advisor-x", DecisionApprove); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("advisor resolve err = %v, want ErrInvalidTransition", err)
	}
}

func TestListPendingLeadApprovals(t *testing.T) {
	opportunities := newFakeOpportunityRepo()
	advisors := &fakeLookup{}
	offers := newFakeOfferRepo(opportunities)
	opp := activeOpportunity(t, opportunities, advisors)

	svc := newTestOfferService(offers, opportunities, advisors)
	ctx := context.Background()

	b, err := svc.Create(ctx, CreateOfferParams{
		InvestorID:    "investor-b",
		OpportunityID: opp.ID,
		Amount:        d("30000"),
		EquityPct:     d("3"),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	pending, err := svc.ListPendingLeadApprovals(ctx, "lead-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != b.ID {
		t.Fatalf("pending = %+v, want just %s", pending, b.ID)
	}

	if pending, err = svc.ListPendingLeadApprovals(ctx, "lead-2"); err != nil || len(pending) != 0 {
		t.Fatalf("other lead pending = %+v err=%v, want empty", pending, err)
	}
}
