package coinvest

import (
	"context"
	"errors"
	"time"

	"dealflow/advisory"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeLookup struct {
	assignments map[string]advisory.Assignment
}

func (f *fakeLookup) AdvisorFor(_ context.Context, partyID string) (advisory.Assignment, error) {
	return f.assignments[partyID], nil
}

type fakeOpportunityRepo struct {
	opportunities map[string]Opportunity
	order         []string
}

func newFakeOpportunityRepo() *fakeOpportunityRepo {
	return &fakeOpportunityRepo{opportunities: map[string]Opportunity{}}
}

func (f *fakeOpportunityRepo) Create(_ context.Context, _ pgx.Tx, o Opportunity) (Opportunity, error) {
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	f.opportunities[o.ID] = o
	f.order = append(f.order, o.ID)
	return o, nil
}

func (f *fakeOpportunityRepo) GetForUpdate(_ context.Context, _ pgx.Tx, id string) (Opportunity, error) {
	o, ok := f.opportunities[id]
	if !ok {
		return Opportunity{}, ErrOpportunityNotFound
	}
	return o, nil
}

func (f *fakeOpportunityRepo) Update(_ context.Context, _ pgx.Tx, o Opportunity) (Opportunity, error) {
	if _, ok := f.opportunities[o.ID]; !ok {
		return Opportunity{}, ErrOpportunityNotFound
	}
	o.UpdatedAt = time.Now()
	f.opportunities[o.ID] = o
	return o, nil
}

func (f *fakeOpportunityRepo) ListActive(_ context.Context) ([]Opportunity, error) {
	out := []Opportunity{}
	for i := len(f.order) - 1; i >= 0; i-- {
		if o, ok := f.opportunities[f.order[i]]; ok && o.Visible() {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeOpportunityRepo) ListForLead(_ context.Context, leadInvestorID string) ([]Opportunity, error) {
	out := []Opportunity{}
	for i := len(f.order) - 1; i >= 0; i-- {
		if o, ok := f.opportunities[f.order[i]]; ok && o.LeadInvestorID == leadInvestorID {
			out = append(out, o)
		}
	}
	return out, nil
}

type fakeOfferRepo struct {
	offers        map[string]Offer
	order         []string
	opportunities *fakeOpportunityRepo
}

func newFakeOfferRepo(opportunities *fakeOpportunityRepo) *fakeOfferRepo {
	return &fakeOfferRepo{offers: map[string]Offer{}, opportunities: opportunities}
}

func (f *fakeOfferRepo) Create(_ context.Context, _ pgx.Tx, o Offer) (Offer, error) {
	o.CreatedAt = time.Now()
	o.UpdatedAt = o.CreatedAt
	f.offers[o.ID] = o
	f.order = append(f.order, o.ID)
	return o, nil
}

func (f *fakeOfferRepo) GetForUpdate(_ context.Context, _ pgx.Tx, id string) (Offer, error) {
	o, ok := f.offers[id]
	if !ok {
		return Offer{}, ErrOfferNotFound
	}
	return o, nil
}

func (f *fakeOfferRepo) Update(_ context.Context, _ pgx.Tx, o Offer) (Offer, error) {
	if _, ok := f.offers[o.ID]; !ok {
		return Offer{}, ErrOfferNotFound
	}
	o.UpdatedAt = time.Now()
	f.offers[o.ID] = o
	return o, nil
}

func (f *fakeOfferRepo) ListForOpportunity(_ context.Context, _ pgx.Tx, opportunityID string) ([]Offer, error) {
	out := []Offer{}
	for _, id := range f.order {
		if o, ok := f.offers[id]; ok && o.OpportunityID == opportunityID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeOfferRepo) ListPendingLeadApprovals(_ context.Context, leadInvestorID string) ([]Offer, error) {
	out := []Offer{}
	for i := len(f.order) - 1; i >= 0; i-- {
		o, ok := f.offers[f.order[i]]
		if !ok || o.Status != OfferPendingLeadInvestor {
			continue
		}
		opp, exists := f.opportunities.opportunities[o.OpportunityID]
		if exists && opp.LeadInvestorID == leadInvestorID {
			out = append(out, o)
		}
	}
	return out, nil
}

type fakePool struct {
	tx *fakeTx
}

func (f *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	f.tx = &fakeTx{}
	return f.tx, nil
}

type fakeTx struct {
	rolled    bool
	committed bool
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("fakeTx does not support nested transactions")
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolled = true
	return nil
}

func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (f *fakeTx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (f *fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (f *fakeTx) Conn() *pgx.Conn {
	return nil
}
