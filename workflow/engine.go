// Package workflow bundles the offer and co-investment state machines behind
// one facade so callers (HTTP handlers, notification consumers) wire a single
// dependency. All orchestration lives in the underlying services; the engine
// only delegates.
package workflow

import (
	"context"

	"dealflow/coinvest"
	"dealflow/offer"
	"dealflow/review"
)

type Engine struct {
	offers        *offer.Service
	opportunities *coinvest.OpportunityService
	coOffers      *coinvest.OfferService
	reviews       *review.Service
}

func NewEngine(offers *offer.Service, opportunities *coinvest.OpportunityService, coOffers *coinvest.OfferService, reviews *review.Service) *Engine {
	return &Engine{
		offers:        offers,
		opportunities: opportunities,
		coOffers:      coOffers,
		reviews:       reviews,
	}
}

// Direct offers.

func (e *Engine) CreateOffer(ctx context.Context, params offer.CreateParams) (offer.Offer, error) {
	return e.offers.Create(ctx, params)
}

func (e *Engine) ResolveInvestorAdvisor(ctx context.Context, offerID, actorID string, decision offer.Decision) (offer.Offer, error) {
	return e.offers.ResolveInvestorAdvisor(ctx, offerID, actorID, decision)
}

func (e *Engine) ResolveStartupAdvisor(ctx context.Context, offerID, actorID string, decision offer.Decision) (offer.Offer, error) {
	return e.offers.ResolveStartupAdvisor(ctx, offerID, actorID, decision)
}

func (e *Engine) ResolveStartup(ctx context.Context, offerID, actorID string, decision offer.Decision) (offer.Offer, error) {
	return e.offers.ResolveStartup(ctx, offerID, actorID, decision)
}

func (e *Engine) EditOffer(ctx context.Context, params offer.EditParams) (offer.Offer, error) {
	return e.offers.Edit(ctx, params)
}

func (e *Engine) CancelOffer(ctx context.Context, offerID, actorID string) error {
	return e.offers.Cancel(ctx, offerID, actorID)
}

func (e *Engine) ListOffersForInvestor(ctx context.Context, investorID string) ([]offer.Offer, error) {
	return e.offers.ListForInvestor(ctx, investorID)
}

func (e *Engine) ListOffersForStartup(ctx context.Context, startupID string) ([]offer.Offer, error) {
	return e.offers.ListForStartup(ctx, startupID)
}

// Co-investment opportunities.

func (e *Engine) CreateCoInvestmentOpportunity(ctx context.Context, params coinvest.CreateOpportunityParams) (coinvest.Opportunity, error) {
	return e.opportunities.Create(ctx, params)
}

func (e *Engine) ResolveOpportunityLeadAdvisor(ctx context.Context, opportunityID, actorID string, decision coinvest.Decision) (coinvest.Opportunity, error) {
	return e.opportunities.ResolveLeadAdvisor(ctx, opportunityID, actorID, decision)
}

func (e *Engine) ResolveOpportunityStartupAdvisor(ctx context.Context, opportunityID, actorID string, decision coinvest.Decision) (coinvest.Opportunity, error) {
	return e.opportunities.ResolveStartupAdvisor(ctx, opportunityID, actorID, decision)
}

func (e *Engine) ResolveOpportunityStartup(ctx context.Context, opportunityID, actorID string, decision coinvest.Decision) (coinvest.Opportunity, error) {
	return e.opportunities.ResolveStartup(ctx, opportunityID, actorID, decision)
}

func (e *Engine) ListActiveOpportunities(ctx context.Context) ([]coinvest.Opportunity, error) {
	return e.opportunities.ListActive(ctx)
}

func (e *Engine) ListOpportunitiesForLead(ctx context.Context, leadInvestorID string) ([]coinvest.Opportunity, error) {
	return e.opportunities.ListForLead(ctx, leadInvestorID)
}

// Co-investment offers.

func (e *Engine) CreateCoInvestmentOffer(ctx context.Context, params coinvest.CreateOfferParams) (coinvest.Offer, error) {
	return e.coOffers.Create(ctx, params)
}

func (e *Engine) ResolveCoInvestmentOfferAdvisor(ctx context.Context, offerID, actorID string, decision coinvest.Decision) (coinvest.Offer, error) {
	return e.coOffers.ResolveInvestorAdvisor(ctx, offerID, actorID, decision)
}

func (e *Engine) ResolveLeadInvestor(ctx context.Context, offerID, actorID string, decision coinvest.Decision) (coinvest.Offer, error) {
	return e.coOffers.ResolveLeadInvestor(ctx, offerID, actorID, decision)
}

func (e *Engine) ResolveCoInvestmentOfferStartup(ctx context.Context, offerID, actorID string, decision coinvest.Decision) (coinvest.Offer, error) {
	return e.coOffers.ResolveStartup(ctx, offerID, actorID, decision)
}

func (e *Engine) ListPendingLeadApprovals(ctx context.Context, leadInvestorID string) ([]coinvest.Offer, error) {
	return e.coOffers.ListPendingLeadApprovals(ctx, leadInvestorID)
}

// Manual review queue.

func (e *Engine) ListFlaggedOffers(ctx context.Context, leadInvestorID string) ([]review.Item, error) {
	return e.reviews.List(ctx, leadInvestorID)
}

func (e *Engine) ResolveFlaggedOffer(ctx context.Context, leadInvestorID, offerID string) (review.Item, error) {
	return e.reviews.Resolve(ctx, leadInvestorID, offerID)
}
