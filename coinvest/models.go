package coinvest

import (
	"time"

	"github.com/shopspring/decimal"
)

// Approval tracks one gate of an approval chain.
type Approval string

const (
	ApprovalNotRequired Approval = "not_required"
	ApprovalPending     Approval = "pending"
	ApprovalApproved    Approval = "approved"
	ApprovalRejected    Approval = "rejected"
)

// Resolved reports whether the gate no longer blocks progression.
func (a Approval) Resolved() bool {
	return a == ApprovalApproved || a == ApprovalNotRequired
}

// Decision is an approver's verdict on a pending gate.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// OpportunityStatus represents the lifecycle of a co-investment listing.
type OpportunityStatus string

const (
	OpportunityDraft     OpportunityStatus = "draft"
	OpportunityActive    OpportunityStatus = "active"
	OpportunityCompleted OpportunityStatus = "completed"
	OpportunityRejected  OpportunityStatus = "rejected"
)

// Terminal reports whether no further transition is permitted from s.
func (s OpportunityStatus) Terminal() bool {
	return s == OpportunityCompleted || s == OpportunityRejected
}

// Opportunity mirrors the co_investment_opportunities table. Stage is derived
// on read from the approval fields, never stored.
type Opportunity struct {
	ID                     string
	LeadInvestorID         string
	StartupID              string
	TotalAmount            decimal.Decimal
	TotalEquityPct         decimal.Decimal
	MinCoInvestment        decimal.Decimal
	MaxCoInvestment        decimal.Decimal
	Currency               string
	LeadAdvisorApproval    Approval
	StartupAdvisorApproval Approval
	StartupApproval        Approval
	Status                 OpportunityStatus
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Stage derives the ordinal position (1-4) of the listing in its approval
// chain. A rejection freezes the stage where it happened.
func (o Opportunity) Stage() int {
	switch {
	case o.Status == OpportunityActive || o.Status == OpportunityCompleted:
		return 4
	case o.LeadAdvisorApproval == ApprovalPending || o.LeadAdvisorApproval == ApprovalRejected:
		return 1
	case o.StartupAdvisorApproval == ApprovalPending || o.StartupAdvisorApproval == ApprovalRejected:
		return 2
	default:
		return 3
	}
}

// Visible reports whether other investors may see and bid on the listing.
func (o Opportunity) Visible() bool {
	return o.Status == OpportunityActive && o.StartupApproval == ApprovalApproved
}

// OfferStatus represents the lifecycle of a co-investor's bid.
type OfferStatus string

const (
	OfferPendingInvestorAdvisor OfferStatus = "pending_investor_advisor_approval"
	OfferPendingLeadInvestor    OfferStatus = "pending_lead_investor_approval"
	OfferPendingStartup         OfferStatus = "pending_startup_approval"
	OfferAccepted               OfferStatus = "accepted"
	OfferRejected               OfferStatus = "rejected"
	OfferInvestorAdvisorReject  OfferStatus = "investor_advisor_rejected"
	OfferLeadInvestorRejected   OfferStatus = "lead_investor_rejected"
)

// Terminal reports whether no further transition is permitted from s.
func (s OfferStatus) Terminal() bool {
	switch s {
	case OfferAccepted, OfferRejected, OfferInvestorAdvisorReject, OfferLeadInvestorRejected:
		return true
	default:
		return false
	}
}

// Reserves reports whether an offer in this status counts against the
// opportunity's co-investable capacity. Pending offers reserve optimistically
// so two concurrent co-investors cannot both be approved past the cap.
func (s OfferStatus) Reserves() bool {
	switch s {
	case OfferAccepted, OfferPendingLeadInvestor, OfferPendingStartup:
		return true
	default:
		return false
	}
}

// Offer mirrors the co_investment_offers table. LeadInvested and
// RemainingCapacity are nil until acceptance snapshots the final figures.
type Offer struct {
	ID                      string
	OpportunityID           string
	InvestorID              string
	Amount                  decimal.Decimal
	EquityPct               decimal.Decimal
	Currency                string
	InvestorAdvisorApproval Approval
	Status                  OfferStatus
	FlaggedForReview        bool
	LeadInvested            *decimal.Decimal
	RemainingCapacity       *decimal.Decimal
	CreatedAt               time.Time
	UpdatedAt               time.Time
}
