package offer

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status represents the lifecycle of a direct investment offer.
type Status string

const (
	StatusPending                 Status = "pending"
	StatusInvestorAdvisorApproved Status = "investor_advisor_approved"
	StatusInvestorAdvisorRejected Status = "investor_advisor_rejected"
	StatusStartupAdvisorApproved  Status = "startup_advisor_approved"
	StatusStartupAdvisorRejected  Status = "startup_advisor_rejected"
	StatusAccepted                Status = "accepted"
	StatusRejected                Status = "rejected"
)

// Terminal reports whether no further transition is permitted from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusAccepted, StatusRejected, StatusInvestorAdvisorRejected, StatusStartupAdvisorRejected:
		return true
	default:
		return false
	}
}

// Approval tracks one advisor gate of the chain.
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

// Offer mirrors the offers table. Stage is intentionally absent: it is
// recomputed from the approval fields on every read so the two can never
// disagree.
type Offer struct {
	ID                      string
	InvestorID              string
	StartupID               string
	Amount                  decimal.Decimal
	EquityPct               decimal.Decimal
	Currency                string
	Status                  Status
	InvestorAdvisorApproval Approval
	StartupAdvisorApproval  Approval
	ContactDetailsRevealed  bool
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// Stage derives the ordinal position (1-4) of the offer in its approval
// chain. A rejection freezes the stage where it happened.
func (o Offer) Stage() int {
	switch {
	case o.Status == StatusAccepted:
		return 4
	case o.InvestorAdvisorApproval == ApprovalPending || o.Status == StatusInvestorAdvisorRejected:
		return 1
	case o.StartupAdvisorApproval == ApprovalPending || o.Status == StatusStartupAdvisorRejected:
		return 2
	default:
		return 3
	}
}
