package review

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is a co-investment offer flagged for manual review after the equity
// cap trimmed its granted percentage on acceptance.
type Item struct {
	ID              string
	OpportunityID   string
	InvestorID      string
	Amount          decimal.Decimal
	RequestedEquity decimal.Decimal
	GrantedEquity   decimal.Decimal
	FlaggedAt       time.Time
}
