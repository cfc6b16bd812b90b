package coinvest

import "github.com/shopspring/decimal"

// Allocation arithmetic for a co-investment opportunity. These functions are
// pure: they compute derived values from a snapshot read and never mutate
// records.

// LeadInvested is the portion of the ask the lead investor commits, i.e. the
// part not open to co-investors: max(total - maxCo, 0).
func LeadInvested(total, maxCo decimal.Decimal) decimal.Decimal {
	lead := total.Sub(maxCo)
	if lead.IsNegative() {
		return decimal.Zero
	}
	return lead
}

// LeadEquity is the lead investor's share of the opportunity's equity,
// proportional to the committed amount. Zero when total is zero.
func LeadEquity(total, totalEquity, maxCo decimal.Decimal) decimal.Decimal {
	if total.IsZero() {
		return decimal.Zero
	}
	return totalEquity.Mul(LeadInvested(total, maxCo)).Div(total)
}

// ReservedAmount sums the offer amounts holding capacity against the
// opportunity: accepted offers plus those awaiting lead or startup approval.
func ReservedAmount(offers []Offer) decimal.Decimal {
	reserved := decimal.Zero
	for _, o := range offers {
		if o.Status.Reserves() {
			reserved = reserved.Add(o.Amount)
		}
	}
	return reserved
}

// RemainingCapacity is the co-investable amount still open under maxCo given
// the current reservation snapshot.
func RemainingCapacity(maxCo decimal.Decimal, offers []Offer) decimal.Decimal {
	return maxCo.Sub(ReservedAmount(offers))
}

// AcceptedEquity sums the equity percentages of accepted offers.
func AcceptedEquity(offers []Offer) decimal.Decimal {
	total := decimal.Zero
	for _, o := range offers {
		if o.Status == OfferAccepted {
			total = total.Add(o.EquityPct)
		}
	}
	return total
}

// CapEquity bounds a to-be-accepted offer's equity so that lead equity plus
// all accepted co-investor equities never exceed the opportunity's total.
// When the stated equity breaches the bound the offer is capped and flagged
// for manual review rather than silently over-allocated.
func CapEquity(totalEquity, leadEquity, acceptedEquity, offerEquity decimal.Decimal) (granted decimal.Decimal, flagged bool) {
	headroom := totalEquity.Sub(leadEquity).Sub(acceptedEquity)
	if headroom.IsNegative() {
		headroom = decimal.Zero
	}
	if offerEquity.GreaterThan(headroom) {
		return headroom, true
	}
	return offerEquity, false
}
