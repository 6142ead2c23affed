// Package pricing maps credit plans to the amounts charged for them. The
// table is consulted exactly once per purchase, at transaction creation;
// everything downstream works from the snapshot taken there.
package pricing

import (
	"errors"
	"strings"
)

// ErrUnknownPlan is returned for plan identifiers outside the closed set.
var ErrUnknownPlan = errors.New("unknown plan")

// Plan identifies a purchasable credit pack.
type Plan string

const (
	PlanBasic    Plan = "basic"
	PlanAdvanced Plan = "advanced"
	PlanBusiness Plan = "business"
)

// Price is the quote for a plan: credits granted and amount charged.
type Price struct {
	Credits     int64
	AmountCents int64
	Currency    string
}

var table = map[Plan]Price{
	PlanBasic:    {Credits: 100, AmountCents: 1000, Currency: "usd"},
	PlanAdvanced: {Credits: 500, AmountCents: 5000, Currency: "usd"},
	PlanBusiness: {Credits: 5000, AmountCents: 25000, Currency: "usd"},
}

// ParsePlan normalizes a client-supplied plan identifier. Unknown values
// are rejected rather than defaulted.
func ParsePlan(s string) (Plan, error) {
	p := Plan(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := table[p]; !ok {
		return "", ErrUnknownPlan
	}
	return p, nil
}

// Quote returns the price for a plan.
func Quote(p Plan) (Price, error) {
	price, ok := table[p]
	if !ok {
		return Price{}, ErrUnknownPlan
	}
	return price, nil
}

// Plans returns all known plans in display order.
func Plans() []Plan {
	return []Plan{PlanBasic, PlanAdvanced, PlanBusiness}
}
