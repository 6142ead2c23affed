package pricing

import (
	"errors"
	"testing"
)

func TestQuoteKnownPlans(t *testing.T) {
	cases := []struct {
		plan    Plan
		credits int64
		cents   int64
	}{
		{PlanBasic, 100, 1000},
		{PlanAdvanced, 500, 5000},
		{PlanBusiness, 5000, 25000},
	}
	for _, tc := range cases {
		price, err := Quote(tc.plan)
		if err != nil {
			t.Fatalf("Quote(%s): %v", tc.plan, err)
		}
		if price.Credits != tc.credits {
			t.Errorf("Quote(%s) credits = %d, want %d", tc.plan, price.Credits, tc.credits)
		}
		if price.AmountCents != tc.cents {
			t.Errorf("Quote(%s) cents = %d, want %d", tc.plan, price.AmountCents, tc.cents)
		}
		if price.Currency != "usd" {
			t.Errorf("Quote(%s) currency = %q, want usd", tc.plan, price.Currency)
		}
	}
}

func TestQuoteUnknownPlan(t *testing.T) {
	if _, err := Quote(Plan("enterprise")); !errors.Is(err, ErrUnknownPlan) {
		t.Errorf("expected ErrUnknownPlan, got %v", err)
	}
}

func TestParsePlan(t *testing.T) {
	for _, in := range []string{"basic", "Basic", "  BASIC  "} {
		p, err := ParsePlan(in)
		if err != nil {
			t.Fatalf("ParsePlan(%q): %v", in, err)
		}
		if p != PlanBasic {
			t.Errorf("ParsePlan(%q) = %s, want basic", in, p)
		}
	}
	if _, err := ParsePlan("free"); !errors.Is(err, ErrUnknownPlan) {
		t.Errorf("expected ErrUnknownPlan, got %v", err)
	}
	if _, err := ParsePlan(""); !errors.Is(err, ErrUnknownPlan) {
		t.Errorf("expected ErrUnknownPlan for empty input, got %v", err)
	}
}

func TestPlansOrder(t *testing.T) {
	plans := Plans()
	if len(plans) != 3 {
		t.Fatalf("expected 3 plans, got %d", len(plans))
	}
	if plans[0] != PlanBasic || plans[1] != PlanAdvanced || plans[2] != PlanBusiness {
		t.Errorf("unexpected plan order: %v", plans)
	}
}
