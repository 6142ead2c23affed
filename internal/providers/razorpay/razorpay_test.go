package razorpay

import (
	"testing"

	"bursar/internal/providers"
)

func TestMapOrderStatus(t *testing.T) {
	cases := []struct {
		status string
		want   providers.Status
	}{
		{"paid", providers.StatusPaid},
		{"created", providers.StatusNotPaid},
		{"attempted", providers.StatusUnknown},
		{"", providers.StatusUnknown},
		{"refunded", providers.StatusUnknown},
	}
	for _, tc := range cases {
		if got := mapOrderStatus(tc.status); got != tc.want {
			t.Errorf("mapOrderStatus(%q) = %s, want %s", tc.status, got, tc.want)
		}
	}
}

func TestAdapterName(t *testing.T) {
	a := New(Config{KeyID: "rzp_test", KeySecret: "secret"})
	if a.Name() != "razorpay" {
		t.Errorf("unexpected adapter name %s", a.Name())
	}
}
