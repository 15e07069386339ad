package reconciler

import (
	"math"
	"strconv"
	"testing"

	"github.com/alimikegami/point-of-sales/checkout-service/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestClamp(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		balance  int64
		ceiling  int64
		unit     int64
		expected int64
	}{
		{"plain", "12000", 50000, 100000, 10, 12000},
		{"truncates to unit", "12345", 50000, 100000, 10, 12340},
		{"strips non digits", "12,345 P", 50000, 100000, 10, 12340},
		{"minus sign is not a digit", "-500", 50000, 100000, 10, 500},
		{"empty", "", 50000, 100000, 10, 0},
		{"letters only", "abc", 50000, 100000, 10, 0},
		{"limited by balance", "99999", 12000, 100000, 10, 12000},
		{"limited by ceiling", "99999", 50000, 33000, 10, 33000},
		{"balance not a unit multiple", "99999", 12005, 100000, 10, 12000},
		{"truncated after the min", "99999", 12345, 100000, 10, 12340},
		{"ceiling not a unit multiple", "99999", 50000, 33333, 100, 33300},
		{"zero ceiling", "5000", 50000, 0, 10, 0},
		{"negative ceiling", "5000", 50000, -10, 10, 0},
		{"unit zero behaves like one", "12345", 50000, 100000, 0, 12345},
		{"overflowing input", "99999999999999999999999", 12000, 100000, 10, 12000},
	}

	for _, tc := range tests {
		require.Equal(t, tc.expected, Clamp(tc.raw, tc.balance, tc.ceiling, tc.unit), tc.name)
	}
}

func TestClampIdempotent(t *testing.T) {
	units := []int64{1, 10, 100, 1000}
	balances := []int64{0, 7, 12000, 12005, 53000}
	ceilings := []int64{0, 999, 33000, 53000, 95000}

	for _, unit := range units {
		for _, bal := range balances {
			for _, ceil := range ceilings {
				for x := int64(0); x <= 60000; x += 1237 {
					once := Clamp(strconv.FormatInt(x, 10), bal, ceil, unit)
					twice := Clamp(strconv.FormatInt(once, 10), bal, ceil, unit)
					require.Equal(t, once, twice, "x=%d bal=%d ceil=%d unit=%d", x, bal, ceil, unit)
				}
			}
		}
	}
}

func TestClampInvariants(t *testing.T) {
	units := []int64{1, 10, 100}
	for _, unit := range units {
		for x := int64(0); x <= 200000; x += 3331 {
			for _, bal := range []int64{0, 12005, 40000, math.MaxInt64} {
				for _, ceil := range []int64{0, 33001, 53000} {
					v := Clamp(strconv.FormatInt(x, 10), bal, ceil, unit)
					require.GreaterOrEqual(t, v, int64(0))
					require.Zero(t, v%unit)
					require.LessOrEqual(t, v, bal)
					require.LessOrEqual(t, v, ceil)
				}
			}
		}
	}
}

func TestComputePayableCeiling(t *testing.T) {
	require.Equal(t, int64(53000), ComputePayableCeiling(50000, 3000, 0))
	require.Equal(t, int64(43000), ComputePayableCeiling(50000, 3000, 10000))
	require.Equal(t, int64(0), ComputePayableCeiling(5000, 0, 10000))
}

func TestDerive(t *testing.T) {
	draft := domain.OrderDraft{ID: 1, ItemTotalAmount: 100000}

	state := Derive(draft, nil, 12000)
	require.Equal(t, domain.DiscountState{UsedPoints: 12000, PayableCeiling: 100000, FinalAmount: 88000}, state)

	state = Derive(draft, &domain.CouponApplication{Code: "WELCOME", DiscountAmount: 5000}, 12000)
	require.Equal(t, int64(95000), state.PayableCeiling)
	require.Equal(t, int64(83000), state.FinalAmount)

	state = Derive(domain.OrderDraft{ItemTotalAmount: 1000}, &domain.CouponApplication{DiscountAmount: 5000}, 0)
	require.Equal(t, int64(0), state.FinalAmount)
}
