package reconciler

import (
	"math"
	"strconv"
	"strings"

	"github.com/alimikegami/point-of-sales/checkout-service/internal/domain"
)

// Clamp turns raw buyer input into a point amount that may be applied:
// digits only, no more than the balance or the payable ceiling, rounded down
// to a multiple of unit and never negative.
//
// Rounding happens after the minimum is taken so the result stays a multiple
// of unit even when balance or ceiling are not.
func Clamp(rawInput string, availableBalance, payableCeiling, unit int64) int64 {
	if unit <= 0 {
		unit = 1
	}

	v := min(parseDigits(rawInput), availableBalance, payableCeiling)
	if v <= 0 {
		return 0
	}

	return v - v%unit
}

func parseDigits(raw string) int64 {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0
	}

	v, err := strconv.ParseInt(b.String(), 10, 64)
	if err != nil {
		// only a range error is possible here
		return math.MaxInt64
	}
	return v
}

func ComputePayableCeiling(itemTotal, deliveryFee, couponDiscount int64) int64 {
	return max(0, itemTotal+deliveryFee-couponDiscount)
}

func FinalAmount(itemTotal, deliveryFee, usedPoints, couponDiscount int64) int64 {
	return max(0, itemTotal+deliveryFee-usedPoints-couponDiscount)
}

// Derive is the only place DiscountState is computed.
func Derive(draft domain.OrderDraft, coupon *domain.CouponApplication, usedPoints int64) domain.DiscountState {
	var couponDiscount int64
	if coupon != nil {
		couponDiscount = coupon.DiscountAmount
	}

	return domain.DiscountState{
		UsedPoints:     usedPoints,
		CouponDiscount: couponDiscount,
		PayableCeiling: ComputePayableCeiling(draft.ItemTotalAmount, draft.TotalDeliveryFee, couponDiscount),
		FinalAmount:    FinalAmount(draft.ItemTotalAmount, draft.TotalDeliveryFee, usedPoints, couponDiscount),
	}
}
