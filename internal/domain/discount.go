package domain

// PointLedger is the buyer's point balance as last reported by the ledger.
// AvailableBalance is authoritative on the server; ReservedForOrder is the
// amount applied to the current draft and is only subtracted for display.
type PointLedger struct {
	AvailableBalance int64 `json:"available_balance"`
	ReservedForOrder int64 `json:"reserved_for_order"`
}

func (l PointLedger) DisplayBalance() int64 {
	if l.ReservedForOrder > l.AvailableBalance {
		return 0
	}
	return l.AvailableBalance - l.ReservedForOrder
}

type Coupon struct {
	Code           string `json:"code"`
	Name           string `json:"name"`
	DiscountAmount int64  `json:"discount_amount"`
	ExpiredAt      *int64 `json:"expired_at"`
}

// CouponApplication is the single coupon applied to a draft.
type CouponApplication struct {
	Code           string `json:"code"`
	DiscountAmount int64  `json:"discount_amount"`
	OrderID        int64  `json:"order_id"`
}

// DiscountState is derived from the draft, ledger and coupon application and
// is never stored.
type DiscountState struct {
	UsedPoints     int64 `json:"used_points"`
	CouponDiscount int64 `json:"coupon_discount"`
	PayableCeiling int64 `json:"payable_ceiling"`
	FinalAmount    int64 `json:"final_amount"`
}
