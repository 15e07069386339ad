package dto

type KafkaMessage struct {
	EventType string      `json:"event_type"`
	Data      interface{} `json:"data"`
}

// CheckoutEvent is published for every checkout outcome the rest of the
// platform may react to.
type CheckoutEvent struct {
	OrderID      int64   `json:"order_id"`
	BuyerID      int64   `json:"buyer_id"`
	MerchantTxID string  `json:"merchant_uid,omitempty"`
	Amount       int64   `json:"amount,omitempty"`
	UsedPoints   int64   `json:"used_points,omitempty"`
	CouponCode   *string `json:"coupon_code,omitempty"`
	Reason       string  `json:"reason,omitempty"`
	OccurredAt   int64   `json:"occurred_at"`
}

// PointLedgerEvent is consumed from the points service whenever a buyer's
// active balance changes.
type PointLedgerEvent struct {
	BuyerID int64 `json:"buyer_id"`
	OrderID int64 `json:"order_id"`
	Delta   int64 `json:"delta"`
}
