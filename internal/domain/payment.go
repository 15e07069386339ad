package domain

import "github.com/lib/pq"

type PaymentState string

const (
	PaymentIdle           PaymentState = "IDLE"
	PaymentRequested      PaymentState = "REQUESTED"
	PaymentGatewaySuccess PaymentState = "GATEWAY_SUCCESS"
	PaymentGatewayFailed  PaymentState = "GATEWAY_FAILED"
	PaymentVerifying      PaymentState = "VERIFYING"
	PaymentVerified       PaymentState = "VERIFIED"
	PaymentVerifyFailed   PaymentState = "VERIFY_FAILED"
	PaymentCompleted      PaymentState = "COMPLETED"
)

var paymentTransitions = map[PaymentState][]PaymentState{
	PaymentIdle:           {PaymentRequested, PaymentGatewayFailed},
	PaymentRequested:      {PaymentGatewaySuccess, PaymentGatewayFailed},
	PaymentGatewaySuccess: {PaymentVerifying},
	PaymentVerifying:      {PaymentVerified, PaymentVerifyFailed},
	PaymentVerified:       {PaymentCompleted},
}

func (s PaymentState) CanTransitionTo(next PaymentState) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the attempt can no longer change state. VERIFIED
// is not terminal: completion may still be retried.
func (s PaymentState) Terminal() bool {
	switch s {
	case PaymentGatewayFailed, PaymentVerifyFailed, PaymentCompleted:
		return true
	}
	return false
}

func (s PaymentState) Failed() bool {
	return s == PaymentGatewayFailed || s == PaymentVerifyFailed
}

// PaymentDescriptor is everything the gateway needs to open a payment.
type PaymentDescriptor struct {
	GatewayProvider string
	PayMethod       string
	MerchantTxID    string
	Amount          int64
	OrderName       string
	Buyer           Buyer
	Items           []OrderItem
}

// GatewayReceipt is what the gateway hands back when a payment is opened.
type GatewayReceipt struct {
	GatewayTxID string `json:"gateway_tx_id"`
	// RedirectURL or QRString is filled depending on the payment method.
	RedirectURL string `json:"redirect_url,omitempty"`
	QRString    string `json:"qr_string,omitempty"`
	ExpiredAt   int64  `json:"expired_at,omitempty"`
}

// GatewayResult is the gateway callback for one attempt.
type GatewayResult struct {
	MerchantTxID string
	GatewayTxID  string
	Success      bool
	ErrorMessage string
}

// PaymentSession is one payment attempt. A failed attempt is never retried
// in place; the buyer starts a new one with a new MerchantTxID.
type PaymentSession struct {
	ID              int64         `db:"id" json:"-"`
	MerchantTxID    string        `db:"merchant_tx_id" json:"merchant_uid"`
	OrderID         int64         `db:"order_id" json:"order_id"`
	BuyerID         int64         `db:"buyer_id" json:"-"`
	GatewayProvider string        `db:"gateway_provider" json:"gateway_provider"`
	PayMethod       string        `db:"pay_method" json:"pay_method"`
	Amount          int64         `db:"amount" json:"amount"`
	UsedPoints      int64         `db:"used_points" json:"used_points"`
	CouponCode      *string       `db:"coupon_code" json:"coupon_code"`
	AddressID       int64         `db:"address_id" json:"address_id"`
	CartItemIDs     pq.Int64Array `db:"cart_item_ids" json:"cart_item_ids"`
	State           PaymentState  `db:"state" json:"state"`
	GatewayTxID     *string       `db:"gateway_tx_id" json:"imp_uid"`
	FailureReason   *string       `db:"failure_reason" json:"failure_reason"`
	CreatedAt       int64         `db:"created_at" json:"created_at"`
	UpdatedAt       int64         `db:"updated_at" json:"updated_at"`
}
