package dto

import "github.com/alimikegami/point-of-sales/checkout-service/internal/domain"

type PointResponse struct {
	Input            string `json:"input"`
	Applied          int64  `json:"applied"`
	AvailableBalance int64  `json:"available_balance"`
	DisplayBalance   int64  `json:"display_balance"`
	Unit             int64  `json:"unit"`
}

type CheckoutResponse struct {
	OrderID          int64                     `json:"order_id"`
	Version          int64                     `json:"version"`
	AddressID        int64                     `json:"address_id"`
	ItemTotalAmount  int64                     `json:"item_total_amount"`
	TotalDeliveryFee int64                     `json:"total_delivery_fee"`
	Items            []domain.OrderItem        `json:"items"`
	Points           PointResponse             `json:"points"`
	Coupon           *domain.CouponApplication `json:"coupon"`
	Discount         domain.DiscountState      `json:"discount"`
	Dirty            bool                      `json:"dirty"`
	InFlight         bool                      `json:"in_flight"`
	Payment          *domain.PaymentSession    `json:"payment"`
}

type PaymentResponse struct {
	Attempt domain.PaymentSession `json:"attempt"`
	Receipt domain.GatewayReceipt `json:"receipt"`
}

type LeaveResponse struct {
	CleanupSent bool `json:"cleanup_sent"`
}
