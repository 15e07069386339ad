package dto

import "github.com/alimikegami/point-of-sales/checkout-service/internal/domain"

// BackendResponse is the envelope every collaborator service answers with.
type BackendResponse[T any] struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type TotalPointsResponse struct {
	TotalActivePoints int64 `json:"total_active_points"`
}

type ApplyPointsRequest struct {
	OrderID        int64 `json:"order_id"`
	BuyerID        int64 `json:"buyer_id"`
	UsePointAmount int64 `json:"use_point_amount"`
}

type CouponListResponse struct {
	Coupons []domain.Coupon `json:"coupons"`
}

type CouponUsableResponse struct {
	Usable bool   `json:"usable"`
	Reason string `json:"reason"`
}

type CancelCouponRequest struct {
	OrderID int64 `json:"order_id"`
}

type CompleteOrderRequest struct {
	AddressID  int64   `json:"address_id"`
	CouponCode *string `json:"coupon_code"`
}

type VerifyRequest struct {
	ImpUID              string  `json:"imp_uid"`
	MerchantUID         string  `json:"merchant_uid"`
	OrderID             int64   `json:"order_id"`
	SelectedAddressID   int64   `json:"selected_address_id"`
	SelectedCartItemIDs []int64 `json:"selected_cart_item_ids"`
	UsePointAmount      int64   `json:"use_point_amount"`
}

type VerifyResponse struct {
	Success bool `json:"success"`
}
