package dto

type SelectAddressRequest struct {
	AddressID int64 `json:"address_id"`
}

// PointInputRequest carries the raw text of the points field. It is parsed
// by the reconciler, not by the binder, so that "1,000" or "" are accepted.
type PointInputRequest struct {
	Value string `json:"value"`
}

type ApplyCouponRequest struct {
	Code string `json:"code"`
}

type PaymentRequest struct {
	PayMethod string `json:"pay_method"`
}

// PaymentCallbackRequest is the gateway result relayed by the storefront.
type PaymentCallbackRequest struct {
	ImpUID   string `json:"imp_uid"`
	Success  bool   `json:"success"`
	ErrorMsg string `json:"error_msg"`
}

type LeaveRequest struct {
	Signal         string `json:"signal"`
	NavigationType string `json:"navigation_type"`
}
