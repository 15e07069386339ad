package service

import (
	"context"

	"github.com/alimikegami/point-of-sales/checkout-service/internal/domain"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/dto"
)

// NoVersion skips the If-Match check on mutating calls.
const NoVersion int64 = -1

type CheckoutService interface {
	StartCheckout(ctx context.Context, buyer domain.Buyer, orderID int64) (res dto.CheckoutResponse, err error)
	GetCheckout(ctx context.Context, buyer domain.Buyer, orderID int64) (res dto.CheckoutResponse, err error)
	SelectAddress(ctx context.Context, buyer domain.Buyer, orderID int64, version int64, req dto.SelectAddressRequest) (res dto.CheckoutResponse, err error)

	SetPointInput(ctx context.Context, buyer domain.Buyer, orderID int64, version int64, req dto.PointInputRequest) (res dto.CheckoutResponse, err error)
	ApplyPoints(ctx context.Context, buyer domain.Buyer, orderID int64, version int64, req dto.PointInputRequest) (res dto.CheckoutResponse, err error)
	UseAllPoints(ctx context.Context, buyer domain.Buyer, orderID int64, version int64) (res dto.CheckoutResponse, err error)
	CancelPoints(ctx context.Context, buyer domain.Buyer, orderID int64, version int64) (res dto.CheckoutResponse, err error)

	ListCoupons(ctx context.Context, buyer domain.Buyer, orderID int64) (coupons []domain.Coupon, err error)
	ApplyCoupon(ctx context.Context, buyer domain.Buyer, orderID int64, version int64, req dto.ApplyCouponRequest) (res dto.CheckoutResponse, err error)
	CancelCoupon(ctx context.Context, buyer domain.Buyer, orderID int64, version int64) (res dto.CheckoutResponse, err error)

	RequestPayment(ctx context.Context, buyer domain.Buyer, orderID int64, version int64, req dto.PaymentRequest) (res dto.PaymentResponse, err error)
	HandlePaymentCallback(ctx context.Context, buyer domain.Buyer, orderID int64, merchantUID string, req dto.PaymentCallbackRequest) (attempt domain.PaymentSession, err error)
	RetryCompletion(ctx context.Context, buyer domain.Buyer, orderID int64, merchantUID string) (attempt domain.PaymentSession, err error)
	GetPayments(ctx context.Context, buyer domain.Buyer, orderID int64) (attempts []domain.PaymentSession, err error)
	MidtransPaymentWebhook(ctx context.Context, req dto.PaymentNotification) (err error)

	Leave(ctx context.Context, buyer domain.Buyer, orderID int64, req dto.LeaveRequest) (res dto.LeaveResponse, err error)
	SweepExpiredSessions(ctx context.Context) (expired int)
	InvalidatePointBalance(ctx context.Context, ev dto.PointLedgerEvent) (err error)

	// Wait blocks until background notifications have been sent.
	Wait()
}
