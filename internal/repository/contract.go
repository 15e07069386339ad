package repository

import (
	"context"

	"github.com/alimikegami/point-of-sales/checkout-service/internal/domain"
)

// PaymentRepository stores payment attempts. Lookups that find nothing
// return a zero PaymentSession (ID == 0) and a nil error.
type PaymentRepository interface {
	AddAttempt(ctx context.Context, data domain.PaymentSession) (id int64, err error)
	UpdateAttempt(ctx context.Context, data domain.PaymentSession) (err error)
	GetAttemptByMerchantTxID(ctx context.Context, merchantTxID string) (data domain.PaymentSession, err error)
	GetLatestAttemptByOrderID(ctx context.Context, orderID int64) (data domain.PaymentSession, err error)
	GetAttemptsByOrderID(ctx context.Context, orderID int64) (data []domain.PaymentSession, err error)
}
