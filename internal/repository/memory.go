package repository

import (
	"context"
	"sync"

	"github.com/alimikegami/point-of-sales/checkout-service/internal/domain"
)

// MemoryPaymentRepository keeps attempts in process memory. It is used when
// no database is configured.
type MemoryPaymentRepository struct {
	mu     sync.RWMutex
	nextID int64
	byTxID map[string]*domain.PaymentSession
	order  map[int64][]string
}

func CreateMemoryPaymentRepository() *MemoryPaymentRepository {
	return &MemoryPaymentRepository{
		byTxID: make(map[string]*domain.PaymentSession),
		order:  make(map[int64][]string),
	}
}

func (r *MemoryPaymentRepository) AddAttempt(ctx context.Context, data domain.PaymentSession) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	data.ID = r.nextID
	r.byTxID[data.MerchantTxID] = &data
	r.order[data.OrderID] = append(r.order[data.OrderID], data.MerchantTxID)

	return data.ID, nil
}

func (r *MemoryPaymentRepository) UpdateAttempt(ctx context.Context, data domain.PaymentSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byTxID[data.MerchantTxID]
	if !ok {
		return nil
	}
	existing.State = data.State
	existing.GatewayTxID = data.GatewayTxID
	existing.FailureReason = data.FailureReason
	existing.UpdatedAt = data.UpdatedAt

	return nil
}

func (r *MemoryPaymentRepository) GetAttemptByMerchantTxID(ctx context.Context, merchantTxID string) (domain.PaymentSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.byTxID[merchantTxID]; ok {
		return *p, nil
	}
	return domain.PaymentSession{}, nil
}

func (r *MemoryPaymentRepository) GetLatestAttemptByOrderID(ctx context.Context, orderID int64) (domain.PaymentSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.order[orderID]
	if len(ids) == 0 {
		return domain.PaymentSession{}, nil
	}
	return *r.byTxID[ids[len(ids)-1]], nil
}

func (r *MemoryPaymentRepository) GetAttemptsByOrderID(ctx context.Context, orderID int64) ([]domain.PaymentSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.order[orderID]
	all := make([]domain.PaymentSession, 0, len(ids))
	for _, id := range ids {
		all = append(all, *r.byTxID[id])
	}
	return all, nil
}
