package service

import (
	"context"
	"sync"

	"github.com/alimikegami/point-of-sales/checkout-service/internal/domain"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/dto"
	"github.com/alimikegami/point-of-sales/checkout-service/pkg/errs"
)

type fakeLedger struct {
	mu      sync.Mutex
	balance int64
	applied []int64
	err     error
}

func (f *fakeLedger) TotalActivePoints(ctx context.Context, buyer domain.Buyer) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, nil
}

func (f *fakeLedger) ApplyPoints(ctx context.Context, buyer domain.Buyer, orderID int64, amount int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.applied = append(f.applied, amount)
	return nil
}

type fakeCoupons struct {
	mu      sync.Mutex
	list    []domain.Coupon
	checked []string
}

func (f *fakeCoupons) ListApplicable(ctx context.Context, buyer domain.Buyer, orderID int64) ([]domain.Coupon, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Coupon(nil), f.list...), nil
}

func (f *fakeCoupons) CheckUsable(ctx context.Context, buyer domain.Buyer, orderID int64, code string) (bool, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checked = append(f.checked, code)
	return true, "", nil
}

func (f *fakeCoupons) Cancel(ctx context.Context, buyer domain.Buyer, orderID int64) error {
	return nil
}

type fakeDrafts struct {
	mu     sync.Mutex
	drafts map[int64]domain.OrderDraft
	// gate, when set, holds the next GetOrder until it is closed.
	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeDrafts) GetOrder(ctx context.Context, buyer domain.Buyer, orderID int64) (domain.OrderDraft, error) {
	f.mu.Lock()
	gate, entered := f.gate, f.entered
	f.gate, f.entered = nil, nil
	draft, ok := f.drafts[orderID]
	f.mu.Unlock()

	if gate != nil {
		close(entered)
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.OrderDraft{}, ctx.Err()
		}
	}

	if !ok {
		return domain.OrderDraft{}, errs.ErrNotFound
	}
	return draft, nil
}

type fakeGateway struct {
	mu      sync.Mutex
	charged []domain.PaymentDescriptor
	// during, when set, runs while the gateway is opening the payment.
	during func()
}

func (f *fakeGateway) Provider() string { return "midtrans" }

func (f *fakeGateway) RequestPay(ctx context.Context, desc domain.PaymentDescriptor) (domain.GatewayReceipt, error) {
	f.mu.Lock()
	during := f.during
	f.charged = append(f.charged, desc)
	f.mu.Unlock()

	if during != nil {
		during()
	}
	return domain.GatewayReceipt{GatewayTxID: "gw-" + desc.MerchantTxID}, nil
}

func (f *fakeGateway) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.charged)
}

type fakeOrderBackend struct {
	mu        sync.Mutex
	verified  bool
	verifies  int
	completed []int64
	// requireToken rejects calls without a bearer token like the order
	// service does.
	requireToken bool
	// gate, when set, holds the next Verify until it is closed.
	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeOrderBackend) Verify(ctx context.Context, buyer domain.Buyer, req dto.VerifyRequest) (bool, error) {
	f.mu.Lock()
	gate, entered := f.gate, f.entered
	f.gate, f.entered = nil, nil
	f.mu.Unlock()

	if gate != nil {
		close(entered)
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifies++
	if f.requireToken && buyer.Token == "" {
		return false, errs.ErrNotLoggedIn
	}
	return f.verified, nil
}

func (f *fakeOrderBackend) CompleteOrder(ctx context.Context, buyer domain.Buyer, orderID int64, addressID int64, couponCode *string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.requireToken && buyer.Token == "" {
		return "", errs.ErrNotLoggedIn
	}
	f.completed = append(f.completed, orderID)
	return "order completed", nil
}

func (f *fakeOrderBackend) completions() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.completed...)
}

type fakeCleaner struct {
	mu      sync.Mutex
	deleted int
}

func (f *fakeCleaner) DeleteTemporaryOrder(ctx context.Context, buyer domain.Buyer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted++
	return nil
}

func (f *fakeCleaner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deleted
}

type fakeEvents struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeEvents) Publish(ctx context.Context, eventType string, key string, data interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
	return nil
}

func (f *fakeEvents) list() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []int64
}

func (f *fakeMailer) SendPaymentConfirmation(ctx context.Context, buyer domain.Buyer, attempt domain.PaymentSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, attempt.OrderID)
	return nil
}

func (f *fakeMailer) list() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.sent...)
}

type fakeBalances struct {
	mu          sync.Mutex
	invalidated []int64
}

func (f *fakeBalances) InvalidateBalance(ctx context.Context, buyerID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, buyerID)
	return nil
}
