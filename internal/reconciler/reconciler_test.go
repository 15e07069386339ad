package reconciler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alimikegami/point-of-sales/checkout-service/internal/domain"
	"github.com/alimikegami/point-of-sales/checkout-service/pkg/errs"
	"github.com/stretchr/testify/require"
)

type fakeLedger struct {
	mu       sync.Mutex
	balance  int64
	applyErr error
	applied  []int64
	block    chan struct{}
	entered  chan struct{}
}

func (f *fakeLedger) TotalActivePoints(ctx context.Context, buyer domain.Buyer) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, nil
}

func (f *fakeLedger) ApplyPoints(ctx context.Context, buyer domain.Buyer, orderID int64, amount int64) error {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return f.applyErr
	}
	f.applied = append(f.applied, amount)
	return nil
}

func (f *fakeLedger) calls() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.applied...)
}

type fakeCoupons struct {
	usable    bool
	reason    string
	checkErr  error
	cancelErr error
	cancelled int
}

func (f *fakeCoupons) ListApplicable(ctx context.Context, buyer domain.Buyer, orderID int64) ([]domain.Coupon, error) {
	return nil, nil
}

func (f *fakeCoupons) CheckUsable(ctx context.Context, buyer domain.Buyer, orderID int64, code string) (bool, string, error) {
	return f.usable, f.reason, f.checkErr
}

func (f *fakeCoupons) Cancel(ctx context.Context, buyer domain.Buyer, orderID int64) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled++
	return nil
}

var testBuyer = domain.Buyer{ID: 7, Name: "Budi"}

func TestMaxPointsThenCoupon(t *testing.T) {
	ledger := &fakeLedger{balance: 12000}
	coupons := &fakeCoupons{usable: true}
	draft := domain.OrderDraft{ID: 1, ItemTotalAmount: 100000, TotalDeliveryFee: 0}
	r := New(ledger, coupons, 10, testBuyer, draft, 12000)

	applied, err := r.UseAllPoints(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(12000), applied)
	require.Equal(t, int64(88000), r.State().FinalAmount)
	require.False(t, r.IsDirty())

	err = r.ApplyCoupon(context.Background(), domain.Coupon{Code: "HEMAT5", DiscountAmount: 5000})
	require.NoError(t, err)

	state := r.State()
	require.Equal(t, int64(95000), state.PayableCeiling)
	require.Equal(t, int64(12000), state.UsedPoints)
	require.Equal(t, int64(83000), state.FinalAmount)
	require.Equal(t, []int64{12000}, ledger.calls())
	require.NoError(t, r.Validate())
}

func TestCancelCouponKeepsPointsUnderRaisedCeiling(t *testing.T) {
	code := "DISKON10"
	ledger := &fakeLedger{balance: 60000}
	coupons := &fakeCoupons{usable: true}
	draft := domain.OrderDraft{
		ID:               2,
		ItemTotalAmount:  50000,
		TotalDeliveryFee: 3000,
		UsedPointAmount:  40000,
		CouponCode:       &code,
		CouponDiscount:   10000,
	}
	r := New(ledger, coupons, 10, testBuyer, draft, 60000)
	require.NoError(t, r.Validate())

	require.NoError(t, r.CancelCoupon(context.Background()))

	state := r.State()
	require.Equal(t, int64(40000), state.UsedPoints)
	require.Equal(t, int64(53000), state.PayableCeiling)
	require.Equal(t, int64(13000), state.FinalAmount)
	require.Empty(t, ledger.calls())
	require.Equal(t, 1, coupons.cancelled)
	require.Nil(t, r.Coupon())
}

func TestCouponRaisingDiscountReclampsPoints(t *testing.T) {
	ledger := &fakeLedger{balance: 60000}
	coupons := &fakeCoupons{usable: true}
	draft := domain.OrderDraft{ID: 3, ItemTotalAmount: 50000, TotalDeliveryFee: 3000, UsedPointAmount: 40000}
	r := New(ledger, coupons, 10, testBuyer, draft, 60000)

	require.NoError(t, r.ApplyCoupon(context.Background(), domain.Coupon{Code: "BIG20", DiscountAmount: 20000}))

	state := r.State()
	require.Equal(t, int64(33000), state.PayableCeiling)
	require.Equal(t, int64(33000), state.UsedPoints)
	require.Equal(t, int64(0), state.FinalAmount)
	require.Equal(t, []int64{33000}, ledger.calls())
	require.False(t, r.IsDirty())
}

func TestReclampFailureLeavesConfirmedPointsAndBlocksPayment(t *testing.T) {
	ledger := &fakeLedger{balance: 60000, applyErr: errs.ErrUpstream}
	coupons := &fakeCoupons{usable: true}
	draft := domain.OrderDraft{ID: 3, ItemTotalAmount: 50000, TotalDeliveryFee: 3000, UsedPointAmount: 40000}
	r := New(ledger, coupons, 10, testBuyer, draft, 60000)

	err := r.ApplyCoupon(context.Background(), domain.Coupon{Code: "BIG20", DiscountAmount: 20000})
	require.ErrorIs(t, err, errs.ErrUpstream)

	snap := r.Snapshot()
	require.Equal(t, int64(40000), snap.Applied)
	require.NotNil(t, snap.Coupon)
	require.True(t, snap.Dirty)
	require.ErrorIs(t, r.Validate(), errs.ErrDiscountDirty)
}

func TestApplyPointsFailureKeepsInputDirty(t *testing.T) {
	ledger := &fakeLedger{balance: 20000}
	r := New(ledger, &fakeCoupons{}, 10, testBuyer, domain.OrderDraft{ID: 4, ItemTotalAmount: 50000}, 20000)

	_, err := r.ApplyPoints(context.Background(), "5000")
	require.NoError(t, err)

	ledger.applyErr = errs.ErrUpstream
	_, err = r.ApplyPoints(context.Background(), "7000")
	require.ErrorIs(t, err, errs.ErrUpstream)

	snap := r.Snapshot()
	require.Equal(t, int64(5000), snap.Applied)
	require.Equal(t, "7000", snap.Input)
	require.True(t, snap.Dirty)
	require.Equal(t, int64(45000), snap.State.FinalAmount)
}

func TestSetInputMarksDirtyUntilApplied(t *testing.T) {
	ledger := &fakeLedger{balance: 20000}
	r := New(ledger, &fakeCoupons{}, 10, testBuyer, domain.OrderDraft{ID: 5, ItemTotalAmount: 50000}, 20000)
	require.False(t, r.IsDirty())

	snap := r.SetInput("3005")
	require.True(t, snap.Dirty)
	require.ErrorIs(t, r.Validate(), errs.ErrDiscountDirty)

	// an input that clamps to the applied value is not a pending change
	r.SetInput("7")
	require.False(t, r.IsDirty())

	applied, err := r.ApplyPoints(context.Background(), "3005")
	require.NoError(t, err)
	require.Equal(t, int64(3000), applied)
	require.Equal(t, "3000", r.Snapshot().Input)
	require.NoError(t, r.Validate())
}

func TestCancelPoints(t *testing.T) {
	ledger := &fakeLedger{balance: 20000}
	draft := domain.OrderDraft{ID: 6, ItemTotalAmount: 50000, UsedPointAmount: 10000}
	r := New(ledger, &fakeCoupons{}, 10, testBuyer, draft, 20000)

	require.NoError(t, r.CancelPoints(context.Background()))
	require.Equal(t, []int64{0}, ledger.calls())
	require.Equal(t, int64(0), r.State().UsedPoints)
	require.Equal(t, int64(50000), r.State().FinalAmount)
}

func TestBalanceIsRequeriedAfterApply(t *testing.T) {
	ledger := &fakeLedger{balance: 20000}
	r := New(ledger, &fakeCoupons{}, 10, testBuyer, domain.OrderDraft{ID: 7, ItemTotalAmount: 50000}, 15000)

	_, err := r.ApplyPoints(context.Background(), "1000")
	require.NoError(t, err)
	require.Equal(t, int64(20000), r.Snapshot().Ledger.AvailableBalance)
	require.Equal(t, int64(19000), r.Snapshot().Ledger.DisplayBalance())
}

func TestCouponNotUsableShowsReason(t *testing.T) {
	coupons := &fakeCoupons{usable: false, reason: "Minimum belanja Rp 200.000"}
	r := New(&fakeLedger{}, coupons, 10, testBuyer, domain.OrderDraft{ID: 8, ItemTotalAmount: 50000}, 0)

	err := r.ApplyCoupon(context.Background(), domain.Coupon{Code: "MIN200", DiscountAmount: 20000})
	require.ErrorIs(t, err, errs.ErrCouponNotUsable)
	require.Equal(t, "Minimum belanja Rp 200.000", errs.PublicMessage(err))
	require.Nil(t, r.Coupon())
}

func TestCancelCouponWithoutCoupon(t *testing.T) {
	r := New(&fakeLedger{}, &fakeCoupons{}, 10, testBuyer, domain.OrderDraft{ID: 9}, 0)
	require.ErrorIs(t, r.CancelCoupon(context.Background()), errs.ErrNoCouponApplied)
}

func TestCancelCouponFailureKeepsCoupon(t *testing.T) {
	code := "DISKON10"
	coupons := &fakeCoupons{cancelErr: errors.New("timeout")}
	draft := domain.OrderDraft{ID: 10, ItemTotalAmount: 50000, CouponCode: &code, CouponDiscount: 10000}
	r := New(&fakeLedger{}, coupons, 10, testBuyer, draft, 0)

	require.Error(t, r.CancelCoupon(context.Background()))
	require.NotNil(t, r.Coupon())
	require.Equal(t, int64(40000), r.State().FinalAmount)
}

func TestOverlappingMutationsAreRejected(t *testing.T) {
	ledger := &fakeLedger{balance: 20000, block: make(chan struct{}), entered: make(chan struct{}, 1)}
	r := New(ledger, &fakeCoupons{usable: true}, 10, testBuyer, domain.OrderDraft{ID: 11, ItemTotalAmount: 50000}, 20000)

	done := make(chan error, 1)
	go func() {
		_, err := r.ApplyPoints(context.Background(), "1000")
		done <- err
	}()
	<-ledger.entered

	_, err := r.ApplyPoints(context.Background(), "2000")
	require.ErrorIs(t, err, errs.ErrMutationInFlight)
	require.ErrorIs(t, r.CancelPoints(context.Background()), errs.ErrMutationInFlight)
	require.ErrorIs(t, r.ApplyCoupon(context.Background(), domain.Coupon{Code: "X"}), errs.ErrMutationInFlight)
	require.ErrorIs(t, r.Validate(), errs.ErrMutationInFlight)
	require.True(t, r.Snapshot().InFlight)

	close(ledger.block)
	require.NoError(t, <-done)
	require.Equal(t, []int64{1000}, ledger.calls())
	require.False(t, r.Snapshot().InFlight)
}

func TestHoldKeepsMutationsOutUntilReleased(t *testing.T) {
	ledger := &fakeLedger{balance: 20000}
	r := New(ledger, &fakeCoupons{usable: true}, 10, testBuyer, domain.OrderDraft{ID: 12, ItemTotalAmount: 50000}, 20000)

	_, err := r.ApplyPoints(context.Background(), "5000")
	require.NoError(t, err)
	require.NoError(t, r.ApplyCoupon(context.Background(), domain.Coupon{Code: "HEMAT5", DiscountAmount: 5000}))

	state, coupon, release, err := r.Hold()
	require.NoError(t, err)
	require.Equal(t, int64(40000), state.FinalAmount)
	require.Equal(t, "HEMAT5", coupon.Code)

	_, err = r.ApplyPoints(context.Background(), "10000")
	require.ErrorIs(t, err, errs.ErrMutationInFlight)
	require.ErrorIs(t, r.CancelCoupon(context.Background()), errs.ErrMutationInFlight)
	_, _, _, err = r.Hold()
	require.ErrorIs(t, err, errs.ErrMutationInFlight)
	require.Equal(t, []int64{5000}, ledger.calls())

	release()
	_, err = r.ApplyPoints(context.Background(), "10000")
	require.NoError(t, err)
}

func TestHoldRejectsDirtyInput(t *testing.T) {
	r := New(&fakeLedger{balance: 20000}, &fakeCoupons{usable: true}, 10, testBuyer, domain.OrderDraft{ID: 13, ItemTotalAmount: 50000}, 20000)
	r.SetInput("3000")

	_, _, release, err := r.Hold()
	require.ErrorIs(t, err, errs.ErrDiscountDirty)
	require.Nil(t, release)
	require.False(t, r.Snapshot().InFlight)
}
