package reconciler

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/alimikegami/point-of-sales/checkout-service/internal/domain"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/infrastructure/metrics"
	"github.com/alimikegami/point-of-sales/checkout-service/pkg/errs"
	"github.com/rs/zerolog/log"
)

type PointLedgerClient interface {
	TotalActivePoints(ctx context.Context, buyer domain.Buyer) (int64, error)
	// ApplyPoints reserves amount against the draft. Zero cancels the reservation.
	ApplyPoints(ctx context.Context, buyer domain.Buyer, orderID int64, amount int64) error
}

type CouponClient interface {
	ListApplicable(ctx context.Context, buyer domain.Buyer, orderID int64) ([]domain.Coupon, error)
	CheckUsable(ctx context.Context, buyer domain.Buyer, orderID int64, code string) (usable bool, reason string, err error)
	Cancel(ctx context.Context, buyer domain.Buyer, orderID int64) error
}

// Snapshot is a consistent read of the reconciler for rendering.
type Snapshot struct {
	Input    string
	Applied  int64
	Ledger   domain.PointLedger
	Coupon   *domain.CouponApplication
	State    domain.DiscountState
	Dirty    bool
	InFlight bool
}

// Reconciler keeps the applied point amount consistent with the balance, the
// coupon and the order totals for one draft order.
//
// Only one mutation may be outstanding at a time. The lock is released while
// a collaborator call is in progress, so readers never wait on the network.
type Reconciler struct {
	points  PointLedgerClient
	coupons CouponClient
	unit    int64

	mu       sync.Mutex
	buyer    domain.Buyer
	draft    domain.OrderDraft
	balance  int64
	coupon   *domain.CouponApplication
	input    string
	applied  int64
	inFlight bool
}

func New(points PointLedgerClient, coupons CouponClient, unit int64, buyer domain.Buyer, draft domain.OrderDraft, balance int64) *Reconciler {
	if unit <= 0 {
		unit = 1
	}

	r := &Reconciler{
		points:  points,
		coupons: coupons,
		unit:    unit,
		buyer:   buyer,
		draft:   draft,
		balance: balance,
		applied: draft.UsedPointAmount,
		input:   strconv.FormatInt(draft.UsedPointAmount, 10),
	}
	if draft.CouponCode != nil {
		r.coupon = &domain.CouponApplication{
			Code:           *draft.CouponCode,
			DiscountAmount: draft.CouponDiscount,
			OrderID:        draft.ID,
		}
	}

	return r
}

func (r *Reconciler) begin() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.inFlight {
		return errs.ErrMutationInFlight
	}
	r.inFlight = true

	return nil
}

func (r *Reconciler) end() {
	r.mu.Lock()
	r.inFlight = false
	r.mu.Unlock()
}

func (r *Reconciler) ceilingLocked() int64 {
	return Derive(r.draft, r.coupon, r.applied).PayableCeiling
}

func (r *Reconciler) clampLocked(raw string) int64 {
	return Clamp(raw, r.balance, r.ceilingLocked(), r.unit)
}

// SetBuyer swaps the buyer credentials used for collaborator calls, e.g.
// after the buyer's token was refreshed.
func (r *Reconciler) SetBuyer(buyer domain.Buyer) {
	r.mu.Lock()
	r.buyer = buyer
	r.mu.Unlock()
}

// SetInput records what the buyer typed without applying it.
func (r *Reconciler) SetInput(raw string) Snapshot {
	r.mu.Lock()
	r.input = raw
	r.mu.Unlock()

	return r.Snapshot()
}

// ApplyPoints clamps raw, submits it to the ledger and, once the ledger has
// accepted it, makes it both the input and the applied amount. On failure
// nothing is committed and the input stays dirty.
func (r *Reconciler) ApplyPoints(ctx context.Context, raw string) (int64, error) {
	if err := r.begin(); err != nil {
		return 0, err
	}
	defer r.end()

	r.mu.Lock()
	r.input = raw
	candidate := r.clampLocked(raw)
	buyer, orderID := r.buyer, r.draft.ID
	r.mu.Unlock()

	if err := r.points.ApplyPoints(ctx, buyer, orderID, candidate); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("component", "ApplyPoints").Int64("order_id", orderID).Msg("")
		return 0, err
	}

	r.commitApplied(candidate)
	r.refreshBalance(ctx)

	return candidate, nil
}

// UseAllPoints applies as many points as the balance and ceiling allow.
func (r *Reconciler) UseAllPoints(ctx context.Context) (int64, error) {
	r.mu.Lock()
	raw := strconv.FormatInt(r.balance, 10)
	r.mu.Unlock()

	return r.ApplyPoints(ctx, raw)
}

func (r *Reconciler) CancelPoints(ctx context.Context) error {
	if err := r.begin(); err != nil {
		return err
	}
	defer r.end()

	r.mu.Lock()
	buyer, orderID := r.buyer, r.draft.ID
	r.mu.Unlock()

	if err := r.points.ApplyPoints(ctx, buyer, orderID, 0); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("component", "CancelPoints").Int64("order_id", orderID).Msg("")
		return err
	}

	r.commitApplied(0)
	r.refreshBalance(ctx)

	return nil
}

// ApplyCoupon validates coupon against the draft and makes it the draft's
// only coupon, replacing any previous one. The applied points are re-clamped
// afterwards because the payable ceiling may have dropped.
func (r *Reconciler) ApplyCoupon(ctx context.Context, coupon domain.Coupon) error {
	if err := r.begin(); err != nil {
		return err
	}
	defer r.end()

	r.mu.Lock()
	buyer, orderID := r.buyer, r.draft.ID
	r.mu.Unlock()

	usable, reason, err := r.coupons.CheckUsable(ctx, buyer, orderID, coupon.Code)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("component", "ApplyCoupon").Int64("order_id", orderID).Msg("")
		return err
	}
	if !usable {
		return errs.NewBusinessError(errs.ErrCouponNotUsable, reason)
	}

	r.mu.Lock()
	r.coupon = &domain.CouponApplication{
		Code:           coupon.Code,
		DiscountAmount: coupon.DiscountAmount,
		OrderID:        orderID,
	}
	r.mu.Unlock()

	return r.onCouponChange(ctx)
}

func (r *Reconciler) CancelCoupon(ctx context.Context) error {
	if err := r.begin(); err != nil {
		return err
	}
	defer r.end()

	r.mu.Lock()
	buyer, orderID := r.buyer, r.draft.ID
	hasCoupon := r.coupon != nil
	r.mu.Unlock()

	if !hasCoupon {
		return errs.ErrNoCouponApplied
	}

	if err := r.coupons.Cancel(ctx, buyer, orderID); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("component", "CancelCoupon").Int64("order_id", orderID).Msg("")
		return err
	}

	r.mu.Lock()
	r.coupon = nil
	r.mu.Unlock()

	return r.onCouponChange(ctx)
}

// onCouponChange runs after the coupon request has finished. If the applied
// points no longer fit under the new ceiling the reduced amount is submitted
// to the ledger; it only becomes the applied amount once the ledger accepts it.
func (r *Reconciler) onCouponChange(ctx context.Context) error {
	r.mu.Lock()
	ceiling := r.ceilingLocked()
	if r.applied <= ceiling {
		r.mu.Unlock()
		return nil
	}
	previous := r.applied
	reduced := r.clampLocked(strconv.FormatInt(r.applied, 10))
	buyer, orderID := r.buyer, r.draft.ID
	r.mu.Unlock()

	if err := r.points.ApplyPoints(ctx, buyer, orderID, reduced); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("component", "onCouponChange").
			Int64("order_id", orderID).Int64("applied", previous).Int64("reduced", reduced).Msg("")
		return fmt.Errorf("re-applying points after coupon change: %w", err)
	}

	metrics.PointReclamps.Inc()
	log.Ctx(ctx).Info().Str("component", "onCouponChange").
		Int64("order_id", orderID).Int64("applied", previous).Int64("reduced", reduced).Msg("points re-clamped")

	r.commitApplied(reduced)
	r.refreshBalance(ctx)

	return nil
}

func (r *Reconciler) commitApplied(amount int64) {
	r.mu.Lock()
	r.applied = amount
	r.input = strconv.FormatInt(amount, 10)
	r.mu.Unlock()
}

// RefreshBalance re-reads the balance from the ledger.
func (r *Reconciler) RefreshBalance(ctx context.Context) error {
	r.mu.Lock()
	buyer := r.buyer
	r.mu.Unlock()

	balance, err := r.points.TotalActivePoints(ctx, buyer)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.balance = balance
	r.mu.Unlock()

	return nil
}

// refreshBalance is the best-effort re-query after a confirmed mutation. The
// mutation itself already succeeded, so a failed read only leaves the cached
// balance in place.
func (r *Reconciler) refreshBalance(ctx context.Context) {
	if err := r.RefreshBalance(ctx); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("component", "refreshBalance").Msg("keeping cached balance")
	}
}

// IsDirty reports whether the input differs from the last amount the ledger
// confirmed.
func (r *Reconciler) IsDirty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.dirtyLocked()
}

func (r *Reconciler) dirtyLocked() bool {
	return r.clampLocked(r.input) != r.applied
}

// Validate checks every condition that must hold before a payment may start.
func (r *Reconciler) Validate() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.inFlight {
		return errs.ErrMutationInFlight
	}
	return r.validateLocked()
}

// Hold validates the discount and keeps every mutation out until release is
// called. The returned state and coupon stay current while held.
func (r *Reconciler) Hold() (state domain.DiscountState, coupon *domain.CouponApplication, release func(), err error) {
	if err = r.begin(); err != nil {
		return state, nil, nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err = r.validateLocked(); err != nil {
		r.inFlight = false
		return state, nil, nil, err
	}
	if r.coupon != nil {
		c := *r.coupon
		coupon = &c
	}

	return Derive(r.draft, r.coupon, r.applied), coupon, r.end, nil
}

func (r *Reconciler) validateLocked() error {
	if r.dirtyLocked() {
		return errs.ErrDiscountDirty
	}
	if r.applied < 0 || r.applied%r.unit != 0 || r.applied > r.balance || r.applied > r.ceilingLocked() {
		return errs.ErrDiscountInvalid
	}

	return nil
}

func (r *Reconciler) State() domain.DiscountState {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Derive(r.draft, r.coupon, r.applied)
}

func (r *Reconciler) Coupon() *domain.CouponApplication {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.coupon == nil {
		return nil
	}
	c := *r.coupon
	return &c
}

func (r *Reconciler) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	var coupon *domain.CouponApplication
	if r.coupon != nil {
		c := *r.coupon
		coupon = &c
	}

	return Snapshot{
		Input:   r.input,
		Applied: r.applied,
		Ledger: domain.PointLedger{
			AvailableBalance: r.balance,
			ReservedForOrder: r.applied,
		},
		Coupon:   coupon,
		State:    Derive(r.draft, r.coupon, r.applied),
		Dirty:    r.dirtyLocked(),
		InFlight: r.inFlight,
	}
}
