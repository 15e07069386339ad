package service

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/alimikegami/point-of-sales/checkout-service/config"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/domain"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/dto"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/lifecycle"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/payment"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/reconciler"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/session"
	"github.com/alimikegami/point-of-sales/checkout-service/pkg/errs"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type DraftSource interface {
	GetOrder(ctx context.Context, buyer domain.Buyer, orderID int64) (domain.OrderDraft, error)
}

type NotificationVerifier interface {
	VerifyNotification(n dto.PaymentNotification) error
}

type EventPublisher interface {
	Publish(ctx context.Context, eventType string, key string, data interface{}) error
}

type ConfirmationMailer interface {
	SendPaymentConfirmation(ctx context.Context, buyer domain.Buyer, attempt domain.PaymentSession) error
}

type BalanceInvalidator interface {
	InvalidateBalance(ctx context.Context, buyerID int64) error
}

type Dependencies struct {
	Ledger        reconciler.PointLedgerClient
	Coupons       reconciler.CouponClient
	Drafts        DraftSource
	Payments      *payment.Orchestrator
	Lifecycle     *lifecycle.Manager
	Sessions      *session.Store
	Notifications NotificationVerifier
	Events        EventPublisher
	Mailer        ConfirmationMailer
	Balances      BalanceInvalidator
}

type CheckoutServiceImpl struct {
	ledger        reconciler.PointLedgerClient
	coupons       reconciler.CouponClient
	drafts        DraftSource
	payments      *payment.Orchestrator
	lifecycle     *lifecycle.Manager
	sessions      *session.Store
	notifications NotificationVerifier
	events        EventPublisher
	mailer        ConfirmationMailer
	balances      BalanceInvalidator
	config        config.CheckoutConfig
	wg            sync.WaitGroup
}

func CreateCheckoutService(deps Dependencies, conf config.CheckoutConfig) CheckoutService {
	s := &CheckoutServiceImpl{
		ledger:        deps.Ledger,
		coupons:       deps.Coupons,
		drafts:        deps.Drafts,
		payments:      deps.Payments,
		lifecycle:     deps.Lifecycle,
		sessions:      deps.Sessions,
		notifications: deps.Notifications,
		events:        deps.Events,
		mailer:        deps.Mailer,
		balances:      deps.Balances,
		config:        conf,
	}

	s.lifecycle.OnCleanup(s.publishCleanup)

	return s
}

// StartCheckout opens a session for the draft and loads the draft, the point
// balance and the applicable coupons concurrently. Opening a checkout that is
// already open replaces the previous session; discounts already confirmed on
// the server are picked up from the draft.
func (s *CheckoutServiceImpl) StartCheckout(ctx context.Context, buyer domain.Buyer, orderID int64) (res dto.CheckoutResponse, err error) {
	sess := s.sessions.Open(buyer, orderID, s.lifecycle.Track(buyer, orderID))

	// The load is abandoned when either the request or the session ends.
	loadCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(sess.Context(), cancel)
	defer stop()

	var (
		draft   domain.OrderDraft
		balance int64
		coupons []domain.Coupon
	)

	g, gctx := errgroup.WithContext(loadCtx)
	g.Go(func() (err error) {
		draft, err = s.drafts.GetOrder(gctx, buyer, orderID)
		return err
	})
	g.Go(func() (err error) {
		balance, err = s.ledger.TotalActivePoints(gctx, buyer)
		return err
	})
	g.Go(func() error {
		list, err := s.coupons.ListApplicable(gctx, buyer, orderID)
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("component", "StartCheckout").Int64("order_id", orderID).Msg("coupons unavailable")
			return nil
		}
		coupons = list
		return nil
	})

	if err = g.Wait(); err != nil {
		if sess.Closed() {
			return res, errs.ErrSessionClosed
		}
		log.Ctx(ctx).Error().Err(err).Str("component", "StartCheckout").Int64("order_id", orderID).Msg("")
		s.sessions.Close(sess)
		return res, err
	}

	if draft.BuyerID != 0 && draft.BuyerID != buyer.ID {
		s.sessions.Close(sess)
		return res, errs.ErrNotFound
	}
	if draft.ID == 0 {
		draft.ID = orderID
	}

	rec := reconciler.New(s.ledger, s.coupons, s.config.PointUnit, buyer, draft, balance)
	if err = sess.Ready(draft, coupons, rec); err != nil {
		log.Ctx(ctx).Info().Str("component", "StartCheckout").Int64("order_id", orderID).Msg("session closed while loading, discarding draft")
		return res, err
	}

	return s.view(ctx, sess)
}

func (s *CheckoutServiceImpl) GetCheckout(ctx context.Context, buyer domain.Buyer, orderID int64) (res dto.CheckoutResponse, err error) {
	sess, err := s.session(buyer, orderID)
	if err != nil {
		return res, err
	}

	return s.view(ctx, sess)
}

func (s *CheckoutServiceImpl) SelectAddress(ctx context.Context, buyer domain.Buyer, orderID int64, version int64, req dto.SelectAddressRequest) (res dto.CheckoutResponse, err error) {
	if req.AddressID <= 0 {
		return res, errs.ErrAddressRequired
	}

	return s.mutate(ctx, buyer, orderID, version, func(sess *session.Session, rec *reconciler.Reconciler) error {
		sess.SetAddressID(req.AddressID)
		return nil
	})
}

func (s *CheckoutServiceImpl) SetPointInput(ctx context.Context, buyer domain.Buyer, orderID int64, version int64, req dto.PointInputRequest) (res dto.CheckoutResponse, err error) {
	return s.mutate(ctx, buyer, orderID, version, func(sess *session.Session, rec *reconciler.Reconciler) error {
		rec.SetInput(req.Value)
		return nil
	})
}

func (s *CheckoutServiceImpl) ApplyPoints(ctx context.Context, buyer domain.Buyer, orderID int64, version int64, req dto.PointInputRequest) (res dto.CheckoutResponse, err error) {
	return s.mutate(ctx, buyer, orderID, version, func(sess *session.Session, rec *reconciler.Reconciler) error {
		_, err := rec.ApplyPoints(ctx, req.Value)
		return err
	})
}

func (s *CheckoutServiceImpl) UseAllPoints(ctx context.Context, buyer domain.Buyer, orderID int64, version int64) (res dto.CheckoutResponse, err error) {
	return s.mutate(ctx, buyer, orderID, version, func(sess *session.Session, rec *reconciler.Reconciler) error {
		_, err := rec.UseAllPoints(ctx)
		return err
	})
}

func (s *CheckoutServiceImpl) CancelPoints(ctx context.Context, buyer domain.Buyer, orderID int64, version int64) (res dto.CheckoutResponse, err error) {
	return s.mutate(ctx, buyer, orderID, version, func(sess *session.Session, rec *reconciler.Reconciler) error {
		return rec.CancelPoints(ctx)
	})
}

func (s *CheckoutServiceImpl) ListCoupons(ctx context.Context, buyer domain.Buyer, orderID int64) (coupons []domain.Coupon, err error) {
	sess, err := s.session(buyer, orderID)
	if err != nil {
		return nil, err
	}

	coupons, err = s.coupons.ListApplicable(ctx, sess.Buyer(), orderID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("component", "ListCoupons").Int64("order_id", orderID).Msg("")
		return nil, err
	}
	sess.SetCoupons(coupons)

	return coupons, nil
}

// ApplyCoupon applies one of the coupons listed for the draft. The list is
// re-read once when the code is not in the cached copy.
func (s *CheckoutServiceImpl) ApplyCoupon(ctx context.Context, buyer domain.Buyer, orderID int64, version int64, req dto.ApplyCouponRequest) (res dto.CheckoutResponse, err error) {
	if req.Code == "" {
		return res, errs.ErrCouponNotApplicable
	}

	return s.mutate(ctx, buyer, orderID, version, func(sess *session.Session, rec *reconciler.Reconciler) error {
		coupon, ok := findCoupon(sess.Coupons(), req.Code)
		if !ok {
			list, err := s.coupons.ListApplicable(ctx, sess.Buyer(), orderID)
			if err != nil {
				return err
			}
			sess.SetCoupons(list)
			if coupon, ok = findCoupon(list, req.Code); !ok {
				return errs.ErrCouponNotApplicable
			}
		}

		return rec.ApplyCoupon(ctx, coupon)
	})
}

func (s *CheckoutServiceImpl) CancelCoupon(ctx context.Context, buyer domain.Buyer, orderID int64, version int64) (res dto.CheckoutResponse, err error) {
	return s.mutate(ctx, buyer, orderID, version, func(sess *session.Session, rec *reconciler.Reconciler) error {
		return rec.CancelCoupon(ctx)
	})
}

func findCoupon(coupons []domain.Coupon, code string) (domain.Coupon, bool) {
	for _, c := range coupons {
		if c.Code == code {
			return c, true
		}
	}
	return domain.Coupon{}, false
}

// session returns the buyer's open session and records the activity.
func (s *CheckoutServiceImpl) session(buyer domain.Buyer, orderID int64) (*session.Session, error) {
	sess, err := s.sessions.Get(buyer.ID, orderID)
	if err != nil {
		return nil, err
	}
	if sess.Closed() {
		return nil, errs.ErrSessionClosed
	}

	if buyer.Token != "" && buyer.Token != sess.Buyer().Token {
		sess.SetBuyer(buyer)
	}
	sess.Touch()

	return sess, nil
}

// mutate runs fn against a loaded session after checking the caller's
// version. The version moves on whenever fn ran, since a failed coupon change
// may still have changed the coupon.
func (s *CheckoutServiceImpl) mutate(ctx context.Context, buyer domain.Buyer, orderID int64, version int64, fn func(sess *session.Session, rec *reconciler.Reconciler) error) (res dto.CheckoutResponse, err error) {
	sess, err := s.session(buyer, orderID)
	if err != nil {
		return res, err
	}
	if err = sess.CheckVersion(version); err != nil {
		return res, err
	}

	_, rec, err := sess.Draft()
	if err != nil {
		return res, err
	}

	if err = fn(sess, rec); err != nil {
		if !errors.Is(err, errs.ErrMutationInFlight) {
			sess.Bump()
		}
		return res, err
	}
	sess.Bump()

	return s.view(ctx, sess)
}

func (s *CheckoutServiceImpl) view(ctx context.Context, sess *session.Session) (res dto.CheckoutResponse, err error) {
	draft, rec, err := sess.Draft()
	if err != nil {
		return res, err
	}

	snap := rec.Snapshot()
	current, err := s.payments.Current(ctx, draft.ID)
	if err != nil {
		return res, err
	}

	return dto.CheckoutResponse{
		OrderID:          draft.ID,
		Version:          sess.Version(),
		AddressID:        sess.AddressID(),
		ItemTotalAmount:  draft.ItemTotalAmount,
		TotalDeliveryFee: draft.TotalDeliveryFee,
		Items:            draft.Items,
		Points: dto.PointResponse{
			Input:            snap.Input,
			Applied:          snap.Applied,
			AvailableBalance: snap.Ledger.AvailableBalance,
			DisplayBalance:   snap.Ledger.DisplayBalance(),
			Unit:             s.config.PointUnit,
		},
		Coupon:   snap.Coupon,
		Discount: snap.State,
		Dirty:    snap.Dirty,
		InFlight: snap.InFlight,
		Payment:  current,
	}, nil
}

// InvalidatePointBalance drops the cached balance of a buyer whose ledger
// changed elsewhere and refreshes the balance of the buyer's open checkouts.
func (s *CheckoutServiceImpl) InvalidatePointBalance(ctx context.Context, ev dto.PointLedgerEvent) (err error) {
	if err = s.balances.InvalidateBalance(ctx, ev.BuyerID); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("component", "InvalidatePointBalance").Int64("buyer_id", ev.BuyerID).Msg("")
	}

	for _, sess := range s.sessions.ForBuyer(ev.BuyerID) {
		_, rec, derr := sess.Draft()
		if derr != nil {
			continue
		}
		if rerr := rec.RefreshBalance(ctx); rerr != nil {
			log.Ctx(ctx).Warn().Err(rerr).Str("component", "InvalidatePointBalance").
				Int64("order_id", sess.Key.OrderID).Msg("keeping cached balance")
			continue
		}
		sess.Bump()
	}

	return err
}

func (s *CheckoutServiceImpl) Wait() {
	s.wg.Wait()
}

func orderKey(orderID int64) string {
	return strconv.FormatInt(orderID, 10)
}
