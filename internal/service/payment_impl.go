package service

import (
	"context"
	"errors"
	"time"

	"github.com/alimikegami/point-of-sales/checkout-service/internal/domain"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/dto"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/infrastructure/message-queue/kafka"
	paymentgateway "github.com/alimikegami/point-of-sales/checkout-service/internal/infrastructure/payment-gateway"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/lifecycle"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/payment"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/session"
	"github.com/alimikegami/point-of-sales/checkout-service/pkg/errs"
	"github.com/rs/zerolog/log"
)

// RequestPayment hands the reconciled amount to the payment gateway. Every
// precondition is checked locally first; a failed check never reaches a
// collaborator.
func (s *CheckoutServiceImpl) RequestPayment(ctx context.Context, buyer domain.Buyer, orderID int64, version int64, req dto.PaymentRequest) (res dto.PaymentResponse, err error) {
	if req.PayMethod == "" {
		return res, errs.NewBusinessError(errs.ErrClient, "pay_method is required")
	}

	sess, err := s.session(buyer, orderID)
	if errors.Is(err, errs.ErrNotFound) {
		return res, errs.ErrOrderNotLoaded
	}
	if err != nil {
		return res, err
	}
	if err = sess.CheckVersion(version); err != nil {
		return res, err
	}

	draft, rec, err := sess.Draft()
	if err != nil {
		return res, err
	}
	if !sess.Lifecycle().Active() {
		return res, errs.ErrSessionClosed
	}
	addressID := sess.AddressID()
	if addressID == 0 {
		return res, errs.ErrAddressRequired
	}
	if len(draft.Items) == 0 {
		return res, errs.ErrEmptyOrder
	}

	// Held until the gateway has answered so the charged amount is the
	// amount the ledger holds.
	discount, coupon, release, err := rec.Hold()
	if err != nil {
		return res, err
	}
	defer release()

	if discount.FinalAmount <= 0 {
		return res, errs.ErrNothingToPay
	}

	var couponCode *string
	if coupon != nil {
		code := coupon.Code
		couponCode = &code
	}

	attempt, receipt, err := s.payments.Request(ctx, payment.Request{
		Buyer:      sess.Buyer(),
		Draft:      draft,
		AddressID:  addressID,
		PayMethod:  req.PayMethod,
		Discount:   discount,
		CouponCode: couponCode,
	})
	sess.Bump()
	if err != nil {
		if attempt.State.Failed() {
			s.publish(ctx, kafka.EventPaymentFailed, attempt, derefString(attempt.FailureReason))
		}
		return dto.PaymentResponse{Attempt: attempt}, err
	}

	return dto.PaymentResponse{Attempt: attempt, Receipt: receipt}, nil
}

// HandlePaymentCallback takes the gateway result relayed by the storefront.
func (s *CheckoutServiceImpl) HandlePaymentCallback(ctx context.Context, buyer domain.Buyer, orderID int64, merchantUID string, req dto.PaymentCallbackRequest) (attempt domain.PaymentSession, err error) {
	if err = s.ownsAttempt(ctx, buyer, orderID, merchantUID); err != nil {
		return attempt, err
	}

	out, err := s.payments.HandleCallback(ctx, buyer, domain.GatewayResult{
		MerchantTxID: merchantUID,
		GatewayTxID:  req.ImpUID,
		Success:      req.Success,
		ErrorMessage: req.ErrorMsg,
	})
	s.afterPayment(ctx, buyer, out)

	return out.Attempt, err
}

func (s *CheckoutServiceImpl) RetryCompletion(ctx context.Context, buyer domain.Buyer, orderID int64, merchantUID string) (attempt domain.PaymentSession, err error) {
	if err = s.ownsAttempt(ctx, buyer, orderID, merchantUID); err != nil {
		return attempt, err
	}

	out, err := s.payments.RetryCompletion(ctx, buyer, merchantUID)
	s.afterPayment(ctx, buyer, out)

	return out.Attempt, err
}

func (s *CheckoutServiceImpl) ownsAttempt(ctx context.Context, buyer domain.Buyer, orderID int64, merchantUID string) error {
	attempt, err := s.payments.Attempt(ctx, buyer, merchantUID)
	if err != nil {
		return err
	}
	if attempt.OrderID != orderID {
		return errs.ErrNotFound
	}

	return nil
}

func (s *CheckoutServiceImpl) GetPayments(ctx context.Context, buyer domain.Buyer, orderID int64) (attempts []domain.PaymentSession, err error) {
	all, err := s.payments.History(ctx, orderID)
	if err != nil {
		return nil, err
	}

	attempts = make([]domain.PaymentSession, 0, len(all))
	for _, a := range all {
		if a.BuyerID == buyer.ID {
			attempts = append(attempts, a)
		}
	}
	if len(all) > 0 && len(attempts) == 0 {
		return nil, errs.ErrNotFound
	}

	return attempts, nil
}

// MidtransPaymentWebhook applies a midtrans notification. Only errors worth a
// redelivery are returned; outcomes that were applied, or can never apply,
// are acknowledged.
func (s *CheckoutServiceImpl) MidtransPaymentWebhook(ctx context.Context, req dto.PaymentNotification) (err error) {
	if err = s.notifications.VerifyNotification(req); err != nil {
		log.Ctx(ctx).Warn().Str("component", "MidtransPaymentWebhook").Str("merchant_uid", req.OrderID).Msg("invalid signature")
		return err
	}

	result, decided := paymentgateway.ResultFromNotification(req)
	if !decided {
		log.Ctx(ctx).Info().Str("component", "MidtransPaymentWebhook").Str("merchant_uid", req.OrderID).
			Str("transaction_status", req.TransactionStatus).Str("payment_type", req.PaymentType).Msg("payment not settled yet")
		return nil
	}

	before, err := s.payments.FindAttempt(ctx, req.OrderID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			log.Ctx(ctx).Warn().Str("component", "MidtransPaymentWebhook").Str("merchant_uid", req.OrderID).Msg("unknown attempt")
			return nil
		}
		return err
	}

	buyer := domain.Buyer{ID: before.BuyerID}
	if sess, serr := s.sessions.Get(before.BuyerID, before.OrderID); serr == nil {
		buyer = sess.Buyer()
	}

	var out payment.Outcome
	if before.State == domain.PaymentVerified && result.Success {
		out, err = s.payments.RetryCompletion(ctx, buyer, before.MerchantTxID)
	} else {
		out, err = s.payments.HandleCallback(ctx, buyer, result)
	}
	s.afterPayment(ctx, buyer, out)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, errs.ErrCompletionFailed), errors.Is(err, errs.ErrUpstream), errors.Is(err, errs.ErrInternalServer):
		return err
	}

	log.Ctx(ctx).Info().Err(err).Str("component", "MidtransPaymentWebhook").Str("merchant_uid", req.OrderID).Msg("notification acknowledged")
	return nil
}

// afterPayment runs the side effects of an attempt's state change. Only the
// call that made the change runs them.
func (s *CheckoutServiceImpl) afterPayment(ctx context.Context, buyer domain.Buyer, out payment.Outcome) {
	if !out.Changed() {
		return
	}
	after := out.Attempt

	switch {
	case after.State == domain.PaymentCompleted:
		if sess, err := s.sessions.Get(after.BuyerID, after.OrderID); err == nil {
			sess.Lifecycle().MarkCompleted()
			if buyer.Email == "" {
				buyer = sess.Buyer()
			}
			s.sessions.Close(sess)
		}
		s.publish(ctx, kafka.EventCheckoutCompleted, after, "")
		s.sendConfirmation(ctx, buyer, after)
	case after.State.Failed():
		s.publish(ctx, kafka.EventPaymentFailed, after, derefString(after.FailureReason))
		if sess, err := s.sessions.Get(after.BuyerID, after.OrderID); err == nil {
			sess.Bump()
		}
	}
}

func (s *CheckoutServiceImpl) publish(ctx context.Context, eventType string, attempt domain.PaymentSession, reason string) {
	err := s.events.Publish(ctx, eventType, orderKey(attempt.OrderID), dto.CheckoutEvent{
		OrderID:      attempt.OrderID,
		BuyerID:      attempt.BuyerID,
		MerchantTxID: attempt.MerchantTxID,
		Amount:       attempt.Amount,
		UsedPoints:   attempt.UsedPoints,
		CouponCode:   attempt.CouponCode,
		Reason:       reason,
		OccurredAt:   time.Now().Unix(),
	})
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("component", "publish").Str("event_type", eventType).Msg("")
	}
}

func (s *CheckoutServiceImpl) sendConfirmation(ctx context.Context, buyer domain.Buyer, attempt domain.PaymentSession) {
	detached := context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if err := s.mailer.SendPaymentConfirmation(detached, buyer, attempt); err != nil {
			log.Ctx(detached).Warn().Err(err).Str("component", "sendConfirmation").Int64("order_id", attempt.OrderID).Msg("")
		}
	}()
}

func (s *CheckoutServiceImpl) publishCleanup(ctx context.Context, ev lifecycle.CleanupEvent) {
	reason := string(ev.Reason)
	if ev.Err != nil {
		reason += ": " + ev.Err.Error()
	}

	err := s.events.Publish(ctx, kafka.EventDraftAbandoned, orderKey(ev.OrderID), dto.CheckoutEvent{
		OrderID:    ev.OrderID,
		BuyerID:    ev.BuyerID,
		Reason:     reason,
		OccurredAt: time.Now().Unix(),
	})
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("component", "publishCleanup").Int64("order_id", ev.OrderID).Msg("")
	}
}

// paymentPending reports whether the order has an attempt the gateway or the
// order service has not finished with. Leaving the page to pay in a gateway
// app must not delete the draft being paid for.
func (s *CheckoutServiceImpl) paymentPending(ctx context.Context, orderID int64) bool {
	current, err := s.payments.Current(ctx, orderID)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("component", "paymentPending").Int64("order_id", orderID).Msg("")
		return true
	}

	return current != nil && !current.State.Terminal()
}

// Leave handles the storefront's unload and back-navigation beacons. Beacons
// for a session that no longer exists are accepted and ignored.
func (s *CheckoutServiceImpl) Leave(ctx context.Context, buyer domain.Buyer, orderID int64, req dto.LeaveRequest) (res dto.LeaveResponse, err error) {
	sig := lifecycle.Signal{
		Kind:           lifecycle.SignalKind(req.Signal),
		NavigationType: lifecycle.NavigationType(req.NavigationType),
	}
	if err = sig.Validate(); err != nil {
		return res, err
	}

	sess, err := s.sessions.Get(buyer.ID, orderID)
	if err != nil {
		return res, nil
	}

	if lifecycle.ShouldCleanup(sig) && s.paymentPending(ctx, orderID) {
		log.Ctx(ctx).Info().Str("component", "Leave").Int64("order_id", orderID).Msg("payment in progress, keeping draft")
		return res, nil
	}

	sent, err := sess.Lifecycle().Notify(ctx, sig)
	if err != nil {
		return res, err
	}
	if sent {
		s.sessions.Close(sess)
	}

	return dto.LeaveResponse{CleanupSent: sent}, nil
}

// SweepExpiredSessions expires sessions idle for longer than the draft TTL.
// It is the backstop for buyers whose leave beacon never arrived.
func (s *CheckoutServiceImpl) SweepExpiredSessions(ctx context.Context) (expired int) {
	for _, sess := range s.sessions.Idle(s.config.DraftTTL) {
		if s.paymentPending(ctx, sess.Key.OrderID) {
			continue
		}

		if expireSession(ctx, sess) {
			expired++
		}
		s.sessions.Close(sess)
	}

	if expired > 0 {
		log.Ctx(ctx).Info().Str("component", "SweepExpiredSessions").Int("expired", expired).Msg("")
	}

	return expired
}

func expireSession(ctx context.Context, sess *session.Session) bool {
	lc := sess.Lifecycle()
	if lc == nil {
		return false
	}
	return lc.Expire(ctx)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
