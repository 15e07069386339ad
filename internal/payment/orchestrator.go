package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alimikegami/point-of-sales/checkout-service/internal/domain"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/dto"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/infrastructure/metrics"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/repository"
	"github.com/alimikegami/point-of-sales/checkout-service/pkg/errs"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

type Gateway interface {
	Provider() string
	// RequestPay opens a payment session at the gateway. It returns
	// errs.ErrGatewayUnavailable when the gateway could not be reached and a
	// BusinessError of kind errs.ErrGatewayRejected when it refused.
	RequestPay(ctx context.Context, desc domain.PaymentDescriptor) (domain.GatewayReceipt, error)
}

type Verifier interface {
	Verify(ctx context.Context, buyer domain.Buyer, req dto.VerifyRequest) (bool, error)
}

type Completer interface {
	CompleteOrder(ctx context.Context, buyer domain.Buyer, orderID int64, addressID int64, couponCode *string) (string, error)
}

// Request is a fully resolved payment request. Discount.FinalAmount is
// charged as is.
type Request struct {
	Buyer      domain.Buyer
	Draft      domain.OrderDraft
	AddressID  int64
	PayMethod  string
	Discount   domain.DiscountState
	CouponCode *string
}

// Orchestrator runs payment attempts through
// REQUESTED -> GATEWAY_SUCCESS -> VERIFYING -> VERIFIED -> COMPLETED.
// Every attempt has its own merchant transaction id and is never reused once
// it failed. Operations on the same order are serialized.
type Orchestrator struct {
	gateway   Gateway
	verifier  Verifier
	completer Completer
	repo      repository.PaymentRepository
	locks     orderLocks
	now       func() time.Time
}

func CreateOrchestrator(gateway Gateway, verifier Verifier, completer Completer, repo repository.PaymentRepository) *Orchestrator {
	return &Orchestrator{
		gateway:   gateway,
		verifier:  verifier,
		completer: completer,
		repo:      repo,
		locks:     orderLocks{m: make(map[int64]*orderLock)},
		now:       time.Now,
	}
}

// Request starts a new attempt. A previous attempt that is still waiting for
// its gateway callback is closed first so its late callback is rejected.
func (o *Orchestrator) Request(ctx context.Context, req Request) (domain.PaymentSession, domain.GatewayReceipt, error) {
	if req.Discount.FinalAmount <= 0 {
		return domain.PaymentSession{}, domain.GatewayReceipt{}, errs.ErrNothingToPay
	}

	unlock := o.locks.lock(req.Draft.ID)
	defer unlock()

	latest, err := o.repo.GetLatestAttemptByOrderID(ctx, req.Draft.ID)
	if err != nil {
		return domain.PaymentSession{}, domain.GatewayReceipt{}, err
	}
	if latest.ID != 0 {
		switch latest.State {
		case domain.PaymentRequested:
			if err := o.transition(ctx, &latest, domain.PaymentGatewayFailed, "superseded"); err != nil {
				return domain.PaymentSession{}, domain.GatewayReceipt{}, err
			}
		case domain.PaymentGatewaySuccess, domain.PaymentVerifying, domain.PaymentVerified:
			return latest, domain.GatewayReceipt{}, errs.NewBusinessError(errs.ErrPaymentStateInvalid, "the previous payment is still being processed")
		case domain.PaymentCompleted:
			return latest, domain.GatewayReceipt{}, errs.NewBusinessError(errs.ErrPaymentStateInvalid, "the order has already been paid")
		}
	}

	now := o.now().Unix()
	attempt := domain.PaymentSession{
		MerchantTxID: newMerchantTxID(),
		OrderID:      req.Draft.ID,
		BuyerID:      req.Buyer.ID,
		PayMethod:    req.PayMethod,
		Amount:       req.Discount.FinalAmount,
		UsedPoints:   req.Discount.UsedPoints,
		CouponCode:   req.CouponCode,
		AddressID:    req.AddressID,
		CartItemIDs:  pq.Int64Array(req.Draft.CartItemIDs()),
		State:        domain.PaymentIdle,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if o.gateway == nil {
		reason := errs.ErrGatewayUnavailable.Error()
		attempt.State = domain.PaymentGatewayFailed
		attempt.FailureReason = &reason
		if attempt.ID, err = o.repo.AddAttempt(ctx, attempt); err != nil {
			return domain.PaymentSession{}, domain.GatewayReceipt{}, err
		}
		metrics.PaymentAttempts.WithLabelValues(string(attempt.State)).Inc()
		return attempt, domain.GatewayReceipt{}, errs.ErrGatewayUnavailable
	}

	// Stored before the gateway is called so a webhook that arrives first
	// finds the attempt.
	attempt.GatewayProvider = o.gateway.Provider()
	attempt.State = domain.PaymentRequested
	if attempt.ID, err = o.repo.AddAttempt(ctx, attempt); err != nil {
		return domain.PaymentSession{}, domain.GatewayReceipt{}, err
	}

	receipt, err := o.gateway.RequestPay(ctx, describe(req, attempt))
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("component", "Request").
			Int64("order_id", attempt.OrderID).Str("merchant_uid", attempt.MerchantTxID).Msg("")
		if terr := o.transition(ctx, &attempt, domain.PaymentGatewayFailed, err.Error()); terr != nil {
			log.Ctx(ctx).Error().Err(terr).Str("component", "Request").Msg("")
		}
		return attempt, domain.GatewayReceipt{}, err
	}

	if receipt.GatewayTxID != "" {
		gatewayTxID := receipt.GatewayTxID
		attempt.GatewayTxID = &gatewayTxID
		attempt.UpdatedAt = o.now().Unix()
		if err := o.repo.UpdateAttempt(ctx, attempt); err != nil {
			return attempt, receipt, err
		}
	}

	return attempt, receipt, nil
}

// Outcome is an attempt after an operation, together with the state the
// attempt was in when the operation took the order lock. Only the call that
// observed the change should run its side effects.
type Outcome struct {
	From    domain.PaymentState
	Attempt domain.PaymentSession
}

// Changed reports whether this call moved the attempt to another state.
func (o Outcome) Changed() bool {
	return o.Attempt.ID != 0 && o.Attempt.State != o.From
}

// HandleCallback applies the gateway's verdict for one attempt. A reported
// success is only trusted once the order backend has verified it; the order
// is completed after that. An attempt whose verification never reached the
// order backend is verified again on the next successful callback. Any other
// repeated callback returns the attempt unchanged.
func (o *Orchestrator) HandleCallback(ctx context.Context, buyer domain.Buyer, result domain.GatewayResult) (Outcome, error) {
	attempt, err := o.Attempt(ctx, buyer, result.MerchantTxID)
	if err != nil {
		return Outcome{}, err
	}

	unlock := o.locks.lock(attempt.OrderID)
	defer unlock()

	// Re-read under the order lock.
	attempt, err = o.repo.GetAttemptByMerchantTxID(ctx, result.MerchantTxID)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{From: attempt.State}

	latest, err := o.repo.GetLatestAttemptByOrderID(ctx, attempt.OrderID)
	if err != nil {
		return Outcome{}, err
	}
	if latest.MerchantTxID != attempt.MerchantTxID {
		log.Ctx(ctx).Warn().Str("component", "HandleCallback").Str("merchant_uid", attempt.MerchantTxID).
			Str("latest_merchant_uid", latest.MerchantTxID).Msg("callback for superseded attempt")
		out.Attempt = attempt
		return out, errs.ErrStaleCallback
	}

	switch attempt.State {
	case domain.PaymentRequested:
	case domain.PaymentGatewaySuccess, domain.PaymentVerifying:
		if result.Success {
			attempt, err = o.verify(context.WithoutCancel(ctx), buyer, attempt)
		}
		out.Attempt = attempt
		return out, err
	default:
		out.Attempt = attempt
		return out, nil
	}

	if result.GatewayTxID != "" {
		gatewayTxID := result.GatewayTxID
		attempt.GatewayTxID = &gatewayTxID
	}

	if !result.Success {
		err := o.transition(ctx, &attempt, domain.PaymentGatewayFailed, result.ErrorMessage)
		out.Attempt = attempt
		if err != nil {
			return out, err
		}
		return out, errs.NewBusinessError(errs.ErrGatewayRejected, result.ErrorMessage)
	}

	err = o.transition(ctx, &attempt, domain.PaymentGatewaySuccess, "")
	if err == nil {
		// The buyer has been charged: the attempt has to reach a verdict even
		// if the caller goes away.
		attempt, err = o.verify(context.WithoutCancel(ctx), buyer, attempt)
	}
	out.Attempt = attempt

	return out, err
}

// verify asks the order backend to confirm a charged attempt and completes
// it once confirmed. When the backend could not be asked at all the attempt
// stays in VERIFYING and the returned error wraps errs.ErrUpstream.
func (o *Orchestrator) verify(ctx context.Context, buyer domain.Buyer, attempt domain.PaymentSession) (domain.PaymentSession, error) {
	if attempt.State == domain.PaymentGatewaySuccess {
		if err := o.transition(ctx, &attempt, domain.PaymentVerifying, ""); err != nil {
			return attempt, err
		}
	}

	verified, err := o.verifier.Verify(ctx, buyer, dto.VerifyRequest{
		ImpUID:              derefString(attempt.GatewayTxID),
		MerchantUID:         attempt.MerchantTxID,
		OrderID:             attempt.OrderID,
		SelectedAddressID:   attempt.AddressID,
		SelectedCartItemIDs: attempt.CartItemIDs,
		UsePointAmount:      attempt.UsedPoints,
	})
	if noVerdict(err) {
		log.Ctx(ctx).Warn().Err(err).Str("component", "verify").
			Str("merchant_uid", attempt.MerchantTxID).Msg("order backend unreachable, verification pending")
		return attempt, fmt.Errorf("%w: verification pending: %v", errs.ErrUpstream, err)
	}
	if err != nil || !verified {
		reason := "verification rejected"
		if err != nil {
			reason = err.Error()
			log.Ctx(ctx).Error().Err(err).Str("component", "verify").
				Str("merchant_uid", attempt.MerchantTxID).Msg("verification failed")
		}
		if terr := o.transition(ctx, &attempt, domain.PaymentVerifyFailed, reason); terr != nil {
			return attempt, terr
		}
		return attempt, errs.ErrPaymentNotVerified
	}

	if err := o.transition(ctx, &attempt, domain.PaymentVerified, ""); err != nil {
		return attempt, err
	}

	return o.complete(ctx, buyer, attempt)
}

// noVerdict reports whether a verification error means the order backend
// never judged the payment, as opposed to rejecting it.
func noVerdict(err error) bool {
	return errors.Is(err, errs.ErrUpstream) || errors.Is(err, errs.ErrNotLoggedIn) ||
		errors.Is(err, context.DeadlineExceeded)
}

// RetryCompletion re-issues the completion call for an attempt that was
// verified but could not be completed. Nothing is charged or verified again.
func (o *Orchestrator) RetryCompletion(ctx context.Context, buyer domain.Buyer, merchantTxID string) (Outcome, error) {
	attempt, err := o.Attempt(ctx, buyer, merchantTxID)
	if err != nil {
		return Outcome{}, err
	}

	unlock := o.locks.lock(attempt.OrderID)
	defer unlock()

	attempt, err = o.repo.GetAttemptByMerchantTxID(ctx, merchantTxID)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{From: attempt.State, Attempt: attempt}

	switch attempt.State {
	case domain.PaymentCompleted:
		return out, nil
	case domain.PaymentVerified:
		out.Attempt, err = o.complete(context.WithoutCancel(ctx), buyer, attempt)
		return out, err
	}

	return out, errs.ErrPaymentStateInvalid
}

func (o *Orchestrator) complete(ctx context.Context, buyer domain.Buyer, attempt domain.PaymentSession) (domain.PaymentSession, error) {
	message, err := o.completer.CompleteOrder(ctx, buyer, attempt.OrderID, attempt.AddressID, attempt.CouponCode)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("component", "complete").
			Int64("order_id", attempt.OrderID).Str("merchant_uid", attempt.MerchantTxID).Msg("")
		return attempt, fmt.Errorf("%w: %v", errs.ErrCompletionFailed, err)
	}

	if err := o.transition(ctx, &attempt, domain.PaymentCompleted, ""); err != nil {
		return attempt, err
	}

	log.Ctx(ctx).Info().Str("component", "complete").Int64("order_id", attempt.OrderID).
		Str("merchant_uid", attempt.MerchantTxID).Msg(message)

	return attempt, nil
}

// Attempt returns the attempt with the given merchant transaction id if it
// belongs to buyer.
func (o *Orchestrator) Attempt(ctx context.Context, buyer domain.Buyer, merchantTxID string) (domain.PaymentSession, error) {
	attempt, err := o.repo.GetAttemptByMerchantTxID(ctx, merchantTxID)
	if err != nil {
		return domain.PaymentSession{}, err
	}
	if attempt.ID == 0 || attempt.BuyerID != buyer.ID {
		return domain.PaymentSession{}, errs.ErrNotFound
	}

	return attempt, nil
}

// FindAttempt looks an attempt up without an ownership check. It is meant
// for gateway notifications, which carry no buyer identity.
func (o *Orchestrator) FindAttempt(ctx context.Context, merchantTxID string) (domain.PaymentSession, error) {
	attempt, err := o.repo.GetAttemptByMerchantTxID(ctx, merchantTxID)
	if err != nil {
		return domain.PaymentSession{}, err
	}
	if attempt.ID == 0 {
		return domain.PaymentSession{}, errs.ErrNotFound
	}

	return attempt, nil
}

// Current returns the newest attempt for an order, or nil when none exists.
func (o *Orchestrator) Current(ctx context.Context, orderID int64) (*domain.PaymentSession, error) {
	attempt, err := o.repo.GetLatestAttemptByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if attempt.ID == 0 {
		return nil, nil
	}

	return &attempt, nil
}

func (o *Orchestrator) History(ctx context.Context, orderID int64) ([]domain.PaymentSession, error) {
	return o.repo.GetAttemptsByOrderID(ctx, orderID)
}

func (o *Orchestrator) transition(ctx context.Context, attempt *domain.PaymentSession, next domain.PaymentState, reason string) error {
	if !attempt.State.CanTransitionTo(next) {
		log.Ctx(ctx).Error().Str("component", "transition").Str("merchant_uid", attempt.MerchantTxID).
			Str("from", string(attempt.State)).Str("to", string(next)).Msg("illegal payment transition")
		return errs.ErrPaymentStateInvalid
	}

	previous := *attempt
	attempt.State = next
	attempt.UpdatedAt = o.now().Unix()
	if reason != "" {
		attempt.FailureReason = &reason
	}

	if err := o.repo.UpdateAttempt(ctx, *attempt); err != nil {
		*attempt = previous
		return err
	}

	if next.Terminal() {
		metrics.PaymentAttempts.WithLabelValues(string(next)).Inc()
	}

	return nil
}

func describe(req Request, attempt domain.PaymentSession) domain.PaymentDescriptor {
	return domain.PaymentDescriptor{
		GatewayProvider: attempt.GatewayProvider,
		PayMethod:       attempt.PayMethod,
		MerchantTxID:    attempt.MerchantTxID,
		Amount:          attempt.Amount,
		OrderName:       orderName(req.Draft),
		Buyer:           req.Buyer,
		Items:           req.Draft.Items,
	}
}

func orderName(draft domain.OrderDraft) string {
	switch len(draft.Items) {
	case 0:
		return fmt.Sprintf("Order #%d", draft.ID)
	case 1:
		return draft.Items[0].ProductName
	}
	return fmt.Sprintf("%s and %d more", draft.Items[0].ProductName, len(draft.Items)-1)
}

func newMerchantTxID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type orderLock struct {
	sync.Mutex
	refs int
}

type orderLocks struct {
	mu sync.Mutex
	m  map[int64]*orderLock
}

func (l *orderLocks) lock(orderID int64) func() {
	l.mu.Lock()
	ol, ok := l.m[orderID]
	if !ok {
		ol = &orderLock{}
		l.m[orderID] = ol
	}
	ol.refs++
	l.mu.Unlock()

	ol.Lock()

	return func() {
		ol.Unlock()

		l.mu.Lock()
		ol.refs--
		if ol.refs == 0 {
			delete(l.m, orderID)
		}
		l.mu.Unlock()
	}
}
