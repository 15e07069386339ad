package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alimikegami/point-of-sales/checkout-service/internal/domain"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/infrastructure/metrics"
	"github.com/alimikegami/point-of-sales/checkout-service/pkg/errs"
	"github.com/rs/zerolog/log"
)

type SignalKind string

const (
	// SignalUnload is sent from pagehide/beforeunload.
	SignalUnload SignalKind = "unload"
	// SignalBack is sent from popstate.
	SignalBack SignalKind = "back"
)

// NavigationType mirrors PerformanceNavigationTiming.type as reported by the
// client.
type NavigationType string

const (
	NavigationNavigate    NavigationType = "navigate"
	NavigationReload      NavigationType = "reload"
	NavigationBackForward NavigationType = "back_forward"
	NavigationPrerender   NavigationType = "prerender"
)

type Signal struct {
	Kind           SignalKind
	NavigationType NavigationType
}

func (s Signal) Validate() error {
	switch s.Kind {
	case SignalUnload, SignalBack:
	default:
		return errs.ErrInvalidSignal
	}

	switch s.NavigationType {
	case "", NavigationNavigate, NavigationReload, NavigationBackForward, NavigationPrerender:
		return nil
	}

	return errs.ErrInvalidSignal
}

// ShouldCleanup decides whether a signal ends the checkout. A reload keeps
// the draft; any other unload or a back navigation abandons it.
func ShouldCleanup(s Signal) bool {
	switch s.Kind {
	case SignalBack:
		return true
	case SignalUnload:
		return s.NavigationType != NavigationReload
	}
	return false
}

type Reason string

const (
	ReasonAbandoned Reason = "abandoned"
	ReasonBack      Reason = "back_navigation"
	ReasonExpired   Reason = "expired"
)

func reasonFor(s Signal) Reason {
	if s.Kind == SignalBack {
		return ReasonBack
	}
	return ReasonAbandoned
}

type DraftCleaner interface {
	// DeleteTemporaryOrder must be idempotent: it may run against a draft
	// that was already completed or deleted.
	DeleteTemporaryOrder(ctx context.Context, buyer domain.Buyer) error
}

type CleanupEvent struct {
	OrderID int64
	BuyerID int64
	Reason  Reason
	Err     error
}

type Manager struct {
	cleaner DraftCleaner
	timeout time.Duration
	onClean func(ctx context.Context, ev CleanupEvent)
	wg      sync.WaitGroup
}

func CreateManager(cleaner DraftCleaner, timeout time.Duration) *Manager {
	return &Manager{cleaner: cleaner, timeout: timeout}
}

// OnCleanup registers a hook that runs after every cleanup request finished.
func (m *Manager) OnCleanup(fn func(ctx context.Context, ev CleanupEvent)) {
	m.onClean = fn
}

// Wait blocks until every dispatched cleanup has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

const (
	draftActive int32 = iota
	draftCompleted
	draftCleaned
)

// Draft tracks one draft order for the lifetime of its checkout.
type Draft struct {
	m       *Manager
	buyer   domain.Buyer
	orderID int64
	state   atomic.Int32
}

func (m *Manager) Track(buyer domain.Buyer, orderID int64) *Draft {
	return &Draft{m: m, buyer: buyer, orderID: orderID}
}

func (d *Draft) Active() bool {
	return d.state.Load() == draftActive
}

// MarkCompleted stops any later signal from deleting the draft.
func (d *Draft) MarkCompleted() bool {
	return d.state.CompareAndSwap(draftActive, draftCompleted)
}

// Notify handles a session signal and reports whether a cleanup was sent.
// At most one cleanup is ever sent per draft.
func (d *Draft) Notify(ctx context.Context, s Signal) (bool, error) {
	if err := s.Validate(); err != nil {
		return false, err
	}

	if !ShouldCleanup(s) {
		log.Ctx(ctx).Info().Str("component", "Notify").Int64("order_id", d.orderID).
			Str("navigation_type", string(s.NavigationType)).Msg("reload, keeping draft")
		return false, nil
	}

	return d.dispatch(ctx, reasonFor(s)), nil
}

// Expire is the idle backstop for drafts whose client never signalled.
func (d *Draft) Expire(ctx context.Context) bool {
	return d.dispatch(ctx, ReasonExpired)
}

// dispatch sends the cleanup without waiting for it. The request is detached
// from ctx so it outlives the request or page that triggered it.
func (d *Draft) dispatch(ctx context.Context, reason Reason) bool {
	if !d.state.CompareAndSwap(draftActive, draftCleaned) {
		return false
	}

	m := d.m
	detached := context.WithoutCancel(ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		cctx, cancel := context.WithTimeout(detached, m.timeout)
		defer cancel()

		err := m.cleaner.DeleteTemporaryOrder(cctx, d.buyer)

		outcome := "sent"
		if err != nil {
			outcome = "failed"
			log.Ctx(detached).Warn().Err(err).Str("component", "DraftCleanup").
				Int64("order_id", d.orderID).Str("reason", string(reason)).Msg("")
		} else {
			log.Ctx(detached).Info().Str("component", "DraftCleanup").
				Int64("order_id", d.orderID).Str("reason", string(reason)).Msg("temporary order deleted")
		}
		metrics.DraftCleanups.WithLabelValues(string(reason), outcome).Inc()

		if m.onClean != nil {
			m.onClean(detached, CleanupEvent{
				OrderID: d.orderID,
				BuyerID: d.buyer.ID,
				Reason:  reason,
				Err:     err,
			})
		}
	}()

	return true
}
