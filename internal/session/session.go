package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alimikegami/point-of-sales/checkout-service/internal/domain"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/infrastructure/metrics"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/lifecycle"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/reconciler"
	"github.com/alimikegami/point-of-sales/checkout-service/pkg/errs"
)

type Key struct {
	BuyerID int64
	OrderID int64
}

// Session is one buyer's checkout of one draft order. It is opened before the
// draft is fetched and becomes usable once Ready was called.
type Session struct {
	Key Key

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	buyer     domain.Buyer
	draft     *domain.OrderDraft
	addressID int64
	coupons   []domain.Coupon
	rec       *reconciler.Reconciler
	lifecycle *lifecycle.Draft

	version  atomic.Int64
	lastSeen atomic.Int64
	now      func() time.Time
}

// Context is cancelled when the session is closed or replaced. Loads bound
// to it are abandoned with the session.
func (s *Session) Context() context.Context {
	return s.ctx
}

func (s *Session) Closed() bool {
	return s.ctx.Err() != nil
}

// Ready installs the loaded draft. A load that finishes after the session
// was closed is discarded.
func (s *Session) Ready(draft domain.OrderDraft, coupons []domain.Coupon, rec *reconciler.Reconciler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return errs.ErrSessionClosed
	}

	s.draft = &draft
	s.addressID = draft.AddressID
	s.coupons = coupons
	s.rec = rec
	s.version.Add(1)

	return nil
}

// Draft returns the loaded draft and reconciler.
func (s *Session) Draft() (domain.OrderDraft, *reconciler.Reconciler, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.ctx.Err() != nil {
		return domain.OrderDraft{}, nil, errs.ErrSessionClosed
	}
	if s.draft == nil {
		return domain.OrderDraft{}, nil, errs.ErrOrderNotLoaded
	}

	return *s.draft, s.rec, nil
}

func (s *Session) Lifecycle() *lifecycle.Draft {
	return s.lifecycle
}

func (s *Session) Buyer() domain.Buyer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.buyer
}

// SetBuyer refreshes the buyer credentials forwarded to collaborators.
func (s *Session) SetBuyer(buyer domain.Buyer) {
	s.mu.Lock()
	s.buyer = buyer
	rec := s.rec
	s.mu.Unlock()

	if rec != nil {
		rec.SetBuyer(buyer)
	}
}

func (s *Session) AddressID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.addressID
}

func (s *Session) SetAddressID(id int64) {
	s.mu.Lock()
	s.addressID = id
	s.mu.Unlock()
}

func (s *Session) Coupons() []domain.Coupon {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]domain.Coupon(nil), s.coupons...)
}

func (s *Session) SetCoupons(coupons []domain.Coupon) {
	s.mu.Lock()
	s.coupons = coupons
	s.mu.Unlock()
}

// Version is the session's single-writer token. Every state change bumps it.
func (s *Session) Version() int64 {
	return s.version.Load()
}

func (s *Session) Bump() int64 {
	return s.version.Add(1)
}

// CheckVersion fails when the caller's expected version is stale. A
// negative expected version skips the check.
func (s *Session) CheckVersion(expected int64) error {
	if expected >= 0 && expected != s.version.Load() {
		return errs.ErrVersionConflict
	}
	return nil
}

func (s *Session) Touch() {
	s.lastSeen.Store(s.now().UnixNano())
}

func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// Store holds the open checkout sessions of this instance.
type Store struct {
	mu       sync.Mutex
	sessions map[Key]*Session
	now      func() time.Time
}

func CreateStore() *Store {
	return &Store{
		sessions: make(map[Key]*Session),
		now:      time.Now,
	}
}

// Open starts a session, replacing any previous session for the same key.
// The replaced session is closed without touching its draft.
func (st *Store) Open(buyer domain.Buyer, orderID int64, lc *lifecycle.Draft) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	key := Key{BuyerID: buyer.ID, OrderID: orderID}

	sess := &Session{
		Key:       key,
		ctx:       ctx,
		cancel:    cancel,
		buyer:     buyer,
		lifecycle: lc,
		now:       st.now,
	}
	sess.Touch()

	st.mu.Lock()
	previous := st.sessions[key]
	if previous != nil {
		// The version sequence carries over so stale tokens stay stale.
		sess.version.Store(previous.version.Load())
	}
	st.sessions[key] = sess
	st.mu.Unlock()

	if previous != nil {
		previous.cancel()
	} else {
		metrics.ActiveSessions.Inc()
	}

	return sess
}

func (st *Store) Get(buyerID, orderID int64) (*Session, error) {
	st.mu.Lock()
	sess, ok := st.sessions[Key{BuyerID: buyerID, OrderID: orderID}]
	st.mu.Unlock()

	if !ok {
		return nil, errs.ErrNotFound
	}

	return sess, nil
}

func (st *Store) ForBuyer(buyerID int64) []*Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	var found []*Session
	for key, sess := range st.sessions {
		if key.BuyerID == buyerID {
			found = append(found, sess)
		}
	}

	return found
}

// Close removes sess if it is still the current session for its key.
func (st *Store) Close(sess *Session) {
	st.mu.Lock()
	current, ok := st.sessions[sess.Key]
	if ok && current == sess {
		delete(st.sessions, sess.Key)
	}
	st.mu.Unlock()

	sess.cancel()
	if ok && current == sess {
		metrics.ActiveSessions.Dec()
	}
}

// Idle returns the sessions not touched within ttl.
func (st *Store) Idle(ttl time.Duration) []*Session {
	cutoff := st.now().Add(-ttl)

	st.mu.Lock()
	defer st.mu.Unlock()

	var idle []*Session
	for _, sess := range st.sessions {
		if sess.LastSeen().Before(cutoff) {
			idle = append(idle, sess)
		}
	}

	return idle
}

func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()

	return len(st.sessions)
}
