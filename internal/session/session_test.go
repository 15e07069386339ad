package session

import (
	"testing"
	"time"

	"github.com/alimikegami/point-of-sales/checkout-service/internal/domain"
	"github.com/alimikegami/point-of-sales/checkout-service/pkg/errs"
	"github.com/stretchr/testify/require"
)

var buyer = domain.Buyer{ID: 7}

func TestDraftNotLoaded(t *testing.T) {
	st := CreateStore()
	sess := st.Open(buyer, 42, nil)

	_, _, err := sess.Draft()
	require.ErrorIs(t, err, errs.ErrOrderNotLoaded)

	require.NoError(t, sess.Ready(domain.OrderDraft{ID: 42, AddressID: 3}, nil, nil))
	draft, _, err := sess.Draft()
	require.NoError(t, err)
	require.Equal(t, int64(42), draft.ID)
	require.Equal(t, int64(3), sess.AddressID())
}

func TestLoadAfterCloseIsDiscarded(t *testing.T) {
	st := CreateStore()
	sess := st.Open(buyer, 42, nil)
	st.Close(sess)

	require.Error(t, sess.Context().Err())
	require.ErrorIs(t, sess.Ready(domain.OrderDraft{ID: 42}, nil, nil), errs.ErrSessionClosed)

	_, err := st.Get(7, 42)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestOpenReplacesSession(t *testing.T) {
	st := CreateStore()
	first := st.Open(buyer, 42, nil)
	require.NoError(t, first.Ready(domain.OrderDraft{ID: 42}, nil, nil))
	first.Bump()

	second := st.Open(buyer, 42, nil)
	require.True(t, first.Closed())
	require.False(t, second.Closed())
	require.Equal(t, first.Version(), second.Version())

	// Closing the replaced session must not remove its successor.
	st.Close(first)
	got, err := st.Get(7, 42)
	require.NoError(t, err)
	require.Same(t, second, got)
	require.Equal(t, 1, st.Len())
}

func TestCheckVersion(t *testing.T) {
	sess := CreateStore().Open(buyer, 42, nil)
	v := sess.Bump()

	require.NoError(t, sess.CheckVersion(v))
	require.NoError(t, sess.CheckVersion(-1))
	require.ErrorIs(t, sess.CheckVersion(v-1), errs.ErrVersionConflict)
}

func TestIdle(t *testing.T) {
	now := time.Unix(1700000000, 0)
	st := CreateStore()
	st.now = func() time.Time { return now }

	stale := st.Open(buyer, 1, nil)
	now = now.Add(20 * time.Minute)
	fresh := st.Open(buyer, 2, nil)
	now = now.Add(15 * time.Minute)

	idle := st.Idle(30 * time.Minute)
	require.Len(t, idle, 1)
	require.Same(t, stale, idle[0])

	stale.Touch()
	require.Empty(t, st.Idle(30*time.Minute))
	require.False(t, fresh.Closed())
}

func TestForBuyer(t *testing.T) {
	st := CreateStore()
	a := st.Open(buyer, 42, nil)
	b := st.Open(buyer, 43, nil)
	st.Open(domain.Buyer{ID: 8}, 42, nil)

	found := st.ForBuyer(7)
	require.ElementsMatch(t, []*Session{a, b}, found)
	require.Empty(t, st.ForBuyer(9))
}
