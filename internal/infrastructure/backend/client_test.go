package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alimikegami/point-of-sales/checkout-service/config"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/domain"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/dto"
	circuitbreaker "github.com/alimikegami/point-of-sales/checkout-service/internal/infrastructure/circuit-breaker"
	"github.com/alimikegami/point-of-sales/checkout-service/pkg/errs"
	"github.com/alimikegami/point-of-sales/checkout-service/pkg/httpclient"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, status int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "success",
		"message": message,
		"data":    data,
	})
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	conf := config.BackendConfig{
		PointsServiceHost: srv.URL,
		CouponServiceHost: srv.URL,
		OrderServiceHost:  srv.URL,
	}

	return CreateBackendClient(conf, httpclient.CreateClient(time.Second, circuitbreaker.CreateCircuitBreaker(t.Name())))
}

var buyer = domain.Buyer{ID: 7, Token: "token-7"}

func TestTotalActivePoints(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/points/total", r.URL.Path)
		require.Equal(t, "Bearer token-7", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, "", dto.TotalPointsResponse{TotalActivePoints: 12000})
	}))

	balance, err := client.TotalActivePoints(context.Background(), buyer)
	require.NoError(t, err)
	require.Equal(t, int64(12000), balance)
}

func TestApplyPointsRejectionKeepsReason(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req dto.ApplyPointsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, int64(42), req.OrderID)
		require.Equal(t, int64(7), req.BuyerID)
		require.Equal(t, int64(99990), req.UsePointAmount)
		writeJSON(w, http.StatusUnprocessableEntity, "point amount exceeds payable amount", nil)
	}))

	err := client.ApplyPoints(context.Background(), buyer, 42, 99990)
	require.ErrorIs(t, err, errs.ErrDiscountInvalid)
	require.Equal(t, "point amount exceeds payable amount", err.Error())
}

func TestServerErrorIsUpstream(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>bad gateway</html>"))
	}))

	_, err := client.ListApplicable(context.Background(), buyer, 42)
	require.ErrorIs(t, err, errs.ErrUpstream)
	require.Equal(t, errs.ErrUpstream.Error(), errs.PublicMessage(err))
}

func TestCheckUsable(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/coupons/HEMAT%205/usable", r.URL.EscapedPath())
		require.Equal(t, "42", r.URL.Query().Get("order_id"))
		writeJSON(w, http.StatusOK, "", dto.CouponUsableResponse{Usable: false, Reason: "minimum purchase not met"})
	}))

	usable, reason, err := client.CheckUsable(context.Background(), buyer, 42, "HEMAT 5")
	require.NoError(t, err)
	require.False(t, usable)
	require.Equal(t, "minimum purchase not met", reason)
}

func TestDeleteTemporaryOrderIsIdempotent(t *testing.T) {
	calls := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		calls++
		if calls > 1 {
			writeJSON(w, http.StatusNotFound, "no temporary order", nil)
			return
		}
		writeJSON(w, http.StatusOK, "deleted", nil)
	}))

	require.NoError(t, client.DeleteTemporaryOrder(context.Background(), buyer))
	require.NoError(t, client.DeleteTemporaryOrder(context.Background(), buyer))
	require.Equal(t, 2, calls)
}

func TestVerify(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req dto.VerifyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		writeJSON(w, http.StatusOK, "", dto.VerifyResponse{Success: req.ImpUID == "imp-1"})
	}))

	ok, err := client.Verify(context.Background(), buyer, dto.VerifyRequest{ImpUID: "imp-1", MerchantUID: "m-1", OrderID: 42})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = client.Verify(context.Background(), buyer, dto.VerifyRequest{ImpUID: "forged", MerchantUID: "m-1", OrderID: 42})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyWithoutBuyerTokenUsesServiceToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer svc-token" {
			writeJSON(w, http.StatusUnauthorized, "Unauthorized access", nil)
			return
		}
		writeJSON(w, http.StatusOK, "", dto.VerifyResponse{Success: true})
	}))
	t.Cleanup(srv.Close)

	httpClient := httpclient.CreateClient(time.Second, circuitbreaker.CreateCircuitBreaker(t.Name()))
	req := dto.VerifyRequest{ImpUID: "imp-1", MerchantUID: "m-1", OrderID: 42}

	anonymous := CreateBackendClient(config.BackendConfig{OrderServiceHost: srv.URL}, httpClient)
	_, err := anonymous.Verify(context.Background(), domain.Buyer{ID: 7}, req)
	require.ErrorIs(t, err, errs.ErrNotLoggedIn)

	client := CreateBackendClient(config.BackendConfig{OrderServiceHost: srv.URL, ServiceToken: "svc-token"}, httpClient)
	ok, err := client.Verify(context.Background(), domain.Buyer{ID: 7}, req)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestGetOrder(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/orders/42", r.URL.Path)
		writeJSON(w, http.StatusOK, "", domain.OrderDraft{ID: 42, ItemTotalAmount: 50000, TotalDeliveryFee: 3000})
	}))

	draft, err := client.GetOrder(context.Background(), buyer, 42)
	require.NoError(t, err)
	require.Equal(t, int64(53000), draft.GrossAmount())
}

type memoryCache struct {
	balances    map[int64]int64
	invalidated []int64
}

func (m *memoryCache) GetBalance(ctx context.Context, buyerID int64) (int64, bool, error) {
	b, ok := m.balances[buyerID]
	return b, ok, nil
}

func (m *memoryCache) SetBalance(ctx context.Context, buyerID int64, balance int64) error {
	m.balances[buyerID] = balance
	return nil
}

func (m *memoryCache) InvalidateBalance(ctx context.Context, buyerID int64) error {
	delete(m.balances, buyerID)
	m.invalidated = append(m.invalidated, buyerID)
	return nil
}

func TestCachedPointLedger(t *testing.T) {
	reads := 0
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/points/total" {
			reads++
			writeJSON(w, http.StatusOK, "", dto.TotalPointsResponse{TotalActivePoints: 5000})
			return
		}
		writeJSON(w, http.StatusOK, "applied", nil)
	}))
	cache := &memoryCache{balances: map[int64]int64{}}
	ledger := CreateCachedPointLedger(client, cache)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		balance, err := ledger.TotalActivePoints(ctx, buyer)
		require.NoError(t, err)
		require.Equal(t, int64(5000), balance)
	}
	require.Equal(t, 1, reads)

	require.NoError(t, ledger.ApplyPoints(ctx, buyer, 42, 1000))
	require.Equal(t, []int64{7}, cache.invalidated)

	_, err := ledger.TotalActivePoints(ctx, buyer)
	require.NoError(t, err)
	require.Equal(t, 2, reads)
}
