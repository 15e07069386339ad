package backend

import (
	"context"
	"fmt"
	"net/http"

	"github.com/alimikegami/point-of-sales/checkout-service/internal/domain"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/dto"
	"github.com/alimikegami/point-of-sales/checkout-service/pkg/errs"
	"github.com/rs/zerolog/log"
)

func (c *Client) TotalActivePoints(ctx context.Context, buyer domain.Buyer) (int64, error) {
	res, err := send[dto.TotalPointsResponse](ctx, c, buyer, call{
		method: http.MethodGet,
		url:    fmt.Sprintf("%s/api/v1/points/total", c.conf.PointsServiceHost),
	})
	if err != nil {
		return 0, err
	}

	return res.TotalActivePoints, nil
}

// ApplyPoints reserves amount points against the order. Zero releases the
// reservation.
func (c *Client) ApplyPoints(ctx context.Context, buyer domain.Buyer, orderID int64, amount int64) error {
	_, err := send[struct{}](ctx, c, buyer, call{
		method: http.MethodPost,
		url:    fmt.Sprintf("%s/api/v1/points/apply", c.conf.PointsServiceHost),
		body: dto.ApplyPointsRequest{
			OrderID:        orderID,
			BuyerID:        buyer.ID,
			UsePointAmount: amount,
		},
		rejection: errs.ErrDiscountInvalid,
	})

	return err
}

type BalanceCache interface {
	GetBalance(ctx context.Context, buyerID int64) (balance int64, found bool, err error)
	SetBalance(ctx context.Context, buyerID int64, balance int64) error
	InvalidateBalance(ctx context.Context, buyerID int64) error
}

// PointLedger is the points client fronted by a balance cache. Every
// reservation change drops the cached balance so the next read goes to the
// points service.
type PointLedger struct {
	client *Client
	cache  BalanceCache
}

func CreateCachedPointLedger(client *Client, cache BalanceCache) *PointLedger {
	return &PointLedger{client: client, cache: cache}
}

func (p *PointLedger) TotalActivePoints(ctx context.Context, buyer domain.Buyer) (int64, error) {
	balance, found, err := p.cache.GetBalance(ctx, buyer.ID)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("component", "TotalActivePoints").Msg("balance cache unavailable")
	}
	if found {
		return balance, nil
	}

	balance, err = p.client.TotalActivePoints(ctx, buyer)
	if err != nil {
		return 0, err
	}

	if err := p.cache.SetBalance(ctx, buyer.ID, balance); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("component", "TotalActivePoints").Msg("")
	}

	return balance, nil
}

func (p *PointLedger) ApplyPoints(ctx context.Context, buyer domain.Buyer, orderID int64, amount int64) error {
	err := p.client.ApplyPoints(ctx, buyer, orderID, amount)

	// The ledger may have changed even when the answer got lost.
	if ierr := p.cache.InvalidateBalance(ctx, buyer.ID); ierr != nil {
		log.Ctx(ctx).Warn().Err(ierr).Str("component", "ApplyPoints").Msg("")
	}

	return err
}
