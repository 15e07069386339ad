package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/alimikegami/point-of-sales/checkout-service/internal/domain"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/dto"
	"github.com/alimikegami/point-of-sales/checkout-service/pkg/errs"
)

func (c *Client) ListApplicable(ctx context.Context, buyer domain.Buyer, orderID int64) ([]domain.Coupon, error) {
	res, err := send[dto.CouponListResponse](ctx, c, buyer, call{
		method: http.MethodGet,
		url:    fmt.Sprintf("%s/api/v1/coupons/applicable?order_id=%d", c.conf.CouponServiceHost, orderID),
	})
	if err != nil {
		return nil, err
	}

	return res.Coupons, nil
}

func (c *Client) CheckUsable(ctx context.Context, buyer domain.Buyer, orderID int64, code string) (bool, string, error) {
	res, err := send[dto.CouponUsableResponse](ctx, c, buyer, call{
		method: http.MethodGet,
		url: fmt.Sprintf("%s/api/v1/coupons/%s/usable?order_id=%d",
			c.conf.CouponServiceHost, url.PathEscape(code), orderID),
		rejection: errs.ErrCouponNotUsable,
	})
	if err != nil {
		return false, "", err
	}

	return res.Usable, res.Reason, nil
}

func (c *Client) Cancel(ctx context.Context, buyer domain.Buyer, orderID int64) error {
	_, err := send[struct{}](ctx, c, buyer, call{
		method: http.MethodPost,
		url:    fmt.Sprintf("%s/api/v1/coupons/cancel", c.conf.CouponServiceHost),
		body:   dto.CancelCouponRequest{OrderID: orderID},
	})

	return err
}
