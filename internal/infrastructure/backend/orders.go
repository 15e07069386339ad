package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/alimikegami/point-of-sales/checkout-service/internal/domain"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/dto"
	"github.com/alimikegami/point-of-sales/checkout-service/pkg/errs"
)

func (c *Client) GetOrder(ctx context.Context, buyer domain.Buyer, orderID int64) (domain.OrderDraft, error) {
	return send[domain.OrderDraft](ctx, c, buyer, call{
		method: http.MethodGet,
		url:    fmt.Sprintf("%s/api/v1/orders/%d", c.conf.OrderServiceHost, orderID),
	})
}

func (c *Client) CompleteOrder(ctx context.Context, buyer domain.Buyer, orderID int64, addressID int64, couponCode *string) (string, error) {
	res, err := send[struct {
		Message string `json:"message"`
	}](ctx, c, buyer, call{
		method: http.MethodPost,
		url:    fmt.Sprintf("%s/api/v1/orders/%d/complete", c.conf.OrderServiceHost, orderID),
		body: dto.CompleteOrderRequest{
			AddressID:  addressID,
			CouponCode: couponCode,
		},
	})
	if err != nil {
		return "", err
	}

	return res.Message, nil
}

// DeleteTemporaryOrder removes the buyer's temporary order. A draft that is
// already gone counts as deleted.
func (c *Client) DeleteTemporaryOrder(ctx context.Context, buyer domain.Buyer) error {
	_, err := send[struct{}](ctx, c, buyer, call{
		method: http.MethodDelete,
		url:    fmt.Sprintf("%s/api/v1/orders/temporary", c.conf.OrderServiceHost),
	})
	if errors.Is(err, errs.ErrNotFound) {
		return nil
	}

	return err
}

// Verify asks the order service to check the charged amount against the
// order total. Only an explicit success counts as verified.
func (c *Client) Verify(ctx context.Context, buyer domain.Buyer, req dto.VerifyRequest) (bool, error) {
	res, err := send[dto.VerifyResponse](ctx, c, buyer, call{
		method:    http.MethodPost,
		url:       fmt.Sprintf("%s/api/v1/payments/verify", c.conf.OrderServiceHost),
		body:      req,
		rejection: errs.ErrPaymentNotVerified,
	})
	if err != nil {
		return false, err
	}

	return res.Success, nil
}
