package controller

import (
	"strconv"
	"strings"

	"github.com/alimikegami/point-of-sales/checkout-service/internal/domain"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/dto"
	localmiddleware "github.com/alimikegami/point-of-sales/checkout-service/internal/middleware"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/service"
	"github.com/alimikegami/point-of-sales/checkout-service/pkg/errs"
	"github.com/alimikegami/point-of-sales/checkout-service/pkg/response"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

const (
	headerETag    = "ETag"
	headerIfMatch = "If-Match"
)

type Controller struct {
	service service.CheckoutService
}

func CreateCheckoutController(e *echo.Group, service service.CheckoutService, isLoggedIn echo.MiddlewareFunc) {
	c := Controller{
		service: service,
	}

	e.POST("/payments/notifications", c.MidtransPaymentWebhook)

	g := e.Group("/checkout/:orderId", isLoggedIn)
	g.POST("", c.StartCheckout)
	g.GET("", c.GetCheckout)
	g.PUT("/address", c.SelectAddress)

	g.PUT("/points", c.SetPointInput)
	g.POST("/points/apply", c.ApplyPoints)
	g.POST("/points/all", c.UseAllPoints)
	g.DELETE("/points", c.CancelPoints)

	g.GET("/coupons", c.ListCoupons)
	g.POST("/coupons", c.ApplyCoupon)
	g.DELETE("/coupons", c.CancelCoupon)

	g.POST("/payments", c.RequestPayment)
	g.GET("/payments", c.GetPayments)
	g.POST("/payments/:merchantUid/callback", c.HandlePaymentCallback)
	g.POST("/payments/:merchantUid/complete", c.RetryCompletion)

	g.POST("/leave", c.Leave)
}

type mutation func(ctx echo.Context, buyer domain.Buyer, orderID int64, version int64) (dto.CheckoutResponse, error)

// checkout resolves the buyer, order id and If-Match version shared by all
// checkout routes, then writes the result with its ETag.
func (c *Controller) checkout(e echo.Context, component string, fn mutation) error {
	buyer, orderID, err := requestScope(e)
	if err != nil {
		return response.WriteErrorResponse(e, err, nil)
	}

	version, err := ifMatch(e)
	if err != nil {
		return response.WriteErrorResponse(e, err, nil)
	}

	res, err := fn(e, buyer, orderID, version)
	if err != nil {
		log.Ctx(e.Request().Context()).Error().Err(err).Str("component", component).Int64("order_id", orderID).Msg("")
		return response.WriteErrorResponse(e, err, nil)
	}

	e.Response().Header().Set(headerETag, etag(res.Version))
	return response.WriteSuccessResponse(e, "", res)
}

func (c *Controller) StartCheckout(e echo.Context) error {
	return c.checkout(e, "StartCheckout", func(e echo.Context, buyer domain.Buyer, orderID, _ int64) (dto.CheckoutResponse, error) {
		return c.service.StartCheckout(e.Request().Context(), buyer, orderID)
	})
}

func (c *Controller) GetCheckout(e echo.Context) error {
	return c.checkout(e, "GetCheckout", func(e echo.Context, buyer domain.Buyer, orderID, _ int64) (dto.CheckoutResponse, error) {
		return c.service.GetCheckout(e.Request().Context(), buyer, orderID)
	})
}

func (c *Controller) SelectAddress(e echo.Context) error {
	return c.checkout(e, "SelectAddress", func(e echo.Context, buyer domain.Buyer, orderID, version int64) (dto.CheckoutResponse, error) {
		payload := dto.SelectAddressRequest{}
		if err := bind(e, &payload); err != nil {
			return dto.CheckoutResponse{}, err
		}
		return c.service.SelectAddress(e.Request().Context(), buyer, orderID, version, payload)
	})
}

func (c *Controller) SetPointInput(e echo.Context) error {
	return c.checkout(e, "SetPointInput", func(e echo.Context, buyer domain.Buyer, orderID, version int64) (dto.CheckoutResponse, error) {
		payload := dto.PointInputRequest{}
		if err := bind(e, &payload); err != nil {
			return dto.CheckoutResponse{}, err
		}
		return c.service.SetPointInput(e.Request().Context(), buyer, orderID, version, payload)
	})
}

func (c *Controller) ApplyPoints(e echo.Context) error {
	return c.checkout(e, "ApplyPoints", func(e echo.Context, buyer domain.Buyer, orderID, version int64) (dto.CheckoutResponse, error) {
		payload := dto.PointInputRequest{}
		if err := bind(e, &payload); err != nil {
			return dto.CheckoutResponse{}, err
		}
		return c.service.ApplyPoints(e.Request().Context(), buyer, orderID, version, payload)
	})
}

func (c *Controller) UseAllPoints(e echo.Context) error {
	return c.checkout(e, "UseAllPoints", func(e echo.Context, buyer domain.Buyer, orderID, version int64) (dto.CheckoutResponse, error) {
		return c.service.UseAllPoints(e.Request().Context(), buyer, orderID, version)
	})
}

func (c *Controller) CancelPoints(e echo.Context) error {
	return c.checkout(e, "CancelPoints", func(e echo.Context, buyer domain.Buyer, orderID, version int64) (dto.CheckoutResponse, error) {
		return c.service.CancelPoints(e.Request().Context(), buyer, orderID, version)
	})
}

func (c *Controller) ListCoupons(e echo.Context) error {
	buyer, orderID, err := requestScope(e)
	if err != nil {
		return response.WriteErrorResponse(e, err, nil)
	}

	coupons, err := c.service.ListCoupons(e.Request().Context(), buyer, orderID)
	if err != nil {
		return response.WriteErrorResponse(e, err, nil)
	}

	return response.WriteSuccessResponse(e, "", coupons)
}

func (c *Controller) ApplyCoupon(e echo.Context) error {
	return c.checkout(e, "ApplyCoupon", func(e echo.Context, buyer domain.Buyer, orderID, version int64) (dto.CheckoutResponse, error) {
		payload := dto.ApplyCouponRequest{}
		if err := bind(e, &payload); err != nil {
			return dto.CheckoutResponse{}, err
		}
		return c.service.ApplyCoupon(e.Request().Context(), buyer, orderID, version, payload)
	})
}

func (c *Controller) CancelCoupon(e echo.Context) error {
	return c.checkout(e, "CancelCoupon", func(e echo.Context, buyer domain.Buyer, orderID, version int64) (dto.CheckoutResponse, error) {
		return c.service.CancelCoupon(e.Request().Context(), buyer, orderID, version)
	})
}

func (c *Controller) RequestPayment(e echo.Context) error {
	buyer, orderID, err := requestScope(e)
	if err != nil {
		return response.WriteErrorResponse(e, err, nil)
	}
	version, err := ifMatch(e)
	if err != nil {
		return response.WriteErrorResponse(e, err, nil)
	}

	payload := dto.PaymentRequest{}
	if err = bind(e, &payload); err != nil {
		return response.WriteErrorResponse(e, err, nil)
	}

	resp, err := c.service.RequestPayment(e.Request().Context(), buyer, orderID, version, payload)
	if err != nil {
		log.Ctx(e.Request().Context()).Error().Err(err).Str("component", "RequestPayment").Int64("order_id", orderID).Msg("")
		return response.WriteErrorResponse(e, err, resp.Attempt)
	}

	return response.WriteSuccessResponse(e, "payment requested", resp)
}

func (c *Controller) GetPayments(e echo.Context) error {
	buyer, orderID, err := requestScope(e)
	if err != nil {
		return response.WriteErrorResponse(e, err, nil)
	}

	attempts, err := c.service.GetPayments(e.Request().Context(), buyer, orderID)
	if err != nil {
		return response.WriteErrorResponse(e, err, nil)
	}

	return response.WriteSuccessResponse(e, "", attempts)
}

func (c *Controller) HandlePaymentCallback(e echo.Context) error {
	buyer, orderID, err := requestScope(e)
	if err != nil {
		return response.WriteErrorResponse(e, err, nil)
	}

	payload := dto.PaymentCallbackRequest{}
	if err = bind(e, &payload); err != nil {
		return response.WriteErrorResponse(e, err, nil)
	}

	attempt, err := c.service.HandlePaymentCallback(e.Request().Context(), buyer, orderID, e.Param("merchantUid"), payload)
	if err != nil {
		log.Ctx(e.Request().Context()).Error().Err(err).Str("component", "HandlePaymentCallback").Int64("order_id", orderID).Msg("")
		return response.WriteErrorResponse(e, err, attempt)
	}

	return response.WriteSuccessResponse(e, "payment completed", attempt)
}

func (c *Controller) RetryCompletion(e echo.Context) error {
	buyer, orderID, err := requestScope(e)
	if err != nil {
		return response.WriteErrorResponse(e, err, nil)
	}

	attempt, err := c.service.RetryCompletion(e.Request().Context(), buyer, orderID, e.Param("merchantUid"))
	if err != nil {
		log.Ctx(e.Request().Context()).Error().Err(err).Str("component", "RetryCompletion").Int64("order_id", orderID).Msg("")
		return response.WriteErrorResponse(e, err, attempt)
	}

	return response.WriteSuccessResponse(e, "payment completed", attempt)
}

func (c *Controller) Leave(e echo.Context) error {
	buyer, orderID, err := requestScope(e)
	if err != nil {
		return response.WriteErrorResponse(e, err, nil)
	}

	payload := dto.LeaveRequest{}
	if err = bind(e, &payload); err != nil {
		return response.WriteErrorResponse(e, err, nil)
	}

	resp, err := c.service.Leave(e.Request().Context(), buyer, orderID, payload)
	if err != nil {
		return response.WriteErrorResponse(e, err, nil)
	}

	return response.WriteSuccessResponse(e, "", resp)
}

func (c *Controller) MidtransPaymentWebhook(e echo.Context) error {
	payload := dto.PaymentNotification{}
	if err := bind(e, &payload); err != nil {
		return response.WriteErrorResponse(e, err, nil)
	}

	if err := c.service.MidtransPaymentWebhook(e.Request().Context(), payload); err != nil {
		return response.WriteErrorResponse(e, err, nil)
	}

	return response.WriteSuccessResponse(e, "", nil)
}

func requestScope(e echo.Context) (domain.Buyer, int64, error) {
	buyer, ok := localmiddleware.Buyer(e)
	if !ok {
		return buyer, 0, errs.ErrNotLoggedIn
	}

	orderID, err := strconv.ParseInt(e.Param("orderId"), 10, 64)
	if err != nil || orderID <= 0 {
		return buyer, 0, errs.NewBusinessError(errs.ErrClient, "invalid order id")
	}

	return buyer, orderID, nil
}

func bind(e echo.Context, payload interface{}) error {
	if err := e.Bind(payload); err != nil {
		log.Ctx(e.Request().Context()).Error().Err(err).Str("component", "bind").Msg("")
		return errs.NewBusinessError(errs.ErrClient, "malformed request body")
	}
	return nil
}

// ifMatch reads the checkout version the client last saw. A missing header
// skips the check.
func ifMatch(e echo.Context) (int64, error) {
	raw := e.Request().Header.Get(headerIfMatch)
	if raw == "" || raw == "*" {
		return service.NoVersion, nil
	}

	raw = strings.Trim(strings.TrimPrefix(raw, "W/"), `"`)
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || version < 0 {
		return 0, errs.NewBusinessError(errs.ErrClient, "invalid If-Match header")
	}

	return version, nil
}

func etag(version int64) string {
	return strconv.Quote(strconv.FormatInt(version, 10))
}
