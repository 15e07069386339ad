package middleware

import (
	"strings"

	"github.com/alimikegami/point-of-sales/checkout-service/internal/domain"
	"github.com/alimikegami/point-of-sales/checkout-service/pkg/errs"
	"github.com/alimikegami/point-of-sales/checkout-service/pkg/response"
	"github.com/alimikegami/point-of-sales/checkout-service/pkg/utils"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

const buyerKey = "buyer"

// IsLoggedIn rejects requests without a valid buyer token and stores the
// buyer on the echo context. Beacons cannot set headers, so the token may also
// come from the access_token query parameter.
func IsLoggedIn(jwtSecret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := strings.CutPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
			if !ok {
				raw = c.QueryParam("access_token")
			}
			if raw == "" {
				return response.WriteErrorResponse(c, errs.ErrNotLoggedIn, nil)
			}

			claims, err := utils.ParseBuyerToken(raw, jwtSecret)
			if err != nil {
				log.Ctx(c.Request().Context()).Warn().Err(err).Str("component", "IsLoggedIn").Msg("")
				return response.WriteErrorResponse(c, errs.ErrNotLoggedIn, nil)
			}

			c.Set(buyerKey, domain.Buyer{
				ID:    claims.BuyerID,
				Name:  claims.Name,
				Email: claims.Email,
				Phone: claims.Phone,
				Token: claims.Token,
			})

			return next(c)
		}
	}
}

// Buyer returns the buyer stored by IsLoggedIn.
func Buyer(c echo.Context) (domain.Buyer, bool) {
	buyer, ok := c.Get(buyerKey).(domain.Buyer)
	return buyer, ok
}
