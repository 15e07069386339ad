package paymentgateway

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"

	"github.com/alimikegami/point-of-sales/checkout-service/config"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/domain"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/dto"
	"github.com/alimikegami/point-of-sales/checkout-service/pkg/errs"
	"github.com/alimikegami/point-of-sales/checkout-service/pkg/utils"
	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/rs/zerolog/log"
)

const ProviderMidtrans = "midtrans"

var paymentTypes = map[string]coreapi.CoreapiPaymentType{
	"qris":      coreapi.PaymentTypeQris,
	"gopay":     coreapi.PaymentTypeGopay,
	"shopeepay": coreapi.PaymentTypeShopeepay,
}

type MidtransGateway struct {
	client    *coreapi.Client
	serverKey string
}

func CreateMidtransGateway(conf config.MidtransConfig) *MidtransGateway {
	env := midtrans.Sandbox
	if conf.Environment == "production" {
		env = midtrans.Production
	}

	client := &coreapi.Client{}
	client.New(conf.ServerKey, env)

	return &MidtransGateway{
		client:    client,
		serverKey: conf.ServerKey,
	}
}

func (g *MidtransGateway) Provider() string {
	return ProviderMidtrans
}

// RequestPay charges desc.Amount through the core API. The charge stays
// pending until midtrans sends its notification.
func (g *MidtransGateway) RequestPay(ctx context.Context, desc domain.PaymentDescriptor) (domain.GatewayReceipt, error) {
	paymentType, ok := paymentTypes[desc.PayMethod]
	if !ok {
		return domain.GatewayReceipt{}, errs.NewBusinessError(errs.ErrGatewayRejected,
			fmt.Sprintf("payment method %q is not supported", desc.PayMethod))
	}

	chargeReq := &coreapi.ChargeReq{
		PaymentType: paymentType,
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  desc.MerchantTxID,
			GrossAmt: desc.Amount,
		},
		CustomerDetails: &midtrans.CustomerDetails{
			FName: desc.Buyer.Name,
			Email: desc.Buyer.Email,
			Phone: desc.Buyer.Phone,
		},
		Items: chargeItems(desc),
	}

	response, mErr := g.client.ChargeTransaction(chargeReq)
	if mErr != nil {
		log.Ctx(ctx).Error().Err(mErr.RawError).Str("component", "RequestPay").
			Int("status_code", mErr.StatusCode).Str("merchant_uid", desc.MerchantTxID).Msg(mErr.Message)
		if mErr.StatusCode == 0 || mErr.StatusCode >= http.StatusInternalServerError {
			return domain.GatewayReceipt{}, fmt.Errorf("%w: %s", errs.ErrGatewayUnavailable, mErr.Message)
		}
		return domain.GatewayReceipt{}, errs.NewBusinessError(errs.ErrGatewayRejected, mErr.Message)
	}
	if response.StatusCode != "201" {
		return domain.GatewayReceipt{}, errs.NewBusinessError(errs.ErrGatewayRejected, response.StatusMessage)
	}

	expiredAt, err := utils.ConvertDateTimeWibToUnixTimestamp(response.ExpiryTime)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("component", "RequestPay").Msg("unreadable expiry time")
	}

	receipt := domain.GatewayReceipt{
		GatewayTxID: response.TransactionID,
		QRString:    response.QRString,
		ExpiredAt:   expiredAt,
	}
	for _, action := range response.Actions {
		if action.Name == "deeplink-redirect" || receipt.RedirectURL == "" {
			receipt.RedirectURL = action.URL
		}
	}

	return receipt, nil
}

// chargeItems lists the order lines only when they add up to the charged
// amount; midtrans rejects item details that do not match the gross amount,
// which is the case as soon as points or a coupon are applied.
func chargeItems(desc domain.PaymentDescriptor) *[]midtrans.ItemDetails {
	var sum int64
	items := make([]midtrans.ItemDetails, 0, len(desc.Items))
	for _, item := range desc.Items {
		if item.Quantity <= 0 {
			continue
		}
		unit := item.Amount / item.Quantity
		sum += unit * item.Quantity
		items = append(items, midtrans.ItemDetails{
			ID:    item.ProductID,
			Price: unit,
			Qty:   int32(item.Quantity),
			Name:  item.ProductName,
		})
	}

	if sum != desc.Amount {
		items = []midtrans.ItemDetails{{
			ID:    desc.MerchantTxID,
			Price: desc.Amount,
			Qty:   1,
			Name:  desc.OrderName,
		}}
	}

	return &items
}

// Signature is midtrans' notification signature:
// SHA512(order_id + status_code + gross_amount + server_key).
func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

func (g *MidtransGateway) VerifyNotification(n dto.PaymentNotification) error {
	expected := Signature(n.OrderID, n.StatusCode, n.GrossAmount, g.serverKey)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(n.SignatureKey)) != 1 {
		return errs.ErrInvalidSignature
	}
	return nil
}

// ResultFromNotification maps a notification to a gateway result. The
// second value is false while the transaction is still undecided.
func ResultFromNotification(n dto.PaymentNotification) (domain.GatewayResult, bool) {
	result := domain.GatewayResult{
		MerchantTxID: n.OrderID,
		GatewayTxID:  n.TransactionID,
	}

	switch n.TransactionStatus {
	case "settlement":
		result.Success = true
	case "capture":
		switch n.FraudStatus {
		case "", "accept":
			result.Success = true
		case "challenge":
			return result, false
		default:
			result.ErrorMessage = n.StatusMessage
		}
	case "deny", "cancel", "expire", "failure":
		result.ErrorMessage = n.StatusMessage
		if result.ErrorMessage == "" {
			result.ErrorMessage = "payment " + n.TransactionStatus
		}
	default:
		return result, false
	}

	return result, true
}
