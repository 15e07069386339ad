package mailer

import (
	"context"
	"fmt"

	"github.com/alimikegami/point-of-sales/checkout-service/config"
	"github.com/alimikegami/point-of-sales/checkout-service/internal/domain"
	"github.com/alimikegami/point-of-sales/checkout-service/pkg/utils"
	"github.com/rs/zerolog/log"
	"gopkg.in/gomail.v2"
)

type Mailer struct {
	conf config.SMTPConfig
	send func(*gomail.Message) error
}

func CreateMailer(conf config.SMTPConfig) *Mailer {
	d := gomail.NewDialer(conf.Host, conf.Port, conf.Username, conf.Password)

	return &Mailer{
		conf: conf,
		send: func(m *gomail.Message) error {
			return d.DialAndSend(m)
		},
	}
}

func (m *Mailer) Enabled() bool {
	return m.conf.Host != ""
}

// SendPaymentConfirmation mails the buyer a receipt for a completed attempt.
func (m *Mailer) SendPaymentConfirmation(ctx context.Context, buyer domain.Buyer, attempt domain.PaymentSession) error {
	if !m.Enabled() || buyer.Email == "" {
		return nil
	}

	message := gomail.NewMessage()
	message.SetHeader("From", m.conf.Sender)
	message.SetHeader("To", buyer.Email)
	message.SetHeader("Subject", fmt.Sprintf("Payment received for order #%d", attempt.OrderID))
	message.SetBody("text/html", fmt.Sprintf(
		"<p>Hi %s,</p><p>We received your payment of Rp%d for order #%d on %s.</p><p>Transaction: %s</p>",
		buyer.Name, attempt.Amount, attempt.OrderID,
		utils.ConvertDateTimeToHumanReadableFormat(attempt.UpdatedAt), attempt.MerchantTxID,
	))

	if err := m.send(message); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("component", "SendPaymentConfirmation").Int64("order_id", attempt.OrderID).Msg("")
		return err
	}

	return nil
}
