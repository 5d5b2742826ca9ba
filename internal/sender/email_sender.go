package sender

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/jordan-wright/email"
	log "github.com/sirupsen/logrus"
)

type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

type SMTPEmailSender struct {
	host string
	port string
	user string
	pass string
	from string
}

func NewSMTPEmailSender(host, port, user, pass, from string) *SMTPEmailSender {
	return &SMTPEmailSender{host: host, port: port, user: user, pass: pass, from: from}
}

func (s *SMTPEmailSender) SendEmail(ctx context.Context, to, subject, body string) error {
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	auth := smtp.PlainAuth("", s.user, s.pass, s.host)

	e := email.NewEmail()
	e.From = s.from
	e.To = []string{to}
	e.Subject = subject
	e.Text = []byte(body)

	return e.Send(addr, auth)
}

// NopEmailSender is used when SMTP is not configured. Receipts are optional;
// the purchase itself is already durable before any email is attempted.
type NopEmailSender struct{}

func (NopEmailSender) SendEmail(ctx context.Context, to, subject, body string) error {
	log.WithField("to", to).Debug("SMTP disabled, dropping email")
	return nil
}

// PurchaseReceipt renders the confirmation email for a completed purchase.
func PurchaseReceipt(itemTitle, transactionID string, amount int64, currency string) (subject, body string) {
	subject = "Your purchase is complete"
	body = fmt.Sprintf(
		"Hello!\n\nYou have purchased %q for %d.%02d %s.\nTransaction ID: %s\n\nThank you for your purchase!",
		itemTitle, amount/100, amount%100, currency, transactionID,
	)
	return subject, body
}

// RefundNotice renders the notification email for a confirmed refund.
func RefundNotice(itemTitle, refundID string, amount int64, currency string) (subject, body string) {
	subject = "Your refund has been processed"
	body = fmt.Sprintf(
		"Hello!\n\nYour purchase of %q has been refunded (%d.%02d %s).\nRefund ID: %s\n",
		itemTitle, amount/100, amount%100, currency, refundID,
	)
	return subject, body
}
