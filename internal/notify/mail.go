package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/wneessen/go-mail"

	"github.com/xenking/atelier/internal/domain/order"
)

// Sender is implemented by *mail.Client.
type Sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Mail sends an order confirmation to the shipping address email.
type Mail struct {
	sender Sender
	from   string
}

var _ order.Notifier = (*Mail)(nil)

// NewMail creates a Mail notifier sending from the given address.
func NewMail(sender Sender, from string) *Mail {
	return &Mail{sender: sender, from: from}
}

// SMTPConfig holds SMTP connection settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// NewSMTPClient creates a go-mail client requiring TLS.
func NewSMTPClient(cfg SMTPConfig) (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(mail.TLSMandatory),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthLogin),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "create smtp client")
	}
	return client, nil
}

// OrderPlaced implements order.Notifier.
func (m *Mail) OrderPlaced(ctx context.Context, o *order.Order) error {
	msg, err := m.compose(o)
	if err != nil {
		return err
	}
	if err := m.sender.DialAndSendWithContext(ctx, msg); err != nil {
		return errors.Wrapf(err, "send confirmation for %s", o.Number)
	}
	return nil
}

func (m *Mail) compose(o *order.Order) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return nil, errors.Wrap(err, "set sender")
	}
	if err := msg.To(o.ShippingAddress.Email); err != nil {
		return nil, errors.Wrap(err, "set recipient")
	}
	msg.Subject(fmt.Sprintf("Order %s confirmed", o.Number))
	msg.SetBodyString(mail.TypeTextPlain, renderConfirmation(o))
	return msg, nil
}

func renderConfirmation(o *order.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", o.ShippingAddress.FirstName)
	fmt.Fprintf(&b, "We received your order %s.\n\n", o.Number)
	for _, it := range o.Items {
		fmt.Fprintf(&b, "  %d x %s  %s %s\n", it.Quantity, it.ProductName, it.LineTotal.StringFixed(2), o.Currency)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Subtotal: %s %s\n", o.Subtotal.StringFixed(2), o.Currency)
	if o.DiscountAmount.IsPositive() {
		fmt.Fprintf(&b, "Discount (%s): -%s %s\n", o.CouponCode, o.DiscountAmount.StringFixed(2), o.Currency)
	}
	fmt.Fprintf(&b, "Shipping: %s %s\n", o.ShippingCost.StringFixed(2), o.Currency)
	fmt.Fprintf(&b, "Total: %s %s\n\n", o.Total.StringFixed(2), o.Currency)

	a := o.ShippingAddress
	fmt.Fprintf(&b, "Shipping to:\n%s %s\n%s\n%s, %s %s\n", a.FirstName, a.LastName, a.Address, a.District, a.City, a.PostalCode)
	return b.String()
}
