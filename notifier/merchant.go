package notifier

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"
	_ "time/tzdata"

	"storefront-service/models"

	"go.uber.org/zap"
)

//go:embed templates/*
var templateFS embed.FS

var (
	textTmpl = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/merchant_order.txt"))
	htmlTmpl = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/merchant_order.html"))
)

// OrderNotification is what the merchant is told about a completed checkout.
type OrderNotification struct {
	SessionID     string
	CustomerEmail string
	Currency      string
	PaymentStatus string
	Items         []models.OrderItem
}

// Result is logged by the caller; notification failures never propagate.
type Result struct {
	Sent      bool   `json:"sent"`
	MessageID string `json:"messageId,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Error     string `json:"error,omitempty"`
}

type Notifier interface {
	NotifyMerchant(ctx context.Context, order OrderNotification) Result
}

// MerchantNotifier emails the shop owner about new orders. A nil sender or
// an empty recipient disables it.
type MerchantNotifier struct {
	sender    EmailSender
	from      string
	recipient string
	logger    *zap.Logger
	now       func() time.Time
}

func NewMerchantNotifier(sender EmailSender, from, recipient string, logger *zap.Logger) *MerchantNotifier {
	return &MerchantNotifier{sender: sender, from: from, recipient: recipient, logger: logger, now: time.Now}
}

type itemView struct {
	Name      string
	Quantity  int64
	LineTotal string
}

type orderView struct {
	SessionID     string
	CustomerEmail string
	Total         string
	Currency      string
	PaymentStatus string
	OrderTime     string
	Items         []itemView
}

func (n *MerchantNotifier) NotifyMerchant(ctx context.Context, order OrderNotification) Result {
	if n.recipient == "" {
		n.logger.Info("MERCHANT_EMAIL not configured - skipping email notification")
		return Result{Reason: "MERCHANT_EMAIL not configured"}
	}
	if n.sender == nil {
		n.logger.Info("Email not configured - SMTP settings missing")
		return Result{Reason: "SMTP not configured"}
	}

	view, total := buildView(order, n.now())
	var text, html bytes.Buffer
	if err := textTmpl.Execute(&text, view); err != nil {
		return Result{Error: fmt.Sprintf("template render failed: %v", err)}
	}
	if err := htmlTmpl.Execute(&html, view); err != nil {
		return Result{Error: fmt.Sprintf("template render failed: %v", err)}
	}

	res, err := n.sender.SendEmail(ctx, Message{
		From:    n.from,
		To:      []string{n.recipient},
		Subject: fmt.Sprintf("New Order Received - $%.2f", total),
		Text:    strings.TrimSpace(text.String()),
		HTML:    html.String(),
	})
	if err != nil {
		n.logger.Error("Failed to send merchant notification email", zap.Error(err))
		return Result{Error: err.Error()}
	}
	n.logger.Info("Merchant notification email sent", zap.String("message_id", res.MessageID))
	return Result{Sent: true, MessageID: res.MessageID}
}

func buildView(order OrderNotification, now time.Time) (orderView, float64) {
	var total float64
	items := make([]itemView, 0, len(order.Items))
	for _, it := range order.Items {
		line := it.Price * float64(it.Quantity)
		total += line
		items = append(items, itemView{Name: it.Name, Quantity: it.Quantity, LineTotal: fmt.Sprintf("%.2f", line)})
	}

	email := order.CustomerEmail
	if email == "" {
		email = "Not provided"
	}
	currency := strings.ToUpper(order.Currency)
	if currency == "" {
		currency = "USD"
	}
	return orderView{
		SessionID:     order.SessionID,
		CustomerEmail: email,
		Total:         fmt.Sprintf("%.2f", total),
		Currency:      currency,
		PaymentStatus: order.PaymentStatus,
		OrderTime:     formatPacific(now),
		Items:         items,
	}, total
}

var pacific = loadPacific()

func loadPacific() *time.Location {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		return time.FixedZone("PST", -8*60*60)
	}
	return loc
}

// formatPacific renders t like "January 2, 2006 at 3:04:05 PM PST/PDT".
func formatPacific(t time.Time) string {
	return t.In(pacific).Format("January 2, 2006 at 3:04:05 PM") + " PST/PDT"
}
