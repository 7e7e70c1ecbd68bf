package service

import (
	"encoding/json"
	"io"
	stdhttp "net/http"
	"time"

	"xinyuan_tech/billing-service/internal/biz"
	"xinyuan_tech/billing-service/internal/conf"
	"xinyuan_tech/billing-service/internal/constants"

	"github.com/go-kratos/kratos/v2/log"
	khttp "github.com/go-kratos/kratos/v2/transport/http"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// maxWebhookBodyBytes webhook 请求体上限
const maxWebhookBodyBytes = 1 << 20

// WebhookService 支付网关 webhook 入口
// 验签失败返回 400 不重试；业务处理的瞬时错误返回 5xx 让网关重试
type WebhookService struct {
	uc     *biz.BillingUsecase
	secret string
	log    *log.Helper
}

// NewWebhookService 创建 webhook 服务实例
func NewWebhookService(c *conf.Bootstrap, uc *biz.BillingUsecase, logger log.Logger) *WebhookService {
	secret := ""
	if c != nil && c.Stripe != nil {
		secret = c.Stripe.WebhookSecret
	}
	return &WebhookService{
		uc:     uc,
		secret: secret,
		log:    log.NewHelper(logger),
	}
}

// HandleStripeWebhook 接收并分发 Stripe webhook 事件
func (s *WebhookService) HandleStripeWebhook(ctx khttp.Context) error {
	req := ctx.Request()
	payload, err := io.ReadAll(stdhttp.MaxBytesReader(ctx.Response(), req.Body, maxWebhookBodyBytes))
	if err != nil {
		s.log.Warnf("Failed to read webhook body: %v", err)
		return ctx.Result(stdhttp.StatusBadRequest, map[string]interface{}{"error": "invalid body"})
	}

	event, err := webhook.ConstructEventWithOptions(payload, req.Header.Get("Stripe-Signature"), s.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		s.log.Warnf("Webhook signature verification failed: %v", err)
		return ctx.Result(stdhttp.StatusBadRequest, map[string]interface{}{"error": "invalid signature"})
	}

	ev, err := decodeWebhookEvent(&event)
	if err != nil {
		s.log.Warnf("Failed to decode webhook event %s (%s): %v", event.ID, event.Type, err)
		return ctx.Result(stdhttp.StatusBadRequest, map[string]interface{}{"error": "invalid payload"})
	}

	if err := s.uc.HandleWebhookEvent(ctx, ev); err != nil {
		// 瞬时错误，让 Stripe 按退避策略重发
		return err
	}
	return ctx.Result(stdhttp.StatusOK, map[string]interface{}{"received": true})
}

// decodeWebhookEvent 把已验签事件解码为内部事件结构
// 不认识的事件类型只带 Kind 下传，由 biz 层统一忽略
func decodeWebhookEvent(event *stripe.Event) (*biz.WebhookEvent, error) {
	ev := &biz.WebhookEvent{
		ID:        event.ID,
		Kind:      string(event.Type),
		CreatedAt: time.Unix(event.Created, 0).UTC(),
	}

	switch ev.Kind {
	case constants.EventCheckoutCompleted:
		var doc checkoutSessionDoc
		if err := json.Unmarshal(event.Data.Raw, &doc); err != nil {
			return nil, err
		}
		ev.CheckoutSession = doc.toPayload()
	case constants.EventSubscriptionUpdated, constants.EventSubscriptionDeleted:
		var doc subscriptionDoc
		if err := json.Unmarshal(event.Data.Raw, &doc); err != nil {
			return nil, err
		}
		ev.Subscription = doc.toPayload()
	case constants.EventInvoicePaymentSucceeded, constants.EventInvoicePaymentFailed:
		var doc invoiceDoc
		if err := json.Unmarshal(event.Data.Raw, &doc); err != nil {
			return nil, err
		}
		ev.Invoice = doc.toPayload()
	case constants.EventChargeRefunded:
		var doc chargeDoc
		if err := json.Unmarshal(event.Data.Raw, &doc); err != nil {
			return nil, err
		}
		ev.Charge = doc.toPayload()
	}
	return ev, nil
}

// checkoutSessionDoc checkout.session.completed 的原始结构
type checkoutSessionDoc struct {
	ID             string `json:"id"`
	Mode           string `json:"mode"`
	Customer       string `json:"customer"`
	Subscription   string `json:"subscription"`
	PaymentIntent  string `json:"payment_intent"`
	Currency       string `json:"currency"`
	AmountSubtotal int64  `json:"amount_subtotal"`
	AmountTotal    int64  `json:"amount_total"`
	TotalDetails   struct {
		AmountDiscount int64 `json:"amount_discount"`
		AmountTax      int64 `json:"amount_tax"`
	} `json:"total_details"`
	Metadata map[string]string `json:"metadata"`
}

func (d *checkoutSessionDoc) toPayload() *biz.CheckoutSessionPayload {
	return &biz.CheckoutSessionPayload{
		SessionID:            d.ID,
		Mode:                 d.Mode,
		StripeCustomerID:     d.Customer,
		StripeSubscriptionID: d.Subscription,
		PaymentIntentID:      d.PaymentIntent,
		Currency:             d.Currency,
		AmountSubtotalCents:  d.AmountSubtotal,
		AmountDiscountCents:  d.TotalDetails.AmountDiscount,
		AmountTaxCents:       d.TotalDetails.AmountTax,
		AmountTotalCents:     d.AmountTotal,
		Metadata:             d.Metadata,
	}
}

// subscriptionDoc customer.subscription.* 的原始结构
// 计费周期字段挂在订阅项上
type subscriptionDoc struct {
	ID                string `json:"id"`
	Customer          string `json:"customer"`
	Status            string `json:"status"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
	CanceledAt        int64  `json:"canceled_at"`
	EndedAt           int64  `json:"ended_at"`
	Items             struct {
		Data []struct {
			CurrentPeriodStart int64 `json:"current_period_start"`
			CurrentPeriodEnd   int64 `json:"current_period_end"`
			Price              struct {
				ID         string `json:"id"`
				UnitAmount int64  `json:"unit_amount"`
				Currency   string `json:"currency"`
				Recurring  struct {
					Interval      string `json:"interval"`
					IntervalCount int    `json:"interval_count"`
				} `json:"recurring"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

func (d *subscriptionDoc) toPayload() *biz.SubscriptionPayload {
	p := &biz.SubscriptionPayload{
		StripeSubscriptionID: d.ID,
		StripeCustomerID:     d.Customer,
		Status:               d.Status,
		CancelAtPeriodEnd:    d.CancelAtPeriodEnd,
	}
	if d.CanceledAt > 0 {
		t := time.Unix(d.CanceledAt, 0).UTC()
		p.CanceledAt = &t
	}
	if d.EndedAt > 0 {
		t := time.Unix(d.EndedAt, 0).UTC()
		p.EndedAt = &t
	}
	if len(d.Items.Data) > 0 {
		item := d.Items.Data[0]
		p.CurrentPeriodStart = time.Unix(item.CurrentPeriodStart, 0).UTC()
		p.CurrentPeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
		p.StripePriceID = item.Price.ID
		p.UnitAmountCents = item.Price.UnitAmount
		p.Currency = item.Price.Currency
		p.Interval = item.Price.Recurring.Interval
		p.IntervalCount = item.Price.Recurring.IntervalCount
	}
	return p
}

// invoiceDoc invoice.payment_* 的原始结构
// 新旧 API 版本的订阅/价格挂载位置不同，两处都解
type invoiceDoc struct {
	ID            string `json:"id"`
	Customer      string `json:"customer"`
	Subscription  string `json:"subscription"`
	PaymentIntent string `json:"payment_intent"`
	Currency      string `json:"currency"`
	Subtotal      int64  `json:"subtotal"`
	Tax           int64  `json:"tax"`
	Total         int64  `json:"total"`
	Parent        struct {
		SubscriptionDetails struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
	Lines struct {
		Data []struct {
			Quantity int64 `json:"quantity"`
			Amount   int64 `json:"amount"`
			Price    struct {
				ID string `json:"id"`
			} `json:"price"`
			Pricing struct {
				PriceDetails struct {
					Price string `json:"price"`
				} `json:"price_details"`
			} `json:"pricing"`
		} `json:"data"`
	} `json:"lines"`
}

func (d *invoiceDoc) toPayload() *biz.InvoicePayload {
	subscriptionID := d.Subscription
	if subscriptionID == "" {
		subscriptionID = d.Parent.SubscriptionDetails.Subscription
	}

	p := &biz.InvoicePayload{
		InvoiceID:            d.ID,
		StripeCustomerID:     d.Customer,
		StripeSubscriptionID: subscriptionID,
		PaymentIntentID:      d.PaymentIntent,
		Currency:             d.Currency,
		SubtotalCents:        d.Subtotal,
		TaxCents:             d.Tax,
		TotalCents:           d.Total,
	}
	for _, line := range d.Lines.Data {
		priceID := line.Price.ID
		if priceID == "" {
			priceID = line.Pricing.PriceDetails.Price
		}
		p.Lines = append(p.Lines, &biz.InvoiceLinePayload{
			StripePriceID: priceID,
			Quantity:      line.Quantity,
			AmountCents:   line.Amount,
		})
	}
	return p
}

// chargeDoc charge.refunded 的原始结构
type chargeDoc struct {
	ID             string `json:"id"`
	PaymentIntent  string `json:"payment_intent"`
	AmountRefunded int64  `json:"amount_refunded"`
	Refunded       bool   `json:"refunded"`
}

func (d *chargeDoc) toPayload() *biz.ChargePayload {
	return &biz.ChargePayload{
		ChargeID:            d.ID,
		PaymentIntentID:     d.PaymentIntent,
		AmountRefundedCents: d.AmountRefunded,
		Refunded:            d.Refunded,
	}
}
