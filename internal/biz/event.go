package biz

import "time"

// WebhookEvent 已验签并解码的支付网关事件(tagged union，按 Kind 分发)
// 只有与 Kind 对应的 payload 字段非 nil
type WebhookEvent struct {
	ID        string
	Kind      string
	CreatedAt time.Time

	CheckoutSession *CheckoutSessionPayload
	Subscription    *SubscriptionPayload
	Invoice         *InvoicePayload
	Charge          *ChargePayload
}

// CheckoutSessionPayload checkout.session.completed 的解码结果
type CheckoutSessionPayload struct {
	SessionID            string
	Mode                 string // payment, subscription
	StripeCustomerID     string
	StripeSubscriptionID string
	PaymentIntentID      string
	Currency             string
	AmountSubtotalCents  int64
	AmountDiscountCents  int64
	AmountTaxCents       int64
	AmountTotalCents     int64
	Metadata             map[string]string
}

// SubscriptionPayload 订阅生命周期事件的解码结果，
// 同时也是 PaymentGateway.GetSubscription 返回的订阅详情
type SubscriptionPayload struct {
	StripeSubscriptionID string
	StripeCustomerID     string
	Status               string // Stripe 原始状态字符串
	CancelAtPeriodEnd    bool
	CurrentPeriodStart   time.Time
	CurrentPeriodEnd     time.Time
	CanceledAt           *time.Time
	EndedAt              *time.Time
	StripePriceID        string
	UnitAmountCents      int64
	Currency             string
	Interval             string
	IntervalCount        int
}

// InvoicePayload invoice.payment_succeeded / invoice.payment_failed 的解码结果
type InvoicePayload struct {
	InvoiceID            string
	StripeCustomerID     string
	StripeSubscriptionID string
	PaymentIntentID      string
	Currency             string
	SubtotalCents        int64
	TaxCents             int64
	TotalCents           int64
	Lines                []*InvoiceLinePayload
}

// InvoiceLinePayload 账单行项目
type InvoiceLinePayload struct {
	StripePriceID string
	Quantity      int64
	AmountCents   int64
}

// ChargePayload charge.refunded 的解码结果
type ChargePayload struct {
	ChargeID            string
	PaymentIntentID     string
	AmountRefundedCents int64
	Refunded            bool
}
