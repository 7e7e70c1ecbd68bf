package data

import (
	"context"
	"fmt"
	"strings"
	"time"
	"xinyuan_tech/billing-service/internal/biz"
	"xinyuan_tech/billing-service/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/price"
	"github.com/stripe/stripe-go/v82/product"
	"github.com/stripe/stripe-go/v82/refund"
	"github.com/stripe/stripe-go/v82/subscription"
)

// stripeGateway Stripe 支付网关实现
type stripeGateway struct {
	log *log.Helper
}

// NewStripeGateway 创建 Stripe 网关客户端
func NewStripeGateway(c *conf.Bootstrap, logger log.Logger) biz.PaymentGateway {
	if c != nil && c.Stripe != nil {
		stripe.Key = c.Stripe.ApiKey
	}
	return &stripeGateway{
		log: log.NewHelper(logger),
	}
}

// CreateCustomer 创建 Stripe customer
func (g *stripeGateway) CreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
	}
	params.Context = ctx
	if name != "" {
		params.Name = stripe.String(name)
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	c, err := customer.New(params)
	if err != nil {
		g.log.Errorf("Failed to create stripe customer for %s: %v", email, err)
		return "", err
	}
	return c.ID, nil
}

// CreateCheckoutSession 创建结账会话
func (g *stripeGateway) CreateCheckoutSession(ctx context.Context, p *biz.CheckoutSessionParams) (string, string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(p.Mode),
		Customer:   stripe.String(p.StripeCustomerID),
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(p.StripePriceID),
				Quantity: stripe.Int64(p.Quantity),
			},
		},
	}
	params.Context = ctx
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	s, err := session.New(params)
	if err != nil {
		g.log.Errorf("Failed to create checkout session for customer %s: %v", p.StripeCustomerID, err)
		return "", "", err
	}
	return s.ID, s.URL, nil
}

// GetSubscription 拉取订阅详情并展开价格信息
func (g *stripeGateway) GetSubscription(ctx context.Context, stripeSubscriptionID string) (*biz.SubscriptionPayload, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	params.AddExpand("items.data.price")

	s, err := subscription.Get(stripeSubscriptionID, params)
	if err != nil {
		g.log.Errorf("Failed to get stripe subscription %s: %v", stripeSubscriptionID, err)
		return nil, err
	}
	if s.Items == nil || len(s.Items.Data) == 0 {
		return nil, fmt.Errorf("stripe subscription %s has no items", stripeSubscriptionID)
	}

	payload := &biz.SubscriptionPayload{
		StripeSubscriptionID: s.ID,
		Status:               string(s.Status),
		CancelAtPeriodEnd:    s.CancelAtPeriodEnd,
	}
	if s.Customer != nil {
		payload.StripeCustomerID = s.Customer.ID
	}
	if s.CanceledAt > 0 {
		t := time.Unix(s.CanceledAt, 0).UTC()
		payload.CanceledAt = &t
	}
	if s.EndedAt > 0 {
		t := time.Unix(s.EndedAt, 0).UTC()
		payload.EndedAt = &t
	}

	item := s.Items.Data[0]
	payload.CurrentPeriodStart = time.Unix(item.CurrentPeriodStart, 0).UTC()
	payload.CurrentPeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
	if item.Price != nil {
		payload.StripePriceID = item.Price.ID
		payload.UnitAmountCents = item.Price.UnitAmount
		payload.Currency = strings.ToLower(string(item.Price.Currency))
		if item.Price.Recurring != nil {
			payload.Interval = string(item.Price.Recurring.Interval)
			payload.IntervalCount = int(item.Price.Recurring.IntervalCount)
		}
	}
	return payload, nil
}

// CancelSubscription atPeriodEnd=true 只打取消标记，false 立即取消
func (g *stripeGateway) CancelSubscription(ctx context.Context, stripeSubscriptionID string, atPeriodEnd bool) error {
	if atPeriodEnd {
		params := &stripe.SubscriptionParams{
			CancelAtPeriodEnd: stripe.Bool(true),
		}
		params.Context = ctx
		if _, err := subscription.Update(stripeSubscriptionID, params); err != nil {
			g.log.Errorf("Failed to schedule cancellation for stripe subscription %s: %v", stripeSubscriptionID, err)
			return err
		}
		return nil
	}

	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	if _, err := subscription.Cancel(stripeSubscriptionID, params); err != nil {
		g.log.Errorf("Failed to cancel stripe subscription %s: %v", stripeSubscriptionID, err)
		return err
	}
	return nil
}

// CreateRefund 创建退款
// Stripe 的 reason 是枚举，自由文本放 metadata
func (g *stripeGateway) CreateRefund(ctx context.Context, paymentIntentID string, amountCents int64, reason string) (string, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
		Amount:        stripe.Int64(amountCents),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	if reason != "" {
		params.AddMetadata("reason", reason)
	}

	r, err := refund.New(params)
	if err != nil {
		g.log.Errorf("Failed to create refund for payment intent %s: %v", paymentIntentID, err)
		return "", err
	}
	return r.ID, nil
}

// CreateProduct 创建 Stripe product
func (g *stripeGateway) CreateProduct(ctx context.Context, name, description string, metadata map[string]string) (string, error) {
	params := &stripe.ProductParams{
		Name: stripe.String(name),
	}
	params.Context = ctx
	if description != "" {
		params.Description = stripe.String(description)
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	p, err := product.New(params)
	if err != nil {
		g.log.Errorf("Failed to create stripe product %s: %v", name, err)
		return "", err
	}
	return p.ID, nil
}

// UpdateProduct 更新 Stripe product 的展示信息
func (g *stripeGateway) UpdateProduct(ctx context.Context, stripeProductID, name, description string) error {
	params := &stripe.ProductParams{
		Name: stripe.String(name),
	}
	params.Context = ctx
	if description != "" {
		params.Description = stripe.String(description)
	}

	if _, err := product.Update(stripeProductID, params); err != nil {
		g.log.Errorf("Failed to update stripe product %s: %v", stripeProductID, err)
		return err
	}
	return nil
}

// CreatePrice 创建价格，recurring 为 nil 时是一次性价格
func (g *stripeGateway) CreatePrice(ctx context.Context, stripeProductID string, amountCents int64, currency string, recurring *biz.RecurringPriceParams) (string, error) {
	params := &stripe.PriceParams{
		Product:    stripe.String(stripeProductID),
		UnitAmount: stripe.Int64(amountCents),
		Currency:   stripe.String(strings.ToLower(currency)),
	}
	params.Context = ctx
	if recurring != nil {
		params.Recurring = &stripe.PriceRecurringParams{
			Interval:      stripe.String(recurring.Interval),
			IntervalCount: stripe.Int64(int64(recurring.IntervalCount)),
		}
	}

	p, err := price.New(params)
	if err != nil {
		g.log.Errorf("Failed to create stripe price for product %s: %v", stripeProductID, err)
		return "", err
	}
	return p.ID, nil
}

// ArchivePrice 归档价格(Stripe 价格不可变，金额变更时重建新价格)
func (g *stripeGateway) ArchivePrice(ctx context.Context, stripePriceID string) error {
	params := &stripe.PriceParams{
		Active: stripe.Bool(false),
	}
	params.Context = ctx
	if _, err := price.Update(stripePriceID, params); err != nil {
		g.log.Errorf("Failed to archive stripe price %s: %v", stripePriceID, err)
		return err
	}
	return nil
}

// ListActivePrices 列出商品下所有未归档的价格
func (g *stripeGateway) ListActivePrices(ctx context.Context, stripeProductID string) ([]string, error) {
	params := &stripe.PriceListParams{
		Product: stripe.String(stripeProductID),
		Active:  stripe.Bool(true),
	}
	params.Context = ctx

	var ids []string
	iter := price.List(params)
	for iter.Next() {
		ids = append(ids, iter.Price().ID)
	}
	if err := iter.Err(); err != nil {
		g.log.Errorf("Failed to list stripe prices for product %s: %v", stripeProductID, err)
		return nil, err
	}
	return ids, nil
}
