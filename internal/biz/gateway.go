package biz

import (
	"context"
)

// CheckoutSessionParams 创建结账会话参数
type CheckoutSessionParams struct {
	Mode             string // payment, subscription
	StripeCustomerID string
	StripePriceID    string
	Quantity         int64
	SuccessURL       string
	CancelURL        string
	// Metadata 随会话写入，webhook 对账时读回(customer_id/product_id/plan_id)
	Metadata map[string]string
}

// RecurringPriceParams 订阅价格的周期参数，nil 表示一次性价格
type RecurringPriceParams struct {
	Interval      string
	IntervalCount int
}

// PaymentGateway 支付网关客户端接口 (防腐层)
// 实现位于 data 层，基于 Stripe SDK；远程调用失败一律返回 error，
// 由调用方决定错误码，不在这里做本地状态回写
type PaymentGateway interface {
	CreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (stripeCustomerID string, err error)
	CreateCheckoutSession(ctx context.Context, params *CheckoutSessionParams) (sessionID, url string, err error)
	// GetSubscription 拉取订阅完整详情(展开价格信息)
	GetSubscription(ctx context.Context, stripeSubscriptionID string) (*SubscriptionPayload, error)
	// CancelSubscription atPeriodEnd=true 只设置标记，false 立即取消
	CancelSubscription(ctx context.Context, stripeSubscriptionID string, atPeriodEnd bool) error
	// CreateRefund 创建退款，amountCents 为本次退款金额
	CreateRefund(ctx context.Context, paymentIntentID string, amountCents int64, reason string) (refundID string, err error)
	CreateProduct(ctx context.Context, name, description string, metadata map[string]string) (stripeProductID string, err error)
	UpdateProduct(ctx context.Context, stripeProductID, name, description string) error
	// CreatePrice recurring 为 nil 时创建一次性价格
	CreatePrice(ctx context.Context, stripeProductID string, amountCents int64, currency string, recurring *RecurringPriceParams) (stripePriceID string, err error)
	// ArchivePrice 归档旧价格(Stripe 价格不可变，金额变更时重建)
	ArchivePrice(ctx context.Context, stripePriceID string) error
	ListActivePrices(ctx context.Context, stripeProductID string) ([]string, error)
}
