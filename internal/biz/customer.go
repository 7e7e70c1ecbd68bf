package biz

import (
	"context"
	"time"
)

// Customer 客户计费聚合(冗余计数字段由账本变更在同一事务内维护)
type Customer struct {
	ID                      string
	Email                   string
	StripeCustomerID        string
	ActiveSubscriptionCount int
	TotalOrders             int
	TotalSpentCents         int64
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// CustomerRepo 客户仓库接口
type CustomerRepo interface {
	GetCustomer(ctx context.Context, id string) (*Customer, error)
	// GetCustomerByStripeID 按 Stripe customer ID 获取，不存在返回 nil
	GetCustomerByStripeID(ctx context.Context, stripeCustomerID string) (*Customer, error)
	// SetStripeCustomerID 记录懒创建的 Stripe customer ID
	SetStripeCustomerID(ctx context.Context, id, stripeCustomerID string) error
	// AddOrderStats 订单数 +1，累计消费增加 spentCents(新支付订单入账)
	AddOrderStats(ctx context.Context, id string, spentCents int64) error
	// AddSpent 调整累计消费(全额退款时传负数)
	AddSpent(ctx context.Context, id string, deltaCents int64) error
	// AddActiveSubscriptions 调整活跃订阅计数
	AddActiveSubscriptions(ctx context.Context, id string, delta int) error
}
