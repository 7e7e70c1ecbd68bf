package biz

import (
	"context"
	"time"
)

// Subscription 订阅记录(与 Stripe subscription 一一对应)
type Subscription struct {
	ID         uint64
	CustomerID string
	// PlanID 内部套餐ID，空字符串表示 legacy 订阅(远程价格未匹配到任何本地套餐)
	PlanID               string
	Status               string // trialing, active, past_due, canceled, paused
	Currency             string
	UnitAmountCents      int64
	Interval             string // month, year
	IntervalCount        int
	CurrentPeriodStart   time.Time
	CurrentPeriodEnd     time.Time
	CancelAtPeriodEnd    bool
	CanceledAt           *time.Time
	EndedAt              *time.Time
	StripeSubscriptionID string
	// LastEventAt 最近一次已应用的 Stripe 事件时间，用于拒绝乱序到达的过期事件
	LastEventAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SubscriptionRepo 订阅仓库接口
type SubscriptionRepo interface {
	CreateSubscription(ctx context.Context, sub *Subscription) error
	GetSubscription(ctx context.Context, id uint64) (*Subscription, error)
	// GetSubscriptionByStripeID 按外部订阅ID获取，不存在返回 nil
	GetSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*Subscription, error)
	UpdateSubscription(ctx context.Context, sub *Subscription) error
	// ListNonTerminalSubscriptions 查询所有未终结的订阅(对账扫描使用)
	ListNonTerminalSubscriptions(ctx context.Context) ([]*Subscription, error)
}

// IsTerminal 订阅是否已进入终态
func (s *Subscription) IsTerminal() bool {
	return s.Status == "canceled"
}
