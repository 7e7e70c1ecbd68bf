package model

import "time"

// Subscription 订阅模型，外部订阅 id 唯一索引保证每个远程订阅只有一行
type Subscription struct {
	ID                   uint64     `gorm:"primaryKey;column:subscription_id;autoIncrement"`
	CustomerID           string     `gorm:"column:customer_id;size:36;index"`
	PlanID               string     `gorm:"column:plan_id;size:36"` // 空字符串表示 legacy 订阅
	Status               string     `gorm:"column:status;size:16"`  // trialing, active, past_due, canceled, paused
	Currency             string     `gorm:"column:currency;size:8"`
	UnitAmountCents      int64      `gorm:"column:unit_amount_cents"`
	Interval             string     `gorm:"column:billing_interval;size:8"`
	IntervalCount        int        `gorm:"column:interval_count;default:1"`
	CurrentPeriodStart   time.Time  `gorm:"column:current_period_start"`
	CurrentPeriodEnd     time.Time  `gorm:"column:current_period_end"`
	CancelAtPeriodEnd    bool       `gorm:"column:cancel_at_period_end;default:false"`
	CanceledAt           *time.Time `gorm:"column:canceled_at"`
	EndedAt              *time.Time `gorm:"column:ended_at"`
	StripeSubscriptionID string     `gorm:"column:stripe_subscription_id;size:64;uniqueIndex"`
	LastEventAt          time.Time  `gorm:"column:last_event_at"`
	CreatedAt            time.Time  `gorm:"column:created_at"`
	UpdatedAt            time.Time  `gorm:"column:updated_at"`
}

func (Subscription) TableName() string { return "subscription" }
