package model

import "time"

// Customer 客户计费聚合模型
type Customer struct {
	ID                      string    `gorm:"primaryKey;column:customer_id;size:36"`
	Email                   string    `gorm:"column:email;size:255;index"`
	StripeCustomerID        string    `gorm:"column:stripe_customer_id;size:64;uniqueIndex"`
	ActiveSubscriptionCount int       `gorm:"column:active_subscription_count;default:0"`
	TotalOrders             int       `gorm:"column:total_orders;default:0"`
	TotalSpentCents         int64     `gorm:"column:total_spent_cents;default:0"`
	CreatedAt               time.Time `gorm:"column:created_at"`
	UpdatedAt               time.Time `gorm:"column:updated_at"`
}

func (Customer) TableName() string { return "customer" }
