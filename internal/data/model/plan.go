package model

import "time"

// Plan 订阅套餐模型
type Plan struct {
	ID                string    `gorm:"primaryKey;column:plan_id;size:36"`
	Name              string    `gorm:"column:name;size:255"`
	Description       string    `gorm:"column:description"`
	AmountCents       int64     `gorm:"column:amount_cents"`
	Currency          string    `gorm:"column:currency;size:8"`
	Interval          string    `gorm:"column:billing_interval;size:8"`
	IntervalCount     int       `gorm:"column:interval_count;default:1"`
	Active            bool      `gorm:"column:active;default:true"`
	StripeProductID   string    `gorm:"column:stripe_product_id;size:64"`
	StripePriceID     string    `gorm:"column:stripe_price_id;size:64;index"`
	SyncedAmountCents int64     `gorm:"column:synced_amount_cents;default:0"`
	SyncedCurrency    string    `gorm:"column:synced_currency;size:8"`
	CreatedAt         time.Time `gorm:"column:created_at"`
	UpdatedAt         time.Time `gorm:"column:updated_at"`
}

func (Plan) TableName() string { return "plan" }

// PlanProduct 套餐-商品关联模型
type PlanProduct struct {
	ID        uint64 `gorm:"primaryKey;column:plan_product_id;autoIncrement"`
	PlanID    string `gorm:"column:plan_id;size:36;index"`
	ProductID string `gorm:"column:product_id;size:36"`
}

func (PlanProduct) TableName() string { return "plan_product" }
