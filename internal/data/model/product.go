package model

import "time"

// Product 商品模型(课程等内容实体的计费侧投影)
type Product struct {
	ID                string    `gorm:"primaryKey;column:product_id;size:36"`
	Title             string    `gorm:"column:title;size:255"`
	AmountCents       int64     `gorm:"column:amount_cents"`
	Currency          string    `gorm:"column:currency;size:8"`
	Free              bool      `gorm:"column:free;default:false"`
	StripeProductID   string    `gorm:"column:stripe_product_id;size:64"`
	StripePriceID     string    `gorm:"column:stripe_price_id;size:64;index"`
	SyncedAmountCents int64     `gorm:"column:synced_amount_cents;default:0"`
	SyncedCurrency    string    `gorm:"column:synced_currency;size:8"`
	CreatedAt         time.Time `gorm:"column:created_at"`
	UpdatedAt         time.Time `gorm:"column:updated_at"`
}

func (Product) TableName() string { return "product" }
