package model

import "time"

// Order 订单模型
// 按创建年份分区，复合主键 (order_id, created_year)；
// 外部 id 各建二级索引，幂等查找不用跨分区扫描
type Order struct {
	ID                    string     `gorm:"primaryKey;column:order_id;size:36"`
	CreatedYear           int        `gorm:"primaryKey;column:created_year"`
	OrderNo               string     `gorm:"column:order_no;size:32"`
	CustomerID            string     `gorm:"column:customer_id;size:36;index"`
	Status                string     `gorm:"column:status;size:24"` // pending, paid, payment_failed, refunded, partially_refunded
	Type                  string     `gorm:"column:order_type;size:16"`
	Currency              string     `gorm:"column:currency;size:8"`
	SubtotalCents         int64      `gorm:"column:subtotal_cents"`
	DiscountCents         int64      `gorm:"column:discount_cents"`
	TaxCents              int64      `gorm:"column:tax_cents"`
	TotalCents            int64      `gorm:"column:total_cents"`
	StripePaymentIntentID string     `gorm:"column:stripe_payment_intent_id;size:64;index"`
	StripeInvoiceID       string     `gorm:"column:stripe_invoice_id;size:64;index"`
	PaidAt                *time.Time `gorm:"column:paid_at"`
	RefundAmountCents     int64      `gorm:"column:refund_amount_cents"`
	RefundReason          string     `gorm:"column:refund_reason;size:255"`
	CreatedAt             time.Time  `gorm:"column:created_at"`
	UpdatedAt             time.Time  `gorm:"column:updated_at"`
}

func (Order) TableName() string { return "order" }
