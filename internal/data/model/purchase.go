package model

import "time"

// Purchase 权益模型
type Purchase struct {
	ID             string     `gorm:"primaryKey;column:purchase_id;size:36"`
	CustomerID     string     `gorm:"column:customer_id;size:36;index:idx_purchase_customer_product"`
	ProductID      string     `gorm:"column:product_id;size:36;index:idx_purchase_customer_product"`
	SubscriptionID uint64     `gorm:"column:subscription_id;index;default:0"`
	OrderID        string     `gorm:"column:order_id;size:36;index"`
	OrderYear      int        `gorm:"column:order_year;default:0"`
	Status         string     `gorm:"column:status;size:16"` // active, revoked
	IsLifetime     bool       `gorm:"column:is_lifetime;default:false"`
	RevokedAt      *time.Time `gorm:"column:revoked_at"`
	RevokeReason   string     `gorm:"column:revoke_reason;size:255"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	UpdatedAt      time.Time  `gorm:"column:updated_at"`
}

func (Purchase) TableName() string { return "purchase" }
