package model

// OrderItem 订单行项目模型
type OrderItem struct {
	ID             uint64 `gorm:"primaryKey;column:order_item_id;autoIncrement"`
	OrderID        string `gorm:"column:order_id;size:36;index"`
	OrderYear      int    `gorm:"column:order_year"`
	ProductID      string `gorm:"column:product_id;size:36"`
	SubscriptionID uint64 `gorm:"column:subscription_id;default:0"`
	Quantity       int64  `gorm:"column:quantity"`
	UnitCents      int64  `gorm:"column:unit_cents"`
	DiscountCents  int64  `gorm:"column:discount_cents"`
	TaxCents       int64  `gorm:"column:tax_cents"`
	TotalCents     int64  `gorm:"column:total_cents"`
}

func (OrderItem) TableName() string { return "order_item" }
