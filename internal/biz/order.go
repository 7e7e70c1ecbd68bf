package biz

import (
	"context"
	"time"
)

// Order 订单记录(一次购买交易)
// 按创建年份分区存储，自然键为 (ID, CreatedYear)
type Order struct {
	ID                    string
	OrderNo               string
	CustomerID            string
	Status                string // pending, paid, payment_failed, refunded, partially_refunded
	Type                  string // checkout, subscription
	Currency              string
	SubtotalCents         int64
	DiscountCents         int64
	TaxCents              int64
	TotalCents            int64
	StripePaymentIntentID string
	StripeInvoiceID       string
	CreatedYear           int
	PaidAt                *time.Time
	RefundAmountCents     int64
	RefundReason          string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// OrderItem 订单行项目
type OrderItem struct {
	ID             uint64
	OrderID        string
	OrderYear      int
	ProductID      string
	SubscriptionID uint64 // 0 表示非订阅派生的行项目
	Quantity       int64
	UnitCents      int64
	DiscountCents  int64
	TaxCents       int64
	TotalCents     int64
}

// OrderRepo 订单仓库接口
type OrderRepo interface {
	// CreateOrder 创建订单及其行项目(同一事务内)
	CreateOrder(ctx context.Context, order *Order, items []*OrderItem) error
	// GetOrder 按自然键 (订单ID, 创建年份) 获取订单
	GetOrder(ctx context.Context, orderID string, year int) (*Order, error)
	// GetOrderByPaymentIntentID 按外部 payment intent ID 获取订单，不存在返回 nil
	GetOrderByPaymentIntentID(ctx context.Context, paymentIntentID string) (*Order, error)
	// GetOrderByInvoiceID 按外部 invoice ID 获取订单，不存在返回 nil
	GetOrderByInvoiceID(ctx context.Context, invoiceID string) (*Order, error)
	UpdateOrder(ctx context.Context, order *Order) error
	// ListOrdersByCustomer 按客户分页查询指定年份的订单
	ListOrdersByCustomer(ctx context.Context, customerID string, year, page, pageSize int) ([]*Order, int, error)
	// ListStalePendingOrders 查询超时未支付的订单(定时任务使用)
	ListStalePendingOrders(ctx context.Context, olderThan time.Time) ([]*Order, error)
}
