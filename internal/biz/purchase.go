package biz

import (
	"context"
	"time"
)

// Purchase 权益记录(客户对某个商品的访问授权)
// 同一 (customer, product) 可能存在多行(撤销后再授予)，有效性判断只看 status
type Purchase struct {
	ID         string
	CustomerID string
	ProductID  string
	// SubscriptionID 订阅派生的权益关联的订阅ID，0 表示一次性购买
	SubscriptionID uint64
	// OrderID/OrderYear 一次性购买关联的订单，空表示订阅派生
	OrderID      string
	OrderYear    int
	Status       string // active, revoked
	IsLifetime   bool
	RevokedAt    *time.Time
	RevokeReason string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PurchaseRepo 权益仓库接口
type PurchaseRepo interface {
	CreatePurchase(ctx context.Context, p *Purchase) error
	// HasActivePurchase 客户是否持有指定商品的有效权益
	HasActivePurchase(ctx context.Context, customerID, productID string) (bool, error)
	// RevokePurchasesBySubscription 撤销订阅关联的全部有效权益，返回被撤销的权益
	RevokePurchasesBySubscription(ctx context.Context, subscriptionID uint64, reason string, at time.Time) ([]*Purchase, error)
	// RevokePurchasesByOrder 撤销订单关联的全部有效权益，返回被撤销的权益
	RevokePurchasesByOrder(ctx context.Context, orderID string, orderYear int, reason string, at time.Time) ([]*Purchase, error)
	// ListPurchasesByCustomer 查询客户的全部权益记录
	ListPurchasesByCustomer(ctx context.Context, customerID string) ([]*Purchase, error)
}

// EntitlementCache 权益查询缓存接口(读侧加速，写侧在权益变更后失效)
type EntitlementCache interface {
	Get(ctx context.Context, customerID, productID string) (granted, ok bool, err error)
	Set(ctx context.Context, customerID, productID string, granted bool) error
	Invalidate(ctx context.Context, customerID, productID string) error
}
