package biz

import (
	"context"
	"time"
)

// Plan 订阅套餐(映射到 Stripe product/price)
type Plan struct {
	ID              string
	Name            string
	Description     string
	AmountCents     int64
	Currency        string
	Interval        string // month, year
	IntervalCount   int
	Active          bool
	StripeProductID string
	StripePriceID   string
	// SyncedAmountCents 最近一次同步到 Stripe 的金额，用于判断价格是否需要重建
	SyncedAmountCents int64
	SyncedCurrency    string
	UpdatedAt         time.Time
}

// Product 可售卖商品(课程等内容实体的计费侧投影)
type Product struct {
	ID                string
	Title             string
	AmountCents       int64
	Currency          string
	Free              bool
	StripeProductID   string
	StripePriceID     string
	SyncedAmountCents int64
	SyncedCurrency    string
	UpdatedAt         time.Time
}

// CatalogRepo 套餐/商品目录仓库接口
// 内容层(课程/章节)是外部协作方，这里只消费它的计费侧投影
type CatalogRepo interface {
	GetPlan(ctx context.Context, planID string) (*Plan, error)
	// GetPlanByStripePriceID 按 Stripe price ID 反查套餐，不存在返回 nil(legacy 价格)
	GetPlanByStripePriceID(ctx context.Context, priceID string) (*Plan, error)
	// ListPlanProducts 套餐关联的全部商品
	ListPlanProducts(ctx context.Context, planID string) ([]*Product, error)
	GetProduct(ctx context.Context, productID string) (*Product, error)
	// SavePlanStripeIDs 远程同步成功后缓存 Stripe ids 及同步快照
	SavePlanStripeIDs(ctx context.Context, planID, stripeProductID, stripePriceID string, amountCents int64, currency string) error
	SaveProductStripeIDs(ctx context.Context, productID, stripeProductID, stripePriceID string, amountCents int64, currency string) error
}
