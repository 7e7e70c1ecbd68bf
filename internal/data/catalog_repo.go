package data

import (
	"context"
	"errors"
	"time"
	"xinyuan_tech/billing-service/internal/biz"
	"xinyuan_tech/billing-service/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// catalogRepo 套餐/商品目录仓库实现
type catalogRepo struct {
	data *Data
	log  *log.Helper
}

// NewCatalogRepo 创建目录仓库
func NewCatalogRepo(data *Data, logger log.Logger) biz.CatalogRepo {
	return &catalogRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// GetPlan 获取套餐，不存在返回 nil
func (r *catalogRepo) GetPlan(ctx context.Context, planID string) (*biz.Plan, error) {
	var m model.Plan
	err := r.data.DB(ctx).Where("plan_id = ?", planID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		r.log.Errorf("Failed to get plan %s: %v", planID, err)
		return nil, err
	}
	return toBizPlan(&m), nil
}

// GetPlanByStripePriceID 按 Stripe price id 反查套餐，不存在返回 nil
func (r *catalogRepo) GetPlanByStripePriceID(ctx context.Context, priceID string) (*biz.Plan, error) {
	var m model.Plan
	err := r.data.DB(ctx).Where("stripe_price_id = ?", priceID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		r.log.Errorf("Failed to get plan by stripe price %s: %v", priceID, err)
		return nil, err
	}
	return toBizPlan(&m), nil
}

// ListPlanProducts 套餐关联的全部商品
func (r *catalogRepo) ListPlanProducts(ctx context.Context, planID string) ([]*biz.Product, error) {
	var links []model.PlanProduct
	if err := r.data.DB(ctx).Where("plan_id = ?", planID).Find(&links).Error; err != nil {
		r.log.Errorf("Failed to list plan products for plan %s: %v", planID, err)
		return nil, err
	}
	if len(links) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(links))
	for i := range links {
		ids = append(ids, links[i].ProductID)
	}

	var models []model.Product
	if err := r.data.DB(ctx).Where("product_id IN ?", ids).Find(&models).Error; err != nil {
		r.log.Errorf("Failed to load products for plan %s: %v", planID, err)
		return nil, err
	}

	products := make([]*biz.Product, 0, len(models))
	for i := range models {
		products = append(products, toBizProduct(&models[i]))
	}
	return products, nil
}

// GetProduct 获取商品，不存在返回 nil
func (r *catalogRepo) GetProduct(ctx context.Context, productID string) (*biz.Product, error) {
	var m model.Product
	err := r.data.DB(ctx).Where("product_id = ?", productID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		r.log.Errorf("Failed to get product %s: %v", productID, err)
		return nil, err
	}
	return toBizProduct(&m), nil
}

// SavePlanStripeIDs 记录套餐的 Stripe ids 及同步快照
func (r *catalogRepo) SavePlanStripeIDs(ctx context.Context, planID, stripeProductID, stripePriceID string, amountCents int64, currency string) error {
	err := r.data.DB(ctx).Model(&model.Plan{}).
		Where("plan_id = ?", planID).
		Updates(map[string]interface{}{
			"stripe_product_id":   stripeProductID,
			"stripe_price_id":     stripePriceID,
			"synced_amount_cents": amountCents,
			"synced_currency":     currency,
			"updated_at":          time.Now().UTC(),
		}).Error
	if err != nil {
		r.log.Errorf("Failed to save stripe ids for plan %s: %v", planID, err)
		return err
	}
	return nil
}

// SaveProductStripeIDs 记录商品的 Stripe ids 及同步快照
func (r *catalogRepo) SaveProductStripeIDs(ctx context.Context, productID, stripeProductID, stripePriceID string, amountCents int64, currency string) error {
	err := r.data.DB(ctx).Model(&model.Product{}).
		Where("product_id = ?", productID).
		Updates(map[string]interface{}{
			"stripe_product_id":   stripeProductID,
			"stripe_price_id":     stripePriceID,
			"synced_amount_cents": amountCents,
			"synced_currency":     currency,
			"updated_at":          time.Now().UTC(),
		}).Error
	if err != nil {
		r.log.Errorf("Failed to save stripe ids for product %s: %v", productID, err)
		return err
	}
	return nil
}

func toBizPlan(m *model.Plan) *biz.Plan {
	return &biz.Plan{
		ID:                m.ID,
		Name:              m.Name,
		Description:       m.Description,
		AmountCents:       m.AmountCents,
		Currency:          m.Currency,
		Interval:          m.Interval,
		IntervalCount:     m.IntervalCount,
		Active:            m.Active,
		StripeProductID:   m.StripeProductID,
		StripePriceID:     m.StripePriceID,
		SyncedAmountCents: m.SyncedAmountCents,
		SyncedCurrency:    m.SyncedCurrency,
		UpdatedAt:         m.UpdatedAt,
	}
}

func toBizProduct(m *model.Product) *biz.Product {
	return &biz.Product{
		ID:                m.ID,
		Title:             m.Title,
		AmountCents:       m.AmountCents,
		Currency:          m.Currency,
		Free:              m.Free,
		StripeProductID:   m.StripeProductID,
		StripePriceID:     m.StripePriceID,
		SyncedAmountCents: m.SyncedAmountCents,
		SyncedCurrency:    m.SyncedCurrency,
		UpdatedAt:         m.UpdatedAt,
	}
}
