package data

import (
	"context"
	"time"
	"xinyuan_tech/billing-service/internal/biz"
	"xinyuan_tech/billing-service/internal/constants"
	"xinyuan_tech/billing-service/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
)

// purchaseRepo 权益仓库实现
type purchaseRepo struct {
	data *Data
	log  *log.Helper
}

// NewPurchaseRepo 创建权益仓库
func NewPurchaseRepo(data *Data, logger log.Logger) biz.PurchaseRepo {
	return &purchaseRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// CreatePurchase 创建权益
func (r *purchaseRepo) CreatePurchase(ctx context.Context, p *biz.Purchase) error {
	if err := r.data.DB(ctx).Create(toPurchaseModel(p)).Error; err != nil {
		r.log.Errorf("Failed to create purchase %s: %v", p.ID, err)
		return err
	}
	return nil
}

// HasActivePurchase 客户是否持有指定商品的有效权益
func (r *purchaseRepo) HasActivePurchase(ctx context.Context, customerID, productID string) (bool, error) {
	var count int64
	err := r.data.DB(ctx).Model(&model.Purchase{}).
		Where("customer_id = ? AND product_id = ? AND status = ?", customerID, productID, constants.PurchaseStatusActive).
		Count(&count).Error
	if err != nil {
		r.log.Errorf("Failed to count active purchases for customer %s product %s: %v", customerID, productID, err)
		return false, err
	}
	return count > 0, nil
}

// RevokePurchasesBySubscription 撤销订阅关联的全部有效权益
func (r *purchaseRepo) RevokePurchasesBySubscription(ctx context.Context, subscriptionID uint64, reason string, at time.Time) ([]*biz.Purchase, error) {
	return r.revokeWhere(ctx, "subscription_id = ?", []interface{}{subscriptionID}, reason, at)
}

// RevokePurchasesByOrder 撤销订单关联的全部有效权益
func (r *purchaseRepo) RevokePurchasesByOrder(ctx context.Context, orderID string, orderYear int, reason string, at time.Time) ([]*biz.Purchase, error) {
	return r.revokeWhere(ctx, "order_id = ? AND order_year = ?", []interface{}{orderID, orderYear}, reason, at)
}

// revokeWhere 先查出待撤销的有效权益再批量更新，返回被撤销的权益
func (r *purchaseRepo) revokeWhere(ctx context.Context, cond string, args []interface{}, reason string, at time.Time) ([]*biz.Purchase, error) {
	db := r.data.DB(ctx)

	var models []model.Purchase
	query := db.Where(cond, args...).Where("status = ?", constants.PurchaseStatusActive)
	if err := query.Find(&models).Error; err != nil {
		r.log.Errorf("Failed to find purchases to revoke: %v", err)
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(models))
	for i := range models {
		ids = append(ids, models[i].ID)
	}
	err := db.Model(&model.Purchase{}).
		Where("purchase_id IN ?", ids).
		Updates(map[string]interface{}{
			"status":        constants.PurchaseStatusRevoked,
			"revoked_at":    at,
			"revoke_reason": reason,
			"updated_at":    at,
		}).Error
	if err != nil {
		r.log.Errorf("Failed to revoke purchases: %v", err)
		return nil, err
	}

	revoked := make([]*biz.Purchase, 0, len(models))
	for i := range models {
		p := toBizPurchase(&models[i])
		p.Status = constants.PurchaseStatusRevoked
		revokedAt := at
		p.RevokedAt = &revokedAt
		p.RevokeReason = reason
		revoked = append(revoked, p)
	}
	return revoked, nil
}

// ListPurchasesByCustomer 查询客户的全部权益记录
func (r *purchaseRepo) ListPurchasesByCustomer(ctx context.Context, customerID string) ([]*biz.Purchase, error) {
	var models []model.Purchase
	err := r.data.DB(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		r.log.Errorf("Failed to list purchases for customer %s: %v", customerID, err)
		return nil, err
	}

	purchases := make([]*biz.Purchase, 0, len(models))
	for i := range models {
		purchases = append(purchases, toBizPurchase(&models[i]))
	}
	return purchases, nil
}

func toBizPurchase(m *model.Purchase) *biz.Purchase {
	return &biz.Purchase{
		ID:             m.ID,
		CustomerID:     m.CustomerID,
		ProductID:      m.ProductID,
		SubscriptionID: m.SubscriptionID,
		OrderID:        m.OrderID,
		OrderYear:      m.OrderYear,
		Status:         m.Status,
		IsLifetime:     m.IsLifetime,
		RevokedAt:      m.RevokedAt,
		RevokeReason:   m.RevokeReason,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func toPurchaseModel(p *biz.Purchase) *model.Purchase {
	return &model.Purchase{
		ID:             p.ID,
		CustomerID:     p.CustomerID,
		ProductID:      p.ProductID,
		SubscriptionID: p.SubscriptionID,
		OrderID:        p.OrderID,
		OrderYear:      p.OrderYear,
		Status:         p.Status,
		IsLifetime:     p.IsLifetime,
		RevokedAt:      p.RevokedAt,
		RevokeReason:   p.RevokeReason,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}
