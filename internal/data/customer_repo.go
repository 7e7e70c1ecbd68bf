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

// customerRepo 客户仓库实现
type customerRepo struct {
	data *Data
	log  *log.Helper
}

// NewCustomerRepo 创建客户仓库
func NewCustomerRepo(data *Data, logger log.Logger) biz.CustomerRepo {
	return &customerRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// GetCustomer 获取客户，不存在返回 nil
func (r *customerRepo) GetCustomer(ctx context.Context, id string) (*biz.Customer, error) {
	var m model.Customer
	err := r.data.DB(ctx).Where("customer_id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		r.log.Errorf("Failed to get customer %s: %v", id, err)
		return nil, err
	}
	return toBizCustomer(&m), nil
}

// GetCustomerByStripeID 按 Stripe customer id 获取客户，不存在返回 nil
func (r *customerRepo) GetCustomerByStripeID(ctx context.Context, stripeCustomerID string) (*biz.Customer, error) {
	var m model.Customer
	err := r.data.DB(ctx).Where("stripe_customer_id = ?", stripeCustomerID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		r.log.Errorf("Failed to get customer by stripe id %s: %v", stripeCustomerID, err)
		return nil, err
	}
	return toBizCustomer(&m), nil
}

// SetStripeCustomerID 记录懒创建的 Stripe customer id
func (r *customerRepo) SetStripeCustomerID(ctx context.Context, id, stripeCustomerID string) error {
	err := r.data.DB(ctx).Model(&model.Customer{}).
		Where("customer_id = ?", id).
		Updates(map[string]interface{}{
			"stripe_customer_id": stripeCustomerID,
			"updated_at":         time.Now().UTC(),
		}).Error
	if err != nil {
		r.log.Errorf("Failed to set stripe customer id for %s: %v", id, err)
		return err
	}
	return nil
}

// AddOrderStats 订单数 +1，累计消费增加 spentCents
func (r *customerRepo) AddOrderStats(ctx context.Context, id string, spentCents int64) error {
	err := r.data.DB(ctx).Model(&model.Customer{}).
		Where("customer_id = ?", id).
		Updates(map[string]interface{}{
			"total_orders":      gorm.Expr("total_orders + 1"),
			"total_spent_cents": gorm.Expr("total_spent_cents + ?", spentCents),
			"updated_at":        time.Now().UTC(),
		}).Error
	if err != nil {
		r.log.Errorf("Failed to add order stats for customer %s: %v", id, err)
		return err
	}
	return nil
}

// AddSpent 调整累计消费(退款传负数)
func (r *customerRepo) AddSpent(ctx context.Context, id string, deltaCents int64) error {
	err := r.data.DB(ctx).Model(&model.Customer{}).
		Where("customer_id = ?", id).
		Updates(map[string]interface{}{
			"total_spent_cents": gorm.Expr("total_spent_cents + ?", deltaCents),
			"updated_at":        time.Now().UTC(),
		}).Error
	if err != nil {
		r.log.Errorf("Failed to adjust spent for customer %s: %v", id, err)
		return err
	}
	return nil
}

// AddActiveSubscriptions 调整活跃订阅计数
func (r *customerRepo) AddActiveSubscriptions(ctx context.Context, id string, delta int) error {
	err := r.data.DB(ctx).Model(&model.Customer{}).
		Where("customer_id = ?", id).
		Updates(map[string]interface{}{
			"active_subscription_count": gorm.Expr("active_subscription_count + ?", delta),
			"updated_at":                time.Now().UTC(),
		}).Error
	if err != nil {
		r.log.Errorf("Failed to adjust active subscriptions for customer %s: %v", id, err)
		return err
	}
	return nil
}

func toBizCustomer(m *model.Customer) *biz.Customer {
	return &biz.Customer{
		ID:                      m.ID,
		Email:                   m.Email,
		StripeCustomerID:        m.StripeCustomerID,
		ActiveSubscriptionCount: m.ActiveSubscriptionCount,
		TotalOrders:             m.TotalOrders,
		TotalSpentCents:         m.TotalSpentCents,
		CreatedAt:               m.CreatedAt,
		UpdatedAt:               m.UpdatedAt,
	}
}
