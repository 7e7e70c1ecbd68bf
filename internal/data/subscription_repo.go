package data

import (
	"context"
	"errors"
	"xinyuan_tech/billing-service/internal/biz"
	"xinyuan_tech/billing-service/internal/constants"
	"xinyuan_tech/billing-service/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// subscriptionRepo 订阅仓库实现
type subscriptionRepo struct {
	data *Data
	log  *log.Helper
}

// NewSubscriptionRepo 创建订阅仓库
func NewSubscriptionRepo(data *Data, logger log.Logger) biz.SubscriptionRepo {
	return &subscriptionRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// CreateSubscription 创建订阅，回填自增 id
func (r *subscriptionRepo) CreateSubscription(ctx context.Context, sub *biz.Subscription) error {
	m := toSubscriptionModel(sub)
	if err := r.data.DB(ctx).Create(m).Error; err != nil {
		r.log.Errorf("Failed to create subscription %s: %v", sub.StripeSubscriptionID, err)
		return err
	}
	sub.ID = m.ID
	return nil
}

// GetSubscription 按本地 id 获取订阅，不存在返回 nil
func (r *subscriptionRepo) GetSubscription(ctx context.Context, id uint64) (*biz.Subscription, error) {
	var m model.Subscription
	err := r.data.DB(ctx).Where("subscription_id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		r.log.Errorf("Failed to get subscription %d: %v", id, err)
		return nil, err
	}
	return toBizSubscription(&m), nil
}

// GetSubscriptionByStripeID 按外部订阅 id 获取订阅，不存在返回 nil
func (r *subscriptionRepo) GetSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*biz.Subscription, error) {
	var m model.Subscription
	err := r.data.DB(ctx).Where("stripe_subscription_id = ?", stripeSubscriptionID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		r.log.Errorf("Failed to get subscription by stripe id %s: %v", stripeSubscriptionID, err)
		return nil, err
	}
	return toBizSubscription(&m), nil
}

// UpdateSubscription 保存订阅
func (r *subscriptionRepo) UpdateSubscription(ctx context.Context, sub *biz.Subscription) error {
	if err := r.data.DB(ctx).Save(toSubscriptionModel(sub)).Error; err != nil {
		r.log.Errorf("Failed to update subscription %d: %v", sub.ID, err)
		return err
	}
	return nil
}

// ListNonTerminalSubscriptions 列出所有未终结的订阅
func (r *subscriptionRepo) ListNonTerminalSubscriptions(ctx context.Context) ([]*biz.Subscription, error) {
	var models []model.Subscription
	err := r.data.DB(ctx).
		Where("status <> ?", constants.SubscriptionStatusCanceled).
		Find(&models).Error
	if err != nil {
		r.log.Errorf("Failed to list non-terminal subscriptions: %v", err)
		return nil, err
	}

	subs := make([]*biz.Subscription, 0, len(models))
	for i := range models {
		subs = append(subs, toBizSubscription(&models[i]))
	}
	return subs, nil
}

func toBizSubscription(m *model.Subscription) *biz.Subscription {
	return &biz.Subscription{
		ID:                   m.ID,
		CustomerID:           m.CustomerID,
		PlanID:               m.PlanID,
		Status:               m.Status,
		Currency:             m.Currency,
		UnitAmountCents:      m.UnitAmountCents,
		Interval:             m.Interval,
		IntervalCount:        m.IntervalCount,
		CurrentPeriodStart:   m.CurrentPeriodStart,
		CurrentPeriodEnd:     m.CurrentPeriodEnd,
		CancelAtPeriodEnd:    m.CancelAtPeriodEnd,
		CanceledAt:           m.CanceledAt,
		EndedAt:              m.EndedAt,
		StripeSubscriptionID: m.StripeSubscriptionID,
		LastEventAt:          m.LastEventAt,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
}

func toSubscriptionModel(s *biz.Subscription) *model.Subscription {
	return &model.Subscription{
		ID:                   s.ID,
		CustomerID:           s.CustomerID,
		PlanID:               s.PlanID,
		Status:               s.Status,
		Currency:             s.Currency,
		UnitAmountCents:      s.UnitAmountCents,
		Interval:             s.Interval,
		IntervalCount:        s.IntervalCount,
		CurrentPeriodStart:   s.CurrentPeriodStart,
		CurrentPeriodEnd:     s.CurrentPeriodEnd,
		CancelAtPeriodEnd:    s.CancelAtPeriodEnd,
		CanceledAt:           s.CanceledAt,
		EndedAt:              s.EndedAt,
		StripeSubscriptionID: s.StripeSubscriptionID,
		LastEventAt:          s.LastEventAt,
		CreatedAt:            s.CreatedAt,
		UpdatedAt:            s.UpdatedAt,
	}
}
