package biz

import (
	"context"
	"time"

	"xinyuan_tech/billing-service/internal/constants"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-redsync/redsync/v4"
	"github.com/google/wire"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(NewBillingUsecase)

// Transaction 事务执行接口，由 data 层实现
type Transaction interface {
	Exec(ctx context.Context, fn func(ctx context.Context) error) error
}

// BillingUsecase 计费业务逻辑
// webhook 对账引擎、退款/取消指令、目录同步和权益查询共用这一个 usecase，
// 保证"取消终结"和"退款入账"这类多表不变量只有一条代码路径
type BillingUsecase struct {
	orderRepo    OrderRepo
	subRepo      SubscriptionRepo
	purchaseRepo PurchaseRepo
	customerRepo CustomerRepo
	catalogRepo  CatalogRepo
	gateway      PaymentGateway
	cache        EntitlementCache
	tm           Transaction
	rs           *redsync.Redsync
	log          *log.Helper
}

// NewBillingUsecase 创建计费业务用例
func NewBillingUsecase(
	orderRepo OrderRepo,
	subRepo SubscriptionRepo,
	purchaseRepo PurchaseRepo,
	customerRepo CustomerRepo,
	catalogRepo CatalogRepo,
	gateway PaymentGateway,
	cache EntitlementCache,
	tm Transaction,
	rs *redsync.Redsync,
	logger log.Logger,
) *BillingUsecase {
	return &BillingUsecase{
		orderRepo:    orderRepo,
		subRepo:      subRepo,
		purchaseRepo: purchaseRepo,
		customerRepo: customerRepo,
		catalogRepo:  catalogRepo,
		gateway:      gateway,
		cache:        cache,
		tm:           tm,
		rs:           rs,
		log:          log.NewHelper(logger),
	}
}

// withTransaction 执行事务
func (uc *BillingUsecase) withTransaction(ctx context.Context, fn func(context.Context) error) error {
	return uc.tm.Exec(ctx, fn)
}

// finalizeSubscriptionCancellation 终结订阅取消：置 canceled 终态、撤销关联权益、
// 递减客户活跃订阅计数。webhook 的 subscription.deleted 和运营侧立即取消都走这里。
// 必须在事务内调用；返回被撤销的权益供调用方失效缓存
func (uc *BillingUsecase) finalizeSubscriptionCancellation(ctx context.Context, sub *Subscription, reason string, endedAt time.Time) ([]*Purchase, error) {
	wasCounted := sub.Status != constants.SubscriptionStatusCanceled
	now := time.Now().UTC()

	sub.Status = constants.SubscriptionStatusCanceled
	if sub.CanceledAt == nil {
		sub.CanceledAt = &endedAt
	}
	sub.EndedAt = &endedAt
	sub.LastEventAt = endedAt
	sub.UpdatedAt = now
	if err := uc.subRepo.UpdateSubscription(ctx, sub); err != nil {
		uc.log.Errorf("Failed to update subscription %d to canceled: %v", sub.ID, err)
		return nil, err
	}

	revoked, err := uc.purchaseRepo.RevokePurchasesBySubscription(ctx, sub.ID, reason, now)
	if err != nil {
		uc.log.Errorf("Failed to revoke purchases for subscription %d: %v", sub.ID, err)
		return nil, err
	}

	if wasCounted {
		if err := uc.customerRepo.AddActiveSubscriptions(ctx, sub.CustomerID, -1); err != nil {
			uc.log.Errorf("Failed to decrement active subscription count for customer %s: %v", sub.CustomerID, err)
			return nil, err
		}
	}

	uc.log.Infof("Subscription %d (stripe: %s) canceled, %d purchases revoked", sub.ID, sub.StripeSubscriptionID, len(revoked))
	return revoked, nil
}

// applyOrderRefund 退款入账：写入退款金额、推进订单状态，
// 全额退款时撤销订单关联权益并回减客户累计消费。
// webhook 的 charge.refunded 和运营侧退款指令都走这里。
// refundedCents 是累计退款总额(绝对值赋值，重复投递无害)；必须在事务内调用
func (uc *BillingUsecase) applyOrderRefund(ctx context.Context, order *Order, refundedCents int64, reason string) ([]*Purchase, error) {
	full := refundedCents >= order.TotalCents
	wasFullyRefunded := order.Status == constants.OrderStatusRefunded
	now := time.Now().UTC()

	order.RefundAmountCents = refundedCents
	if reason != "" {
		order.RefundReason = reason
	}
	if full {
		order.Status = constants.OrderStatusRefunded
	} else {
		order.Status = constants.OrderStatusPartiallyRefunded
	}
	order.UpdatedAt = now
	if err := uc.orderRepo.UpdateOrder(ctx, order); err != nil {
		uc.log.Errorf("Failed to update order %s refund state: %v", order.ID, err)
		return nil, err
	}

	// 部分退款保留权益，不动客户聚合
	if !full || wasFullyRefunded {
		return nil, nil
	}

	revoked, err := uc.purchaseRepo.RevokePurchasesByOrder(ctx, order.ID, order.CreatedYear, constants.RevokeReasonOrderRefunded, now)
	if err != nil {
		uc.log.Errorf("Failed to revoke purchases for order %s: %v", order.ID, err)
		return nil, err
	}
	if err := uc.customerRepo.AddSpent(ctx, order.CustomerID, -order.TotalCents); err != nil {
		uc.log.Errorf("Failed to decrement total spent for customer %s: %v", order.CustomerID, err)
		return nil, err
	}

	uc.log.Infof("Order %s fully refunded (%d cents), %d purchases revoked", order.ID, refundedCents, len(revoked))
	return revoked, nil
}

// invalidateEntitlements 权益变更后失效读缓存(尽力而为，失败只记日志)
func (uc *BillingUsecase) invalidateEntitlements(ctx context.Context, purchases []*Purchase) {
	for _, p := range purchases {
		if err := uc.cache.Invalidate(ctx, p.CustomerID, p.ProductID); err != nil {
			uc.log.Warnf("Failed to invalidate entitlement cache for customer %s product %s: %v", p.CustomerID, p.ProductID, err)
		}
	}
}

// mapStripeSubscriptionStatus 映射 Stripe 订阅状态到内部状态枚举
// 未知状态返回 ok=false，由调用方记日志丢弃事件
func mapStripeSubscriptionStatus(status string) (string, bool) {
	switch status {
	case "trialing":
		return constants.SubscriptionStatusTrialing, true
	case "active":
		return constants.SubscriptionStatusActive, true
	case "past_due":
		return constants.SubscriptionStatusPastDue, true
	case "canceled":
		return constants.SubscriptionStatusCanceled, true
	case "paused":
		return constants.SubscriptionStatusPaused, true
	default:
		return "", false
	}
}
