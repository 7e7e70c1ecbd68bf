package biz

import (
	"context"
	"time"

	"xinyuan_tech/billing-service/internal/constants"

	"github.com/go-redsync/redsync/v4"
)

// SweepResult 对账扫描结果
type SweepResult struct {
	Checked   int
	Updated   int
	Finalized int
	Failed    int
}

// ReconcileSubscriptions 远程/本地订阅对账扫描(定时任务)
// webhook 可能丢投；对每个未终结的本地订阅回查网关，
// 把远程状态喂给和 webhook 相同的应用路径，保证两边最终一致。
// 用分布式锁保证多实例部署时只有一个扫描者
func (uc *BillingUsecase) ReconcileSubscriptions(ctx context.Context) (*SweepResult, error) {
	mutex := uc.rs.NewMutex(
		constants.ReconcileSweepLockKey,
		redsync.WithExpiry(constants.ReconcileSweepLockExpiration),
		redsync.WithTries(constants.ReconcileSweepLockRetries),
	)
	if err := mutex.LockContext(ctx); err != nil {
		uc.log.Infof("Reconcile sweep already running elsewhere, skipping: %v", err)
		return &SweepResult{}, nil
	}
	defer func() {
		if _, err := mutex.UnlockContext(ctx); err != nil {
			uc.log.Warnf("Failed to unlock reconcile sweep mutex: %v", err)
		}
	}()

	subs, err := uc.subRepo.ListNonTerminalSubscriptions(ctx)
	if err != nil {
		uc.log.Errorf("Failed to list subscriptions for reconcile sweep: %v", err)
		return nil, err
	}

	result := &SweepResult{}
	for _, sub := range subs {
		result.Checked++
		detail, err := uc.gateway.GetSubscription(ctx, sub.StripeSubscriptionID)
		if err != nil {
			uc.log.Warnf("Sweep: failed to fetch subscription %s: %v", sub.StripeSubscriptionID, err)
			result.Failed++
			continue
		}

		// 远程已取消：走和 subscription.deleted 相同的终结路径
		if detail.Status == "canceled" {
			endedAt := time.Now().UTC()
			if detail.EndedAt != nil {
				endedAt = *detail.EndedAt
			}
			var revoked []*Purchase
			err = uc.withTransaction(ctx, func(ctx context.Context) error {
				var txErr error
				revoked, txErr = uc.finalizeSubscriptionCancellation(ctx, sub, constants.RevokeReasonSubscriptionCanceled, endedAt)
				return txErr
			})
			if err != nil {
				uc.log.Errorf("Sweep: failed to finalize subscription %s: %v", sub.StripeSubscriptionID, err)
				result.Failed++
				continue
			}
			uc.invalidateEntitlements(ctx, revoked)
			result.Finalized++
			continue
		}

		status, ok := mapStripeSubscriptionStatus(detail.Status)
		if !ok {
			uc.log.Warnf("Sweep: unmapped status %q for subscription %s, skipping", detail.Status, sub.StripeSubscriptionID)
			continue
		}
		if status == sub.Status && detail.CurrentPeriodEnd.Equal(sub.CurrentPeriodEnd) && detail.CancelAtPeriodEnd == sub.CancelAtPeriodEnd {
			continue
		}

		sub.Status = status
		sub.CurrentPeriodStart = detail.CurrentPeriodStart
		sub.CurrentPeriodEnd = detail.CurrentPeriodEnd
		sub.CancelAtPeriodEnd = detail.CancelAtPeriodEnd
		sub.CanceledAt = detail.CanceledAt
		sub.UpdatedAt = time.Now().UTC()
		if err := uc.subRepo.UpdateSubscription(ctx, sub); err != nil {
			uc.log.Errorf("Sweep: failed to update subscription %s: %v", sub.StripeSubscriptionID, err)
			result.Failed++
			continue
		}
		result.Updated++
	}

	uc.log.Infof("Reconcile sweep done: checked=%d, updated=%d, finalized=%d, failed=%d",
		result.Checked, result.Updated, result.Finalized, result.Failed)
	return result, nil
}

// ExpireStalePendingOrders 过期长时间未支付的订单(定时任务)
func (uc *BillingUsecase) ExpireStalePendingOrders(ctx context.Context, ttl time.Duration) (int, error) {
	if ttl <= 0 {
		ttl = constants.DefaultPendingOrderTTL
	}
	cutoff := time.Now().UTC().Add(-ttl)

	orders, err := uc.orderRepo.ListStalePendingOrders(ctx, cutoff)
	if err != nil {
		uc.log.Errorf("Failed to list stale pending orders: %v", err)
		return 0, err
	}

	expired := 0
	for _, order := range orders {
		order.Status = constants.OrderStatusPaymentFailed
		order.UpdatedAt = time.Now().UTC()
		if err := uc.orderRepo.UpdateOrder(ctx, order); err != nil {
			uc.log.Errorf("Failed to expire pending order %s: %v", order.ID, err)
			continue
		}
		expired++
	}

	uc.log.Infof("Expired %d stale pending orders (cutoff %s)", expired, cutoff.Format(time.RFC3339))
	return expired, nil
}

// GetOrder 运营侧只读查询：按自然键获取订单
func (uc *BillingUsecase) GetOrder(ctx context.Context, orderID string, year int) (*Order, error) {
	return uc.orderRepo.GetOrder(ctx, orderID, year)
}

// ListCustomerOrders 运营侧只读查询：客户在指定年份的订单
func (uc *BillingUsecase) ListCustomerOrders(ctx context.Context, customerID string, year, page, pageSize int) ([]*Order, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > constants.MaxPageSize {
		pageSize = constants.DefaultPageSize
	}
	return uc.orderRepo.ListOrdersByCustomer(ctx, customerID, year, page, pageSize)
}

// GetSubscriptionByID 运营侧只读查询：按内部 id 获取订阅
func (uc *BillingUsecase) GetSubscriptionByID(ctx context.Context, id uint64) (*Subscription, error) {
	return uc.subRepo.GetSubscription(ctx, id)
}
