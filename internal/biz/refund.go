package biz

import (
	"context"
	"time"

	"xinyuan_tech/billing-service/internal/constants"
	"xinyuan_tech/billing-service/internal/errors"

	pkgErrors "github.com/gaoyong06/go-pkg/errors"
)

// IssueFullRefund 全额退款
// 先远程后本地：远程退款失败时本地状态不得声称已退款。
// 本地入账与 webhook 的 charge.refunded 路径共用 applyOrderRefund，
// 网关随后补投的退款事件重放同一终值，无害
func (uc *BillingUsecase) IssueFullRefund(ctx context.Context, orderID string, year int, reason string) error {
	uc.log.Infof("IssueFullRefund: orderID=%s, year=%d, reason=%s", orderID, year, reason)

	order, err := uc.orderRepo.GetOrder(ctx, orderID, year)
	if err != nil {
		uc.log.Errorf("Failed to get order %s/%d: %v", orderID, year, err)
		return err
	}
	if order == nil {
		return pkgErrors.NewBizErrorWithLang(ctx, errors.ErrCodeOrderNotFound)
	}
	if !orderRefundable(order) {
		return pkgErrors.NewBizErrorWithLang(ctx, errors.ErrCodeOrderNotRefundable)
	}

	// 部分退款后的全额退款只需补退剩余金额
	remaining := order.TotalCents - order.RefundAmountCents
	if _, err := uc.gateway.CreateRefund(ctx, order.StripePaymentIntentID, remaining, reason); err != nil {
		uc.log.Errorf("Failed to create remote refund for order %s: %v", order.ID, err)
		return pkgErrors.NewBizErrorWithLang(ctx, errors.ErrCodeRefundFailed)
	}

	var revoked []*Purchase
	err = uc.withTransaction(ctx, func(ctx context.Context) error {
		var txErr error
		revoked, txErr = uc.applyOrderRefund(ctx, order, order.TotalCents, reason)
		return txErr
	})
	if err != nil {
		return err
	}

	uc.invalidateEntitlements(ctx, revoked)
	uc.log.Infof("Full refund issued for order %s (%d cents)", order.ID, order.TotalCents)
	return nil
}

// IssuePartialRefund 部分退款
// 金额必须严格小于剩余可退金额，等于或超过应走全额退款路径。
// 部分退款保留权益，不动客户聚合
func (uc *BillingUsecase) IssuePartialRefund(ctx context.Context, orderID string, year int, amountCents int64, reason string) error {
	uc.log.Infof("IssuePartialRefund: orderID=%s, year=%d, amount=%d, reason=%s", orderID, year, amountCents, reason)

	order, err := uc.orderRepo.GetOrder(ctx, orderID, year)
	if err != nil {
		uc.log.Errorf("Failed to get order %s/%d: %v", orderID, year, err)
		return err
	}
	if order == nil {
		return pkgErrors.NewBizErrorWithLang(ctx, errors.ErrCodeOrderNotFound)
	}
	if !orderRefundable(order) {
		return pkgErrors.NewBizErrorWithLang(ctx, errors.ErrCodeOrderNotRefundable)
	}
	if amountCents <= 0 || amountCents >= order.TotalCents-order.RefundAmountCents {
		return pkgErrors.NewBizErrorWithLang(ctx, errors.ErrCodeInvalidRefundAmount)
	}

	if _, err := uc.gateway.CreateRefund(ctx, order.StripePaymentIntentID, amountCents, reason); err != nil {
		uc.log.Errorf("Failed to create remote refund for order %s: %v", order.ID, err)
		return pkgErrors.NewBizErrorWithLang(ctx, errors.ErrCodeRefundFailed)
	}

	err = uc.withTransaction(ctx, func(ctx context.Context) error {
		_, txErr := uc.applyOrderRefund(ctx, order, order.RefundAmountCents+amountCents, reason)
		return txErr
	})
	if err != nil {
		return err
	}

	uc.log.Infof("Partial refund issued for order %s (%d cents, cumulative %d)", order.ID, amountCents, order.RefundAmountCents)
	return nil
}

// CancelSubscription 取消订阅
// atPeriodEnd=true 只设置远程标记和本地 cancel_at_period_end/canceled_at，
// 权益和计数保持不变，等网关在周期结束时投递 deletion 事件走 §finalize；
// atPeriodEnd=false 立即远程取消并内联执行同一"取消终结"原子效果，
// 网关若仍补投 deletion 事件，canceled 终态幂等吸收
func (uc *BillingUsecase) CancelSubscription(ctx context.Context, subscriptionID uint64, atPeriodEnd bool, reason string) error {
	uc.log.Infof("CancelSubscription: id=%d, atPeriodEnd=%v, reason=%s", subscriptionID, atPeriodEnd, reason)

	sub, err := uc.subRepo.GetSubscription(ctx, subscriptionID)
	if err != nil {
		uc.log.Errorf("Failed to get subscription %d: %v", subscriptionID, err)
		return err
	}
	if sub == nil {
		return pkgErrors.NewBizErrorWithLang(ctx, errors.ErrCodeSubscriptionNotFound)
	}
	if !subscriptionCancellable(sub) {
		return pkgErrors.NewBizErrorWithLang(ctx, errors.ErrCodeSubscriptionNotCancellable)
	}

	if err := uc.gateway.CancelSubscription(ctx, sub.StripeSubscriptionID, atPeriodEnd); err != nil {
		uc.log.Errorf("Failed to cancel subscription %s remotely: %v", sub.StripeSubscriptionID, err)
		return pkgErrors.NewBizErrorWithLang(ctx, errors.ErrCodeSubscriptionCancelFailed)
	}

	now := time.Now().UTC()
	if atPeriodEnd {
		sub.CancelAtPeriodEnd = true
		sub.CanceledAt = &now
		sub.UpdatedAt = now
		if err := uc.subRepo.UpdateSubscription(ctx, sub); err != nil {
			uc.log.Errorf("Failed to flag subscription %d cancel_at_period_end: %v", sub.ID, err)
			return err
		}
		uc.log.Infof("Subscription %d flagged to cancel at period end", sub.ID)
		return nil
	}

	if reason == "" {
		reason = constants.RevokeReasonSubscriptionCanceled
	}
	var revoked []*Purchase
	err = uc.withTransaction(ctx, func(ctx context.Context) error {
		var txErr error
		revoked, txErr = uc.finalizeSubscriptionCancellation(ctx, sub, reason, now)
		return txErr
	})
	if err != nil {
		return err
	}

	uc.invalidateEntitlements(ctx, revoked)
	return nil
}

// orderRefundable 订单是否满足退款前置条件
func orderRefundable(order *Order) bool {
	if order.StripePaymentIntentID == "" {
		return false
	}
	return order.Status == constants.OrderStatusPaid || order.Status == constants.OrderStatusPartiallyRefunded
}

// subscriptionCancellable 订阅是否满足取消前置条件
func subscriptionCancellable(sub *Subscription) bool {
	if sub.StripeSubscriptionID == "" {
		return false
	}
	return sub.Status == constants.SubscriptionStatusActive || sub.Status == constants.SubscriptionStatusTrialing
}
