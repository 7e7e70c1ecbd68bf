package biz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"xinyuan_tech/billing-service/internal/constants"

	"github.com/google/uuid"
)

// HandleWebhookEvent Webhook 对账引擎入口
// 接收一条已验签解码的支付网关事件，把它的效果应用到账本。
// 幂等键一律取支付网关域内已唯一的自然外部键(payment intent / invoice / subscription id)，
// 重复投递和乱序投递都收敛到同一终态。
// 元数据无法解析的事件记日志后丢弃(返回 nil，避免网关无限重试)；
// 瞬时错误(数据库/远程调用失败)原样返回，由传输层回非 2xx 触发网关重试
func (uc *BillingUsecase) HandleWebhookEvent(ctx context.Context, ev *WebhookEvent) error {
	switch ev.Kind {
	case constants.EventCheckoutCompleted:
		return uc.handleCheckoutCompleted(ctx, ev)
	case constants.EventSubscriptionUpdated:
		return uc.handleSubscriptionUpdated(ctx, ev)
	case constants.EventSubscriptionDeleted:
		return uc.handleSubscriptionDeleted(ctx, ev)
	case constants.EventInvoicePaymentSucceeded:
		return uc.handleInvoicePaymentSucceeded(ctx, ev)
	case constants.EventInvoicePaymentFailed:
		return uc.handleInvoicePaymentFailed(ctx, ev)
	case constants.EventChargeRefunded:
		return uc.handleChargeRefunded(ctx, ev)
	default:
		uc.log.Debugf("Ignoring webhook event %s of unhandled kind %s", ev.ID, ev.Kind)
		return nil
	}
}

func (uc *BillingUsecase) handleCheckoutCompleted(ctx context.Context, ev *WebhookEvent) error {
	session := ev.CheckoutSession
	if session == nil {
		uc.log.Warnf("Event %s has no checkout session payload, dropping", ev.ID)
		return nil
	}

	switch session.Mode {
	case constants.CheckoutModePayment:
		return uc.handleCheckoutPayment(ctx, ev, session)
	case constants.CheckoutModeSubscription:
		return uc.handleCheckoutSubscription(ctx, ev, session)
	default:
		uc.log.Warnf("Event %s: unknown checkout mode %q, dropping", ev.ID, session.Mode)
		return nil
	}
}

// handleCheckoutPayment 一次性支付完成：幂等键为 payment intent id
// 原子效果：创建订单 + 行项目 + 终身权益，客户订单数/累计消费入账
func (uc *BillingUsecase) handleCheckoutPayment(ctx context.Context, ev *WebhookEvent, session *CheckoutSessionPayload) error {
	if session.PaymentIntentID == "" {
		uc.log.Warnf("Event %s: checkout session %s has no payment intent, dropping", ev.ID, session.SessionID)
		return nil
	}

	existing, err := uc.orderRepo.GetOrderByPaymentIntentID(ctx, session.PaymentIntentID)
	if err != nil {
		return err
	}
	if existing != nil {
		uc.log.Infof("Order for payment intent %s already exists, skipping (idempotent)", session.PaymentIntentID)
		return nil
	}

	customerID := session.Metadata[constants.MetadataCustomerID]
	productID := session.Metadata[constants.MetadataProductID]
	if customerID == "" || productID == "" {
		uc.log.Errorf("Event %s: checkout session %s missing customer_id/product_id metadata, dropping", ev.ID, session.SessionID)
		return nil
	}

	customer, err := uc.customerRepo.GetCustomer(ctx, customerID)
	if err != nil {
		return err
	}
	if customer == nil {
		uc.log.Errorf("Event %s: customer %s not found, dropping", ev.ID, customerID)
		return nil
	}
	product, err := uc.catalogRepo.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if product == nil {
		uc.log.Errorf("Event %s: product %s not found, dropping", ev.ID, productID)
		return nil
	}

	now := time.Now().UTC()
	order := &Order{
		ID:                    uuid.NewString(),
		OrderNo:               newOrderNo(now),
		CustomerID:            customer.ID,
		Status:                constants.OrderStatusPaid,
		Type:                  constants.OrderTypeCheckout,
		Currency:              session.Currency,
		SubtotalCents:         session.AmountSubtotalCents,
		DiscountCents:         session.AmountDiscountCents,
		TaxCents:              session.AmountTaxCents,
		TotalCents:            session.AmountTotalCents,
		StripePaymentIntentID: session.PaymentIntentID,
		CreatedYear:           now.Year(),
		PaidAt:                &now,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	item := &OrderItem{
		OrderID:       order.ID,
		OrderYear:     order.CreatedYear,
		ProductID:     product.ID,
		Quantity:      1,
		UnitCents:     session.AmountSubtotalCents,
		DiscountCents: session.AmountDiscountCents,
		TaxCents:      session.AmountTaxCents,
		TotalCents:    session.AmountTotalCents,
	}
	purchase := &Purchase{
		ID:         uuid.NewString(),
		CustomerID: customer.ID,
		ProductID:  product.ID,
		OrderID:    order.ID,
		OrderYear:  order.CreatedYear,
		Status:     constants.PurchaseStatusActive,
		IsLifetime: true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err = uc.withTransaction(ctx, func(ctx context.Context) error {
		if err := uc.orderRepo.CreateOrder(ctx, order, []*OrderItem{item}); err != nil {
			return err
		}
		if err := uc.purchaseRepo.CreatePurchase(ctx, purchase); err != nil {
			return err
		}
		return uc.customerRepo.AddOrderStats(ctx, customer.ID, order.TotalCents)
	})
	if err != nil {
		uc.log.Errorf("Failed to record checkout payment for intent %s: %v", session.PaymentIntentID, err)
		return err
	}

	uc.invalidateEntitlements(ctx, []*Purchase{purchase})
	uc.log.Infof("Recorded checkout order %s (intent %s) for customer %s, product %s", order.ID, session.PaymentIntentID, customer.ID, product.ID)
	return nil
}

// handleCheckoutSubscription 订阅模式结账完成：幂等键为 subscription id
// checkout 事件本身缺少周期/价格细节，需要回查网关拿完整订阅详情
func (uc *BillingUsecase) handleCheckoutSubscription(ctx context.Context, ev *WebhookEvent, session *CheckoutSessionPayload) error {
	if session.StripeSubscriptionID == "" {
		uc.log.Warnf("Event %s: checkout session %s has no subscription id, dropping", ev.ID, session.SessionID)
		return nil
	}

	existing, err := uc.subRepo.GetSubscriptionByStripeID(ctx, session.StripeSubscriptionID)
	if err != nil {
		return err
	}
	if existing != nil {
		uc.log.Infof("Subscription %s already exists, skipping (idempotent)", session.StripeSubscriptionID)
		return nil
	}

	detail, err := uc.gateway.GetSubscription(ctx, session.StripeSubscriptionID)
	if err != nil {
		// 远程查询失败是瞬时错误，让网关重投
		uc.log.Errorf("Failed to fetch subscription %s from gateway: %v", session.StripeSubscriptionID, err)
		return err
	}

	customer, err := uc.customerRepo.GetCustomerByStripeID(ctx, detail.StripeCustomerID)
	if err != nil {
		return err
	}
	if customer == nil {
		uc.log.Errorf("Event %s: no local customer for stripe customer %s, dropping", ev.ID, detail.StripeCustomerID)
		return nil
	}

	// 价格未匹配到本地套餐时仍然落库(legacy 订阅，PlanID 为空)
	var planID string
	var products []*Product
	plan, err := uc.catalogRepo.GetPlanByStripePriceID(ctx, detail.StripePriceID)
	if err != nil {
		return err
	}
	if plan != nil {
		planID = plan.ID
		products, err = uc.catalogRepo.ListPlanProducts(ctx, plan.ID)
		if err != nil {
			return err
		}
	} else {
		uc.log.Warnf("Stripe price %s matches no local plan, creating legacy subscription %s", detail.StripePriceID, detail.StripeSubscriptionID)
	}

	status, ok := mapStripeSubscriptionStatus(detail.Status)
	if !ok {
		uc.log.Warnf("Subscription %s has unmapped status %q, defaulting to active", detail.StripeSubscriptionID, detail.Status)
		status = constants.SubscriptionStatusActive
	}

	now := time.Now().UTC()
	sub := &Subscription{
		CustomerID:           customer.ID,
		PlanID:               planID,
		Status:               status,
		Currency:             detail.Currency,
		UnitAmountCents:      detail.UnitAmountCents,
		Interval:             detail.Interval,
		IntervalCount:        detail.IntervalCount,
		CurrentPeriodStart:   detail.CurrentPeriodStart,
		CurrentPeriodEnd:     detail.CurrentPeriodEnd,
		CancelAtPeriodEnd:    detail.CancelAtPeriodEnd,
		StripeSubscriptionID: detail.StripeSubscriptionID,
		LastEventAt:          ev.CreatedAt,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	purchases := make([]*Purchase, 0, len(products))
	err = uc.withTransaction(ctx, func(ctx context.Context) error {
		if err := uc.subRepo.CreateSubscription(ctx, sub); err != nil {
			return err
		}
		for _, p := range products {
			purchase := &Purchase{
				ID:             uuid.NewString(),
				CustomerID:     customer.ID,
				ProductID:      p.ID,
				SubscriptionID: sub.ID,
				Status:         constants.PurchaseStatusActive,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := uc.purchaseRepo.CreatePurchase(ctx, purchase); err != nil {
				return err
			}
			purchases = append(purchases, purchase)
		}
		return uc.customerRepo.AddActiveSubscriptions(ctx, customer.ID, 1)
	})
	if err != nil {
		uc.log.Errorf("Failed to record subscription %s: %v", session.StripeSubscriptionID, err)
		return err
	}

	uc.invalidateEntitlements(ctx, purchases)
	uc.log.Infof("Recorded subscription %s for customer %s (plan %q, %d purchases)", sub.StripeSubscriptionID, customer.ID, planID, len(purchases))
	return nil
}

// handleSubscriptionUpdated 订阅状态变更：按外部订阅 id 的 upsert-by-status
// canceled 是终态，不会被 update 事件覆盖回去；
// update 事件自身携带 canceled 时走和 deleted 相同的终结路径
// (deleted 可能丢投或晚到，权益撤销不能依赖事件种类)；
// 比 LastEventAt 更旧的事件视为乱序投递的过期事件，记日志丢弃
func (uc *BillingUsecase) handleSubscriptionUpdated(ctx context.Context, ev *WebhookEvent) error {
	payload := ev.Subscription
	if payload == nil {
		uc.log.Warnf("Event %s has no subscription payload, dropping", ev.ID)
		return nil
	}

	sub, err := uc.subRepo.GetSubscriptionByStripeID(ctx, payload.StripeSubscriptionID)
	if err != nil {
		return err
	}
	if sub == nil {
		uc.log.Debugf("Event %s: subscription %s not tracked locally, nothing to update", ev.ID, payload.StripeSubscriptionID)
		return nil
	}
	if sub.IsTerminal() {
		uc.log.Infof("Subscription %s already canceled, ignoring update event %s", payload.StripeSubscriptionID, ev.ID)
		return nil
	}
	if !ev.CreatedAt.IsZero() && sub.LastEventAt.After(ev.CreatedAt) {
		uc.log.Warnf("Event %s for subscription %s is older than last applied event (%s < %s), dropping stale event",
			ev.ID, payload.StripeSubscriptionID, ev.CreatedAt.Format(time.RFC3339), sub.LastEventAt.Format(time.RFC3339))
		return nil
	}

	status, ok := mapStripeSubscriptionStatus(payload.Status)
	if !ok {
		uc.log.Warnf("Event %s: unmapped subscription status %q for %s, dropping", ev.ID, payload.Status, payload.StripeSubscriptionID)
		return nil
	}

	if status == constants.SubscriptionStatusCanceled {
		endedAt := time.Now().UTC()
		if payload.EndedAt != nil {
			endedAt = *payload.EndedAt
		}
		var revoked []*Purchase
		err = uc.withTransaction(ctx, func(ctx context.Context) error {
			var txErr error
			revoked, txErr = uc.finalizeSubscriptionCancellation(ctx, sub, constants.RevokeReasonSubscriptionCanceled, endedAt)
			return txErr
		})
		if err != nil {
			return err
		}
		uc.invalidateEntitlements(ctx, revoked)
		return nil
	}

	sub.Status = status
	sub.CurrentPeriodStart = payload.CurrentPeriodStart
	sub.CurrentPeriodEnd = payload.CurrentPeriodEnd
	sub.CancelAtPeriodEnd = payload.CancelAtPeriodEnd
	sub.CanceledAt = payload.CanceledAt
	sub.LastEventAt = ev.CreatedAt
	sub.UpdatedAt = time.Now().UTC()
	if err := uc.subRepo.UpdateSubscription(ctx, sub); err != nil {
		uc.log.Errorf("Failed to update subscription %s: %v", payload.StripeSubscriptionID, err)
		return err
	}

	uc.log.Infof("Subscription %s updated to status %s", payload.StripeSubscriptionID, status)
	return nil
}

// handleSubscriptionDeleted 订阅取消终结：三个效果(终态、撤销权益、递减计数)原子执行
func (uc *BillingUsecase) handleSubscriptionDeleted(ctx context.Context, ev *WebhookEvent) error {
	payload := ev.Subscription
	if payload == nil {
		uc.log.Warnf("Event %s has no subscription payload, dropping", ev.ID)
		return nil
	}

	sub, err := uc.subRepo.GetSubscriptionByStripeID(ctx, payload.StripeSubscriptionID)
	if err != nil {
		return err
	}
	if sub == nil {
		uc.log.Debugf("Event %s: subscription %s not tracked locally, nothing to finalize", ev.ID, payload.StripeSubscriptionID)
		return nil
	}
	if sub.IsTerminal() {
		uc.log.Infof("Subscription %s already canceled, skipping (idempotent)", payload.StripeSubscriptionID)
		return nil
	}

	endedAt := time.Now().UTC()
	if payload.EndedAt != nil {
		endedAt = *payload.EndedAt
	}

	var revoked []*Purchase
	err = uc.withTransaction(ctx, func(ctx context.Context) error {
		var txErr error
		revoked, txErr = uc.finalizeSubscriptionCancellation(ctx, sub, constants.RevokeReasonSubscriptionCanceled, endedAt)
		return txErr
	})
	if err != nil {
		return err
	}

	uc.invalidateEntitlements(ctx, revoked)
	return nil
}

// handleInvoicePaymentSucceeded 续费账单支付成功：幂等键为 invoice id
// 金额取账单自身的汇总字段，不从行项目重算，避免舍入漂移
func (uc *BillingUsecase) handleInvoicePaymentSucceeded(ctx context.Context, ev *WebhookEvent) error {
	invoice := ev.Invoice
	if invoice == nil || invoice.InvoiceID == "" {
		uc.log.Warnf("Event %s has no invoice payload, dropping", ev.ID)
		return nil
	}

	existing, err := uc.orderRepo.GetOrderByInvoiceID(ctx, invoice.InvoiceID)
	if err != nil {
		return err
	}
	if existing != nil {
		uc.log.Infof("Order for invoice %s already exists, skipping (idempotent)", invoice.InvoiceID)
		return nil
	}

	customer, err := uc.customerRepo.GetCustomerByStripeID(ctx, invoice.StripeCustomerID)
	if err != nil {
		return err
	}
	if customer == nil {
		uc.log.Errorf("Event %s: no local customer for stripe customer %s, dropping invoice %s", ev.ID, invoice.StripeCustomerID, invoice.InvoiceID)
		return nil
	}

	var subscriptionID uint64
	if invoice.StripeSubscriptionID != "" {
		sub, err := uc.subRepo.GetSubscriptionByStripeID(ctx, invoice.StripeSubscriptionID)
		if err != nil {
			return err
		}
		if sub != nil {
			subscriptionID = sub.ID
		}
	}

	now := time.Now().UTC()
	discount := invoice.SubtotalCents + invoice.TaxCents - invoice.TotalCents
	if discount < 0 {
		discount = 0
	}
	order := &Order{
		ID:                    uuid.NewString(),
		OrderNo:               newOrderNo(now),
		CustomerID:            customer.ID,
		Status:                constants.OrderStatusPaid,
		Type:                  constants.OrderTypeSubscription,
		Currency:              invoice.Currency,
		SubtotalCents:         invoice.SubtotalCents,
		DiscountCents:         discount,
		TaxCents:              invoice.TaxCents,
		TotalCents:            invoice.TotalCents,
		StripePaymentIntentID: invoice.PaymentIntentID,
		StripeInvoiceID:       invoice.InvoiceID,
		CreatedYear:           now.Year(),
		PaidAt:                &now,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	// 行项目商品解析：price id → plan → 套餐第一个关联商品；解析失败跳过该行，不致命
	var items []*OrderItem
	for _, line := range invoice.Lines {
		plan, err := uc.catalogRepo.GetPlanByStripePriceID(ctx, line.StripePriceID)
		if err != nil {
			return err
		}
		if plan == nil {
			uc.log.Debugf("Invoice %s line price %s matches no plan, skipping line", invoice.InvoiceID, line.StripePriceID)
			continue
		}
		products, err := uc.catalogRepo.ListPlanProducts(ctx, plan.ID)
		if err != nil {
			return err
		}
		if len(products) == 0 {
			uc.log.Debugf("Invoice %s line plan %s has no products, skipping line", invoice.InvoiceID, plan.ID)
			continue
		}
		items = append(items, &OrderItem{
			OrderID:        order.ID,
			OrderYear:      order.CreatedYear,
			ProductID:      products[0].ID,
			SubscriptionID: subscriptionID,
			Quantity:       line.Quantity,
			UnitCents:      line.AmountCents,
			TotalCents:     line.AmountCents,
		})
	}

	err = uc.withTransaction(ctx, func(ctx context.Context) error {
		if err := uc.orderRepo.CreateOrder(ctx, order, items); err != nil {
			return err
		}
		return uc.customerRepo.AddOrderStats(ctx, customer.ID, order.TotalCents)
	})
	if err != nil {
		uc.log.Errorf("Failed to record invoice %s: %v", invoice.InvoiceID, err)
		return err
	}

	uc.log.Infof("Recorded renewal order %s for invoice %s (customer %s, %d cents)", order.ID, invoice.InvoiceID, customer.ID, order.TotalCents)
	return nil
}

// handleInvoicePaymentFailed 账单支付失败：本地无对应订单不是错误
// (账单可能在任何本地订单产生之前就失败)
func (uc *BillingUsecase) handleInvoicePaymentFailed(ctx context.Context, ev *WebhookEvent) error {
	invoice := ev.Invoice
	if invoice == nil || invoice.InvoiceID == "" {
		uc.log.Warnf("Event %s has no invoice payload, dropping", ev.ID)
		return nil
	}

	order, err := uc.orderRepo.GetOrderByInvoiceID(ctx, invoice.InvoiceID)
	if err != nil {
		return err
	}
	if order == nil {
		uc.log.Warnf("Invoice %s payment failed but no local order exists, nothing to do", invoice.InvoiceID)
		return nil
	}
	if order.Status != constants.OrderStatusPending {
		uc.log.Infof("Order %s for failed invoice %s is %s, leaving as-is", order.ID, invoice.InvoiceID, order.Status)
		return nil
	}

	order.Status = constants.OrderStatusPaymentFailed
	order.UpdatedAt = time.Now().UTC()
	if err := uc.orderRepo.UpdateOrder(ctx, order); err != nil {
		uc.log.Errorf("Failed to mark order %s payment_failed: %v", order.ID, err)
		return err
	}
	uc.log.Infof("Order %s marked payment_failed for invoice %s", order.ID, invoice.InvoiceID)
	return nil
}

// handleChargeRefunded 退款事件：退款金额从事件重读并绝对赋值，重复投递天然幂等
func (uc *BillingUsecase) handleChargeRefunded(ctx context.Context, ev *WebhookEvent) error {
	charge := ev.Charge
	if charge == nil || charge.PaymentIntentID == "" {
		uc.log.Warnf("Event %s has no charge payload or payment intent, dropping", ev.ID)
		return nil
	}

	order, err := uc.orderRepo.GetOrderByPaymentIntentID(ctx, charge.PaymentIntentID)
	if err != nil {
		return err
	}
	if order == nil {
		// 网关侧退款但本地无订单是需要人工对账的异常，不是处理错误
		uc.log.Warnf("Charge %s refunded but no local order for payment intent %s", charge.ChargeID, charge.PaymentIntentID)
		return nil
	}

	var revoked []*Purchase
	err = uc.withTransaction(ctx, func(ctx context.Context) error {
		var txErr error
		revoked, txErr = uc.applyOrderRefund(ctx, order, charge.AmountRefundedCents, "")
		return txErr
	})
	if err != nil {
		return err
	}

	uc.invalidateEntitlements(ctx, revoked)
	return nil
}

// newOrderNo 生成对人友好的订单号
func newOrderNo(now time.Time) string {
	return fmt.Sprintf("ORD-%d-%s", now.Year(), strings.ToUpper(uuid.NewString()[:8]))
}
