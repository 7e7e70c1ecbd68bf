package service

import (
	"context"
	stdhttp "net/http"
	"strconv"
	"time"

	"xinyuan_tech/billing-service/internal/auth"
	"xinyuan_tech/billing-service/internal/biz"
	"xinyuan_tech/billing-service/internal/errors"

	pkgErrors "github.com/gaoyong06/go-pkg/errors"
	"github.com/go-kratos/kratos/v2/log"
	khttp "github.com/go-kratos/kratos/v2/transport/http"
)

// BillingService 计费服务
// 运营指令(退款/取消/同步)走 admin 路由，客户侧只读查询走 v1 路由
type BillingService struct {
	uc  *biz.BillingUsecase
	log *log.Helper
}

// NewBillingService 创建计费服务实例
func NewBillingService(uc *biz.BillingUsecase, logger log.Logger) *BillingService {
	return &BillingService{
		uc:  uc,
		log: log.NewHelper(logger),
	}
}

// CreateCheckoutRequest 创建结账会话请求
type CreateCheckoutRequest struct {
	CustomerID string `json:"customer_id"`
	ProductID  string `json:"product_id"`
	PlanID     string `json:"plan_id"`
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

// RefundRequest 退款请求，AmountCents 为 0 时全额退款
type RefundRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Reason      string `json:"reason"`
}

// CancelSubscriptionRequest 取消订阅请求
type CancelSubscriptionRequest struct {
	AtPeriodEnd bool   `json:"at_period_end"`
	Reason      string `json:"reason"`
}

// CreateCheckout 创建结账会话
func (s *BillingService) CreateCheckout(ctx khttp.Context) error {
	var req CreateCheckoutRequest
	if err := ctx.Bind(&req); err != nil {
		return err
	}

	h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
		if err := auth.CheckOwnership(c, req.CustomerID); err != nil {
			return nil, err
		}
		return s.uc.CreateCheckoutSession(c, &biz.CheckoutRequest{
			CustomerID: req.CustomerID,
			ProductID:  req.ProductID,
			PlanID:     req.PlanID,
			SuccessURL: req.SuccessURL,
			CancelURL:  req.CancelURL,
		})
	})
	out, err := h(ctx, nil)
	if err != nil {
		return err
	}

	session := out.(*biz.CheckoutSession)
	return ctx.Result(stdhttp.StatusOK, map[string]interface{}{
		"session_id":   session.SessionID,
		"checkout_url": session.URL,
	})
}

// CheckEntitlement 权益检查
func (s *BillingService) CheckEntitlement(ctx khttp.Context) error {
	customerID := ctx.Vars().Get("customer_id")
	productID := ctx.Vars().Get("product_id")

	h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
		if err := auth.CheckOwnership(c, customerID); err != nil {
			return nil, err
		}
		granted, err := s.uc.HasActiveEntitlement(c, customerID, productID)
		if err != nil {
			return nil, err
		}
		return granted, nil
	})
	out, err := h(ctx, nil)
	if err != nil {
		return err
	}

	return ctx.Result(stdhttp.StatusOK, map[string]interface{}{
		"customer_id": customerID,
		"product_id":  productID,
		"granted":     out.(bool),
	})
}

// ListPurchases 客户权益列表
func (s *BillingService) ListPurchases(ctx khttp.Context) error {
	customerID := ctx.Vars().Get("customer_id")

	h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
		if err := auth.CheckOwnership(c, customerID); err != nil {
			return nil, err
		}
		return s.uc.ListCustomerPurchases(c, customerID)
	})
	out, err := h(ctx, nil)
	if err != nil {
		return err
	}

	purchases := out.([]*biz.Purchase)
	items := make([]map[string]interface{}, 0, len(purchases))
	for _, p := range purchases {
		items = append(items, purchaseReply(p))
	}
	return ctx.Result(stdhttp.StatusOK, map[string]interface{}{"purchases": items})
}

// ListOrders 客户订单列表
func (s *BillingService) ListOrders(ctx khttp.Context) error {
	customerID := ctx.Vars().Get("customer_id")
	query := ctx.Query()
	year, _ := strconv.Atoi(query.Get("year"))
	page, _ := strconv.Atoi(query.Get("page"))
	pageSize, _ := strconv.Atoi(query.Get("page_size"))

	h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
		if err := auth.CheckOwnership(c, customerID); err != nil {
			return nil, err
		}
		orders, total, err := s.uc.ListCustomerOrders(c, customerID, year, page, pageSize)
		if err != nil {
			return nil, err
		}
		items := make([]map[string]interface{}, 0, len(orders))
		for _, o := range orders {
			items = append(items, orderReply(o))
		}
		return map[string]interface{}{"orders": items, "total": total}, nil
	})
	out, err := h(ctx, nil)
	if err != nil {
		return err
	}
	return ctx.Result(stdhttp.StatusOK, out)
}

// IssueRefund 运营退款，amount_cents 为 0 走全额退款
func (s *BillingService) IssueRefund(ctx khttp.Context) error {
	orderID := ctx.Vars().Get("order_id")
	year, err := strconv.Atoi(ctx.Vars().Get("year"))
	if err != nil {
		return pkgErrors.NewBizErrorWithLang(ctx, pkgErrors.ErrCodeInvalidArgument)
	}

	var req RefundRequest
	if err := ctx.Bind(&req); err != nil {
		return err
	}

	h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
		if err := auth.RequireAdmin(c); err != nil {
			return nil, err
		}
		if req.AmountCents > 0 {
			return nil, s.uc.IssuePartialRefund(c, orderID, year, req.AmountCents, req.Reason)
		}
		return nil, s.uc.IssueFullRefund(c, orderID, year, req.Reason)
	})
	if _, err := h(ctx, nil); err != nil {
		return err
	}
	return ctx.Result(stdhttp.StatusOK, map[string]interface{}{"ok": true})
}

// CancelSubscription 运营取消订阅
func (s *BillingService) CancelSubscription(ctx khttp.Context) error {
	subscriptionID, err := strconv.ParseUint(ctx.Vars().Get("subscription_id"), 10, 64)
	if err != nil {
		return pkgErrors.NewBizErrorWithLang(ctx, pkgErrors.ErrCodeInvalidArgument)
	}

	var req CancelSubscriptionRequest
	if err := ctx.Bind(&req); err != nil {
		return err
	}

	h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
		if err := auth.RequireAdmin(c); err != nil {
			return nil, err
		}
		return nil, s.uc.CancelSubscription(c, subscriptionID, req.AtPeriodEnd, req.Reason)
	})
	if _, err := h(ctx, nil); err != nil {
		return err
	}
	return ctx.Result(stdhttp.StatusOK, map[string]interface{}{"ok": true})
}

// SyncPlan 同步套餐到 Stripe
func (s *BillingService) SyncPlan(ctx khttp.Context) error {
	planID := ctx.Vars().Get("plan_id")

	h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
		if err := auth.RequireAdmin(c); err != nil {
			return nil, err
		}
		return nil, s.uc.SyncPlanToStripe(c, planID)
	})
	if _, err := h(ctx, nil); err != nil {
		return err
	}
	return ctx.Result(stdhttp.StatusOK, map[string]interface{}{"ok": true})
}

// SyncProduct 同步商品到 Stripe
func (s *BillingService) SyncProduct(ctx khttp.Context) error {
	productID := ctx.Vars().Get("product_id")

	h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
		if err := auth.RequireAdmin(c); err != nil {
			return nil, err
		}
		return nil, s.uc.SyncProductToStripe(c, productID)
	})
	if _, err := h(ctx, nil); err != nil {
		return err
	}
	return ctx.Result(stdhttp.StatusOK, map[string]interface{}{"ok": true})
}

// GetOrder 运营侧订单查询
func (s *BillingService) GetOrder(ctx khttp.Context) error {
	orderID := ctx.Vars().Get("order_id")
	year, err := strconv.Atoi(ctx.Vars().Get("year"))
	if err != nil {
		return pkgErrors.NewBizErrorWithLang(ctx, pkgErrors.ErrCodeInvalidArgument)
	}

	h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
		if err := auth.RequireAdmin(c); err != nil {
			return nil, err
		}
		order, err := s.uc.GetOrder(c, orderID, year)
		if err != nil {
			return nil, err
		}
		if order == nil {
			return nil, pkgErrors.NewBizErrorWithLang(c, errors.ErrCodeOrderNotFound)
		}
		return order, nil
	})
	out, err := h(ctx, nil)
	if err != nil {
		return err
	}
	return ctx.Result(stdhttp.StatusOK, orderReply(out.(*biz.Order)))
}

// GetSubscription 运营侧订阅查询
func (s *BillingService) GetSubscription(ctx khttp.Context) error {
	subscriptionID, err := strconv.ParseUint(ctx.Vars().Get("subscription_id"), 10, 64)
	if err != nil {
		return pkgErrors.NewBizErrorWithLang(ctx, pkgErrors.ErrCodeInvalidArgument)
	}

	h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
		if err := auth.RequireAdmin(c); err != nil {
			return nil, err
		}
		sub, err := s.uc.GetSubscriptionByID(c, subscriptionID)
		if err != nil {
			return nil, err
		}
		if sub == nil {
			return nil, pkgErrors.NewBizErrorWithLang(c, errors.ErrCodeSubscriptionNotFound)
		}
		return sub, nil
	})
	out, err := h(ctx, nil)
	if err != nil {
		return err
	}
	return ctx.Result(stdhttp.StatusOK, subscriptionReply(out.(*biz.Subscription)))
}

// Reconcile 手动触发订阅对账扫描
func (s *BillingService) Reconcile(ctx khttp.Context) error {
	h := ctx.Middleware(func(c context.Context, _ interface{}) (interface{}, error) {
		if err := auth.RequireAdmin(c); err != nil {
			return nil, err
		}
		return s.uc.ReconcileSubscriptions(c)
	})
	out, err := h(ctx, nil)
	if err != nil {
		return err
	}

	result := out.(*biz.SweepResult)
	return ctx.Result(stdhttp.StatusOK, map[string]interface{}{
		"checked":   result.Checked,
		"updated":   result.Updated,
		"finalized": result.Finalized,
		"failed":    result.Failed,
	})
}

func orderReply(o *biz.Order) map[string]interface{} {
	reply := map[string]interface{}{
		"order_id":            o.ID,
		"order_no":            o.OrderNo,
		"customer_id":         o.CustomerID,
		"status":              o.Status,
		"type":                o.Type,
		"currency":            o.Currency,
		"subtotal_cents":      o.SubtotalCents,
		"discount_cents":      o.DiscountCents,
		"tax_cents":           o.TaxCents,
		"total_cents":         o.TotalCents,
		"refund_amount_cents": o.RefundAmountCents,
		"created_year":        o.CreatedYear,
		"created_at":          o.CreatedAt.Format(time.RFC3339),
	}
	if o.PaidAt != nil {
		reply["paid_at"] = o.PaidAt.Format(time.RFC3339)
	}
	if o.RefundReason != "" {
		reply["refund_reason"] = o.RefundReason
	}
	return reply
}

func subscriptionReply(s *biz.Subscription) map[string]interface{} {
	reply := map[string]interface{}{
		"subscription_id":      s.ID,
		"customer_id":          s.CustomerID,
		"plan_id":              s.PlanID,
		"status":               s.Status,
		"currency":             s.Currency,
		"unit_amount_cents":    s.UnitAmountCents,
		"interval":             s.Interval,
		"interval_count":       s.IntervalCount,
		"current_period_start": s.CurrentPeriodStart.Format(time.RFC3339),
		"current_period_end":   s.CurrentPeriodEnd.Format(time.RFC3339),
		"cancel_at_period_end": s.CancelAtPeriodEnd,
	}
	if s.CanceledAt != nil {
		reply["canceled_at"] = s.CanceledAt.Format(time.RFC3339)
	}
	if s.EndedAt != nil {
		reply["ended_at"] = s.EndedAt.Format(time.RFC3339)
	}
	return reply
}

func purchaseReply(p *biz.Purchase) map[string]interface{} {
	reply := map[string]interface{}{
		"purchase_id": p.ID,
		"customer_id": p.CustomerID,
		"product_id":  p.ProductID,
		"status":      p.Status,
		"is_lifetime": p.IsLifetime,
		"created_at":  p.CreatedAt.Format(time.RFC3339),
	}
	if p.SubscriptionID != 0 {
		reply["subscription_id"] = p.SubscriptionID
	}
	if p.OrderID != "" {
		reply["order_id"] = p.OrderID
	}
	if p.RevokedAt != nil {
		reply["revoked_at"] = p.RevokedAt.Format(time.RFC3339)
		reply["revoke_reason"] = p.RevokeReason
	}
	return reply
}
