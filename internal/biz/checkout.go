package biz

import (
	"context"

	"xinyuan_tech/billing-service/internal/constants"
	"xinyuan_tech/billing-service/internal/errors"

	pkgErrors "github.com/gaoyong06/go-pkg/errors"
)

// CheckoutRequest 创建结账会话请求
// ProductID 非空走一次性购买，否则 PlanID 非空走订阅
type CheckoutRequest struct {
	CustomerID string
	ProductID  string
	PlanID     string
	SuccessURL string
	CancelURL  string
}

// CheckoutSession 创建结账会话结果
type CheckoutSession struct {
	SessionID string
	URL       string
}

// CreateCheckoutSession 创建 Stripe 结账会话
// 懒同步商品/套餐，懒创建 Stripe customer，metadata 写入内部 customer_id/product_id，
// webhook 对账引擎靠这份 metadata 把支付结果落回本地账本
func (uc *BillingUsecase) CreateCheckoutSession(ctx context.Context, req *CheckoutRequest) (*CheckoutSession, error) {
	uc.log.Infof("CreateCheckoutSession: customer=%s, product=%s, plan=%s", req.CustomerID, req.ProductID, req.PlanID)

	customer, err := uc.customerRepo.GetCustomer(ctx, req.CustomerID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, pkgErrors.NewBizErrorWithLang(ctx, errors.ErrCodeCustomerNotFound)
	}

	stripeCustomerID, err := uc.ensureStripeCustomer(ctx, customer)
	if err != nil {
		uc.log.Errorf("Failed to ensure stripe customer for %s: %v", customer.ID, err)
		return nil, pkgErrors.NewBizErrorWithLang(ctx, errors.ErrCodeCheckoutFailed)
	}

	params := &CheckoutSessionParams{
		StripeCustomerID: stripeCustomerID,
		Quantity:         1,
		SuccessURL:       req.SuccessURL,
		CancelURL:        req.CancelURL,
		Metadata: map[string]string{
			constants.MetadataCustomerID: customer.ID,
		},
	}

	switch {
	case req.ProductID != "":
		if err := uc.SyncProductToStripe(ctx, req.ProductID); err != nil {
			return nil, err
		}
		product, err := uc.catalogRepo.GetProduct(ctx, req.ProductID)
		if err != nil {
			return nil, err
		}
		if product == nil || product.StripePriceID == "" {
			return nil, pkgErrors.NewBizErrorWithLang(ctx, errors.ErrCodeProductNotFound)
		}
		params.Mode = constants.CheckoutModePayment
		params.StripePriceID = product.StripePriceID
		params.Metadata[constants.MetadataProductID] = product.ID
	case req.PlanID != "":
		if err := uc.SyncPlanToStripe(ctx, req.PlanID); err != nil {
			return nil, err
		}
		plan, err := uc.catalogRepo.GetPlan(ctx, req.PlanID)
		if err != nil {
			return nil, err
		}
		if plan == nil || plan.StripePriceID == "" {
			return nil, pkgErrors.NewBizErrorWithLang(ctx, errors.ErrCodePlanNotFound)
		}
		params.Mode = constants.CheckoutModeSubscription
		params.StripePriceID = plan.StripePriceID
		params.Metadata[constants.MetadataPlanID] = plan.ID
	default:
		return nil, pkgErrors.NewBizErrorWithLang(ctx, errors.ErrCodeCheckoutFailed)
	}

	sessionID, url, err := uc.gateway.CreateCheckoutSession(ctx, params)
	if err != nil {
		uc.log.Errorf("Failed to create checkout session for customer %s: %v", customer.ID, err)
		return nil, pkgErrors.NewBizErrorWithLang(ctx, errors.ErrCodeCheckoutFailed)
	}

	uc.log.Infof("Checkout session %s created for customer %s", sessionID, customer.ID)
	return &CheckoutSession{SessionID: sessionID, URL: url}, nil
}

// ensureStripeCustomer 懒创建 Stripe customer 并缓存 id
func (uc *BillingUsecase) ensureStripeCustomer(ctx context.Context, customer *Customer) (string, error) {
	if customer.StripeCustomerID != "" {
		return customer.StripeCustomerID, nil
	}
	stripeCustomerID, err := uc.gateway.CreateCustomer(ctx, customer.Email, "", map[string]string{
		constants.MetadataCustomerID: customer.ID,
	})
	if err != nil {
		return "", err
	}
	if err := uc.customerRepo.SetStripeCustomerID(ctx, customer.ID, stripeCustomerID); err != nil {
		return "", err
	}
	customer.StripeCustomerID = stripeCustomerID
	return stripeCustomerID, nil
}
