package biz

import (
	"context"
)

// HasActiveEntitlement 权益查询：客户当前是否持有商品的有效权益
// 只看 status=active，同一 (customer, product) 撤销后再授予会有多行历史。
// 内容服务层在每次内容访问时调用，前置 redis 缓存；缓存故障降级为直查数据库
func (uc *BillingUsecase) HasActiveEntitlement(ctx context.Context, customerID, productID string) (bool, error) {
	if customerID == "" || productID == "" {
		return false, nil
	}

	granted, ok, err := uc.cache.Get(ctx, customerID, productID)
	if err != nil {
		uc.log.Warnf("Entitlement cache get failed for customer %s product %s: %v", customerID, productID, err)
	} else if ok {
		return granted, nil
	}

	granted, err = uc.purchaseRepo.HasActivePurchase(ctx, customerID, productID)
	if err != nil {
		uc.log.Errorf("Failed to query purchases for customer %s product %s: %v", customerID, productID, err)
		return false, err
	}

	if err := uc.cache.Set(ctx, customerID, productID, granted); err != nil {
		uc.log.Warnf("Entitlement cache set failed for customer %s product %s: %v", customerID, productID, err)
	}
	return granted, nil
}

// ListCustomerPurchases 查询客户全部权益记录(运营侧只读)
func (uc *BillingUsecase) ListCustomerPurchases(ctx context.Context, customerID string) ([]*Purchase, error) {
	return uc.purchaseRepo.ListPurchasesByCustomer(ctx, customerID)
}
