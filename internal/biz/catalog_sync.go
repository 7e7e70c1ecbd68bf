package biz

import (
	"context"

	"xinyuan_tech/billing-service/internal/errors"

	pkgErrors "github.com/gaoyong06/go-pkg/errors"
)

// SyncPlanToStripe 懒同步套餐到 Stripe
// 首次售卖时创建远程 product + recurring price 并缓存 ids；
// 金额变更时新建价格并归档旧价格(Stripe 价格不可变)；
// 仅元数据变更时直接更新远程 product。
// 远程调用成功之前不写任何本地字段
func (uc *BillingUsecase) SyncPlanToStripe(ctx context.Context, planID string) error {
	uc.log.Infof("SyncPlanToStripe: planID=%s", planID)

	plan, err := uc.catalogRepo.GetPlan(ctx, planID)
	if err != nil {
		uc.log.Errorf("Failed to get plan %s: %v", planID, err)
		return err
	}
	if plan == nil {
		return pkgErrors.NewBizErrorWithLang(ctx, errors.ErrCodePlanNotFound)
	}
	// 免费套餐不同步
	if plan.AmountCents <= 0 {
		uc.log.Debugf("Plan %s is free, skipping stripe sync", planID)
		return nil
	}

	recurring := &RecurringPriceParams{Interval: plan.Interval, IntervalCount: plan.IntervalCount}

	// 首次同步：product + price 一起创建
	if plan.StripeProductID == "" {
		productID, err := uc.gateway.CreateProduct(ctx, plan.Name, plan.Description, map[string]string{"plan_id": plan.ID})
		if err != nil {
			uc.log.Errorf("Failed to create stripe product for plan %s: %v", planID, err)
			return pkgErrors.NewBizErrorWithLang(ctx, errors.ErrCodeStripeSyncFailed)
		}
		priceID, err := uc.gateway.CreatePrice(ctx, productID, plan.AmountCents, plan.Currency, recurring)
		if err != nil {
			uc.log.Errorf("Failed to create stripe price for plan %s: %v", planID, err)
			return pkgErrors.NewBizErrorWithLang(ctx, errors.ErrCodeStripeSyncFailed)
		}
		if err := uc.catalogRepo.SavePlanStripeIDs(ctx, plan.ID, productID, priceID, plan.AmountCents, plan.Currency); err != nil {
			return err
		}
		uc.log.Infof("Plan %s synced to stripe (product %s, price %s)", planID, productID, priceID)
		return nil
	}

	// 金额/币种变更：重建价格
	if plan.AmountCents != plan.SyncedAmountCents || plan.Currency != plan.SyncedCurrency {
		priceID, err := uc.gateway.CreatePrice(ctx, plan.StripeProductID, plan.AmountCents, plan.Currency, recurring)
		if err != nil {
			uc.log.Errorf("Failed to create replacement stripe price for plan %s: %v", planID, err)
			return pkgErrors.NewBizErrorWithLang(ctx, errors.ErrCodeStripeSyncFailed)
		}
		if err := uc.archiveReplacedPrices(ctx, plan.StripeProductID, priceID); err != nil {
			uc.log.Errorf("Failed to archive replaced stripe prices for plan %s: %v", planID, err)
			return pkgErrors.NewBizErrorWithLang(ctx, errors.ErrCodeStripeSyncFailed)
		}
		if err := uc.catalogRepo.SavePlanStripeIDs(ctx, plan.ID, plan.StripeProductID, priceID, plan.AmountCents, plan.Currency); err != nil {
			return err
		}
		uc.log.Infof("Plan %s price rebuilt on stripe (new price %s)", planID, priceID)
		return nil
	}

	// 仅元数据变更
	if err := uc.gateway.UpdateProduct(ctx, plan.StripeProductID, plan.Name, plan.Description); err != nil {
		uc.log.Errorf("Failed to update stripe product for plan %s: %v", planID, err)
		return pkgErrors.NewBizErrorWithLang(ctx, errors.ErrCodeStripeSyncFailed)
	}
	uc.log.Infof("Plan %s stripe product metadata updated", planID)
	return nil
}

// SyncProductToStripe 懒同步一次性商品到 Stripe，规则与套餐一致，价格为一次性
func (uc *BillingUsecase) SyncProductToStripe(ctx context.Context, productID string) error {
	uc.log.Infof("SyncProductToStripe: productID=%s", productID)

	product, err := uc.catalogRepo.GetProduct(ctx, productID)
	if err != nil {
		uc.log.Errorf("Failed to get product %s: %v", productID, err)
		return err
	}
	if product == nil {
		return pkgErrors.NewBizErrorWithLang(ctx, errors.ErrCodeProductNotFound)
	}
	if product.Free || product.AmountCents <= 0 {
		uc.log.Debugf("Product %s is free, skipping stripe sync", productID)
		return nil
	}

	if product.StripeProductID == "" {
		stripeProductID, err := uc.gateway.CreateProduct(ctx, product.Title, "", map[string]string{"product_id": product.ID})
		if err != nil {
			uc.log.Errorf("Failed to create stripe product for %s: %v", productID, err)
			return pkgErrors.NewBizErrorWithLang(ctx, errors.ErrCodeStripeSyncFailed)
		}
		priceID, err := uc.gateway.CreatePrice(ctx, stripeProductID, product.AmountCents, product.Currency, nil)
		if err != nil {
			uc.log.Errorf("Failed to create stripe price for product %s: %v", productID, err)
			return pkgErrors.NewBizErrorWithLang(ctx, errors.ErrCodeStripeSyncFailed)
		}
		if err := uc.catalogRepo.SaveProductStripeIDs(ctx, product.ID, stripeProductID, priceID, product.AmountCents, product.Currency); err != nil {
			return err
		}
		uc.log.Infof("Product %s synced to stripe (product %s, price %s)", productID, stripeProductID, priceID)
		return nil
	}

	if product.AmountCents != product.SyncedAmountCents || product.Currency != product.SyncedCurrency {
		priceID, err := uc.gateway.CreatePrice(ctx, product.StripeProductID, product.AmountCents, product.Currency, nil)
		if err != nil {
			uc.log.Errorf("Failed to create replacement stripe price for product %s: %v", productID, err)
			return pkgErrors.NewBizErrorWithLang(ctx, errors.ErrCodeStripeSyncFailed)
		}
		if err := uc.archiveReplacedPrices(ctx, product.StripeProductID, priceID); err != nil {
			uc.log.Errorf("Failed to archive replaced stripe prices for product %s: %v", productID, err)
			return pkgErrors.NewBizErrorWithLang(ctx, errors.ErrCodeStripeSyncFailed)
		}
		if err := uc.catalogRepo.SaveProductStripeIDs(ctx, product.ID, product.StripeProductID, priceID, product.AmountCents, product.Currency); err != nil {
			return err
		}
		uc.log.Infof("Product %s price rebuilt on stripe (new price %s)", productID, priceID)
		return nil
	}

	if err := uc.gateway.UpdateProduct(ctx, product.StripeProductID, product.Title, ""); err != nil {
		uc.log.Errorf("Failed to update stripe product for %s: %v", productID, err)
		return pkgErrors.NewBizErrorWithLang(ctx, errors.ErrCodeStripeSyncFailed)
	}
	uc.log.Infof("Product %s stripe product metadata updated", productID)
	return nil
}

// archiveReplacedPrices 归档商品下除新价格外的所有在售价格
// 上次重建若在创建新价格后中断，商品下会残留多个在售价格，这里一并清掉
func (uc *BillingUsecase) archiveReplacedPrices(ctx context.Context, stripeProductID, keepPriceID string) error {
	priceIDs, err := uc.gateway.ListActivePrices(ctx, stripeProductID)
	if err != nil {
		return err
	}
	for _, id := range priceIDs {
		if id == keepPriceID {
			continue
		}
		if err := uc.gateway.ArchivePrice(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
