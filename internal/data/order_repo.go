package data

import (
	"context"
	"errors"
	"time"
	"xinyuan_tech/billing-service/internal/biz"
	"xinyuan_tech/billing-service/internal/constants"
	"xinyuan_tech/billing-service/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// orderRepo 订单仓库实现
type orderRepo struct {
	data *Data
	log  *log.Helper
}

// NewOrderRepo 创建订单仓库
func NewOrderRepo(data *Data, logger log.Logger) biz.OrderRepo {
	return &orderRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// CreateOrder 创建订单及行项目
func (r *orderRepo) CreateOrder(ctx context.Context, order *biz.Order, items []*biz.OrderItem) error {
	db := r.data.DB(ctx)
	if err := db.Create(toOrderModel(order)).Error; err != nil {
		r.log.Errorf("Failed to create order %s: %v", order.ID, err)
		return err
	}
	for _, item := range items {
		m := toOrderItemModel(item)
		if err := db.Create(m).Error; err != nil {
			r.log.Errorf("Failed to create order item for order %s: %v", order.ID, err)
			return err
		}
		item.ID = m.ID
	}
	return nil
}

// GetOrder 按复合主键获取订单，不存在返回 nil
func (r *orderRepo) GetOrder(ctx context.Context, orderID string, year int) (*biz.Order, error) {
	var m model.Order
	err := r.data.DB(ctx).Where("order_id = ? AND created_year = ?", orderID, year).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		r.log.Errorf("Failed to get order %s/%d: %v", orderID, year, err)
		return nil, err
	}
	return toBizOrder(&m), nil
}

// GetOrderByPaymentIntentID 按支付意图 id 获取订单，不存在返回 nil
func (r *orderRepo) GetOrderByPaymentIntentID(ctx context.Context, paymentIntentID string) (*biz.Order, error) {
	var m model.Order
	err := r.data.DB(ctx).Where("stripe_payment_intent_id = ?", paymentIntentID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		r.log.Errorf("Failed to get order by payment intent %s: %v", paymentIntentID, err)
		return nil, err
	}
	return toBizOrder(&m), nil
}

// GetOrderByInvoiceID 按账单 id 获取订单，不存在返回 nil
func (r *orderRepo) GetOrderByInvoiceID(ctx context.Context, invoiceID string) (*biz.Order, error) {
	var m model.Order
	err := r.data.DB(ctx).Where("stripe_invoice_id = ?", invoiceID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		r.log.Errorf("Failed to get order by invoice %s: %v", invoiceID, err)
		return nil, err
	}
	return toBizOrder(&m), nil
}

// UpdateOrder 保存订单
func (r *orderRepo) UpdateOrder(ctx context.Context, order *biz.Order) error {
	if err := r.data.DB(ctx).Save(toOrderModel(order)).Error; err != nil {
		r.log.Errorf("Failed to update order %s: %v", order.ID, err)
		return err
	}
	return nil
}

// ListOrdersByCustomer 分页列出客户订单，year 为 0 时不按年份过滤
func (r *orderRepo) ListOrdersByCustomer(ctx context.Context, customerID string, year, page, pageSize int) ([]*biz.Order, int, error) {
	var models []model.Order
	var total int64

	query := r.data.DB(ctx).Model(&model.Order{}).Where("customer_id = ?", customerID)
	if year > 0 {
		query = query.Where("created_year = ?", year)
	}

	if err := query.Count(&total).Error; err != nil {
		r.log.Errorf("Failed to count orders for customer %s: %v", customerID, err)
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&models).Error
	if err != nil {
		r.log.Errorf("Failed to list orders for customer %s: %v", customerID, err)
		return nil, 0, err
	}

	orders := make([]*biz.Order, 0, len(models))
	for i := range models {
		orders = append(orders, toBizOrder(&models[i]))
	}
	return orders, int(total), nil
}

// ListStalePendingOrders 列出超过保留时长仍未支付的订单
func (r *orderRepo) ListStalePendingOrders(ctx context.Context, olderThan time.Time) ([]*biz.Order, error) {
	var models []model.Order
	err := r.data.DB(ctx).
		Where("status = ? AND created_at < ?", constants.OrderStatusPending, olderThan).
		Find(&models).Error
	if err != nil {
		r.log.Errorf("Failed to list stale pending orders: %v", err)
		return nil, err
	}

	orders := make([]*biz.Order, 0, len(models))
	for i := range models {
		orders = append(orders, toBizOrder(&models[i]))
	}
	return orders, nil
}

func toBizOrder(m *model.Order) *biz.Order {
	return &biz.Order{
		ID:                    m.ID,
		OrderNo:               m.OrderNo,
		CustomerID:            m.CustomerID,
		Status:                m.Status,
		Type:                  m.Type,
		Currency:              m.Currency,
		SubtotalCents:         m.SubtotalCents,
		DiscountCents:         m.DiscountCents,
		TaxCents:              m.TaxCents,
		TotalCents:            m.TotalCents,
		StripePaymentIntentID: m.StripePaymentIntentID,
		StripeInvoiceID:       m.StripeInvoiceID,
		CreatedYear:           m.CreatedYear,
		PaidAt:                m.PaidAt,
		RefundAmountCents:     m.RefundAmountCents,
		RefundReason:          m.RefundReason,
		CreatedAt:             m.CreatedAt,
		UpdatedAt:             m.UpdatedAt,
	}
}

func toOrderModel(o *biz.Order) *model.Order {
	return &model.Order{
		ID:                    o.ID,
		CreatedYear:           o.CreatedYear,
		OrderNo:               o.OrderNo,
		CustomerID:            o.CustomerID,
		Status:                o.Status,
		Type:                  o.Type,
		Currency:              o.Currency,
		SubtotalCents:         o.SubtotalCents,
		DiscountCents:         o.DiscountCents,
		TaxCents:              o.TaxCents,
		TotalCents:            o.TotalCents,
		StripePaymentIntentID: o.StripePaymentIntentID,
		StripeInvoiceID:       o.StripeInvoiceID,
		PaidAt:                o.PaidAt,
		RefundAmountCents:     o.RefundAmountCents,
		RefundReason:          o.RefundReason,
		CreatedAt:             o.CreatedAt,
		UpdatedAt:             o.UpdatedAt,
	}
}

func toOrderItemModel(i *biz.OrderItem) *model.OrderItem {
	return &model.OrderItem{
		ID:             i.ID,
		OrderID:        i.OrderID,
		OrderYear:      i.OrderYear,
		ProductID:      i.ProductID,
		SubscriptionID: i.SubscriptionID,
		Quantity:       i.Quantity,
		UnitCents:      i.UnitCents,
		DiscountCents:  i.DiscountCents,
		TaxCents:       i.TaxCents,
		TotalCents:     i.TotalCents,
	}
}
