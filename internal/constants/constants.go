package constants

import "time"

// 缓存相关常量
const (
	// EntitlementCacheExpiration 权益查询缓存过期时间
	EntitlementCacheExpiration = 5 * time.Minute
	// NullCacheExpiration 空值缓存过期时间 (防止缓存穿透)
	NullCacheExpiration = time.Minute
)

// 分页相关常量
const (
	// DefaultPageSize 默认分页大小
	DefaultPageSize = 10
	// MaxPageSize 最大分页大小
	MaxPageSize = 100
)

// 分布式锁相关常量
const (
	// ReconcileSweepLockKey 对账扫描锁的 key
	ReconcileSweepLockKey = "billing:reconcile_sweep_lock"
	// ReconcileSweepLockExpiration 对账扫描锁过期时间
	ReconcileSweepLockExpiration = 10 * time.Minute
	// ReconcileSweepLockRetries 对账扫描锁重试次数
	ReconcileSweepLockRetries = 1
)

// 订单状态
const (
	OrderStatusPending           = "pending"
	OrderStatusPaid              = "paid"
	OrderStatusPaymentFailed     = "payment_failed"
	OrderStatusRefunded          = "refunded"
	OrderStatusPartiallyRefunded = "partially_refunded"
)

// 订单类型
const (
	OrderTypeCheckout     = "checkout"
	OrderTypeSubscription = "subscription"
)

// 订阅状态
const (
	SubscriptionStatusTrialing = "trialing"
	SubscriptionStatusActive   = "active"
	SubscriptionStatusPastDue  = "past_due"
	SubscriptionStatusCanceled = "canceled"
	SubscriptionStatusPaused   = "paused"
)

// 权益状态
const (
	PurchaseStatusActive  = "active"
	PurchaseStatusRevoked = "revoked"
)

// 撤销原因
const (
	RevokeReasonSubscriptionCanceled = "Subscription canceled"
	RevokeReasonOrderRefunded        = "Order refunded"
)

// Stripe webhook 事件类型(与 Stripe 保持一致)
const (
	EventCheckoutCompleted       = "checkout.session.completed"
	EventSubscriptionUpdated     = "customer.subscription.updated"
	EventSubscriptionDeleted     = "customer.subscription.deleted"
	EventInvoicePaymentSucceeded = "invoice.payment_succeeded"
	EventInvoicePaymentFailed    = "invoice.payment_failed"
	EventChargeRefunded          = "charge.refunded"
)

// Stripe checkout 模式
const (
	CheckoutModePayment      = "payment"
	CheckoutModeSubscription = "subscription"
)

// Stripe checkout session metadata key(创建会话时写入，webhook 解析时读取)
const (
	MetadataCustomerID = "customer_id"
	MetadataProductID  = "product_id"
	MetadataPlanID     = "plan_id"
)

// 待支付订单过期相关常量
const (
	// DefaultPendingOrderTTL 默认待支付订单保留时长
	DefaultPendingOrderTTL = 24 * time.Hour
)
