package errors

import (
	pkgErrors "github.com/gaoyong06/go-pkg/errors"
	i18nPkg "github.com/gaoyong06/go-pkg/middleware/i18n"
)

func init() {
	// 初始化全局错误管理器（使用项目特定的配置）
	pkgErrors.InitGlobalErrorManager("i18n", i18nPkg.Language)
}

// 计费服务错误码定义
// 错误码格式：SSMMEE (6位数字)，其中 SS=14 表示 billing-service
// 模块划分：
//   01: 商品/套餐目录模块
//   02: 订阅模块
//   03: 订单/退款模块
//   04: 客户/结账模块

// 目录模块 (140100-140199)
const (
	// ErrCodePlanNotFound 套餐不存在错误
	ErrCodePlanNotFound = 140101
	// ErrCodeProductNotFound 商品不存在错误
	ErrCodeProductNotFound = 140102
	// ErrCodeStripeSyncFailed Stripe 商品/价格同步失败错误
	ErrCodeStripeSyncFailed = 140103
)

// 订阅模块 (140200-140299)
const (
	// ErrCodeSubscriptionNotFound 订阅不存在错误
	ErrCodeSubscriptionNotFound = 140201
	// ErrCodeSubscriptionNotCancellable 当前状态无法取消订阅错误
	ErrCodeSubscriptionNotCancellable = 140202
	// ErrCodeSubscriptionCancelFailed 远程取消订阅失败错误
	ErrCodeSubscriptionCancelFailed = 140203
)

// 订单/退款模块 (140300-140399)
const (
	// ErrCodeOrderNotFound 订单不存在错误
	ErrCodeOrderNotFound = 140301
	// ErrCodeOrderNotRefundable 当前状态无法退款错误
	ErrCodeOrderNotRefundable = 140302
	// ErrCodeInvalidRefundAmount 退款金额无效错误
	ErrCodeInvalidRefundAmount = 140303
	// ErrCodeRefundFailed 远程退款失败错误
	ErrCodeRefundFailed = 140304
)

// 客户/结账模块 (140400-140499)
const (
	// ErrCodeCustomerNotFound 客户不存在错误
	ErrCodeCustomerNotFound = 140401
	// ErrCodeCheckoutFailed 创建结账会话失败错误
	ErrCodeCheckoutFailed = 140402
)
