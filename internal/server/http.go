package server

import (
	"encoding/json"
	stdhttp "net/http"
	"time"

	"github.com/gaoyong06/go-pkg/health"
	"github.com/gaoyong06/go-pkg/middleware/i18n"

	"xinyuan_tech/billing-service/internal/auth"
	"xinyuan_tech/billing-service/internal/conf"
	"xinyuan_tech/billing-service/internal/service"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// NewHTTPServer new an HTTP server.
func NewHTTPServer(c *conf.Bootstrap, billing *service.BillingService, webhook *service.WebhookService, logger log.Logger) *http.Server {
	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
			// 添加 i18n 中间件
			i18n.Middleware(),
			// 提取网关注入的用户身份
			auth.Middleware(),
		),
		http.ErrorEncoder(customErrorEncoder),
	}
	if c.Server.Http.Addr != "" {
		opts = append(opts, http.Address(c.Server.Http.Addr))
	}
	if c.Server.Http.Timeout != "" {
		if d, err := time.ParseDuration(c.Server.Http.Timeout); err == nil {
			opts = append(opts, http.Timeout(d))
		}
	}
	srv := http.NewServer(opts...)

	// webhook 入口(验签在 service 层，必须读原始请求体)
	srv.Route("/webhooks").POST("/stripe", webhook.HandleStripeWebhook)

	// 客户侧路由
	v1 := srv.Route("/v1")
	v1.POST("/checkout/sessions", billing.CreateCheckout)
	v1.GET("/customers/{customer_id}/entitlements/{product_id}", billing.CheckEntitlement)
	v1.GET("/customers/{customer_id}/purchases", billing.ListPurchases)
	v1.GET("/customers/{customer_id}/orders", billing.ListOrders)

	// 运营侧路由
	admin := srv.Route("/admin/v1")
	admin.GET("/orders/{year}/{order_id}", billing.GetOrder)
	admin.POST("/orders/{year}/{order_id}/refund", billing.IssueRefund)
	admin.GET("/subscriptions/{subscription_id}", billing.GetSubscription)
	admin.POST("/subscriptions/{subscription_id}/cancel", billing.CancelSubscription)
	admin.POST("/plans/{plan_id}/sync", billing.SyncPlan)
	admin.POST("/products/{product_id}/sync", billing.SyncProduct)
	admin.POST("/reconcile", billing.Reconcile)

	// 注册健康检查端点
	srv.Route("/").GET("/health", func(ctx http.Context) error {
		return ctx.Result(200, health.NewResponse("billing-service"))
	})

	return srv
}

func customErrorEncoder(w stdhttp.ResponseWriter, r *stdhttp.Request, err error) {
	se := kerrors.FromError(err)
	status := stdhttp.StatusInternalServerError
	response := map[string]interface{}{
		"code":    status,
		"message": "internal server error",
	}

	if se != nil {
		status = mapErrorStatus(int(se.Code))
		response["code"] = se.Code
		response["reason"] = se.Reason
		response["message"] = se.Message
		if len(se.Metadata) > 0 {
			response["metadata"] = se.Metadata
		}
	} else if err != nil {
		response["message"] = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response)
}

func mapErrorStatus(code int) int {
	if code >= 100 && code < 600 {
		return code
	}
	if code >= 140000 && code < 150000 {
		return stdhttp.StatusBadRequest
	}
	return stdhttp.StatusInternalServerError
}
