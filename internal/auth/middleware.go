package auth

import (
	"context"

	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
)

// Middleware 从网关注入的 Header 提取用户身份写入 context
// 上游网关完成认证后透传 X-User-Id / X-User-Role
func Middleware() middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			if tr, ok := transport.FromServerContext(ctx); ok {
				if uid := tr.RequestHeader().Get("X-User-Id"); uid != "" {
					ctx = context.WithValue(ctx, UserIDKey, uid)
				}
				if role := tr.RequestHeader().Get("X-User-Role"); role != "" {
					ctx = context.WithValue(ctx, UserRoleKey, Role(role))
				}
			}
			return handler(ctx, req)
		}
	}
}
