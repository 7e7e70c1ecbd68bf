package data

import (
	"context"
	"fmt"
	"xinyuan_tech/billing-service/internal/biz"
	"xinyuan_tech/billing-service/internal/constants"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

// entitlementCache 权益查询的 redis 缓存
// 正值缓存 5 分钟，负值缓存 1 分钟防穿透；权益变更后由 biz 层主动失效
type entitlementCache struct {
	rdb *redis.Client
	log *log.Helper
}

// NewEntitlementCache 创建权益缓存
func NewEntitlementCache(rdb *redis.Client, logger log.Logger) biz.EntitlementCache {
	return &entitlementCache{
		rdb: rdb,
		log: log.NewHelper(logger),
	}
}

func entitlementKey(customerID, productID string) string {
	return fmt.Sprintf("billing:entitlement:%s:%s", customerID, productID)
}

// Get 读取缓存，miss 时 ok=false
func (c *entitlementCache) Get(ctx context.Context, customerID, productID string) (bool, bool, error) {
	val, err := c.rdb.Get(ctx, entitlementKey(customerID, productID)).Result()
	if err == redis.Nil {
		return false, false, nil
	}
	if err != nil {
		c.log.Errorf("Failed to read entitlement cache for %s/%s: %v", customerID, productID, err)
		return false, false, err
	}
	return val == "1", true, nil
}

// Set 写入缓存
func (c *entitlementCache) Set(ctx context.Context, customerID, productID string, granted bool) error {
	val := "0"
	expiration := constants.NullCacheExpiration
	if granted {
		val = "1"
		expiration = constants.EntitlementCacheExpiration
	}
	if err := c.rdb.Set(ctx, entitlementKey(customerID, productID), val, expiration).Err(); err != nil {
		c.log.Errorf("Failed to write entitlement cache for %s/%s: %v", customerID, productID, err)
		return err
	}
	return nil
}

// Invalidate 删除缓存(权益创建或撤销后调用)
func (c *entitlementCache) Invalidate(ctx context.Context, customerID, productID string) error {
	if err := c.rdb.Del(ctx, entitlementKey(customerID, productID)).Err(); err != nil {
		c.log.Errorf("Failed to invalidate entitlement cache for %s/%s: %v", customerID, productID, err)
		return err
	}
	return nil
}
