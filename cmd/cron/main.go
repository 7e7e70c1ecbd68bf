package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"xinyuan_tech/billing-service/internal/conf"
	"xinyuan_tech/billing-service/internal/constants"

	"github.com/robfig/cron/v3"
	_ "go.uber.org/automaxprocs"
)

var (
	flagconf string
)

func init() {
	flag.StringVar(&flagconf, "conf", "configs/config.yaml", "config path, eg: -conf config.yaml")
}

func main() {
	flag.Parse()

	// 初始化配置
	bc, err := conf.Load(flagconf)
	if err != nil {
		panic(err)
	}
	if err := bc.Validate(); err != nil {
		panic(err)
	}

	// 初始化应用
	app, cleanup, err := wireApp(bc)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	pendingOrderTTL := constants.DefaultPendingOrderTTL
	if bc.Billing != nil && bc.Billing.PendingOrderTtlHours > 0 {
		pendingOrderTTL = time.Duration(bc.Billing.PendingOrderTtlHours) * time.Hour
	}

	// 创建定时任务调度器（支持秒级调度）
	cronScheduler := cron.New(cron.WithSeconds())

	// 1. 订阅对账扫描 - 每 30 分钟执行(分布式锁保证单实例)
	_, err = cronScheduler.AddFunc("0 */30 * * * *", func() {
		log.Println("[CRON] Starting subscription reconcile sweep...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		result, err := app.billingUsecase.ReconcileSubscriptions(ctx)
		if err != nil {
			log.Printf("[CRON] Error reconciling subscriptions: %v", err)
			return
		}
		log.Printf("[CRON] Reconcile sweep completed: checked=%d, updated=%d, finalized=%d, failed=%d",
			result.Checked, result.Updated, result.Finalized, result.Failed)
	})
	if err != nil {
		log.Printf("Failed to add reconcile sweep job: %v", err)
	}

	// 2. 过期待支付订单清理 - 每天凌晨 2 点执行
	_, err = cronScheduler.AddFunc("0 0 2 * * *", func() {
		log.Println("[CRON] Starting stale pending order cleanup...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		expired, err := app.billingUsecase.ExpireStalePendingOrders(ctx, pendingOrderTTL)
		if err != nil {
			log.Printf("[CRON] Error expiring stale pending orders: %v", err)
			return
		}
		log.Printf("[CRON] Expired %d stale pending orders", expired)
	})
	if err != nil {
		log.Printf("Failed to add stale order cleanup job: %v", err)
	}

	// 启动定时任务
	cronScheduler.Start()
	log.Println("========================================")
	log.Println("Cron jobs started successfully")
	log.Println("Scheduled jobs:")
	log.Println("  - Reconcile sweep:     Every 30 minutes")
	log.Println("  - Stale order cleanup: Every day at 02:00")
	log.Println("========================================")

	// 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down gracefully...")

	// 停止定时任务
	ctx := cronScheduler.Stop()
	select {
	case <-ctx.Done():
		log.Println("Cron jobs stopped gracefully")
	case <-time.After(5 * time.Second):
		log.Println("Cron jobs forced to stop after timeout")
	}
}
