package biz

import (
	"context"
	"fmt"
	"testing"
	"time"

	"xinyuan_tech/billing-service/internal/constants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedPaidOrder(env *testEnv, totalCents int64) *Order {
	seedCustomer(env, "cust-1", "cus_1")
	env.customers.customers["cust-1"].TotalSpentCents = totalCents
	order := &Order{
		ID: "o1", CreatedYear: 2026, CustomerID: "cust-1",
		Status: constants.OrderStatusPaid, TotalCents: totalCents,
		StripePaymentIntentID: "pi_1",
	}
	env.orders.orders = []*Order{order}
	env.purchases.purchases = []*Purchase{
		{ID: "p1", CustomerID: "cust-1", ProductID: "course-1", OrderID: "o1", OrderYear: 2026, Status: constants.PurchaseStatusActive, IsLifetime: true},
	}
	return order
}

func TestIssueFullRefund_RemoteThenLocal(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	order := seedPaidOrder(env, 10000)

	require.NoError(t, env.uc.IssueFullRefund(ctx, "o1", 2026, "customer request"))

	require.Len(t, env.gateway.refundCalls, 1)
	assert.Equal(t, "pi_1", env.gateway.refundCalls[0].paymentIntentID)
	assert.Equal(t, int64(10000), env.gateway.refundCalls[0].amountCents)

	assert.Equal(t, constants.OrderStatusRefunded, order.Status)
	assert.Equal(t, int64(10000), order.RefundAmountCents)
	assert.Equal(t, "customer request", order.RefundReason)
	assert.Equal(t, 0, env.purchases.activeCount())
	assert.Equal(t, int64(0), env.customers.customers["cust-1"].TotalSpentCents)
}

func TestIssueFullRefund_RemoteFailureLeavesLedgerUntouched(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	order := seedPaidOrder(env, 10000)
	env.gateway.refundErr = fmt.Errorf("stripe unavailable")

	err := env.uc.IssueFullRefund(ctx, "o1", 2026, "customer request")
	require.Error(t, err)

	assert.Equal(t, constants.OrderStatusPaid, order.Status, "local state must not claim a refund that did not happen remotely")
	assert.Equal(t, int64(0), order.RefundAmountCents)
	assert.Equal(t, 1, env.purchases.activeCount())
	assert.Equal(t, int64(10000), env.customers.customers["cust-1"].TotalSpentCents)
}

func TestIssueFullRefund_OrderNotFound(t *testing.T) {
	env := newTestEnv()
	err := env.uc.IssueFullRefund(context.Background(), "missing", 2026, "")
	require.Error(t, err)
	assert.Empty(t, env.gateway.refundCalls)
}

func TestIssueFullRefund_PendingOrderNotRefundable(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	order := seedPaidOrder(env, 10000)
	order.Status = constants.OrderStatusPending

	err := env.uc.IssueFullRefund(ctx, "o1", 2026, "")
	require.Error(t, err)
	assert.Empty(t, env.gateway.refundCalls)
}

func TestIssueFullRefund_AfterPartialRefundsOnlyRemainder(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	order := seedPaidOrder(env, 10000)
	order.Status = constants.OrderStatusPartiallyRefunded
	order.RefundAmountCents = 4000

	require.NoError(t, env.uc.IssueFullRefund(ctx, "o1", 2026, ""))

	require.Len(t, env.gateway.refundCalls, 1)
	assert.Equal(t, int64(6000), env.gateway.refundCalls[0].amountCents, "only the remaining amount goes to the gateway")
	assert.Equal(t, constants.OrderStatusRefunded, order.Status)
	assert.Equal(t, int64(10000), order.RefundAmountCents)
}

func TestIssuePartialRefund_KeepsPurchasesAndAggregates(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	order := seedPaidOrder(env, 10000)

	require.NoError(t, env.uc.IssuePartialRefund(ctx, "o1", 2026, 4000, "goodwill"))

	require.Len(t, env.gateway.refundCalls, 1)
	assert.Equal(t, int64(4000), env.gateway.refundCalls[0].amountCents)
	assert.Equal(t, constants.OrderStatusPartiallyRefunded, order.Status)
	assert.Equal(t, int64(4000), order.RefundAmountCents)
	assert.Equal(t, 1, env.purchases.activeCount())
	assert.Equal(t, int64(10000), env.customers.customers["cust-1"].TotalSpentCents)
}

func TestIssuePartialRefund_AmountMustBeBelowRemaining(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	order := seedPaidOrder(env, 10000)

	tests := []struct {
		name   string
		amount int64
	}{
		{"zero amount", 0},
		{"negative amount", -100},
		{"equal to total", 10000},
		{"above total", 12000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := env.uc.IssuePartialRefund(ctx, "o1", 2026, tt.amount, "")
			require.Error(t, err)
		})
	}
	assert.Empty(t, env.gateway.refundCalls, "invalid amounts never reach the gateway")
	assert.Equal(t, constants.OrderStatusPaid, order.Status)

	// 先部分退 4000，剩余 6000：再退 6000 必须被拒绝
	require.NoError(t, env.uc.IssuePartialRefund(ctx, "o1", 2026, 4000, ""))
	err := env.uc.IssuePartialRefund(ctx, "o1", 2026, 6000, "")
	require.Error(t, err, "cumulative refunds must stay strictly below the order total")
	assert.Equal(t, int64(4000), order.RefundAmountCents)
}

func TestCancelSubscription_AtPeriodEndPreservesAccess(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	seedCustomer(env, "cust-1", "cus_1")
	env.customers.customers["cust-1"].ActiveSubscriptionCount = 1
	sub := &Subscription{ID: 5, CustomerID: "cust-1", Status: constants.SubscriptionStatusActive, StripeSubscriptionID: "sub_1"}
	env.subs.subs = []*Subscription{sub}
	env.subs.nextID = 5
	env.purchases.purchases = []*Purchase{
		{ID: "p1", CustomerID: "cust-1", ProductID: "course-a", SubscriptionID: 5, Status: constants.PurchaseStatusActive},
	}

	require.NoError(t, env.uc.CancelSubscription(ctx, 5, true, ""))

	require.Len(t, env.gateway.cancelCalls, 1)
	assert.True(t, env.gateway.cancelCalls[0].atPeriodEnd)
	assert.True(t, sub.CancelAtPeriodEnd)
	assert.NotNil(t, sub.CanceledAt)
	assert.Equal(t, constants.SubscriptionStatusActive, sub.Status, "subscription stays active until period end")
	assert.Equal(t, 1, env.purchases.activeCount(), "entitlements survive until the deletion event")
	assert.Equal(t, 1, env.customers.customers["cust-1"].ActiveSubscriptionCount)
}

func TestCancelSubscription_ImmediateFinalizesInline(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	seedCustomer(env, "cust-1", "cus_1")
	env.customers.customers["cust-1"].ActiveSubscriptionCount = 1
	sub := &Subscription{ID: 5, CustomerID: "cust-1", Status: constants.SubscriptionStatusActive, StripeSubscriptionID: "sub_1"}
	env.subs.subs = []*Subscription{sub}
	env.subs.nextID = 5
	env.purchases.purchases = []*Purchase{
		{ID: "p1", CustomerID: "cust-1", ProductID: "course-a", SubscriptionID: 5, Status: constants.PurchaseStatusActive},
	}

	require.NoError(t, env.uc.CancelSubscription(ctx, 5, false, "abuse"))

	require.Len(t, env.gateway.cancelCalls, 1)
	assert.False(t, env.gateway.cancelCalls[0].atPeriodEnd)
	assert.Equal(t, constants.SubscriptionStatusCanceled, sub.Status)
	assert.Equal(t, 0, env.purchases.activeCount())
	assert.Equal(t, "abuse", env.purchases.purchases[0].RevokeReason)
	assert.Equal(t, 0, env.customers.customers["cust-1"].ActiveSubscriptionCount)

	// 网关随后补投 deletion 事件：终态幂等吸收
	ev := &WebhookEvent{
		ID:           "evt_del",
		Kind:         constants.EventSubscriptionDeleted,
		CreatedAt:    time.Now().UTC(),
		Subscription: &SubscriptionPayload{StripeSubscriptionID: "sub_1"},
	}
	require.NoError(t, env.uc.HandleWebhookEvent(ctx, ev))
	assert.Equal(t, 0, env.customers.customers["cust-1"].ActiveSubscriptionCount, "late deletion event must not decrement again")
}

func TestCancelSubscription_RemoteFailureLeavesLocalUntouched(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	seedCustomer(env, "cust-1", "cus_1")
	sub := &Subscription{ID: 5, CustomerID: "cust-1", Status: constants.SubscriptionStatusActive, StripeSubscriptionID: "sub_1"}
	env.subs.subs = []*Subscription{sub}
	env.subs.nextID = 5
	env.gateway.cancelErr = fmt.Errorf("stripe unavailable")

	err := env.uc.CancelSubscription(ctx, 5, false, "")
	require.Error(t, err)
	assert.Equal(t, constants.SubscriptionStatusActive, sub.Status)
}

func TestCancelSubscription_NotCancellable(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	seedCustomer(env, "cust-1", "cus_1")
	env.subs.subs = []*Subscription{
		{ID: 1, CustomerID: "cust-1", Status: constants.SubscriptionStatusCanceled, StripeSubscriptionID: "sub_1"},
		{ID: 2, CustomerID: "cust-1", Status: constants.SubscriptionStatusActive}, // 无外部 id
	}
	env.subs.nextID = 2

	require.Error(t, env.uc.CancelSubscription(ctx, 1, false, ""))
	require.Error(t, env.uc.CancelSubscription(ctx, 2, false, ""))
	require.Error(t, env.uc.CancelSubscription(ctx, 99, false, ""))
	assert.Empty(t, env.gateway.cancelCalls)
}
