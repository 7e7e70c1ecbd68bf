package biz

import (
	"context"
	"fmt"
	"testing"

	"xinyuan_tech/billing-service/internal/constants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCheckoutSession_ProductPaymentMode(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.customers.customers["cust-1"] = &Customer{ID: "cust-1", Email: "a@b.c", StripeCustomerID: "cus_1"}
	env.catalog.products["course-1"] = &Product{ID: "course-1", Title: "Go Course", AmountCents: 5000, Currency: "usd"}

	session, err := env.uc.CreateCheckoutSession(ctx, &CheckoutRequest{
		CustomerID: "cust-1",
		ProductID:  "course-1",
		SuccessURL: "https://app.example/ok",
		CancelURL:  "https://app.example/cancel",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_fake_1", session.SessionID)
	assert.NotEmpty(t, session.URL)

	// 结账前懒同步商品
	assert.Equal(t, 1, env.gateway.createdProducts)
	require.Len(t, env.gateway.sessionCalls, 1)
	params := env.gateway.sessionCalls[0].params
	assert.Equal(t, constants.CheckoutModePayment, params.Mode)
	assert.Equal(t, "cus_1", params.StripeCustomerID)
	assert.Equal(t, "price_fake_1", params.StripePriceID)
	assert.Equal(t, "cust-1", params.Metadata[constants.MetadataCustomerID])
	assert.Equal(t, "course-1", params.Metadata[constants.MetadataProductID])
}

func TestCreateCheckoutSession_PlanSubscriptionMode(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.customers.customers["cust-1"] = &Customer{ID: "cust-1", StripeCustomerID: "cus_1"}
	env.catalog.plans["plan-pro"] = &Plan{
		ID: "plan-pro", Name: "Pro", AmountCents: 1500, Currency: "usd",
		StripeProductID: "prod_1", StripePriceID: "price_1",
		SyncedAmountCents: 1500, SyncedCurrency: "usd",
	}

	session, err := env.uc.CreateCheckoutSession(ctx, &CheckoutRequest{CustomerID: "cust-1", PlanID: "plan-pro"})
	require.NoError(t, err)
	assert.NotEmpty(t, session.SessionID)

	require.Len(t, env.gateway.sessionCalls, 1)
	params := env.gateway.sessionCalls[0].params
	assert.Equal(t, constants.CheckoutModeSubscription, params.Mode)
	assert.Equal(t, "price_1", params.StripePriceID)
	assert.Equal(t, "plan-pro", params.Metadata[constants.MetadataPlanID])
}

func TestCreateCheckoutSession_LazyStripeCustomerCreation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.customers.customers["cust-1"] = &Customer{ID: "cust-1", Email: "a@b.c"}
	env.catalog.products["course-1"] = &Product{ID: "course-1", Title: "Go Course", AmountCents: 5000, Currency: "usd"}

	_, err := env.uc.CreateCheckoutSession(ctx, &CheckoutRequest{CustomerID: "cust-1", ProductID: "course-1"})
	require.NoError(t, err)

	assert.Equal(t, 1, env.gateway.createdCustomers)
	assert.Equal(t, "cus_fake_1", env.customers.customers["cust-1"].StripeCustomerID, "stripe id cached locally")

	// 第二次结账复用已有 stripe customer
	_, err = env.uc.CreateCheckoutSession(ctx, &CheckoutRequest{CustomerID: "cust-1", ProductID: "course-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, env.gateway.createdCustomers)
}

func TestCreateCheckoutSession_CustomerNotFound(t *testing.T) {
	env := newTestEnv()
	_, err := env.uc.CreateCheckoutSession(context.Background(), &CheckoutRequest{CustomerID: "missing", ProductID: "course-1"})
	require.Error(t, err)
	assert.Empty(t, env.gateway.sessionCalls)
}

func TestCreateCheckoutSession_NeitherProductNorPlan(t *testing.T) {
	env := newTestEnv()
	env.customers.customers["cust-1"] = &Customer{ID: "cust-1", StripeCustomerID: "cus_1"}

	_, err := env.uc.CreateCheckoutSession(context.Background(), &CheckoutRequest{CustomerID: "cust-1"})
	require.Error(t, err)
	assert.Empty(t, env.gateway.sessionCalls)
}

func TestCreateCheckoutSession_GatewayFailure(t *testing.T) {
	env := newTestEnv()
	env.customers.customers["cust-1"] = &Customer{ID: "cust-1", StripeCustomerID: "cus_1"}
	env.catalog.products["course-1"] = &Product{
		ID: "course-1", Title: "Go Course", AmountCents: 5000, Currency: "usd",
		StripeProductID: "prod_1", StripePriceID: "price_1",
		SyncedAmountCents: 5000, SyncedCurrency: "usd",
	}
	env.gateway.sessionErr = fmt.Errorf("stripe unavailable")

	_, err := env.uc.CreateCheckoutSession(context.Background(), &CheckoutRequest{CustomerID: "cust-1", ProductID: "course-1"})
	require.Error(t, err)
}
