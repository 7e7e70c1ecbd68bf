package biz

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncPlanToStripe_FirstSyncCreatesProductAndPrice(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.catalog.plans["plan-pro"] = &Plan{
		ID: "plan-pro", Name: "Pro", AmountCents: 1500, Currency: "usd",
		Interval: "month", IntervalCount: 1,
	}

	require.NoError(t, env.uc.SyncPlanToStripe(ctx, "plan-pro"))

	assert.Equal(t, 1, env.gateway.createdProducts)
	assert.Equal(t, 1, env.gateway.createdPrices)

	plan := env.catalog.plans["plan-pro"]
	assert.Equal(t, "prod_fake_1", plan.StripeProductID)
	assert.Equal(t, "price_fake_1", plan.StripePriceID)
	assert.Equal(t, int64(1500), plan.SyncedAmountCents)
	assert.Equal(t, "usd", plan.SyncedCurrency)
}

func TestSyncPlanToStripe_UnchangedOnlyUpdatesMetadata(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.catalog.plans["plan-pro"] = &Plan{
		ID: "plan-pro", Name: "Pro", AmountCents: 1500, Currency: "usd",
		StripeProductID: "prod_1", StripePriceID: "price_1",
		SyncedAmountCents: 1500, SyncedCurrency: "usd",
	}

	require.NoError(t, env.uc.SyncPlanToStripe(ctx, "plan-pro"))

	assert.Zero(t, env.gateway.createdPrices, "unchanged amount must not rebuild the price")
	assert.Empty(t, env.gateway.archivedPrices)
	assert.Equal(t, []string{"prod_1"}, env.gateway.updatedProducts)
	assert.Equal(t, "price_1", env.catalog.plans["plan-pro"].StripePriceID)
}

func TestSyncPlanToStripe_AmountChangeArchivesAndRecreatesPrice(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.catalog.plans["plan-pro"] = &Plan{
		ID: "plan-pro", Name: "Pro", AmountCents: 2000, Currency: "usd",
		StripeProductID: "prod_1", StripePriceID: "price_old",
		SyncedAmountCents: 1500, SyncedCurrency: "usd",
	}
	env.gateway.activePrices["prod_1"] = []string{"price_old"}

	require.NoError(t, env.uc.SyncPlanToStripe(ctx, "plan-pro"))

	assert.Equal(t, 1, env.gateway.createdPrices)
	assert.Equal(t, []string{"price_old"}, env.gateway.archivedPrices, "old price archived, never mutated")
	plan := env.catalog.plans["plan-pro"]
	assert.Equal(t, "price_fake_1", plan.StripePriceID)
	assert.Equal(t, int64(2000), plan.SyncedAmountCents)
}

func TestSyncPlanToStripe_RebuildSweepsStrayActivePrices(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.catalog.plans["plan-pro"] = &Plan{
		ID: "plan-pro", Name: "Pro", AmountCents: 2000, Currency: "usd",
		StripeProductID: "prod_1", StripePriceID: "price_old",
		SyncedAmountCents: 1500, SyncedCurrency: "usd",
	}
	// 上次重建中断残留的价格也在售
	env.gateway.activePrices["prod_1"] = []string{"price_old", "price_stray"}

	require.NoError(t, env.uc.SyncPlanToStripe(ctx, "plan-pro"))

	assert.ElementsMatch(t, []string{"price_old", "price_stray"}, env.gateway.archivedPrices)
	assert.Equal(t, []string{"price_fake_1"}, env.gateway.activePrices["prod_1"], "only the replacement price stays active")
}

func TestSyncPlanToStripe_FreePlanSkipped(t *testing.T) {
	env := newTestEnv()
	env.catalog.plans["plan-free"] = &Plan{ID: "plan-free", Name: "Free", AmountCents: 0}

	require.NoError(t, env.uc.SyncPlanToStripe(context.Background(), "plan-free"))
	assert.Zero(t, env.gateway.createdProducts)
	assert.Empty(t, env.catalog.planSaves)
}

func TestSyncPlanToStripe_RemoteFailureWritesNothingLocally(t *testing.T) {
	env := newTestEnv()
	env.catalog.plans["plan-pro"] = &Plan{ID: "plan-pro", Name: "Pro", AmountCents: 1500, Currency: "usd"}
	env.gateway.createProductErr = fmt.Errorf("stripe unavailable")

	err := env.uc.SyncPlanToStripe(context.Background(), "plan-pro")
	require.Error(t, err)
	assert.Empty(t, env.catalog.plans["plan-pro"].StripeProductID)
	assert.Empty(t, env.catalog.planSaves)
}

func TestSyncPlanToStripe_PlanNotFound(t *testing.T) {
	env := newTestEnv()
	require.Error(t, env.uc.SyncPlanToStripe(context.Background(), "missing"))
}

func TestSyncProductToStripe_FirstSyncCreatesOneTimePrice(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.catalog.products["course-1"] = &Product{ID: "course-1", Title: "Go Course", AmountCents: 5000, Currency: "usd"}

	require.NoError(t, env.uc.SyncProductToStripe(ctx, "course-1"))

	product := env.catalog.products["course-1"]
	assert.Equal(t, "prod_fake_1", product.StripeProductID)
	assert.Equal(t, "price_fake_1", product.StripePriceID)
	assert.Equal(t, int64(5000), product.SyncedAmountCents)
}

func TestSyncProductToStripe_FreeProductSkipped(t *testing.T) {
	env := newTestEnv()
	env.catalog.products["course-free"] = &Product{ID: "course-free", Title: "Intro", Free: true, AmountCents: 5000}

	require.NoError(t, env.uc.SyncProductToStripe(context.Background(), "course-free"))
	assert.Zero(t, env.gateway.createdProducts)
}

func TestSyncProductToStripe_CurrencyChangeRebuildsPrice(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.catalog.products["course-1"] = &Product{
		ID: "course-1", Title: "Go Course", AmountCents: 5000, Currency: "eur",
		StripeProductID: "prod_1", StripePriceID: "price_old",
		SyncedAmountCents: 5000, SyncedCurrency: "usd",
	}
	env.gateway.activePrices["prod_1"] = []string{"price_old"}

	require.NoError(t, env.uc.SyncProductToStripe(ctx, "course-1"))

	assert.Equal(t, []string{"price_old"}, env.gateway.archivedPrices)
	assert.Equal(t, "price_fake_1", env.catalog.products["course-1"].StripePriceID)
	assert.Equal(t, "eur", env.catalog.products["course-1"].SyncedCurrency)
}
