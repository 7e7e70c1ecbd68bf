package biz

import (
	"context"
	"fmt"
	"io"
	"time"

	"xinyuan_tech/billing-service/internal/constants"

	"github.com/go-kratos/kratos/v2/log"
)

// 内存版仓库/网关实现，测试专用

type fakeTx struct{}

func (fakeTx) Exec(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeOrderRepo struct {
	orders []*Order
	items  map[string][]*OrderItem
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{items: make(map[string][]*OrderItem)}
}

func (r *fakeOrderRepo) CreateOrder(_ context.Context, order *Order, items []*OrderItem) error {
	r.orders = append(r.orders, order)
	r.items[order.ID] = items
	return nil
}

func (r *fakeOrderRepo) GetOrder(_ context.Context, orderID string, year int) (*Order, error) {
	for _, o := range r.orders {
		if o.ID == orderID && o.CreatedYear == year {
			return o, nil
		}
	}
	return nil, nil
}

func (r *fakeOrderRepo) GetOrderByPaymentIntentID(_ context.Context, paymentIntentID string) (*Order, error) {
	if paymentIntentID == "" {
		return nil, nil
	}
	for _, o := range r.orders {
		if o.StripePaymentIntentID == paymentIntentID {
			return o, nil
		}
	}
	return nil, nil
}

func (r *fakeOrderRepo) GetOrderByInvoiceID(_ context.Context, invoiceID string) (*Order, error) {
	if invoiceID == "" {
		return nil, nil
	}
	for _, o := range r.orders {
		if o.StripeInvoiceID == invoiceID {
			return o, nil
		}
	}
	return nil, nil
}

func (r *fakeOrderRepo) UpdateOrder(_ context.Context, order *Order) error {
	for i, o := range r.orders {
		if o.ID == order.ID && o.CreatedYear == order.CreatedYear {
			r.orders[i] = order
			return nil
		}
	}
	return fmt.Errorf("order %s not found", order.ID)
}

func (r *fakeOrderRepo) ListOrdersByCustomer(_ context.Context, customerID string, year, page, pageSize int) ([]*Order, int, error) {
	var out []*Order
	for _, o := range r.orders {
		if o.CustomerID != customerID {
			continue
		}
		if year > 0 && o.CreatedYear != year {
			continue
		}
		out = append(out, o)
	}
	return out, len(out), nil
}

func (r *fakeOrderRepo) ListStalePendingOrders(_ context.Context, olderThan time.Time) ([]*Order, error) {
	var out []*Order
	for _, o := range r.orders {
		if o.Status == constants.OrderStatusPending && o.CreatedAt.Before(olderThan) {
			out = append(out, o)
		}
	}
	return out, nil
}

type fakeSubscriptionRepo struct {
	subs   []*Subscription
	nextID uint64
}

func (r *fakeSubscriptionRepo) CreateSubscription(_ context.Context, sub *Subscription) error {
	r.nextID++
	sub.ID = r.nextID
	r.subs = append(r.subs, sub)
	return nil
}

func (r *fakeSubscriptionRepo) GetSubscription(_ context.Context, id uint64) (*Subscription, error) {
	for _, s := range r.subs {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, nil
}

func (r *fakeSubscriptionRepo) GetSubscriptionByStripeID(_ context.Context, stripeSubscriptionID string) (*Subscription, error) {
	for _, s := range r.subs {
		if s.StripeSubscriptionID == stripeSubscriptionID {
			return s, nil
		}
	}
	return nil, nil
}

func (r *fakeSubscriptionRepo) UpdateSubscription(_ context.Context, sub *Subscription) error {
	for i, s := range r.subs {
		if s.ID == sub.ID {
			r.subs[i] = sub
			return nil
		}
	}
	return fmt.Errorf("subscription %d not found", sub.ID)
}

func (r *fakeSubscriptionRepo) ListNonTerminalSubscriptions(_ context.Context) ([]*Subscription, error) {
	var out []*Subscription
	for _, s := range r.subs {
		if !s.IsTerminal() {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakePurchaseRepo struct {
	purchases []*Purchase
}

func (r *fakePurchaseRepo) CreatePurchase(_ context.Context, p *Purchase) error {
	r.purchases = append(r.purchases, p)
	return nil
}

func (r *fakePurchaseRepo) HasActivePurchase(_ context.Context, customerID, productID string) (bool, error) {
	for _, p := range r.purchases {
		if p.CustomerID == customerID && p.ProductID == productID && p.Status == constants.PurchaseStatusActive {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakePurchaseRepo) RevokePurchasesBySubscription(_ context.Context, subscriptionID uint64, reason string, at time.Time) ([]*Purchase, error) {
	var revoked []*Purchase
	for _, p := range r.purchases {
		if p.SubscriptionID == subscriptionID && p.Status == constants.PurchaseStatusActive {
			p.Status = constants.PurchaseStatusRevoked
			revokedAt := at
			p.RevokedAt = &revokedAt
			p.RevokeReason = reason
			revoked = append(revoked, p)
		}
	}
	return revoked, nil
}

func (r *fakePurchaseRepo) RevokePurchasesByOrder(_ context.Context, orderID string, orderYear int, reason string, at time.Time) ([]*Purchase, error) {
	var revoked []*Purchase
	for _, p := range r.purchases {
		if p.OrderID == orderID && p.OrderYear == orderYear && p.Status == constants.PurchaseStatusActive {
			p.Status = constants.PurchaseStatusRevoked
			revokedAt := at
			p.RevokedAt = &revokedAt
			p.RevokeReason = reason
			revoked = append(revoked, p)
		}
	}
	return revoked, nil
}

func (r *fakePurchaseRepo) ListPurchasesByCustomer(_ context.Context, customerID string) ([]*Purchase, error) {
	var out []*Purchase
	for _, p := range r.purchases {
		if p.CustomerID == customerID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakePurchaseRepo) activeCount() int {
	n := 0
	for _, p := range r.purchases {
		if p.Status == constants.PurchaseStatusActive {
			n++
		}
	}
	return n
}

type fakeCustomerRepo struct {
	customers map[string]*Customer
}

func newFakeCustomerRepo() *fakeCustomerRepo {
	return &fakeCustomerRepo{customers: make(map[string]*Customer)}
}

func (r *fakeCustomerRepo) GetCustomer(_ context.Context, id string) (*Customer, error) {
	return r.customers[id], nil
}

func (r *fakeCustomerRepo) GetCustomerByStripeID(_ context.Context, stripeCustomerID string) (*Customer, error) {
	for _, c := range r.customers {
		if c.StripeCustomerID == stripeCustomerID {
			return c, nil
		}
	}
	return nil, nil
}

func (r *fakeCustomerRepo) SetStripeCustomerID(_ context.Context, id, stripeCustomerID string) error {
	if c, ok := r.customers[id]; ok {
		c.StripeCustomerID = stripeCustomerID
	}
	return nil
}

func (r *fakeCustomerRepo) AddOrderStats(_ context.Context, id string, spentCents int64) error {
	if c, ok := r.customers[id]; ok {
		c.TotalOrders++
		c.TotalSpentCents += spentCents
	}
	return nil
}

func (r *fakeCustomerRepo) AddSpent(_ context.Context, id string, deltaCents int64) error {
	if c, ok := r.customers[id]; ok {
		c.TotalSpentCents += deltaCents
	}
	return nil
}

func (r *fakeCustomerRepo) AddActiveSubscriptions(_ context.Context, id string, delta int) error {
	if c, ok := r.customers[id]; ok {
		c.ActiveSubscriptionCount += delta
	}
	return nil
}

type planSnapshot struct {
	stripeProductID string
	stripePriceID   string
	amountCents     int64
	currency        string
}

type fakeCatalogRepo struct {
	plans        map[string]*Plan
	products     map[string]*Product
	planProducts map[string][]string
	planSaves    []planSnapshot
	productSaves []planSnapshot
}

func newFakeCatalogRepo() *fakeCatalogRepo {
	return &fakeCatalogRepo{
		plans:        make(map[string]*Plan),
		products:     make(map[string]*Product),
		planProducts: make(map[string][]string),
	}
}

func (r *fakeCatalogRepo) GetPlan(_ context.Context, planID string) (*Plan, error) {
	return r.plans[planID], nil
}

func (r *fakeCatalogRepo) GetPlanByStripePriceID(_ context.Context, priceID string) (*Plan, error) {
	if priceID == "" {
		return nil, nil
	}
	for _, p := range r.plans {
		if p.StripePriceID == priceID {
			return p, nil
		}
	}
	return nil, nil
}

func (r *fakeCatalogRepo) ListPlanProducts(_ context.Context, planID string) ([]*Product, error) {
	var out []*Product
	for _, pid := range r.planProducts[planID] {
		if p, ok := r.products[pid]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakeCatalogRepo) GetProduct(_ context.Context, productID string) (*Product, error) {
	return r.products[productID], nil
}

func (r *fakeCatalogRepo) SavePlanStripeIDs(_ context.Context, planID, stripeProductID, stripePriceID string, amountCents int64, currency string) error {
	if p, ok := r.plans[planID]; ok {
		p.StripeProductID = stripeProductID
		p.StripePriceID = stripePriceID
		p.SyncedAmountCents = amountCents
		p.SyncedCurrency = currency
	}
	r.planSaves = append(r.planSaves, planSnapshot{stripeProductID, stripePriceID, amountCents, currency})
	return nil
}

func (r *fakeCatalogRepo) SaveProductStripeIDs(_ context.Context, productID, stripeProductID, stripePriceID string, amountCents int64, currency string) error {
	if p, ok := r.products[productID]; ok {
		p.StripeProductID = stripeProductID
		p.StripePriceID = stripePriceID
		p.SyncedAmountCents = amountCents
		p.SyncedCurrency = currency
	}
	r.productSaves = append(r.productSaves, planSnapshot{stripeProductID, stripePriceID, amountCents, currency})
	return nil
}

type refundCall struct {
	paymentIntentID string
	amountCents     int64
	reason          string
}

type cancelCall struct {
	stripeSubscriptionID string
	atPeriodEnd          bool
}

type sessionCall struct {
	params *CheckoutSessionParams
}

type fakeGateway struct {
	subscriptions map[string]*SubscriptionPayload
	getSubErr     error
	getSubCalls   int

	refundCalls []refundCall
	refundErr   error

	cancelCalls []cancelCall
	cancelErr   error

	createdProducts  int
	createProductErr error
	updatedProducts  []string

	createdPrices  int
	createPriceErr error
	archivedPrices []string
	activePrices   map[string][]string
	listPricesErr  error

	createdCustomers int

	sessionCalls []sessionCall
	sessionErr   error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		subscriptions: make(map[string]*SubscriptionPayload),
		activePrices:  make(map[string][]string),
	}
}

func (g *fakeGateway) CreateCustomer(_ context.Context, email, name string, metadata map[string]string) (string, error) {
	g.createdCustomers++
	return fmt.Sprintf("cus_fake_%d", g.createdCustomers), nil
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, params *CheckoutSessionParams) (string, string, error) {
	if g.sessionErr != nil {
		return "", "", g.sessionErr
	}
	g.sessionCalls = append(g.sessionCalls, sessionCall{params: params})
	return "cs_fake_1", "https://checkout.example/cs_fake_1", nil
}

func (g *fakeGateway) GetSubscription(_ context.Context, stripeSubscriptionID string) (*SubscriptionPayload, error) {
	g.getSubCalls++
	if g.getSubErr != nil {
		return nil, g.getSubErr
	}
	sub, ok := g.subscriptions[stripeSubscriptionID]
	if !ok {
		return nil, fmt.Errorf("no such subscription %s", stripeSubscriptionID)
	}
	return sub, nil
}

func (g *fakeGateway) CancelSubscription(_ context.Context, stripeSubscriptionID string, atPeriodEnd bool) error {
	if g.cancelErr != nil {
		return g.cancelErr
	}
	g.cancelCalls = append(g.cancelCalls, cancelCall{stripeSubscriptionID, atPeriodEnd})
	return nil
}

func (g *fakeGateway) CreateRefund(_ context.Context, paymentIntentID string, amountCents int64, reason string) (string, error) {
	if g.refundErr != nil {
		return "", g.refundErr
	}
	g.refundCalls = append(g.refundCalls, refundCall{paymentIntentID, amountCents, reason})
	return fmt.Sprintf("re_fake_%d", len(g.refundCalls)), nil
}

func (g *fakeGateway) CreateProduct(_ context.Context, name, description string, metadata map[string]string) (string, error) {
	if g.createProductErr != nil {
		return "", g.createProductErr
	}
	g.createdProducts++
	return fmt.Sprintf("prod_fake_%d", g.createdProducts), nil
}

func (g *fakeGateway) UpdateProduct(_ context.Context, stripeProductID, name, description string) error {
	g.updatedProducts = append(g.updatedProducts, stripeProductID)
	return nil
}

func (g *fakeGateway) CreatePrice(_ context.Context, stripeProductID string, amountCents int64, currency string, recurring *RecurringPriceParams) (string, error) {
	if g.createPriceErr != nil {
		return "", g.createPriceErr
	}
	g.createdPrices++
	id := fmt.Sprintf("price_fake_%d", g.createdPrices)
	g.activePrices[stripeProductID] = append(g.activePrices[stripeProductID], id)
	return id, nil
}

func (g *fakeGateway) ArchivePrice(_ context.Context, stripePriceID string) error {
	g.archivedPrices = append(g.archivedPrices, stripePriceID)
	for productID, ids := range g.activePrices {
		kept := ids[:0]
		for _, id := range ids {
			if id != stripePriceID {
				kept = append(kept, id)
			}
		}
		g.activePrices[productID] = kept
	}
	return nil
}

func (g *fakeGateway) ListActivePrices(_ context.Context, stripeProductID string) ([]string, error) {
	if g.listPricesErr != nil {
		return nil, g.listPricesErr
	}
	return append([]string(nil), g.activePrices[stripeProductID]...), nil
}

type fakeCache struct {
	entries        map[string]bool
	getErr         error
	sets           int
	invalidated    []string
	missEverything bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]bool)}
}

func cacheKey(customerID, productID string) string {
	return customerID + "/" + productID
}

func (c *fakeCache) Get(_ context.Context, customerID, productID string) (bool, bool, error) {
	if c.getErr != nil {
		return false, false, c.getErr
	}
	if c.missEverything {
		return false, false, nil
	}
	granted, ok := c.entries[cacheKey(customerID, productID)]
	return granted, ok, nil
}

func (c *fakeCache) Set(_ context.Context, customerID, productID string, granted bool) error {
	c.sets++
	c.entries[cacheKey(customerID, productID)] = granted
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, customerID, productID string) error {
	delete(c.entries, cacheKey(customerID, productID))
	c.invalidated = append(c.invalidated, cacheKey(customerID, productID))
	return nil
}

// testEnv 一组互相连通的内存实现
type testEnv struct {
	orders    *fakeOrderRepo
	subs      *fakeSubscriptionRepo
	purchases *fakePurchaseRepo
	customers *fakeCustomerRepo
	catalog   *fakeCatalogRepo
	gateway   *fakeGateway
	cache     *fakeCache
	uc        *BillingUsecase
}

func newTestEnv() *testEnv {
	env := &testEnv{
		orders:    newFakeOrderRepo(),
		subs:      &fakeSubscriptionRepo{},
		purchases: &fakePurchaseRepo{},
		customers: newFakeCustomerRepo(),
		catalog:   newFakeCatalogRepo(),
		gateway:   newFakeGateway(),
		cache:     newFakeCache(),
	}
	env.uc = NewBillingUsecase(
		env.orders,
		env.subs,
		env.purchases,
		env.customers,
		env.catalog,
		env.gateway,
		env.cache,
		fakeTx{},
		nil,
		log.NewStdLogger(io.Discard),
	)
	return env
}
