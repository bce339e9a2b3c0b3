package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"retailpos/terminal/internal/backend"
	"retailpos/terminal/internal/backend/backendtest"
	"retailpos/terminal/internal/cart"
	"retailpos/terminal/internal/checkout"
	"retailpos/terminal/internal/domain"
	"retailpos/terminal/internal/metrics"
	"retailpos/terminal/internal/session"
)

type harness struct {
	svc      *Service
	srv      *backendtest.Server
	sessions *session.Manager
}

func newHarness(t *testing.T) harness {
	t.Helper()
	return newHarnessWith(t, nil)
}

// newHarnessWith lets a test wrap the real client, for example to hold a
// call open.
func newHarnessWith(t *testing.T, wrap func(*backend.Client) Gateway) harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	m := metrics.New()
	srv := backendtest.NewServer(t)
	sessions := session.NewManager(session.NewMemoryStore())
	client := backend.New(backend.Options{
		BaseURL: srv.URL,
		Timeout: 2 * time.Second,
		Tokens:  sessions,
		Logger:  logger,
		Metrics: m,
	})
	var gateway Gateway = client
	if wrap != nil {
		gateway = wrap(client)
	}
	c := cart.New()
	flow := checkout.NewFlow(gateway, c, logger, m)
	return harness{svc: New(gateway, sessions, c, flow, logger), srv: srv, sessions: sessions}
}

func (h harness) login(t *testing.T) {
	t.Helper()
	_, err := h.svc.Login(context.Background(), domain.LoginRequest{
		Email:    backendtest.CashierEmail,
		Password: backendtest.CashierPassword,
	})
	require.NoError(t, err)
}

func isValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func TestLoginStoresSession(t *testing.T) {
	h := newHarness(t)

	sess, err := h.svc.Login(context.Background(), domain.LoginRequest{Email: " Cashier@Example.com ", Password: backendtest.CashierPassword})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.NotNil(t, sess.ExpiresAt)

	current, err := h.svc.Session()
	require.NoError(t, err)
	shopID, err := current.ShopID()
	require.NoError(t, err)
	assert.Equal(t, backendtest.ShopID, shopID)
}

func TestLoginValidatesBeforeCallingBackend(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Login(context.Background(), domain.LoginRequest{Email: "cashier@example.com"})
	assert.True(t, isValidation(err))
	assert.Zero(t, h.srv.Calls("POST /api/auth/login"))
}

func TestScreensRequireTokenAndShop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.ListProducts(ctx, domain.ProductQuery{})
	assert.ErrorIs(t, err, session.ErrNoToken)

	_, err = h.svc.Login(ctx, domain.LoginRequest{Email: backendtest.DrifterEmail, Password: backendtest.CashierPassword})
	require.NoError(t, err)

	_, err = h.svc.ListProducts(ctx, domain.ProductQuery{})
	assert.ErrorIs(t, err, session.ErrNoShop)
	_, err = h.svc.AddToCart(ctx, AddItemRequest{ProductID: "p-mie"})
	assert.ErrorIs(t, err, session.ErrNoShop)
	assert.Zero(t, h.srv.Calls("GET /api/products/shop/{shopId}"))

	sess, err := h.svc.SelectShop(ctx, backendtest.BranchShopID)
	require.NoError(t, err)
	assert.Equal(t, "Branch Store", sess.User.CurrentShop.Name)
}

func TestProductValidationSkipsNetwork(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()

	tests := []domain.Product{
		{Name: "  "},
		{Name: "Tea", CostPrice: decimal.NewFromInt(-1)},
		{Name: "Tea", SellingPrice: decimal.RequireFromString("-0.01")},
	}
	for _, p := range tests {
		_, err := h.svc.CreateProduct(ctx, p)
		assert.True(t, isValidation(err), "expected validation error for %+v", p)
	}
	assert.Zero(t, h.srv.Calls("POST /api/products"))

	created, err := h.svc.CreateProduct(ctx, domain.Product{Name: " Teh Botol ", SellingPrice: decimal.RequireFromString("1.20"), Stock: 10, MinStock: 2})
	require.NoError(t, err)
	assert.Equal(t, "Teh Botol", created.Name)
	assert.Equal(t, backendtest.ShopID, created.ShopID)
}

func TestListProductsRoutesSearch(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()

	low, err := h.svc.ListProducts(ctx, domain.ProductQuery{LowStock: true})
	require.NoError(t, err)
	assert.Len(t, low, 2)

	found, err := h.svc.ListProducts(ctx, domain.ProductQuery{Search: "telur"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, 1, h.srv.Calls("POST /api/products/search"))
}

func TestCatalogValidation(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()

	_, err := h.svc.CreateCategory(ctx, domain.Category{})
	assert.True(t, isValidation(err))
	_, err = h.svc.CreateSupplier(ctx, domain.Supplier{Phone: "0812"})
	assert.True(t, isValidation(err))
	_, err = h.svc.CreateDiscount(ctx, domain.Discount{Name: "Big", Type: "percentage", Value: decimal.NewFromInt(150)})
	assert.True(t, isValidation(err))
	_, err = h.svc.CreateDiscount(ctx, domain.Discount{Name: "Odd", Type: "bogo"})
	assert.True(t, isValidation(err))

	discount, err := h.svc.CreateDiscount(ctx, domain.Discount{Name: "Payday", Type: "Fixed", Value: decimal.NewFromInt(2), Active: true})
	require.NoError(t, err)
	assert.Equal(t, domain.DiscountTypeFixed, discount.Type)

	suppliers, err := h.svc.ListSuppliers(ctx)
	require.NoError(t, err)
	assert.Len(t, suppliers, 1)
}

func TestCustomersCarryTierColor(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()

	_, err := h.svc.CreateCustomer(ctx, domain.Customer{Name: "Joko"})
	assert.True(t, isValidation(err))

	customers, err := h.svc.ListCustomers(ctx)
	require.NoError(t, err)
	require.Len(t, customers, 1)
	assert.Equal(t, "#c0c0c0", customers[0].TierColor)

	updated, err := h.svc.AddLoyaltyPoints(ctx, "cu-rina", domain.LoyaltyRequest{Points: -20, Reason: "redeem"})
	require.NoError(t, err)
	assert.Equal(t, 100, updated.LoyaltyPoints)

	_, err = h.svc.AddLoyaltyPoints(ctx, "cu-rina", domain.LoyaltyRequest{Points: -500})
	status, ok := backend.StatusOf(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Insufficient loyalty points", err.Error())
}

func TestCartAndCheckoutAgainstBackend(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()

	_, err := h.svc.AddToCart(ctx, AddItemRequest{Barcode: "8990001000011"})
	require.NoError(t, err)
	_, err = h.svc.AddToCart(ctx, AddItemRequest{ProductID: "p-mie"})
	require.NoError(t, err)
	view, err := h.svc.AddToCart(ctx, AddItemRequest{ProductID: "p-telur"})
	require.NoError(t, err)

	require.Len(t, view.Items, 2)
	assert.Equal(t, "11.65", view.Totals.Subtotal.StringFixed(2))
	assert.Equal(t, "1.17", view.Totals.Tax.StringFixed(2))
	assert.Equal(t, "12.82", view.Totals.Total.StringFixed(2))

	quote := h.svc.Quote(decimal.RequireFromString("10"))
	assert.False(t, quote.Sufficient)
	assert.True(t, quote.Change.IsZero())

	receipt, err := h.svc.Checkout(ctx, checkout.Request{Method: "CASH", AmountTendered: decimal.NewFromInt(20)})
	require.NoError(t, err)
	assert.Equal(t, "7.18", receipt.Payment.Change.StringFixed(2))
	assert.True(t, receipt.StockSynced)
	assert.Empty(t, h.svc.Cart().Items)

	sales := h.srv.Sales()
	require.Len(t, sales, 1)
	assert.Equal(t, backendtest.CashierID, sales[0].CashierID)
	mie, _ := h.srv.Product("p-mie")
	assert.Equal(t, 38, mie.Stock)

	printout, err := h.svc.Receipt()
	require.NoError(t, err)
	assert.Contains(t, printout.PreviewText, "Mie Goreng Instan")
	assert.Equal(t, checkout.StateSucceeded, h.svc.CheckoutState().State)
	assert.Equal(t, checkout.StateIdle, h.svc.ResetCheckout().State)
}

func TestFailedSaleKeepsCart(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()

	_, err := h.svc.AddToCart(ctx, AddItemRequest{ProductID: "p-kopi"})
	require.NoError(t, err)
	h.srv.Fail("POST /api/sales", http.StatusInternalServerError, "Server error")

	_, err = h.svc.Checkout(ctx, checkout.Request{Method: domain.PaymentCard})
	require.Error(t, err)
	assert.Equal(t, checkout.StateFailed, h.svc.CheckoutState().State)
	assert.Len(t, h.svc.Cart().Items, 1)
	assert.Empty(t, h.srv.StockUpdates())

	h.srv.Recover("POST /api/sales")
	_, err = h.svc.Checkout(ctx, checkout.Request{Method: domain.PaymentCard})
	require.NoError(t, err)
	assert.Empty(t, h.svc.Cart().Items)
}

func TestStockFailureStillCompletesSale(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()

	_, err := h.svc.AddToCart(ctx, AddItemRequest{ProductID: "p-roti"})
	require.NoError(t, err)
	h.srv.Fail("PUT /api/products/stock", http.StatusNotFound, "Product not found")

	receipt, err := h.svc.Checkout(ctx, checkout.Request{Method: domain.PaymentMobile})
	require.NoError(t, err)
	assert.False(t, receipt.StockSynced)
	assert.Len(t, h.srv.Sales(), 1)
	assert.Empty(t, h.svc.Cart().Items)
}

func TestAddUnknownProduct(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	_, err := h.svc.AddToCart(context.Background(), AddItemRequest{ProductID: "p-missing"})
	assert.ErrorIs(t, err, ErrProductNotFound)

	_, err = h.svc.AddToCart(context.Background(), AddItemRequest{})
	assert.True(t, isValidation(err))
}

func TestLogoutClearsSessionAndCart(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ctx := context.Background()

	_, err := h.svc.AddToCart(ctx, AddItemRequest{ProductID: "p-mie"})
	require.NoError(t, err)
	require.NoError(t, h.svc.Logout(ctx))

	assert.Empty(t, h.svc.Cart().Items)
	_, err = h.svc.Session()
	assert.ErrorIs(t, err, session.ErrNoToken)
}

func TestExpiredSessionIsRejectedLocally(t *testing.T) {
	h := newHarness(t)
	h.srv.SetTokenTTL(-time.Minute)
	h.login(t)

	_, err := h.svc.Dashboard(context.Background())
	assert.ErrorIs(t, err, session.ErrSessionExpired)
	assert.Zero(t, h.srv.Calls("GET /api/dashboard/summary/{shopId}"))
}

func TestChatUsesSessionContext(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	h.srv.QueueChatAnswer("Sales are up 10% today.")
	reply, err := h.svc.Chat(context.Background(), "How are sales?")
	require.NoError(t, err)
	assert.Equal(t, "Sales are up 10% today.", reply.Answer)

	_, err = h.svc.Chat(context.Background(), "   ")
	assert.True(t, isValidation(err))
}

// heldGateway holds barcode lookups and sale creation open until released.
type heldGateway struct {
	*backend.Client
	scanEntered chan struct{}
	releaseScan chan struct{}
	saleEntered chan struct{}
	releaseSale chan struct{}
}

func (g *heldGateway) ProductByBarcode(ctx context.Context, code string) (domain.Product, error) {
	g.scanEntered <- struct{}{}
	<-g.releaseScan
	return g.Client.ProductByBarcode(ctx, code)
}

func (g *heldGateway) CreateSale(ctx context.Context, input domain.SaleRequest) (domain.Sale, error) {
	g.saleEntered <- struct{}{}
	<-g.releaseSale
	return g.Client.CreateSale(ctx, input)
}

func TestScanFinishingDuringSubmitIsRejected(t *testing.T) {
	gw := &heldGateway{
		scanEntered: make(chan struct{}, 1),
		releaseScan: make(chan struct{}),
		saleEntered: make(chan struct{}, 1),
		releaseSale: make(chan struct{}),
	}
	h := newHarnessWith(t, func(c *backend.Client) Gateway {
		gw.Client = c
		return gw
	})
	h.login(t)
	ctx := context.Background()

	_, err := h.svc.AddToCart(ctx, AddItemRequest{ProductID: "p-kopi"})
	require.NoError(t, err)

	scanned := make(chan error, 1)
	go func() {
		_, err := h.svc.AddToCart(ctx, AddItemRequest{Barcode: "8990001000011"})
		scanned <- err
	}()
	<-gw.scanEntered

	sold := make(chan error, 1)
	go func() {
		_, err := h.svc.Checkout(ctx, checkout.Request{Method: domain.PaymentCard})
		sold <- err
	}()
	<-gw.saleEntered

	close(gw.releaseScan)
	assert.ErrorIs(t, <-scanned, checkout.ErrSubmissionInFlight)

	_, err = h.svc.UpdateCartItem("p-kopi", 3)
	assert.ErrorIs(t, err, checkout.ErrSubmissionInFlight)
	_, err = h.svc.RemoveCartItem("p-kopi")
	assert.ErrorIs(t, err, checkout.ErrSubmissionInFlight)
	_, err = h.svc.ClearCart()
	assert.ErrorIs(t, err, checkout.ErrSubmissionInFlight)

	close(gw.releaseSale)
	require.NoError(t, <-sold)

	sales := h.srv.Sales()
	require.Len(t, sales, 1)
	require.Len(t, sales[0].Items, 1)
	assert.Equal(t, "p-kopi", sales[0].Items[0].ProductID)
	assert.Empty(t, h.svc.Cart().Items)
}
