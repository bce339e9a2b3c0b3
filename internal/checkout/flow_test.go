package checkout

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"retailpos/terminal/internal/cart"
	"retailpos/terminal/internal/domain"
	"retailpos/terminal/internal/metrics"
	"retailpos/terminal/internal/session"
)

type fakeGateway struct {
	mu        sync.Mutex
	saleErr   error
	stockErr  error
	sales     []domain.SaleRequest
	stock     []domain.StockDecrementRequest
	hold      chan struct{}
	entered   chan struct{}
	receiptNo string
}

func (g *fakeGateway) CreateSale(ctx context.Context, input domain.SaleRequest) (domain.Sale, error) {
	if g.entered != nil {
		g.entered <- struct{}{}
	}
	if g.hold != nil {
		<-g.hold
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sales = append(g.sales, input)
	if g.saleErr != nil {
		return domain.Sale{}, g.saleErr
	}
	return domain.Sale{ID: "sale-1", ReceiptNumber: g.receiptNo}, nil
}

func (g *fakeGateway) DecrementStock(ctx context.Context, input domain.StockDecrementRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stock = append(g.stock, input)
	return g.stockErr
}

func (g *fakeGateway) saleCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sales)
}

var (
	productA = domain.Product{ID: "a", Name: "Product A", SellingPrice: decimal.RequireFromString("2.50")}
	productB = domain.Product{ID: "b", Name: "Product B", SellingPrice: decimal.RequireFromString("10.00")}
)

func testSession() session.Session {
	return session.Session{
		Token: "token",
		User: domain.User{
			ID:          "u-1",
			Name:        "Sari",
			CurrentShop: &domain.ShopRef{ID: "shop-1", Name: "Main Store"},
		},
	}
}

func newTestFlow(t *testing.T, gw *fakeGateway) (*Flow, *cart.Cart, *metrics.Metrics) {
	t.Helper()
	c := cart.New()
	m := metrics.New()
	return NewFlow(gw, c, zaptest.NewLogger(t), m), c, m
}

// counterValue reads a counter from the registry; label matches the first
// label value when set.
func counterValue(t *testing.T, m *metrics.Metrics, name string, label string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if label != "" && (len(metric.GetLabel()) == 0 || metric.GetLabel()[0].GetValue() != label) {
				continue
			}
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

func fillCart(c *cart.Cart) {
	c.AddItem(productA)
	c.AddItem(productA)
	c.AddItem(productB)
}

func cash(amount string) Request {
	return Request{Method: domain.PaymentCash, AmountTendered: decimal.RequireFromString(amount)}
}

func TestSubmitSuccessClearsCartAndKeepsReceipt(t *testing.T) {
	gw := &fakeGateway{receiptNo: "R-00001"}
	flow, c, _ := newTestFlow(t, gw)
	fillCart(c)
	quoted := c.Quote(decimal.RequireFromString("20.00"))

	receipt, err := flow.Submit(context.Background(), testSession(), cash("20.00"))
	require.NoError(t, err)

	assert.Equal(t, StateSucceeded, flow.State())
	assert.True(t, c.IsEmpty())
	assert.True(t, receipt.Totals.Total.Equal(quoted.Totals.Total))
	assert.Equal(t, "16.50", receipt.Totals.Total.StringFixed(2))
	assert.Equal(t, "3.50", receipt.Payment.Change.StringFixed(2))
	assert.True(t, receipt.StockSynced)

	require.Len(t, gw.sales, 1)
	sale := gw.sales[0]
	assert.Equal(t, "shop-1", sale.ShopID)
	assert.Equal(t, "u-1", sale.CashierID)
	assert.NotEmpty(t, sale.ClientReference)
	assert.Len(t, sale.Items, 2)

	require.Len(t, gw.stock, 1)
	assert.Equal(t, []domain.StockDecrementItem{
		{ProductID: "a", QuantitySold: 2},
		{ProductID: "b", QuantitySold: 1},
	}, gw.stock[0].Items)

	last, err := flow.LastReceipt()
	require.NoError(t, err)
	assert.Equal(t, receipt.ClientReference, last.ClientReference)
}

func TestSaleFailurePreservesCartForRetry(t *testing.T) {
	gw := &fakeGateway{saleErr: errors.New("request failed with status 500")}
	flow, c, m := newTestFlow(t, gw)
	fillCart(c)
	before := c.Items()

	_, err := flow.Submit(context.Background(), testSession(), cash("20.00"))
	require.Error(t, err)
	assert.Equal(t, StateFailed, flow.State())
	assert.Equal(t, before, c.Items())
	assert.Equal(t, "request failed with status 500", flow.Snapshot().LastError)
	assert.Empty(t, gw.stock)
	assert.Equal(t, 1.0, counterValue(t, m, "pos_sales_submitted_total", "failed"))

	gw.mu.Lock()
	gw.saleErr = nil
	gw.mu.Unlock()

	_, err = flow.Submit(context.Background(), testSession(), cash("20.00"))
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, flow.State())
	assert.True(t, c.IsEmpty())
}

func TestStockFailureDoesNotUndoSale(t *testing.T) {
	gw := &fakeGateway{stockErr: errors.New("stock service down")}
	flow, c, m := newTestFlow(t, gw)
	fillCart(c)

	receipt, err := flow.Submit(context.Background(), testSession(), cash("16.50"))
	require.NoError(t, err)
	assert.False(t, receipt.StockSynced)
	assert.Equal(t, StateSucceeded, flow.State())
	assert.True(t, c.IsEmpty())
	assert.Equal(t, 1.0, counterValue(t, m, "pos_stock_decrement_failures_total", ""))
}

func TestGuardsMakeNoNetworkCall(t *testing.T) {
	tests := []struct {
		name    string
		fill    bool
		request Request
		want    error
	}{
		{name: "empty cart", fill: false, request: cash("100"), want: ErrEmptyCart},
		{name: "unknown method", fill: true, request: Request{Method: "voucher"}, want: ErrInvalidPaymentMethod},
		{name: "short cash", fill: true, request: cash("10.00"), want: ErrInsufficientTender},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &fakeGateway{}
			flow, c, _ := newTestFlow(t, gw)
			if tt.fill {
				fillCart(c)
			}

			_, err := flow.Submit(context.Background(), testSession(), tt.request)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, StateIdle, flow.State())
			assert.Zero(t, gw.saleCalls())
		})
	}
}

func TestSubmitWithoutShop(t *testing.T) {
	gw := &fakeGateway{}
	flow, c, _ := newTestFlow(t, gw)
	fillCart(c)

	sess := testSession()
	sess.User.CurrentShop = nil
	_, err := flow.Submit(context.Background(), sess, cash("20"))
	assert.ErrorIs(t, err, session.ErrNoShop)
	assert.Zero(t, gw.saleCalls())
}

func TestCardPaymentTendersExactTotal(t *testing.T) {
	gw := &fakeGateway{}
	flow, c, _ := newTestFlow(t, gw)
	fillCart(c)

	receipt, err := flow.Submit(context.Background(), testSession(), Request{Method: domain.PaymentCard})
	require.NoError(t, err)
	assert.Equal(t, "16.50", receipt.Payment.AmountTendered.StringFixed(2))
	assert.True(t, receipt.Payment.Change.IsZero())
}

func TestSecondSubmitWhileInFlightIsRejected(t *testing.T) {
	gw := &fakeGateway{hold: make(chan struct{}), entered: make(chan struct{}, 1)}
	flow, c, _ := newTestFlow(t, gw)
	fillCart(c)

	done := make(chan error, 1)
	go func() {
		_, err := flow.Submit(context.Background(), testSession(), cash("20"))
		done <- err
	}()
	<-gw.entered

	assert.Equal(t, StateSubmitting, flow.State())
	_, err := flow.Submit(context.Background(), testSession(), cash("20"))
	assert.ErrorIs(t, err, ErrSubmissionInFlight)
	assert.Equal(t, StateSubmitting, flow.Reset())

	close(gw.hold)
	require.NoError(t, <-done)
	assert.Equal(t, StateSucceeded, flow.State())
	assert.Equal(t, StateIdle, flow.Reset())
}

func TestEditsRefusedWhileSubmitting(t *testing.T) {
	gw := &fakeGateway{hold: make(chan struct{}), entered: make(chan struct{}, 1)}
	flow, c, _ := newTestFlow(t, gw)
	require.NoError(t, flow.Edit(func(c *cart.Cart) error {
		c.AddItem(productA)
		return nil
	}))

	done := make(chan error, 1)
	go func() {
		_, err := flow.Submit(context.Background(), testSession(), cash("5"))
		done <- err
	}()
	<-gw.entered

	edited := false
	err := flow.Edit(func(c *cart.Cart) error {
		edited = true
		c.AddItem(productB)
		return nil
	})
	assert.ErrorIs(t, err, ErrSubmissionInFlight)
	assert.False(t, edited)
	assert.ErrorIs(t, flow.Restart(), ErrSubmissionInFlight)
	assert.Equal(t, 1, c.Len())

	close(gw.hold)
	require.NoError(t, <-done)
	assert.True(t, c.IsEmpty())

	require.NoError(t, flow.Edit(func(c *cart.Cart) error {
		c.AddItem(productB)
		return nil
	}))
	require.NoError(t, flow.Restart())
	assert.True(t, c.IsEmpty())
	assert.Equal(t, StateIdle, flow.State())
}

func TestLastReceiptBeforeAnySale(t *testing.T) {
	flow, _, _ := newTestFlow(t, &fakeGateway{})
	_, err := flow.LastReceipt()
	assert.ErrorIs(t, err, ErrNoReceipt)
}

func TestPrintEncodesEscpos(t *testing.T) {
	gw := &fakeGateway{receiptNo: "R-00042"}
	flow, c, _ := newTestFlow(t, gw)
	fillCart(c)

	receipt, err := flow.Submit(context.Background(), testSession(), cash("20.00"))
	require.NoError(t, err)

	out := receipt.Print()
	assert.Contains(t, out.PreviewText, "Receipt: R-00042")
	assert.Contains(t, out.PreviewText, "Product A")
	assert.Contains(t, out.PreviewText, "16.50")
	assert.Equal(t, "receipt-sale-1.bin", out.FileName)

	raw, err := base64.StdEncoding.DecodeString(out.EscposBase64)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, escposInit))
	assert.True(t, bytes.HasSuffix(raw, escposDrawKick))

	receipt.Payment.Method = domain.PaymentMobile
	raw, err = base64.StdEncoding.DecodeString(receipt.Print().EscposBase64)
	require.NoError(t, err)
	assert.True(t, bytes.HasSuffix(raw, escposCut))
}
