package checkout

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cucumber/godog"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"retailpos/terminal/internal/cart"
	"retailpos/terminal/internal/domain"
	"retailpos/terminal/internal/metrics"
)

type checkoutTestContext struct {
	products map[string]domain.Product
	gateway  *fakeGateway
	cart     *cart.Cart
	flow     *Flow
	receipt  Receipt
	err      error
}

func (c *checkoutTestContext) reset() {
	c.products = map[string]domain.Product{}
	c.gateway = &fakeGateway{receiptNo: "R-00001"}
	c.cart = cart.New()
	c.flow = NewFlow(c.gateway, c.cart, zap.NewNop(), metrics.New())
	c.receipt = Receipt{}
	c.err = nil
}

func (c *checkoutTestContext) aProductPriced(name string, price string) error {
	amount, err := decimal.NewFromString(price)
	if err != nil {
		return err
	}
	c.products[name] = domain.Product{ID: name, Name: "Product " + name, SellingPrice: amount}
	return nil
}

func (c *checkoutTestContext) theBackendRejectsSalesWith(message string) error {
	c.gateway.saleErr = errors.New(message)
	return nil
}

func (c *checkoutTestContext) theBackendAcceptsSalesAgain() error {
	c.gateway.saleErr = nil
	return nil
}

func (c *checkoutTestContext) iAddToTheCart(name string) error {
	product, ok := c.products[name]
	if !ok {
		return fmt.Errorf("unknown product %q", name)
	}
	c.cart.AddItem(product)
	return nil
}

func (c *checkoutTestContext) iPayInCash(amount string) error {
	tendered, err := decimal.NewFromString(amount)
	if err != nil {
		return err
	}
	c.receipt, c.err = c.flow.Submit(context.Background(), testSession(), Request{
		Method:         domain.PaymentCash,
		AmountTendered: tendered,
	})
	return nil
}

func (c *checkoutTestContext) theCartHasLineItems(count int) error {
	if c.cart.Len() != count {
		return fmt.Errorf("expected %d line items, got %d", count, c.cart.Len())
	}
	return nil
}

func (c *checkoutTestContext) lineHasQuantityAndLineTotal(name string, quantity int, total string) error {
	for _, item := range c.cart.Items() {
		if item.ProductID != name {
			continue
		}
		if item.Quantity != quantity {
			return fmt.Errorf("expected quantity %d, got %d", quantity, item.Quantity)
		}
		if got := item.LineTotal.StringFixed(2); got != total {
			return fmt.Errorf("expected line total %s, got %s", total, got)
		}
		return nil
	}
	return fmt.Errorf("no line for %q", name)
}

func (c *checkoutTestContext) theTotalsAre(subtotal, tax, total string) error {
	totals := c.cart.Totals().Rounded()
	got := []string{totals.Subtotal.StringFixed(2), totals.Tax.StringFixed(2), totals.Total.StringFixed(2)}
	want := []string{subtotal, tax, total}
	for i := range want {
		if got[i] != want[i] {
			return fmt.Errorf("expected subtotal/tax/total %v, got %v", want, got)
		}
	}
	return nil
}

func (c *checkoutTestContext) tenderingGivesChangeOf(tendered, change string) error {
	amount, err := decimal.NewFromString(tendered)
	if err != nil {
		return err
	}
	if got := c.cart.Quote(amount).Change.StringFixed(2); got != change {
		return fmt.Errorf("expected change %s, got %s", change, got)
	}
	return nil
}

func (c *checkoutTestContext) theCheckoutIsRejectedWith(message string) error {
	if c.err == nil {
		return errors.New("expected the checkout to be rejected")
	}
	if c.err.Error() != message {
		return fmt.Errorf("expected %q, got %q", message, c.err.Error())
	}
	return nil
}

func (c *checkoutTestContext) noSaleWasSentToTheBackend() error {
	if n := c.gateway.saleCalls(); n != 0 {
		return fmt.Errorf("expected no sale calls, got %d", n)
	}
	return nil
}

func (c *checkoutTestContext) theCheckoutStateIs(state string) error {
	if got := c.flow.State(); string(got) != state {
		return fmt.Errorf("expected state %q, got %q", state, got)
	}
	return nil
}

func (c *checkoutTestContext) theReceiptTotalIs(total string) error {
	if got := c.receipt.Totals.Total.StringFixed(2); got != total {
		return fmt.Errorf("expected receipt total %s, got %s", total, got)
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &checkoutTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	ctx.Step(`^a product "([^"]*)" priced (\d+\.\d+)$`, tc.aProductPriced)
	ctx.Step(`^the backend rejects sales with "([^"]*)"$`, tc.theBackendRejectsSalesWith)
	ctx.Step(`^the backend accepts sales again$`, tc.theBackendAcceptsSalesAgain)

	ctx.Step(`^I add "([^"]*)" to the cart$`, tc.iAddToTheCart)
	ctx.Step(`^I pay (\d+\.\d+) in cash$`, tc.iPayInCash)

	ctx.Step(`^the cart has (\d+) line items$`, tc.theCartHasLineItems)
	ctx.Step(`^line "([^"]*)" has quantity (\d+) and line total (\d+\.\d+)$`, tc.lineHasQuantityAndLineTotal)
	ctx.Step(`^the subtotal is (\d+\.\d+), the tax is (\d+\.\d+) and the total is (\d+\.\d+)$`, tc.theTotalsAre)
	ctx.Step(`^tendering (\d+\.\d+) gives change of (\d+\.\d+)$`, tc.tenderingGivesChangeOf)
	ctx.Step(`^the checkout is rejected with "([^"]*)"$`, tc.theCheckoutIsRejectedWith)
	ctx.Step(`^no sale was sent to the backend$`, tc.noSaleWasSentToTheBackend)
	ctx.Step(`^the checkout state is "([^"]*)"$`, tc.theCheckoutStateIs)
	ctx.Step(`^the receipt total is (\d+\.\d+)$`, tc.theReceiptTotalIs)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features/checkout.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
