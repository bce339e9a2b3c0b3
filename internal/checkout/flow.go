package checkout

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"retailpos/terminal/internal/cart"
	"retailpos/terminal/internal/domain"
	"retailpos/terminal/internal/metrics"
	"retailpos/terminal/internal/session"
	"retailpos/terminal/internal/xid"
)

var (
	ErrEmptyCart            = errors.New("cart is empty")
	ErrInvalidPaymentMethod = errors.New("payment method must be cash, card or mobile")
	ErrInsufficientTender   = errors.New("amount tendered is less than the total")
	ErrSubmissionInFlight   = errors.New("a sale is already being submitted")
	ErrNoReceipt            = errors.New("no completed sale to print")
)

type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

// SaleGateway is the part of the backend the flow talks to.
type SaleGateway interface {
	CreateSale(ctx context.Context, input domain.SaleRequest) (domain.Sale, error)
	DecrementStock(ctx context.Context, input domain.StockDecrementRequest) error
}

type Request struct {
	Method         domain.PaymentMethod `json:"paymentMethod"`
	AmountTendered decimal.Decimal      `json:"amountTendered"`
	CustomerID     string               `json:"customerId,omitempty"`
}

// Snapshot is the externally visible state of the flow.
type Snapshot struct {
	State     State    `json:"state"`
	LastError string   `json:"lastError,omitempty"`
	Receipt   *Receipt `json:"receipt,omitempty"`
}

// Flow drives one sale at a time from the cart to the backend.
type Flow struct {
	gateway SaleGateway
	cart    *cart.Cart
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu      sync.Mutex
	state   State
	lastErr error
	receipt *Receipt
}

func NewFlow(gateway SaleGateway, c *cart.Cart, logger *zap.Logger, m *metrics.Metrics) *Flow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Flow{
		gateway: gateway,
		cart:    c,
		logger:  logger.Named("checkout"),
		metrics: m,
		now:     time.Now,
		state:   StateIdle,
	}
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := Snapshot{State: f.state, Receipt: f.receipt}
	if f.lastErr != nil {
		snap.LastError = f.lastErr.Error()
	}
	return snap
}

// LastReceipt returns the receipt of the most recent successful sale.
func (f *Flow) LastReceipt() (Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.receipt == nil {
		return Receipt{}, ErrNoReceipt
	}
	return *f.receipt, nil
}

// Reset starts a new sale. A submission in flight is left alone.
func (f *Flow) Reset() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateSubmitting {
		f.state = StateIdle
		f.lastErr = nil
	}
	return f.state
}

// Edit applies fn to the cart unless a sale is being submitted. The state
// check and the change happen under one lock, so an edit never lands in a
// cart that Submit has already read.
func (f *Flow) Edit(fn func(c *cart.Cart) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateSubmitting {
		return ErrSubmissionInFlight
	}
	return fn(f.cart)
}

// Restart empties the cart and returns to Idle. A submission in flight
// keeps its cart.
func (f *Flow) Restart() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateSubmitting {
		return ErrSubmissionInFlight
	}
	f.cart.Clear()
	f.state = StateIdle
	f.lastErr = nil
	return nil
}

// Submit validates the cart and payment, records the sale and, once the
// backend accepted it, reports the sold quantities. Guard failures leave
// the state untouched and make no network call.
func (f *Flow) Submit(ctx context.Context, sess session.Session, req Request) (Receipt, error) {
	shopID, err := sess.ShopID()
	if err != nil {
		return Receipt{}, err
	}

	f.mu.Lock()
	if f.state == StateSubmitting {
		f.mu.Unlock()
		return Receipt{}, ErrSubmissionInFlight
	}
	items := f.cart.Items()
	payment, totals, err := preparePayment(items, req)
	if err != nil {
		f.mu.Unlock()
		return Receipt{}, err
	}
	f.state = StateSubmitting
	f.lastErr = nil
	f.mu.Unlock()

	sale := domain.SaleRequest{
		ShopID:          shopID,
		CashierID:       sess.User.ID,
		CustomerID:      strings.TrimSpace(req.CustomerID),
		ClientReference: xid.New("sale"),
		Items:           make([]domain.SaleItem, 0, len(items)),
		Totals:          totals,
		Payment:         payment,
	}
	for _, item := range items {
		sale.Items = append(sale.Items, domain.SaleItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	created, err := f.gateway.CreateSale(ctx, sale)
	if err != nil {
		f.logger.Warn("sale submission failed",
			zap.String("clientReference", sale.ClientReference),
			zap.String("shopId", shopID),
			zap.Error(err))
		f.metrics.SaleSubmitted("failed")
		f.finish(StateFailed, err, nil)
		return Receipt{}, err
	}
	f.metrics.SaleSubmitted("succeeded")

	stockSynced := f.decrementStock(ctx, shopID, created, items)

	receipt := Receipt{
		Sale:            created,
		ClientReference: sale.ClientReference,
		ShopID:          shopID,
		ShopName:        sess.User.CurrentShop.Name,
		CashierName:     sess.User.Name,
		CustomerID:      sale.CustomerID,
		Items:           items,
		Totals:          totals,
		Payment:         payment,
		StockSynced:     stockSynced,
		IssuedAt:        f.now().UTC(),
	}
	f.finish(StateSucceeded, nil, &receipt)

	f.logger.Info("sale recorded",
		zap.String("saleId", created.ID),
		zap.String("clientReference", sale.ClientReference),
		zap.String("total", totals.Total.StringFixed(2)),
		zap.Bool("stockSynced", stockSynced))
	return receipt, nil
}

// decrementStock is best effort: the sale already exists, so a failure is
// logged and counted but never undone.
func (f *Flow) decrementStock(ctx context.Context, shopID string, sale domain.Sale, items []domain.CartLineItem) bool {
	update := domain.StockDecrementRequest{ShopID: shopID, Items: make([]domain.StockDecrementItem, 0, len(items))}
	for _, item := range items {
		update.Items = append(update.Items, domain.StockDecrementItem{ProductID: item.ProductID, QuantitySold: item.Quantity})
	}
	if err := f.gateway.DecrementStock(ctx, update); err != nil {
		f.logger.Error("stock decrement failed after sale",
			zap.String("saleId", sale.ID),
			zap.Int("lines", len(update.Items)),
			zap.Error(err))
		f.metrics.StockDecrementFailed()
		return false
	}
	return true
}

func (f *Flow) finish(state State, err error, receipt *Receipt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = state
	f.lastErr = err
	if receipt != nil {
		f.cart.Clear()
		f.receipt = receipt
	}
}

func preparePayment(items []domain.CartLineItem, req Request) (domain.Payment, domain.Totals, error) {
	if len(items) == 0 {
		return domain.Payment{}, domain.Totals{}, ErrEmptyCart
	}
	if !req.Method.Valid() {
		return domain.Payment{}, domain.Totals{}, ErrInvalidPaymentMethod
	}

	totals := cart.ComputeTotals(items).Rounded()
	payment := domain.Payment{Method: req.Method}
	if req.Method == domain.PaymentCash {
		tendered := req.AmountTendered.Round(2)
		if tendered.LessThan(totals.Total) {
			return domain.Payment{}, domain.Totals{}, ErrInsufficientTender
		}
		payment.AmountTendered = tendered
		payment.Change = cart.Change(tendered, totals.Total)
	} else {
		payment.AmountTendered = totals.Total
		payment.Change = decimal.Zero
	}
	return payment, totals, nil
}
