package service

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"retailpos/terminal/internal/cart"
	"retailpos/terminal/internal/checkout"
	"retailpos/terminal/internal/domain"
)

var ErrProductNotFound = errors.New("product not found in this shop")

// CartView is the cart with display-rounded totals.
type CartView struct {
	Items  []domain.CartLineItem `json:"items"`
	Totals domain.Totals         `json:"totals"`
	State  checkout.State        `json:"checkoutState"`
}

// AddItemRequest adds a product by id or by a scanned barcode.
type AddItemRequest struct {
	ProductID string `json:"productId,omitempty"`
	Barcode   string `json:"barcode,omitempty"`
}

func (s *Service) Cart() CartView {
	items := s.cart.Items()
	return CartView{
		Items:  items,
		Totals: cart.ComputeTotals(items).Rounded(),
		State:  s.flow.State(),
	}
}

func (s *Service) AddToCart(ctx context.Context, req AddItemRequest) (CartView, error) {
	_, shopID, err := s.shopScope()
	if err != nil {
		return CartView{}, err
	}
	if err := s.cartEditable(); err != nil {
		return CartView{}, err
	}

	req.ProductID = strings.TrimSpace(req.ProductID)
	req.Barcode = strings.TrimSpace(req.Barcode)
	var product domain.Product
	switch {
	case req.Barcode != "":
		product, err = s.gateway.ProductByBarcode(ctx, req.Barcode)
	case req.ProductID != "":
		product, err = s.findProduct(ctx, shopID, req.ProductID)
	default:
		return CartView{}, invalid("product id or barcode is required")
	}
	if err != nil {
		return CartView{}, err
	}
	if product.ShopID != "" && product.ShopID != shopID {
		return CartView{}, invalid("product belongs to another shop")
	}

	err = s.flow.Edit(func(c *cart.Cart) error {
		c.AddItem(product)
		return nil
	})
	if err != nil {
		return CartView{}, err
	}
	return s.Cart(), nil
}

func (s *Service) findProduct(ctx context.Context, shopID string, productID string) (domain.Product, error) {
	products, err := s.gateway.ListProducts(ctx, shopID, domain.ProductQuery{})
	if err != nil {
		return domain.Product{}, err
	}
	for _, p := range products {
		if p.ID == productID {
			return p, nil
		}
	}
	return domain.Product{}, ErrProductNotFound
}

func (s *Service) UpdateCartItem(productID string, quantity int) (CartView, error) {
	id, err := requireID(productID, "product")
	if err != nil {
		return CartView{}, err
	}
	err = s.flow.Edit(func(c *cart.Cart) error {
		return c.UpdateQuantity(id, quantity)
	})
	if err != nil {
		return CartView{}, err
	}
	return s.Cart(), nil
}

func (s *Service) RemoveCartItem(productID string) (CartView, error) {
	id := strings.TrimSpace(productID)
	err := s.flow.Edit(func(c *cart.Cart) error {
		c.RemoveItem(id)
		return nil
	})
	if err != nil {
		return CartView{}, err
	}
	return s.Cart(), nil
}

func (s *Service) ClearCart() (CartView, error) {
	err := s.flow.Edit(func(c *cart.Cart) error {
		c.Clear()
		return nil
	})
	if err != nil {
		return CartView{}, err
	}
	return s.Cart(), nil
}

// Quote prices the cart against a tendered amount, rounded for display.
func (s *Service) Quote(tendered decimal.Decimal) cart.Quote {
	q := s.cart.Quote(tendered)
	q.Totals = q.Totals.Rounded()
	q.Change = q.Change.Round(2)
	return q
}

func (s *Service) Checkout(ctx context.Context, req checkout.Request) (checkout.Receipt, error) {
	sess, _, err := s.shopScope()
	if err != nil {
		return checkout.Receipt{}, err
	}
	req.Method = domain.PaymentMethod(strings.ToLower(strings.TrimSpace(string(req.Method))))
	return s.flow.Submit(ctx, sess, req)
}

func (s *Service) CheckoutState() checkout.Snapshot {
	return s.flow.Snapshot()
}

func (s *Service) ResetCheckout() checkout.Snapshot {
	s.flow.Reset()
	return s.flow.Snapshot()
}

func (s *Service) Receipt() (checkout.Printout, error) {
	receipt, err := s.flow.LastReceipt()
	if err != nil {
		return checkout.Printout{}, err
	}
	return receipt.Print(), nil
}

func (s *Service) Chat(ctx context.Context, question string) (domain.ChatReply, error) {
	sess, shopID, err := s.shopScope()
	if err != nil {
		return domain.ChatReply{}, err
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return domain.ChatReply{}, invalid("question is required")
	}

	reply, err := s.gateway.Chat(ctx, domain.ChatRequest{
		UserQuestion: question,
		UserID:       sess.User.ID,
		ShopID:       shopID,
	})
	if err != nil {
		s.logger.Warn("assistant chat failed", zap.Error(err))
		return domain.ChatReply{}, err
	}
	return reply, nil
}

// cartEditable rejects early, before a product lookup, when a sale is
// already in flight. Flow.Edit repeats the check atomically.
func (s *Service) cartEditable() error {
	if s.flow.State() == checkout.StateSubmitting {
		return checkout.ErrSubmissionInFlight
	}
	return nil
}
