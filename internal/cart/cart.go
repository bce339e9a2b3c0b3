package cart

import (
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"retailpos/terminal/internal/domain"
)

var (
	ErrInvalidQuantity = errors.New("quantity must not be negative")
	ErrItemNotFound    = errors.New("item not in cart")
)

// Cart holds the line items of the active checkout. Line items are kept in
// insertion order and are unique by product id.
type Cart struct {
	mu    sync.Mutex
	items []domain.CartLineItem
}

func New() *Cart {
	return &Cart{}
}

// AddItem increments the line for product or appends a new line with
// quantity 1 at the product's current selling price.
func (c *Cart) AddItem(product domain.Product) domain.CartLineItem {
	c.mu.Lock()
	defer c.mu.Unlock()

	if idx := c.indexOf(product.ID); idx >= 0 {
		line := &c.items[idx]
		line.Quantity++
		line.LineTotal = lineTotal(line.Quantity, line.UnitPrice)
		return *line
	}

	line := domain.CartLineItem{
		ProductID:   product.ID,
		ProductName: product.Name,
		Quantity:    1,
		UnitPrice:   product.SellingPrice,
		LineTotal:   lineTotal(1, product.SellingPrice),
	}
	c.items = append(c.items, line)
	return line
}

// UpdateQuantity sets the quantity of a line. Zero removes the line. Stock
// sufficiency is left to the backend.
func (c *Cart) UpdateQuantity(productID string, quantity int) error {
	if quantity < 0 {
		return ErrInvalidQuantity
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.indexOf(productID)
	if idx < 0 {
		if quantity == 0 {
			return nil
		}
		return ErrItemNotFound
	}
	if quantity == 0 {
		c.removeAt(idx)
		return nil
	}

	line := &c.items[idx]
	line.Quantity = quantity
	line.LineTotal = lineTotal(quantity, line.UnitPrice)
	return nil
}

func (c *Cart) RemoveItem(productID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if idx := c.indexOf(productID); idx >= 0 {
		c.removeAt(idx)
	}
}

func (c *Cart) Clear() {
	c.mu.Lock()
	c.items = nil
	c.mu.Unlock()
}

// Items returns a copy of the line items in insertion order.
func (c *Cart) Items() []domain.CartLineItem {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]domain.CartLineItem, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Cart) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cart) IsEmpty() bool {
	return c.Len() == 0
}

func (c *Cart) indexOf(productID string) int {
	for i := range c.items {
		if c.items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

func (c *Cart) removeAt(idx int) {
	c.items = append(c.items[:idx], c.items[idx+1:]...)
}

func lineTotal(quantity int, unitPrice decimal.Decimal) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}
