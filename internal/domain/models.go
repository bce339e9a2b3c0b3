package domain

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// The backend reads money as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// ShopRef is the canonical form of the "current shop" pointer. Older
// sessions persisted it as a bare id string; both forms decode into ShopRef.
type ShopRef struct {
	ID   string `json:"_id"`
	Name string `json:"name,omitempty"`
}

func (s *ShopRef) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var id string
		if err := json.Unmarshal(trimmed, &id); err != nil {
			return err
		}
		s.ID = strings.TrimSpace(id)
		s.Name = ""
		return nil
	}

	type shopRefObject struct {
		ID    string `json:"_id"`
		AltID string `json:"id"`
		Name  string `json:"name"`
	}
	var obj shopRefObject
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return err
	}
	s.ID = strings.TrimSpace(obj.ID)
	if s.ID == "" {
		s.ID = strings.TrimSpace(obj.AltID)
	}
	s.Name = obj.Name
	return nil
}

type User struct {
	ID          string   `json:"_id"`
	Name        string   `json:"name"`
	Email       string   `json:"email,omitempty"`
	Role        string   `json:"role,omitempty"`
	CurrentShop *ShopRef `json:"currentShop,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type Product struct {
	ID           string          `json:"_id,omitempty"`
	Name         string          `json:"name"`
	Barcode      string          `json:"barcode,omitempty"`
	SKU          string          `json:"sku,omitempty"`
	Description  string          `json:"description,omitempty"`
	CategoryID   string          `json:"category,omitempty"`
	SupplierID   string          `json:"supplier,omitempty"`
	ShopID       string          `json:"shop,omitempty"`
	Unit         string          `json:"unit,omitempty"`
	CostPrice    decimal.Decimal `json:"costPrice"`
	SellingPrice decimal.Decimal `json:"sellingPrice"`
	Stock        int             `json:"stock"`
	MinStock     int             `json:"minStock"`
}

// IsLowStock reports whether the product reached its reorder threshold.
func (p Product) IsLowStock() bool {
	return p.Stock <= p.MinStock
}

type ProductQuery struct {
	Search   string `json:"search,omitempty"`
	LowStock bool   `json:"lowStock,omitempty"`
	Category string `json:"category,omitempty"`
}

type ProductSearchRequest struct {
	ShopID string `json:"shopId"`
	ProductQuery
}

type StockDecrementItem struct {
	ProductID    string `json:"productId"`
	QuantitySold int    `json:"quantitySold"`
}

type StockDecrementRequest struct {
	ShopID string               `json:"shopId"`
	Items  []StockDecrementItem `json:"items"`
}

type Category struct {
	ID          string `json:"_id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ShopID      string `json:"shop,omitempty"`
}

type Supplier struct {
	ID            string `json:"_id,omitempty"`
	Name          string `json:"name"`
	ContactPerson string `json:"contactPerson,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Email         string `json:"email,omitempty"`
	Address       string `json:"address,omitempty"`
	ShopID        string `json:"shop,omitempty"`
}

type Discount struct {
	ID        string          `json:"_id,omitempty"`
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Value     decimal.Decimal `json:"value"`
	StartDate *time.Time      `json:"startDate,omitempty"`
	EndDate   *time.Time      `json:"endDate,omitempty"`
	Active    bool            `json:"active"`
	ShopID    string          `json:"shop,omitempty"`
}

const (
	DiscountTypePercentage = "percentage"
	DiscountTypeFixed      = "fixed"
)

type Shop struct {
	ID         string   `json:"_id"`
	Name       string   `json:"name"`
	Address    string   `json:"address,omitempty"`
	Phone      string   `json:"phone,omitempty"`
	IsMaster   bool     `json:"isMaster"`
	MasterShop *ShopRef `json:"masterShop,omitempty"`
}

type Customer struct {
	ID            string          `json:"_id,omitempty"`
	Name          string          `json:"name"`
	Phone         string          `json:"phone"`
	Email         string          `json:"email,omitempty"`
	Address       string          `json:"address,omitempty"`
	LoyaltyPoints int             `json:"loyaltyPoints"`
	Tier          string          `json:"loyaltyTier,omitempty"`
	TotalSpent    decimal.Decimal `json:"totalSpent"`
	ShopID        string          `json:"shop,omitempty"`
}

type LoyaltyRequest struct {
	Points int    `json:"points"`
	Reason string `json:"reason,omitempty"`
}

var tierColors = map[string]string{
	"bronze":   "#cd7f32",
	"silver":   "#c0c0c0",
	"gold":     "#d4af37",
	"platinum": "#8e9aaf",
}

// TierColor maps a loyalty tier to the badge color shown next to the customer.
func TierColor(tier string) string {
	if color, ok := tierColors[strings.ToLower(strings.TrimSpace(tier))]; ok {
		return color
	}
	return "#9ca3af"
}

type SaleSummary struct {
	ID            string          `json:"_id"`
	ReceiptNumber string          `json:"receiptNumber,omitempty"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod string          `json:"paymentMethod,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

type DashboardSummary struct {
	TotalSales       int             `json:"totalSales"`
	TotalRevenue     decimal.Decimal `json:"totalRevenue"`
	TotalProducts    int             `json:"totalProducts"`
	LowStockProducts int             `json:"lowStockProducts"`
	TotalCustomers   int             `json:"totalCustomers"`
	RecentSales      []SaleSummary   `json:"recentSales"`
}

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentCard   PaymentMethod = "card"
	PaymentMobile PaymentMethod = "mobile"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentMobile:
		return true
	}
	return false
}

type CartLineItem struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	LineTotal   decimal.Decimal `json:"lineTotal"`
}

type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// Rounded returns the totals at currency precision.
func (t Totals) Rounded() Totals {
	return Totals{
		Subtotal: t.Subtotal.Round(2),
		Tax:      t.Tax.Round(2),
		Total:    t.Total.Round(2),
	}
}

type Payment struct {
	Method         PaymentMethod   `json:"method"`
	AmountTendered decimal.Decimal `json:"amountTendered"`
	Change         decimal.Decimal `json:"change"`
}

type SaleItem struct {
	ProductID string          `json:"product"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type SaleRequest struct {
	ShopID          string     `json:"shopId"`
	CashierID       string     `json:"cashierId"`
	CustomerID      string     `json:"customerId,omitempty"`
	ClientReference string     `json:"clientReference"`
	Items           []SaleItem `json:"items"`
	Totals          Totals     `json:"totals"`
	Payment         Payment    `json:"payment"`
}

type Sale struct {
	ID            string    `json:"_id"`
	ReceiptNumber string    `json:"receiptNumber,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

type ChatRequest struct {
	UserQuestion string `json:"userQuestion"`
	UserID       string `json:"userId"`
	ShopID       string `json:"shopId"`
}

type ChatReply struct {
	Answer string `json:"answer"`
}
