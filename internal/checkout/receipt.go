package checkout

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"retailpos/terminal/internal/domain"
)

const receiptWidth = 32

// Receipt is the transient copy of a submitted sale shown after checkout.
type Receipt struct {
	Sale            domain.Sale           `json:"sale"`
	ClientReference string                `json:"clientReference"`
	ShopID          string                `json:"shopId"`
	ShopName        string                `json:"shopName,omitempty"`
	CashierName     string                `json:"cashierName,omitempty"`
	CustomerID      string                `json:"customerId,omitempty"`
	Items           []domain.CartLineItem `json:"items"`
	Totals          domain.Totals         `json:"totals"`
	Payment         domain.Payment        `json:"payment"`
	StockSynced     bool                  `json:"stockSynced"`
	IssuedAt        time.Time             `json:"issuedAt"`
}

// Printout is a receipt rendered for a screen preview and a printer bridge.
type Printout struct {
	SaleID       string `json:"saleId"`
	PreviewText  string `json:"previewText"`
	EscposBase64 string `json:"escposBase64"`
	FileName     string `json:"fileName"`
}

var (
	escposInit     = []byte{0x1b, 0x40}
	escposCut      = []byte{0x1d, 0x56, 0x41, 0x10}
	escposDrawKick = []byte{0x1b, 0x70, 0x00, 0x19, 0xfa}
)

func (r Receipt) Lines() []string {
	title := r.ShopName
	if title == "" {
		title = r.ShopID
	}
	number := r.Sale.ReceiptNumber
	if number == "" {
		number = r.Sale.ID
	}

	rule := strings.Repeat("=", receiptWidth)
	thin := strings.Repeat("-", receiptWidth)
	lines := []string{
		title,
		rule,
		"Receipt: " + number,
		"Date: " + r.IssuedAt.Format("2006-01-02 15:04:05"),
	}
	if r.CashierName != "" {
		lines = append(lines, "Cashier: "+r.CashierName)
	}
	lines = append(lines, thin)

	for _, item := range r.Items {
		lines = append(lines, item.ProductName)
		lines = append(lines, column(fmt.Sprintf("  %d x %s", item.Quantity, item.UnitPrice.StringFixed(2)), item.LineTotal))
	}

	lines = append(lines,
		thin,
		column("Subtotal", r.Totals.Subtotal),
		column("Tax 10%", r.Totals.Tax),
		column("Total", r.Totals.Total),
		column("Paid ("+string(r.Payment.Method)+")", r.Payment.AmountTendered),
		column("Change", r.Payment.Change),
		rule,
		"Thank you",
		"",
	)
	return lines
}

// Print renders the receipt. Cash sales also pulse the cash drawer.
func (r Receipt) Print() Printout {
	lines := r.Lines()

	escpos := append([]byte{}, escposInit...)
	for _, line := range lines {
		escpos = append(escpos, []byte(line)...)
		escpos = append(escpos, '\n')
	}
	escpos = append(escpos, escposCut...)
	if r.Payment.Method == domain.PaymentCash {
		escpos = append(escpos, escposDrawKick...)
	}

	return Printout{
		SaleID:       r.Sale.ID,
		PreviewText:  strings.Join(lines, "\n"),
		EscposBase64: base64.StdEncoding.EncodeToString(escpos),
		FileName:     fmt.Sprintf("receipt-%s.bin", r.Sale.ID),
	}
}

func column(label string, amount decimal.Decimal) string {
	value := amount.StringFixed(2)
	pad := receiptWidth - len(label) - len(value)
	if pad < 1 {
		pad = 1
	}
	return label + strings.Repeat(" ", pad) + value
}
