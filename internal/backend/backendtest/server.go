// Package backendtest runs an in-memory retail backend over HTTP for tests.
package backendtest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"retailpos/terminal/internal/domain"
	"retailpos/terminal/internal/xid"
)

const (
	CashierEmail    = "cashier@example.com"
	CashierPassword = "cashier123"
	CashierID       = "u-cashier"
	// DrifterEmail belongs to a user without a current shop.
	DrifterEmail = "drifter@example.com"
	ShopID       = "shop-main"
	BranchShopID = "shop-branch"

	signingKey = "backendtest-signing-key"
)

type account struct {
	user         domain.User
	passwordHash []byte
}

type failure struct {
	status  int
	message string
}

// Server is a seeded fake of the retail backend REST API.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	tokenTTL    time.Duration
	accounts    map[string]account
	products    map[string]domain.Product
	categories  map[string]domain.Category
	suppliers   map[string]domain.Supplier
	discounts   map[string]domain.Discount
	customers   map[string]domain.Customer
	shops       []domain.Shop
	sales       []domain.SaleRequest
	stockCalls  []domain.StockDecrementRequest
	failures    map[string]failure
	calls       map[string]int
	chatAnswers []string
}

// NewServer starts a seeded backend that is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		tokenTTL:   time.Hour,
		accounts:   map[string]account{},
		products:   map[string]domain.Product{},
		categories: map[string]domain.Category{},
		suppliers:  map[string]domain.Supplier{},
		discounts:  map[string]domain.Discount{},
		customers:  map[string]domain.Customer{},
		failures:   map[string]failure{},
		calls:      map[string]int{},
	}
	if err := s.seed(); err != nil {
		t.Fatalf("seed backend: %v", err)
	}

	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

func (s *Server) seed() error {
	mainShop := &domain.ShopRef{ID: ShopID, Name: "Main Store"}
	for _, u := range []struct {
		user     domain.User
		email    string
		password string
	}{
		{domain.User{ID: CashierID, Name: "Sari", Email: CashierEmail, Role: "cashier", CurrentShop: mainShop}, CashierEmail, CashierPassword},
		{domain.User{ID: "u-drifter", Name: "Dimas", Email: DrifterEmail, Role: "cashier"}, DrifterEmail, CashierPassword},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.MinCost)
		if err != nil {
			return err
		}
		s.accounts[u.email] = account{user: u.user, passwordHash: hash}
	}

	s.shops = []domain.Shop{
		{ID: ShopID, Name: "Main Store", Address: "Jl. Merdeka 1", IsMaster: true},
		{ID: BranchShopID, Name: "Branch Store", Address: "Jl. Sudirman 8", MasterShop: mainShop},
	}

	for _, p := range []domain.Product{
		{ID: "p-mie", Name: "Mie Goreng Instan", Barcode: "8990001000011", CategoryID: "c-grocery", CostPrice: money("2.70"), SellingPrice: money("3.50"), Stock: 40, MinStock: 10},
		{ID: "p-telur", Name: "Telur 10 Butir", Barcode: "8990001000028", CategoryID: "c-grocery", CostPrice: money("4.10"), SellingPrice: money("4.65"), Stock: 12, MinStock: 5},
		{ID: "p-susu", Name: "Susu UHT 1L", Barcode: "8990001000035", CategoryID: "c-dairy", CostPrice: money("1.40"), SellingPrice: money("1.89"), Stock: 3, MinStock: 6},
		{ID: "p-kopi", Name: "Kopi Sachet", Barcode: "8990001000042", CategoryID: "c-beverage", CostPrice: money("0.17"), SellingPrice: money("0.26"), Stock: 200, MinStock: 50},
		{ID: "p-roti", Name: "Roti Tawar", Barcode: "8990001000059", CategoryID: "c-bakery", CostPrice: money("1.25"), SellingPrice: money("1.78"), Stock: 8, MinStock: 8},
	} {
		p.ShopID = ShopID
		p.Unit = "pcs"
		s.products[p.ID] = p
	}

	for _, c := range []domain.Category{
		{ID: "c-grocery", Name: "Grocery"},
		{ID: "c-dairy", Name: "Dairy"},
		{ID: "c-beverage", Name: "Beverage"},
		{ID: "c-bakery", Name: "Bakery"},
	} {
		c.ShopID = ShopID
		s.categories[c.ID] = c
	}

	s.suppliers["s-sumber"] = domain.Supplier{ID: "s-sumber", Name: "Sumber Rejeki", ContactPerson: "Budi", Phone: "0812000111", ShopID: ShopID}
	s.discounts["d-weekend"] = domain.Discount{ID: "d-weekend", Name: "Weekend", Type: domain.DiscountTypePercentage, Value: money("5"), Active: true, ShopID: ShopID}
	s.customers["cu-rina"] = domain.Customer{ID: "cu-rina", Name: "Rina", Phone: "0813000222", LoyaltyPoints: 120, Tier: "silver", TotalSpent: money("310.40"), ShopID: ShopID}
	return nil
}

func money(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

// Fail makes every call to route ("METHOD /pattern") answer with status
// until Recover is called.
func (s *Server) Fail(route string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = failure{status: status, message: message}
}

func (s *Server) Recover(route string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, route)
}

// Calls reports how many times route was hit, failed calls included.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

func (s *Server) Sales() []domain.SaleRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.sales)
}

func (s *Server) StockUpdates() []domain.StockDecrementRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.stockCalls)
}

func (s *Server) Product(id string) (domain.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	return p, ok
}

// QueueChatAnswer sets the next assistant answers, in order.
func (s *Server) QueueChatAnswer(answers ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chatAnswers = append(s.chatAnswers, answers...)
}

// SetTokenTTL changes the lifetime of tokens issued by later logins.
func (s *Server) SetTokenTTL(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenTTL = ttl
}

// IssueToken signs a token for userID that expires at expiresAt.
func IssueToken(userID string, expiresAt time.Time) (string, error) {
	claims := jwtlib.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
		ExpiresAt: jwtlib.NewNumericDate(expiresAt),
		Issuer:    "backendtest",
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte(signingKey))
}

func parseToken(raw string) (string, error) {
	claims := &jwtlib.RegisteredClaims{}
	token, err := jwtlib.ParseWithClaims(raw, claims, func(t *jwtlib.Token) (interface{}, error) {
		return []byte(signingKey), nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return "", errors.New("invalid or expired token")
	}
	return claims.Subject, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	s.handle(r, http.MethodPost, "/api/auth/login", false, s.handleLogin)

	s.handle(r, http.MethodGet, "/api/products/shop/{shopId}", true, s.handleListProducts)
	s.handle(r, http.MethodPost, "/api/products/search", true, s.handleSearchProducts)
	s.handle(r, http.MethodGet, "/api/products/barcode/{code}", true, s.handleBarcode)
	s.handle(r, http.MethodPut, "/api/products/stock", true, s.handleStock)
	mountItems(s, r, "/api/products", "p", s.products, func(p *domain.Product) *string { return &p.ID })

	mountCollection(s, r, "/api/categories", "c", s.categories, func(c *domain.Category) *string { return &c.ID }, func(c domain.Category) string { return c.ShopID })
	mountCollection(s, r, "/api/suppliers", "s", s.suppliers, func(v *domain.Supplier) *string { return &v.ID }, func(v domain.Supplier) string { return v.ShopID })
	mountCollection(s, r, "/api/discounts", "d", s.discounts, func(d *domain.Discount) *string { return &d.ID }, func(d domain.Discount) string { return d.ShopID })
	mountCollection(s, r, "/api/customers", "cu", s.customers, func(c *domain.Customer) *string { return &c.ID }, func(c domain.Customer) string { return c.ShopID })
	s.handle(r, http.MethodPost, "/api/customers/{id}/loyalty", true, s.handleLoyalty)

	s.handle(r, http.MethodGet, "/api/shops", true, s.handleListShops)
	s.handle(r, http.MethodGet, "/api/shops/{id}", true, s.handleGetShop)
	s.handle(r, http.MethodGet, "/api/dashboard/summary/{shopId}", true, s.handleDashboard)
	s.handle(r, http.MethodPost, "/api/sales", true, s.handleCreateSale)
	s.handle(r, http.MethodPost, "/api/afia/chat", true, s.handleChat)

	return r
}

// handle registers h behind call counting, failure injection and, when
// authed is set, bearer token checks.
func (s *Server) handle(r chi.Router, method, pattern string, authed bool, h http.HandlerFunc) {
	route := method + " " + pattern
	r.Method(method, pattern, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		s.mu.Lock()
		s.calls[route]++
		fail, failing := s.failures[route]
		s.mu.Unlock()

		if failing {
			writeFailure(w, fail.status, fail.message)
			return
		}
		if authed {
			header := strings.TrimSpace(req.Header.Get("Authorization"))
			if !strings.HasPrefix(header, "Bearer ") {
				writeFailure(w, http.StatusUnauthorized, "Not authorized, no token")
				return
			}
			if _, err := parseToken(strings.TrimPrefix(header, "Bearer ")); err != nil {
				writeFailure(w, http.StatusUnauthorized, "Not authorized, token failed")
				return
			}
		}
		h(w, req)
	}))
}

// mountCollection serves the shop listing plus the per-item endpoints of base.
func mountCollection[T any](s *Server, r chi.Router, base, prefix string, items map[string]T, idOf func(*T) *string, shopOf func(T) string) {
	s.handle(r, http.MethodGet, base+"/shop/{shopId}", true, func(w http.ResponseWriter, req *http.Request) {
		shopID := chi.URLParam(req, "shopId")
		s.mu.Lock()
		out := make([]T, 0, len(items))
		for _, item := range items {
			if shopOf(item) == shopID {
				out = append(out, item)
			}
		}
		s.mu.Unlock()
		slices.SortFunc(out, func(a, b T) int { return strings.Compare(*idOf(&a), *idOf(&b)) })
		writeData(w, http.StatusOK, out)
	})
	mountItems(s, r, base, prefix, items, idOf)
}

func mountItems[T any](s *Server, r chi.Router, base, prefix string, items map[string]T, idOf func(*T) *string) {
	s.handle(r, http.MethodGet, base+"/{id}", true, func(w http.ResponseWriter, req *http.Request) {
		s.mu.Lock()
		item, ok := items[chi.URLParam(req, "id")]
		s.mu.Unlock()
		if !ok {
			writeFailure(w, http.StatusNotFound, "Resource not found")
			return
		}
		writeData(w, http.StatusOK, item)
	})
	s.handle(r, http.MethodPost, base, true, func(w http.ResponseWriter, req *http.Request) {
		var item T
		if err := json.NewDecoder(req.Body).Decode(&item); err != nil {
			writeFailure(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		*idOf(&item) = xid.New(prefix)
		s.mu.Lock()
		items[*idOf(&item)] = item
		s.mu.Unlock()
		writeData(w, http.StatusCreated, item)
	})
	s.handle(r, http.MethodPut, base+"/{id}", true, func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		var item T
		if err := json.NewDecoder(req.Body).Decode(&item); err != nil {
			writeFailure(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := items[id]; !ok {
			writeFailure(w, http.StatusNotFound, "Resource not found")
			return
		}
		*idOf(&item) = id
		items[id] = item
		writeData(w, http.StatusOK, item)
	})
	s.handle(r, http.MethodDelete, base+"/{id}", true, func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := items[id]; !ok {
			writeFailure(w, http.StatusNotFound, "Resource not found")
			return
		}
		delete(items, id)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Deleted"})
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	acct, ok := s.accounts[strings.ToLower(strings.TrimSpace(req.Email))]
	ttl := s.tokenTTL
	s.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(req.Password)) != nil {
		writeFailure(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	token, err := IssueToken(acct.user.ID, time.Now().Add(ttl))
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, "Server error")
		return
	}
	writeData(w, http.StatusOK, domain.LoginResult{Token: token, User: acct.user})
}

func (s *Server) filterProducts(shopID string, q domain.ProductQuery) []domain.Product {
	search := strings.ToLower(strings.TrimSpace(q.Search))

	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Product{}
	for _, p := range s.products {
		if p.ShopID != shopID {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) && !strings.Contains(p.Barcode, search) {
			continue
		}
		if q.LowStock && !p.IsLowStock() {
			continue
		}
		if q.Category != "" && p.CategoryID != q.Category {
			continue
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b domain.Product) int { return strings.Compare(a.Name, b.Name) })
	return out
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	writeData(w, http.StatusOK, s.filterProducts(chi.URLParam(r, "shopId"), domain.ProductQuery{
		Search:   query.Get("search"),
		LowStock: query.Get("lowStock") == "true",
		Category: query.Get("category"),
	}))
}

func (s *Server) handleSearchProducts(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	writeData(w, http.StatusOK, s.filterProducts(req.ShopID, req.ProductQuery))
}

func (s *Server) handleBarcode(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.products {
		if p.Barcode == code {
			writeData(w, http.StatusOK, p)
			return
		}
	}
	writeFailure(w, http.StatusNotFound, "Product not found")
}

func (s *Server) handleStock(w http.ResponseWriter, r *http.Request) {
	var req domain.StockDecrementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range req.Items {
		if _, ok := s.products[item.ProductID]; !ok {
			writeFailure(w, http.StatusNotFound, fmt.Sprintf("Product %s not found", item.ProductID))
			return
		}
	}
	for _, item := range req.Items {
		p := s.products[item.ProductID]
		p.Stock -= item.QuantitySold
		s.products[item.ProductID] = p
	}
	s.stockCalls = append(s.stockCalls, req)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Stock updated"})
}

func (s *Server) handleLoyalty(w http.ResponseWriter, r *http.Request) {
	var req domain.LoyaltyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	customer, ok := s.customers[chi.URLParam(r, "id")]
	if !ok {
		writeFailure(w, http.StatusNotFound, "Customer not found")
		return
	}
	if customer.LoyaltyPoints+req.Points < 0 {
		writeFailure(w, http.StatusBadRequest, "Insufficient loyalty points")
		return
	}
	customer.LoyaltyPoints += req.Points
	s.customers[customer.ID] = customer
	writeData(w, http.StatusOK, customer)
}

func (s *Server) handleListShops(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeData(w, http.StatusOK, s.shops)
}

func (s *Server) handleGetShop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, shop := range s.shops {
		if shop.ID == id {
			writeData(w, http.StatusOK, shop)
			return
		}
	}
	writeFailure(w, http.StatusNotFound, "Shop not found")
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	shopID := chi.URLParam(r, "shopId")

	s.mu.Lock()
	defer s.mu.Unlock()
	summary := domain.DashboardSummary{TotalRevenue: decimal.Zero, RecentSales: []domain.SaleSummary{}}
	for _, p := range s.products {
		if p.ShopID != shopID {
			continue
		}
		summary.TotalProducts++
		if p.IsLowStock() {
			summary.LowStockProducts++
		}
	}
	for _, c := range s.customers {
		if c.ShopID == shopID {
			summary.TotalCustomers++
		}
	}
	for i, sale := range s.sales {
		if sale.ShopID != shopID {
			continue
		}
		summary.TotalSales++
		summary.TotalRevenue = summary.TotalRevenue.Add(sale.Totals.Total)
		summary.RecentSales = append(summary.RecentSales, domain.SaleSummary{
			ID:            sale.ClientReference,
			ReceiptNumber: fmt.Sprintf("R-%05d", i+1),
			Total:         sale.Totals.Total,
			PaymentMethod: string(sale.Payment.Method),
		})
	}
	writeData(w, http.StatusOK, summary)
}

func (s *Server) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Items) == 0 {
		writeFailure(w, http.StatusBadRequest, "Sale must contain at least one item")
		return
	}

	s.mu.Lock()
	s.sales = append(s.sales, req)
	number := len(s.sales)
	s.mu.Unlock()

	writeData(w, http.StatusCreated, domain.Sale{
		ID:            xid.New("sale"),
		ReceiptNumber: fmt.Sprintf("R-%05d", number),
		CreatedAt:     time.Now().UTC(),
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req domain.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	answer := "I can help with sales, stock and customers."
	if len(s.chatAnswers) > 0 {
		answer = s.chatAnswers[0]
		s.chatAnswers = s.chatAnswers[1:]
	}
	s.mu.Unlock()
	writeData(w, http.StatusOK, domain.ChatReply{Answer: answer})
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, map[string]any{"success": true, "data": data})
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "message": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
