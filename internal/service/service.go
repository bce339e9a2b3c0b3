package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"retailpos/terminal/internal/cart"
	"retailpos/terminal/internal/checkout"
	"retailpos/terminal/internal/domain"
	"retailpos/terminal/internal/session"
)

// ValidationError is a client-side input check that failed before any
// backend call was made.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(message string) error {
	return &ValidationError{Message: message}
}

// Gateway is the slice of the retail backend the terminal uses.
type Gateway interface {
	checkout.SaleGateway

	Login(ctx context.Context, input domain.LoginRequest) (domain.LoginResult, error)

	ListProducts(ctx context.Context, shopID string, query domain.ProductQuery) ([]domain.Product, error)
	SearchProducts(ctx context.Context, shopID string, query domain.ProductQuery) ([]domain.Product, error)
	ProductByBarcode(ctx context.Context, code string) (domain.Product, error)
	CreateProduct(ctx context.Context, input domain.Product) (domain.Product, error)
	UpdateProduct(ctx context.Context, id string, input domain.Product) (domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	ListCategories(ctx context.Context, shopID string) ([]domain.Category, error)
	CreateCategory(ctx context.Context, input domain.Category) (domain.Category, error)
	UpdateCategory(ctx context.Context, id string, input domain.Category) (domain.Category, error)
	DeleteCategory(ctx context.Context, id string) error

	ListSuppliers(ctx context.Context, shopID string) ([]domain.Supplier, error)
	CreateSupplier(ctx context.Context, input domain.Supplier) (domain.Supplier, error)
	UpdateSupplier(ctx context.Context, id string, input domain.Supplier) (domain.Supplier, error)
	DeleteSupplier(ctx context.Context, id string) error

	ListDiscounts(ctx context.Context, shopID string) ([]domain.Discount, error)
	CreateDiscount(ctx context.Context, input domain.Discount) (domain.Discount, error)
	UpdateDiscount(ctx context.Context, id string, input domain.Discount) (domain.Discount, error)
	DeleteDiscount(ctx context.Context, id string) error

	ListCustomers(ctx context.Context, shopID string) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (domain.Customer, error)
	CreateCustomer(ctx context.Context, input domain.Customer) (domain.Customer, error)
	UpdateCustomer(ctx context.Context, id string, input domain.Customer) (domain.Customer, error)
	AddLoyaltyPoints(ctx context.Context, id string, input domain.LoyaltyRequest) (domain.Customer, error)

	ListShops(ctx context.Context) ([]domain.Shop, error)
	GetShop(ctx context.Context, id string) (domain.Shop, error)
	DashboardSummary(ctx context.Context, shopID string) (domain.DashboardSummary, error)

	Chat(ctx context.Context, input domain.ChatRequest) (domain.ChatReply, error)
}

// Service is everything a till screen does besides drawing itself.
type Service struct {
	gateway  Gateway
	sessions *session.Manager
	cart     *cart.Cart
	flow     *checkout.Flow
	logger   *zap.Logger
}

func New(gateway Gateway, sessions *session.Manager, c *cart.Cart, flow *checkout.Flow, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		gateway:  gateway,
		sessions: sessions,
		cart:     c,
		flow:     flow,
		logger:   logger.Named("service"),
	}
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (session.Session, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return session.Session{}, invalid("email and password are required")
	}

	result, err := s.gateway.Login(ctx, req)
	if err != nil {
		return session.Session{}, err
	}
	sess, err := s.sessions.Save(ctx, result.Token, result.User)
	if err != nil {
		return session.Session{}, err
	}
	s.startOver()

	s.logger.Info("cashier logged in", zap.String("userId", sess.User.ID))
	return sess, nil
}

func (s *Service) Logout(ctx context.Context) error {
	s.startOver()
	return s.sessions.Clear(ctx)
}

func (s *Service) Session() (session.Session, error) {
	return s.sessions.Current()
}

// SelectShop switches the till to another shop. Prices differ per shop, so
// the cart starts over.
func (s *Service) SelectShop(ctx context.Context, shopID string) (session.Session, error) {
	shopID = strings.TrimSpace(shopID)
	if shopID == "" {
		return session.Session{}, invalid("shop id is required")
	}
	if _, err := s.sessions.Current(); err != nil {
		return session.Session{}, err
	}
	if s.flow.State() == checkout.StateSubmitting {
		return session.Session{}, checkout.ErrSubmissionInFlight
	}

	shop, err := s.gateway.GetShop(ctx, shopID)
	if err != nil {
		return session.Session{}, err
	}
	sess, err := s.sessions.SelectShop(ctx, domain.ShopRef{ID: shop.ID, Name: shop.Name})
	if err != nil {
		return session.Session{}, err
	}
	s.startOver()
	return sess, nil
}

func (s *Service) ListShops(ctx context.Context) ([]domain.Shop, error) {
	if _, err := s.sessions.Current(); err != nil {
		return nil, err
	}
	return s.gateway.ListShops(ctx)
}

func (s *Service) Dashboard(ctx context.Context) (domain.DashboardSummary, error) {
	_, shopID, err := s.shopScope()
	if err != nil {
		return domain.DashboardSummary{}, err
	}
	return s.gateway.DashboardSummary(ctx, shopID)
}

// shopScope returns the session and its shop, or the error that a screen
// shows instead of calling the backend.
func (s *Service) shopScope() (session.Session, string, error) {
	sess, err := s.sessions.Current()
	if err != nil {
		return session.Session{}, "", err
	}
	shopID, err := sess.ShopID()
	if err != nil {
		return session.Session{}, "", err
	}
	return sess, shopID, nil
}

// startOver empties the cart for a new cashier or shop. A sale in flight
// keeps its cart and finishes on its own.
func (s *Service) startOver() {
	if err := s.flow.Restart(); err != nil {
		s.logger.Warn("cart kept while a sale is in flight", zap.Error(err))
	}
}

func requireID(id string, what string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", invalid(what + " id is required")
	}
	return id, nil
}
