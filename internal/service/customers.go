package service

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"retailpos/terminal/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// CustomerView is a customer plus the color of its loyalty tier badge.
type CustomerView struct {
	domain.Customer
	TierColor string `json:"tierColor"`
}

func viewCustomer(c domain.Customer) CustomerView {
	return CustomerView{Customer: c, TierColor: domain.TierColor(c.Tier)}
}

func (s *Service) ListCustomers(ctx context.Context) ([]CustomerView, error) {
	_, shopID, err := s.shopScope()
	if err != nil {
		return nil, err
	}
	customers, err := s.gateway.ListCustomers(ctx, shopID)
	if err != nil {
		return nil, err
	}
	views := make([]CustomerView, 0, len(customers))
	for _, c := range customers {
		views = append(views, viewCustomer(c))
	}
	return views, nil
}

func (s *Service) GetCustomer(ctx context.Context, id string) (CustomerView, error) {
	if _, _, err := s.shopScope(); err != nil {
		return CustomerView{}, err
	}
	id, err := requireID(id, "customer")
	if err != nil {
		return CustomerView{}, err
	}
	customer, err := s.gateway.GetCustomer(ctx, id)
	if err != nil {
		return CustomerView{}, err
	}
	return viewCustomer(customer), nil
}

func (s *Service) CreateCustomer(ctx context.Context, input domain.Customer) (CustomerView, error) {
	_, shopID, err := s.shopScope()
	if err != nil {
		return CustomerView{}, err
	}
	if input, err = normalizeCustomer(input); err != nil {
		return CustomerView{}, err
	}
	input.ID = ""
	input.ShopID = shopID
	created, err := s.gateway.CreateCustomer(ctx, input)
	if err != nil {
		return CustomerView{}, err
	}
	return viewCustomer(created), nil
}

func (s *Service) UpdateCustomer(ctx context.Context, id string, input domain.Customer) (CustomerView, error) {
	_, shopID, err := s.shopScope()
	if err != nil {
		return CustomerView{}, err
	}
	if id, err = requireID(id, "customer"); err != nil {
		return CustomerView{}, err
	}
	if input, err = normalizeCustomer(input); err != nil {
		return CustomerView{}, err
	}
	input.ID = id
	input.ShopID = shopID
	updated, err := s.gateway.UpdateCustomer(ctx, id, input)
	if err != nil {
		return CustomerView{}, err
	}
	return viewCustomer(updated), nil
}

// AddLoyaltyPoints credits points; negative points redeem them.
func (s *Service) AddLoyaltyPoints(ctx context.Context, id string, input domain.LoyaltyRequest) (CustomerView, error) {
	if _, _, err := s.shopScope(); err != nil {
		return CustomerView{}, err
	}
	id, err := requireID(id, "customer")
	if err != nil {
		return CustomerView{}, err
	}
	if input.Points == 0 {
		return CustomerView{}, invalid("points must not be zero")
	}
	input.Reason = strings.TrimSpace(input.Reason)
	customer, err := s.gateway.AddLoyaltyPoints(ctx, id, input)
	if err != nil {
		return CustomerView{}, err
	}
	return viewCustomer(customer), nil
}

func normalizeCustomer(c domain.Customer) (domain.Customer, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Phone = strings.TrimSpace(c.Phone)
	c.Email = strings.TrimSpace(c.Email)
	if c.Name == "" {
		return c, invalid("customer name is required")
	}
	if c.Phone == "" {
		return c, invalid("customer phone is required")
	}
	return c, nil
}
