package service

import (
	"context"
	"strings"

	"retailpos/terminal/internal/domain"
)

// ListProducts lists the shop's products. Free-text searches go through the
// backend search endpoint; plain filters use the shop listing.
func (s *Service) ListProducts(ctx context.Context, query domain.ProductQuery) ([]domain.Product, error) {
	_, shopID, err := s.shopScope()
	if err != nil {
		return nil, err
	}
	query.Search = strings.TrimSpace(query.Search)
	query.Category = strings.TrimSpace(query.Category)
	if query.Search != "" {
		return s.gateway.SearchProducts(ctx, shopID, query)
	}
	return s.gateway.ListProducts(ctx, shopID, query)
}

func (s *Service) ProductByBarcode(ctx context.Context, code string) (domain.Product, error) {
	if _, _, err := s.shopScope(); err != nil {
		return domain.Product{}, err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Product{}, invalid("barcode is required")
	}
	return s.gateway.ProductByBarcode(ctx, code)
}

func (s *Service) CreateProduct(ctx context.Context, input domain.Product) (domain.Product, error) {
	_, shopID, err := s.shopScope()
	if err != nil {
		return domain.Product{}, err
	}
	input, err = normalizeProduct(input)
	if err != nil {
		return domain.Product{}, err
	}
	input.ID = ""
	input.ShopID = shopID
	return s.gateway.CreateProduct(ctx, input)
}

func (s *Service) UpdateProduct(ctx context.Context, id string, input domain.Product) (domain.Product, error) {
	_, shopID, err := s.shopScope()
	if err != nil {
		return domain.Product{}, err
	}
	if id, err = requireID(id, "product"); err != nil {
		return domain.Product{}, err
	}
	input, err = normalizeProduct(input)
	if err != nil {
		return domain.Product{}, err
	}
	input.ID = id
	input.ShopID = shopID
	return s.gateway.UpdateProduct(ctx, id, input)
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if _, _, err := s.shopScope(); err != nil {
		return err
	}
	id, err := requireID(id, "product")
	if err != nil {
		return err
	}
	return s.gateway.DeleteProduct(ctx, id)
}

func normalizeProduct(p domain.Product) (domain.Product, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Barcode = strings.TrimSpace(p.Barcode)
	p.SKU = strings.TrimSpace(p.SKU)
	switch {
	case p.Name == "":
		return p, invalid("product name is required")
	case p.CostPrice.IsNegative():
		return p, invalid("cost price must not be negative")
	case p.SellingPrice.IsNegative():
		return p, invalid("selling price must not be negative")
	case p.Stock < 0:
		return p, invalid("stock must not be negative")
	case p.MinStock < 0:
		return p, invalid("minimum stock must not be negative")
	}
	return p, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	_, shopID, err := s.shopScope()
	if err != nil {
		return nil, err
	}
	return s.gateway.ListCategories(ctx, shopID)
}

func (s *Service) CreateCategory(ctx context.Context, input domain.Category) (domain.Category, error) {
	_, shopID, err := s.shopScope()
	if err != nil {
		return domain.Category{}, err
	}
	if input.Name = strings.TrimSpace(input.Name); input.Name == "" {
		return domain.Category{}, invalid("category name is required")
	}
	input.ID = ""
	input.ShopID = shopID
	return s.gateway.CreateCategory(ctx, input)
}

func (s *Service) UpdateCategory(ctx context.Context, id string, input domain.Category) (domain.Category, error) {
	_, shopID, err := s.shopScope()
	if err != nil {
		return domain.Category{}, err
	}
	if id, err = requireID(id, "category"); err != nil {
		return domain.Category{}, err
	}
	if input.Name = strings.TrimSpace(input.Name); input.Name == "" {
		return domain.Category{}, invalid("category name is required")
	}
	input.ID = id
	input.ShopID = shopID
	return s.gateway.UpdateCategory(ctx, id, input)
}

func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	if _, _, err := s.shopScope(); err != nil {
		return err
	}
	id, err := requireID(id, "category")
	if err != nil {
		return err
	}
	return s.gateway.DeleteCategory(ctx, id)
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	_, shopID, err := s.shopScope()
	if err != nil {
		return nil, err
	}
	return s.gateway.ListSuppliers(ctx, shopID)
}

func (s *Service) CreateSupplier(ctx context.Context, input domain.Supplier) (domain.Supplier, error) {
	_, shopID, err := s.shopScope()
	if err != nil {
		return domain.Supplier{}, err
	}
	if input.Name = strings.TrimSpace(input.Name); input.Name == "" {
		return domain.Supplier{}, invalid("supplier name is required")
	}
	input.ID = ""
	input.ShopID = shopID
	return s.gateway.CreateSupplier(ctx, input)
}

func (s *Service) UpdateSupplier(ctx context.Context, id string, input domain.Supplier) (domain.Supplier, error) {
	_, shopID, err := s.shopScope()
	if err != nil {
		return domain.Supplier{}, err
	}
	if id, err = requireID(id, "supplier"); err != nil {
		return domain.Supplier{}, err
	}
	if input.Name = strings.TrimSpace(input.Name); input.Name == "" {
		return domain.Supplier{}, invalid("supplier name is required")
	}
	input.ID = id
	input.ShopID = shopID
	return s.gateway.UpdateSupplier(ctx, id, input)
}

func (s *Service) DeleteSupplier(ctx context.Context, id string) error {
	if _, _, err := s.shopScope(); err != nil {
		return err
	}
	id, err := requireID(id, "supplier")
	if err != nil {
		return err
	}
	return s.gateway.DeleteSupplier(ctx, id)
}

func (s *Service) ListDiscounts(ctx context.Context) ([]domain.Discount, error) {
	_, shopID, err := s.shopScope()
	if err != nil {
		return nil, err
	}
	return s.gateway.ListDiscounts(ctx, shopID)
}

func (s *Service) CreateDiscount(ctx context.Context, input domain.Discount) (domain.Discount, error) {
	_, shopID, err := s.shopScope()
	if err != nil {
		return domain.Discount{}, err
	}
	if input, err = normalizeDiscount(input); err != nil {
		return domain.Discount{}, err
	}
	input.ID = ""
	input.ShopID = shopID
	return s.gateway.CreateDiscount(ctx, input)
}

func (s *Service) UpdateDiscount(ctx context.Context, id string, input domain.Discount) (domain.Discount, error) {
	_, shopID, err := s.shopScope()
	if err != nil {
		return domain.Discount{}, err
	}
	if id, err = requireID(id, "discount"); err != nil {
		return domain.Discount{}, err
	}
	if input, err = normalizeDiscount(input); err != nil {
		return domain.Discount{}, err
	}
	input.ID = id
	input.ShopID = shopID
	return s.gateway.UpdateDiscount(ctx, id, input)
}

func (s *Service) DeleteDiscount(ctx context.Context, id string) error {
	if _, _, err := s.shopScope(); err != nil {
		return err
	}
	id, err := requireID(id, "discount")
	if err != nil {
		return err
	}
	return s.gateway.DeleteDiscount(ctx, id)
}

func normalizeDiscount(d domain.Discount) (domain.Discount, error) {
	d.Name = strings.TrimSpace(d.Name)
	d.Type = strings.ToLower(strings.TrimSpace(d.Type))
	if d.Name == "" {
		return d, invalid("discount name is required")
	}
	switch d.Type {
	case domain.DiscountTypePercentage:
		if d.Value.IsNegative() || d.Value.GreaterThan(hundred) {
			return d, invalid("percentage discount must be between 0 and 100")
		}
	case domain.DiscountTypeFixed:
		if d.Value.IsNegative() {
			return d, invalid("discount value must not be negative")
		}
	default:
		return d, invalid("discount type must be percentage or fixed")
	}
	if d.StartDate != nil && d.EndDate != nil && d.EndDate.Before(*d.StartDate) {
		return d, invalid("discount end date is before its start date")
	}
	return d, nil
}
