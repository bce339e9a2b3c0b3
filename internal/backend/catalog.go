package backend

import (
	"context"
	"net/http"

	"retailpos/terminal/internal/domain"
)

func (c *Client) ListCategories(ctx context.Context, shopID string) ([]domain.Category, error) {
	return resource[domain.Category]{client: c, base: "/api/categories"}.list(ctx, shopID)
}

func (c *Client) CreateCategory(ctx context.Context, input domain.Category) (domain.Category, error) {
	return resource[domain.Category]{client: c, base: "/api/categories"}.create(ctx, input)
}

func (c *Client) UpdateCategory(ctx context.Context, id string, input domain.Category) (domain.Category, error) {
	return resource[domain.Category]{client: c, base: "/api/categories"}.update(ctx, id, input)
}

func (c *Client) DeleteCategory(ctx context.Context, id string) error {
	return resource[domain.Category]{client: c, base: "/api/categories"}.remove(ctx, id)
}

func (c *Client) ListSuppliers(ctx context.Context, shopID string) ([]domain.Supplier, error) {
	return resource[domain.Supplier]{client: c, base: "/api/suppliers"}.list(ctx, shopID)
}

func (c *Client) CreateSupplier(ctx context.Context, input domain.Supplier) (domain.Supplier, error) {
	return resource[domain.Supplier]{client: c, base: "/api/suppliers"}.create(ctx, input)
}

func (c *Client) UpdateSupplier(ctx context.Context, id string, input domain.Supplier) (domain.Supplier, error) {
	return resource[domain.Supplier]{client: c, base: "/api/suppliers"}.update(ctx, id, input)
}

func (c *Client) DeleteSupplier(ctx context.Context, id string) error {
	return resource[domain.Supplier]{client: c, base: "/api/suppliers"}.remove(ctx, id)
}

func (c *Client) ListDiscounts(ctx context.Context, shopID string) ([]domain.Discount, error) {
	return resource[domain.Discount]{client: c, base: "/api/discounts"}.list(ctx, shopID)
}

func (c *Client) CreateDiscount(ctx context.Context, input domain.Discount) (domain.Discount, error) {
	return resource[domain.Discount]{client: c, base: "/api/discounts"}.create(ctx, input)
}

func (c *Client) UpdateDiscount(ctx context.Context, id string, input domain.Discount) (domain.Discount, error) {
	return resource[domain.Discount]{client: c, base: "/api/discounts"}.update(ctx, id, input)
}

func (c *Client) DeleteDiscount(ctx context.Context, id string) error {
	return resource[domain.Discount]{client: c, base: "/api/discounts"}.remove(ctx, id)
}

func (c *Client) ListShops(ctx context.Context) ([]domain.Shop, error) {
	shops, err := fetch[[]domain.Shop](ctx, c, call{
		method: http.MethodGet,
		route:  "/api/shops",
		path:   "/api/shops",
	})
	if err != nil {
		return nil, err
	}
	if shops == nil {
		shops = []domain.Shop{}
	}
	return shops, nil
}

func (c *Client) GetShop(ctx context.Context, id string) (domain.Shop, error) {
	return resource[domain.Shop]{client: c, base: "/api/shops"}.get(ctx, id)
}

func (c *Client) DashboardSummary(ctx context.Context, shopID string) (domain.DashboardSummary, error) {
	return fetch[domain.DashboardSummary](ctx, c, call{
		method: http.MethodGet,
		route:  "/api/dashboard/summary/{shopId}",
		path:   "/api/dashboard/summary/" + pathID(shopID),
	})
}
