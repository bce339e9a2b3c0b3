package backend

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"retailpos/terminal/internal/domain"
)

func (c *Client) products() resource[domain.Product] {
	return resource[domain.Product]{client: c, base: "/api/products"}
}

// ListProducts returns the shop's catalog, optionally filtered.
func (c *Client) ListProducts(ctx context.Context, shopID string, query domain.ProductQuery) ([]domain.Product, error) {
	params := url.Values{}
	if search := strings.TrimSpace(query.Search); search != "" {
		params.Set("search", search)
	}
	if query.LowStock {
		params.Set("lowStock", "true")
	}
	if category := strings.TrimSpace(query.Category); category != "" {
		params.Set("category", category)
	}

	items, err := fetch[[]domain.Product](ctx, c, call{
		method: http.MethodGet,
		route:  "/api/products/shop/{shopId}",
		path:   "/api/products/shop/" + pathID(shopID),
		query:  params,
	})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Product{}
	}
	return items, nil
}

func (c *Client) SearchProducts(ctx context.Context, shopID string, query domain.ProductQuery) ([]domain.Product, error) {
	items, err := fetch[[]domain.Product](ctx, c, call{
		method: http.MethodPost,
		route:  "/api/products/search",
		path:   "/api/products/search",
		body:   domain.ProductSearchRequest{ShopID: shopID, ProductQuery: query},
	})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Product{}
	}
	return items, nil
}

func (c *Client) ProductByBarcode(ctx context.Context, code string) (domain.Product, error) {
	return fetch[domain.Product](ctx, c, call{
		method: http.MethodGet,
		route:  "/api/products/barcode/{code}",
		path:   "/api/products/barcode/" + pathID(code),
	})
}

func (c *Client) CreateProduct(ctx context.Context, input domain.Product) (domain.Product, error) {
	return c.products().create(ctx, input)
}

func (c *Client) UpdateProduct(ctx context.Context, id string, input domain.Product) (domain.Product, error) {
	return c.products().update(ctx, id, input)
}

func (c *Client) DeleteProduct(ctx context.Context, id string) error {
	return c.products().remove(ctx, id)
}

// DecrementStock reports sold quantities for every line of a sale in one call.
func (c *Client) DecrementStock(ctx context.Context, input domain.StockDecrementRequest) error {
	return c.send(ctx, call{
		method: http.MethodPut,
		route:  "/api/products/stock",
		path:   "/api/products/stock",
		body:   input,
	}, nil)
}
