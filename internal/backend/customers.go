package backend

import (
	"context"
	"net/http"

	"retailpos/terminal/internal/domain"
)

func (c *Client) customers() resource[domain.Customer] {
	return resource[domain.Customer]{client: c, base: "/api/customers"}
}

func (c *Client) ListCustomers(ctx context.Context, shopID string) ([]domain.Customer, error) {
	return c.customers().list(ctx, shopID)
}

func (c *Client) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	return c.customers().get(ctx, id)
}

func (c *Client) CreateCustomer(ctx context.Context, input domain.Customer) (domain.Customer, error) {
	return c.customers().create(ctx, input)
}

func (c *Client) UpdateCustomer(ctx context.Context, id string, input domain.Customer) (domain.Customer, error) {
	return c.customers().update(ctx, id, input)
}

// AddLoyaltyPoints credits (or, with negative points, debits) a customer.
func (c *Client) AddLoyaltyPoints(ctx context.Context, id string, input domain.LoyaltyRequest) (domain.Customer, error) {
	return fetch[domain.Customer](ctx, c, call{
		method: http.MethodPost,
		route:  "/api/customers/{id}/loyalty",
		path:   "/api/customers/" + pathID(id) + "/loyalty",
		body:   input,
	})
}
