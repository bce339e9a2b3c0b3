package backend

import (
	"context"
	"net/http"

	"retailpos/terminal/internal/domain"
)

// CreateSale records a completed sale.
func (c *Client) CreateSale(ctx context.Context, input domain.SaleRequest) (domain.Sale, error) {
	return fetch[domain.Sale](ctx, c, call{
		method: http.MethodPost,
		route:  "/api/sales",
		path:   "/api/sales",
		body:   input,
	})
}

// Chat forwards a question to the backend shop assistant.
func (c *Client) Chat(ctx context.Context, input domain.ChatRequest) (domain.ChatReply, error) {
	return fetch[domain.ChatReply](ctx, c, call{
		method: http.MethodPost,
		route:  "/api/afia/chat",
		path:   "/api/afia/chat",
		body:   input,
	})
}
