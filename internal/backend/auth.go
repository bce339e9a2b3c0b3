package backend

import (
	"context"
	"net/http"

	"retailpos/terminal/internal/domain"
)

// Login exchanges credentials for a bearer token and the cashier profile.
func (c *Client) Login(ctx context.Context, input domain.LoginRequest) (domain.LoginResult, error) {
	return fetch[domain.LoginResult](ctx, c, call{
		method: http.MethodPost,
		route:  "/api/auth/login",
		path:   "/api/auth/login",
		body:   input,
		public: true,
	})
}
