package backend

import (
	"context"
	"net/http"
)

// resource covers the list/create/update/delete endpoints that every
// shop-scoped collection exposes under the same path layout.
type resource[T any] struct {
	client *Client
	base   string
}

func (r resource[T]) list(ctx context.Context, shopID string) ([]T, error) {
	items, err := fetch[[]T](ctx, r.client, call{
		method: http.MethodGet,
		route:  r.base + "/shop/{shopId}",
		path:   r.base + "/shop/" + pathID(shopID),
	})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

func (r resource[T]) get(ctx context.Context, id string) (T, error) {
	return fetch[T](ctx, r.client, call{
		method: http.MethodGet,
		route:  r.base + "/{id}",
		path:   r.base + "/" + pathID(id),
	})
}

func (r resource[T]) create(ctx context.Context, input T) (T, error) {
	return fetch[T](ctx, r.client, call{
		method: http.MethodPost,
		route:  r.base,
		path:   r.base,
		body:   input,
	})
}

func (r resource[T]) update(ctx context.Context, id string, input T) (T, error) {
	return fetch[T](ctx, r.client, call{
		method: http.MethodPut,
		route:  r.base + "/{id}",
		path:   r.base + "/" + pathID(id),
		body:   input,
	})
}

func (r resource[T]) remove(ctx context.Context, id string) error {
	return r.client.send(ctx, call{
		method: http.MethodDelete,
		route:  r.base + "/{id}",
		path:   r.base + "/" + pathID(id),
	}, nil)
}
