package api

import "context"

// Doer sends one request to the backend. *Client implements it.
type Doer interface {
	Do(ctx context.Context, method, path string, body, out any, opts ...RequestOption) error
}

var _ Doer = (*Client)(nil)
