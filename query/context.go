package query

import "context"

type clientKey struct{}

// WithClient returns a context carrying c, making it available to the code
// below through FromContext.
func WithClient(ctx context.Context, c *Client) context.Context {
	return context.WithValue(ctx, clientKey{}, c)
}

// ClientFromContext returns the client carried by ctx.
func ClientFromContext(ctx context.Context) (*Client, bool) {
	c, ok := ctx.Value(clientKey{}).(*Client)
	return c, ok && c != nil
}

// FromContext returns the client carried by ctx and panics when there is
// none, since using the cache without a client is a wiring mistake.
func FromContext(ctx context.Context) *Client {
	c, ok := ClientFromContext(ctx)
	if !ok {
		programmerError("query: no Client in context, use query.WithClient")
	}
	return c
}
