package storefront

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agentuity/go-query/logger"
	"github.com/agentuity/go-query/query"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResources(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	page, err := f.api.ListProducts(ctx, ProductFilter{Page: 2})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 2, page.Page)

	p, err := f.api.GetProduct(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Mug", p.Name)

	price := 15.0
	p, err = f.api.UpdateProduct(ctx, "p1", ProductUpdate{Price: &price})
	require.NoError(t, err)
	assert.Equal(t, 15.0, p.Price)
	assert.Equal(t, "Mug", p.Name)

	cart, err := f.api.AddToCart(ctx, "c1", CartItem{ProductID: "p1", Quantity: 2, Price: 15})
	require.NoError(t, err)
	assert.Equal(t, 30.0, cart.Total)
	cart, err = f.api.RemoveFromCart(ctx, "c1", "p1")
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	o, err := f.api.CreateOrder(ctx, NewOrder{CustomerID: "u1", Items: []OrderItem{{ProductID: "p2", Quantity: 1, Price: 25}}})
	require.NoError(t, err)
	assert.Equal(t, OrderPending, o.Status)
	o, err = f.api.UpdateOrderStatus(ctx, o.ID, OrderPaid)
	require.NoError(t, err)
	assert.Equal(t, OrderPaid, o.Status)
	orders, err := f.api.ListOrders(ctx, OrderFilter{Status: OrderPaid})
	require.NoError(t, err)
	assert.Len(t, orders, 1)
	got, err := f.api.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)

	customers, err := f.api.ListCustomers(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Ana", customers[0].Name)
}

func TestErrorClassification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.api.GetProduct(ctx, "missing")
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode())
	assert.Equal(t, "product not found", err.Error())
	assert.True(t, query.IsClientError(err))

	f.shop.requireToken("secret")
	_, err = f.api.ListCustomers(ctx)
	assert.True(t, query.IsAuthError(err))

	f.shop.failWrite.Store(1)
	price := -1.0
	_, err = f.api.UpdateProduct(ctx, "p1", ProductUpdate{Price: &price})
	assert.ErrorContains(t, err, "price must be positive (too_small) price")
}

func TestNetworkErrorIsMarked(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	api := New(logger.NewTestLogger(), url, "")
	_, err := api.GetProduct(context.Background(), "p1")
	assert.True(t, query.IsNetworkError(err))
}

func TestRequestHeaders(t *testing.T) {
	var auth, agent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		agent = r.Header.Get("User-Agent")
		assert.Equal(t, "/api/customers", r.URL.Path)
		writeJSON(w, http.StatusOK, []Customer{})
	}))
	defer srv.Close()
	api := New(logger.NewTestLogger(), srv.URL+"/api", "tok")
	_, err := api.ListCustomers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", auth)
	assert.Contains(t, agent, "Storefront Client/")
}

func TestBodyPreview(t *testing.T) {
	assert.Equal(t, `{"a":1}`, bodyPreview([]byte(`{"a":1}`), "application/json", 200))
	assert.Contains(t, bodyPreview([]byte("abcdef"), "text/plain", 3), "[truncated, total: 6 chars]")
	assert.Contains(t, bodyPreview([]byte{0, 1, 2}, "image/png", 200), "sha256=")
}

func TestCart(t *testing.T) {
	c := Cart{ID: "c"}.WithItem(CartItem{ProductID: "a", Quantity: 1, Price: 2})
	c = c.WithItem(CartItem{ProductID: "a", Quantity: 2, Price: 2})
	assert.Len(t, c.Items, 1)
	assert.Equal(t, 3, c.Items[0].Quantity)
	assert.Equal(t, 6.0, c.Total)
	assert.Empty(t, c.WithoutItem("a").Items)
}
