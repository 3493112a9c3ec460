package storefront

import (
	"context"
	"net/http"
	"net/url"
)

func withQuery(p string, v url.Values) string {
	if len(v) == 0 {
		return p
	}
	return p + "?" + v.Encode()
}

func (c *Client) ListProducts(ctx context.Context, f ProductFilter) (*ProductPage, error) {
	var page ProductPage
	if err := c.Do(ctx, http.MethodGet, withQuery("/products", f.values()), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) GetProduct(ctx context.Context, id string) (*Product, error) {
	var p Product
	if err := c.Do(ctx, http.MethodGet, "/products/"+url.PathEscape(id), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) UpdateProduct(ctx context.Context, id string, u ProductUpdate) (*Product, error) {
	var p Product
	if err := c.Do(ctx, http.MethodPatch, "/products/"+url.PathEscape(id), u, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) ListOrders(ctx context.Context, f OrderFilter) ([]Order, error) {
	var orders []Order
	if err := c.Do(ctx, http.MethodGet, withQuery("/orders", f.values()), nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (c *Client) GetOrder(ctx context.Context, id string) (*Order, error) {
	var o Order
	if err := c.Do(ctx, http.MethodGet, "/orders/"+url.PathEscape(id), nil, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (c *Client) CreateOrder(ctx context.Context, n NewOrder) (*Order, error) {
	var o Order
	if err := c.Do(ctx, http.MethodPost, "/orders", n, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (c *Client) UpdateOrderStatus(ctx context.Context, id string, status OrderStatus) (*Order, error) {
	var o Order
	payload := map[string]OrderStatus{"status": status}
	if err := c.Do(ctx, http.MethodPatch, "/orders/"+url.PathEscape(id)+"/status", payload, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (c *Client) ListCustomers(ctx context.Context) ([]Customer, error) {
	var customers []Customer
	if err := c.Do(ctx, http.MethodGet, "/customers", nil, &customers); err != nil {
		return nil, err
	}
	return customers, nil
}

func (c *Client) GetCart(ctx context.Context, cartID string) (*Cart, error) {
	var cart Cart
	if err := c.Do(ctx, http.MethodGet, "/carts/"+url.PathEscape(cartID), nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

func (c *Client) AddToCart(ctx context.Context, cartID string, item CartItem) (*Cart, error) {
	var cart Cart
	if err := c.Do(ctx, http.MethodPost, "/carts/"+url.PathEscape(cartID)+"/items", item, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

func (c *Client) RemoveFromCart(ctx context.Context, cartID, productID string) (*Cart, error) {
	var cart Cart
	p := "/carts/" + url.PathEscape(cartID) + "/items/" + url.PathEscape(productID)
	if err := c.Do(ctx, http.MethodDelete, p, nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}
