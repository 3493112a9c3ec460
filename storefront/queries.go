package storefront

import (
	"context"
	"time"

	"github.com/agentuity/go-query/query"
)

// ProductStaleTime is how long a product detail stays fresh.
const ProductStaleTime = time.Minute

// ProductsQuery pages through the catalog. The previous page stays visible
// while the next one loads.
func ProductsQuery(c *Client, f ProductFilter) query.Options {
	return query.Options{
		Key: ProductKeys.List(f),
		Fn: query.Typed(func(ctx context.Context) (ProductPage, error) {
			page, err := c.ListProducts(ctx, f)
			if err != nil {
				return ProductPage{}, err
			}
			return *page, nil
		}),
		KeepPreviousData: true,
	}
}

func ProductQuery(c *Client, id string) query.Options {
	return query.Options{
		Key: ProductKeys.Detail(id),
		Fn: query.Typed(func(ctx context.Context) (Product, error) {
			p, err := c.GetProduct(ctx, id)
			if err != nil {
				return Product{}, err
			}
			return *p, nil
		}),
		Enabled:   query.Bool(id != ""),
		StaleTime: ProductStaleTime,
	}
}

func OrdersQuery(c *Client, f OrderFilter) query.Options {
	return query.Options{
		Key: OrderKeys.List(f),
		Fn: query.Typed(func(ctx context.Context) ([]Order, error) {
			return c.ListOrders(ctx, f)
		}),
		KeepPreviousData: true,
	}
}

func OrderQuery(c *Client, id string) query.Options {
	return query.Options{
		Key: OrderKeys.Detail(id),
		Fn: query.Typed(func(ctx context.Context) (Order, error) {
			o, err := c.GetOrder(ctx, id)
			if err != nil {
				return Order{}, err
			}
			return *o, nil
		}),
		Enabled: query.Bool(id != ""),
	}
}

func CustomersQuery(c *Client) query.Options {
	return query.Options{
		Key: CustomerKeys.List(),
		Fn: query.Typed(func(ctx context.Context) ([]Customer, error) {
			return c.ListCustomers(ctx)
		}),
	}
}

func CartQuery(c *Client, cartID string) query.Options {
	return query.Options{
		Key: CartKeys.Detail(cartID),
		Fn: query.Typed(func(ctx context.Context) (Cart, error) {
			cart, err := c.GetCart(ctx, cartID)
			if err != nil {
				return Cart{}, err
			}
			return *cart, nil
		}),
		Enabled: query.Bool(cartID != ""),
	}
}

// snapshot is the cache content saved before an optimistic write.
type snapshot struct {
	data any
	ok   bool
}

func take(qc *query.Client, k any) snapshot {
	data, ok := qc.GetQueryData(k)
	return snapshot{data: data, ok: ok}
}

func (s snapshot) restore(qc *query.Client, k any) {
	if s.ok {
		qc.SetQueryData(k, s.data)
		return
	}
	qc.RemoveQueries(query.Filter{Key: k, Exact: true})
}

func invalidate(ctx context.Context, qc *query.Client, keys ...any) {
	for _, k := range keys {
		// refetch failures surface through the affected queries
		_ = qc.InvalidateQueries(ctx, query.Filter{Key: k})
	}
}

type UpdateProductVars struct {
	ID     string
	Update ProductUpdate
}

// UpdateProductMutation writes the update into the cached product right
// away, restores the previous value when the request fails and refreshes
// the product lists afterwards.
func UpdateProductMutation(qc *query.Client, c *Client) query.MutationOptions {
	return query.MutationOptions{
		OnMutate: func(_ context.Context, vars any) (any, error) {
			v, ok := vars.(UpdateProductVars)
			if !ok {
				return nil, nil
			}
			k := ProductKeys.Detail(v.ID)
			snap := take(qc, k)
			if snap.ok {
				query.UpdateData(qc, k, func(old Product, ok bool) Product {
					return v.Update.Apply(old)
				})
			}
			return snap, nil
		},
		Fn: query.TypedMutation(func(ctx context.Context, v UpdateProductVars) (Product, error) {
			p, err := c.UpdateProduct(ctx, v.ID, v.Update)
			if err != nil {
				return Product{}, err
			}
			return *p, nil
		}),
		OnSuccess: func(_ context.Context, data, vars, _ any) {
			qc.SetQueryData(ProductKeys.Detail(vars.(UpdateProductVars).ID), data)
		},
		OnError: func(_ context.Context, _ error, vars, mutationCtx any) {
			if snap, ok := mutationCtx.(snapshot); ok {
				snap.restore(qc, ProductKeys.Detail(vars.(UpdateProductVars).ID))
			}
		},
		OnSettled: func(ctx context.Context, _ any, _ error, _, _ any) {
			invalidate(ctx, qc, ProductKeys.Lists())
		},
	}
}

type AddToCartVars struct {
	CartID string
	Item   CartItem
}

// AddToCartMutation adds the item to the cached cart before the request
// completes and rolls back on failure.
func AddToCartMutation(qc *query.Client, c *Client) query.MutationOptions {
	return query.MutationOptions{
		OnMutate: func(_ context.Context, vars any) (any, error) {
			v, ok := vars.(AddToCartVars)
			if !ok {
				return nil, nil
			}
			k := CartKeys.Detail(v.CartID)
			snap := take(qc, k)
			query.UpdateData(qc, k, func(old Cart, ok bool) Cart {
				if !ok {
					old = Cart{ID: v.CartID}
				}
				return old.WithItem(v.Item)
			})
			return snap, nil
		},
		Fn: query.TypedMutation(func(ctx context.Context, v AddToCartVars) (Cart, error) {
			cart, err := c.AddToCart(ctx, v.CartID, v.Item)
			if err != nil {
				return Cart{}, err
			}
			return *cart, nil
		}),
		OnSuccess: func(_ context.Context, data, vars, _ any) {
			qc.SetQueryData(CartKeys.Detail(vars.(AddToCartVars).CartID), data)
		},
		OnError: func(_ context.Context, _ error, vars, mutationCtx any) {
			if snap, ok := mutationCtx.(snapshot); ok {
				snap.restore(qc, CartKeys.Detail(vars.(AddToCartVars).CartID))
			}
		},
	}
}

type RemoveFromCartVars struct {
	CartID    string
	ProductID string
}

func RemoveFromCartMutation(qc *query.Client, c *Client) query.MutationOptions {
	return query.MutationOptions{
		OnMutate: func(_ context.Context, vars any) (any, error) {
			v, ok := vars.(RemoveFromCartVars)
			if !ok {
				return nil, nil
			}
			k := CartKeys.Detail(v.CartID)
			snap := take(qc, k)
			if snap.ok {
				query.UpdateData(qc, k, func(old Cart, ok bool) Cart {
					return old.WithoutItem(v.ProductID)
				})
			}
			return snap, nil
		},
		Fn: query.TypedMutation(func(ctx context.Context, v RemoveFromCartVars) (Cart, error) {
			cart, err := c.RemoveFromCart(ctx, v.CartID, v.ProductID)
			if err != nil {
				return Cart{}, err
			}
			return *cart, nil
		}),
		OnSuccess: func(_ context.Context, data, vars, _ any) {
			qc.SetQueryData(CartKeys.Detail(vars.(RemoveFromCartVars).CartID), data)
		},
		OnError: func(_ context.Context, _ error, vars, mutationCtx any) {
			if snap, ok := mutationCtx.(snapshot); ok {
				snap.restore(qc, CartKeys.Detail(vars.(RemoveFromCartVars).CartID))
			}
		},
	}
}

// CreateOrderMutation checks out and refreshes the order lists and carts.
func CreateOrderMutation(qc *query.Client, c *Client) query.MutationOptions {
	return query.MutationOptions{
		Fn: query.TypedMutation(func(ctx context.Context, n NewOrder) (Order, error) {
			o, err := c.CreateOrder(ctx, n)
			if err != nil {
				return Order{}, err
			}
			return *o, nil
		}),
		OnSuccess: func(ctx context.Context, data, _, _ any) {
			o := data.(Order)
			qc.SetQueryData(OrderKeys.Detail(o.ID), o)
			invalidate(ctx, qc, OrderKeys.Lists(), CartKeys.All())
		},
	}
}

type UpdateOrderStatusVars struct {
	ID     string
	Status OrderStatus
}

func UpdateOrderStatusMutation(qc *query.Client, c *Client) query.MutationOptions {
	return query.MutationOptions{
		Fn: query.TypedMutation(func(ctx context.Context, v UpdateOrderStatusVars) (Order, error) {
			o, err := c.UpdateOrderStatus(ctx, v.ID, v.Status)
			if err != nil {
				return Order{}, err
			}
			return *o, nil
		}),
		OnSuccess: func(ctx context.Context, data, _, _ any) {
			o := data.(Order)
			qc.SetQueryData(OrderKeys.Detail(o.ID), o)
			invalidate(ctx, qc, OrderKeys.Lists())
		},
	}
}
