package storefront

import (
	"net/url"
	"strconv"
	"time"
)

type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	Price       float64   `json:"price"`
	Stock       int       `json:"stock"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ProductFilter selects a page of products. It is also part of the list
// query key, so equal filters share a cache entry.
type ProductFilter struct {
	Page     int    `json:"page,omitempty"`
	PageSize int    `json:"pageSize,omitempty"`
	Category string `json:"category,omitempty"`
	Search   string `json:"search,omitempty"`
}

func (f ProductFilter) values() url.Values {
	v := url.Values{}
	if f.Page > 0 {
		v.Set("page", strconv.Itoa(f.Page))
	}
	if f.PageSize > 0 {
		v.Set("pageSize", strconv.Itoa(f.PageSize))
	}
	if f.Category != "" {
		v.Set("category", f.Category)
	}
	if f.Search != "" {
		v.Set("q", f.Search)
	}
	return v
}

type ProductPage struct {
	Items []Product `json:"items"`
	Page  int       `json:"page"`
	Total int       `json:"total"`
}

// ProductUpdate is a partial product write; nil fields are left unchanged.
type ProductUpdate struct {
	Name  *string  `json:"name,omitempty"`
	Price *float64 `json:"price,omitempty"`
	Stock *int     `json:"stock,omitempty"`
}

// Apply returns p with the update applied.
func (u ProductUpdate) Apply(p Product) Product {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Price != nil {
		p.Price = *u.Price
	}
	if u.Stock != nil {
		p.Stock = *u.Stock
	}
	return p
}

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderShipped   OrderStatus = "shipped"
	OrderDelivered OrderStatus = "delivered"
	OrderCancelled OrderStatus = "cancelled"
)

type OrderItem struct {
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

type Order struct {
	ID         string      `json:"id"`
	CustomerID string      `json:"customerId"`
	Items      []OrderItem `json:"items"`
	Status     OrderStatus `json:"status"`
	Total      float64     `json:"total"`
	CreatedAt  time.Time   `json:"createdAt"`
}

type OrderFilter struct {
	Status     OrderStatus `json:"status,omitempty"`
	CustomerID string      `json:"customerId,omitempty"`
	Page       int         `json:"page,omitempty"`
}

func (f OrderFilter) values() url.Values {
	v := url.Values{}
	if f.Status != "" {
		v.Set("status", string(f.Status))
	}
	if f.CustomerID != "" {
		v.Set("customerId", f.CustomerID)
	}
	if f.Page > 0 {
		v.Set("page", strconv.Itoa(f.Page))
	}
	return v
}

// NewOrder is the checkout payload. When CartID is set the backend empties
// that cart.
type NewOrder struct {
	CustomerID string      `json:"customerId"`
	CartID     string      `json:"cartId,omitempty"`
	Items      []OrderItem `json:"items"`
}

type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type CartItem struct {
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
}

type Cart struct {
	ID    string     `json:"id"`
	Items []CartItem `json:"items"`
	Total float64    `json:"total"`
}

// WithItem returns a copy of c with item merged in by product.
func (c Cart) WithItem(item CartItem) Cart {
	items := make([]CartItem, 0, len(c.Items)+1)
	merged := false
	for _, it := range c.Items {
		if it.ProductID == item.ProductID {
			it.Quantity += item.Quantity
			merged = true
		}
		items = append(items, it)
	}
	if !merged {
		items = append(items, item)
	}
	c.Items = items
	c.Total = total(items)
	return c
}

// WithoutItem returns a copy of c without the product.
func (c Cart) WithoutItem(productID string) Cart {
	items := make([]CartItem, 0, len(c.Items))
	for _, it := range c.Items {
		if it.ProductID != productID {
			items = append(items, it)
		}
	}
	c.Items = items
	c.Total = total(items)
	return c
}

func total(items []CartItem) float64 {
	var sum float64
	for _, it := range items {
		sum += it.Price * float64(it.Quantity)
	}
	return sum
}
