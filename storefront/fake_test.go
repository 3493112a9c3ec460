package storefront

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentuity/go-query/logger"
	"github.com/agentuity/go-query/query"
)

// fakeShop is an in-memory storefront backend.
type fakeShop struct {
	mu        sync.Mutex
	products  map[string]Product
	carts     map[string]Cart
	orders    map[string]Order
	customers []Customer
	failWrite atomic.Int32
	requests  atomic.Int32
	token     string
}

func newFakeShop() *fakeShop {
	return &fakeShop{
		products: map[string]Product{
			"p1": {ID: "p1", Name: "Mug", Price: 12, Stock: 5},
			"p2": {ID: "p2", Name: "Shirt", Price: 25, Stock: 2},
		},
		carts:     map[string]Cart{"c1": {ID: "c1"}},
		orders:    map[string]Order{},
		customers: []Customer{{ID: "u1", Name: "Ana", Email: "ana@example.com"}},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *fakeShop) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /products", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		var items []Product
		for _, id := range []string{"p1", "p2"} {
			items = append(items, s.products[id])
		}
		writeJSON(w, http.StatusOK, ProductPage{Items: items, Page: page, Total: len(items)})
	})
	mux.HandleFunc("GET /products/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		p, ok := s.products[r.PathValue("id")]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "product not found"})
			return
		}
		writeJSON(w, http.StatusOK, p)
	})
	mux.HandleFunc("PATCH /products/{id}", func(w http.ResponseWriter, r *http.Request) {
		if s.failWrite.Load() > 0 {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"message": "validation failed",
				"issues":  []map[string]any{{"code": "too_small", "message": "price must be positive", "path": []string{"price"}}},
			})
			return
		}
		var u ProductUpdate
		if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		p := u.Apply(s.products[r.PathValue("id")])
		s.products[p.ID] = p
		writeJSON(w, http.StatusOK, p)
	})
	mux.HandleFunc("GET /orders", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		out := []Order{}
		for _, o := range s.orders {
			if st := r.URL.Query().Get("status"); st != "" && string(o.Status) != st {
				continue
			}
			out = append(out, o)
		}
		writeJSON(w, http.StatusOK, out)
	})
	mux.HandleFunc("GET /orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		writeJSON(w, http.StatusOK, s.orders[r.PathValue("id")])
	})
	mux.HandleFunc("POST /orders", func(w http.ResponseWriter, r *http.Request) {
		var n NewOrder
		_ = json.NewDecoder(r.Body).Decode(&n)
		s.mu.Lock()
		defer s.mu.Unlock()
		o := Order{ID: "o" + strconv.Itoa(len(s.orders)+1), CustomerID: n.CustomerID, Items: n.Items, Status: OrderPending}
		for _, it := range n.Items {
			o.Total += it.Price * float64(it.Quantity)
		}
		s.orders[o.ID] = o
		if n.CartID != "" {
			s.carts[n.CartID] = Cart{ID: n.CartID}
		}
		writeJSON(w, http.StatusCreated, o)
	})
	mux.HandleFunc("PATCH /orders/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Status OrderStatus `json:"status"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		s.mu.Lock()
		defer s.mu.Unlock()
		o := s.orders[r.PathValue("id")]
		o.Status = body.Status
		s.orders[o.ID] = o
		writeJSON(w, http.StatusOK, o)
	})
	mux.HandleFunc("GET /customers", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		token := s.token
		s.mu.Unlock()
		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "unauthorized"})
			return
		}
		writeJSON(w, http.StatusOK, s.customers)
	})
	mux.HandleFunc("GET /carts/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		writeJSON(w, http.StatusOK, s.carts[r.PathValue("id")])
	})
	mux.HandleFunc("POST /carts/{id}/items", func(w http.ResponseWriter, r *http.Request) {
		if s.failWrite.Load() > 0 {
			writeJSON(w, http.StatusConflict, map[string]string{"message": "out of stock"})
			return
		}
		var item CartItem
		_ = json.NewDecoder(r.Body).Decode(&item)
		s.mu.Lock()
		defer s.mu.Unlock()
		cart := s.carts[r.PathValue("id")].WithItem(item)
		s.carts[cart.ID] = cart
		writeJSON(w, http.StatusOK, cart)
	})
	mux.HandleFunc("DELETE /carts/{id}/items/{product}", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		cart := s.carts[r.PathValue("id")].WithoutItem(r.PathValue("product"))
		s.carts[cart.ID] = cart
		writeJSON(w, http.StatusOK, cart)
	})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		mux.ServeHTTP(w, r)
	})
}

func (s *fakeShop) requireToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

type fixture struct {
	shop   *fakeShop
	api    *Client
	client *query.Client
	log    *logger.TestLogger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	shop := newFakeShop()
	srv := httptest.NewServer(shop.handler())
	t.Cleanup(srv.Close)
	log := logger.NewTestLogger()
	qc := query.New(context.Background(),
		query.WithLogger(log),
		query.WithGCInterval(query.Forever),
		query.WithRetryDelay(query.ConstantDelay(time.Millisecond)),
	)
	t.Cleanup(func() { qc.Close() })
	return &fixture{
		shop:   shop,
		api:    New(log, srv.URL, "", WithHTTPClient(srv.Client())),
		client: qc,
		log:    log,
	}
}
