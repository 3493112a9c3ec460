package storefront

type productKeys struct{}

// ProductKeys builds the query keys of product data. Every product key
// starts with All, so invalidating All covers lists and details.
var ProductKeys productKeys

func (productKeys) All() []any { return []any{"products"} }
func (productKeys) Lists() []any { return []any{"products", "list"} }
func (productKeys) List(f ProductFilter) []any { return []any{"products", "list", f} }
func (productKeys) Details() []any { return []any{"products", "detail"} }
func (productKeys) Detail(id string) []any { return []any{"products", "detail", id} }

type orderKeys struct{}

// OrderKeys builds the query keys of order data.
var OrderKeys orderKeys

func (orderKeys) All() []any { return []any{"orders"} }
func (orderKeys) Lists() []any { return []any{"orders", "list"} }
func (orderKeys) List(f OrderFilter) []any { return []any{"orders", "list", f} }
func (orderKeys) Detail(id string) []any { return []any{"orders", "detail", id} }

type customerKeys struct{}

// CustomerKeys builds the query keys of customer data.
var CustomerKeys customerKeys

func (customerKeys) All() []any { return []any{"customers"} }
func (customerKeys) List() []any { return []any{"customers", "list"} }

type cartKeys struct{}

// CartKeys builds the query keys of carts.
var CartKeys cartKeys

func (cartKeys) All() []any { return []any{"cart"} }
func (cartKeys) Detail(cartID string) []any { return []any{"cart", cartID} }
