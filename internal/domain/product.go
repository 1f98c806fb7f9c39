package domain

// Product stock is only ever written by the products service in response to a
// validated order.created event. Price and TotalAmount are integer cents.
type Product struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
	Stock int    `json:"stock"`
}
