package domain

import "errors"

var (
	ErrLineNotFound = errors.New("cart line not found")
	ErrInvalidInput = errors.New("invalid input")
)

// CartStatus follows the checkout lifecycle of a server cart.
type CartStatus string

const (
	CartActive     CartStatus = "active"
	CartAbandoning CartStatus = "abandoning"
	CartAbandoned  CartStatus = "abandoned"
	CartCompleted  CartStatus = "completed"
)

// CartHeader identifies the server cart the local mirror shadows.
type CartHeader struct {
	CartID string     `json:"cart_id"`
	Status CartStatus `json:"status"`
}

// CartLine is one line item of the cart. Quantity is always >= 1;
// a quantity of zero is expressed by removing the line.
type CartLine struct {
	LineID    string  `json:"line_id"`
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// Product is a catalog entry as returned by the search endpoint.
type Product struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}
