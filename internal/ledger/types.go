package ledger

import (
	"strings"
	"time"

	"scrappos/internal/numeric"
)

// Mode selects which catalog price applies to new items.
// An order's type is fixed to the mode of its first item.
type Mode string

const (
	ModePurchase Mode = "purchase" // the yard buys material from the customer
	ModeSale     Mode = "sale"     // the yard sells material to the customer
)

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	return m == ModePurchase || m == ModeSale
}

// OrderStatus: "open" | "completed"
type OrderStatus string

const (
	StatusOpen      OrderStatus = "open"
	StatusCompleted OrderStatus = "completed"
)

// Material is the catalog entry a line item is priced from.
type Material struct {
	ID            string
	Name          string
	PurchasePrice float64
	SalePrice     float64
}

// PriceFor returns the unit price that applies under mode.
func (m Material) PriceFor(mode Mode) float64 {
	if mode == ModeSale {
		return m.SalePrice
	}
	return m.PurchasePrice
}

// OrderItem is one weighed line. Total == Price * NetQuantity().
type OrderItem struct {
	MaterialID   string
	MaterialName string
	Quantity     float64 // gross
	Tare         float64
	Price        float64
	Total        float64
}

// NetQuantity is gross quantity minus tare, never negative.
func (i OrderItem) NetQuantity() float64 {
	return numeric.NetWeight(i.Quantity, i.Tare)
}

// Order is a customer's weighed-goods transaction.
type Order struct {
	ID         string
	CustomerID string
	Status     OrderStatus
	Type       Mode
	Items      []OrderItem
	Total      float64
	CreatedAt  time.Time
}

// Completed reports whether the order has been settled.
func (o Order) Completed() bool { return o.Status == StatusCompleted }

// SignedTotal is the order's effect on the cash drawer: sales bring cash in,
// purchases pay cash out.
func (o Order) SignedTotal() float64 {
	if o.Type == ModePurchase {
		return -o.Total
	}
	return o.Total
}

func (o Order) clone() Order {
	c := o
	c.Items = append([]OrderItem(nil), o.Items...)
	return c
}

// Customer owns its orders in chronological order.
type Customer struct {
	ID     string
	Name   string
	Orders []Order
}

// OpenOrder returns the customer's most recent open order.
func (c Customer) OpenOrder() (Order, bool) {
	for i := len(c.Orders) - 1; i >= 0; i-- {
		if c.Orders[i].Status == StatusOpen {
			return c.Orders[i], true
		}
	}
	return Order{}, false
}

func (c Customer) clone() Customer {
	out := c
	out.Orders = make([]Order, len(c.Orders))
	for i, o := range c.Orders {
		out.Orders[i] = o.clone()
	}
	return out
}

// Stats are the derived read-only figures shown next to the cart.
type Stats struct {
	Customers      int
	ActiveItems    int
	ActiveTotal    float64
	HasPendingWork bool
}

// cleanName trims a material's display name and collapses the whitespace
// artifacts left by the catalog editor (tabs, doubled spaces, NBSP).
func cleanName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
