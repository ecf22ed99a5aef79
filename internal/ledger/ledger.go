// Package ledger holds the in-memory view of customers, their orders and the
// single active order bound to the selected customer.
//
// Every mutation is copy-on-write: the touched order, its customer and the
// customer list are replaced by new values, so a snapshot taken before a call
// never observes the change.
package ledger

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Ledger is safe for concurrent use; each operation is atomic.
type Ledger struct {
	mu             sync.Mutex
	customers      []Customer
	activeCustomer string
	activeOrder    string
	mode           Mode

	newID func() string
	now   func() time.Time
}

// New returns an empty ledger in purchase mode.
func New() *Ledger {
	return &Ledger{
		mode:  ModePurchase,
		newID: uuid.NewString,
		now:   time.Now,
	}
}

// ── Mode ──────────────────────────────────────────────────────────────────────

// Mode returns the pricing mode applied to the next item.
func (l *Ledger) Mode() Mode {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mode
}

// SetMode switches between purchase and sale pricing.
func (l *Ledger) SetMode(m Mode) error {
	if !m.Valid() {
		return ErrInvalidMode
	}
	l.mu.Lock()
	l.mode = m
	l.mu.Unlock()
	return nil
}

// ── Selection ────────────────────────────────────────────────────────────────

// SelectCustomer makes c the active customer. The active order becomes c's
// open order, if any. A nil customer clears the selection. Customers unknown
// to the ledger are added to it; no order is created.
func (l *Ledger) SelectCustomer(c *Customer) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if c == nil {
		l.activeCustomer = ""
		l.activeOrder = ""
		return
	}

	idx := l.indexOfCustomer(c.ID)
	if idx < 0 {
		next := make([]Customer, len(l.customers), len(l.customers)+1)
		copy(next, l.customers)
		l.customers = append(next, c.clone())
		idx = len(l.customers) - 1
	}

	l.activeCustomer = c.ID
	l.activeOrder = ""
	if open, ok := l.customers[idx].OpenOrder(); ok {
		l.activeOrder = open.ID
	}
}

// StartOrder opens a new order for the active customer, or returns the one
// already open.
func (l *Ledger) StartOrder() (Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ci := l.indexOfCustomer(l.activeCustomer)
	if l.activeCustomer == "" || ci < 0 {
		return Order{}, ErrNoActiveCustomer
	}
	if l.activeOrder != "" {
		if o, ok := l.findOrder(l.activeOrder); ok {
			return o.clone(), nil
		}
	}

	o := Order{
		ID:         l.newID(),
		CustomerID: l.activeCustomer,
		Status:     StatusOpen,
		Type:       l.mode,
		CreatedAt:  l.now(),
	}
	cust := l.customers[ci]
	orders := make([]Order, len(cust.Orders), len(cust.Orders)+1)
	copy(orders, cust.Orders)
	cust.Orders = append(orders, o)
	l.replaceCustomer(ci, cust)
	l.activeOrder = o.ID
	return o.clone(), nil
}

// ── Items ────────────────────────────────────────────────────────────────────

// AddItem appends a weighed line to the active order. The unit price is
// overridePrice when given, else the material's price for the current mode.
func (l *Ledger) AddItem(m Material, grossQuantity, tare float64, overridePrice *float64) (Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	order, err := l.activeOpenOrder()
	if err != nil {
		return Order{}, err
	}
	if len(order.Items) > 0 && order.Type != l.mode {
		return Order{}, ErrOrderTypeMismatch
	}

	price := m.PriceFor(l.mode)
	if overridePrice != nil {
		price = *overridePrice
	}
	item := OrderItem{
		MaterialID:   m.ID,
		MaterialName: cleanName(m.Name),
		Quantity:     grossQuantity,
		Tare:         tare,
		Price:        price,
	}
	item.Total = price * item.NetQuantity()

	next := order.clone()
	next.Type = l.mode
	next.Items = append(next.Items, item)
	next.Total = order.Total + item.Total
	l.replaceOrder(next)
	return next.clone(), nil
}

// RemoveItem drops the item at index from the active order.
func (l *Ledger) RemoveItem(index int) (Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	order, err := l.activeOpenOrder()
	if err != nil {
		return Order{}, err
	}
	if index < 0 || index >= len(order.Items) {
		return Order{}, ErrIndexOutOfRange
	}

	removed := order.Items[index]
	next := order
	next.Items = make([]OrderItem, 0, len(order.Items)-1)
	next.Items = append(next.Items, order.Items[:index]...)
	next.Items = append(next.Items, order.Items[index+1:]...)
	if len(next.Items) == 0 {
		next.Total = 0
	} else {
		next.Total = order.Total - removed.Total
	}
	l.replaceOrder(next)
	return next.clone(), nil
}

// ── Completion ───────────────────────────────────────────────────────────────

// CompleteOrder marks the order completed. Completing an order twice is a
// no-op; alreadyCompleted reports that case.
func (l *Ledger) CompleteOrder(orderID string) (order Order, alreadyCompleted bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	o, ok := l.findOrder(orderID)
	if !ok {
		return Order{}, false, ErrOrderNotFound
	}
	if o.Completed() {
		return o.clone(), true, nil
	}

	next := o.clone()
	next.Status = StatusCompleted
	l.replaceOrder(next)
	if l.activeOrder == orderID {
		l.activeOrder = ""
	}
	return next.clone(), false, nil
}

// ── Reads ────────────────────────────────────────────────────────────────────

// Order returns a copy of the order with the given id.
func (l *Ledger) Order(orderID string) (Order, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.findOrder(orderID)
	if !ok {
		return Order{}, false
	}
	return o.clone(), true
}

// ActiveOrder returns a copy of the active order, if any.
func (l *Ledger) ActiveOrder() (Order, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.activeOrder == "" {
		return Order{}, false
	}
	o, ok := l.findOrder(l.activeOrder)
	if !ok {
		return Order{}, false
	}
	return o.clone(), true
}

// ActiveCustomer returns a copy of the selected customer, if any.
func (l *Ledger) ActiveCustomer() (Customer, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := l.indexOfCustomer(l.activeCustomer)
	if l.activeCustomer == "" || idx < 0 {
		return Customer{}, false
	}
	return l.customers[idx].clone(), true
}

// Customers returns a deep copy of every customer known to the ledger.
func (l *Ledger) Customers() []Customer {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Customer, len(l.customers))
	for i, c := range l.customers {
		out[i] = c.clone()
	}
	return out
}

// Stats returns the derived figures for the current state.
func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := Stats{Customers: len(l.customers)}
	if l.activeOrder == "" {
		return s
	}
	if o, ok := l.findOrder(l.activeOrder); ok {
		s.ActiveItems = len(o.Items)
		s.ActiveTotal = o.Total
		s.HasPendingWork = len(o.Items) > 0
	}
	return s
}

// Load replaces the whole customer collection, typically after a reload from
// persistence. The selection survives when the customer is still present.
func (l *Ledger) Load(customers []Customer) {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := make([]Customer, len(customers))
	for i, c := range customers {
		next[i] = c.clone()
	}
	l.customers = next

	l.activeOrder = ""
	idx := l.indexOfCustomer(l.activeCustomer)
	if idx < 0 {
		l.activeCustomer = ""
		return
	}
	if open, ok := l.customers[idx].OpenOrder(); ok {
		l.activeOrder = open.ID
	}
}

// ── internals (callers hold mu) ──────────────────────────────────────────────

func (l *Ledger) activeOpenOrder() (Order, error) {
	if l.activeCustomer == "" {
		return Order{}, ErrNoActiveCustomer
	}
	if l.activeOrder == "" {
		return Order{}, ErrNoActiveOrder
	}
	o, ok := l.findOrder(l.activeOrder)
	if !ok {
		return Order{}, ErrNoActiveOrder
	}
	if o.Completed() {
		return Order{}, ErrOrderCompleted
	}
	return o, nil
}

func (l *Ledger) indexOfCustomer(id string) int {
	for i := range l.customers {
		if l.customers[i].ID == id {
			return i
		}
	}
	return -1
}

func (l *Ledger) findOrder(orderID string) (Order, bool) {
	for _, c := range l.customers {
		for _, o := range c.Orders {
			if o.ID == orderID {
				return o, true
			}
		}
	}
	return Order{}, false
}

// replaceOrder swaps in o inside its owning customer and publishes a new
// customer list.
func (l *Ledger) replaceOrder(o Order) {
	ci := l.indexOfCustomer(o.CustomerID)
	if ci < 0 {
		return
	}
	cust := l.customers[ci]
	orders := make([]Order, len(cust.Orders))
	copy(orders, cust.Orders)
	for i := range orders {
		if orders[i].ID == o.ID {
			orders[i] = o
			break
		}
	}
	cust.Orders = orders
	l.replaceCustomer(ci, cust)
}

func (l *Ledger) replaceCustomer(idx int, c Customer) {
	next := make([]Customer, len(l.customers))
	copy(next, l.customers)
	next[idx] = c
	l.customers = next
}
