// Package checkout finalizes a ledger order once its payment is settled.
//
// Completing an order marks it completed in the operator's ledger, applies its
// signed total to the operator's open cash register and hands back a
// Completion exposing the print and persist intents.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"scrappos/internal/ledger"
	"scrappos/internal/register"
	"scrappos/internal/settlement"
)

// Method: "cash" | "external"
type Method string

const (
	MethodCash     Method = "cash"
	MethodExternal Method = "external"
)

var (
	// ErrNotSettled is returned for an external payment whose status is not
	// approved.
	ErrNotSettled = errors.New("payment not settled")
	// ErrUnknownMethod is returned for a payment method other than cash or external.
	ErrUnknownMethod = errors.New("unknown payment method")
	// ErrEmptyOrder is returned when completing an order without items.
	ErrEmptyOrder = errors.New("order has no items")
)

// Notification channels.
const (
	EventOrderCompleted       = "order.completed"
	EventPaymentStatusChanged = "payment.status_changed"
)

// Settlement is the payment outcome presented for an order.
type Settlement struct {
	Method    Method
	PaymentID string
	Status    settlement.Status
}

// Settled reports whether the order may be completed.
func (s Settlement) Settled() bool {
	switch s.Method {
	case MethodCash:
		return true
	case MethodExternal:
		return s.Status == settlement.StatusApproved
	}
	return false
}

// LedgerSource hands out the ledger of one operator.
type LedgerSource interface {
	Get(operatorID string) *ledger.Ledger
}

// RegisterApplier moves the open register of an operator by a signed amount.
type RegisterApplier interface {
	ApplyToActive(ctx context.Context, operatorID, orderID string, amount float64) error
}

// Persister writes a completed order.
type Persister interface {
	PersistOrder(ctx context.Context, operatorID string, order ledger.Order, s Settlement) error
}

// Printer emits a receipt for a completed order.
type Printer interface {
	PrintReceipt(ctx context.Context, operatorID string, order ledger.Order, s Settlement) error
}

// Notifier publishes fire-and-forget events.
type Notifier interface {
	Publish(ctx context.Context, channel string, payload any)
}

// DefaultRetention is how long a Completion stays reachable through
// Orchestrator.Completion.
const DefaultRetention = time.Hour

// Orchestrator is safe for concurrent use. Completions of different orders run
// in parallel; completions of the same order are serialized.
type Orchestrator struct {
	ledgers   LedgerSource
	registers RegisterApplier
	persister Persister
	printer   Printer
	notifier  Notifier

	retention time.Duration
	now       func() time.Time

	mu          sync.Mutex
	locks       map[string]*orderLock
	completions map[string]*Completion
	lastSweep   time.Time
}

type orderLock struct {
	mu   sync.Mutex
	refs int
}

// New builds an Orchestrator. notifier may be nil.
func New(ledgers LedgerSource, registers RegisterApplier, persister Persister, printer Printer, notifier Notifier) *Orchestrator {
	return &Orchestrator{
		ledgers:     ledgers,
		registers:   registers,
		persister:   persister,
		printer:     printer,
		notifier:    notifier,
		retention:   DefaultRetention,
		now:         time.Now,
		locks:       make(map[string]*orderLock),
		completions: make(map[string]*Completion),
	}
}

// SetRetention changes how long completions are kept. Non-positive values are
// ignored.
func (o *Orchestrator) SetRetention(d time.Duration) {
	if d <= 0 {
		return
	}
	o.mu.Lock()
	o.retention = d
	o.mu.Unlock()
}

// lockOrder serializes the completion of one order.
func (o *Orchestrator) lockOrder(orderID string) func() {
	o.mu.Lock()
	l, ok := o.locks[orderID]
	if !ok {
		l = &orderLock{}
		o.locks[orderID] = l
	}
	l.refs++
	o.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		o.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(o.locks, orderID)
		}
		o.mu.Unlock()
	}
}

// remember stores c and drops completions older than the retention window.
func (o *Orchestrator) remember(c *Completion) {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := o.now()
	c.at = now
	o.completions[c.Order.ID] = c
	if now.Sub(o.lastSweep) < o.retention/4 {
		return
	}
	o.lastSweep = now
	for id, old := range o.completions {
		if now.Sub(old.at) > o.retention {
			delete(o.completions, id)
		}
	}
}

// Complete finalizes orderID for operatorID.
//
// Completing the same order again returns the first Completion and applies
// nothing. The register is moved before the ledger flips the order to
// completed, so a failed register write leaves the order open and the call can
// be repeated.
//
// A cash payment requires an open register. An external payment approved after
// the register was closed still completes; the register is left untouched.
func (o *Orchestrator) Complete(ctx context.Context, operatorID, orderID string, s Settlement) (*Completion, error) {
	if s.Method != MethodCash && s.Method != MethodExternal {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, s.Method)
	}
	if !s.Settled() {
		return nil, fmt.Errorf("%w: payment %s is %s", ErrNotSettled, s.PaymentID, s.Status)
	}

	defer o.lockOrder(orderID)()

	if c, ok := o.Completion(orderID); ok {
		return c, nil
	}

	l := o.ledgers.Get(operatorID)
	order, ok := l.Order(orderID)
	if !ok {
		return nil, fmt.Errorf("complete %s: %w", orderID, ledger.ErrOrderNotFound)
	}

	if !order.Completed() && len(order.Items) == 0 {
		return nil, fmt.Errorf("complete %s: %w", orderID, ErrEmptyOrder)
	}

	if !order.Completed() {
		err := o.registers.ApplyToActive(ctx, operatorID, orderID, order.SignedTotal())
		switch {
		case err == nil:
		case errors.Is(err, register.ErrNoActiveRegister) && s.Method == MethodExternal:
			log.Warn().
				Str("operator_id", operatorID).
				Str("order_id", orderID).
				Msg("checkout: no open register, settled amount not applied")
		default:
			return nil, fmt.Errorf("complete %s: apply to register: %w", orderID, err)
		}
	}

	completed, already, err := l.CompleteOrder(orderID)
	if err != nil {
		return nil, fmt.Errorf("complete %s: %w", orderID, err)
	}

	c := &Completion{
		OperatorID: operatorID,
		Order:      completed,
		Settlement: s,
		persister:  o.persister,
		printer:    o.printer,
	}
	o.remember(c)

	if !already && o.notifier != nil {
		o.notifier.Publish(ctx, EventOrderCompleted, map[string]any{
			"operator_id": operatorID,
			"order_id":    orderID,
			"type":        completed.Type,
			"total":       completed.Total,
			"method":      s.Method,
		})
	}
	log.Info().
		Str("operator_id", operatorID).
		Str("order_id", orderID).
		Str("method", string(s.Method)).
		Float64("signed_total", completed.SignedTotal()).
		Msg("checkout: order completed")
	return c, nil
}

// Completion returns the handle of an order completed by this process within
// the retention window.
func (o *Orchestrator) Completion(orderID string) (*Completion, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	c, ok := o.completions[orderID]
	if ok && o.now().Sub(c.at) > o.retention {
		delete(o.completions, orderID)
		return nil, false
	}
	return c, ok
}

// Completion carries the two intents of a completed order. They are
// independent: either, both or neither may be invoked, in any order.
type Completion struct {
	OperatorID string
	Order      ledger.Order
	Settlement Settlement

	persister Persister
	printer   Printer
	at        time.Time

	persistOnce sync.Once
	persistErr  error

	mu     sync.Mutex
	prints int
}

// Persist writes the order. Only the first call reaches the persister; later
// calls return its result.
func (c *Completion) Persist(ctx context.Context) error {
	c.persistOnce.Do(func() {
		c.persistErr = c.persister.PersistOrder(ctx, c.OperatorID, c.Order, c.Settlement)
		if c.persistErr != nil {
			log.Error().Err(c.persistErr).Str("order_id", c.Order.ID).Msg("checkout: persist failed")
		}
	})
	return c.persistErr
}

// Print emits a receipt. It may be called any number of times.
func (c *Completion) Print(ctx context.Context) error {
	c.mu.Lock()
	c.prints++
	c.mu.Unlock()
	return c.printer.PrintReceipt(ctx, c.OperatorID, c.Order, c.Settlement)
}

// Prints returns how many times Print was invoked.
func (c *Completion) Prints() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prints
}
