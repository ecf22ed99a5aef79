// Package register models a cash drawer over one shift and classifies the
// gap between the expected and the counted balance at close.
package register

import (
	"errors"
	"math"
	"time"

	"scrappos/internal/numeric"

	"github.com/shopspring/decimal"
)

var (
	ErrRegisterClosed   = errors.New("cash register is closed")
	ErrNoActiveRegister = errors.New("no open cash register")
)

// Status: "open" | "closed"
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// ReconcileStatus: "balanced" | "surplus" | "shortage"
type ReconcileStatus string

const (
	Balanced ReconcileStatus = "balanced"
	Surplus  ReconcileStatus = "surplus"
	Shortage ReconcileStatus = "shortage"
)

// Reconciliation is the frozen outcome of a register close.
type Reconciliation struct {
	Expected   float64
	Counted    float64
	Difference float64 // counted - expected
	Status     ReconcileStatus
}

// Magnitude is |difference| rounded to cents, for display.
func (r Reconciliation) Magnitude() decimal.Decimal {
	return decimal.NewFromFloat(math.Abs(r.Difference)).Round(2)
}

// Reconcile compares what the drawer should hold with what was counted.
// Classification is tolerant: weight-derived totals carry rounding drift.
func Reconcile(expected, counted float64) Reconciliation {
	diff := counted - expected
	r := Reconciliation{
		Expected:   expected,
		Counted:    counted,
		Difference: numeric.Round3(diff),
	}
	switch {
	case numeric.Equal(diff, 0):
		r.Status = Balanced
		r.Difference = 0
	case numeric.GreaterThan(diff, 0):
		r.Status = Surplus
	default:
		r.Status = Shortage
	}
	return r
}

// CashRegister is a value; every transition returns a new one.
type CashRegister struct {
	ID            string
	InitialAmount float64
	CurrentAmount float64
	Status        Status
	OpenedAt      time.Time
	ClosedAt      *time.Time
	FinalAmount   *float64
	Difference    *float64
}

// Open starts a shift with initial cash in the drawer.
func Open(id string, initial float64, now time.Time) CashRegister {
	return CashRegister{
		ID:            id,
		InitialAmount: initial,
		CurrentAmount: initial,
		Status:        StatusOpen,
		OpenedAt:      now,
	}
}

// Apply adds a signed amount to the running balance.
func (r CashRegister) Apply(amount float64) (CashRegister, error) {
	if r.Status != StatusOpen {
		return r, ErrRegisterClosed
	}
	r.CurrentAmount += amount
	return r, nil
}

// Close freezes the counted amount and the difference against the running
// balance. A register closes exactly once.
func (r CashRegister) Close(counted float64, now time.Time) (CashRegister, Reconciliation, error) {
	if r.Status != StatusOpen {
		return r, Reconciliation{}, ErrRegisterClosed
	}
	rec := Reconcile(r.CurrentAmount, counted)

	final := counted
	diff := rec.Difference
	closedAt := now
	r.Status = StatusClosed
	r.FinalAmount = &final
	r.Difference = &diff
	r.ClosedAt = &closedAt
	return r, rec, nil
}

// Reconciliation rebuilds the frozen close outcome of a closed register.
func (r CashRegister) Reconciliation() (Reconciliation, bool) {
	if r.Status != StatusClosed || r.FinalAmount == nil {
		return Reconciliation{}, false
	}
	return Reconcile(r.CurrentAmount, *r.FinalAmount), true
}
