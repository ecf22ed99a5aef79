package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Status: "pending" | "approved" | "rejected" | "cancelled"
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// Normalize maps gateway vocabularies onto the four known states. Anything
// unknown (in_process, authorized, in_mediation...) stays pending.
func Normalize(raw string) Status {
	switch raw {
	case "approved", "accredited", "paid":
		return StatusApproved
	case "rejected", "refused", "failed":
		return StatusRejected
	case "cancelled", "canceled", "expired", "refunded", "charged_back":
		return StatusCancelled
	}
	return StatusPending
}

var (
	// ErrTransientSettlement wraps the last error once the per-attempt retry
	// budget is spent.
	ErrTransientSettlement = errors.New("settlement check failed")
	// ErrSettlementUndetermined means the outer poll budget ran out without a
	// terminal status. It is not a rejection.
	ErrSettlementUndetermined = errors.New("settlement undetermined, re-check later")
)

// RemoteStatus is what the payment gateway reports for one payment.
type RemoteStatus struct {
	Status Status
	Raw    json.RawMessage
}

// Mirror reads the locally mirrored settlement record, which is updated
// independently by the gateway's webhook.
type Mirror interface {
	ReadSettlementStatus(ctx context.Context, paymentID string) (Status, error)
}

// StatusChecker queries the gateway directly.
type StatusChecker interface {
	CheckStatus(ctx context.Context, paymentID string) (RemoteStatus, error)
}

// Config bounds the poll. MaxAttempts*Interval is a soft timeout: expiry stops
// local waiting, it does not cancel the payment.
type Config struct {
	MaxAttempts      int
	Interval         time.Duration
	TransientRetries int
	TransientBackoff time.Duration
}

// DefaultConfig is 120 attempts every 5s (about 10 minutes), with up to 3
// retries one second apart for a failing attempt.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:      120,
		Interval:         5 * time.Second,
		TransientRetries: 3,
		TransientBackoff: time.Second,
	}
}

// Result is the outcome of one Poll call.
type Result struct {
	PaymentID  string
	Status     Status
	Attempts   int  // remote checks issued
	FromMirror bool // resolved by the local mirror
}

// Undetermined reports whether the caller must re-check later.
func (r Result) Undetermined() bool { return !r.Status.Terminal() }

// Err returns ErrSettlementUndetermined when Undetermined, nil otherwise.
func (r Result) Err() error {
	if r.Undetermined() {
		return fmt.Errorf("%w: payment %s still %s after %d checks", ErrSettlementUndetermined, r.PaymentID, r.Status, r.Attempts)
	}
	return nil
}
