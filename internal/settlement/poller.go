// Package settlement drives an externally initiated payment to a terminal
// status with a bounded poll.
//
// Each attempt reads the local mirror first and only then asks the gateway:
// the mirror is written by the webhook and may already hold the approval.
package settlement

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Poller is stateless between calls and safe for concurrent use.
type Poller struct {
	mirror Mirror
	remote StatusChecker
	cfg    Config
}

// NewPoller fills zero config fields from DefaultConfig.
func NewPoller(mirror Mirror, remote StatusChecker, cfg Config) *Poller {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Interval < 0 {
		cfg.Interval = def.Interval
	}
	if cfg.TransientRetries < 0 {
		cfg.TransientRetries = 0
	}
	return &Poller{mirror: mirror, remote: remote, cfg: cfg}
}

// Config returns the effective poll policy.
func (p *Poller) Config() Config { return p.cfg }

// Poll resolves paymentID. onChange, when non-nil, runs once per distinct
// status value observed.
//
// An exhausted budget is not an error: the returned Result carries the last
// non-terminal status and Undetermined() is true. Errors are returned when the
// per-attempt retry budget is spent (wrapping ErrTransientSettlement and
// ErrSettlementUndetermined) or when ctx is cancelled.
func (p *Poller) Poll(ctx context.Context, paymentID string, onChange func(Status)) (Result, error) {
	res := Result{PaymentID: paymentID, Status: StatusPending}
	seen := make(map[Status]bool, 4)
	observe := func(s Status) {
		res.Status = s
		if onChange != nil && !seen[s] {
			seen[s] = true
			onChange(s)
		}
	}

	logger := log.With().Str("payment_id", paymentID).Logger()

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		var (
			mirrored Status
			remote   RemoteStatus
		)
		err := withRetry(ctx, p.cfg.TransientRetries, p.cfg.TransientBackoff, func(try int) error {
			s, err := p.mirror.ReadSettlementStatus(ctx, paymentID)
			if err != nil {
				logger.Warn().Err(err).Int("try", try+1).Msg("settlement: mirror read failed")
				return err
			}
			mirrored = s
			if s == StatusApproved {
				return nil
			}
			r, err := p.remote.CheckStatus(ctx, paymentID)
			if err != nil {
				logger.Warn().Err(err).Int("try", try+1).Msg("settlement: remote check failed")
				return err
			}
			remote = r
			return nil
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			return res, fmt.Errorf("%w: %w: payment %s: %w", ErrSettlementUndetermined, ErrTransientSettlement, paymentID, err)
		}

		if mirrored == StatusApproved {
			res.FromMirror = true
			observe(StatusApproved)
			logger.Debug().Int("attempts", res.Attempts).Msg("settlement: approved via mirror")
			return res, nil
		}

		res.Attempts++
		observe(remote.Status)
		logger.Debug().Int("attempt", res.Attempts).Str("status", string(remote.Status)).Msg("settlement: remote status")
		if remote.Status.Terminal() {
			return res, nil
		}
		if res.Attempts >= p.cfg.MaxAttempts {
			logger.Warn().
				Int("attempts", res.Attempts).
				Str("status", string(res.Status)).
				Msg("settlement: poll budget exhausted, status undetermined")
			return res, nil
		}
		if err := sleepCtx(ctx, p.cfg.Interval); err != nil {
			return res, err
		}
	}
}
