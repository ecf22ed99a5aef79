package worker

// settlement_cron.go
// Background goroutine that periodically re-checks settlements whose
// in-process poll ended without a terminal status. A late approval is handed
// to Resolve, which completes the order. Uses the Circuit Breaker to avoid
// hammering a downed gateway.

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"scrappos/internal/infra"
	"scrappos/internal/model"
	"scrappos/internal/repository"
	"scrappos/internal/settlement"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	settlementTickInterval = 30 * time.Second
	settlementBatchSize    = 10

	// QueueSettlement only names the DLQ for settlements given up on.
	QueueSettlement = "jobs:settlement"
	// MaxSettlementRetries caps how often the cron re-checks one payment.
	MaxSettlementRetries = 20
)

// SettlementCronConfig holds all dependencies for the settlement goroutine.
type SettlementCronConfig struct {
	Repo    repository.LiquidacionRepository
	Gateway settlement.StatusChecker
	CB      *infra.CircuitBreaker
	RDB     *redis.Client
	// Resolve is called once a terminal status is stored.
	Resolve func(ctx context.Context, l *model.Liquidacion) error
	// Interval overrides settlementTickInterval when positive.
	Interval time.Duration
}

// StartSettlementCron launches a background goroutine that ticks every 30s,
// queries undetermined settlements, and re-checks them through the CB.
// It respects the context for graceful shutdown.
func StartSettlementCron(ctx context.Context, cfg SettlementCronConfig) {
	interval := cfg.Interval
	if interval <= 0 {
		interval = settlementTickInterval
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		log.Info().Dur("interval", interval).Msg("settlement_cron: started")

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("settlement_cron: shutting down")
				return
			case <-ticker.C:
				processSettlements(ctx, cfg, time.Now())
			}
		}
	}()
}

func processSettlements(ctx context.Context, cfg SettlementCronConfig, now time.Time) {
	// If CB is open, skip the whole batch
	if cfg.CB.State() == infra.CBOpen {
		log.Debug().Msg("settlement_cron: circuit breaker is open, skipping tick")
		return
	}

	pending, err := cfg.Repo.ListPendingRetries(ctx, now, settlementBatchSize)
	if err != nil {
		log.Error().Err(err).Msg("settlement_cron: failed to query pending settlements")
		return
	}
	if len(pending) == 0 {
		return
	}

	log.Info().Int("count", len(pending)).Msg("settlement_cron: re-checking undetermined settlements")

	for i := range pending {
		liq := &pending[i]

		// The CB may trip mid-batch
		if cfg.CB.State() == infra.CBOpen {
			log.Debug().Msg("settlement_cron: circuit breaker opened mid-batch, stopping")
			return
		}
		recheck(ctx, cfg, liq, now)
	}
}

func recheck(ctx context.Context, cfg SettlementCronConfig, liq *model.Liquidacion, now time.Time) {
	var remote settlement.RemoteStatus
	cbErr := cfg.CB.Execute(func() error {
		r, err := cfg.Gateway.CheckStatus(ctx, liq.PaymentID)
		if err != nil {
			return err
		}
		remote = r
		return nil
	})

	liq.Intentos++
	if cbErr != nil {
		liq.RetryCount++
		errMsg := cbErr.Error()
		liq.LastError = &errMsg
		next := now.Add(computeRetryBackoff(liq.RetryCount))
		liq.NextRetryAt = &next

		giveUp := liq.RetryCount >= MaxSettlementRetries
		if giveUp {
			// Stays pending for an operator to resolve; the cron stops looking.
			liq.NextRetryAt = nil
			liq.PollFinalizadoAt = nil
		}
		if !storePending(ctx, cfg, liq) {
			return
		}
		if !giveUp {
			log.Warn().
				Str("payment_id", liq.PaymentID).
				Int("retry_count", liq.RetryCount).
				Time("next_retry_at", next).
				Msg("settlement_cron: gateway check failed, scheduled next attempt")
			return
		}
		log.Error().
			Str("payment_id", liq.PaymentID).
			Str("orden_id", liq.OrdenID.String()).
			Int("retries", liq.RetryCount).
			Msg("settlement_cron: max retries exceeded, moving to DLQ")

		payload, _ := json.Marshal(map[string]string{
			"payment_id": liq.PaymentID,
			"orden_id":   liq.OrdenID.String(),
		})
		SendToDLQ(ctx, cfg.RDB, QueueSettlement, "settlement", payload,
			fmt.Sprintf("max retries (%d) exceeded: %s", MaxSettlementRetries, errMsg),
			liq.RetryCount)
		return
	}

	liq.LastError = nil
	if len(remote.Raw) > 0 {
		raw := string(remote.Raw)
		liq.RawRespuesta = &raw
	}

	if !remote.Status.Terminal() {
		next := now.Add(computeRetryBackoff(liq.RetryCount + 1))
		liq.NextRetryAt = &next
		storePending(ctx, cfg, liq)
		return
	}

	liq.Estado = string(remote.Status)
	liq.NextRetryAt = nil
	if !storePending(ctx, cfg, liq) {
		return
	}
	log.Info().
		Str("payment_id", liq.PaymentID).
		Str("estado", liq.Estado).
		Int("intentos", liq.Intentos).
		Msg("settlement_cron: late terminal status")
	resolve(ctx, cfg, liq)
}

// storePending writes liq while the stored row is still pending. A row the
// webhook settled in the meantime keeps its status, which is resolved here;
// false is returned in that case and on error.
func storePending(ctx context.Context, cfg SettlementCronConfig, liq *model.Liquidacion) bool {
	ok, err := cfg.Repo.UpdatePendiente(ctx, liq)
	if err != nil {
		log.Error().Err(err).Str("payment_id", liq.PaymentID).Msg("settlement_cron: failed to save state")
		return false
	}
	if ok {
		return true
	}
	current, err := cfg.Repo.FindByPaymentID(ctx, liq.PaymentID)
	if err != nil {
		log.Error().Err(err).Str("payment_id", liq.PaymentID).Msg("settlement_cron: settlement row missing")
		return false
	}
	log.Info().
		Str("payment_id", liq.PaymentID).
		Str("estado", current.Estado).
		Msg("settlement_cron: settled meanwhile, stored status kept")
	resolve(ctx, cfg, current)
	return false
}

func resolve(ctx context.Context, cfg SettlementCronConfig, liq *model.Liquidacion) {
	if cfg.Resolve == nil {
		return
	}
	if err := cfg.Resolve(ctx, liq); err != nil {
		log.Error().Err(err).Str("payment_id", liq.PaymentID).Msg("settlement_cron: resolve failed")
	}
}

// RecoverOrphans hands to the cron every pending settlement whose poll died
// with a previous process. Call it once at startup, before any poll starts.
func RecoverOrphans(ctx context.Context, repo repository.LiquidacionRepository, now time.Time) (int64, error) {
	n, err := repo.MarcarHuerfanas(ctx, now, MaxSettlementRetries)
	if err != nil {
		return 0, fmt.Errorf("recover orphaned settlements: %w", err)
	}
	if n > 0 {
		log.Warn().Int64("count", n).Msg("settlement_cron: orphaned settlements handed to cron")
	}
	return n, nil
}

// computeRetryBackoff doubles from 30s per retry, capped at 30 minutes.
func computeRetryBackoff(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	d := settlementTickInterval
	for i := 1; i < retry && d < 30*time.Minute; i++ {
		d *= 2
	}
	if d > 30*time.Minute {
		d = 30 * time.Minute
	}
	return d
}
