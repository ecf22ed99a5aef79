package repository

import (
	"context"
	"time"

	"scrappos/internal/model"

	"gorm.io/gorm"
)

type LiquidacionRepository interface {
	Create(ctx context.Context, l *model.Liquidacion) error
	FindByPaymentID(ctx context.Context, paymentID string) (*model.Liquidacion, error)
	// UpdatePendiente writes the poll and retry bookkeeping of l while the
	// stored row is still pending. It reports false when the row already holds
	// a terminal status, which is then left untouched.
	UpdatePendiente(ctx context.Context, l *model.Liquidacion) (bool, error)
	// UpdateEstado is used by the webhook, which only knows the payment id.
	UpdateEstado(ctx context.Context, paymentID, estado string, raw *string) error
	// ListPendingRetries returns pending rows whose in-process poll already gave
	// up and whose next retry is due.
	ListPendingRetries(ctx context.Context, now time.Time, limit int) ([]model.Liquidacion, error)
	// MarcarHuerfanas hands pending rows with no poll bookkeeping to the cron.
	// Such rows belong to a poll that died with its process. Rows already
	// retried maxRetries times were given up on and are skipped.
	MarcarHuerfanas(ctx context.Context, now time.Time, maxRetries int) (int64, error)
}

// columnasPendiente are the columns a poll or the cron may write.
var columnasPendiente = []string{
	"estado", "intentos", "poll_finalizado_at", "retry_count",
	"next_retry_at", "last_error", "raw_respuesta", "updated_at",
}

type liquidacionRepo struct{ db *gorm.DB }

func NewLiquidacionRepository(db *gorm.DB) LiquidacionRepository {
	return &liquidacionRepo{db: db}
}

func (r *liquidacionRepo) Create(ctx context.Context, l *model.Liquidacion) error {
	return r.db.WithContext(ctx).Create(l).Error
}

func (r *liquidacionRepo) FindByPaymentID(ctx context.Context, paymentID string) (*model.Liquidacion, error) {
	var l model.Liquidacion
	err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&l).Error
	return &l, err
}

func (r *liquidacionRepo) UpdatePendiente(ctx context.Context, l *model.Liquidacion) (bool, error) {
	l.UpdatedAt = time.Now()
	res := r.db.WithContext(ctx).Model(&model.Liquidacion{}).
		Where("payment_id = ? AND estado = ?", l.PaymentID, "pending").
		Select(columnasPendiente).
		Updates(l)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *liquidacionRepo) UpdateEstado(ctx context.Context, paymentID, estado string, raw *string) error {
	res := r.db.WithContext(ctx).Model(&model.Liquidacion{}).
		Where("payment_id = ?", paymentID).
		Updates(map[string]interface{}{"estado": estado, "raw_respuesta": raw, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *liquidacionRepo) ListPendingRetries(ctx context.Context, now time.Time, limit int) ([]model.Liquidacion, error) {
	var ls []model.Liquidacion
	err := r.db.WithContext(ctx).
		Where("estado = 'pending' AND poll_finalizado_at IS NOT NULL").
		Where("next_retry_at IS NULL OR next_retry_at <= ?", now).
		Order("poll_finalizado_at ASC").
		Limit(limit).
		Find(&ls).Error
	return ls, err
}

func (r *liquidacionRepo) MarcarHuerfanas(ctx context.Context, now time.Time, maxRetries int) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.Liquidacion{}).
		Where("estado = 'pending' AND poll_finalizado_at IS NULL AND next_retry_at IS NULL AND retry_count < ?", maxRetries).
		Updates(map[string]interface{}{"poll_finalizado_at": now, "next_retry_at": now, "updated_at": now})
	return res.RowsAffected, res.Error
}
