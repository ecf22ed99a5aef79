package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Liquidacion mirrors the gateway's view of an externally initiated payment.
// The webhook and the poller both write Estado.
// Estado: "pending" | "approved" | "rejected" | "cancelled"
type Liquidacion struct {
	PaymentID  string          `gorm:"type:varchar(64);primaryKey"`
	OrdenID    uuid.UUID       `gorm:"type:uuid;index;not null"`
	OperadorID string          `gorm:"type:varchar(64);not null"`
	Monto      decimal.Decimal `gorm:"type:decimal(14,3);not null"`
	Estado     string          `gorm:"type:varchar(20);not null;default:'pending'"`
	// RawRespuesta is the last gateway payload, kept for audits.
	RawRespuesta *string `gorm:"type:text"`
	Intentos     int     `gorm:"not null;default:0"`
	// PollFinalizadoAt is set when the in-process poll gave up without a
	// terminal status; the reconcile cron picks these rows up.
	PollFinalizadoAt *time.Time
	// Retry fields used by the settlement cron
	RetryCount  int        `gorm:"not null;default:0"`
	NextRetryAt *time.Time `gorm:"column:next_retry_at"`
	LastError   *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (Liquidacion) TableName() string { return "liquidaciones" }
