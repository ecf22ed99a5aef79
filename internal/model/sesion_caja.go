package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SesionCaja represents the lifecycle of a cash register session.
// Estado: "abierta" | "cerrada"
type SesionCaja struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OperadorID   string          `gorm:"type:varchar(64);not null;index"`
	MontoInicial decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	// MontoActual is MontoInicial plus every movement applied so far.
	MontoActual    decimal.Decimal  `gorm:"type:decimal(14,3);not null"`
	MontoDeclarado *decimal.Decimal `gorm:"type:decimal(12,2)"`
	Diferencia     *decimal.Decimal `gorm:"type:decimal(14,3)"`
	Estado         string           `gorm:"type:varchar(20);not null;default:'abierta'"`
	// Conciliacion: "balanced" | "surplus" | "shortage"
	Conciliacion *string `gorm:"type:varchar(20)"`
	OpenedAt     time.Time
	ClosedAt     *time.Time

	Movimientos []MovimientoCaja `gorm:"foreignKey:SesionCajaID"`
}

// MovimientoCaja is an immutable event in the cash register ledger.
// Tipo: "venta" | "compra"
// Movements are NEVER modified or deleted.
type MovimientoCaja struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SesionCajaID uuid.UUID       `gorm:"type:uuid;index;not null"`
	Tipo         string          `gorm:"type:varchar(20);not null"`
	Monto        decimal.Decimal `gorm:"type:decimal(14,3);not null"`
	OrdenID      *uuid.UUID      `gorm:"type:uuid;uniqueIndex"`
	CreatedAt    time.Time
}
