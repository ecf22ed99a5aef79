package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Material is a recyclable priced per unit of weight. The yard buys at
// PrecioCompra and sells at PrecioVenta.
type Material struct {
	ID           uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Codigo       string          `gorm:"uniqueIndex;not null"`
	Nombre       string          `gorm:"index;not null"`
	PrecioCompra decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	PrecioVenta  decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	UnidadMedida string          `gorm:"not null;default:'kg'"`
	Activo       bool            `gorm:"not null;default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (Material) TableName() string { return "materiales" }
