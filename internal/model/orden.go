package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Cliente is a person the yard buys from or sells to. OperadorID is the
// hosted-auth user that registered it.
type Cliente struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Nombre     string    `gorm:"index;not null"`
	OperadorID string    `gorm:"type:varchar(64);index;not null"`

	// Email receives the PDF ticket when set.
	Email     *string `gorm:"type:varchar(254)"`
	CreatedAt time.Time

	Ordenes []Orden `gorm:"foreignKey:ClienteID"`
}

func (Cliente) TableName() string { return "clientes" }

// Orden is a weighed purchase or sale.
// Tipo: "purchase" | "sale"
// Estado: "open" | "completed"
// MetodoPago: "cash" | "external" (set on completion)
type Orden struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ClienteID  uuid.UUID       `gorm:"type:uuid;index;not null"`
	OperadorID string          `gorm:"type:varchar(64);index;not null"`
	Tipo       string          `gorm:"type:varchar(10);not null"`
	Estado     string          `gorm:"type:varchar(10);not null;default:'open'"`
	Total      decimal.Decimal `gorm:"type:decimal(14,3);not null;default:0"`
	MetodoPago *string         `gorm:"type:varchar(10)"`
	PaymentID  *string         `gorm:"type:varchar(64);index"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
	// CompletedAt is stamped when the persist intent runs.
	CompletedAt *time.Time

	Items []OrdenItem `gorm:"foreignKey:OrdenID;constraint:OnDelete:CASCADE"`
}

func (Orden) TableName() string { return "ordenes" }

// OrdenItem is one weighed line. Cantidad is the net weight (gross minus tare).
type OrdenItem struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OrdenID        uuid.UUID       `gorm:"type:uuid;index;not null"`
	Posicion       int             `gorm:"not null"`
	MaterialID     string          `gorm:"type:varchar(64);not null"`
	MaterialNombre string          `gorm:"not null"`
	Cantidad       decimal.Decimal `gorm:"type:decimal(12,3);not null"`
	Tara           decimal.Decimal `gorm:"type:decimal(12,3);not null;default:0"`
	Precio         decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Subtotal       decimal.Decimal `gorm:"type:decimal(14,3);not null"`
}

func (OrdenItem) TableName() string { return "orden_items" }
