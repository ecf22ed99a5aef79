package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// ─── Request DTOs ────────────────────────────────────────────────────────────

// SeleccionarClienteRequest selects a known customer by id, or registers a new
// one by name when ClienteID is empty.
type SeleccionarClienteRequest struct {
	ClienteID *string `json:"cliente_id" validate:"omitempty,uuid"`
	Nombre    string  `json:"nombre"     validate:"required_without=ClienteID,max=120"`
	Email     *string `json:"email"      validate:"omitempty,email"`
}

type ModoRequest struct {
	Modo string `json:"modo" validate:"required,oneof=purchase sale"`
}

type AgregarItemRequest struct {
	MaterialID string          `json:"material_id" validate:"required,uuid"`
	Cantidad   decimal.Decimal `json:"cantidad"    validate:"required,gt=0"`
	Tara       decimal.Decimal `json:"tara"        validate:"min=0"`
	// Precio overrides the catalog price for this line.
	Precio *decimal.Decimal `json:"precio" validate:"omitempty,gt=0"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type MaterialResponse struct {
	ID           string          `json:"id"`
	Codigo       string          `json:"codigo"`
	Nombre       string          `json:"nombre"`
	PrecioCompra decimal.Decimal `json:"precio_compra"`
	PrecioVenta  decimal.Decimal `json:"precio_venta"`
	UnidadMedida string          `json:"unidad_medida"`
}

type ItemResponse struct {
	MaterialID     string          `json:"material_id"`
	MaterialNombre string          `json:"material_nombre"`
	Cantidad       decimal.Decimal `json:"cantidad"`
	Tara           decimal.Decimal `json:"tara"`
	CantidadNeta   decimal.Decimal `json:"cantidad_neta"`
	Precio         decimal.Decimal `json:"precio"`
	Subtotal       decimal.Decimal `json:"subtotal"`
}

type OrdenResponse struct {
	ID        string          `json:"id"`
	ClienteID string          `json:"cliente_id"`
	Estado    string          `json:"estado"` // open | completed
	Tipo      string          `json:"tipo"`   // purchase | sale
	Items     []ItemResponse  `json:"items"`
	Total     decimal.Decimal `json:"total"`
	CreatedAt time.Time       `json:"created_at"`
}

type ClienteResponse struct {
	ID           string  `json:"id"`
	Nombre       string  `json:"nombre"`
	Ordenes      int     `json:"ordenes"`
	OrdenAbierta *string `json:"orden_abierta,omitempty"`
}

type LedgerStats struct {
	Clientes         int             `json:"clientes"`
	Items            int             `json:"items"`
	Total            decimal.Decimal `json:"total"`
	TrabajoPendiente bool            `json:"trabajo_pendiente"`
}

// LedgerResponse is the operator's whole cart view.
type LedgerResponse struct {
	Modo          string            `json:"modo"`
	ClienteActivo *ClienteResponse  `json:"cliente_activo"`
	OrdenActiva   *OrdenResponse    `json:"orden_activa"`
	Clientes      []ClienteResponse `json:"clientes"`
	Stats         LedgerStats       `json:"stats"`
}
