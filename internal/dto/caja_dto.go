package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// ─── Request DTOs ────────────────────────────────────────────────────────────

type AbrirCajaRequest struct {
	MontoInicial decimal.Decimal `json:"monto_inicial" validate:"min=0"`
}

// CerrarCajaRequest carries the blind count of the drawer.
type CerrarCajaRequest struct {
	MontoContado decimal.Decimal `json:"monto_contado" validate:"min=0"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type CajaResponse struct {
	SesionCajaID string          `json:"sesion_caja_id"`
	Estado       string          `json:"estado"` // abierta | cerrada
	MontoInicial decimal.Decimal `json:"monto_inicial"`
	MontoActual  decimal.Decimal `json:"monto_actual"`
	OpenedAt     time.Time       `json:"opened_at"`
	ClosedAt     *time.Time      `json:"closed_at,omitempty"`
}

type ConciliacionResponse struct {
	SesionCajaID string          `json:"sesion_caja_id"`
	Esperado     decimal.Decimal `json:"esperado"`
	Contado      decimal.Decimal `json:"contado"`
	Diferencia   decimal.Decimal `json:"diferencia"`
	Magnitud     decimal.Decimal `json:"magnitud"`
	Estado       string          `json:"estado"` // balanced | surplus | shortage
}

type ReporteCajaResponse struct {
	CajaResponse
	TotalVentas  decimal.Decimal       `json:"total_ventas"`
	TotalCompras decimal.Decimal       `json:"total_compras"`
	Movimientos  int                   `json:"movimientos"`
	Conciliacion *ConciliacionResponse `json:"conciliacion,omitempty"`
}
