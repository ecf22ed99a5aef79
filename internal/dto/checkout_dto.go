package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// ─── Request DTOs ────────────────────────────────────────────────────────────

// CheckoutRequest settles an order. Imprimir and Guardar trigger the print and
// persist intents right away; both can also be triggered later.
type CheckoutRequest struct {
	OrdenID   string `json:"orden_id"   validate:"required,uuid"`
	Metodo    string `json:"metodo"     validate:"required,oneof=cash external"`
	PaymentID string `json:"payment_id" validate:"required_if=Metodo external,max=64"`
	Imprimir  bool   `json:"imprimir"`
	Guardar   bool   `json:"guardar"`
}

// WebhookPagoRequest is the gateway's asynchronous status notification.
type WebhookPagoRequest struct {
	PaymentID string `json:"payment_id" validate:"required,max=64"`
	Status    string `json:"status"     validate:"required"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type CheckoutResponse struct {
	OrdenID   string          `json:"orden_id"`
	Estado    string          `json:"estado"` // completed | pending
	Metodo    string          `json:"metodo"`
	PaymentID *string         `json:"payment_id,omitempty"`
	Tipo      string          `json:"tipo"`
	Total     decimal.Decimal `json:"total"`
	// MovimientoCaja is the signed effect on the register: negative for purchases.
	MovimientoCaja decimal.Decimal `json:"movimiento_caja"`
	Guardado       bool            `json:"guardado"`
	ErrorGuardado  *string         `json:"error_guardado,omitempty"`
	Impreso        bool            `json:"impreso"`
	ErrorImpresion *string         `json:"error_impresion,omitempty"`
}

type LiquidacionResponse struct {
	PaymentID  string          `json:"payment_id"`
	OrdenID    string          `json:"orden_id"`
	Estado     string          `json:"estado"` // pending | approved | rejected | cancelled
	Monto      decimal.Decimal `json:"monto"`
	Intentos   int             `json:"intentos"`
	Sondeando  bool            `json:"sondeando"`
	Indefinido bool            `json:"indefinido"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type IntentResponse struct {
	OrdenID   string  `json:"orden_id"`
	Impresion int     `json:"impresiones,omitempty"`
	Guardado  bool    `json:"guardado"`
	Error     *string `json:"error,omitempty"`
}

type GeoResponse struct {
	IP          string `json:"ip"`
	Country     string `json:"country"`
	CountryCode string `json:"country_code"`
	Region      string `json:"region"`
	City        string `json:"city"`
}
