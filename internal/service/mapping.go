package service

// mapping.go converts between the ledger's float64 values and the decimal
// columns and DTOs. Quantities and totals keep three decimals, unit prices two.

import (
	"time"

	"scrappos/internal/dto"
	"scrappos/internal/ledger"
	"scrappos/internal/model"
	"scrappos/internal/numeric"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func dec3(f float64) decimal.Decimal { return decimal.NewFromFloat(numeric.Round3(f)).Round(3) }
func dec2(f float64) decimal.Decimal { return decimal.NewFromFloat(f).Round(2) }

// ordenFromLedger builds the row written for o. CompletedAt, MetodoPago and
// PaymentID are left for the caller.
func ordenFromLedger(operadorID string, o ledger.Order) (*model.Orden, error) {
	id, err := uuid.Parse(o.ID)
	if err != nil {
		return nil, err
	}
	clienteID, err := uuid.Parse(o.CustomerID)
	if err != nil {
		return nil, err
	}
	orden := &model.Orden{
		ID:         id,
		ClienteID:  clienteID,
		OperadorID: operadorID,
		Tipo:       string(o.Type),
		Estado:     string(o.Status),
		Total:      dec3(o.Total),
		CreatedAt:  o.CreatedAt,
		Items:      make([]model.OrdenItem, 0, len(o.Items)),
	}
	for i, it := range o.Items {
		orden.Items = append(orden.Items, model.OrdenItem{
			OrdenID:        id,
			Posicion:       i,
			MaterialID:     it.MaterialID,
			MaterialNombre: it.MaterialName,
			Cantidad:       dec3(it.Quantity),
			Tara:           dec3(it.Tare),
			Precio:         dec2(it.Price),
			Subtotal:       dec3(it.Total),
		})
	}
	return orden, nil
}

// clienteToLedger rebuilds a ledger customer with all of its stored orders.
func clienteToLedger(c model.Cliente) ledger.Customer {
	out := ledger.Customer{ID: c.ID.String(), Name: c.Nombre, Orders: make([]ledger.Order, 0, len(c.Ordenes))}
	for _, o := range c.Ordenes {
		out.Orders = append(out.Orders, ordenToLedger(o))
	}
	return out
}

func ordenToLedger(o model.Orden) ledger.Order {
	order := ledger.Order{
		ID:         o.ID.String(),
		CustomerID: o.ClienteID.String(),
		Status:     ledger.OrderStatus(o.Estado),
		Type:       ledger.Mode(o.Tipo),
		Total:      o.Total.InexactFloat64(),
		CreatedAt:  o.CreatedAt,
		Items:      make([]ledger.OrderItem, 0, len(o.Items)),
	}
	for _, it := range o.Items {
		order.Items = append(order.Items, ledger.OrderItem{
			MaterialID:   it.MaterialID,
			MaterialName: it.MaterialNombre,
			Quantity:     it.Cantidad.InexactFloat64(),
			Tare:         it.Tara.InexactFloat64(),
			Price:        it.Precio.InexactFloat64(),
			Total:        it.Subtotal.InexactFloat64(),
		})
	}
	return order
}

func toOrdenResponse(o ledger.Order) *dto.OrdenResponse {
	resp := &dto.OrdenResponse{
		ID:        o.ID,
		ClienteID: o.CustomerID,
		Estado:    string(o.Status),
		Tipo:      string(o.Type),
		Total:     dec3(o.Total),
		CreatedAt: o.CreatedAt,
		Items:     make([]dto.ItemResponse, 0, len(o.Items)),
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, dto.ItemResponse{
			MaterialID:     it.MaterialID,
			MaterialNombre: it.MaterialName,
			Cantidad:       dec3(it.Quantity),
			Tara:           dec3(it.Tare),
			CantidadNeta:   dec3(it.NetQuantity()),
			Precio:         dec2(it.Price),
			Subtotal:       dec3(it.Total),
		})
	}
	return resp
}

func toClienteResponse(c ledger.Customer) dto.ClienteResponse {
	resp := dto.ClienteResponse{ID: c.ID, Nombre: c.Name, Ordenes: len(c.Orders)}
	if open, ok := c.OpenOrder(); ok {
		id := open.ID
		resp.OrdenAbierta = &id
	}
	return resp
}

func toLedgerResponse(l *ledger.Ledger) *dto.LedgerResponse {
	stats := l.Stats()
	resp := &dto.LedgerResponse{
		Modo:     string(l.Mode()),
		Clientes: []dto.ClienteResponse{},
		Stats: dto.LedgerStats{
			Clientes:         stats.Customers,
			Items:            stats.ActiveItems,
			Total:            dec3(stats.ActiveTotal),
			TrabajoPendiente: stats.HasPendingWork,
		},
	}
	for _, c := range l.Customers() {
		resp.Clientes = append(resp.Clientes, toClienteResponse(c))
	}
	if c, ok := l.ActiveCustomer(); ok {
		cr := toClienteResponse(c)
		resp.ClienteActivo = &cr
	}
	if o, ok := l.ActiveOrder(); ok {
		resp.OrdenActiva = toOrdenResponse(o)
	}
	return resp
}

func stamp(t time.Time) *time.Time { return &t }
