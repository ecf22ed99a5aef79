package service

import (
	"context"
	"testing"
	"time"

	"scrappos/internal/dto"
	"scrappos/internal/ledger"
	"scrappos/internal/model"
	"scrappos/internal/settlement"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var cobre = model.Material{
	ID:           uuid.MustParse("6f1c2a9e-3a51-4b0e-9d1b-0c0ffee00001"),
	Codigo:       "CU-1",
	Nombre:       "  Cobre\t brillante ",
	PrecioCompra: decimal.NewFromInt(30),
	PrecioVenta:  decimal.NewFromInt(38),
	UnidadMedida: "kg",
	Activo:       true,
}

// pos wires every service over in-memory repositories.
type pos struct {
	ordenes    *memOrdenRepo
	cajas      *memCajaRepo
	liqs       *memLiquidacionRepo
	materiales *memMaterialRepo
	gateway    *scriptedGateway
	receipts   *memReceipts
	notifier   *memNotifier

	ledgers   *ledger.Registry
	ledger    LedgerService
	caja      CajaService
	checkout  CheckoutService
	materials MaterialService
}

func fastPoll() settlement.Config {
	return settlement.Config{
		MaxAttempts:      5,
		Interval:         time.Millisecond,
		TransientRetries: 1,
		TransientBackoff: time.Millisecond,
	}
}

func newPOS(t *testing.T, poll settlement.Config) *pos {
	t.Helper()
	p := &pos{
		ordenes:    newMemOrdenRepo(),
		cajas:      newMemCajaRepo(),
		liqs:       newMemLiquidacionRepo(),
		materiales: newMemMaterialRepo(cobre),
		gateway:    &scriptedGateway{},
		receipts:   &memReceipts{},
		notifier:   &memNotifier{},
		ledgers:    ledger.NewRegistry(),
	}
	ctx, cancel := context.WithCancel(context.Background())

	p.materials = NewMaterialService(p.materiales, nil)
	p.ledger = NewLedgerService(p.ledgers, p.ordenes, p.materials)
	p.caja = NewCajaService(p.cajas)
	p.checkout = NewCheckoutService(CheckoutConfig{
		BaseCtx:       ctx,
		Ledgers:       p.ledgers,
		LedgerSvc:     p.ledger,
		Caja:          p.caja,
		Ordenes:       p.ordenes,
		Liquidaciones: p.liqs,
		Gateway:       p.gateway,
		Poll:          poll,
		Receipts:      p.receipts,
		Notifier:      p.notifier,
		BusinessName:  "Chatarrería Test",
	})
	t.Cleanup(func() {
		cancel()
		p.checkout.Wait()
	})
	return p
}

// ana selects a new customer "Ana" for op and weighs 10 kg of copper with
// 0.5 kg tare under mode. Returns the open order.
func (p *pos) ana(t *testing.T, op string, mode ledger.Mode) *dto.OrdenResponse {
	t.Helper()
	ctx := context.Background()
	_, err := p.ledger.CambiarModo(ctx, op, dto.ModoRequest{Modo: string(mode)})
	require.NoError(t, err)
	_, err = p.ledger.SeleccionarCliente(ctx, op, dto.SeleccionarClienteRequest{Nombre: "Ana"})
	require.NoError(t, err)
	o, err := p.ledger.AgregarItem(ctx, op, dto.AgregarItemRequest{
		MaterialID: cobre.ID.String(),
		Cantidad:   decimal.NewFromInt(10),
		Tara:       decimal.RequireFromString("0.5"),
	})
	require.NoError(t, err)
	return o
}

func (p *pos) abrirCaja(t *testing.T, op string, monto int64) {
	t.Helper()
	_, err := p.caja.Abrir(context.Background(), op, dto.AbrirCajaRequest{MontoInicial: decimal.NewFromInt(monto)})
	require.NoError(t, err)
}

func decEq(want string, got decimal.Decimal) bool {
	return decimal.RequireFromString(want).Equal(got)
}

func oneKg() decimal.Decimal { return decimal.NewFromInt(1) }
