package service

// adapters.go binds the checkout and settlement collaborators to the
// repositories and the worker queue.

import (
	"context"
	"fmt"
	"time"

	"scrappos/internal/checkout"
	"scrappos/internal/infra"
	"scrappos/internal/ledger"
	"scrappos/internal/repository"
	"scrappos/internal/settlement"
	"scrappos/internal/worker"

	"github.com/google/uuid"
)

// ── settlement.Mirror ─────────────────────────────────────────────────────────

// liquidacionMirror reads the settlement row kept current by the webhook.
type liquidacionMirror struct {
	repo repository.LiquidacionRepository
}

func (m liquidacionMirror) ReadSettlementStatus(ctx context.Context, paymentID string) (settlement.Status, error) {
	l, err := m.repo.FindByPaymentID(ctx, paymentID)
	if err != nil {
		return "", err
	}
	return settlement.Status(l.Estado), nil
}

// ── checkout.Persister ────────────────────────────────────────────────────────

type ordenPersister struct {
	repo repository.OrdenRepository
	now  func() time.Time
}

func (p ordenPersister) PersistOrder(ctx context.Context, operatorID string, order ledger.Order, s checkout.Settlement) error {
	row, err := ordenFromLedger(operatorID, order)
	if err != nil {
		return err
	}
	metodo := string(s.Method)
	row.MetodoPago = &metodo
	if s.PaymentID != "" {
		pid := s.PaymentID
		row.PaymentID = &pid
	}
	row.CompletedAt = stamp(p.now())
	if err := p.repo.UpdateOrden(ctx, row); err != nil {
		return fmt.Errorf("%w: guardar orden %s: %v", ErrPersistence, order.ID, err)
	}
	return nil
}

// ── checkout.Printer ──────────────────────────────────────────────────────────

// ReceiptEnqueuer is the part of the worker dispatcher used to print.
type ReceiptEnqueuer interface {
	EnqueueReceipt(ctx context.Context, payload worker.ReceiptJobPayload) error
}

// receiptPrinter queues a ticket job; the worker pool renders it.
type receiptPrinter struct {
	clientes     repository.OrdenRepository
	queue        ReceiptEnqueuer
	businessName string
	now          func() time.Time
}

func (p receiptPrinter) PrintReceipt(ctx context.Context, _ string, order ledger.Order, s checkout.Settlement) error {
	r := infra.Receipt{
		BusinessName:  p.businessName,
		OrderID:       order.ID,
		OrderType:     string(order.Type),
		PaymentMethod: string(s.Method),
		Total:         dec3(order.Total),
		IssuedAt:      p.now(),
		Lines:         make([]infra.ReceiptLine, 0, len(order.Items)),
	}
	for _, it := range order.Items {
		r.Lines = append(r.Lines, infra.ReceiptLine{
			Material: it.MaterialName,
			NetKg:    dec3(it.NetQuantity()),
			Tare:     dec3(it.Tare),
			Price:    dec2(it.Price),
			Subtotal: dec3(it.Total),
		})
	}

	var email *string
	if id, err := uuid.Parse(order.CustomerID); err == nil {
		// a missing customer only drops the name from the ticket
		if c, err := p.clientes.FindCliente(ctx, id); err == nil {
			r.CustomerName = c.Nombre
			email = c.Email
		}
	}
	if err := p.queue.EnqueueReceipt(ctx, worker.ReceiptJobPayload{Receipt: r, Email: email}); err != nil {
		return fmt.Errorf("encolar ticket %s: %w", order.ID, err)
	}
	return nil
}
