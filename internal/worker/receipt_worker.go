package worker

// receipt_worker.go
// Processes ticket jobs from QueueReceipt: renders the PDF and, when the
// customer left an email, hands the file to the email queue.

import (
	"context"
	"encoding/json"
	"fmt"

	"scrappos/internal/infra"

	"github.com/rs/zerolog/log"
)

// ReceiptJobPayload is the job envelope sent to QueueReceipt. It carries the
// whole ticket so the worker never reads the order back.
type ReceiptJobPayload struct {
	Receipt infra.Receipt `json:"receipt"`
	Email   *string       `json:"email,omitempty"`
}

// EmailEnqueuer is the part of the Dispatcher the receipt worker needs.
type EmailEnqueuer interface {
	EnqueueEmail(ctx context.Context, payload EmailJobPayload) error
}

// ReceiptWorker renders tickets.
type ReceiptWorker struct {
	emails      EmailEnqueuer
	storagePath string
	render      func(infra.Receipt, string) (string, error)
}

func NewReceiptWorker(emails EmailEnqueuer, storagePath string) *ReceiptWorker {
	return &ReceiptWorker{
		emails:      emails,
		storagePath: storagePath,
		render:      infra.GenerateReceiptPDF,
	}
}

// Process handles a single receipt job:
//  1. Parse ReceiptJobPayload
//  2. Render the PDF ticket
//  3. Optionally enqueue the email job
func (w *ReceiptWorker) Process(ctx context.Context, raw json.RawMessage) error {
	var payload ReceiptJobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Error().Err(err).Msg("receipt_worker: invalid payload")
		return fmt.Errorf("receipt_worker: invalid payload: %w", err)
	}
	r := payload.Receipt

	pdfPath, err := w.render(r, w.storagePath)
	if err != nil {
		log.Error().Err(err).Str("order_id", r.OrderID).Msg("receipt_worker: PDF generation failed")
		return err
	}
	log.Info().Str("pdf", pdfPath).Str("order_id", r.OrderID).Msg("receipt_worker: PDF generated")

	if payload.Email == nil || *payload.Email == "" {
		return nil
	}
	emailJob := EmailJobPayload{
		ToEmail: *payload.Email,
		Subject: fmt.Sprintf("%s - Comprobante %s", r.BusinessName, r.OrderID),
		Body:    fmt.Sprintf("Adjunto encontrarás tu comprobante.\nTotal: $%s", r.Total.StringFixed(2)),
		PDFPath: pdfPath,
	}
	if err := w.emails.EnqueueEmail(ctx, emailJob); err != nil {
		// ticket already rendered; the print job itself succeeded
		log.Warn().Err(err).Str("email", *payload.Email).Msg("receipt_worker: failed to enqueue email")
		return nil
	}
	log.Info().Str("email", *payload.Email).Msg("receipt_worker: email job enqueued")
	return nil
}
