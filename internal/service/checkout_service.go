package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"scrappos/internal/checkout"
	"scrappos/internal/dto"
	"scrappos/internal/ledger"
	"scrappos/internal/model"
	"scrappos/internal/repository"
	"scrappos/internal/settlement"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// CheckoutService settles orders. Cash completes in the request; an external
// payment is tracked by a background poll, the gateway webhook and, once the
// poll gave up, the settlement cron.
type CheckoutService interface {
	Checkout(ctx context.Context, operadorID string, req dto.CheckoutRequest) (*dto.CheckoutResponse, error)
	Estado(ctx context.Context, paymentID string) (*dto.LiquidacionResponse, error)
	// Cancelar stops the local wait for a payment. The payment itself is not
	// cancelled; the cron keeps re-checking it.
	Cancelar(ctx context.Context, paymentID string) error
	Webhook(ctx context.Context, req dto.WebhookPagoRequest, raw []byte) error
	Imprimir(ctx context.Context, operadorID, ordenID string) (*dto.IntentResponse, error)
	Guardar(ctx context.Context, operadorID, ordenID string) (*dto.IntentResponse, error)
	// ResolverTardio completes the order of a settlement that reached a
	// terminal status after its poll ended.
	ResolverTardio(ctx context.Context, l *model.Liquidacion) error
	// Wait blocks until every background poll has returned.
	Wait()
}

// CheckoutConfig holds all dependencies of the checkout service.
type CheckoutConfig struct {
	// BaseCtx bounds background polls; cancel it on shutdown.
	BaseCtx       context.Context
	Ledgers       *ledger.Registry
	LedgerSvc     LedgerService
	Caja          checkout.RegisterApplier
	Ordenes       repository.OrdenRepository
	Liquidaciones repository.LiquidacionRepository
	Gateway       settlement.StatusChecker
	Poll          settlement.Config
	Receipts      ReceiptEnqueuer
	Notifier      checkout.Notifier
	BusinessName  string
}

type checkoutService struct {
	base      context.Context
	ledgers   *ledger.Registry
	ledgerSvc LedgerService
	orch      *checkout.Orchestrator
	poller    *settlement.Poller
	liqs      repository.LiquidacionRepository
	ordenes   repository.OrdenRepository
	printer   receiptPrinter
	notifier  checkout.Notifier
	now       func() time.Time

	mu    sync.Mutex
	polls map[string]context.CancelFunc // by payment_id
	wg    sync.WaitGroup
}

func NewCheckoutService(cfg CheckoutConfig) CheckoutService {
	base := cfg.BaseCtx
	if base == nil {
		base = context.Background()
	}
	printer := receiptPrinter{
		clientes:     cfg.Ordenes,
		queue:        cfg.Receipts,
		businessName: cfg.BusinessName,
		now:          time.Now,
	}
	persister := ordenPersister{repo: cfg.Ordenes, now: time.Now}
	return &checkoutService{
		base:      base,
		ledgers:   cfg.Ledgers,
		ledgerSvc: cfg.LedgerSvc,
		orch:      checkout.New(cfg.Ledgers, cfg.Caja, persister, printer, cfg.Notifier),
		poller:    settlement.NewPoller(liquidacionMirror{repo: cfg.Liquidaciones}, cfg.Gateway, cfg.Poll),
		liqs:      cfg.Liquidaciones,
		ordenes:   cfg.Ordenes,
		printer:   printer,
		notifier:  cfg.Notifier,
		now:       time.Now,
		polls:     make(map[string]context.CancelFunc),
	}
}

// ── Checkout ──────────────────────────────────────────────────────────────────

func (s *checkoutService) Checkout(ctx context.Context, operadorID string, req dto.CheckoutRequest) (*dto.CheckoutResponse, error) {
	switch checkout.Method(req.Metodo) {
	case checkout.MethodCash:
		if err := s.asegurarOrden(ctx, operadorID, req.OrdenID); err != nil {
			return nil, err
		}
		c, err := s.orch.Complete(ctx, operadorID, req.OrdenID, checkout.Settlement{Method: checkout.MethodCash})
		if err != nil {
			return nil, err
		}
		return s.intents(ctx, c, req.Imprimir, req.Guardar), nil
	case checkout.MethodExternal:
		return s.iniciarPago(ctx, operadorID, req)
	}
	return nil, fmt.Errorf("%w: %q", checkout.ErrUnknownMethod, req.Metodo)
}

// asegurarOrden reloads the operator's ledger when the order is not in
// memory, e.g. after a restart.
func (s *checkoutService) asegurarOrden(ctx context.Context, operadorID, ordenID string) error {
	if _, ok := s.ledgers.Get(operadorID).Order(ordenID); ok {
		return nil
	}
	return s.ledgerSvc.Recargar(ctx, operadorID)
}

// intents persists the completed order and prints when asked. guardar only
// controls whether the persist outcome is reported back.
func (s *checkoutService) intents(ctx context.Context, c *checkout.Completion, imprimir, guardar bool) *dto.CheckoutResponse {
	resp := &dto.CheckoutResponse{
		OrdenID:        c.Order.ID,
		Estado:         string(ledger.StatusCompleted),
		Metodo:         string(c.Settlement.Method),
		Tipo:           string(c.Order.Type),
		Total:          dec3(c.Order.Total),
		MovimientoCaja: dec3(c.Order.SignedTotal()),
	}
	if c.Settlement.PaymentID != "" {
		pid := c.Settlement.PaymentID
		resp.PaymentID = &pid
	}
	// a completed order that never reaches the store would be reloaded as
	// open on the next Recargar
	if err := c.Persist(ctx); err != nil {
		if guardar {
			msg := err.Error()
			resp.ErrorGuardado = &msg
		}
	} else if guardar {
		resp.Guardado = true
	}
	if imprimir {
		if err := c.Print(ctx); err != nil {
			msg := err.Error()
			resp.ErrorImpresion = &msg
		} else {
			resp.Impreso = true
		}
	}
	return resp
}

// ── Pago externo ──────────────────────────────────────────────────────────────

func (s *checkoutService) iniciarPago(ctx context.Context, operadorID string, req dto.CheckoutRequest) (*dto.CheckoutResponse, error) {
	if err := s.asegurarOrden(ctx, operadorID, req.OrdenID); err != nil {
		return nil, err
	}
	order, ok := s.ledgers.Get(operadorID).Order(req.OrdenID)
	if !ok {
		return nil, fmt.Errorf("checkout %s: %w", req.OrdenID, ledger.ErrOrderNotFound)
	}
	if order.Completed() {
		if c, ok := s.orch.Completion(order.ID); ok {
			return s.intents(ctx, c, req.Imprimir, req.Guardar), nil
		}
		return nil, ledger.ErrOrderCompleted
	}
	if len(order.Items) == 0 {
		return nil, fmt.Errorf("checkout %s: %w", order.ID, checkout.ErrEmptyOrder)
	}
	ordenID, err := uuid.Parse(order.ID)
	if err != nil {
		return nil, fmt.Errorf("checkout %s: %w", order.ID, ledger.ErrOrderNotFound)
	}

	liq, err := s.liqs.FindByPaymentID(ctx, req.PaymentID)
	switch {
	case err == nil:
		if liq.OrdenID != ordenID {
			return nil, ErrPagoDeOtraOrden
		}
		st := settlement.Status(liq.Estado)
		if st == settlement.StatusApproved {
			c, err := s.completarPagado(ctx, operadorID, order.ID, req.PaymentID)
			if err != nil {
				return nil, err
			}
			return s.intents(ctx, c, req.Imprimir, req.Guardar), nil
		}
		if st.Terminal() {
			return nil, fmt.Errorf("%w: pago %s %s", checkout.ErrNotSettled, req.PaymentID, st)
		}
		// still pending: restart the wait
		liq.PollFinalizadoAt = nil
		liq.NextRetryAt = nil
		ok, err := s.liqs.UpdatePendiente(ctx, liq)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		if !ok {
			// settled between the read and the write
			return s.iniciarPago(ctx, operadorID, req)
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		liq = &model.Liquidacion{
			PaymentID:  req.PaymentID,
			OrdenID:    ordenID,
			OperadorID: operadorID,
			Monto:      dec3(order.Total),
			Estado:     string(settlement.StatusPending),
		}
		if err := s.liqs.Create(ctx, liq); err != nil {
			return nil, fmt.Errorf("%w: crear liquidación: %v", ErrPersistence, err)
		}
	default:
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	s.iniciarSondeo(operadorID, order.ID, req.PaymentID, req.Imprimir)

	pid := req.PaymentID
	return &dto.CheckoutResponse{
		OrdenID:        order.ID,
		Estado:         string(settlement.StatusPending),
		Metodo:         req.Metodo,
		PaymentID:      &pid,
		Tipo:           string(order.Type),
		Total:          dec3(order.Total),
		MovimientoCaja: dec3(order.SignedTotal()),
	}, nil
}

// iniciarSondeo starts the background poll unless one is already running for
// paymentID.
func (s *checkoutService) iniciarSondeo(operadorID, ordenID, paymentID string, imprimir bool) {
	s.mu.Lock()
	if _, running := s.polls[paymentID]; running {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(s.base)
	s.polls[paymentID] = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.polls, paymentID)
			s.mu.Unlock()
			cancel()
		}()
		s.sondear(ctx, operadorID, ordenID, paymentID, imprimir)
	}()
}

func (s *checkoutService) sondear(ctx context.Context, operadorID, ordenID, paymentID string, imprimir bool) {
	logger := log.With().Str("payment_id", paymentID).Str("orden_id", ordenID).Logger()

	res, err := s.poller.Poll(ctx, paymentID, func(st settlement.Status) {
		s.notificarEstado(ctx, paymentID, ordenID, st, "poll")
	})
	// the poll context may be gone; bookkeeping must still land
	dbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err != nil || res.Undetermined() {
		if err != nil {
			logger.Warn().Err(err).Int("intentos", res.Attempts).Msg("checkout: poll ended without result, handing over to cron")
		} else {
			logger.Warn().Err(res.Err()).Msg("checkout: poll budget exhausted")
		}
		s.marcarIndefinido(dbCtx, paymentID, res.Attempts)
		return
	}

	st, err := s.registrarTerminal(dbCtx, paymentID, res)
	if err != nil {
		logger.Error().Err(err).Msg("checkout: failed to store terminal status")
	}
	if st != settlement.StatusApproved {
		logger.Info().Str("estado", string(st)).Msg("checkout: payment not approved, order stays open")
		return
	}
	c, err := s.completarPagado(dbCtx, operadorID, ordenID, paymentID)
	if err != nil {
		logger.Error().Err(err).Msg("checkout: approved payment could not complete the order")
		return
	}
	if imprimir {
		if err := c.Print(dbCtx); err != nil {
			logger.Warn().Err(err).Msg("checkout: receipt print failed")
		}
	}
}

func (s *checkoutService) marcarIndefinido(ctx context.Context, paymentID string, attempts int) {
	logger := log.With().Str("payment_id", paymentID).Logger()
	liq, err := s.liqs.FindByPaymentID(ctx, paymentID)
	if err != nil {
		logger.Error().Err(err).Msg("checkout: settlement row missing")
		return
	}
	if !settlement.Status(liq.Estado).Terminal() {
		now := s.now()
		liq.Intentos += attempts
		liq.PollFinalizadoAt = &now
		liq.NextRetryAt = &now
		ok, err := s.liqs.UpdatePendiente(ctx, liq)
		if err != nil {
			logger.Error().Err(err).Msg("checkout: failed to hand settlement to cron")
			return
		}
		if ok {
			return
		}
		if liq, err = s.liqs.FindByPaymentID(ctx, paymentID); err != nil {
			logger.Error().Err(err).Msg("checkout: settlement row missing")
			return
		}
	}
	// the webhook won the race
	if liq.Estado == string(settlement.StatusApproved) {
		if err := s.ResolverTardio(ctx, liq); err != nil {
			logger.Error().Err(err).Msg("checkout: late completion failed")
		}
	}
}

// registrarTerminal stores the poll result unless the row already holds a
// terminal status, and returns the status that ended up stored.
func (s *checkoutService) registrarTerminal(ctx context.Context, paymentID string, res settlement.Result) (settlement.Status, error) {
	liq, err := s.liqs.FindByPaymentID(ctx, paymentID)
	if err != nil {
		return res.Status, err
	}
	if st := settlement.Status(liq.Estado); st.Terminal() {
		return st, nil
	}
	liq.Estado = string(res.Status)
	liq.Intentos += res.Attempts
	liq.PollFinalizadoAt = nil
	liq.NextRetryAt = nil
	ok, err := s.liqs.UpdatePendiente(ctx, liq)
	if err != nil || ok {
		return res.Status, err
	}
	if liq, err = s.liqs.FindByPaymentID(ctx, paymentID); err != nil {
		return res.Status, err
	}
	return settlement.Status(liq.Estado), nil
}

// completarPagado completes an order whose external payment is approved and
// persists it. Calling it again for the same order is harmless.
func (s *checkoutService) completarPagado(ctx context.Context, operadorID, ordenID, paymentID string) (*checkout.Completion, error) {
	if err := s.asegurarOrden(ctx, operadorID, ordenID); err != nil {
		return nil, err
	}
	c, err := s.orch.Complete(ctx, operadorID, ordenID, checkout.Settlement{
		Method:    checkout.MethodExternal,
		PaymentID: paymentID,
		Status:    settlement.StatusApproved,
	})
	if err != nil {
		return nil, err
	}
	// nobody is waiting on this request: persist on the operator's behalf
	_ = c.Persist(ctx)
	return c, nil
}

func (s *checkoutService) notificarEstado(ctx context.Context, paymentID, ordenID string, st settlement.Status, origen string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(ctx, checkout.EventPaymentStatusChanged, map[string]any{
		"payment_id": paymentID,
		"orden_id":   ordenID,
		"status":     st,
		"source":     origen,
	})
}

func (s *checkoutService) sondeando(paymentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.polls[paymentID]
	return ok
}

// ── Estado / Cancelar ─────────────────────────────────────────────────────────

func (s *checkoutService) Estado(ctx context.Context, paymentID string) (*dto.LiquidacionResponse, error) {
	liq, err := s.liqs.FindByPaymentID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLiquidacionNoEncontrada
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return &dto.LiquidacionResponse{
		PaymentID:  liq.PaymentID,
		OrdenID:    liq.OrdenID.String(),
		Estado:     liq.Estado,
		Monto:      liq.Monto,
		Intentos:   liq.Intentos,
		Sondeando:  s.sondeando(paymentID),
		Indefinido: liq.PollFinalizadoAt != nil && !settlement.Status(liq.Estado).Terminal(),
		UpdatedAt:  liq.UpdatedAt,
	}, nil
}

func (s *checkoutService) Cancelar(ctx context.Context, paymentID string) error {
	s.mu.Lock()
	cancel, ok := s.polls[paymentID]
	s.mu.Unlock()
	if ok {
		cancel()
		log.Info().Str("payment_id", paymentID).Msg("checkout: poll cancelled by operator")
		return nil
	}
	if _, err := s.liqs.FindByPaymentID(ctx, paymentID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrLiquidacionNoEncontrada
		}
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return nil
}

// ── Webhook ───────────────────────────────────────────────────────────────────

func (s *checkoutService) Webhook(ctx context.Context, req dto.WebhookPagoRequest, raw []byte) error {
	st := settlement.Normalize(strings.ToLower(strings.TrimSpace(req.Status)))

	liq, err := s.liqs.FindByPaymentID(ctx, req.PaymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrLiquidacionNoEncontrada
		}
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if current := settlement.Status(liq.Estado); current.Terminal() {
		log.Info().
			Str("payment_id", req.PaymentID).
			Str("estado", liq.Estado).
			Str("recibido", string(st)).
			Msg("webhook: settlement already final, ignored")
		return nil
	}

	body := string(raw)
	if err := s.liqs.UpdateEstado(ctx, req.PaymentID, string(st), &body); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	s.notificarEstado(ctx, req.PaymentID, liq.OrdenID.String(), st, "webhook")

	// a running poll reads the mirror on its next attempt
	if st == settlement.StatusApproved && !s.sondeando(req.PaymentID) {
		liq.Estado = string(st)
		if err := s.ResolverTardio(ctx, liq); err != nil {
			log.Error().Err(err).Str("payment_id", req.PaymentID).Msg("webhook: completion failed")
		}
	}
	return nil
}

func (s *checkoutService) ResolverTardio(ctx context.Context, l *model.Liquidacion) error {
	st := settlement.Status(l.Estado)
	if st != settlement.StatusApproved {
		s.notificarEstado(ctx, l.PaymentID, l.OrdenID.String(), st, "cron")
		return nil
	}
	_, err := s.completarPagado(ctx, l.OperadorID, l.OrdenID.String(), l.PaymentID)
	return err
}

// ── Intents ───────────────────────────────────────────────────────────────────

func (s *checkoutService) Imprimir(ctx context.Context, operadorID, ordenID string) (*dto.IntentResponse, error) {
	if c, ok := s.orch.Completion(ordenID); ok {
		if c.OperatorID != operadorID {
			return nil, ledger.ErrOrderNotFound
		}
		resp := &dto.IntentResponse{OrdenID: ordenID}
		err := c.Print(ctx)
		resp.Impresion = c.Prints()
		if err != nil {
			return resp, err
		}
		return resp, nil
	}

	// completed by an earlier process
	row, err := s.ordenCompletada(ctx, operadorID, ordenID)
	if err != nil {
		return nil, err
	}
	st := checkout.Settlement{}
	if row.MetodoPago != nil {
		st.Method = checkout.Method(*row.MetodoPago)
	}
	if err := s.printer.PrintReceipt(ctx, operadorID, ordenToLedger(*row), st); err != nil {
		return nil, err
	}
	return &dto.IntentResponse{OrdenID: ordenID, Impresion: 1}, nil
}

func (s *checkoutService) Guardar(ctx context.Context, operadorID, ordenID string) (*dto.IntentResponse, error) {
	if c, ok := s.orch.Completion(ordenID); ok {
		if c.OperatorID != operadorID {
			return nil, ledger.ErrOrderNotFound
		}
		if err := c.Persist(ctx); err != nil {
			msg := err.Error()
			return &dto.IntentResponse{OrdenID: ordenID, Error: &msg}, err
		}
		return &dto.IntentResponse{OrdenID: ordenID, Guardado: true}, nil
	}
	if _, err := s.ordenCompletada(ctx, operadorID, ordenID); err != nil {
		return nil, err
	}
	return &dto.IntentResponse{OrdenID: ordenID, Guardado: true}, nil
}

func (s *checkoutService) ordenCompletada(ctx context.Context, operadorID, ordenID string) (*model.Orden, error) {
	id, err := uuid.Parse(ordenID)
	if err != nil {
		return nil, ledger.ErrOrderNotFound
	}
	row, err := s.ordenes.FindOrdenByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ledger.ErrOrderNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if row.OperadorID != operadorID {
		return nil, ledger.ErrOrderNotFound
	}
	if row.Estado != string(ledger.StatusCompleted) {
		return nil, ErrOrdenNoCompletada
	}
	return row, nil
}

func (s *checkoutService) Wait() { s.wg.Wait() }
