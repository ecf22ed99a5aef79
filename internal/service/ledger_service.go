package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"scrappos/internal/dto"
	"scrappos/internal/ledger"
	"scrappos/internal/model"
	"scrappos/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// LedgerService exposes one in-memory ledger per operator. Mutations are
// applied to the ledger first and written through to the database after;
// when the write fails the error wraps ErrPersistence and Recargar brings the
// ledger back in line with what was stored.
type LedgerService interface {
	Estado(ctx context.Context, operadorID string) (*dto.LedgerResponse, error)
	CambiarModo(ctx context.Context, operadorID string, req dto.ModoRequest) (*dto.LedgerResponse, error)
	SeleccionarCliente(ctx context.Context, operadorID string, req dto.SeleccionarClienteRequest) (*dto.LedgerResponse, error)
	DeseleccionarCliente(ctx context.Context, operadorID string) (*dto.LedgerResponse, error)
	IniciarOrden(ctx context.Context, operadorID string) (*dto.OrdenResponse, error)
	AgregarItem(ctx context.Context, operadorID string, req dto.AgregarItemRequest) (*dto.OrdenResponse, error)
	QuitarItem(ctx context.Context, operadorID string, index int) (*dto.OrdenResponse, error)
	// Recargar replaces the operator's ledger with the open orders stored for it.
	Recargar(ctx context.Context, operadorID string) error
}

type ledgerService struct {
	ledgers   *ledger.Registry
	repo      repository.OrdenRepository
	materials MaterialService

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	loaded map[string]bool
}

func NewLedgerService(ledgers *ledger.Registry, repo repository.OrdenRepository, materials MaterialService) LedgerService {
	return &ledgerService{
		ledgers:   ledgers,
		repo:      repo,
		materials: materials,
		locks:     make(map[string]*sync.Mutex),
		loaded:    make(map[string]bool),
	}
}

// lock serializes the multi-step operations of one operator.
func (s *ledgerService) lock(operadorID string) func() {
	s.mu.Lock()
	m, ok := s.locks[operadorID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[operadorID] = m
	}
	s.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// ledgerFor returns the operator's ledger, loading it from the database the
// first time it is used in this process.
func (s *ledgerService) ledgerFor(ctx context.Context, operadorID string) (*ledger.Ledger, error) {
	s.mu.Lock()
	loaded := s.loaded[operadorID]
	s.mu.Unlock()
	if !loaded {
		if err := s.recargar(ctx, operadorID); err != nil {
			return nil, err
		}
	}
	return s.ledgers.Get(operadorID), nil
}

// ── Estado / Modo ─────────────────────────────────────────────────────────────

func (s *ledgerService) Estado(ctx context.Context, operadorID string) (*dto.LedgerResponse, error) {
	defer s.lock(operadorID)()
	l, err := s.ledgerFor(ctx, operadorID)
	if err != nil {
		return nil, err
	}
	return toLedgerResponse(l), nil
}

func (s *ledgerService) CambiarModo(ctx context.Context, operadorID string, req dto.ModoRequest) (*dto.LedgerResponse, error) {
	defer s.lock(operadorID)()
	l, err := s.ledgerFor(ctx, operadorID)
	if err != nil {
		return nil, err
	}
	if err := l.SetMode(ledger.Mode(req.Modo)); err != nil {
		return nil, err
	}
	return toLedgerResponse(l), nil
}

// ── Selección de cliente ──────────────────────────────────────────────────────

// SeleccionarCliente selects (or registers) a customer and makes sure it has
// an open order to weigh into.
func (s *ledgerService) SeleccionarCliente(ctx context.Context, operadorID string, req dto.SeleccionarClienteRequest) (*dto.LedgerResponse, error) {
	defer s.lock(operadorID)()
	l, err := s.ledgerFor(ctx, operadorID)
	if err != nil {
		return nil, err
	}

	var cust ledger.Customer
	if req.ClienteID != nil && *req.ClienteID != "" {
		cust, err = s.clienteExistente(ctx, l, operadorID, *req.ClienteID)
	} else {
		cust, err = s.clienteNuevo(ctx, operadorID, req)
	}
	if err != nil {
		return nil, err
	}
	l.SelectCustomer(&cust)

	if _, ok := l.ActiveOrder(); !ok {
		if _, err := s.iniciar(ctx, operadorID, l); err != nil {
			return nil, err
		}
	}
	return toLedgerResponse(l), nil
}

func (s *ledgerService) clienteExistente(ctx context.Context, l *ledger.Ledger, operadorID, rawID string) (ledger.Customer, error) {
	for _, c := range l.Customers() {
		if c.ID == rawID {
			return c, nil
		}
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return ledger.Customer{}, ErrClienteNoEncontrado
	}
	row, err := s.repo.FindCliente(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.Customer{}, ErrClienteNoEncontrado
		}
		return ledger.Customer{}, fmt.Errorf("%w: cliente %s: %v", ErrPersistence, rawID, err)
	}
	// only this operator's orders belong in its ledger
	own := row.Ordenes[:0:0]
	for _, o := range row.Ordenes {
		if o.OperadorID == operadorID {
			own = append(own, o)
		}
	}
	row.Ordenes = own
	return clienteToLedger(*row), nil
}

func (s *ledgerService) clienteNuevo(ctx context.Context, operadorID string, req dto.SeleccionarClienteRequest) (ledger.Customer, error) {
	row := &model.Cliente{
		ID:         uuid.New(),
		Nombre:     strings.Join(strings.Fields(req.Nombre), " "),
		OperadorID: operadorID,
		Email:      req.Email,
	}
	if err := s.repo.CreateCliente(ctx, row); err != nil {
		return ledger.Customer{}, fmt.Errorf("%w: crear cliente: %v", ErrPersistence, err)
	}
	log.Info().Str("operador_id", operadorID).Str("cliente_id", row.ID.String()).Msg("ledger: cliente registrado")
	return ledger.Customer{ID: row.ID.String(), Name: row.Nombre}, nil
}

func (s *ledgerService) DeseleccionarCliente(ctx context.Context, operadorID string) (*dto.LedgerResponse, error) {
	defer s.lock(operadorID)()
	l, err := s.ledgerFor(ctx, operadorID)
	if err != nil {
		return nil, err
	}
	l.SelectCustomer(nil)
	return toLedgerResponse(l), nil
}

// ── Órdenes ───────────────────────────────────────────────────────────────────

func (s *ledgerService) IniciarOrden(ctx context.Context, operadorID string) (*dto.OrdenResponse, error) {
	defer s.lock(operadorID)()
	l, err := s.ledgerFor(ctx, operadorID)
	if err != nil {
		return nil, err
	}
	o, err := s.iniciar(ctx, operadorID, l)
	if err != nil {
		return nil, err
	}
	return toOrdenResponse(o), nil
}

// iniciar returns the active order, creating and storing a new one when there
// is none.
func (s *ledgerService) iniciar(ctx context.Context, operadorID string, l *ledger.Ledger) (ledger.Order, error) {
	if o, ok := l.ActiveOrder(); ok {
		return o, nil
	}
	o, err := l.StartOrder()
	if err != nil {
		return ledger.Order{}, err
	}
	row, err := ordenFromLedger(operadorID, o)
	if err != nil {
		return o, err
	}
	if err := s.repo.CreateOrden(ctx, row); err != nil {
		return o, fmt.Errorf("%w: crear orden %s: %v", ErrPersistence, o.ID, err)
	}
	return o, nil
}

// ── Items ─────────────────────────────────────────────────────────────────────

func (s *ledgerService) AgregarItem(ctx context.Context, operadorID string, req dto.AgregarItemRequest) (*dto.OrdenResponse, error) {
	defer s.lock(operadorID)()
	l, err := s.ledgerFor(ctx, operadorID)
	if err != nil {
		return nil, err
	}
	if _, err := s.activa(l); err != nil {
		return nil, err
	}

	m, err := s.materials.Obtener(ctx, req.MaterialID)
	if err != nil {
		return nil, err
	}
	var override *float64
	if req.Precio != nil {
		p := req.Precio.InexactFloat64()
		override = &p
	}

	o, err := l.AddItem(m, req.Cantidad.InexactFloat64(), req.Tara.InexactFloat64(), override)
	if err != nil {
		return nil, err
	}
	if err := s.guardar(ctx, operadorID, o); err != nil {
		return toOrdenResponse(o), err
	}
	return toOrdenResponse(o), nil
}

func (s *ledgerService) QuitarItem(ctx context.Context, operadorID string, index int) (*dto.OrdenResponse, error) {
	defer s.lock(operadorID)()
	l, err := s.ledgerFor(ctx, operadorID)
	if err != nil {
		return nil, err
	}
	o, err := l.RemoveItem(index)
	if err != nil {
		return nil, err
	}
	if err := s.guardar(ctx, operadorID, o); err != nil {
		return toOrdenResponse(o), err
	}
	return toOrdenResponse(o), nil
}

// activa checks the item preconditions before any catalog lookup.
func (s *ledgerService) activa(l *ledger.Ledger) (ledger.Order, error) {
	if _, ok := l.ActiveCustomer(); !ok {
		return ledger.Order{}, ledger.ErrNoActiveCustomer
	}
	o, ok := l.ActiveOrder()
	if !ok {
		return ledger.Order{}, ledger.ErrNoActiveOrder
	}
	return o, nil
}

func (s *ledgerService) guardar(ctx context.Context, operadorID string, o ledger.Order) error {
	row, err := ordenFromLedger(operadorID, o)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateOrden(ctx, row); err != nil {
		log.Error().Err(err).Str("orden_id", o.ID).Msg("ledger: write-through failed")
		return fmt.Errorf("%w: orden %s: %v", ErrPersistence, o.ID, err)
	}
	return nil
}

// ── Recarga ───────────────────────────────────────────────────────────────────

func (s *ledgerService) Recargar(ctx context.Context, operadorID string) error {
	defer s.lock(operadorID)()
	return s.recargar(ctx, operadorID)
}

func (s *ledgerService) recargar(ctx context.Context, operadorID string) error {
	rows, err := s.repo.ListClientesConOrdenesAbiertas(ctx, operadorID)
	if err != nil {
		return fmt.Errorf("%w: recargar ledger: %v", ErrPersistence, err)
	}
	customers := make([]ledger.Customer, 0, len(rows))
	for _, c := range rows {
		own := c.Ordenes[:0:0]
		for _, o := range c.Ordenes {
			if o.OperadorID == operadorID {
				own = append(own, o)
			}
		}
		c.Ordenes = own
		customers = append(customers, clienteToLedger(c))
	}
	s.ledgers.Get(operadorID).Load(customers)

	s.mu.Lock()
	s.loaded[operadorID] = true
	s.mu.Unlock()
	log.Debug().Str("operador_id", operadorID).Int("clientes", len(customers)).Msg("ledger: recargado")
	return nil
}
