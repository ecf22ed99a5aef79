package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"scrappos/internal/dto"
	"scrappos/internal/model"
	"scrappos/internal/register"
	"scrappos/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CajaService owns the open register of every operator. The database is
// written first; the in-memory register only moves once the write succeeded.
type CajaService interface {
	Abrir(ctx context.Context, operadorID string, req dto.AbrirCajaRequest) (*dto.CajaResponse, error)
	Activa(ctx context.Context, operadorID string) (*dto.CajaResponse, error)
	// ApplyToActive moves the operator's open register by a signed amount on
	// behalf of orderID. Each order moves the register at most once.
	ApplyToActive(ctx context.Context, operadorID, orderID string, amount float64) error
	Cerrar(ctx context.Context, operadorID string, req dto.CerrarCajaRequest) (*dto.ConciliacionResponse, error)
	ObtenerReporte(ctx context.Context, sesionID uuid.UUID) (*dto.ReporteCajaResponse, error)
}

type cajaService struct {
	repo repository.CajaRepository
	now  func() time.Time

	mu      sync.Mutex
	activas map[string]register.CashRegister // by operador_id
}

func NewCajaService(repo repository.CajaRepository) CajaService {
	return &cajaService{
		repo:    repo,
		now:     time.Now,
		activas: make(map[string]register.CashRegister),
	}
}

// ── Abrir ─────────────────────────────────────────────────────────────────────

func (s *cajaService) Abrir(ctx context.Context, operadorID string, req dto.AbrirCajaRequest) (*dto.CajaResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.activa(ctx, operadorID); err == nil {
		return nil, ErrCajaYaAbierta
	} else if !errors.Is(err, register.ErrNoActiveRegister) {
		return nil, err
	}

	now := s.now()
	sesion := &model.SesionCaja{
		ID:           uuid.New(),
		OperadorID:   operadorID,
		MontoInicial: req.MontoInicial,
		MontoActual:  req.MontoInicial,
		Estado:       "abierta",
		OpenedAt:     now,
	}
	if err := s.repo.CreateSesion(ctx, sesion); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrCajaYaAbierta
		}
		return nil, fmt.Errorf("%w: abrir caja: %v", ErrPersistence, err)
	}

	reg := register.Open(sesion.ID.String(), req.MontoInicial.InexactFloat64(), now)
	s.activas[operadorID] = reg
	log.Info().
		Str("operador_id", operadorID).
		Str("sesion_caja_id", reg.ID).
		Str("monto_inicial", req.MontoInicial.StringFixed(2)).
		Msg("caja: abierta")
	return toCajaResponse(reg), nil
}

// ── Activa ────────────────────────────────────────────────────────────────────

func (s *cajaService) Activa(ctx context.Context, operadorID string) (*dto.CajaResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, err := s.activa(ctx, operadorID)
	if err != nil {
		return nil, err
	}
	return toCajaResponse(reg), nil
}

// activa returns the operator's open register, restoring it from the database
// after a restart. Callers hold mu.
func (s *cajaService) activa(ctx context.Context, operadorID string) (register.CashRegister, error) {
	if reg, ok := s.activas[operadorID]; ok {
		return reg, nil
	}
	sesion, err := s.repo.FindSesionAbierta(ctx, operadorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return register.CashRegister{}, register.ErrNoActiveRegister
		}
		return register.CashRegister{}, fmt.Errorf("%w: buscar caja abierta: %v", ErrPersistence, err)
	}
	reg := registerFromSesion(sesion)
	s.activas[operadorID] = reg
	return reg, nil
}

// ── ApplyToActive ─────────────────────────────────────────────────────────────

func (s *cajaService) ApplyToActive(ctx context.Context, operadorID, orderID string, amount float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, err := s.activa(ctx, operadorID)
	if err != nil {
		return err
	}
	ordenID, err := uuid.Parse(orderID)
	if err != nil {
		return fmt.Errorf("orden_id inválido: %w", err)
	}
	sesionID, _ := uuid.Parse(reg.ID)

	tipo := "venta"
	if amount < 0 {
		tipo = "compra"
	}
	mov := &model.MovimientoCaja{
		ID:           uuid.New(),
		SesionCajaID: sesionID,
		Tipo:         tipo,
		Monto:        dec3(amount),
		OrdenID:      &ordenID,
		CreatedAt:    s.now(),
	}
	if err := s.repo.ApplyMovimiento(ctx, mov); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			log.Warn().Str("orden_id", orderID).Msg("caja: orden ya aplicada, se ignora")
			return nil
		}
		return fmt.Errorf("%w: movimiento de caja: %v", ErrPersistence, err)
	}

	next, err := reg.Apply(amount)
	if err != nil {
		return err
	}
	s.activas[operadorID] = next
	log.Debug().
		Str("sesion_caja_id", reg.ID).
		Str("orden_id", orderID).
		Float64("monto", amount).
		Float64("monto_actual", next.CurrentAmount).
		Msg("caja: movimiento aplicado")
	return nil
}

// ── Cerrar ────────────────────────────────────────────────────────────────────
// Blind count: the expected amount is only revealed with the result.

func (s *cajaService) Cerrar(ctx context.Context, operadorID string, req dto.CerrarCajaRequest) (*dto.ConciliacionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, err := s.activa(ctx, operadorID)
	if err != nil {
		return nil, err
	}
	closed, rec, err := reg.Close(req.MontoContado.InexactFloat64(), s.now())
	if err != nil {
		return nil, err
	}

	sesionID, _ := uuid.Parse(reg.ID)
	sesion, err := s.repo.FindSesionByID(ctx, sesionID)
	if err != nil {
		return nil, fmt.Errorf("%w: cerrar caja: %v", ErrPersistence, err)
	}
	declarado := req.MontoContado
	diferencia := dec3(rec.Difference)
	estado := string(rec.Status)
	sesion.MontoActual = dec3(closed.CurrentAmount)
	sesion.MontoDeclarado = &declarado
	sesion.Diferencia = &diferencia
	sesion.Conciliacion = &estado
	sesion.Estado = "cerrada"
	sesion.ClosedAt = closed.ClosedAt
	if err := s.repo.UpdateSesion(ctx, sesion); err != nil {
		return nil, fmt.Errorf("%w: cerrar caja: %v", ErrPersistence, err)
	}
	delete(s.activas, operadorID)

	log.Info().
		Str("operador_id", operadorID).
		Str("sesion_caja_id", reg.ID).
		Str("conciliacion", estado).
		Str("diferencia", diferencia.String()).
		Msg("caja: cerrada")
	return toConciliacion(reg.ID, rec), nil
}

// ── ObtenerReporte ────────────────────────────────────────────────────────────

func (s *cajaService) ObtenerReporte(ctx context.Context, sesionID uuid.UUID) (*dto.ReporteCajaResponse, error) {
	sesion, err := s.repo.FindSesionByID(ctx, sesionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSesionNoEncontrada
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	sums, err := s.repo.SumMovimientosByTipo(ctx, sesionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	movs, err := s.repo.ListMovimientos(ctx, sesionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	reg := registerFromSesion(sesion)
	resp := &dto.ReporteCajaResponse{
		CajaResponse: *toCajaResponse(reg),
		TotalVentas:  sums["venta"],
		TotalCompras: sums["compra"].Abs(),
		Movimientos:  len(movs),
	}
	if rec, ok := reg.Reconciliation(); ok {
		resp.Conciliacion = toConciliacion(reg.ID, rec)
	}
	return resp, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func registerFromSesion(s *model.SesionCaja) register.CashRegister {
	reg := register.Open(s.ID.String(), s.MontoInicial.InexactFloat64(), s.OpenedAt)
	reg.CurrentAmount = s.MontoActual.InexactFloat64()
	if s.Estado == "cerrada" {
		reg.Status = register.StatusClosed
		reg.ClosedAt = s.ClosedAt
		if s.MontoDeclarado != nil {
			final := s.MontoDeclarado.InexactFloat64()
			reg.FinalAmount = &final
		}
		if s.Diferencia != nil {
			diff := s.Diferencia.InexactFloat64()
			reg.Difference = &diff
		}
	}
	return reg
}

func toCajaResponse(reg register.CashRegister) *dto.CajaResponse {
	estado := "abierta"
	if reg.Status == register.StatusClosed {
		estado = "cerrada"
	}
	return &dto.CajaResponse{
		SesionCajaID: reg.ID,
		Estado:       estado,
		MontoInicial: dec2(reg.InitialAmount),
		MontoActual:  dec3(reg.CurrentAmount),
		OpenedAt:     reg.OpenedAt,
		ClosedAt:     reg.ClosedAt,
	}
}

func toConciliacion(sesionID string, rec register.Reconciliation) *dto.ConciliacionResponse {
	return &dto.ConciliacionResponse{
		SesionCajaID: sesionID,
		Esperado:     dec3(rec.Expected),
		Contado:      decimal.NewFromFloat(rec.Counted).Round(2),
		Diferencia:   dec3(rec.Difference),
		Magnitud:     rec.Magnitude(),
		Estado:       string(rec.Status),
	}
}
