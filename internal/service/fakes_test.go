package service

import (
	"bytes"
	"context"
	"sync"
	"time"

	"scrappos/internal/model"
	"scrappos/internal/settlement"
	"scrappos/internal/worker"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ── In-memory MaterialRepository ─────────────────────────────────────────────

type memMaterialRepo struct {
	mu    sync.Mutex
	rows  map[uuid.UUID]*model.Material
	finds int
}

func newMemMaterialRepo(ms ...model.Material) *memMaterialRepo {
	r := &memMaterialRepo{rows: make(map[uuid.UUID]*model.Material)}
	for i := range ms {
		m := ms[i]
		r.rows[m.ID] = &m
	}
	return r
}

func (r *memMaterialRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Material, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finds++
	m, ok := r.rows[id]
	if !ok || !m.Activo {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *memMaterialRepo) ListActivos(_ context.Context) ([]model.Material, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Material
	for _, m := range r.rows {
		if m.Activo {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (r *memMaterialRepo) Upsert(_ context.Context, m *model.Material) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	r.rows[m.ID] = &cp
	return nil
}

// ── In-memory OrdenRepository ────────────────────────────────────────────────

type memOrdenRepo struct {
	mu       sync.Mutex
	clientes map[uuid.UUID]*model.Cliente
	ordenes  map[uuid.UUID]*model.Orden
	updates  int
	failNext error // returned once by the next write
}

func newMemOrdenRepo() *memOrdenRepo {
	return &memOrdenRepo{
		clientes: make(map[uuid.UUID]*model.Cliente),
		ordenes:  make(map[uuid.UUID]*model.Orden),
	}
}

func (r *memOrdenRepo) fail() error {
	err := r.failNext
	r.failNext = nil
	return err
}

func (r *memOrdenRepo) CreateCliente(_ context.Context, c *model.Cliente) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail(); err != nil {
		return err
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = time.Now()
	cp := *c
	r.clientes[c.ID] = &cp
	return nil
}

func (r *memOrdenRepo) withOrdenes(c model.Cliente, keep func(model.Orden) bool) model.Cliente {
	c.Ordenes = nil
	for _, o := range r.ordenes {
		if o.ClienteID == c.ID && keep(*o) {
			c.Ordenes = append(c.Ordenes, cloneOrden(*o))
		}
	}
	sortOrdenes(c.Ordenes)
	return c
}

func (r *memOrdenRepo) FindCliente(_ context.Context, id uuid.UUID) (*model.Cliente, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clientes[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	out := r.withOrdenes(*c, func(model.Orden) bool { return true })
	return &out, nil
}

func (r *memOrdenRepo) ListClientesConOrdenesAbiertas(_ context.Context, operadorID string) ([]model.Cliente, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Cliente
	for _, c := range r.clientes {
		has := false
		for _, o := range r.ordenes {
			if o.ClienteID == c.ID && o.OperadorID == operadorID && o.Estado == "open" {
				has = true
			}
		}
		if has {
			out = append(out, r.withOrdenes(*c, func(model.Orden) bool { return true }))
		}
	}
	return out, nil
}

func (r *memOrdenRepo) CreateOrden(_ context.Context, o *model.Orden) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail(); err != nil {
		return err
	}
	cp := cloneOrden(*o)
	r.ordenes[o.ID] = &cp
	return nil
}

func (r *memOrdenRepo) UpdateOrden(_ context.Context, o *model.Orden) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail(); err != nil {
		return err
	}
	r.updates++
	cp := cloneOrden(*o)
	r.ordenes[o.ID] = &cp
	return nil
}

func (r *memOrdenRepo) FindOrdenByID(_ context.Context, id uuid.UUID) (*model.Orden, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.ordenes[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := cloneOrden(*o)
	return &cp, nil
}

func (r *memOrdenRepo) ListOrdenesByCliente(_ context.Context, clienteID uuid.UUID) ([]model.Orden, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Orden
	for _, o := range r.ordenes {
		if o.ClienteID == clienteID {
			out = append(out, cloneOrden(*o))
		}
	}
	sortOrdenes(out)
	return out, nil
}

func (r *memOrdenRepo) orden(id string) model.Orden {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := r.ordenes[uuid.MustParse(id)]
	if o == nil {
		return model.Orden{}
	}
	return cloneOrden(*o)
}

func cloneOrden(o model.Orden) model.Orden {
	o.Items = append([]model.OrdenItem(nil), o.Items...)
	return o
}

func sortOrdenes(os []model.Orden) {
	for i := 1; i < len(os); i++ {
		for j := i; j > 0 && os[j].CreatedAt.Before(os[j-1].CreatedAt); j-- {
			os[j], os[j-1] = os[j-1], os[j]
		}
	}
}

// ── In-memory CajaRepository ─────────────────────────────────────────────────

type memCajaRepo struct {
	mu          sync.Mutex
	sesiones    map[uuid.UUID]*model.SesionCaja
	movimientos []model.MovimientoCaja
	failApply   error
}

func newMemCajaRepo() *memCajaRepo {
	return &memCajaRepo{sesiones: make(map[uuid.UUID]*model.SesionCaja)}
}

func (r *memCajaRepo) CreateSesion(_ context.Context, s *model.SesionCaja) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.sesiones {
		if other.OperadorID == s.OperadorID && other.Estado == "abierta" {
			return gorm.ErrDuplicatedKey
		}
	}
	cp := *s
	r.sesiones[s.ID] = &cp
	return nil
}

func (r *memCajaRepo) FindSesionAbierta(_ context.Context, operadorID string) (*model.SesionCaja, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sesiones {
		if s.OperadorID == operadorID && s.Estado == "abierta" {
			cp := *s
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memCajaRepo) FindSesionByID(_ context.Context, id uuid.UUID) (*model.SesionCaja, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sesiones[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memCajaRepo) UpdateSesion(_ context.Context, s *model.SesionCaja) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.sesiones[s.ID] = &cp
	return nil
}

func (r *memCajaRepo) ApplyMovimiento(_ context.Context, m *model.MovimientoCaja) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failApply != nil {
		return r.failApply
	}
	for _, other := range r.movimientos {
		if m.OrdenID != nil && other.OrdenID != nil && *other.OrdenID == *m.OrdenID {
			return gorm.ErrDuplicatedKey
		}
	}
	r.movimientos = append(r.movimientos, *m)
	if s, ok := r.sesiones[m.SesionCajaID]; ok && s.Estado == "abierta" {
		s.MontoActual = s.MontoActual.Add(m.Monto)
	}
	return nil
}

func (r *memCajaRepo) ListMovimientos(_ context.Context, sesionID uuid.UUID) ([]model.MovimientoCaja, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.MovimientoCaja
	for _, m := range r.movimientos {
		if m.SesionCajaID == sesionID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memCajaRepo) SumMovimientosByTipo(_ context.Context, sesionID uuid.UUID) (map[string]decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sums := map[string]decimal.Decimal{}
	for _, m := range r.movimientos {
		if m.SesionCajaID == sesionID {
			sums[m.Tipo] = sums[m.Tipo].Add(m.Monto)
		}
	}
	return sums, nil
}

// ── In-memory LiquidacionRepository ──────────────────────────────────────────

type memLiquidacionRepo struct {
	mu   sync.Mutex
	rows map[string]*model.Liquidacion
	// beforeUpdate runs once, ahead of the next UpdatePendiente
	beforeUpdate func()
}

func newMemLiquidacionRepo() *memLiquidacionRepo {
	return &memLiquidacionRepo{rows: make(map[string]*model.Liquidacion)}
}

func (r *memLiquidacionRepo) Create(_ context.Context, l *model.Liquidacion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[l.PaymentID]; ok {
		return gorm.ErrDuplicatedKey
	}
	cp := *l
	cp.CreatedAt, cp.UpdatedAt = time.Now(), time.Now()
	r.rows[l.PaymentID] = &cp
	return nil
}

func (r *memLiquidacionRepo) FindByPaymentID(_ context.Context, id string) (*model.Liquidacion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *l
	return &cp, nil
}

func (r *memLiquidacionRepo) UpdatePendiente(_ context.Context, l *model.Liquidacion) (bool, error) {
	r.mu.Lock()
	hook := r.beforeUpdate
	r.beforeUpdate = nil
	r.mu.Unlock()
	if hook != nil {
		hook()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.rows[l.PaymentID]
	if !ok || cur.Estado != "pending" {
		return false, nil
	}
	cp := *l
	cp.CreatedAt = cur.CreatedAt
	cp.UpdatedAt = time.Now()
	r.rows[l.PaymentID] = &cp
	return true, nil
}

func (r *memLiquidacionRepo) MarcarHuerfanas(_ context.Context, now time.Time, maxRetries int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, l := range r.rows {
		if l.Estado == "pending" && l.PollFinalizadoAt == nil && l.NextRetryAt == nil && l.RetryCount < maxRetries {
			at := now
			l.PollFinalizadoAt, l.NextRetryAt = &at, &at
			n++
		}
	}
	return n, nil
}

func (r *memLiquidacionRepo) UpdateEstado(_ context.Context, id, estado string, raw *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.rows[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	l.Estado = estado
	l.RawRespuesta = raw
	l.UpdatedAt = time.Now()
	return nil
}

func (r *memLiquidacionRepo) ListPendingRetries(_ context.Context, now time.Time, limit int) ([]model.Liquidacion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Liquidacion
	for _, l := range r.rows {
		if l.Estado == "pending" && l.PollFinalizadoAt != nil && (l.NextRetryAt == nil || !l.NextRetryAt.After(now)) {
			out = append(out, *l)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memLiquidacionRepo) get(id string) model.Liquidacion {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.rows[id]; ok {
		return *l
	}
	return model.Liquidacion{}
}

// ── Collaborators ────────────────────────────────────────────────────────────

type scriptedGateway struct {
	mu     sync.Mutex
	status settlement.Status
	err    error
	calls  int
}

func (g *scriptedGateway) set(st settlement.Status) {
	g.mu.Lock()
	g.status = st
	g.mu.Unlock()
}

func (g *scriptedGateway) CheckStatus(_ context.Context, _ string) (settlement.RemoteStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return settlement.RemoteStatus{}, g.err
	}
	st := g.status
	if st == "" {
		st = settlement.StatusPending
	}
	return settlement.RemoteStatus{Status: st}, nil
}

type memReceipts struct {
	mu   sync.Mutex
	jobs []worker.ReceiptJobPayload
	err  error
}

func (q *memReceipts) EnqueueReceipt(_ context.Context, p worker.ReceiptJobPayload) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, p)
	return nil
}

func (q *memReceipts) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

type memNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *memNotifier) Publish(_ context.Context, channel string, _ any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, channel)
}

func (n *memNotifier) count(channel string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e == channel {
			c++
		}
	}
	return c
}

// syncWriter collects log output written from several goroutines.
type syncWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *syncWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}
