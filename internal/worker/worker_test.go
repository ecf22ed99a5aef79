package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"scrappos/internal/infra"
	"scrappos/internal/model"
	"scrappos/internal/settlement"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ── fakes ─────────────────────────────────────────────────────────────────────

type fakeEmails struct {
	jobs []EmailJobPayload
	err  error
}

func (f *fakeEmails) EnqueueEmail(_ context.Context, p EmailJobPayload) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, p)
	return nil
}

type fakeMailer struct {
	sent []string
	err  error
}

func (f *fakeMailer) SendReceipt(to, _, _, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, to)
	return nil
}

type memLiquidaciones struct {
	rows    map[string]*model.Liquidacion
	updates int
}

func (r *memLiquidaciones) Create(_ context.Context, l *model.Liquidacion) error {
	r.rows[l.PaymentID] = l
	return nil
}

func (r *memLiquidaciones) FindByPaymentID(_ context.Context, id string) (*model.Liquidacion, error) {
	l, ok := r.rows[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return l, nil
}

func (r *memLiquidaciones) UpdatePendiente(_ context.Context, l *model.Liquidacion) (bool, error) {
	cur, ok := r.rows[l.PaymentID]
	if !ok || cur.Estado != "pending" {
		return false, nil
	}
	r.updates++
	cp := *l
	r.rows[l.PaymentID] = &cp
	return true, nil
}

func (r *memLiquidaciones) MarcarHuerfanas(_ context.Context, now time.Time, maxRetries int) (int64, error) {
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

func (r *memLiquidaciones) UpdateEstado(_ context.Context, id, estado string, raw *string) error {
	l, ok := r.rows[id]
	if !ok {
		return errors.New("not found")
	}
	l.Estado = estado
	l.RawRespuesta = raw
	return nil
}

func (r *memLiquidaciones) ListPendingRetries(_ context.Context, now time.Time, limit int) ([]model.Liquidacion, error) {
	var out []model.Liquidacion
	for _, l := range r.rows {
		if l.Estado != "pending" || l.PollFinalizadoAt == nil {
			continue
		}
		if l.NextRetryAt != nil && l.NextRetryAt.After(now) {
			continue
		}
		out = append(out, *l)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type scriptedGateway struct {
	status settlement.Status
	err    error
	calls  int
	// during runs inside CheckStatus, before the answer is returned
	during func()
}

func (g *scriptedGateway) CheckStatus(_ context.Context, _ string) (settlement.RemoteStatus, error) {
	g.calls++
	if g.during != nil {
		g.during()
	}
	if g.err != nil {
		return settlement.RemoteStatus{}, g.err
	}
	return settlement.RemoteStatus{Status: g.status, Raw: json.RawMessage(`{"status":"` + string(g.status) + `"}`)}, nil
}

func undetermined(id string, ended time.Time) *model.Liquidacion {
	return &model.Liquidacion{
		PaymentID:        id,
		OrdenID:          uuid.New(),
		OperadorID:       "op-1",
		Monto:            decimal.NewFromInt(285),
		Estado:           "pending",
		PollFinalizadoAt: &ended,
	}
}

// ── receipt worker ────────────────────────────────────────────────────────────

func receiptJob(t *testing.T, email *string) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(ReceiptJobPayload{
		Receipt: infra.Receipt{
			BusinessName: "Chatarrería",
			OrderID:      "ord-1",
			OrderType:    "sale",
			Total:        decimal.RequireFromString("361.00"),
		},
		Email: email,
	})
	require.NoError(t, err)
	return raw
}

func TestReceiptWorkerRendersAndEmails(t *testing.T) {
	emails := &fakeEmails{}
	w := NewReceiptWorker(emails, "/receipts")
	var rendered []string
	w.render = func(r infra.Receipt, dir string) (string, error) {
		rendered = append(rendered, r.OrderID)
		return dir + "/ticket_" + r.OrderID + ".pdf", nil
	}

	to := "ana@example.com"
	require.NoError(t, w.Process(context.Background(), receiptJob(t, &to)))

	assert.Equal(t, []string{"ord-1"}, rendered)
	require.Len(t, emails.jobs, 1)
	assert.Equal(t, to, emails.jobs[0].ToEmail)
	assert.Equal(t, "/receipts/ticket_ord-1.pdf", emails.jobs[0].PDFPath)
	assert.Contains(t, emails.jobs[0].Body, "361.00")
}

func TestReceiptWorkerWithoutEmail(t *testing.T) {
	emails := &fakeEmails{}
	w := NewReceiptWorker(emails, t.TempDir())
	w.render = func(r infra.Receipt, dir string) (string, error) { return "x.pdf", nil }

	require.NoError(t, w.Process(context.Background(), receiptJob(t, nil)))
	assert.Empty(t, emails.jobs)
}

func TestReceiptWorkerRenderFailure(t *testing.T) {
	w := NewReceiptWorker(&fakeEmails{}, t.TempDir())
	w.render = func(infra.Receipt, string) (string, error) { return "", errors.New("disk full") }
	assert.Error(t, w.Process(context.Background(), receiptJob(t, nil)))
}

func TestReceiptWorkerEmailEnqueueFailureIsNotFatal(t *testing.T) {
	w := NewReceiptWorker(&fakeEmails{err: errors.New("redis down")}, t.TempDir())
	w.render = func(infra.Receipt, string) (string, error) { return "x.pdf", nil }
	to := "ana@example.com"
	assert.NoError(t, w.Process(context.Background(), receiptJob(t, &to)))
}

func TestReceiptWorkerInvalidPayload(t *testing.T) {
	w := NewReceiptWorker(&fakeEmails{}, t.TempDir())
	assert.Error(t, w.Process(context.Background(), json.RawMessage(`{"receipt":`)))
}

// ── email worker ──────────────────────────────────────────────────────────────

func TestEmailWorker(t *testing.T) {
	m := &fakeMailer{}
	w := NewEmailWorker(m)

	raw, _ := json.Marshal(EmailJobPayload{ToEmail: "ana@example.com", Subject: "s"})
	require.NoError(t, w.Process(context.Background(), raw))
	assert.Equal(t, []string{"ana@example.com"}, m.sent)

	raw, _ = json.Marshal(EmailJobPayload{})
	require.NoError(t, w.Process(context.Background(), raw), "empty recipient is skipped")

	m.err = errors.New("smtp 421")
	raw, _ = json.Marshal(EmailJobPayload{ToEmail: "x@example.com"})
	assert.Error(t, w.Process(context.Background(), raw))
}

func TestWorkerHandlersForType(t *testing.T) {
	h := &WorkerHandlers{Receipt: NewReceiptWorker(nil, ""), Email: NewEmailWorker(nil)}
	assert.NotNil(t, h.forType(JobReceipt))
	assert.NotNil(t, h.forType(JobEmail))
	assert.Nil(t, h.forType("facturacion"))
}

// ── settlement cron ───────────────────────────────────────────────────────────

func newCronConfig(repo *memLiquidaciones, gw *scriptedGateway, resolved *[]string) SettlementCronConfig {
	return SettlementCronConfig{
		Repo:    repo,
		Gateway: gw,
		CB:      infra.NewCircuitBreaker("payment_gateway", infra.DefaultCBConfig()),
		Resolve: func(_ context.Context, l *model.Liquidacion) error {
			*resolved = append(*resolved, l.PaymentID+":"+l.Estado)
			return nil
		},
	}
}

func TestSettlementCronResolvesLateApproval(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	repo := &memLiquidaciones{rows: map[string]*model.Liquidacion{}}
	_ = repo.Create(context.Background(), undetermined("pay-1", now.Add(-time.Minute)))
	gw := &scriptedGateway{status: settlement.StatusApproved}
	var resolved []string

	processSettlements(context.Background(), newCronConfig(repo, gw, &resolved), now)

	assert.Equal(t, []string{"pay-1:approved"}, resolved)
	got := repo.rows["pay-1"]
	assert.Equal(t, "approved", got.Estado)
	assert.Nil(t, got.NextRetryAt)
	require.NotNil(t, got.RawRespuesta)
	assert.Contains(t, *got.RawRespuesta, "approved")
}

func TestSettlementCronStillPendingReschedules(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	repo := &memLiquidaciones{rows: map[string]*model.Liquidacion{}}
	_ = repo.Create(context.Background(), undetermined("pay-1", now.Add(-time.Minute)))
	gw := &scriptedGateway{status: settlement.StatusPending}
	var resolved []string
	cfg := newCronConfig(repo, gw, &resolved)

	processSettlements(context.Background(), cfg, now)
	assert.Empty(t, resolved)
	got := repo.rows["pay-1"]
	assert.Equal(t, "pending", got.Estado)
	require.NotNil(t, got.NextRetryAt)
	assert.True(t, got.NextRetryAt.After(now))

	// not due yet: no new gateway call
	processSettlements(context.Background(), cfg, now.Add(time.Second))
	assert.Equal(t, 1, gw.calls)
}

func TestSettlementCronGatewayFailure(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	repo := &memLiquidaciones{rows: map[string]*model.Liquidacion{}}
	_ = repo.Create(context.Background(), undetermined("pay-1", now.Add(-time.Minute)))
	gw := &scriptedGateway{err: errors.New("502")}
	var resolved []string

	processSettlements(context.Background(), newCronConfig(repo, gw, &resolved), now)
	got := repo.rows["pay-1"]
	assert.Equal(t, 1, got.RetryCount)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "502", *got.LastError)
	assert.Equal(t, now.Add(30*time.Second), *got.NextRetryAt)
	assert.Empty(t, resolved)
}

func TestSettlementCronSkipsWhenBreakerOpen(t *testing.T) {
	now := time.Now()
	repo := &memLiquidaciones{rows: map[string]*model.Liquidacion{}}
	_ = repo.Create(context.Background(), undetermined("pay-1", now.Add(-time.Minute)))
	gw := &scriptedGateway{status: settlement.StatusApproved}
	var resolved []string
	cfg := newCronConfig(repo, gw, &resolved)
	cfg.CB = infra.NewCircuitBreaker("payment_gateway", infra.CircuitBreakerConfig{FailureThreshold: 1, OpenTimeout: time.Hour})
	_ = cfg.CB.Execute(func() error { return errors.New("boom") })

	processSettlements(context.Background(), cfg, now)
	assert.Zero(t, gw.calls)
	assert.Empty(t, resolved)
}

func TestSettlementCronKeepsApprovalThatLandedDuringCheck(t *testing.T) {
	tests := []struct {
		name string
		gw   *scriptedGateway
	}{
		{"gateway still pending", &scriptedGateway{status: settlement.StatusPending}},
		{"gateway failing", &scriptedGateway{err: errors.New("502")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
			repo := &memLiquidaciones{rows: map[string]*model.Liquidacion{}}
			_ = repo.Create(context.Background(), undetermined("pay-1", now.Add(-time.Minute)))
			body := `{"status":"approved"}`
			tt.gw.during = func() {
				require.NoError(t, repo.UpdateEstado(context.Background(), "pay-1", "approved", &body))
			}
			var resolved []string

			processSettlements(context.Background(), newCronConfig(repo, tt.gw, &resolved), now)

			got := repo.rows["pay-1"]
			assert.Equal(t, "approved", got.Estado)
			assert.Equal(t, body, *got.RawRespuesta)
			assert.Zero(t, repo.updates)
			assert.Equal(t, []string{"pay-1:approved"}, resolved)
		})
	}
}

func TestRecoverOrphans(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	repo := &memLiquidaciones{rows: map[string]*model.Liquidacion{}}
	orphan := undetermined("orphan", now)
	orphan.PollFinalizadoAt = nil
	given := undetermined("given-up", now)
	given.PollFinalizadoAt = nil
	given.RetryCount = MaxSettlementRetries
	done := undetermined("done", now)
	done.PollFinalizadoAt = nil
	done.Estado = "rejected"
	for _, l := range []*model.Liquidacion{orphan, given, done} {
		_ = repo.Create(context.Background(), l)
	}

	n, err := RecoverOrphans(context.Background(), repo, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NotNil(t, repo.rows["orphan"].PollFinalizadoAt)
	assert.Nil(t, repo.rows["given-up"].PollFinalizadoAt)
	assert.Nil(t, repo.rows["done"].PollFinalizadoAt)

	// the cron now sees the orphan
	gw := &scriptedGateway{status: settlement.StatusApproved}
	var resolved []string
	processSettlements(context.Background(), newCronConfig(repo, gw, &resolved), now)
	assert.Equal(t, []string{"orphan:approved"}, resolved)
}

func TestComputeRetryBackoff(t *testing.T) {
	assert.Equal(t, 30*time.Second, computeRetryBackoff(0))
	assert.Equal(t, 30*time.Second, computeRetryBackoff(1))
	assert.Equal(t, time.Minute, computeRetryBackoff(2))
	assert.Equal(t, 4*time.Minute, computeRetryBackoff(4))
	assert.Equal(t, 30*time.Minute, computeRetryBackoff(15))
}
