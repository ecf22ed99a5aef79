//go:build integration

package router

// End-to-end tests over real Postgres + Redis via testcontainers.
// Run with: go test -tags integration ./internal/router/... -v

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"scrappos/internal/config"
	"scrappos/internal/dto"
	"scrappos/internal/infra"
	"scrappos/internal/middleware"
	"scrappos/internal/model"
	"scrappos/internal/repository"
	"scrappos/internal/worker"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"gorm.io/gorm"
)

// ── Helpers ──────────────────────────────────────────────────────────────────

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(b)
}

func do(t *testing.T, srv *httptest.Server, method, path string, body *bytes.Buffer, token string) *http.Response {
	t.Helper()
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequest(method, srv.URL+path, body)
	} else {
		req, err = http.NewRequest(method, srv.URL+path, nil)
	}
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dest))
}

func signToken(t *testing.T, secret, operador string) string {
	t.Helper()
	claims := middleware.JWTClaims{
		UserID:   operador,
		Username: "e2e",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

// fakeGateway answers every payment lookup with the current status.
type fakeGateway struct {
	srv    *httptest.Server
	status atomic.Value
}

func newFakeGateway(t *testing.T) *fakeGateway {
	g := &fakeGateway{}
	g.status.Store("in_process")
	g.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"id":     r.URL.Path,
			"status": g.status.Load().(string),
		})
	}))
	t.Cleanup(g.srv.Close)
	return g
}

// ── Test Suite Setup ─────────────────────────────────────────────────────────

type testEnv struct {
	server   *httptest.Server
	token    string
	db       *gorm.DB
	gateway  *fakeGateway
	material uuid.UUID
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	pgC, err := tcPostgres.Run(ctx, "postgres:16-alpine",
		tcPostgres.WithDatabase("scrappos_test"),
		tcPostgres.WithUsername("scrappos"),
		tcPostgres.WithPassword("scrappos"),
		tcPostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	pgURL, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	rdC, err := tcRedis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdC.Terminate(ctx) })

	rdURL, err := rdC.ConnectionString(ctx)
	require.NoError(t, err)

	gw := newFakeGateway(t)

	cfg := &config.Config{
		Env:                        "test",
		JWTSecret:                  "test-secret-key",
		DatabaseURL:                pgURL,
		RedisURL:                   rdURL,
		PaymentGatewayURL:          gw.srv.URL,
		SettlementMaxAttempts:      50,
		SettlementInterval:         20 * time.Millisecond,
		SettlementTransientRetries: 1,
		SettlementTransientBackoff: 10 * time.Millisecond,
		WebhookSecret:              "hook-secret",
		BusinessName:               "Chatarreria E2E",
		ReceiptStoragePath:         t.TempDir(),
		RateLimitRPS:               1000,
		RateLimitBurst:             1000,
	}

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	require.NoError(t, err)
	rdb, err := infra.NewRedis(cfg.RedisURL)
	require.NoError(t, err)

	mat := &model.Material{
		ID:           uuid.New(),
		Codigo:       "CU-1",
		Nombre:       "Cobre brillante",
		PrecioCompra: decimal.RequireFromString("30.00"),
		PrecioVenta:  decimal.RequireFromString("38.00"),
		UnidadMedida: "kg",
		Activo:       true,
	}
	require.NoError(t, repository.NewMaterialRepository(db).Upsert(ctx, mat))

	runCtx, cancel := context.WithCancel(ctx)
	engine, checkoutSvc := New(runCtx, cfg, db, rdb, Deps{
		Gateway:  infra.NewPaymentGateway(cfg.PaymentGatewayURL, ""),
		Receipts: worker.NewDispatcher(rdb),
	})
	t.Cleanup(func() {
		cancel()
		checkoutSvc.Wait()
	})

	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)

	return &testEnv{
		server:   srv,
		token:    signToken(t, cfg.JWTSecret, "op-e2e"),
		db:       db,
		gateway:  gw,
		material: mat.ID,
	}
}

// openOrder selects a new customer in mode and weighs 10 kg of copper with
// 0.5 kg tare.
func (e *testEnv) openOrder(t *testing.T, modo string) dto.OrdenResponse {
	t.Helper()
	resp := do(t, e.server, http.MethodPost, "/v1/ledger/mode", jsonBody(t, dto.ModoRequest{Modo: modo}), e.token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = do(t, e.server, http.MethodPost, "/v1/ledger/customer",
		jsonBody(t, map[string]any{"nombre": "Ana " + uuid.NewString()[:8]}), e.token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = do(t, e.server, http.MethodPost, "/v1/ledger/items", jsonBody(t, map[string]any{
		"material_id": e.material.String(),
		"cantidad":    "10",
		"tara":        "0.5",
	}), e.token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var orden dto.OrdenResponse
	decodeJSON(t, resp, &orden)
	return orden
}

// ── Tests ────────────────────────────────────────────────────────────────────

func TestE2ECashCycle(t *testing.T) {
	env := setupTestEnv(t)

	resp := do(t, env.server, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = do(t, env.server, http.MethodPost, "/v1/caja/abrir",
		jsonBody(t, map[string]any{"monto_inicial": "1000"}), env.token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var caja dto.CajaResponse
	decodeJSON(t, resp, &caja)

	orden := env.openOrder(t, "purchase")
	assert.True(t, decimal.RequireFromString("285").Equal(orden.Total), "9.5 kg at 30: got %s", orden.Total)

	resp = do(t, env.server, http.MethodPost, "/v1/checkout", jsonBody(t, dto.CheckoutRequest{
		OrdenID: orden.ID,
		Metodo:  "cash",
		Guardar: true,
	}), env.token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var co dto.CheckoutResponse
	decodeJSON(t, resp, &co)
	assert.Equal(t, "completed", co.Estado)
	assert.True(t, co.Guardado)
	assert.True(t, decimal.RequireFromString("-285").Equal(co.MovimientoCaja))

	// a second checkout of the same order moves nothing
	resp = do(t, env.server, http.MethodPost, "/v1/checkout", jsonBody(t, dto.CheckoutRequest{
		OrdenID: orden.ID,
		Metodo:  "cash",
	}), env.token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	var movs int64
	require.NoError(t, env.db.Model(&model.MovimientoCaja{}).Where("orden_id = ?", orden.ID).Count(&movs).Error)
	assert.EqualValues(t, 1, movs)

	resp = do(t, env.server, http.MethodPost, "/v1/caja/cerrar",
		jsonBody(t, map[string]any{"monto_contado": "715"}), env.token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var conc dto.ConciliacionResponse
	decodeJSON(t, resp, &conc)
	assert.Equal(t, "balanced", conc.Estado)
	assert.True(t, decimal.RequireFromString("715").Equal(conc.Esperado))

	resp = do(t, env.server, http.MethodGet, "/v1/caja/"+caja.SesionCajaID+"/reporte", nil, env.token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rep dto.ReporteCajaResponse
	decodeJSON(t, resp, &rep)
	assert.Equal(t, 1, rep.Movimientos)
	assert.True(t, decimal.RequireFromString("285").Equal(rep.TotalCompras))
}

func TestE2ECashWithoutRegister(t *testing.T) {
	env := setupTestEnv(t)
	orden := env.openOrder(t, "sale")

	resp := do(t, env.server, http.MethodPost, "/v1/checkout", jsonBody(t, dto.CheckoutRequest{
		OrdenID: orden.ID,
		Metodo:  "cash",
	}), env.token)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestE2EExternalApprovedByPoll(t *testing.T) {
	env := setupTestEnv(t)

	resp := do(t, env.server, http.MethodPost, "/v1/caja/abrir",
		jsonBody(t, map[string]any{"monto_inicial": "1000"}), env.token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	orden := env.openOrder(t, "sale")

	resp = do(t, env.server, http.MethodPost, "/v1/checkout", jsonBody(t, dto.CheckoutRequest{
		OrdenID:   orden.ID,
		Metodo:    "external",
		PaymentID: "pay-e2e-1",
	}), env.token)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	env.gateway.status.Store("approved")

	require.Eventually(t, func() bool {
		resp := do(t, env.server, http.MethodGet, "/v1/checkout/pay-e2e-1", nil, env.token)
		var liq dto.LiquidacionResponse
		decodeJSON(t, resp, &liq)
		return liq.Estado == "approved"
	}, 10*time.Second, 50*time.Millisecond)

	resp = do(t, env.server, http.MethodGet, "/v1/caja/activa", nil, env.token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var caja dto.CajaResponse
	decodeJSON(t, resp, &caja)
	assert.True(t, decimal.RequireFromString("1361").Equal(caja.MontoActual), "got %s", caja.MontoActual)
}

func TestE2EWebhookRejectsBadSecret(t *testing.T) {
	env := setupTestEnv(t)

	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/v1/webhooks/payment",
		jsonBody(t, dto.WebhookPagoRequest{PaymentID: "pay-x", Status: "approved"}))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Secret", "wrong")
	resp, err := env.server.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestE2EProtectedRoutesNeedToken(t *testing.T) {
	env := setupTestEnv(t)
	resp := do(t, env.server, http.MethodGet, "/v1/ledger", nil, "")
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
