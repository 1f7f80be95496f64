package integration

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"escrow-settlement-engine/config"
	httpHandler "escrow-settlement-engine/internal/adapter/http/handler"
	redisStorage "escrow-settlement-engine/internal/adapter/storage/redis"
	"escrow-settlement-engine/internal/adapter/swap"
	"escrow-settlement-engine/internal/core/ports"
	"escrow-settlement-engine/internal/derive"
	"escrow-settlement-engine/internal/service"
	"escrow-settlement-engine/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testOpts tunes the application stack under test.
type testOpts struct {
	feeBasisPoints      int64
	requireFullProceeds bool
	swapRates           map[string]string
}

func defaultOpts() testOpts {
	return testOpts{
		feeBasisPoints: 100, // 1%
		swapRates:      map[string]string{"SOL/USDC": "0.001", "BONK/USDC": "0.00002"},
	}
}

// testApp builds a full application stack: real HTTP layer, middleware,
// handlers, services, swap venue, and Redis stores (miniredis), with
// in-memory repos standing in for postgres.
type testApp struct {
	server       *httptest.Server
	redis        *miniredis.Miniredis
	holdings     *inMemoryHoldingRepo
	registryRepo *inMemoryRegistryRepo
	auditRepo    *inMemoryAuditRepo
	adminID      uuid.UUID
	adminToken   string
}

func newTestApp(t *testing.T) *testApp {
	return newTestAppOpts(t, defaultOpts())
}

func newTestAppOpts(t *testing.T, opts testOpts) *testApp {
	t.Helper()

	// Start miniredis
	mr, err := miniredis.Run()
	require.NoError(t, err)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})

	// Redis stores
	sessionCache := redisStorage.NewSessionCache(rdb)

	// Core services with real implementations
	sigSvc := service.NewHMACSignatureService()
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService("test-jwt-secret-key-32bytes!!", 24*time.Hour, "test-issuer")

	// In-memory repos
	accountRepo := newInMemoryAccountRepo()
	registryRepo := newInMemoryRegistryRepo()
	sessionRepo := newInMemorySessionRepo()
	holdingRepo := newInMemoryHoldingRepo()
	auditRepo := newInMemoryAuditRepo()
	webhookRepo := newInMemoryWebhookRepo()
	transactor := newInMemoryTransactor()

	log := logger.New("error", false)

	swapVenue, err := swap.NewVenue(config.SwapConfig{Rates: opts.swapRates}, holdingRepo, log)
	require.NoError(t, err)

	// Business services
	authSvc := service.NewAuthService(accountRepo, hashSvc, tokenSvc)
	registrySvc := service.NewRegistryService(registryRepo, log)
	auditSvc := service.NewAuditService(auditRepo, log)
	webhookSvc := service.NewWebhookService(registryRepo, webhookRepo, sigSvc, &http.Client{Timeout: 5 * time.Second}, log)
	sessionSvc := service.NewSessionService(sessionRepo, registryRepo, holdingRepo, transactor, sessionCache, auditSvc, webhookSvc, log)
	feePolicy := service.NewBasisPointsPolicy(opts.feeBasisPoints)
	settlementSvc := service.NewSettlementService(
		sessionRepo, holdingRepo, transactor, swapVenue, feePolicy,
		sessionCache, auditSvc, webhookSvc, opts.requireFullProceeds, log,
	)

	// The fee administrator account is provisioned at startup.
	admin, err := authSvc.Register(context.Background(), "fee_admin", "AdminPass123!")
	require.NoError(t, err)
	adminToken, _, err := authSvc.Login(context.Background(), "fee_admin", "AdminPass123!")
	require.NoError(t, err)

	feeSvc := service.NewFeeVaultService(holdingRepo, transactor, auditSvc, admin.ID, log)

	redisHealth := redisStorage.NewHealthCheck(rdb)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		AuthSvc:        authSvc,
		RegistrySvc:    registrySvc,
		SessionSvc:     sessionSvc,
		SettlementSvc:  settlementSvc,
		FeeSvc:         feeSvc,
		TokenSvc:       tokenSvc,
		HoldingRepo:    holdingRepo,
		RateLimitStore: redisStorage.NewRateLimitStore(rdb),
		HealthCheckers: []ports.HealthChecker{redisHealth},
		AuditSvc:       auditSvc,
		Logger:         log,
	})

	server := httptest.NewServer(router)

	return &testApp{
		server:       server,
		redis:        mr,
		holdings:     holdingRepo,
		registryRepo: registryRepo,
		auditRepo:    auditRepo,
		adminID:      admin.ID,
		adminToken:   adminToken,
	}
}

func (a *testApp) close() {
	a.server.Close()
	a.redis.Close()
}

// do sends a JSON request and decodes the JSON response body.
func (a *testApp) do(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, a.server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), "body: %s", raw)
	}
	return resp.StatusCode, decoded
}

func data(t *testing.T, resp map[string]interface{}) map[string]interface{} {
	t.Helper()
	d, ok := resp["data"].(map[string]interface{})
	require.True(t, ok, "no data envelope in %v", resp)
	return d
}

// registerAndLogin provisions an account over HTTP and returns its ID and token.
func (a *testApp) registerAndLogin(t *testing.T, username string) (uuid.UUID, string) {
	t.Helper()

	code, resp := a.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]interface{}{
		"username": username,
		"password": "StrongPass123!",
	})
	require.Equal(t, http.StatusCreated, code, "register failed: %v", resp)
	id, err := uuid.Parse(data(t, resp)["account_id"].(string))
	require.NoError(t, err)

	code, resp = a.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]interface{}{
		"username": username,
		"password": "StrongPass123!",
	})
	require.Equal(t, http.StatusOK, code)
	token := data(t, resp)["token"].(string)

	return id, token
}

// --- Integration Tests ---

func TestIntegration_HealthCheck(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	resp, err := http.Get(app.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func TestIntegration_RegisterLoginAndRegistry(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	_, merchantToken := app.registerAndLogin(t, "merchant_one")

	code, resp := app.do(t, http.MethodPost, "/api/v1/merchants/registry", merchantToken, map[string]interface{}{
		"accepted_assets": []string{"USDC", "SOL"},
		"preferred_asset": "USDC",
	})
	require.Equal(t, http.StatusCreated, code, "registry create failed: %v", resp)
	assert.Equal(t, "USDC", data(t, resp)["preferred_asset"])

	// Preferred asset outside the accepted set is rejected
	code, resp = app.do(t, http.MethodPut, "/api/v1/merchants/registry", merchantToken, map[string]interface{}{
		"accepted_assets": []string{"SOL"},
		"preferred_asset": "USDC",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "CFG_001", resp["error_code"])

	// Unauthenticated access is rejected
	code, _ = app.do(t, http.MethodGet, "/api/v1/merchants/registry", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestIntegration_FullSettlementFlow(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	// Webhook sink capturing the signed settlement event
	var webhookMu sync.Mutex
	var webhookBody []byte
	var webhookSig string
	webhookDone := make(chan struct{})
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		webhookMu.Lock()
		webhookBody = body
		webhookSig = r.Header.Get("X-Settlement-Signature")
		webhookMu.Unlock()
		close(webhookDone)
		w.WriteHeader(http.StatusOK)
	}))
	defer sink.Close()

	merchantID, merchantToken := app.registerAndLogin(t, "merchant_settle")
	payerID, payerToken := app.registerAndLogin(t, "payer_settle")

	code, resp := app.do(t, http.MethodPost, "/api/v1/merchants/registry", merchantToken, map[string]interface{}{
		"accepted_assets": []string{"USDC", "SOL", "BONK"},
		"preferred_asset": "USDC",
		"webhook_url":     sink.URL,
	})
	require.Equal(t, http.StatusCreated, code, "registry create failed: %v", resp)

	// Fund the payer wallet
	app.holdings.Seed(payerID.String(), "USDC", 600000)
	app.holdings.Seed(payerID.String(), "SOL", 1000000000)

	// Open: 0.5 USDC + 0.5 SOL-worth, 1 USDC total
	code, resp = app.do(t, http.MethodPost, "/api/v1/sessions", payerToken, map[string]interface{}{
		"recipient":       merchantID.String(),
		"preferred_asset": "USDC",
		"splits":          map[string]int64{"USDC": 500000, "SOL": 500000000},
		"total_requested": 1000000,
	})
	require.Equal(t, http.StatusCreated, code, "open failed: %v", resp)
	sessionID := data(t, resp)["id"].(string)
	assert.Equal(t, "CREATED", data(t, resp)["status"])

	// Deposit both legs
	code, resp = app.do(t, http.MethodPost, "/api/v1/sessions/"+sessionID+"/deposits", payerToken,
		map[string]interface{}{"asset": "USDC", "amount": 500000})
	require.Equal(t, http.StatusOK, code, "usdc deposit failed: %v", resp)
	assert.Equal(t, "PARTIALLY_FUNDED", data(t, resp)["status"])

	code, resp = app.do(t, http.MethodPost, "/api/v1/sessions/"+sessionID+"/deposits", payerToken,
		map[string]interface{}{"asset": "SOL", "amount": 500000000})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "FUNDED", data(t, resp)["status"])

	// The escrow vaults hold the deposits
	sid, err := uuid.Parse(sessionID)
	require.NoError(t, err)
	vaultAddr, _, err := derive.EscrowVault(sid, "SOL")
	require.NoError(t, err)
	vault, err := app.holdings.Get(context.Background(), vaultAddr.String(), "SOL")
	require.NoError(t, err)
	require.NotNil(t, vault)
	assert.Equal(t, int64(500000000), vault.Balance)

	// Finalize: SOL converts at 0.001, gross 1.0 USDC, 1% fee
	code, resp = app.do(t, http.MethodPost, "/api/v1/sessions/"+sessionID+"/finalize", payerToken, nil)
	require.Equal(t, http.StatusOK, code, "finalize failed: %v", resp)
	receipt := data(t, resp)
	assert.Equal(t, float64(1000000), receipt["gross_settled"])
	assert.Equal(t, float64(10000), receipt["fee"])
	assert.Equal(t, float64(990000), receipt["net_to_recipient"])

	// Recipient wallet received the net
	code, resp = app.do(t, http.MethodGet, "/api/v1/wallet", merchantToken, nil)
	require.Equal(t, http.StatusOK, code)
	holdings := data(t, resp)["holdings"].([]interface{})
	require.Len(t, holdings, 1)
	usdc := holdings[0].(map[string]interface{})
	assert.Equal(t, "USDC", usdc["asset"])
	assert.Equal(t, float64(990000), usdc["balance"])

	// Session is settled and the vaults are gone
	code, resp = app.do(t, http.MethodGet, "/api/v1/sessions/"+sessionID, payerToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "SETTLED", data(t, resp)["status"])

	gone, err := app.holdings.Get(context.Background(), vaultAddr.String(), "SOL")
	require.NoError(t, err)
	assert.Nil(t, gone)

	// Fee vault holds the protocol fee; only the admin may withdraw
	code, resp = app.do(t, http.MethodGet, "/api/v1/fees/balance?asset=USDC", app.adminToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(10000), data(t, resp)["balance"])

	code, resp = app.do(t, http.MethodPost, "/api/v1/fees/withdraw", payerToken,
		map[string]interface{}{"asset": "USDC", "amount": 10000})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "ESC_001", resp["error_code"])

	code, _ = app.do(t, http.MethodPost, "/api/v1/fees/withdraw", app.adminToken,
		map[string]interface{}{"asset": "USDC", "amount": 10000})
	require.Equal(t, http.StatusOK, code)

	adminWallet, err := app.holdings.Get(context.Background(), app.adminID.String(), "USDC")
	require.NoError(t, err)
	require.NotNil(t, adminWallet)
	assert.Equal(t, int64(10000), adminWallet.Balance)

	// Drained fee vault rejects further withdrawal
	code, resp = app.do(t, http.MethodPost, "/api/v1/fees/withdraw", app.adminToken,
		map[string]interface{}{"asset": "USDC", "amount": 1})
	assert.Equal(t, http.StatusPaymentRequired, code)
	assert.Equal(t, "ESC_010", resp["error_code"])

	// The settlement webhook arrived, HMAC-signed with the registry secret
	select {
	case <-webhookDone:
	case <-time.After(5 * time.Second):
		t.Fatal("settlement webhook not delivered")
	}

	registry, err := app.registryRepo.GetByOwner(context.Background(), merchantID)
	require.NoError(t, err)

	webhookMu.Lock()
	defer webhookMu.Unlock()
	mac := hmac.New(sha256.New, []byte(registry.WebhookSecret))
	mac.Write(webhookBody)
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), webhookSig)

	var event map[string]interface{}
	require.NoError(t, json.Unmarshal(webhookBody, &event))
	assert.Equal(t, "session.settled", event["event"])
	assert.Equal(t, sessionID, event["session_id"])
	assert.Equal(t, float64(990000), event["net_to_recipient"])
}

func TestIntegration_CancelRefundsDeposits(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	merchantID, merchantToken := app.registerAndLogin(t, "merchant_cancel")
	payerID, payerToken := app.registerAndLogin(t, "payer_cancel")

	code, _ := app.do(t, http.MethodPost, "/api/v1/merchants/registry", merchantToken, map[string]interface{}{
		"accepted_assets": []string{"USDC", "SOL"},
		"preferred_asset": "USDC",
	})
	require.Equal(t, http.StatusCreated, code)

	app.holdings.Seed(payerID.String(), "USDC", 500000)

	code, resp := app.do(t, http.MethodPost, "/api/v1/sessions", payerToken, map[string]interface{}{
		"recipient":       merchantID.String(),
		"preferred_asset": "USDC",
		"splits":          map[string]int64{"USDC": 500000, "SOL": 500000000},
		"total_requested": 1000000,
	})
	require.Equal(t, http.StatusCreated, code)
	sessionID := data(t, resp)["id"].(string)

	code, _ = app.do(t, http.MethodPost, "/api/v1/sessions/"+sessionID+"/deposits", payerToken,
		map[string]interface{}{"asset": "USDC", "amount": 500000})
	require.Equal(t, http.StatusOK, code)

	// Only the payer may cancel
	code, resp = app.do(t, http.MethodPost, "/api/v1/sessions/"+sessionID+"/cancel", merchantToken, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "ESC_001", resp["error_code"])

	code, resp = app.do(t, http.MethodPost, "/api/v1/sessions/"+sessionID+"/cancel", payerToken, nil)
	require.Equal(t, http.StatusOK, code, "cancel failed: %v", resp)
	assert.Equal(t, "CANCELLED", data(t, resp)["status"])

	// Deposit refunded in full
	wallet, err := app.holdings.Get(context.Background(), payerID.String(), "USDC")
	require.NoError(t, err)
	require.NotNil(t, wallet)
	assert.Equal(t, int64(500000), wallet.Balance)

	// Cancelled sessions accept no deposits
	code, resp = app.do(t, http.MethodPost, "/api/v1/sessions/"+sessionID+"/deposits", payerToken,
		map[string]interface{}{"asset": "USDC", "amount": 1})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "ESC_002", resp["error_code"])

	// Terminal sessions can be closed and are gone afterwards
	code, _ = app.do(t, http.MethodDelete, "/api/v1/sessions/"+sessionID, payerToken, nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = app.do(t, http.MethodGet, "/api/v1/sessions/"+sessionID, payerToken, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestIntegration_CancelWithoutDeposits(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	merchantID, merchantToken := app.registerAndLogin(t, "merchant_nodeposit")
	payerID, payerToken := app.registerAndLogin(t, "payer_nodeposit")

	code, _ := app.do(t, http.MethodPost, "/api/v1/merchants/registry", merchantToken, map[string]interface{}{
		"accepted_assets": []string{"USDC"},
		"preferred_asset": "USDC",
	})
	require.Equal(t, http.StatusCreated, code)

	code, resp := app.do(t, http.MethodPost, "/api/v1/sessions", payerToken, map[string]interface{}{
		"recipient":       merchantID.String(),
		"preferred_asset": "USDC",
		"splits":          map[string]int64{"USDC": 100000},
		"total_requested": 100000,
	})
	require.Equal(t, http.StatusCreated, code)
	sessionID := data(t, resp)["id"].(string)

	code, resp = app.do(t, http.MethodPost, "/api/v1/sessions/"+sessionID+"/cancel", payerToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "CANCELLED", data(t, resp)["status"])

	// No holdings were ever created
	holdings, err := app.holdings.ListByAddress(context.Background(), payerID.String())
	require.NoError(t, err)
	assert.Empty(t, holdings)
}

func TestIntegration_NonPayerCannotFinalize(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	merchantID, merchantToken := app.registerAndLogin(t, "merchant_authz")
	payerID, payerToken := app.registerAndLogin(t, "payer_authz")

	code, _ := app.do(t, http.MethodPost, "/api/v1/merchants/registry", merchantToken, map[string]interface{}{
		"accepted_assets": []string{"USDC"},
		"preferred_asset": "USDC",
	})
	require.Equal(t, http.StatusCreated, code)

	app.holdings.Seed(payerID.String(), "USDC", 100000)

	code, resp := app.do(t, http.MethodPost, "/api/v1/sessions", payerToken, map[string]interface{}{
		"recipient":       merchantID.String(),
		"preferred_asset": "USDC",
		"splits":          map[string]int64{"USDC": 100000},
		"total_requested": 100000,
	})
	require.Equal(t, http.StatusCreated, code)
	sessionID := data(t, resp)["id"].(string)

	code, _ = app.do(t, http.MethodPost, "/api/v1/sessions/"+sessionID+"/deposits", payerToken,
		map[string]interface{}{"asset": "USDC", "amount": 100000})
	require.Equal(t, http.StatusOK, code)

	code, resp = app.do(t, http.MethodPost, "/api/v1/sessions/"+sessionID+"/finalize", merchantToken, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "ESC_001", resp["error_code"])

	// Session unchanged
	code, resp = app.do(t, http.MethodGet, "/api/v1/sessions/"+sessionID, payerToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "FUNDED", data(t, resp)["status"])
}

func TestIntegration_ShortFillBelowThresholdRejected(t *testing.T) {
	opts := defaultOpts()
	opts.requireFullProceeds = true
	opts.swapRates = map[string]string{"SOL/USDC": "0.0009"} // short fill

	app := newTestAppOpts(t, opts)
	defer app.close()

	merchantID, merchantToken := app.registerAndLogin(t, "merchant_short")
	payerID, payerToken := app.registerAndLogin(t, "payer_short")

	code, _ := app.do(t, http.MethodPost, "/api/v1/merchants/registry", merchantToken, map[string]interface{}{
		"accepted_assets": []string{"USDC", "SOL"},
		"preferred_asset": "USDC",
	})
	require.Equal(t, http.StatusCreated, code)

	app.holdings.Seed(payerID.String(), "USDC", 500000)
	app.holdings.Seed(payerID.String(), "SOL", 500000000)

	code, resp := app.do(t, http.MethodPost, "/api/v1/sessions", payerToken, map[string]interface{}{
		"recipient":       merchantID.String(),
		"preferred_asset": "USDC",
		"splits":          map[string]int64{"USDC": 500000, "SOL": 500000000},
		"total_requested": 1000000,
	})
	require.Equal(t, http.StatusCreated, code)
	sessionID := data(t, resp)["id"].(string)

	for asset, amount := range map[string]int64{"USDC": 500000, "SOL": 500000000} {
		code, _ = app.do(t, http.MethodPost, "/api/v1/sessions/"+sessionID+"/deposits", payerToken,
			map[string]interface{}{"asset": asset, "amount": amount})
		require.Equal(t, http.StatusOK, code)
	}

	// 500000 + 450000 gross, net after fee falls short of the 1000000 requested
	code, resp = app.do(t, http.MethodPost, "/api/v1/sessions/"+sessionID+"/finalize", payerToken, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "ESC_009", resp["error_code"])
}

func TestIntegration_ShortFillSettlesAtAchievedAmount(t *testing.T) {
	opts := defaultOpts()
	opts.swapRates = map[string]string{"SOL/USDC": "0.0009"}

	app := newTestAppOpts(t, opts)
	defer app.close()

	merchantID, merchantToken := app.registerAndLogin(t, "merchant_slip")
	payerID, payerToken := app.registerAndLogin(t, "payer_slip")

	code, _ := app.do(t, http.MethodPost, "/api/v1/merchants/registry", merchantToken, map[string]interface{}{
		"accepted_assets": []string{"USDC", "SOL"},
		"preferred_asset": "USDC",
	})
	require.Equal(t, http.StatusCreated, code)

	app.holdings.Seed(payerID.String(), "USDC", 500000)
	app.holdings.Seed(payerID.String(), "SOL", 500000000)

	code, resp := app.do(t, http.MethodPost, "/api/v1/sessions", payerToken, map[string]interface{}{
		"recipient":       merchantID.String(),
		"preferred_asset": "USDC",
		"splits":          map[string]int64{"USDC": 500000, "SOL": 500000000},
		"total_requested": 1000000,
	})
	require.Equal(t, http.StatusCreated, code)
	sessionID := data(t, resp)["id"].(string)

	for asset, amount := range map[string]int64{"USDC": 500000, "SOL": 500000000} {
		code, _ = app.do(t, http.MethodPost, "/api/v1/sessions/"+sessionID+"/deposits", payerToken,
			map[string]interface{}{"asset": asset, "amount": amount})
		require.Equal(t, http.StatusOK, code)
	}

	// Without the full-proceeds requirement the short fill settles as-is:
	// gross 950000, 1% fee 9500, net 940500
	code, resp = app.do(t, http.MethodPost, "/api/v1/sessions/"+sessionID+"/finalize", payerToken, nil)
	require.Equal(t, http.StatusOK, code, "finalize failed: %v", resp)
	receipt := data(t, resp)
	assert.Equal(t, float64(950000), receipt["gross_settled"])
	assert.Equal(t, float64(9500), receipt["fee"])
	assert.Equal(t, float64(940500), receipt["net_to_recipient"])

	wallet, err := app.holdings.Get(context.Background(), merchantID.String(), "USDC")
	require.NoError(t, err)
	require.NotNil(t, wallet)
	assert.Equal(t, int64(940500), wallet.Balance)
}

func TestIntegration_AuditTrailRecorded(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	merchantID, merchantToken := app.registerAndLogin(t, "merchant_audit")
	payerID, payerToken := app.registerAndLogin(t, "payer_audit")

	code, _ := app.do(t, http.MethodPost, "/api/v1/merchants/registry", merchantToken, map[string]interface{}{
		"accepted_assets": []string{"USDC"},
		"preferred_asset": "USDC",
	})
	require.Equal(t, http.StatusCreated, code)

	app.holdings.Seed(payerID.String(), "USDC", 100000)

	code, resp := app.do(t, http.MethodPost, "/api/v1/sessions", payerToken, map[string]interface{}{
		"recipient":       merchantID.String(),
		"preferred_asset": "USDC",
		"splits":          map[string]int64{"USDC": 100000},
		"total_requested": 100000,
	})
	require.Equal(t, http.StatusCreated, code)
	sessionID := data(t, resp)["id"].(string)

	code, _ = app.do(t, http.MethodPost, "/api/v1/sessions/"+sessionID+"/deposits", payerToken,
		map[string]interface{}{"asset": "USDC", "amount": 100000})
	require.Equal(t, http.StatusOK, code)

	code, _ = app.do(t, http.MethodPost, "/api/v1/sessions/"+sessionID+"/finalize", payerToken, nil)
	require.Equal(t, http.StatusOK, code)

	// Audit entries are appended asynchronously
	assert.Eventually(t, func() bool {
		entries, err := app.auditRepo.ListByResource(context.Background(), "payment_session", sessionID, 10)
		if err != nil {
			return false
		}
		var sawDeposit, sawFinalize bool
		for _, e := range entries {
			switch e.Action {
			case "DEPOSIT":
				sawDeposit = true
			case "FINALIZE":
				sawFinalize = true
			}
		}
		return sawDeposit && sawFinalize
	}, 3*time.Second, 50*time.Millisecond, "deposit and finalize audit entries not recorded")
}

func TestIntegration_RegisterRateLimited(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	// 5 registrations per hour per client; the sixth attempt is rejected
	var code int
	var resp map[string]interface{}
	for i := 0; i < 6; i++ {
		code, resp = app.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]interface{}{
			"username": fmt.Sprintf("ratelimited_%d", i),
			"password": "StrongPass123!",
		})
	}
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "RATE_001", resp["error_code"])
}

func TestIntegration_SessionListAndCache(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	merchantID, merchantToken := app.registerAndLogin(t, "merchant_list")
	payerID, payerToken := app.registerAndLogin(t, "payer_list")

	code, _ := app.do(t, http.MethodPost, "/api/v1/merchants/registry", merchantToken, map[string]interface{}{
		"accepted_assets": []string{"USDC"},
		"preferred_asset": "USDC",
	})
	require.Equal(t, http.StatusCreated, code)

	app.holdings.Seed(payerID.String(), "USDC", 300000)

	var sessionIDs []string
	for i := 0; i < 3; i++ {
		code, resp := app.do(t, http.MethodPost, "/api/v1/sessions", payerToken, map[string]interface{}{
			"recipient":       merchantID.String(),
			"preferred_asset": "USDC",
			"splits":          map[string]int64{"USDC": 100000},
			"total_requested": 100000,
		})
		require.Equal(t, http.StatusCreated, code)
		sessionIDs = append(sessionIDs, data(t, resp)["id"].(string))
	}

	code, resp := app.do(t, http.MethodGet, "/api/v1/sessions", merchantToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, data(t, resp)["items"].([]interface{}), 3)

	// Repeated reads hit the cache and stay consistent after a transition
	target := sessionIDs[0]
	for i := 0; i < 2; i++ {
		code, resp = app.do(t, http.MethodGet, "/api/v1/sessions/"+target, payerToken, nil)
		require.Equal(t, http.StatusOK, code)
		assert.Equal(t, "CREATED", data(t, resp)["status"])
	}

	code, _ = app.do(t, http.MethodPost, "/api/v1/sessions/"+target+"/deposits", payerToken,
		map[string]interface{}{"asset": "USDC", "amount": 100000})
	require.Equal(t, http.StatusOK, code)

	code, resp = app.do(t, http.MethodGet, "/api/v1/sessions/"+target, payerToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "FUNDED", data(t, resp)["status"])
}
