package routes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kalelend/core"
	"kalelend/crypto"
	"kalelend/gateway/middleware"
	"kalelend/oracle"
	"kalelend/rpc/modules"
	"kalelend/storage"
)

func testAddress(suffix byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[len(raw)-1] = suffix
	return crypto.NewAddress(crypto.KalePrefix, raw)
}

var (
	admin = testAddress(0xA0)
	alice = testAddress(0x01)
)

type apiHarness struct {
	t       *testing.T
	handler http.Handler
	clock   time.Time
}

func newHarness(t *testing.T) *apiHarness {
	t.Helper()
	h := &apiHarness{t: t, clock: time.Unix(1_700_000_000, 0)}
	source, err := oracle.Build(oracle.Config{
		Type:   "static",
		Prices: map[string]string{"KALE": "1", "XLM": "0.1"},
	}, h.clock)
	require.NoError(t, err)
	node, err := core.NewNode(storage.NewMemDB(), source.Oracle, false, core.WithClock(func() time.Time { return h.clock }))
	require.NoError(t, err)

	handler, err := New(Config{
		Module:        modules.NewKaleLendModule(node, source, nil),
		Authenticator: middleware.NewAuthenticator(middleware.AuthConfig{}, nil),
		RateLimiter:   middleware.NewRateLimiter(nil, nil),
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{Enabled: true, MetricsPrefix: "routes_test"}, nil),
	})
	require.NoError(t, err)
	h.handler = handler
	return h
}

func (h *apiHarness) do(method, path string, caller crypto.Address, body any) (*httptest.ResponseRecorder, map[string]any) {
	h.t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&payload).Encode(body))
	}
	req := httptest.NewRequest(method, path, &payload)
	if !caller.IsZero() {
		req.Header.Set(middleware.HeaderCaller, caller.String())
	}
	res := httptest.NewRecorder()
	h.handler.ServeHTTP(res, req)
	var decoded map[string]any
	if res.Body.Len() > 0 && res.Header().Get("Content-Type") == "application/json" {
		require.NoError(h.t, json.Unmarshal(res.Body.Bytes(), &decoded))
	}
	return res, decoded
}

func (h *apiHarness) initialize() {
	h.t.Helper()
	res, body := h.do(http.MethodPost, "/v1/platform/initialize", admin, map[string]any{
		"staking_apy":           500,
		"borrowing_apy":         "800",
		"platform_fee_rate":     100,
		"liquidation_threshold": 15000,
	})
	require.Equal(h.t, http.StatusCreated, res.Code, res.Body.String())
	require.Equal(h.t, admin.String(), body["admin"])
	require.Equal(h.t, "0", body["total_staked"])
}

func errorField(body map[string]any, key string) any {
	inner, _ := body["error"].(map[string]any)
	return inner[key]
}

func TestInitializeAndPlatform(t *testing.T) {
	h := newHarness(t)

	res, body := h.do(http.MethodGet, "/v1/platform", crypto.Address{}, nil)
	require.Equal(t, http.StatusConflict, res.Code)
	require.Equal(t, "not_initialized", errorField(body, "kind"))

	h.initialize()

	res, body = h.do(http.MethodPost, "/v1/platform/initialize", admin, map[string]any{})
	require.Equal(t, http.StatusConflict, res.Code)
	require.Equal(t, "already_initialized", errorField(body, "kind"))

	res, body = h.do(http.MethodGet, "/v1/price", crypto.Address{}, nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "1000000", body["price"])
	require.Equal(t, "1.000000", body["display"])
}

func TestStakeLifecycle(t *testing.T) {
	h := newHarness(t)
	h.initialize()

	res, body := h.do(http.MethodPost, "/v1/stake", alice, map[string]any{
		"amount":            "1000000",
		"auto_adjust":       true,
		"threshold_percent": 10,
	})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	require.Equal(t, "1000000", body["kale_amount"])
	require.EqualValues(t, 1000, body["price_threshold_bps"])

	h.clock = h.clock.Add(365 * 24 * time.Hour)
	res, body = h.do(http.MethodPost, "/v1/claim", alice, nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "50000", body["reward"])

	res, body = h.do(http.MethodPost, "/v1/stake/topup", alice, map[string]any{"amount": "500"})
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "1000500", body["kale_amount"])

	res, body = h.do(http.MethodGet, "/v1/positions/"+alice.String()+"/staking", crypto.Address{}, nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "50000", body["total_earned"])

	res, body = h.do(http.MethodPost, "/v1/adjust", crypto.Address{}, map[string]any{"user": alice.String()})
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, false, body["adjusted"])

	res, body = h.do(http.MethodGet, "/v1/yield", crypto.Address{}, nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "50000", body["staking_rewards"])
}

func TestStakeValidation(t *testing.T) {
	h := newHarness(t)
	h.initialize()

	res, body := h.do(http.MethodPost, "/v1/stake", alice, map[string]any{"amount": "0"})
	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Equal(t, "invalid_amount", errorField(body, "kind"))
	require.Equal(t, "amount", errorField(body, "field"))

	res, body = h.do(http.MethodPost, "/v1/stake", alice, map[string]any{"amount": "1.5"})
	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Equal(t, "invalid_amount", errorField(body, "kind"))

	res, _ = h.do(http.MethodPost, "/v1/stake", alice, map[string]any{"amount": "10", "surprise": true})
	require.Equal(t, http.StatusBadRequest, res.Code)

	res, body = h.do(http.MethodPost, "/v1/stake", crypto.Address{}, map[string]any{"amount": "10"})
	require.Equal(t, http.StatusUnauthorized, res.Code)
	require.Equal(t, "unauthenticated", errorField(body, "kind"))

	res, _ = h.do(http.MethodGet, "/v1/positions/not-an-address/staking", crypto.Address{}, nil)
	require.Equal(t, http.StatusBadRequest, res.Code)

	res, body = h.do(http.MethodGet, "/v1/positions/"+alice.String()+"/staking", crypto.Address{}, nil)
	require.Equal(t, http.StatusNotFound, res.Code)
	require.Equal(t, "position_not_found", errorField(body, "kind"))
}

func TestBorrowAndRepay(t *testing.T) {
	h := newHarness(t)
	h.initialize()

	res, body := h.do(http.MethodPost, "/v1/borrow", alice, map[string]any{"collateral": "1000000", "amount": "100000"})
	require.Equal(t, http.StatusUnprocessableEntity, res.Code)
	require.Equal(t, "insufficient_collateral", errorField(body, "kind"))
	require.Equal(t, "15000", errorField(body, "required"))
	require.Equal(t, "10000", errorField(body, "actual"))

	res, body = h.do(http.MethodPost, "/v1/borrow", alice, map[string]any{"collateral": "1500000", "amount": "100000"})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	require.Equal(t, true, body["is_active"])

	res, body = h.do(http.MethodPost, "/v1/borrow", alice, map[string]any{"collateral": "1500000", "amount": "1"})
	require.Equal(t, http.StatusConflict, res.Code)
	require.Equal(t, "position_active", errorField(body, "kind"))

	h.clock = h.clock.Add(365 * 24 * time.Hour)
	res, body = h.do(http.MethodPost, "/v1/repay", alice, map[string]any{"amount": "1000000"})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	require.Equal(t, "108000", body["applied"])
	position := body["position"].(map[string]any)
	require.Equal(t, "0", position["borrowed_amount"])
	require.Equal(t, false, position["is_active"])

	res, body = h.do(http.MethodGet, "/v1/platform", crypto.Address{}, nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "0", body["total_collateral"])

	res, body = h.do(http.MethodGet, "/v1/yield", crypto.Address{}, nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "8000", body["borrowing_fees"])
	require.Equal(t, "80", body["platform_fees"])

	res, body = h.do(http.MethodPost, "/v1/repay", alice, map[string]any{"amount": "1"})
	require.Equal(t, http.StatusConflict, res.Code)
	require.Equal(t, "position_inactive", errorField(body, "kind"))
}

func TestConfigPauseAndPrices(t *testing.T) {
	h := newHarness(t)
	h.initialize()

	res, body := h.do(http.MethodPatch, "/v1/platform/config", alice, map[string]any{"staking_apy": 900})
	require.Equal(t, http.StatusForbidden, res.Code)
	require.Equal(t, "unauthorized", errorField(body, "kind"))

	res, body = h.do(http.MethodPatch, "/v1/platform/config", admin, map[string]any{"staking_apy": -1})
	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Equal(t, "-1", errorField(body, "actual"))

	res, body = h.do(http.MethodPatch, "/v1/platform/config", admin, map[string]any{"platform_fee_rate": 10001})
	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Equal(t, "platform_fee_rate", errorField(body, "field"))

	res, body = h.do(http.MethodPatch, "/v1/platform/config", admin, map[string]any{"staking_apy": 900})
	require.Equal(t, http.StatusOK, res.Code)
	require.EqualValues(t, 900, body["staking_apy"])

	res, body = h.do(http.MethodPost, "/v1/platform/pause", admin, map[string]any{"paused": true})
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, true, body["paused"])

	res, body = h.do(http.MethodPost, "/v1/stake", alice, map[string]any{"amount": "10"})
	require.Equal(t, http.StatusServiceUnavailable, res.Code)
	require.Equal(t, "paused", errorField(body, "kind"))

	res, _ = h.do(http.MethodPost, "/v1/platform/pause", admin, map[string]any{"paused": false})
	require.Equal(t, http.StatusOK, res.Code)

	res, _ = h.do(http.MethodPost, "/v1/oracle/prices", alice, map[string]any{"asset": "KALE", "price": "2"})
	require.Equal(t, http.StatusForbidden, res.Code)

	res, _ = h.do(http.MethodPost, "/v1/oracle/prices", admin, map[string]any{"asset": "KALE", "price": "abc"})
	require.Equal(t, http.StatusBadRequest, res.Code)

	res, _ = h.do(http.MethodPost, "/v1/oracle/prices", admin, map[string]any{"asset": "kale", "price": "2.5"})
	require.Equal(t, http.StatusAccepted, res.Code)

	res, body = h.do(http.MethodGet, "/v1/price", crypto.Address{}, nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "2500000", body["price"])
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)
	res, _ := h.do(http.MethodGet, "/healthz", crypto.Address{}, nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.NotEmpty(t, res.Header().Get(middleware.HeaderRequestID))

	res, _ = h.do(http.MethodGet, "/metrics", crypto.Address{}, nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Contains(t, res.Body.String(), "routes_test_requests_total")
}

func TestNewRequiresModule(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}
