package modules

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"testing"
	"time"

	"kalelend/core"
	"kalelend/crypto"
	nativecommon "kalelend/native/common"
	"kalelend/native/kalelend"
	"kalelend/oracle"
	"kalelend/storage"
)

func testAddress(suffix byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[len(raw)-1] = suffix
	return crypto.NewAddress(crypto.KalePrefix, raw)
}

var (
	adminAddr = testAddress(0xA0)
	aliceAddr = testAddress(0x01)
)

func newTestModule(t *testing.T) (*KaleLendModule, *oracle.Source) {
	t.Helper()
	now := time.Unix(1_700_000_000, 0)
	source, err := oracle.Build(oracle.Config{
		Type:   "static",
		Prices: map[string]string{"KALE": "1", "XLM": "0.1"},
	}, now)
	if err != nil {
		t.Fatalf("build oracle: %v", err)
	}
	node, err := core.NewNode(storage.NewMemDB(), source.Oracle, false, core.WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	module := NewKaleLendModule(node, source, nil)
	module.now = func() time.Time { return now }
	if modErr := module.Initialize(context.Background(), adminAddr, kalelend.InitParams{
		StakingAPY:           500,
		BorrowingAPY:         800,
		PlatformFeeRate:      100,
		LiquidationThreshold: 15_000,
	}); modErr != nil {
		t.Fatalf("initialize: %v", modErr)
	}
	return module, source
}

func TestWrapErrorStatuses(t *testing.T) {
	cases := []struct {
		err    error
		status int
		kind   string
	}{
		{kalelend.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
		{kalelend.ErrUnauthorized, http.StatusForbidden, "unauthorized"},
		{kalelend.ErrPositionNotFound, http.StatusNotFound, "position_not_found"},
		{kalelend.ErrAlreadyInitialized, http.StatusConflict, "already_initialized"},
		{kalelend.ErrPositionActive, http.StatusConflict, "position_active"},
		{kalelend.ErrInsufficientCollateral, http.StatusUnprocessableEntity, "insufficient_collateral"},
		{kalelend.ErrPriceUnavailable, http.StatusServiceUnavailable, "price_unavailable"},
		{fmt.Errorf("host: %w", nativecommon.ErrModulePaused), http.StatusServiceUnavailable, "paused"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "unknown"},
	}
	for _, tc := range cases {
		got := WrapError(tc.err)
		if got.HTTPStatus != tc.status || got.Kind != tc.kind {
			t.Fatalf("WrapError(%v) = %d/%s, want %d/%s", tc.err, got.HTTPStatus, got.Kind, tc.status, tc.kind)
		}
	}
	if WrapError(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}

func TestInitializeDefaultsAdminToCaller(t *testing.T) {
	module, _ := newTestModule(t)
	platform, modErr := module.Platform()
	if modErr != nil {
		t.Fatalf("platform: %v", modErr)
	}
	if !platform.Admin.Equal(adminAddr) {
		t.Fatalf("expected caller as admin, got %s", platform.Admin)
	}
	if modErr := module.Initialize(context.Background(), adminAddr, kalelend.InitParams{}); modErr == nil || modErr.HTTPStatus != http.StatusConflict {
		t.Fatalf("expected conflict on second initialize, got %v", modErr)
	}
	if modErr := module.Initialize(context.Background(), crypto.Address{}, kalelend.InitParams{}); modErr == nil || modErr.HTTPStatus != http.StatusUnauthorized {
		t.Fatalf("expected unauthenticated, got %v", modErr)
	}
}

func TestStakeAndClaim(t *testing.T) {
	module, _ := newTestModule(t)
	ctx := context.Background()

	if modErr := module.Stake(ctx, aliceAddr, big.NewInt(1_000), true, 5); modErr != nil {
		t.Fatalf("stake: %v", modErr)
	}
	position, modErr := module.StakingPosition(aliceAddr)
	if modErr != nil {
		t.Fatalf("position: %v", modErr)
	}
	if position.KaleAmount.Int64() != 1_000 || position.PriceThreshold != 500 {
		t.Fatalf("unexpected position %+v", position)
	}
	reward, modErr := module.Claim(ctx, aliceAddr)
	if modErr != nil {
		t.Fatalf("claim: %v", modErr)
	}
	if reward.Sign() != 0 {
		t.Fatalf("expected zero-elapsed reward, got %s", reward)
	}
	if _, modErr := module.StakingPosition(testAddress(0x09)); modErr == nil || modErr.HTTPStatus != http.StatusNotFound {
		t.Fatalf("expected not found, got %v", modErr)
	}
}

func TestBorrowInsufficientCollateralCarriesDetail(t *testing.T) {
	module, _ := newTestModule(t)
	modErr := module.Borrow(context.Background(), aliceAddr, big.NewInt(1_000), big.NewInt(100))
	if modErr == nil || modErr.HTTPStatus != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %v", modErr)
	}
	if modErr.Required.Int64() != 15_000 || modErr.Actual.Int64() != 10_000 {
		t.Fatalf("unexpected detail required=%s actual=%s", modErr.Required, modErr.Actual)
	}
	if _, modErr := module.Repay(context.Background(), aliceAddr, big.NewInt(1)); modErr == nil || modErr.HTTPStatus != http.StatusNotFound {
		t.Fatalf("expected missing position, got %v", modErr)
	}
}

func TestPublishPriceRequiresAdmin(t *testing.T) {
	module, _ := newTestModule(t)
	if modErr := module.PublishPrice(aliceAddr, "KALE", big.NewInt(2_000_000), 0); modErr == nil || modErr.HTTPStatus != http.StatusForbidden {
		t.Fatalf("expected forbidden, got %v", modErr)
	}
	if modErr := module.PublishPrice(adminAddr, "KALE", big.NewInt(0), 0); modErr == nil || modErr.HTTPStatus != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %v", modErr)
	}
	if modErr := module.PublishPrice(adminAddr, "KALE", big.NewInt(2_000_000), 0); modErr != nil {
		t.Fatalf("publish: %v", modErr)
	}
	price, modErr := module.CurrentPrice()
	if modErr != nil {
		t.Fatalf("price: %v", modErr)
	}
	if price.Int64() != 2_000_000 {
		t.Fatalf("expected published price, got %s", price)
	}
}

func TestSetPausedBlocksMutations(t *testing.T) {
	module, _ := newTestModule(t)
	if modErr := module.SetPaused(aliceAddr, true); modErr == nil || modErr.HTTPStatus != http.StatusForbidden {
		t.Fatalf("expected forbidden, got %v", modErr)
	}
	if modErr := module.SetPaused(adminAddr, true); modErr != nil {
		t.Fatalf("pause: %v", modErr)
	}
	if !module.Paused() {
		t.Fatalf("expected paused module")
	}
	modErr := module.Stake(context.Background(), aliceAddr, big.NewInt(10), false, 0)
	if modErr == nil || modErr.Kind != "paused" {
		t.Fatalf("expected paused error, got %v", modErr)
	}
	update := uint64(200)
	if modErr := module.UpdateConfig(context.Background(), adminAddr, kalelend.ConfigUpdate{PlatformFeeRate: &update}); modErr != nil {
		t.Fatalf("update config while paused: %v", modErr)
	}
}

func TestCheckAdjustmentValidatesUser(t *testing.T) {
	module, _ := newTestModule(t)
	if _, modErr := module.CheckAdjustment(context.Background(), crypto.Address{}); modErr == nil || modErr.HTTPStatus != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %v", modErr)
	}
	if modErr := module.UpdateConfig(context.Background(), adminAddr, kalelend.ConfigUpdate{}); modErr == nil {
		t.Fatalf("expected empty update to be rejected")
	}
}

func TestNilModule(t *testing.T) {
	var module *KaleLendModule
	if _, modErr := module.CurrentPrice(); modErr == nil {
		t.Fatalf("expected unavailable module")
	}
}
