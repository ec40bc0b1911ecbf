package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"kalelend/crypto"
	"kalelend/gateway/middleware"
	"kalelend/native/kalelend"
	"kalelend/oracle"
	"kalelend/rpc/modules"
)

const kaleLendRequestLimit = 1 << 20 // 1 MiB

// kaleLendRoutes adapts HTTP requests onto the module.
type kaleLendRoutes struct {
	module  *modules.KaleLendModule
	logger  *slog.Logger
	timeout time.Duration
}

func newKaleLendRoutes(module *modules.KaleLendModule, logger *slog.Logger, timeout time.Duration) *kaleLendRoutes {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &kaleLendRoutes{module: module, logger: logger, timeout: timeout}
}

func (kr *kaleLendRoutes) mountReads(r chi.Router) {
	r.Get("/price", kr.currentPrice)
	r.Get("/platform", kr.platform)
	r.Get("/yield", kr.yieldPool)
	r.Get("/positions/{address}/staking", kr.stakingPosition)
	r.Get("/positions/{address}/borrowing", kr.borrowingPosition)
}

func (kr *kaleLendRoutes) mountWrites(r chi.Router) {
	r.Post("/platform/initialize", kr.initialize)
	r.Patch("/platform/config", kr.updateConfig)
	r.Post("/platform/pause", kr.setPaused)
	r.Post("/stake", kr.stake)
	r.Post("/stake/topup", kr.topUp)
	r.Post("/borrow", kr.borrow)
	r.Post("/repay", kr.repay)
	r.Post("/claim", kr.claim)
	r.Post("/adjust", kr.adjust)
	r.Post("/oracle/prices", kr.publishPrice)
}

func (kr *kaleLendRoutes) context(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, kr.timeout)
}

type initializeRequest struct {
	Admin                string      `json:"admin"`
	KaleToken            string      `json:"kale_token"`
	XLMToken             string      `json:"xlm_token"`
	Oracle               string      `json:"oracle"`
	StakingAPY           json.Number `json:"staking_apy"`
	BorrowingAPY         json.Number `json:"borrowing_apy"`
	PlatformFeeRate      json.Number `json:"platform_fee_rate"`
	LiquidationThreshold json.Number `json:"liquidation_threshold"`
}

func (kr *kaleLendRoutes) initialize(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	params := kalelend.InitParams{}
	var modErr *modules.ModuleError
	if params.Admin, modErr = optionalAddress("admin", req.Admin); modErr != nil {
		writeModuleError(w, modErr)
		return
	}
	if params.KaleToken, modErr = optionalAddress("kale_token", req.KaleToken); modErr != nil {
		writeModuleError(w, modErr)
		return
	}
	if params.XLMToken, modErr = optionalAddress("xlm_token", req.XLMToken); modErr != nil {
		writeModuleError(w, modErr)
		return
	}
	if params.Oracle, modErr = optionalAddress("oracle", req.Oracle); modErr != nil {
		writeModuleError(w, modErr)
		return
	}
	for _, rate := range []struct {
		field string
		raw   json.Number
		dst   *uint64
	}{
		{"staking_apy", req.StakingAPY, &params.StakingAPY},
		{"borrowing_apy", req.BorrowingAPY, &params.BorrowingAPY},
		{"platform_fee_rate", req.PlatformFeeRate, &params.PlatformFeeRate},
		{"liquidation_threshold", req.LiquidationThreshold, &params.LiquidationThreshold},
	} {
		if *rate.dst, modErr = parseRate(rate.field, rate.raw); modErr != nil {
			writeModuleError(w, modErr)
			return
		}
	}

	ctx, cancel := kr.context(r.Context())
	defer cancel()
	caller, _ := middleware.CallerFromContext(r.Context())
	if modErr := kr.module.Initialize(ctx, caller, params); modErr != nil {
		writeModuleError(w, modErr)
		return
	}
	kr.writePlatform(w, http.StatusCreated)
}

type configRequest struct {
	StakingAPY           *json.Number `json:"staking_apy"`
	BorrowingAPY         *json.Number `json:"borrowing_apy"`
	PlatformFeeRate      *json.Number `json:"platform_fee_rate"`
	LiquidationThreshold *json.Number `json:"liquidation_threshold"`
	IsActive             *bool        `json:"is_active"`
}

func (kr *kaleLendRoutes) updateConfig(w http.ResponseWriter, r *http.Request) {
	var req configRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	update := kalelend.ConfigUpdate{IsActive: req.IsActive}
	for _, rate := range []struct {
		field string
		raw   *json.Number
		dst   **uint64
	}{
		{"staking_apy", req.StakingAPY, &update.StakingAPY},
		{"borrowing_apy", req.BorrowingAPY, &update.BorrowingAPY},
		{"platform_fee_rate", req.PlatformFeeRate, &update.PlatformFeeRate},
		{"liquidation_threshold", req.LiquidationThreshold, &update.LiquidationThreshold},
	} {
		if rate.raw == nil {
			continue
		}
		value, modErr := parseRate(rate.field, *rate.raw)
		if modErr != nil {
			writeModuleError(w, modErr)
			return
		}
		*rate.dst = &value
	}

	ctx, cancel := kr.context(r.Context())
	defer cancel()
	caller, _ := middleware.CallerFromContext(r.Context())
	if modErr := kr.module.UpdateConfig(ctx, caller, update); modErr != nil {
		writeModuleError(w, modErr)
		return
	}
	kr.writePlatform(w, http.StatusOK)
}

type pauseRequest struct {
	Paused bool `json:"paused"`
}

func (kr *kaleLendRoutes) setPaused(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	caller, _ := middleware.CallerFromContext(r.Context())
	if modErr := kr.module.SetPaused(caller, req.Paused); modErr != nil {
		writeModuleError(w, modErr)
		return
	}
	if req.Paused {
		kr.logger.Warn("kalelend paused by operator", slog.String("caller", caller.String()))
	} else {
		kr.logger.Info("kalelend resumed by operator", slog.String("caller", caller.String()))
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": kr.module.Paused()})
}

type stakeRequest struct {
	Amount           json.Number `json:"amount"`
	AutoAdjust       bool        `json:"auto_adjust"`
	ThresholdPercent json.Number `json:"threshold_percent"`
}

func (kr *kaleLendRoutes) stake(w http.ResponseWriter, r *http.Request) {
	var req stakeRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, modErr := parseAmount("amount", req.Amount)
	if modErr != nil {
		writeModuleError(w, modErr)
		return
	}
	threshold, modErr := parseRate("threshold_percent", req.ThresholdPercent)
	if modErr != nil {
		writeModuleError(w, modErr)
		return
	}

	ctx, cancel := kr.context(r.Context())
	defer cancel()
	caller, _ := middleware.CallerFromContext(r.Context())
	if modErr := kr.module.Stake(ctx, caller, amount, req.AutoAdjust, threshold); modErr != nil {
		writeModuleError(w, modErr)
		return
	}
	kr.writeStake(w, caller)
}

type amountRequest struct {
	Amount json.Number `json:"amount"`
}

func (kr *kaleLendRoutes) topUp(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, modErr := parseAmount("amount", req.Amount)
	if modErr != nil {
		writeModuleError(w, modErr)
		return
	}

	ctx, cancel := kr.context(r.Context())
	defer cancel()
	caller, _ := middleware.CallerFromContext(r.Context())
	if modErr := kr.module.TopUp(ctx, caller, amount); modErr != nil {
		writeModuleError(w, modErr)
		return
	}
	kr.writeStake(w, caller)
}

type borrowRequest struct {
	Collateral json.Number `json:"collateral"`
	Amount     json.Number `json:"amount"`
}

func (kr *kaleLendRoutes) borrow(w http.ResponseWriter, r *http.Request) {
	var req borrowRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	collateral, modErr := parseAmount("collateral_amount", req.Collateral)
	if modErr != nil {
		writeModuleError(w, modErr)
		return
	}
	amount, modErr := parseAmount("borrow_amount", req.Amount)
	if modErr != nil {
		writeModuleError(w, modErr)
		return
	}

	ctx, cancel := kr.context(r.Context())
	defer cancel()
	caller, _ := middleware.CallerFromContext(r.Context())
	if modErr := kr.module.Borrow(ctx, caller, collateral, amount); modErr != nil {
		writeModuleError(w, modErr)
		return
	}
	position, modErr := kr.module.BorrowingPosition(caller)
	if modErr != nil {
		writeModuleError(w, modErr)
		return
	}
	writeJSON(w, http.StatusOK, newBorrowView(position))
}

func (kr *kaleLendRoutes) repay(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	amount, modErr := parseAmount("repay_amount", req.Amount)
	if modErr != nil {
		writeModuleError(w, modErr)
		return
	}

	ctx, cancel := kr.context(r.Context())
	defer cancel()
	caller, _ := middleware.CallerFromContext(r.Context())
	applied, modErr := kr.module.Repay(ctx, caller, amount)
	if modErr != nil {
		writeModuleError(w, modErr)
		return
	}
	position, modErr := kr.module.BorrowingPosition(caller)
	if modErr != nil {
		writeModuleError(w, modErr)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Applied  string     `json:"applied"`
		Position borrowView `json:"position"`
	}{Applied: applied.String(), Position: newBorrowView(position)})
}

func (kr *kaleLendRoutes) claim(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := kr.context(r.Context())
	defer cancel()
	caller, _ := middleware.CallerFromContext(r.Context())
	reward, modErr := kr.module.Claim(ctx, caller)
	if modErr != nil {
		writeModuleError(w, modErr)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reward": reward.String()})
}

type adjustRequest struct {
	User string `json:"user"`
}

func (kr *kaleLendRoutes) adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if r.ContentLength != 0 {
		if err := decodeRequest(r, &req); err != nil {
			writeBadRequest(w, err)
			return
		}
	}
	user, modErr := optionalAddress("user", req.User)
	if modErr != nil {
		writeModuleError(w, modErr)
		return
	}
	if user.IsZero() {
		caller, ok := middleware.CallerFromContext(r.Context())
		if !ok {
			writeModuleError(w, &modules.ModuleError{
				HTTPStatus: http.StatusUnauthorized,
				Kind:       "unauthenticated",
				Message:    "caller identity or user required",
			})
			return
		}
		user = caller
	}

	ctx, cancel := kr.context(r.Context())
	defer cancel()
	adjusted, modErr := kr.module.CheckAdjustment(ctx, user)
	if modErr != nil {
		writeModuleError(w, modErr)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user.String(), "adjusted": adjusted})
}

type priceRequest struct {
	Asset     string `json:"asset"`
	Price     string `json:"price"`
	Timestamp uint64 `json:"timestamp"`
}

func (kr *kaleLendRoutes) publishPrice(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	price, err := oracle.ParsePrice(req.Price)
	if err != nil {
		writeModuleError(w, &modules.ModuleError{
			HTTPStatus: http.StatusBadRequest,
			Kind:       kalelend.KindInvalidAmount.String(),
			Field:      "price",
			Message:    err.Error(),
		})
		return
	}
	caller, _ := middleware.CallerFromContext(r.Context())
	if modErr := kr.module.PublishPrice(caller, req.Asset, price, req.Timestamp); modErr != nil {
		writeModuleError(w, modErr)
		return
	}
	kr.logger.Info("price published",
		slog.String("caller", caller.String()),
		slog.String("asset", strings.ToUpper(strings.TrimSpace(req.Asset))),
		slog.String("price", oracle.FormatPrice(price)),
	)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"asset": strings.ToUpper(strings.TrimSpace(req.Asset)),
		"price": price.String(),
	})
}

func (kr *kaleLendRoutes) currentPrice(w http.ResponseWriter, r *http.Request) {
	price, modErr := kr.module.CurrentPrice()
	if modErr != nil {
		writeModuleError(w, modErr)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"asset":   kalelend.AssetKALE,
		"price":   price.String(),
		"display": oracle.FormatPrice(price),
	})
}

func (kr *kaleLendRoutes) platform(w http.ResponseWriter, r *http.Request) {
	kr.writePlatform(w, http.StatusOK)
}

func (kr *kaleLendRoutes) writePlatform(w http.ResponseWriter, status int) {
	platform, modErr := kr.module.Platform()
	if modErr != nil {
		writeModuleError(w, modErr)
		return
	}
	view := newPlatformView(platform)
	view.Paused = kr.module.Paused()
	writeJSON(w, status, view)
}

func (kr *kaleLendRoutes) yieldPool(w http.ResponseWriter, r *http.Request) {
	pool, modErr := kr.module.YieldPool()
	if modErr != nil {
		writeModuleError(w, modErr)
		return
	}
	writeJSON(w, http.StatusOK, newYieldView(pool))
}

func (kr *kaleLendRoutes) stakingPosition(w http.ResponseWriter, r *http.Request) {
	addr, modErr := pathAddress(r)
	if modErr != nil {
		writeModuleError(w, modErr)
		return
	}
	kr.writeStake(w, addr)
}

func (kr *kaleLendRoutes) writeStake(w http.ResponseWriter, addr crypto.Address) {
	position, modErr := kr.module.StakingPosition(addr)
	if modErr != nil {
		writeModuleError(w, modErr)
		return
	}
	writeJSON(w, http.StatusOK, newStakeView(position))
}

func (kr *kaleLendRoutes) borrowingPosition(w http.ResponseWriter, r *http.Request) {
	addr, modErr := pathAddress(r)
	if modErr != nil {
		writeModuleError(w, modErr)
		return
	}
	position, modErr := kr.module.BorrowingPosition(addr)
	if modErr != nil {
		writeModuleError(w, modErr)
		return
	}
	writeJSON(w, http.StatusOK, newBorrowView(position))
}

func pathAddress(r *http.Request) (crypto.Address, *modules.ModuleError) {
	addr, modErr := optionalAddress("address", chi.URLParam(r, "address"))
	if modErr != nil {
		return crypto.Address{}, modErr
	}
	if addr.IsZero() {
		return crypto.Address{}, invalidField("address", "address required")
	}
	return addr, nil
}

func optionalAddress(field, raw string) (crypto.Address, *modules.ModuleError) {
	if strings.TrimSpace(raw) == "" {
		return crypto.Address{}, nil
	}
	addr, err := crypto.DecodeAddress(raw)
	if err != nil {
		return crypto.Address{}, invalidField(field, err.Error())
	}
	return addr, nil
}

// parseAmount reads a base-unit integer. Sign is left to the engine so
// non-positive amounts surface as its InvalidAmount error.
func parseAmount(field string, raw json.Number) (*big.Int, *modules.ModuleError) {
	value, ok := new(big.Int).SetString(strings.TrimSpace(raw.String()), 10)
	if !ok {
		return nil, invalidField(field, fmt.Sprintf("%s must be an integer amount", field))
	}
	return value, nil
}

// parseRate reads a non-negative integer. An empty value reads as zero.
func parseRate(field string, raw json.Number) (uint64, *modules.ModuleError) {
	text := strings.TrimSpace(raw.String())
	if text == "" {
		return 0, nil
	}
	if strings.HasPrefix(text, "-") {
		value, _ := new(big.Int).SetString(text, 10)
		return 0, &modules.ModuleError{
			HTTPStatus: http.StatusBadRequest,
			Kind:       kalelend.KindInvalidAmount.String(),
			Field:      field,
			Message:    fmt.Sprintf("%s must not be negative", field),
			Actual:     value,
		}
	}
	value, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return 0, invalidField(field, fmt.Sprintf("%s must be a non-negative integer", field))
	}
	return value, nil
}

func invalidField(field, message string) *modules.ModuleError {
	return &modules.ModuleError{
		HTTPStatus: http.StatusBadRequest,
		Kind:       kalelend.KindInvalidAmount.String(),
		Field:      field,
		Message:    message,
	}
}

func decodeRequest(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("missing request body")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(io.LimitReader(r.Body, kaleLendRequestLimit))
	decoder.DisallowUnknownFields()
	decoder.UseNumber()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}
