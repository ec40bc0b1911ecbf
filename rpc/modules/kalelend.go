package modules

import (
	"context"
	"math/big"
	"net/http"
	"strings"
	"time"

	"kalelend/core"
	"kalelend/crypto"
	"kalelend/native/kalelend"
	"kalelend/observability/metrics"
	"kalelend/oracle"
)

// KaleLendModule exposes the platform operations to transports. Every call
// runs as one atomic operation on the node.
type KaleLendModule struct {
	node    *core.Node
	prices  *oracle.Source
	metrics *metrics.KaleLendMetrics
	now     func() time.Time
}

// NewKaleLendModule builds the module. prices may be nil when no writable
// price backend is configured.
func NewKaleLendModule(node *core.Node, prices *oracle.Source, m *metrics.KaleLendMetrics) *KaleLendModule {
	return &KaleLendModule{node: node, prices: prices, metrics: m, now: time.Now}
}

func (m *KaleLendModule) moduleUnavailable() *ModuleError {
	return &ModuleError{
		HTTPStatus: http.StatusInternalServerError,
		Code:       codeServerError,
		Kind:       kalelend.KindUnknown.String(),
		Message:    "kalelend module not available",
	}
}

func (m *KaleLendModule) ready() *ModuleError {
	if m == nil || m.node == nil {
		return m.moduleUnavailable()
	}
	return nil
}

func (m *KaleLendModule) execute(ctx context.Context, op string, fn func(*kalelend.Engine) error) *ModuleError {
	if err := m.ready(); err != nil {
		return err
	}
	return WrapError(m.node.WithEngine(ctx, op, fn))
}

func (m *KaleLendModule) read(fn func(*kalelend.Engine) error) *ModuleError {
	if err := m.ready(); err != nil {
		return err
	}
	return WrapError(m.node.ReadEngine(fn))
}

// Initialize creates the platform. A zero Admin defaults to the caller.
func (m *KaleLendModule) Initialize(ctx context.Context, caller crypto.Address, params kalelend.InitParams) *ModuleError {
	if caller.IsZero() {
		return unauthenticated()
	}
	if params.Admin.IsZero() {
		params.Admin = caller
	}
	return m.execute(ctx, "initialize", func(engine *kalelend.Engine) error {
		return engine.Initialize(params)
	})
}

func (m *KaleLendModule) Stake(ctx context.Context, caller crypto.Address, amount *big.Int, autoAdjust bool, thresholdPercent uint64) *ModuleError {
	if caller.IsZero() {
		return unauthenticated()
	}
	return m.execute(ctx, "stake", func(engine *kalelend.Engine) error {
		return engine.Stake(caller, amount, autoAdjust, thresholdPercent)
	})
}

func (m *KaleLendModule) TopUp(ctx context.Context, caller crypto.Address, amount *big.Int) *ModuleError {
	if caller.IsZero() {
		return unauthenticated()
	}
	return m.execute(ctx, "topup", func(engine *kalelend.Engine) error {
		return engine.TopUp(caller, amount)
	})
}

func (m *KaleLendModule) Borrow(ctx context.Context, caller crypto.Address, collateral, amount *big.Int) *ModuleError {
	if caller.IsZero() {
		return unauthenticated()
	}
	return m.execute(ctx, "borrow", func(engine *kalelend.Engine) error {
		return engine.Borrow(caller, collateral, amount)
	})
}

// Repay returns the amount applied against the caller's debt.
func (m *KaleLendModule) Repay(ctx context.Context, caller crypto.Address, amount *big.Int) (*big.Int, *ModuleError) {
	if caller.IsZero() {
		return nil, unauthenticated()
	}
	var applied *big.Int
	err := m.execute(ctx, "repay", func(engine *kalelend.Engine) error {
		var err error
		applied, err = engine.Repay(caller, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

// Claim returns the reward credited to the caller.
func (m *KaleLendModule) Claim(ctx context.Context, caller crypto.Address) (*big.Int, *ModuleError) {
	if caller.IsZero() {
		return nil, unauthenticated()
	}
	var reward *big.Int
	err := m.execute(ctx, "claim", func(engine *kalelend.Engine) error {
		var err error
		reward, err = engine.Claim(caller)
		return err
	})
	if err != nil {
		return nil, err
	}
	return reward, nil
}

// CheckAdjustment runs the auto-adjust check for user, which need not be the
// caller so keepers can drive it.
func (m *KaleLendModule) CheckAdjustment(ctx context.Context, user crypto.Address) (bool, *ModuleError) {
	if user.IsZero() {
		return false, invalidParams("user", "user address required")
	}
	var adjusted bool
	err := m.execute(ctx, "adjust", func(engine *kalelend.Engine) error {
		var err error
		adjusted, err = engine.CheckAdjustment(user)
		return err
	})
	if err != nil {
		return false, err
	}
	m.metrics.ObserveAdjustment(adjusted)
	return adjusted, nil
}

func (m *KaleLendModule) UpdateConfig(ctx context.Context, caller crypto.Address, update kalelend.ConfigUpdate) *ModuleError {
	if caller.IsZero() {
		return unauthenticated()
	}
	if update.IsEmpty() {
		return invalidParams("config", "no configuration changes supplied")
	}
	return m.execute(ctx, "update_config", func(engine *kalelend.Engine) error {
		return engine.UpdateConfig(caller, update)
	})
}

func (m *KaleLendModule) CurrentPrice() (*big.Int, *ModuleError) {
	var price *big.Int
	err := m.read(func(engine *kalelend.Engine) error {
		var err error
		price, err = engine.CurrentPrice()
		return err
	})
	if err != nil {
		return nil, err
	}
	return price, nil
}

func (m *KaleLendModule) Platform() (*kalelend.PlatformState, *ModuleError) {
	var platform *kalelend.PlatformState
	err := m.read(func(engine *kalelend.Engine) error {
		var err error
		platform, err = engine.PlatformState()
		return err
	})
	if err != nil {
		return nil, err
	}
	return platform, nil
}

func (m *KaleLendModule) YieldPool() (*kalelend.YieldPool, *ModuleError) {
	var pool *kalelend.YieldPool
	err := m.read(func(engine *kalelend.Engine) error {
		var err error
		pool, err = engine.YieldPool()
		return err
	})
	if err != nil {
		return nil, err
	}
	return pool, nil
}

func (m *KaleLendModule) StakingPosition(user crypto.Address) (*kalelend.StakingPosition, *ModuleError) {
	var position *kalelend.StakingPosition
	err := m.read(func(engine *kalelend.Engine) error {
		var err error
		position, err = engine.StakingPosition(user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return position, nil
}

func (m *KaleLendModule) BorrowingPosition(user crypto.Address) (*kalelend.BorrowingPosition, *ModuleError) {
	var position *kalelend.BorrowingPosition
	err := m.read(func(engine *kalelend.Engine) error {
		var err error
		position, err = engine.BorrowingPosition(user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return position, nil
}

// PublishPrice records a price observation. Only the platform admin may
// publish, and only when the configured source accepts writes. A zero ts is
// stamped with the current time.
func (m *KaleLendModule) PublishPrice(caller crypto.Address, asset string, price *big.Int, ts uint64) *ModuleError {
	if caller.IsZero() {
		return unauthenticated()
	}
	if m.prices == nil || (m.prices.PriceBook == nil && m.prices.Static == nil) {
		return &ModuleError{
			HTTPStatus: http.StatusConflict,
			Code:       codeInvalidParams,
			Kind:       "read_only_oracle",
			Message:    "configured price source does not accept published prices",
		}
	}
	if strings.TrimSpace(asset) == "" {
		return invalidParams("asset", "asset symbol required")
	}
	if price == nil || price.Sign() <= 0 {
		return &ModuleError{
			HTTPStatus: http.StatusBadRequest,
			Code:       codeInvalidParams,
			Kind:       kalelend.KindInvalidAmount.String(),
			Field:      "price",
			Message:    "price must be positive",
			Actual:     price,
		}
	}
	platform, modErr := m.Platform()
	if modErr != nil {
		return modErr
	}
	if !caller.Equal(platform.Admin) {
		return WrapError(&kalelend.Error{Kind: kalelend.KindUnauthorized, Field: "admin"})
	}
	if ts == 0 {
		ts = uint64(m.now().Unix())
	}
	if err := m.prices.Publish(asset, price, ts, caller.String()); err != nil {
		return WrapError(err)
	}
	return nil
}

// SetPaused toggles the operator pause switch for the platform. Admin only.
func (m *KaleLendModule) SetPaused(caller crypto.Address, paused bool) *ModuleError {
	if caller.IsZero() {
		return unauthenticated()
	}
	if err := m.ready(); err != nil {
		return err
	}
	platform, modErr := m.Platform()
	if modErr != nil {
		return modErr
	}
	if !caller.Equal(platform.Admin) {
		return WrapError(&kalelend.Error{Kind: kalelend.KindUnauthorized, Field: "admin"})
	}
	m.node.Pauses().Set(kalelend.ModuleName(), paused)
	return nil
}

// Paused reports whether the platform is paused by the operator.
func (m *KaleLendModule) Paused() bool {
	if m == nil || m.node == nil {
		return false
	}
	return m.node.Pauses().IsPaused(kalelend.ModuleName())
}
