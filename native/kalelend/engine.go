package kalelend

import (
	"errors"
	"math/big"
	"strings"

	"kalelend/crypto"
	nativecommon "kalelend/native/common"
)

var (
	errNilState    = errors.New("kalelend engine: state not configured")
	errNilOracle   = errors.New("kalelend engine: price oracle not configured")
	errMissingUser = errors.New("kalelend engine: user address required")
	errAdminNeeded = errors.New("kalelend engine: admin address required")
)

// engineState is the persistence surface the engine needs. Getters return
// (nil, nil) when the record does not exist.
type engineState interface {
	GetPlatform() (*PlatformState, error)
	PutPlatform(state *PlatformState) error
	GetYieldPool() (*YieldPool, error)
	PutYieldPool(pool *YieldPool) error
	GetStakingPosition(user crypto.Address) (*StakingPosition, error)
	PutStakingPosition(position *StakingPosition) error
	GetBorrowingPosition(user crypto.Address) (*BorrowingPosition, error)
	PutBorrowingPosition(position *BorrowingPosition) error
}

// Engine applies the platform operations to the injected state. An engine is
// built per operation by the host, which also supplies the timestamp and
// commits or discards the writes.
type Engine struct {
	state     engineState
	oracle    PriceOracle
	pauses    nativecommon.PauseView
	now       uint64
	kaleAsset string
	xlmAsset  string
}

// NewEngine constructs an engine reading prices from oracle.
func NewEngine(oracle PriceOracle) *Engine {
	return &Engine{
		oracle:    oracle,
		kaleAsset: AssetKALE,
		xlmAsset:  AssetXLM,
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetTimestamp records the host time, in unix seconds, used by every accrual
// in the current operation.
func (e *Engine) SetTimestamp(ts uint64) {
	if e == nil {
		return
	}
	e.now = ts
}

// SetAssets overrides the oracle symbols for the borrowed and collateral
// assets. Blank values keep the defaults.
func (e *Engine) SetAssets(kale, xlm string) {
	if e == nil {
		return
	}
	if kale = strings.TrimSpace(kale); kale != "" {
		e.kaleAsset = kale
	}
	if xlm = strings.TrimSpace(xlm); xlm != "" {
		e.xlmAsset = xlm
	}
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return nil
}

func (e *Engine) guard() error {
	if err := e.ready(); err != nil {
		return err
	}
	return nativecommon.Guard(e.pauses, moduleName)
}

// loadPlatform returns a working copy of the platform record.
func (e *Engine) loadPlatform() (*PlatformState, error) {
	platform, err := e.state.GetPlatform()
	if err != nil {
		return nil, err
	}
	if platform == nil {
		return nil, ErrNotInitialized
	}
	return platform.Clone(), nil
}

func (e *Engine) loadActivePlatform() (*PlatformState, error) {
	platform, err := e.loadPlatform()
	if err != nil {
		return nil, err
	}
	if !platform.IsActive {
		return nil, ErrPlatformInactive
	}
	return platform, nil
}

func (e *Engine) loadYieldPool() (*YieldPool, error) {
	pool, err := e.state.GetYieldPool()
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, ErrNotInitialized
	}
	return pool.Clone(), nil
}

func (e *Engine) loadStake(user crypto.Address) (*StakingPosition, error) {
	position, err := e.state.GetStakingPosition(user)
	if err != nil {
		return nil, err
	}
	if position == nil {
		return nil, nil
	}
	return position.Clone(), nil
}

func (e *Engine) loadBorrow(user crypto.Address) (*BorrowingPosition, error) {
	position, err := e.state.GetBorrowingPosition(user)
	if err != nil {
		return nil, err
	}
	if position == nil {
		return nil, nil
	}
	return position.Clone(), nil
}

func positive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}

func validateFeeRate(rate uint64) error {
	if rate > MaxBasisPoints {
		return invalidAmount("platform_fee_rate", new(big.Int).SetUint64(rate))
	}
	return nil
}

// Initialize creates the platform and its yield pool. A second call fails
// with AlreadyInitialized and writes nothing.
func (e *Engine) Initialize(params InitParams) error {
	if err := e.ready(); err != nil {
		return err
	}
	existing, err := e.state.GetPlatform()
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrAlreadyInitialized
	}
	if params.Admin.IsZero() {
		return errAdminNeeded
	}
	if err := validateFeeRate(params.PlatformFeeRate); err != nil {
		return err
	}

	platform := &PlatformState{
		Admin:                cloneAddress(params.Admin),
		KaleToken:            cloneAddress(params.KaleToken),
		XLMToken:             cloneAddress(params.XLMToken),
		Oracle:               cloneAddress(params.Oracle),
		TotalStaked:          big.NewInt(0),
		TotalBorrowed:        big.NewInt(0),
		TotalCollateral:      big.NewInt(0),
		StakingAPY:           params.StakingAPY,
		BorrowingAPY:         params.BorrowingAPY,
		PlatformFeeRate:      params.PlatformFeeRate,
		LiquidationThreshold: params.LiquidationThreshold,
		CurrentKalePrice:     big.NewInt(0),
		CurrentXLMPrice:      big.NewInt(0),
		LastPriceUpdate:      e.now,
		IsActive:             true,
	}
	pool := &YieldPool{
		TotalRewardsDistributed: big.NewInt(0),
		StakingRewards:          big.NewInt(0),
		BorrowingFees:           big.NewInt(0),
		PlatformFees:            big.NewInt(0),
		LastDistributionTime:    e.now,
	}
	if err := e.state.PutPlatform(platform); err != nil {
		return err
	}
	return e.state.PutYieldPool(pool)
}

// UpdateConfig applies the non-nil fields of update. Only the platform admin
// may call it, and it remains available while the module is paused.
func (e *Engine) UpdateConfig(caller crypto.Address, update ConfigUpdate) error {
	if err := e.ready(); err != nil {
		return err
	}
	platform, err := e.loadPlatform()
	if err != nil {
		return err
	}
	if caller.IsZero() || !caller.Equal(platform.Admin) {
		return &Error{Kind: KindUnauthorized, Field: "admin"}
	}
	if update.PlatformFeeRate != nil {
		if err := validateFeeRate(*update.PlatformFeeRate); err != nil {
			return err
		}
		platform.PlatformFeeRate = *update.PlatformFeeRate
	}
	if update.StakingAPY != nil {
		platform.StakingAPY = *update.StakingAPY
	}
	if update.BorrowingAPY != nil {
		platform.BorrowingAPY = *update.BorrowingAPY
	}
	if update.LiquidationThreshold != nil {
		platform.LiquidationThreshold = *update.LiquidationThreshold
	}
	if update.IsActive != nil {
		platform.IsActive = *update.IsActive
	}
	return e.state.PutPlatform(platform)
}

// CurrentPrice returns the oracle's KALE price without touching state.
func (e *Engine) CurrentPrice() (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if _, err := e.loadPlatform(); err != nil {
		return nil, err
	}
	return e.fetchPrice(e.kaleAsset)
}

// PlatformState returns a copy of the platform record.
func (e *Engine) PlatformState() (*PlatformState, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.loadPlatform()
}

// YieldPool returns a copy of the yield pool.
func (e *Engine) YieldPool() (*YieldPool, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.loadYieldPool()
}

// StakingPosition returns a copy of the user's staking position.
func (e *Engine) StakingPosition(user crypto.Address) (*StakingPosition, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	position, err := e.loadStake(user)
	if err != nil {
		return nil, err
	}
	if position == nil {
		return nil, positionNotFound("staking")
	}
	return position, nil
}

// BorrowingPosition returns a copy of the user's borrowing position, active or
// not.
func (e *Engine) BorrowingPosition(user crypto.Address) (*BorrowingPosition, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	position, err := e.loadBorrow(user)
	if err != nil {
		return nil, err
	}
	if position == nil {
		return nil, positionNotFound("borrowing")
	}
	return position, nil
}
