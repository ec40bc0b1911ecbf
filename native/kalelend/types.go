package kalelend

import (
	"math/big"

	"kalelend/crypto"
)

// PlatformState is the single global record of the platform. Amounts are
// signed fixed-point integers; rates are basis points.
type PlatformState struct {
	// Admin is the only caller allowed to change configuration.
	Admin     crypto.Address
	KaleToken crypto.Address
	XLMToken  crypto.Address
	// Oracle identifies the price feed the platform was configured against.
	Oracle crypto.Address

	// TotalStaked is the sum of KaleAmount across staking positions.
	TotalStaked *big.Int
	// TotalBorrowed is decremented by the full repaid amount, interest
	// included, so it can drift below the sum of open principal.
	TotalBorrowed *big.Int
	// TotalCollateral is the sum of CollateralAmount across active borrowing
	// positions.
	TotalCollateral *big.Int

	StakingAPY           uint64
	BorrowingAPY         uint64
	PlatformFeeRate      uint64
	LiquidationThreshold uint64

	// Cached oracle reads, refreshed opportunistically by stake, borrow and
	// adjustment.
	CurrentKalePrice *big.Int
	CurrentXLMPrice  *big.Int
	LastPriceUpdate  uint64

	IsActive bool
}

// Clone returns a deep copy of the platform state.
func (p *PlatformState) Clone() *PlatformState {
	if p == nil {
		return nil
	}
	clone := *p
	clone.TotalStaked = copyBig(p.TotalStaked)
	clone.TotalBorrowed = copyBig(p.TotalBorrowed)
	clone.TotalCollateral = copyBig(p.TotalCollateral)
	clone.CurrentKalePrice = copyBig(p.CurrentKalePrice)
	clone.CurrentXLMPrice = copyBig(p.CurrentXLMPrice)
	return &clone
}

// StakingPosition is a user's KALE stake. Positions are never deleted.
type StakingPosition struct {
	User       crypto.Address
	KaleAmount *big.Int
	StartTime  uint64
	// LastClaimTime is the start of the current reward accrual window.
	LastClaimTime uint64

	AutoAdjustEnabled bool
	// PriceThreshold is the minimum absolute price move, in basis points, that
	// triggers a rebalance.
	PriceThreshold      uint64
	LastAdjustmentPrice *big.Int

	TotalEarned *big.Int
}

// Clone returns a deep copy of the position.
func (s *StakingPosition) Clone() *StakingPosition {
	if s == nil {
		return nil
	}
	clone := *s
	clone.User = cloneAddress(s.User)
	clone.KaleAmount = copyBig(s.KaleAmount)
	clone.LastAdjustmentPrice = copyBig(s.LastAdjustmentPrice)
	clone.TotalEarned = copyBig(s.TotalEarned)
	return &clone
}

// BorrowingPosition is a user's KALE loan against XLM collateral. A fully
// repaid position stays on record with IsActive false and its collateral
// field untouched.
type BorrowingPosition struct {
	User             crypto.Address
	BorrowedAmount   *big.Int
	CollateralAmount *big.Int
	BorrowTime       uint64
	// InterestRate is the platform borrowing APY at the time of the borrow.
	InterestRate      uint64
	LastPaymentTime   uint64
	TotalInterestPaid *big.Int
	IsActive          bool
}

// Clone returns a deep copy of the position.
func (b *BorrowingPosition) Clone() *BorrowingPosition {
	if b == nil {
		return nil
	}
	clone := *b
	clone.User = cloneAddress(b.User)
	clone.BorrowedAmount = copyBig(b.BorrowedAmount)
	clone.CollateralAmount = copyBig(b.CollateralAmount)
	clone.TotalInterestPaid = copyBig(b.TotalInterestPaid)
	return &clone
}

// YieldPool aggregates platform-wide reward and fee counters.
type YieldPool struct {
	TotalRewardsDistributed *big.Int
	StakingRewards          *big.Int
	// BorrowingFees is the interest collected on repayment.
	BorrowingFees *big.Int
	// PlatformFees is the platform's PlatformFeeRate share of that interest.
	PlatformFees         *big.Int
	LastDistributionTime uint64
}

// Clone returns a deep copy of the pool.
func (y *YieldPool) Clone() *YieldPool {
	if y == nil {
		return nil
	}
	clone := *y
	clone.TotalRewardsDistributed = copyBig(y.TotalRewardsDistributed)
	clone.StakingRewards = copyBig(y.StakingRewards)
	clone.BorrowingFees = copyBig(y.BorrowingFees)
	clone.PlatformFees = copyBig(y.PlatformFees)
	return &clone
}

// InitParams configures a fresh platform.
type InitParams struct {
	Admin                crypto.Address
	KaleToken            crypto.Address
	XLMToken             crypto.Address
	Oracle               crypto.Address
	StakingAPY           uint64
	BorrowingAPY         uint64
	PlatformFeeRate      uint64
	LiquidationThreshold uint64
}

// ConfigUpdate carries the optional admin overrides. Nil fields are left
// unchanged.
type ConfigUpdate struct {
	StakingAPY           *uint64
	BorrowingAPY         *uint64
	PlatformFeeRate      *uint64
	LiquidationThreshold *uint64
	IsActive             *bool
}

// IsEmpty reports whether the update carries no changes.
func (u ConfigUpdate) IsEmpty() bool {
	return u.StakingAPY == nil && u.BorrowingAPY == nil && u.PlatformFeeRate == nil &&
		u.LiquidationThreshold == nil && u.IsActive == nil
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func cloneAddress(addr crypto.Address) crypto.Address {
	if addr.IsZero() {
		return crypto.Address{}
	}
	return crypto.NewAddress(addr.Prefix(), addr.Bytes())
}
