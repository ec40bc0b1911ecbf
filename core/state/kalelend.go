package state

import (
	"fmt"
	"math/big"

	"kalelend/crypto"
	"kalelend/native/kalelend"
)

// signedInt carries a *big.Int through RLP, which only encodes non-negative
// integers. Aggregates such as TotalBorrowed can go negative.
type signedInt struct {
	Negative  bool
	Magnitude *big.Int
}

func packInt(v *big.Int) signedInt {
	if v == nil {
		return signedInt{Magnitude: new(big.Int)}
	}
	return signedInt{Negative: v.Sign() < 0, Magnitude: new(big.Int).Abs(v)}
}

func (s signedInt) unpack() *big.Int {
	out := new(big.Int)
	if s.Magnitude != nil {
		out.Set(s.Magnitude)
	}
	if s.Negative {
		out.Neg(out)
	}
	return out
}

type storedAddress struct {
	Prefix string
	Raw    []byte
}

func packAddress(addr crypto.Address) storedAddress {
	return storedAddress{Prefix: string(addr.Prefix()), Raw: append([]byte(nil), addr.Bytes()...)}
}

func (s storedAddress) unpack() (crypto.Address, error) {
	if len(s.Raw) == 0 {
		return crypto.Address{}, nil
	}
	return crypto.AddressFromBytes(crypto.AddressPrefix(s.Prefix), s.Raw)
}

type storedPlatform struct {
	Admin                storedAddress
	KaleToken            storedAddress
	XLMToken             storedAddress
	Oracle               storedAddress
	TotalStaked          signedInt
	TotalBorrowed        signedInt
	TotalCollateral      signedInt
	StakingAPY           uint64
	BorrowingAPY         uint64
	PlatformFeeRate      uint64
	LiquidationThreshold uint64
	CurrentKalePrice     signedInt
	CurrentXLMPrice      signedInt
	LastPriceUpdate      uint64
	IsActive             bool
}

type storedYieldPool struct {
	TotalRewardsDistributed signedInt
	StakingRewards          signedInt
	BorrowingFees           signedInt
	PlatformFees            signedInt
	LastDistributionTime    uint64
}

type storedStake struct {
	User                storedAddress
	KaleAmount          signedInt
	StartTime           uint64
	LastClaimTime       uint64
	AutoAdjustEnabled   bool
	PriceThreshold      uint64
	LastAdjustmentPrice signedInt
	TotalEarned         signedInt
}

type storedBorrow struct {
	User              storedAddress
	BorrowedAmount    signedInt
	CollateralAmount  signedInt
	BorrowTime        uint64
	InterestRate      uint64
	LastPaymentTime   uint64
	TotalInterestPaid signedInt
	IsActive          bool
}

// KaleLendPlatform loads the platform record.
func (m *Manager) KaleLendPlatform() (*kalelend.PlatformState, bool, error) {
	var stored storedPlatform
	ok, err := m.KVGet(kaleLendPlatformKeyBytes, &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	addrs := make([]crypto.Address, 4)
	for i, raw := range []storedAddress{stored.Admin, stored.KaleToken, stored.XLMToken, stored.Oracle} {
		addr, err := raw.unpack()
		if err != nil {
			return nil, false, fmt.Errorf("kalelend: decode platform address: %w", err)
		}
		addrs[i] = addr
	}
	return &kalelend.PlatformState{
		Admin:                addrs[0],
		KaleToken:            addrs[1],
		XLMToken:             addrs[2],
		Oracle:               addrs[3],
		TotalStaked:          stored.TotalStaked.unpack(),
		TotalBorrowed:        stored.TotalBorrowed.unpack(),
		TotalCollateral:      stored.TotalCollateral.unpack(),
		StakingAPY:           stored.StakingAPY,
		BorrowingAPY:         stored.BorrowingAPY,
		PlatformFeeRate:      stored.PlatformFeeRate,
		LiquidationThreshold: stored.LiquidationThreshold,
		CurrentKalePrice:     stored.CurrentKalePrice.unpack(),
		CurrentXLMPrice:      stored.CurrentXLMPrice.unpack(),
		LastPriceUpdate:      stored.LastPriceUpdate,
		IsActive:             stored.IsActive,
	}, true, nil
}

// KaleLendPutPlatform overwrites the platform record.
func (m *Manager) KaleLendPutPlatform(p *kalelend.PlatformState) error {
	if p == nil {
		return fmt.Errorf("kalelend: platform state must not be nil")
	}
	return m.KVPut(kaleLendPlatformKeyBytes, &storedPlatform{
		Admin:                packAddress(p.Admin),
		KaleToken:            packAddress(p.KaleToken),
		XLMToken:             packAddress(p.XLMToken),
		Oracle:               packAddress(p.Oracle),
		TotalStaked:          packInt(p.TotalStaked),
		TotalBorrowed:        packInt(p.TotalBorrowed),
		TotalCollateral:      packInt(p.TotalCollateral),
		StakingAPY:           p.StakingAPY,
		BorrowingAPY:         p.BorrowingAPY,
		PlatformFeeRate:      p.PlatformFeeRate,
		LiquidationThreshold: p.LiquidationThreshold,
		CurrentKalePrice:     packInt(p.CurrentKalePrice),
		CurrentXLMPrice:      packInt(p.CurrentXLMPrice),
		LastPriceUpdate:      p.LastPriceUpdate,
		IsActive:             p.IsActive,
	})
}

// KaleLendYieldPool loads the yield pool record.
func (m *Manager) KaleLendYieldPool() (*kalelend.YieldPool, bool, error) {
	var stored storedYieldPool
	ok, err := m.KVGet(kaleLendYieldPoolKey, &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &kalelend.YieldPool{
		TotalRewardsDistributed: stored.TotalRewardsDistributed.unpack(),
		StakingRewards:          stored.StakingRewards.unpack(),
		BorrowingFees:           stored.BorrowingFees.unpack(),
		PlatformFees:            stored.PlatformFees.unpack(),
		LastDistributionTime:    stored.LastDistributionTime,
	}, true, nil
}

// KaleLendPutYieldPool overwrites the yield pool record.
func (m *Manager) KaleLendPutYieldPool(pool *kalelend.YieldPool) error {
	if pool == nil {
		return fmt.Errorf("kalelend: yield pool must not be nil")
	}
	return m.KVPut(kaleLendYieldPoolKey, &storedYieldPool{
		TotalRewardsDistributed: packInt(pool.TotalRewardsDistributed),
		StakingRewards:          packInt(pool.StakingRewards),
		BorrowingFees:           packInt(pool.BorrowingFees),
		PlatformFees:            packInt(pool.PlatformFees),
		LastDistributionTime:    pool.LastDistributionTime,
	})
}

// KaleLendStake loads the staking position of addr.
func (m *Manager) KaleLendStake(addr crypto.Address) (*kalelend.StakingPosition, bool, error) {
	var stored storedStake
	ok, err := m.KVGet(KaleLendStakeKey(addr.Bytes()), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	user, err := stored.User.unpack()
	if err != nil {
		return nil, false, fmt.Errorf("kalelend: decode staker: %w", err)
	}
	return &kalelend.StakingPosition{
		User:                user,
		KaleAmount:          stored.KaleAmount.unpack(),
		StartTime:           stored.StartTime,
		LastClaimTime:       stored.LastClaimTime,
		AutoAdjustEnabled:   stored.AutoAdjustEnabled,
		PriceThreshold:      stored.PriceThreshold,
		LastAdjustmentPrice: stored.LastAdjustmentPrice.unpack(),
		TotalEarned:         stored.TotalEarned.unpack(),
	}, true, nil
}

// KaleLendPutStake overwrites the staking position keyed by its user.
func (m *Manager) KaleLendPutStake(position *kalelend.StakingPosition) error {
	if position == nil || position.User.IsZero() {
		return fmt.Errorf("kalelend: staking position requires a user")
	}
	return m.KVPut(KaleLendStakeKey(position.User.Bytes()), &storedStake{
		User:                packAddress(position.User),
		KaleAmount:          packInt(position.KaleAmount),
		StartTime:           position.StartTime,
		LastClaimTime:       position.LastClaimTime,
		AutoAdjustEnabled:   position.AutoAdjustEnabled,
		PriceThreshold:      position.PriceThreshold,
		LastAdjustmentPrice: packInt(position.LastAdjustmentPrice),
		TotalEarned:         packInt(position.TotalEarned),
	})
}

// KaleLendBorrow loads the borrowing position of addr.
func (m *Manager) KaleLendBorrow(addr crypto.Address) (*kalelend.BorrowingPosition, bool, error) {
	var stored storedBorrow
	ok, err := m.KVGet(KaleLendBorrowKey(addr.Bytes()), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	user, err := stored.User.unpack()
	if err != nil {
		return nil, false, fmt.Errorf("kalelend: decode borrower: %w", err)
	}
	return &kalelend.BorrowingPosition{
		User:              user,
		BorrowedAmount:    stored.BorrowedAmount.unpack(),
		CollateralAmount:  stored.CollateralAmount.unpack(),
		BorrowTime:        stored.BorrowTime,
		InterestRate:      stored.InterestRate,
		LastPaymentTime:   stored.LastPaymentTime,
		TotalInterestPaid: stored.TotalInterestPaid.unpack(),
		IsActive:          stored.IsActive,
	}, true, nil
}

// KaleLendPutBorrow overwrites the borrowing position keyed by its user.
func (m *Manager) KaleLendPutBorrow(position *kalelend.BorrowingPosition) error {
	if position == nil || position.User.IsZero() {
		return fmt.Errorf("kalelend: borrowing position requires a user")
	}
	return m.KVPut(KaleLendBorrowKey(position.User.Bytes()), &storedBorrow{
		User:              packAddress(position.User),
		BorrowedAmount:    packInt(position.BorrowedAmount),
		CollateralAmount:  packInt(position.CollateralAmount),
		BorrowTime:        position.BorrowTime,
		InterestRate:      position.InterestRate,
		LastPaymentTime:   position.LastPaymentTime,
		TotalInterestPaid: packInt(position.TotalInterestPaid),
		IsActive:          position.IsActive,
	})
}
