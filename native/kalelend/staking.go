package kalelend

import (
	"math"
	"math/big"

	"kalelend/crypto"
)

// Stake opens a staking position for user and adds amount to TotalStaked, or
// replaces the terms of an existing position and moves TotalStaked by the
// difference between the new and previous amounts. thresholdPercent is whole
// percent, at most math.MaxUint32, and is stored as basis points.
//
// On an existing position the rewards accrued since the last claim are
// settled first and StartTime and TotalEarned are kept.
func (e *Engine) Stake(user crypto.Address, amount *big.Int, autoAdjust bool, thresholdPercent uint64) error {
	if err := e.guard(); err != nil {
		return err
	}
	if user.IsZero() {
		return errMissingUser
	}
	if !positive(amount) {
		return invalidAmount("amount", amount)
	}
	if thresholdPercent > math.MaxUint32 {
		return invalidAmount("threshold_percent", new(big.Int).SetUint64(thresholdPercent))
	}
	platform, err := e.loadActivePlatform()
	if err != nil {
		return err
	}
	price, err := e.fetchPrice(e.kaleAsset)
	if err != nil {
		return err
	}
	position, err := e.loadStake(user)
	if err != nil {
		return err
	}

	var pool *YieldPool
	delta := new(big.Int).Set(amount)
	if position == nil {
		position = &StakingPosition{
			User:        cloneAddress(user),
			StartTime:   e.now,
			TotalEarned: big.NewInt(0),
		}
	} else {
		pool, err = e.loadYieldPool()
		if err != nil {
			return err
		}
		e.settleReward(platform, position, pool)
		delta.Sub(delta, position.KaleAmount)
	}

	position.KaleAmount = new(big.Int).Set(amount)
	position.LastClaimTime = e.now
	position.AutoAdjustEnabled = autoAdjust
	position.PriceThreshold = thresholdPercent * 100
	position.LastAdjustmentPrice = new(big.Int).Set(price)

	platform.TotalStaked = new(big.Int).Add(platform.TotalStaked, delta)
	platform.CurrentKalePrice = price
	platform.LastPriceUpdate = e.now

	if err := e.state.PutStakingPosition(position); err != nil {
		return err
	}
	if pool != nil {
		if err := e.state.PutYieldPool(pool); err != nil {
			return err
		}
	}
	return e.state.PutPlatform(platform)
}

// TopUp adds amount to an existing stake after settling pending rewards. The
// adjustment reference price is left alone.
func (e *Engine) TopUp(user crypto.Address, amount *big.Int) error {
	if err := e.guard(); err != nil {
		return err
	}
	if !positive(amount) {
		return invalidAmount("amount", amount)
	}
	platform, err := e.loadActivePlatform()
	if err != nil {
		return err
	}
	position, err := e.loadStake(user)
	if err != nil {
		return err
	}
	if position == nil {
		return positionNotFound("staking")
	}
	pool, err := e.loadYieldPool()
	if err != nil {
		return err
	}

	e.settleReward(platform, position, pool)
	position.KaleAmount = new(big.Int).Add(position.KaleAmount, amount)
	platform.TotalStaked = new(big.Int).Add(platform.TotalStaked, amount)

	if err := e.state.PutStakingPosition(position); err != nil {
		return err
	}
	if err := e.state.PutYieldPool(pool); err != nil {
		return err
	}
	return e.state.PutPlatform(platform)
}

// Claim credits the reward accrued since the last claim and restarts the
// accrual window. Calling it twice at the same timestamp yields zero the
// second time.
func (e *Engine) Claim(user crypto.Address) (*big.Int, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	platform, err := e.loadPlatform()
	if err != nil {
		return nil, err
	}
	position, err := e.loadStake(user)
	if err != nil {
		return nil, err
	}
	if position == nil {
		return nil, positionNotFound("staking")
	}
	pool, err := e.loadYieldPool()
	if err != nil {
		return nil, err
	}

	reward := e.settleReward(platform, position, pool)

	if err := e.state.PutStakingPosition(position); err != nil {
		return nil, err
	}
	if err := e.state.PutYieldPool(pool); err != nil {
		return nil, err
	}
	return reward, nil
}

// settleReward moves the pending reward into TotalEarned and the yield pool
// and restarts the accrual window at now.
func (e *Engine) settleReward(platform *PlatformState, position *StakingPosition, pool *YieldPool) *big.Int {
	reward := RewardOwed(position.KaleAmount, platform.StakingAPY, position.LastClaimTime, e.now)
	position.LastClaimTime = e.now
	position.TotalEarned = new(big.Int).Add(copyBig(position.TotalEarned), reward)

	pool.StakingRewards = new(big.Int).Add(pool.StakingRewards, reward)
	pool.TotalRewardsDistributed = new(big.Int).Add(pool.TotalRewardsDistributed, reward)
	pool.LastDistributionTime = e.now
	return reward
}

// CheckAdjustment rebalances the user's stake when the KALE price has moved
// at least PriceThreshold basis points since the last adjustment. It returns
// false without consulting the oracle when auto-adjust is disabled.
func (e *Engine) CheckAdjustment(user crypto.Address) (bool, error) {
	if err := e.guard(); err != nil {
		return false, err
	}
	platform, err := e.loadPlatform()
	if err != nil {
		return false, err
	}
	position, err := e.loadStake(user)
	if err != nil {
		return false, err
	}
	if position == nil {
		return false, positionNotFound("staking")
	}
	if !position.AutoAdjustEnabled {
		return false, nil
	}
	price, err := e.fetchPrice(e.kaleAsset)
	if err != nil {
		return false, err
	}
	change := PriceChangeBps(price, position.LastAdjustmentPrice)
	if !ExceedsThreshold(change, position.PriceThreshold) {
		return false, nil
	}

	adjusted := AdjustedAmount(position.KaleAmount, change)
	delta := new(big.Int).Sub(adjusted, position.KaleAmount)
	position.KaleAmount = adjusted
	position.LastAdjustmentPrice = new(big.Int).Set(price)

	platform.TotalStaked = new(big.Int).Add(platform.TotalStaked, delta)
	platform.CurrentKalePrice = price
	platform.LastPriceUpdate = e.now

	if err := e.state.PutStakingPosition(position); err != nil {
		return false, err
	}
	if err := e.state.PutPlatform(platform); err != nil {
		return false, err
	}
	return true, nil
}
