package kalelend

import "math/big"

// Accrual math. Every division truncates toward zero and nothing here touches
// state.

func elapsedSeconds(from, now uint64) *big.Int {
	if now <= from {
		return big.NewInt(0)
	}
	return new(big.Int).SetUint64(now - from)
}

// linearAccrual computes amount * rateBps * elapsed / (year * 10000).
func linearAccrual(amount *big.Int, rateBps uint64, from, now uint64) *big.Int {
	if amount == nil || amount.Sign() == 0 || rateBps == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(rateBps))
	out.Mul(out, elapsedSeconds(from, now))
	return out.Quo(out, yearBasisPoints)
}

// InterestOwed returns the simple interest accrued on borrowed since the last
// payment.
func InterestOwed(borrowed *big.Int, rateBps uint64, lastPayment, now uint64) *big.Int {
	return linearAccrual(borrowed, rateBps, lastPayment, now)
}

// RewardOwed returns the staking reward accrued on amount since the last claim.
func RewardOwed(amount *big.Int, apyBps uint64, lastClaim, now uint64) *big.Int {
	return linearAccrual(amount, apyBps, lastClaim, now)
}

// usdValue converts an amount into a USD value at the given 6-decimal price.
func usdValue(amount, price *big.Int) *big.Int {
	out := new(big.Int).Mul(amount, price)
	return out.Quo(out, priceScale)
}

// CollateralRatio returns the collateral-to-debt value ratio in basis points.
// A borrow worth zero USD after truncation fails with InvalidAmount on the
// borrow_value_usd field.
func CollateralRatio(collateral, borrow, xlmPrice, kalePrice *big.Int) (*big.Int, error) {
	collateralValue := usdValue(collateral, xlmPrice)
	borrowValue := usdValue(borrow, kalePrice)
	if borrowValue.Sign() == 0 {
		return nil, invalidAmount("borrow_value_usd", borrowValue)
	}
	ratio := new(big.Int).Mul(collateralValue, basisPoints)
	return ratio.Quo(ratio, borrowValue), nil
}

// PriceChangeBps returns the signed relative move from last to current in
// basis points, or zero when there is no positive reference price.
func PriceChangeBps(current, last *big.Int) *big.Int {
	if last == nil || last.Sign() <= 0 || current == nil {
		return big.NewInt(0)
	}
	change := new(big.Int).Sub(current, last)
	change.Mul(change, basisPoints)
	return change.Quo(change, last)
}

// ExceedsThreshold reports whether |change| >= thresholdBps.
func ExceedsThreshold(change *big.Int, thresholdBps uint64) bool {
	return new(big.Int).Abs(change).Cmp(new(big.Int).SetUint64(thresholdBps)) >= 0
}

// AdjustedAmount scales amount by one tenth of the price move:
// amount * (10000 + change/10) / 10000.
func AdjustedAmount(amount, change *big.Int) *big.Int {
	factor := new(big.Int).Quo(change, big.NewInt(adjustmentDamping))
	factor.Add(factor, basisPoints)
	out := new(big.Int).Mul(copyBig(amount), factor)
	return out.Quo(out, basisPoints)
}
