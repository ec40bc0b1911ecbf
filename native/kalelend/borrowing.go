package kalelend

import (
	"math/big"

	"kalelend/crypto"
)

// Borrow opens a KALE loan against XLM collateral. The collateral ratio at
// current oracle prices must be at least the liquidation threshold. A closed
// position is overwritten. While the user still has an active loan Borrow
// fails with KindPositionActive and writes nothing; repay it first.
func (e *Engine) Borrow(user crypto.Address, collateral, amount *big.Int) error {
	if err := e.guard(); err != nil {
		return err
	}
	if user.IsZero() {
		return errMissingUser
	}
	if !positive(collateral) {
		return invalidAmount("collateral_amount", collateral)
	}
	if !positive(amount) {
		return invalidAmount("borrow_amount", amount)
	}
	platform, err := e.loadActivePlatform()
	if err != nil {
		return err
	}
	existing, err := e.loadBorrow(user)
	if err != nil {
		return err
	}
	if existing != nil && existing.IsActive {
		return &Error{Kind: KindPositionActive, Field: "borrowing", Actual: copyBig(existing.BorrowedAmount)}
	}

	xlmPrice, err := e.fetchPrice(e.xlmAsset)
	if err != nil {
		return err
	}
	kalePrice, err := e.fetchPrice(e.kaleAsset)
	if err != nil {
		return err
	}
	ratio, err := CollateralRatio(collateral, amount, xlmPrice, kalePrice)
	if err != nil {
		return err
	}
	if ratio.Cmp(new(big.Int).SetUint64(platform.LiquidationThreshold)) < 0 {
		return insufficientCollateral(platform.LiquidationThreshold, ratio)
	}

	position := &BorrowingPosition{
		User:              cloneAddress(user),
		BorrowedAmount:    new(big.Int).Set(amount),
		CollateralAmount:  new(big.Int).Set(collateral),
		BorrowTime:        e.now,
		InterestRate:      platform.BorrowingAPY,
		LastPaymentTime:   e.now,
		TotalInterestPaid: big.NewInt(0),
		IsActive:          true,
	}

	platform.TotalBorrowed = new(big.Int).Add(platform.TotalBorrowed, amount)
	platform.TotalCollateral = new(big.Int).Add(platform.TotalCollateral, collateral)
	platform.CurrentKalePrice = kalePrice
	platform.CurrentXLMPrice = xlmPrice
	platform.LastPriceUpdate = e.now

	if err := e.state.PutBorrowingPosition(position); err != nil {
		return err
	}
	return e.state.PutPlatform(platform)
}

// Repay applies up to amount against the user's debt and returns the amount
// actually applied, which never exceeds principal plus accrued interest.
// Interest is paid first; any unpaid interest is added to the principal. When
// the debt reaches zero the position is closed and its collateral leaves
// TotalCollateral.
func (e *Engine) Repay(user crypto.Address, amount *big.Int) (*big.Int, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	if !positive(amount) {
		return nil, invalidAmount("repay_amount", amount)
	}
	platform, err := e.loadPlatform()
	if err != nil {
		return nil, err
	}
	position, err := e.loadBorrow(user)
	if err != nil {
		return nil, err
	}
	if position == nil {
		return nil, positionNotFound("borrowing")
	}
	if !position.IsActive {
		return nil, &Error{Kind: KindPositionInactive, Field: "borrowing"}
	}
	pool, err := e.loadYieldPool()
	if err != nil {
		return nil, err
	}

	interest := InterestOwed(position.BorrowedAmount, position.InterestRate, position.LastPaymentTime, e.now)
	due := new(big.Int).Add(position.BorrowedAmount, interest)
	applied := new(big.Int).Set(amount)
	if applied.Cmp(due) > 0 {
		applied.Set(due)
	}
	interestPaid := new(big.Int).Set(applied)
	if interestPaid.Cmp(interest) > 0 {
		interestPaid.Set(interest)
	}

	position.BorrowedAmount = due.Sub(due, applied)
	position.TotalInterestPaid = new(big.Int).Add(position.TotalInterestPaid, interestPaid)
	position.LastPaymentTime = e.now
	if position.BorrowedAmount.Sign() <= 0 {
		position.IsActive = false
		platform.TotalCollateral = new(big.Int).Sub(platform.TotalCollateral, position.CollateralAmount)
	}
	platform.TotalBorrowed = new(big.Int).Sub(platform.TotalBorrowed, applied)

	if interestPaid.Sign() > 0 {
		fee := new(big.Int).Mul(interestPaid, new(big.Int).SetUint64(platform.PlatformFeeRate))
		fee.Quo(fee, basisPoints)
		pool.BorrowingFees = new(big.Int).Add(pool.BorrowingFees, interestPaid)
		pool.PlatformFees = new(big.Int).Add(pool.PlatformFees, fee)
	}

	if err := e.state.PutBorrowingPosition(position); err != nil {
		return nil, err
	}
	if err := e.state.PutPlatform(platform); err != nil {
		return nil, err
	}
	if interestPaid.Sign() > 0 {
		if err := e.state.PutYieldPool(pool); err != nil {
			return nil, err
		}
	}
	return applied, nil
}
