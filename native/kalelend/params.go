package kalelend

import "math/big"

const (
	// SecondsPerYear is the accrual year used for both interest and rewards.
	SecondsPerYear = 365 * 24 * 60 * 60

	// MaxBasisPoints is 100% expressed in basis points.
	MaxBasisPoints = 10_000

	// PriceDecimals is the fixed-point precision of oracle prices.
	PriceDecimals = 6

	// AssetKALE and AssetXLM are the oracle symbols for the two sides of the
	// market.
	AssetKALE = "KALE"
	AssetXLM  = "XLM"

	// adjustmentDamping scales a price move into a stake change: a 20% move
	// changes the stake by 2%.
	adjustmentDamping = 10

	moduleName = "kalelend"
)

var (
	basisPoints = big.NewInt(MaxBasisPoints)
	priceScale  = big.NewInt(1_000_000)
	// yearBasisPoints is the shared divisor of both accrual formulas.
	yearBasisPoints = new(big.Int).Mul(big.NewInt(SecondsPerYear), basisPoints)
)

// ModuleName identifies the module to pause controls.
func ModuleName() string { return moduleName }
