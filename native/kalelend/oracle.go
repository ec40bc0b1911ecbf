package kalelend

import (
	"errors"
	"math/big"
)

// PriceData is the latest oracle observation for an asset. Price carries
// PriceDecimals of fixed-point precision.
type PriceData struct {
	Price     *big.Int
	Timestamp uint64
}

// PriceOracle supplies the latest USD price for an asset symbol. The engine
// does not check staleness; Timestamp is informational.
type PriceOracle interface {
	LastPrice(asset string) (PriceData, error)
}

var errNonPositivePrice = errors.New("oracle returned a non-positive price")

// fetchPrice queries the oracle and maps every failure, including a
// non-positive price, to PriceUnavailable.
func (e *Engine) fetchPrice(asset string) (*big.Int, error) {
	if e.oracle == nil {
		return nil, priceUnavailable(asset, errNilOracle)
	}
	data, err := e.oracle.LastPrice(asset)
	if err != nil {
		return nil, priceUnavailable(asset, err)
	}
	if data.Price == nil || data.Price.Sign() <= 0 {
		return nil, priceUnavailable(asset, errNonPositivePrice)
	}
	return new(big.Int).Set(data.Price), nil
}
