// Package oracle provides the price sources the platform can be wired to:
// a fixed in-memory table, a remote HTTP feed and a database-backed price
// book that operators publish into.
package oracle

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/text/unicode/norm"

	"kalelend/native/kalelend"
)

// ErrNoPrice is returned when a source holds no observation for an asset.
var ErrNoPrice = errors.New("oracle: no price for asset")

var _ kalelend.PriceOracle = (*Static)(nil)

var priceUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(kalelend.PriceDecimals), nil)

// normaliseSymbol folds compatibility forms so "ＫＡＬＥ" and "kale" share a key.
func normaliseSymbol(symbol string) string {
	return strings.ToUpper(norm.NFKC.String(strings.TrimSpace(symbol)))
}

// ParsePrice converts a decimal USD price such as "0.125" into the 6-decimal
// fixed-point integer the engine works with. Extra precision is truncated.
func ParsePrice(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("oracle: empty price")
	}
	rat, ok := new(big.Rat).SetString(trimmed)
	if !ok {
		return nil, fmt.Errorf("oracle: invalid price %q", raw)
	}
	rat.Mul(rat, new(big.Rat).SetInt(priceUnit))
	return new(big.Int).Quo(rat.Num(), rat.Denom()), nil
}

// FormatPrice renders a fixed-point price as a decimal string.
func FormatPrice(price *big.Int) string {
	if price == nil {
		return "0"
	}
	return new(big.Rat).SetFrac(price, priceUnit).FloatString(kalelend.PriceDecimals)
}
