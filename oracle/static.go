package oracle

import (
	"fmt"
	"math/big"
	"sync"

	"kalelend/native/kalelend"
)

// Static serves prices from an in-memory table. It is deterministic, which
// makes it the oracle of choice for tests and local development.
type Static struct {
	mu     sync.RWMutex
	prices map[string]kalelend.PriceData
}

// NewStatic returns an empty table.
func NewStatic() *Static {
	return &Static{prices: make(map[string]kalelend.PriceData)}
}

// Set records price for asset observed at ts.
func (s *Static) Set(asset string, price *big.Int, ts uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stored *big.Int
	if price != nil {
		stored = new(big.Int).Set(price)
	}
	s.prices[normaliseSymbol(asset)] = kalelend.PriceData{Price: stored, Timestamp: ts}
}

// Remove drops any price held for asset.
func (s *Static) Remove(asset string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.prices, normaliseSymbol(asset))
}

func (s *Static) LastPrice(asset string) (kalelend.PriceData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.prices[normaliseSymbol(asset)]
	if !ok {
		return kalelend.PriceData{}, fmt.Errorf("%w: %s", ErrNoPrice, normaliseSymbol(asset))
	}
	out := kalelend.PriceData{Timestamp: data.Timestamp}
	if data.Price != nil {
		out.Price = new(big.Int).Set(data.Price)
	}
	return out, nil
}
