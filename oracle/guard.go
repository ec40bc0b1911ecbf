package oracle

import (
	"fmt"
	"math"
	"time"

	"kalelend/native/kalelend"
)

// Guarded rejects observations older than MaxAge. The engine itself never
// checks freshness, so operators opt into this at the host.
type Guarded struct {
	next   kalelend.PriceOracle
	maxAge time.Duration
	now    func() time.Time
}

// NewGuarded wraps next. A non-positive maxAge disables the check.
func NewGuarded(next kalelend.PriceOracle, maxAge time.Duration) *Guarded {
	return &Guarded{next: next, maxAge: maxAge, now: time.Now}
}

func (g *Guarded) LastPrice(asset string) (kalelend.PriceData, error) {
	if g == nil || g.next == nil {
		return kalelend.PriceData{}, fmt.Errorf("oracle: source not configured")
	}
	data, err := g.next.LastPrice(asset)
	if err != nil || g.maxAge <= 0 {
		return data, err
	}
	age := ageSeconds(data.Timestamp, g.now())
	if age > uint64(g.maxAge/time.Second) {
		return kalelend.PriceData{}, fmt.Errorf("oracle: %s price stale: age %ds exceeds %s", normaliseSymbol(asset), age, g.maxAge)
	}
	return data, nil
}

func ageSeconds(observed uint64, now time.Time) uint64 {
	if observed == 0 {
		return math.MaxUint64
	}
	current := now.Unix()
	if current <= 0 || uint64(current) <= observed {
		return 0
	}
	return uint64(current) - observed
}
