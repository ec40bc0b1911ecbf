package kalelend

import (
	"errors"
	"math/big"
	"testing"
)

func TestInterestOwed(t *testing.T) {
	cases := []struct {
		name     string
		borrowed int64
		rate     uint64
		from     uint64
		now      uint64
		want     int64
	}{
		{name: "one year", borrowed: 100_000, rate: 800, from: 0, now: SecondsPerYear, want: 8_000},
		{name: "zero elapsed", borrowed: 100_000, rate: 800, from: 50, now: 50, want: 0},
		{name: "clock behind", borrowed: 100_000, rate: 800, from: 60, now: 50, want: 0},
		{name: "truncates", borrowed: 1, rate: 800, from: 0, now: 1, want: 0},
		{name: "zero rate", borrowed: 100_000, rate: 0, from: 0, now: SecondsPerYear, want: 0},
	}
	for _, tc := range cases {
		got := InterestOwed(big.NewInt(tc.borrowed), tc.rate, tc.from, tc.now)
		if got.Cmp(big.NewInt(tc.want)) != 0 {
			t.Fatalf("%s: expected %d, got %s", tc.name, tc.want, got)
		}
	}
}

func TestRewardOwedLargeValuesDoNotOverflow(t *testing.T) {
	amount, _ := new(big.Int).SetString("170141183460469231731687303715884105727", 10)
	got := RewardOwed(amount, MaxBasisPoints, 0, SecondsPerYear)
	if got.Cmp(amount) != 0 {
		t.Fatalf("expected a 100%% year to return the principal, got %s", got)
	}
}

func TestCollateralRatio(t *testing.T) {
	ratio, err := CollateralRatio(big.NewInt(1_500_000), big.NewInt(100_000), big.NewInt(100_000), big.NewInt(1_000_000))
	if err != nil {
		t.Fatalf("ratio: %v", err)
	}
	if ratio.Cmp(big.NewInt(15_000)) != 0 {
		t.Fatalf("expected 15000, got %s", ratio)
	}

	_, err = CollateralRatio(big.NewInt(1_500_000), big.NewInt(100_000), big.NewInt(100_000), big.NewInt(1))
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero borrow value, got %v", err)
	}
}

func TestPriceChangeBps(t *testing.T) {
	cases := []struct {
		current int64
		last    int64
		want    int64
	}{
		{current: 1_100_000, last: 1_000_000, want: 1_000},
		{current: 900_000, last: 1_000_000, want: -1_000},
		{current: 1_000_001, last: 1_000_000, want: 0},
		{current: 999_999, last: 1_000_000, want: 0},
		{current: 500, last: 0, want: 0},
		{current: 500, last: -10, want: 0},
	}
	for _, tc := range cases {
		got := PriceChangeBps(big.NewInt(tc.current), big.NewInt(tc.last))
		if got.Cmp(big.NewInt(tc.want)) != 0 {
			t.Fatalf("change(%d, %d): expected %d, got %s", tc.current, tc.last, tc.want, got)
		}
	}
}

func TestExceedsThreshold(t *testing.T) {
	if !ExceedsThreshold(big.NewInt(-1_000), 1_000) {
		t.Fatalf("negative move at threshold must trigger")
	}
	if ExceedsThreshold(big.NewInt(999), 1_000) {
		t.Fatalf("move below threshold must not trigger")
	}
	if !ExceedsThreshold(big.NewInt(0), 0) {
		t.Fatalf("zero threshold always triggers")
	}
}

func TestAdjustedAmountTruncatesTowardZero(t *testing.T) {
	// -15/10 truncates to -1, not -2.
	got := AdjustedAmount(big.NewInt(10_000), big.NewInt(-15))
	if got.Cmp(big.NewInt(9_999)) != 0 {
		t.Fatalf("expected 9999, got %s", got)
	}
	got = AdjustedAmount(big.NewInt(1_000_000), big.NewInt(2_000))
	if got.Cmp(big.NewInt(1_020_000)) != 0 {
		t.Fatalf("expected 1020000, got %s", got)
	}
}
