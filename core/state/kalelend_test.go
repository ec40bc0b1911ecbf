package state

import (
	"errors"
	"math/big"
	"testing"

	"kalelend/crypto"
	"kalelend/native/kalelend"
	"kalelend/storage"
)

func testAddress(suffix byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[len(raw)-1] = suffix
	return crypto.NewAddress(crypto.KalePrefix, raw)
}

func newTestManager(t *testing.T) (*Manager, *storage.MemDB) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	return NewManager(db), db
}

func TestKaleLendKeyFormats(t *testing.T) {
	if string(KaleLendPlatformKey()) != "kalelend/platform" {
		t.Fatalf("unexpected platform key: %s", KaleLendPlatformKey())
	}
	stakeKey := KaleLendStakeKey([]byte{0x01, 0x02})
	if string(stakeKey) != string(append([]byte("kalelend/stakes/"), 0x01, 0x02)) {
		t.Fatalf("unexpected stake key: %x", stakeKey)
	}
	borrowKey := KaleLendBorrowKey([]byte{0x03})
	if string(borrowKey) != string(append([]byte("kalelend/borrows/"), 0x03)) {
		t.Fatalf("unexpected borrow key: %x", borrowKey)
	}
}

func TestPlatformRoundTripPreservesNegativeAggregates(t *testing.T) {
	mgr, _ := newTestManager(t)

	if _, ok, err := mgr.KaleLendPlatform(); err != nil || ok {
		t.Fatalf("expected missing platform, got ok=%v err=%v", ok, err)
	}

	platform := &kalelend.PlatformState{
		Admin:                testAddress(0xA0),
		KaleToken:            testAddress(0xA1),
		TotalStaked:          big.NewInt(1_000_000),
		TotalBorrowed:        big.NewInt(-8_000),
		TotalCollateral:      big.NewInt(0),
		StakingAPY:           500,
		BorrowingAPY:         800,
		PlatformFeeRate:      100,
		LiquidationThreshold: 15_000,
		CurrentKalePrice:     big.NewInt(1_000_000),
		CurrentXLMPrice:      big.NewInt(100_000),
		LastPriceUpdate:      42,
		IsActive:             true,
	}
	if err := mgr.KaleLendPutPlatform(platform); err != nil {
		t.Fatalf("put platform: %v", err)
	}
	got, ok, err := mgr.KaleLendPlatform()
	if err != nil || !ok {
		t.Fatalf("get platform: ok=%v err=%v", ok, err)
	}
	if got.TotalBorrowed.Cmp(big.NewInt(-8_000)) != 0 {
		t.Fatalf("expected negative aggregate to survive, got %s", got.TotalBorrowed)
	}
	if !got.Admin.Equal(platform.Admin) || got.Admin.String() != platform.Admin.String() {
		t.Fatalf("admin mismatch: %s vs %s", got.Admin, platform.Admin)
	}
	if !got.XLMToken.IsZero() {
		t.Fatalf("expected unset address to stay zero")
	}
	if got.LiquidationThreshold != 15_000 || got.LastPriceUpdate != 42 || !got.IsActive {
		t.Fatalf("unexpected platform %+v", got)
	}
}

func TestPositionsRoundTrip(t *testing.T) {
	mgr, _ := newTestManager(t)
	user := testAddress(0x01)

	stake := &kalelend.StakingPosition{
		User:                user,
		KaleAmount:          big.NewInt(1_000_000),
		StartTime:           10,
		LastClaimTime:       20,
		AutoAdjustEnabled:   true,
		PriceThreshold:      1_000,
		LastAdjustmentPrice: big.NewInt(1_100_000),
		TotalEarned:         big.NewInt(25_000),
	}
	if err := mgr.KaleLendPutStake(stake); err != nil {
		t.Fatalf("put stake: %v", err)
	}
	gotStake, ok, err := mgr.KaleLendStake(user)
	if err != nil || !ok {
		t.Fatalf("get stake: ok=%v err=%v", ok, err)
	}
	if gotStake.KaleAmount.Cmp(stake.KaleAmount) != 0 || gotStake.PriceThreshold != 1_000 || !gotStake.AutoAdjustEnabled {
		t.Fatalf("unexpected stake %+v", gotStake)
	}
	if !gotStake.User.Equal(user) {
		t.Fatalf("unexpected user %s", gotStake.User)
	}

	borrow := &kalelend.BorrowingPosition{
		User:              user,
		BorrowedAmount:    big.NewInt(0),
		CollateralAmount:  big.NewInt(1_500_000),
		BorrowTime:        5,
		InterestRate:      800,
		LastPaymentTime:   6,
		TotalInterestPaid: big.NewInt(8_000),
		IsActive:          false,
	}
	if err := mgr.KaleLendPutBorrow(borrow); err != nil {
		t.Fatalf("put borrow: %v", err)
	}
	gotBorrow, ok, err := mgr.KaleLendBorrow(user)
	if err != nil || !ok {
		t.Fatalf("get borrow: ok=%v err=%v", ok, err)
	}
	if gotBorrow.CollateralAmount.Cmp(big.NewInt(1_500_000)) != 0 || gotBorrow.IsActive || gotBorrow.InterestRate != 800 {
		t.Fatalf("unexpected borrow %+v", gotBorrow)
	}

	if _, ok, err := mgr.KaleLendBorrow(testAddress(0x02)); err != nil || ok {
		t.Fatalf("expected missing borrow for other user")
	}
}

func TestPutRejectsAnonymousPositions(t *testing.T) {
	mgr, _ := newTestManager(t)
	if err := mgr.KaleLendPutStake(&kalelend.StakingPosition{}); err == nil {
		t.Fatalf("expected error for position without user")
	}
	if err := mgr.KaleLendPutBorrow(nil); err == nil {
		t.Fatalf("expected error for nil position")
	}
}

func TestManagerOverJournalDiscard(t *testing.T) {
	db := storage.NewMemDB()
	journal := storage.NewJournal(db)
	mgr := NewManager(journal)

	if err := mgr.KaleLendPutYieldPool(&kalelend.YieldPool{LastDistributionTime: 7}); err != nil {
		t.Fatalf("put pool: %v", err)
	}
	if _, ok, err := mgr.KaleLendYieldPool(); err != nil || !ok {
		t.Fatalf("expected journal to serve its own write")
	}
	journal.Discard()
	if db.Len() != 0 {
		t.Fatalf("expected discarded writes to stay out of the database")
	}
}

func TestStateVersion(t *testing.T) {
	mgr, _ := newTestManager(t)
	if err := mgr.EnsureStateVersion(false); err != nil {
		t.Fatalf("stamp version: %v", err)
	}
	version, ok, err := mgr.StateVersion()
	if err != nil || !ok || version != StateVersion {
		t.Fatalf("unexpected version %d ok=%v err=%v", version, ok, err)
	}
	if err := mgr.SetStateVersion(StateVersion + 1); err != nil {
		t.Fatalf("set version: %v", err)
	}
	if err := mgr.EnsureStateVersion(false); !errors.Is(err, ErrStateVersionMismatch) {
		t.Fatalf("expected ErrStateVersionMismatch, got %v", err)
	}
	if err := mgr.EnsureStateVersion(true); err != nil {
		t.Fatalf("migration override: %v", err)
	}
}

func TestKVRejectsEmptyKey(t *testing.T) {
	mgr, _ := newTestManager(t)
	if err := mgr.KVPut(nil, uint64(1)); err == nil {
		t.Fatalf("expected empty key rejection")
	}
	if _, err := mgr.KVGet([]byte{}, nil); err == nil {
		t.Fatalf("expected empty key rejection")
	}
	var nilManager *Manager
	if _, _, err := nilManager.KaleLendPlatform(); err == nil {
		t.Fatalf("expected nil manager error")
	}
}
