package state

var (
	kaleLendPlatformKeyBytes = []byte("kalelend/platform")
	kaleLendYieldPoolKey     = []byte("kalelend/yield")
	kaleLendStakePrefix      = []byte("kalelend/stakes/")
	kaleLendBorrowPrefix     = []byte("kalelend/borrows/")
	runtimeLastTimestampKey  = []byte("runtime/last-timestamp")
)

func prefixedKey(prefix []byte, suffix []byte) []byte {
	buf := make([]byte, len(prefix)+len(suffix))
	copy(buf, prefix)
	copy(buf[len(prefix):], suffix)
	return buf
}

// KaleLendPlatformKey returns the unhashed key of the platform record.
func KaleLendPlatformKey() []byte { return append([]byte(nil), kaleLendPlatformKeyBytes...) }

// KaleLendStakeKey returns the unhashed key of a user's staking position.
func KaleLendStakeKey(addr []byte) []byte { return prefixedKey(kaleLendStakePrefix, addr) }

// KaleLendBorrowKey returns the unhashed key of a user's borrowing position.
func KaleLendBorrowKey(addr []byte) []byte { return prefixedKey(kaleLendBorrowPrefix, addr) }
