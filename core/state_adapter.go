package core

import (
	"fmt"

	nhbstate "kalelend/core/state"
	"kalelend/crypto"
	"kalelend/native/kalelend"
)

// stateAdapter exposes the manager's records through the engine's
// persistence surface.
type stateAdapter struct {
	manager *nhbstate.Manager
}

func (a *stateAdapter) ready() error {
	if a == nil || a.manager == nil {
		return fmt.Errorf("kalelend: state manager unavailable")
	}
	return nil
}

func (a *stateAdapter) GetPlatform() (*kalelend.PlatformState, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	platform, ok, err := a.manager.KaleLendPlatform()
	if err != nil || !ok {
		return nil, err
	}
	return platform, nil
}

func (a *stateAdapter) PutPlatform(platform *kalelend.PlatformState) error {
	if err := a.ready(); err != nil {
		return err
	}
	return a.manager.KaleLendPutPlatform(platform)
}

func (a *stateAdapter) GetYieldPool() (*kalelend.YieldPool, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	pool, ok, err := a.manager.KaleLendYieldPool()
	if err != nil || !ok {
		return nil, err
	}
	return pool, nil
}

func (a *stateAdapter) PutYieldPool(pool *kalelend.YieldPool) error {
	if err := a.ready(); err != nil {
		return err
	}
	return a.manager.KaleLendPutYieldPool(pool)
}

func (a *stateAdapter) GetStakingPosition(user crypto.Address) (*kalelend.StakingPosition, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	position, ok, err := a.manager.KaleLendStake(user)
	if err != nil || !ok {
		return nil, err
	}
	return position, nil
}

func (a *stateAdapter) PutStakingPosition(position *kalelend.StakingPosition) error {
	if err := a.ready(); err != nil {
		return err
	}
	if position == nil {
		return fmt.Errorf("kalelend: staking position must not be nil")
	}
	return a.manager.KaleLendPutStake(position)
}

func (a *stateAdapter) GetBorrowingPosition(user crypto.Address) (*kalelend.BorrowingPosition, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	position, ok, err := a.manager.KaleLendBorrow(user)
	if err != nil || !ok {
		return nil, err
	}
	return position, nil
}

func (a *stateAdapter) PutBorrowingPosition(position *kalelend.BorrowingPosition) error {
	if err := a.ready(); err != nil {
		return err
	}
	if position == nil {
		return fmt.Errorf("kalelend: borrowing position must not be nil")
	}
	return a.manager.KaleLendPutBorrow(position)
}
