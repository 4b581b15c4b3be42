package liquidstake

import (
	"github.com/holiman/uint256"

	"liquidstake/core/events"
)

// AddStake moves amount of base asset from caller into the stash and mints
// the proportional derivative share. Bonding the new funds is best effort:
// a backend refusal is reported through a bondFailed event and retried on
// the next deposit.
func (e *Engine) AddStake(caller [20]byte, amount *uint256.Int) error {
	return e.atomic(func() error {
		if amount == nil || !amount.Gt(e.params.minimumStake()) {
			return ErrInsufficientStake
		}
		stashBalance, err := e.base.TotalBalance(e.stash)
		if err != nil {
			return err
		}
		supply, err := e.outstandingSupply()
		if err != nil {
			return err
		}
		basis := stashBalance
		if supply.IsZero() {
			// Residual stash funds with no claims against them must not
			// block the 1:1 bootstrap.
			basis = new(uint256.Int)
		}
		minted, err := MintAmount(amount, basis, supply)
		if err != nil {
			return err
		}
		if minted.IsZero() {
			return ErrInsufficientStake
		}
		if err := e.base.Transfer(caller, e.stash, amount, true); err != nil {
			return err
		}
		if err := e.derivative.Mint(caller, minted); err != nil {
			return err
		}
		height, err := e.height()
		if err != nil {
			return err
		}
		if err := e.reconcileBond(height); err != nil {
			return err
		}
		e.emit(events.StakeAdded{Height: height, Account: caller, Amount: amount, Minted: minted})
		return nil
	})
}

// unbondedStash returns the stash's free balance not yet held by the staking
// backend, less the value owed to pending redemptions. Released liquidity
// stays free so that matured claims can be paid out.
func (e *Engine) unbondedStash() (*uint256.Int, bool, error) {
	free, err := e.base.FreeBalance(e.stash)
	if err != nil {
		return nil, false, err
	}
	total, staker, err := e.backend.TotalStake(e.stash)
	if err != nil {
		return nil, false, err
	}
	if !staker || total == nil {
		total = new(uint256.Int)
	}
	if total.Cmp(free) >= 0 {
		return new(uint256.Int), staker, nil
	}
	idle := new(uint256.Int).Sub(free, total)
	reserve, err := e.owedToRedemptions()
	if err != nil {
		return nil, false, err
	}
	if !reserve.Lt(idle) {
		return new(uint256.Int), staker, nil
	}
	return idle.Sub(idle, reserve), staker, nil
}

// owedToRedemptions is the base-asset value of every pending redemption at
// the current share price.
func (e *Engine) owedToRedemptions() (*uint256.Int, error) {
	pending, err := e.pendingUnits()
	if err != nil || pending.IsZero() {
		return new(uint256.Int), err
	}
	stashBalance, err := e.base.TotalBalance(e.stash)
	if err != nil {
		return nil, err
	}
	supply, err := e.outstandingSupply()
	if err != nil {
		return nil, err
	}
	return RedemptionValue(pending, stashBalance, supply)
}

// reconcileBond sweeps every unbonded stash unit into the backend. Only
// storage errors are returned; backend refusals become events.
func (e *Engine) reconcileBond(height uint64) error {
	sweep, staker, err := e.unbondedStash()
	if err != nil {
		return err
	}
	if sweep.IsZero() {
		return nil
	}
	callErr := e.soft(func() error {
		if staker {
			return e.backend.BondExtra(e.stash, sweep)
		}
		return e.backend.Bond(e.stash, e.controller, sweep, e.stash)
	})
	if callErr != nil {
		e.emit(events.StakingCallFailed{
			Height: height,
			Kind:   events.TypeBondFailed,
			Stash:  e.stash,
			Amount: sweep,
			Reason: callErr.Error(),
		})
	}
	return nil
}
