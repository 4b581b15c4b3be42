package liquidstake

import (
	"fmt"

	"github.com/holiman/uint256"

	"liquidstake/core/events"
)

// WithdrawStake pays out the caller's redemption bucket for era at the share
// price of the current block, so rewards and slashes since the redemption
// are reflected. Matured backend chunks are released first.
func (e *Engine) WithdrawStake(caller [20]byte, era uint64) error {
	return e.atomic(func() error {
		current, err := e.backend.CurrentEra()
		if err != nil {
			return err
		}
		height, err := e.height()
		if err != nil {
			return err
		}
		record, err := e.redemptions(caller)
		if err != nil {
			return err
		}
		if err := e.expireRedemptions(caller, record, current, height); err != nil {
			return err
		}
		idx := record.find(era)
		if idx < 0 {
			return ErrNoSuchRedemption
		}
		if current < era {
			return ErrRedemptionNotYetAvailable
		}
		units := record.Buckets[idx].Units

		if err := e.releaseMatured(height); err != nil {
			return err
		}

		stashBalance, err := e.base.TotalBalance(e.stash)
		if err != nil {
			return err
		}
		supply, err := e.outstandingSupply()
		if err != nil {
			return err
		}
		payout, err := RedemptionValue(units, stashBalance, supply)
		if err != nil {
			return err
		}
		spendable, err := e.base.SpendableBalance(e.stash)
		if err != nil {
			return err
		}
		if spendable.Lt(payout) {
			return ErrInsufficientPoolLiquidity
		}
		if err := e.base.Transfer(e.stash, caller, payout, false); err != nil {
			return err
		}

		record.remove(idx)
		if err := e.putRedemptions(caller, record); err != nil {
			return err
		}
		pending, err := e.pendingUnits()
		if err != nil {
			return err
		}
		if pending.Lt(units) {
			return fmt.Errorf("liquidstake: pending redemptions underflow")
		}
		if err := e.putAmount(pendingKey, new(uint256.Int).Sub(pending, units)); err != nil {
			return err
		}
		e.emit(events.StakeReleased{Height: height, Account: caller, Units: units, Payout: payout, Era: era})
		return nil
	})
}

// releaseMatured withdraws every matured unlocking chunk of the stash.
func (e *Engine) releaseMatured(height uint64) error {
	staker, err := e.isStaker()
	if err != nil || !staker {
		return err
	}
	callErr := e.soft(func() error {
		_, err := e.backend.WithdrawUnbonded(e.stash, 0)
		return err
	})
	if callErr != nil {
		e.emit(events.StakingCallFailed{
			Height: height,
			Kind:   events.TypeWithdrawUnbondedFailed,
			Stash:  e.stash,
			Reason: callErr.Error(),
		})
	}
	return nil
}
