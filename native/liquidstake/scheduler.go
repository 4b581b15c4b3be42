package liquidstake

import (
	"github.com/holiman/uint256"

	"liquidstake/core/events"
)

// OnBlockAdvance runs the per-block step. It must be called after the
// staking backend has advanced its era clock for height and before any
// operation of the same block.
func (e *Engine) OnBlockAdvance(height uint64) error {
	return e.atomic(func() error {
		if err := e.state.KVPut(heightKey, height); err != nil {
			return err
		}
		era, err := e.backend.CurrentEra()
		if err != nil {
			return err
		}
		tracker, ok, err := e.tracker()
		if err != nil {
			return err
		}
		if !ok {
			return e.putTracker(EraTracker{Era: era, StartBlock: height})
		}

		if era > tracker.Era {
			if tracker.WindowOpen {
				if err := e.closeVotingWindow(tracker, height); err != nil {
					return err
				}
			}
			next := EraTracker{Era: era, StartBlock: height, WindowOpen: true}
			if err := e.putTracker(next); err != nil {
				return err
			}
			if err := e.reconcileLiquidity(height); err != nil {
				return err
			}
			e.emit(events.VotingWindowOpened{
				Height:     height,
				Era:        era,
				StartBlock: height,
				EndBlock:   height + e.params.VotingPeriodBlocks,
			})
			return nil
		}

		if tracker.WindowOpen && height >= tracker.StartBlock+e.params.VotingPeriodBlocks {
			return e.closeVotingWindow(tracker, height)
		}
		return nil
	})
}

// reconcileLiquidity releases matured stake and, when the value owed to
// pending redemptions exceeds what is unlocked or unlocking, unbonds the
// shortfall.
func (e *Engine) reconcileLiquidity(height uint64) error {
	staker, err := e.isStaker()
	if err != nil || !staker {
		return err
	}
	if err := e.releaseMatured(height); err != nil {
		return err
	}
	owed, err := e.owedToRedemptions()
	if err != nil || owed.IsZero() {
		return err
	}
	available, err := e.base.SpendableBalance(e.stash)
	if err != nil {
		return err
	}
	active, ok, err := e.backend.ActiveStake(e.stash)
	if err != nil {
		return err
	}
	total, _, err := e.backend.TotalStake(e.stash)
	if err != nil {
		return err
	}
	if ok && total != nil && active != nil && total.Gt(active) {
		available.Add(available, new(uint256.Int).Sub(total, active))
	}
	if !owed.Gt(available) {
		return nil
	}
	return e.unbondValue(new(uint256.Int).Sub(owed, available), height)
}
