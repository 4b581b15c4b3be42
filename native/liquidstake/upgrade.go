package liquidstake

import (
	"liquidstake/core/events"
)

// OnUpgrade reconciles the pool after a code upgrade: it initialises the era
// tracker when missing and bonds the stash if it holds at least the minimum
// bond without being a staker. A bond refusal is reported as an event.
func (e *Engine) OnUpgrade() error {
	return e.atomic(func() error {
		height, err := e.height()
		if err != nil {
			return err
		}
		if _, ok, err := e.tracker(); err != nil {
			return err
		} else if !ok {
			era, err := e.backend.CurrentEra()
			if err != nil {
				return err
			}
			if err := e.putTracker(EraTracker{Era: era, StartBlock: height}); err != nil {
				return err
			}
		}

		staker, err := e.isStaker()
		if err != nil || staker {
			return err
		}
		free, err := e.base.FreeBalance(e.stash)
		if err != nil {
			return err
		}
		if free.IsZero() || free.Lt(e.backend.MinimumBond()) {
			return nil
		}
		callErr := e.soft(func() error {
			return e.backend.Bond(e.stash, e.controller, free, e.stash)
		})
		if callErr != nil {
			e.emit(events.StakingCallFailed{
				Height: height,
				Kind:   events.TypeBondFailed,
				Stash:  e.stash,
				Amount: free,
				Reason: callErr.Error(),
			})
		}
		return nil
	})
}
