package liquidstake

import (
	"github.com/holiman/uint256"

	"liquidstake/core/events"
)

// Nominate records a weighted validator slate for the open voting window.
// The summed weight is locked on the caller's derivative balance until the
// window closes; repeated slates in one window accumulate.
func (e *Engine) Nominate(caller [20]byte, slate []Nomination) error {
	return e.atomic(func() error {
		phase, err := e.Phase()
		if err != nil {
			return err
		}
		if phase != PhaseOpen {
			return ErrVoteUnauthorized
		}
		free, err := e.derivative.FreeBalance(caller)
		if err != nil {
			return err
		}
		if free.IsZero() {
			return ErrVoteUnauthorized
		}

		if len(slate) == 0 {
			return ErrEmptySlate
		}
		if len(slate) > e.params.MaxValidatorNominees {
			return ErrTooManyNominees
		}
		seen := make(map[[20]byte]struct{}, len(slate))
		for _, entry := range slate {
			if _, dup := seen[entry.Validator]; dup {
				return ErrDuplicateNominee
			}
			seen[entry.Validator] = struct{}{}
		}
		for _, entry := range slate {
			ok, err := e.backend.IsValidator(entry.Validator)
			if err != nil {
				return err
			}
			if !ok {
				return ErrNoSuchValidator
			}
		}

		sum := new(uint256.Int)
		for _, entry := range slate {
			if entry.Weight == nil || entry.Weight.IsZero() {
				return ErrVoteQuantityInvalid
			}
			if _, overflow := sum.AddOverflow(sum, entry.Weight); overflow {
				return ErrVoteQuantityInvalid
			}
		}
		lockKey := accountKey(lockPrefix, caller)
		prior, err := e.loadAmount(lockKey)
		if err != nil {
			return err
		}
		locked, overflow := new(uint256.Int).AddOverflow(prior, sum)
		if overflow || locked.Gt(free) {
			return ErrVoteQuantityInvalid
		}

		// Every tally is computed before the first write so that a
		// rejected slate leaves no partial state behind.
		tallies := make([]*uint256.Int, len(slate))
		for i, entry := range slate {
			current, err := e.loadAmount(accountKey(tallyPrefix, entry.Validator))
			if err != nil {
				return err
			}
			next, overflow := new(uint256.Int).AddOverflow(current, entry.Weight)
			if overflow {
				return ErrValidatorVoteQuantityInvalid
			}
			tallies[i] = next
		}

		if err := e.derivative.SetLock(NominationLockID, caller, locked); err != nil {
			return err
		}
		if err := e.putAmount(lockKey, locked); err != nil {
			return err
		}
		for i, entry := range slate {
			if err := e.putAmount(accountKey(tallyPrefix, entry.Validator), tallies[i]); err != nil {
				return err
			}
		}
		height, err := e.height()
		if err != nil {
			return err
		}
		e.emit(events.NominationSubmitted{Height: height, Account: caller, Weight: sum, Locked: locked, Nominees: len(slate)})
		return nil
	})
}
