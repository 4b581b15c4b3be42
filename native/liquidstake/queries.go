package liquidstake

import "github.com/holiman/uint256"

// PoolInfo summarises the pool at the last processed block.
func (e *Engine) PoolInfo() (*PoolInfo, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	info := &PoolInfo{Stash: e.stash, Controller: e.controller}
	var err error
	if info.StashBalance, err = e.base.TotalBalance(e.stash); err != nil {
		return nil, err
	}
	if info.StashSpendable, err = e.base.SpendableBalance(e.stash); err != nil {
		return nil, err
	}
	active, bonded, err := e.backend.ActiveStake(e.stash)
	if err != nil {
		return nil, err
	}
	info.Bonded = bonded
	info.ActiveStake = new(uint256.Int)
	info.TotalStake = new(uint256.Int)
	if bonded {
		info.ActiveStake = active
		total, _, err := e.backend.TotalStake(e.stash)
		if err != nil {
			return nil, err
		}
		if total != nil {
			info.TotalStake = total
		}
	}
	if info.DerivativeIssuance, err = e.derivative.TotalIssuance(); err != nil {
		return nil, err
	}
	if info.PendingRedemptions, err = e.pendingUnits(); err != nil {
		return nil, err
	}
	tracker, _, err := e.tracker()
	if err != nil {
		return nil, err
	}
	info.Era = tracker.Era
	info.EraStartBlock = tracker.StartBlock
	if info.Height, err = e.height(); err != nil {
		return nil, err
	}
	if info.Phase, err = e.Phase(); err != nil {
		return nil, err
	}
	if tracker.WindowOpen {
		info.WindowEndBlock = tracker.StartBlock + e.params.VotingPeriodBlocks
	}
	set, err := e.currentNominations()
	if err != nil {
		return nil, err
	}
	info.Nominations = set.Validators
	return info, nil
}

// Redemptions returns the pending buckets of account ordered by era.
func (e *Engine) Redemptions(account [20]byte) ([]RedemptionBucket, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	record, err := e.redemptions(account)
	if err != nil {
		return nil, err
	}
	return record.Buckets, nil
}

// NominationLock returns the derivative weight account has locked in the
// current window.
func (e *Engine) NominationLock(account [20]byte) (*uint256.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.loadAmount(accountKey(lockPrefix, account))
}

// NominationLocks lists every vote lock of the current window.
func (e *Engine) NominationLocks() ([]LockEntry, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	accounts, amounts, err := e.collectAmounts(lockPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]LockEntry, len(accounts))
	for i := range accounts {
		out[i] = LockEntry{Account: accounts[i], Amount: amounts[i]}
	}
	return out, nil
}

// NominationTally lists the current window's tally in ascending validator
// order.
func (e *Engine) NominationTally() ([]TallyEntry, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	validators, votes, err := e.collectAmounts(tallyPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]TallyEntry, len(validators))
	for i := range validators {
		out[i] = TallyEntry{Validator: validators[i], Votes: votes[i]}
	}
	return out, nil
}

// CurrentNominations returns the validator set the pool last applied and the
// era it was applied in.
func (e *Engine) CurrentNominations() ([][20]byte, uint64, error) {
	if err := e.ready(); err != nil {
		return nil, 0, err
	}
	set, err := e.currentNominations()
	if err != nil {
		return nil, 0, err
	}
	return set.Validators, set.Era, nil
}

// EraTracker returns the scheduler's era view and whether it is initialised.
func (e *Engine) EraTracker() (EraTracker, bool, error) {
	if err := e.ready(); err != nil {
		return EraTracker{}, false, err
	}
	return e.tracker()
}
