package liquidstake

import (
	"bytes"
	"sort"

	"github.com/holiman/uint256"

	"liquidstake/core/events"
)

var basisPoints = uint256.NewInt(10_000)

// Phase reports whether the voting window accepts nominations at the last
// processed block.
func (e *Engine) Phase() (Phase, error) {
	tracker, ok, err := e.tracker()
	if err != nil || !ok || !tracker.WindowOpen {
		return PhaseClosed, err
	}
	height, err := e.height()
	if err != nil {
		return PhaseClosed, err
	}
	if height < tracker.StartBlock || height >= tracker.StartBlock+e.params.VotingPeriodBlocks {
		return PhaseClosed, nil
	}
	return PhaseOpen, nil
}

// quorumThreshold returns the vote total that must be strictly exceeded:
// floor(issuance * QuorumBps / 10000).
func (e *Engine) quorumThreshold(issuance *uint256.Int) *uint256.Int {
	threshold, _ := new(uint256.Int).MulDivOverflow(issuance, uint256.NewInt(e.params.QuorumBps), basisPoints)
	return threshold
}

// rankTallies orders validators by votes descending, ties by ascending
// address, drops zero tallies and keeps at most limit entries.
func rankTallies(entries []TallyEntry, limit int) [][20]byte {
	ranked := make([]TallyEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.Votes != nil && !entry.Votes.IsZero() {
			ranked = append(ranked, entry)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if cmp := ranked[i].Votes.Cmp(ranked[j].Votes); cmp != 0 {
			return cmp > 0
		}
		return bytes.Compare(ranked[i].Validator[:], ranked[j].Validator[:]) < 0
	})
	if limit >= 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([][20]byte, len(ranked))
	for i, entry := range ranked {
		out[i] = entry.Validator
	}
	return out
}

// closeVotingWindow releases every vote lock, applies the tally when quorum
// is met and clears the lock and tally maps. It runs inside the caller's
// atomic step.
func (e *Engine) closeVotingWindow(tracker EraTracker, height uint64) error {
	voters, _, err := e.collectAmounts(lockPrefix)
	if err != nil {
		return err
	}
	for _, voter := range voters {
		if err := e.derivative.RemoveLock(NominationLockID, voter); err != nil {
			return err
		}
		if err := e.state.KVDelete(accountKey(lockPrefix, voter)); err != nil {
			return err
		}
	}

	validators, votes, err := e.collectAmounts(tallyPrefix)
	if err != nil {
		return err
	}
	total := new(uint256.Int)
	entries := make([]TallyEntry, len(validators))
	for i := range validators {
		if _, overflow := total.AddOverflow(total, votes[i]); overflow {
			return errTallyTotals
		}
		entries[i] = TallyEntry{Validator: validators[i], Votes: votes[i]}
	}
	issuance, err := e.derivative.TotalIssuance()
	if err != nil {
		return err
	}
	threshold := e.quorumThreshold(issuance)
	quorum := total.Gt(threshold)

	if quorum {
		set := rankTallies(entries, e.backend.MaxNominations())
		callErr := e.soft(func() error { return e.backend.Nominate(e.stash, set) })
		if callErr != nil {
			e.emit(events.NominationFailed{Height: height, Era: tracker.Era, Reason: callErr.Error()})
		} else {
			if err := e.putNominations(tracker.Era, set); err != nil {
				return err
			}
			e.emit(events.NominationsApplied{Height: height, Era: tracker.Era, Validators: set})
		}
	} else {
		required := new(uint256.Int).AddUint64(threshold, 1)
		e.emit(events.QuorumNotReached{Height: height, Era: tracker.Era, TotalVotes: total, Required: required})
	}

	for _, validator := range validators {
		if err := e.state.KVDelete(accountKey(tallyPrefix, validator)); err != nil {
			return err
		}
	}
	tracker.WindowOpen = false
	if err := e.putTracker(tracker); err != nil {
		return err
	}
	e.emit(events.VotingWindowClosed{
		Height:     height,
		Era:        tracker.Era,
		TotalVotes: total,
		Issuance:   issuance,
		Voters:     len(voters),
		QuorumMet:  quorum,
	})
	return nil
}
