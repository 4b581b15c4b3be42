package staking

import (
	"fmt"

	"github.com/holiman/uint256"

	"liquidstake/core/events"
)

var basisPoints = uint256.NewInt(10_000)

// EraInfo returns the era clock record. An unset clock reports era zero.
func (b *Backend) EraInfo() (EraInfo, bool, error) {
	var info EraInfo
	ok, err := b.state.KVGet(eraKey, &info)
	if err != nil {
		return EraInfo{}, false, fmt.Errorf("staking: load era: %w", err)
	}
	return info, ok, nil
}

// CurrentEra returns the active era index.
func (b *Backend) CurrentEra() (uint64, error) {
	info, _, err := b.EraInfo()
	if err != nil {
		return 0, err
	}
	return info.Index, nil
}

// StartClock initialises the era clock. It is a no-op once the clock runs.
func (b *Backend) StartClock(era, height uint64) error {
	if _, ok, err := b.EraInfo(); err != nil || ok {
		return err
	}
	return b.state.KVPut(eraKey, EraInfo{Index: era, StartBlock: height})
}

// Advance moves the era clock to height. When the current era has lasted
// EraLengthBlocks it pays era rewards, starts the next era and returns true.
func (b *Backend) Advance(height uint64) (bool, error) {
	info, ok, err := b.EraInfo()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, b.state.KVPut(eraKey, EraInfo{Index: 0, StartBlock: height})
	}
	if height < info.StartBlock+b.params.EraLengthBlocks {
		return false, nil
	}
	rewards, err := b.payRewards()
	if err != nil {
		return false, err
	}
	next := EraInfo{Index: info.Index + 1, StartBlock: height}
	if err := b.state.KVPut(eraKey, next); err != nil {
		return false, err
	}
	b.emitter.Emit(events.EraStarted{Era: next.Index, StartBlock: height, Rewards: rewards})
	return true, nil
}

func (b *Backend) payRewards() (*uint256.Int, error) {
	total := new(uint256.Int)
	if b.params.RewardBpsPerEra == 0 {
		return total, nil
	}
	rate := uint256.NewInt(b.params.RewardBpsPerEra)
	err := b.forEachLedger(func(ledger *Ledger) error {
		if ledger.Active.IsZero() {
			return nil
		}
		backing, err := b.backsValidator(ledger.Stash)
		if err != nil || !backing {
			return err
		}
		reward, overflow := new(uint256.Int).MulOverflow(ledger.Active, rate)
		if overflow {
			return fmt.Errorf("staking: reward overflow for %x", ledger.Stash)
		}
		reward.Div(reward, basisPoints)
		if reward.IsZero() {
			return nil
		}
		if err := b.base.Mint(ledger.Payee, reward); err != nil {
			return fmt.Errorf("staking: pay reward: %w", err)
		}
		total.Add(total, reward)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return total, nil
}

func (b *Backend) backsValidator(stash [20]byte) (bool, error) {
	record, ok, err := b.NominationsOf(stash)
	if err != nil || !ok {
		return false, err
	}
	for _, target := range record.Targets {
		isValidator, err := b.IsValidator(target)
		if err != nil {
			return false, err
		}
		if isValidator {
			return true, nil
		}
	}
	return false, nil
}

// RegisterValidator adds account to the validator set.
func (b *Backend) RegisterValidator(account [20]byte) error {
	return b.state.KVPut(accountKey(validatorPrefix, account), true)
}

// RemoveValidator drops account from the validator set.
func (b *Backend) RemoveValidator(account [20]byte) error {
	return b.state.KVDelete(accountKey(validatorPrefix, account))
}

// IsValidator reports whether account is a registered validator.
func (b *Backend) IsValidator(account [20]byte) (bool, error) {
	return b.state.KVGet(accountKey(validatorPrefix, account), nil)
}

// Validators lists the registered validators in ascending address order.
func (b *Backend) Validators() ([][20]byte, error) {
	var out [][20]byte
	var parseErr error
	err := b.state.KVIterate(validatorPrefix, func(key, _ []byte) bool {
		account, err := parseAccountKey(validatorPrefix, key)
		if err != nil {
			parseErr = err
			return false
		}
		out = append(out, account)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, parseErr
}
