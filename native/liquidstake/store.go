package liquidstake

import (
	"encoding/hex"
	"fmt"

	"github.com/holiman/uint256"

	"liquidstake/core/state"
)

var (
	trackerKey       = []byte("lstake/era")
	heightKey        = []byte("lstake/height")
	pendingKey       = []byte("lstake/pending")
	nominationsKey   = []byte("lstake/nominations")
	redemptionPrefix = []byte("lstake/redemptions/")
	lockPrefix       = []byte("lstake/lock/")
	tallyPrefix      = []byte("lstake/tally/")
)

type nominationSet struct {
	Era        uint64
	Validators [][20]byte
}

func accountKey(prefix []byte, account [20]byte) []byte {
	key := make([]byte, 0, len(prefix)+40)
	key = append(key, prefix...)
	return append(key, hex.EncodeToString(account[:])...)
}

func parseAccountKey(prefix, key []byte) ([20]byte, error) {
	var out [20]byte
	decoded, err := hex.DecodeString(string(key[len(prefix):]))
	if err != nil || len(decoded) != len(out) {
		return out, fmt.Errorf("liquidstake: malformed key %q", key)
	}
	copy(out[:], decoded)
	return out, nil
}

func (e *Engine) loadAmount(key []byte) (*uint256.Int, error) {
	value := new(uint256.Int)
	if _, err := e.state.KVGet(key, value); err != nil {
		return nil, err
	}
	return value, nil
}

func (e *Engine) putAmount(key []byte, value *uint256.Int) error {
	if value == nil || value.IsZero() {
		return e.state.KVDelete(key)
	}
	return e.state.KVPut(key, value)
}

func (e *Engine) tracker() (EraTracker, bool, error) {
	var tracker EraTracker
	ok, err := e.state.KVGet(trackerKey, &tracker)
	if err != nil {
		return EraTracker{}, false, fmt.Errorf("liquidstake: load era tracker: %w", err)
	}
	return tracker, ok, nil
}

func (e *Engine) putTracker(tracker EraTracker) error {
	return e.state.KVPut(trackerKey, tracker)
}

func (e *Engine) height() (uint64, error) {
	var height uint64
	if _, err := e.state.KVGet(heightKey, &height); err != nil {
		return 0, err
	}
	return height, nil
}

func (e *Engine) pendingUnits() (*uint256.Int, error) {
	return e.loadAmount(pendingKey)
}

func (e *Engine) redemptions(account [20]byte) (*redemptionRecord, error) {
	var record redemptionRecord
	if _, err := e.state.KVGet(accountKey(redemptionPrefix, account), &record); err != nil {
		return nil, fmt.Errorf("liquidstake: load redemptions: %w", err)
	}
	for i := range record.Buckets {
		if record.Buckets[i].Units == nil {
			record.Buckets[i].Units = new(uint256.Int)
		}
	}
	return &record, nil
}

func (e *Engine) putRedemptions(account [20]byte, record *redemptionRecord) error {
	key := accountKey(redemptionPrefix, account)
	if len(record.Buckets) == 0 {
		return e.state.KVDelete(key)
	}
	return e.state.KVPut(key, record)
}

// collectAmounts walks an account-keyed amount map in ascending key order.
func (e *Engine) collectAmounts(prefix []byte) ([][20]byte, []*uint256.Int, error) {
	var (
		accounts [][20]byte
		amounts  []*uint256.Int
		walkErr  error
	)
	err := e.state.KVIterate(prefix, func(key, raw []byte) bool {
		account, err := parseAccountKey(prefix, key)
		if err != nil {
			walkErr = err
			return false
		}
		amount := new(uint256.Int)
		if err := state.DecodeValue(raw, amount); err != nil {
			walkErr = fmt.Errorf("liquidstake: decode %q: %w", key, err)
			return false
		}
		accounts = append(accounts, account)
		amounts = append(amounts, amount)
		return true
	})
	if err != nil {
		return nil, nil, err
	}
	if walkErr != nil {
		return nil, nil, walkErr
	}
	return accounts, amounts, nil
}

func (e *Engine) currentNominations() (*nominationSet, error) {
	var set nominationSet
	if _, err := e.state.KVGet(nominationsKey, &set); err != nil {
		return nil, fmt.Errorf("liquidstake: load nominations: %w", err)
	}
	return &set, nil
}

func (e *Engine) putNominations(era uint64, validators [][20]byte) error {
	return e.state.KVPut(nominationsKey, nominationSet{Era: era, Validators: validators})
}
