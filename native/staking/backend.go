package staking

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"liquidstake/core/events"
)

// LockID is the base-ledger lock holding bonded and unlocking funds.
const LockID = "staking"

type backendState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	KVIterate(prefix []byte, fn func(key, raw []byte) bool) error
}

type baseLedger interface {
	FreeBalance(account [20]byte) (*uint256.Int, error)
	SetLock(id string, account [20]byte, amount *uint256.Int) error
	RemoveLock(id string, account [20]byte) error
	Mint(account [20]byte, amount *uint256.Int) error
	Slash(account [20]byte, amount *uint256.Int) (*uint256.Int, error)
}

// Backend is a minimal nominated-proof-of-stake bookkeeping layer: an era
// clock, per-stash bonding ledgers with unlocking chunks, nominations and a
// validator registry. Bonded funds never leave the stash; they are held by a
// base-ledger lock.
type Backend struct {
	state   backendState
	base    baseLedger
	params  Params
	emitter events.Emitter
}

// NewBackend wires the backend to state and the base-asset ledger.
func NewBackend(state backendState, base baseLedger, params Params) (*Backend, error) {
	if state == nil || base == nil {
		return nil, errNilState
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if params.MinimumBond == nil {
		params.MinimumBond = new(uint256.Int)
	}
	return &Backend{state: state, base: base, params: params, emitter: events.NoopEmitter{}}, nil
}

// SetEmitter configures the sink for staking events. Events are emitted only
// after a call has made all of its writes.
func (b *Backend) SetEmitter(emitter events.Emitter) {
	if b == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	b.emitter = emitter
}

// Params returns the configured parameters.
func (b *Backend) Params() Params { return b.params }

// BondingDuration returns the number of eras an unlocking chunk waits.
func (b *Backend) BondingDuration() uint64 { return b.params.BondingDuration }

// MinimumBond returns the smallest accepted first bond.
func (b *Backend) MinimumBond() *uint256.Int { return new(uint256.Int).Set(b.params.MinimumBond) }

// MaxNominations bounds the targets of a single nominator.
func (b *Backend) MaxNominations() int { return b.params.MaxNominations }

var (
	ledgerPrefix     = []byte("staking/ledger/")
	controllerPrefix = []byte("staking/controller/")
	nominationPrefix = []byte("staking/nominations/")
	validatorPrefix  = []byte("staking/validator/")
	eraKey           = []byte("staking/era")
)

func accountKey(prefix []byte, account [20]byte) []byte {
	key := make([]byte, 0, len(prefix)+40)
	key = append(key, prefix...)
	return append(key, hex.EncodeToString(account[:])...)
}

func parseAccountKey(prefix, key []byte) ([20]byte, error) {
	var out [20]byte
	decoded, err := hex.DecodeString(string(key[len(prefix):]))
	if err != nil || len(decoded) != len(out) {
		return out, fmt.Errorf("staking: malformed key %q", key)
	}
	copy(out[:], decoded)
	return out, nil
}

// Ledger returns the bonding ledger of stash.
func (b *Backend) Ledger(stash [20]byte) (*Ledger, bool, error) {
	var ledger Ledger
	ok, err := b.state.KVGet(accountKey(ledgerPrefix, stash), &ledger)
	if err != nil {
		return nil, false, fmt.Errorf("staking: load ledger: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	ledger.normalize()
	return &ledger, true, nil
}

func (b *Backend) putLedger(ledger *Ledger) error {
	total, err := ledger.Total()
	if err != nil {
		return err
	}
	if err := b.state.KVPut(accountKey(ledgerPrefix, ledger.Stash), ledger); err != nil {
		return err
	}
	return b.base.SetLock(LockID, ledger.Stash, total)
}

func (b *Backend) removeLedger(ledger *Ledger) error {
	if err := b.state.KVDelete(accountKey(ledgerPrefix, ledger.Stash)); err != nil {
		return err
	}
	if err := b.state.KVDelete(accountKey(controllerPrefix, ledger.Controller)); err != nil {
		return err
	}
	if err := b.state.KVDelete(accountKey(nominationPrefix, ledger.Stash)); err != nil {
		return err
	}
	return b.base.RemoveLock(LockID, ledger.Stash)
}

// StashOf resolves the stash controlled by controller.
func (b *Backend) StashOf(controller [20]byte) ([20]byte, bool, error) {
	var stash [20]byte
	ok, err := b.state.KVGet(accountKey(controllerPrefix, controller), &stash)
	if err != nil {
		return stash, false, err
	}
	return stash, ok, nil
}

// ActiveStake returns the active bond of stash.
func (b *Backend) ActiveStake(stash [20]byte) (*uint256.Int, bool, error) {
	ledger, ok, err := b.Ledger(stash)
	if err != nil || !ok {
		return nil, ok, err
	}
	return ledger.Active, true, nil
}

// TotalStake returns the active bond plus unlocking funds of stash.
func (b *Backend) TotalStake(stash [20]byte) (*uint256.Int, bool, error) {
	ledger, ok, err := b.Ledger(stash)
	if err != nil || !ok {
		return nil, ok, err
	}
	total, err := ledger.Total()
	if err != nil {
		return nil, false, err
	}
	return total, true, nil
}

func (b *Backend) unbondedFree(stash [20]byte, ledger *Ledger) (*uint256.Int, error) {
	free, err := b.base.FreeBalance(stash)
	if err != nil {
		return nil, err
	}
	held := new(uint256.Int)
	if ledger != nil {
		if held, err = ledger.Total(); err != nil {
			return nil, err
		}
	}
	if held.Cmp(free) >= 0 {
		return new(uint256.Int), nil
	}
	return new(uint256.Int).Sub(free, held), nil
}

// Bond registers stash as a staker controlled by controller and bonds up to
// amount of its free balance. Rewards are paid to payee.
func (b *Backend) Bond(stash, controller [20]byte, amount *uint256.Int, payee [20]byte) error {
	if _, ok, err := b.Ledger(stash); err != nil {
		return err
	} else if ok {
		return ErrAlreadyBonded
	}
	if _, paired, err := b.StashOf(controller); err != nil {
		return err
	} else if paired {
		return ErrAlreadyPaired
	}
	value, err := b.unbondedFree(stash, nil)
	if err != nil {
		return err
	}
	if amount != nil && amount.Lt(value) {
		value.Set(amount)
	}
	if value.Lt(b.params.MinimumBond) || value.IsZero() {
		return ErrInsufficientBond
	}
	ledger := &Ledger{Stash: stash, Controller: controller, Payee: payee, Active: value}
	if err := b.putLedger(ledger); err != nil {
		return err
	}
	if err := b.state.KVPut(accountKey(controllerPrefix, controller), stash); err != nil {
		return err
	}
	b.emitter.Emit(events.StakeBonded{Stash: stash, Controller: controller, Amount: value, Active: ledger.Active})
	return nil
}

// BondExtra adds up to maxAdditional of stash's unbonded free balance to its
// active bond.
func (b *Backend) BondExtra(stash [20]byte, maxAdditional *uint256.Int) error {
	ledger, ok, err := b.Ledger(stash)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotStash
	}
	extra, err := b.unbondedFree(stash, ledger)
	if err != nil {
		return err
	}
	if maxAdditional != nil && maxAdditional.Lt(extra) {
		extra.Set(maxAdditional)
	}
	if extra.IsZero() {
		return nil
	}
	active, overflow := new(uint256.Int).AddOverflow(ledger.Active, extra)
	if overflow {
		return fmt.Errorf("staking: active bond overflow")
	}
	ledger.Active = active
	if err := b.putLedger(ledger); err != nil {
		return err
	}
	b.emitter.Emit(events.StakeBonded{Stash: stash, Amount: extra, Active: active})
	return nil
}

// Unbond schedules up to amount of the active bond for release after the
// bonding duration.
func (b *Backend) Unbond(stash [20]byte, amount *uint256.Int) error {
	ledger, ok, err := b.Ledger(stash)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotStash
	}
	value := new(uint256.Int).Set(ledger.Active)
	if amount != nil && amount.Lt(value) {
		value.Set(amount)
	}
	if value.IsZero() {
		return nil
	}
	era, err := b.CurrentEra()
	if err != nil {
		return err
	}
	unlockEra := era + b.params.BondingDuration
	merged := false
	for i := range ledger.Unlocking {
		if ledger.Unlocking[i].Era == unlockEra {
			ledger.Unlocking[i].Value = new(uint256.Int).Add(ledger.Unlocking[i].Value, value)
			merged = true
			break
		}
	}
	if !merged {
		if len(ledger.Unlocking) >= b.params.MaxUnlockingChunks {
			return ErrNoMoreChunks
		}
		ledger.Unlocking = append(ledger.Unlocking, UnlockChunk{Era: unlockEra, Value: new(uint256.Int).Set(value)})
	}
	ledger.Active = new(uint256.Int).Sub(ledger.Active, value)
	if err := b.putLedger(ledger); err != nil {
		return err
	}
	b.emitter.Emit(events.StakeUnbonded{Stash: stash, Amount: value, UnlockEra: unlockEra})
	return nil
}

// WithdrawUnbonded releases every matured unlocking chunk of stash. When
// nothing remains bonded the stash stops being a staker and true is
// returned. slashingSpans is accepted for interface compatibility and unused
// because the backend keeps no slashing spans.
func (b *Backend) WithdrawUnbonded(stash [20]byte, slashingSpans uint32) (bool, error) {
	_ = slashingSpans
	ledger, ok, err := b.Ledger(stash)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrNotStash
	}
	era, err := b.CurrentEra()
	if err != nil {
		return false, err
	}
	released := new(uint256.Int)
	kept := ledger.Unlocking[:0]
	for _, chunk := range ledger.Unlocking {
		if chunk.Era <= era {
			released.Add(released, chunk.Value)
			continue
		}
		kept = append(kept, chunk)
	}
	ledger.Unlocking = kept
	reaped := ledger.Active.IsZero() && len(ledger.Unlocking) == 0
	if reaped {
		err = b.removeLedger(ledger)
	} else {
		err = b.putLedger(ledger)
	}
	if err != nil {
		return false, err
	}
	if !released.IsZero() || reaped {
		b.emitter.Emit(events.StakeWithdrawn{Stash: stash, Amount: released, Reaped: reaped})
	}
	return reaped, nil
}

// Nominate replaces the nomination targets of stash.
func (b *Backend) Nominate(stash [20]byte, targets [][20]byte) error {
	if _, ok, err := b.Ledger(stash); err != nil {
		return err
	} else if !ok {
		return ErrNotStash
	}
	if len(targets) == 0 {
		return ErrEmptyTargets
	}
	if len(targets) > b.params.MaxNominations {
		return ErrTooManyTargets
	}
	seen := make(map[[20]byte]struct{}, len(targets))
	unique := make([][20]byte, 0, len(targets))
	for _, target := range targets {
		if _, dup := seen[target]; dup {
			continue
		}
		ok, err := b.IsValidator(target)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %x", ErrNotValidator, target)
		}
		seen[target] = struct{}{}
		unique = append(unique, target)
	}
	era, err := b.CurrentEra()
	if err != nil {
		return err
	}
	record := Nominations{Targets: unique, SubmittedIn: era}
	if err := b.state.KVPut(accountKey(nominationPrefix, stash), record); err != nil {
		return err
	}
	b.emitter.Emit(events.StakeNominated{Stash: stash, Targets: unique, Era: era})
	return nil
}

// NominationsOf returns the recorded nominations of stash.
func (b *Backend) NominationsOf(stash [20]byte) (*Nominations, bool, error) {
	var record Nominations
	ok, err := b.state.KVGet(accountKey(nominationPrefix, stash), &record)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &record, true, nil
}

// Slash removes up to amount of stake from stash, taking it from the active
// bond first and then from the latest unlocking chunks.
func (b *Backend) Slash(stash [20]byte, amount *uint256.Int) (*uint256.Int, error) {
	ledger, ok, err := b.Ledger(stash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotStash
	}
	if amount == nil || amount.IsZero() {
		return new(uint256.Int), nil
	}
	remaining := new(uint256.Int).Set(amount)
	take := func(from *uint256.Int) *uint256.Int {
		cut := new(uint256.Int).Set(remaining)
		if from.Lt(cut) {
			cut.Set(from)
		}
		remaining.Sub(remaining, cut)
		return new(uint256.Int).Sub(from, cut)
	}
	ledger.Active = take(ledger.Active)
	for i := len(ledger.Unlocking) - 1; i >= 0 && !remaining.IsZero(); i-- {
		ledger.Unlocking[i].Value = take(ledger.Unlocking[i].Value)
	}
	kept := ledger.Unlocking[:0]
	for _, chunk := range ledger.Unlocking {
		if !chunk.Value.IsZero() {
			kept = append(kept, chunk)
		}
	}
	ledger.Unlocking = kept
	target := new(uint256.Int).Sub(amount, remaining)
	slashed, err := b.base.Slash(stash, target)
	if err != nil {
		return nil, err
	}
	if err := b.putLedger(ledger); err != nil {
		return nil, err
	}
	b.emitter.Emit(events.StakeSlashed{Stash: stash, Amount: slashed})
	return slashed, nil
}

func (b *Backend) forEachLedger(fn func(*Ledger) error) error {
	var stashes [][20]byte
	if err := b.state.KVIterate(ledgerPrefix, func(key, _ []byte) bool {
		stash, err := parseAccountKey(ledgerPrefix, key)
		if err != nil {
			return false
		}
		stashes = append(stashes, stash)
		return true
	}); err != nil {
		return err
	}
	for _, stash := range stashes {
		ledger, ok, err := b.Ledger(stash)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("staking: ledger vanished during iteration")
		}
		if err := fn(ledger); err != nil {
			return err
		}
	}
	return nil
}
