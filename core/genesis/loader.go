// core/genesis/loader.go
package genesis

import (
	"fmt"

	"github.com/holiman/uint256"
)

var appliedKey = []byte("genesis/applied")

type markerState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// Minter credits genesis balances.
type Minter interface {
	Mint(account [20]byte, amount *uint256.Int) error
}

// Staking receives the validator set, era clock and genesis bonds.
type Staking interface {
	StartClock(era, height uint64) error
	RegisterValidator(account [20]byte) error
	Bond(stash, controller [20]byte, amount *uint256.Int, payee [20]byte) error
	Nominate(stash [20]byte, targets [][20]byte) error
}

// Targets bundles the components a genesis document initialises.
type Targets struct {
	State      markerState
	Base       Minter
	Derivative Minter
	Staking    Staking
}

// Applied reports whether a genesis document was already applied.
func Applied(state markerState) (bool, error) {
	var marker bool
	ok, err := state.KVGet(appliedKey, &marker)
	if err != nil {
		return false, err
	}
	return ok && marker, nil
}

// Apply initialises state from spec unless a previous run already did. It
// writes into the caller's pending overlay; committing is the caller's job.
func Apply(spec *Spec, targets Targets) (bool, error) {
	if spec == nil {
		return false, fmt.Errorf("genesis spec must not be nil")
	}
	if targets.State == nil || targets.Base == nil || targets.Derivative == nil || targets.Staking == nil {
		return false, fmt.Errorf("genesis targets not configured")
	}
	done, err := Applied(targets.State)
	if err != nil || done {
		return false, err
	}

	// 1) Era clock
	if err := targets.Staking.StartClock(spec.Era, spec.Height); err != nil {
		return false, fmt.Errorf("start era clock: %w", err)
	}
	// 2) Validators, in document order
	for _, validator := range spec.validators {
		if err := targets.Staking.RegisterValidator(validator); err != nil {
			return false, fmt.Errorf("register validator: %w", err)
		}
	}
	// 3) Balances (accounts sorted)
	for _, alloc := range spec.base {
		if err := targets.Base.Mint(alloc.account, alloc.amount); err != nil {
			return false, fmt.Errorf("mint base: %w", err)
		}
	}
	for _, alloc := range spec.derivative {
		if err := targets.Derivative.Mint(alloc.account, alloc.amount); err != nil {
			return false, fmt.Errorf("mint derivative: %w", err)
		}
	}
	// 4) Bonds draw on the balances minted above
	for i, st := range spec.stakers {
		if err := targets.Staking.Bond(st.stash, st.controller, st.bond, st.stash); err != nil {
			return false, fmt.Errorf("staker[%d]: bond: %w", i, err)
		}
		if len(st.targets) == 0 {
			continue
		}
		if err := targets.Staking.Nominate(st.stash, st.targets); err != nil {
			return false, fmt.Errorf("staker[%d]: nominate: %w", i, err)
		}
	}
	if err := targets.State.KVPut(appliedKey, true); err != nil {
		return false, err
	}
	return true, nil
}
