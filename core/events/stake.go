package events

import (
	"strconv"
	"strings"

	"github.com/holiman/uint256"

	"liquidstake/core/types"
	"liquidstake/crypto"
)

const (
	// TypeStakeBonded is emitted when a stash bonds or extends its bond.
	TypeStakeBonded = "stake.bonded"
	// TypeStakeUnbonded is emitted when part of an active bond starts unlocking.
	TypeStakeUnbonded = "stake.unbonded"
	// TypeStakeWithdrawn is emitted when matured unlocking chunks are released.
	TypeStakeWithdrawn = "stake.withdrawn"
	// TypeStakeNominated is emitted when a stash replaces its nomination targets.
	TypeStakeNominated = "stake.nominated"
	// TypeStakeSlashed is emitted when stake is removed as a penalty.
	TypeStakeSlashed = "stake.slashed"
	// TypeEraStarted is emitted by the staking backend on every era rollover.
	TypeEraStarted = "stake.eraStarted"
)

func zeroAddress(addr [20]byte) bool {
	for _, b := range addr {
		if b != 0 {
			return false
		}
	}
	return true
}

// StakeBonded captures a new bond or a bond extension.
type StakeBonded struct {
	Stash      [20]byte
	Controller [20]byte
	Amount     *uint256.Int
	Active     *uint256.Int
}

// EventType satisfies the Event interface.
func (StakeBonded) EventType() string { return TypeStakeBonded }

// Event converts the structured payload into a broadcastable event.
func (e StakeBonded) Event() *types.Event {
	attrs := map[string]string{
		"stash":  crypto.FormatAccount(e.Stash),
		"amount": formatAmount(e.Amount),
		"active": formatAmount(e.Active),
	}
	if !zeroAddress(e.Controller) {
		attrs["controller"] = crypto.FormatAccount(e.Controller)
	}
	return &types.Event{Type: TypeStakeBonded, Attributes: attrs}
}

// StakeUnbonded captures an unlocking chunk scheduled for a future era.
type StakeUnbonded struct {
	Stash     [20]byte
	Amount    *uint256.Int
	UnlockEra uint64
}

// EventType satisfies the Event interface.
func (StakeUnbonded) EventType() string { return TypeStakeUnbonded }

// Event converts the structured payload into a broadcastable event.
func (e StakeUnbonded) Event() *types.Event {
	return &types.Event{Type: TypeStakeUnbonded, Attributes: map[string]string{
		"stash":     crypto.FormatAccount(e.Stash),
		"amount":    formatAmount(e.Amount),
		"unlockEra": strconv.FormatUint(e.UnlockEra, 10),
	}}
}

// StakeWithdrawn captures released unlocking chunks.
type StakeWithdrawn struct {
	Stash  [20]byte
	Amount *uint256.Int
	Reaped bool
}

// EventType satisfies the Event interface.
func (StakeWithdrawn) EventType() string { return TypeStakeWithdrawn }

// Event converts the structured payload into a broadcastable event.
func (e StakeWithdrawn) Event() *types.Event {
	return &types.Event{Type: TypeStakeWithdrawn, Attributes: map[string]string{
		"stash":  crypto.FormatAccount(e.Stash),
		"amount": formatAmount(e.Amount),
		"reaped": strconv.FormatBool(e.Reaped),
	}}
}

// StakeNominated captures a stash's new nomination targets.
type StakeNominated struct {
	Stash   [20]byte
	Targets [][20]byte
	Era     uint64
}

// EventType satisfies the Event interface.
func (StakeNominated) EventType() string { return TypeStakeNominated }

// Event converts the structured payload into a broadcastable event.
func (e StakeNominated) Event() *types.Event {
	targets := make([]string, len(e.Targets))
	for i, target := range e.Targets {
		targets[i] = crypto.FormatAccount(target)
	}
	return &types.Event{Type: TypeStakeNominated, Attributes: map[string]string{
		"stash":   crypto.FormatAccount(e.Stash),
		"targets": strings.Join(targets, ","),
		"era":     strconv.FormatUint(e.Era, 10),
	}}
}

// StakeSlashed captures a penalty applied to a stash.
type StakeSlashed struct {
	Stash  [20]byte
	Amount *uint256.Int
}

// EventType satisfies the Event interface.
func (StakeSlashed) EventType() string { return TypeStakeSlashed }

// Event converts the structured payload into a broadcastable event.
func (e StakeSlashed) Event() *types.Event {
	return &types.Event{Type: TypeStakeSlashed, Attributes: map[string]string{
		"stash":  crypto.FormatAccount(e.Stash),
		"amount": formatAmount(e.Amount),
	}}
}

// EraStarted captures an era rollover and the rewards paid for the previous
// era.
type EraStarted struct {
	Era        uint64
	StartBlock uint64
	Rewards    *uint256.Int
}

// EventType satisfies the Event interface.
func (EraStarted) EventType() string { return TypeEraStarted }

// Event converts the structured payload into a broadcastable event.
func (e EraStarted) Event() *types.Event {
	return &types.Event{Type: TypeEraStarted, Height: e.StartBlock, Attributes: map[string]string{
		"era":        strconv.FormatUint(e.Era, 10),
		"startBlock": strconv.FormatUint(e.StartBlock, 10),
		"rewards":    formatAmount(e.Rewards),
	}}
}
