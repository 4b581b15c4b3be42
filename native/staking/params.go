package staking

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Params configures the reference staking backend.
type Params struct {
	// EraLengthBlocks is the number of blocks per era.
	EraLengthBlocks uint64
	// BondingDuration is the number of eras an unlocking chunk waits.
	BondingDuration uint64
	// MinimumBond is the smallest accepted first bond.
	MinimumBond *uint256.Int
	// MaxNominations bounds the targets of a single nominator.
	MaxNominations int
	// MaxUnlockingChunks bounds the pending unlocking chunks of a stash.
	MaxUnlockingChunks int
	// RewardBpsPerEra is paid on active stake that nominates at least one
	// registered validator, in basis points per era.
	RewardBpsPerEra uint64
}

// DefaultParams mirrors the development chain configuration.
func DefaultParams() Params {
	return Params{
		EraLengthBlocks:    600,
		BondingDuration:    3,
		MinimumBond:        uint256.NewInt(1),
		MaxNominations:     16,
		MaxUnlockingChunks: 32,
		RewardBpsPerEra:    0,
	}
}

// Validate checks the parameter set for internal consistency.
func (p Params) Validate() error {
	if p.EraLengthBlocks == 0 {
		return fmt.Errorf("staking: era length must be positive")
	}
	if p.MaxNominations <= 0 {
		return fmt.Errorf("staking: max nominations must be positive")
	}
	if p.MaxUnlockingChunks <= 0 {
		return fmt.Errorf("staking: max unlocking chunks must be positive")
	}
	if p.RewardBpsPerEra > 10_000 {
		return fmt.Errorf("staking: reward bps must not exceed 10000")
	}
	return nil
}
