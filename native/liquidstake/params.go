package liquidstake

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// NominationLockID names the derivative-ledger lock that backs votes.
const NominationLockID = "nomlocks"

// Params configures the pool.
type Params struct {
	// StashSeed and ControllerSeed derive the two pool accounts. They must
	// differ.
	StashSeed      string
	ControllerSeed string
	// MinimumStake is exclusive: deposits must be strictly larger.
	MinimumStake *uint256.Int
	// WithdrawalBound caps the distinct pending redemption eras per account.
	WithdrawalBound int
	// MaxValidatorNominees caps the entries of one nomination slate.
	MaxValidatorNominees int
	// VotingPeriodBlocks is the window length counted from the era start.
	VotingPeriodBlocks uint64
	// QuorumBps is the share of derivative issuance, in basis points, that
	// votes must strictly exceed for the tally to be applied.
	QuorumBps uint64
	// RedemptionExpiryEras forfeits redemptions left unclaimed this many
	// eras after they matured. Zero disables expiry.
	RedemptionExpiryEras uint64
}

// DefaultParams returns the development configuration.
func DefaultParams() Params {
	return Params{
		StashSeed:            "px/lstkg",
		ControllerSeed:       "py/lstkg",
		MinimumStake:         uint256.NewInt(2),
		WithdrawalBound:      20,
		MaxValidatorNominees: 16,
		VotingPeriodBlocks:   600,
		QuorumBps:            5_000,
	}
}

// Validate checks the parameters for consistency.
func (p Params) Validate() error {
	if strings.TrimSpace(p.StashSeed) == "" || strings.TrimSpace(p.ControllerSeed) == "" {
		return errEmptySeed
	}
	if p.WithdrawalBound <= 0 {
		return fmt.Errorf("liquidstake: withdrawal bound must be positive")
	}
	if p.MaxValidatorNominees <= 0 {
		return fmt.Errorf("liquidstake: max validator nominees must be positive")
	}
	if p.VotingPeriodBlocks == 0 {
		return fmt.Errorf("liquidstake: voting period must be positive")
	}
	if p.QuorumBps > 10_000 {
		return fmt.Errorf("liquidstake: quorum bps must not exceed 10000")
	}
	return nil
}

func (p Params) minimumStake() *uint256.Int {
	if p.MinimumStake == nil {
		return new(uint256.Int)
	}
	return p.MinimumStake
}
