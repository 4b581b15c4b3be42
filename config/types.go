package config

import (
	"fmt"
	"strings"
	"time"

	"liquidstake/native/liquidstake"
	"liquidstake/native/staking"

	"github.com/holiman/uint256"
)

// Logging controls the structured logger. An empty File logs to stdout.
type Logging struct {
	Level      string `toml:"Level" envconfig:"LEVEL"`
	File       string `toml:"File" envconfig:"FILE"`
	MaxSizeMB  int    `toml:"MaxSizeMB" envconfig:"MAX_SIZE_MB"`
	MaxBackups int    `toml:"MaxBackups" envconfig:"MAX_BACKUPS"`
	MaxAgeDays int    `toml:"MaxAgeDays" envconfig:"MAX_AGE_DAYS"`
}

// RPC configures caller authentication, per-client throttling and the event
// stream.
type RPC struct {
	JWTSecret       string  `toml:"JWTSecret" envconfig:"JWT_SECRET"`
	JWTIssuer       string  `toml:"JWTIssuer" envconfig:"JWT_ISSUER"`
	RateLimitPerSec float64 `toml:"RateLimitPerSec" envconfig:"RATE_LIMIT_PER_SEC"`
	RateLimitBurst  int     `toml:"RateLimitBurst" envconfig:"RATE_LIMIT_BURST"`
	// StreamBuffer is the per-subscriber backlog of /ws/events.
	StreamBuffer int `toml:"StreamBuffer" envconfig:"STREAM_BUFFER"`
}

// Telemetry configures OTLP export. An empty Endpoint disables it.
type Telemetry struct {
	ServiceName string `toml:"ServiceName" envconfig:"SERVICE_NAME"`
	Endpoint    string `toml:"Endpoint" envconfig:"ENDPOINT"`
	Insecure    bool   `toml:"Insecure" envconfig:"INSECURE"`
	// Headers is a comma separated key=value list sent with every export.
	Headers string `toml:"Headers" envconfig:"HEADERS"`
}

// Ledgers names the two assets and their existential deposits.
type Ledgers struct {
	BaseSymbol                   string `toml:"BaseSymbol" envconfig:"BASE_SYMBOL"`
	BaseExistentialDeposit       string `toml:"BaseExistentialDeposit" envconfig:"BASE_ED"`
	DerivativeSymbol             string `toml:"DerivativeSymbol" envconfig:"DERIVATIVE_SYMBOL"`
	DerivativeExistentialDeposit string `toml:"DerivativeExistentialDeposit" envconfig:"DERIVATIVE_ED"`
}

// Staking configures the reference staking backend.
type Staking struct {
	EraLengthBlocks    uint64 `toml:"EraLengthBlocks" envconfig:"ERA_LENGTH_BLOCKS"`
	BondingDuration    uint64 `toml:"BondingDuration" envconfig:"BONDING_DURATION"`
	MinimumBond        string `toml:"MinimumBond" envconfig:"MINIMUM_BOND"`
	MaxNominations     int    `toml:"MaxNominations" envconfig:"MAX_NOMINATIONS"`
	MaxUnlockingChunks int    `toml:"MaxUnlockingChunks" envconfig:"MAX_UNLOCKING_CHUNKS"`
	RewardBpsPerEra    uint64 `toml:"RewardBpsPerEra" envconfig:"REWARD_BPS_PER_ERA"`
}

// Pool configures the liquid staking pool.
type Pool struct {
	StashSeed            string `toml:"StashSeed" envconfig:"STASH_SEED"`
	ControllerSeed       string `toml:"ControllerSeed" envconfig:"CONTROLLER_SEED"`
	MinimumStake         string `toml:"MinimumStake" envconfig:"MINIMUM_STAKE"`
	WithdrawalBound      int    `toml:"WithdrawalBound" envconfig:"WITHDRAWAL_BOUND"`
	MaxValidatorNominees int    `toml:"MaxValidatorNominees" envconfig:"MAX_VALIDATOR_NOMINEES"`
	VotingPeriodBlocks   uint64 `toml:"VotingPeriodBlocks" envconfig:"VOTING_PERIOD_BLOCKS"`
	QuorumBps            uint64 `toml:"QuorumBps" envconfig:"QUORUM_BPS"`
	RedemptionExpiryEras uint64 `toml:"RedemptionExpiryEras" envconfig:"REDEMPTION_EXPIRY_ERAS"`
}

// BlockInterval is the local block ticker period.
func (c *Config) BlockInterval() time.Duration {
	return time.Duration(c.BlockIntervalMs) * time.Millisecond
}

// StakingParams converts the staking section.
func (c *Config) StakingParams() (staking.Params, error) {
	minBond, err := ParseAmount(c.Staking.MinimumBond)
	if err != nil {
		return staking.Params{}, fmt.Errorf("staking.MinimumBond: %w", err)
	}
	return staking.Params{
		EraLengthBlocks:    c.Staking.EraLengthBlocks,
		BondingDuration:    c.Staking.BondingDuration,
		MinimumBond:        minBond,
		MaxNominations:     c.Staking.MaxNominations,
		MaxUnlockingChunks: c.Staking.MaxUnlockingChunks,
		RewardBpsPerEra:    c.Staking.RewardBpsPerEra,
	}, nil
}

// PoolParams converts the pool section.
func (c *Config) PoolParams() (liquidstake.Params, error) {
	minStake, err := ParseAmount(c.Pool.MinimumStake)
	if err != nil {
		return liquidstake.Params{}, fmt.Errorf("pool.MinimumStake: %w", err)
	}
	return liquidstake.Params{
		StashSeed:            c.Pool.StashSeed,
		ControllerSeed:       c.Pool.ControllerSeed,
		MinimumStake:         minStake,
		WithdrawalBound:      c.Pool.WithdrawalBound,
		MaxValidatorNominees: c.Pool.MaxValidatorNominees,
		VotingPeriodBlocks:   c.Pool.VotingPeriodBlocks,
		QuorumBps:            c.Pool.QuorumBps,
		RedemptionExpiryEras: c.Pool.RedemptionExpiryEras,
	}, nil
}

// ExistentialDeposits returns the base and derivative minimum balances.
func (c *Config) ExistentialDeposits() (base, derivative *uint256.Int, err error) {
	if base, err = ParseAmount(c.Ledgers.BaseExistentialDeposit); err != nil {
		return nil, nil, fmt.Errorf("ledgers.BaseExistentialDeposit: %w", err)
	}
	if derivative, err = ParseAmount(c.Ledgers.DerivativeExistentialDeposit); err != nil {
		return nil, nil, fmt.Errorf("ledgers.DerivativeExistentialDeposit: %w", err)
	}
	return base, derivative, nil
}

// ParseAmount parses a decimal amount. An empty string is zero.
func ParseAmount(value string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return new(uint256.Int), nil
	}
	amount, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	return amount, nil
}
