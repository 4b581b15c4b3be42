package config

import (
	"fmt"
	"strings"

	"liquidstake/native/liquidstake"
	"liquidstake/storage"
)

// Validate checks every section and converts the amount fields once so that
// malformed values fail at startup.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir required")
	}
	switch strings.ToLower(strings.TrimSpace(c.DBBackend)) {
	case "", storage.BackendLevelDB, storage.BackendBadger, storage.BackendMemory:
	default:
		return fmt.Errorf("config: unknown DBBackend %q", c.DBBackend)
	}
	if c.BlockIntervalMs == 0 {
		return fmt.Errorf("config: BlockIntervalMs must be positive")
	}
	if c.RPC.RateLimitPerSec < 0 || c.RPC.RateLimitBurst < 0 {
		return fmt.Errorf("config: rpc rate limit must not be negative")
	}
	if c.RPC.RateLimitPerSec > 0 && c.RPC.RateLimitBurst == 0 {
		return fmt.Errorf("config: rpc rate limit burst must be positive")
	}
	if c.RPC.StreamBuffer < 0 {
		return fmt.Errorf("config: rpc stream buffer must not be negative")
	}
	if strings.TrimSpace(c.Ledgers.BaseSymbol) == "" || strings.TrimSpace(c.Ledgers.DerivativeSymbol) == "" {
		return fmt.Errorf("config: ledger symbols required")
	}
	if strings.EqualFold(c.Ledgers.BaseSymbol, c.Ledgers.DerivativeSymbol) {
		return fmt.Errorf("config: base and derivative symbols must differ")
	}
	if _, _, err := c.ExistentialDeposits(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	stakingParams, err := c.StakingParams()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := stakingParams.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	poolParams, err := c.PoolParams()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := poolParams.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, _, err := liquidstake.PoolAccounts(poolParams); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
