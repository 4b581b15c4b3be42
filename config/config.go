package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment override, e.g. LSTAKE_RPC_ADDRESS.
const EnvPrefix = "lstake"

type Config struct {
	RPCAddress      string `toml:"RPCAddress" envconfig:"RPC_ADDRESS"`
	DataDir         string `toml:"DataDir" envconfig:"DATA_DIR"`
	DBBackend       string `toml:"DBBackend" envconfig:"DB_BACKEND"`
	GenesisFile     string `toml:"GenesisFile" envconfig:"GENESIS_FILE"`
	EventLogPath    string `toml:"EventLogPath" envconfig:"EVENT_LOG_PATH"`
	BlockIntervalMs uint64 `toml:"BlockIntervalMs" envconfig:"BLOCK_INTERVAL_MS"`
	Environment     string `toml:"Environment" envconfig:"ENV"`

	Logging   Logging   `toml:"logging" envconfig:"LOG"`
	RPC       RPC       `toml:"rpc" envconfig:"RPC"`
	Telemetry Telemetry `toml:"telemetry" envconfig:"OTEL"`
	Ledgers   Ledgers   `toml:"ledgers" envconfig:"LEDGERS"`
	Staking   Staking   `toml:"staking" envconfig:"STAKING"`
	Pool      Pool      `toml:"pool" envconfig:"POOL"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists, then applies environment overrides and validates.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := persist(path, cfg); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config: unknown key %q in %s", undecoded[0].String(), path)
		}
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays LSTAKE_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}
	return nil
}

// Default returns the development configuration written on first start.
func Default() *Config {
	return &Config{
		RPCAddress:      "127.0.0.1:8645",
		DataDir:         "./lstake-data",
		DBBackend:       "leveldb",
		EventLogPath:    "events.db",
		BlockIntervalMs: 1000,
		Environment:     "dev",
		Logging: Logging{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		RPC: RPC{
			JWTIssuer:       "lstake",
			RateLimitPerSec: 20,
			RateLimitBurst:  40,
			StreamBuffer:    64,
		},
		Telemetry: Telemetry{
			ServiceName: "lstaked",
			Insecure:    true,
		},
		Ledgers: Ledgers{
			BaseSymbol:                   "STK",
			BaseExistentialDeposit:       "1",
			DerivativeSymbol:             "LSTK",
			DerivativeExistentialDeposit: "1",
		},
		Staking: Staking{
			EraLengthBlocks:    600,
			BondingDuration:    3,
			MinimumBond:        "1",
			MaxNominations:     16,
			MaxUnlockingChunks: 32,
		},
		Pool: Pool{
			StashSeed:            "px/lstkg",
			ControllerSeed:       "py/lstkg",
			MinimumStake:         "2",
			WithdrawalBound:      20,
			MaxValidatorNominees: 16,
			VotingPeriodBlocks:   600,
			QuorumBps:            5_000,
		},
	}
}

// ResolvePath anchors a relative file setting under the data directory.
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
