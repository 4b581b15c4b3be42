// core/genesis/spec.go
package genesis

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"liquidstake/crypto"
)

// Spec is the YAML genesis document applied once to an empty database.
type Spec struct {
	// Era and Height seed the staking era clock.
	Era    uint64 `yaml:"era"`
	Height uint64 `yaml:"height"`
	// Validators registers the accounts the pool may nominate.
	Validators []string `yaml:"validators"`
	// Balances maps asset ("base" or "derivative") to account to amount.
	Balances map[string]map[string]string `yaml:"balances"`
	// Stakers bonds independent stashes, e.g. to give validators backing.
	Stakers []StakerSpec `yaml:"stakers"`

	validators [][20]byte
	base       []allocation
	derivative []allocation
	stakers    []staker
}

// StakerSpec describes a stash bonded at genesis.
type StakerSpec struct {
	Stash      string   `yaml:"stash"`
	Controller string   `yaml:"controller"`
	Bond       string   `yaml:"bond"`
	Nominate   []string `yaml:"nominate"`
}

const (
	AssetBase       = "base"
	AssetDerivative = "derivative"
)

type allocation struct {
	account [20]byte
	amount  *uint256.Int
}

type staker struct {
	stash      [20]byte
	controller [20]byte
	bond       *uint256.Int
	targets    [][20]byte
}

// Load reads and validates a genesis file.
func Load(path string) (*Spec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	spec, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("genesis spec %q: %w", path, err)
	}
	return spec, nil
}

// Parse decodes a genesis document, rejecting unknown fields.
func Parse(raw []byte) (*Spec, error) {
	var spec Spec
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := spec.validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

func (s *Spec) validate() error {
	s.validators = s.validators[:0]
	seen := make(map[[20]byte]struct{}, len(s.Validators))
	for i, value := range s.Validators {
		account, err := crypto.ParseAccount(value)
		if err != nil {
			return fmt.Errorf("validators[%d]: %w", i, err)
		}
		if _, dup := seen[account]; dup {
			return fmt.Errorf("validators[%d]: duplicate address %q", i, value)
		}
		seen[account] = struct{}{}
		s.validators = append(s.validators, account)
	}

	for asset := range s.Balances {
		if asset != AssetBase && asset != AssetDerivative {
			return fmt.Errorf("balances: unknown asset %q", asset)
		}
	}
	var err error
	if s.base, err = parseAllocations(AssetBase, s.Balances[AssetBase]); err != nil {
		return err
	}
	if s.derivative, err = parseAllocations(AssetDerivative, s.Balances[AssetDerivative]); err != nil {
		return err
	}

	s.stakers = s.stakers[:0]
	for i, spec := range s.Stakers {
		parsed, err := spec.parse(seen)
		if err != nil {
			return fmt.Errorf("stakers[%d]: %w", i, err)
		}
		s.stakers = append(s.stakers, parsed)
	}
	return nil
}

func (st StakerSpec) parse(validators map[[20]byte]struct{}) (staker, error) {
	var out staker
	var err error
	if out.stash, err = crypto.ParseAccount(st.Stash); err != nil {
		return out, fmt.Errorf("stash: %w", err)
	}
	out.controller = out.stash
	if strings.TrimSpace(st.Controller) != "" {
		if out.controller, err = crypto.ParseAccount(st.Controller); err != nil {
			return out, fmt.Errorf("controller: %w", err)
		}
	}
	if out.bond, err = uint256.FromDecimal(strings.TrimSpace(st.Bond)); err != nil || out.bond.IsZero() {
		return out, fmt.Errorf("bond: invalid amount %q", st.Bond)
	}
	for j, value := range st.Nominate {
		target, err := crypto.ParseAccount(value)
		if err != nil {
			return out, fmt.Errorf("nominate[%d]: %w", j, err)
		}
		if _, ok := validators[target]; !ok {
			return out, fmt.Errorf("nominate[%d]: %q is not a genesis validator", j, value)
		}
		out.targets = append(out.targets, target)
	}
	return out, nil
}

// parseAllocations returns the entries sorted by account so that application
// is deterministic.
func parseAllocations(asset string, entries map[string]string) ([]allocation, error) {
	out := make([]allocation, 0, len(entries))
	for key, value := range entries {
		account, err := crypto.ParseAccount(key)
		if err != nil {
			return nil, fmt.Errorf("balances[%s][%q]: %w", asset, key, err)
		}
		amount, err := uint256.FromDecimal(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("balances[%s][%q]: invalid amount %q", asset, key, value)
		}
		out = append(out, allocation{account: account, amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].account[:], out[j].account[:]) < 0
	})
	for i := 1; i < len(out); i++ {
		if out[i].account == out[i-1].account {
			return nil, fmt.Errorf("balances[%s]: duplicate account %s", asset, crypto.FormatAccount(out[i].account))
		}
	}
	return out, nil
}
