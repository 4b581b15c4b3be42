// core/genesis/spec_test.go
package genesis

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/holiman/uint256"

	"liquidstake/core/state"
	"liquidstake/crypto"
	"liquidstake/native/bank"
	"liquidstake/native/staking"
	"liquidstake/storage"
)

func account(b byte) [20]byte {
	var out [20]byte
	out[0] = 0x5A
	out[19] = b
	return out
}

func bech(b byte) string { return crypto.FormatAccount(account(b)) }

type genesisFixture struct {
	mgr        *state.Manager
	base       *bank.Ledger
	derivative *bank.Ledger
	backend    *staking.Backend
}

func newGenesisFixture(t *testing.T) *genesisFixture {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	base, err := bank.NewLedger(mgr, "STK", uint256.NewInt(1))
	if err != nil {
		t.Fatalf("base: %v", err)
	}
	derivative, err := bank.NewLedger(mgr, "LSTK", uint256.NewInt(1))
	if err != nil {
		t.Fatalf("derivative: %v", err)
	}
	backend, err := staking.NewBackend(mgr, base, staking.DefaultParams())
	if err != nil {
		t.Fatalf("backend: %v", err)
	}
	return &genesisFixture{mgr: mgr, base: base, derivative: derivative, backend: backend}
}

func (f *genesisFixture) targets() Targets {
	return Targets{State: f.mgr, Base: f.base, Derivative: f.derivative, Staking: f.backend}
}

func sampleDocument() string {
	return fmt.Sprintf(`era: 5
height: 100
validators:
  - %[1]s
  - %[2]s
balances:
  base:
    %[3]s: "1000"
    %[4]s: "50"
  derivative:
    %[4]s: "7"
stakers:
  - stash: %[3]s
    bond: "400"
    nominate: [%[1]s]
`, bech(1), bech(2), bech(10), bech(11))
}

func TestLoadAndApply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	if err := os.WriteFile(path, []byte(sampleDocument()), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	spec, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	f := newGenesisFixture(t)
	applied, err := Apply(spec, f.targets())
	if err != nil || !applied {
		t.Fatalf("apply: applied=%v err=%v", applied, err)
	}

	info, ok, err := f.backend.EraInfo()
	if err != nil || !ok || info.Index != 5 || info.StartBlock != 100 {
		t.Fatalf("unexpected era clock %+v ok=%v err=%v", info, ok, err)
	}
	if ok, _ := f.backend.IsValidator(account(2)); !ok {
		t.Fatalf("validator not registered")
	}
	issuance, _ := f.base.TotalIssuance()
	if issuance.Uint64() != 1050 {
		t.Fatalf("expected base issuance 1050, got %s", issuance.Dec())
	}
	held, _ := f.derivative.FreeBalance(account(11))
	if held.Uint64() != 7 {
		t.Fatalf("expected derivative 7, got %s", held.Dec())
	}
	active, bonded, _ := f.backend.ActiveStake(account(10))
	if !bonded || active.Uint64() != 400 {
		t.Fatalf("expected 400 bonded, got %v bonded=%v", active, bonded)
	}
	nominations, ok, _ := f.backend.NominationsOf(account(10))
	if !ok || len(nominations.Targets) != 1 || nominations.Targets[0] != account(1) {
		t.Fatalf("unexpected nominations %+v", nominations)
	}

	again, err := Apply(spec, f.targets())
	if err != nil || again {
		t.Fatalf("second apply must be skipped: applied=%v err=%v", again, err)
	}
	issuance, _ = f.base.TotalIssuance()
	if issuance.Uint64() != 1050 {
		t.Fatalf("second apply minted again")
	}
}

func TestParseRejectsInvalidDocuments(t *testing.T) {
	cases := map[string]string{
		"unknown field":     "chainId: 4\n",
		"bad validator":     "validators: [nhb1qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqq]\n",
		"duplicate":         fmt.Sprintf("validators: [%s, %s]\n", bech(1), bech(1)),
		"unknown asset":     fmt.Sprintf("balances:\n  gold:\n    %s: \"1\"\n", bech(1)),
		"bad amount":        fmt.Sprintf("balances:\n  base:\n    %s: \"1.5\"\n", bech(1)),
		"zero bond":         fmt.Sprintf("stakers:\n  - stash: %s\n    bond: \"0\"\n", bech(1)),
		"nominate unknown":  fmt.Sprintf("stakers:\n  - stash: %s\n    bond: \"5\"\n    nominate: [%s]\n", bech(1), bech(2)),
		"duplicate balance": fmt.Sprintf("balances:\n  base:\n    %s: \"1\"\n    %s: \"2\"\n", bech(1), strings.ToUpper(bech(1))),
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); err == nil {
				t.Fatalf("expected rejection")
			}
		})
	}
}

func TestApplyFailureLeavesMarkerUnset(t *testing.T) {
	doc := fmt.Sprintf("stakers:\n  - stash: %s\n    bond: \"5\"\n", bech(1))
	spec, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	f := newGenesisFixture(t)
	if _, err := Apply(spec, f.targets()); err == nil {
		t.Fatalf("bond without balance must fail")
	}
	if done, _ := Applied(f.mgr); done {
		t.Fatalf("marker must not be written on failure")
	}
}
