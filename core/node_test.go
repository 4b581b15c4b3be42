package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/goleak"

	"liquidstake/core/events"
	"liquidstake/core/genesis"
	"liquidstake/crypto"
	"liquidstake/native/bank"
	"liquidstake/native/liquidstake"
	"liquidstake/native/staking"
	"liquidstake/storage"
)

func account(b byte) [20]byte {
	var out [20]byte
	out[0] = 0xAA
	out[19] = b
	return out
}

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

var (
	alice     = account(1)
	bob       = account(2)
	validator = account(0x10)
)

func testConfig(t *testing.T, extraBase map[[20]byte]uint64) NodeConfig {
	t.Helper()
	stakingParams := staking.DefaultParams()
	stakingParams.EraLengthBlocks = 5
	stakingParams.BondingDuration = 1
	poolParams := liquidstake.DefaultParams()
	poolParams.VotingPeriodBlocks = 2

	doc := fmt.Sprintf("validators: [%s]\nbalances:\n  base:\n    %s: \"1000\"\n",
		crypto.FormatAccount(validator), crypto.FormatAccount(alice))
	for acct, amount := range extraBase {
		doc += fmt.Sprintf("    %s: \"%d\"\n", crypto.FormatAccount(acct), amount)
	}
	spec, err := genesis.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}
	return NodeConfig{
		BaseSymbol:       "STK",
		BaseED:           u(1),
		DerivativeSymbol: "LSTK",
		DerivativeED:     u(1),
		Staking:          stakingParams,
		Pool:             poolParams,
		Genesis:          spec,
		Version:          "test",
	}
}

func newTestNode(t *testing.T, db storage.Database, cfg NodeConfig) (*Node, *events.Recorder) {
	t.Helper()
	rec := &events.Recorder{}
	cfg.Sinks = append(cfg.Sinks, rec)
	n, err := NewNode(db, cfg)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return n, rec
}

func produce(t *testing.T, n *Node, blocks int) {
	t.Helper()
	for i := 0; i < blocks; i++ {
		if _, err := n.ProduceBlock(context.Background()); err != nil {
			t.Fatalf("produce block: %v", err)
		}
	}
}

func TestNodeStakeRedeemWithdrawLifecycle(t *testing.T) {
	n, rec := newTestNode(t, storage.NewMemDB(), testConfig(t, nil))

	if err := n.AddStake(alice, u(100)); err != nil {
		t.Fatalf("add stake: %v", err)
	}
	info, err := n.PoolInfo()
	if err != nil {
		t.Fatalf("pool info: %v", err)
	}
	if !info.Bonded || info.ActiveStake.Uint64() != 100 || info.DerivativeIssuance.Uint64() != 100 {
		t.Fatalf("unexpected pool after stake: %+v", info)
	}
	if err := n.RedeemStake(alice, u(40)); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if err := n.WithdrawStake(alice, 1); !errors.Is(err, liquidstake.ErrRedemptionNotYetAvailable) {
		t.Fatalf("expected not yet available, got %v", err)
	}

	produce(t, n, 5)
	if n.Height() != 5 {
		t.Fatalf("expected height 5, got %d", n.Height())
	}
	if len(rec.OfType(events.TypeVotingWindowOpened)) != 1 || len(rec.OfType(events.TypeEraStarted)) != 1 {
		t.Fatalf("expected one era rollover")
	}
	if err := n.WithdrawStake(alice, 1); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	balance, err := n.Balance(alice)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.BaseFree.Uint64() != 940 || balance.DerivativeFree.Uint64() != 60 || len(balance.PendingRedemptions) != 0 {
		t.Fatalf("unexpected balance %+v", balance)
	}
	if len(rec.OfType(events.TypeStakeReleased)) != 1 {
		t.Fatalf("expected stakeReleased event")
	}
}

func TestNodeFailedOperationPublishesNothing(t *testing.T) {
	n, rec := newTestNode(t, storage.NewMemDB(), testConfig(t, nil))
	before := len(rec.Events)

	if err := n.AddStake(bob, u(50)); !errors.Is(err, bank.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if err := n.AddStake(alice, u(1)); !errors.Is(err, liquidstake.ErrInsufficientStake) {
		t.Fatalf("expected insufficient stake, got %v", err)
	}
	if len(rec.Events) != before {
		t.Fatalf("failed operations must not publish events")
	}
	info, _ := n.PoolInfo()
	if info.Bonded || !info.DerivativeIssuance.IsZero() {
		t.Fatalf("failed operations must not change state: %+v", info)
	}
}

func TestNodeNominationRound(t *testing.T) {
	n, rec := newTestNode(t, storage.NewMemDB(), testConfig(t, nil))
	if err := n.AddStake(alice, u(100)); err != nil {
		t.Fatalf("add stake: %v", err)
	}
	produce(t, n, 5)
	if err := n.Nominate(alice, []liquidstake.Nomination{{Validator: validator, Weight: u(60)}}); err != nil {
		t.Fatalf("nominate: %v", err)
	}
	tally, _ := n.NominationTally()
	if len(tally) != 1 || tally[0].Votes.Uint64() != 60 {
		t.Fatalf("unexpected tally %+v", tally)
	}
	produce(t, n, 2)
	set, era, err := n.CurrentNominations()
	if err != nil || era != 1 || len(set) != 1 || set[0] != validator {
		t.Fatalf("unexpected nominations %x era=%d err=%v", set, era, err)
	}
	if len(rec.OfType(events.TypeNominationsApplied)) != 1 {
		t.Fatalf("expected nominationsApplied event")
	}
}

func TestNodeRestartKeepsStateAndSkipsGenesis(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, nil)

	db, err := storage.Open(storage.BackendLevelDB, dir)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	n, _ := newTestNode(t, db, cfg)
	if err := n.AddStake(alice, u(100)); err != nil {
		t.Fatalf("add stake: %v", err)
	}
	produce(t, n, 2)
	if err := n.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err = storage.Open(storage.BackendLevelDB, dir)
	if err != nil {
		t.Fatalf("reopen db: %v", err)
	}
	cfg.Version = "test-2"
	n, rec := newTestNode(t, db, cfg)
	defer n.Close()
	if n.Height() != 2 {
		t.Fatalf("expected height 2 after restart, got %d", n.Height())
	}
	balance, err := n.Balance(alice)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.BaseFree.Uint64() != 900 || balance.DerivativeFree.Uint64() != 100 {
		t.Fatalf("genesis must not be re-applied: %+v", balance)
	}
	if len(rec.Events) != 0 {
		t.Fatalf("upgrade hook on a bonded pool must be silent, got %d events", len(rec.Events))
	}
}

func TestNodeUpgradeBondsFundedStash(t *testing.T) {
	stash, _, err := liquidstake.PoolAccounts(liquidstake.DefaultParams())
	if err != nil {
		t.Fatalf("pool accounts: %v", err)
	}
	n, rec := newTestNode(t, storage.NewMemDB(), testConfig(t, map[[20]byte]uint64{stash: 50}))
	info, err := n.PoolInfo()
	if err != nil {
		t.Fatalf("pool info: %v", err)
	}
	if !info.Bonded || info.ActiveStake.Uint64() != 50 {
		t.Fatalf("upgrade hook must bond the funded stash: %+v", info)
	}
	if len(rec.OfType(events.TypeStakeBonded)) != 1 {
		t.Fatalf("expected the bond event to be published")
	}
}

func TestNodeBlockLoop(t *testing.T) {
	defer goleak.VerifyNone(t)

	n, _ := newTestNode(t, storage.NewMemDB(), testConfig(t, nil))
	if err := n.Start(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := n.Start(context.Background(), time.Millisecond); err == nil {
		t.Fatalf("second start must fail")
	}
	deadline := time.Now().Add(5 * time.Second)
	for n.Height() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("block loop stalled at height %d", n.Height())
		}
		time.Sleep(time.Millisecond)
	}
	if err := n.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	height := n.Height()
	time.Sleep(5 * time.Millisecond)
	if n.Height() != height {
		t.Fatalf("blocks produced after stop")
	}
}
