package liquidstake

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	"liquidstake/core/events"
	"liquidstake/core/state"
	"liquidstake/native/bank"
	"liquidstake/native/staking"
	"liquidstake/storage"
)

var errBackendDown = errors.New("backend down")

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func addr(b byte) [20]byte {
	var out [20]byte
	out[0] = 0xEE
	out[19] = b
	return out
}

// flakyBackend injects failures into the reference backend.
type flakyBackend struct {
	*staking.Backend
	failBond     bool
	partialBond  bool
	failUnbond   bool
	failNominate bool
}

func (f *flakyBackend) Bond(stash, controller [20]byte, amount *uint256.Int, payee [20]byte) error {
	if f.failBond {
		return errBackendDown
	}
	if f.partialBond {
		if err := f.Backend.Bond(stash, controller, amount, payee); err != nil {
			return err
		}
		return errBackendDown
	}
	return f.Backend.Bond(stash, controller, amount, payee)
}

func (f *flakyBackend) BondExtra(stash [20]byte, amount *uint256.Int) error {
	if f.failBond {
		return errBackendDown
	}
	return f.Backend.BondExtra(stash, amount)
}

func (f *flakyBackend) Unbond(stash [20]byte, amount *uint256.Int) error {
	if f.failUnbond {
		return errBackendDown
	}
	return f.Backend.Unbond(stash, amount)
}

func (f *flakyBackend) Nominate(stash [20]byte, targets [][20]byte) error {
	if f.failNominate {
		return errBackendDown
	}
	return f.Backend.Nominate(stash, targets)
}

type poolFixture struct {
	t          *testing.T
	state      *state.Manager
	base       *bank.Ledger
	derivative *bank.Ledger
	backend    *flakyBackend
	engine     *Engine
	events     *events.Recorder
	height     uint64
}

const testEraLength = 10

func newPoolFixture(t *testing.T, mutate func(*Params, *staking.Params)) *poolFixture {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	base, err := bank.NewLedger(mgr, "base", u(1))
	if err != nil {
		t.Fatalf("base ledger: %v", err)
	}
	derivative, err := bank.NewLedger(mgr, "lst", nil)
	if err != nil {
		t.Fatalf("derivative ledger: %v", err)
	}
	params := DefaultParams()
	params.VotingPeriodBlocks = 4
	stakingParams := staking.DefaultParams()
	stakingParams.EraLengthBlocks = testEraLength
	stakingParams.BondingDuration = 3
	stakingParams.MinimumBond = u(2)
	if mutate != nil {
		mutate(&params, &stakingParams)
	}
	backend, err := staking.NewBackend(mgr, base, stakingParams)
	if err != nil {
		t.Fatalf("backend: %v", err)
	}
	if err := backend.StartClock(2, 0); err != nil {
		t.Fatalf("start clock: %v", err)
	}
	engine, err := NewEngine(params)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	flaky := &flakyBackend{Backend: backend}
	rec := &events.Recorder{}
	engine.SetState(mgr)
	engine.SetLedgers(base, derivative)
	engine.SetBackend(flaky)
	engine.SetEmitter(rec)
	if err := engine.OnBlockAdvance(0); err != nil {
		t.Fatalf("bootstrap block: %v", err)
	}
	return &poolFixture{t: t, state: mgr, base: base, derivative: derivative, backend: flaky, engine: engine, events: rec}
}

func (f *poolFixture) fund(account [20]byte, amount uint64) {
	f.t.Helper()
	if err := f.base.Mint(account, u(amount)); err != nil {
		f.t.Fatalf("fund: %v", err)
	}
}

func (f *poolFixture) nextBlock() {
	f.t.Helper()
	f.height++
	if _, err := f.backend.Advance(f.height); err != nil {
		f.t.Fatalf("backend advance: %v", err)
	}
	if err := f.engine.OnBlockAdvance(f.height); err != nil {
		f.t.Fatalf("block %d: %v", f.height, err)
	}
}

func (f *poolFixture) nextEra() {
	f.t.Helper()
	start, err := f.backend.CurrentEra()
	if err != nil {
		f.t.Fatalf("era: %v", err)
	}
	for {
		f.nextBlock()
		era, _ := f.backend.CurrentEra()
		if era > start {
			return
		}
	}
}

func (f *poolFixture) balance(l *bank.Ledger, account [20]byte) uint64 {
	f.t.Helper()
	free, err := l.FreeBalance(account)
	if err != nil {
		f.t.Fatalf("balance: %v", err)
	}
	return free.Uint64()
}

func (f *poolFixture) issuance() uint64 {
	f.t.Helper()
	issuance, err := f.derivative.TotalIssuance()
	if err != nil {
		f.t.Fatalf("issuance: %v", err)
	}
	return issuance.Uint64()
}

func (f *poolFixture) stake(account [20]byte, amount uint64) {
	f.t.Helper()
	if err := f.engine.AddStake(account, u(amount)); err != nil {
		f.t.Fatalf("add stake: %v", err)
	}
}

func TestAddStakeMintsAtPoolRate(t *testing.T) {
	f := newPoolFixture(t, nil)
	stash := f.engine.Stash()
	holder, caller := addr(1), addr(2)
	f.fund(stash, 20)
	if err := f.derivative.Mint(holder, u(160)); err != nil {
		t.Fatalf("seed issuance: %v", err)
	}
	f.fund(caller, 10)

	if err := f.engine.AddStake(caller, u(3)); err != nil {
		t.Fatalf("add stake: %v", err)
	}
	if got := f.balance(f.derivative, caller); got != 24 {
		t.Fatalf("expected 24 derivative, got %d", got)
	}
	if got := f.balance(f.base, stash); got != 23 {
		t.Fatalf("expected stash 23, got %d", got)
	}
	if got := f.balance(f.base, caller); got != 7 {
		t.Fatalf("expected caller 7, got %d", got)
	}
	active, bonded, err := f.backend.ActiveStake(stash)
	if err != nil || !bonded || active.Uint64() != 23 {
		t.Fatalf("expected whole stash bonded, got %v bonded=%v err=%v", active, bonded, err)
	}
	added := f.events.OfType(events.TypeStakeAdded)
	if len(added) != 1 {
		t.Fatalf("expected one stakeAdded event, got %d", len(added))
	}
	attrs := added[0].Event().Attributes
	if attrs["amount"] != "3" || attrs["minted"] != "24" {
		t.Fatalf("unexpected event attributes %+v", attrs)
	}
}

func TestAddStakeBootstrapsOneToOne(t *testing.T) {
	f := newPoolFixture(t, nil)
	alice, bob := addr(1), addr(2)
	f.fund(alice, 100)
	f.fund(bob, 100)
	f.stake(alice, 50)
	if got := f.balance(f.derivative, alice); got != 50 {
		t.Fatalf("expected 1:1 bootstrap, got %d", got)
	}
	f.stake(bob, 25)
	if got := f.balance(f.derivative, bob); got != 25 {
		t.Fatalf("expected 25 at unchanged rate, got %d", got)
	}
}

func TestAddStakeRejectionsLeaveStateUnchanged(t *testing.T) {
	f := newPoolFixture(t, nil)
	alice := addr(1)
	f.fund(alice, 5)
	pendingBefore := f.state.Pending()

	if err := f.engine.AddStake(alice, u(2)); !errors.Is(err, ErrInsufficientStake) {
		t.Fatalf("minimum is exclusive, got %v", err)
	}
	if err := f.engine.AddStake(alice, nil); !errors.Is(err, ErrInsufficientStake) {
		t.Fatalf("expected nil amount rejection, got %v", err)
	}
	if err := f.engine.AddStake(alice, u(5)); !errors.Is(err, bank.ErrKeepAlive) {
		t.Fatalf("expected keep-alive error, got %v", err)
	}
	if err := f.engine.AddStake(alice, u(6)); !errors.Is(err, bank.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if f.balance(f.base, alice) != 5 || f.issuance() != 0 {
		t.Fatalf("rejected deposits must not move funds")
	}
	if f.state.Pending() != pendingBefore {
		t.Fatalf("rejected deposits left %d dirty keys", f.state.Pending()-pendingBefore)
	}
	if len(f.events.Events) != 0 {
		t.Fatalf("rejected deposits must not emit events")
	}
}

func TestAddStakeBondFailureIsSoft(t *testing.T) {
	f := newPoolFixture(t, nil)
	alice := addr(1)
	f.fund(alice, 100)
	f.backend.partialBond = true

	if err := f.engine.AddStake(alice, u(10)); err != nil {
		t.Fatalf("bond failure must not fail the deposit: %v", err)
	}
	if got := f.balance(f.derivative, alice); got != 10 {
		t.Fatalf("deposit must still mint, got %d", got)
	}
	if _, bonded, _ := f.backend.ActiveStake(f.engine.Stash()); bonded {
		t.Fatalf("partial backend writes must be rolled back")
	}
	if spendable, _ := f.base.SpendableBalance(f.engine.Stash()); spendable.Uint64() != 10 {
		t.Fatalf("stash lock must be rolled back, spendable %d", spendable.Uint64())
	}
	failed := f.events.OfType(events.TypeBondFailed)
	if len(failed) != 1 {
		t.Fatalf("expected bondFailed event, got %d", len(failed))
	}

	f.backend.partialBond = false
	f.stake(alice, 5)
	active, bonded, _ := f.backend.ActiveStake(f.engine.Stash())
	if !bonded || active.Uint64() != 15 {
		t.Fatalf("next deposit must sweep the unbonded stash, got %v", active)
	}
}

func TestRedeemStakeRecordsBucket(t *testing.T) {
	f := newPoolFixture(t, nil)
	alice := addr(1)
	f.fund(alice, 200)
	f.stake(alice, 100)

	if err := f.engine.RedeemStake(alice, u(20)); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	buckets, err := f.engine.Redemptions(alice)
	if err != nil {
		t.Fatalf("redemptions: %v", err)
	}
	if len(buckets) != 1 || buckets[0].Era != 5 || buckets[0].Units.Uint64() != 20 {
		t.Fatalf("expected 20 units at era 5, got %+v", buckets)
	}
	if f.balance(f.derivative, alice) != 80 || f.issuance() != 80 {
		t.Fatalf("redeem must burn exactly the amount")
	}
	info, err := f.engine.PoolInfo()
	if err != nil {
		t.Fatalf("pool info: %v", err)
	}
	if info.PendingRedemptions.Uint64() != 20 {
		t.Fatalf("expected 20 pending units, got %s", info.PendingRedemptions.Dec())
	}
	if info.ActiveStake.Uint64() != 80 || info.TotalStake.Uint64() != 100 {
		t.Fatalf("expected 20 unlocking, got active %s total %s", info.ActiveStake.Dec(), info.TotalStake.Dec())
	}

	if err := f.engine.RedeemStake(alice, u(5)); err != nil {
		t.Fatalf("second redeem: %v", err)
	}
	buckets, _ = f.engine.Redemptions(alice)
	if len(buckets) != 1 || buckets[0].Units.Uint64() != 25 {
		t.Fatalf("same-era redemptions must accumulate, got %+v", buckets)
	}
}

func TestRedeemStakeValidation(t *testing.T) {
	f := newPoolFixture(t, nil)
	alice := addr(1)
	f.fund(alice, 200)
	f.stake(alice, 10)

	if err := f.engine.RedeemStake(alice, u(0)); !errors.Is(err, ErrInsufficientFundsForRedemption) {
		t.Fatalf("expected zero rejection, got %v", err)
	}
	if err := f.engine.RedeemStake(alice, u(11)); !errors.Is(err, ErrInsufficientFundsForRedemption) {
		t.Fatalf("expected balance rejection, got %v", err)
	}
	if err := f.derivative.SetLock(NominationLockID, alice, u(4)); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if err := f.engine.RedeemStake(alice, u(7)); !errors.Is(err, ErrInsufficientFundsForRedemption) {
		t.Fatalf("locked derivative must not be redeemable, got %v", err)
	}
	if err := f.engine.RedeemStake(alice, u(6)); err != nil {
		t.Fatalf("redeem spendable: %v", err)
	}
}

func TestRedemptionCapacityBound(t *testing.T) {
	f := newPoolFixture(t, func(p *Params, _ *staking.Params) { p.WithdrawalBound = 2 })
	alice := addr(1)
	f.fund(alice, 200)
	f.stake(alice, 100)

	if err := f.engine.RedeemStake(alice, u(1)); err != nil {
		t.Fatalf("redeem era 2: %v", err)
	}
	f.nextEra()
	if err := f.engine.RedeemStake(alice, u(1)); err != nil {
		t.Fatalf("redeem era 3: %v", err)
	}
	if err := f.engine.RedeemStake(alice, u(1)); err != nil {
		t.Fatalf("existing era must accumulate at the bound: %v", err)
	}
	f.nextEra()
	before := f.balance(f.derivative, alice)
	if err := f.engine.RedeemStake(alice, u(1)); !errors.Is(err, ErrTooManyRedemptionsAwaitingWithdrawal) {
		t.Fatalf("expected capacity rejection, got %v", err)
	}
	if f.balance(f.derivative, alice) != before {
		t.Fatalf("rejected redemption must not burn")
	}
	buckets, _ := f.engine.Redemptions(alice)
	if len(buckets) != 2 || buckets[0].Era != 5 || buckets[1].Era != 6 || buckets[1].Units.Uint64() != 2 {
		t.Fatalf("unexpected buckets %+v", buckets)
	}
}

func TestRedemptionExpiry(t *testing.T) {
	f := newPoolFixture(t, func(p *Params, _ *staking.Params) { p.RedemptionExpiryEras = 1 })
	alice := addr(1)
	f.fund(alice, 200)
	f.stake(alice, 100)
	if err := f.engine.RedeemStake(alice, u(10)); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	for i := 0; i < 5; i++ {
		f.nextEra()
	}
	if err := f.engine.RedeemStake(alice, u(1)); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	buckets, _ := f.engine.Redemptions(alice)
	if len(buckets) != 1 || buckets[0].Era != 10 {
		t.Fatalf("expected the era 5 bucket forfeited, got %+v", buckets)
	}
	if len(f.events.OfType(events.TypeRedemptionExpired)) != 1 {
		t.Fatalf("expected a redemptionExpired event")
	}
	info, _ := f.engine.PoolInfo()
	if info.PendingRedemptions.Uint64() != 1 {
		t.Fatalf("forfeited units must leave the pending total, got %s", info.PendingRedemptions.Dec())
	}
}

func TestWithdrawStakeAfterBondingDuration(t *testing.T) {
	f := newPoolFixture(t, nil)
	alice := addr(1)
	f.fund(alice, 1_000)
	f.stake(alice, 100)
	if err := f.engine.RedeemStake(alice, u(40)); err != nil {
		t.Fatalf("redeem: %v", err)
	}

	if err := f.engine.WithdrawStake(alice, 5); !errors.Is(err, ErrRedemptionNotYetAvailable) {
		t.Fatalf("expected not yet available, got %v", err)
	}
	if err := f.engine.WithdrawStake(alice, 4); !errors.Is(err, ErrNoSuchRedemption) {
		t.Fatalf("expected no such redemption, got %v", err)
	}
	for i := 0; i < 3; i++ {
		f.nextEra()
	}
	if err := f.engine.WithdrawStake(alice, 5); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := f.balance(f.base, alice); got != 940 {
		t.Fatalf("expected 940 after payout, got %d", got)
	}
	if got := f.balance(f.base, f.engine.Stash()); got != 60 {
		t.Fatalf("expected stash 60, got %d", got)
	}
	buckets, _ := f.engine.Redemptions(alice)
	if len(buckets) != 0 {
		t.Fatalf("bucket must be consumed, got %+v", buckets)
	}
	released := f.events.OfType(events.TypeStakeReleased)
	if len(released) != 1 || released[0].Event().Attributes["payout"] != "40" {
		t.Fatalf("unexpected release events %+v", released)
	}
	if err := f.engine.WithdrawStake(alice, 5); !errors.Is(err, ErrNoSuchRedemption) {
		t.Fatalf("double withdrawal must fail, got %v", err)
	}
}

func TestWithdrawStakeReflectsRewards(t *testing.T) {
	f := newPoolFixture(t, func(_ *Params, sp *staking.Params) { sp.RewardBpsPerEra = 1_000 })
	alice := addr(1)
	v := addr(0x10)
	if err := f.backend.RegisterValidator(v); err != nil {
		t.Fatalf("register: %v", err)
	}
	f.fund(alice, 1_000)
	f.stake(alice, 100)
	if err := f.backend.Backend.Nominate(f.engine.Stash(), [][20]byte{v}); err != nil {
		t.Fatalf("nominate: %v", err)
	}
	if err := f.engine.RedeemStake(alice, u(50)); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	// One era of rewards on 50 active stake grows the stash to 105.
	f.nextEra()
	info, _ := f.engine.PoolInfo()
	if info.StashBalance.Uint64() != 105 {
		t.Fatalf("expected stash 105, got %s", info.StashBalance.Dec())
	}
	for i := 0; i < 2; i++ {
		f.nextEra()
	}
	before, _ := f.engine.PoolInfo()
	if err := f.engine.WithdrawStake(alice, 5); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	want := 50 * before.StashBalance.Uint64() / 100
	if got := f.balance(f.base, alice) - 900; got != want {
		t.Fatalf("expected payout %d at withdrawal rate, got %d", want, got)
	}
}

func TestWithdrawStakeNeedsLiquidity(t *testing.T) {
	f := newPoolFixture(t, nil)
	alice := addr(1)
	f.fund(alice, 1_000)
	f.stake(alice, 100)
	f.backend.failUnbond = true
	if err := f.engine.RedeemStake(alice, u(40)); err != nil {
		t.Fatalf("unbond failure must not fail redemption: %v", err)
	}
	if len(f.events.OfType(events.TypeUnbondFailed)) != 1 {
		t.Fatalf("expected unbondFailed event")
	}
	for i := 0; i < 3; i++ {
		f.nextEra()
	}
	if err := f.engine.WithdrawStake(alice, 5); !errors.Is(err, ErrInsufficientPoolLiquidity) {
		t.Fatalf("expected liquidity error, got %v", err)
	}
	buckets, _ := f.engine.Redemptions(alice)
	if len(buckets) != 1 {
		t.Fatalf("failed withdrawal must keep the bucket")
	}

	f.backend.failUnbond = false
	f.nextEra()
	for i := 0; i < 3; i++ {
		f.nextEra()
	}
	if err := f.engine.WithdrawStake(alice, 5); err != nil {
		t.Fatalf("withdraw after reconciliation: %v", err)
	}
}

func TestDepositKeepsReleasedLiquidityFree(t *testing.T) {
	f := newPoolFixture(t, nil)
	alice, bob := addr(1), addr(2)
	f.fund(alice, 1_000)
	f.fund(bob, 1_000)
	f.stake(alice, 100)
	if err := f.engine.RedeemStake(alice, u(40)); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	for i := 0; i < 3; i++ {
		f.nextEra()
	}
	stash := f.engine.Stash()
	if spendable, _ := f.base.SpendableBalance(stash); spendable.Uint64() != 40 {
		t.Fatalf("expected 40 released, got %d", spendable.Uint64())
	}

	f.stake(bob, 10)
	if spendable, _ := f.base.SpendableBalance(stash); spendable.Uint64() != 40 {
		t.Fatalf("deposit must not bond released liquidity, spendable %d", spendable.Uint64())
	}
	active, _, _ := f.backend.ActiveStake(stash)
	if active.Uint64() != 70 {
		t.Fatalf("expected only the deposit bonded, active %d", active.Uint64())
	}
	if err := f.engine.WithdrawStake(alice, 5); err != nil {
		t.Fatalf("withdraw after deposit: %v", err)
	}
	if got := f.balance(f.base, alice); got != 940 {
		t.Fatalf("expected 940 after payout, got %d", got)
	}
}

func TestRedeemStakeBucketOverflow(t *testing.T) {
	f := newPoolFixture(t, nil)
	alice := addr(1)
	f.fund(alice, 1_000)
	f.stake(alice, 100)

	near := new(uint256.Int).SetAllOne()
	near.Sub(near, u(2))
	record, err := f.engine.redemptions(alice)
	if err != nil {
		t.Fatalf("load record: %v", err)
	}
	record.insert(RedemptionBucket{Era: 5, Units: near})
	if err := f.engine.putRedemptions(alice, record); err != nil {
		t.Fatalf("seed bucket: %v", err)
	}

	if err := f.engine.RedeemStake(alice, u(5)); !errors.Is(err, ErrRedemptionOverflow) {
		t.Fatalf("expected redemption overflow, got %v", err)
	}
	buckets, _ := f.engine.Redemptions(alice)
	if len(buckets) != 1 || !buckets[0].Units.Eq(near) {
		t.Fatalf("bucket changed: %+v", buckets)
	}
	if f.balance(f.derivative, alice) != 100 {
		t.Fatalf("rejected redemption must not burn")
	}
	info, _ := f.engine.PoolInfo()
	if !info.PendingRedemptions.IsZero() {
		t.Fatalf("pending total changed: %s", info.PendingRedemptions.Dec())
	}
	if len(f.events.OfType(events.TypeDerivativeRedeemed)) != 0 {
		t.Fatalf("rejected redemption must not emit events")
	}
}
