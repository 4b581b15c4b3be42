package core

import (
	"github.com/holiman/uint256"

	"liquidstake/native/bank"
	"liquidstake/native/liquidstake"
	"liquidstake/observability/metrics"
)

// Balance is an account's view of both ledgers.
type Balance struct {
	BaseFree            *uint256.Int
	BaseSpendable       *uint256.Int
	DerivativeFree      *uint256.Int
	DerivativeSpendable *uint256.Int
	DerivativeLocks     []bank.Lock
	NominationLock      *uint256.Int
	PendingRedemptions  []liquidstake.RedemptionBucket
	BaseSymbol          string
	DerivativeSymbol    string
}

func (n *Node) operation(name string, fn func(*liquidstake.Engine) error) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	err := n.finish(fn(n.engine))
	metrics.Pool().RecordOperation(name, err)
	return err
}

// AddStake deposits amount from caller into the pool and commits the block state.
func (n *Node) AddStake(caller [20]byte, amount *uint256.Int) error {
	return n.operation("addStake", func(e *liquidstake.Engine) error {
		return e.AddStake(caller, amount)
	})
}

// RedeemStake burns caller's derivative into a redemption bucket.
func (n *Node) RedeemStake(caller [20]byte, amount *uint256.Int) error {
	return n.operation("redeemStake", func(e *liquidstake.Engine) error {
		return e.RedeemStake(caller, amount)
	})
}

// WithdrawStake pays out caller's matured bucket for era.
func (n *Node) WithdrawStake(caller [20]byte, era uint64) error {
	return n.operation("withdrawStake", func(e *liquidstake.Engine) error {
		return e.WithdrawStake(caller, era)
	})
}

// Nominate records caller's validator slate for the open voting window.
func (n *Node) Nominate(caller [20]byte, slate []liquidstake.Nomination) error {
	return n.operation("nominate", func(e *liquidstake.Engine) error {
		return e.Nominate(caller, slate)
	})
}

// RegisterValidator adds account to the staking backend's validator set.
func (n *Node) RegisterValidator(account [20]byte) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.finish(n.backend.RegisterValidator(account))
}

func (n *Node) PoolInfo() (*liquidstake.PoolInfo, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.PoolInfo()
}

func (n *Node) Redemptions(account [20]byte) ([]liquidstake.RedemptionBucket, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.Redemptions(account)
}

func (n *Node) NominationLock(account [20]byte) (*uint256.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.NominationLock(account)
}

func (n *Node) NominationTally() ([]liquidstake.TallyEntry, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.NominationTally()
}

func (n *Node) CurrentNominations() ([][20]byte, uint64, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.CurrentNominations()
}

func (n *Node) Validators() ([][20]byte, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.backend.Validators()
}

func (n *Node) Balance(account [20]byte) (*Balance, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	out := &Balance{BaseSymbol: n.base.Symbol(), DerivativeSymbol: n.derivative.Symbol()}
	baseRecord, err := n.base.Account(account)
	if err != nil {
		return nil, err
	}
	out.BaseFree = baseRecord.Free
	out.BaseSpendable = baseRecord.Spendable()
	derivativeRecord, err := n.derivative.Account(account)
	if err != nil {
		return nil, err
	}
	out.DerivativeFree = derivativeRecord.Free
	out.DerivativeSpendable = derivativeRecord.Spendable()
	out.DerivativeLocks = derivativeRecord.Locks
	if out.NominationLock, err = n.engine.NominationLock(account); err != nil {
		return nil, err
	}
	if out.PendingRedemptions, err = n.engine.Redemptions(account); err != nil {
		return nil, err
	}
	return out, nil
}
