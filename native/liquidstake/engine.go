package liquidstake

import (
	"github.com/holiman/uint256"

	"liquidstake/core/events"
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
	KVIterate(prefix []byte, fn func(key, raw []byte) bool) error
	Snapshot() int
	RevertToSnapshot(id int)
}

// BaseLedger is the base-asset ledger the pool holds stake in.
type BaseLedger interface {
	FreeBalance(account [20]byte) (*uint256.Int, error)
	TotalBalance(account [20]byte) (*uint256.Int, error)
	SpendableBalance(account [20]byte) (*uint256.Int, error)
	MinimumBalance() *uint256.Int
	Transfer(from, to [20]byte, amount *uint256.Int, keepAlive bool) error
}

// DerivativeLedger is the claim-token ledger the pool mints and burns.
type DerivativeLedger interface {
	FreeBalance(account [20]byte) (*uint256.Int, error)
	SpendableBalance(account [20]byte) (*uint256.Int, error)
	TotalIssuance() (*uint256.Int, error)
	Mint(account [20]byte, amount *uint256.Int) error
	Burn(account [20]byte, amount *uint256.Int) error
	SetLock(id string, account [20]byte, amount *uint256.Int) error
	RemoveLock(id string, account [20]byte) error
}

// StakingBackend is the external staking system the stash is bonded to.
type StakingBackend interface {
	CurrentEra() (uint64, error)
	BondingDuration() uint64
	MinimumBond() *uint256.Int
	MaxNominations() int
	Bond(stash, controller [20]byte, amount *uint256.Int, payee [20]byte) error
	BondExtra(stash [20]byte, maxAdditional *uint256.Int) error
	Unbond(stash [20]byte, amount *uint256.Int) error
	WithdrawUnbonded(stash [20]byte, slashingSpans uint32) (bool, error)
	Nominate(stash [20]byte, targets [][20]byte) error
	ActiveStake(stash [20]byte) (*uint256.Int, bool, error)
	TotalStake(stash [20]byte) (*uint256.Int, bool, error)
	IsValidator(account [20]byte) (bool, error)
}

// Engine implements the pool: deposits, redemptions, withdrawals, the
// nomination vote and the per-block scheduler. Every public operation is all
// or nothing: on error the state is rolled back to where it started and no
// event is published.
//
// Engine is not safe for concurrent use.
type Engine struct {
	state      engineState
	base       BaseLedger
	derivative DerivativeLedger
	backend    StakingBackend
	params     Params
	stash      [20]byte
	controller [20]byte
	emitter    events.Emitter
	pending    events.Buffer
}

// NewEngine derives the pool accounts and returns an engine without
// collaborators. Wire them with SetState, SetLedgers and SetBackend.
func NewEngine(params Params) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	stash, controller, err := PoolAccounts(params)
	if err != nil {
		return nil, err
	}
	return &Engine{
		params:     params,
		stash:      stash,
		controller: controller,
		emitter:    events.NoopEmitter{},
	}, nil
}

// SetState wires the engine to the journaled state.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetLedgers wires the base and derivative ledgers.
func (e *Engine) SetLedgers(base BaseLedger, derivative DerivativeLedger) {
	e.base = base
	e.derivative = derivative
}

// SetBackend wires the staking backend.
func (e *Engine) SetBackend(backend StakingBackend) { e.backend = backend }

// SetEmitter configures the sink that receives events of successful
// operations.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// Params returns the pool configuration.
func (e *Engine) Params() Params { return e.params }

// Stash returns the pool's stash account.
func (e *Engine) Stash() [20]byte { return e.stash }

// Controller returns the pool's controller account.
func (e *Engine) Controller() [20]byte { return e.controller }

func (e *Engine) ready() error {
	switch {
	case e == nil || e.state == nil:
		return errNilState
	case e.base == nil || e.derivative == nil:
		return errNilLedger
	case e.backend == nil:
		return errNilBackend
	}
	return nil
}

// atomic runs fn against a snapshot. Events emitted through e.emit are
// published only when fn succeeds.
func (e *Engine) atomic(fn func() error) error {
	if err := e.ready(); err != nil {
		return err
	}
	snap := e.state.Snapshot()
	e.pending.Reset()
	if err := fn(); err != nil {
		e.state.RevertToSnapshot(snap)
		e.pending.Reset()
		return err
	}
	e.pending.Flush(e.emitter)
	return nil
}

// soft runs fn and rolls back only fn's writes when it fails. The caller
// continues either way.
func (e *Engine) soft(fn func() error) error {
	snap := e.state.Snapshot()
	if err := fn(); err != nil {
		e.state.RevertToSnapshot(snap)
		return err
	}
	return nil
}

func (e *Engine) emit(evt events.Event) { e.pending.Emit(evt) }

// outstandingSupply is the derivative supply the stash backs: circulating
// issuance plus units burned for redemptions that are not yet paid out.
func (e *Engine) outstandingSupply() (*uint256.Int, error) {
	issuance, err := e.derivative.TotalIssuance()
	if err != nil {
		return nil, err
	}
	pending, err := e.pendingUnits()
	if err != nil {
		return nil, err
	}
	total, overflow := new(uint256.Int).AddOverflow(issuance, pending)
	if overflow {
		return nil, ErrExceededMaxStake
	}
	return total, nil
}

func (e *Engine) isStaker() (bool, error) {
	_, ok, err := e.backend.ActiveStake(e.stash)
	return ok, err
}
