package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/holiman/uint256"

	"liquidstake/core/events"
	"liquidstake/core/genesis"
	lstate "liquidstake/core/state"
	"liquidstake/native/bank"
	"liquidstake/native/liquidstake"
	"liquidstake/native/staking"
	"liquidstake/storage"
)

var nodeHeightKey = []byte("node/height")

// NodeConfig bundles what NewNode needs to assemble the pool.
type NodeConfig struct {
	BaseSymbol       string
	BaseED           *uint256.Int
	DerivativeSymbol string
	DerivativeED     *uint256.Int
	Staking          staking.Params
	Pool             liquidstake.Params
	// Genesis is applied once when the database has never seen one.
	Genesis *genesis.Spec
	// Version is the binary version; a change triggers the pool upgrade hook.
	Version string
	Logger  *slog.Logger
	// Sinks receive every event of committed steps, in order.
	Sinks []events.Emitter
}

// Node is the central controller, wiring all components together. Every
// operation and block step holds stateMu, commits on success and discards
// on failure.
type Node struct {
	db         storage.Database
	state      *lstate.Manager
	base       *bank.Ledger
	derivative *bank.Ledger
	backend    *staking.Backend
	engine     *liquidstake.Engine
	logger     *slog.Logger

	stateMu sync.Mutex
	pending events.Buffer
	sink    events.Emitter
	height  uint64

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewNode(db storage.Database, cfg NodeConfig) (*Node, error) {
	if db == nil {
		return nil, errors.New("node: database required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	n := &Node{
		db:     db,
		state:  lstate.NewManager(db),
		logger: logger.With(slog.String("component", "node")),
		sink:   events.MultiEmitter(cfg.Sinks),
	}
	if err := n.state.EnsureStateVersion(); err != nil {
		return nil, err
	}

	var err error
	if n.base, err = bank.NewLedger(n.state, cfg.BaseSymbol, cfg.BaseED); err != nil {
		return nil, fmt.Errorf("node: base ledger: %w", err)
	}
	if n.derivative, err = bank.NewLedger(n.state, cfg.DerivativeSymbol, cfg.DerivativeED); err != nil {
		return nil, fmt.Errorf("node: derivative ledger: %w", err)
	}
	if n.backend, err = staking.NewBackend(n.state, n.base, cfg.Staking); err != nil {
		return nil, fmt.Errorf("node: staking backend: %w", err)
	}
	n.backend.SetEmitter(&n.pending)
	if n.engine, err = liquidstake.NewEngine(cfg.Pool); err != nil {
		return nil, fmt.Errorf("node: pool engine: %w", err)
	}
	n.engine.SetState(n.state)
	n.engine.SetLedgers(n.base, n.derivative)
	n.engine.SetBackend(n.backend)
	n.engine.SetEmitter(&n.pending)

	if _, err := n.state.KVGet(nodeHeightKey, &n.height); err != nil {
		return nil, err
	}
	if err := n.bootstrap(cfg); err != nil {
		n.state.Discard()
		n.pending.Reset()
		return nil, err
	}
	return n, nil
}

// bootstrap applies genesis and the upgrade hook in one commit.
func (n *Node) bootstrap(cfg NodeConfig) error {
	if cfg.Genesis != nil {
		applied, err := genesis.Apply(cfg.Genesis, genesis.Targets{
			State:      n.state,
			Base:       n.base,
			Derivative: n.derivative,
			Staking:    n.backend,
		})
		if err != nil {
			return fmt.Errorf("node: genesis: %w", err)
		}
		if applied {
			n.height = cfg.Genesis.Height
			n.logger.Info("genesis applied", slog.Uint64("height", n.height), slog.Uint64("era", cfg.Genesis.Era))
		}
	}
	if err := n.backend.StartClock(0, n.height); err != nil {
		return err
	}
	stored, err := n.state.CodeVersion()
	if err != nil {
		return err
	}
	if stored != cfg.Version {
		if err := n.engine.OnUpgrade(); err != nil {
			return fmt.Errorf("node: upgrade: %w", err)
		}
		if err := n.state.SetCodeVersion(cfg.Version); err != nil {
			return err
		}
		n.logger.Info("pool upgrade hook ran", slog.String("from", stored), slog.String("to", cfg.Version))
	}
	if err := n.state.KVPut(nodeHeightKey, n.height); err != nil {
		return err
	}
	return n.commit()
}

func (n *Node) commit() error {
	if err := n.state.Commit(); err != nil {
		n.state.Discard()
		n.pending.Reset()
		return err
	}
	n.pending.Flush(n.sink)
	return nil
}

// finish commits a successful step or drops every write and event of a
// failed one.
func (n *Node) finish(err error) error {
	if err != nil {
		n.state.Discard()
		n.pending.Reset()
		return err
	}
	return n.commit()
}

// Height returns the last processed block.
func (n *Node) Height() uint64 {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.height
}

// Stash returns the pool's stash account.
func (n *Node) Stash() [20]byte { return n.engine.Stash() }

// Controller returns the pool's controller account.
func (n *Node) Controller() [20]byte { return n.engine.Controller() }

// Close stops the block loop and closes the database.
func (n *Node) Close() error {
	n.Stop()
	return n.db.Close()
}
