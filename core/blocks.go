package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"liquidstake/native/liquidstake"
	"liquidstake/observability"
	"liquidstake/observability/metrics"
)

// ProduceBlock advances the chain by one block: the staking backend's era
// clock first, then the pool scheduler, then a single commit.
func (n *Node) ProduceBlock(ctx context.Context) (uint64, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	height := n.height + 1
	_, span := otel.Tracer("liquidstake/core").Start(ctx, "block",
		trace.WithAttributes(attribute.Int64("height", int64(height))))
	defer span.End()

	started := time.Now()
	err := n.finish(n.advance(height))
	observability.Blocks().RecordBlock(time.Since(started), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return n.height, fmt.Errorf("block %d: %w", height, err)
	}
	n.height = height
	n.observePool()
	return height, nil
}

func (n *Node) advance(height uint64) error {
	rolled, err := n.backend.Advance(height)
	if err != nil {
		return fmt.Errorf("staking advance: %w", err)
	}
	if err := n.engine.OnBlockAdvance(height); err != nil {
		return fmt.Errorf("pool scheduler: %w", err)
	}
	if rolled {
		era, _ := n.backend.CurrentEra()
		n.logger.Info("era started", slog.Uint64("era", era), slog.Uint64("height", height))
	}
	return n.state.KVPut(nodeHeightKey, height)
}

// observePool publishes the pool gauges. Callers hold stateMu.
func (n *Node) observePool() {
	info, err := n.engine.PoolInfo()
	if err != nil {
		n.logger.Warn("pool metrics", slog.Any("error", err))
		return
	}
	metrics.Pool().Observe(metrics.PoolSnapshot{
		StashFree:          info.StashBalance,
		StashSpendable:     info.StashSpendable,
		ActiveStake:        info.ActiveStake,
		DerivativeIssuance: info.DerivativeIssuance,
		PendingRedemptions: info.PendingRedemptions,
		Era:                info.Era,
		Height:             info.Height,
		WindowOpen:         info.Phase == liquidstake.PhaseOpen,
		Nominations:        len(info.Nominations),
	})
}

// Start runs the block loop until ctx is cancelled or Stop is called.
func (n *Node) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("node: block interval must be positive")
	}
	n.loopMu.Lock()
	defer n.loopMu.Unlock()
	if n.cancel != nil {
		return fmt.Errorf("node: block loop already running")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	n.done = make(chan struct{})
	go n.run(loopCtx, interval, n.done)
	return nil
}

func (n *Node) run(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := n.ProduceBlock(ctx); err != nil {
				n.logger.Error("block failed", slog.Any("error", err))
			}
		}
	}
}

// Stop halts the block loop and waits for the in-flight block.
func (n *Node) Stop() {
	n.loopMu.Lock()
	cancel, done := n.cancel, n.done
	n.cancel, n.done = nil, nil
	n.loopMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
