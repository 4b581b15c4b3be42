package metrics

import (
	"sync"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

type PoolMetrics struct {
	stashBalance *prometheus.GaugeVec
	issuance     prometheus.Gauge
	pending      prometheus.Gauge
	era          prometheus.Gauge
	height       prometheus.Gauge
	windowOpen   prometheus.Gauge
	nominations  prometheus.Gauge
	operations   *prometheus.CounterVec
}

var (
	poolOnce     sync.Once
	poolRegistry *PoolMetrics
)

// PoolSnapshot carries the values published after each block.
type PoolSnapshot struct {
	StashFree          *uint256.Int
	StashSpendable     *uint256.Int
	ActiveStake        *uint256.Int
	DerivativeIssuance *uint256.Int
	PendingRedemptions *uint256.Int
	Era                uint64
	Height             uint64
	WindowOpen         bool
	Nominations        int
}

func Pool() *PoolMetrics {
	poolOnce.Do(func() {
		poolRegistry = &PoolMetrics{
			stashBalance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "lstake_pool_stash_balance",
				Help: "Pool stash balance in base units by kind (free, spendable, active).",
			}, []string{"kind"}),
			issuance: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "lstake_pool_derivative_issuance",
				Help: "Total derivative units in circulation.",
			}),
			pending: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "lstake_pool_pending_redemption_units",
				Help: "Derivative units burned but not yet withdrawn.",
			}),
			era: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "lstake_pool_era",
				Help: "Era last observed by the pool scheduler.",
			}),
			height: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "lstake_pool_height",
				Help: "Last processed block height.",
			}),
			windowOpen: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "lstake_pool_voting_window_open",
				Help: "1 while the nomination voting window is open.",
			}),
			nominations: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "lstake_pool_nominated_validators",
				Help: "Validators in the pool's applied nomination set.",
			}),
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lstake_pool_operations_total",
				Help: "Pool operations by name and outcome.",
			}, []string{"operation", "outcome"}),
		}
		prometheus.MustRegister(
			poolRegistry.stashBalance,
			poolRegistry.issuance,
			poolRegistry.pending,
			poolRegistry.era,
			poolRegistry.height,
			poolRegistry.windowOpen,
			poolRegistry.nominations,
			poolRegistry.operations,
		)
	})
	return poolRegistry
}

func (m *PoolMetrics) Observe(snapshot PoolSnapshot) {
	if m == nil {
		return
	}
	m.stashBalance.WithLabelValues("free").Set(toFloat(snapshot.StashFree))
	m.stashBalance.WithLabelValues("spendable").Set(toFloat(snapshot.StashSpendable))
	m.stashBalance.WithLabelValues("active").Set(toFloat(snapshot.ActiveStake))
	m.issuance.Set(toFloat(snapshot.DerivativeIssuance))
	m.pending.Set(toFloat(snapshot.PendingRedemptions))
	m.era.Set(float64(snapshot.Era))
	m.height.Set(float64(snapshot.Height))
	if snapshot.WindowOpen {
		m.windowOpen.Set(1)
	} else {
		m.windowOpen.Set(0)
	}
	m.nominations.Set(float64(snapshot.Nominations))
}

func (m *PoolMetrics) RecordOperation(operation string, err error) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "rejected"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

func toFloat(value *uint256.Int) float64 {
	if value == nil {
		return 0
	}
	return value.Float64()
}
