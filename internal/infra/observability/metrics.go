package observability

import (
	"time"

	"github.com/boddenberg/planeja-api-go/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Ledger operation labels.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"

	StatusSuccess = "success"
	StatusError   = "error"
)

// Metrics holds all Prometheus metrics for the API.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration    *prometheus.HistogramVec
	ledgerOps          *prometheus.CounterVec
	balanceAdjustments prometheus.Counter
	rolledBack         prometheus.Counter
	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "planeja_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		ledgerOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "planeja_ledger_operations_total",
				Help: "Ledger writes by operation and outcome.",
			},
			[]string{"op", "status"},
		),
		balanceAdjustments: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "planeja_balance_adjustments_total",
				Help: "Account balance adjustments committed.",
			},
		),
		rolledBack: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "planeja_atomic_rollbacks_total",
				Help: "Atomic units rolled back.",
			},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "planeja_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "planeja_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordLedgerOp counts a ledger write. A failed write is also counted as a
// rollback, since every ledger write runs in one atomic unit.
func (m *Metrics) RecordLedgerOp(op string, err error) {
	if err != nil {
		m.ledgerOps.WithLabelValues(op, StatusError).Inc()
		m.rolledBack.Inc()
		return
	}
	m.ledgerOps.WithLabelValues(op, StatusSuccess).Inc()
}

// AddBalanceAdjustments counts committed balance adjustments.
func (m *Metrics) AddBalanceAdjustments(n int) {
	m.balanceAdjustments.Add(float64(n))
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// GetLedgerSnapshot returns a snapshot of ledger metrics suitable for the
// GET /v1/metrics/ledger endpoint.
func (m *Metrics) GetLedgerSnapshot() *domain.LedgerMetrics {
	var created, updated, deleted, failed float64
	for _, op := range []string{OpCreate, OpUpdate, OpDelete} {
		ok := getCounterValue(m.ledgerOps, op, StatusSuccess)
		failed += getCounterValue(m.ledgerOps, op, StatusError)
		switch op {
		case OpCreate:
			created = ok
		case OpUpdate:
			updated = ok
		case OpDelete:
			deleted = ok
		}
	}

	cacheHits := getCounterValue(m.cacheHits, "users")
	cacheMisses := getCounterValue(m.cacheMisses, "users")

	errorRate := float64(0)
	if total := created + updated + deleted + failed; total > 0 {
		errorRate = failed / total
	}
	cacheHitRate := float64(0)
	if cacheHits+cacheMisses > 0 {
		cacheHitRate = cacheHits / (cacheHits + cacheMisses)
	}

	return &domain.LedgerMetrics{
		TransactionsCreated: created,
		TransactionsUpdated: updated,
		TransactionsDeleted: deleted,
		BalanceAdjustments:  readCounter(m.balanceAdjustments),
		RolledBack:          readCounter(m.rolledBack),
		ErrorRate:           errorRate,
		CacheHitRate:        cacheHitRate,
		Period:              "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for the given labels.
func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	return readCounter(cv.WithLabelValues(labels...))
}

func readCounter(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
