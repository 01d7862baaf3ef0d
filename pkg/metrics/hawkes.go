package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var WeightComputationSecondsMetrics = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "qrhawkes_weight_computation_seconds",
		Help:    "time spent building the weight caches of one realization",
		Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
	}, []string{"model"})

var WeightComputationJumpsMetrics = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "qrhawkes_weight_computation_jumps_total",
		Help: "number of jumps processed by weight computations",
	}, []string{"model"})

var EvaluationCountMetrics = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "qrhawkes_evaluation_total",
		Help: "number of objective evaluations",
	}, []string{"model", "operation"})

var RealizationCountMetrics = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "qrhawkes_realizations",
		Help: "number of realizations held by a model",
	}, []string{"model"})

var SimulatedJumpsMetrics = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "qrhawkes_simulated_jumps_total",
		Help: "number of jumps produced by the simulator",
	}, []string{"scenario"})

var SnapshotSaveMetrics = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "qrhawkes_snapshot_saves_total",
		Help: "number of snapshot save attempts",
	}, []string{"kind", "result"})

func ObserveWeightComputation(model string, jumps int, d time.Duration) {
	WeightComputationSecondsMetrics.With(prometheus.Labels{"model": model}).Observe(d.Seconds())
	WeightComputationJumpsMetrics.With(prometheus.Labels{"model": model}).Add(float64(jumps))
}

func IncEvaluation(model, operation string) {
	EvaluationCountMetrics.With(prometheus.Labels{"model": model, "operation": operation}).Inc()
}

func SetRealizationCount(model string, n int) {
	RealizationCountMetrics.With(prometheus.Labels{"model": model}).Set(float64(n))
}

func AddSimulatedJumps(scenario string, n int) {
	SimulatedJumpsMetrics.With(prometheus.Labels{"scenario": scenario}).Add(float64(n))
}

func IncSnapshotSave(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	SnapshotSaveMetrics.With(prometheus.Labels{"kind": kind, "result": result}).Inc()
}

func init() {
	prometheus.MustRegister(
		WeightComputationSecondsMetrics,
		WeightComputationJumpsMetrics,
		EvaluationCountMetrics,
		RealizationCountMetrics,
		SimulatedJumpsMetrics,
		SnapshotSaveMetrics,
	)
}
