package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/skj-judge/skj-judge/handshake"
	"github.com/skj-judge/skj-judge/types"
)

const (
	metricsNamespace = "skj_judge"
)

var (
	// 1ms -> 10s
	timeBuckets = []float64{
		0.001, 0.002, 0.005, 0.008, 0.010, 0.025, 0.050, 0.075, 0.1, 0.2,
		0.4, 0.6, 0.8, 1.0, 1.5, 2, 5, 10,
	}

	handshakeCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "handshake",
		Name:      "attempts_total",
		Help:      "Number of finished handshake attempts",
	}, []string{"state"})

	taskCount = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "exchange",
		Name:      "tasks_total",
		Help:      "Number of judged tasks",
	}, []string{"kind", "status"})

	taskTimeHist = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "exchange",
		Name:      "answer_seconds",
		Help:      "Histogram for the time from the first operand to the answer",
		Buckets:   timeBuckets,
	}, []string{"kind"})

	oversizedCount = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "exchange",
		Name:      "oversized_answers_total",
		Help:      "Number of answers dropped for exceeding the receive bound",
	})

	flagSent = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "final_flag_sent",
		Help:      "1 when the final flag has been sent",
	})
)

func initMetrics(enable bool) {
	if !enable {
		return
	}
	prometheus.MustRegister(handshakeCount)
	prometheus.MustRegister(taskCount, taskTimeHist, oversizedCount)
	prometheus.MustRegister(flagSent)
}

func attemptObserve(a handshake.Attempt) {
	handshakeCount.WithLabelValues(a.State.String()).Inc()
}

func taskObserve(r types.TaskResult) {
	kind := r.Kind.String()
	taskCount.WithLabelValues(kind, r.Status.String()).Inc()
	if r.Status == types.ProgressSkipped {
		return
	}
	taskTimeHist.WithLabelValues(kind).Observe(r.Time.Seconds())
	if r.Oversized {
		oversizedCount.Inc()
	}
}

func resultObserve(r *types.JudgeResult) {
	if r != nil && r.FlagSent {
		flagSent.Set(1)
	}
}
