package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes generator progress to Prometheus. The counters are read
// straight from the RateCounter at scrape time, so the emit path pays nothing
// for them. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry
	rate     prometheus.Gauge
	batches  prometheus.Counter
}

func NewMetrics(counter *RateCounter) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		rate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "loggen",
			Name:      "records_per_second",
			Help:      "Emission rate measured over the last monitor interval.",
		}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "loggen",
			Name:      "burst_batches_total",
			Help:      "Burst batches completed.",
		}),
	}
	m.registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "loggen",
			Name:      "records_emitted_total",
			Help:      "Records accepted by the sink since the process started.",
		}, func() float64 { return float64(counter.Total()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "loggen",
			Name:      "record_failures_total",
			Help:      "Records the sink rejected.",
		}, func() float64 { return float64(counter.Failures()) }),
		m.rate,
		m.batches,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) SetRate(r float64) {
	if m == nil {
		return
	}
	m.rate.Set(r)
}

func (m *Metrics) BatchDone() {
	if m == nil {
		return
	}
	m.batches.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
