// Copyright 2016 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package metrics wraps github.com/prometheus/client_golang to expose
// the handful of counters and histograms the core's callers care about:
// transactions committed, attributes installed/altered, queries
// algebrized, and how often algebrization collapses to empty. Ground
// truth: metrics/prometheus.go's registry-singleton pattern and
// internal/metrics/prometheus/prometheus.go's Counter/HistogramVec
// construction, narrowed from HTTP request instrumentation to the
// core's own lifecycle events.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Provider owns a private Prometheus registry and the core's counters.
// It implements txn.Metrics structurally (TxCommitted,
// AttributeInstalled, AttributeAltered) without importing txn, so a
// caller can pass it directly to (*txn.Transactor).SetMetrics.
type Provider struct {
	registry *prometheus.Registry

	txCommitted        prometheus.Counter
	attributeInstalled prometheus.Counter
	attributeAltered   *prometheus.CounterVec
	queriesAlgebrized  prometheus.Counter
	collapsedToEmpty   prometheus.Counter
	txDuration         prometheus.Histogram
}

// New returns a Provider with a fresh private registry.
func New() *Provider {
	registry := prometheus.NewRegistry()

	p := &Provider{
		registry: registry,
		txCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mentat_transactions_committed_total",
			Help: "Number of transactions committed.",
		}),
		attributeInstalled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mentat_attributes_installed_total",
			Help: "Number of attributes installed.",
		}),
		attributeAltered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mentat_attributes_altered_total",
			Help: "Number of attribute alterations, by alteration kind.",
		}, []string{"kind"}),
		queriesAlgebrized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mentat_queries_algebrized_total",
			Help: "Number of queries algebrized.",
		}),
		collapsedToEmpty: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mentat_queries_collapsed_to_empty_total",
			Help: "Number of algebrized queries that collapsed to an empty plan.",
		}),
		txDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "mentat_transaction_duration_seconds",
			Help: "Wall-clock duration of committed transactions.",
		}),
	}

	registry.MustRegister(
		p.txCommitted,
		p.attributeInstalled,
		p.attributeAltered,
		p.queriesAlgebrized,
		p.collapsedToEmpty,
		p.txDuration,
	)
	return p
}

// TxCommitted increments the committed-transaction counter.
func (p *Provider) TxCommitted() { p.txCommitted.Inc() }

// AttributeInstalled increments the attribute-installed counter.
func (p *Provider) AttributeInstalled() { p.attributeInstalled.Inc() }

// AttributeAltered increments the per-kind attribute-altered counter.
func (p *Provider) AttributeAltered(kind string) { p.attributeAltered.WithLabelValues(kind).Inc() }

// QueryAlgebrized records that a query was algebrized, and whether the
// resulting plan collapsed to empty. Call sites sit outside the pure
// algebrizer (spec §5: the algebrizer itself performs no I/O) — typically
// in cmd/mentat, right after calling query.Algebrize.
func (p *Provider) QueryAlgebrized(collapsedToEmpty bool) {
	p.queriesAlgebrized.Inc()
	if collapsedToEmpty {
		p.collapsedToEmpty.Inc()
	}
}

// ObserveTxDuration records one transaction's wall-clock duration.
func (p *Provider) ObserveTxDuration(seconds float64) { p.txDuration.Observe(seconds) }

// Gather returns every metric family currently registered, suitable for
// exposition over an HTTP /metrics endpoint via promhttp.
func (p *Provider) Gather() ([]*prometheus.MetricFamily, error) {
	return p.registry.Gather()
}
