// Copyright 2026 The Edo Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics exposes the Prometheus instrumentation the
// scheduler reports through. Metrics is constructed once per Engine
// and registered against a caller-owned prometheus.Registry rather
// than the package-level default registry, so an embedding process
// can run more than one Engine (for instance, one per concurrent
// build) without a duplicate-registration panic.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every counter and gauge the scheduler updates.
type Metrics struct {
	TransformsStarted   *prometheus.CounterVec
	TransformsSucceeded *prometheus.CounterVec
	TransformsFailed    *prometheus.CounterVec
	CacheHits           *prometheus.CounterVec
	Inflight            prometheus.Gauge
}

// New constructs and registers every metric against reg. Panics if
// any metric is already registered against reg, the same
// fail-fast-on-misconfiguration behavior prometheus.MustRegister
// gives a package-global registry.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		TransformsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edo",
			Subsystem: "scheduler",
			Name:      "transforms_started_total",
			Help:      "Transforms dispatched for execution, labeled by address.",
		}, []string{"addr"}),
		TransformsSucceeded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edo",
			Subsystem: "scheduler",
			Name:      "transforms_succeeded_total",
			Help:      "Transforms that reached Success, labeled by address.",
		}, []string{"addr"}),
		TransformsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edo",
			Subsystem: "scheduler",
			Name:      "transforms_failed_total",
			Help:      "Transforms that reached Failed or were abandoned after Retryable, labeled by address.",
		}, []string{"addr"}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edo",
			Subsystem: "scheduler",
			Name:      "cache_hits_total",
			Help:      "Build-tier cache hits, labeled by pass (fetch, dispatch).",
		}, []string{"pass"}),
		Inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "edo",
			Subsystem: "scheduler",
			Name:      "transforms_inflight",
			Help:      "Transforms currently running inside an environment.",
		}),
	}
	reg.MustRegister(m.TransformsStarted, m.TransformsSucceeded, m.TransformsFailed, m.CacheHits, m.Inflight)
	return m
}
