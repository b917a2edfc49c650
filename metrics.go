// Copyright 2026 The Nodee Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package nodee

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records supervision events in its own Prometheus registry.  A
// nil *Metrics records nothing, so a Supervisor works fine without one.
type Metrics struct {
	forks      *prometheus.CounterVec
	forkErrors *prometheus.CounterVec
	exits      *prometheus.CounterVec
	restarts   *prometheus.CounterVec
	advances   *prometheus.CounterVec
	running    prometheus.Gauge
	rss        *prometheus.GaugeVec
	faults     *prometheus.GaugeVec

	namespace string
	registry  *prometheus.Registry
}

// NewMetrics returns metrics under the given namespace ("nodee" if empty).
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "nodee"
	}
	m := &Metrics{namespace: namespace, registry: prometheus.NewRegistry()}

	m.forks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forks_total",
			Help:      "Processes forked, by kind",
		},
		[]string{"kind"},
	)
	m.forkErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fork_errors_total",
			Help:      "Fork attempts that failed, by kind",
		},
		[]string{"kind"},
	)
	m.exits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exits_total",
			Help:      "Reaped processes, by kind and how they ended",
		},
		[]string{"kind", "how"},
	)
	m.restarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restarts_total",
			Help:      "Automatic restarts, by kind",
		},
		[]string{"kind"},
	)
	m.advances = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chain_advances_total",
			Help:      "Launch chain stages started after their predecessor exited",
		},
		[]string{"kind"},
	)
	m.running = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "running_processes",
			Help:      "Supervised processes that currently have a pid",
		},
	)
	m.rss = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "process_rss_kilobytes",
			Help:      "Last sampled resident set size",
		},
		[]string{"service", "kind"},
	)
	m.faults = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "process_recent_page_faults",
			Help:      "Page faults between the last two samples",
		},
		[]string{"service", "kind"},
	)

	m.registry.MustRegister(
		m.forks,
		m.forkErrors,
		m.exits,
		m.restarts,
		m.advances,
		m.running,
		m.rss,
		m.faults,
	)
	return m
}

// Registry returns the registry holding all of our metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WatchIdentities exports how many tenants a holds.
func (m *Metrics) WatchIdentities(a *IdentityAllocator) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: m.namespace,
			Name:      "tenants_in_use",
			Help:      "Allocated uid/gid pairs",
		},
		func() float64 { return float64(a.InUse()) },
	))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) forked(kind string) {
	if m == nil {
		return
	}
	m.forks.WithLabelValues(kind).Inc()
	m.running.Inc()
}

func (m *Metrics) forkFailed(kind string) {
	if m == nil {
		return
	}
	m.forkErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) exited(kind string, ex Exit) {
	if m == nil {
		return
	}
	how := "exit"
	if ex.Signal != 0 {
		how = "signal"
	}
	m.exits.WithLabelValues(kind, how).Inc()
	m.running.Dec()
}

func (m *Metrics) restarted(kind string) {
	if m == nil {
		return
	}
	m.restarts.WithLabelValues(kind).Inc()
}

func (m *Metrics) chainAdvanced(kind string) {
	if m == nil {
		return
	}
	m.advances.WithLabelValues(kind).Inc()
}

func (m *Metrics) observe(p *Process) {
	if m == nil {
		return
	}
	m.rss.WithLabelValues(p.spec.Name(), p.kind).Set(float64(p.rss))
	m.faults.WithLabelValues(p.spec.Name(), p.kind).Set(float64(p.recentPageFaults()))
}

func (m *Metrics) forget(p *Process) {
	if m == nil {
		return
	}
	m.rss.DeleteLabelValues(p.spec.Name(), p.kind)
	m.faults.DeleteLabelValues(p.spec.Name(), p.kind)
}
