/*
Copyright 2026 The Protofetch Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics exposes protofetch's run-time counters via
// prometheus/client_golang, following the struct-of-collectors pattern
// used by k8s.io/test-infra's greenhouse cache service
// (greenhouse/prometheus.go): one struct instantiated once per process,
// registered against the prometheus.Registerer passed to New, fields
// passed down into the components that observe them.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the counters and histograms protofetch emits. They are
// optional: a nil *Metrics is valid and every method on it is a no-op,
// so callers that never wire a registry (e.g. most unit tests) don't
// need to special-case metrics collection.
type Metrics struct {
	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter
	RepoFetches   prometheus.Counter
	RetryAttempts prometheus.Counter
	FetchDuration prometheus.Histogram
	PrunedFiles   prometheus.Counter
}

// New constructs and registers a Metrics against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "protofetch_cache_hits_total",
			Help: "Number of times a requested (url, revision) resolved without a network fetch.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "protofetch_cache_misses_total",
			Help: "Number of times resolving a (url, revision) required a network fetch.",
		}),
		RepoFetches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "protofetch_repo_fetches_total",
			Help: "Number of git fetch/clone operations performed against remotes.",
		}),
		RetryAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "protofetch_transient_retries_total",
			Help: "Number of retry attempts made after a Transient error.",
		}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "protofetch_fetch_duration_seconds",
			Help:    "Wall-clock duration of a full fetch run, from manifest parse to materialized output.",
			Buckets: prometheus.DefBuckets,
		}),
		PrunedFiles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "protofetch_pruned_files_total",
			Help: "Number of materialized files deleted by the prune engine because they were unreachable.",
		}),
	}
	reg.MustRegister(
		m.CacheHits,
		m.CacheMisses,
		m.RepoFetches,
		m.RetryAttempts,
		m.FetchDuration,
		m.PrunedFiles,
	)
	return m
}

func (m *Metrics) incr(c prometheus.Counter) {
	if m == nil || c == nil {
		return
	}
	c.Inc()
}

func (m *Metrics) CacheHit()      { m.incr(m.CacheHits) }
func (m *Metrics) CacheMiss()     { m.incr(m.CacheMisses) }
func (m *Metrics) RepoFetch()     { m.incr(m.RepoFetches) }
func (m *Metrics) RetryAttempt()  { m.incr(m.RetryAttempts) }
func (m *Metrics) FilePruned()    { m.incr(m.PrunedFiles) }

// ObserveFetchDuration records seconds on the fetch-duration histogram.
func (m *Metrics) ObserveFetchDuration(seconds float64) {
	if m == nil || m.FetchDuration == nil {
		return
	}
	m.FetchDuration.Observe(seconds)
}
