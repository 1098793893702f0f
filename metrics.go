package addrgo

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordLoad is called after each bundle load operation.
	// cacheHit reports whether the bundle was served from the memory tier,
	// duration is the total time taken, err is nil if successful.
	RecordLoad(resource string, cacheHit bool, duration time.Duration, err error)

	// RecordSearch is called after each interactive search.
	RecordSearch(duration time.Duration, results int, err error)

	// RecordPreload is called once per background preload attempt.
	RecordPreload(duration time.Duration, err error)

	// RecordAgentMessage is called after each message round trip to the
	// persistent cache agent.
	RecordAgentMessage(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordLoad(string, bool, time.Duration, error) {}
func (NoopMetricsCollector) RecordSearch(time.Duration, int, error)        {}
func (NoopMetricsCollector) RecordPreload(time.Duration, error)            {}
func (NoopMetricsCollector) RecordAgentMessage(time.Duration, error)       {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	LoadCount        atomic.Int64
	LoadErrors       atomic.Int64
	LoadCacheHits    atomic.Int64
	LoadTotalNanos   atomic.Int64
	SearchCount      atomic.Int64
	SearchErrors     atomic.Int64
	SearchTotalNanos atomic.Int64
	PreloadCount     atomic.Int64
	PreloadErrors    atomic.Int64
	AgentMsgCount    atomic.Int64
	AgentMsgErrors   atomic.Int64
}

// RecordLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLoad(_ string, cacheHit bool, duration time.Duration, err error) {
	b.LoadCount.Add(1)
	b.LoadTotalNanos.Add(duration.Nanoseconds())
	if cacheHit {
		b.LoadCacheHits.Add(1)
	}
	if err != nil {
		b.LoadErrors.Add(1)
	}
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(duration time.Duration, _ int, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// RecordPreload implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPreload(_ time.Duration, err error) {
	b.PreloadCount.Add(1)
	if err != nil {
		b.PreloadErrors.Add(1)
	}
}

// RecordAgentMessage implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAgentMessage(_ time.Duration, err error) {
	b.AgentMsgCount.Add(1)
	if err != nil {
		b.AgentMsgErrors.Add(1)
	}
}
