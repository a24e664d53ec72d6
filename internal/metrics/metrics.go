// Package metrics provides metrics collection for the traffic profiler.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector collects and aggregates analysis metrics.
type Collector struct {
	exchangesAnalyzed  atomic.Int64
	endpointsFound     atomic.Int64
	malformedBodies    atomic.Int64
	unclassified       atomic.Int64
	sessionsTracked    atomic.Int64
	flowsMatched       atomic.Int64
	hostsAnalyzed      atomic.Int64
	analysisNanosSum   atomic.Int64
	analysisNanosCount atomic.Int64

	classifiedByKind map[string]*atomic.Int64
	kindMu           sync.RWMutex

	startTime time.Time
}

// New creates a new metrics collector.
func New() *Collector {
	return &Collector{
		classifiedByKind: make(map[string]*atomic.Int64),
		startTime:        time.Now(),
	}
}

// RecordExchanges adds to the analyzed-exchange counter.
func (c *Collector) RecordExchanges(n int) {
	c.exchangesAnalyzed.Add(int64(n))
}

// RecordEndpoints adds to the discovered-endpoint counter.
func (c *Collector) RecordEndpoints(n int) {
	c.endpointsFound.Add(int64(n))
}

// RecordMalformedBodies adds to the count of bodies excluded from inference.
func (c *Collector) RecordMalformedBodies(n int) {
	c.malformedBodies.Add(int64(n))
}

// RecordClassification adds classified exchanges of one kind.
func (c *Collector) RecordClassification(kind string, n int) {
	c.kindMu.RLock()
	counter, ok := c.classifiedByKind[kind]
	c.kindMu.RUnlock()

	if !ok {
		c.kindMu.Lock()
		counter, ok = c.classifiedByKind[kind]
		if !ok {
			counter = &atomic.Int64{}
			c.classifiedByKind[kind] = counter
		}
		c.kindMu.Unlock()
	}
	counter.Add(int64(n))
}

// RecordUnclassified adds to the count of exchanges no rule matched.
func (c *Collector) RecordUnclassified(n int) {
	c.unclassified.Add(int64(n))
}

// RecordSessions sets the tracked-session gauge.
func (c *Collector) RecordSessions(n int) {
	c.sessionsTracked.Store(int64(n))
}

// RecordFlows adds to the matched-flow counter.
func (c *Collector) RecordFlows(n int) {
	c.flowsMatched.Add(int64(n))
}

// RecordHostAnalysis records one completed per-host analysis.
func (c *Collector) RecordHostAnalysis(d time.Duration) {
	c.hostsAnalyzed.Add(1)
	c.analysisNanosSum.Add(int64(d))
	c.analysisNanosCount.Add(1)
}

// Snapshot is a point-in-time view of all counters.
type Snapshot struct {
	ExchangesAnalyzed int64            `json:"exchanges_analyzed"`
	EndpointsFound    int64            `json:"endpoints_found"`
	MalformedBodies   int64            `json:"malformed_bodies"`
	Unclassified      int64            `json:"unclassified"`
	ClassifiedByKind  map[string]int64 `json:"classified_by_kind"`
	SessionsTracked   int64            `json:"sessions_tracked"`
	FlowsMatched      int64            `json:"flows_matched"`
	HostsAnalyzed     int64            `json:"hosts_analyzed"`
	AvgAnalysisMS     float64          `json:"avg_analysis_ms"`
	UptimeSec         float64          `json:"uptime_sec"`
}

// GetSnapshot returns the current counter values.
func (c *Collector) GetSnapshot() Snapshot {
	s := Snapshot{
		ExchangesAnalyzed: c.exchangesAnalyzed.Load(),
		EndpointsFound:    c.endpointsFound.Load(),
		MalformedBodies:   c.malformedBodies.Load(),
		Unclassified:      c.unclassified.Load(),
		ClassifiedByKind:  make(map[string]int64),
		SessionsTracked:   c.sessionsTracked.Load(),
		FlowsMatched:      c.flowsMatched.Load(),
		HostsAnalyzed:     c.hostsAnalyzed.Load(),
		UptimeSec:         time.Since(c.startTime).Seconds(),
	}

	c.kindMu.RLock()
	for kind, counter := range c.classifiedByKind {
		s.ClassifiedByKind[kind] = counter.Load()
	}
	c.kindMu.RUnlock()

	if n := c.analysisNanosCount.Load(); n > 0 {
		s.AvgAnalysisMS = float64(c.analysisNanosSum.Load()) / float64(n) / 1e6
	}
	return s
}
