package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// ImportMetrics tracks card resolution and import throughput. All methods
// are safe for concurrent use; a nil *ImportMetrics records nothing.
type ImportMetrics struct {
	ResolveLatency *Histogram
	ImportDuration *Histogram

	ImportsRun      atomic.Uint64
	ImportsFailed   atomic.Uint64
	Lookups         atomic.Uint64
	Resolved        atomic.Uint64
	NotFound        atomic.Uint64
	RateLimited     atomic.Uint64
	SerialFallbacks atomic.Uint64
	CardsPlaced     atomic.Uint64
	Placeholders    atomic.Uint64

	mu        sync.RWMutex
	startTime time.Time
}

// NewImportMetrics creates a collector.
func NewImportMetrics() *ImportMetrics {
	return &ImportMetrics{
		ResolveLatency: NewHistogram(defaultSamples),
		ImportDuration: NewHistogram(1000),
		startTime:      time.Now(),
	}
}

// Outcome classifies a single lookup.
type Outcome int

const (
	OutcomeResolved Outcome = iota
	OutcomeNotFound
	OutcomeRateLimited
)

// RecordLookup records one resolver call.
func (m *ImportMetrics) RecordLookup(d time.Duration, outcome Outcome) {
	if m == nil {
		return
	}
	m.Lookups.Add(1)
	m.ResolveLatency.Record(d)
	switch outcome {
	case OutcomeResolved:
		m.Resolved.Add(1)
	case OutcomeNotFound:
		m.NotFound.Add(1)
	case OutcomeRateLimited:
		m.RateLimited.Add(1)
	}
}

// RecordSerialFallback notes that an import dropped to one request at a time.
func (m *ImportMetrics) RecordSerialFallback() {
	if m == nil {
		return
	}
	m.SerialFallbacks.Add(1)
}

// RecordImport records a finished import.
func (m *ImportMetrics) RecordImport(d time.Duration, placed, placeholders int) {
	if m == nil {
		return
	}
	m.ImportsRun.Add(1)
	m.ImportDuration.Record(d)
	m.CardsPlaced.Add(uint64(placed))
	m.Placeholders.Add(uint64(placeholders))
}

// RecordImportFailure records an import that ended in an error.
func (m *ImportMetrics) RecordImportFailure() {
	if m == nil {
		return
	}
	m.ImportsFailed.Add(1)
}

// ImportStats is a point-in-time snapshot.
type ImportStats struct {
	ResolveLatency LatencyStats `json:"resolve_latency"`
	ImportDuration LatencyStats `json:"import_duration"`

	ImportsRun      uint64  `json:"imports_run"`
	ImportsFailed   uint64  `json:"imports_failed"`
	Lookups         uint64  `json:"lookups"`
	Resolved        uint64  `json:"resolved"`
	NotFound        uint64  `json:"not_found"`
	RateLimited     uint64  `json:"rate_limited"`
	SerialFallbacks uint64  `json:"serial_fallbacks"`
	CardsPlaced     uint64  `json:"cards_placed"`
	Placeholders    uint64  `json:"placeholders"`
	HitRate         float64 `json:"hit_rate"` // percentage of lookups resolved

	Uptime string `json:"uptime"`
}

// Stats returns a snapshot of the counters and latency summaries.
func (m *ImportMetrics) Stats() *ImportStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lookups := m.Lookups.Load()
	resolved := m.Resolved.Load()
	hitRate := 0.0
	if lookups > 0 {
		hitRate = float64(resolved) / float64(lookups) * 100
	}

	return &ImportStats{
		ResolveLatency:  m.ResolveLatency.Summary(),
		ImportDuration:  m.ImportDuration.Summary(),
		ImportsRun:      m.ImportsRun.Load(),
		ImportsFailed:   m.ImportsFailed.Load(),
		Lookups:         lookups,
		Resolved:        resolved,
		NotFound:        m.NotFound.Load(),
		RateLimited:     m.RateLimited.Load(),
		SerialFallbacks: m.SerialFallbacks.Load(),
		CardsPlaced:     m.CardsPlaced.Load(),
		Placeholders:    m.Placeholders.Load(),
		HitRate:         hitRate,
		Uptime:          time.Since(m.startTime).Round(time.Second).String(),
	}
}

// Reset clears all metrics.
func (m *ImportMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ResolveLatency.Reset()
	m.ImportDuration.Reset()
	for _, c := range []*atomic.Uint64{
		&m.ImportsRun, &m.ImportsFailed, &m.Lookups, &m.Resolved, &m.NotFound,
		&m.RateLimited, &m.SerialFallbacks, &m.CardsPlaced, &m.Placeholders,
	} {
		c.Store(0)
	}
	m.startTime = time.Now()
}
