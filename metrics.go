package xvcd

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the latency histogram buckets in nanoseconds.
// Buckets cover from 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks performance and operational statistics for an XVC server.
type Metrics struct {
	// Verb counters
	ShiftOps   atomic.Uint64 // irshift:/drshift: operations
	LegacyOps  atomic.Uint64 // shift:/settck: (v1.0) operations
	MemReadOps atomic.Uint64 // mrd: operations
	MemWriteOps atomic.Uint64 // mwr: operations
	StateOps  atomic.Uint64 // state: operations
	LockOps   atomic.Uint64 // lock:/unlock: operations

	// DMA counters (DPC transport only)
	PacketsSent     atomic.Uint64
	PacketsReceived atomic.Uint64
	BytesSent       atomic.Uint64
	BytesReceived   atomic.Uint64

	// Error counters
	ProtocolErrors  atomic.Uint64
	HandlerErrors   atomic.Uint64
	DescriptorErrors atomic.Uint64

	// Connection lifecycle
	ConnectionsAccepted atomic.Uint64
	ConnectionsActive   atomic.Int32

	// Performance tracking
	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64

	// Latency histogram buckets (cumulative counts)
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	// Server lifecycle
	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordVerb records the completion of a single verb dispatch.
func (m *Metrics) RecordVerb(verb string, latencyNs uint64, success bool) {
	switch verb {
	case "irshift:", "drshift:":
		m.ShiftOps.Add(1)
	case "shift:", "settck:":
		m.LegacyOps.Add(1)
	case "mrd:":
		m.MemReadOps.Add(1)
	case "mwr:":
		m.MemWriteOps.Add(1)
	case "state:":
		m.StateOps.Add(1)
	case "lock:", "unlock:":
		m.LockOps.Add(1)
	}
	if !success {
		m.HandlerErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordPacketSent records a DMA ingress packet transfer.
func (m *Metrics) RecordPacketSent(bytes uint64) {
	m.PacketsSent.Add(1)
	m.BytesSent.Add(bytes)
}

// RecordPacketReceived records a DMA egress packet transfer.
func (m *Metrics) RecordPacketReceived(bytes uint64) {
	m.PacketsReceived.Add(1)
	m.BytesReceived.Add(bytes)
}

// RecordProtocolError records a decode/classification failure.
func (m *Metrics) RecordProtocolError() {
	m.ProtocolErrors.Add(1)
}

// RecordDescriptorError records a DMA descriptor status error bit.
func (m *Metrics) RecordDescriptorError() {
	m.DescriptorErrors.Add(1)
}

// ConnectionOpened records a newly accepted connection.
func (m *Metrics) ConnectionOpened() {
	m.ConnectionsAccepted.Add(1)
	m.ConnectionsActive.Add(1)
}

// ConnectionClosed records a connection teardown.
func (m *Metrics) ConnectionClosed() {
	m.ConnectionsActive.Add(-1)
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)

	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the server as stopped.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time snapshot of metrics.
type MetricsSnapshot struct {
	ShiftOps    uint64
	LegacyOps   uint64
	MemReadOps  uint64
	MemWriteOps uint64
	StateOps    uint64
	LockOps     uint64

	PacketsSent     uint64
	PacketsReceived uint64
	BytesSent       uint64
	BytesReceived   uint64

	ProtocolErrors   uint64
	HandlerErrors    uint64
	DescriptorErrors uint64

	ConnectionsAccepted uint64
	ConnectionsActive   int32

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	TotalOps uint64
}

// Snapshot creates a point-in-time snapshot of metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		ShiftOps:            m.ShiftOps.Load(),
		LegacyOps:           m.LegacyOps.Load(),
		MemReadOps:          m.MemReadOps.Load(),
		MemWriteOps:         m.MemWriteOps.Load(),
		StateOps:            m.StateOps.Load(),
		LockOps:             m.LockOps.Load(),
		PacketsSent:         m.PacketsSent.Load(),
		PacketsReceived:     m.PacketsReceived.Load(),
		BytesSent:           m.BytesSent.Load(),
		BytesReceived:       m.BytesReceived.Load(),
		ProtocolErrors:      m.ProtocolErrors.Load(),
		HandlerErrors:       m.HandlerErrors.Load(),
		DescriptorErrors:    m.DescriptorErrors.Load(),
		ConnectionsAccepted: m.ConnectionsAccepted.Load(),
		ConnectionsActive:   m.ConnectionsActive.Load(),
	}

	snap.TotalOps = snap.ShiftOps + snap.LegacyOps + snap.MemReadOps + snap.MemWriteOps + snap.StateOps + snap.LockOps

	totalLatencyNs := m.TotalLatencyNs.Load()
	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / opCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile (0.0-1.0)
// using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset resets all metrics counters (useful for testing).
func (m *Metrics) Reset() {
	m.ShiftOps.Store(0)
	m.LegacyOps.Store(0)
	m.MemReadOps.Store(0)
	m.MemWriteOps.Store(0)
	m.StateOps.Store(0)
	m.LockOps.Store(0)
	m.PacketsSent.Store(0)
	m.PacketsReceived.Store(0)
	m.BytesSent.Store(0)
	m.BytesReceived.Store(0)
	m.ProtocolErrors.Store(0)
	m.HandlerErrors.Store(0)
	m.DescriptorErrors.Store(0)
	m.ConnectionsAccepted.Store(0)
	m.ConnectionsActive.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer allows pluggable metrics collection.
type Observer interface {
	ObserveVerb(verb string, latencyNs uint64, success bool)
	ObservePacketSent(bytes uint64)
	ObservePacketReceived(bytes uint64)
	ObserveProtocolError()
}

// NoOpObserver is a no-op implementation of Observer.
type NoOpObserver struct{}

func (NoOpObserver) ObserveVerb(string, uint64, bool) {}
func (NoOpObserver) ObservePacketSent(uint64)         {}
func (NoOpObserver) ObservePacketReceived(uint64)     {}
func (NoOpObserver) ObserveProtocolError()            {}

// MetricsObserver implements Observer using the built-in Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given metrics.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveVerb(verb string, latencyNs uint64, success bool) {
	o.metrics.RecordVerb(verb, latencyNs, success)
}

func (o *MetricsObserver) ObservePacketSent(bytes uint64) {
	o.metrics.RecordPacketSent(bytes)
}

func (o *MetricsObserver) ObservePacketReceived(bytes uint64) {
	o.metrics.RecordPacketReceived(bytes)
}

func (o *MetricsObserver) ObserveProtocolError() {
	o.metrics.RecordProtocolError()
}

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
