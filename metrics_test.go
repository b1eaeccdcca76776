package xvcd

import (
	"testing"
	"time"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics()

	snap := m.Snapshot()
	if snap.TotalOps != 0 {
		t.Errorf("Expected 0 initial ops, got %d", snap.TotalOps)
	}

	m.RecordVerb("irshift:", 1_000_000, true)
	m.RecordVerb("mrd:", 2_000_000, true)
	m.RecordVerb("mwr:", 500_000, false)

	snap = m.Snapshot()

	if snap.ShiftOps != 1 {
		t.Errorf("Expected 1 shift op, got %d", snap.ShiftOps)
	}
	if snap.MemReadOps != 1 {
		t.Errorf("Expected 1 mrd op, got %d", snap.MemReadOps)
	}
	if snap.MemWriteOps != 1 {
		t.Errorf("Expected 1 mwr op, got %d", snap.MemWriteOps)
	}
	if snap.HandlerErrors != 1 {
		t.Errorf("Expected 1 handler error, got %d", snap.HandlerErrors)
	}
	if snap.TotalOps != 3 {
		t.Errorf("Expected 3 total ops, got %d", snap.TotalOps)
	}
}

func TestMetricsPackets(t *testing.T) {
	m := NewMetrics()

	m.RecordPacketSent(1032)
	m.RecordPacketSent(512)
	m.RecordPacketReceived(256)

	snap := m.Snapshot()

	if snap.PacketsSent != 2 {
		t.Errorf("Expected 2 packets sent, got %d", snap.PacketsSent)
	}
	if snap.BytesSent != 1544 {
		t.Errorf("Expected 1544 bytes sent, got %d", snap.BytesSent)
	}
	if snap.PacketsReceived != 1 {
		t.Errorf("Expected 1 packet received, got %d", snap.PacketsReceived)
	}
	if snap.BytesReceived != 256 {
		t.Errorf("Expected 256 bytes received, got %d", snap.BytesReceived)
	}
}

func TestMetricsConnections(t *testing.T) {
	m := NewMetrics()

	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()

	snap := m.Snapshot()
	if snap.ConnectionsAccepted != 2 {
		t.Errorf("Expected 2 connections accepted, got %d", snap.ConnectionsAccepted)
	}
	if snap.ConnectionsActive != 1 {
		t.Errorf("Expected 1 active connection, got %d", snap.ConnectionsActive)
	}
}

func TestMetricsLatency(t *testing.T) {
	m := NewMetrics()

	m.RecordVerb("state:", 1_000_000, true)
	m.RecordVerb("state:", 2_000_000, true)

	snap := m.Snapshot()

	expectedAvgNs := uint64(1_500_000)
	if snap.AvgLatencyNs != expectedAvgNs {
		t.Errorf("Expected avg latency %d ns, got %d ns", expectedAvgNs, snap.AvgLatencyNs)
	}
}

func TestMetricsUptime(t *testing.T) {
	m := NewMetrics()

	time.Sleep(10 * time.Millisecond)

	snap := m.Snapshot()
	if snap.UptimeNs < 10*1000000 {
		t.Errorf("Expected uptime >= 10ms, got %d ns", snap.UptimeNs)
	}

	m.Stop()
	time.Sleep(5 * time.Millisecond)

	snap2 := m.Snapshot()
	if snap2.UptimeNs > snap.UptimeNs+2*1000000 {
		t.Errorf("Uptime increased too much after stop: %d -> %d", snap.UptimeNs, snap2.UptimeNs)
	}
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()

	m.RecordVerb("irshift:", 1_000_000, true)
	m.RecordPacketSent(1024)

	snap := m.Snapshot()
	if snap.TotalOps == 0 {
		t.Error("Expected some operations before reset")
	}

	m.Reset()

	snap = m.Snapshot()
	if snap.TotalOps != 0 {
		t.Errorf("Expected 0 ops after reset, got %d", snap.TotalOps)
	}
	if snap.BytesSent != 0 {
		t.Errorf("Expected 0 bytes sent after reset, got %d", snap.BytesSent)
	}
}

func TestObserver(t *testing.T) {
	observer := &NoOpObserver{}
	observer.ObserveVerb("state:", 1_000_000, true)
	observer.ObservePacketSent(1024)
	observer.ObservePacketReceived(1024)
	observer.ObserveProtocolError()

	m := NewMetrics()
	metricsObserver := NewMetricsObserver(m)

	metricsObserver.ObserveVerb("irshift:", 1_000_000, true)
	metricsObserver.ObservePacketSent(1032)

	snap := m.Snapshot()
	if snap.ShiftOps != 1 {
		t.Errorf("Expected 1 shift op from observer, got %d", snap.ShiftOps)
	}
	if snap.PacketsSent != 1 {
		t.Errorf("Expected 1 packet sent from observer, got %d", snap.PacketsSent)
	}
	if snap.BytesSent != 1032 {
		t.Errorf("Expected 1032 bytes sent from observer, got %d", snap.BytesSent)
	}
}

func TestMetricsHistogram(t *testing.T) {
	m := NewMetrics()

	for i := 0; i < 50; i++ {
		m.RecordVerb("mrd:", 500_000, true) // 500us
	}
	for i := 0; i < 49; i++ {
		m.RecordVerb("mwr:", 5_000_000, true) // 5ms
	}
	m.RecordVerb("mwr:", 50_000_000, true) // 50ms (P99)

	snap := m.Snapshot()

	if snap.TotalOps != 100 {
		t.Errorf("Expected 100 total ops, got %d", snap.TotalOps)
	}

	if snap.LatencyP50Ns < 100_000 || snap.LatencyP50Ns > 1_000_000 {
		t.Errorf("Expected P50 in 100us-1ms range, got %d ns", snap.LatencyP50Ns)
	}

	if snap.LatencyP99Ns < 5_000_000 || snap.LatencyP99Ns > 100_000_000 {
		t.Errorf("Expected P99 in 5ms-100ms range, got %d ns", snap.LatencyP99Ns)
	}

	totalInBuckets := uint64(0)
	for i := 0; i < len(snap.LatencyHistogram); i++ {
		totalInBuckets += snap.LatencyHistogram[i]
	}
	if totalInBuckets == 0 {
		t.Error("Expected histogram buckets to be populated")
	}
}
