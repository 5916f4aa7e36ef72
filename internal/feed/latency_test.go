package feed

import (
	"testing"
	"time"
)

func newTestMonitor(capacity, minSamples int, multiplier float64) (*LatencyMonitor, *mockNotifier) {
	notifier := &mockNotifier{}
	mon := NewLatencyMonitor(LatencyMonitorConfig{
		Capacity:        capacity,
		MinSamples:      minSamples,
		SpikeMultiplier: multiplier,
	}, notifier, newTestLogger())
	return mon, notifier
}

func (m *mockNotifier) latencyCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.latencies)
}

func TestLatencyMonitor_SpikeAfterMinSamples(t *testing.T) {
	mon, notifier := newTestMonitor(100, 10, 3)

	// Ten samples averaging 50ms.
	for i := 0; i < 10; i++ {
		mon.Record(SourceBinance, 50*time.Millisecond)
	}
	if notifier.latencyCount() != 0 {
		t.Fatalf("no anomaly expected while filling the ring, got %d", notifier.latencyCount())
	}

	// Sample 11 at 200ms, above 3×50ms.
	mon.Record(SourceBinance, 200*time.Millisecond)

	if notifier.latencyCount() != 1 {
		t.Fatalf("expected exactly one anomaly, got %d", notifier.latencyCount())
	}
	an := notifier.latencies[0]
	if an.Source != SourceBinance {
		t.Fatalf("anomaly for wrong source: %s", an.Source)
	}
	if an.Sample != 200*time.Millisecond {
		t.Fatalf("expected sample 200ms, got %s", an.Sample)
	}
	if an.Mean != 50*time.Millisecond {
		t.Fatalf("expected mean 50ms, got %s", an.Mean)
	}
}

func TestLatencyMonitor_NoSpikeBelowMinSamples(t *testing.T) {
	mon, notifier := newTestMonitor(100, 10, 3)

	// Nine quiet samples, then a huge one: still below the minimum count.
	for i := 0; i < 9; i++ {
		mon.Record(SourceKuCoin, 50*time.Millisecond)
	}
	mon.Record(SourceKuCoin, 5*time.Second)

	if notifier.latencyCount() != 0 {
		t.Fatalf("expected no anomaly below min samples, got %d", notifier.latencyCount())
	}
}

func TestLatencyMonitor_NormalSampleIsSilent(t *testing.T) {
	mon, notifier := newTestMonitor(100, 10, 3)

	for i := 0; i < 20; i++ {
		mon.Record(SourceMEXC, 50*time.Millisecond)
	}
	mon.Record(SourceMEXC, 140*time.Millisecond) // below 3×50ms

	if notifier.latencyCount() != 0 {
		t.Fatalf("expected silence for a sub-threshold sample, got %d", notifier.latencyCount())
	}
}

func TestLatencyMonitor_RingEvictsOldest(t *testing.T) {
	mon, _ := newTestMonitor(5, 3, 100) // huge multiplier: no anomalies

	// Five slow samples, then five fast ones: the slow ones must be gone.
	for i := 0; i < 5; i++ {
		mon.Record(SourceCoinbase, time.Second)
	}
	for i := 0; i < 5; i++ {
		mon.Record(SourceCoinbase, 10*time.Millisecond)
	}

	mean, ok := mon.Mean(SourceCoinbase)
	if !ok {
		t.Fatal("expected a mean after recording samples")
	}
	if mean != 10*time.Millisecond {
		t.Fatalf("expected mean 10ms after eviction, got %s", mean)
	}
}

func TestLatencyMonitor_PerSourceIsolation(t *testing.T) {
	mon, notifier := newTestMonitor(100, 10, 3)

	// Binance runs hot at 500ms; coinbase at 50ms. A 200ms coinbase sample
	// is a spike for coinbase even though it is calm by binance standards.
	for i := 0; i < 10; i++ {
		mon.Record(SourceBinance, 500*time.Millisecond)
		mon.Record(SourceCoinbase, 50*time.Millisecond)
	}
	mon.Record(SourceCoinbase, 200*time.Millisecond)

	if notifier.latencyCount() != 1 {
		t.Fatalf("expected one anomaly, got %d", notifier.latencyCount())
	}
	if notifier.latencies[0].Source != SourceCoinbase {
		t.Fatalf("anomaly attributed to wrong source: %s", notifier.latencies[0].Source)
	}
}
