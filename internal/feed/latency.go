package feed

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// LatencySample is one receive-latency observation in a source's ring.
type LatencySample struct {
	Value      time.Duration
	RecordedAt time.Time
}

// latencyRing is a fixed-capacity ring of samples, oldest evicted first.
// Total samples never exceed the capacity.
type latencyRing struct {
	samples []LatencySample
	next    int
	count   int
	sum     time.Duration
}

func newLatencyRing(capacity int) *latencyRing {
	return &latencyRing{samples: make([]LatencySample, capacity)}
}

func (r *latencyRing) push(s LatencySample) {
	if r.count == len(r.samples) {
		r.sum -= r.samples[r.next].Value
	} else {
		r.count++
	}
	r.sum += s.Value
	r.samples[r.next] = s
	r.next = (r.next + 1) % len(r.samples)
}

func (r *latencyRing) mean() time.Duration {
	if r.count == 0 {
		return 0
	}
	return r.sum / time.Duration(r.count)
}

// LatencyMonitorConfig holds tunable parameters for the LatencyMonitor.
type LatencyMonitorConfig struct {
	// Capacity is the per-source ring size.
	Capacity int
	// MinSamples is how many samples a ring must hold before spike
	// detection activates.
	MinSamples int
	// SpikeMultiplier: a sample strictly above mean × multiplier is a spike.
	SpikeMultiplier float64
}

// DefaultLatencyMonitorConfig returns production defaults.
func DefaultLatencyMonitorConfig() LatencyMonitorConfig {
	return LatencyMonitorConfig{
		Capacity:        100,
		MinSamples:      10,
		SpikeMultiplier: 3,
	}
}

// LatencyMonitor keeps a bounded receive-latency history per source and
// flags samples far above the source's running mean. Advisory only: it
// takes no action beyond notifying.
type LatencyMonitor struct {
	cfg      LatencyMonitorConfig
	notifier Notifier
	log      *logrus.Entry

	mu    sync.Mutex
	rings map[SourceID]*latencyRing

	nowFunc func() time.Time
}

func NewLatencyMonitor(cfg LatencyMonitorConfig, notifier Notifier, log *logrus.Logger) *LatencyMonitor {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 100
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 10
	}
	if cfg.SpikeMultiplier <= 0 {
		cfg.SpikeMultiplier = 3
	}
	return &LatencyMonitor{
		cfg:      cfg,
		notifier: notifier,
		log:      log.WithField("component", "latency"),
		rings:    make(map[SourceID]*latencyRing),
		nowFunc:  time.Now,
	}
}

// Run consumes QuoteEvents from the feed until ctx is cancelled.
func (m *LatencyMonitor) Run(ctx context.Context, feed <-chan QuoteEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-feed:
			if !ok {
				return
			}
			m.Record(ev.Source, ev.ReceiveLatency)
		}
	}
}

// Record appends one sample. The spike check runs against the mean of the
// samples already in the ring, before the new sample is added, and only
// once the ring holds at least MinSamples.
func (m *LatencyMonitor) Record(src SourceID, value time.Duration) {
	now := m.nowFunc()

	m.mu.Lock()
	r, ok := m.rings[src]
	if !ok {
		r = newLatencyRing(m.cfg.Capacity)
		m.rings[src] = r
	}

	var anomaly *LatencyAnomaly
	if r.count >= m.cfg.MinSamples {
		mean := r.mean()
		if mean > 0 && float64(value) > float64(mean)*m.cfg.SpikeMultiplier {
			anomaly = &LatencyAnomaly{
				ID:     uuid.New(),
				Source: src,
				Sample: value,
				Mean:   mean,
				At:     now,
			}
		}
	}
	r.push(LatencySample{Value: value, RecordedAt: now})
	m.mu.Unlock()

	if anomaly != nil {
		m.notifier.NotifyLatency(*anomaly)
	}
}

// Mean returns the current running mean for a source, false if the source
// has no samples yet.
func (m *LatencyMonitor) Mean(src SourceID) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rings[src]
	if !ok || r.count == 0 {
		return 0, false
	}
	return r.mean(), true
}
