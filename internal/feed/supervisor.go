package feed

import (
	"context"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/sirupsen/logrus"
)

// SupervisorConfig holds restart and shutdown policy for the Supervisor.
type SupervisorConfig struct {
	// BackoffBase is the first restart delay after a source fails; each
	// consecutive failure doubles it up to BackoffCap. Jitter is applied.
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// ShutdownGrace is how long adapters get to exit after cancellation
	// before being abandoned and reported as a shutdown anomaly.
	ShutdownGrace time.Duration
}

// DefaultSupervisorConfig returns production defaults.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		BackoffBase:   time.Second,
		BackoffCap:    60 * time.Second,
		ShutdownGrace: 5 * time.Second,
	}
}

// Supervisor owns one goroutine per configured source adapter and isolates
// their failures: an adapter that returns ErrSourceFailed is restarted
// after an exponential backoff with jitter, reset to base by the first
// successful event of the new incarnation. It also owns every SourceState
// record; nothing else mutates them.
type Supervisor struct {
	cfg      SupervisorConfig
	hub      *Hub
	notifier Notifier
	log      *logrus.Entry

	mu       sync.RWMutex
	states   map[SourceID]*SourceState
	adapters []Adapter
}

func NewSupervisor(cfg SupervisorConfig, hub *Hub, notifier Notifier, log *logrus.Logger) *Supervisor {
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 60 * time.Second
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 5 * time.Second
	}
	return &Supervisor{
		cfg:      cfg,
		hub:      hub,
		notifier: notifier,
		log:      log.WithField("component", "supervisor"),
		states:   make(map[SourceID]*SourceState),
	}
}

// Add registers an adapter. Must be called before Run.
func (s *Supervisor) Add(a Adapter) {
	s.mu.Lock()
	s.adapters = append(s.adapters, a)
	s.states[a.Source()] = &SourceState{Source: a.Source(), Status: StatusDisconnected}
	s.mu.Unlock()
}

// Snapshot returns a copy of every SourceState for external inspection.
func (s *Supervisor) Snapshot() map[SourceID]SourceState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[SourceID]SourceState, len(s.states))
	for src, st := range s.states {
		cp := *st
		if st.LastEvent != nil {
			ev := *st.LastEvent
			cp.LastEvent = &ev
		}
		out[src] = cp
	}
	return out
}

// Run supervises all registered adapters until ctx is cancelled, then waits
// up to the shutdown grace period for them to exit. Adapters still running
// after the grace period are abandoned and reported through the Notifier;
// that is non-fatal and Run still returns.
func (s *Supervisor) Run(ctx context.Context) {
	s.mu.RLock()
	adapters := make([]Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	s.mu.RUnlock()

	done := make(map[SourceID]chan struct{}, len(adapters))
	for _, a := range adapters {
		d := make(chan struct{})
		done[a.Source()] = d
		go func(a Adapter, d chan struct{}) {
			defer close(d)
			s.supervise(ctx, a)
		}(a, d)
	}

	<-ctx.Done()

	grace, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
	defer cancel()
	for src, d := range done {
		select {
		case <-d:
		case <-grace.Done():
			// Abandoned; the runtime reclaims the goroutine at process exit.
			s.notifier.NotifyShutdownAnomaly(src)
		}
	}
}

// supervise drives one adapter's restart cycle.
func (s *Supervisor) supervise(ctx context.Context, a Adapter) {
	src := a.Source()
	b := &backoff.Backoff{
		Min:    s.cfg.BackoffBase,
		Max:    s.cfg.BackoffCap,
		Factor: 2,
		Jitter: true,
	}

	for {
		s.setStatus(src, StatusConnecting)

		err := a.Run(ctx, s.emitFunc(a, b))
		if ctx.Err() != nil {
			s.setStatus(src, StatusDisconnected)
			return
		}

		s.mu.Lock()
		st := s.states[src]
		st.Status = StatusFailed
		st.ConsecutiveFailures++
		s.mu.Unlock()

		delay := b.Duration()
		s.log.WithError(err).WithFields(logrus.Fields{
			"source":  src,
			"restart": delay.String(),
		}).Warn("source failed, scheduling restart")

		if !sleepCtx(ctx, delay) {
			return
		}

		// Fresh state for the new incarnation. The failure count carries
		// over; only a successful event clears it.
		s.mu.Lock()
		failures := s.states[src].ConsecutiveFailures
		s.states[src] = &SourceState{
			Source:              src,
			Status:              StatusDisconnected,
			ConsecutiveFailures: failures,
		}
		s.mu.Unlock()
	}
}

// emitFunc wraps the hub publish with state bookkeeping for one adapter
// incarnation. Called only from that adapter's goroutine, so the backoff
// needs no locking.
func (s *Supervisor) emitFunc(a Adapter, b *backoff.Backoff) EmitFunc {
	src, mode := a.Source(), a.Mode()
	return func(ev QuoteEvent) {
		s.mu.Lock()
		st := s.states[src]
		st.Status = mode
		cp := ev
		st.LastEvent = &cp
		st.LastSuccessAt = ev.ObservedAt
		st.ConsecutiveFailures = 0
		s.mu.Unlock()

		b.Reset()
		s.hub.Publish(ev)
	}
}

func (s *Supervisor) setStatus(src SourceID, status Status) {
	s.mu.Lock()
	s.states[src].Status = status
	s.mu.Unlock()
}
