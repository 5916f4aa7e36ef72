package feed

import "time"

// StalenessTracker classifies sources by the age of their most recent
// event. Stale-but-connected sources stay in the consolidated view with a
// warning annotation; only Dead sources are excluded, because stale data is
// better than silent gaps for slower strategies.
type StalenessTracker struct {
	window  time.Duration
	nowFunc func() time.Time // injectable clock for testing
}

func NewStalenessTracker(window time.Duration) *StalenessTracker {
	if window <= 0 {
		window = 2 * time.Second
	}
	return &StalenessTracker{
		window:  window,
		nowFunc: time.Now,
	}
}

// Classify maps a SourceState snapshot to a Freshness class. A source never
// reverts to Fresh without a new event: classification depends only on the
// last success time and connection status.
func (t *StalenessTracker) Classify(st SourceState) Freshness {
	if !st.Status.Connected() || st.LastSuccessAt.IsZero() {
		return Dead
	}
	if t.nowFunc().Sub(st.LastSuccessAt) <= t.window {
		return Fresh
	}
	return Stale
}
