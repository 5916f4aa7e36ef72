package feed

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
)

// pollStep scripts one Do outcome for fakeDoer.
type pollStep struct {
	status int
	body   string
	err    error
}

// fakeDoer replays a fixed script of responses, then repeats the last step.
type fakeDoer struct {
	mu    sync.Mutex
	steps []pollStep
	calls int
}

func (f *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	i := f.calls
	f.calls++
	if i >= len(f.steps) {
		i = len(f.steps) - 1
	}
	s := f.steps[i]
	f.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	return &http.Response{
		StatusCode: s.status,
		Body:       io.NopCloser(strings.NewReader(s.body)),
	}, nil
}

func (f *fakeDoer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestPollAdapter(doer HTTPDoer) (*PollAdapter, chan QuoteEvent) {
	a := NewPollAdapter(PollConfig{
		Source:           SourceMEXC,
		URL:              "http://test/ticker",
		Parse:            pipeParse,
		Interval:         time.Millisecond,
		RequestTimeout:   time.Second,
		FailureThreshold: 5,
		Client:           doer,
	}, newTestLogger())
	events := make(chan QuoteEvent, 64)
	return a, events
}

func TestPollAdapter_EmitsQuoteFrom200(t *testing.T) {
	doer := &fakeDoer{steps: []pollStep{{status: 200, body: "100|101"}}}
	a, events := newTestPollAdapter(doer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go a.Run(ctx, func(ev QuoteEvent) { events <- ev })

	select {
	case ev := <-events:
		if ev.Source != SourceMEXC {
			t.Fatalf("unexpected source %s", ev.Source)
		}
		if !ev.Bid.Equal(d("100")) || !ev.Ask.Equal(d("101")) {
			t.Fatalf("unexpected quote %s/%s", ev.Bid, ev.Ask)
		}
		if ev.ReceiveLatency < 0 {
			t.Fatalf("negative latency %v", ev.ReceiveLatency)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for polled quote")
	}
}

func TestPollAdapter_FailsAfterConsecutiveTransportErrors(t *testing.T) {
	doer := &fakeDoer{steps: []pollStep{{err: errors.New("connection refused")}}}
	a, _ := newTestPollAdapter(doer)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := a.Run(ctx, func(QuoteEvent) {})
	if !errors.Is(err, ErrSourceFailed) {
		t.Fatalf("expected ErrSourceFailed, got %v", err)
	}
	if got := doer.callCount(); got != 5 {
		t.Fatalf("expected exactly 5 polls before giving up, got %d", got)
	}
}

func TestPollAdapter_Non200CountsTowardThreshold(t *testing.T) {
	doer := &fakeDoer{steps: []pollStep{{status: 503, body: "unavailable"}}}
	a, _ := newTestPollAdapter(doer)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := a.Run(ctx, func(QuoteEvent) {})
	if !errors.Is(err, ErrSourceFailed) {
		t.Fatalf("expected ErrSourceFailed after repeated 503s, got %v", err)
	}
}

func TestPollAdapter_SuccessResetsFailureCount(t *testing.T) {
	// Four failures, one success, four more failures: never reaches five
	// in a row, so the adapter must still be running when we cancel.
	steps := []pollStep{
		{err: errors.New("reset")}, {err: errors.New("reset")},
		{err: errors.New("reset")}, {err: errors.New("reset")},
		{status: 200, body: "100|101"},
		{err: errors.New("reset")}, {err: errors.New("reset")},
		{err: errors.New("reset")}, {err: errors.New("reset")},
		{status: 200, body: "100|101"},
	}
	doer := &fakeDoer{steps: steps}
	a, events := newTestPollAdapter(doer)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx, func(ev QuoteEvent) { events <- ev }) }()

	for i := 0; i < 2; i++ {
		select {
		case <-events:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for success %d", i)
		}
	}
	cancel()

	if err := <-errCh; errors.Is(err, ErrSourceFailed) {
		t.Fatal("adapter failed despite interleaved successes")
	}
}

func TestPollAdapter_MalformedBodyDroppedWithoutFailing(t *testing.T) {
	// Well past the threshold in malformed responses, then a good one.
	steps := make([]pollStep, 0, 9)
	for i := 0; i < 8; i++ {
		steps = append(steps, pollStep{status: 200, body: "not json"})
	}
	steps = append(steps, pollStep{status: 200, body: "100|101"})
	doer := &fakeDoer{steps: steps}
	a, events := newTestPollAdapter(doer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx, func(ev QuoteEvent) { events <- ev }) }()

	select {
	case <-events:
	case err := <-errCh:
		t.Fatalf("adapter exited on malformed bodies: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the eventual good quote")
	}
	if a.Dropped() == 0 {
		t.Fatal("malformed bodies were not counted as dropped")
	}
}

func TestPollAdapter_CancelStopsPolling(t *testing.T) {
	doer := &fakeDoer{steps: []pollStep{{status: 200, body: "100|101"}}}
	a, _ := newTestPollAdapter(doer)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx, func(QuoteEvent) {}) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("adapter did not stop after cancellation")
	}
}
