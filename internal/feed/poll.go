package feed

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// maxPollBody bounds how much of a poll response is read. Ticker payloads
// are a few hundred bytes; anything near this limit is garbage.
const maxPollBody = 1 << 20

// HTTPDoer is the narrow HTTP contract a PollAdapter needs. Satisfied by
// *http.Client in production and by mocks in tests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// PollConfig holds tunable parameters for a PollAdapter.
type PollConfig struct {
	Source SourceID
	URL    string
	Parse  ParseFunc

	// Interval is the completion-to-next-start spacing between polls, so
	// slow responses never cause overlapping request bursts.
	Interval time.Duration

	// RequestTimeout bounds each individual request.
	RequestTimeout time.Duration

	// FailureThreshold is the number of consecutive transport failures
	// (errors and non-200s) after which Run gives up with ErrSourceFailed.
	FailureThreshold int

	Client HTTPDoer
}

// PollAdapter drives one poll-based source: one GET per interval, parse
// exactly one quote from a 200 response. Non-200 statuses and transport
// errors count toward the failure threshold; malformed bodies are dropped
// without counting. A rate limiter additionally caps the start-to-start
// request rate at one per interval regardless of control flow.
type PollAdapter struct {
	cfg     PollConfig
	limiter *rate.Limiter
	log     *logrus.Entry
	dropped atomic.Uint64
}

func NewPollAdapter(cfg PollConfig, log *logrus.Logger) *PollAdapter {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 2 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	return &PollAdapter{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(cfg.Interval), 1),
		log:     log.WithField("component", "poll").WithField("source", cfg.Source),
	}
}

func (a *PollAdapter) Source() SourceID { return a.cfg.Source }

func (a *PollAdapter) Mode() Status { return StatusPolling }

// Dropped returns the count of responses discarded as malformed or crossed.
func (a *PollAdapter) Dropped() uint64 { return a.dropped.Load() }

// Run polls until ctx is cancelled or the consecutive transport-failure
// threshold is reached.
func (a *PollAdapter) Run(ctx context.Context, emit EmitFunc) error {
	failures := 0
	for {
		if err := a.limiter.Wait(ctx); err != nil {
			return ctx.Err()
		}

		a.pollOnce(ctx, emit, &failures)
		if failures >= a.cfg.FailureThreshold {
			return ErrSourceFailed
		}

		if !sleepCtx(ctx, a.cfg.Interval) {
			return ctx.Err()
		}
	}
}

func (a *PollAdapter) pollOnce(ctx context.Context, emit EmitFunc, failures *int) {
	reqCtx, cancel := context.WithTimeout(ctx, a.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, a.cfg.URL, nil)
	if err != nil {
		*failures++
		a.log.WithError(err).Warn("building request failed")
		return
	}

	start := time.Now()
	resp, err := a.cfg.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		*failures++
		a.log.WithError(err).WithField("consecutive", *failures).Warn("poll request failed")
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPollBody))
	latency := time.Since(start)
	if err != nil {
		*failures++
		a.log.WithError(err).WithField("consecutive", *failures).Warn("reading poll response failed")
		return
	}

	if resp.StatusCode != http.StatusOK {
		*failures++
		a.log.WithFields(logrus.Fields{
			"status":      resp.StatusCode,
			"consecutive": *failures,
		}).Warn("poll returned non-200, skipping")
		return
	}
	*failures = 0

	pair, perr := a.cfg.Parse(body)
	if perr != nil {
		if !errors.Is(perr, ErrNoQuote) {
			a.dropped.Add(1)
			a.log.WithError(perr).Debug("dropping unparsable poll body")
		}
		return
	}

	ev, verr := NewQuoteEvent(a.cfg.Source, pair.Bid, pair.Ask, time.Now(), latency)
	if verr != nil {
		a.dropped.Add(1)
		a.log.WithFields(logrus.Fields{"bid": pair.Bid, "ask": pair.Ask}).Warn("dropping crossed quote")
		return
	}
	emit(ev)
}
