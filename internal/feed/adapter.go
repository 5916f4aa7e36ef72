package feed

import (
	"context"
	"time"
)

// EmitFunc delivers one normalised QuoteEvent downstream. Implementations
// must be fast; adapters call it inline on the receive path.
type EmitFunc func(QuoteEvent)

// ParseFunc extracts a two-sided quote from one raw exchange message. It
// returns ErrNoQuote for well-formed messages that simply carry no quote
// (acks, heartbeats), or a descriptive error for malformed payloads. Either
// way the adapter drops the message without escalating.
type ParseFunc func(raw []byte) (PricePair, error)

// Adapter is one supervised market-data source. Run blocks until the
// context is cancelled (returns ctx.Err()) or the source is unrecoverable
// (returns ErrSourceFailed). It never returns nil.
type Adapter interface {
	Source() SourceID
	// Mode is the status a healthy adapter reports: StatusStreaming or
	// StatusPolling.
	Mode() Status
	Run(ctx context.Context, emit EmitFunc) error
}

// sleepCtx waits for d, returning false if ctx was cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
