package feed

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SourceID identifies a market-data source.
type SourceID string

const (
	SourceBinance  SourceID = "binance"
	SourceCoinbase SourceID = "coinbase"
	SourceKuCoin   SourceID = "kucoin"
	SourceMEXC     SourceID = "mexc"
)

// Status is the connection state of a source adapter.
type Status int32

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusStreaming
	StatusPolling
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusStreaming:
		return "streaming"
	case StatusPolling:
		return "polling"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Connected reports whether the adapter currently holds a live feed.
func (s Status) Connected() bool {
	return s == StatusStreaming || s == StatusPolling
}

// Sentinel errors shared across the feed package.
var (
	// ErrCrossedQuote rejects a single source reporting bid > ask.
	ErrCrossedQuote = errors.New("feed: bid exceeds ask")

	// ErrSourceFailed is returned by an adapter once its consecutive
	// I/O-failure threshold is reached. The supervisor decides what happens
	// next; the adapter itself never retries past the threshold.
	ErrSourceFailed = errors.New("feed: consecutive failure threshold reached")

	// ErrNoQuote marks a well-formed message that carries no two-sided quote
	// (subscription acks, heartbeats, one-sided books).
	ErrNoQuote = errors.New("feed: message carries no two-sided quote")

	// ErrReceiveTimeout is returned by StreamConn.Receive when no message
	// arrived within the bound. It is not a connection failure.
	ErrReceiveTimeout = errors.New("feed: receive timed out")
)

// PricePair is the raw two-sided quote a parser extracts from one message.
type PricePair struct {
	Bid decimal.Decimal
	Ask decimal.Decimal
}

// QuoteEvent is one normalised best bid/ask observation from a single
// source. Immutable once constructed; build it through NewQuoteEvent so a
// crossed quote can never enter the pipeline.
type QuoteEvent struct {
	Source         SourceID
	Bid            decimal.Decimal
	Ask            decimal.Decimal
	ObservedAt     time.Time
	ReceiveLatency time.Duration
}

// NewQuoteEvent validates and builds a QuoteEvent. A bid above the ask is a
// single-source data corruption and returns ErrCrossedQuote.
func NewQuoteEvent(src SourceID, bid, ask decimal.Decimal, observedAt time.Time, latency time.Duration) (QuoteEvent, error) {
	if bid.GreaterThan(ask) {
		return QuoteEvent{}, ErrCrossedQuote
	}
	return QuoteEvent{
		Source:         src,
		Bid:            bid,
		Ask:            ask,
		ObservedAt:     observedAt,
		ReceiveLatency: latency,
	}, nil
}

// SourceState is the supervisor-owned record for one source. It is mutated
// only on adapter status transitions and read through copy snapshots.
type SourceState struct {
	Source              SourceID
	Status              Status
	LastEvent           *QuoteEvent
	ConsecutiveFailures int
	LastSuccessAt       time.Time
}

// BookLevel names one side of the consolidated view: the winning price and
// the source it came from.
type BookLevel struct {
	Source SourceID
	Price  decimal.Decimal
}

// ConsolidatedBook is the merged best bid/ask across all currently trusted
// sources. It is a derived view, recomputed per event and never persisted
// as state of record. Spread is BestAsk − BestBid, so a crossed book has a
// negative spread.
type ConsolidatedBook struct {
	BestBid      BookLevel
	BestAsk      BookLevel
	Spread       decimal.Decimal
	StaleSources []SourceID
	ComputedAt   time.Time
}

// ArbitrageOpportunity is emitted when the consolidated book crosses by
// more than the configured minimum profit. Emitted once per recomputation
// at most, never stored.
type ArbitrageOpportunity struct {
	ID         uuid.UUID
	BuySource  SourceID
	SellSource SourceID
	BuyPrice   decimal.Decimal
	SellPrice  decimal.Decimal
	Profit     decimal.Decimal
	DetectedAt time.Time
}

// LatencyAnomaly flags a receive-latency sample far above a source's recent
// average. Purely advisory.
type LatencyAnomaly struct {
	ID     uuid.UUID
	Source SourceID
	Sample time.Duration
	Mean   time.Duration
	At     time.Time
}

// Freshness classifies how much a source's last quote can be trusted.
type Freshness int

const (
	// Dead: adapter failed or disconnected, or never produced an event.
	Dead Freshness = iota
	// Stale: adapter connected but the last event is older than the window.
	Stale
	// Fresh: last event within the staleness window.
	Fresh
)

func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}
