package feed

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// StateProvider supplies SourceState snapshots. Satisfied by *Supervisor in
// production and by mocks in tests.
type StateProvider interface {
	Snapshot() map[SourceID]SourceState
}

// QuoteAggregator maintains the per-source latest-quote table and derives
// the consolidated best bid/ask view from it. Dead sources are excluded;
// Stale sources are included but flagged. When the consolidated book
// crosses by more than the minimum profit, exactly one
// ArbitrageOpportunity is emitted per recomputation.
type QuoteAggregator struct {
	states    StateProvider
	tracker   *StalenessTracker
	notifier  Notifier
	minProfit decimal.Decimal
	log       *logrus.Entry

	mu     sync.RWMutex
	latest map[SourceID]QuoteEvent

	books   chan ConsolidatedBook
	nowFunc func() time.Time
}

func NewQuoteAggregator(states StateProvider, tracker *StalenessTracker, notifier Notifier, minProfit decimal.Decimal, log *logrus.Logger) *QuoteAggregator {
	return &QuoteAggregator{
		states:    states,
		tracker:   tracker,
		notifier:  notifier,
		minProfit: minProfit,
		log:       log.WithField("component", "aggregator"),
		latest:    make(map[SourceID]QuoteEvent),
		books:     make(chan ConsolidatedBook, 256),
		nowFunc:   time.Now,
	}
}

// Books returns the channel of recomputed consolidated books, one per
// applied event that produced a two-sided view.
func (qa *QuoteAggregator) Books() <-chan ConsolidatedBook {
	return qa.books
}

// Run consumes QuoteEvents from the feed until ctx is cancelled.
func (qa *QuoteAggregator) Run(ctx context.Context, feed <-chan QuoteEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-feed:
			if !ok {
				return
			}
			qa.Apply(ev)
		}
	}
}

// Apply updates the latest-quote table with one event, recomputes the
// consolidated book, and checks it for a crossed-book opportunity.
func (qa *QuoteAggregator) Apply(ev QuoteEvent) {
	qa.mu.Lock()
	qa.latest[ev.Source] = ev
	qa.mu.Unlock()

	book, ok := qa.Book()
	if !ok {
		return
	}

	qa.checkArbitrage(book)

	select {
	case qa.books <- book:
	default:
		// Books channel full — drop to avoid blocking the hot path.
	}
}

// Book recomputes the consolidated view from the current table. It is a
// pure function of the table and the source states: recomputing without
// new events yields an identical book.
func (qa *QuoteAggregator) Book() (ConsolidatedBook, bool) {
	states := qa.states.Snapshot()

	qa.mu.RLock()
	defer qa.mu.RUnlock()

	var (
		book     ConsolidatedBook
		haveBid  bool
		haveAsk  bool
		stale    []SourceID
	)

	for src, ev := range qa.latest {
		switch qa.tracker.Classify(states[src]) {
		case Dead:
			continue
		case Stale:
			stale = append(stale, src)
		}

		if !haveBid || ev.Bid.GreaterThan(book.BestBid.Price) ||
			(ev.Bid.Equal(book.BestBid.Price) && src < book.BestBid.Source) {
			book.BestBid = BookLevel{Source: src, Price: ev.Bid}
			haveBid = true
		}
		if !haveAsk || ev.Ask.LessThan(book.BestAsk.Price) ||
			(ev.Ask.Equal(book.BestAsk.Price) && src < book.BestAsk.Source) {
			book.BestAsk = BookLevel{Source: src, Price: ev.Ask}
			haveAsk = true
		}
	}

	if !haveBid || !haveAsk {
		return ConsolidatedBook{}, false
	}

	sort.Slice(stale, func(i, j int) bool { return stale[i] < stale[j] })
	book.StaleSources = stale
	book.Spread = book.BestAsk.Price.Sub(book.BestBid.Price)
	book.ComputedAt = qa.nowFunc()
	return book, true
}

// checkArbitrage emits at most one opportunity for a crossed book whose
// profit clears the minimum threshold.
func (qa *QuoteAggregator) checkArbitrage(book ConsolidatedBook) {
	if !book.BestBid.Price.GreaterThan(book.BestAsk.Price) {
		return
	}
	profit := book.BestBid.Price.Sub(book.BestAsk.Price)
	if !profit.GreaterThan(qa.minProfit) {
		return
	}

	qa.notifier.NotifyArbitrage(ArbitrageOpportunity{
		ID:         uuid.New(),
		BuySource:  book.BestAsk.Source,
		SellSource: book.BestBid.Source,
		BuyPrice:   book.BestAsk.Price,
		SellPrice:  book.BestBid.Price,
		Profit:     profit,
		DetectedAt: book.ComputedAt,
	})
}
