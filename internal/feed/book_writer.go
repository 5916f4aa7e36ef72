package feed

import (
	"context"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"
)

// RedisClient abstracts the Redis operations used by BookWriter. In
// production it is a thin wrapper over *redis.Client; in tests a mock.
type RedisClient interface {
	HSet(ctx context.Context, key string, values ...any) error
}

// bookKey is where the consolidated view is mirrored.
const bookKey = "book:consolidated"

// BookWriter mirrors the consolidated best bid/ask into Redis using the
// schema:
//
//	Key:    book:consolidated
//	Fields: bid, ask, spread, bid_src, ask_src, ts
//
// The mirror is observability only; the core never reads it back. Writes
// are non-blocking: books are buffered internally and flushed by a
// dedicated goroutine. Unchanged prices are suppressed.
type BookWriter struct {
	client RedisClient
	feed   <-chan ConsolidatedBook
	buf    chan ConsolidatedBook
	log    *logrus.Entry

	mu      sync.Mutex
	lastBid string
	lastAsk string
}

func NewBookWriter(client RedisClient, feed <-chan ConsolidatedBook, log *logrus.Logger) *BookWriter {
	return &BookWriter{
		client: client,
		feed:   feed,
		buf:    make(chan ConsolidatedBook, 1024),
		log:    log.WithField("component", "bookwriter"),
	}
}

// Run starts two goroutines: one draining the aggregator feed into an
// internal buffer so the aggregator is never blocked, one flushing the
// buffer to Redis. It blocks until ctx is cancelled.
func (bw *BookWriter) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		defer close(bw.buf)
		for {
			select {
			case <-ctx.Done():
				return
			case book, ok := <-bw.feed:
				if !ok {
					return
				}
				select {
				case bw.buf <- book:
				default:
					// Buffer full — drop to keep up.
				}
			}
		}
	}()

	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case book, ok := <-bw.buf:
				if !ok {
					return
				}
				bw.write(ctx, book)
			}
		}
	}()

	wg.Wait()
}

// write suppresses duplicates and issues one HSET.
func (bw *BookWriter) write(ctx context.Context, book ConsolidatedBook) {
	bid := book.BestBid.Price.String()
	ask := book.BestAsk.Price.String()

	bw.mu.Lock()
	if bid == bw.lastBid && ask == bw.lastAsk {
		bw.mu.Unlock()
		return
	}
	bw.lastBid, bw.lastAsk = bid, ask
	bw.mu.Unlock()

	err := bw.client.HSet(ctx, bookKey,
		"bid", bid,
		"ask", ask,
		"spread", book.Spread.String(),
		"bid_src", string(book.BestBid.Source),
		"ask_src", string(book.BestAsk.Source),
		"ts", strconv.FormatInt(book.ComputedAt.UnixMilli(), 10),
	)
	if err != nil {
		bw.log.WithError(err).Warn("mirror write failed")
	}
}
