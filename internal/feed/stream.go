package feed

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// StreamConn is the narrow connection contract a StreamAdapter needs from a
// push feed. Receive returns ErrReceiveTimeout when no message arrived
// within the bound; that leaves the connection intact and is the adapter's
// periodic cancellation check point.
type StreamConn interface {
	Receive(ctx context.Context, timeout time.Duration) ([]byte, error)
	Send(data []byte) error
	Close() error
}

// DialFunc opens a StreamConn. Injectable so tests can script connections.
type DialFunc func(ctx context.Context, url string) (StreamConn, error)

// StreamConfig holds tunable parameters for a StreamAdapter.
type StreamConfig struct {
	Source SourceID
	URL    string

	// Subscribe, when non-empty, is sent once after every (re)connect.
	Subscribe []byte

	Parse ParseFunc

	// ReceiveTimeout bounds each wait for an inbound message. Expiry is not
	// an error.
	ReceiveTimeout time.Duration

	// RetryPause is the wait between in-adapter reconnect attempts, below
	// the failure threshold. Restart backoff above the threshold belongs to
	// the supervisor, not here.
	RetryPause time.Duration

	// FailureThreshold is the number of consecutive I/O failures after
	// which Run gives up with ErrSourceFailed.
	FailureThreshold int

	// Dial defaults to DialWebSocket.
	Dial DialFunc
}

// StreamAdapter drives one push-based source: connect, subscribe, receive,
// parse, emit. Malformed messages are dropped; only connection-level
// failures count toward the threshold.
type StreamAdapter struct {
	cfg     StreamConfig
	log     *logrus.Entry
	dropped atomic.Uint64
}

func NewStreamAdapter(cfg StreamConfig, log *logrus.Logger) *StreamAdapter {
	if cfg.ReceiveTimeout <= 0 {
		cfg.ReceiveTimeout = time.Second
	}
	if cfg.RetryPause <= 0 {
		cfg.RetryPause = 500 * time.Millisecond
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Dial == nil {
		cfg.Dial = DialWebSocket
	}
	return &StreamAdapter{
		cfg: cfg,
		log: log.WithField("component", "stream").WithField("source", cfg.Source),
	}
}

func (a *StreamAdapter) Source() SourceID { return a.cfg.Source }

func (a *StreamAdapter) Mode() Status { return StatusStreaming }

// Dropped returns the count of messages discarded as malformed or crossed.
func (a *StreamAdapter) Dropped() uint64 { return a.dropped.Load() }

// Run connects and receives until ctx is cancelled or the consecutive
// failure threshold is reached. Below the threshold, connection errors are
// retried internally after RetryPause.
func (a *StreamAdapter) Run(ctx context.Context, emit EmitFunc) error {
	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := a.cfg.Dial(ctx, a.cfg.URL)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			a.log.WithError(err).WithField("consecutive", failures).Warn("connect failed")
			if failures >= a.cfg.FailureThreshold {
				return ErrSourceFailed
			}
			if !sleepCtx(ctx, a.cfg.RetryPause) {
				return ctx.Err()
			}
			continue
		}

		if len(a.cfg.Subscribe) > 0 {
			if err := conn.Send(a.cfg.Subscribe); err != nil {
				conn.Close()
				failures++
				a.log.WithError(err).WithField("consecutive", failures).Warn("subscribe failed")
				if failures >= a.cfg.FailureThreshold {
					return ErrSourceFailed
				}
				if !sleepCtx(ctx, a.cfg.RetryPause) {
					return ctx.Err()
				}
				continue
			}
		}

		err = a.receiveLoop(ctx, conn, emit, &failures)
		conn.Close()
		if err != nil {
			return err
		}

		// Read error below the threshold: pause briefly, then reconnect.
		if !sleepCtx(ctx, a.cfg.RetryPause) {
			return ctx.Err()
		}
	}
}

// receiveLoop reads until cancellation (returns ctx.Err()), a read error
// (returns nil so Run reconnects), or the failure threshold (returns
// ErrSourceFailed).
func (a *StreamAdapter) receiveLoop(ctx context.Context, conn StreamConn, emit EmitFunc, failures *int) error {
	for {
		waitStart := time.Now()
		raw, err := conn.Receive(ctx, a.cfg.ReceiveTimeout)
		switch {
		case errors.Is(err, ErrReceiveTimeout):
			// No message within the bound. Not an error; loop again.
			continue
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			*failures++
			a.log.WithError(err).WithField("consecutive", *failures).Warn("receive failed")
			if *failures >= a.cfg.FailureThreshold {
				return ErrSourceFailed
			}
			return nil
		}
		*failures = 0

		pair, perr := a.cfg.Parse(raw)
		if perr != nil {
			if !errors.Is(perr, ErrNoQuote) {
				a.dropped.Add(1)
				a.log.WithError(perr).Debug("dropping unparsable message")
			}
			continue
		}

		ev, verr := NewQuoteEvent(a.cfg.Source, pair.Bid, pair.Ask, time.Now(), time.Since(waitStart))
		if verr != nil {
			a.dropped.Add(1)
			a.log.WithFields(logrus.Fields{"bid": pair.Bid, "ask": pair.Ask}).Warn("dropping crossed quote")
			continue
		}
		emit(ev)
	}
}

// wsRead carries one pump result: a message or a terminal read error.
type wsRead struct {
	data []byte
	err  error
}

// wsConn adapts a gorilla connection to StreamConn. A pump goroutine feeds
// inbound frames into a channel so Receive can be bounded by a timeout
// without poisoning the connection's read state.
type wsConn struct {
	conn *websocket.Conn
	msgs chan wsRead
	done chan struct{}
	once sync.Once

	writeMu sync.Mutex
}

// DialWebSocket opens a WebSocket connection with TCP_NODELAY enabled.
func DialWebSocket(ctx context.Context, url string) (StreamConn, error) {
	dialer := websocket.Dialer{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			d := net.Dialer{}
			conn, err := d.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			if tc, ok := conn.(*net.TCPConn); ok {
				tc.SetNoDelay(true)
			}
			return conn, nil
		},
	}

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	wc := &wsConn{
		conn: conn,
		msgs: make(chan wsRead, 64),
		done: make(chan struct{}),
	}
	go wc.pump()
	return wc, nil
}

func (w *wsConn) pump() {
	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			select {
			case w.msgs <- wsRead{err: err}:
			case <-w.done:
			}
			return
		}
		select {
		case w.msgs <- wsRead{data: data}:
		case <-w.done:
			return
		}
	}
}

func (w *wsConn) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.C:
		return nil, ErrReceiveTimeout
	case r := <-w.msgs:
		return r.data, r.err
	}
}

func (w *wsConn) Send(data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *wsConn) Close() error {
	w.once.Do(func() { close(w.done) })
	return w.conn.Close()
}
