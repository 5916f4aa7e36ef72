// Package binance normalises the Binance spot bookTicker stream into
// unified QuoteEvents.
package binance

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/crossfeed-labs/crossfeed/internal/feed"
)

// DefaultURL streams the BTC/USDT best bid/ask. The channel is encoded in
// the URL path, so no subscribe payload is needed.
const DefaultURL = "wss://stream.binance.com:9443/ws/btcusdt@bookTicker"

// bookTicker is the raw stream payload. Binance sends prices as strings.
type bookTicker struct {
	Bid string `json:"b"`
	Ask string `json:"a"`
}

// New builds the streaming adapter for Binance. Source, URL, subscribe
// payload, and parser are fixed; the remaining StreamConfig fields come
// from the caller.
func New(cfg feed.StreamConfig, log *logrus.Logger) *feed.StreamAdapter {
	cfg.Source = feed.SourceBinance
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	cfg.Subscribe = nil
	cfg.Parse = Parse
	return feed.NewStreamAdapter(cfg, log)
}

// Parse extracts the two-sided quote from one bookTicker message.
func Parse(raw []byte) (feed.PricePair, error) {
	var t bookTicker
	if err := json.Unmarshal(raw, &t); err != nil {
		return feed.PricePair{}, fmt.Errorf("binance: invalid JSON: %w", err)
	}
	if t.Bid == "" || t.Ask == "" {
		return feed.PricePair{}, feed.ErrNoQuote
	}

	bid, err := decimal.NewFromString(t.Bid)
	if err != nil {
		return feed.PricePair{}, fmt.Errorf("binance: bad bid %q: %w", t.Bid, err)
	}
	ask, err := decimal.NewFromString(t.Ask)
	if err != nil {
		return feed.PricePair{}, fmt.Errorf("binance: bad ask %q: %w", t.Ask, err)
	}
	return feed.PricePair{Bid: bid, Ask: ask}, nil
}
