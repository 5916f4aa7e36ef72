// Package mexc normalises the MEXC spot bookTicker REST endpoint into
// unified QuoteEvents.
package mexc

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/crossfeed-labs/crossfeed/internal/feed"
)

const DefaultURL = "https://api.mexc.com/api/v3/ticker/bookTicker?symbol=BTCUSDT"

// bookTicker is the raw response body. Prices are strings.
type bookTicker struct {
	BidPrice string `json:"bidPrice"`
	AskPrice string `json:"askPrice"`
}

// New builds the polling adapter for MEXC.
func New(cfg feed.PollConfig, log *logrus.Logger) *feed.PollAdapter {
	cfg.Source = feed.SourceMEXC
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	cfg.Parse = Parse
	return feed.NewPollAdapter(cfg, log)
}

// Parse extracts the two-sided quote from one bookTicker response body.
func Parse(raw []byte) (feed.PricePair, error) {
	var t bookTicker
	if err := json.Unmarshal(raw, &t); err != nil {
		return feed.PricePair{}, fmt.Errorf("mexc: invalid JSON: %w", err)
	}
	if t.BidPrice == "" || t.AskPrice == "" {
		return feed.PricePair{}, feed.ErrNoQuote
	}

	bid, err := decimal.NewFromString(t.BidPrice)
	if err != nil {
		return feed.PricePair{}, fmt.Errorf("mexc: bad bid %q: %w", t.BidPrice, err)
	}
	ask, err := decimal.NewFromString(t.AskPrice)
	if err != nil {
		return feed.PricePair{}, fmt.Errorf("mexc: bad ask %q: %w", t.AskPrice, err)
	}
	return feed.PricePair{Bid: bid, Ask: ask}, nil
}
