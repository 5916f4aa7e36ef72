// Package coinbase normalises the Coinbase Exchange ticker channel into
// unified QuoteEvents.
package coinbase

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/crossfeed-labs/crossfeed/internal/feed"
)

const (
	DefaultURL     = "wss://ws-feed.exchange.coinbase.com"
	DefaultProduct = "BTC-USD"
)

// subscribeMsg is the channel subscription sent after connect.
type subscribeMsg struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids"`
	Channels   []string `json:"channels"`
}

// ticker is the raw channel payload. Non-ticker messages (subscription
// acks, heartbeats) share the Type field.
type ticker struct {
	Type    string `json:"type"`
	BestBid string `json:"best_bid"`
	BestAsk string `json:"best_ask"`
}

// New builds the streaming adapter for Coinbase, subscribed to the ticker
// channel for the given product (DefaultProduct when empty).
func New(product string, cfg feed.StreamConfig, log *logrus.Logger) *feed.StreamAdapter {
	if product == "" {
		product = DefaultProduct
	}
	cfg.Source = feed.SourceCoinbase
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	cfg.Subscribe, _ = json.Marshal(subscribeMsg{
		Type:       "subscribe",
		ProductIDs: []string{product},
		Channels:   []string{"ticker"},
	})
	cfg.Parse = Parse
	return feed.NewStreamAdapter(cfg, log)
}

// Parse extracts the two-sided quote from one ticker message. Messages of
// any other type carry no quote.
func Parse(raw []byte) (feed.PricePair, error) {
	var t ticker
	if err := json.Unmarshal(raw, &t); err != nil {
		return feed.PricePair{}, fmt.Errorf("coinbase: invalid JSON: %w", err)
	}
	if t.Type != "ticker" || t.BestBid == "" || t.BestAsk == "" {
		return feed.PricePair{}, feed.ErrNoQuote
	}

	bid, err := decimal.NewFromString(t.BestBid)
	if err != nil {
		return feed.PricePair{}, fmt.Errorf("coinbase: bad bid %q: %w", t.BestBid, err)
	}
	ask, err := decimal.NewFromString(t.BestAsk)
	if err != nil {
		return feed.PricePair{}, fmt.Errorf("coinbase: bad ask %q: %w", t.BestAsk, err)
	}
	return feed.PricePair{Bid: bid, Ask: ask}, nil
}
