// Package kucoin normalises the KuCoin level-1 orderbook REST endpoint into
// unified QuoteEvents.
package kucoin

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/crossfeed-labs/crossfeed/internal/feed"
)

const DefaultURL = "https://api.kucoin.com/api/v1/market/orderbook/level1?symbol=BTC-USDT"

// okCode is KuCoin's in-band success code; HTTP status alone is not enough.
const okCode = "200000"

// envelope is the raw response body. Every KuCoin REST response wraps its
// payload in a code/data envelope.
type envelope struct {
	Code string `json:"code"`
	Data struct {
		BestBid string `json:"bestBid"`
		BestAsk string `json:"bestAsk"`
	} `json:"data"`
}

// New builds the polling adapter for KuCoin.
func New(cfg feed.PollConfig, log *logrus.Logger) *feed.PollAdapter {
	cfg.Source = feed.SourceKuCoin
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	cfg.Parse = Parse
	return feed.NewPollAdapter(cfg, log)
}

// Parse extracts the two-sided quote from one level-1 response body.
func Parse(raw []byte) (feed.PricePair, error) {
	var e envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return feed.PricePair{}, fmt.Errorf("kucoin: invalid JSON: %w", err)
	}
	if e.Code != okCode {
		return feed.PricePair{}, fmt.Errorf("kucoin: error code %q", e.Code)
	}
	if e.Data.BestBid == "" || e.Data.BestAsk == "" {
		return feed.PricePair{}, feed.ErrNoQuote
	}

	bid, err := decimal.NewFromString(e.Data.BestBid)
	if err != nil {
		return feed.PricePair{}, fmt.Errorf("kucoin: bad bid %q: %w", e.Data.BestBid, err)
	}
	ask, err := decimal.NewFromString(e.Data.BestAsk)
	if err != nil {
		return feed.PricePair{}, fmt.Errorf("kucoin: bad ask %q: %w", e.Data.BestAsk, err)
	}
	return feed.PricePair{Bid: bid, Ask: ask}, nil
}
