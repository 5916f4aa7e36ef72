package kucoin

import (
	"errors"
	"testing"

	"github.com/crossfeed-labs/crossfeed/internal/feed"
)

func TestParse_Level1(t *testing.T) {
	raw := []byte(`{"code":"200000","data":{"time":1756204800123,"sequence":"1545896668986","price":"67413.5","size":"0.1","bestBid":"67413.4","bestBidSize":"1.5","bestAsk":"67413.9","bestAskSize":"0.7"}}`)
	pair, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if pair.Bid.String() != "67413.4" || pair.Ask.String() != "67413.9" {
		t.Fatalf("unexpected quote %s/%s", pair.Bid, pair.Ask)
	}
}

func TestParse_ErrorCodeRejected(t *testing.T) {
	raw := []byte(`{"code":"400100","msg":"symbol not exists"}`)
	if _, err := Parse(raw); err == nil {
		t.Fatal("error envelope was accepted")
	}
}

func TestParse_EmptyDataIsNoQuote(t *testing.T) {
	raw := []byte(`{"code":"200000","data":{}}`)
	if _, err := Parse(raw); !errors.Is(err, feed.ErrNoQuote) {
		t.Fatalf("expected ErrNoQuote, got %v", err)
	}
}

func TestParse_RejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte("not json")); err == nil {
		t.Fatal("parse accepted garbage")
	}
}
