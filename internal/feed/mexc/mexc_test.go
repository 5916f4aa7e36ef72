package mexc

import (
	"errors"
	"testing"

	"github.com/crossfeed-labs/crossfeed/internal/feed"
)

func TestParse_BookTicker(t *testing.T) {
	raw := []byte(`{"symbol":"BTCUSDT","bidPrice":"67410.01","bidQty":"2.1","askPrice":"67411.73","askQty":"0.4"}`)
	pair, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if pair.Bid.String() != "67410.01" || pair.Ask.String() != "67411.73" {
		t.Fatalf("unexpected quote %s/%s", pair.Bid, pair.Ask)
	}
}

func TestParse_MissingSidesIsNoQuote(t *testing.T) {
	if _, err := Parse([]byte(`{"symbol":"BTCUSDT"}`)); !errors.Is(err, feed.ErrNoQuote) {
		t.Fatalf("expected ErrNoQuote, got %v", err)
	}
}

func TestParse_RejectsGarbage(t *testing.T) {
	for _, raw := range []string{"", "<html>rate limited</html>", `{"bidPrice":"abc","askPrice":"67411"}`} {
		if _, err := Parse([]byte(raw)); err == nil {
			t.Errorf("parse accepted %q", raw)
		}
	}
}
