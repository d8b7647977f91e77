package orderbook

import (
	"testing"

	"github.com/BullionBear/sequex-ingest/internal/market"
)

func levels(pairs ...[2]string) []market.PriceLevel {
	out := make([]market.PriceLevel, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, market.PriceLevel{Price: p[0], Quantity: p[1]})
	}
	return out
}

func TestLoadSnapshotSkipsZeroQuantity(t *testing.T) {
	b := NewBook("BTCUSDT", 1000)
	if err := b.LoadSnapshot(levels([2]string{"10", "1"}, [2]string{"9", "0"}), levels([2]string{"11", "1"})); err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	bids, asks := b.Sizes()
	if bids != 1 || asks != 1 {
		t.Fatalf("sizes = (%d,%d), want (1,1)", bids, asks)
	}
}

func TestZeroQtyDeletionIsIdempotent(t *testing.T) {
	b := NewBook("BTCUSDT", 1000)
	if err := b.LoadSnapshot(nil, levels([2]string{"11", "1"}, [2]string{"12", "2"})); err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if err := b.ApplyDiff(Ask, levels([2]string{"11", "0"}, [2]string{"12", "3"})); err != nil {
		t.Fatalf("ApplyDiff: %v", err)
	}
	bid, _ := b.BestBid()
	_ = bid
	ask, ok := b.BestAsk()
	if !ok || ask.Price.String() != "12" || ask.Quantity.String() != "3" {
		t.Fatalf("after first delete: best ask = %+v, ok=%v", ask, ok)
	}
	bids, asks := b.Sizes()
	if bids != 0 || asks != 1 {
		t.Fatalf("sizes after first delete = (%d,%d), want (0,1)", bids, asks)
	}

	// Re-applying the same zero-qty delete is a no-op.
	if err := b.ApplyDiff(Ask, levels([2]string{"11", "0"})); err != nil {
		t.Fatalf("ApplyDiff idempotent: %v", err)
	}
	bids, asks = b.Sizes()
	if bids != 0 || asks != 1 {
		t.Fatalf("sizes after idempotent delete = (%d,%d), want (0,1)", bids, asks)
	}
}

func TestMaxDepthTrimRemovesWorstNotInserted(t *testing.T) {
	b := NewBook("BTCUSDT", 2)
	if err := b.LoadSnapshot(levels([2]string{"10", "1"}, [2]string{"9", "1"}), nil); err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	// Insert a third, higher bid: expect the lowest-priced bid (9) dropped.
	if err := b.ApplyDiff(Bid, levels([2]string{"11", "1"})); err != nil {
		t.Fatalf("ApplyDiff: %v", err)
	}
	bids, _ := b.Sizes()
	if bids != 2 {
		t.Fatalf("bids size = %d, want 2", bids)
	}
	best, _ := b.BestBid()
	if best.Price.String() != "11" {
		t.Fatalf("best bid = %s, want 11", best.Price.String())
	}
	top := b.TopLevels(Bid, 10)
	for _, lvl := range top {
		if lvl.Price == "9" {
			t.Fatalf("expected 9 to be trimmed, found in top levels: %+v", top)
		}
	}
}

func TestNoCrossedBook(t *testing.T) {
	b := NewBook("BTCUSDT", 1000)
	if err := b.LoadSnapshot(levels([2]string{"10", "1"}), levels([2]string{"11", "1"})); err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if b.Crossed() {
		t.Fatalf("book should not be crossed")
	}
}

func TestTopLevelsOrdering(t *testing.T) {
	b := NewBook("BTCUSDT", 1000)
	if err := b.LoadSnapshot(
		levels([2]string{"10", "1"}, [2]string{"9", "1"}, [2]string{"11", "1"}),
		levels([2]string{"12", "1"}, [2]string{"14", "1"}, [2]string{"13", "1"}),
	); err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}

	bidPrices := []string{}
	for _, lvl := range b.TopLevels(Bid, 10) {
		bidPrices = append(bidPrices, lvl.Price)
	}
	want := []string{"11", "10", "9"}
	for i, p := range want {
		if bidPrices[i] != p {
			t.Fatalf("bid order = %v, want descending %v", bidPrices, want)
		}
	}

	askPrices := []string{}
	for _, lvl := range b.TopLevels(Ask, 10) {
		askPrices = append(askPrices, lvl.Price)
	}
	wantAsk := []string{"12", "13", "14"}
	for i, p := range wantAsk {
		if askPrices[i] != p {
			t.Fatalf("ask order = %v, want ascending %v", askPrices, wantAsk)
		}
	}
}
