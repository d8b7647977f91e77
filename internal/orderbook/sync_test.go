package orderbook

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/BullionBear/sequex-ingest/internal/market"
)

func diffEvent(u1, u2, pu int64, bids, asks [][2]string) *market.DepthDiffEvent {
	return &market.DepthDiffEvent{
		Symbol:        "BTCUSDT",
		FirstUpdateID: u1,
		FinalUpdateID: u2,
		PrevUpdateID:  pu,
		Bids:          bids,
		Asks:          asks,
	}
}

func newTestSync() *Sync {
	return NewSync("BTCUSDT", NewBook("BTCUSDT", 1000), zerolog.Nop())
}

func TestReconcileHappyPath(t *testing.T) {
	s := newTestSync()
	s.HandleDiff(diffEvent(99, 101, 98, nil, nil))
	s.HandleDiff(diffEvent(102, 103, 101, nil, nil))

	snap := &market.DepthSnapshot{
		LastUpdateID: 100,
		Bids:         [][2]string{{"10", "1"}},
		Asks:         [][2]string{{"11", "1"}},
	}
	needsRefetch := s.HandleSnapshot(snap, nil)
	if needsRefetch {
		t.Fatalf("did not expect a refetch request")
	}
	if s.State() != StateLive {
		t.Fatalf("state = %v, want Live", s.State())
	}
	if !s.Synchronized() {
		t.Fatalf("expected synchronized = true")
	}
	if s.lastUpdateID != 103 {
		t.Fatalf("last_update_id = %d, want 103", s.lastUpdateID)
	}
	bid, ok := s.book.BestBid()
	if !ok || bid.Price.String() != "10" {
		t.Fatalf("best bid = %+v", bid)
	}
	ask, ok := s.book.BestAsk()
	if !ok || ask.Price.String() != "11" {
		t.Fatalf("best ask = %+v", ask)
	}
}

func TestReconcileStaleSnapshotTriggersRefetch(t *testing.T) {
	s := newTestSync()
	s.HandleDiff(diffEvent(60, 70, 55, nil, nil))

	snap := &market.DepthSnapshot{LastUpdateID: 50}
	needsRefetch := s.HandleSnapshot(snap, nil)
	if !needsRefetch {
		t.Fatalf("expected refetch to be requested for stale snapshot")
	}
	if s.State() != StateInitializing {
		t.Fatalf("state = %v, want Initializing", s.State())
	}
	if s.Synchronized() {
		t.Fatalf("expected synchronized = false after stale snapshot")
	}
}

func TestLiveContinuityViolation(t *testing.T) {
	s := newTestSync()
	s.HandleDiff(diffEvent(199, 200, 198, nil, nil)) // bridges the snapshot below
	snap := &market.DepthSnapshot{LastUpdateID: 200}
	s.HandleSnapshot(snap, nil)
	if s.State() != StateLive {
		t.Fatalf("setup: state = %v, want Live", s.State())
	}

	bad := diffEvent(210, 215, 208, nil, nil)
	s.HandleDiff(bad)

	if s.consecutiveFailures != 1 {
		t.Fatalf("consecutive_failures = %d, want 1", s.consecutiveFailures)
	}
	if s.Synchronized() {
		t.Fatalf("expected synchronized = false after continuity violation")
	}
	if s.State() != StateBuffering {
		t.Fatalf("state = %v, want Buffering", s.State())
	}
	if s.lastUpdateID != 200 {
		t.Fatalf("last_update_id should be unchanged, got %d", s.lastUpdateID)
	}
	if len(s.buffer) != 1 || s.buffer[0] != bad {
		t.Fatalf("offending event should be appended to buffer")
	}
}

func TestResyncOnThreshold(t *testing.T) {
	s := newTestSync()
	s.HandleDiff(diffEvent(199, 200, 198, nil, nil)) // bridges the snapshot below
	snap := &market.DepthSnapshot{LastUpdateID: 200}
	s.HandleSnapshot(snap, nil)

	last := int64(200)
	for i := 0; i < 5; i++ {
		ev := diffEvent(last+10, last+15, last+8, nil, nil) // pu deliberately wrong
		s.HandleDiff(ev)
		// A violation drops the machine to Buffering, where diffs are only
		// buffered; re-sync from a snapshot bridged by the offending event
		// so the next diff is checked in Live again.
		if i < 4 {
			s.HandleSnapshot(&market.DepthSnapshot{LastUpdateID: ev.FirstUpdateID}, nil)
		}
		last = s.lastUpdateID
	}

	if s.consecutiveFailures != 5 {
		t.Fatalf("consecutive_failures = %d, want 5", s.consecutiveFailures)
	}

	s.lastResyncTime = time.Time{} // far in the past, cooldown elapsed
	shouldFetch := s.Tick(time.Now())
	if !shouldFetch {
		t.Fatalf("expected Tick to request a resync fetch")
	}
	if s.resyncCount != 1 {
		t.Fatalf("resync_count = %d, want 1", s.resyncCount)
	}
	if s.State() != StateInitializing {
		t.Fatalf("state = %v, want Initializing", s.State())
	}
}

func TestBufferEvictionAtCapPlusOne(t *testing.T) {
	s := newTestSync()
	s.bufferCap = 3
	for i := int64(0); i < 4; i++ {
		s.HandleDiff(diffEvent(i, i, i-1, nil, nil))
	}
	if len(s.buffer) != 3 {
		t.Fatalf("buffer len = %d, want 3", len(s.buffer))
	}
	if s.buffer[0].FinalUpdateID != 1 {
		t.Fatalf("oldest retained event u = %d, want 1 (event 0 evicted)", s.buffer[0].FinalUpdateID)
	}
	if s.buffer[len(s.buffer)-1].FinalUpdateID != 3 {
		t.Fatalf("newest retained event u = %d, want 3", s.buffer[len(s.buffer)-1].FinalUpdateID)
	}
}

func TestInitialGraceBeforeFirstInitializing(t *testing.T) {
	s := newTestSync()
	if s.Tick(time.Now()) {
		t.Fatalf("should not transition before the initial grace period elapses")
	}
	if s.Tick(time.Now().Add(4 * time.Second)) != true {
		t.Fatalf("should transition to Initializing once the grace period has elapsed")
	}
}
