package orderbook

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/BullionBear/sequex-ingest/internal/market"
)

// State is one of the five states of the sync state machine (§4.2). The
// set is exhaustive; there is no "other" state.
type State int

const (
	StateBuffering State = iota
	StateInitializing
	StateReconciling
	StateLive
	StateResyncPending
)

func (s State) String() string {
	switch s {
	case StateBuffering:
		return "buffering"
	case StateInitializing:
		return "initializing"
	case StateReconciling:
		return "reconciling"
	case StateLive:
		return "live"
	case StateResyncPending:
		return "resync_pending"
	default:
		return "unknown"
	}
}

// SnapshotFetcher is the C4 contract the sync machine calls during initial
// sync and resync.
type SnapshotFetcher interface {
	Fetch(ctx context.Context, symbol string) (*market.DepthSnapshot, error)
}

// Sync is the per-symbol synchronization state machine. It is driven
// single-threaded by its owning worker: HandleDiff, Tick, and
// HandleSnapshot are not safe to call concurrently with each other. Read
// access for the summary emitter goes through Summary, which is safe to
// call from the same goroutine that drives the rest of the machine (the
// book manager runs both on one per-symbol worker, per §5's "single
// owning worker" rule).
type Sync struct {
	symbol  string
	book    *Book
	logger  zerolog.Logger

	bufferCap       int
	resyncThreshold int64
	initialGrace    time.Duration
	resyncCooldown  time.Duration // ~30s, the manager's trigger (§4.2 transition 5)
	monitorCooldown time.Duration // ~5s, the monitor task's faster auto-resync (§4.2 transition 5)

	state                 State
	buffer                []*market.DepthDiffEvent
	lastUpdateID          int64
	synchronized          bool
	updateCount           int64
	resyncCount           int64
	consecutiveFailures   int64
	lastResyncTime        time.Time
	lastMonitorResyncTime time.Time
	bufferingSince        time.Time
}

// NewSync constructs a Sync starting in Buffering, per §4.2 transition 1.
func NewSync(symbol string, book *Book, logger zerolog.Logger) *Sync {
	return &Sync{
		symbol:          symbol,
		book:            book,
		logger:          logger,
		bufferCap:       1000,
		resyncThreshold: 5,
		initialGrace:    3 * time.Second,
		resyncCooldown:  30 * time.Second,
		monitorCooldown: 5 * time.Second,
		state:           StateBuffering,
		bufferingSince:  time.Now(),
	}
}

func (s *Sync) State() State { return s.state }

// HandleDiff routes one incoming depth-diff event according to the current
// state: buffered everywhere except Live, where it is validated and
// applied directly.
func (s *Sync) HandleDiff(ev *market.DepthDiffEvent) {
	switch s.state {
	case StateLive:
		s.applyLive(ev)
	default:
		s.pushBuffer(ev)
	}
}

func (s *Sync) pushBuffer(ev *market.DepthDiffEvent) {
	s.buffer = append(s.buffer, ev)
	if len(s.buffer) > s.bufferCap {
		// Evict oldest; newest retained (boundary behavior, §8).
		s.buffer = s.buffer[len(s.buffer)-s.bufferCap:]
	}
}

func (s *Sync) applyLive(ev *market.DepthDiffEvent) {
	if ev.FinalUpdateID <= s.lastUpdateID {
		return // already covered
	}
	if ev.PrevUpdateID == s.lastUpdateID {
		if err := s.applyEvent(ev); err != nil {
			s.logger.Error().Err(err).Str("symbol", s.symbol).Msg("apply live diff failed")
		}
		s.lastUpdateID = ev.FinalUpdateID
		s.updateCount++
		s.consecutiveFailures = 0
		return
	}

	// Protocol continuity violation (§7): pu != last_update_id.
	s.consecutiveFailures++
	s.synchronized = false
	s.pushBuffer(ev)
	s.state = StateResyncPending
	s.logger.Warn().
		Str("symbol", s.symbol).
		Int64("expected_pu", s.lastUpdateID).
		Int64("got_pu", ev.PrevUpdateID).
		Int64("consecutive_failures", s.consecutiveFailures).
		Msg("continuity violation, desyncing")
	s.enterBuffering()
}

func (s *Sync) enterBuffering() {
	s.state = StateBuffering
	s.bufferingSince = time.Now()
}

func (s *Sync) applyEvent(ev *market.DepthDiffEvent) error {
	if err := s.book.ApplyDiff(Bid, ev.BidLevels()); err != nil {
		return fmt.Errorf("orderbook sync: apply bid diff: %w", err)
	}
	if err := s.book.ApplyDiff(Ask, ev.AskLevels()); err != nil {
		return fmt.Errorf("orderbook sync: apply ask diff: %w", err)
	}
	return nil
}

// Tick evaluates time-driven transitions out of Buffering (§4.2 transitions
// 1 and 5). It returns true when the caller should kick off a snapshot
// fetch in the background and later report the result via HandleSnapshot.
//
// Drift-triggered resync is gated by two independent cooldowns, per §4.2's
// two named trigger paths: the manager's own 30s-cooldown trigger, and the
// monitor task's faster 5s-cooldown auto-resync. Either one being ready is
// enough to fire; each tracks its own last-fired time so the faster
// monitor path can retrigger well before the slower manager cooldown
// would have allowed it.
func (s *Sync) Tick(now time.Time) bool {
	if s.state != StateBuffering {
		return false
	}

	if s.consecutiveFailures >= s.resyncThreshold {
		managerReady := now.Sub(s.lastResyncTime) >= s.resyncCooldown
		monitorReady := now.Sub(s.lastMonitorResyncTime) >= s.monitorCooldown
		if !managerReady && !monitorReady {
			return false
		}
		if managerReady {
			s.lastResyncTime = now
		}
		if monitorReady {
			s.lastMonitorResyncTime = now
		}
		s.resyncCount++
	} else if now.Sub(s.bufferingSince) < s.initialGrace {
		return false
	}

	s.state = StateInitializing
	return true
}

// HandleSnapshot reports the outcome of a fetch requested after Tick (or
// after reconcile's own stale-snapshot rejection) returned true. It
// returns true when the caller should immediately re-fetch rather than
// wait for the next Tick: a stale snapshot, which leaves the machine in
// Initializing. A fetch error returns the machine to Buffering and
// returns false, so the retry comes from a later Tick.
func (s *Sync) HandleSnapshot(snap *market.DepthSnapshot, err error) bool {
	if err != nil {
		s.logger.Error().Err(err).Str("symbol", s.symbol).Msg("snapshot fetch failed, retrying")
		s.enterBuffering()
		return false
	}

	s.state = StateReconciling
	return s.reconcile(snap)
}

func (s *Sync) reconcile(snap *market.DepthSnapshot) bool {
	sorted := make([]*market.DepthDiffEvent, len(s.buffer))
	copy(sorted, s.buffer)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].FinalUpdateID < sorted[j].FinalUpdateID })

	firstValid := -1
	for i, ev := range sorted {
		if ev.FinalUpdateID < snap.LastUpdateID {
			continue // stale relative to snapshot
		}
		if ev.FirstUpdateID <= snap.LastUpdateID && snap.LastUpdateID <= ev.FinalUpdateID {
			firstValid = i
			break
		}
	}

	if firstValid == -1 {
		s.logger.Warn().Str("symbol", s.symbol).Int64("last_update_id", snap.LastUpdateID).
			Msg("stale snapshot, no buffered event bridges it, re-fetching")
		s.state = StateInitializing
		return true
	}

	if err := s.book.LoadSnapshot(snap.BidLevels(), snap.AskLevels()); err != nil {
		s.logger.Error().Err(err).Str("symbol", s.symbol).Msg("load snapshot failed")
		s.enterBuffering()
		return false
	}
	s.lastUpdateID = snap.LastUpdateID

	var lastApplied int64 = s.lastUpdateID
	for _, ev := range sorted[firstValid:] {
		if ev.FinalUpdateID <= s.lastUpdateID {
			continue // initial-sync relaxation: u > last_update_id
		}
		if err := s.applyEvent(ev); err != nil {
			s.logger.Error().Err(err).Str("symbol", s.symbol).Msg("apply buffered diff during reconcile failed")
			s.enterBuffering()
			return false
		}
		s.lastUpdateID = ev.FinalUpdateID
		lastApplied = ev.FinalUpdateID
	}

	// Cross-check (§9 open question #3): the derived last_update_id must
	// equal the final buffered event's u.
	if want := sorted[len(sorted)-1].FinalUpdateID; want > lastApplied {
		s.logger.Error().Str("symbol", s.symbol).
			Int64("derived_last_update_id", lastApplied).
			Int64("final_buffered_u", want).
			Msg("reconcile cross-check failed, forcing resync")
		s.buffer = nil
		s.synchronized = false
		s.enterBuffering()
		return false
	}

	s.buffer = nil
	s.synchronized = true
	s.state = StateLive
	return false
}

// Synchronized reports whether the book currently reflects the stream.
func (s *Sync) Synchronized() bool { return s.synchronized }

// Summary renders the current state into a market.Summary for
// persistence. ok is false when the book is not synchronized, in which
// case the caller should log a warning instead of emitting a record
// (§4.2 "Summaries").
func (s *Sync) Summary(topN int) (market.Summary, bool) {
	if !s.synchronized {
		return market.Summary{}, false
	}

	bidsCount, asksCount := s.book.Sizes()
	summary := market.Summary{
		Symbol:       s.symbol,
		LastUpdateID: s.lastUpdateID,
		UpdateCount:  s.updateCount,
		ResyncCount:  s.resyncCount,
		BidsCount:    bidsCount,
		AsksCount:    asksCount,
		TopBids:      s.book.TopLevels(Bid, topN),
		TopAsks:      s.book.TopLevels(Ask, topN),
	}
	if bid, ok := s.book.BestBid(); ok {
		summary.BestBid = bid.Price.String()
	}
	if ask, ok := s.book.BestAsk(); ok {
		summary.BestAsk = ask.Price.String()
		if bid, ok := s.book.BestBid(); ok {
			summary.Spread = ask.Price.Sub(bid.Price).String()
		}
	}
	return summary, true
}
