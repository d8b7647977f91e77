package orderbook

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/BullionBear/sequex-ingest/internal/market"
	"github.com/BullionBear/sequex-ingest/pkg/eventbus"
)

// Manager owns one Book+Sync pair per configured symbol. Each symbol's
// pair has exactly one goroutine mutating it; the manager only fans
// incoming diffs out to the right worker and fans summaries back in to
// the bus.
type Manager struct {
	logger          zerolog.Logger
	fetcher         SnapshotFetcher
	bus             *eventbus.Bus
	summaryInterval time.Duration
	topN            int
	fetchTimeout    time.Duration

	mu      sync.Mutex
	workers map[string]*symbolWorker
}

type symbolWorker struct {
	symbol string
	sync   *Sync
	diffCh chan *market.DepthDiffEvent
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithSummaryInterval overrides the default 10s summary timer.
func WithSummaryInterval(d time.Duration) ManagerOption {
	return func(m *Manager) { m.summaryInterval = d }
}

// WithTopN overrides the default 10 rendered levels per side in a summary.
func WithTopN(n int) ManagerOption {
	return func(m *Manager) { m.topN = n }
}

// WithFetchTimeout overrides the default 30s snapshot fetch timeout.
func WithFetchTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.fetchTimeout = d }
}

// NewManager constructs a Manager. fetcher is the REST snapshot client;
// bus is where summary Records are published.
func NewManager(fetcher SnapshotFetcher, bus *eventbus.Bus, logger zerolog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		logger:          logger,
		fetcher:         fetcher,
		bus:             bus,
		summaryInterval: 10 * time.Second,
		topN:            10,
		fetchTimeout:    30 * time.Second,
		workers:         make(map[string]*symbolWorker),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddSymbol registers a symbol with the manager before Run starts. Not
// safe to call concurrently with Run.
func (m *Manager) AddSymbol(symbol string, maxDepth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workers[symbol] = &symbolWorker{
		symbol: symbol,
		sync:   NewSync(symbol, NewBook(symbol, maxDepth), m.logger),
		diffCh: make(chan *market.DepthDiffEvent, 2048),
	}
}

// SubmitDiff offers a depth-diff event to the symbol's worker. This is a
// best-effort offer: if the worker's queue is saturated the event is
// dropped and logged rather than blocking the stream client's hot path,
// since the sync machine already tolerates gaps via its buffer/continuity
// logic.
func (m *Manager) SubmitDiff(symbol string, ev *market.DepthDiffEvent) {
	m.mu.Lock()
	w, ok := m.workers[symbol]
	m.mu.Unlock()
	if !ok {
		return
	}
	select {
	case w.diffCh <- ev:
	default:
		m.logger.Warn().Str("symbol", symbol).Msg("book manager queue full, dropping depth event")
	}
}

// Run starts one goroutine per registered symbol and blocks until every
// one of them has returned, which each does once ctx is cancelled. It
// always returns nil.
func (m *Manager) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	m.mu.Lock()
	workers := make([]*symbolWorker, 0, len(m.workers))
	for _, w := range m.workers {
		workers = append(workers, w)
	}
	m.mu.Unlock()

	for _, w := range workers {
		wg.Add(1)
		go func(w *symbolWorker) {
			defer wg.Done()
			m.runWorker(ctx, w)
		}(w)
	}
	wg.Wait()
	return nil
}

type fetchResult struct {
	snap *market.DepthSnapshot
	err  error
}

func (m *Manager) runWorker(ctx context.Context, w *symbolWorker) {
	tickTicker := time.NewTicker(time.Second)
	defer tickTicker.Stop()
	summaryTicker := time.NewTicker(m.summaryInterval)
	defer summaryTicker.Stop()

	resultCh := make(chan fetchResult, 1)
	fetchInFlight := false

	startFetch := func() {
		fetchInFlight = true
		go func() {
			fctx, cancel := context.WithTimeout(ctx, m.fetchTimeout)
			defer cancel()
			snap, err := m.fetcher.Fetch(fctx, w.symbol)
			resultCh <- fetchResult{snap: snap, err: err}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return

		case ev := <-w.diffCh:
			w.sync.HandleDiff(ev)

		case now := <-tickTicker.C:
			if !fetchInFlight && w.sync.Tick(now) {
				startFetch()
			}

		case res := <-resultCh:
			fetchInFlight = false
			if res.err == nil {
				m.emitSnapshot(ctx, w, res.snap)
			}
			if w.sync.HandleSnapshot(res.snap, res.err) {
				startFetch()
			}

		case <-summaryTicker.C:
			m.emitSummary(ctx, w)
		}
	}
}

// emitSnapshot persists the raw snapshot fetched by C4 to the
// <SYM>_depth_snapshot_<YYYYMMDD>.csv file (§4.4/§6), independent of
// whether the sync machine ultimately accepts it as the bridge into
// Live: a fetched snapshot is itself a durable record.
func (m *Manager) emitSnapshot(ctx context.Context, w *symbolWorker, snap *market.DepthSnapshot) {
	rec := market.Record{
		Kind:      market.RecordKindSnapshot,
		Symbol:    w.symbol,
		LocalTime: time.Now(),
		Snapshot:  snap,
	}
	if err := m.bus.Publish(ctx, rec); err != nil {
		m.logger.Error().Err(err).Str("symbol", w.symbol).Msg("publish snapshot failed")
	}
}

func (m *Manager) emitSummary(ctx context.Context, w *symbolWorker) {
	summary, ok := w.sync.Summary(m.topN)
	if !ok {
		m.logger.Warn().Str("symbol", w.symbol).Msg("book unsynchronized, skipping summary")
		return
	}
	rec := market.Record{
		Kind:      market.RecordKindSummary,
		Symbol:    w.symbol,
		LocalTime: time.Now(),
		Summary:   &summary,
	}
	if err := m.bus.Publish(ctx, rec); err != nil {
		m.logger.Error().Err(err).Str("symbol", w.symbol).Msg("publish summary failed")
	}
}
