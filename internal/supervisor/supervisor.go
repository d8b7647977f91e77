// Package supervisor spawns one stream-client worker per enabled symbol
// plus the writer and (optionally) the book manager, monitors liveness,
// and orchestrates a bounded, signal-driven shutdown. The callback-with-
// timeout shutdown shape generalizes pkg/shutdown's fixed sigCh+rootCtx
// pair to a full worker roster.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/BullionBear/sequex-ingest/internal/orderbook"
	"github.com/BullionBear/sequex-ingest/internal/writer"
	"github.com/BullionBear/sequex-ingest/pkg/eventbus"
)

// StreamWorker is the subset of stream.Client that the supervisor drives.
type StreamWorker interface {
	Run(ctx context.Context) error
}

// WriterWorker is the subset of writer.Writer the supervisor drives,
// narrowed to an interface so the restart/fatal classification in
// runWriterWithRestart can be exercised against a fake.
type WriterWorker interface {
	Run(ctx context.Context, bus *eventbus.Bus) error
}

// Config bundles the pieces Supervisor.Run needs, kept separate from
// internal/config.Config so this package does not import the config
// schema directly.
type Config struct {
	RunDuration     time.Duration // 0 means run until signaled
	ProcessPriority string        // "" or "high"
	ShutdownTimeout time.Duration // bound on worker join during shutdown
}

// Supervisor owns the worker roster for one run.
type Supervisor struct {
	cfg     Config
	bus     *eventbus.Bus
	writer  WriterWorker
	manager *orderbook.Manager
	streams map[string]StreamWorker
	logger  zerolog.Logger
}

// New constructs a Supervisor. manager may be nil to disable the book
// manager worker.
func New(cfg Config, bus *eventbus.Bus, wtr WriterWorker, manager *orderbook.Manager, logger zerolog.Logger) *Supervisor {
	return &Supervisor{
		cfg:     cfg,
		bus:     bus,
		writer:  wtr,
		manager: manager,
		streams: make(map[string]StreamWorker),
		logger:  logger,
	}
}

// AddStreamWorker registers a per-symbol stream-client worker.
func (s *Supervisor) AddStreamWorker(symbol string, w StreamWorker) {
	s.streams[symbol] = w
}

type workerEvent struct {
	name string
	err  error
}

// Run spawns every registered worker and blocks until ctx is cancelled
// (by a caught signal), the configured run_duration elapses, or an
// unrecoverable writer failure occurs. It applies a bounded shutdown
// join before returning.
func (s *Supervisor) Run(ctx context.Context) error {
	if s.cfg.ProcessPriority == "high" {
		if err := setProcessPriority(-5); err != nil {
			s.logger.Warn().Err(err).Msg("process priority hint failed, continuing without it")
		}
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	if s.cfg.RunDuration > 0 {
		go func() {
			select {
			case <-time.After(s.cfg.RunDuration):
				s.logger.Info().Dur("run_duration", s.cfg.RunDuration).Msg("configured run duration elapsed, shutting down")
				cancelRun()
			case <-runCtx.Done():
			}
		}()
	}

	var wg sync.WaitGroup
	events := make(chan workerEvent, len(s.streams)+2)

	for symbol, worker := range s.streams {
		wg.Add(1)
		go func(symbol string, worker StreamWorker) {
			defer wg.Done()
			err := worker.Run(runCtx)
			events <- workerEvent{name: "stream:" + symbol, err: err}
		}(symbol, worker)
	}

	if s.manager != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.manager.Run(runCtx)
			events <- workerEvent{name: "book-manager", err: err}
		}()
	}

	writerFatal := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.runWriterWithRestart(runCtx, writerFatal)
	}()

	var fatalErr error
loop:
	for {
		select {
		case <-runCtx.Done():
			break loop
		case ev := <-events:
			// Stream-client and book-manager worker death: logged, not
			// auto-restarted here; the reconnection loop is internal to
			// the stream worker itself.
			if ev.err != nil && ev.err != context.Canceled {
				s.logger.Error().Err(ev.err).Str("worker", ev.name).Msg("worker exited")
			}
		case err := <-writerFatal:
			fatalErr = fmt.Errorf("supervisor: writer failed fatally: %w", err)
			cancelRun()
			break loop
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	select {
	case <-done:
	case <-time.After(timeout):
		s.logger.Warn().Dur("timeout", timeout).Msg("shutdown timed out waiting for workers, proceeding")
	}

	if fatalErr != nil {
		return fatalErr
	}
	return nil
}

// runWriterWithRestart runs the writer, auto-restarting it on any error
// other than context cancellation. The Writer keeps its unflushed
// batches in memory across restarts, so the data-loss bound is one
// in-flight batch. A disk-full error is not restartable: it is
// forwarded to fatal so the supervisor shuts down and surfaces the
// cause instead of looping forever against a full disk.
func (s *Supervisor) runWriterWithRestart(ctx context.Context, fatal chan<- error) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		err := s.writer.Run(ctx, s.bus)
		if err == nil || err == context.Canceled {
			return
		}
		if errors.Is(err, writer.ErrDiskFull) {
			fatal <- err
			return
		}
		s.logger.Error().Err(err).Msg("writer exited, restarting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}
