// Package shutdown implements a signal-driven root context plus a set of
// hooked callbacks that run with a bounded per-callback timeout once a
// shutdown signal arrives.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Shutdown owns the process-wide root context and a registry of cleanup
// callbacks run once a shutdown is triggered, either by an OS signal or
// by ShutdownNow.
type Shutdown struct {
	logger    zerolog.Logger
	rootCtx   context.Context
	cancel    func()
	mutex     sync.Mutex
	callbacks []callback
	sigCh     chan os.Signal
}

type callback struct {
	name    string
	f       func()
	timeout time.Duration
}

// NewShutdown constructs a Shutdown with a fresh root context.
func NewShutdown(logger zerolog.Logger) *Shutdown {
	ctx, cancel := context.WithCancel(context.Background())
	return &Shutdown{
		logger:    logger,
		rootCtx:   ctx,
		cancel:    cancel,
		callbacks: make([]callback, 0),
		sigCh:     make(chan os.Signal, 1),
	}
}

// HookShutdownCallback registers f to run once shutdown begins. timeout
// bounds how long the caller waits for f to return before logging it as
// timed out and moving on; 0 means wait indefinitely.
func (s *Shutdown) HookShutdownCallback(name string, f func(), timeout time.Duration) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.callbacks = append(s.callbacks, callback{name: name, f: f, timeout: timeout})
}

// Context returns the root context, cancelled once a shutdown begins.
// Workers should be built against this context (or one derived from it)
// so a caught signal propagates as cancellation.
func (s *Shutdown) Context() context.Context {
	return s.rootCtx
}

// SysDown returns the root context's Done channel.
func (s *Shutdown) SysDown() <-chan struct{} {
	return s.rootCtx.Done()
}

// WaitForShutdown blocks until one of sigs arrives, cancels the root
// context, and runs the hooked callbacks. It returns once every callback
// has either completed or timed out.
func (s *Shutdown) WaitForShutdown(sigs ...os.Signal) {
	if len(sigs) > 0 {
		signal.Notify(s.sigCh, sigs...)
	}
	<-s.sigCh
	s.cancel()
	s.logger.Info().Msg("shutdown signal received, running shutdown callbacks")
	s.shutdown()
	s.logger.Info().Msg("shutdown complete")
}

// ShutdownNow triggers the same sequence as WaitForShutdown without
// waiting for an OS signal, for programmatic shutdown.
func (s *Shutdown) ShutdownNow() {
	s.cancel()
	s.logger.Info().Msg("manual shutdown triggered, running shutdown callbacks")
	s.shutdown()
	s.logger.Info().Msg("shutdown complete")
}

func (s *Shutdown) shutdown() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var wg sync.WaitGroup
	for _, cb := range s.callbacks {
		wg.Add(1)
		go func(cb callback) {
			defer wg.Done()

			var ctx context.Context
			var cancel context.CancelFunc
			if cb.timeout > 0 {
				ctx, cancel = context.WithTimeout(context.Background(), cb.timeout)
				defer cancel()
			} else {
				ctx = context.Background()
			}

			done := make(chan struct{})
			go func() {
				defer close(done)
				cb.f()
			}()

			select {
			case <-done:
				s.logger.Debug().Str("callback", cb.name).Msg("shutdown callback done")
			case <-ctx.Done():
				if cb.timeout > 0 {
					s.logger.Error().Str("callback", cb.name).Dur("timeout", cb.timeout).
						Msg("shutdown callback timed out")
				}
			}
		}(cb)
	}
	wg.Wait()
}
