// Command ingest is the process entry point for the ingestion pipeline:
// it loads the configuration, wires the event-bus, the per-symbol
// stream clients, the REST snapshot client, the order book manager, the
// CSV writer, and the supervisor, then runs until signaled or until the
// configured run_duration elapses. The flag/logger/shutdown wiring
// follows cmd/feed in the sibling sequex repo.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BullionBear/sequex-ingest/internal/config"
	"github.com/BullionBear/sequex-ingest/internal/daemon"
	"github.com/BullionBear/sequex-ingest/internal/orderbook"
	"github.com/BullionBear/sequex-ingest/internal/restclient"
	"github.com/BullionBear/sequex-ingest/internal/stream"
	"github.com/BullionBear/sequex-ingest/internal/supervisor"
	"github.com/BullionBear/sequex-ingest/internal/writer"
	"github.com/BullionBear/sequex-ingest/pkg/eventbus"
	"github.com/BullionBear/sequex-ingest/pkg/logger"
	"github.com/BullionBear/sequex-ingest/pkg/shutdown"
)

// Exit codes: 0 success, 1 configuration error, 2 signal-interrupted
// termination.
const (
	exitOK          = 0
	exitConfigError = 1
	exitInterrupted = 2
)

const (
	restBaseURL = "https://fapi.binance.com"
	wsBaseURL   = "wss://fstream.binance.com"
	maxDepth    = 1000
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	showStatus := fs.Bool("status", false, "print the active profile's configuration and exit")
	listSymbols := fs.Bool("list-symbols", false, "list the active profile's configured symbols and exit")
	daemonCmd := fs.String("daemon", "", "daemon control: start|stop|restart|status")
	pidfile := fs.String("pidfile", "/tmp/sequex-ingest.pid", "daemon pidfile path")
	if err := fs.Parse(argv); err != nil {
		return exitConfigError
	}

	if *daemonCmd != "" {
		if err := daemon.Control(*daemonCmd, *pidfile, relaunchArgs(argv)); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitConfigError
		}
		return exitOK
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfigError
	}

	if *showStatus {
		printStatus(cfg)
		return exitOK
	}
	if *listSymbols {
		printSymbols(cfg)
		return exitOK
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfigError
	}

	return runIngest(cfg)
}

// relaunchArgs strips --daemon/-daemon and its value from the original
// argument vector so the detached child process started by daemon.start
// runs the pipeline itself instead of recursing into daemon control.
func relaunchArgs(argv []string) []string {
	out := make([]string, 0, len(argv))
	for i := 0; i < len(argv); i++ {
		a := argv[i]
		switch {
		case a == "-daemon" || a == "--daemon":
			i++ // skip its value
		case strings.HasPrefix(a, "-daemon=") || strings.HasPrefix(a, "--daemon="):
		default:
			out = append(out, a)
		}
	}
	return out
}

func printStatus(cfg *config.Config) {
	profile := cfg.Profile()
	fmt.Printf("mode: %s\n", cfg.Mode)
	fmt.Printf("run_duration: %ds\n", profile.RunDuration)
	fmt.Printf("symbols configured: %d\n", len(profile.Symbols))
	fmt.Printf("output_directory: %s\n", cfg.Storage.OutputDirectory)
	fmt.Printf("queue_maxsize: %d\n", cfg.Performance.QueueMaxSize)
	for _, sym := range profile.Symbols {
		if sym.IsEnabled() {
			fmt.Printf("  - %s: %s\n", sym.Symbol, strings.Join(sym.Streams, ", "))
		}
	}
}

func printSymbols(cfg *config.Config) {
	profile := cfg.Profile()
	fmt.Printf("%d symbols:\n", len(profile.Symbols))
	for i, sym := range profile.Symbols {
		status := "enabled"
		if !sym.IsEnabled() {
			status = "disabled"
		}
		fmt.Printf("%2d. %-12s [%s] streams: %s\n", i+1, sym.Symbol, status, strings.Join(sym.Streams, ", "))
	}
}

func runIngest(cfg *config.Config) int {
	lg := logger.Get()
	profile := cfg.Profile()

	bus := eventbus.New(cfg.Performance.QueueMaxSize)
	wtr := writer.New(cfg.Storage.OutputDirectory, cfg.Performance.BatchSize,
		flushInterval(cfg.Performance.FlushInterval), *lg)
	fetcher := restclient.New(restBaseURL, time.Duration(cfg.Network.TimeoutSeconds)*time.Second, maxDepth)
	manager := orderbook.NewManager(fetcher, bus, *lg)

	supCfg := supervisor.Config{
		RunDuration:     time.Duration(profile.RunDuration) * time.Second,
		ProcessPriority: cfg.Performance.ProcessPriority,
		ShutdownTimeout: 10 * time.Second,
	}
	sup := supervisor.New(supCfg, bus, wtr, manager, *lg)

	spawned := 0
	for _, sym := range profile.Symbols {
		if !sym.IsEnabled() {
			continue
		}
		if profile.MaxWorkers > 0 && spawned >= profile.MaxWorkers {
			lg.Warn().Str("symbol", sym.Symbol).Int("max_workers", profile.MaxWorkers).
				Msg("symbol exceeds max_workers, not spawning a worker for it")
			continue
		}
		spawned++

		var submitter stream.DepthSubmitter
		if sym.DepthSnapshotEnabled() && hasDepthStream(sym.Streams) {
			manager.AddSymbol(sym.Symbol, maxDepth)
			submitter = manager
		}
		url := stream.BuildStreamURL(wsBaseURL, sym.Symbol, sym.Streams)
		client := stream.New(sym.Symbol, url, bus, submitter, *lg)
		sup.AddStreamWorker(sym.Symbol, client)
	}

	sd := shutdown.NewShutdown(*lg)
	sd.HookShutdownCallback("close-event-bus", bus.Close, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var interrupted bool
	go func() {
		select {
		case <-sigCh:
			interrupted = true
			cancel()
		case <-ctx.Done():
		}
	}()

	lg.Info().Str("mode", cfg.Mode).Int("symbols", len(profile.Symbols)).Msg("ingestion pipeline starting")
	runErr := sup.Run(ctx)
	sd.ShutdownNow()

	switch {
	case runErr != nil && !errors.Is(runErr, context.Canceled):
		lg.Error().Err(runErr).Msg("ingestion pipeline exited with a fatal error")
		return exitConfigError
	case interrupted:
		lg.Info().Msg("ingestion pipeline interrupted by signal")
		return exitInterrupted
	default:
		lg.Info().Msg("ingestion pipeline completed")
		return exitOK
	}
}

func hasDepthStream(streams []string) bool {
	for _, s := range streams {
		if strings.Contains(s, "depth") {
			return true
		}
	}
	return false
}

func flushInterval(seconds float64) time.Duration {
	if seconds <= 0 {
		return time.Second
	}
	return time.Duration(seconds * float64(time.Second))
}
