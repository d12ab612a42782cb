// socktrace is an eBPF-based socket traffic tracer: it captures the byte
// streams of a command's TCP connections, reassembles them into HTTP
// messages, and reports them as text lines or OpenTelemetry spans.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"socktrace/internal/bpfloader"
	"socktrace/internal/config"
	"socktrace/internal/conntrack"
	"socktrace/internal/eventprocessor"
	"socktrace/internal/eventstream"
	"socktrace/internal/filter"
	"socktrace/internal/hostnames"
	"socktrace/internal/otel"
	"socktrace/internal/output"
	"socktrace/internal/protocols/httpcodec"
	"socktrace/internal/streamparse"
	"socktrace/internal/timesync"

	"github.com/cilium/ebpf/ringbuf"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Version information injected at build time.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	log := newLogger("info")
	if err := run(log); err != nil {
		log.Fatal().Err(err).Msg("socktrace failed")
	}
}

func newLogger(levelName string) zerolog.Logger {
	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).
		With().Timestamp().Logger()
}

// getTCPFinTimeout reads net.ipv4.tcp_fin_timeout from sysctl.
// Returns timeout in seconds, defaults to 60 if unable to read.
func getTCPFinTimeout() int {
	data, err := os.ReadFile("/proc/sys/net/ipv4/tcp_fin_timeout")
	if err != nil {
		return 60
	}

	timeout, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 60
	}

	return timeout
}

// calculateDrainTimeout computes the timeout for draining late socket events.
// Uses a fraction of tcp_fin_timeout with bounds of 500ms to 2s.
func calculateDrainTimeout() time.Duration {
	tcpFinTimeout := getTCPFinTimeout()
	drainTimeout := time.Duration(tcpFinTimeout*10) * time.Millisecond
	if drainTimeout < 500*time.Millisecond {
		drainTimeout = 500 * time.Millisecond
	}
	if drainTimeout > 2*time.Second {
		drainTimeout = 2 * time.Second
	}
	return drainTimeout
}

// setupOTEL initializes the OTEL provider and returns a tracer and cleanup function.
func setupOTEL(log zerolog.Logger) (trace.Tracer, func(), error) {
	otelCfg, err := config.ParseOTELConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse OTEL config: %w", err)
	}

	tp, err := otel.InitProvider(otelCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize OTEL provider: %w", err)
	}

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otel.ShutdownProvider(shutdownCtx, tp); err != nil {
			log.Warn().Err(err).Msg("error shutting down OTEL provider")
		}
	}

	return tp.Tracer("socktrace"), cleanup, nil
}

// setupBPF loads the BPF program, attaches its probes, and opens the ring
// buffer. Returns loader, ring buffer reader, and cleanup function.
func setupBPF(objPath string, log zerolog.Logger) (*bpfloader.Loader, *ringbuf.Reader, func(), error) {
	loader, err := bpfloader.New(objPath)
	if err != nil {
		return nil, nil, nil, err
	}

	if err := loader.Attach(); err != nil {
		if closeErr := loader.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("error closing loader after attach failure")
		}
		return nil, nil, nil, err
	}

	rd, err := loader.OpenRingBuffer()
	if err != nil {
		if closeErr := loader.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("error closing loader after ring buffer open failure")
		}
		return nil, nil, nil, err
	}

	cleanup := func() {
		if err := rd.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing ring buffer")
		}
		if err := loader.Close(); err != nil {
			log.Warn().Err(err).Msg("error closing loader")
		}
	}

	return loader, rd, cleanup, nil
}

// setupComponents wires filter, sinks, tracker, and processor, and returns
// the event stream plus the tracker and processor for flushing and stats.
func setupComponents(
	cfg *config.Config,
	envCfg *config.EnvConfig,
	tracer trace.Tracer,
	rd *ringbuf.Reader,
	log zerolog.Logger,
) (*eventstream.Stream, *conntrack.Tracker[*httpcodec.Message], *eventprocessor.Processor[*httpcodec.Message], error) {
	converter, err := timesync.NewConverter()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create time converter: %w", err)
	}

	frameFilter, err := filter.New[*httpcodec.Message](cfg.FilterExpr, log)
	if err != nil {
		return nil, nil, nil, err
	}

	// The child inherits our environment, so its configured endpoints
	// (DATABASE_URL, --url flags, ...) are visible before it even starts.
	names := hostnames.NewResolver()
	names.IngestEnviron(os.Environ())
	names.Ingest(cfg.Args...)

	sink := conntrack.Sink[*httpcodec.Message](
		output.NewTextFormatter[*httpcodec.Message](os.Stdout, converter, frameFilter, names),
	)
	if tracer != nil {
		sink = output.Multi[*httpcodec.Message](
			sink,
			output.NewOTELFormatter[*httpcodec.Message](tracer, converter, frameFilter),
		)
	}

	tracker := conntrack.NewTracker[*httpcodec.Message](
		func() streamparse.Codec[*httpcodec.Message] { return httpcodec.Codec{} },
		sink,
		envCfg.ParseThresholdBytes,
		log,
	)

	processor := eventprocessor.NewProcessor[*httpcodec.Message](tracker, log)

	return eventstream.New(rd, processor, log), tracker, processor, nil
}

// executeCommand starts the target command and monitors it until completion.
// Returns when the command exits or a signal is received.
func executeCommand(cfg *config.Config, loader *bpfloader.Loader, log zerolog.Logger) error {
	//nolint:gosec // This is a tracer tool - launching subprocesses is its purpose
	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	// Add our PID to the tracked map before starting the child.
	if err := loader.TrackPID(os.Getpid()); err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting command: %w", err)
	}

	childPid := cmd.Process.Pid
	if err := loader.TrackPID(childPid); err != nil {
		_ = cmd.Process.Kill() //nolint:errcheck // Best-effort cleanup in error path
		return err
	}

	log.Info().Int("pid", childPid).Msg("tracing socket traffic of process tree")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	childDone := make(chan error, 1)
	go func() {
		childDone <- cmd.Wait()
	}()

	select {
	case <-sigCh:
		log.Info().Msg("received signal, terminating")
		_ = cmd.Process.Signal(syscall.SIGTERM) //nolint:errcheck // Best-effort graceful shutdown; Kill() follows
		time.Sleep(100 * time.Millisecond)
		_ = cmd.Process.Kill() //nolint:errcheck // Best-effort cleanup during shutdown
	case err := <-childDone:
		if err != nil {
			log.Warn().Err(err).Msg("child process exited with error")
		}
	}

	return nil
}

func run(log zerolog.Logger) error {
	cfg, err := config.ParseArgs(os.Args)
	if err != nil {
		return err
	}

	envCfg, err := config.ParseEnv()
	if err != nil {
		return err
	}
	log = newLogger(envCfg.LogLevel)

	log.Info().Str("version", version).Str("commit", commit).Msg("starting socktrace")

	objPath := envCfg.BPFObjectPath
	if cfg.BPFObjectPath != "" {
		objPath = cfg.BPFObjectPath
	}

	var tracer trace.Tracer
	if cfg.Export {
		var cleanupOTEL func()
		tracer, cleanupOTEL, err = setupOTEL(log)
		if err != nil {
			return err
		}
		defer cleanupOTEL()
	}

	loader, rd, cleanupBPF, err := setupBPF(objPath, log)
	if err != nil {
		return err
	}
	defer cleanupBPF()

	stream, tracker, processor, err := setupComponents(cfg, envCfg, tracer, rd, log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := stream.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := stream.Stop(); err != nil {
			log.Warn().Err(err).Msg("error stopping stream")
		}
	}()

	// Periodic flush keeps idle connections from buffering forever.
	go func() {
		ticker := time.NewTicker(envCfg.FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tracker.FlushAll()
			}
		}
	}()

	if err := executeCommand(cfg, loader, log); err != nil {
		return err
	}

	// Give the ring buffer time to drain and catch late close events.
	time.Sleep(calculateDrainTimeout())
	tracker.FlushAll()

	stats := processor.Stats()
	log.Info().
		Uint64("connections", stats.Opens).
		Uint64("data_events", stats.DataEvents).
		Uint64("payload_bytes", stats.PayloadBytes).
		Msg("trace complete")

	return nil
}
