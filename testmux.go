// Package testmux aggregates the output of parallel test-run workers into
// one coherent, ordered report. Workers stream lifecycle events and captured
// stdout/stderr over a simple NDJSON wire; testmux buffers each worker until
// it completes, replays its run in logical order into a single shared
// reporter, and exits with the aggregate failure count once every expected
// worker is accounted for.
package testmux

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/testmux/testmux/aggregator"
	"github.com/testmux/testmux/capture"
	"github.com/testmux/testmux/ingest"
	"github.com/testmux/testmux/service"
)

// Service wires the aggregation context, the wire ingester and the optional
// health/metrics server into one run.
type Service struct {
	cfg      *Config
	log      log.Logger
	runID    string
	agg      *aggregator.Context
	ingester *ingest.Ingester
	health   *service.Server

	mu       sync.Mutex
	failures int
	done     chan struct{}
}

// New builds a service from a validated config. Configuration failures
// surface here as ConfigErrors; once New returns, the run can no longer
// abort for configuration reasons.
func New(cfg *Config) (*Service, error) {
	if cfg == nil {
		return nil, NewConfigError(fmt.Errorf("config is required"))
	}

	runID := uuid.New().String()
	s := &Service{
		cfg:   cfg,
		log:   cfg.Log.New("run_id", runID),
		runID: runID,
		done:  make(chan struct{}),
	}

	agg, err := aggregator.NewContext(aggregator.ContextConfig{
		Log:               cfg.Log,
		RunID:             runID,
		ExpectedWorkers:   cfg.ExpectedWorkers,
		NewReporter:       cfg.NewReporter,
		ReporterOut:       cfg.ReporterOut,
		Stdout:            cfg.Stdout,
		Stderr:            cfg.Stderr,
		CaptureLimitBytes: cfg.CaptureLimitBytes,
		OnFinalize:        s.finalize,
	})
	if err != nil {
		return nil, NewConfigError(err)
	}
	s.agg = agg

	ingester, err := ingest.New(agg, cfg.Log)
	if err != nil {
		return nil, NewConfigError(err)
	}
	s.ingester = ingester

	if cfg.ListenAddr != "" {
		s.health = service.New(cfg.Log, cfg.ListenAddr)
	}

	s.log.Info("Created testmux service",
		"expectedWorkers", cfg.ExpectedWorkers,
		"reporter", cfg.Reporter,
		"listen", cfg.ListenAddr)
	return s, nil
}

// finalize is the barrier hook; it runs exactly once.
func (s *Service) finalize(failures int) {
	s.mu.Lock()
	s.failures = failures
	s.mu.Unlock()
	close(s.done)
}

// RunID returns the identity of this aggregation run.
func (s *Service) RunID() string {
	return s.runID
}

// Publisher exposes the raw-stream capture entry point for embedders that
// intercept worker output in-process instead of over the wire.
func (s *Service) Publisher() capture.Publisher {
	return capture.PublisherFunc(s.agg.Capture().Record)
}

// Done is closed once the completion barrier finalizes.
func (s *Service) Done() <-chan struct{} {
	return s.done
}

// Failures returns the final failure count. Only meaningful after Done.
func (s *Service) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

// Run consumes the wire stream until EOF and returns the aggregate failure
// count. The stream ending before every expected worker completed is a
// RuntimeError: the count would be meaningless. The health server, when
// configured, runs for the duration of the stream.
func (s *Service) Run(ctx context.Context, input io.Reader) (int, error) {
	g, gctx := errgroup.WithContext(ctx)
	ingestDone := make(chan struct{})

	if s.health != nil {
		g.Go(func() error {
			return s.health.Start()
		})
		g.Go(func() error {
			select {
			case <-gctx.Done():
			case <-ingestDone:
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return s.health.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		defer close(ingestDone)
		return s.ingester.Run(gctx, input)
	})

	if err := g.Wait(); err != nil {
		return 0, NewRuntimeError(err)
	}

	select {
	case <-s.done:
	default:
		completed := s.agg.Barrier().Completed()
		return 0, NewRuntimeError(fmt.Errorf(
			"wire stream ended with %d of %d workers completed", completed, s.cfg.ExpectedWorkers))
	}

	failures := s.Failures()
	s.log.Info("Run complete", "failures", failures)
	return failures, nil
}
