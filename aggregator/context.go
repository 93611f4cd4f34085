package aggregator

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/testmux/testmux/metrics"
	"github.com/testmux/testmux/reporting"
)

// ContextConfig carries everything the aggregation context needs up front.
// Validation here is the startup gate: a config that passes NewContext can
// no longer produce a fatal error once worker events start flowing.
type ContextConfig struct {
	Log   log.Logger
	RunID string

	// ExpectedWorkers is the total number of workers that will complete.
	// Must be supplied before any worker can finish.
	ExpectedWorkers int

	// NewReporter constructs the aggregate sink on first use. Resolution of
	// the reporter name happens before this config is built, so a nil
	// factory is a programming error.
	NewReporter reporting.Factory
	ReporterOut io.Writer

	// Stdout and Stderr are the real, unintercepted output streams captured
	// messages are replayed to. Default to the process streams.
	Stdout io.Writer
	Stderr io.Writer

	// CaptureLimitBytes caps retained raw output per worker; <= 0 selects
	// the default.
	CaptureLimitBytes int

	// OnFinalize is invoked exactly once with the final failure count.
	OnFinalize func(failures int)
}

// Context is the explicitly shared state of one aggregation run: the logical
// clock, the capture table, the failure counter, the lazily built reporter
// and the completion barrier. Collectors hold it by reference; there are no
// package-level globals.
type Context struct {
	log     log.Logger
	runID   string
	clock   *Clock
	capture *CaptureBuffer
	barrier *Barrier

	newReporter reporting.Factory
	reporterOut io.Writer
	stdout      io.Writer
	stderr      io.Writer

	mu       sync.Mutex
	sink     reporting.Reporter
	sinkErr  error
	built    bool
	failures int
}

// NewContext validates the configuration and builds the run context. The
// barrier is armed here; a zero expected count finalizes before this returns.
func NewContext(cfg ContextConfig) (*Context, error) {
	if cfg.Log == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.NewReporter == nil {
		return nil, errors.New("reporter factory is required")
	}
	if cfg.ExpectedWorkers < 0 {
		return nil, fmt.Errorf("expected worker count must not be negative, got %d", cfg.ExpectedWorkers)
	}
	if cfg.OnFinalize == nil {
		return nil, errors.New("finalize hook is required")
	}

	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	if cfg.ReporterOut == nil {
		cfg.ReporterOut = cfg.Stdout
	}

	clock := &Clock{}
	c := &Context{
		log:         cfg.Log.New("component", "aggregator", "run_id", cfg.RunID),
		runID:       cfg.RunID,
		clock:       clock,
		capture:     NewCaptureBuffer(clock, cfg.CaptureLimitBytes, cfg.Log),
		newReporter: cfg.NewReporter,
		reporterOut: cfg.ReporterOut,
		stdout:      cfg.Stdout,
		stderr:      cfg.Stderr,
	}

	onFinalize := cfg.OnFinalize
	barrier, err := NewBarrier(cfg.ExpectedWorkers, func(failures int) {
		metrics.SetFailures(c.runID, failures)
		// A run with zero workers never touches the sink; one that replayed
		// anything gets its Done call before the hook observes the outcome.
		if sink := c.sinkIfBuilt(); sink != nil {
			if err := sink.Done(failures); err != nil {
				c.log.Error("Reporter finalization failed", "error", err)
			}
		}
		onFinalize(failures)
	}, cfg.Log)
	if err != nil {
		return nil, err
	}
	c.barrier = barrier
	return c, nil
}

// Capture returns the shared capture buffer.
func (c *Context) Capture() *CaptureBuffer {
	return c.capture
}

// Barrier returns the completion barrier.
func (c *Context) Barrier() *Barrier {
	return c.barrier
}

// RunID returns the identity of this aggregation run.
func (c *Context) RunID() string {
	return c.runID
}

// Sink returns the shared reporter, constructing it on first call. All
// collectors replay into this one instance, so a parallel run renders as one
// linear, ordered stream.
func (c *Context) Sink() (reporting.Reporter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.built {
		c.built = true
		c.sink, c.sinkErr = c.newReporter(c.reporterOut)
		if c.sinkErr != nil {
			c.sinkErr = fmt.Errorf("failed to construct reporter: %w", c.sinkErr)
		} else {
			c.log.Debug("Aggregate sink constructed")
		}
	}
	return c.sink, c.sinkErr
}

func (c *Context) sinkIfBuilt() reporting.Reporter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sink
}

// AddFailure records one terminal test failure.
func (c *Context) AddFailure() {
	c.mu.Lock()
	c.failures++
	n := c.failures
	c.mu.Unlock()
	metrics.SetFailures(c.runID, n)
}

// RetryObserved cancels a previously recorded failure that is getting a
// fresh attempt. Handled synchronously so the counter is settled before any
// completion tally runs.
func (c *Context) RetryObserved() {
	c.mu.Lock()
	c.failures--
	n := c.failures
	c.mu.Unlock()
	metrics.SetFailures(c.runID, n)
}

// Failures returns the current net failure count.
func (c *Context) Failures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures
}

// workerDone reports one worker's merge/replay completion to the barrier.
func (c *Context) workerDone() {
	metrics.RecordWorkerCompleted(c.runID)
	c.barrier.Complete(c.Failures())
}
