package aggregator

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/testmux/testmux/metrics"
	"github.com/testmux/testmux/reporting"
	"github.com/testmux/testmux/types"
)

// Collector observes one worker's lifecycle events. Everything is buffered
// with a logical timestamp until the worker's completion signal, then merged
// with the worker's captured output and replayed into the shared sink.
//
// Two kinds have immediate side effects: testFail bumps the shared failure
// counter, and testFailRetry cancels the failure, erases the worker's
// captured output (the abandoned attempt's output must never replay) and is
// forwarded to the sink live.
type Collector struct {
	ctx    *Context
	worker types.WorkerID
	log    log.Logger

	mu        sync.Mutex
	events    []types.LifecycleEvent
	completed bool
}

// NewCollector binds a collector to a single worker's event stream.
func NewCollector(ctx *Context, worker types.WorkerID) *Collector {
	return &Collector{
		ctx:    ctx,
		worker: worker,
		log:    ctx.log.New("worker", worker),
	}
}

// Worker returns the identity this collector is bound to.
func (c *Collector) Worker() types.WorkerID {
	return c.worker
}

// OnEvent buffers one lifecycle event, stamping it with the shared logical
// clock. Payloads are carried opaquely; a malformed payload is the
// reporter's problem, never an error here.
func (c *Collector) OnEvent(kind types.EventKind, payload json.RawMessage) {
	ev := types.LifecycleEvent{
		Worker:  c.worker,
		Kind:    kind,
		Payload: payload,
		Seq:     c.ctx.clock.Next(),
	}

	c.mu.Lock()
	if c.completed {
		c.mu.Unlock()
		c.log.Warn("Dropping event for already-completed worker", "kind", kind)
		return
	}
	c.events = append(c.events, ev)
	c.mu.Unlock()

	metrics.RecordEventBuffered(kind)

	switch kind {
	case types.EventTestFail:
		c.ctx.AddFailure()
	case types.EventTestFailRetry:
		// Synchronous on purpose: the decrement must be settled before any
		// completion tally, and the retry notification is the one event
		// allowed to reach the sink before this worker completes.
		c.ctx.RetryObserved()
		c.ctx.capture.Clear(c.worker)
		c.forwardLive(ev)
	case types.EventSuiteStart, types.EventSuiteEnd, types.EventTestStart,
		types.EventTestPending, types.EventTestPass, types.EventTestEnd:
		// Buffered only.
	}
}

// forwardLive delivers a retry notification to the sink immediately.
func (c *Collector) forwardLive(ev types.LifecycleEvent) {
	sink, err := c.ctx.Sink()
	if err != nil {
		c.log.Error("Cannot forward retry notification", "error", err)
		return
	}
	if err := sink.HandleEvent(ev); err != nil {
		c.log.Error("Reporter rejected retry notification", "error", err)
	}
}

// OnCompletion is the worker's terminal signal. It merges the buffered
// events with the worker's captured output, replays the merged sequence,
// and reports completion to the barrier. A duplicate completion is logged
// and dropped.
func (c *Collector) OnCompletion() {
	c.mu.Lock()
	if c.completed {
		c.mu.Unlock()
		c.log.Warn("Duplicate completion signal, dropping")
		return
	}
	c.completed = true
	events := c.events
	c.events = nil
	c.mu.Unlock()

	messages := c.ctx.capture.Take(c.worker)
	items := mergeOrdered(events, messages)

	c.log.Debug("Replaying worker", "events", len(events), "messages", len(messages))
	c.replay(items)
	metrics.RecordEventsReplayed(len(items))

	c.ctx.workerDone()
}

// replay walks the merged sequence in order: lifecycle events go to the
// sink, captured messages are written verbatim to the real output stream
// they were intercepted from.
func (c *Collector) replay(items []mergedItem) {
	var sink reporting.Reporter
	if len(items) > 0 {
		s, err := c.ctx.Sink()
		if err != nil {
			c.log.Error("Replaying without a reporter, events will be dropped", "error", err)
		} else {
			sink = s
		}
	}

	for _, item := range items {
		switch {
		case item.event != nil:
			// Retry notifications were forwarded live; replaying them again
			// would double-deliver.
			if item.event.Kind == types.EventTestFailRetry {
				continue
			}
			if sink == nil {
				continue
			}
			if err := sink.HandleEvent(*item.event); err != nil {
				c.log.Error("Reporter rejected event", "kind", item.event.Kind, "error", err)
			}
		case item.message != nil:
			var out io.Writer
			if item.message.Stream == types.StreamStderr {
				out = c.ctx.stderr
			} else {
				out = c.ctx.stdout
			}
			if _, err := io.WriteString(out, item.message.Text); err != nil {
				c.log.Error("Failed to replay captured output", "stream", item.message.Stream, "error", err)
			}
		}
	}
}
