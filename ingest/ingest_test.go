package ingest

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testmux/testmux/aggregator"
	"github.com/testmux/testmux/reporting"
	"github.com/testmux/testmux/types"
)

type stubReporter struct {
	mu     sync.Mutex
	events []types.LifecycleEvent
	done   []int
}

func (s *stubReporter) HandleEvent(ev types.LifecycleEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *stubReporter) Done(failures int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = append(s.done, failures)
	return nil
}

type ingestHarness struct {
	ingester      *Ingester
	sink          *stubReporter
	stdout        bytes.Buffer
	stderr        bytes.Buffer
	finalized     atomic.Int32
	finalFailures atomic.Int32
}

func newIngestHarness(t *testing.T, expectedWorkers int) *ingestHarness {
	t.Helper()

	h := &ingestHarness{sink: &stubReporter{}}
	logger := log.NewLogger(log.DiscardHandler())

	agg, err := aggregator.NewContext(aggregator.ContextConfig{
		Log:             logger,
		RunID:           "ingest-test",
		ExpectedWorkers: expectedWorkers,
		NewReporter: func(out io.Writer) (reporting.Reporter, error) {
			return h.sink, nil
		},
		Stdout: &h.stdout,
		Stderr: &h.stderr,
		OnFinalize: func(failures int) {
			h.finalized.Add(1)
			h.finalFailures.Store(int32(failures))
		},
	})
	require.NoError(t, err)

	ing, err := New(agg, logger)
	require.NoError(t, err)
	h.ingester = ing
	return h
}

func (h *ingestHarness) run(t *testing.T, stream string) {
	t.Helper()
	require.NoError(t, h.ingester.Run(context.Background(), strings.NewReader(stream)))
}

func TestIngester_FullRun(t *testing.T) {
	h := newIngestHarness(t, 2)

	h.run(t, `
{"type":"event","worker":"a_test","kind":"suiteStart"}
{"type":"event","worker":"a_test","kind":"testStart","payload":{"title":"adds"}}
{"type":"output","worker":"a_test","stream":"stdout","text":"computing\n"}
{"type":"event","worker":"b_test","kind":"testStart","payload":{"title":"reads"}}
{"type":"event","worker":"a_test","kind":"testPass","payload":{"title":"adds"}}
{"type":"event","worker":"b_test","kind":"testFail","payload":{"title":"reads","err":"boom"}}
{"type":"output","worker":"b_test","stream":"stderr","text":"read error\n"}
{"type":"event","worker":"a_test","kind":"suiteEnd"}
{"type":"end","worker":"a_test"}
{"type":"end","worker":"b_test"}
`)

	assert.Equal(t, int32(1), h.finalized.Load())
	assert.Equal(t, int32(1), h.finalFailures.Load())
	assert.Equal(t, 2, h.ingester.Workers())
	assert.Equal(t, "computing\n", h.stdout.String())
	assert.Equal(t, "read error\n", h.stderr.String())

	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	require.Len(t, h.sink.done, 1)
	assert.Equal(t, 1, h.sink.done[0])

	// a_test finished first, so its four events replay before b_test's two.
	require.Len(t, h.sink.events, 6)
	for _, ev := range h.sink.events[:4] {
		assert.Equal(t, types.WorkerID("a_test"), ev.Worker)
	}
	for _, ev := range h.sink.events[4:] {
		assert.Equal(t, types.WorkerID("b_test"), ev.Worker)
	}
}

func TestIngester_RetryFlow(t *testing.T) {
	h := newIngestHarness(t, 1)

	h.run(t, `
{"type":"output","worker":"flaky_test","stream":"stdout","text":"attempt one\n"}
{"type":"event","worker":"flaky_test","kind":"testFail","payload":{"title":"flaky"}}
{"type":"event","worker":"flaky_test","kind":"testFailRetry","payload":{"title":"flaky"}}
{"type":"output","worker":"flaky_test","stream":"stdout","text":"attempt two\n"}
{"type":"event","worker":"flaky_test","kind":"testPass","payload":{"title":"flaky"}}
{"type":"end","worker":"flaky_test"}
`)

	assert.Equal(t, int32(1), h.finalized.Load())
	assert.Equal(t, int32(0), h.finalFailures.Load(), "retried failure must not count")
	assert.NotContains(t, h.stdout.String(), "attempt one")
	assert.Contains(t, h.stdout.String(), "attempt two")
}

func TestIngester_InvalidLinesAreDropped(t *testing.T) {
	h := newIngestHarness(t, 1)

	h.run(t, `
not json at all
{"type":"event","worker":"a_test"}
{"type":"bogus","worker":"a_test"}
{"type":"output","worker":"a_test","stream":"stdlog","text":"x"}
{"type":"event","worker":"","kind":"testPass"}
{"type":"event","worker":"a_test","kind":"testPass"}
{"type":"end","worker":"a_test"}
`)

	assert.Equal(t, int32(1), h.finalized.Load())
	assert.Equal(t, int32(0), h.finalFailures.Load())

	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	require.Len(t, h.sink.events, 1, "only the valid event survives")
	assert.Equal(t, types.EventTestPass, h.sink.events[0].Kind)
}

func TestIngester_EndForUnseenWorkerCounts(t *testing.T) {
	h := newIngestHarness(t, 1)

	// A worker whose suite produced nothing still completes.
	h.run(t, `{"type":"end","worker":"empty_test"}`)

	assert.Equal(t, int32(1), h.finalized.Load())
	assert.Equal(t, 1, h.ingester.Workers())
}

func TestIngester_DuplicateEndIsHarmless(t *testing.T) {
	h := newIngestHarness(t, 2)

	h.run(t, `
{"type":"end","worker":"a_test"}
{"type":"end","worker":"a_test"}
`)

	assert.Equal(t, int32(0), h.finalized.Load(), "duplicate end must not satisfy the barrier")
}

func TestIngester_CancelledContext(t *testing.T) {
	h := newIngestHarness(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.ingester.Run(ctx, strings.NewReader(`{"type":"end","worker":"a_test"}`))
	require.ErrorIs(t, err, context.Canceled)
}

func TestNew_RequiresContext(t *testing.T) {
	_, err := New(nil, log.NewLogger(log.DiscardHandler()))
	require.Error(t, err)
}
