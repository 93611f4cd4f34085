package aggregator

import (
	"sync"

	"github.com/ethereum/go-ethereum/log"
	lru "github.com/hashicorp/golang-lru"

	"github.com/testmux/testmux/metrics"
	"github.com/testmux/testmux/types"
)

const (
	// defaultCaptureLimitBytes caps how much raw output is held in memory
	// per worker between its first write and its completion merge.
	defaultCaptureLimitBytes = 5 * 1024 * 1024

	// mergedWorkersCacheSize bounds how many already-merged workers are
	// remembered for late-capture detection.
	mergedWorkersCacheSize = 4096
)

// workerCapture is the per-worker slice of the capture table. Messages keep
// insertion order; size tracks total retained bytes for the overflow cap.
type workerCapture struct {
	messages []types.CapturedMessage
	size     int
}

// CaptureBuffer is the process-wide table mapping worker identity to the
// ordered raw output captured for it. Entries are created lazily on first
// write, erased when a retry abandons the attempt, and consumed by Take when
// the worker's collector merges. Writes for a worker that already merged are
// logged and dropped rather than corrupting a finished replay.
type CaptureBuffer struct {
	log      log.Logger
	clock    *Clock
	maxBytes int

	// Critical sections below never block: every hold is O(1) or O(one
	// worker's buffered data).
	mu       sync.Mutex
	byWorker map[types.WorkerID]*workerCapture
	merged   *lru.Cache
}

// NewCaptureBuffer creates an empty capture table. limitBytes <= 0 selects
// the default per-worker cap.
func NewCaptureBuffer(clock *Clock, limitBytes int, logger log.Logger) *CaptureBuffer {
	if limitBytes <= 0 {
		limitBytes = defaultCaptureLimitBytes
	}
	merged, err := lru.New(mergedWorkersCacheSize)
	if err != nil {
		// lru.New only fails on a non-positive size.
		panic(err)
	}
	return &CaptureBuffer{
		log:      logger.New("component", "capture-buffer"),
		clock:    clock,
		maxBytes: limitBytes,
		byWorker: make(map[types.WorkerID]*workerCapture),
		merged:   merged,
	}
}

// Record appends a captured message for the worker, stamped with the current
// logical time. Insertion order per worker is preserved. A message for a
// stream that is not stdout or stderr has no replay target and is dropped.
func (b *CaptureBuffer) Record(worker types.WorkerID, stream types.StreamName, text string) {
	if !stream.Valid() {
		b.log.Warn("Dropping capture for unknown stream", "worker", worker, "stream", stream)
		metrics.RecordCaptureDropped("bad_stream")
		return
	}

	seq := b.clock.Next()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.merged.Contains(worker) {
		b.log.Warn("Dropping output captured after worker merged", "worker", worker, "stream", stream)
		metrics.RecordCaptureDropped("merged")
		return
	}

	wc, ok := b.byWorker[worker]
	if !ok {
		wc = &workerCapture{}
		b.byWorker[worker] = wc
	}

	wc.messages = append(wc.messages, types.CapturedMessage{
		Worker: worker,
		Stream: stream,
		Text:   text,
		Seq:    seq,
	})
	wc.size += len(text)
	metrics.RecordMessageCaptured(stream)

	// Tail semantics: a chatty worker keeps its most recent output, not the
	// whole run, so one worker cannot exhaust aggregate memory.
	for wc.size > b.maxBytes && len(wc.messages) > 1 {
		wc.size -= len(wc.messages[0].Text)
		wc.messages = wc.messages[1:]
		metrics.RecordCaptureDropped("overflow")
	}
}

// Take removes and returns everything recorded for the worker, in insertion
// order, and marks the worker merged so stragglers are detected.
func (b *CaptureBuffer) Take(worker types.WorkerID) []types.CapturedMessage {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.merged.Add(worker, struct{}{})

	wc, ok := b.byWorker[worker]
	if !ok {
		return nil
	}
	delete(b.byWorker, worker)
	return wc.messages
}

// Clear erases everything recorded for the worker. Called when a failure is
// retried, so stale output from the abandoned attempt never reaches the sink.
func (b *CaptureBuffer) Clear(worker types.WorkerID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	wc, ok := b.byWorker[worker]
	if !ok {
		return
	}
	delete(b.byWorker, worker)
	if n := len(wc.messages); n > 0 {
		b.log.Debug("Cleared captured output for retried worker", "worker", worker, "messages", n)
		for i := 0; i < n; i++ {
			metrics.RecordCaptureDropped("retry")
		}
	}
}

// Pending returns how many workers currently hold unmerged output. Used by
// the service layer to report workers still outstanding at shutdown.
func (b *CaptureBuffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.byWorker)
}
