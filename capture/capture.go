// Package capture models the raw-stream interception capability: a narrow
// publish interface the aggregation core consumes, plus an io.Writer adapter
// that tags a worker's stdout/stderr writes with its identity. The core
// never reaches into process-global stream objects; whoever owns the worker
// installs one of these writers at startup.
package capture

import (
	"bytes"
	"sync"

	"github.com/testmux/testmux/types"
)

// Publisher accepts intercepted raw output attributed to exactly one worker
// and one stream. The aggregator's capture buffer satisfies this.
type Publisher interface {
	Publish(worker types.WorkerID, stream types.StreamName, text string)
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(worker types.WorkerID, stream types.StreamName, text string)

func (f PublisherFunc) Publish(worker types.WorkerID, stream types.StreamName, text string) {
	f(worker, stream, text)
}

// Writer is an io.Writer that republishes everything written to it as tagged
// capture messages. Writes are split on newlines: complete lines publish
// immediately (newline included), a trailing partial line is held until the
// next write or Flush so interleaved writers do not shear lines apart.
type Writer struct {
	pub    Publisher
	worker types.WorkerID
	stream types.StreamName

	mu      sync.Mutex
	partial bytes.Buffer
}

// NewWriter creates a tagging writer for one worker's stream.
func NewWriter(pub Publisher, worker types.WorkerID, stream types.StreamName) *Writer {
	return &Writer{pub: pub, worker: worker, stream: stream}
}

// Write implements io.Writer. It never fails; publishing is fire-and-forget.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	rest := p
	for {
		idx := bytes.IndexByte(rest, '\n')
		if idx < 0 {
			w.partial.Write(rest)
			break
		}
		w.partial.Write(rest[:idx+1])
		w.pub.Publish(w.worker, w.stream, w.partial.String())
		w.partial.Reset()
		rest = rest[idx+1:]
	}
	return len(p), nil
}

// Flush publishes any held partial line. Call when the worker's stream
// closes so a final unterminated line is not lost.
func (w *Writer) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.partial.Len() == 0 {
		return
	}
	w.pub.Publish(w.worker, w.stream, w.partial.String())
	w.partial.Reset()
}
