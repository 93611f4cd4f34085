// Package ingest decodes the NDJSON wire protocol that delivers worker
// events and captured output to the aggregation core. One JSON object per
// line; each line is schema-validated, attributed to its worker and routed
// to that worker's collector or to the capture buffer. Malformed lines are
// logged and dropped; the aggregate process never crashes on bad input.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/testmux/testmux/aggregator"
	"github.com/testmux/testmux/metrics"
	"github.com/testmux/testmux/types"
)

// maxLineBytes bounds a single wire line; a captured chunk larger than this
// is a protocol violation, not a legitimate message.
const maxLineBytes = 4 * 1024 * 1024

// wireRecord is the decoded form of one NDJSON line.
type wireRecord struct {
	Type    string          `json:"type"`
	Worker  string          `json:"worker"`
	Kind    string          `json:"kind,omitempty"`
	Stream  string          `json:"stream,omitempty"`
	Text    string          `json:"text,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Ingester reads the wire stream and feeds the aggregation context. One
// collector is created lazily per worker; collectors for finished workers
// stay in the table so duplicate or late records are recognized and dropped
// instead of re-arming the barrier.
type Ingester struct {
	log    log.Logger
	agg    *aggregator.Context
	schema *jsonschema.Schema

	mu         sync.Mutex
	collectors map[types.WorkerID]*aggregator.Collector
}

// New creates an ingester bound to an aggregation context. Schema
// compilation happens here so a broken build fails at startup, not on the
// first line.
func New(agg *aggregator.Context, logger log.Logger) (*Ingester, error) {
	if agg == nil {
		return nil, fmt.Errorf("aggregation context is required")
	}
	schema, err := compileWireSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to compile wire schema: %w", err)
	}
	return &Ingester{
		log:        logger.New("component", "ingest"),
		agg:        agg,
		schema:     schema,
		collectors: make(map[types.WorkerID]*aggregator.Collector),
	}, nil
}

// Run consumes the stream until EOF or context cancellation. It returns the
// scanner's error, if any; individual bad lines never abort the run.
func (in *Ingester) Run(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		in.handleLine(line)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("wire stream read failed: %w", err)
	}
	return nil
}

// handleLine validates and dispatches a single wire line.
func (in *Ingester) handleLine(line []byte) {
	var v any
	if err := json.Unmarshal(line, &v); err != nil {
		in.log.Warn("Dropping non-JSON wire line", "error", err)
		metrics.RecordInvalidWireEvent()
		return
	}
	if err := in.schema.Validate(v); err != nil {
		in.log.Warn("Dropping wire line rejected by schema", "error", err)
		metrics.RecordInvalidWireEvent()
		return
	}

	var rec wireRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		in.log.Warn("Dropping undecodable wire line", "error", err)
		metrics.RecordInvalidWireEvent()
		return
	}

	worker := types.WorkerID(rec.Worker)
	switch rec.Type {
	case "event":
		kind, err := types.ParseEventKind(rec.Kind)
		if err != nil {
			// The schema already constrains kinds; reaching this means the
			// schema and the enum drifted apart.
			in.log.Error("Schema accepted unknown event kind", "kind", rec.Kind)
			metrics.RecordInvalidWireEvent()
			return
		}
		in.collector(worker).OnEvent(kind, rec.Payload)
	case "output":
		in.agg.Capture().Record(worker, types.StreamName(rec.Stream), rec.Text)
	case "end":
		in.collector(worker).OnCompletion()
	}
}

// collector returns the worker's collector, creating it on first contact.
func (in *Ingester) collector(worker types.WorkerID) *aggregator.Collector {
	in.mu.Lock()
	defer in.mu.Unlock()

	c, ok := in.collectors[worker]
	if !ok {
		c = aggregator.NewCollector(in.agg, worker)
		in.collectors[worker] = c
		in.log.Debug("Worker first seen", "worker", worker)
	}
	return c
}

// Workers returns how many distinct workers have been seen.
func (in *Ingester) Workers() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.collectors)
}
