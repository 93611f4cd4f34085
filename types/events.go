package types

import (
	"encoding/json"
	"fmt"
)

// WorkerID identifies a single test-file worker. It is treated as an opaque
// key; in practice it is the resolved path of the test file the worker runs.
type WorkerID string

// StreamName identifies which standard stream a captured message came from.
type StreamName string

const (
	StreamStdout StreamName = "stdout"
	StreamStderr StreamName = "stderr"
)

// Valid reports whether the stream name is one of the known streams.
func (s StreamName) Valid() bool {
	return s == StreamStdout || s == StreamStderr
}

// EventKind represents the closed set of lifecycle notifications a worker
// can emit while running its suite.
type EventKind string

const (
	EventSuiteStart    EventKind = "suiteStart"
	EventSuiteEnd      EventKind = "suiteEnd"
	EventTestStart     EventKind = "testStart"
	EventTestPending   EventKind = "testPending"
	EventTestPass      EventKind = "testPass"
	EventTestEnd       EventKind = "testEnd"
	EventTestFail      EventKind = "testFail"
	EventTestFailRetry EventKind = "testFailRetry"
)

var eventKinds = map[EventKind]struct{}{
	EventSuiteStart:    {},
	EventSuiteEnd:      {},
	EventTestStart:     {},
	EventTestPending:   {},
	EventTestPass:      {},
	EventTestEnd:       {},
	EventTestFail:      {},
	EventTestFailRetry: {},
}

// ParseEventKind converts a wire string into an EventKind.
func ParseEventKind(s string) (EventKind, error) {
	k := EventKind(s)
	if _, ok := eventKinds[k]; !ok {
		return "", fmt.Errorf("unknown event kind %q", s)
	}
	return k, nil
}

// LifecycleEvent is a single structured notification from a worker's test
// engine. Payload is carried opaquely; reporters may decode the parts they
// understand. Seq is a logical timestamp stamped by the aggregation clock at
// buffering time, so same-worker events always compare in arrival order.
type LifecycleEvent struct {
	Worker  WorkerID        `json:"worker"`
	Kind    EventKind       `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Seq     uint64          `json:"seq"`
}

// CapturedMessage is one chunk of raw text a worker wrote to stdout or
// stderr, intercepted for later in-order replay.
type CapturedMessage struct {
	Worker WorkerID   `json:"worker"`
	Stream StreamName `json:"stream"`
	Text   string     `json:"text"`
	Seq    uint64     `json:"seq"`
}

// TestInfo is the conventional payload shape attached to test-scoped events.
// All fields are optional; reporters decode best-effort and fall back to the
// worker identity when a payload carries no title.
type TestInfo struct {
	Title      string  `json:"title,omitempty"`
	FullTitle  string  `json:"fullTitle,omitempty"`
	DurationMS float64 `json:"duration,omitempty"`
	Err        string  `json:"err,omitempty"`
}

// DecodeTestInfo decodes a payload into TestInfo. A nil or malformed payload
// yields the zero value; payloads are pass-through data, never an error.
func DecodeTestInfo(payload json.RawMessage) TestInfo {
	var info TestInfo
	if len(payload) == 0 {
		return info
	}
	_ = json.Unmarshal(payload, &info)
	return info
}
