package reporting

import (
	"encoding/json"
	"io"

	"github.com/testmux/testmux/types"
)

func init() {
	registerBuiltin("json", func(out io.Writer) (Reporter, error) {
		return &JSONReporter{enc: json.NewEncoder(out)}, nil
	})
}

// JSONReporter echoes the normalized replay stream as NDJSON, one object per
// event, terminated by a summary record. Useful for piping the merged run
// into downstream tooling.
type JSONReporter struct {
	enc *json.Encoder
}

type jsonEventRecord struct {
	Type    string          `json:"type"`
	Worker  types.WorkerID  `json:"worker"`
	Kind    types.EventKind `json:"kind"`
	Seq     uint64          `json:"seq"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type jsonDoneRecord struct {
	Type     string `json:"type"`
	Failures int    `json:"failures"`
}

func (j *JSONReporter) HandleEvent(ev types.LifecycleEvent) error {
	return j.enc.Encode(jsonEventRecord{
		Type:    "event",
		Worker:  ev.Worker,
		Kind:    ev.Kind,
		Seq:     ev.Seq,
		Payload: ev.Payload,
	})
}

func (j *JSONReporter) Done(failures int) error {
	return j.enc.Encode(jsonDoneRecord{Type: "done", Failures: failures})
}
