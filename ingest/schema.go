package ingest

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// wireSchema validates every NDJSON line before it touches the core. The
// shape mirrors the three record types: lifecycle events, captured output
// and worker end signals.
const wireSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["type", "worker"],
  "properties": {
    "type": {"enum": ["event", "output", "end"]},
    "worker": {"type": "string", "minLength": 1},
    "kind": {
      "enum": [
        "suiteStart", "suiteEnd",
        "testStart", "testPending", "testPass", "testEnd",
        "testFail", "testFailRetry"
      ]
    },
    "stream": {"enum": ["stdout", "stderr"]},
    "text": {"type": "string"},
    "payload": {}
  },
  "allOf": [
    {
      "if": {"properties": {"type": {"const": "event"}}},
      "then": {"required": ["kind"]}
    },
    {
      "if": {"properties": {"type": {"const": "output"}}},
      "then": {"required": ["stream", "text"]}
    }
  ]
}`

var (
	compiledSchema *jsonschema.Schema
	compileOnce    sync.Once
	compileErr     error
)

// compileWireSchema compiles the embedded schema once per process.
func compileWireSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(wireSchema))
		if err != nil {
			compileErr = fmt.Errorf("unmarshal wire schema: %w", err)
			return
		}

		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("wire.schema.json", doc); err != nil {
			compileErr = fmt.Errorf("add wire schema resource: %w", err)
			return
		}

		compiledSchema, compileErr = compiler.Compile("wire.schema.json")
	})
	return compiledSchema, compileErr
}
