package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventKind(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    EventKind
		wantErr bool
	}{
		{name: "suite start", input: "suiteStart", want: EventSuiteStart},
		{name: "suite end", input: "suiteEnd", want: EventSuiteEnd},
		{name: "test start", input: "testStart", want: EventTestStart},
		{name: "test pending", input: "testPending", want: EventTestPending},
		{name: "test pass", input: "testPass", want: EventTestPass},
		{name: "test end", input: "testEnd", want: EventTestEnd},
		{name: "test fail", input: "testFail", want: EventTestFail},
		{name: "test fail retry", input: "testFailRetry", want: EventTestFailRetry},
		{name: "unknown kind", input: "testExploded", wantErr: true},
		{name: "empty string", input: "", wantErr: true},
		{name: "wrong case", input: "TESTPASS", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEventKind(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStreamNameValid(t *testing.T) {
	assert.True(t, StreamStdout.Valid())
	assert.True(t, StreamStderr.Valid())
	assert.False(t, StreamName("stdlog").Valid())
	assert.False(t, StreamName("").Valid())
}

func TestDecodeTestInfo(t *testing.T) {
	info := DecodeTestInfo([]byte(`{"title":"adds numbers","fullTitle":"math adds numbers","duration":12.5,"err":"boom"}`))
	assert.Equal(t, "adds numbers", info.Title)
	assert.Equal(t, "math adds numbers", info.FullTitle)
	assert.Equal(t, 12.5, info.DurationMS)
	assert.Equal(t, "boom", info.Err)

	assert.Zero(t, DecodeTestInfo(nil), "nil payload should decode to zero value")
	assert.Zero(t, DecodeTestInfo([]byte(`not json`)), "malformed payload should decode to zero value")
}
