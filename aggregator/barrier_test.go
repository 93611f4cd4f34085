package aggregator

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() log.Logger {
	return log.NewLogger(log.DiscardHandler())
}

func TestBarrier_FiresExactlyOnLastCompletion(t *testing.T) {
	var fired atomic.Int32
	var gotFailures atomic.Int32

	b, err := NewBarrier(3, func(failures int) {
		fired.Add(1)
		gotFailures.Store(int32(failures))
	}, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, BarrierCollecting, b.State())

	b.Complete(1)
	assert.Equal(t, BarrierCollecting, b.State())
	assert.Equal(t, int32(0), fired.Load())

	b.Complete(2)
	assert.Equal(t, int32(0), fired.Load())

	b.Complete(2)
	assert.Equal(t, BarrierFinalized, b.State())
	assert.Equal(t, int32(1), fired.Load(), "finalize must fire exactly once")
	assert.Equal(t, int32(2), gotFailures.Load(), "finalize gets the failure count from the final completion")
}

func TestBarrier_ZeroWorkersFinalizesImmediately(t *testing.T) {
	var fired atomic.Int32
	var gotFailures atomic.Int32

	b, err := NewBarrier(0, func(failures int) {
		fired.Add(1)
		gotFailures.Store(int32(failures))
	}, discardLogger())
	require.NoError(t, err)

	assert.Equal(t, BarrierFinalized, b.State())
	assert.Equal(t, int32(1), fired.Load())
	assert.Equal(t, int32(0), gotFailures.Load())
}

func TestBarrier_NegativeExpectedIsError(t *testing.T) {
	_, err := NewBarrier(-1, func(int) {}, discardLogger())
	require.Error(t, err)
}

func TestBarrier_NilFinalizeIsError(t *testing.T) {
	_, err := NewBarrier(1, nil, discardLogger())
	require.Error(t, err)
}

func TestBarrier_CompletionsAfterFinalizeAreDropped(t *testing.T) {
	var fired atomic.Int32

	b, err := NewBarrier(1, func(int) { fired.Add(1) }, discardLogger())
	require.NoError(t, err)

	b.Complete(0)
	b.Complete(0)
	b.Complete(5)

	assert.Equal(t, int32(1), fired.Load())
	assert.Equal(t, 1, b.Completed(), "extra completions must not advance the counter")
}

func TestBarrier_ConcurrentCompletionsFireOnce(t *testing.T) {
	const workers = 50

	var fired atomic.Int32
	b, err := NewBarrier(workers, func(int) { fired.Add(1) }, discardLogger())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Complete(0)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), fired.Load())
	assert.Equal(t, BarrierFinalized, b.State())
	assert.Equal(t, workers, b.Completed())
}
