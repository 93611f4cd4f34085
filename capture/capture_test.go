package capture

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testmux/testmux/types"
)

type published struct {
	worker types.WorkerID
	stream types.StreamName
	text   string
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (p *fakePublisher) Publish(worker types.WorkerID, stream types.StreamName, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{worker, stream, text})
}

func (p *fakePublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.msgs...)
}

func TestWriter_PublishesCompleteLines(t *testing.T) {
	pub := &fakePublisher{}
	w := NewWriter(pub, "a_test", types.StreamStdout)

	n, err := w.Write([]byte("line one\nline two\n"))
	require.NoError(t, err)
	assert.Equal(t, 18, n)

	msgs := pub.all()
	require.Len(t, msgs, 2)
	assert.Equal(t, "line one\n", msgs[0].text)
	assert.Equal(t, "line two\n", msgs[1].text)
	assert.Equal(t, types.WorkerID("a_test"), msgs[0].worker)
	assert.Equal(t, types.StreamStdout, msgs[0].stream)
}

func TestWriter_HoldsPartialLineAcrossWrites(t *testing.T) {
	pub := &fakePublisher{}
	w := NewWriter(pub, "a_test", types.StreamStderr)

	_, err := w.Write([]byte("partial"))
	require.NoError(t, err)
	assert.Empty(t, pub.all(), "partial line must not publish yet")

	_, err = w.Write([]byte(" line\nnext"))
	require.NoError(t, err)

	msgs := pub.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, "partial line\n", msgs[0].text)
}

func TestWriter_FlushPublishesRemainder(t *testing.T) {
	pub := &fakePublisher{}
	w := NewWriter(pub, "a_test", types.StreamStdout)

	_, err := w.Write([]byte("no trailing newline"))
	require.NoError(t, err)

	w.Flush()
	msgs := pub.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, "no trailing newline", msgs[0].text)

	// Flushing an empty writer publishes nothing.
	w.Flush()
	assert.Len(t, pub.all(), 1)
}

func TestWriter_EmptyWrite(t *testing.T) {
	pub := &fakePublisher{}
	w := NewWriter(pub, "a_test", types.StreamStdout)

	n, err := w.Write(nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, pub.all())
}

func TestPublisherFunc(t *testing.T) {
	var got published
	f := PublisherFunc(func(worker types.WorkerID, stream types.StreamName, text string) {
		got = published{worker, stream, text}
	})
	f.Publish("w", types.StreamStderr, "text")
	assert.Equal(t, published{"w", types.StreamStderr, "text"}, got)
}
