package mock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pipelined.dev/incremental"
	"pipelined.dev/incremental/log"
	"pipelined.dev/incremental/mock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNotBound(t *testing.T) {
	s := mock.NewSource("source")
	assert.Error(t, s.Add("a"))
}

func TestEcho(t *testing.T) {
	source := mock.NewSource("source")
	echo := mock.NewEcho("echo")
	sink := mock.NewSink("sink")

	n := incremental.New(incremental.WithLogger(log.Silent()))
	require.NoError(t, n.Subscribe(source, echo))
	require.NoError(t, n.Subscribe(echo, sink))
	require.NoError(t, n.Run(context.Background(), source))

	require.NoError(t, source.Add("a", "b"))
	require.NoError(t, source.RevokeLast())
	require.NoError(t, source.CommitAll())
	require.NoError(t, n.Stop())

	assert.Equal(t, []any{"a", "b"}, sink.Payloads(incremental.Add))
	assert.Equal(t, []any{"b"}, sink.Payloads(incremental.Revoke))
	assert.Equal(t, []any{"a"}, sink.Payloads(incremental.Commit))
	assert.Equal(t, []any{"a"}, sink.Current())

	messages, updates := echo.Count()
	assert.Equal(t, 3, messages)
	assert.Equal(t, 4, updates)

	// echo IUs are grounded in source IUs.
	for _, iu := range sink.Input(echo.ID()) {
		require.Len(t, iu.GroundedIn, 1)
		assert.Equal(t, source.ID(), iu.GroundedIn[0].Module)
	}
}

func TestHooks(t *testing.T) {
	source := mock.NewSource("source")
	sink := mock.NewSink("sink")
	sink.ErrorOnFlush = errors.New("flush")

	n := incremental.New(incremental.WithLogger(log.Silent()))
	require.NoError(t, n.Subscribe(source, sink))
	require.NoError(t, n.Run(context.Background(), source))
	assert.True(t, source.Started())
	assert.True(t, sink.Started())

	err := n.Stop()
	assert.ErrorIs(t, err, sink.ErrorOnFlush)
	assert.True(t, source.Flushed())
	assert.True(t, sink.Flushed())
}

func TestGate(t *testing.T) {
	source := mock.NewSource("source")
	gate := mock.NewGate("gate")
	sink := mock.NewSink("sink")

	n := incremental.New(incremental.WithLogger(log.Silent()))
	require.NoError(t, n.Subscribe(source, gate))
	require.NoError(t, n.Subscribe(gate, sink))
	require.NoError(t, n.Run(context.Background(), source))

	require.NoError(t, source.Add("a"))
	select {
	case <-gate.Entered:
	case <-time.After(time.Second):
		t.Fatal("gate wasn't entered")
	}
	assert.Empty(t, sink.Messages())

	gate.Release()
	require.NoError(t, n.Stop())
	assert.Equal(t, []any{"a"}, sink.Current())
}
