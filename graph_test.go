package incremental_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/incremental"
	"pipelined.dev/incremental/mock"
)

func TestSubscribe(t *testing.T) {
	source := mock.NewSource("source")
	echo := mock.NewEcho("echo")
	sink := mock.NewSink("sink")
	n := newNetwork()

	require.NoError(t, n.Subscribe(source, echo))
	require.NoError(t, n.Subscribe(echo, sink))
	// subscribing the same pair is no-op.
	require.NoError(t, n.Subscribe(source, echo))
	assert.Equal(t, []incremental.Module{echo}, n.Subscribers(source))
	assert.Len(t, n.Edges(), 2)

	// self subscription is allowed.
	require.NoError(t, n.Subscribe(echo, echo))
	assert.Equal(t, []incremental.Module{sink, echo}, n.Subscribers(echo))

	require.NoError(t, n.Unsubscribe(echo, echo))
	// absent edge.
	require.NoError(t, n.Unsubscribe(echo, echo))
	require.NoError(t, n.Unsubscribe(sink, source))
	assert.Equal(t, []incremental.Module{sink}, n.Subscribers(echo))
	assert.Empty(t, n.Subscribers(sink))
}

func TestTypeMismatch(t *testing.T) {
	source := mock.NewSourceOf("audio", "audio")
	sink := mock.NewSink("sink", "text", "tick")
	n := newNetwork()

	err := n.Subscribe(source, sink)
	require.Error(t, err)
	assert.ErrorIs(t, err, incremental.ErrTypeMismatch)
	var e *incremental.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "sink", e.Module)
	assert.Equal(t, incremental.PhaseWiring, e.Phase)
	assert.Empty(t, n.Subscribers(source))

	// sink accepts any of declared types.
	require.NoError(t, n.Subscribe(mock.NewSourceOf("ticker", "tick"), sink))
}

func TestEdges(t *testing.T) {
	source := mock.NewSource("source")
	sink := mock.NewSink("sink")
	n := newNetwork()
	require.NoError(t, n.Subscribe(source, sink))

	edges := n.Edges()
	require.Len(t, edges, 1)
	assert.Equal(t, incremental.Edge{Producer: source, Consumer: sink}, edges[0])
}
