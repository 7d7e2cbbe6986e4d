package text_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/text/language"

	"pipelined.dev/incremental"
	"pipelined.dev/incremental/log"
	"pipelined.dev/incremental/mock"
	"pipelined.dev/incremental/text"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func assertGolden(t *testing.T, name string, actual []byte) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, actual)
}

func TestUppercase(t *testing.T) {
	src := mock.NewSourceOf("words", text.Type)
	upper := text.NewUppercase("uppercase", language.German)
	var out bytes.Buffer
	printer := text.NewPrinter("printer", &out)

	n := incremental.New(incremental.WithLogger(log.Silent()))
	require.NoError(t, n.Subscribe(src, upper))
	require.NoError(t, n.Subscribe(upper, printer))
	require.NoError(t, n.Run(context.Background(), src))

	require.NoError(t, src.Add("hello"))
	require.NoError(t, src.Add("wor"))
	require.NoError(t, src.RevokeLast())
	require.NoError(t, src.Add("world"))
	require.NoError(t, src.CommitAll())
	require.NoError(t, src.Add("straße"))
	require.NoError(t, src.CommitAll())
	require.NoError(t, n.Stop())

	assertGolden(t, "uppercase", out.Bytes())
	assert.Empty(t, upper.Output())
	assert.Equal(t, incremental.ResetOnCommit, upper.ResetPolicy())
}

func TestUppercaseCommit(t *testing.T) {
	src := mock.NewSourceOf("words", text.Type)
	upper := text.NewUppercase("uppercase", language.Und)
	sink := mock.NewSink("sink", text.Type)

	n := incremental.New(incremental.WithLogger(log.Silent()))
	require.NoError(t, n.Subscribe(src, upper))
	require.NoError(t, n.Subscribe(upper, sink))
	require.NoError(t, n.Run(context.Background(), src))

	require.NoError(t, src.Add("a"))
	require.NoError(t, src.Add("b"))
	require.NoError(t, src.CommitOldest())
	require.NoError(t, n.Stop())

	messages := sink.Messages()
	require.Len(t, messages, 3)
	assert.Equal(t, []any{"A"}, payloads(messages[0].Of(incremental.Add)))
	assert.Equal(t, []any{"B"}, payloads(messages[1].Of(incremental.Add)))
	assert.Equal(t, 1, messages[2].Len())
	committed := messages[2].Of(incremental.Commit)
	require.Len(t, committed, 1)
	assert.Same(t, messages[0].Updates[0].IU, committed[0])
	assert.True(t, committed[0].Committed())
	// input isn't final, so output is kept.
	assert.Len(t, upper.Output(), 2)
}

func TestUppercaseProducers(t *testing.T) {
	words := mock.NewSourceOf("words", text.Type)
	names := mock.NewSourceOf("names", text.Type)
	upper := text.NewUppercase("uppercase", language.Und)
	sink := mock.NewSink("sink", text.Type)

	n := incremental.New(incremental.WithLogger(log.Silent()))
	require.NoError(t, n.Subscribe(words, upper))
	require.NoError(t, n.Subscribe(names, upper))
	require.NoError(t, n.Subscribe(upper, sink))
	require.NoError(t, n.Run(context.Background(), words, names))

	// every step must reach the sink before the next one is triggered.
	steps := []func() error{
		func() error { return words.Add("a") },
		func() error { return names.Add("x") },
		func() error { return names.CommitAll() },
		func() error { return words.Add("b") },
		func() error { return words.RevokeLast() },
	}
	for i, step := range steps {
		require.NoError(t, step())
		require.Eventually(t, func() bool {
			return len(sink.Messages()) == i+1
		}, time.Second, time.Millisecond)
	}
	require.NoError(t, n.Stop())

	assert.Equal(t, []any{"A", "X", "B"}, sink.Payloads(incremental.Add))
	assert.Equal(t, []any{"X"}, sink.Payloads(incremental.Commit))
	assert.Equal(t, []any{"B"}, sink.Payloads(incremental.Revoke))
	assert.Equal(t, []any{"A", "X"}, sink.Current())
}

func payloads(ius []*incremental.IU) []any {
	var p []any
	for _, iu := range ius {
		p = append(p, iu.Payload())
	}
	return p
}

func TestWordMap(t *testing.T) {
	src := mock.NewSourceOf("words", text.Type)
	words := text.NewWordMap("colors", map[string]string{"colour": "color"})
	upper := text.NewUppercase("uppercase", language.English)
	var out bytes.Buffer
	printer := text.NewPrinter("printer", &out)

	n := incremental.New(incremental.WithLogger(log.Silent()))
	require.NoError(t, n.Subscribe(src, words))
	require.NoError(t, n.Subscribe(words, upper))
	require.NoError(t, n.Subscribe(upper, printer))
	require.NoError(t, n.Run(context.Background(), src))

	require.NoError(t, src.Add("Colour"))
	require.NoError(t, src.Add("me"))
	require.NoError(t, src.RevokeLast())
	require.NoError(t, src.Add("blue"))
	require.NoError(t, src.CommitAll())
	require.NoError(t, n.Stop())

	assertGolden(t, "wordmap", out.Bytes())
}

func TestReplace(t *testing.T) {
	w := text.NewWordMap("", map[string]string{
		"Grey":   "gray",
		"colour": "color",
	})
	tests := []struct {
		in       string
		expected string
	}{
		{in: "grey colour", expected: "gray color"},
		{in: "GREY  sky", expected: "gray sky"},
		{in: "", expected: ""},
	}
	for _, test := range tests {
		assert.Equal(t, test.expected, w.Replace(test.in))
	}
}

func TestTypeMismatch(t *testing.T) {
	n := incremental.New(incremental.WithLogger(log.Silent()))
	err := n.Subscribe(mock.NewSource("mock"), text.NewPrinter("printer", &bytes.Buffer{}))
	assert.ErrorIs(t, err, incremental.ErrTypeMismatch)
}
