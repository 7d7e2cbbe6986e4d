package config_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pipelined.dev/incremental"
	"pipelined.dev/incremental/config"
	"pipelined.dev/incremental/mock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const valid = `
log_level: error
policy: fail-fast
grace_period: 2s
budget: 50ms
queue:
  capacity: 16
  overflow: block
modules:
  source:
    queue:
      capacity: 4
      overflow: drop-oldest
  sink:
    budget: 200ms
`

func TestLoadFromReader(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(valid))
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.LogLevel)
	assert.Equal(t, "fail-fast", cfg.Policy)
	assert.Equal(t, 2*time.Second, cfg.GracePeriod)
	assert.Equal(t, 50*time.Millisecond, cfg.Budget)
	assert.Equal(t, config.Queue{Capacity: 16, Overflow: "block"}, cfg.Queue)
	require.Len(t, cfg.Modules, 2)
	assert.Equal(t, 200*time.Millisecond, cfg.Modules["sink"].Budget)
	require.NotNil(t, cfg.Modules["source"].Queue)
	assert.Equal(t, 4, cfg.Modules["source"].Queue.Capacity)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "network.yaml")
	require.NoError(t, os.WriteFile(path, []byte(valid), 0o600))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "fail-fast", cfg.Policy)

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestEmpty(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, config.Config{}, *cfg)
}

func TestInvalid(t *testing.T) {
	tests := []struct {
		name   string
		yaml   string
		errMsg string
	}{
		{
			name:   "unknown field",
			yaml:   "policy: isolate\nworkers: 4\n",
			errMsg: "workers",
		},
		{
			name:   "policy",
			yaml:   "policy: retry\n",
			errMsg: "policy \"retry\" is invalid",
		},
		{
			name:   "log level",
			yaml:   "log_level: loud\n",
			errMsg: "log_level",
		},
		{
			name:   "overflow",
			yaml:   "queue:\n  overflow: drop-newest\n",
			errMsg: "queue.overflow",
		},
		{
			name:   "negative capacity",
			yaml:   "modules:\n  asr:\n    queue:\n      capacity: -1\n",
			errMsg: "modules.asr.queue.capacity",
		},
		{
			name:   "negative budget",
			yaml:   "budget: -1s\n",
			errMsg: "budget",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := config.LoadFromReader(strings.NewReader(test.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), test.errMsg)
		})
	}
}

func TestOptions(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(valid))
	require.NoError(t, err)
	source := mock.NewSource("source")
	sink := mock.NewSink("sink")

	options, err := cfg.Options(source, sink)
	require.NoError(t, err)

	n := incremental.New(options...)
	require.NoError(t, n.Subscribe(source, sink))
	require.NoError(t, n.Run(context.Background(), source))
	require.NoError(t, source.Add("a"))
	require.NoError(t, n.Stop())
	assert.Equal(t, []any{"a"}, sink.Current())

	_, err = cfg.Options(sink)
	assert.ErrorContains(t, err, "modules.source: module not found")
}
