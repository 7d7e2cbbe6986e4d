package log_test

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"pipelined.dev/incremental/log"
)

func TestWithLevel(t *testing.T) {
	l, err := log.WithLevel("warn")
	assert.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, l.GetLevel())

	l, err = log.WithLevel("")
	assert.NoError(t, err)
	assert.NotNil(t, l)

	_, err = log.WithLevel("loud")
	assert.Error(t, err)
}

func TestSilent(t *testing.T) {
	l := log.Silent()
	l.Error("not printed")
}
