package retry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"time"
)

var testExpConfig = ExpConfig{
	Min:   1 * time.Minute,
	Max:   10 * time.Minute,
	Scale: 2.0,
}

func TestBackoff(t *testing.T) {
	backoff := NewExpBackoff(testExpConfig)
	assert.Equal(t, backoff.Backoff(), testExpConfig.Min)
	assert.Equal(t, backoff.Backoff(), 2*testExpConfig.Min)
	assert.Equal(t, backoff.Backoff(), 4*testExpConfig.Min)
	assert.Equal(t, backoff.Backoff(), 8*testExpConfig.Min)
	assert.Equal(t, backoff.Backoff(), testExpConfig.Max)
	assert.Equal(t, backoff.Backoff(), testExpConfig.Max)

	backoff.Reset()
	assert.Equal(t, backoff.Backoff(), testExpConfig.Min)
	assert.Equal(t, backoff.Backoff(), 2*testExpConfig.Min)
}

func TestExpDelays(t *testing.T) {
	delays := testExpConfig.Delays()

	d, ok := delays()
	assert.True(t, ok)
	assert.Equal(t, time.Duration(0), d)

	d, ok = delays()
	assert.True(t, ok)
	assert.Equal(t, testExpConfig.Min, d)

	d, ok = delays()
	assert.True(t, ok)
	assert.Equal(t, 2*testExpConfig.Min, d)
}

func TestExpDelaysMaxAttempts(t *testing.T) {
	config := testExpConfig
	config.MaxAttempts = 3
	delays := config.Delays()

	for i := 0; i < 3; i++ {
		_, ok := delays()
		assert.True(t, ok)
	}
	_, ok := delays()
	assert.False(t, ok)
}
