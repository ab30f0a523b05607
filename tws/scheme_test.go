package tws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithWSScheme(t *testing.T) {
	for in, out := range map[string]string{
		"http://example.com/live":      "ws://example.com/live",
		"https://example.com/live":     "wss://example.com/live",
		"ws://example.com/live":        "ws://example.com/live",
		"wss://example.com/live":       "wss://example.com/live",
		"http://example.com:8080/live": "ws://example.com:8080/live",
	} {
		got, err := WithWSScheme(in)
		require.NoError(t, err)
		assert.Equal(t, out, got, in)
	}

	_, err := WithWSScheme("://nope")
	assert.Error(t, err)
}
